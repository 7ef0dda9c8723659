package feeledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/balance"
	"github.com/xraph/feeledger/id"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/plugin"
	"github.com/xraph/feeledger/swap"
	"github.com/xraph/feeledger/types"
)

// Receipt describes a committed transfer.
type Receipt struct {
	Sequence uint64         `json:"sequence"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Amount   types.Amount   `json:"amount"`
	Net      types.Amount   `json:"net"`
	Fee      types.Amount   `json:"fee"`
	Rate     types.BPS      `json:"rate"`
	Class    swap.Class     `json:"class"`
	Excluded bool           `json:"excluded"`

	// AutoprocessLot is set when the transfer triggered fee processing. A
	// failed attempt still reports its rolled back lot.
	AutoprocessLot id.LotID `json:"autoprocess_lot"`
}

func (r *Receipt) event() *plugin.TransferEvent {
	return &plugin.TransferEvent{
		Sequence: r.Sequence,
		From:     r.From,
		To:       r.To,
		Amount:   r.Amount,
		Net:      r.Net,
		Fee:      r.Fee,
		Class:    r.Class,
		Excluded: r.Excluded,
	}
}

// Transfer moves amount from one account to another. Unless either side is
// excluded from fees, the rate for the transfer's class is withheld and
// credited to the fee holding account. The sender is debited the full
// amount and the recipient credited the net.
func (e *Engine) Transfer(ctx context.Context, from, to common.Address, amount types.Amount) (*Receipt, error) {
	e.mu.Lock()
	receipt, err := e.transferLocked(ctx, from, to, amount)
	autoprocess := err == nil && e.shouldAutoprocess(receipt)
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}

	e.logger.Debug("transfer committed",
		"from", from.Hex(),
		"to", to.Hex(),
		"amount", amount.String(),
		"fee", receipt.Fee.String(),
		"class", receipt.Class.String(),
	)
	e.plugins.EmitTransfer(ctx, receipt.event())

	if autoprocess {
		if l := e.autoprocess(ctx, from); l != nil {
			receipt.AutoprocessLot = l.ID
		}
	}
	return receipt, nil
}

func (e *Engine) transferLocked(ctx context.Context, from, to common.Address, amount types.Amount) (*Receipt, error) {
	if err := e.checkStarted(); err != nil {
		return nil, err
	}
	if types.IsZeroAddress(from) || types.IsZeroAddress(to) {
		return nil, ErrZeroAddress
	}
	if from == e.feeHolding || to == e.feeHolding {
		return nil, ErrReservedAccount
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: zero amount", ErrInvalidInput)
	}

	r := &Receipt{
		From:     from,
		To:       to,
		Amount:   amount,
		Net:      amount,
		Class:    e.classifier.Classify(from, to),
		Excluded: e.isExcluded(from) || e.isExcluded(to),
	}

	postings := []balance.Posting{balance.Debit(from, amount)}
	if !r.Excluded {
		r.Rate = e.policy.RateFor(r.Class)
		fee, err := amount.ApplyBPS(r.Rate)
		if err != nil {
			return nil, err
		}
		if r.Net, err = amount.Sub(fee); err != nil {
			return nil, err
		}
		r.Fee = fee
	}
	postings = append(postings, balance.Credit(to, r.Net))
	if r.Fee.IsPositive() {
		postings = append(postings, balance.Credit(e.feeHolding, r.Fee))
	}

	caller, _ := CallerFrom(ctx)
	if types.IsZeroAddress(caller) {
		caller = from
	}
	entry := journal.NewEntry(journal.KindTransfer, caller)
	entry.Postings = postings
	if err := e.commit(ctx, entry); err != nil {
		return nil, err
	}
	r.Sequence = entry.Sequence
	return r, nil
}

func (e *Engine) isExcluded(account common.Address) bool {
	return account == e.feeHolding || e.ledger.IsExcluded(account)
}

// shouldAutoprocess is called with e.mu held.
func (e *Engine) shouldAutoprocess(r *Receipt) bool {
	if !e.settings.AutoprocessFees || r.Class != swap.Sell {
		return false
	}
	held := e.ledger.BalanceOf(e.feeHolding)
	threshold := e.settings.AutoprocessThreshold
	return held.IsPositive() && !held.LessThan(threshold)
}
