// Package balance implements the token balance ledger: per-account balances,
// total supply, and fee-exclusion flags.
//
// Every change is expressed as a list of postings that is staged with
// Prepare and applied with Batch.Commit, so a multi-leg movement (debit the
// sender, credit the recipient, credit the fee holder) is never observed
// half-applied. A batch must conserve supply: credits equal debits, and only
// mint and burn postings move the total supply.
package balance

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/types"
)

// Sentinel errors.
var (
	ErrInsufficientBalance = errors.New("balance: insufficient balance")
	ErrOverflow            = errors.New("balance: amount overflow")
	ErrUnbalanced          = errors.New("balance: credits do not equal debits")
	ErrSupplyMismatch      = errors.New("balance: total supply does not match sum of balances")
	ErrZeroAddress         = errors.New("balance: zero address")
	ErrUnknownOp           = errors.New("balance: unknown posting op")
)

// Op is the kind of a posting.
type Op string

const (
	OpCredit Op = "credit"
	OpDebit  Op = "debit"
	OpMint   Op = "mint" // credit that also grows total supply
	OpBurn   Op = "burn" // debit that also shrinks total supply
)

// Posting is one leg of a balance movement.
type Posting struct {
	Account common.Address `json:"account"`
	Op      Op             `json:"op"`
	Amount  types.Amount   `json:"amount"`
}

// Credit returns a credit posting.
func Credit(account common.Address, amount types.Amount) Posting {
	return Posting{Account: account, Op: OpCredit, Amount: amount}
}

// Debit returns a debit posting.
func Debit(account common.Address, amount types.Amount) Posting {
	return Posting{Account: account, Op: OpDebit, Amount: amount}
}

// Mint returns a mint posting.
func Mint(account common.Address, amount types.Amount) Posting {
	return Posting{Account: account, Op: OpMint, Amount: amount}
}

// Burn returns a burn posting.
func Burn(account common.Address, amount types.Amount) Posting {
	return Posting{Account: account, Op: OpBurn, Amount: amount}
}

// Move returns the debit/credit pair for moving amount from one account to another.
func Move(from, to common.Address, amount types.Amount) []Posting {
	return []Posting{Debit(from, amount), Credit(to, amount)}
}

// Account is a read-only view of one account.
type Account struct {
	Address          common.Address `json:"address"`
	Balance          types.Amount   `json:"balance"`
	ExcludedFromFees bool           `json:"excluded_from_fees"`
}

// Ledger holds balances and total supply. It is not safe for concurrent use;
// the engine serializes access.
type Ledger struct {
	balances map[common.Address]types.Amount
	excluded map[common.Address]bool
	supply   types.Amount
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]types.Amount),
		excluded: make(map[common.Address]bool),
	}
}

// BalanceOf returns the balance of account (zero if never touched).
func (l *Ledger) BalanceOf(account common.Address) types.Amount {
	return l.balances[account]
}

// TotalSupply returns the current total supply.
func (l *Ledger) TotalSupply() types.Amount {
	return l.supply
}

// Batch is a validated, not-yet-applied set of postings.
type Batch struct {
	ledger    *Ledger
	postings  []Posting
	balances  map[common.Address]types.Amount
	supply    types.Amount
	committed bool
}

// Prepare stages postings in order against the current balances without
// mutating the ledger. It fails if any debit would drive a balance negative,
// any credit would overflow, or the batch does not conserve supply.
func (l *Ledger) Prepare(postings ...Posting) (*Batch, error) {
	b := &Batch{
		ledger:   l,
		postings: append([]Posting(nil), postings...),
		balances: make(map[common.Address]types.Amount, len(postings)),
		supply:   l.supply,
	}

	var credits, debits types.Amount
	for i, p := range postings {
		if types.IsZeroAddress(p.Account) {
			return nil, fmt.Errorf("posting %d: %w", i, ErrZeroAddress)
		}

		current, ok := b.balances[p.Account]
		if !ok {
			current = l.balances[p.Account]
		}

		var err error
		switch p.Op {
		case OpCredit, OpMint:
			current, err = current.Add(p.Amount)
			if err != nil {
				return nil, fmt.Errorf("posting %d: credit %s: %w", i, p.Account.Hex(), ErrOverflow)
			}
		case OpDebit, OpBurn:
			current, err = current.Sub(p.Amount)
			if err != nil {
				return nil, fmt.Errorf("posting %d: debit %s: %w", i, p.Account.Hex(), ErrInsufficientBalance)
			}
		default:
			return nil, fmt.Errorf("posting %d: %w: %q", i, ErrUnknownOp, p.Op)
		}

		switch p.Op {
		case OpCredit:
			credits, err = credits.Add(p.Amount)
		case OpDebit:
			debits, err = debits.Add(p.Amount)
		case OpMint:
			b.supply, err = b.supply.Add(p.Amount)
		case OpBurn:
			b.supply, err = b.supply.Sub(p.Amount)
		}
		if err != nil {
			return nil, fmt.Errorf("posting %d: %w", i, ErrOverflow)
		}

		b.balances[p.Account] = current
	}

	if !credits.Equal(debits) {
		return nil, fmt.Errorf("%w: credits %s, debits %s", ErrUnbalanced, credits, debits)
	}
	return b, nil
}

// Postings returns the staged postings.
func (b *Batch) Postings() []Posting {
	return append([]Posting(nil), b.postings...)
}

// BalanceOf returns the balance account would have after Commit.
func (b *Batch) BalanceOf(account common.Address) types.Amount {
	if v, ok := b.balances[account]; ok {
		return v
	}
	return b.ledger.balances[account]
}

// Commit applies the batch. Committing twice is a no-op.
func (b *Batch) Commit() {
	if b.committed {
		return
	}
	for account, v := range b.balances {
		b.ledger.balances[account] = v
	}
	b.ledger.supply = b.supply
	b.committed = true
}

// Apply prepares and commits postings in one step.
func (l *Ledger) Apply(postings ...Posting) error {
	b, err := l.Prepare(postings...)
	if err != nil {
		return err
	}
	b.Commit()
	return nil
}

// TransferNet debits from and credits to by the same amount.
func (l *Ledger) TransferNet(from, to common.Address, amount types.Amount) error {
	return l.Apply(Move(from, to, amount)...)
}

// Mint credits account and grows total supply.
func (l *Ledger) Mint(account common.Address, amount types.Amount) error {
	return l.Apply(Mint(account, amount))
}

// Burn debits account and shrinks total supply.
func (l *Ledger) Burn(account common.Address, amount types.Amount) error {
	return l.Apply(Burn(account, amount))
}

// ──────────────────────────────────────────────────
// Fee exclusion
// ──────────────────────────────────────────────────

// SetExcluded sets the excludedFromFees flag of account.
func (l *Ledger) SetExcluded(account common.Address, excluded bool) {
	if excluded {
		l.excluded[account] = true
		return
	}
	delete(l.excluded, account)
}

// IsExcluded reports whether account is excluded from fees.
func (l *Ledger) IsExcluded(account common.Address) bool {
	return l.excluded[account]
}

// Excluded returns all excluded accounts in address order.
func (l *Ledger) Excluded() []common.Address {
	out := make([]common.Address, 0, len(l.excluded))
	for a := range l.excluded {
		out = append(out, a)
	}
	sortAddresses(out)
	return out
}

// ──────────────────────────────────────────────────
// Snapshots and invariants
// ──────────────────────────────────────────────────

// Accounts returns every account with a non-zero balance or an exclusion
// flag, in address order.
func (l *Ledger) Accounts() []Account {
	seen := make(map[common.Address]struct{}, len(l.balances)+len(l.excluded))
	addrs := make([]common.Address, 0, len(seen))
	for a, v := range l.balances {
		if v.IsZero() {
			continue
		}
		seen[a] = struct{}{}
		addrs = append(addrs, a)
	}
	for a := range l.excluded {
		if _, ok := seen[a]; !ok {
			addrs = append(addrs, a)
		}
	}
	sortAddresses(addrs)

	out := make([]Account, len(addrs))
	for i, a := range addrs {
		out[i] = Account{Address: a, Balance: l.balances[a], ExcludedFromFees: l.excluded[a]}
	}
	return out
}

// CheckConservation recomputes the sum of all balances and compares it with
// the total supply.
func (l *Ledger) CheckConservation() error {
	var sum types.Amount
	for _, v := range l.balances {
		var err error
		if sum, err = sum.Add(v); err != nil {
			return fmt.Errorf("%w: sum overflows", ErrSupplyMismatch)
		}
	}
	if !sum.Equal(l.supply) {
		return fmt.Errorf("%w: sum %s, supply %s", ErrSupplyMismatch, sum, l.supply)
	}
	return nil
}

func sortAddresses(addrs []common.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}
