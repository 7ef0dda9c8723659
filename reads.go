package feeledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/balance"
	"github.com/xraph/feeledger/collector"
	"github.com/xraph/feeledger/id"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/plugin"
	"github.com/xraph/feeledger/policy"
	"github.com/xraph/feeledger/types"
)

// BalanceOf returns the balance of account.
func (e *Engine) BalanceOf(account common.Address) types.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.BalanceOf(account)
}

// TotalSupply returns the sum of all balances.
func (e *Engine) TotalSupply() types.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.TotalSupply()
}

// FeeConfiguration returns the current fee rates and split ratios.
func (e *Engine) FeeConfiguration() policy.Configuration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy.Current()
}

// TotalShares returns the sum of all collector shares.
func (e *Engine) TotalShares() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collectors.TotalShares()
}

// Collectors returns the registered collectors in registration order.
func (e *Engine) Collectors() []collector.Collector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collectors.List()
}

// IsFeeCollector reports whether address is a registered collector.
func (e *Engine) IsFeeCollector(address common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collectors.Contains(address)
}

// IsExcludedFromFees reports whether transfers touching account bypass fees.
// The fee holding account is always excluded.
func (e *Engine) IsExcludedFromFees(account common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isExcluded(account)
}

// FeeHoldingAccount returns the account fees accrue to.
func (e *Engine) FeeHoldingAccount() common.Address {
	return e.feeHolding
}

// FeeHoldingBalance returns the fees accrued and not yet processed.
func (e *Engine) FeeHoldingBalance() types.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.BalanceOf(e.feeHolding)
}

// Settings returns the administrative settings.
func (e *Engine) Settings() journal.Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// Administrator returns the current administrator address.
func (e *Engine) Administrator() common.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings.Administrator
}

// Token returns the token metadata.
func (e *Engine) Token() types.Token {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token
}

// Accounts lists every account with a balance or an exclusion flag.
func (e *Engine) Accounts() []balance.Account {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Accounts()
}

// Sequence returns the sequence of the last committed journal entry.
func (e *Engine) Sequence() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sequence
}

// PreviewSplit returns how amount would be apportioned among the current
// collectors, without moving anything.
func (e *Engine) PreviewSplit(amount types.Amount) ([]collector.Share, types.Amount, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collectors.ProportionalSplit(amount)
}

// Lot returns a recorded processing or distribution lot.
func (e *Engine) Lot(ctx context.Context, lotID id.LotID) (*lot.Lot, error) {
	return e.store.GetLot(ctx, lotID)
}

// Lots lists recorded lots.
func (e *Engine) Lots(ctx context.Context, opts lot.ListOpts) ([]*lot.Lot, error) {
	return e.store.ListLots(ctx, opts)
}

// Journal lists committed journal entries after opts.AfterSequence.
func (e *Engine) Journal(ctx context.Context, opts journal.ListOpts) ([]*journal.Entry, error) {
	return e.store.ListEntries(ctx, opts)
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry {
	return e.plugins
}

// CheckConservation verifies that the sum of balances equals total supply.
func (e *Engine) CheckConservation() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.CheckConservation()
}
