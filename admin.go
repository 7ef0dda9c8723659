package feeledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/collector"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/plugin"
	"github.com/xraph/feeledger/policy"
	"github.com/xraph/feeledger/types"
)

// Authorizer decides whether caller may run privileged operations.
type Authorizer interface {
	IsAdministrator(caller common.Address) bool
}

// AdminGuard is the default Authorizer: exactly one administrator address,
// kept in sync with the engine's settings.
type AdminGuard struct {
	mu    sync.RWMutex
	admin common.Address
}

// NewAdminGuard returns a guard for admin.
func NewAdminGuard(admin common.Address) *AdminGuard {
	return &AdminGuard{admin: admin}
}

// IsAdministrator implements Authorizer. The zero address is never an
// administrator.
func (g *AdminGuard) IsAdministrator(caller common.Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return !types.IsZeroAddress(caller) && caller == g.admin
}

// Administrator returns the current administrator.
func (g *AdminGuard) Administrator() common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.admin
}

// Set replaces the administrator.
func (g *AdminGuard) Set(admin common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.admin = admin
}

type callerKey struct{}

// WithCaller returns a context carrying the address on whose behalf an
// operation runs.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller stored by WithCaller.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(callerKey{}).(common.Address)
	return caller, ok
}

// authorize checks the context caller. Caller holds e.mu.
func (e *Engine) authorize(ctx context.Context) (common.Address, error) {
	caller, ok := CallerFrom(ctx)
	if !ok || !e.authorizer.IsAdministrator(caller) {
		return caller, ErrUnauthorized
	}
	return caller, nil
}

// begin runs the checks shared by every privileged mutation. Caller holds e.mu.
func (e *Engine) begin(ctx context.Context) (common.Address, error) {
	if err := e.checkStarted(); err != nil {
		return common.Address{}, err
	}
	return e.authorize(ctx)
}

// ──────────────────────────────────────────────────
// Fee configuration
// ──────────────────────────────────────────────────

// SetTaxRates sets the buy and sell fee rates.
func (e *Engine) SetTaxRates(ctx context.Context, buyBps, sellBps types.BPS) error {
	return e.updateConfig(ctx, "setTaxRates", func(p *policy.Policy) error {
		return p.SetTaxRates(buyBps, sellBps)
	})
}

// SetTransferFee sets the fee rate for plain transfers.
func (e *Engine) SetTransferFee(ctx context.Context, bps types.BPS) error {
	return e.updateConfig(ctx, "setTransferFee", func(p *policy.Policy) error {
		return p.SetTransferFee(bps)
	})
}

// SetSplitRatios sets how processed fees are divided among burn, liquidity
// and collectors. The three ratios must sum to exactly 10000.
func (e *Engine) SetSplitRatios(ctx context.Context, burn, liquidity, collectors types.BPS) error {
	return e.updateConfig(ctx, "setSplitRatios", func(p *policy.Policy) error {
		return p.SetSplitRatios(burn, liquidity, collectors)
	})
}

func (e *Engine) updateConfig(ctx context.Context, op string, change func(*policy.Policy) error) error {
	e.mu.Lock()
	oldCfg, newCfg, err := e.updateConfigLocked(ctx, change)
	e.mu.Unlock()

	if err != nil {
		e.notifyUnauthorized(ctx, op, err)
		return err
	}

	e.logger.Info("fee configuration changed", "operation", op,
		"buy_bps", newCfg.BuyFeeBps, "sell_bps", newCfg.SellFeeBps, "transfer_bps", newCfg.TransferFeeBps,
		"burn_bps", newCfg.BurnRatioBps, "liquidity_bps", newCfg.LiquidityRatioBps, "collectors_bps", newCfg.CollectorsRatioBps,
	)
	e.plugins.EmitConfigChanged(ctx, oldCfg, newCfg)
	return nil
}

func (e *Engine) updateConfigLocked(ctx context.Context, change func(*policy.Policy) error) (oldCfg, newCfg policy.Configuration, err error) {
	caller, err := e.begin(ctx)
	if err != nil {
		return oldCfg, newCfg, err
	}

	oldCfg = e.policy.Current()
	next, err := policy.New(oldCfg)
	if err != nil {
		return oldCfg, newCfg, err
	}
	if err := change(next); err != nil {
		return oldCfg, newCfg, err
	}

	newCfg = next.Current()
	entry := journal.NewEntry(journal.KindConfig, caller)
	entry.Config = &newCfg
	if err := e.commit(ctx, entry); err != nil {
		return oldCfg, newCfg, err
	}
	return oldCfg, newCfg, nil
}

// ──────────────────────────────────────────────────
// Collector registry
// ──────────────────────────────────────────────────

// AddCollector registers a fee collector with a relative share.
func (e *Engine) AddCollector(ctx context.Context, address common.Address, share types.BPS) error {
	return e.updateCollectors(ctx, "addFeeCollector", plugin.CollectorAdded, address, func(r *collector.Registry) error {
		return r.Add(address, share)
	})
}

// RemoveCollector unregisters a fee collector.
func (e *Engine) RemoveCollector(ctx context.Context, address common.Address) error {
	return e.updateCollectors(ctx, "removeFeeCollector", plugin.CollectorRemoved, address, func(r *collector.Registry) error {
		return r.Remove(address)
	})
}

// UpdateCollectorShare changes a collector's share.
func (e *Engine) UpdateCollectorShare(ctx context.Context, address common.Address, share types.BPS) error {
	return e.updateCollectors(ctx, "updateFeeCollectorShare", plugin.CollectorShareUpdated, address, func(r *collector.Registry) error {
		return r.UpdateShare(address, share)
	})
}

func (e *Engine) updateCollectors(
	ctx context.Context,
	op, action string,
	address common.Address,
	change func(*collector.Registry) error,
) error {
	e.mu.Lock()
	evt, err := e.updateCollectorsLocked(ctx, action, address, change)
	e.mu.Unlock()

	if err != nil {
		e.notifyUnauthorized(ctx, op, err)
		return err
	}

	e.logger.Info("collector registry changed",
		"action", action,
		"collector", address.Hex(),
		"share", evt.Collector.Share,
		"total_shares", evt.Total,
	)
	e.plugins.EmitCollectorChanged(ctx, evt)
	return nil
}

func (e *Engine) updateCollectorsLocked(
	ctx context.Context,
	action string,
	address common.Address,
	change func(*collector.Registry) error,
) (plugin.CollectorChange, error) {
	caller, err := e.begin(ctx)
	if err != nil {
		return plugin.CollectorChange{}, err
	}

	evt := plugin.CollectorChange{Action: action, Collector: collector.Collector{Address: address}}
	for _, c := range e.collectors.List() {
		if c.Address == address {
			evt.Collector = c
		}
	}

	next, err := collector.NewRegistry(e.collectors.List()...)
	if err != nil {
		return evt, err
	}
	if err := change(next); err != nil {
		return evt, err
	}

	entry := journal.NewEntry(journal.KindCollectors, caller)
	entry.Collectors = next.List()
	if err := e.commit(ctx, entry); err != nil {
		return evt, err
	}

	for _, c := range e.collectors.List() {
		if c.Address == address {
			evt.Collector = c
		}
	}
	evt.Total = e.collectors.TotalShares()
	return evt, nil
}

// ──────────────────────────────────────────────────
// Fee exclusion
// ──────────────────────────────────────────────────

// SetExcludedFromFees sets whether transfers touching account bypass fees.
func (e *Engine) SetExcludedFromFees(ctx context.Context, account common.Address, excluded bool) error {
	e.mu.Lock()
	err := e.setExcludedLocked(ctx, account, excluded)
	e.mu.Unlock()

	if err != nil {
		e.notifyUnauthorized(ctx, "setIsExcludedFromFees", err)
		return err
	}

	e.logger.Info("fee exclusion changed", "account", account.Hex(), "excluded", excluded)
	e.plugins.EmitExclusionChanged(ctx, account, excluded)
	return nil
}

func (e *Engine) setExcludedLocked(ctx context.Context, account common.Address, excluded bool) error {
	caller, err := e.begin(ctx)
	if err != nil {
		return err
	}
	if types.IsZeroAddress(account) {
		return ErrZeroAddress
	}
	if account == e.feeHolding {
		return fmt.Errorf("%w: always excluded", ErrReservedAccount)
	}

	entry := journal.NewEntry(journal.KindExclusion, caller)
	entry.Exclusions = []journal.Exclusion{{Account: account, Excluded: excluded}}
	return e.commit(ctx, entry)
}

// ──────────────────────────────────────────────────
// Settings
// ──────────────────────────────────────────────────

// SetSwapRouter sets the address that receives tokens handed to the router.
func (e *Engine) SetSwapRouter(ctx context.Context, router common.Address) error {
	return e.updateSettings(ctx, "setSwapRouter", func(s *journal.Settings) error {
		if types.IsZeroAddress(router) {
			return fmt.Errorf("%w: swap router", ErrZeroAddress)
		}
		s.SwapRouter = router
		return nil
	})
}

// SetLiquidityOwner sets the account that owns liquidity added from fees.
func (e *Engine) SetLiquidityOwner(ctx context.Context, owner common.Address) error {
	return e.updateSettings(ctx, "setLiquidityOwner", func(s *journal.Settings) error {
		if types.IsZeroAddress(owner) {
			return fmt.Errorf("%w: liquidity owner", ErrZeroAddress)
		}
		s.LiquidityOwner = owner
		return nil
	})
}

// SetFeeReceiver sets the account that takes the collectors' share when no
// collector is registered.
func (e *Engine) SetFeeReceiver(ctx context.Context, receiver common.Address) error {
	return e.updateSettings(ctx, "setFeeReceiver", func(s *journal.Settings) error {
		if types.IsZeroAddress(receiver) {
			return fmt.Errorf("%w: fee receiver", ErrZeroAddress)
		}
		s.FeeReceiver = receiver
		return nil
	})
}

// SetAutoprocessFees toggles processing accrued fees on sell transfers.
func (e *Engine) SetAutoprocessFees(ctx context.Context, enabled bool) error {
	return e.updateSettings(ctx, "setAutoprocessFees", func(s *journal.Settings) error {
		s.AutoprocessFees = enabled
		return nil
	})
}

// SetAutoprocessThreshold sets the fee holding balance at which a sell
// triggers processing.
func (e *Engine) SetAutoprocessThreshold(ctx context.Context, threshold types.Amount) error {
	return e.updateSettings(ctx, "setAutoprocessThreshold", func(s *journal.Settings) error {
		s.AutoprocessThreshold = threshold
		return nil
	})
}

// TransferAdministration hands the administrator role to next.
func (e *Engine) TransferAdministration(ctx context.Context, next common.Address) error {
	return e.updateSettings(ctx, "transferAdministration", func(s *journal.Settings) error {
		if types.IsZeroAddress(next) {
			return fmt.Errorf("%w: administrator", ErrZeroAddress)
		}
		s.Administrator = next
		return nil
	})
}

func (e *Engine) updateSettings(ctx context.Context, op string, change func(*journal.Settings) error) error {
	e.mu.Lock()
	oldSettings, newSettings, err := e.updateSettingsLocked(ctx, change)
	e.mu.Unlock()

	if err != nil {
		e.notifyUnauthorized(ctx, op, err)
		return err
	}

	e.logger.Info("settings changed", "operation", op)
	e.plugins.EmitSettingsChanged(ctx, oldSettings, newSettings)
	return nil
}

func (e *Engine) updateSettingsLocked(ctx context.Context, change func(*journal.Settings) error) (oldSettings, newSettings journal.Settings, err error) {
	caller, err := e.begin(ctx)
	if err != nil {
		return oldSettings, newSettings, err
	}

	oldSettings = e.settings
	newSettings = e.settings
	if err := change(&newSettings); err != nil {
		return oldSettings, newSettings, err
	}

	entry := journal.NewEntry(journal.KindSettings, caller)
	entry.Settings = &newSettings
	if err := e.commit(ctx, entry); err != nil {
		return oldSettings, newSettings, err
	}
	return oldSettings, newSettings, nil
}
