package feeledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/balance"
	"github.com/xraph/feeledger/collector"
	"github.com/xraph/feeledger/id"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/swap"
	"github.com/xraph/feeledger/types"
)

var errRouterNotConfigured = errors.New("swap router not configured")

// ──────────────────────────────────────────────────
// processFees: all or nothing
// ──────────────────────────────────────────────────

// ProcessFees takes amount out of the fee holding account and splits it by
// the configured ratios: the burn share is destroyed, the liquidity share is
// converted through the router and the collectors' share is apportioned
// among collectors (or sent to the fee receiver when there are none).
//
// If the router fails or returns less than minOut, nothing is applied: the
// whole amount stays in the fee holding account, the lot is rolled back and
// the returned error matches ErrSwapFailed.
func (e *Engine) ProcessFees(ctx context.Context, amount, minOut types.Amount) (*lot.Lot, error) {
	e.mu.Lock()
	caller, err := e.begin(ctx)
	var l *lot.Lot
	if err == nil {
		l, err = e.processFeesLocked(ctx, caller, amount, minOut)
	}
	e.mu.Unlock()

	if err != nil {
		e.notifyUnauthorized(ctx, "processFees", err)
	}
	e.afterProcess(ctx, l, err)
	return l, err
}

// autoprocess processes the whole fee holding balance after a sell. Its
// failure is logged and reported to plugins but never returned.
func (e *Engine) autoprocess(ctx context.Context, trigger common.Address) *lot.Lot {
	e.mu.Lock()
	var (
		l   *lot.Lot
		err error
	)
	if e.started && e.settings.AutoprocessFees {
		held := e.ledger.BalanceOf(e.feeHolding)
		if held.IsPositive() && !held.LessThan(e.settings.AutoprocessThreshold) {
			l, err = e.processFeesLocked(ctx, trigger, held, types.ZeroAmount())
		}
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("autoprocess fees failed", "trigger", trigger.Hex(), "error", err)
	}
	e.afterProcess(ctx, l, err)
	return l
}

func (e *Engine) afterProcess(ctx context.Context, l *lot.Lot, err error) {
	if l == nil {
		return
	}
	if err != nil {
		if errors.Is(err, ErrSwapFailed) {
			e.plugins.EmitSwapFailed(ctx, l, err)
		}
		return
	}
	e.logger.Info("fees processed",
		"lot", l.ID.String(),
		"amount", l.Amount.String(),
		"burned", l.Burned.String(),
		"liquidity", l.Liquidity.String(),
		"collectors", l.CollectorShare.String(),
	)
	e.plugins.EmitFeesProcessed(ctx, l)
}

func (e *Engine) processFeesLocked(ctx context.Context, caller common.Address, amount, minOut types.Amount) (*lot.Lot, error) {
	if err := e.checkFeeAmount(amount); err != nil {
		return nil, err
	}

	split, err := e.policy.SplitAmount(amount)
	if err != nil {
		return nil, err
	}

	l := lot.New(lot.KindProcess, amount)
	l.MinOut = minOut
	l.Burned = split.Burn
	l.Liquidity = split.Liquidity
	l.CollectorShare = split.Collectors
	if err := l.Transition(lot.StateProcessingRequested); err != nil {
		return nil, err
	}

	var postings []balance.Posting
	if split.Burn.IsPositive() {
		postings = append(postings, balance.Burn(e.feeHolding, split.Burn))
	}
	if split.Liquidity.IsPositive() {
		if types.IsZeroAddress(e.settings.SwapRouter) {
			return e.rollBack(ctx, l, &SwapError{Amount: split.Liquidity, MinOut: minOut, Err: errRouterNotConfigured})
		}
		postings = append(postings, balance.Move(e.feeHolding, e.settings.SwapRouter, split.Liquidity)...)
	}

	parts, unallocated, err := e.collectors.ProportionalSplit(split.Collectors)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		l.Allocations = append(l.Allocations, lot.Allocation{
			Index:     p.Index,
			Collector: p.Collector,
			Amount:    p.Amount,
			Status:    lot.AllocationPending,
		})
		if p.Amount.IsPositive() {
			postings = append(postings, balance.Move(e.feeHolding, p.Collector, p.Amount)...)
		}
	}
	if unallocated.IsPositive() {
		postings = append(postings, balance.Move(e.feeHolding, e.settings.FeeReceiver, unallocated)...)
		l.Reason = "no collectors registered: collector share sent to fee receiver"
	}

	// Validate the ledger side before touching the router.
	if _, err := e.ledger.Prepare(postings...); err != nil {
		return nil, err
	}

	if split.Liquidity.IsPositive() {
		l.LiquidityOwner = e.settings.LiquidityOwner
		out, err := e.convert(ctx, split.Liquidity, e.settings.LiquidityOwner)
		if err != nil {
			return e.rollBack(ctx, l, &SwapError{Amount: split.Liquidity, MinOut: minOut, Err: err})
		}
		if out.LessThan(minOut) {
			return e.rollBack(ctx, l, &SwapError{Amount: split.Liquidity, MinOut: minOut, Out: out})
		}
		l.LiquidityOut = out
	}

	entry := journal.NewEntry(journal.KindProcess, caller)
	entry.Postings = postings
	entry.LotID = l.ID
	if err := e.commit(ctx, entry); err != nil {
		return nil, err
	}

	for i := range l.Allocations {
		l.Allocations[i].Status = lot.AllocationPaid
		l.Allocations[i].Attempts = 1
	}
	if err := l.Transition(lot.StateDistributed); err != nil {
		return nil, err
	}
	e.saveLot(ctx, l)
	return l, nil
}

// rollBack records a processing lot that applied nothing.
func (e *Engine) rollBack(ctx context.Context, l *lot.Lot, swapErr *SwapError) (*lot.Lot, error) {
	l.Reason = swapErr.Error()
	l.Remaining = l.Amount
	if err := l.Transition(lot.StateRolledBack); err != nil {
		return nil, err
	}
	e.saveLot(ctx, l)
	return l, swapErr
}

// ──────────────────────────────────────────────────
// distributeFees: per-collector isolation
// ──────────────────────────────────────────────────

// DistributeFees apportions amount from the fee holding account among the
// collectors by share. Without conversion every collector is credited in
// tokens. With conversion each collector's part goes through the router on
// its own: parts that convert are paid and stay paid, parts that fail stay
// in the fee holding account, and the error is a *PartialDistributionError
// listing the failed collector indices. RetryDistribution re-attempts them.
func (e *Engine) DistributeFees(ctx context.Context, amount types.Amount, convertToNative bool) (*lot.Lot, error) {
	e.mu.Lock()
	caller, err := e.begin(ctx)
	var l *lot.Lot
	if err == nil {
		l, err = e.distributeFeesLocked(ctx, caller, amount, convertToNative)
	}
	e.mu.Unlock()

	if err != nil {
		e.notifyUnauthorized(ctx, "distributeFees", err)
	}
	e.afterDistribute(ctx, l, err)
	return l, err
}

func (e *Engine) distributeFeesLocked(ctx context.Context, caller common.Address, amount types.Amount, convertToNative bool) (*lot.Lot, error) {
	if e.collectors.Len() == 0 {
		return nil, ErrNoCollectors
	}
	if err := e.checkFeeAmount(amount); err != nil {
		return nil, err
	}

	parts, _, err := e.collectors.ProportionalSplit(amount)
	if err != nil {
		return nil, err
	}

	l := lot.New(lot.KindDistribute, amount)
	l.ConvertToNative = convertToNative
	l.CollectorShare = amount
	if err := l.Transition(lot.StateProcessingRequested); err != nil {
		return nil, err
	}
	l.Allocations = allocationsFor(parts)

	if !convertToNative {
		var postings []balance.Posting
		for i := range l.Allocations {
			a := &l.Allocations[i]
			if a.Amount.IsPositive() {
				postings = append(postings, balance.Move(e.feeHolding, a.Collector, a.Amount)...)
			}
			a.Status = lot.AllocationPaid
			a.Attempts = 1
		}
		entry := journal.NewEntry(journal.KindDistribute, caller)
		entry.Postings = postings
		entry.LotID = l.ID
		if err := e.commit(ctx, entry); err != nil {
			return nil, err
		}
		if err := l.Transition(lot.StateDistributed); err != nil {
			return nil, err
		}
		e.saveLot(ctx, l)
		return l, nil
	}

	return e.convertAllocations(ctx, caller, l, allIndices(l.Allocations))
}

// RetryDistribution re-attempts the failed allocations of a partially
// distributed lot. The lot becomes distributed once none remain failed.
func (e *Engine) RetryDistribution(ctx context.Context, lotID id.LotID) (*lot.Lot, error) {
	e.mu.Lock()
	caller, err := e.begin(ctx)
	var l *lot.Lot
	if err == nil {
		l, err = e.retryLocked(ctx, caller, lotID)
	}
	e.mu.Unlock()

	if err != nil {
		e.notifyUnauthorized(ctx, "retryDistribution", err)
	}
	e.afterDistribute(ctx, l, err)
	return l, err
}

func (e *Engine) retryLocked(ctx context.Context, caller common.Address, lotID id.LotID) (*lot.Lot, error) {
	l, err := e.store.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if l.Kind != lot.KindDistribute || l.State != lot.StatePartiallyDistributed {
		return nil, fmt.Errorf("%w: %s is %s", ErrLotNotRetryable, l.ID, l.State)
	}
	if l.Remaining.GreaterThan(e.ledger.BalanceOf(e.feeHolding)) {
		return nil, fmt.Errorf("%w: need %s", ErrInsufficientFeeBalance, l.Remaining)
	}
	return e.convertAllocations(ctx, caller, l, append([]int(nil), l.FailedIndices...))
}

// convertAllocations converts the listed allocations one by one, commits the
// ones that succeeded in a single journal entry and leaves the rest failed.
func (e *Engine) convertAllocations(ctx context.Context, caller common.Address, l *lot.Lot, indices []int) (*lot.Lot, error) {
	var (
		postings []balance.Posting
		swapErrs []error
	)
	for _, i := range indices {
		a := &l.Allocations[i]
		a.Attempts++
		if a.Amount.IsZero() {
			a.Status = lot.AllocationPaid
			a.Error = ""
			continue
		}

		var (
			out types.Amount
			err error
		)
		if types.IsZeroAddress(e.settings.SwapRouter) {
			err = errRouterNotConfigured
		} else {
			out, err = e.convert(ctx, a.Amount, a.Collector)
		}
		if err != nil {
			a.Status = lot.AllocationFailed
			a.Error = err.Error()
			swapErrs = append(swapErrs, &SwapError{Amount: a.Amount, Err: fmt.Errorf("collector %d: %w", a.Index, err)})
			continue
		}

		a.Status = lot.AllocationPaid
		a.AmountOut = out
		a.Error = ""
		postings = append(postings, balance.Move(e.feeHolding, e.settings.SwapRouter, a.Amount)...)
	}

	if len(postings) > 0 {
		entry := journal.NewEntry(journal.KindDistribute, caller)
		entry.Postings = postings
		entry.LotID = l.ID
		if err := e.commit(ctx, entry); err != nil {
			return nil, err
		}
	}

	if err := l.Refresh(); err != nil {
		return nil, err
	}
	if len(l.FailedIndices) == 0 {
		if err := l.Transition(lot.StateDistributed); err != nil {
			return nil, err
		}
		e.saveLot(ctx, l)
		return l, nil
	}

	if err := l.Transition(lot.StatePartiallyDistributed); err != nil {
		return nil, err
	}
	l.Reason = fmt.Sprintf("%d of %d collector conversions failed", len(l.FailedIndices), len(l.Allocations))
	e.saveLot(ctx, l)
	return l, &PartialDistributionError{
		LotID:     l.ID,
		Succeeded: l.Paid(),
		Failed:    append([]int(nil), l.FailedIndices...),
		Remaining: l.Remaining,
		Errs:      swapErrs,
	}
}

func (e *Engine) afterDistribute(ctx context.Context, l *lot.Lot, err error) {
	if l == nil {
		return
	}
	if err != nil && errors.Is(err, ErrPartialDistribution) {
		e.logger.Warn("fee distribution incomplete",
			"lot", l.ID.String(),
			"failed", l.FailedIndices,
			"remaining", l.Remaining.String(),
		)
		e.plugins.EmitSwapFailed(ctx, l, err)
	} else if err == nil {
		e.logger.Info("fees distributed",
			"lot", l.ID.String(),
			"amount", l.Amount.String(),
			"collectors", len(l.Allocations),
			"converted", l.ConvertToNative,
		)
	}
	e.plugins.EmitFeesDistributed(ctx, l)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// checkFeeAmount is called with e.mu held.
func (e *Engine) checkFeeAmount(amount types.Amount) error {
	if amount.IsZero() {
		return fmt.Errorf("%w: zero amount", ErrInvalidInput)
	}
	if held := e.ledger.BalanceOf(e.feeHolding); amount.GreaterThan(held) {
		return fmt.Errorf("%w: requested %s, held %s", ErrInsufficientFeeBalance, amount, held)
	}
	return nil
}

// convert hands amount to the router. Caller cancellation does not abort the
// call; the swap timeout bounds it instead.
func (e *Engine) convert(ctx context.Context, amount types.Amount, recipient common.Address) (types.Amount, error) {
	if e.router == nil {
		return types.ZeroAmount(), errRouterNotConfigured
	}
	swapCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.swapTimeout)
	defer cancel()
	return e.router.Convert(swapCtx, amount, swap.NativeToken, recipient)
}

// saveLot persists l. The journal is authoritative for balances, so a
// failure here is logged rather than undoing a committed mutation.
func (e *Engine) saveLot(ctx context.Context, l *lot.Lot) {
	if err := e.store.SaveLot(ctx, l); err != nil {
		e.logger.Error("save lot failed", "lot", l.ID.String(), "state", string(l.State), "error", err)
	}
}

func allocationsFor(parts []collector.Share) []lot.Allocation {
	out := make([]lot.Allocation, len(parts))
	for i, p := range parts {
		out[i] = lot.Allocation{
			Index:     p.Index,
			Collector: p.Collector,
			Amount:    p.Amount,
			Status:    lot.AllocationPending,
		}
	}
	return out
}

func allIndices(allocs []lot.Allocation) []int {
	out := make([]int, len(allocs))
	for i := range allocs {
		out[i] = i
	}
	return out
}
