// Package audithook bridges fee engine events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/plugin"
	"github.com/xraph/feeledger/policy"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnTransfer         = (*Extension)(nil)
	_ plugin.OnFeesProcessed    = (*Extension)(nil)
	_ plugin.OnFeesDistributed  = (*Extension)(nil)
	_ plugin.OnSwapFailed       = (*Extension)(nil)
	_ plugin.OnConfigChanged    = (*Extension)(nil)
	_ plugin.OnCollectorChanged = (*Extension)(nil)
	_ plugin.OnExclusionChanged = (*Extension)(nil)
	_ plugin.OnSettingsChanged  = (*Extension)(nil)
	_ plugin.OnUnauthorized     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail record.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges fee engine events to an audit trail backend.
type Extension struct {
	recorder       Recorder
	enabled        map[string]bool // nil = all enabled
	plainTransfers bool
	logger         *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransfer implements plugin.OnTransfer. Untaxed transfers are skipped
// unless WithPlainTransfers is set.
func (e *Extension) OnTransfer(ctx context.Context, evt *plugin.TransferEvent) error {
	action := ActionTransferTaxed
	switch {
	case evt.Excluded:
		action = ActionTransferExcluded
	case evt.Fee.IsZero() && !e.plainTransfers:
		return nil
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceTransfer, fmt.Sprintf("%d", evt.Sequence), CategoryTransfer, nil,
		"from", evt.From.Hex(),
		"to", evt.To.Hex(),
		"amount", evt.Amount.String(),
		"fee", evt.Fee.String(),
		"class", evt.Class.String(),
	)
}

// ──────────────────────────────────────────────────
// Fee processing hooks
// ──────────────────────────────────────────────────

// OnFeesProcessed implements plugin.OnFeesProcessed.
func (e *Extension) OnFeesProcessed(ctx context.Context, l *lot.Lot) error {
	return e.record(ctx, ActionFeesProcessed, SeverityInfo, OutcomeSuccess,
		ResourceLot, l.ID.String(), CategoryFees, nil,
		"amount", l.Amount.String(),
		"burned", l.Burned.String(),
		"liquidity", l.Liquidity.String(),
		"liquidity_out", l.LiquidityOut.String(),
		"collectors", l.CollectorShare.String(),
	)
}

// OnFeesDistributed implements plugin.OnFeesDistributed.
func (e *Extension) OnFeesDistributed(ctx context.Context, l *lot.Lot) error {
	action, severity, outcome := ActionFeesDistributed, SeverityInfo, OutcomeSuccess
	if l.State == lot.StatePartiallyDistributed {
		action, severity, outcome = ActionFeesPartiallyPaid, SeverityWarning, OutcomePartial
	}
	return e.record(ctx, action, severity, outcome,
		ResourceLot, l.ID.String(), CategoryFees, nil,
		"amount", l.Amount.String(),
		"converted", l.ConvertToNative,
		"paid", l.Paid(),
		"failed", l.FailedIndices,
		"remaining", l.Remaining.String(),
	)
}

// OnSwapFailed implements plugin.OnSwapFailed. A rolled back processing lot
// is recorded as an error; a partial distribution as a warning.
func (e *Extension) OnSwapFailed(ctx context.Context, l *lot.Lot, swapErr error) error {
	action, severity := ActionSwapFailed, SeverityWarning
	if l.State == lot.StateRolledBack {
		action, severity = ActionFeesRolledBack, SeverityError
	}
	return e.record(ctx, action, severity, OutcomeFailure,
		ResourceLot, l.ID.String(), CategoryIntegration, swapErr,
		"kind", string(l.Kind),
		"amount", l.Amount.String(),
		"min_out", l.MinOut.String(),
	)
}

// ──────────────────────────────────────────────────
// Governance hooks
// ──────────────────────────────────────────────────

// OnConfigChanged implements plugin.OnConfigChanged.
func (e *Extension) OnConfigChanged(ctx context.Context, oldCfg, newCfg policy.Configuration) error {
	return e.record(ctx, ActionConfigChanged, SeverityInfo, OutcomeSuccess,
		ResourceConfig, "", CategoryGovernance, nil,
		"old", oldCfg,
		"new", newCfg,
	)
}

// OnCollectorChanged implements plugin.OnCollectorChanged.
func (e *Extension) OnCollectorChanged(ctx context.Context, change plugin.CollectorChange) error {
	action := ActionCollectorUpdated
	switch change.Action {
	case plugin.CollectorAdded:
		action = ActionCollectorAdded
	case plugin.CollectorRemoved:
		action = ActionCollectorRemoved
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceCollector, change.Collector.Address.Hex(), CategoryGovernance, nil,
		"share", uint32(change.Collector.Share),
		"total_shares", change.Total,
	)
}

// OnExclusionChanged implements plugin.OnExclusionChanged.
func (e *Extension) OnExclusionChanged(ctx context.Context, account common.Address, excluded bool) error {
	return e.record(ctx, ActionExclusionChanged, SeverityInfo, OutcomeSuccess,
		ResourceAccount, account.Hex(), CategoryGovernance, nil,
		"excluded", excluded,
	)
}

// OnSettingsChanged implements plugin.OnSettingsChanged. A change of
// administrator is recorded as its own critical action.
func (e *Extension) OnSettingsChanged(ctx context.Context, oldSettings, newSettings journal.Settings) error {
	if oldSettings.Administrator != newSettings.Administrator {
		return e.record(ctx, ActionAdminTransferred, SeverityCritical, OutcomeSuccess,
			ResourceSettings, newSettings.Administrator.Hex(), CategoryAccess, nil,
			"previous", oldSettings.Administrator.Hex(),
		)
	}
	return e.record(ctx, ActionSettingsChanged, SeverityInfo, OutcomeSuccess,
		ResourceSettings, "", CategoryGovernance, nil,
		"swap_router", newSettings.SwapRouter.Hex(),
		"liquidity_owner", newSettings.LiquidityOwner.Hex(),
		"fee_receiver", newSettings.FeeReceiver.Hex(),
		"autoprocess_fees", newSettings.AutoprocessFees,
		"autoprocess_threshold", newSettings.AutoprocessThreshold.String(),
	)
}

// OnUnauthorized implements plugin.OnUnauthorized.
func (e *Extension) OnUnauthorized(ctx context.Context, caller common.Address, operation string) error {
	return e.record(ctx, ActionUnauthorized, SeverityWarning, OutcomeFailure,
		ResourceOperation, operation, CategoryAccess, errUnauthorized,
		"caller", caller.Hex(),
	)
}

var errUnauthorized = errors.New("caller is not the administrator")

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
