// Package plugin provides the hook system of the fee engine. Plugins
// implement any subset of the hook interfaces below and are dispatched after
// the corresponding mutation has been committed.
package plugin

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/collector"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/policy"
	"github.com/xraph/feeledger/swap"
	"github.com/xraph/feeledger/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// TransferEvent describes a committed transfer.
type TransferEvent struct {
	Sequence uint64
	From     common.Address
	To       common.Address
	Amount   types.Amount
	Net      types.Amount
	Fee      types.Amount
	Class    swap.Class
	Excluded bool
}

// CollectorChange describes one change to the collector registry.
type CollectorChange struct {
	Action    string // "added", "removed" or "share_updated"
	Collector collector.Collector
	Total     uint64
}

const (
	CollectorAdded        = "added"
	CollectorRemoved      = "removed"
	CollectorShareUpdated = "share_updated"
)

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called once the engine has replayed its journal.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransfer is called after a transfer is committed.
type OnTransfer interface {
	Plugin
	OnTransfer(ctx context.Context, evt *TransferEvent) error
}

// ──────────────────────────────────────────────────
// Fee processing hooks
// ──────────────────────────────────────────────────

// OnFeesProcessed is called after processFees commits.
type OnFeesProcessed interface {
	Plugin
	OnFeesProcessed(ctx context.Context, l *lot.Lot) error
}

// OnFeesDistributed is called after distributeFees or a retry commits,
// including partial outcomes; inspect l.State.
type OnFeesDistributed interface {
	Plugin
	OnFeesDistributed(ctx context.Context, l *lot.Lot) error
}

// OnSwapFailed is called when the router fails or returns too little.
type OnSwapFailed interface {
	Plugin
	OnSwapFailed(ctx context.Context, l *lot.Lot, err error) error
}

// ──────────────────────────────────────────────────
// Administration hooks
// ──────────────────────────────────────────────────

// OnConfigChanged is called after the fee configuration changes.
type OnConfigChanged interface {
	Plugin
	OnConfigChanged(ctx context.Context, oldCfg, newCfg policy.Configuration) error
}

// OnCollectorChanged is called after the collector registry changes.
type OnCollectorChanged interface {
	Plugin
	OnCollectorChanged(ctx context.Context, change CollectorChange) error
}

// OnExclusionChanged is called after an account's fee exclusion flag changes.
type OnExclusionChanged interface {
	Plugin
	OnExclusionChanged(ctx context.Context, account common.Address, excluded bool) error
}

// OnSettingsChanged is called after administrative settings change.
type OnSettingsChanged interface {
	Plugin
	OnSettingsChanged(ctx context.Context, oldSettings, newSettings journal.Settings) error
}

// OnUnauthorized is called when a privileged operation is refused.
type OnUnauthorized interface {
	Plugin
	OnUnauthorized(ctx context.Context, caller common.Address, operation string) error
}
