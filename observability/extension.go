// Package observability provides a metrics extension for the fee engine that
// records event counts and fee volumes via a MetricFactory.
package observability

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/plugin"
	"github.com/xraph/feeledger/policy"
	"github.com/xraph/feeledger/swap"
	"github.com/xraph/feeledger/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnTransfer         = (*MetricsExtension)(nil)
	_ plugin.OnFeesProcessed    = (*MetricsExtension)(nil)
	_ plugin.OnFeesDistributed  = (*MetricsExtension)(nil)
	_ plugin.OnSwapFailed       = (*MetricsExtension)(nil)
	_ plugin.OnConfigChanged    = (*MetricsExtension)(nil)
	_ plugin.OnCollectorChanged = (*MetricsExtension)(nil)
	_ plugin.OnExclusionChanged = (*MetricsExtension)(nil)
	_ plugin.OnSettingsChanged  = (*MetricsExtension)(nil)
	_ plugin.OnUnauthorized     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records fee engine metrics.
// Register it as an engine plugin to track transfers and fee flows.
type MetricsExtension struct {
	factory MetricFactory

	// Transfer metrics
	TransfersPlain    Counter
	TransfersBuy      Counter
	TransfersSell     Counter
	TransfersExcluded Counter
	TransferAmount    Histogram
	FeesWithheld      Counter

	// Processing metrics
	LotsProcessed   Counter
	LotsRolledBack  Counter
	FeesBurned      Counter
	FeesToLiquidity Counter
	FeesToCollector Counter
	LotAmount       Histogram

	// Distribution metrics
	LotsDistributed       Counter
	LotsPartial           Counter
	AllocationsFailed     Counter
	DistributionRemaining Histogram
	SwapFailures          Counter

	// Governance metrics
	ConfigChanges    Counter
	CollectorChanges Counter
	ExclusionChanges Counter
	SettingsChanges  Counter
	Unauthorized     Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		TransfersPlain:    factory.Counter("feeledger.transfer.plain"),
		TransfersBuy:      factory.Counter("feeledger.transfer.buy"),
		TransfersSell:     factory.Counter("feeledger.transfer.sell"),
		TransfersExcluded: factory.Counter("feeledger.transfer.excluded"),
		TransferAmount:    factory.Histogram("feeledger.transfer.amount"),
		FeesWithheld:      factory.Counter("feeledger.fees.withheld"),

		LotsProcessed:   factory.Counter("feeledger.lot.processed"),
		LotsRolledBack:  factory.Counter("feeledger.lot.rolled_back"),
		FeesBurned:      factory.Counter("feeledger.fees.burned"),
		FeesToLiquidity: factory.Counter("feeledger.fees.liquidity"),
		FeesToCollector: factory.Counter("feeledger.fees.collectors"),
		LotAmount:       factory.Histogram("feeledger.lot.amount"),

		LotsDistributed:       factory.Counter("feeledger.lot.distributed"),
		LotsPartial:           factory.Counter("feeledger.lot.partially_distributed"),
		AllocationsFailed:     factory.Counter("feeledger.allocation.failed"),
		DistributionRemaining: factory.Histogram("feeledger.distribution.remaining"),
		SwapFailures:          factory.Counter("feeledger.swap.failures"),

		ConfigChanges:    factory.Counter("feeledger.config.changes"),
		CollectorChanges: factory.Counter("feeledger.collector.changes"),
		ExclusionChanges: factory.Counter("feeledger.exclusion.changes"),
		SettingsChanges:  factory.Counter("feeledger.settings.changes"),
		Unauthorized:     factory.Counter("feeledger.access.unauthorized"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransfer implements plugin.OnTransfer.
func (m *MetricsExtension) OnTransfer(_ context.Context, evt *plugin.TransferEvent) error {
	switch evt.Class {
	case swap.Buy:
		m.TransfersBuy.Inc()
	case swap.Sell:
		m.TransfersSell.Inc()
	default:
		m.TransfersPlain.Inc()
	}
	if evt.Excluded {
		m.TransfersExcluded.Inc()
	}
	m.TransferAmount.Observe(toFloat(evt.Amount))
	if evt.Fee.IsPositive() {
		m.FeesWithheld.Add(toFloat(evt.Fee))
	}
	return nil
}

// ──────────────────────────────────────────────────
// Fee processing hooks
// ──────────────────────────────────────────────────

// OnFeesProcessed implements plugin.OnFeesProcessed.
func (m *MetricsExtension) OnFeesProcessed(_ context.Context, l *lot.Lot) error {
	m.LotsProcessed.Inc()
	m.LotAmount.Observe(toFloat(l.Amount))
	m.FeesBurned.Add(toFloat(l.Burned))
	m.FeesToLiquidity.Add(toFloat(l.Liquidity))
	m.FeesToCollector.Add(toFloat(l.CollectorShare))
	return nil
}

// OnFeesDistributed implements plugin.OnFeesDistributed.
func (m *MetricsExtension) OnFeesDistributed(_ context.Context, l *lot.Lot) error {
	if l.State == lot.StatePartiallyDistributed {
		m.LotsPartial.Inc()
		m.AllocationsFailed.Add(float64(len(l.FailedIndices)))
		m.DistributionRemaining.Observe(toFloat(l.Remaining))
		return nil
	}
	m.LotsDistributed.Inc()
	m.LotAmount.Observe(toFloat(l.Amount))
	return nil
}

// OnSwapFailed implements plugin.OnSwapFailed.
func (m *MetricsExtension) OnSwapFailed(_ context.Context, l *lot.Lot, _ error) error {
	m.SwapFailures.Inc()
	if l.State == lot.StateRolledBack {
		m.LotsRolledBack.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Governance hooks
// ──────────────────────────────────────────────────

// OnConfigChanged implements plugin.OnConfigChanged.
func (m *MetricsExtension) OnConfigChanged(_ context.Context, _, _ policy.Configuration) error {
	m.ConfigChanges.Inc()
	return nil
}

// OnCollectorChanged implements plugin.OnCollectorChanged.
func (m *MetricsExtension) OnCollectorChanged(_ context.Context, _ plugin.CollectorChange) error {
	m.CollectorChanges.Inc()
	return nil
}

// OnExclusionChanged implements plugin.OnExclusionChanged.
func (m *MetricsExtension) OnExclusionChanged(_ context.Context, _ common.Address, _ bool) error {
	m.ExclusionChanges.Inc()
	return nil
}

// OnSettingsChanged implements plugin.OnSettingsChanged.
func (m *MetricsExtension) OnSettingsChanged(_ context.Context, _, _ journal.Settings) error {
	m.SettingsChanges.Inc()
	return nil
}

// OnUnauthorized implements plugin.OnUnauthorized.
func (m *MetricsExtension) OnUnauthorized(_ context.Context, _ common.Address, _ string) error {
	m.Unauthorized.Inc()
	return nil
}

// toFloat converts a base-unit amount for metrics. Precision loss above 2^53
// is acceptable here.
func toFloat(a types.Amount) float64 {
	if v, ok := a.Uint64(); ok {
		return float64(v)
	}
	f, _ := strconv.ParseFloat(a.String(), 64) //nolint:errcheck // decimal string always parses
	return f
}
