package observability_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/observability"
	"github.com/xraph/feeledger/plugin"
	"github.com/xraph/feeledger/swap"
	"github.com/xraph/feeledger/types"
)

type metric struct {
	mu       sync.Mutex
	total    float64
	observed []float64
}

func (m *metric) Inc() { m.Add(1) }

func (m *metric) Add(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total += v
}

func (m *metric) Observe(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed = append(m.observed, v)
}

type factory struct {
	metrics map[string]*metric
}

func newFactory() *factory { return &factory{metrics: map[string]*metric{}} }

func (f *factory) get(name string) *metric {
	if m, ok := f.metrics[name]; ok {
		return m
	}
	m := &metric{}
	f.metrics[name] = m
	return m
}

func (f *factory) Counter(name string) observability.Counter     { return f.get(name) }
func (f *factory) Histogram(name string) observability.Histogram { return f.get(name) }

func TestTransferMetrics(t *testing.T) {
	f := newFactory()
	m := observability.NewMetricsExtension(f)
	ctx := context.Background()

	require.NoError(t, m.OnTransfer(ctx, &plugin.TransferEvent{Amount: types.NewAmount(1000), Fee: types.NewAmount(50), Class: swap.Sell}))
	require.NoError(t, m.OnTransfer(ctx, &plugin.TransferEvent{Amount: types.NewAmount(400), Fee: types.NewAmount(20), Class: swap.Buy}))
	require.NoError(t, m.OnTransfer(ctx, &plugin.TransferEvent{Amount: types.NewAmount(10), Excluded: true}))

	assert.InDelta(t, 1, f.get("feeledger.transfer.sell").total, 0)
	assert.InDelta(t, 1, f.get("feeledger.transfer.buy").total, 0)
	assert.InDelta(t, 1, f.get("feeledger.transfer.plain").total, 0)
	assert.InDelta(t, 1, f.get("feeledger.transfer.excluded").total, 0)
	assert.InDelta(t, 70, f.get("feeledger.fees.withheld").total, 0)
	assert.Equal(t, []float64{1000, 400, 10}, f.get("feeledger.transfer.amount").observed)
}

func TestLotMetrics(t *testing.T) {
	f := newFactory()
	m := observability.NewMetricsExtension(f)
	ctx := context.Background()

	processed := lot.New(lot.KindProcess, types.NewAmount(100))
	processed.Burned = types.NewAmount(10)
	processed.Liquidity = types.NewAmount(45)
	processed.CollectorShare = types.NewAmount(45)
	require.NoError(t, m.OnFeesProcessed(ctx, processed))

	partial := lot.New(lot.KindDistribute, types.NewAmount(90))
	require.NoError(t, partial.Transition(lot.StateProcessingRequested))
	require.NoError(t, partial.Transition(lot.StatePartiallyDistributed))
	partial.FailedIndices = []int{0, 2}
	partial.Remaining = types.NewAmount(60)
	require.NoError(t, m.OnFeesDistributed(ctx, partial))
	require.NoError(t, m.OnSwapFailed(ctx, partial, errors.New("slippage")))

	assert.InDelta(t, 1, f.get("feeledger.lot.processed").total, 0)
	assert.InDelta(t, 10, f.get("feeledger.fees.burned").total, 0)
	assert.InDelta(t, 45, f.get("feeledger.fees.liquidity").total, 0)
	assert.InDelta(t, 1, f.get("feeledger.lot.partially_distributed").total, 0)
	assert.InDelta(t, 2, f.get("feeledger.allocation.failed").total, 0)
	assert.Equal(t, []float64{60}, f.get("feeledger.distribution.remaining").observed)
	assert.InDelta(t, 1, f.get("feeledger.swap.failures").total, 0)
	assert.InDelta(t, 0, f.get("feeledger.lot.rolled_back").total, 0)
}
