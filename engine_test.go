package feeledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/xraph/feeledger"
	"github.com/xraph/feeledger/collector"
	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/plugin"
	"github.com/xraph/feeledger/policy"
	"github.com/xraph/feeledger/store/memory"
	"github.com/xraph/feeledger/swap"
	"github.com/xraph/feeledger/swap/swapmock"
	"github.com/xraph/feeledger/types"
)

var (
	admin = common.HexToAddress("0xA000000000000000000000000000000000000001")
	alice = common.HexToAddress("0x1000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	pool  = common.HexToAddress("0x9000000000000000000000000000000000000009")
	c1    = common.HexToAddress("0xC100000000000000000000000000000000000001")
	c2    = common.HexToAddress("0xC200000000000000000000000000000000000002")
	c3    = common.HexToAddress("0xC300000000000000000000000000000000000003")
)

func amt(n uint64) types.Amount { return types.NewAmount(n) }

func adminCtx() context.Context {
	return feeledger.WithCaller(context.Background(), admin)
}

type harness struct {
	engine *feeledger.Engine
	store  *memory.Store
	router *swapmock.MockRouter
	ctx    context.Context
}

// newHarness starts an engine on the default genesis with pool registered as
// a liquidity pair and alice funded with 10M base units.
func newHarness(t *testing.T, g feeledger.Genesis, opts ...feeledger.Option) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	router := swapmock.NewMockRouter(ctrl)
	s := memory.New()

	opts = append([]feeledger.Option{
		feeledger.WithGenesis(g),
		feeledger.WithRouter(router),
		feeledger.WithClassifier(swap.NewPairSet(pool)),
	}, opts...)
	e := feeledger.New(s, opts...)
	require.NoError(t, e.Start(context.Background()))

	h := &harness{engine: e, store: s, router: router, ctx: adminCtx()}
	if !e.BalanceOf(admin).IsZero() {
		_, err := e.Transfer(h.ctx, admin, alice, amt(10_000_000))
		require.NoError(t, err)
	}
	return h
}

// accrue sells from alice until the fee holding account holds at least fee.
func (h *harness) accrue(t *testing.T, sellAmount uint64) types.Amount {
	t.Helper()
	r, err := h.engine.Transfer(h.ctx, alice, pool, amt(sellAmount))
	require.NoError(t, err)
	require.Equal(t, swap.Sell, r.Class)
	return h.engine.FeeHoldingBalance()
}

func threeCollectors() feeledger.Genesis {
	g := feeledger.DefaultGenesis(admin)
	g.Collectors = []collector.Collector{
		{Address: c1, Share: 1},
		{Address: c2, Share: 1},
		{Address: c3, Share: 1},
	}
	return g
}

// ──────────────────────────────────────────────────
// Genesis and lifecycle
// ──────────────────────────────────────────────────

func TestGenesisDefaults(t *testing.T) {
	e := feeledger.New(memory.New(), feeledger.WithGenesis(feeledger.DefaultGenesis(admin)))
	require.NoError(t, e.Start(context.Background()))

	supply, err := types.Units(1_000_000, 9)
	require.NoError(t, err)
	assert.True(t, e.TotalSupply().Equal(supply))
	assert.True(t, e.BalanceOf(admin).Equal(supply))
	assert.Equal(t, policy.DefaultConfiguration(), e.FeeConfiguration())
	assert.Equal(t, []collector.Collector{{Address: admin, Share: 100}}, e.Collectors())
	assert.EqualValues(t, 100, e.TotalShares())
	assert.True(t, e.IsFeeCollector(admin))

	assert.False(t, e.IsExcludedFromFees(admin))
	assert.True(t, e.IsExcludedFromFees(e.FeeHoldingAccount()))

	assert.Equal(t, "BSTR", e.Token().Symbol)
	assert.EqualValues(t, 9, e.Token().Decimals)
	assert.Equal(t, admin, e.Administrator())
	assert.Equal(t, feeledger.DefaultSwapRouter, e.Settings().SwapRouter)
	assert.EqualValues(t, 1, e.Sequence())
}

func TestStartLifecycle(t *testing.T) {
	e := feeledger.New(memory.New(), feeledger.WithGenesis(feeledger.DefaultGenesis(admin)))

	_, err := e.Transfer(adminCtx(), admin, alice, amt(1))
	require.ErrorIs(t, err, feeledger.ErrNotStarted)

	require.NoError(t, e.Start(context.Background()))
	require.ErrorIs(t, e.Start(context.Background()), feeledger.ErrAlreadyStarted)
	require.NoError(t, e.Stop())
}

func TestStartAfterStopFails(t *testing.T) {
	e := feeledger.New(memory.New(), feeledger.WithGenesis(feeledger.DefaultGenesis(admin)))
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Stop())

	require.ErrorIs(t, e.Start(context.Background()), feeledger.ErrStopped)
	_, err := e.Transfer(adminCtx(), admin, alice, amt(1))
	assert.ErrorIs(t, err, feeledger.ErrNotStarted)
}

func TestInvalidGenesisRejected(t *testing.T) {
	g := feeledger.DefaultGenesis(admin)
	g.Config.BuyFeeBps = 10001
	g.Collectors = append(g.Collectors, collector.Collector{Address: admin, Share: 5})

	e := feeledger.New(memory.New(), feeledger.WithGenesis(g))
	err := e.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, feeledger.ErrRateTooHigh)
	assert.ErrorIs(t, err, feeledger.ErrDuplicateCollector)
}

// ──────────────────────────────────────────────────
// Authorization and fee configuration
// ──────────────────────────────────────────────────

func TestPrivilegedOperationsRequireAdministrator(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	stranger := feeledger.WithCaller(context.Background(), alice)
	anonymous := context.Background()

	for _, ctx := range []context.Context{stranger, anonymous} {
		assert.ErrorIs(t, h.engine.SetTaxRates(ctx, 100, 100), feeledger.ErrUnauthorized)
		assert.ErrorIs(t, h.engine.SetSplitRatios(ctx, 0, 0, 10000), feeledger.ErrUnauthorized)
		assert.ErrorIs(t, h.engine.SetAutoprocessFees(ctx, true), feeledger.ErrUnauthorized)
		assert.ErrorIs(t, h.engine.SetLiquidityOwner(ctx, alice), feeledger.ErrUnauthorized)
		assert.ErrorIs(t, h.engine.SetSwapRouter(ctx, alice), feeledger.ErrUnauthorized)
		assert.ErrorIs(t, h.engine.AddCollector(ctx, alice, 10), feeledger.ErrUnauthorized)
		assert.ErrorIs(t, h.engine.SetExcludedFromFees(ctx, alice, true), feeledger.ErrUnauthorized)

		_, err := h.engine.ProcessFees(ctx, amt(1), amt(0))
		assert.ErrorIs(t, err, feeledger.ErrUnauthorized)
		_, err = h.engine.DistributeFees(ctx, amt(1), false)
		assert.ErrorIs(t, err, feeledger.ErrUnauthorized)
	}

	assert.Equal(t, policy.DefaultConfiguration(), h.engine.FeeConfiguration())
}

func TestSetTaxRates(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	before := h.engine.Sequence()

	err := h.engine.SetTaxRates(h.ctx, 10001, 500)
	require.ErrorIs(t, err, feeledger.ErrRateTooHigh)
	assert.Equal(t, before, h.engine.Sequence())

	require.ErrorIs(t, h.engine.SetTaxRates(h.ctx, 500, policy.MaxFeeBps+1), feeledger.ErrRateTooHigh)
	require.NoError(t, h.engine.SetTaxRates(h.ctx, policy.MaxFeeBps, policy.MaxFeeBps))

	require.NoError(t, h.engine.SetTaxRates(h.ctx, 300, 400))
	cfg := h.engine.FeeConfiguration()
	assert.EqualValues(t, 300, cfg.BuyFeeBps)
	assert.EqualValues(t, 400, cfg.SellFeeBps)
}

func TestSetSplitRatios(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))

	require.ErrorIs(t, h.engine.SetSplitRatios(h.ctx, 1000, 4000, 4000), feeledger.ErrInvalidSplit)
	require.ErrorIs(t, h.engine.SetSplitRatios(h.ctx, 5000, 5000, 1), feeledger.ErrInvalidSplit)

	require.NoError(t, h.engine.SetSplitRatios(h.ctx, 2000, 3000, 5000))
	cfg := h.engine.FeeConfiguration()
	assert.EqualValues(t, 2000, cfg.BurnRatioBps)
	assert.EqualValues(t, 3000, cfg.LiquidityRatioBps)
	assert.EqualValues(t, 5000, cfg.CollectorsRatioBps)
}

func TestTransferAdministration(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))

	require.ErrorIs(t, h.engine.TransferAdministration(h.ctx, common.Address{}), feeledger.ErrZeroAddress)
	require.NoError(t, h.engine.TransferAdministration(h.ctx, bob))

	assert.ErrorIs(t, h.engine.SetTaxRates(h.ctx, 100, 100), feeledger.ErrUnauthorized)
	assert.NoError(t, h.engine.SetTaxRates(feeledger.WithCaller(context.Background(), bob), 100, 100))
}

// ──────────────────────────────────────────────────
// Transfers
// ──────────────────────────────────────────────────

func TestTransferFees(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	e := h.engine
	supply := e.TotalSupply()

	// Sell: 5% withheld.
	r, err := e.Transfer(h.ctx, alice, pool, amt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, swap.Sell, r.Class)
	assert.True(t, r.Fee.Equal(amt(50_000)))
	assert.True(t, r.Net.Equal(amt(950_000)))
	assert.True(t, e.BalanceOf(alice).Equal(amt(9_000_000)))
	assert.True(t, e.BalanceOf(pool).Equal(amt(950_000)))
	assert.True(t, e.FeeHoldingBalance().Equal(amt(50_000)))

	// Buy: 5% withheld.
	r, err = e.Transfer(h.ctx, pool, bob, amt(500_000))
	require.NoError(t, err)
	assert.Equal(t, swap.Buy, r.Class)
	assert.True(t, r.Fee.Equal(amt(25_000)))
	assert.True(t, e.BalanceOf(bob).Equal(amt(475_000)))

	// Plain transfer fee defaults to zero.
	r, err = e.Transfer(h.ctx, bob, alice, amt(1_000))
	require.NoError(t, err)
	assert.Equal(t, swap.Plain, r.Class)
	assert.True(t, r.Fee.IsZero())

	// Rounding favors the recipient.
	r, err = e.Transfer(h.ctx, alice, pool, amt(19))
	require.NoError(t, err)
	assert.True(t, r.Fee.IsZero())
	assert.True(t, r.Net.Equal(amt(19)))

	assert.True(t, e.TotalSupply().Equal(supply))
	require.NoError(t, e.CheckConservation())
}

func TestTransferFeeAppliesToPlainTransfers(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	require.NoError(t, h.engine.SetTransferFee(h.ctx, 100))

	r, err := h.engine.Transfer(h.ctx, alice, bob, amt(10_000))
	require.NoError(t, err)
	assert.True(t, r.Fee.Equal(amt(100)))
	assert.True(t, h.engine.BalanceOf(bob).Equal(amt(9_900)))
}

func TestTransferValidation(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	e := h.engine
	before := e.Sequence()

	_, err := e.Transfer(h.ctx, alice, common.Address{}, amt(1))
	assert.ErrorIs(t, err, feeledger.ErrZeroAddress)

	_, err = e.Transfer(h.ctx, alice, bob, amt(0))
	assert.ErrorIs(t, err, feeledger.ErrInvalidInput)

	_, err = e.Transfer(h.ctx, bob, alice, amt(1))
	assert.ErrorIs(t, err, feeledger.ErrInsufficientBalance)

	_, err = e.Transfer(h.ctx, alice, e.FeeHoldingAccount(), amt(1))
	assert.ErrorIs(t, err, feeledger.ErrReservedAccount)

	assert.Equal(t, before, e.Sequence())
}

func TestExcludedAccountsBypassFees(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	e := h.engine

	require.NoError(t, e.SetExcludedFromFees(h.ctx, alice, true))
	assert.True(t, e.IsExcludedFromFees(alice))

	r, err := e.Transfer(h.ctx, alice, pool, amt(1_000_000))
	require.NoError(t, err)
	assert.True(t, r.Excluded)
	assert.True(t, r.Fee.IsZero())
	assert.True(t, e.BalanceOf(pool).Equal(amt(1_000_000)))

	// An excluded recipient also receives the full amount.
	r, err = e.Transfer(h.ctx, pool, alice, amt(1_000))
	require.NoError(t, err)
	assert.True(t, r.Fee.IsZero())

	require.NoError(t, e.SetExcludedFromFees(h.ctx, alice, false))
	r, err = e.Transfer(h.ctx, alice, pool, amt(1_000))
	require.NoError(t, err)
	assert.True(t, r.Fee.Equal(amt(50)))

	require.ErrorIs(t, e.SetExcludedFromFees(h.ctx, e.FeeHoldingAccount(), false), feeledger.ErrReservedAccount)
	require.ErrorIs(t, e.SetExcludedFromFees(h.ctx, common.Address{}, true), feeledger.ErrZeroAddress)
}

// ──────────────────────────────────────────────────
// Collector registry
// ──────────────────────────────────────────────────

func TestCollectorRegistry(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	e := h.engine

	require.ErrorIs(t, e.AddCollector(h.ctx, admin, 5), feeledger.ErrDuplicateCollector)
	require.ErrorIs(t, e.AddCollector(h.ctx, c1, 0), feeledger.ErrInvalidCollector)
	require.ErrorIs(t, e.RemoveCollector(h.ctx, c1), feeledger.ErrUnknownCollector)
	require.ErrorIs(t, e.UpdateCollectorShare(h.ctx, c1, 5), feeledger.ErrUnknownCollector)

	require.NoError(t, e.AddCollector(h.ctx, c1, 50))
	require.NoError(t, e.AddCollector(h.ctx, c2, 25))
	assert.EqualValues(t, 175, e.TotalShares())

	require.NoError(t, e.RemoveCollector(h.ctx, admin))
	assert.False(t, e.IsFeeCollector(admin))
	assert.Equal(t, []collector.Collector{{Address: c1, Share: 50}, {Address: c2, Share: 25}}, e.Collectors())

	require.NoError(t, e.AddCollector(h.ctx, admin, 10))
	require.NoError(t, e.UpdateCollectorShare(h.ctx, c2, 40))
	assert.EqualValues(t, 100, e.TotalShares())
	assert.Equal(t, admin, e.Collectors()[2].Address)

	shares, dust, err := e.PreviewSplit(amt(1_000))
	require.NoError(t, err)
	require.Len(t, shares, 3)
	assert.True(t, shares[0].Amount.Equal(amt(500)))
	assert.True(t, shares[1].Amount.Equal(amt(400)))
	assert.True(t, shares[2].Amount.Equal(amt(100)))
	assert.True(t, dust.IsZero())
}

// ──────────────────────────────────────────────────
// processFees
// ──────────────────────────────────────────────────

func TestProcessFees(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	e := h.engine
	require.NoError(t, e.AddCollector(h.ctx, c1, 100))
	require.NoError(t, e.SetSplitRatios(h.ctx, 1000, 4500, 4500))

	held := h.accrue(t, 1_000_000)
	require.True(t, held.Equal(amt(50_000)))
	supply := e.TotalSupply()
	adminBefore := e.BalanceOf(admin)

	h.router.EXPECT().
		Convert(gomock.Any(), amt(22_500), swap.NativeToken, admin).
		Return(amt(900), nil)

	l, err := e.ProcessFees(h.ctx, amt(50_000), amt(900))
	require.NoError(t, err)
	assert.Equal(t, lot.StateDistributed, l.State)
	assert.True(t, l.Burned.Equal(amt(5_000)))
	assert.True(t, l.Liquidity.Equal(amt(22_500)))
	assert.True(t, l.LiquidityOut.Equal(amt(900)))
	assert.Equal(t, admin, l.LiquidityOwner)
	assert.True(t, l.CollectorShare.Equal(amt(22_500)))

	assert.True(t, e.FeeHoldingBalance().IsZero())
	assert.True(t, e.BalanceOf(feeledger.DefaultSwapRouter).Equal(amt(22_500)))
	assert.True(t, e.BalanceOf(c1).Equal(amt(11_250)))
	gained, err := e.BalanceOf(admin).Sub(adminBefore)
	require.NoError(t, err)
	assert.True(t, gained.Equal(amt(11_250)))

	burned, err := supply.Sub(e.TotalSupply())
	require.NoError(t, err)
	assert.True(t, burned.Equal(amt(5_000)))
	require.NoError(t, e.CheckConservation())

	stored, err := e.Lot(h.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, lot.StateDistributed, stored.State)
}

func TestProcessFeesRouterFailureRollsBack(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	e := h.engine
	h.accrue(t, 1_000_000)
	seq := e.Sequence()
	adminBefore := e.BalanceOf(admin)

	h.router.EXPECT().
		Convert(gomock.Any(), amt(25_000), swap.NativeToken, admin).
		Return(types.Amount{}, errors.New("pool paused"))

	l, err := e.ProcessFees(h.ctx, amt(50_000), amt(0))
	require.ErrorIs(t, err, feeledger.ErrSwapFailed)
	require.NotNil(t, l)
	assert.Equal(t, lot.StateRolledBack, l.State)

	assert.Equal(t, seq, e.Sequence())
	assert.True(t, e.FeeHoldingBalance().Equal(amt(50_000)))
	assert.True(t, e.BalanceOf(admin).Equal(adminBefore))
	assert.True(t, e.BalanceOf(feeledger.DefaultSwapRouter).IsZero())

	rolled, err := e.Lots(h.ctx, lot.ListOpts{State: lot.StateRolledBack})
	require.NoError(t, err)
	assert.Len(t, rolled, 1)
}

func TestProcessFeesMinOut(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	e := h.engine
	h.accrue(t, 1_000_000)

	h.router.EXPECT().Convert(gomock.Any(), gomock.Any(), swap.NativeToken, admin).Return(amt(10), nil)

	_, err := e.ProcessFees(h.ctx, amt(50_000), amt(100))
	require.ErrorIs(t, err, feeledger.ErrSwapFailed)
	var swapErr *feeledger.SwapError
	require.ErrorAs(t, err, &swapErr)
	assert.True(t, swapErr.Out.Equal(amt(10)))
	assert.True(t, swapErr.MinOut.Equal(amt(100)))
	assert.True(t, e.FeeHoldingBalance().Equal(amt(50_000)))
}

func TestProcessFeesValidation(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	e := h.engine
	h.accrue(t, 1_000_000)

	_, err := e.ProcessFees(h.ctx, amt(0), amt(0))
	assert.ErrorIs(t, err, feeledger.ErrInvalidInput)

	_, err = e.ProcessFees(h.ctx, amt(50_001), amt(0))
	assert.ErrorIs(t, err, feeledger.ErrInsufficientFeeBalance)
}

func TestProcessFeesWithoutCollectorsPaysFeeReceiver(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	e := h.engine
	require.NoError(t, e.SetSplitRatios(h.ctx, 0, 0, 10000))
	require.NoError(t, e.RemoveCollector(h.ctx, admin))
	require.NoError(t, e.SetFeeReceiver(h.ctx, bob))
	h.accrue(t, 1_000_000)

	l, err := e.ProcessFees(h.ctx, amt(50_000), amt(0))
	require.NoError(t, err)
	assert.NotEmpty(t, l.Reason)
	assert.True(t, e.BalanceOf(bob).Equal(amt(50_000)))

	_, err = e.DistributeFees(h.ctx, amt(1), false)
	assert.ErrorIs(t, err, feeledger.ErrNoCollectors)
}

// ──────────────────────────────────────────────────
// distributeFees
// ──────────────────────────────────────────────────

func TestDistributeFeesLastCollectorTakesRemainder(t *testing.T) {
	h := newHarness(t, threeCollectors())
	e := h.engine
	h.accrue(t, 2_000)

	l, err := e.DistributeFees(h.ctx, amt(100), false)
	require.NoError(t, err)
	assert.Equal(t, lot.StateDistributed, l.State)
	assert.True(t, e.BalanceOf(c1).Equal(amt(33)))
	assert.True(t, e.BalanceOf(c2).Equal(amt(33)))
	assert.True(t, e.BalanceOf(c3).Equal(amt(34)))
	assert.True(t, e.FeeHoldingBalance().IsZero())
}

func TestDistributeFeesPartialFailureAndRetry(t *testing.T) {
	h := newHarness(t, threeCollectors())
	e := h.engine
	h.accrue(t, 2_000)

	gomock.InOrder(
		h.router.EXPECT().Convert(gomock.Any(), amt(33), swap.NativeToken, c1).Return(amt(3), nil),
		h.router.EXPECT().Convert(gomock.Any(), amt(33), swap.NativeToken, c2).Return(types.Amount{}, errors.New("slippage")),
		h.router.EXPECT().Convert(gomock.Any(), amt(34), swap.NativeToken, c3).Return(amt(4), nil),
	)

	l, err := e.DistributeFees(h.ctx, amt(100), true)
	require.ErrorIs(t, err, feeledger.ErrPartialDistribution)
	var partial *feeledger.PartialDistributionError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []int{1}, partial.Failed)
	assert.Equal(t, []int{0, 2}, partial.Succeeded)
	assert.True(t, partial.Remaining.Equal(amt(33)))

	assert.Equal(t, lot.StatePartiallyDistributed, l.State)
	assert.True(t, e.FeeHoldingBalance().Equal(amt(33)))
	assert.True(t, e.BalanceOf(feeledger.DefaultSwapRouter).Equal(amt(67)))
	assert.Equal(t, lot.AllocationFailed, l.Allocations[1].Status)
	assert.True(t, l.Allocations[2].AmountOut.Equal(amt(4)))

	h.router.EXPECT().Convert(gomock.Any(), amt(33), swap.NativeToken, c2).Return(amt(3), nil)
	retried, err := e.RetryDistribution(h.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, lot.StateDistributed, retried.State)
	assert.Equal(t, 2, retried.Allocations[1].Attempts)
	assert.Equal(t, 1, retried.Allocations[0].Attempts)
	assert.True(t, e.FeeHoldingBalance().IsZero())

	_, err = e.RetryDistribution(h.ctx, l.ID)
	assert.ErrorIs(t, err, feeledger.ErrLotNotRetryable)
}

func TestConservationAcrossMixedOperations(t *testing.T) {
	h := newHarness(t, threeCollectors())
	e := h.engine
	require.NoError(t, e.SetTransferFee(h.ctx, 100))

	h.router.EXPECT().Convert(gomock.Any(), gomock.Any(), swap.NativeToken, admin).Return(amt(1), nil).AnyTimes()
	gomock.InOrder(
		h.router.EXPECT().Convert(gomock.Any(), gomock.Any(), swap.NativeToken, c1).Return(amt(1), nil),
		h.router.EXPECT().Convert(gomock.Any(), gomock.Any(), swap.NativeToken, c2).Return(types.Amount{}, errors.New("slippage")),
		h.router.EXPECT().Convert(gomock.Any(), gomock.Any(), swap.NativeToken, c3).Return(amt(1), nil),
		h.router.EXPECT().Convert(gomock.Any(), gomock.Any(), swap.NativeToken, c2).Return(amt(1), nil),
	)

	var partial *lot.Lot
	steps := []struct {
		name string
		run  func(t *testing.T)
	}{
		{"sell", func(t *testing.T) {
			_, err := e.Transfer(h.ctx, alice, pool, amt(1_000_000))
			require.NoError(t, err)
		}},
		{"buy", func(t *testing.T) {
			_, err := e.Transfer(h.ctx, pool, bob, amt(300_000))
			require.NoError(t, err)
		}},
		{"plain transfer", func(t *testing.T) {
			_, err := e.Transfer(h.ctx, bob, alice, amt(12_345))
			require.NoError(t, err)
		}},
		{"process with burn", func(t *testing.T) {
			require.NoError(t, e.SetSplitRatios(h.ctx, 2000, 3000, 5000))
			l, err := e.ProcessFees(h.ctx, amt(40_000), amt(0))
			require.NoError(t, err)
			assert.True(t, l.Burned.Equal(amt(8_000)))
		}},
		{"partial distribution", func(t *testing.T) {
			var err error
			partial, err = e.DistributeFees(h.ctx, amt(10_000), true)
			require.ErrorIs(t, err, feeledger.ErrPartialDistribution)
		}},
		{"retry", func(t *testing.T) {
			l, err := e.RetryDistribution(h.ctx, partial.ID)
			require.NoError(t, err)
			assert.Equal(t, lot.StateDistributed, l.State)
		}},
	}

	for _, step := range steps {
		step.run(t)
		require.NoError(t, e.CheckConservation(), "after %s", step.name)
	}
}

func TestRetryUnknownLot(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	l := lot.New(lot.KindDistribute, amt(1))

	_, err := h.engine.RetryDistribution(h.ctx, l.ID)
	assert.ErrorIs(t, err, feeledger.ErrLotNotFound)
}

// ──────────────────────────────────────────────────
// Autoprocess
// ──────────────────────────────────────────────────

func TestAutoprocessOnSell(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	e := h.engine
	require.NoError(t, e.SetAutoprocessFees(h.ctx, true))
	require.NoError(t, e.SetAutoprocessThreshold(h.ctx, amt(40_000)))

	// Below the threshold nothing is processed.
	r, err := e.Transfer(h.ctx, alice, pool, amt(100_000))
	require.NoError(t, err)
	assert.True(t, r.AutoprocessLot.IsNil())
	assert.True(t, e.FeeHoldingBalance().Equal(amt(5_000)))

	h.router.EXPECT().Convert(gomock.Any(), amt(27_500), swap.NativeToken, admin).Return(amt(1), nil)

	r, err = e.Transfer(h.ctx, alice, pool, amt(1_000_000))
	require.NoError(t, err)
	assert.False(t, r.AutoprocessLot.IsNil())
	assert.True(t, e.FeeHoldingBalance().IsZero())

	processed, err := e.Lot(h.ctx, r.AutoprocessLot)
	require.NoError(t, err)
	assert.True(t, processed.Amount.Equal(amt(55_000)))
}

func TestAutoprocessFailureDoesNotFailTransfer(t *testing.T) {
	h := newHarness(t, feeledger.DefaultGenesis(admin))
	e := h.engine
	require.NoError(t, e.SetAutoprocessFees(h.ctx, true))

	h.router.EXPECT().Convert(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(types.Amount{}, errors.New("down"))

	r, err := e.Transfer(h.ctx, alice, pool, amt(1_000_000))
	require.NoError(t, err)
	require.False(t, r.AutoprocessLot.IsNil())
	assert.True(t, e.FeeHoldingBalance().Equal(amt(50_000)))

	rolled, err := e.Lot(h.ctx, r.AutoprocessLot)
	require.NoError(t, err)
	assert.Equal(t, lot.StateRolledBack, rolled.State)
	require.NoError(t, e.CheckConservation())
}

// ──────────────────────────────────────────────────
// Journal replay
// ──────────────────────────────────────────────────

func TestReplayRebuildsState(t *testing.T) {
	h := newHarness(t, threeCollectors())
	e := h.engine

	require.NoError(t, e.SetTaxRates(h.ctx, 300, 400))
	require.NoError(t, e.SetSplitRatios(h.ctx, 1000, 0, 9000))
	require.NoError(t, e.SetExcludedFromFees(h.ctx, bob, true))
	require.NoError(t, e.UpdateCollectorShare(h.ctx, c2, 3))
	require.NoError(t, e.SetSwapRouter(h.ctx, common.HexToAddress("0x5000000000000000000000000000000000000005")))
	h.accrue(t, 1_000_000)
	_, err := e.ProcessFees(h.ctx, amt(40_000), amt(0))
	require.NoError(t, err)

	// A second engine on the same store ignores its own genesis.
	replayed := feeledger.New(h.store, feeledger.WithGenesis(feeledger.DefaultGenesis(bob)))
	require.NoError(t, replayed.Start(context.Background()))

	assert.Equal(t, e.Sequence(), replayed.Sequence())
	assert.Equal(t, e.Accounts(), replayed.Accounts())
	assert.True(t, e.TotalSupply().Equal(replayed.TotalSupply()))
	assert.Equal(t, e.FeeConfiguration(), replayed.FeeConfiguration())
	assert.Equal(t, e.Collectors(), replayed.Collectors())
	assert.Equal(t, e.Settings(), replayed.Settings())
	assert.True(t, replayed.IsExcludedFromFees(bob))
	assert.Equal(t, admin, replayed.Administrator())
}

func TestEmptyJournalWithoutGenesis(t *testing.T) {
	e := feeledger.New(memory.New())
	require.NoError(t, e.Start(context.Background()))
	assert.Zero(t, e.Sequence())
	assert.True(t, e.TotalSupply().IsZero())
}

// ──────────────────────────────────────────────────
// Plugins
// ──────────────────────────────────────────────────

type recorder struct {
	mu           sync.Mutex
	transfers    int
	unauthorized []string
	configs      []policy.Configuration
	collectors   []plugin.CollectorChange
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnTransfer(_ context.Context, _ *plugin.TransferEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers++
	return nil
}

func (r *recorder) OnUnauthorized(_ context.Context, _ common.Address, op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unauthorized = append(r.unauthorized, op)
	return nil
}

func (r *recorder) OnConfigChanged(_ context.Context, _, newCfg policy.Configuration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, newCfg)
	return nil
}

func (r *recorder) OnCollectorChanged(_ context.Context, change plugin.CollectorChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors = append(r.collectors, change)
	return nil
}

func TestPluginsReceiveEvents(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, feeledger.DefaultGenesis(admin), feeledger.WithPlugin(rec))
	e := h.engine

	require.NoError(t, e.SetTaxRates(h.ctx, 200, 200))
	require.Error(t, e.SetTaxRates(feeledger.WithCaller(context.Background(), alice), 1, 1))
	require.NoError(t, e.AddCollector(h.ctx, c1, 7))
	_, err := e.Transfer(h.ctx, alice, bob, amt(1))
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 2, rec.transfers)
	assert.Equal(t, []string{"setTaxRates"}, rec.unauthorized)
	require.Len(t, rec.configs, 1)
	assert.EqualValues(t, 200, rec.configs[0].SellFeeBps)
	require.Len(t, rec.collectors, 1)
	assert.Equal(t, plugin.CollectorAdded, rec.collectors[0].Action)
	assert.EqualValues(t, 107, rec.collectors[0].Total)
}
