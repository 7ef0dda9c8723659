package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/xraph/feeledger/audit_hook"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/plugin"
	"github.com/xraph/feeledger/swap"
	"github.com/xraph/feeledger/types"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (s *sink) recorder() audithook.RecorderFunc {
	return func(_ context.Context, evt *audithook.AuditEvent) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = append(s.events, evt)
		return nil
	}
}

func TestTransferAuditing(t *testing.T) {
	ctx := context.Background()
	s := &sink{}
	ext := audithook.New(s.recorder())

	taxed := &plugin.TransferEvent{Sequence: 7, Amount: types.NewAmount(100), Fee: types.NewAmount(5), Class: swap.Sell}
	plain := &plugin.TransferEvent{Sequence: 8, Amount: types.NewAmount(100)}
	excluded := &plugin.TransferEvent{Sequence: 9, Amount: types.NewAmount(100), Excluded: true}

	require.NoError(t, ext.OnTransfer(ctx, taxed))
	require.NoError(t, ext.OnTransfer(ctx, plain))
	require.NoError(t, ext.OnTransfer(ctx, excluded))

	require.Len(t, s.events, 2)
	assert.Equal(t, audithook.ActionTransferTaxed, s.events[0].Action)
	assert.Equal(t, "7", s.events[0].ResourceID)
	assert.Equal(t, "sell", s.events[0].Metadata["class"])
	assert.Equal(t, audithook.ActionTransferExcluded, s.events[1].Action)

	withPlain := audithook.New(s.recorder(), audithook.WithPlainTransfers())
	require.NoError(t, withPlain.OnTransfer(ctx, plain))
	assert.Len(t, s.events, 3)
}

func TestSwapFailureSeverity(t *testing.T) {
	ctx := context.Background()
	s := &sink{}
	ext := audithook.New(s.recorder())

	rolled := lot.New(lot.KindProcess, types.NewAmount(10))
	require.NoError(t, rolled.Transition(lot.StateProcessingRequested))
	require.NoError(t, rolled.Transition(lot.StateRolledBack))

	require.NoError(t, ext.OnSwapFailed(ctx, rolled, errors.New("router down")))
	require.Len(t, s.events, 1)
	assert.Equal(t, audithook.ActionFeesRolledBack, s.events[0].Action)
	assert.Equal(t, audithook.SeverityError, s.events[0].Severity)
	assert.Equal(t, audithook.OutcomeFailure, s.events[0].Outcome)
	assert.Equal(t, "router down", s.events[0].Reason)
	assert.Equal(t, rolled.ID.String(), s.events[0].ResourceID)
}

func TestAdministratorTransferIsCritical(t *testing.T) {
	s := &sink{}
	ext := audithook.New(s.recorder())

	oldS := journal.Settings{Administrator: common.Address{1}}
	newS := journal.Settings{Administrator: common.Address{2}}
	require.NoError(t, ext.OnSettingsChanged(context.Background(), oldS, newS))
	require.NoError(t, ext.OnSettingsChanged(context.Background(), newS, newS))

	require.Len(t, s.events, 2)
	assert.Equal(t, audithook.ActionAdminTransferred, s.events[0].Action)
	assert.Equal(t, audithook.SeverityCritical, s.events[0].Severity)
	assert.Equal(t, audithook.ActionSettingsChanged, s.events[1].Action)
}

func TestActionFiltering(t *testing.T) {
	ctx := context.Background()
	caller := common.Address{3}

	s := &sink{}
	ext := audithook.New(s.recorder(), audithook.WithDisabledActions(audithook.ActionUnauthorized))
	require.NoError(t, ext.OnUnauthorized(ctx, caller, "setTaxRates"))
	require.NoError(t, ext.OnExclusionChanged(ctx, caller, true))
	require.Len(t, s.events, 1)
	assert.Equal(t, audithook.ActionExclusionChanged, s.events[0].Action)

	only := &sink{}
	ext = audithook.New(only.recorder(), audithook.WithEnabledActions(audithook.ActionUnauthorized))
	require.NoError(t, ext.OnUnauthorized(ctx, caller, "setTaxRates"))
	require.NoError(t, ext.OnExclusionChanged(ctx, caller, true))
	require.Len(t, only.events, 1)
	assert.Equal(t, "setTaxRates", only.events[0].ResourceID)
	assert.Equal(t, caller.Hex(), only.events[0].Metadata["caller"])
}

func TestRecorderErrorsAreSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend unavailable")
	}))
	assert.NoError(t, ext.OnCollectorChanged(context.Background(), plugin.CollectorChange{Action: plugin.CollectorAdded}))
}
