package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/feeledger"
	"github.com/xraph/feeledger/id"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/store/memory"
	"github.com/xraph/feeledger/types"
)

func entry(seq uint64) *journal.Entry {
	e := journal.NewEntry(journal.KindTransfer, common.Address{1})
	e.Sequence = seq
	return e
}

func TestJournalAppendAndList(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	last, err := s.LastSequence(ctx)
	require.NoError(t, err)
	assert.Zero(t, last)

	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, s.AppendEntry(ctx, entry(seq)))
	}
	require.ErrorIs(t, s.AppendEntry(ctx, entry(5)), feeledger.ErrSequenceConflict)
	require.ErrorIs(t, s.AppendEntry(ctx, entry(3)), feeledger.ErrSequenceConflict)

	last, err = s.LastSequence(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, last)

	all, err := s.ListEntries(ctx, journal.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.EqualValues(t, 1, all[0].Sequence)

	page, err := s.ListEntries(ctx, journal.ListOpts{AfterSequence: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 3, page[0].Sequence)
	assert.EqualValues(t, 4, page[1].Sequence)

	none, err := s.ListEntries(ctx, journal.ListOpts{AfterSequence: 5})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLotSaveGetList(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	first := lot.New(lot.KindProcess, types.NewAmount(10))
	first.State = lot.StateDistributed
	second := lot.New(lot.KindDistribute, types.NewAmount(20))
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	second.State = lot.StatePartiallyDistributed
	second.Allocations = []lot.Allocation{{Index: 0, Status: lot.AllocationFailed}}

	require.NoError(t, s.SaveLot(ctx, first))
	require.NoError(t, s.SaveLot(ctx, second))

	got, err := s.GetLot(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, lot.StatePartiallyDistributed, got.State)

	// Returned lots are copies.
	got.Allocations[0].Status = lot.AllocationPaid
	again, _ := s.GetLot(ctx, second.ID)
	assert.Equal(t, lot.AllocationFailed, again.Allocations[0].Status)

	_, err = s.GetLot(ctx, id.NewLotID())
	require.ErrorIs(t, err, feeledger.ErrLotNotFound)

	all, err := s.ListLots(ctx, lot.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)

	partial, err := s.ListLots(ctx, lot.ListOpts{State: lot.StatePartiallyDistributed})
	require.NoError(t, err)
	require.Len(t, partial, 1)
	assert.Equal(t, second.ID, partial[0].ID)

	paged, err := s.ListLots(ctx, lot.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, second.ID, paged[0].ID)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Ping(ctx), feeledger.ErrStoreClosed)
	require.ErrorIs(t, s.AppendEntry(ctx, entry(1)), feeledger.ErrStoreClosed)
}
