package store

import (
	"context"

	"github.com/xraph/feeledger/id"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/lot"
)

// Store is the unified storage interface for feeledger records: the
// append-only journal the engine replays on start, and the lots created by
// fee processing and distribution.
type Store interface {
	// Journal methods
	AppendEntry(ctx context.Context, e *journal.Entry) error
	ListEntries(ctx context.Context, opts journal.ListOpts) ([]*journal.Entry, error)
	LastSequence(ctx context.Context) (uint64, error)

	// Lot methods
	SaveLot(ctx context.Context, l *lot.Lot) error
	GetLot(ctx context.Context, lotID id.LotID) (*lot.Lot, error)
	ListLots(ctx context.Context, opts lot.ListOpts) ([]*lot.Lot, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ journal.Store = (Store)(nil)
	_ lot.Store     = (Store)(nil)
)
