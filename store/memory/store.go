// Package memory provides an in-process store.Store, used by tests, the CLI
// simulator and single-process deployments that do not need durability.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/feeledger"
	"github.com/xraph/feeledger/id"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/store"
)

type Store struct {
	mu sync.RWMutex

	// Journal storage, in sequence order
	entries []*journal.Entry

	// Lot storage
	lots map[string]*lot.Lot

	closed bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		entries: make([]*journal.Entry, 0),
		lots:    make(map[string]*lot.Lot),
	}
}

// Journal Store implementation
func (s *Store) AppendEntry(_ context.Context, e *journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return feeledger.ErrStoreClosed
	}
	if n := len(s.entries); n > 0 && s.entries[n-1].Sequence >= e.Sequence {
		return fmt.Errorf("%w: %d", feeledger.ErrSequenceConflict, e.Sequence)
	}
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *Store) ListEntries(_ context.Context, opts journal.ListOpts) ([]*journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Sequence > opts.AfterSequence
	})
	end := len(s.entries)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	result := make([]*journal.Entry, 0, end-start)
	for _, e := range s.entries[start:end] {
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

func (s *Store) LastSequence(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return 0, nil
	}
	return s.entries[len(s.entries)-1].Sequence, nil
}

// Lot Store implementation
func (s *Store) SaveLot(_ context.Context, l *lot.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return feeledger.ErrStoreClosed
	}
	s.lots[l.ID.String()] = cloneLot(l)
	return nil
}

func (s *Store) GetLot(_ context.Context, lotID id.LotID) (*lot.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.lots[lotID.String()]; ok {
		return cloneLot(l), nil
	}
	return nil, feeledger.ErrLotNotFound
}

func (s *Store) ListLots(_ context.Context, opts lot.ListOpts) ([]*lot.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*lot.Lot, 0)
	for _, l := range s.lots {
		if opts.Kind != "" && l.Kind != opts.Kind {
			continue
		}
		if opts.State != "" && l.State != opts.State {
			continue
		}
		result = append(result, cloneLot(l))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return feeledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func cloneLot(l *lot.Lot) *lot.Lot {
	cp := *l
	cp.Allocations = append([]lot.Allocation(nil), l.Allocations...)
	cp.FailedIndices = append([]int(nil), l.FailedIndices...)
	return &cp
}
