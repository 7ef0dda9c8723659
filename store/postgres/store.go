package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/feeledger"
	"github.com/xraph/feeledger/id"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/lot"
	feestore "github.com/xraph/feeledger/store"
)

// compile-time interface check
var _ feestore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("feeledger/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("feeledger/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Journal Store ====================

// AppendEntry inserts e. The sequence primary key rejects a second writer
// that raced for the same sequence.
func (s *Store) AppendEntry(ctx context.Context, e *journal.Entry) error {
	last, err := s.LastSequence(ctx)
	if err != nil {
		return err
	}
	if e.Sequence <= last {
		return fmt.Errorf("%w: %d (last %d)", feeledger.ErrSequenceConflict, e.Sequence, last)
	}

	m, err := toEntryModel(e)
	if err != nil {
		return fmt.Errorf("feeledger/postgres: %w", err)
	}
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %d", feeledger.ErrSequenceConflict, e.Sequence)
		}
		return fmt.Errorf("feeledger/postgres: append entry: %w", err)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, opts journal.ListOpts) ([]*journal.Entry, error) {
	var models []entryModel
	q := s.pg.NewSelect(&models).
		Where("sequence > $1", int64(opts.AfterSequence)). //nolint:gosec // sequences stay far below 2^63
		OrderExpr("sequence ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("feeledger/postgres: list entries: %w", err)
	}

	result := make([]*journal.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("feeledger/postgres: %w", err)
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) LastSequence(ctx context.Context) (uint64, error) {
	var last int64
	err := s.pg.NewRaw(`SELECT COALESCE(MAX(sequence), 0) FROM feeledger_journal`).Scan(ctx, &last)
	if err != nil {
		return 0, fmt.Errorf("feeledger/postgres: last sequence: %w", err)
	}
	return uint64(last), nil //nolint:gosec // column is never negative
}

// ==================== Lot Store ====================

func (s *Store) SaveLot(ctx context.Context, l *lot.Lot) error {
	m, err := toLotModel(l)
	if err != nil {
		return fmt.Errorf("feeledger/postgres: %w", err)
	}
	_, err = s.pg.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("state = EXCLUDED.state").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("feeledger/postgres: save lot: %w", err)
	}
	return nil
}

func (s *Store) GetLot(ctx context.Context, lotID id.LotID) (*lot.Lot, error) {
	m := new(lotModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", lotID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, feeledger.ErrLotNotFound
		}
		return nil, fmt.Errorf("feeledger/postgres: get lot: %w", err)
	}
	return fromLotModel(m)
}

func (s *Store) ListLots(ctx context.Context, opts lot.ListOpts) ([]*lot.Lot, error) {
	var models []lotModel
	q := s.pg.NewSelect(&models)
	n := 0
	if opts.Kind != "" {
		n++
		q = q.Where(fmt.Sprintf("kind = $%d", n), string(opts.Kind))
	}
	if opts.State != "" {
		n++
		q = q.Where(fmt.Sprintf("state = $%d", n), string(opts.State))
	}
	q = q.OrderExpr("created_at ASC, id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("feeledger/postgres: list lots: %w", err)
	}

	result := make([]*lot.Lot, len(models))
	for i := range models {
		l, err := fromLotModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation matches SQLSTATE 23505 as reported by the driver.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
