package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the feeledger store (PostgreSQL).
var Migrations = migrate.NewGroup("feeledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_feeledger_journal",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS feeledger_journal (
    sequence   BIGINT PRIMARY KEY,
    id         TEXT NOT NULL,
    kind       TEXT NOT NULL,
    caller     TEXT NOT NULL DEFAULT '',
    lot_id     TEXT NOT NULL DEFAULT '',
    payload    JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_feeledger_journal_id ON feeledger_journal (id);
CREATE INDEX IF NOT EXISTS idx_feeledger_journal_kind ON feeledger_journal (kind, sequence);
CREATE INDEX IF NOT EXISTS idx_feeledger_journal_lot ON feeledger_journal (lot_id) WHERE lot_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS feeledger_journal`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_feeledger_lots",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS feeledger_lots (
    id         TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    state      TEXT NOT NULL,
    amount     NUMERIC(78, 0) NOT NULL DEFAULT 0,
    payload    JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_feeledger_lots_state ON feeledger_lots (state, created_at);
CREATE INDEX IF NOT EXISTS idx_feeledger_lots_kind ON feeledger_lots (kind, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS feeledger_lots`)
				return err
			},
		},
	)
}
