package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the credit ledger store (SQLite).
var Migrations = migrate.NewGroup("creditledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_creditledger_balances",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS creditledger_balances (
    workspace_id TEXT PRIMARY KEY,
    amount       INTEGER NOT NULL DEFAULT 0,
    version      INTEGER NOT NULL DEFAULT 1,
    created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS creditledger_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_creditledger_audit",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS creditledger_audit (
    workspace_id    TEXT NOT NULL,
    sort_key        TEXT NOT NULL,
    request_id      TEXT NOT NULL DEFAULT '',
    agent_id        TEXT NOT NULL DEFAULT '',
    conversation_id TEXT NOT NULL DEFAULT '',
    source          TEXT NOT NULL,
    supplier        TEXT NOT NULL DEFAULT '',
    model           TEXT NOT NULL DEFAULT '',
    tool_call       TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    amount          INTEGER NOT NULL,
    balance_before  INTEGER NOT NULL,
    balance_after   INTEGER NOT NULL,
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (workspace_id, sort_key)
);

CREATE INDEX IF NOT EXISTS idx_creditledger_audit_request ON creditledger_audit (request_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS creditledger_audit`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_creditledger_reservations",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS creditledger_reservations (
    id              TEXT PRIMARY KEY,
    workspace_id    TEXT NOT NULL,
    agent_id        TEXT NOT NULL DEFAULT '',
    conversation_id TEXT NOT NULL DEFAULT '',
    source          TEXT NOT NULL DEFAULT '',
    supplier        TEXT NOT NULL DEFAULT '',
    model           TEXT NOT NULL DEFAULT '',
    amount          INTEGER NOT NULL,
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_creditledger_reservations_workspace ON creditledger_reservations (workspace_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS creditledger_reservations`)
				return err
			},
		},
	)
}
