// Package plugin provides an extensible plugin system for the credit ledger.
// Plugins can hook into commit and reservation lifecycle events.
package plugin

import (
	"context"

	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/reservation"
	"github.com/xraph/creditledger/spendlimit"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Commit hooks
// ──────────────────────────────────────────────────

// OnCommitted is called after a buffer has been applied atomically.
type OnCommitted interface {
	Plugin
	OnCommitted(ctx context.Context, requestID string, balances []*balance.Balance, records []*audit.Record) error
}

// OnCommitFailed is called when a commit wrote nothing.
type OnCommitFailed interface {
	Plugin
	OnCommitFailed(ctx context.Context, requestID string, workspaceIDs []string, err error) error
}

// ──────────────────────────────────────────────────
// Reservation hooks
// ──────────────────────────────────────────────────

// OnReserved is called after a hold has been placed.
type OnReserved interface {
	Plugin
	OnReserved(ctx context.Context, r *reservation.Reservation) error
}

// OnSpendingLimitExceeded is called when the gate rejects a reservation.
type OnSpendingLimitExceeded interface {
	Plugin
	OnSpendingLimitExceeded(ctx context.Context, workspaceID, agentID string, estimated int64, failed []spendlimit.Limit) error
}

// OnReservationSettled is called after a settle has buffered its delta.
type OnReservationSettled interface {
	Plugin
	OnReservationSettled(ctx context.Context, r *reservation.Reservation, actual, delta int64) error
}

// OnReservationRefunded is called after a refund has buffered its credit.
type OnReservationRefunded interface {
	Plugin
	OnReservationRefunded(ctx context.Context, r *reservation.Reservation) error
}

// OnReservationMissing is called when settle or refund finds no
// reservation, usually because a retried invocation already finalized it.
type OnReservationMissing interface {
	Plugin
	OnReservationMissing(ctx context.Context, id reservation.ID, op string) error
}
