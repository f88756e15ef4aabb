// Package store defines the persistence contract of the credit ledger.
//
// The centre of the contract is AtomicUpdate: fetch a set of records,
// hand them to a pure function, and write back everything that function
// returns as one unit, or nothing at all.
package store

import (
	"context"

	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/reservation"
	"github.com/xraph/creditledger/types"
)

// Record is anything the atomic primitive can read or write. The concrete
// types are *balance.Balance, *audit.Record and *reservation.Reservation.
type Record interface {
	RecordKey() types.Key
}

// UpdateFunc computes the records to write from the fetched ones. Handles
// whose record does not exist are absent from fetched. It may be called
// again with fresh state if the store retries, so it must not have side
// effects.
type UpdateFunc func(fetched map[string]Record) ([]Record, error)

// AtomicStore is the multi-record read-modify-write primitive.
//
// Balance writes are optimistic: the stored version must equal the written
// Version-1 (a Version of 1 creates the balance). Audit and reservation
// writes are inserts. Any violation aborts the whole write with
// ledger.ErrStorageConflict. An error returned by fn aborts the write and
// is returned unchanged.
type AtomicStore interface {
	AtomicUpdate(ctx context.Context, keys map[string]types.Key, fn UpdateFunc) ([]Record, error)
}

// Store is the unified storage interface for the credit ledger.
// Instead of embedding the sub-interfaces, all methods are declared
// explicitly.
type Store interface {
	AtomicUpdate(ctx context.Context, keys map[string]types.Key, fn UpdateFunc) ([]Record, error)

	// Balance methods
	CreateBalance(ctx context.Context, b *balance.Balance) error
	GetBalance(ctx context.Context, workspaceID string) (*balance.Balance, error)

	// Audit methods
	ListAuditRecords(ctx context.Context, workspaceID string, opts audit.ListOpts) ([]*audit.Record, error)

	// Reservation methods
	GetReservation(ctx context.Context, id reservation.ID) (*reservation.Reservation, error)
	TakeReservation(ctx context.Context, id reservation.ID) (*reservation.Reservation, error)
	ListReservations(ctx context.Context, workspaceID string) ([]*reservation.Reservation, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
