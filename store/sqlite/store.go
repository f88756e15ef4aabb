package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	ledger "github.com/xraph/creditledger"
	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/reservation"
	ledgerstore "github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
//
// SQLite serialises writers. A transaction that loses the race for the
// write lock fails with SQLITE_BUSY, which is reported as
// ledger.ErrStorageConflict; balance writes also carry a version predicate.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("%w: create executor: %v", ledger.ErrMigrationFailed, err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrMigrationFailed, err)
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

// ==================== Atomic Update ====================

// AtomicUpdate implements store.AtomicStore.
func (s *Store) AtomicUpdate(ctx context.Context, keys map[string]types.Key, fn ledgerstore.UpdateFunc) ([]ledgerstore.Record, error) {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	fetched := make(map[string]ledgerstore.Record, len(keys))
	for handle, k := range keys {
		r, err := fetch(ctx, tx, k)
		if err != nil {
			return nil, mapErr(err)
		}
		if r != nil {
			fetched[handle] = r
		}
	}

	writes, err := fn(fetched)
	if err != nil {
		return nil, err
	}

	seen := make(map[types.Key]struct{}, len(writes))
	for _, w := range writes {
		if err := ledgerstore.CheckWrite(w); err != nil {
			return nil, err
		}
		k := w.RecordKey()
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("%w: %s written twice", ledger.ErrStorageConflict, k)
		}
		seen[k] = struct{}{}

		if err := write(ctx, tx, w); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapErr(err)
	}

	out := make([]ledgerstore.Record, len(writes))
	for i, w := range writes {
		out[i] = ledgerstore.Clone(w)
	}
	return out, nil
}

func fetch(ctx context.Context, tx *sqlitedriver.SqliteTx, k types.Key) (ledgerstore.Record, error) {
	var err error
	switch k.Table {
	case types.TableBalances:
		m := new(balanceModel)
		err = tx.NewSelect(m).Where("workspace_id = ?", k.PrimaryKey).Scan(ctx)
		if err == nil {
			return fromBalanceModel(m), nil
		}
	case types.TableAudit:
		m := new(auditModel)
		err = tx.NewSelect(m).
			Where("workspace_id = ?", k.PrimaryKey).
			Where("sort_key = ?", k.SortKey).
			Scan(ctx)
		if err == nil {
			return fromAuditModel(m), nil
		}
	case types.TableReservations:
		m := new(reservationModel)
		err = tx.NewSelect(m).Where("id = ?", k.PrimaryKey).Scan(ctx)
		if err == nil {
			return fromReservationModel(m), nil
		}
	default:
		return nil, fmt.Errorf("store: unknown table %q", k.Table)
	}
	if isNoRows(err) {
		return nil, nil
	}
	return nil, err
}

func write(ctx context.Context, tx *sqlitedriver.SqliteTx, w ledgerstore.Record) error {
	switch v := w.(type) {
	case *balance.Balance:
		if v.Version == 1 {
			_, err := tx.NewInsert(toBalanceModel(v)).Exec(ctx)
			return mapErr(err)
		}
		res, err := tx.NewRaw(`UPDATE creditledger_balances
SET amount = ?, version = ?, updated_at = ?
WHERE workspace_id = ? AND version = ?`,
			v.Amount, v.Version, v.UpdatedAt, v.WorkspaceID, v.Version-1).Exec(ctx)
		if err != nil {
			return mapErr(err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: balance %s is not at version %d", ledger.ErrStorageConflict, v.WorkspaceID, v.Version-1)
		}
		return nil
	case *audit.Record:
		_, err := tx.NewInsert(toAuditModel(v)).Exec(ctx)
		return mapErr(err)
	case *reservation.Reservation:
		_, err := tx.NewInsert(toReservationModel(v)).Exec(ctx)
		return mapErr(err)
	}
	return fmt.Errorf("store: unsupported record %T", w)
}

// ==================== Balance Store ====================

func (s *Store) CreateBalance(ctx context.Context, b *balance.Balance) error {
	_, err := s.sdb.NewInsert(toBalanceModel(b)).Exec(ctx)
	if isConstraint(err) {
		return ledger.ErrWorkspaceExists
	}
	return err
}

func (s *Store) GetBalance(ctx context.Context, workspaceID string) (*balance.Balance, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("workspace_id = ?", workspaceID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrWorkspaceNotFound
		}
		return nil, err
	}
	return fromBalanceModel(m), nil
}

// ==================== Audit Store ====================

func (s *Store) ListAuditRecords(ctx context.Context, workspaceID string, opts audit.ListOpts) ([]*audit.Record, error) {
	var models []auditModel
	q := s.sdb.NewSelect(&models).Where("workspace_id = ?", workspaceID)

	if opts.After != "" {
		q = q.Where("sort_key > ?", opts.After)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	q = q.OrderExpr("sort_key ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*audit.Record, len(models))
	for i := range models {
		result[i] = fromAuditModel(&models[i])
	}
	return result, nil
}

// ==================== Reservation Store ====================

func (s *Store) GetReservation(ctx context.Context, rid reservation.ID) (*reservation.Reservation, error) {
	m := new(reservationModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", rid.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrReservationNotFound
		}
		return nil, err
	}
	return fromReservationModel(m), nil
}

// TakeReservation reads and deletes the row in one transaction. Only the
// caller whose DELETE removes the row gets the reservation.
func (s *Store) TakeReservation(ctx context.Context, rid reservation.ID) (*reservation.Reservation, error) {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	m := new(reservationModel)
	err = tx.NewSelect(m).Where("id = ?", rid.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrReservationNotFound
		}
		return nil, err
	}

	res, err := tx.NewDelete((*reservationModel)(nil)).
		Where("id = ?", rid.String()).
		Exec(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ledger.ErrReservationNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, mapErr(err)
	}
	return fromReservationModel(m), nil
}

func (s *Store) ListReservations(ctx context.Context, workspaceID string) ([]*reservation.Reservation, error) {
	var models []reservationModel
	err := s.sdb.NewSelect(&models).
		Where("workspace_id = ?", workspaceID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*reservation.Reservation, len(models))
	for i := range models {
		result[i] = fromReservationModel(&models[i])
	}
	return result, nil
}

// ==================== Helpers ====================

// mapErr turns lock contention and constraint violations into
// ledger.ErrStorageConflict.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if isBusy(err) || isConstraint(err) {
		return fmt.Errorf("%w: %v", ledger.ErrStorageConflict, err)
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
