package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// AtomicUpdate runs in a SERIALIZABLE transaction. Fetched balances and
// reservations are locked with SELECT ... FOR UPDATE in key order, and
// balance writes carry a version predicate, so a concurrent writer surfaces
// as ledger.ErrStorageConflict rather than a lost update.
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
	tx, err := s.pg.BeginTxQuery(ctx, &driver.TxOptions{IsolationLevel: driver.LevelSerializable})
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	fetched := make(map[string]ledgerstore.Record, len(keys))
	for _, handle := range lockOrder(keys) {
		r, err := fetch(ctx, tx, keys[handle])
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

// lockOrder sorts handles by key so concurrent transactions take row locks
// in the same order.
func lockOrder(keys map[string]types.Key) []string {
	handles := make([]string, 0, len(keys))
	for h := range keys {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		return keys[handles[i]].String() < keys[handles[j]].String()
	})
	return handles
}

func fetch(ctx context.Context, tx *pgdriver.PgTx, k types.Key) (ledgerstore.Record, error) {
	var err error
	switch k.Table {
	case types.TableBalances:
		m := new(balanceModel)
		err = tx.NewSelect(m).
			Where("workspace_id = $1", k.PrimaryKey).
			ForUpdate().
			Scan(ctx)
		if err == nil {
			return fromBalanceModel(m), nil
		}
	case types.TableAudit:
		m := new(auditModel)
		err = tx.NewSelect(m).
			Where("workspace_id = $1", k.PrimaryKey).
			Where("sort_key = $2", k.SortKey).
			Scan(ctx)
		if err == nil {
			return fromAuditModel(m), nil
		}
	case types.TableReservations:
		m := new(reservationModel)
		err = tx.NewSelect(m).
			Where("id = $1", k.PrimaryKey).
			ForUpdate().
			Scan(ctx)
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

func write(ctx context.Context, tx *pgdriver.PgTx, w ledgerstore.Record) error {
	switch v := w.(type) {
	case *balance.Balance:
		if v.Version == 1 {
			_, err := tx.NewInsert(toBalanceModel(v)).Exec(ctx)
			return mapErr(err)
		}
		res, err := tx.NewRaw(`UPDATE creditledger_balances
SET amount = $1, version = $2, updated_at = $3
WHERE workspace_id = $4 AND version = $5`,
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
	_, err := s.pg.NewInsert(toBalanceModel(b)).Exec(ctx)
	if isUniqueViolation(err) {
		return ledger.ErrWorkspaceExists
	}
	return err
}

func (s *Store) GetBalance(ctx context.Context, workspaceID string) (*balance.Balance, error) {
	m := new(balanceModel)
	err := s.pg.NewSelect(m).
		Where("workspace_id = $1", workspaceID).
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
	q := s.pg.NewSelect(&models).Where("workspace_id = $1", workspaceID)

	if opts.After != "" {
		q = q.Where("sort_key > $2", opts.After)
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
	err := s.pg.NewSelect(m).
		Where("id = $1", rid.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrReservationNotFound
		}
		return nil, err
	}
	return fromReservationModel(m), nil
}

// TakeReservation locks, reads and deletes the row in one transaction, so
// of two concurrent callers exactly one gets the reservation.
func (s *Store) TakeReservation(ctx context.Context, rid reservation.ID) (*reservation.Reservation, error) {
	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	m := new(reservationModel)
	err = tx.NewSelect(m).
		Where("id = $1", rid.String()).
		ForUpdate().
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrReservationNotFound
		}
		return nil, err
	}

	res, err := tx.NewDelete((*reservationModel)(nil)).
		Where("id = $1", rid.String()).
		Exec(ctx)
	if err != nil {
		return nil, err
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
	err := s.pg.NewSelect(&models).
		Where("workspace_id = $1", workspaceID).
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

// mapErr turns serialization failures, deadlocks and unique violations into
// ledger.ErrStorageConflict.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %s", ledger.ErrStorageConflict, pgErr.Message)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isNoRows checks for both the pgx and database/sql no-rows sentinels.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}
