package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	ledger "github.com/xraph/creditledger"
	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/reservation"
	ledgerstore "github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// Collection name constants.
const (
	colBalances     = "creditledger_balances"
	colAudit        = "creditledger_audit"
	colReservations = "creditledger_reservations"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
//
// AtomicUpdate runs inside a multi-document transaction, so the server must
// be a replica set or a sharded cluster.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all credit ledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: %s indexes: %v", ledger.ErrMigrationFailed, col, err)
		}
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
	sess, err := s.mdb.Client().StartSession()
	if err != nil {
		return nil, fmt.Errorf("creditledger/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(tctx context.Context) (any, error) {
		fetched := make(map[string]ledgerstore.Record, len(keys))
		for handle, k := range keys {
			r, err := s.fetch(tctx, k)
			if err != nil {
				return nil, err
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

			if err := s.write(tctx, w); err != nil {
				return nil, err
			}
		}
		return writes, nil
	})
	if err != nil {
		return nil, mapErr(err)
	}

	writes, _ := res.([]ledgerstore.Record) //nolint:errcheck // set by the callback above
	out := make([]ledgerstore.Record, len(writes))
	for i, w := range writes {
		out[i] = ledgerstore.Clone(w)
	}
	return out, nil
}

func (s *Store) fetch(ctx context.Context, k types.Key) (ledgerstore.Record, error) {
	var err error
	switch k.Table {
	case types.TableBalances:
		var m balanceModel
		err = s.mdb.Collection(colBalances).FindOne(ctx, bson.M{"_id": k.PrimaryKey}).Decode(&m)
		if err == nil {
			return fromBalanceModel(&m), nil
		}
	case types.TableAudit:
		var m auditModel
		err = s.mdb.Collection(colAudit).FindOne(ctx, bson.M{"_id": k.String()}).Decode(&m)
		if err == nil {
			return fromAuditModel(&m), nil
		}
	case types.TableReservations:
		var m reservationModel
		err = s.mdb.Collection(colReservations).FindOne(ctx, bson.M{"_id": k.PrimaryKey}).Decode(&m)
		if err == nil {
			return fromReservationModel(&m), nil
		}
	default:
		return nil, fmt.Errorf("store: unknown table %q", k.Table)
	}
	if isNoDocuments(err) {
		return nil, nil
	}
	return nil, err
}

func (s *Store) write(ctx context.Context, w ledgerstore.Record) error {
	switch v := w.(type) {
	case *balance.Balance:
		if v.Version == 1 {
			_, err := s.mdb.Collection(colBalances).InsertOne(ctx, toBalanceModel(v))
			return err
		}
		res, err := s.mdb.Collection(colBalances).UpdateOne(ctx,
			bson.M{"_id": v.WorkspaceID, "version": v.Version - 1},
			bson.M{"$set": bson.M{
				"amount":     v.Amount,
				"version":    v.Version,
				"updated_at": v.UpdatedAt,
			}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%w: balance %s is not at version %d", ledger.ErrStorageConflict, v.WorkspaceID, v.Version-1)
		}
		return nil
	case *audit.Record:
		_, err := s.mdb.Collection(colAudit).InsertOne(ctx, toAuditModel(v))
		return err
	case *reservation.Reservation:
		_, err := s.mdb.Collection(colReservations).InsertOne(ctx, toReservationModel(v))
		return err
	}
	return fmt.Errorf("store: unsupported record %T", w)
}

// ==================== Balance Store ====================

func (s *Store) CreateBalance(ctx context.Context, b *balance.Balance) error {
	_, err := s.mdb.NewInsert(toBalanceModel(b)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrWorkspaceExists
		}
		return fmt.Errorf("creditledger/mongo: create balance: %w", err)
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, workspaceID string) (*balance.Balance, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": workspaceID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("creditledger/mongo: get balance: %w", err)
	}
	return fromBalanceModel(&m), nil
}

// ==================== Audit Store ====================

func (s *Store) ListAuditRecords(ctx context.Context, workspaceID string, opts audit.ListOpts) ([]*audit.Record, error) {
	var models []auditModel

	filter := bson.M{"workspace_id": workspaceID}
	if opts.After != "" {
		filter["sort_key"] = bson.M{"$gt": opts.After}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "sort_key", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("creditledger/mongo: list audit records: %w", err)
	}

	result := make([]*audit.Record, len(models))
	for i := range models {
		result[i] = fromAuditModel(&models[i])
	}
	return result, nil
}

// ==================== Reservation Store ====================

func (s *Store) GetReservation(ctx context.Context, rid reservation.ID) (*reservation.Reservation, error) {
	var m reservationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": rid.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrReservationNotFound
		}
		return nil, fmt.Errorf("creditledger/mongo: get reservation: %w", err)
	}
	return fromReservationModel(&m), nil
}

// TakeReservation uses findOneAndDelete, which is atomic on a single
// document.
func (s *Store) TakeReservation(ctx context.Context, rid reservation.ID) (*reservation.Reservation, error) {
	var m reservationModel
	err := s.mdb.Collection(colReservations).
		FindOneAndDelete(ctx, bson.M{"_id": rid.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrReservationNotFound
		}
		return nil, fmt.Errorf("creditledger/mongo: take reservation: %w", err)
	}
	return fromReservationModel(&m), nil
}

func (s *Store) ListReservations(ctx context.Context, workspaceID string) ([]*reservation.Reservation, error) {
	var models []reservationModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"workspace_id": workspaceID}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("creditledger/mongo: list reservations: %w", err)
	}

	result := make([]*reservation.Reservation, len(models))
	for i := range models {
		result[i] = fromReservationModel(&models[i])
	}
	return result, nil
}

// ==================== Helpers ====================

// mapErr turns duplicate keys and transient transaction failures into
// ledger.ErrStorageConflict.
func mapErr(err error) error {
	if err == nil || errors.Is(err, ledger.ErrStorageConflict) {
		return err
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ledger.ErrStorageConflict, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorLabel("TransientTransactionError") {
		return fmt.Errorf("%w: %v", ledger.ErrStorageConflict, err)
	}
	return err
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all credit ledger collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAudit: {
			{
				Keys:    bson.D{{Key: "workspace_id", Value: 1}, {Key: "sort_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "request_id", Value: 1}}},
		},
		colReservations: {
			{Keys: bson.D{{Key: "workspace_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}
