// Package redis provides a Redis-backed store.Store.
//
// Balances and reservations are JSON strings. A workspace's audit trail is
// a hash of JSON records keyed by sort key plus a sorted set of the sort
// keys, all scored zero so that they page in lexicographic order.
// AtomicUpdate uses WATCH/MULTI/EXEC: a concurrent change to any watched
// key aborts EXEC and is reported as ledger.ErrStorageConflict.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	ledger "github.com/xraph/creditledger"
	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/reservation"
	ledgerstore "github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store is a Redis-backed store.Store.
type Store struct {
	client    goredis.UniversalClient
	keyPrefix string
	logger    *slog.Logger
}

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "{creditledger}:"). On
// Redis Cluster the prefix must carry a hash tag so that every key lands in
// one slot.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a new Redis-backed store. The client must be a connected
// *goredis.Client or *goredis.ClusterClient.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "{creditledger}:",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) balanceKey(workspaceID string) string {
	return s.keyPrefix + "balance:" + workspaceID
}

func (s *Store) auditKey(workspaceID string) string {
	return s.keyPrefix + "audit:" + workspaceID
}

func (s *Store) auditIndexKey(workspaceID string) string {
	return s.keyPrefix + "audit_idx:" + workspaceID
}

func (s *Store) reservationKey(id string) string {
	return s.keyPrefix + "rsv:" + id
}

func (s *Store) reservationIndexKey(workspaceID string) string {
	return s.keyPrefix + "rsv_idx:" + workspaceID
}

// redisKey is the key holding k's record.
func (s *Store) redisKey(k types.Key) (string, error) {
	switch k.Table {
	case types.TableBalances:
		return s.balanceKey(k.PrimaryKey), nil
	case types.TableAudit:
		return s.auditKey(k.PrimaryKey), nil
	case types.TableReservations:
		return s.reservationKey(k.PrimaryKey), nil
	}
	return "", fmt.Errorf("store: unknown table %q", k.Table)
}

// Migrate is a no-op; Redis needs no schema.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ==================== Atomic Update ====================

// AtomicUpdate implements store.AtomicStore.
func (s *Store) AtomicUpdate(ctx context.Context, keys map[string]types.Key, fn ledgerstore.UpdateFunc) ([]ledgerstore.Record, error) {
	watch := make([]string, 0, len(keys))
	for _, k := range keys {
		rk, err := s.redisKey(k)
		if err != nil {
			return nil, err
		}
		watch = append(watch, rk)
	}

	var writes []ledgerstore.Record
	txf := func(tx *goredis.Tx) error {
		fetched := make(map[string]ledgerstore.Record, len(keys))
		for handle, k := range keys {
			r, err := s.fetch(ctx, tx, k)
			if err != nil {
				return err
			}
			if r != nil {
				fetched[handle] = r
			}
		}

		var err error
		writes, err = fn(fetched)
		if err != nil {
			return err
		}
		if err := s.checkWrites(ctx, tx, writes); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, w := range writes {
				if err := s.queue(ctx, pipe, w); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	}

	if err := s.client.Watch(ctx, txf, watch...); err != nil {
		if errors.Is(err, goredis.TxFailedErr) {
			return nil, fmt.Errorf("%w: watched key changed", ledger.ErrStorageConflict)
		}
		return nil, err
	}

	out := make([]ledgerstore.Record, len(writes))
	for i, w := range writes {
		out[i] = ledgerstore.Clone(w)
	}
	return out, nil
}

func (s *Store) fetch(ctx context.Context, tx *goredis.Tx, k types.Key) (ledgerstore.Record, error) {
	var (
		raw string
		err error
	)
	switch k.Table {
	case types.TableAudit:
		raw, err = tx.HGet(ctx, s.auditKey(k.PrimaryKey), k.SortKey).Result()
	case types.TableBalances:
		raw, err = tx.Get(ctx, s.balanceKey(k.PrimaryKey)).Result()
	case types.TableReservations:
		raw, err = tx.Get(ctx, s.reservationKey(k.PrimaryKey)).Result()
	default:
		return nil, fmt.Errorf("store: unknown table %q", k.Table)
	}
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creditledger/redis: fetch %s: %w", k, err)
	}
	return decode(k.Table, raw)
}

// checkWrites watches every written key that was not fetched and verifies
// the batch against current state. A change after the WATCH fails EXEC.
func (s *Store) checkWrites(ctx context.Context, tx *goredis.Tx, writes []ledgerstore.Record) error {
	seen := make(map[types.Key]struct{}, len(writes))
	for _, w := range writes {
		if err := ledgerstore.CheckWrite(w); err != nil {
			return err
		}
		k := w.RecordKey()
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s written twice", ledger.ErrStorageConflict, k)
		}
		seen[k] = struct{}{}

		rk, err := s.redisKey(k)
		if err != nil {
			return err
		}
		if err := tx.Watch(ctx, rk).Err(); err != nil {
			return err
		}

		switch v := w.(type) {
		case *balance.Balance:
			var stored int64
			raw, err := tx.Get(ctx, rk).Result()
			switch {
			case errors.Is(err, goredis.Nil):
			case err != nil:
				return err
			default:
				var cur balance.Balance
				if err := json.Unmarshal([]byte(raw), &cur); err != nil {
					return fmt.Errorf("creditledger/redis: decode balance %s: %w", v.WorkspaceID, err)
				}
				stored = cur.Version
			}
			if stored != v.Version-1 {
				return fmt.Errorf("%w: balance %s at version %d, write expects %d",
					ledger.ErrStorageConflict, v.WorkspaceID, stored, v.Version-1)
			}
		case *audit.Record:
			exists, err := tx.HExists(ctx, rk, v.SortKey).Result()
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: %s already exists", ledger.ErrStorageConflict, k)
			}
		case *reservation.Reservation:
			n, err := tx.Exists(ctx, rk).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: %s already exists", ledger.ErrStorageConflict, k)
			}
		}
	}
	return nil
}

func (s *Store) queue(ctx context.Context, pipe goredis.Pipeliner, w ledgerstore.Record) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("creditledger/redis: encode %T: %w", w, err)
	}

	switch v := w.(type) {
	case *balance.Balance:
		pipe.Set(ctx, s.balanceKey(v.WorkspaceID), raw, 0)
	case *audit.Record:
		pipe.HSet(ctx, s.auditKey(v.WorkspaceID), v.SortKey, raw)
		pipe.ZAdd(ctx, s.auditIndexKey(v.WorkspaceID), goredis.Z{Score: 0, Member: v.SortKey})
	case *reservation.Reservation:
		pipe.Set(ctx, s.reservationKey(v.ID.String()), raw, 0)
		pipe.SAdd(ctx, s.reservationIndexKey(v.WorkspaceID), v.ID.String())
	}
	return nil
}

func decode(table types.Table, raw string) (ledgerstore.Record, error) {
	var r ledgerstore.Record
	switch table {
	case types.TableBalances:
		r = new(balance.Balance)
	case types.TableAudit:
		r = new(audit.Record)
	case types.TableReservations:
		r = new(reservation.Reservation)
	default:
		return nil, fmt.Errorf("store: unknown table %q", table)
	}
	if err := json.Unmarshal([]byte(raw), r); err != nil {
		return nil, fmt.Errorf("creditledger/redis: decode %s record: %w", table, err)
	}
	return r, nil
}

// ==================== Balance Store ====================

func (s *Store) CreateBalance(ctx context.Context, b *balance.Balance) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("creditledger/redis: encode balance: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.balanceKey(b.WorkspaceID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("creditledger/redis: create balance: %w", err)
	}
	if !ok {
		return ledger.ErrWorkspaceExists
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, workspaceID string) (*balance.Balance, error) {
	raw, err := s.client.Get(ctx, s.balanceKey(workspaceID)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, ledger.ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("creditledger/redis: get balance: %w", err)
	}
	var b balance.Balance
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, fmt.Errorf("creditledger/redis: decode balance: %w", err)
	}
	return &b, nil
}

// ==================== Audit Store ====================

func (s *Store) ListAuditRecords(ctx context.Context, workspaceID string, opts audit.ListOpts) ([]*audit.Record, error) {
	start := "-"
	if opts.After != "" {
		start = "(" + opts.After
	}
	args := goredis.ZRangeArgs{
		Key:   s.auditIndexKey(workspaceID),
		Start: start,
		Stop:  "+",
		ByLex: true,
	}
	if opts.Limit > 0 {
		args.Count = int64(opts.Limit)
	}

	sortKeys, err := s.client.ZRangeArgs(ctx, args).Result()
	if err != nil {
		return nil, fmt.Errorf("creditledger/redis: list audit records: %w", err)
	}
	if len(sortKeys) == 0 {
		return []*audit.Record{}, nil
	}

	vals, err := s.client.HMGet(ctx, s.auditKey(workspaceID), sortKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("creditledger/redis: list audit records: %w", err)
	}

	result := make([]*audit.Record, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("creditledger/redis: audit record %s/%s missing", workspaceID, sortKeys[i])
		}
		var r audit.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("creditledger/redis: decode audit record: %w", err)
		}
		result = append(result, &r)
	}
	return result, nil
}

// ==================== Reservation Store ====================

func (s *Store) GetReservation(ctx context.Context, rid reservation.ID) (*reservation.Reservation, error) {
	raw, err := s.client.Get(ctx, s.reservationKey(rid.String())).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, ledger.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("creditledger/redis: get reservation: %w", err)
	}
	var r reservation.Reservation
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("creditledger/redis: decode reservation: %w", err)
	}
	return &r, nil
}

// TakeReservation uses GETDEL, so exactly one caller receives the value.
// Once the value is taken it is always returned: a failure to clear the
// index entry is logged, and ListReservations skips stale entries.
func (s *Store) TakeReservation(ctx context.Context, rid reservation.ID) (*reservation.Reservation, error) {
	raw, err := s.client.GetDel(ctx, s.reservationKey(rid.String())).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, ledger.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("creditledger/redis: take reservation: %w", err)
	}
	var r reservation.Reservation
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("creditledger/redis: decode reservation: %w", err)
	}
	if err := s.client.SRem(ctx, s.reservationIndexKey(r.WorkspaceID), rid.String()).Err(); err != nil {
		s.logger.Warn("creditledger/redis: unindex taken reservation",
			"reservation_id", rid,
			"workspace_id", r.WorkspaceID,
			"error", err,
		)
	}
	return &r, nil
}

func (s *Store) ListReservations(ctx context.Context, workspaceID string) ([]*reservation.Reservation, error) {
	ids, err := s.client.SMembers(ctx, s.reservationIndexKey(workspaceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("creditledger/redis: list reservations: %w", err)
	}
	if len(ids) == 0 {
		return []*reservation.Reservation{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.reservationKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("creditledger/redis: list reservations: %w", err)
	}

	result := make([]*reservation.Reservation, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// taken between SMEMBERS and MGET
			continue
		}
		var r reservation.Reservation
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("creditledger/redis: decode reservation: %w", err)
		}
		result = append(result, &r)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
