// Package storetest is a conformance suite for store.Store backends.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledger "github.com/xraph/creditledger"
	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/reservation"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// Factory returns an empty, migrated store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run exercises every store.Store method against the backend built by f.
func Run(t *testing.T, f Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Balances", testBalances},
		{"AtomicUpdateFetchesAndWrites", testAtomicUpdateFetchesAndWrites},
		{"AtomicUpdateCreatesBalance", testAtomicUpdateCreatesBalance},
		{"AtomicUpdateVersionConflict", testAtomicUpdateVersionConflict},
		{"AtomicUpdateCallbackError", testAtomicUpdateCallbackError},
		{"AtomicUpdateDuplicateAudit", testAtomicUpdateDuplicateAudit},
		{"AuditPaging", testAuditPaging},
		{"Reservations", testReservations},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := f(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

var counter atomic.Int64

// uniq returns a fresh identifier so suites can share a database.
func uniq(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano(), counter.Add(1))
}

func seed(t *testing.T, s store.Store, ws string, amount int64) {
	t.Helper()
	require.NoError(t, s.CreateBalance(context.Background(), &balance.Balance{
		Entity:      types.NewEntity(epoch),
		WorkspaceID: ws,
		Amount:      amount,
		Version:     1,
	}))
}

func auditRecord(ws, sortKey string, before, amount int64) *audit.Record {
	return audit.New(entry.Entry{
		WorkspaceID: ws,
		Source:      entry.SourceTextGeneration,
		Supplier:    "openai",
		Model:       "gpt-4o",
		Description: "completion",
		Amount:      amount,
	}, "req_test", sortKey, before, epoch)
}

func testBalances(t *testing.T, s store.Store) {
	ctx := context.Background()
	ws := uniq("ws")

	_, err := s.GetBalance(ctx, ws)
	assert.ErrorIs(t, err, ledger.ErrWorkspaceNotFound)

	seed(t, s, ws, 42)

	b, err := s.GetBalance(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, ws, b.WorkspaceID)
	assert.Equal(t, int64(42), b.Amount)
	assert.Equal(t, int64(1), b.Version)
	assert.True(t, b.CreatedAt.Equal(epoch), "created_at %v", b.CreatedAt)

	err = s.CreateBalance(ctx, &balance.Balance{WorkspaceID: ws, Version: 1})
	assert.ErrorIs(t, err, ledger.ErrWorkspaceExists)
}

func testAtomicUpdateFetchesAndWrites(t *testing.T, s store.Store) {
	ctx := context.Background()
	ws := uniq("ws")
	seed(t, s, ws, 1_000)

	keys := map[string]types.Key{
		"balance": balance.Key(ws),
		"audit":   audit.Key(ws, "0001"),
		"missing": balance.Key(ws + "_missing"),
	}

	calls := 0
	written, err := s.AtomicUpdate(ctx, keys, func(fetched map[string]store.Record) ([]store.Record, error) {
		calls++
		assert.NotContains(t, fetched, "audit")
		assert.NotContains(t, fetched, "missing")
		require.Contains(t, fetched, "balance")

		cur, ok := fetched["balance"].(*balance.Balance)
		require.True(t, ok, "balance handle has type %T", fetched["balance"])

		next := *cur
		next.Amount -= 250
		next.Version++
		next.Touch(epoch.Add(time.Minute))
		return []store.Record{&next, auditRecord(ws, "0001", cur.Amount, -250)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Len(t, written, 2)

	b, err := s.GetBalance(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, int64(750), b.Amount)
	assert.Equal(t, int64(2), b.Version)

	recs, err := s.ListAuditRecords(ctx, ws, audit.ListOpts{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1_000), recs[0].BalanceBefore)
	assert.Equal(t, int64(750), recs[0].BalanceAfter)
	assert.Equal(t, "req_test", recs[0].RequestID)
	assert.Equal(t, entry.SourceTextGeneration, recs[0].Source)
	assert.True(t, recs[0].CreatedAt.Equal(epoch), "created_at %v", recs[0].CreatedAt)
}

func testAtomicUpdateCreatesBalance(t *testing.T, s store.Store) {
	ctx := context.Background()
	ws := uniq("ws")

	_, err := s.AtomicUpdate(ctx, map[string]types.Key{"b": balance.Key(ws)}, func(fetched map[string]store.Record) ([]store.Record, error) {
		assert.Empty(t, fetched)
		return []store.Record{&balance.Balance{Entity: types.NewEntity(epoch), WorkspaceID: ws, Amount: 5, Version: 1}}, nil
	})
	require.NoError(t, err)

	b, err := s.GetBalance(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.Amount)
}

func testAtomicUpdateVersionConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	ws := uniq("ws")
	seed(t, s, ws, 100)

	_, err := s.AtomicUpdate(ctx, map[string]types.Key{"b": balance.Key(ws)}, func(map[string]store.Record) ([]store.Record, error) {
		stale := &balance.Balance{Entity: types.NewEntity(epoch), WorkspaceID: ws, Amount: 0, Version: 5}
		return []store.Record{auditRecord(ws, "0001", 100, -100), stale}, nil
	})
	assert.ErrorIs(t, err, ledger.ErrStorageConflict)

	b, err := s.GetBalance(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.Amount, "balance must be untouched")
	assert.Equal(t, int64(1), b.Version)

	recs, err := s.ListAuditRecords(ctx, ws, audit.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, recs, "audit record must not be written")
}

func testAtomicUpdateCallbackError(t *testing.T, s store.Store) {
	ctx := context.Background()
	ws := uniq("ws")
	seed(t, s, ws, 100)

	boom := errors.New("boom")
	_, err := s.AtomicUpdate(ctx, map[string]types.Key{"b": balance.Key(ws)}, func(map[string]store.Record) ([]store.Record, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	b, err := s.GetBalance(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Version)
}

func testAtomicUpdateDuplicateAudit(t *testing.T, s store.Store) {
	ctx := context.Background()
	ws := uniq("ws")
	seed(t, s, ws, 100)

	write := func(version int64) error {
		_, err := s.AtomicUpdate(ctx, map[string]types.Key{"b": balance.Key(ws)}, func(fetched map[string]store.Record) ([]store.Record, error) {
			cur := fetched["b"].(*balance.Balance)
			next := *cur
			next.Version = version
			next.Amount--
			return []store.Record{&next, auditRecord(ws, "dup", cur.Amount, -1)}, nil
		})
		return err
	}

	require.NoError(t, write(2))
	assert.ErrorIs(t, write(3), ledger.ErrStorageConflict)

	b, err := s.GetBalance(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, int64(99), b.Amount)
	assert.Equal(t, int64(2), b.Version)
}

func testAuditPaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	ws := uniq("ws")
	seed(t, s, ws, 0)

	sortKeys := []string{"0003", "0001", "0005", "0002", "0004"}
	_, err := s.AtomicUpdate(ctx, map[string]types.Key{"b": balance.Key(ws)}, func(fetched map[string]store.Record) ([]store.Record, error) {
		cur := fetched["b"].(*balance.Balance)
		next := *cur
		next.Version++
		out := []store.Record{&next}
		for _, k := range sortKeys {
			out = append(out, auditRecord(ws, k, 0, 0))
		}
		return out, nil
	})
	require.NoError(t, err)

	all, err := s.ListAuditRecords(ctx, ws, audit.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, []string{"0001", "0002", "0003", "0004", "0005"}, sortKeysOf(all))

	page, err := s.ListAuditRecords(ctx, ws, audit.ListOpts{After: "0002", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"0003", "0004"}, sortKeysOf(page))

	other, err := s.ListAuditRecords(ctx, ws+"_other", audit.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testReservations(t *testing.T, s store.Store) {
	ctx := context.Background()
	ws := uniq("ws")
	rid := reservation.ID(uniq("rsv"))

	_, err := s.GetReservation(ctx, rid)
	assert.ErrorIs(t, err, ledger.ErrReservationNotFound)

	rsv := &reservation.Reservation{
		ID:          rid,
		WorkspaceID: ws,
		AgentID:     "agent_1",
		Source:      entry.SourceTextGeneration,
		Supplier:    "openai",
		Model:       "gpt-4o",
		Amount:      1_000_000,
		CreatedAt:   epoch,
	}
	_, err = s.AtomicUpdate(ctx, map[string]types.Key{"r": reservation.Key(rid)}, func(fetched map[string]store.Record) ([]store.Record, error) {
		assert.Empty(t, fetched)
		return []store.Record{rsv}, nil
	})
	require.NoError(t, err)

	_, err = s.AtomicUpdate(ctx, map[string]types.Key{"r": reservation.Key(rid)}, func(fetched map[string]store.Record) ([]store.Record, error) {
		assert.Contains(t, fetched, "r")
		return []store.Record{rsv}, nil
	})
	assert.ErrorIs(t, err, ledger.ErrStorageConflict)

	got, err := s.GetReservation(ctx, rid)
	require.NoError(t, err)
	assert.Equal(t, ws, got.WorkspaceID)
	assert.Equal(t, int64(1_000_000), got.Amount)
	assert.Equal(t, "agent_1", got.AgentID)

	list, err := s.ListReservations(ctx, ws)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rid, list[0].ID)

	taken, err := s.TakeReservation(ctx, rid)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), taken.Amount)

	_, err = s.TakeReservation(ctx, rid)
	assert.ErrorIs(t, err, ledger.ErrReservationNotFound)

	list, err = s.ListReservations(ctx, ws)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testPing(t *testing.T, s store.Store) {
	assert.NoError(t, s.Ping(context.Background()))
}

func sortKeysOf(recs []*audit.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.SortKey
	}
	return out
}
