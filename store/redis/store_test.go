//go:build integration

package redis_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledger "github.com/xraph/creditledger"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/store"
	ledgerredis "github.com/xraph/creditledger/store/redis"
	"github.com/xraph/creditledger/store/storetest"
	"github.com/xraph/creditledger/types"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}
	return client
}

func newTestStore(t *testing.T) *ledgerredis.Store {
	t.Helper()
	return newTestStoreWithClient(t, newTestClient(t))
}

func newTestStoreWithClient(t *testing.T, client *goredis.Client) *ledgerredis.Store {
	t.Helper()
	// Use a unique prefix per test to avoid collisions.
	prefix := fmt.Sprintf("{test:%s:%d}:", t.Name(), time.Now().UnixNano())
	t.Cleanup(func() {
		ctx := context.Background()
		cleanup := newTestClient(t)
		defer cleanup.Close()
		iter := cleanup.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			cleanup.Del(ctx, iter.Val())
		}
	})
	return ledgerredis.New(client,
		ledgerredis.WithKeyPrefix(prefix),
		ledgerredis.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

// failSRem fails every SREM sent outside a pipeline.
type failSRem struct{}

func (failSRem) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (failSRem) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if cmd.Name() == "srem" {
			err := errors.New("connection reset")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (failSRem) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestConcurrentWritersConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.CreateBalance(ctx, &balance.Balance{WorkspaceID: "ws_1", Amount: 100, Version: 1}))

	const workers = 10
	var (
		wg        sync.WaitGroup
		ok        atomic.Int64
		conflicts atomic.Int64
		start     = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.AtomicUpdate(ctx, map[string]types.Key{"b": balance.Key("ws_1")}, func(fetched map[string]store.Record) ([]store.Record, error) {
				cur := fetched["b"].(*balance.Balance)
				next := *cur
				next.Amount--
				next.Version++
				time.Sleep(5 * time.Millisecond)
				return []store.Record{&next}, nil
			})
			switch {
			case err == nil:
				ok.Add(1)
			case ledger.IsRetryable(err):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	b, err := s.GetBalance(ctx, "ws_1")
	require.NoError(t, err)
	assert.Equal(t, workers, int(ok.Load()+conflicts.Load()))
	assert.Equal(t, int64(100)-ok.Load(), b.Amount, "every successful write applied exactly once")
	assert.Equal(t, 1+ok.Load(), b.Version)
}

func TestTakeReservationSurvivesIndexFailure(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	client.AddHook(failSRem{})
	s := newTestStoreWithClient(t, client)

	l := ledger.New(s, ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { _ = l.Stop() })

	_, err := l.OpenWorkspace(ctx, "ws_1", 5_000_000)
	require.NoError(t, err)
	rsv, err := l.Reserve(ctx, ledger.ReserveRequest{WorkspaceID: "ws_1", Source: entry.SourceTextGeneration, Estimated: 1_000_000})
	require.NoError(t, err)

	buf := entry.NewBuffer()
	require.NoError(t, l.Refund(ctx, buf, rsv.ID))
	assert.Equal(t, int64(1_000_000), buf.Sum("ws_1"))

	_, err = l.Commit(ctx, buf, "req_1")
	require.NoError(t, err)

	b, err := s.GetBalance(ctx, "ws_1")
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), b.Amount)

	open, err := s.ListReservations(ctx, "ws_1")
	require.NoError(t, err)
	assert.Empty(t, open)
}
