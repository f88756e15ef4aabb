package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledger "github.com/xraph/creditledger"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/store/memory"
	"github.com/xraph/creditledger/store/retry"
	"github.com/xraph/creditledger/store/storetest"
	"github.com/xraph/creditledger/types"
)

// flaky fails the first n AtomicUpdate calls with err.
type flaky struct {
	store.Store
	n     int
	err   error
	calls int
}

func (f *flaky) AtomicUpdate(ctx context.Context, keys map[string]types.Key, fn store.UpdateFunc) ([]store.Record, error) {
	f.calls++
	if f.calls <= f.n {
		return nil, f.err
	}
	return f.Store.AtomicUpdate(ctx, keys, fn)
}

func zero() backoff.BackOff { return &backoff.ZeroBackOff{} }

func noop(map[string]store.Record) ([]store.Record, error) { return nil, nil }

func TestRetriesConflicts(t *testing.T) {
	inner := &flaky{Store: memory.New(), n: 2, err: fmt.Errorf("pg: %w", ledger.ErrStorageConflict)}
	s := retry.New(inner, retry.WithBackOff(zero), retry.WithMaxAttempts(3))

	_, err := s.AtomicUpdate(context.Background(), nil, noop)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flaky{Store: memory.New(), n: 10, err: ledger.ErrStorageConflict}
	s := retry.New(inner, retry.WithBackOff(zero), retry.WithMaxAttempts(4))

	_, err := s.AtomicUpdate(context.Background(), nil, noop)
	assert.ErrorIs(t, err, ledger.ErrStorageConflict)
	assert.Equal(t, 4, inner.calls)
}

func TestDoesNotRetryOtherErrors(t *testing.T) {
	boom := errors.New("connection refused")
	inner := &flaky{Store: memory.New(), n: 10, err: boom}
	s := retry.New(inner, retry.WithBackOff(zero))

	_, err := s.AtomicUpdate(context.Background(), nil, noop)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, inner.calls)
}

func TestDoesNotRetryCallbackErrors(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	require.NoError(t, mem.CreateBalance(ctx, &balance.Balance{WorkspaceID: "ws_1", Version: 1}))

	calls := 0
	_, err := retry.New(mem, retry.WithBackOff(zero)).AtomicUpdate(ctx,
		map[string]types.Key{"b": balance.Key("ws_1")},
		func(map[string]store.Record) ([]store.Record, error) {
			calls++
			return nil, ledger.ErrWorkspaceNotFound
		})
	assert.ErrorIs(t, err, ledger.ErrWorkspaceNotFound)
	assert.Equal(t, 1, calls)
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store {
		return retry.New(memory.New(), retry.WithBackOff(zero), retry.WithMaxAttempts(1))
	})
}
