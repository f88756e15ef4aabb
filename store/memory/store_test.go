package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledger "github.com/xraph/creditledger"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/store/memory"
	"github.com/xraph/creditledger/store/storetest"
	"github.com/xraph/creditledger/types"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateBalance(ctx, &balance.Balance{WorkspaceID: "ws_1", Amount: 10, Version: 1}))

	b, err := s.GetBalance(ctx, "ws_1")
	require.NoError(t, err)
	b.Amount = 999

	_, err = s.AtomicUpdate(ctx, map[string]types.Key{"b": balance.Key("ws_1")}, func(fetched map[string]store.Record) ([]store.Record, error) {
		fetched["b"].(*balance.Balance).Amount = 777
		return nil, nil
	})
	require.NoError(t, err)

	b, err = s.GetBalance(ctx, "ws_1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), b.Amount)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(ctx), ledger.ErrStoreClosed)
	_, err := s.GetBalance(ctx, "ws_1")
	assert.ErrorIs(t, err, ledger.ErrStoreClosed)
	_, err = s.AtomicUpdate(ctx, nil, func(map[string]store.Record) ([]store.Record, error) { return nil, nil })
	assert.ErrorIs(t, err, ledger.ErrStoreClosed)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := memory.New().AtomicUpdate(ctx, nil, func(map[string]store.Record) ([]store.Record, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
