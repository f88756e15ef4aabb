package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/creditledger/plugin"
	"github.com/xraph/creditledger/reservation"
)

type recorder struct {
	name     string
	reserved atomic.Int32
	missing  atomic.Int32
	fail     bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnReserved(context.Context, *reservation.Reservation) error {
	r.reserved.Add(1)
	if r.fail {
		return errors.New("hook failed")
	}
	return nil
}

func (r *recorder) OnReservationMissing(context.Context, reservation.ID, string) error {
	r.missing.Add(1)
	return nil
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnReserved(ctx context.Context, _ *reservation.Reservation) error {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	}
	return nil
}

func quietRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := quietRegistry()
	require.NoError(t, reg.Register(&recorder{name: "a"}))
	assert.Error(t, reg.Register(&recorder{name: "a"}))
	assert.Equal(t, 1, reg.Count())
	assert.NotNil(t, reg.Get("a"))
	assert.Nil(t, reg.Get("b"))
}

func TestEmitDispatchesToImplementers(t *testing.T) {
	reg := quietRegistry()
	a := &recorder{name: "a"}
	b := &recorder{name: "b", fail: true}
	require.NoError(t, reg.Register(a))
	require.NoError(t, reg.Register(b))

	ctx := context.Background()
	reg.EmitReserved(ctx, &reservation.Reservation{ID: "rsv_1"})
	reg.EmitReservationMissing(ctx, "rsv_1", "settle")
	// No OnCommitted implementers: must be a no-op.
	reg.EmitCommitted(ctx, "req_1", nil, nil)

	assert.Equal(t, int32(1), a.reserved.Load())
	assert.Equal(t, int32(1), b.reserved.Load(), "a failing hook must not stop dispatch")
	assert.Equal(t, int32(1), a.missing.Load())
}

func TestHookTimeout(t *testing.T) {
	reg := quietRegistry().WithTimeout(10 * time.Millisecond)
	require.NoError(t, reg.Register(slow{}))

	start := time.Now()
	reg.EmitReserved(context.Background(), &reservation.Reservation{ID: "rsv_1"})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
