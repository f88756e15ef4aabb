package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	skafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledger "github.com/xraph/creditledger"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/pricing"
	"github.com/xraph/creditledger/reservation"
	"github.com/xraph/creditledger/store/memory"
	"github.com/xraph/creditledger/stream/kafka"
)

// fakeWriter records messages written.
type fakeWriter struct {
	mu     sync.Mutex
	msgs   []skafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...skafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func header(m skafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestPublisherStreamsLedgerEvents(t *testing.T) {
	ctx := context.Background()
	fw := &fakeWriter{}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := kafka.NewWithWriter(fw, kafka.WithLogger(quiet), kafka.WithClock(func() time.Time { return at }))

	l := ledger.New(memory.New(), ledger.WithLogger(quiet), ledger.WithPlugin(pub))
	_, err := l.OpenWorkspace(ctx, "ws_a", 5_000_000)
	require.NoError(t, err)
	_, err = l.OpenWorkspace(ctx, "ws_b", 5_000_000)
	require.NoError(t, err)

	rsv, err := l.Reserve(ctx, ledger.ReserveRequest{WorkspaceID: "ws_a", Source: entry.SourceTextGeneration, Estimated: 1_000_000})
	require.NoError(t, err)

	cost := int64(800_000)
	buf := entry.NewBuffer()
	require.NoError(t, l.Settle(ctx, buf, rsv.ID, pricing.Usage{ReportedCost: &cost}))
	buf.Add(entry.Entry{WorkspaceID: "ws_b", Source: entry.SourceToolExecution, Supplier: "search", Description: "web search", Amount: -50_000})

	_, err = l.Commit(ctx, buf, "req_1")
	require.NoError(t, err)

	require.Len(t, fw.msgs, 4)
	assert.Equal(t, kafka.EventReservationPlaced, header(fw.msgs[0], "event"))
	assert.Equal(t, kafka.EventReservationSettled, header(fw.msgs[1], "event"))
	assert.Equal(t, kafka.EventCommitted, header(fw.msgs[2], "event"))
	assert.Equal(t, kafka.EventCommitted, header(fw.msgs[3], "event"))
	assert.Equal(t, at, fw.msgs[0].Time)

	var settled kafka.ReservationEvent
	require.NoError(t, json.Unmarshal(fw.msgs[1].Value, &settled))
	assert.Equal(t, rsv.ID.String(), settled.ReservationID)
	require.NotNil(t, settled.Delta)
	assert.Equal(t, int64(-200_000), *settled.Delta)

	committed := map[string]kafka.CommittedEvent{}
	for _, m := range fw.msgs[2:] {
		var ev kafka.CommittedEvent
		require.NoError(t, json.Unmarshal(m.Value, &ev))
		assert.Equal(t, string(m.Key), ev.WorkspaceID)
		committed[ev.WorkspaceID] = ev
	}
	require.Len(t, committed["ws_a"].Records, 1)
	assert.Equal(t, int64(4_200_000), committed["ws_a"].Balance)
	assert.Equal(t, int64(4_950_000), committed["ws_b"].Balance)
	assert.Equal(t, "req_1", committed["ws_b"].RequestID)

	require.NoError(t, l.Stop())
	assert.True(t, fw.closed)
}

func TestPublisherWriteError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("broker down")}
	pub := kafka.NewWithWriter(fw, kafka.WithLogger(quiet))

	err := pub.OnReservationRefunded(context.Background(), &reservation.Reservation{ID: "rsv_1", WorkspaceID: "ws_a", Amount: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
