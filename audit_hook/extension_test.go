package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledger "github.com/xraph/creditledger"
	audithook "github.com/xraph/creditledger/audit_hook"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/reservation"
	"github.com/xraph/creditledger/spendlimit"
	"github.com/xraph/creditledger/store/memory"
)

type captured struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (c *captured) Record(_ context.Context, e *audithook.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captured) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Action
	}
	return out
}

func TestExtensionRecordsLedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	rec := &captured{}
	l := ledger.New(memory.New(),
		ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		ledger.WithPlugin(audithook.New(rec)),
	)

	_, err := l.OpenWorkspace(ctx, "ws_1", 1_000_000)
	require.NoError(t, err)

	rsv, err := l.Reserve(ctx, ledger.ReserveRequest{WorkspaceID: "ws_1", Source: entry.SourceTextGeneration, Estimated: 100})
	require.NoError(t, err)

	buf := entry.NewBuffer()
	require.NoError(t, l.Refund(ctx, buf, rsv.ID))
	require.NoError(t, l.Refund(ctx, buf, rsv.ID))
	_, err = l.Commit(ctx, buf, "req_1")
	require.NoError(t, err)

	assert.Equal(t, []string{
		audithook.ActionReservationPlaced,
		audithook.ActionReservationRefunded,
		audithook.ActionReservationMissing,
		audithook.ActionCommitApplied,
	}, rec.actions())

	commit := rec.events[3]
	assert.Equal(t, "ws_1", commit.ResourceID)
	assert.Equal(t, "req_1", commit.Metadata["request_id"])
	assert.Equal(t, int64(1_000_000), commit.Metadata["balance"])
}

func TestExtensionRecordsFailures(t *testing.T) {
	ctx := context.Background()
	rec := &captured{}
	ext := audithook.New(rec)

	require.NoError(t, ext.OnCommitFailed(ctx, "req_1", []string{"ws_a", "ws_b"}, errors.New("boom")))
	require.NoError(t, ext.OnSpendingLimitExceeded(ctx, "ws_a", "agent_1", 500, []spendlimit.Limit{
		{Kind: spendlimit.KindWorkspacePerRequest, Scope: "ws_a", Threshold: 100, Attempted: 500},
	}))

	require.Len(t, rec.events, 3)
	assert.Equal(t, audithook.OutcomeFailure, rec.events[0].Outcome)
	assert.Equal(t, "boom", rec.events[0].Reason)
	assert.Equal(t, "ws_b", rec.events[1].ResourceID)
	assert.Equal(t, audithook.SeverityWarning, rec.events[2].Severity)
	assert.Len(t, rec.events[2].Metadata["failed_limits"], 1)
}

func TestExtensionEnabledActions(t *testing.T) {
	ctx := context.Background()
	rec := &captured{}
	ext := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionReservationMissing))

	require.NoError(t, ext.OnReservationMissing(ctx, reservation.ID("rsv_x"), "settle"))
	require.NoError(t, ext.OnReservationRefunded(ctx, &reservation.Reservation{ID: "rsv_x", WorkspaceID: "ws_1", Amount: 5}))

	assert.Equal(t, []string{audithook.ActionReservationRefunded}, rec.actions())

	only := &captured{}
	ext = audithook.New(only, audithook.WithEnabledActions(audithook.ActionCommitFailed))
	require.NoError(t, ext.OnReserved(ctx, &reservation.Reservation{ID: "rsv_y"}))
	assert.Empty(t, only.actions())
}
