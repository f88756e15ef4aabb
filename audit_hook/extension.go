// Package audithook bridges credit ledger lifecycle events to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/plugin"
	"github.com/xraph/creditledger/reservation"
	"github.com/xraph/creditledger/spendlimit"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnCommitted             = (*Extension)(nil)
	_ plugin.OnCommitFailed          = (*Extension)(nil)
	_ plugin.OnReserved              = (*Extension)(nil)
	_ plugin.OnSpendingLimitExceeded = (*Extension)(nil)
	_ plugin.OnReservationSettled    = (*Extension)(nil)
	_ plugin.OnReservationRefunded   = (*Extension)(nil)
	_ plugin.OnReservationMissing    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges credit ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Commit hooks
// ──────────────────────────────────────────────────

// OnCommitted records one event per workspace touched by the commit.
func (e *Extension) OnCommitted(ctx context.Context, requestID string, balances []*balance.Balance, records []*audit.Record) error {
	counts := make(map[string]int, len(balances))
	sums := make(map[string]int64, len(balances))
	for _, r := range records {
		counts[r.WorkspaceID]++
		sums[r.WorkspaceID] += r.Amount
	}

	for _, b := range balances {
		_ = e.record(ctx, ActionCommitApplied, SeverityInfo, OutcomeSuccess,
			ResourceWorkspace, b.WorkspaceID, CategoryBilling, nil,
			"request_id", requestID,
			"entries", counts[b.WorkspaceID],
			"amount", sums[b.WorkspaceID],
			"balance", b.Amount,
			"version", b.Version,
		)
	}
	return nil
}

// OnCommitFailed implements plugin.OnCommitFailed.
func (e *Extension) OnCommitFailed(ctx context.Context, requestID string, workspaceIDs []string, err error) error {
	for _, ws := range workspaceIDs {
		_ = e.record(ctx, ActionCommitFailed, SeverityError, OutcomeFailure,
			ResourceWorkspace, ws, CategoryBilling, err,
			"request_id", requestID,
		)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Reservation hooks
// ──────────────────────────────────────────────────

// OnReserved implements plugin.OnReserved.
func (e *Extension) OnReserved(ctx context.Context, r *reservation.Reservation) error {
	return e.record(ctx, ActionReservationPlaced, SeverityInfo, OutcomeSuccess,
		ResourceReservation, r.ID.String(), CategoryBilling, nil,
		"workspace_id", r.WorkspaceID,
		"agent_id", r.AgentID,
		"amount", r.Amount,
	)
}

// OnSpendingLimitExceeded implements plugin.OnSpendingLimitExceeded.
func (e *Extension) OnSpendingLimitExceeded(ctx context.Context, workspaceID, agentID string, estimated int64, failed []spendlimit.Limit) error {
	limits := make([]string, len(failed))
	for i, l := range failed {
		limits[i] = l.String()
	}
	return e.record(ctx, ActionSpendingLimitExceeded, SeverityWarning, OutcomeFailure,
		ResourceWorkspace, workspaceID, CategoryAccess, nil,
		"agent_id", agentID,
		"estimated", estimated,
		"failed_limits", limits,
	)
}

// OnReservationSettled implements plugin.OnReservationSettled.
func (e *Extension) OnReservationSettled(ctx context.Context, r *reservation.Reservation, actual, delta int64) error {
	return e.record(ctx, ActionReservationSettled, SeverityInfo, OutcomeSuccess,
		ResourceReservation, r.ID.String(), CategoryBilling, nil,
		"workspace_id", r.WorkspaceID,
		"reserved", r.Amount,
		"actual", actual,
		"delta", delta,
	)
}

// OnReservationRefunded implements plugin.OnReservationRefunded.
func (e *Extension) OnReservationRefunded(ctx context.Context, r *reservation.Reservation) error {
	return e.record(ctx, ActionReservationRefunded, SeverityInfo, OutcomeSuccess,
		ResourceReservation, r.ID.String(), CategoryBilling, nil,
		"workspace_id", r.WorkspaceID,
		"amount", r.Amount,
	)
}

// OnReservationMissing implements plugin.OnReservationMissing.
func (e *Extension) OnReservationMissing(ctx context.Context, id reservation.ID, op string) error {
	return e.record(ctx, ActionReservationMissing, SeverityWarning, OutcomeSuccess,
		ResourceReservation, id.String(), CategoryBilling, nil,
		"operation", op,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
