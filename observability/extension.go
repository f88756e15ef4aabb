// Package observability provides a metrics extension for the credit ledger
// that records commit and reservation counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/plugin"
	"github.com/xraph/creditledger/reservation"
	"github.com/xraph/creditledger/spendlimit"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnCommitted             = (*MetricsExtension)(nil)
	_ plugin.OnCommitFailed          = (*MetricsExtension)(nil)
	_ plugin.OnReserved              = (*MetricsExtension)(nil)
	_ plugin.OnSpendingLimitExceeded = (*MetricsExtension)(nil)
	_ plugin.OnReservationSettled    = (*MetricsExtension)(nil)
	_ plugin.OnReservationRefunded   = (*MetricsExtension)(nil)
	_ plugin.OnReservationMissing    = (*MetricsExtension)(nil)
)

// Counter is a monotonically increasing metric.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram records observations into buckets.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates named metrics. forge's app.Metrics() satisfies it
// through a thin adapter.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a plugin on the ledger.
type MetricsExtension struct {
	// Commit metrics
	Commits         Counter
	CommitFailures  Counter
	AuditRecords    Counter
	WorkspacesTouch Counter
	CommitEntries   Histogram

	// Reservation metrics
	ReservationsPlaced  Counter
	ReservationsSettled Counter
	ReservationsRefund  Counter
	ReservationsMissing Counter
	ReservedNanos       Histogram
	SettleDeltaNanos    Histogram

	// Gate metrics
	LimitRejections Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		Commits:         factory.Counter("creditledger.commit.applied"),
		CommitFailures:  factory.Counter("creditledger.commit.failed"),
		AuditRecords:    factory.Counter("creditledger.commit.audit_records"),
		WorkspacesTouch: factory.Counter("creditledger.commit.workspaces"),
		CommitEntries:   factory.Histogram("creditledger.commit.entries"),

		ReservationsPlaced:  factory.Counter("creditledger.reservation.placed"),
		ReservationsSettled: factory.Counter("creditledger.reservation.settled"),
		ReservationsRefund:  factory.Counter("creditledger.reservation.refunded"),
		ReservationsMissing: factory.Counter("creditledger.reservation.missing"),
		ReservedNanos:       factory.Histogram("creditledger.reservation.amount_nanos"),
		SettleDeltaNanos:    factory.Histogram("creditledger.reservation.settle_delta_nanos"),

		LimitRejections: factory.Counter("creditledger.spending_limit.rejected"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Commit hooks
// ──────────────────────────────────────────────────

// OnCommitted implements plugin.OnCommitted.
func (m *MetricsExtension) OnCommitted(_ context.Context, _ string, balances []*balance.Balance, records []*audit.Record) error {
	m.Commits.Inc()
	m.WorkspacesTouch.Add(float64(len(balances)))
	m.AuditRecords.Add(float64(len(records)))
	m.CommitEntries.Observe(float64(len(records)))
	return nil
}

// OnCommitFailed implements plugin.OnCommitFailed.
func (m *MetricsExtension) OnCommitFailed(_ context.Context, _ string, _ []string, _ error) error {
	m.CommitFailures.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Reservation hooks
// ──────────────────────────────────────────────────

// OnReserved implements plugin.OnReserved.
func (m *MetricsExtension) OnReserved(_ context.Context, r *reservation.Reservation) error {
	m.ReservationsPlaced.Inc()
	m.ReservedNanos.Observe(float64(r.Amount))
	return nil
}

// OnSpendingLimitExceeded implements plugin.OnSpendingLimitExceeded.
func (m *MetricsExtension) OnSpendingLimitExceeded(_ context.Context, _, _ string, _ int64, _ []spendlimit.Limit) error {
	m.LimitRejections.Inc()
	return nil
}

// OnReservationSettled implements plugin.OnReservationSettled.
func (m *MetricsExtension) OnReservationSettled(_ context.Context, _ *reservation.Reservation, _, delta int64) error {
	m.ReservationsSettled.Inc()
	m.SettleDeltaNanos.Observe(float64(delta))
	return nil
}

// OnReservationRefunded implements plugin.OnReservationRefunded.
func (m *MetricsExtension) OnReservationRefunded(_ context.Context, _ *reservation.Reservation) error {
	m.ReservationsRefund.Inc()
	return nil
}

// OnReservationMissing implements plugin.OnReservationMissing.
func (m *MetricsExtension) OnReservationMissing(_ context.Context, _ reservation.ID, _ string) error {
	m.ReservationsMissing.Inc()
	return nil
}
