package audithook

// Action constants for audit events.
const (
	// Commit actions
	ActionCommitApplied = "commit.applied"
	ActionCommitFailed  = "commit.failed"

	// Reservation actions
	ActionReservationPlaced   = "reservation.placed"
	ActionReservationSettled  = "reservation.settled"
	ActionReservationRefunded = "reservation.refunded"
	ActionReservationMissing  = "reservation.missing"

	// Spending limit actions
	ActionSpendingLimitExceeded = "spending_limit.exceeded"
)

// Resource constants for audit events.
const (
	ResourceWorkspace   = "workspace"
	ResourceReservation = "reservation"
)

// Category constants for audit events.
const (
	CategoryBilling = "billing"
	CategoryAccess  = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
