package creditledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/creditledger/spendlimit"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidInput = errors.New("creditledger: invalid input")
	ErrInvalidEntry = errors.New("creditledger: invalid ledger entry")

	// Workspace errors
	ErrWorkspaceNotFound = errors.New("creditledger: workspace not found")
	ErrWorkspaceExists   = errors.New("creditledger: workspace already exists")

	// Reservation errors
	ErrSpendingLimitExceeded = errors.New("creditledger: spending limit exceeded")
	ErrReservationNotFound   = errors.New("creditledger: reservation not found")

	// Commit errors
	ErrInvariantViolation = errors.New("creditledger: ledger invariant violated")

	// Store errors
	ErrStorageConflict = errors.New("creditledger: storage conflict")
	ErrStoreClosed     = errors.New("creditledger: store is closed")
	ErrMigrationFailed = errors.New("creditledger: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("creditledger: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets validation failures match ErrInvalidInput.
func (e ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// SpendingLimitExceededError carries the limits a reservation breached.
type SpendingLimitExceededError struct {
	WorkspaceID  string
	AgentID      string
	Estimated    int64
	FailedLimits []spendlimit.Limit
}

func (e *SpendingLimitExceededError) Error() string {
	names := make([]string, len(e.FailedLimits))
	for i, l := range e.FailedLimits {
		names[i] = l.String()
	}
	return fmt.Sprintf("creditledger: spending limit exceeded for workspace %s: %s",
		e.WorkspaceID, strings.Join(names, ", "))
}

func (e *SpendingLimitExceededError) Unwrap() error {
	return ErrSpendingLimitExceeded
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkspaceNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}

// IsLimitError returns true if the error is a spending limit rejection.
func IsLimitError(err error) bool {
	return errors.Is(err, ErrSpendingLimitExceeded)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageConflict)
}
