package creditledger_test

import (
	"errors"
	"fmt"
	"testing"

	ledger "github.com/xraph/creditledger"
	"github.com/xraph/creditledger/spendlimit"
)

func TestErrorHelpers(t *testing.T) {
	limitErr := &ledger.SpendingLimitExceededError{
		WorkspaceID:  "ws_1",
		FailedLimits: []spendlimit.Limit{{Kind: spendlimit.KindWorkspacePerRequest, Scope: "ws_1", Threshold: 10, Attempted: 20}},
	}

	tests := []struct {
		name      string
		err       error
		notFound  bool
		retryable bool
		limit     bool
	}{
		{"workspace not found", fmt.Errorf("commit: %w", ledger.ErrWorkspaceNotFound), true, false, false},
		{"reservation not found", ledger.ErrReservationNotFound, true, false, false},
		{"conflict", fmt.Errorf("pg: %w", ledger.ErrStorageConflict), false, true, false},
		{"limit", limitErr, false, false, true},
		{"validation", ledger.ValidationError{Field: "amount", Message: "must be positive"}, false, false, false},
		{"other", errors.New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ledger.IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound: got %v, want %v", got, tt.notFound)
			}
			if got := ledger.IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable: got %v, want %v", got, tt.retryable)
			}
			if got := ledger.IsLimitError(tt.err); got != tt.limit {
				t.Errorf("IsLimitError: got %v, want %v", got, tt.limit)
			}
		})
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	err := ledger.ValidationError{Field: "workspace_id", Message: "required"}
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Error("ValidationError should match ErrInvalidInput")
	}
	if got, want := err.Error(), "creditledger: validation failed for workspace_id: required"; got != want {
		t.Errorf("Error: got %q, want %q", got, want)
	}
}

func TestSpendingLimitExceededErrorAs(t *testing.T) {
	var err error = fmt.Errorf("reserve: %w", &ledger.SpendingLimitExceededError{WorkspaceID: "ws_1"})

	var target *ledger.SpendingLimitExceededError
	if !errors.As(err, &target) {
		t.Fatal("errors.As failed")
	}
	if target.WorkspaceID != "ws_1" {
		t.Errorf("WorkspaceID: got %q, want ws_1", target.WorkspaceID)
	}
}
