// Package pricing converts metered usage into an amount in nanos.
//
// All prices round up. Conversion from fractional per-token rates to the
// fixed-point scale happens exactly once per Price call, so the ledger
// never sees a truncated amount.
package pricing

import (
	"context"
	"errors"

	"github.com/xraph/creditledger/entry"
)

var (
	ErrUnknownModel = errors.New("pricing: unknown model")
	ErrUnknownTool  = errors.New("pricing: unknown tool")
	ErrInvalidUsage = errors.New("pricing: invalid usage")
)

// Usage describes what an operation actually consumed.
type Usage struct {
	Source       entry.Source
	Supplier     string
	Model        string
	ToolCall     string
	Description  string
	InputTokens  int64
	OutputTokens int64
	// Units counts discrete billable items such as tool calls.
	Units int64
	// ReportedCost is the provider-reported cost in nanos. When set it
	// takes precedence over any table lookup.
	ReportedCost *int64
}

// Oracle prices usage in nanos.
type Oracle interface {
	Price(ctx context.Context, u Usage) (int64, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, u Usage) (int64, error)

// Price calls f(ctx, u).
func (f OracleFunc) Price(ctx context.Context, u Usage) (int64, error) {
	return f(ctx, u)
}

// Reported returns an Oracle that trusts the reported cost and fails for
// usage that carries none.
func Reported() Oracle {
	return OracleFunc(func(_ context.Context, u Usage) (int64, error) {
		if u.ReportedCost == nil {
			return 0, errors.Join(ErrInvalidUsage, errors.New("pricing: no reported cost"))
		}
		if *u.ReportedCost < 0 {
			return 0, ErrInvalidUsage
		}
		return *u.ReportedCost, nil
	})
}
