// Package spendlimit decides whether an estimated cost may be reserved.
//
// Gates are side-effect free: a rejected check leaves nothing behind in
// the ledger.
package spendlimit

import (
	"context"
	"fmt"
)

// Kind names a family of limits.
type Kind string

const (
	KindWorkspacePerRequest Kind = "workspace_per_request"
	KindAgentPerRequest     Kind = "agent_per_request"
	KindBalanceFloor        Kind = "balance_floor"
)

// Limit describes one limit that a check failed.
type Limit struct {
	Kind Kind `json:"kind"`
	// Scope is the workspace or agent the limit applies to.
	Scope string `json:"scope"`
	// Threshold is the configured bound, in nanos.
	Threshold int64 `json:"threshold"`
	// Attempted is the value that breached it, in nanos.
	Attempted int64 `json:"attempted"`
}

func (l Limit) String() string {
	if l.Kind == KindBalanceFloor {
		return fmt.Sprintf("%s(%s): remaining %d < floor %d", l.Kind, l.Scope, l.Attempted, l.Threshold)
	}
	return fmt.Sprintf("%s(%s): %d > %d", l.Kind, l.Scope, l.Attempted, l.Threshold)
}

// Result is the outcome of a check.
type Result struct {
	Passed       bool    `json:"passed"`
	FailedLimits []Limit `json:"failed_limits,omitempty"`
}

// Pass is the passing Result.
var Pass = Result{Passed: true}

// Fail builds a failing Result.
func Fail(limits ...Limit) Result {
	return Result{FailedLimits: limits}
}

// Gate checks an estimated cost against configured limits. agentID may be
// empty.
type Gate interface {
	Check(ctx context.Context, workspaceID, agentID string, estimated int64) (Result, error)
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(ctx context.Context, workspaceID, agentID string, estimated int64) (Result, error)

// Check calls f.
func (f GateFunc) Check(ctx context.Context, workspaceID, agentID string, estimated int64) (Result, error) {
	return f(ctx, workspaceID, agentID, estimated)
}

// AllowAll is a Gate that always passes.
var AllowAll Gate = GateFunc(func(context.Context, string, string, int64) (Result, error) {
	return Pass, nil
})

// Floored is implemented by gates that keep balances above a floor. The
// ledger re-checks the floor against the balance it is about to write,
// since Check may have read an older balance.
type Floored interface {
	Floor(workspaceID string) (int64, bool)
}

// FloorOf returns the floor g enforces for workspaceID, if any.
func FloorOf(g Gate, workspaceID string) (int64, bool) {
	if f, ok := g.(Floored); ok {
		return f.Floor(workspaceID)
	}
	return 0, false
}

// All combines gates. Every gate runs and every failed limit is reported;
// the first error aborts the check. The combined floor is the highest
// floor of its members.
func All(gates ...Gate) Gate {
	return all(gates)
}

type all []Gate

func (a all) Check(ctx context.Context, workspaceID, agentID string, estimated int64) (Result, error) {
	var failed []Limit
	for _, g := range a {
		res, err := g.Check(ctx, workspaceID, agentID, estimated)
		if err != nil {
			return Result{}, err
		}
		if !res.Passed {
			failed = append(failed, res.FailedLimits...)
		}
	}
	if len(failed) > 0 {
		return Fail(failed...), nil
	}
	return Pass, nil
}

func (a all) Floor(workspaceID string) (int64, bool) {
	var (
		floor int64
		found bool
	)
	for _, g := range a {
		if f, ok := FloorOf(g, workspaceID); ok && (!found || f > floor) {
			floor, found = f, true
		}
	}
	return floor, found
}
