package spendlimit

import (
	"context"
	"fmt"

	"github.com/xraph/creditledger/balance"
)

// BalanceReader reads a workspace's current balance. store.Store
// satisfies it.
type BalanceReader interface {
	GetBalance(ctx context.Context, workspaceID string) (*balance.Balance, error)
}

// Rules is a static Gate built from policy configuration. Zero caps mean
// unlimited.
type Rules struct {
	// WorkspacePerRequest caps a single reservation for any workspace.
	WorkspacePerRequest int64
	// AgentPerRequest caps a single reservation made on behalf of an agent.
	AgentPerRequest int64
	// Workspaces overrides WorkspacePerRequest for specific workspaces.
	Workspaces map[string]int64
	// Agents overrides AgentPerRequest for specific agents.
	Agents map[string]int64

	// BalanceFloor, when set, rejects reservations that would take the
	// balance below it. Requires Balances.
	BalanceFloor *int64
	Balances     BalanceReader
}

// Check implements Gate.
func (r *Rules) Check(ctx context.Context, workspaceID, agentID string, estimated int64) (Result, error) {
	var failed []Limit

	if limit := capFor(r.WorkspacePerRequest, r.Workspaces, workspaceID); limit > 0 && estimated > limit {
		failed = append(failed, Limit{Kind: KindWorkspacePerRequest, Scope: workspaceID, Threshold: limit, Attempted: estimated})
	}

	if agentID != "" {
		if limit := capFor(r.AgentPerRequest, r.Agents, agentID); limit > 0 && estimated > limit {
			failed = append(failed, Limit{Kind: KindAgentPerRequest, Scope: agentID, Threshold: limit, Attempted: estimated})
		}
	}

	if r.BalanceFloor != nil {
		if r.Balances == nil {
			return Result{}, fmt.Errorf("spendlimit: balance floor configured without a balance reader")
		}
		b, err := r.Balances.GetBalance(ctx, workspaceID)
		if err != nil {
			return Result{}, fmt.Errorf("spendlimit: read balance %s: %w", workspaceID, err)
		}
		if remaining := b.Amount - estimated; remaining < *r.BalanceFloor {
			failed = append(failed, Limit{Kind: KindBalanceFloor, Scope: workspaceID, Threshold: *r.BalanceFloor, Attempted: remaining})
		}
	}

	if len(failed) > 0 {
		return Fail(failed...), nil
	}
	return Pass, nil
}

// Floor implements Floored.
func (r *Rules) Floor(string) (int64, bool) {
	if r.BalanceFloor == nil {
		return 0, false
	}
	return *r.BalanceFloor, true
}

func capFor(def int64, overrides map[string]int64, key string) int64 {
	if v, ok := overrides[key]; ok {
		return v
	}
	return def
}
