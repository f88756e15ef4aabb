package spendlimit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/spendlimit"
)

type balances map[string]int64

func (b balances) GetBalance(_ context.Context, ws string) (*balance.Balance, error) {
	amt, ok := b[ws]
	if !ok {
		return nil, errors.New("not found")
	}
	return &balance.Balance{WorkspaceID: ws, Amount: amt}, nil
}

func TestRulesPerRequestCaps(t *testing.T) {
	ctx := context.Background()
	rules := &spendlimit.Rules{
		WorkspacePerRequest: 1_000,
		AgentPerRequest:     500,
		Workspaces:          map[string]int64{"ws_big": 10_000},
		Agents:              map[string]int64{"agent_unlimited": 0},
	}

	tests := []struct {
		name      string
		ws, agent string
		estimated int64
		kinds     []spendlimit.Kind
	}{
		{"within caps", "ws_1", "agent_1", 400, nil},
		{"no agent skips agent cap", "ws_1", "", 900, nil},
		{"agent cap", "ws_1", "agent_1", 900, []spendlimit.Kind{spendlimit.KindAgentPerRequest}},
		{"both caps", "ws_1", "agent_1", 2_000, []spendlimit.Kind{spendlimit.KindWorkspacePerRequest, spendlimit.KindAgentPerRequest}},
		{"workspace override", "ws_big", "", 5_000, nil},
		{"agent override disables cap", "ws_big", "agent_unlimited", 5_000, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := rules.Check(ctx, tt.ws, tt.agent, tt.estimated)
			require.NoError(t, err)
			assert.Equal(t, len(tt.kinds) == 0, res.Passed)

			var got []spendlimit.Kind
			for _, l := range res.FailedLimits {
				got = append(got, l.Kind)
			}
			assert.Equal(t, tt.kinds, got)
		})
	}
}

func TestRulesBalanceFloor(t *testing.T) {
	ctx := context.Background()
	floor := int64(0)
	rules := &spendlimit.Rules{BalanceFloor: &floor, Balances: balances{"ws_1": 1_000}}

	res, err := rules.Check(ctx, "ws_1", "", 1_000)
	require.NoError(t, err)
	assert.True(t, res.Passed)

	res, err = rules.Check(ctx, "ws_1", "", 1_001)
	require.NoError(t, err)
	require.False(t, res.Passed)
	require.Len(t, res.FailedLimits, 1)
	assert.Equal(t, spendlimit.Limit{Kind: spendlimit.KindBalanceFloor, Scope: "ws_1", Threshold: 0, Attempted: -1}, res.FailedLimits[0])

	_, err = rules.Check(ctx, "ws_missing", "", 1)
	assert.Error(t, err)

	_, err = (&spendlimit.Rules{BalanceFloor: &floor}).Check(ctx, "ws_1", "", 1)
	assert.Error(t, err)
}

func TestLimitString(t *testing.T) {
	tests := []struct {
		limit spendlimit.Limit
		want  string
	}{
		{
			spendlimit.Limit{Kind: spendlimit.KindWorkspacePerRequest, Scope: "ws_1", Threshold: 100, Attempted: 500},
			"workspace_per_request(ws_1): 500 > 100",
		},
		{
			spendlimit.Limit{Kind: spendlimit.KindBalanceFloor, Scope: "ws_1", Threshold: 0, Attempted: -500},
			"balance_floor(ws_1): remaining -500 < floor 0",
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.limit.String())
	}
}

func TestFloorOf(t *testing.T) {
	low, high := int64(-100), int64(50)

	_, ok := spendlimit.FloorOf(spendlimit.AllowAll, "ws_1")
	assert.False(t, ok)

	_, ok = spendlimit.FloorOf(&spendlimit.Rules{WorkspacePerRequest: 10}, "ws_1")
	assert.False(t, ok)

	floor, ok := spendlimit.FloorOf(&spendlimit.Rules{BalanceFloor: &low}, "ws_1")
	assert.True(t, ok)
	assert.Equal(t, low, floor)

	floor, ok = spendlimit.FloorOf(spendlimit.All(
		spendlimit.AllowAll,
		&spendlimit.Rules{BalanceFloor: &low},
		&spendlimit.Rules{BalanceFloor: &high},
	), "ws_1")
	assert.True(t, ok)
	assert.Equal(t, high, floor)
}

func TestAllCollectsEveryFailure(t *testing.T) {
	ctx := context.Background()
	fail := func(kind spendlimit.Kind) spendlimit.Gate {
		return spendlimit.GateFunc(func(_ context.Context, ws, _ string, est int64) (spendlimit.Result, error) {
			return spendlimit.Fail(spendlimit.Limit{Kind: kind, Scope: ws, Attempted: est}), nil
		})
	}

	gate := spendlimit.All(spendlimit.AllowAll, fail(spendlimit.KindWorkspacePerRequest), fail(spendlimit.KindBalanceFloor))
	res, err := gate.Check(ctx, "ws_1", "", 10)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Len(t, res.FailedLimits, 2)

	res, err = spendlimit.All(spendlimit.AllowAll, spendlimit.AllowAll).Check(ctx, "ws_1", "", 10)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, res.FailedLimits)
}

func TestAllStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	counting := spendlimit.GateFunc(func(context.Context, string, string, int64) (spendlimit.Result, error) {
		calls++
		return spendlimit.Pass, nil
	})
	failing := spendlimit.GateFunc(func(context.Context, string, string, int64) (spendlimit.Result, error) {
		return spendlimit.Result{}, boom
	})

	_, err := spendlimit.All(failing, counting).Check(context.Background(), "ws_1", "", 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, calls)
}
