// Package balance defines the per-workspace balance record.
package balance

import (
	"github.com/xraph/creditledger/types"
)

// Balance is a workspace's current credit in nanos. Version is bumped by
// exactly one on every committed write and is used for optimistic
// concurrency by the store.
type Balance struct {
	types.Entity
	WorkspaceID string `json:"workspace_id"`
	Amount      int64  `json:"amount"`
	Version     int64  `json:"version"`
}

// Key returns the record key of a workspace's balance.
func Key(workspaceID string) types.Key {
	return types.Key{Table: types.TableBalances, PrimaryKey: workspaceID, SortKey: types.BalanceSortKey}
}

// RecordKey implements store.Record.
func (b *Balance) RecordKey() types.Key {
	return Key(b.WorkspaceID)
}
