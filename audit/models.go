// Package audit defines the immutable per-entry audit record written by a
// commit.
package audit

import (
	"time"

	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/types"
)

// Record is one applied entry together with the workspace balance
// immediately before and after it. Records are never updated.
type Record struct {
	WorkspaceID    string       `json:"workspace_id"`
	SortKey        string       `json:"sort_key"`
	RequestID      string       `json:"request_id"`
	AgentID        string       `json:"agent_id,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Source         entry.Source `json:"source"`
	Supplier       string       `json:"supplier"`
	Model          string       `json:"model,omitempty"`
	ToolCall       string       `json:"tool_call,omitempty"`
	Description    string       `json:"description"`
	Amount         int64        `json:"amount"`
	BalanceBefore  int64        `json:"balance_before"`
	BalanceAfter   int64        `json:"balance_after"`
	CreatedAt      time.Time    `json:"created_at"`
}

// New builds the audit record for e. BalanceAfter is before+e.Amount.
func New(e entry.Entry, requestID, sortKey string, before int64, now time.Time) *Record {
	return &Record{
		WorkspaceID:    e.WorkspaceID,
		SortKey:        sortKey,
		RequestID:      requestID,
		AgentID:        e.AgentID,
		ConversationID: e.ConversationID,
		Source:         e.Source,
		Supplier:       e.Supplier,
		Model:          e.Model,
		ToolCall:       e.ToolCall,
		Description:    e.Description,
		Amount:         e.Amount,
		BalanceBefore:  before,
		BalanceAfter:   before + e.Amount,
		CreatedAt:      now.UTC(),
	}
}

// Key returns the record key of an audit record.
func Key(workspaceID, sortKey string) types.Key {
	return types.Key{Table: types.TableAudit, PrimaryKey: workspaceID, SortKey: sortKey}
}

// RecordKey implements store.Record.
func (r *Record) RecordKey() types.Key {
	return Key(r.WorkspaceID, r.SortKey)
}

// Entry returns the ledger entry this record was written for.
func (r *Record) Entry() entry.Entry {
	return entry.Entry{
		WorkspaceID:    r.WorkspaceID,
		AgentID:        r.AgentID,
		ConversationID: r.ConversationID,
		Source:         r.Source,
		Supplier:       r.Supplier,
		Model:          r.Model,
		ToolCall:       r.ToolCall,
		Description:    r.Description,
		Amount:         r.Amount,
	}
}
