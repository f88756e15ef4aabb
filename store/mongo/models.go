package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/reservation"
	"github.com/xraph/creditledger/types"
)

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:creditledger_balances"`

	WorkspaceID string    `grove:"workspace_id,pk" bson:"_id"`
	Amount      int64     `grove:"amount"          bson:"amount"`
	Version     int64     `grove:"version"         bson:"version"`
	CreatedAt   time.Time `grove:"created_at"      bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"      bson:"updated_at"`
}

func toBalanceModel(b *balance.Balance) *balanceModel {
	return &balanceModel{
		WorkspaceID: b.WorkspaceID,
		Amount:      b.Amount,
		Version:     b.Version,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func fromBalanceModel(m *balanceModel) *balance.Balance {
	return &balance.Balance{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		WorkspaceID: m.WorkspaceID,
		Amount:      m.Amount,
		Version:     m.Version,
	}
}

// ==================== Audit models ====================

type auditModel struct {
	grove.BaseModel `grove:"table:creditledger_audit"`

	ID             string    `grove:"id,pk"           bson:"_id"`
	WorkspaceID    string    `grove:"workspace_id"    bson:"workspace_id"`
	SortKey        string    `grove:"sort_key"        bson:"sort_key"`
	RequestID      string    `grove:"request_id"      bson:"request_id"`
	AgentID        string    `grove:"agent_id"        bson:"agent_id,omitempty"`
	ConversationID string    `grove:"conversation_id" bson:"conversation_id,omitempty"`
	Source         string    `grove:"source"          bson:"source"`
	Supplier       string    `grove:"supplier"        bson:"supplier"`
	Model          string    `grove:"model"           bson:"model,omitempty"`
	ToolCall       string    `grove:"tool_call"       bson:"tool_call,omitempty"`
	Description    string    `grove:"description"     bson:"description"`
	Amount         int64     `grove:"amount"          bson:"amount"`
	BalanceBefore  int64     `grove:"balance_before"  bson:"balance_before"`
	BalanceAfter   int64     `grove:"balance_after"   bson:"balance_after"`
	CreatedAt      time.Time `grove:"created_at"      bson:"created_at"`
}

func toAuditModel(r *audit.Record) *auditModel {
	return &auditModel{
		ID:             r.RecordKey().String(),
		WorkspaceID:    r.WorkspaceID,
		SortKey:        r.SortKey,
		RequestID:      r.RequestID,
		AgentID:        r.AgentID,
		ConversationID: r.ConversationID,
		Source:         string(r.Source),
		Supplier:       r.Supplier,
		Model:          r.Model,
		ToolCall:       r.ToolCall,
		Description:    r.Description,
		Amount:         r.Amount,
		BalanceBefore:  r.BalanceBefore,
		BalanceAfter:   r.BalanceAfter,
		CreatedAt:      r.CreatedAt,
	}
}

func fromAuditModel(m *auditModel) *audit.Record {
	return &audit.Record{
		WorkspaceID:    m.WorkspaceID,
		SortKey:        m.SortKey,
		RequestID:      m.RequestID,
		AgentID:        m.AgentID,
		ConversationID: m.ConversationID,
		Source:         entry.Source(m.Source),
		Supplier:       m.Supplier,
		Model:          m.Model,
		ToolCall:       m.ToolCall,
		Description:    m.Description,
		Amount:         m.Amount,
		BalanceBefore:  m.BalanceBefore,
		BalanceAfter:   m.BalanceAfter,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

// ==================== Reservation models ====================

type reservationModel struct {
	grove.BaseModel `grove:"table:creditledger_reservations"`

	ID             string    `grove:"id,pk"           bson:"_id"`
	WorkspaceID    string    `grove:"workspace_id"    bson:"workspace_id"`
	AgentID        string    `grove:"agent_id"        bson:"agent_id,omitempty"`
	ConversationID string    `grove:"conversation_id" bson:"conversation_id,omitempty"`
	Source         string    `grove:"source"          bson:"source,omitempty"`
	Supplier       string    `grove:"supplier"        bson:"supplier,omitempty"`
	Model          string    `grove:"model"           bson:"model,omitempty"`
	Amount         int64     `grove:"amount"          bson:"amount"`
	CreatedAt      time.Time `grove:"created_at"      bson:"created_at"`
}

func toReservationModel(r *reservation.Reservation) *reservationModel {
	return &reservationModel{
		ID:             r.ID.String(),
		WorkspaceID:    r.WorkspaceID,
		AgentID:        r.AgentID,
		ConversationID: r.ConversationID,
		Source:         string(r.Source),
		Supplier:       r.Supplier,
		Model:          r.Model,
		Amount:         r.Amount,
		CreatedAt:      r.CreatedAt,
	}
}

func fromReservationModel(m *reservationModel) *reservation.Reservation {
	return &reservation.Reservation{
		ID:             reservation.ID(m.ID),
		WorkspaceID:    m.WorkspaceID,
		AgentID:        m.AgentID,
		ConversationID: m.ConversationID,
		Source:         entry.Source(m.Source),
		Supplier:       m.Supplier,
		Model:          m.Model,
		Amount:         m.Amount,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}
