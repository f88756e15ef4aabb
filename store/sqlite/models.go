package sqlite

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

	WorkspaceID string    `grove:"workspace_id,pk"`
	Amount      int64     `grove:"amount"`
	Version     int64     `grove:"version"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
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

	WorkspaceID    string    `grove:"workspace_id,pk"`
	SortKey        string    `grove:"sort_key,pk"`
	RequestID      string    `grove:"request_id"`
	AgentID        string    `grove:"agent_id"`
	ConversationID string    `grove:"conversation_id"`
	Source         string    `grove:"source"`
	Supplier       string    `grove:"supplier"`
	Model          string    `grove:"model"`
	ToolCall       string    `grove:"tool_call"`
	Description    string    `grove:"description"`
	Amount         int64     `grove:"amount"`
	BalanceBefore  int64     `grove:"balance_before"`
	BalanceAfter   int64     `grove:"balance_after"`
	CreatedAt      time.Time `grove:"created_at"`
}

func toAuditModel(r *audit.Record) *auditModel {
	return &auditModel{
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

	ID             string    `grove:"id,pk"`
	WorkspaceID    string    `grove:"workspace_id"`
	AgentID        string    `grove:"agent_id"`
	ConversationID string    `grove:"conversation_id"`
	Source         string    `grove:"source"`
	Supplier       string    `grove:"supplier"`
	Model          string    `grove:"model"`
	Amount         int64     `grove:"amount"`
	CreatedAt      time.Time `grove:"created_at"`
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
