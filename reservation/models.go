// Package reservation defines pre-flight holds on workspace funds and the
// sentinel reservations that mean no workspace charge applies.
package reservation

import (
	"strings"
	"time"

	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/types"
)

// ID identifies a reservation. Real IDs are TypeIDs with the "rsv" prefix.
type ID string

// Sentinel reservations are never persisted and never move money.
const (
	SentinelBYOK ID = "rsv_byok"
	SentinelFree ID = "rsv_free"
)

// IsSentinel reports whether id is one of the sentinel values.
func (id ID) IsSentinel() bool {
	return id == SentinelBYOK || id == SentinelFree
}

func (id ID) String() string { return string(id) }

// Valid reports whether id looks like a reservation ID.
func (id ID) Valid() bool {
	return strings.HasPrefix(string(id), "rsv_")
}

// ChargeMode says whether an operation is billed to the workspace.
type ChargeMode string

const (
	Chargeable      ChargeMode = ""
	BringYourOwnKey ChargeMode = "byok"
	Free            ChargeMode = "free"
)

// Sentinel returns the sentinel ID for a non-chargeable mode.
func (m ChargeMode) Sentinel() (ID, bool) {
	switch m {
	case BringYourOwnKey:
		return SentinelBYOK, true
	case Free:
		return SentinelFree, true
	}
	return "", false
}

type Reservation struct {
	ID             ID           `json:"id"`
	WorkspaceID    string       `json:"workspace_id"`
	AgentID        string       `json:"agent_id,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Source         entry.Source `json:"source,omitempty"`
	Supplier       string       `json:"supplier,omitempty"`
	Model          string       `json:"model,omitempty"`
	Amount         int64        `json:"amount"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Key returns the record key of a reservation.
func Key(id ID) types.Key {
	return types.Key{Table: types.TableReservations, PrimaryKey: string(id)}
}

// RecordKey implements store.Record.
func (r *Reservation) RecordKey() types.Key {
	return Key(r.ID)
}
