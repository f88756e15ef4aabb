package types

// Table names a record family addressed by the atomic store primitive.
type Table string

// Record tables.
const (
	TableBalances     Table = "balances"
	TableAudit        Table = "audit"
	TableReservations Table = "reservations"
)

// BalanceSortKey is the fixed sort key of a workspace balance record.
const BalanceSortKey = "balance"

// Key addresses a single record: table, partition (primary) key and an
// optional sort key.
type Key struct {
	Table      Table  `json:"table"`
	PrimaryKey string `json:"primary_key"`
	SortKey    string `json:"sort_key,omitempty"`
}

// String renders the key as "table/primary/sort" for logs and map keys.
func (k Key) String() string {
	if k.SortKey == "" {
		return string(k.Table) + "/" + k.PrimaryKey
	}
	return string(k.Table) + "/" + k.PrimaryKey + "/" + k.SortKey
}
