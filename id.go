package creditledger

import "github.com/xraph/creditledger/id"

// ID is the TypeID-based identifier used for reservations and requests.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
