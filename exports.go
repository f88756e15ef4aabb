package creditledger

import (
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/reservation"
	"github.com/xraph/creditledger/types"
)

// Re-export common types for convenience so users don't have to import the
// leaf packages for everyday calls.

// Entry is re-exported from the entry package.
type Entry = entry.Entry

// Buffer is re-exported from the entry package.
type Buffer = entry.Buffer

// NewBuffer returns an empty request-scoped buffer.
var NewBuffer = entry.NewBuffer

// Re-export entry sources
const (
	SourceEmbeddingGeneration = entry.SourceEmbeddingGeneration
	SourceTextGeneration      = entry.SourceTextGeneration
	SourceToolExecution       = entry.SourceToolExecution
)

// Re-export sentinel reservations and charge modes
const (
	SentinelBYOK    = reservation.SentinelBYOK
	SentinelFree    = reservation.SentinelFree
	Chargeable      = reservation.Chargeable
	BringYourOwnKey = reservation.BringYourOwnKey
	Free            = reservation.Free
)

// Re-export amount helpers
const NanosPerUnit = types.NanosPerUnit

var (
	FromMicros  = types.FromMicros
	FromUnits   = types.FromUnits
	ParseUnits  = types.ParseUnits
	FormatUnits = types.FormatUnits
)
