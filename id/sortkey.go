package id

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Sequence is a monotonically increasing counter. One Sequence is created
// per process (or per engine) and handed to every SortKeyGenerator that
// must produce mutually ordered keys. The zero value is ready to use.
type Sequence struct {
	n atomic.Uint64
}

// NewSequence returns a Sequence whose first Next call returns start+1.
func NewSequence(start uint64) *Sequence {
	s := &Sequence{}
	s.n.Store(start)
	return s
}

// Next returns the next value. Safe for concurrent use.
func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}

// SortKeyGenerator produces audit sort keys of the form
//
//	<13-digit unix millis>-<16 hex sequence>-<8 hex random>
//
// With a non-decreasing clock, keys from one generator sort in creation
// order. Within a single millisecond the sequence breaks ties.
type SortKeyGenerator struct {
	seq   *Sequence
	clock func() time.Time
	rand  func() [4]byte
}

// NewSortKeyGenerator returns a generator drawing from seq. A nil seq gets
// a private Sequence; a nil clock uses time.Now.
func NewSortKeyGenerator(seq *Sequence, clock func() time.Time) *SortKeyGenerator {
	if seq == nil {
		seq = &Sequence{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &SortKeyGenerator{seq: seq, clock: clock, rand: randomSuffix}
}

// Next returns a new sort key stamped with the generator's clock.
func (g *SortKeyGenerator) Next() string {
	return g.At(g.clock())
}

// At returns a new sort key for the given commit time.
func (g *SortKeyGenerator) At(t time.Time) string {
	r := g.rand()
	return fmt.Sprintf("%013d-%016x-%s", t.UnixMilli(), g.seq.Next(), hex.EncodeToString(r[:]))
}

func randomSuffix() [4]byte {
	u := uuid.New()
	var out [4]byte
	copy(out[:], u[len(u)-4:])
	return out
}
