package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	ledger "github.com/xraph/creditledger"
	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/reservation"
	ledgerstore "github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store is an in-process implementation of store.Store. A single mutex
// serialises every AtomicUpdate, so the update function always sees a
// consistent snapshot. Records are copied on the way in and out.
type Store struct {
	mu     sync.RWMutex
	closed bool

	// Workspace balances
	balances map[string]*balance.Balance

	// Audit trail, by workspace then sort key
	audit map[string]map[string]*audit.Record

	// Open reservations
	reservations map[reservation.ID]*reservation.Reservation
}

func New() *Store {
	return &Store{
		balances:     make(map[string]*balance.Balance),
		audit:        make(map[string]map[string]*audit.Record),
		reservations: make(map[reservation.ID]*reservation.Reservation),
	}
}

// AtomicUpdate implements store.AtomicStore.
func (s *Store) AtomicUpdate(ctx context.Context, keys map[string]types.Key, fn ledgerstore.UpdateFunc) ([]ledgerstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ledger.ErrStoreClosed
	}

	fetched := make(map[string]ledgerstore.Record, len(keys))
	for handle, k := range keys {
		if r := s.lookup(k); r != nil {
			fetched[handle] = ledgerstore.Clone(r)
		}
	}

	writes, err := fn(fetched)
	if err != nil {
		return nil, err
	}

	if err := s.checkWrites(writes); err != nil {
		return nil, err
	}

	out := make([]ledgerstore.Record, len(writes))
	for i, w := range writes {
		s.apply(ledgerstore.Clone(w))
		out[i] = ledgerstore.Clone(w)
	}
	return out, nil
}

// lookup must be called with the lock held.
func (s *Store) lookup(k types.Key) ledgerstore.Record {
	switch k.Table {
	case types.TableBalances:
		if b, ok := s.balances[k.PrimaryKey]; ok {
			return b
		}
	case types.TableAudit:
		if r, ok := s.audit[k.PrimaryKey][k.SortKey]; ok {
			return r
		}
	case types.TableReservations:
		if r, ok := s.reservations[reservation.ID(k.PrimaryKey)]; ok {
			return r
		}
	}
	return nil
}

// checkWrites validates the whole batch before anything is applied.
func (s *Store) checkWrites(writes []ledgerstore.Record) error {
	seen := make(map[types.Key]struct{}, len(writes))
	for _, w := range writes {
		if err := ledgerstore.CheckWrite(w); err != nil {
			return err
		}
		k := w.RecordKey()
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s written twice", ledger.ErrStorageConflict, k)
		}
		seen[k] = struct{}{}

		switch v := w.(type) {
		case *balance.Balance:
			var stored int64
			if cur, ok := s.balances[v.WorkspaceID]; ok {
				stored = cur.Version
			}
			if stored != v.Version-1 {
				return fmt.Errorf("%w: balance %s at version %d, write expects %d",
					ledger.ErrStorageConflict, v.WorkspaceID, stored, v.Version-1)
			}
		default:
			if s.lookup(k) != nil {
				return fmt.Errorf("%w: %s already exists", ledger.ErrStorageConflict, k)
			}
		}
	}
	return nil
}

func (s *Store) apply(w ledgerstore.Record) {
	switch v := w.(type) {
	case *balance.Balance:
		s.balances[v.WorkspaceID] = v
	case *audit.Record:
		trail, ok := s.audit[v.WorkspaceID]
		if !ok {
			trail = make(map[string]*audit.Record)
			s.audit[v.WorkspaceID] = trail
		}
		trail[v.SortKey] = v
	case *reservation.Reservation:
		s.reservations[v.ID] = v
	}
}

// Balance Store implementation
func (s *Store) CreateBalance(_ context.Context, b *balance.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ledger.ErrStoreClosed
	}
	if _, exists := s.balances[b.WorkspaceID]; exists {
		return ledger.ErrWorkspaceExists
	}
	c := *b
	s.balances[b.WorkspaceID] = &c
	return nil
}

func (s *Store) GetBalance(_ context.Context, workspaceID string) (*balance.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ledger.ErrStoreClosed
	}
	if b, ok := s.balances[workspaceID]; ok {
		c := *b
		return &c, nil
	}
	return nil, ledger.ErrWorkspaceNotFound
}

// Audit Store implementation
func (s *Store) ListAuditRecords(_ context.Context, workspaceID string, opts audit.ListOpts) ([]*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ledger.ErrStoreClosed
	}

	trail := s.audit[workspaceID]
	keys := make([]string, 0, len(trail))
	for k := range trail {
		if k > opts.After {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	if opts.Limit > 0 && len(keys) > opts.Limit {
		keys = keys[:opts.Limit]
	}

	result := make([]*audit.Record, len(keys))
	for i, k := range keys {
		c := *trail[k]
		result[i] = &c
	}
	return result, nil
}

// Reservation Store implementation
func (s *Store) GetReservation(_ context.Context, rid reservation.ID) (*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ledger.ErrStoreClosed
	}
	if r, ok := s.reservations[rid]; ok {
		c := *r
		return &c, nil
	}
	return nil, ledger.ErrReservationNotFound
}

func (s *Store) TakeReservation(_ context.Context, rid reservation.ID) (*reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ledger.ErrStoreClosed
	}
	r, ok := s.reservations[rid]
	if !ok {
		return nil, ledger.ErrReservationNotFound
	}
	delete(s.reservations, rid)
	return r, nil
}

func (s *Store) ListReservations(_ context.Context, workspaceID string) ([]*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ledger.ErrStoreClosed
	}

	result := make([]*reservation.Reservation, 0)
	for _, r := range s.reservations {
		if r.WorkspaceID == workspaceID {
			c := *r
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
