package creditledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// CommitResult is what a commit wrote.
type CommitResult struct {
	RequestID string
	Balances  []*balance.Balance
	Records   []*audit.Record
}

// Commit applies every buffered entry in one atomic store update.
//
// Each workspace's balance moves by the sum of its entries and gets one
// audit record per entry. Records are produced by replaying the entries in
// insertion order from the fetched balance, so their before/after values
// chain into the new balance. If any workspace has no balance the whole
// commit fails with ErrWorkspaceNotFound and nothing is written.
//
// Commit does not retry. An empty buffer is a no-op that never touches the
// store. An empty requestID is replaced with a generated one.
func (l *Ledger) Commit(ctx context.Context, buf *entry.Buffer, requestID string) (*CommitResult, error) {
	if buf == nil || buf.IsEmpty() {
		return &CommitResult{RequestID: requestID}, nil
	}
	if requestID == "" {
		requestID = id.NewRequestID().String()
	}

	p, err := l.planCommit(buf, requestID)
	if err != nil {
		return nil, err
	}

	written, err := l.store.AtomicUpdate(ctx, p.keys, p.apply)
	if err != nil {
		l.logger.Error("ledger commit failed",
			"request_id", requestID,
			"workspaces", p.workspaces,
			"entries", buf.Len(),
			"error", err,
		)
		l.plugins.EmitCommitFailed(ctx, requestID, p.workspaces, err)
		return nil, err
	}

	res := &CommitResult{RequestID: requestID}
	for _, r := range written {
		switch v := r.(type) {
		case *balance.Balance:
			res.Balances = append(res.Balances, v)
		case *audit.Record:
			res.Records = append(res.Records, v)
		}
	}

	l.logger.Info("ledger committed",
		"request_id", requestID,
		"workspaces", len(res.Balances),
		"entries", len(res.Records),
	)
	l.plugins.EmitCommitted(ctx, requestID, res.Balances, res.Records)

	return res, nil
}

// commitPlan is everything a commit decides before touching the store. Its
// apply method depends only on the plan and the fetched records.
type commitPlan struct {
	requestID  string
	now        time.Time
	workspaces []string
	entries    map[string][]entry.Entry
	sums       map[string]int64
	sortKeys   map[string][]string
	keys       map[string]types.Key
}

func (l *Ledger) planCommit(buf *entry.Buffer, requestID string) (*commitPlan, error) {
	now := l.clock()
	p := &commitPlan{
		requestID:  requestID,
		now:        now,
		workspaces: buf.Workspaces(),
		entries:    make(map[string][]entry.Entry),
		sums:       make(map[string]int64),
		sortKeys:   make(map[string][]string),
		keys:       make(map[string]types.Key, buf.Len()+len(buf.Workspaces())),
	}

	for _, ws := range p.workspaces {
		if ws == "" {
			return nil, fmt.Errorf("%w: entry without workspace", ErrInvalidEntry)
		}
		entries := buf.Entries(ws)

		var sum int64
		keys := make([]string, len(entries))
		for i, e := range entries {
			if !e.Source.Valid() {
				return nil, fmt.Errorf("%w: workspace %s entry %d has unknown source %q", ErrInvalidEntry, ws, i, e.Source)
			}
			var ok bool
			if sum, ok = addChecked(sum, e.Amount); !ok {
				return nil, fmt.Errorf("%w: workspace %s amounts overflow", ErrInvalidEntry, ws)
			}
			keys[i] = l.sortKeys.At(now)

			k := audit.Key(ws, keys[i])
			p.keys[k.String()] = k
		}

		bk := balance.Key(ws)
		p.keys[bk.String()] = bk
		p.entries[ws] = entries
		p.sums[ws] = sum
		p.sortKeys[ws] = keys
	}

	return p, nil
}

func (p *commitPlan) apply(fetched map[string]store.Record) ([]store.Record, error) {
	out := make([]store.Record, 0, len(p.keys))

	for _, ws := range p.workspaces {
		rec, ok := fetched[balance.Key(ws).String()]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, ws)
		}
		cur, ok := rec.(*balance.Balance)
		if !ok {
			return nil, fmt.Errorf("%w: balance of %s has type %T", ErrInvariantViolation, ws, rec)
		}

		newBalance, ok := addChecked(cur.Amount, p.sums[ws])
		if !ok {
			return nil, fmt.Errorf("%w: balance of %s overflows", ErrInvalidEntry, ws)
		}
		next := *cur
		next.Amount = newBalance
		next.Version = cur.Version + 1
		next.Touch(p.now)
		out = append(out, &next)

		running := cur.Amount
		for i, e := range p.entries[ws] {
			k := audit.Key(ws, p.sortKeys[ws][i])
			if _, exists := fetched[k.String()]; exists {
				return nil, fmt.Errorf("%w: audit record %s already exists", ErrStorageConflict, k)
			}
			if _, ok := addChecked(running, e.Amount); !ok {
				return nil, fmt.Errorf("%w: balance of %s overflows", ErrInvalidEntry, ws)
			}
			r := audit.New(e, p.requestID, k.SortKey, running, p.now)
			running = r.BalanceAfter
			out = append(out, r)
		}

		if running != newBalance {
			return nil, fmt.Errorf("%w: workspace %s replay ends at %d, aggregate at %d",
				ErrInvariantViolation, ws, running, newBalance)
		}
	}

	return out, nil
}

func addChecked(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}
