package creditledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/entry"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/pricing"
	"github.com/xraph/creditledger/reservation"
	"github.com/xraph/creditledger/spendlimit"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// ReserveRequest describes an operation whose cost is not yet known.
type ReserveRequest struct {
	WorkspaceID    string
	AgentID        string
	ConversationID string
	Source         entry.Source
	Supplier       string
	Model          string
	// Estimated is the amount to hold, in nanos.
	Estimated int64
	// Mode marks operations the workspace is not charged for.
	Mode reservation.ChargeMode
	// RequestID is stamped on the hold's audit record. It defaults to the
	// reservation ID.
	RequestID string
}

// Reserve places a hold of req.Estimated on the workspace.
//
// Non-chargeable modes return a sentinel reservation without consulting
// the gate or the store. Otherwise the spending limit gate runs first; a
// rejection returns *SpendingLimitExceededError and writes nothing. A
// passing check writes the reservation, debits the hold from the balance
// and records the hold in the audit trail, all in one atomic update.
// When the gate enforces a balance floor it is checked again inside that
// update against the balance being written, so concurrent reservations
// cannot jointly cross it.
func (l *Ledger) Reserve(ctx context.Context, req ReserveRequest) (*reservation.Reservation, error) {
	if sid, ok := req.Mode.Sentinel(); ok {
		return &reservation.Reservation{
			ID:             sid,
			WorkspaceID:    req.WorkspaceID,
			AgentID:        req.AgentID,
			ConversationID: req.ConversationID,
			Source:         req.Source,
			Supplier:       req.Supplier,
			Model:          req.Model,
		}, nil
	}

	if err := validateReserve(req); err != nil {
		return nil, err
	}

	res, err := l.gate.Check(ctx, req.WorkspaceID, req.AgentID, req.Estimated)
	if err != nil {
		return nil, fmt.Errorf("creditledger: spending limit check: %w", err)
	}
	if !res.Passed {
		return nil, l.limitExceeded(ctx, req, res.FailedLimits)
	}
	floor, hasFloor := spendlimit.FloorOf(l.gate, req.WorkspaceID)

	now := l.clock()
	rsv := &reservation.Reservation{
		ID:             reservation.ID(id.NewReservationID().String()),
		WorkspaceID:    req.WorkspaceID,
		AgentID:        req.AgentID,
		ConversationID: req.ConversationID,
		Source:         req.Source,
		Supplier:       req.Supplier,
		Model:          req.Model,
		Amount:         req.Estimated,
		CreatedAt:      now.UTC(),
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = rsv.ID.String()
	}

	bk := balance.Key(req.WorkspaceID)
	rk := reservation.Key(rsv.ID)
	ak := audit.Key(req.WorkspaceID, l.sortKeys.At(now))
	keys := map[string]types.Key{
		bk.String(): bk,
		rk.String(): rk,
		ak.String(): ak,
	}

	hold := entry.Entry{
		WorkspaceID:    rsv.WorkspaceID,
		AgentID:        rsv.AgentID,
		ConversationID: rsv.ConversationID,
		Source:         rsv.Source,
		Supplier:       rsv.Supplier,
		Model:          rsv.Model,
		Description:    "reservation hold " + rsv.ID.String(),
		Amount:         -rsv.Amount,
	}

	_, err = l.store.AtomicUpdate(ctx, keys, func(fetched map[string]store.Record) ([]store.Record, error) {
		rec, ok := fetched[bk.String()]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, req.WorkspaceID)
		}
		cur, ok := rec.(*balance.Balance)
		if !ok {
			return nil, fmt.Errorf("%w: balance of %s has type %T", ErrInvariantViolation, req.WorkspaceID, rec)
		}
		if _, exists := fetched[rk.String()]; exists {
			return nil, fmt.Errorf("%w: reservation %s already exists", ErrStorageConflict, rsv.ID)
		}

		r := audit.New(hold, requestID, ak.SortKey, cur.Amount, now)
		if hasFloor && r.BalanceAfter < floor {
			return nil, &SpendingLimitExceededError{
				WorkspaceID: req.WorkspaceID,
				AgentID:     req.AgentID,
				Estimated:   req.Estimated,
				FailedLimits: []spendlimit.Limit{{
					Kind:      spendlimit.KindBalanceFloor,
					Scope:     req.WorkspaceID,
					Threshold: floor,
					Attempted: r.BalanceAfter,
				}},
			}
		}
		next := *cur
		next.Amount = r.BalanceAfter
		next.Version = cur.Version + 1
		next.Touch(now)

		stored := *rsv
		return []store.Record{&next, r, &stored}, nil
	})
	var limitErr *SpendingLimitExceededError
	if errors.As(err, &limitErr) {
		return nil, l.limitExceeded(ctx, req, limitErr.FailedLimits)
	}
	if err != nil {
		return nil, err
	}

	l.logger.Info("reservation placed",
		"reservation_id", rsv.ID,
		"workspace_id", rsv.WorkspaceID,
		"amount", rsv.Amount,
	)
	l.plugins.EmitReserved(ctx, rsv)

	return rsv, nil
}

// Settle finalizes a reservation once the actual usage is known. It prices
// the usage, removes the reservation and pushes one entry of
// reserved-actual into buf: a debit when usage exceeded the estimate, a
// credit when it fell short. It never commits.
//
// Sentinel reservations are a no-op. A reservation that no longer exists
// has already been finalized; that is logged and treated as success.
func (l *Ledger) Settle(ctx context.Context, buf *entry.Buffer, rid reservation.ID, usage pricing.Usage) error {
	if rid.IsSentinel() {
		return nil
	}
	if buf == nil {
		return ValidationError{Field: "buffer", Message: "required"}
	}

	_, err := l.store.GetReservation(ctx, rid)
	if errors.Is(err, ErrReservationNotFound) {
		l.reservationMissing(ctx, rid, "settle")
		return nil
	}
	if err != nil {
		return err
	}

	actual, err := l.pricing.Price(ctx, usage)
	if err != nil {
		return fmt.Errorf("creditledger: price usage for %s: %w", rid, err)
	}
	if actual < 0 {
		return fmt.Errorf("%w: negative price %d for %s", ErrInvalidInput, actual, rid)
	}

	taken, err := l.store.TakeReservation(ctx, rid)
	if errors.Is(err, ErrReservationNotFound) {
		l.reservationMissing(ctx, rid, "settle")
		return nil
	}
	if err != nil {
		return err
	}

	delta := actual - taken.Amount
	buf.Add(entry.Entry{
		WorkspaceID:    taken.WorkspaceID,
		AgentID:        taken.AgentID,
		ConversationID: taken.ConversationID,
		Source:         firstSource(usage.Source, taken.Source),
		Supplier:       firstNonEmpty(usage.Supplier, taken.Supplier),
		Model:          firstNonEmpty(usage.Model, taken.Model),
		ToolCall:       usage.ToolCall,
		Description:    firstNonEmpty(usage.Description, "reservation settle "+rid.String()),
		Amount:         -delta,
	})

	l.logger.Info("reservation settled",
		"reservation_id", rid,
		"workspace_id", taken.WorkspaceID,
		"reserved", taken.Amount,
		"actual", actual,
		"delta", delta,
	)
	l.plugins.EmitReservationSettled(ctx, taken, actual, delta)

	return nil
}

// Refund releases a reservation whose operation did not complete, pushing
// a credit of the whole reserved amount into buf. Sentinels and missing
// reservations are a no-op.
func (l *Ledger) Refund(ctx context.Context, buf *entry.Buffer, rid reservation.ID) error {
	if rid.IsSentinel() {
		return nil
	}
	if buf == nil {
		return ValidationError{Field: "buffer", Message: "required"}
	}

	taken, err := l.store.TakeReservation(ctx, rid)
	if errors.Is(err, ErrReservationNotFound) {
		l.reservationMissing(ctx, rid, "refund")
		return nil
	}
	if err != nil {
		return err
	}

	buf.Add(entry.Entry{
		WorkspaceID:    taken.WorkspaceID,
		AgentID:        taken.AgentID,
		ConversationID: taken.ConversationID,
		Source:         firstSource(taken.Source, entry.SourceTextGeneration),
		Supplier:       taken.Supplier,
		Model:          taken.Model,
		Description:    "reservation refund " + rid.String(),
		Amount:         taken.Amount,
	})

	l.logger.Info("reservation refunded",
		"reservation_id", rid,
		"workspace_id", taken.WorkspaceID,
		"amount", taken.Amount,
	)
	l.plugins.EmitReservationRefunded(ctx, taken)

	return nil
}

func (l *Ledger) limitExceeded(ctx context.Context, req ReserveRequest, failed []spendlimit.Limit) error {
	l.logger.Warn("spending limit exceeded",
		"workspace_id", req.WorkspaceID,
		"agent_id", req.AgentID,
		"estimated", req.Estimated,
		"failed_limits", len(failed),
	)
	l.plugins.EmitSpendingLimitExceeded(ctx, req.WorkspaceID, req.AgentID, req.Estimated, failed)
	return &SpendingLimitExceededError{
		WorkspaceID:  req.WorkspaceID,
		AgentID:      req.AgentID,
		Estimated:    req.Estimated,
		FailedLimits: failed,
	}
}

func (l *Ledger) reservationMissing(ctx context.Context, rid reservation.ID, op string) {
	l.logger.Warn("reservation not found, treating as already finalized",
		"reservation_id", rid,
		"operation", op,
	)
	l.plugins.EmitReservationMissing(ctx, rid, op)
}

func validateReserve(req ReserveRequest) error {
	if strings.TrimSpace(req.WorkspaceID) == "" {
		return ValidationError{Field: "workspace_id", Message: "required"}
	}
	if req.Estimated <= 0 {
		return ValidationError{Field: "estimated", Message: "must be positive"}
	}
	if !req.Source.Valid() {
		return ValidationError{Field: "source", Message: fmt.Sprintf("unknown source %q", req.Source)}
	}
	return nil
}

func firstSource(a, b entry.Source) entry.Source {
	if a.Valid() {
		return a
	}
	return b
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
