// Package kafka publishes committed ledger changes and reservation events to
// a Kafka topic. Messages are keyed by workspace ID so every workspace's
// events land on one partition in commit order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	skafka "github.com/segmentio/kafka-go"

	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/plugin"
	"github.com/xraph/creditledger/reservation"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Publisher)(nil)
	_ plugin.OnShutdown            = (*Publisher)(nil)
	_ plugin.OnCommitted           = (*Publisher)(nil)
	_ plugin.OnReserved            = (*Publisher)(nil)
	_ plugin.OnReservationSettled  = (*Publisher)(nil)
	_ plugin.OnReservationRefunded = (*Publisher)(nil)
)

// Event types, carried in the "event" message header.
const (
	EventCommitted           = "ledger.committed"
	EventReservationPlaced   = "reservation.placed"
	EventReservationSettled  = "reservation.settled"
	EventReservationRefunded = "reservation.refunded"
)

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// CommittedEvent is the payload of a ledger.committed message: one
// workspace's share of a commit.
type CommittedEvent struct {
	RequestID   string          `json:"request_id"`
	WorkspaceID string          `json:"workspace_id"`
	Balance     int64           `json:"balance"`
	Version     int64           `json:"version"`
	Records     []*audit.Record `json:"records"`
}

// ReservationEvent is the payload of reservation messages.
type ReservationEvent struct {
	ReservationID string `json:"reservation_id"`
	WorkspaceID   string `json:"workspace_id"`
	AgentID       string `json:"agent_id,omitempty"`
	Amount        int64  `json:"amount"`
	Actual        *int64 `json:"actual,omitempty"`
	Delta         *int64 `json:"delta,omitempty"`
}

// Publisher is a ledger plugin that writes events to Kafka.
type Publisher struct {
	writer Writer
	clock  func() time.Time
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// WithClock sets the clock used for message timestamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Publisher) { p.clock = clock }
}

// New creates a Publisher writing to topic on the given brokers.
func New(brokers []string, topic string, opts ...Option) *Publisher {
	w := &skafka.Writer{
		Addr:         skafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireAll,
	}
	return NewWithWriter(w, opts...)
}

// NewWithWriter creates a Publisher over an existing writer.
func NewWithWriter(w Writer, opts ...Option) *Publisher {
	p := &Publisher{
		writer: w,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "kafka-publisher" }

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(_ context.Context) error {
	return p.writer.Close()
}

// OnCommitted writes one message per workspace in the commit. The batch is
// written in a single call.
func (p *Publisher) OnCommitted(ctx context.Context, requestID string, balances []*balance.Balance, records []*audit.Record) error {
	byWorkspace := make(map[string][]*audit.Record, len(balances))
	for _, r := range records {
		byWorkspace[r.WorkspaceID] = append(byWorkspace[r.WorkspaceID], r)
	}

	msgs := make([]skafka.Message, 0, len(balances))
	for _, b := range balances {
		msg, err := p.message(EventCommitted, b.WorkspaceID, CommittedEvent{
			RequestID:   requestID,
			WorkspaceID: b.WorkspaceID,
			Balance:     b.Amount,
			Version:     b.Version,
			Records:     byWorkspace[b.WorkspaceID],
		})
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return p.write(ctx, EventCommitted, msgs...)
}

// OnReserved implements plugin.OnReserved.
func (p *Publisher) OnReserved(ctx context.Context, r *reservation.Reservation) error {
	return p.publishReservation(ctx, EventReservationPlaced, r, nil, nil)
}

// OnReservationSettled implements plugin.OnReservationSettled.
func (p *Publisher) OnReservationSettled(ctx context.Context, r *reservation.Reservation, actual, delta int64) error {
	return p.publishReservation(ctx, EventReservationSettled, r, &actual, &delta)
}

// OnReservationRefunded implements plugin.OnReservationRefunded.
func (p *Publisher) OnReservationRefunded(ctx context.Context, r *reservation.Reservation) error {
	return p.publishReservation(ctx, EventReservationRefunded, r, nil, nil)
}

func (p *Publisher) publishReservation(ctx context.Context, event string, r *reservation.Reservation, actual, delta *int64) error {
	msg, err := p.message(event, r.WorkspaceID, ReservationEvent{
		ReservationID: r.ID.String(),
		WorkspaceID:   r.WorkspaceID,
		AgentID:       r.AgentID,
		Amount:        r.Amount,
		Actual:        actual,
		Delta:         delta,
	})
	if err != nil {
		return err
	}
	return p.write(ctx, event, msg)
}

func (p *Publisher) message(event, key string, payload any) (skafka.Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return skafka.Message{}, fmt.Errorf("kafka: marshal %s: %w", event, err)
	}
	return skafka.Message{
		Key:     []byte(key),
		Value:   b,
		Time:    p.clock().UTC(),
		Headers: []skafka.Header{{Key: "event", Value: []byte(event)}},
	}, nil
}

func (p *Publisher) write(ctx context.Context, event string, msgs ...skafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("kafka write failed", "event", event, "messages", len(msgs), "error", err)
		return fmt.Errorf("kafka: write %s: %w", event, err)
	}
	return nil
}
