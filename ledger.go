package creditledger

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/plugin"
	"github.com/xraph/creditledger/pricing"
	"github.com/xraph/creditledger/reservation"
	"github.com/xraph/creditledger/spendlimit"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// Ledger is the credit ledger engine. It commits buffered entries and runs
// the reserve/settle/refund protocol against a store.Store.
//
// A Ledger holds no per-request state and is safe for concurrent use.
// Buffers are owned by the caller.
type Ledger struct {
	store    store.Store
	pricing  pricing.Oracle
	gate     spendlimit.Gate
	seq      *id.Sequence
	sortKeys *id.SortKeyGenerator
	clock    func() time.Time
	plugins  *plugin.Registry
	logger   *slog.Logger
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   s,
		pricing: pricing.Reported(),
		gate:    spendlimit.AllowAll,
		seq:     id.NewSequence(0),
		clock:   time.Now,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.sortKeys = id.NewSortKeyGenerator(l.seq, l.clock)
	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPricingOracle sets the oracle used by Settle. The default trusts
// provider-reported costs only.
func WithPricingOracle(o pricing.Oracle) Option {
	return func(l *Ledger) { l.pricing = o }
}

// WithSpendingLimitGate sets the gate consulted by Reserve. The default
// allows everything.
func WithSpendingLimitGate(g spendlimit.Gate) Option {
	return func(l *Ledger) { l.gate = g }
}

// WithSequence shares a sort-key sequence between ledgers in one process.
func WithSequence(seq *id.Sequence) Option {
	return func(l *Ledger) {
		if seq != nil {
			l.seq = seq
		}
	}
}

// WithClock overrides the clock used for timestamps and sort keys.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("credit ledger started",
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (l *Ledger) Stop() error {
	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// ──────────────────────────────────────────────────
// Workspaces
// ──────────────────────────────────────────────────

// OpenWorkspace creates a workspace balance with an opening amount in
// nanos. The audit trail starts from this balance.
func (l *Ledger) OpenWorkspace(ctx context.Context, workspaceID string, initial int64) (*balance.Balance, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return nil, ValidationError{Field: "workspace_id", Message: "required"}
	}

	b := &balance.Balance{
		Entity:      types.NewEntity(l.clock()),
		WorkspaceID: workspaceID,
		Amount:      initial,
		Version:     1,
	}
	if err := l.store.CreateBalance(ctx, b); err != nil {
		return nil, err
	}

	l.logger.Info("workspace opened",
		"workspace_id", workspaceID,
		"balance", types.FormatUnits(initial),
	)
	return b, nil
}

// Balance returns a workspace's current balance.
func (l *Ledger) Balance(ctx context.Context, workspaceID string) (*balance.Balance, error) {
	return l.store.GetBalance(ctx, workspaceID)
}

// AuditTrail pages through a workspace's audit records in sort-key order.
func (l *Ledger) AuditTrail(ctx context.Context, workspaceID string, opts audit.ListOpts) ([]*audit.Record, error) {
	return l.store.ListAuditRecords(ctx, workspaceID, opts)
}

// ListReservations returns the open reservations of a workspace.
func (l *Ledger) ListReservations(ctx context.Context, workspaceID string) ([]*reservation.Reservation, error) {
	return l.store.ListReservations(ctx, workspaceID)
}
