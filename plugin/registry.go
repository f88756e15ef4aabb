package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/reservation"
	"github.com/xraph/creditledger/spendlimit"
)

// DefaultTimeout bounds how long a single hook may run.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                  []OnInit
	onShutdown              []OnShutdown
	onCommitted             []OnCommitted
	onCommitFailed          []OnCommitFailed
	onReserved              []OnReserved
	onSpendingLimitExceeded []OnSpendingLimitExceeded
	onReservationSettled    []OnReservationSettled
	onReservationRefunded   []OnReservationRefunded
	onReservationMissing    []OnReservationMissing
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnCommitted); ok {
		r.onCommitted = append(r.onCommitted, v)
	}
	if v, ok := p.(OnCommitFailed); ok {
		r.onCommitFailed = append(r.onCommitFailed, v)
	}
	if v, ok := p.(OnReserved); ok {
		r.onReserved = append(r.onReserved, v)
	}
	if v, ok := p.(OnSpendingLimitExceeded); ok {
		r.onSpendingLimitExceeded = append(r.onSpendingLimitExceeded, v)
	}
	if v, ok := p.(OnReservationSettled); ok {
		r.onReservationSettled = append(r.onReservationSettled, v)
	}
	if v, ok := p.(OnReservationRefunded); ok {
		r.onReservationRefunded = append(r.onReservationRefunded, v)
	}
	if v, ok := p.(OnReservationMissing); ok {
		r.onReservationMissing = append(r.onReservationMissing, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnCommitted)(nil)).Elem(), "OnCommitted")
	checkInterface(reflect.TypeOf((*OnCommitFailed)(nil)).Elem(), "OnCommitFailed")
	checkInterface(reflect.TypeOf((*OnReserved)(nil)).Elem(), "OnReserved")
	checkInterface(reflect.TypeOf((*OnSpendingLimitExceeded)(nil)).Elem(), "OnSpendingLimitExceeded")
	checkInterface(reflect.TypeOf((*OnReservationSettled)(nil)).Elem(), "OnReservationSettled")
	checkInterface(reflect.TypeOf((*OnReservationRefunded)(nil)).Elem(), "OnReservationRefunded")
	checkInterface(reflect.TypeOf((*OnReservationMissing)(nil)).Elem(), "OnReservationMissing")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnInit", p.Name(), func() error {
			return p.OnInit(ctx, ledger)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnShutdown", p.Name(), func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitCommitted calls OnCommitted for all plugins that implement it.
func (r *Registry) EmitCommitted(ctx context.Context, requestID string, balances []*balance.Balance, records []*audit.Record) {
	r.mu.RLock()
	plugins := r.onCommitted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnCommitted", p.Name(), func() error {
			return p.OnCommitted(ctx, requestID, balances, records)
		})
	}
}

// EmitCommitFailed calls OnCommitFailed for all plugins that implement it.
func (r *Registry) EmitCommitFailed(ctx context.Context, requestID string, workspaceIDs []string, cause error) {
	r.mu.RLock()
	plugins := r.onCommitFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnCommitFailed", p.Name(), func() error {
			return p.OnCommitFailed(ctx, requestID, workspaceIDs, cause)
		})
	}
}

// EmitReserved calls OnReserved for all plugins that implement it.
func (r *Registry) EmitReserved(ctx context.Context, rsv *reservation.Reservation) {
	r.mu.RLock()
	plugins := r.onReserved
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnReserved", p.Name(), func() error {
			return p.OnReserved(ctx, rsv)
		})
	}
}

// EmitSpendingLimitExceeded calls OnSpendingLimitExceeded for all plugins that implement it.
func (r *Registry) EmitSpendingLimitExceeded(ctx context.Context, workspaceID, agentID string, estimated int64, failed []spendlimit.Limit) {
	r.mu.RLock()
	plugins := r.onSpendingLimitExceeded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnSpendingLimitExceeded", p.Name(), func() error {
			return p.OnSpendingLimitExceeded(ctx, workspaceID, agentID, estimated, failed)
		})
	}
}

// EmitReservationSettled calls OnReservationSettled for all plugins that implement it.
func (r *Registry) EmitReservationSettled(ctx context.Context, rsv *reservation.Reservation, actual, delta int64) {
	r.mu.RLock()
	plugins := r.onReservationSettled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnReservationSettled", p.Name(), func() error {
			return p.OnReservationSettled(ctx, rsv, actual, delta)
		})
	}
}

// EmitReservationRefunded calls OnReservationRefunded for all plugins that implement it.
func (r *Registry) EmitReservationRefunded(ctx context.Context, rsv *reservation.Reservation) {
	r.mu.RLock()
	plugins := r.onReservationRefunded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnReservationRefunded", p.Name(), func() error {
			return p.OnReservationRefunded(ctx, rsv)
		})
	}
}

// EmitReservationMissing calls OnReservationMissing for all plugins that implement it.
func (r *Registry) EmitReservationMissing(ctx context.Context, id reservation.ID, op string) {
	r.mu.RLock()
	plugins := r.onReservationMissing
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnReservationMissing", p.Name(), func() error {
			return p.OnReservationMissing(ctx, id, op)
		})
	}
}

// dispatch runs one hook and logs its failure. Hooks never fail the
// operation that triggered them.
func (r *Registry) dispatch(ctx context.Context, hook, pluginName string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
