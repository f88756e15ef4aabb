// Package retry decorates a store.Store so that AtomicUpdate is retried
// with exponential backoff when the backend reports a storage conflict.
//
// Every attempt refetches state and calls the update function again, which
// is safe because update functions are pure.
package retry

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cenkalti/backoff/v5"

	ledger "github.com/xraph/creditledger"
	ledgerstore "github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/types"
)

// DefaultMaxAttempts bounds the number of AtomicUpdate attempts.
const DefaultMaxAttempts = 5

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store wraps another store. All methods except AtomicUpdate pass through.
type Store struct {
	ledgerstore.Store

	maxAttempts uint
	newBackOff  func() backoff.BackOff
	logger      *slog.Logger
}

// Option configures a retrying Store.
type Option func(*Store)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n uint) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackOff sets the backoff policy factory. A fresh policy is built for
// each AtomicUpdate call.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(s *Store) { s.newBackOff = f }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New wraps inner.
func New(inner ledgerstore.Store, opts ...Option) *Store {
	s := &Store{
		Store:       inner,
		maxAttempts: DefaultMaxAttempts,
		newBackOff:  func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Unwrap returns the decorated store.
func (s *Store) Unwrap() ledgerstore.Store { return s.Store }

// AtomicUpdate retries the inner AtomicUpdate on ledger.ErrStorageConflict.
// Any other error, including one returned by fn, is returned at once.
func (s *Store) AtomicUpdate(ctx context.Context, keys map[string]types.Key, fn ledgerstore.UpdateFunc) ([]ledgerstore.Record, error) {
	attempt := 0
	op := func() ([]ledgerstore.Record, error) {
		attempt++
		recs, err := s.Store.AtomicUpdate(ctx, keys, fn)
		if err == nil {
			return recs, nil
		}
		if !ledger.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		s.logger.Debug("atomic update conflict, retrying",
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"error", err,
		)
		return nil, err
	}

	recs, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.maxAttempts),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if err != nil && ledger.IsRetryable(err) {
		s.logger.Warn("atomic update conflict persisted",
			"attempts", attempt,
			"error", err,
		)
	}
	return recs, err
}
