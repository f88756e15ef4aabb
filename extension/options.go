package extension

import (
	ledger "github.com/xraph/creditledger"
	"github.com/xraph/creditledger/observability"
	"github.com/xraph/creditledger/plugin"
	"github.com/xraph/creditledger/store"
)

// Option configures the credit ledger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine. It takes precedence over
// Config.Driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a ledger.Option through to the underlying engine.
func WithLedgerOption(opt ledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, ledger.WithPlugin(p))
	}
}

// WithMetrics registers the metrics plugin over factory.
func WithMetrics(factory observability.MetricFactory) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, ledger.WithPlugin(observability.NewMetricsExtension(factory)))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDriver selects the store backend and its connection string.
func WithDriver(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.Driver = driver
		e.config.DSN = dsn
	}
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithCommitMaxAttempts bounds retries of conflicting atomic updates.
func WithCommitMaxAttempts(n int) Option {
	return func(e *Extension) { e.config.CommitMaxAttempts = n }
}

// WithPolicyFile loads pricing and spending limits from a YAML file.
func WithPolicyFile(path string) Option {
	return func(e *Extension) { e.config.PolicyFile = path }
}

// WithKafka publishes ledger events to topic.
func WithKafka(brokers []string, topic string) Option {
	return func(e *Extension) {
		e.config.KafkaBrokers = brokers
		e.config.KafkaTopic = topic
	}
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
