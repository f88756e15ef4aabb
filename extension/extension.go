// Package extension provides the Forge extension adapter for the credit
// ledger.
//
// It implements the forge.Extension interface to integrate the ledger
// into a Forge application with store construction from configuration,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.creditledger" or
// "creditledger" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	ledger "github.com/xraph/creditledger"
	"github.com/xraph/creditledger/config"
	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/stream/kafka"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "creditledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Atomic credit ledger with reserve/settle/refund"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the credit ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *ledger.Ledger
	store      store.Store
	ledgerOpts []ledger.Option
}

// New creates a new credit ledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *ledger.Ledger { return e.engine }

// Register implements [forge.Extension]. It loads configuration, opens the
// store, builds the ledger and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(context.Background()); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*ledger.Ledger, error) {
		return e.engine, nil
	})
}

// build opens the configured store and constructs the engine.
func (e *Extension) build(ctx context.Context) error {
	if e.store == nil {
		s, err := openStore(ctx, e.config, slog.Default())
		if err != nil {
			return err
		}
		e.store = s
	}

	opts, err := e.buildLedgerOpts()
	if err != nil {
		return err
	}

	e.engine = ledger.New(e.store, opts...)
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("creditledger: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("creditledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs ledger.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() ([]ledger.Option, error) {
	opts := make([]ledger.Option, 0, len(e.ledgerOpts)+3)

	if e.config.PolicyFile != "" {
		policy, err := config.Load(e.config.PolicyFile)
		if err != nil {
			return nil, err
		}
		table, err := policy.PricingTable()
		if err != nil {
			return nil, err
		}
		rules, err := policy.SpendingRules(e.store)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ledger.WithPricingOracle(table), ledger.WithSpendingLimitGate(rules))
	}

	if len(e.config.KafkaBrokers) > 0 {
		if e.config.KafkaTopic == "" {
			return nil, fmt.Errorf("creditledger: kafka_brokers set without kafka_topic")
		}
		opts = append(opts, ledger.WithPlugin(kafka.New(e.config.KafkaBrokers, e.config.KafkaTopic)))
	}

	// Pass-through options last so they override config-derived ones.
	opts = append(opts, e.ledgerOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("creditledger: configuration is required but not found in config files; " +
				"ensure 'extensions.creditledger' or 'creditledger' key exists in your config")
		}

		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("creditledger: configuration loaded",
		forge.F("driver", e.config.Driver),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("commit_max_attempts", e.config.CommitMaxAttempts),
		forge.F("policy_file", e.config.PolicyFile),
		forge.F("kafka_topic", e.config.KafkaTopic),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.creditledger", "creditledger"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("creditledger: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("creditledger: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.Database == "" {
		cfg.Database = defaults.Database
	}
	if cfg.CommitMaxAttempts == 0 {
		cfg.CommitMaxAttempts = defaults.CommitMaxAttempts
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.Driver == "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.DSN == "" {
		yamlConfig.DSN = programmaticConfig.DSN
	}
	if yamlConfig.Database == "" {
		yamlConfig.Database = programmaticConfig.Database
	}
	if yamlConfig.RedisPrefix == "" {
		yamlConfig.RedisPrefix = programmaticConfig.RedisPrefix
	}
	if yamlConfig.PolicyFile == "" {
		yamlConfig.PolicyFile = programmaticConfig.PolicyFile
	}
	if len(yamlConfig.KafkaBrokers) == 0 {
		yamlConfig.KafkaBrokers = programmaticConfig.KafkaBrokers
	}
	if yamlConfig.KafkaTopic == "" {
		yamlConfig.KafkaTopic = programmaticConfig.KafkaTopic
	}
	if yamlConfig.CommitMaxAttempts == 0 {
		yamlConfig.CommitMaxAttempts = programmaticConfig.CommitMaxAttempts
	}

	return mergeWithDefaults(yamlConfig)
}
