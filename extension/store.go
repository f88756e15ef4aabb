package extension

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/creditledger/store"
	"github.com/xraph/creditledger/store/memory"
	"github.com/xraph/creditledger/store/mongo"
	"github.com/xraph/creditledger/store/postgres"
	"github.com/xraph/creditledger/store/redis"
	"github.com/xraph/creditledger/store/retry"
	"github.com/xraph/creditledger/store/sqlite"
)

// openStore builds the store named by cfg.Driver and wraps it in the
// conflict-retrying decorator unless retries are disabled.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, error) {
	s, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CommitMaxAttempts <= 1 {
		return s, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return retry.New(s,
		retry.WithMaxAttempts(uint(cfg.CommitMaxAttempts)),
		retry.WithLogger(logger),
	), nil
}

func openBackend(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return memory.New(), nil

	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("creditledger: driver %q requires a dsn", cfg.Driver)
		}
		drv := pgdriver.New()
		if err := drv.Open(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("creditledger: open postgres: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("creditledger: open postgres: %w", err)
		}
		return postgres.New(db), nil

	case DriverSQLite:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("creditledger: driver %q requires a dsn", cfg.Driver)
		}
		drv := sqlitedriver.New()
		if err := drv.Open(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("creditledger: open sqlite: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("creditledger: open sqlite: %w", err)
		}
		return sqlite.New(db), nil

	case DriverMongo:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("creditledger: driver %q requires a dsn", cfg.Driver)
		}
		drv := mongodriver.New()
		if err := drv.Open(ctx, cfg.DSN, mongodriver.WithDatabase(cfg.Database)); err != nil {
			return nil, fmt.Errorf("creditledger: open mongo: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("creditledger: open mongo: %w", err)
		}
		return mongo.New(db), nil

	case DriverRedis:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("creditledger: driver %q requires a dsn", cfg.Driver)
		}
		opts, err := goredis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("creditledger: parse redis url: %w", err)
		}
		var ropts []redis.Option
		if cfg.RedisPrefix != "" {
			ropts = append(ropts, redis.WithKeyPrefix(cfg.RedisPrefix))
		}
		return redis.New(goredis.NewClient(opts), ropts...), nil
	}

	return nil, fmt.Errorf("creditledger: unknown store driver %q", cfg.Driver)
}
