package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/artpar/awsapigw/adapters/awsapigw"
	"github.com/artpar/awsapigw/adapters/clock"
	"github.com/artpar/awsapigw/adapters/memory"
	"github.com/artpar/awsapigw/adapters/postgres"
	"github.com/artpar/awsapigw/adapters/redis"
	"github.com/artpar/awsapigw/adapters/remote"
	"github.com/artpar/awsapigw/adapters/sqlite"
	"github.com/artpar/awsapigw/app"
	"github.com/artpar/awsapigw/config"
	"github.com/artpar/awsapigw/ports"
)

// OpenRecordStore connects the configured database and applies migrations.
// The returned func closes the underlying connection.
func OpenRecordStore(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (ports.RecordStore, func() error, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Str("dsn", cfg.DSN).Msg("sqlite record store ready")
		return sqlite.NewRecordStore(db), db.Close, nil

	case "postgres":
		opts := postgres.DefaultPoolOptions()
		if cfg.MaxOpenConns > 0 {
			opts.MaxOpenConns = cfg.MaxOpenConns
		}
		if cfg.MaxIdleConns > 0 {
			opts.MaxIdleConns = cfg.MaxIdleConns
		}
		if cfg.ConnMaxLifetime > 0 {
			opts.ConnMaxLifetime = cfg.ConnMaxLifetime
		}

		db, err := postgres.Open(ctx, cfg.DSN, opts)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		if cfg.ParentTable != "" {
			if err := db.EnsureParentForeignKey(ctx, cfg.ParentTable); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("parent foreign key: %w", err)
			}
			logger.Info().Str("parent_table", cfg.ParentTable).Msg("records cascade with parent services")
		}
		logger.Info().Msg("postgres record store ready")
		return postgres.NewRecordStore(db), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// newKeyServiceFactory builds the gateway client factory for the configured mode.
func newKeyServiceFactory(cfg config.KeyServiceConfig) (ports.KeyServiceFactory, error) {
	switch cfg.Mode {
	case "aws":
		return awsapigw.NewFactory(awsapigw.Config{
			RatePerSec:       cfg.RateLimitPerSec,
			Burst:            cfg.Burst,
			RetryMaxAttempts: cfg.RetryMaxAttempts,
			Timeout:          cfg.Timeout,
		}), nil
	case "remote":
		return remote.NewFactory(cfg.EndpointURL, cfg.Timeout), nil
	case "memory":
		return memory.NewFactory(), nil
	default:
		return nil, fmt.Errorf("unsupported key service mode %q", cfg.Mode)
	}
}

// wireCache sets the key state cache and the create lock on deps.
// The returned closer is nil when nothing needs closing.
func wireCache(ctx context.Context, cfg *config.Config, deps *app.LifecycleDeps, logger zerolog.Logger) (func() error, error) {
	lockEnabled := cfg.Provisioning.CreateLock.Enabled

	if !cfg.Cache.Enabled {
		if lockEnabled {
			deps.Lock = memory.NewCreateLock(clock.UTC{})
			logger.Info().Msg("create lock held in process")
		}
		return nil, nil
	}

	client, err := redis.Connect(ctx, redis.Options{
		Host:       cfg.Cache.Host,
		Port:       cfg.Cache.Port,
		DB:         cfg.Cache.DBIndex,
		Password:   cfg.Cache.Auth,
		Timeout:    cfg.Cache.Timeout,
		PoolSize:   cfg.Cache.PoolSize,
		Persistent: cfg.Cache.PersistentConn,
	})
	if err != nil {
		return nil, err
	}

	deps.Cache = redis.NewCache(client, cfg.Cache.Prefix)
	if lockEnabled {
		deps.Lock = redis.NewLock(client, cfg.Cache.Prefix)
	}
	logger.Info().
		Str("host", cfg.Cache.Host).
		Int("db", cfg.Cache.DBIndex).
		Bool("create_lock", lockEnabled).
		Msg("redis key state cache ready")
	return client.Close, nil
}
