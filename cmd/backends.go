package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kozaktomas/photo-faces/internal/config"
	"github.com/kozaktomas/photo-faces/internal/database"
	"github.com/kozaktomas/photo-faces/internal/database/dynamodb"
	"github.com/kozaktomas/photo-faces/internal/database/mariadb"
	"github.com/kozaktomas/photo-faces/internal/database/postgres"
	"github.com/kozaktomas/photo-faces/internal/database/redis"
	"github.com/kozaktomas/photo-faces/internal/web/handlers"
)

// backends holds the open store connections of one process.
type backends struct {
	pool    *postgres.Pool
	redis   *goredis.Client
	checks  map[string]handlers.HealthCheck
	closers []func() error
}

// Close releases every connection opened by openBackends.
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// openBackends connects to PostgreSQL and the configured identity and association
// stores, and registers them with the database package.
func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	pool, err := postgres.Open(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	b := &backends{
		pool:    pool,
		checks:  map[string]handlers.HealthCheck{"postgres": pool.Ping},
		closers: []func() error{pool.Close},
	}

	collections := postgres.NewCollectionRepository(pool)
	database.RegisterCollectionBackend(func() database.CollectionWriter { return collections })
	database.RegisterCollectionHNSWRebuilder(collections)
	if cfg.Database.HNSWEnabled {
		if err := collections.EnableHNSW(ctx); err != nil {
			logger.Warn("failed to build collection HNSW index, searching PostgreSQL", "error", err)
		} else {
			logger.Info("collection HNSW index built", "faces", collections.HNSWCount())
		}
	}

	if err := b.registerIdentities(ctx, cfg); err != nil {
		_ = b.Close()
		return nil, err
	}
	if err := b.registerAssociations(ctx, cfg); err != nil {
		_ = b.Close()
		return nil, err
	}

	identity, association := database.RegisteredBackends()
	logger.Info("stores ready", "identity", identity, "association", association)
	return b, nil
}

func (b *backends) registerIdentities(ctx context.Context, cfg *config.Config) error {
	switch cfg.Stores.IdentityBackend {
	case "postgres":
		repo := postgres.NewIdentityRepository(b.pool)
		database.RegisterIdentityBackend("postgres",
			func() database.IdentityReader { return repo },
			func() database.IdentityWriter { return repo },
		)
	case "redis":
		client, err := b.redisClient(ctx, cfg)
		if err != nil {
			return err
		}
		store := redis.NewIdentityStore(client)
		database.RegisterIdentityBackend("redis",
			func() database.IdentityReader { return store },
			func() database.IdentityWriter { return store },
		)
	case "dynamodb":
		client, err := dynamodb.NewClient(ctx, &cfg.DynamoDB, cfg.Storage.Region)
		if err != nil {
			return fmt.Errorf("failed to initialize DynamoDB: %w", err)
		}
		store := dynamodb.NewIdentityStore(client, cfg.DynamoDB.IdentityTable)
		database.RegisterIdentityBackend("dynamodb",
			func() database.IdentityReader { return store },
			func() database.IdentityWriter { return store },
		)
	case "mariadb":
		pool, err := mariadb.NewPool(ctx, &cfg.MariaDB)
		if err != nil {
			return fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		b.checks["mariadb"] = pool.Ping
		reader := mariadb.NewIdentityReader(pool)
		database.RegisterIdentityBackend("mariadb",
			func() database.IdentityReader { return reader },
			nil,
		)
	default:
		return fmt.Errorf("unknown identity backend %q", cfg.Stores.IdentityBackend)
	}
	return nil
}

func (b *backends) registerAssociations(ctx context.Context, cfg *config.Config) error {
	switch cfg.Stores.AssociationBackend {
	case "postgres":
		repo := postgres.NewAssociationRepository(b.pool)
		database.RegisterAssociationBackend("postgres", func() database.AssociationWriter { return repo })
	case "redis":
		client, err := b.redisClient(ctx, cfg)
		if err != nil {
			return err
		}
		store := redis.NewAssociationStore(client)
		database.RegisterAssociationBackend("redis", func() database.AssociationWriter { return store })
	case "dynamodb":
		client, err := dynamodb.NewClient(ctx, &cfg.DynamoDB, cfg.Storage.Region)
		if err != nil {
			return fmt.Errorf("failed to initialize DynamoDB: %w", err)
		}
		store := dynamodb.NewAssociationStore(client, cfg.DynamoDB.AssociationTable)
		database.RegisterAssociationBackend("dynamodb", func() database.AssociationWriter { return store })
	default:
		return fmt.Errorf("unknown association backend %q", cfg.Stores.AssociationBackend)
	}
	return nil
}

// redisClient connects once and shares the client between both stores.
func (b *backends) redisClient(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	client, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}
	b.redis = client
	b.closers = append(b.closers, client.Close)
	b.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return client, nil
}
