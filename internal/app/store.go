package service

import (
	"context"
	"fmt"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/adapters/repository/postgres"
	"github.com/okian/arena/internal/adapters/repository/redisstore"
	"github.com/okian/arena/internal/config"
	"github.com/okian/arena/pkg/logger"
)

// OpenStore opens the backend selected by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	log := logger.Get().Named("store")

	switch cfg.StoreBackend {
	case config.BackendMemory, "":
		return repository.NewMemoryStore(ctx), nil
	case config.BackendPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL,
			postgres.WithMaxOpenConns(cfg.DatabaseMaxOpenConns),
			postgres.WithLogger(log.Named("postgres")),
		)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		s, err := redisstore.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			redisstore.WithKeyPrefix(cfg.RedisKeyPrefix),
			redisstore.WithLogger(log.Named("redis")),
		)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown store_backend %q", config.ErrInvalidConfig, cfg.StoreBackend)
	}
}
