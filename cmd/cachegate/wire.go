package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pario-ai/cachegate/pkg/cache"
	"github.com/pario-ai/cachegate/pkg/catalog"
	"github.com/pario-ai/cachegate/pkg/config"
	"github.com/pario-ai/cachegate/pkg/keys"
	"github.com/pario-ai/cachegate/pkg/metrics"
	"github.com/pario-ai/cachegate/pkg/settings"
	"github.com/pario-ai/cachegate/pkg/store"
)

// app holds the services every subcommand works with.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	arena        *store.Arena
	providerKeys *keys.ProviderKeyService
	serverKeys   *keys.ServerKeyService
	models       *catalog.ModelService
	settings     *settings.Service
}

func openMedium(cfg *config.Config) (store.Medium, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		m, err := store.NewSQLiteMedium(cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return m, nil
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		return store.NewRedisMedium(client, cfg.Storage.Redis.Prefix), nil
	default:
		return store.NewFileMedium(cfg.DataDir), nil
	}
}

func openApp(configPath string) (*app, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	medium, err := openMedium(cfg)
	if err != nil {
		return nil, err
	}
	arena := store.NewArena(medium, logger)

	pk := keys.NewProviderKeyService(arena)
	sk := keys.NewServerKeyService(arena)
	ms := catalog.NewModelService(arena)

	return &app{
		cfg:          cfg,
		logger:       logger,
		arena:        arena,
		providerKeys: pk,
		serverKeys:   sk,
		models:       ms,
		settings:     settings.New(pk, sk, ms, logger),
	}, nil
}

func (a *app) cache(m *metrics.Collector) *cache.Cache {
	var opts []cache.Option
	if m != nil {
		opts = append(opts, cache.WithMetrics(m))
	}
	return cache.New(a.arena, a.cfg.Cache.MemoryTTL, a.logger, opts...)
}

func (a *app) Close() {
	_ = a.logger.Sync()
	_ = a.arena.Close()
}
