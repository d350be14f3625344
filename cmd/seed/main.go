package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/peeap/identity-service/internal/clients"
	"github.com/peeap/identity-service/internal/config"
	"github.com/peeap/identity-service/internal/database"
	"github.com/peeap/identity-service/internal/secrets"
	"github.com/peeap/identity-service/internal/seeding"
	storagepg "github.com/peeap/identity-service/internal/storage/postgres"
	"go.uber.org/zap"
)

// identity-seed provisions the first-party clients. Unlike migrations,
// which run on startup, seeding is optional and typically runs once per
// environment.
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("AUTH_DB_URL is required")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()

	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("database connection", zap.Error(err))
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool); err != nil {
		logger.Fatal("migrations", zap.Error(err))
	}
	logger.Info("migrations completed")

	store := storagepg.New(pool, cfg.Database.QueryTimeout)
	registry := clients.NewRegistry(store, nil, cfg.Redis.Namespace, secrets.NewHasher(cfg.Security), logger)

	seeder := seeding.New(registry, store, logger)
	if err := seeder.SeedDefaults(ctx); err != nil {
		logger.Fatal("seeding", zap.Error(err))
	}
	if cfg.App.Environment == "development" || cfg.App.Environment == "local" {
		if err := seeder.SeedDevWebhook(ctx); err != nil {
			logger.Fatal("dev webhook seeding", zap.Error(err))
		}
	}
	logger.Info("seeding completed")
}
