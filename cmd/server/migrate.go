package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/config"
	"github.com/lalith-99/huddle/internal/db"
	"github.com/lalith-99/huddle/internal/db/migrations"
)

var errMemoryStore = errors.New("the memory store has no schema to migrate")

func openPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*db.DB, error) {
	if cfg.StoreBackend != "postgres" {
		return nil, errMemoryStore
	}
	database, err := db.New(ctx, cfg.DatabaseURL, db.PoolOptions{}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return database, nil
}

func migrateUp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (migrations.Status, error) {
	database, err := openPostgres(ctx, cfg, logger)
	if err != nil {
		return migrations.Status{}, err
	}
	defer database.Close()

	sqlDB := migrations.OpenDB(database.Pool())
	if err := migrations.MigrateUp(sqlDB); err != nil {
		return migrations.Status{}, fmt.Errorf("migrate up: %w", err)
	}
	status, err := migrations.CheckStatus(sqlDB)
	if err != nil {
		return migrations.Status{}, fmt.Errorf("check schema: %w", err)
	}
	logger.Info("migrations applied", zap.Uint("version", status.Current))
	return status, nil
}

func migrationStatus(ctx context.Context, cfg *config.Config, logger *zap.Logger) (migrations.Status, error) {
	database, err := openPostgres(ctx, cfg, logger)
	if err != nil {
		return migrations.Status{}, err
	}
	defer database.Close()

	status, err := migrations.CheckStatus(migrations.OpenDB(database.Pool()))
	if err != nil {
		return migrations.Status{}, fmt.Errorf("check schema: %w", err)
	}
	return status, nil
}
