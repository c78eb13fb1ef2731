// Package database opens the PostgreSQL pool backing the property catalog and
// keeps its schema migrated.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/logging"
	"github.com/ekaya-inc/ekaya-mapper/pkg/retry"
)

const applicationName = "ekaya-mapper"

// DB is the catalog's connection pool.
type DB struct {
	*pgxpool.Pool
}

// Config describes how to reach the catalog database. Zero limits take the
// pool defaults below.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func (c *Config) pool() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	pc.MaxConns = orDefault(c.MaxConnections, 10)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, time.Hour)
	pc.MaxConnIdleTime = orDefault(c.MaxConnIdleTime, 30*time.Minute)
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	return pc, nil
}

// Connect creates the pool and verifies the server answers.
func Connect(ctx context.Context, cfg *Config) (*DB, error) {
	pc, err := cfg.pool()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Open connects, waiting out a server that is still starting, and migrates the
// catalog schema before handing the pool out.
func Open(ctx context.Context, cfg *Config, logger *zap.Logger) (*DB, error) {
	logger = logger.Named("database")
	logger.Info("Opening catalog database", zap.String("url", logging.SanitizeConnectionString(cfg.URL)))

	db, err := retry.Do(ctx, retry.StartupBackoff(), func(ctx context.Context) (*DB, error) {
		db, err := Connect(ctx, cfg)
		if err != nil {
			logger.Warn("Catalog database not ready", zap.String("error", logging.SanitizeError(err)))
		}
		return db, err
	})
	if err != nil {
		return nil, err
	}

	// golang-migrate needs database/sql; borrow a handle on the same pool.
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()
	if err := Migrate(sqlDB, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
