// Package storage provides the Postgres/Bun-backed implementations of
// the durable core's ports (eventstore.Store, decision.Sink,
// dlq.Queue), one repository struct per port over a shared *bun.DB.
// Schema migrations run through goose (migrate.go).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/aobuilder/aob/internal/config"
	"github.com/aobuilder/aob/internal/storage/bunmodels"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Debug           bool
}

// ConfigFromApp adapts internal/config.DatabaseConfig into a storage.Config.
func ConfigFromApp(db config.DatabaseConfig, debug bool) *Config {
	return &Config{
		DSN:             db.URL,
		MaxOpenConns:    db.MaxConnections,
		MaxIdleConns:    db.MinConnections,
		ConnMaxLifetime: db.MaxConnLifetime,
		Debug:           debug,
	}
}

// NewDB opens a Bun/Postgres connection, configures the pool, registers
// every model, and verifies connectivity before returning.
func NewDB(cfg *Config) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithTimeout(30*time.Second),
		pgdriver.WithDialTimeout(10*time.Second),
		pgdriver.WithReadTimeout(10*time.Second),
		pgdriver.WithWriteTimeout(10*time.Second),
	)

	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}

	registerModels(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("aob/storage: ping database: %w", err)
	}

	slog.Info("database connection established",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
	)

	return db, nil
}

func registerModels(db *bun.DB) {
	db.RegisterModel(
		(*bunmodels.EventModel)(nil),
		(*bunmodels.OutboxModel)(nil),
		(*bunmodels.SnapshotModel)(nil),
		(*bunmodels.DecisionModel)(nil),
		(*bunmodels.DLQModel)(nil),
	)
}

// Close closes the database connection, tolerating a nil db.
func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
