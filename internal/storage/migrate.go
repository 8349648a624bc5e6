package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"log/slog"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
)

// Migrator drives Postgres schema migrations via goose: a versioned,
// file-per-migration layout fits an append-only event schema, and the
// same files double as the cmd/migrate CLI's input.
type Migrator struct {
	db  *bun.DB
	dir string
}

// NewMigrator configures goose against migrationsFS and returns a
// Migrator bound to db. dir is the directory name goose.SetBaseFS
// expects migration files under (".", since migrationsFS is already
// rooted at the migrations package).
func NewMigrator(db *bun.DB, migrationsFS fs.FS) (*Migrator, error) {
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("aob/storage: set goose dialect: %w", err)
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	return &Migrator{db: db, dir: "."}, nil
}

// Init is a no-op for goose (its version table is created lazily by
// Up/Status), kept so cmd/migrate's command set stays stable.
func (m *Migrator) Init(ctx context.Context) error {
	return nil
}

// Up runs every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	slog.Info("running migrations up")
	if err := goose.UpContext(ctx, m.db.DB, m.dir); err != nil {
		return fmt.Errorf("aob/storage: goose up: %w", err)
	}
	slog.Info("migrations applied")
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	slog.Info("rolling back last migration")
	if err := goose.DownContext(ctx, m.db.DB, m.dir); err != nil {
		return fmt.Errorf("aob/storage: goose down: %w", err)
	}
	return nil
}

// Status reports each migration's applied/pending state to the log.
func (m *Migrator) Status(ctx context.Context) error {
	goose.SetLogger(log.Default())
	defer goose.SetLogger(goose.NopLogger())
	if err := goose.StatusContext(ctx, m.db.DB, m.dir); err != nil {
		return fmt.Errorf("aob/storage: goose status: %w", err)
	}
	return nil
}

// Reset rolls back every applied migration. Destructive - used by
// cmd/migrate's reset command and integration test fixtures only.
func (m *Migrator) Reset(ctx context.Context) error {
	slog.Warn("resetting all migrations, this drops every aob table")
	if err := goose.ResetContext(ctx, m.db.DB, m.dir); err != nil {
		return fmt.Errorf("aob/storage: goose reset: %w", err)
	}
	return nil
}
