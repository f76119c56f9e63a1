// Package database opens the Postgres pool and provisions the subscribers
// schema. Both happen once at startup and any failure is fatal.
package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"

	"newsletter/internal/config"
	"newsletter/internal/database/migrations"
)

const driverName = "pgx"

// open is a seam for tests. It must not touch the network.
var open = sqlx.Open

// Open applies the pool limits and verifies the connection with a single
// ping. The returned handle is safe for concurrent use and is meant to live
// for the whole process.
func Open(ctx context.Context, cfg config.Database) (*sqlx.DB, error) {
	db, err := open(driverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}

type migrator interface {
	Up(ctx context.Context) ([]*goose.MigrationResult, error)
}

// newMigrator is a seam for tests.
var newMigrator = func(db *sql.DB) (migrator, error) {
	return newProvider(db)
}

// newProvider holds a Postgres advisory lock for the whole run, so replicas
// starting together apply migrations one at a time.
func newProvider(db *sql.DB) (*goose.Provider, error) {
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("create migration lock: %w", err)
	}
	return goose.NewProvider(goose.DialectPostgres, db, migrations.Migrations,
		goose.WithSessionLocker(locker),
	)
}

// Migrate brings the schema up to date: the subscribers table, its column
// constraints and the unique index on email. Already-applied versions are
// skipped, so it runs on every start.
func Migrate(ctx context.Context, db *sql.DB) ([]string, error) {
	m, err := newMigrator(db)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}

	results, err := m.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	applied := make([]string, 0, len(results))
	for _, r := range results {
		if r.Source != nil {
			applied = append(applied, r.Source.Path)
		}
	}
	return applied, nil
}
