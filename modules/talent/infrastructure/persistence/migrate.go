package persistence

import (
	"context"
	"embed"
	"io/fs"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed schema/*.sql
var schemaFS embed.FS

func newMigrator(pool *pgxpool.Pool) (*goose.Provider, func() error, error) {
	sub, err := fs.Sub(schemaFS, "schema")
	if err != nil {
		return nil, nil, errors.Wrap(err, "open schema")
	}
	db := stdlib.OpenDBFromPool(pool)
	p, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrap(err, "goose provider")
	}
	return p, db.Close, nil
}

// Migrate applies every pending talent schema migration.
func Migrate(ctx context.Context, pool *pgxpool.Pool) ([]*goose.MigrationResult, error) {
	p, closeDB, err := newMigrator(pool)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeDB() }()

	res, err := p.Up(ctx)
	if err != nil {
		return res, errors.Wrap(err, "migrate up")
	}
	return res, nil
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, pool *pgxpool.Pool) (*goose.MigrationResult, error) {
	p, closeDB, err := newMigrator(pool)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeDB() }()

	res, err := p.Down(ctx)
	if err != nil {
		return res, errors.Wrap(err, "migrate down")
	}
	return res, nil
}

func MigrationStatus(ctx context.Context, pool *pgxpool.Pool) ([]*goose.MigrationStatus, error) {
	p, closeDB, err := newMigrator(pool)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeDB() }()
	return p.Status(ctx)
}
