// Package persistence stores the talent core in PostgreSQL through pgx. Every
// repository runs its statements on the transaction bound to the context, or
// on the pool when none is.
package persistence

import (
	"context"
	"fmt"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/iota-talent/modules/talent/domain/reference"
	"github.com/iota-uz/iota-talent/pkg/composables"
)

var ErrSubjectNotFound = fmt.Errorf("subject: %w", reference.ErrNotFound)

// Transactor opens pgx transactions for the services layer.
type Transactor struct {
	pool *pgxpool.Pool
}

func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Bind attaches the pool to ctx unless one is already bound.
func (t *Transactor) Bind(ctx context.Context) context.Context {
	if _, err := composables.UsePool(ctx); err != nil && t.pool != nil {
		return composables.WithPool(ctx, t.pool)
	}
	return ctx
}

// InTx binds the pool to ctx when missing and runs fn in a transaction.
// Calls nested inside an open transaction join it.
func (t *Transactor) InTx(ctx context.Context, fn func(context.Context) error) error {
	return composables.InTx(t.Bind(ctx), fn)
}

// execOne runs a single-row write and reports notFound when no row matched.
func execOne(ctx context.Context, notFound error, sql string, args ...any) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return gerrors.Wrap(err, "failed to get transaction")
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
