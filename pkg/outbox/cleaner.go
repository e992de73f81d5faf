package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Cleaner deletes published rows past retention and, optionally, dead rows.
type Cleaner struct {
	pool  *pgxpool.Pool
	label string
	opts  CleanerOptions

	publishedSQL, deadSQL string
}

func NewCleaner(pool *pgxpool.Pool, table pgx.Identifier, opts CleanerOptions) (*Cleaner, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		table = DefaultTable
	}
	opts.setDefaults()
	name := table.Sanitize()
	return &Cleaner{
		pool:         pool,
		label:        tableLabel(table),
		opts:         opts,
		publishedSQL: fmt.Sprintf(`DELETE FROM %s WHERE published_at IS NOT NULL AND published_at < $1`, name),
		deadSQL:      fmt.Sprintf(`DELETE FROM %s WHERE published_at IS NULL AND attempts >= $1 AND created_at < $2`, name),
	}, nil
}

func (c *Cleaner) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, _, err := c.CleanOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.opts.Logger.WithError(err).WithField("table", c.label).Warn("outbox.cleaner.tick_failed")
		}
	}
}

// CleanOnce runs one retention pass in a single transaction.
func (c *Cleaner) CleanOnce(ctx context.Context) (published, dead int64, err error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()
	tag, err := tx.Exec(ctx, c.publishedSQL, now.Add(-c.opts.Retention))
	if err != nil {
		return 0, 0, fmt.Errorf("outbox clean published: %w", err)
	}
	published = tag.RowsAffected()

	if c.opts.DeadRetention > 0 {
		tag, err = tx.Exec(ctx, c.deadSQL, c.opts.MaxAttempts, now.Add(-c.opts.DeadRetention))
		if err != nil {
			return 0, 0, fmt.Errorf("outbox clean dead: %w", err)
		}
		dead = tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	if published+dead > 0 {
		c.opts.Logger.WithField("table", c.label).WithField("published", published).WithField("dead", dead).Info("outbox.cleaner.deleted")
	}
	return published, dead, nil
}
