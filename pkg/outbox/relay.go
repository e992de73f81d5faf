package outbox

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// querier is satisfied by *pgxpool.Pool and *pgxpool.Conn.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Relay claims unpublished rows in batches and hands them to a Dispatcher.
// A failed delivery is retried with exponential backoff until MaxAttempts,
// after which the row stays unpublished as dead.
type Relay struct {
	pool       *pgxpool.Pool
	table      pgx.Identifier
	label      string
	dispatcher Dispatcher
	opts       RelayOptions
	lockKey    int64
	m          *metrics

	claimSQL, ackSQL, retrySQL, statsSQL string
}

func NewRelay(pool *pgxpool.Pool, table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}
	if len(table) == 0 {
		table = DefaultTable
	}
	opts.setDefaults()

	name := table.Sanitize()
	label := tableLabel(table)
	h := fnv.New64a()
	_, _ = h.Write([]byte("outbox:" + label))

	return &Relay{
		pool:       pool,
		table:      table,
		label:      label,
		dispatcher: dispatcher,
		opts:       opts,
		lockKey:    int64(h.Sum64()), //nolint:gosec
		m:          getMetrics(),
		claimSQL: fmt.Sprintf(`WITH next AS (
				SELECT sequence FROM %[1]s
				 WHERE published_at IS NULL
				   AND available_at <= $1
				   AND attempts < $2
				   AND (locked_at IS NULL OR locked_at < $3)
				 ORDER BY available_at, sequence
				 LIMIT $4
				 FOR UPDATE SKIP LOCKED)
			UPDATE %[1]s o SET locked_at = $1, attempts = o.attempts + 1
			  FROM next WHERE o.sequence = next.sequence
			RETURNING o.sequence, o.topic, o.event_id, o.subject_id, o.payload, o.attempts`, name),
		ackSQL: fmt.Sprintf(`UPDATE %s SET published_at = now(), locked_at = NULL, last_error = NULL
			WHERE sequence = $1 AND published_at IS NULL`, name),
		retrySQL: fmt.Sprintf(`UPDATE %s SET locked_at = NULL, last_error = $2, available_at = $3
			WHERE sequence = $1 AND published_at IS NULL`, name),
		statsSQL: fmt.Sprintf(`SELECT
				count(*) FILTER (WHERE published_at IS NULL AND attempts < $1),
				count(*) FILTER (WHERE published_at IS NULL AND attempts < $1 AND locked_at IS NOT NULL),
				count(*) FILTER (WHERE published_at IS NULL AND attempts >= $1),
				count(*) FILTER (WHERE published_at IS NOT NULL)
			FROM %s`, name),
	}, nil
}

// Run relays until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	if r.opts.SingleActive {
		return r.runAsLeader(ctx)
	}
	r.m.leader.WithLabelValues(r.label).Set(1)
	defer r.m.leader.WithLabelValues(r.label).Set(0)
	return r.loop(ctx, r.pool)
}

// ProcessOnce claims and dispatches one batch and returns how many rows
// were delivered.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	return r.process(ctx, r.pool)
}

// Stats counts rows by state. Dead rows exhausted MaxAttempts.
func (r *Relay) Stats(ctx context.Context) (Stats, error) {
	return r.stats(ctx, r.pool)
}

func (r *Relay) stats(ctx context.Context, db querier) (Stats, error) {
	var s Stats
	err := db.QueryRow(ctx, r.statsSQL, r.opts.MaxAttempts).Scan(&s.Pending, &s.Locked, &s.Dead, &s.Published)
	if err != nil {
		return Stats{}, fmt.Errorf("outbox stats: %w", err)
	}
	r.m.queue.WithLabelValues(r.label, "pending").Set(float64(s.Pending))
	r.m.queue.WithLabelValues(r.label, "locked").Set(float64(s.Locked))
	r.m.queue.WithLabelValues(r.label, "dead").Set(float64(s.Dead))
	return s, nil
}

func (r *Relay) runAsLeader(ctx context.Context) error {
	log := r.opts.Logger.WithField("table", r.label)
	for {
		conn, err := r.pool.Acquire(ctx)
		if err == nil {
			var leader bool
			leader, err = r.tryLead(ctx, conn)
			if err == nil && leader {
				log.Info("outbox.relay.leader_acquired")
				r.m.leader.WithLabelValues(r.label).Set(1)
				err = r.loop(ctx, conn)
				r.m.leader.WithLabelValues(r.label).Set(0)
				if _, unlockErr := conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, r.lockKey); unlockErr != nil {
					log.WithError(unlockErr).Warn("outbox.relay.unlock_failed")
				}
				conn.Release()
				return err
			}
			conn.Release()
		}
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("outbox.relay.leader_attempt_failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.PollInterval):
		}
	}
}

func (r *Relay) tryLead(ctx context.Context, conn *pgxpool.Conn) (bool, error) {
	var ok bool
	err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, r.lockKey).Scan(&ok)
	return ok, err
}

func (r *Relay) loop(ctx context.Context, db querier) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	nextStats := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(nextStats) {
			if _, err := r.stats(ctx, db); err != nil {
				r.opts.Logger.WithError(err).Debug("outbox.relay.stats_failed")
			}
			nextStats = time.Now().Add(r.opts.StatsEvery)
		}
		if _, err := r.process(ctx, db); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).WithField("table", r.label).Warn("outbox.relay.tick_failed")
		}
	}
}

type claimedRow struct {
	topic     string
	eventID   uuid.UUID
	subjectID int64
	payload   []byte
	sequence  int64
	attempts  int
}

func (r *Relay) claim(ctx context.Context, db querier) ([]claimedRow, error) {
	now := time.Now()
	rows, err := db.Query(ctx, r.claimSQL, now, r.opts.MaxAttempts, now.Add(-r.opts.LockTTL), r.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox claim: %w", err)
	}
	claimed, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (claimedRow, error) {
		var c claimedRow
		err := row.Scan(&c.sequence, &c.topic, &c.eventID, &c.subjectID, &c.payload, &c.attempts)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("outbox claim: %w", err)
	}
	slices.SortFunc(claimed, func(a, b claimedRow) int { return cmp.Compare(a.sequence, b.sequence) })
	return claimed, nil
}

func (r *Relay) process(ctx context.Context, db querier) (int, error) {
	claimed, err := r.claim(ctx, db)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, c := range claimed {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		log := r.opts.Logger.WithFields(logrus.Fields{
			"table":      r.label,
			"topic":      c.topic,
			"event_id":   c.eventID.String(),
			"subject_id": c.subjectID,
			"sequence":   c.sequence,
			"attempts":   c.attempts,
		})

		dctx, cancel := context.WithTimeout(ctx, r.opts.DispatchTimeout)
		start := time.Now()
		err := r.dispatcher.Dispatch(dctx, DispatchedMessage{
			Meta: Meta{
				Table:     r.table,
				Topic:     c.topic,
				EventID:   c.eventID,
				SubjectID: c.subjectID,
				Sequence:  c.sequence,
				Attempts:  c.attempts,
			},
			Payload: c.payload,
		})
		cancel()

		result := "success"
		if err != nil {
			result = "failure"
		}
		r.m.dispatched.WithLabelValues(r.label, c.topic, result).Inc()
		r.m.latency.WithLabelValues(r.label, result).Observe(time.Since(start).Seconds())

		if err == nil {
			delivered++
			if _, ackErr := db.Exec(ctx, r.ackSQL, c.sequence); ackErr != nil {
				log.WithError(ackErr).Warn("outbox.relay.ack_failed")
			}
			continue
		}

		next := time.Now().Add(backoff(c.attempts, r.opts.MaxBackoff) + jitter(r.opts.Rand, r.opts.JitterMax))
		if c.attempts >= r.opts.MaxAttempts {
			r.m.dead.WithLabelValues(r.label, c.topic).Inc()
			log.WithError(err).Error("outbox.relay.dead")
			next = time.Now()
		} else {
			log.WithError(err).Warn("outbox.relay.dispatch_failed")
		}
		if _, retryErr := db.Exec(ctx, r.retrySQL, c.sequence, truncateError(err, r.opts.LastErrorMaxLen), next); retryErr != nil {
			log.WithError(retryErr).Warn("outbox.relay.release_failed")
		}
	}
	return delivered, nil
}
