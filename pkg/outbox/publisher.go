package outbox

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/iota-talent/pkg/composables"
)

// Publisher writes messages into the transaction bound to ctx, so a message
// exists exactly when the change that produced it commits.
type Publisher interface {
	Enqueue(ctx context.Context, msg Message) (sequence int64, err error)
}

type publisher struct {
	table pgx.Identifier
	query string
	m     *metrics
}

func NewPublisher(table pgx.Identifier) Publisher {
	if len(table) == 0 {
		table = DefaultTable
	}
	return &publisher{
		table: table,
		// Re-enqueueing an event id returns the original sequence.
		query: fmt.Sprintf(`INSERT INTO %s (topic, event_id, subject_id, payload)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
			RETURNING sequence`, table.Sanitize()),
		m: getMetrics(),
	}
}

func (p *publisher) Enqueue(ctx context.Context, msg Message) (int64, error) {
	switch {
	case msg.Topic == "":
		return 0, invalidConfig("topic is required")
	case msg.EventID == uuid.Nil:
		return 0, invalidConfig("event_id is required")
	case len(msg.Payload) == 0:
		return 0, invalidConfig("payload is required")
	}
	tx, err := composables.UseOpenTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "outbox enqueue")
	}
	var sequence int64
	if err := tx.QueryRow(ctx, p.query, msg.Topic, msg.EventID, msg.SubjectID, []byte(msg.Payload)).Scan(&sequence); err != nil {
		return 0, errors.Wrap(err, "outbox enqueue")
	}
	p.m.enqueued.WithLabelValues(tableLabel(p.table), msg.Topic).Inc()
	return sequence, nil
}
