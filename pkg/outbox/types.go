package outbox

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DefaultTable is the outbox written by the talent schema migrations.
var DefaultTable = pgx.Identifier{"talent_outbox"}

// Message is one event row. EventID makes enqueueing idempotent.
type Message struct {
	Topic     string
	EventID   uuid.UUID
	SubjectID int64
	Payload   json.RawMessage
}

// Meta describes a claimed row to the dispatcher.
type Meta struct {
	Table     pgx.Identifier
	Topic     string
	EventID   uuid.UUID
	SubjectID int64
	Sequence  int64
	// Attempts counts the current delivery.
	Attempts int
}

type DispatchedMessage struct {
	Meta    Meta
	Payload json.RawMessage
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg DispatchedMessage) error
}

// Stats is a point-in-time view of the outbox queue.
type Stats struct {
	Pending   int64 `json:"pending"`
	Locked    int64 `json:"locked"`
	Dead      int64 `json:"dead"`
	Published int64 `json:"published"`
}

func tableLabel(table pgx.Identifier) string {
	return strings.Join(table, ".")
}
