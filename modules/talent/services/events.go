package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/iota-talent/modules/talent/domain/checkin"
	"github.com/iota-uz/iota-talent/modules/talent/domain/snapshot"
	"github.com/iota-uz/iota-talent/modules/talent/domain/tenure"
)

// Events are published after the owning transaction commits. Subscribers
// take (context.Context, *XxxEvent).

type EventMeta struct {
	EventID    uuid.UUID `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	ActorID    int64     `json:"actor_id"`
}

func newEventMeta(at time.Time, actorID int64) EventMeta {
	return EventMeta{EventID: uuid.New(), OccurredAt: at.UTC(), ActorID: actorID}
}

type AssignmentTenureChangedEvent struct {
	EventMeta
	SubjectID    int64                    `json:"subject_id"`
	AssignmentID int64                    `json:"assignment_id"`
	Action       TenureAction             `json:"action"`
	Ended        *tenure.AssignmentTenure `json:"ended,omitempty"`
	Created      *tenure.AssignmentTenure `json:"created,omitempty"`
}

type EmploymentTenureChangedEvent struct {
	EventMeta
	SubjectID int64                    `json:"subject_id"`
	CompanyID int64                    `json:"company_id"`
	Action    TenureAction             `json:"action"`
	Ended     *tenure.EmploymentTenure `json:"ended,omitempty"`
	Current   *tenure.EmploymentTenure `json:"current,omitempty"`
}

type CheckInCompletedEvent struct {
	EventMeta
	CheckInID int64         `json:"check_in_id"`
	Kind      checkin.Kind  `json:"kind"`
	SubjectID int64         `json:"subject_id"`
	Side      string        `json:"side"`
	State     checkin.State `json:"state"`
}

type CheckInFinalizedEvent struct {
	EventMeta
	CheckInID int64        `json:"check_in_id"`
	Kind      checkin.Kind `json:"kind"`
	SubjectID int64        `json:"subject_id"`
}

type SnapshotCreatedEvent struct {
	EventMeta
	Snapshot *snapshot.Snapshot `json:"snapshot"`
}

type SnapshotExecutedEvent struct {
	EventMeta
	SnapshotID int64            `json:"snapshot_id"`
	SubjectID  int64            `json:"subject_id"`
	Result     *ExecutionResult `json:"result"`
}

const (
	TopicAssignmentTenureChanged = "talent.assignment_tenure.changed"
	TopicEmploymentTenureChanged = "talent.employment_tenure.changed"
	TopicCheckInCompleted        = "talent.check_in.completed"
	TopicCheckInFinalized        = "talent.check_in.finalized"
	TopicSnapshotCreated         = "talent.snapshot.created"
	TopicSnapshotExecuted        = "talent.snapshot.executed"
)

// Event is implemented by every talent event.
type Event interface {
	Topic() string
	Meta() EventMeta
	Subject() int64
}

func (m EventMeta) Meta() EventMeta { return m }

func (*AssignmentTenureChangedEvent) Topic() string    { return TopicAssignmentTenureChanged }
func (e *AssignmentTenureChangedEvent) Subject() int64 { return e.SubjectID }
func (*EmploymentTenureChangedEvent) Topic() string    { return TopicEmploymentTenureChanged }
func (e *EmploymentTenureChangedEvent) Subject() int64 { return e.SubjectID }
func (*CheckInCompletedEvent) Topic() string           { return TopicCheckInCompleted }
func (e *CheckInCompletedEvent) Subject() int64        { return e.SubjectID }
func (*CheckInFinalizedEvent) Topic() string           { return TopicCheckInFinalized }
func (e *CheckInFinalizedEvent) Subject() int64        { return e.SubjectID }
func (*SnapshotCreatedEvent) Topic() string            { return TopicSnapshotCreated }
func (*SnapshotExecutedEvent) Topic() string           { return TopicSnapshotExecuted }
func (e *SnapshotExecutedEvent) Subject() int64        { return e.SubjectID }

func (e *SnapshotCreatedEvent) Subject() int64 {
	if e.Snapshot == nil {
		return 0
	}
	return e.Snapshot.SubjectID
}

// DecodeEvent rebuilds the typed event stored under topic.
func DecodeEvent(topic string, payload json.RawMessage) (any, error) {
	var ev Event
	switch topic {
	case TopicAssignmentTenureChanged:
		ev = &AssignmentTenureChangedEvent{}
	case TopicEmploymentTenureChanged:
		ev = &EmploymentTenureChangedEvent{}
	case TopicCheckInCompleted:
		ev = &CheckInCompletedEvent{}
	case TopicCheckInFinalized:
		ev = &CheckInFinalizedEvent{}
	case TopicSnapshotCreated:
		ev = &SnapshotCreatedEvent{}
	case TopicSnapshotExecuted:
		ev = &SnapshotExecutedEvent{}
	default:
		return nil, fmt.Errorf("unknown event topic %q", topic)
	}
	if err := json.Unmarshal(payload, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
