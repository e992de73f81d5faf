package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-talent/modules/talent/domain/snapshot"
	"github.com/iota-uz/iota-talent/pkg/optional"
	"github.com/iota-uz/iota-talent/pkg/outbox"
)

type recordingOutbox struct {
	mu   sync.Mutex
	msgs []outbox.Message
	err  error
}

func (o *recordingOutbox) Enqueue(_ context.Context, msg outbox.Message) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return 0, o.err
	}
	o.msgs = append(o.msgs, msg)
	return int64(len(o.msgs)), nil
}

func (o *recordingOutbox) topics() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.msgs))
	for _, m := range o.msgs {
		out = append(out, m.Topic)
	}
	return out
}

func TestOutbox_TenureChangeIsRecordedNotPublished(t *testing.T) {
	box := &recordingOutbox{}
	env := newTestEnvWith(t, func(o *Options) { o.Outbox = box })

	published := 0
	env.bus.Subscribe(func(_ context.Context, _ *AssignmentTenureChangedEvent) { published++ })

	_, err := env.tenures.UpdateAssignmentTenure(context.Background(), UpdateAssignmentTenureInput{
		SubjectID: testSubjectID, AssignmentID: 7, EnergyPercentage: 50, StartDate: "2025-05-01",
	}, manager)
	require.NoError(t, err)
	require.Zero(t, published)

	require.Len(t, box.msgs, 1)
	msg := box.msgs[0]
	require.Equal(t, TopicAssignmentTenureChanged, msg.Topic)
	require.Equal(t, testSubjectID, msg.SubjectID)

	decoded, err := DecodeEvent(msg.Topic, msg.Payload)
	require.NoError(t, err)
	ev, ok := decoded.(*AssignmentTenureChangedEvent)
	require.True(t, ok)
	require.Equal(t, msg.EventID, ev.EventID)
	require.Equal(t, TenureCreated, ev.Action)
	require.Equal(t, 50, ev.Created.AnticipatedEnergyPercentage)
}

func TestOutbox_NoopRecordsNothing(t *testing.T) {
	box := &recordingOutbox{}
	env := newTestEnvWith(t, func(o *Options) { o.Outbox = box })

	_, err := env.tenures.UpdateAssignmentTenure(context.Background(), UpdateAssignmentTenureInput{
		SubjectID: testSubjectID, AssignmentID: 7, EnergyPercentage: 0, StartDate: "2025-05-01",
	}, manager)
	require.NoError(t, err)
	require.Empty(t, box.msgs)
}

func TestOutbox_EnqueueFailureRollsBackTheChange(t *testing.T) {
	box := &recordingOutbox{err: errors.New("connection reset")}
	env := newTestEnvWith(t, func(o *Options) { o.Outbox = box })

	_, err := env.tenures.UpdateAssignmentTenure(context.Background(), UpdateAssignmentTenureInput{
		SubjectID: testSubjectID, AssignmentID: 7, EnergyPercentage: 50, StartDate: "2025-05-01",
	}, manager)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	require.Empty(t, env.assignmentTenures(t))
}

func TestOutbox_ExecutionRecordsEveryEventInOrder(t *testing.T) {
	box := &recordingOutbox{}
	env := newTestEnvWith(t, func(o *Options) { o.Outbox = box })
	ctx := context.Background()

	snap := env.createSnapshot(t, snapshot.ProposedState{
		Assignments: []snapshot.AssignmentProposal{{
			AssignmentID: 7,
			Tenure:       &snapshot.TenureProposal{AnticipatedEnergyPercentage: optional.Of(60), StartedAt: optional.Of("2025-06-01")},
			EmployeeCheckIn: &snapshot.EmployeeCheckInProposal{
				CompletedAt: optional.Of(testNow),
			},
		}},
	})
	res, err := env.engine.ExecuteWithResult(ctx, snap, manager, nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Equal(t, []string{
		TopicSnapshotCreated,
		TopicAssignmentTenureChanged,
		TopicCheckInCompleted,
		TopicSnapshotExecuted,
	}, box.topics())

	last := box.msgs[len(box.msgs)-1]
	var executed SnapshotExecutedEvent
	require.NoError(t, json.Unmarshal(last.Payload, &executed))
	require.Equal(t, snap.ID, executed.SnapshotID)
	require.True(t, executed.Result.Success)
}

func TestDecodeEvent_UnknownTopic(t *testing.T) {
	_, err := DecodeEvent("talent.unknown", json.RawMessage(`{}`))
	require.ErrorContains(t, err, "unknown event topic")
}
