package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-talent/modules/talent/domain/reference"
	"github.com/iota-uz/iota-talent/modules/talent/domain/snapshot"
	"github.com/iota-uz/iota-talent/modules/talent/infrastructure/persistence/inmem"
	"github.com/iota-uz/iota-talent/pkg/authz"
	"github.com/iota-uz/iota-talent/pkg/eventbus"
)

const (
	testSubjectID = int64(100)
	testCompanyID = int64(1)
	testManagerID = int64(200)
	testAdminID   = int64(900)
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	clock     *testClock
	store     *inmem.Store
	bus       eventbus.EventBusWithError
	tenures   *TenureService
	checkIns  *CheckInService
	snapshots *SnapshotService
	detector  *ChangeDetector
	engine    *ExecutionEngine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith lets a test adjust the shared Options before the services
// are built.
func newTestEnvWith(t *testing.T, configure func(*Options)) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clock := &testClock{now: testNow}
	store := inmem.New().WithClock(clock.Now)
	store.References().
		AddSubject(reference.Subject{ID: testSubjectID, CompanyID: testCompanyID, DisplayName: "Ada Lovelace"}).
		AddSubject(reference.Subject{ID: testManagerID, CompanyID: testCompanyID, DisplayName: "Grace Hopper"}).
		AddPosition(reference.Position{ID: 10, CompanyID: testCompanyID, Title: "Engineer"}).
		AddPosition(reference.Position{ID: 11, CompanyID: testCompanyID, Title: "Senior Engineer"}).
		AddAssignment(reference.Assignment{ID: 7, CompanyID: testCompanyID, Title: "Platform"}).
		AddAssignment(reference.Assignment{ID: 8, CompanyID: testCompanyID, Title: "Hiring"}).
		AddAbility(reference.Ability{ID: 30, Name: "Go"}).
		AddAspiration(reference.Aspiration{ID: 40, Name: "Tech lead"})

	bus := eventbus.NewEventPublisher(logger)
	opts := Options{
		Logger:    logrus.NewEntry(logger),
		Publisher: bus,
		Now:       clock.Now,
	}
	if configure != nil {
		configure(&opts)
	}
	managerOnly := authz.ManagerOf(func(_ context.Context, actorID, _ int64) bool { return actorID == testManagerID })

	tenures := NewTenureService(store.AssignmentTenures(), store.EmploymentTenures(), store, opts)
	detector := NewChangeDetector(opts)
	snapshots := NewSnapshotService(store.Snapshots(), store.References(), detector, store, opts)
	env := &testEnv{
		clock:     clock,
		store:     store,
		bus:       bus,
		tenures:   tenures,
		checkIns:  NewCheckInService(store.CheckIns(), store, managerOnly, opts),
		snapshots: snapshots,
		detector:  detector,
	}
	env.engine = NewExecutionEngine(ExecutionDeps{
		Snapshots:  snapshots,
		Tenures:    tenures,
		Employment: store.EmploymentTenures(),
		CheckIns:   store.CheckIns(),
		Milestones: store.Milestones(),
		References: store.References(),
		Tx:         store,
		Authorize:  managerOnly,
	}, opts)
	return env
}

func (e *testEnv) createSnapshot(t *testing.T, state snapshot.ProposedState) *snapshot.Snapshot {
	t.Helper()
	snap, err := e.snapshots.Create(context.Background(), CreateSnapshotInput{
		SubjectID:     testSubjectID,
		CompanyID:     testCompanyID,
		CreatorID:     testManagerID,
		ChangeType:    string(snapshot.ChangeTypeBulk),
		ProposedState: state,
	})
	require.NoError(t, err)
	return snap
}

func (e *testEnv) assignmentTenures(t *testing.T) []tenureRow {
	t.Helper()
	rows, err := e.tenures.ListAssignmentTenures(context.Background(), testSubjectID)
	require.NoError(t, err)
	out := make([]tenureRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, tenureRow{assignmentID: r.AssignmentID, energy: r.AnticipatedEnergyPercentage, started: r.StartedAt, ended: r.EndedAt})
	}
	return out
}

type tenureRow struct {
	assignmentID int64
	energy       int
	started      time.Time
	ended        *time.Time
}

func ptr[T any](v T) *T { return &v }

var (
	manager = authz.NewActor(testManagerID)
	admin   = authz.NewActor(testAdminID, authz.AdminOverride)
	subject = authz.NewActor(testSubjectID)
)
