// Package inmem is a process-local implementation of every talent repository
// plus the transaction runner. It backs service tests.
package inmem

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/iota-talent/modules/talent/domain/checkin"
	"github.com/iota-uz/iota-talent/modules/talent/domain/milestone"
	"github.com/iota-uz/iota-talent/modules/talent/domain/reference"
	"github.com/iota-uz/iota-talent/modules/talent/domain/snapshot"
	"github.com/iota-uz/iota-talent/modules/talent/domain/tenure"
)

type table[K comparable, V any] struct {
	m map[K]V
}

func newTable[K comparable, V any]() *table[K, V] {
	return &table[K, V]{m: make(map[K]V)}
}

func (t *table[K, V]) Set(key K, value V) { t.m[key] = value }

func (t *table[K, V]) Get(key K) (V, bool) {
	v, ok := t.m[key]
	return v, ok
}

func (t *table[K, V]) Delete(key K) { delete(t.m, key) }

func (t *table[K, V]) Values() []V { return slices.Collect(maps.Values(t.m)) }

func (t *table[K, V]) clone() *table[K, V] { return &table[K, V]{m: maps.Clone(t.m)} }

type milestoneKey struct {
	subjectID int64
	abilityID int64
}

type tables struct {
	seq               int64
	assignmentTenures *table[int64, tenure.AssignmentTenure]
	employmentTenures *table[int64, tenure.EmploymentTenure]
	lastTerminated    *table[int64, time.Time]
	checkIns          *table[int64, checkin.CheckIn]
	milestones        *table[milestoneKey, milestone.Attainment]
	snapshots         *table[int64, snapshot.Snapshot]
}

func newTables() *tables {
	return &tables{
		assignmentTenures: newTable[int64, tenure.AssignmentTenure](),
		employmentTenures: newTable[int64, tenure.EmploymentTenure](),
		lastTerminated:    newTable[int64, time.Time](),
		checkIns:          newTable[int64, checkin.CheckIn](),
		milestones:        newTable[milestoneKey, milestone.Attainment](),
		snapshots:         newTable[int64, snapshot.Snapshot](),
	}
}

func (t *tables) clone() *tables {
	return &tables{
		seq:               t.seq,
		assignmentTenures: t.assignmentTenures.clone(),
		employmentTenures: t.employmentTenures.clone(),
		lastTerminated:    t.lastTerminated.clone(),
		checkIns:          t.checkIns.clone(),
		milestones:        t.milestones.clone(),
		snapshots:         t.snapshots.clone(),
	}
}

func (t *tables) nextID() int64 {
	t.seq++
	return t.seq
}

type txKey struct{ store *Store }

// Store serializes every operation behind one mutex. InTx holds it for the
// whole callback and restores a copy of the tables when the callback fails.
type Store struct {
	mu   sync.Mutex
	data *tables
	refs *References
	now  func() time.Time

	faultsMu sync.Mutex
	faults   map[string]error
}

func New() *Store {
	return &Store{
		data:   newTables(),
		refs:   NewReferences(),
		now:    time.Now,
		faults: map[string]error{},
	}
}

// WithClock sets the clock used for created_at/updated_at columns.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{s}, true)); err != nil {
		s.data = saved
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{s}).(bool)
	return v
}

// do runs fn against the tables, taking the lock unless ctx is inside InTx.
func (s *Store) do(ctx context.Context, op string, fn func(t *tables) error) error {
	if err := s.takeFault(op); err != nil {
		return err
	}
	if s.inTx(ctx) {
		return fn(s.data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// FailNext makes the next call of op return err. Ops are named
// "<table>.<method>", e.g. "assignment_tenures.create".
func (s *Store) FailNext(op string, err error) {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	s.faults[op] = err
}

func (s *Store) takeFault(op string) error {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	err, ok := s.faults[op]
	if ok {
		delete(s.faults, op)
	}
	return err
}

func (s *Store) AssignmentTenures() tenure.AssignmentRepository { return &assignmentTenureRepo{s} }

func (s *Store) EmploymentTenures() tenure.EmploymentRepository { return &employmentTenureRepo{s} }

func (s *Store) CheckIns() checkin.Repository { return &checkInRepo{s} }

func (s *Store) Milestones() milestone.Repository { return &milestoneRepo{s} }

func (s *Store) Snapshots() snapshot.Repository { return &snapshotRepo{s} }

func (s *Store) References() *References { return s.refs }

var _ reference.Repository = (*References)(nil)

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

func checkViolation(constraint string) error {
	return &pgconn.PgError{Code: "23514", ConstraintName: constraint, Message: "new row violates check constraint"}
}
