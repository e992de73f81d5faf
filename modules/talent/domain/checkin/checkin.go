package checkin

import (
	"errors"
	"time"
)

var (
	ErrNotFound                = errors.New("check-in not found")
	ErrAlreadyFinalized        = errors.New("check-in already finalized")
	ErrNotReadyForFinalization = errors.New("check-in needs both sides complete before finalization")
)

// Kind is what the check-in reviews; ScopeID points at the employment tenure,
// assignment or aspiration respectively.
type Kind string

const (
	KindPosition   Kind = "position"
	KindAssignment Kind = "assignment"
	KindAspiration Kind = "aspiration"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPosition, KindAssignment, KindAspiration:
		return true
	}
	return false
}

type State string

const (
	StateBothOpen     State = "both_open"
	StateEmployeeOnly State = "employee_only"
	StateManagerOnly  State = "manager_only"
	StateBothComplete State = "both_complete"
)

// CheckIn is a periodic review with independent employee and manager sides
// and a final official completion.
type CheckIn struct {
	ID        int64
	SubjectID int64
	Kind      Kind
	ScopeID   int64

	ActualEnergyPercentage *int
	EmployeeRating         *string
	PersonalAlignment      *string
	EmployeePrivateNotes   *string
	EmployeeCompletedAt    *time.Time

	ManagerRating        *string
	ManagerPrivateNotes  *string
	ManagerCompletedAt   *time.Time
	ManagerCompletedByID *int64

	OfficialRating      *string
	SharedNotes         *string
	OfficialCompletedAt *time.Time
	FinalizedByID       *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(kind Kind, subjectID, scopeID int64) *CheckIn {
	return &CheckIn{Kind: kind, SubjectID: subjectID, ScopeID: scopeID}
}

func (c *CheckIn) State() State {
	switch {
	case c.EmployeeCompletedAt != nil && c.ManagerCompletedAt != nil:
		return StateBothComplete
	case c.EmployeeCompletedAt != nil:
		return StateEmployeeOnly
	case c.ManagerCompletedAt != nil:
		return StateManagerOnly
	default:
		return StateBothOpen
	}
}

func (c *CheckIn) Finalized() bool { return c.OfficialCompletedAt != nil }

// Open check-ins are the ones not yet officially completed.
func (c *CheckIn) Open() bool { return !c.Finalized() }

// Transition reports the outcome of a completion call. Detected is false when
// the call changed nothing.
type Transition struct {
	Detected bool
	State    State
}

// CompleteEmployeeSide stamps the employee side. It is a no-op when the
// check-in was already fully complete or finalized, or when the employee side
// was already stamped.
func (c *CheckIn) CompleteEmployeeSide(at time.Time) Transition {
	if c.Finalized() || c.State() == StateBothComplete || c.EmployeeCompletedAt != nil {
		return Transition{State: c.State()}
	}
	at = at.UTC()
	c.EmployeeCompletedAt = &at
	return Transition{Detected: true, State: c.State()}
}

// CompleteManagerSide stamps the manager side and records who completed it.
func (c *CheckIn) CompleteManagerSide(actorID int64, at time.Time) Transition {
	if c.Finalized() || c.State() == StateBothComplete || c.ManagerCompletedAt != nil {
		return Transition{State: c.State()}
	}
	at = at.UTC()
	c.ManagerCompletedAt = &at
	c.ManagerCompletedByID = &actorID
	return Transition{Detected: true, State: c.State()}
}

// SetEmployeeCompletedAt writes the employee completion timestamp verbatim;
// nil unchecks the side.
func (c *CheckIn) SetEmployeeCompletedAt(at *time.Time) error {
	if c.Finalized() {
		return ErrAlreadyFinalized
	}
	c.EmployeeCompletedAt = utcPtr(at)
	return nil
}

// SetManagerCompletedAt writes the manager completion timestamp; nil unchecks
// the side and clears the completer.
func (c *CheckIn) SetManagerCompletedAt(at *time.Time, actorID int64) error {
	if c.Finalized() {
		return ErrAlreadyFinalized
	}
	c.ManagerCompletedAt = utcPtr(at)
	if at == nil {
		c.ManagerCompletedByID = nil
	} else if c.ManagerCompletedByID == nil {
		c.ManagerCompletedByID = &actorID
	}
	return nil
}

func (c *CheckIn) UncheckEmployeeSide() error { return c.SetEmployeeCompletedAt(nil) }

func (c *CheckIn) UncheckManagerSide() error { return c.SetManagerCompletedAt(nil, 0) }

// Finalize records the official completion. Both sides must be complete.
func (c *CheckIn) Finalize(actorID int64, at time.Time) error {
	if c.Finalized() {
		return ErrAlreadyFinalized
	}
	if c.State() != StateBothComplete {
		return ErrNotReadyForFinalization
	}
	at = at.UTC()
	c.OfficialCompletedAt = &at
	c.FinalizedByID = &actorID
	return nil
}

func utcPtr(at *time.Time) *time.Time {
	if at == nil {
		return nil
	}
	v := at.UTC()
	return &v
}
