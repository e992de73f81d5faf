package tenure

import (
	"context"
	"time"
)

type AssignmentRepository interface {
	// LockActive returns the open tenure for (subject, assignment) and locks it.
	LockActive(ctx context.Context, subjectID, assignmentID int64) (AssignmentTenure, bool, error)
	Create(ctx context.Context, t AssignmentTenure) (AssignmentTenure, error)
	End(ctx context.Context, id int64, endedAt time.Time) error
	ListBySubject(ctx context.Context, subjectID int64) ([]AssignmentTenure, error)
}

type EmploymentRepository interface {
	LockActive(ctx context.Context, subjectID, companyID int64) (EmploymentTenure, bool, error)
	Create(ctx context.Context, t EmploymentTenure) (EmploymentTenure, error)
	End(ctx context.Context, id int64, endedAt time.Time) error
	UpdateSeat(ctx context.Context, id int64, seatID *int64) error
	ListBySubject(ctx context.Context, subjectID, companyID int64) ([]EmploymentTenure, error)
	// SetLastTerminatedAt maintains the subject's denormalized termination marker.
	SetLastTerminatedAt(ctx context.Context, subjectID int64, at time.Time) error
	LastTerminatedAt(ctx context.Context, subjectID int64) (*time.Time, error)
}
