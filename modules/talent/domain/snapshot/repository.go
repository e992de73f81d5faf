package snapshot

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, s *Snapshot) (*Snapshot, error)
	GetByID(ctx context.Context, id int64) (*Snapshot, error)
	// LockByID is GetByID holding a row lock until the transaction ends.
	LockByID(ctx context.Context, id int64) (*Snapshot, error)
	// FindPrevious returns the latest snapshot for (subject, company) created
	// strictly before the given instant.
	FindPrevious(ctx context.Context, subjectID, companyID int64, before time.Time) (*Snapshot, bool, error)
	Update(ctx context.Context, s *Snapshot) error
	ListBySubject(ctx context.Context, subjectID, companyID int64) ([]*Snapshot, error)
}
