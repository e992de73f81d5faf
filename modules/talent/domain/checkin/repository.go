package checkin

import "context"

type Repository interface {
	LockByID(ctx context.Context, id int64) (*CheckIn, error)
	// LockOpen returns the subject's unfinalized check-in for scope and locks it.
	LockOpen(ctx context.Context, kind Kind, subjectID, scopeID int64) (*CheckIn, bool, error)
	Create(ctx context.Context, c *CheckIn) (*CheckIn, error)
	Save(ctx context.Context, c *CheckIn) error
	ListOpen(ctx context.Context, subjectID int64) ([]*CheckIn, error)
}
