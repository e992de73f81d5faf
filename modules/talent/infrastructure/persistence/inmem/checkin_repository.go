package inmem

import (
	"context"
	"sort"

	"github.com/iota-uz/iota-talent/modules/talent/domain/checkin"
)

type checkInRepo struct{ s *Store }

func (r *checkInRepo) LockByID(ctx context.Context, id int64) (*checkin.CheckIn, error) {
	var out *checkin.CheckIn
	err := r.s.do(ctx, "check_ins.lock_by_id", func(t *tables) error {
		row, ok := t.checkIns.Get(id)
		if !ok {
			return checkin.ErrNotFound
		}
		out = &row
		return nil
	})
	return out, err
}

func openCheckIn(t *tables, kind checkin.Kind, subjectID, scopeID int64) (checkin.CheckIn, bool) {
	for _, row := range t.checkIns.Values() {
		if row.Kind == kind && row.SubjectID == subjectID && row.ScopeID == scopeID && row.Open() {
			return row, true
		}
	}
	return checkin.CheckIn{}, false
}

func (r *checkInRepo) LockOpen(ctx context.Context, kind checkin.Kind, subjectID, scopeID int64) (*checkin.CheckIn, bool, error) {
	var (
		out   *checkin.CheckIn
		found bool
	)
	err := r.s.do(ctx, "check_ins.lock_open", func(t *tables) error {
		row, ok := openCheckIn(t, kind, subjectID, scopeID)
		if ok {
			out, found = &row, true
		}
		return nil
	})
	return out, found, err
}

func (r *checkInRepo) Create(ctx context.Context, c *checkin.CheckIn) (*checkin.CheckIn, error) {
	row := *c
	err := r.s.do(ctx, "check_ins.create", func(t *tables) error {
		if row.Open() {
			if _, exists := openCheckIn(t, row.Kind, row.SubjectID, row.ScopeID); exists {
				return uniqueViolation("talent_check_ins_one_open")
			}
		}
		now := r.s.now().UTC()
		row.ID = t.nextID()
		row.CreatedAt, row.UpdatedAt = now, now
		t.checkIns.Set(row.ID, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *checkInRepo) Save(ctx context.Context, c *checkin.CheckIn) error {
	row := *c
	return r.s.do(ctx, "check_ins.save", func(t *tables) error {
		if _, ok := t.checkIns.Get(row.ID); !ok {
			return checkin.ErrNotFound
		}
		if row.OfficialCompletedAt != nil && (row.EmployeeCompletedAt == nil || row.ManagerCompletedAt == nil) {
			return checkViolation("talent_check_ins_official_after_both")
		}
		t.checkIns.Set(row.ID, row)
		return nil
	})
}

func (r *checkInRepo) ListOpen(ctx context.Context, subjectID int64) ([]*checkin.CheckIn, error) {
	var out []*checkin.CheckIn
	err := r.s.do(ctx, "check_ins.list_open", func(t *tables) error {
		for _, row := range t.checkIns.Values() {
			if row.SubjectID == subjectID && row.Open() {
				out = append(out, &row)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}
