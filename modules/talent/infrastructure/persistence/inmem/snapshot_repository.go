package inmem

import (
	"context"
	"sort"
	"time"

	"github.com/iota-uz/iota-talent/modules/talent/domain/snapshot"
)

type snapshotRepo struct{ s *Store }

func (r *snapshotRepo) Create(ctx context.Context, snap *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	row := *snap
	err := r.s.do(ctx, "snapshots.create", func(t *tables) error {
		row.ID = t.nextID()
		if row.CreatedAt.IsZero() {
			row.CreatedAt = r.s.now().UTC()
		}
		t.snapshots.Set(row.ID, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *snapshotRepo) GetByID(ctx context.Context, id int64) (*snapshot.Snapshot, error) {
	var out *snapshot.Snapshot
	err := r.s.do(ctx, "snapshots.get", func(t *tables) error {
		row, ok := t.snapshots.Get(id)
		if !ok {
			return snapshot.ErrNotFound
		}
		out = &row
		return nil
	})
	return out, err
}

func (r *snapshotRepo) LockByID(ctx context.Context, id int64) (*snapshot.Snapshot, error) {
	return r.GetByID(ctx, id)
}

func (r *snapshotRepo) FindPrevious(ctx context.Context, subjectID, companyID int64, before time.Time) (*snapshot.Snapshot, bool, error) {
	var out *snapshot.Snapshot
	err := r.s.do(ctx, "snapshots.find_previous", func(t *tables) error {
		for _, row := range t.snapshots.Values() {
			if row.SubjectID != subjectID || row.CompanyID != companyID || !row.CreatedAt.Before(before) {
				continue
			}
			if out == nil || out.CreatedAt.Before(row.CreatedAt) || (out.CreatedAt.Equal(row.CreatedAt) && out.ID < row.ID) {
				cp := row
				out = &cp
			}
		}
		return nil
	})
	return out, out != nil, err
}

func (r *snapshotRepo) Update(ctx context.Context, snap *snapshot.Snapshot) error {
	row := *snap
	return r.s.do(ctx, "snapshots.update", func(t *tables) error {
		if _, ok := t.snapshots.Get(row.ID); !ok {
			return snapshot.ErrNotFound
		}
		t.snapshots.Set(row.ID, row)
		return nil
	})
}

func (r *snapshotRepo) ListBySubject(ctx context.Context, subjectID, companyID int64) ([]*snapshot.Snapshot, error) {
	var out []*snapshot.Snapshot
	err := r.s.do(ctx, "snapshots.list", func(t *tables) error {
		for _, row := range t.snapshots.Values() {
			if row.SubjectID == subjectID && row.CompanyID == companyID {
				out = append(out, &row)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}
