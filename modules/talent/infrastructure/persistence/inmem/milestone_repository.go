package inmem

import (
	"context"
	"sort"

	"github.com/iota-uz/iota-talent/modules/talent/domain/milestone"
)

type milestoneRepo struct{ s *Store }

func (r *milestoneRepo) Get(ctx context.Context, subjectID, abilityID int64) (milestone.Attainment, error) {
	var out milestone.Attainment
	err := r.s.do(ctx, "milestones.get", func(t *tables) error {
		row, ok := t.milestones.Get(milestoneKey{subjectID, abilityID})
		if !ok {
			return milestone.ErrNotFound
		}
		out = row
		return nil
	})
	return out, err
}

func (r *milestoneRepo) Upsert(ctx context.Context, a milestone.Attainment) error {
	return r.s.do(ctx, "milestones.upsert", func(t *tables) error {
		if !milestone.ValidLevel(a.MilestoneLevel) {
			return checkViolation("talent_milestone_attainments_level_check")
		}
		t.milestones.Set(milestoneKey{a.SubjectID, a.AbilityID}, a)
		return nil
	})
}

func (r *milestoneRepo) Delete(ctx context.Context, subjectID, abilityID int64) error {
	return r.s.do(ctx, "milestones.delete", func(t *tables) error {
		key := milestoneKey{subjectID, abilityID}
		if _, ok := t.milestones.Get(key); !ok {
			return milestone.ErrNotFound
		}
		t.milestones.Delete(key)
		return nil
	})
}

func (r *milestoneRepo) ListBySubject(ctx context.Context, subjectID int64) ([]milestone.Attainment, error) {
	var out []milestone.Attainment
	err := r.s.do(ctx, "milestones.list", func(t *tables) error {
		for _, row := range t.milestones.Values() {
			if row.SubjectID == subjectID {
				out = append(out, row)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AbilityID < out[j].AbilityID })
	return out, err
}
