package inmem

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iota-uz/iota-talent/modules/talent/domain/tenure"
)

type assignmentTenureRepo struct{ s *Store }

func (r *assignmentTenureRepo) LockActive(ctx context.Context, subjectID, assignmentID int64) (tenure.AssignmentTenure, bool, error) {
	var (
		out   tenure.AssignmentTenure
		found bool
	)
	err := r.s.do(ctx, "assignment_tenures.lock_active", func(t *tables) error {
		out, found = activeAssignment(t, subjectID, assignmentID)
		return nil
	})
	return out, found, err
}

func activeAssignment(t *tables, subjectID, assignmentID int64) (tenure.AssignmentTenure, bool) {
	for _, row := range t.assignmentTenures.Values() {
		if row.SubjectID == subjectID && row.AssignmentID == assignmentID && row.Active() {
			return row, true
		}
	}
	return tenure.AssignmentTenure{}, false
}

func (r *assignmentTenureRepo) Create(ctx context.Context, row tenure.AssignmentTenure) (tenure.AssignmentTenure, error) {
	err := r.s.do(ctx, "assignment_tenures.create", func(t *tables) error {
		if row.AnticipatedEnergyPercentage < tenure.MinEnergyPercentage || row.AnticipatedEnergyPercentage > tenure.MaxEnergyPercentage {
			return checkViolation("talent_assignment_tenures_energy_check")
		}
		if row.Active() {
			if _, exists := activeAssignment(t, row.SubjectID, row.AssignmentID); exists {
				return uniqueViolation("talent_assignment_tenures_one_active")
			}
		}
		now := r.s.now().UTC()
		row.ID = t.nextID()
		row.CreatedAt, row.UpdatedAt = now, now
		t.assignmentTenures.Set(row.ID, row)
		return nil
	})
	return row, err
}

func (r *assignmentTenureRepo) End(ctx context.Context, id int64, endedAt time.Time) error {
	return r.s.do(ctx, "assignment_tenures.end", func(t *tables) error {
		row, ok := t.assignmentTenures.Get(id)
		if !ok {
			return fmt.Errorf("assignment tenure %d does not exist", id)
		}
		if endedAt.Before(row.StartedAt) {
			return checkViolation("talent_assignment_tenures_range_check")
		}
		row.EndedAt = &endedAt
		row.UpdatedAt = r.s.now().UTC()
		t.assignmentTenures.Set(id, row)
		return nil
	})
}

func (r *assignmentTenureRepo) ListBySubject(ctx context.Context, subjectID int64) ([]tenure.AssignmentTenure, error) {
	var out []tenure.AssignmentTenure
	err := r.s.do(ctx, "assignment_tenures.list", func(t *tables) error {
		for _, row := range t.assignmentTenures.Values() {
			if row.SubjectID == subjectID {
				out = append(out, row)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

type employmentTenureRepo struct{ s *Store }

func activeEmployment(t *tables, subjectID, companyID int64) (tenure.EmploymentTenure, bool) {
	for _, row := range t.employmentTenures.Values() {
		if row.SubjectID == subjectID && row.CompanyID == companyID && row.Active() {
			return row, true
		}
	}
	return tenure.EmploymentTenure{}, false
}

func (r *employmentTenureRepo) LockActive(ctx context.Context, subjectID, companyID int64) (tenure.EmploymentTenure, bool, error) {
	var (
		out   tenure.EmploymentTenure
		found bool
	)
	err := r.s.do(ctx, "employment_tenures.lock_active", func(t *tables) error {
		out, found = activeEmployment(t, subjectID, companyID)
		return nil
	})
	return out, found, err
}

func (r *employmentTenureRepo) Create(ctx context.Context, row tenure.EmploymentTenure) (tenure.EmploymentTenure, error) {
	err := r.s.do(ctx, "employment_tenures.create", func(t *tables) error {
		if row.Active() {
			if _, exists := activeEmployment(t, row.SubjectID, row.CompanyID); exists {
				return uniqueViolation("talent_employment_tenures_one_active")
			}
		}
		now := r.s.now().UTC()
		row.ID = t.nextID()
		row.CreatedAt, row.UpdatedAt = now, now
		t.employmentTenures.Set(row.ID, row)
		return nil
	})
	return row, err
}

func (r *employmentTenureRepo) End(ctx context.Context, id int64, endedAt time.Time) error {
	return r.s.do(ctx, "employment_tenures.end", func(t *tables) error {
		row, ok := t.employmentTenures.Get(id)
		if !ok {
			return fmt.Errorf("employment tenure %d does not exist", id)
		}
		if endedAt.Before(row.StartedAt) {
			return checkViolation("talent_employment_tenures_range_check")
		}
		row.EndedAt = &endedAt
		row.UpdatedAt = r.s.now().UTC()
		t.employmentTenures.Set(id, row)
		return nil
	})
}

func (r *employmentTenureRepo) UpdateSeat(ctx context.Context, id int64, seatID *int64) error {
	return r.s.do(ctx, "employment_tenures.update_seat", func(t *tables) error {
		row, ok := t.employmentTenures.Get(id)
		if !ok {
			return fmt.Errorf("employment tenure %d does not exist", id)
		}
		row.SeatID = seatID
		row.UpdatedAt = r.s.now().UTC()
		t.employmentTenures.Set(id, row)
		return nil
	})
}

func (r *employmentTenureRepo) ListBySubject(ctx context.Context, subjectID, companyID int64) ([]tenure.EmploymentTenure, error) {
	var out []tenure.EmploymentTenure
	err := r.s.do(ctx, "employment_tenures.list", func(t *tables) error {
		for _, row := range t.employmentTenures.Values() {
			if row.SubjectID == subjectID && row.CompanyID == companyID {
				out = append(out, row)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *employmentTenureRepo) SetLastTerminatedAt(ctx context.Context, subjectID int64, at time.Time) error {
	return r.s.do(ctx, "employment_tenures.set_last_terminated_at", func(t *tables) error {
		t.lastTerminated.Set(subjectID, at)
		return nil
	})
}

func (r *employmentTenureRepo) LastTerminatedAt(ctx context.Context, subjectID int64) (*time.Time, error) {
	var out *time.Time
	err := r.s.do(ctx, "employment_tenures.last_terminated_at", func(t *tables) error {
		if at, ok := t.lastTerminated.Get(subjectID); ok {
			out = &at
		}
		return nil
	})
	return out, err
}
