package tenure

import "time"

const (
	MinEnergyPercentage = 0
	MaxEnergyPercentage = 100
)

// AssignmentTenure is a subject's energy allocation to one assignment over a
// date range. EndedAt nil means active. A successor may start on the same day
// its predecessor ends.
type AssignmentTenure struct {
	ID                          int64      `json:"id"`
	SubjectID                   int64      `json:"subject_id"`
	AssignmentID                int64      `json:"assignment_id"`
	AnticipatedEnergyPercentage int        `json:"anticipated_energy_percentage"`
	StartedAt                   time.Time  `json:"started_at"`
	EndedAt                     *time.Time `json:"ended_at,omitempty"`
	CreatedAt                   time.Time  `json:"created_at"`
	UpdatedAt                   time.Time  `json:"updated_at"`
}

func (t AssignmentTenure) Active() bool { return t.EndedAt == nil }

// ActiveAt reports whether the tenure covers day, treating EndedAt as exclusive.
func (t AssignmentTenure) ActiveAt(day time.Time) bool {
	if day.Before(t.StartedAt) {
		return false
	}
	return t.EndedAt == nil || day.Before(*t.EndedAt)
}

// EmploymentTenure is a subject's position within a company.
type EmploymentTenure struct {
	ID             int64      `json:"id"`
	SubjectID      int64      `json:"subject_id"`
	CompanyID      int64      `json:"company_id"`
	PositionID     int64      `json:"position_id"`
	ManagerID      int64      `json:"manager_id"`
	SeatID         *int64     `json:"seat_id,omitempty"`
	EmploymentType string     `json:"employment_type"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (t EmploymentTenure) Active() bool { return t.EndedAt == nil }

// Successor copies the attributes that carry over to a replacement row.
func (t EmploymentTenure) Successor(startedAt time.Time) EmploymentTenure {
	next := EmploymentTenure{
		SubjectID:      t.SubjectID,
		CompanyID:      t.CompanyID,
		PositionID:     t.PositionID,
		ManagerID:      t.ManagerID,
		EmploymentType: t.EmploymentType,
		StartedAt:      startedAt,
	}
	if t.SeatID != nil {
		seat := *t.SeatID
		next.SeatID = &seat
	}
	return next
}

// CountActive returns the number of open rows, used to assert the single
// active tenure invariant.
func CountActive[T interface{ Active() bool }](rows []T) int {
	n := 0
	for _, r := range rows {
		if r.Active() {
			n++
		}
	}
	return n
}
