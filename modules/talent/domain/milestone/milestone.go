package milestone

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("milestone attainment not found")

const (
	MinLevel = 1
	MaxLevel = 5
)

// Attainment is the single current milestone level a subject holds for an
// ability. History lives in snapshots, not here.
type Attainment struct {
	SubjectID           int64     `json:"subject_id"`
	AbilityID           int64     `json:"ability_id"`
	MilestoneLevel      int       `json:"milestone_level"`
	CertifyingSubjectID int64     `json:"certifying_subject_id"`
	AttainedAt          time.Time `json:"attained_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// RemovesAttainment reports whether a proposed level means "delete the row".
func RemovesAttainment(level int) bool { return level == 0 }

func ValidLevel(level int) bool { return level >= MinLevel && level <= MaxLevel }

type Repository interface {
	Get(ctx context.Context, subjectID, abilityID int64) (Attainment, error)
	Upsert(ctx context.Context, a Attainment) error
	Delete(ctx context.Context, subjectID, abilityID int64) error
	ListBySubject(ctx context.Context, subjectID int64) ([]Attainment, error)
}
