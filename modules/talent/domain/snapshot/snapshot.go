package snapshot

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("snapshot not found")
	ErrAlreadyExecuted = errors.New("snapshot already executed")
)

type ChangeType string

const (
	ChangeTypeEmploymentPosition   ChangeType = "employment_position"
	ChangeTypeAssignmentManagement ChangeType = "assignment_management"
	ChangeTypeMilestoneManagement  ChangeType = "milestone_management"
	ChangeTypeAspirationManagement ChangeType = "aspiration_management"
	ChangeTypeBulk                 ChangeType = "bulk"
)

func (t ChangeType) Valid() bool {
	switch t {
	case ChangeTypeEmploymentPosition, ChangeTypeAssignmentManagement,
		ChangeTypeMilestoneManagement, ChangeTypeAspirationManagement, ChangeTypeBulk:
		return true
	}
	return false
}

// ParseChangeType accepts both snake_case and kebab-case spellings.
func ParseChangeType(s string) (ChangeType, bool) {
	t := ChangeType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	return t, t.Valid()
}

// Snapshot is one proposed full-profile state for a subject within a company.
// Only EffectiveDate, AcknowledgedAt, ExecutedAt and, before execution, the
// proposed state and reason change after creation.
type Snapshot struct {
	ID             int64         `json:"id"`
	SubjectID      int64         `json:"subject_id"`
	CompanyID      int64         `json:"company_id"`
	CreatorID      int64         `json:"creator_id"`
	ChangeType     ChangeType    `json:"change_type"`
	ProposedState  ProposedState `json:"proposed_state"`
	Reason         string        `json:"reason"`
	CreatedAt      time.Time     `json:"created_at"`
	EffectiveDate  *time.Time    `json:"effective_date,omitempty"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	ExecutedAt     *time.Time    `json:"executed_at,omitempty"`
}

func (s *Snapshot) Executed() bool {
	return s != nil && s.ExecutedAt != nil
}

// Before reports whether s sorts strictly before other in diff order.
func (s *Snapshot) Before(other *Snapshot) bool {
	return s.CreatedAt.Before(other.CreatedAt)
}
