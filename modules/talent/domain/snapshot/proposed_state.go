package snapshot

import (
	"encoding/json"
	"time"

	"github.com/iota-uz/iota-talent/pkg/optional"
)

// ProposedState is the nested proposal carried by a snapshot. Nil sections and
// absent optional fields are "not part of this proposal"; explicit nulls ask
// for the value to be cleared.
type ProposedState struct {
	Employment  *EmploymentProposal  `json:"employment,omitempty"`
	Assignments []AssignmentProposal `json:"assignments,omitempty"`
	Milestones  []MilestoneProposal  `json:"milestones,omitempty"`
	Aspirations []AspirationProposal `json:"aspirations,omitempty"`
}

// Dates inside proposals are YYYY-MM-DD strings and are parsed when applied.
type EmploymentProposal struct {
	PositionID      optional.Value[int64]  `json:"position_id,omitzero"`
	ManagerID       optional.Value[int64]  `json:"manager_id,omitzero"`
	SeatID          optional.Value[int64]  `json:"seat_id,omitzero"`
	EmploymentType  optional.Value[string] `json:"employment_type,omitzero"`
	StartedAt       optional.Value[string] `json:"started_at,omitzero"`
	TerminationDate optional.Value[string] `json:"termination_date,omitzero"`
	RatedPosition   *RatedPosition         `json:"rated_position,omitempty"`
}

// RatedPosition is an official position rating event.
type RatedPosition struct {
	OfficialRating optional.Value[string]    `json:"official_rating,omitzero"`
	SharedNotes    optional.Value[string]    `json:"shared_notes,omitzero"`
	RatedAt        optional.Value[time.Time] `json:"rated_at,omitzero"`
}

type AssignmentProposal struct {
	AssignmentID    int64                    `json:"assignment_id"`
	Tenure          *TenureProposal          `json:"tenure,omitempty"`
	EmployeeCheckIn *EmployeeCheckInProposal `json:"employee_check_in,omitempty"`
	ManagerCheckIn  *ManagerCheckInProposal  `json:"manager_check_in,omitempty"`
	OfficialCheckIn *OfficialCheckInProposal `json:"official_check_in,omitempty"`
}

type TenureProposal struct {
	AnticipatedEnergyPercentage optional.Value[int]    `json:"anticipated_energy_percentage,omitzero"`
	StartedAt                   optional.Value[string] `json:"started_at,omitzero"`
}

type EmployeeCheckInProposal struct {
	ActualEnergyPercentage optional.Value[int]       `json:"actual_energy_percentage,omitzero"`
	Rating                 optional.Value[string]    `json:"rating,omitzero"`
	PersonalAlignment      optional.Value[string]    `json:"personal_alignment,omitzero"`
	PrivateNotes           optional.Value[string]    `json:"private_notes,omitzero"`
	CompletedAt            optional.Value[time.Time] `json:"completed_at,omitzero"`
}

type ManagerCheckInProposal struct {
	Rating       optional.Value[string]    `json:"rating,omitzero"`
	PrivateNotes optional.Value[string]    `json:"private_notes,omitzero"`
	CompletedAt  optional.Value[time.Time] `json:"completed_at,omitzero"`
}

type OfficialCheckInProposal struct {
	OfficialRating optional.Value[string]    `json:"official_rating,omitzero"`
	SharedNotes    optional.Value[string]    `json:"shared_notes,omitzero"`
	CompletedAt    optional.Value[time.Time] `json:"completed_at,omitzero"`
}

type MilestoneProposal struct {
	AbilityID           int64                  `json:"ability_id"`
	MilestoneLevel      optional.Value[int]    `json:"milestone_level,omitzero"`
	CertifyingSubjectID optional.Value[int64]  `json:"certifying_subject_id,omitzero"`
	AttainedAt          optional.Value[string] `json:"attained_at,omitzero"`
}

type AspirationProposal struct {
	AspirationID    int64                    `json:"aspiration_id"`
	EmployeeCheckIn *EmployeeCheckInProposal `json:"employee_check_in,omitempty"`
	ManagerCheckIn  *ManagerCheckInProposal  `json:"manager_check_in,omitempty"`
	OfficialCheckIn *OfficialCheckInProposal `json:"official_check_in,omitempty"`
}

func (p ProposedState) Empty() bool {
	return p.Employment == nil && len(p.Assignments) == 0 && len(p.Milestones) == 0 && len(p.Aspirations) == 0
}

// Assignment returns the entry for id, if proposed.
func (p ProposedState) Assignment(id int64) (AssignmentProposal, bool) {
	for _, a := range p.Assignments {
		if a.AssignmentID == id {
			return a, true
		}
	}
	return AssignmentProposal{}, false
}

func (p ProposedState) Milestone(abilityID int64) (MilestoneProposal, bool) {
	for _, m := range p.Milestones {
		if m.AbilityID == abilityID {
			return m, true
		}
	}
	return MilestoneProposal{}, false
}

func (p ProposedState) Aspiration(id int64) (AspirationProposal, bool) {
	for _, a := range p.Aspirations {
		if a.AspirationID == id {
			return a, true
		}
	}
	return AspirationProposal{}, false
}

func (p ProposedState) MarshalBytes() ([]byte, error) {
	return json.Marshal(p)
}

func ParseProposedState(data []byte) (ProposedState, error) {
	var p ProposedState
	if len(data) == 0 {
		return p, nil
	}
	err := json.Unmarshal(data, &p)
	return p, err
}
