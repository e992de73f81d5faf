package services

import (
	"context"
	"time"

	"github.com/wI2L/jsondiff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/iota-talent/modules/talent/domain/milestone"
	"github.com/iota-uz/iota-talent/modules/talent/domain/snapshot"
	"github.com/iota-uz/iota-talent/pkg/optional"
)

// NoneValue stands in for an absent or null value on either side of a change.
const NoneValue = "none"

const (
	FieldNewAssignment          = "new_assignment"
	FieldNewTenure              = "new_tenure"
	FieldNewRatedPosition       = "new_rated_position"
	FieldRatedAssignmentRemoved = "rated_assignment_removed"
	fieldEnergy                 = "anticipated_energy_percentage"
	newRatingValue              = "new rating"
)

type FieldChange struct {
	Field    string `json:"field"`
	Current  any    `json:"current"`
	Proposed any    `json:"proposed"`
}

// EntryChange groups the changed fields of one entity: the subject for
// employment, otherwise the assignment, ability or aspiration id.
type EntryChange struct {
	EntityID int64         `json:"entity_id"`
	Changes  []FieldChange `json:"changes"`
}

type DomainChanges struct {
	HasChanges bool          `json:"has_changes"`
	Details    []EntryChange `json:"details"`
}

type ChangeReport struct {
	Employment  DomainChanges `json:"employment"`
	Assignments DomainChanges `json:"assignments"`
	Milestones  DomainChanges `json:"milestones"`
	Aspirations DomainChanges `json:"aspirations"`
}

// Counts is the number of entries with at least one changed field per domain.
type Counts struct {
	Employment  int `json:"employment"`
	Assignments int `json:"assignments"`
	Milestones  int `json:"milestones"`
	Aspirations int `json:"aspirations"`
}

func (c Counts) Total() int {
	return c.Employment + c.Assignments + c.Milestones + c.Aspirations
}

func (r ChangeReport) Counts() Counts {
	return Counts{
		Employment:  len(r.Employment.Details),
		Assignments: len(r.Assignments.Details),
		Milestones:  len(r.Milestones.Details),
		Aspirations: len(r.Aspirations.Details),
	}
}

func (r ChangeReport) HasChanges() bool { return r.Counts().Total() > 0 }

// ChangeDetector compares a snapshot with its predecessor. It never touches
// the store and never fails on missing data.
type ChangeDetector struct {
	tracer trace.Tracer
}

func NewChangeDetector(opts Options) *ChangeDetector {
	return &ChangeDetector{tracer: opts.withDefaults("talent.change_detection").Tracer}
}

// Diff reports every field whose value differs between previous and current.
// A nil previous means current is the first snapshot.
func (d *ChangeDetector) Diff(ctx context.Context, current, previous *snapshot.Snapshot) ChangeReport {
	_, span := d.tracer.Start(ctx, "talent.Diff")
	defer span.End()

	report := Diff(current, previous)
	counts := report.Counts()
	span.SetAttributes(
		attribute.Int("talent.changes.employment", counts.Employment),
		attribute.Int("talent.changes.assignments", counts.Assignments),
		attribute.Int("talent.changes.milestones", counts.Milestones),
		attribute.Int("talent.changes.aspirations", counts.Aspirations),
	)
	return report
}

func (d *ChangeDetector) ChangeCounts(ctx context.Context, current, previous *snapshot.Snapshot) Counts {
	return d.Diff(ctx, current, previous).Counts()
}

// RawPatch returns the RFC 6902 patch turning previous's proposed state into
// current's, for audit storage.
func (d *ChangeDetector) RawPatch(current, previous *snapshot.Snapshot) (jsondiff.Patch, error) {
	return jsondiff.Compare(stateOf(previous), stateOf(current))
}

func stateOf(s *snapshot.Snapshot) snapshot.ProposedState {
	if s == nil {
		return snapshot.ProposedState{}
	}
	return s.ProposedState
}

// Diff is the pure comparison behind ChangeDetector.Diff.
func Diff(current, previous *snapshot.Snapshot) ChangeReport {
	cur, prev := stateOf(current), stateOf(previous)
	var subjectID int64
	if current != nil {
		subjectID = current.SubjectID
	}
	return ChangeReport{
		Employment:  domainOf(diffEmployment(subjectID, cur.Employment, prev.Employment)),
		Assignments: domainOf(diffAssignments(cur, prev)),
		Milestones:  domainOf(diffMilestones(cur, prev)),
		Aspirations: domainOf(diffAspirations(cur, prev)),
	}
}

func domainOf(entries []EntryChange) DomainChanges {
	if entries == nil {
		entries = []EntryChange{}
	}
	return DomainChanges{HasChanges: len(entries) > 0, Details: entries}
}

type field struct {
	name  string
	value any
}

// compareFields walks two flattened entries in lockstep. With isNew set the
// previous side is treated as none throughout and unset completions are not
// reported.
func compareFields(cur, prev []field, isNew bool) []FieldChange {
	var out []FieldChange
	for i, f := range cur {
		proposed := f.value
		var current any = NoneValue
		if isNew {
			if proposed == false {
				proposed = NoneValue
			}
		} else {
			current = prev[i].value
		}
		if f.name == fieldEnergy && proposed == 0 && (current == NoneValue || current == 0) {
			continue
		}
		if current != proposed {
			out = append(out, FieldChange{Field: f.name, Current: current, Proposed: proposed})
		}
	}
	return out
}

func value[T any](v optional.Value[T]) any {
	got, ok := v.Get()
	if !ok {
		return NoneValue
	}
	if t, isTime := any(got).(time.Time); isTime {
		return t.UTC().Format(time.RFC3339)
	}
	return got
}

func completed(v optional.Value[time.Time]) bool {
	_, ok := v.Get()
	return ok
}

func diffEmployment(subjectID int64, cur, prev *snapshot.EmploymentProposal) []EntryChange {
	if cur == nil && prev == nil {
		return nil
	}
	changes := compareFields(flattenEmployment(cur), flattenEmployment(prev), prev == nil)

	var curRated, prevRated *snapshot.RatedPosition
	if cur != nil {
		curRated = cur.RatedPosition
	}
	if prev != nil {
		prevRated = prev.RatedPosition
	}
	switch {
	case curRated != nil && prevRated == nil:
		changes = append(changes, FieldChange{Field: FieldNewRatedPosition, Current: NoneValue, Proposed: newRatingValue})
	case curRated != nil:
		changes = append(changes, compareFields(flattenRated(curRated), flattenRated(prevRated), false)...)
	}

	if len(changes) == 0 {
		return nil
	}
	return []EntryChange{{EntityID: subjectID, Changes: changes}}
}

func flattenEmployment(e *snapshot.EmploymentProposal) []field {
	if e == nil {
		e = &snapshot.EmploymentProposal{}
	}
	return []field{
		{"position_id", value(e.PositionID)},
		{"manager_id", value(e.ManagerID)},
		{"seat_id", value(e.SeatID)},
		{"employment_type", value(e.EmploymentType)},
		{"started_at", value(e.StartedAt)},
		{"termination_date", value(e.TerminationDate)},
	}
}

func flattenRated(r *snapshot.RatedPosition) []field {
	return []field{
		{"rated_position_official_rating", value(r.OfficialRating)},
		{"rated_position_shared_notes", value(r.SharedNotes)},
		{"rated_position_rated_at", value(r.RatedAt)},
	}
}

func flattenCheckIns(e *snapshot.EmployeeCheckInProposal, m *snapshot.ManagerCheckInProposal, o *snapshot.OfficialCheckInProposal) []field {
	if e == nil {
		e = &snapshot.EmployeeCheckInProposal{}
	}
	if m == nil {
		m = &snapshot.ManagerCheckInProposal{}
	}
	if o == nil {
		o = &snapshot.OfficialCheckInProposal{}
	}
	return []field{
		{"employee_actual_energy_percentage", value(e.ActualEnergyPercentage)},
		{"employee_rating", value(e.Rating)},
		{"employee_personal_alignment", value(e.PersonalAlignment)},
		{"employee_private_notes", value(e.PrivateNotes)},
		{"employee_completed", completed(e.CompletedAt)},
		{"manager_rating", value(m.Rating)},
		{"manager_private_notes", value(m.PrivateNotes)},
		{"manager_completed", completed(m.CompletedAt)},
		{"official_rating", value(o.OfficialRating)},
		{"shared_notes", value(o.SharedNotes)},
		{"official_completed", completed(o.CompletedAt)},
	}
}

func flattenAssignment(a *snapshot.AssignmentProposal) []field {
	t := &snapshot.TenureProposal{}
	if a.Tenure != nil {
		t = a.Tenure
	}
	return append([]field{
		{fieldEnergy, value(t.AnticipatedEnergyPercentage)},
		{"tenure_started_at", value(t.StartedAt)},
	}, flattenCheckIns(a.EmployeeCheckIn, a.ManagerCheckIn, a.OfficialCheckIn)...)
}

func diffAssignments(cur, prev snapshot.ProposedState) []EntryChange {
	var out []EntryChange
	for i := range cur.Assignments {
		a := &cur.Assignments[i]
		old, matched := prev.Assignment(a.AssignmentID)
		var changes []FieldChange
		if matched {
			changes = compareFields(flattenAssignment(a), flattenAssignment(&old), false)
		} else {
			changes = newAssignmentChanges(a)
		}
		if len(changes) > 0 {
			out = append(out, EntryChange{EntityID: a.AssignmentID, Changes: changes})
		}
	}

	for _, old := range prev.Assignments {
		if _, still := cur.Assignment(old.AssignmentID); still {
			continue
		}
		if old.OfficialCheckIn == nil {
			continue
		}
		if rating, ok := old.OfficialCheckIn.OfficialRating.Get(); ok {
			out = append(out, EntryChange{EntityID: old.AssignmentID, Changes: []FieldChange{
				{Field: FieldRatedAssignmentRemoved, Current: rating, Proposed: NoneValue},
			}})
		}
	}
	return out
}

// newAssignmentChanges describes an id the previous snapshot did not have. A
// zero or missing energy opens no tenure, so only check-in data is reported.
func newAssignmentChanges(a *snapshot.AssignmentProposal) []FieldChange {
	fields := flattenAssignment(a)
	rest := compareFields(fields[1:], nil, true)

	var energy int
	if a.Tenure != nil {
		energy = a.Tenure.AnticipatedEnergyPercentage.Or(0)
	}
	if energy > 0 {
		return append([]FieldChange{{Field: FieldNewTenure, Current: NoneValue, Proposed: energy}}, rest...)
	}
	if len(rest) == 0 {
		return nil
	}
	// A tenure start date without energy is not a new tenure.
	for i, c := range rest {
		if c.Field == "tenure_started_at" {
			rest = append(rest[:i], rest[i+1:]...)
			break
		}
	}
	if len(rest) == 0 {
		return nil
	}
	return append([]FieldChange{{Field: FieldNewAssignment, Current: NoneValue, Proposed: a.AssignmentID}}, rest...)
}

func flattenMilestone(m *snapshot.MilestoneProposal) []field {
	return []field{
		{"milestone_level", value(m.MilestoneLevel)},
		{"certified_by", value(m.CertifyingSubjectID)},
		{"attained_at", value(m.AttainedAt)},
	}
}

func diffMilestones(cur, prev snapshot.ProposedState) []EntryChange {
	var out []EntryChange
	for i := range cur.Milestones {
		m := &cur.Milestones[i]
		old, matched := prev.Milestone(m.AbilityID)
		var changes []FieldChange
		switch {
		case matched:
			changes = compareFields(flattenMilestone(m), flattenMilestone(&old), false)
		case milestone.RemovesAttainment(m.MilestoneLevel.Or(0)):
			// Removing an attainment nobody recorded confirms the current state.
			continue
		default:
			changes = compareFields(flattenMilestone(m), nil, true)
		}
		if len(changes) > 0 {
			out = append(out, EntryChange{EntityID: m.AbilityID, Changes: changes})
		}
	}
	return out
}

func flattenAspiration(a *snapshot.AspirationProposal) []field {
	return flattenCheckIns(a.EmployeeCheckIn, a.ManagerCheckIn, a.OfficialCheckIn)
}

func diffAspirations(cur, prev snapshot.ProposedState) []EntryChange {
	var out []EntryChange
	for i := range cur.Aspirations {
		a := &cur.Aspirations[i]
		old, matched := prev.Aspiration(a.AspirationID)
		var changes []FieldChange
		if matched {
			changes = compareFields(flattenAspiration(a), flattenAspiration(&old), false)
		} else {
			changes = compareFields(flattenAspiration(a), nil, true)
		}
		if len(changes) > 0 {
			out = append(out, EntryChange{EntityID: a.AspirationID, Changes: changes})
		}
	}
	return out
}
