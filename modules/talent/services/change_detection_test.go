package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-talent/modules/talent/domain/snapshot"
	"github.com/iota-uz/iota-talent/pkg/optional"
)

func snap(state snapshot.ProposedState) *snapshot.Snapshot {
	return &snapshot.Snapshot{SubjectID: testSubjectID, CompanyID: testCompanyID, ProposedState: state}
}

func withTenure(id int64, energy int) snapshot.AssignmentProposal {
	return snapshot.AssignmentProposal{
		AssignmentID: id,
		Tenure:       &snapshot.TenureProposal{AnticipatedEnergyPercentage: optional.Of(energy)},
	}
}

func TestDiff_FirstSnapshotReportsNewTenure(t *testing.T) {
	report := Diff(snap(snapshot.ProposedState{Assignments: []snapshot.AssignmentProposal{withTenure(7, 50)}}), nil)

	require.True(t, report.Assignments.HasChanges)
	require.Len(t, report.Assignments.Details, 1)
	entry := report.Assignments.Details[0]
	require.Equal(t, int64(7), entry.EntityID)
	require.Equal(t, []FieldChange{{Field: FieldNewTenure, Current: NoneValue, Proposed: 50}}, entry.Changes)

	require.False(t, report.Employment.HasChanges)
	require.False(t, report.Milestones.HasChanges)
	require.False(t, report.Aspirations.HasChanges)
}

func fullState() snapshot.ProposedState {
	completed := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return snapshot.ProposedState{
		Employment: &snapshot.EmploymentProposal{
			PositionID:     optional.Of(int64(10)),
			ManagerID:      optional.Of(testManagerID),
			EmploymentType: optional.Of("full_time"),
			RatedPosition:  &snapshot.RatedPosition{OfficialRating: optional.Of("meets")},
		},
		Assignments: []snapshot.AssignmentProposal{{
			AssignmentID: 7,
			Tenure:       &snapshot.TenureProposal{AnticipatedEnergyPercentage: optional.Of(50)},
			EmployeeCheckIn: &snapshot.EmployeeCheckInProposal{
				Rating:      optional.Of("great"),
				CompletedAt: optional.Of(completed),
			},
			OfficialCheckIn: &snapshot.OfficialCheckInProposal{OfficialRating: optional.Of("exceeds")},
		}},
		Milestones: []snapshot.MilestoneProposal{{
			AbilityID:      30,
			MilestoneLevel: optional.Of(3),
		}},
		Aspirations: []snapshot.AspirationProposal{{
			AspirationID:    40,
			ManagerCheckIn:  &snapshot.ManagerCheckInProposal{Rating: optional.Of("on_track")},
			OfficialCheckIn: &snapshot.OfficialCheckInProposal{OfficialRating: optional.Of("ready")},
		}},
	}
}

func TestDiff_IdenticalStatesHaveNoChanges(t *testing.T) {
	report := Diff(snap(fullState()), snap(fullState()))

	require.False(t, report.Employment.HasChanges)
	require.False(t, report.Assignments.HasChanges)
	require.False(t, report.Milestones.HasChanges)
	require.False(t, report.Aspirations.HasChanges)
	require.Zero(t, report.Counts().Total())
	require.False(t, report.HasChanges())
}

func TestDiff_IdenticalAfterJSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(fullState())
	require.NoError(t, err)
	decoded, err := snapshot.ParseProposedState(raw)
	require.NoError(t, err)

	require.Zero(t, Diff(snap(decoded), snap(fullState())).Counts().Total())
}

func TestDiff_ZeroEnergyWithoutActiveTenureIsNoChange(t *testing.T) {
	cur := snap(snapshot.ProposedState{Assignments: []snapshot.AssignmentProposal{withTenure(7, 0)}})

	require.False(t, Diff(cur, nil).Assignments.HasChanges)

	prev := snap(snapshot.ProposedState{Assignments: []snapshot.AssignmentProposal{{AssignmentID: 7}}})
	require.False(t, Diff(cur, prev).Assignments.HasChanges)

	ended := snap(snapshot.ProposedState{Assignments: []snapshot.AssignmentProposal{withTenure(7, 0)}})
	require.False(t, Diff(cur, ended).Assignments.HasChanges)

	active := snap(snapshot.ProposedState{Assignments: []snapshot.AssignmentProposal{withTenure(7, 25)}})
	report := Diff(cur, active)
	require.Equal(t, []FieldChange{{Field: "anticipated_energy_percentage", Current: 25, Proposed: 0}}, report.Assignments.Details[0].Changes)
}

func TestDiff_MatchedAssignmentReportsEachField(t *testing.T) {
	prev := fullState()
	cur := fullState()
	cur.Assignments[0].Tenure.AnticipatedEnergyPercentage = optional.Of(75)
	cur.Assignments[0].EmployeeCheckIn.CompletedAt = optional.Null[time.Time]()
	cur.Assignments[0].ManagerCheckIn = &snapshot.ManagerCheckInProposal{PrivateNotes: optional.Of("talk more")}

	report := Diff(snap(cur), snap(prev))
	require.Equal(t, 1, report.Counts().Assignments)
	require.Equal(t, []FieldChange{
		{Field: "anticipated_energy_percentage", Current: 50, Proposed: 75},
		{Field: "employee_completed", Current: true, Proposed: false},
		{Field: "manager_private_notes", Current: NoneValue, Proposed: "talk more"},
	}, report.Assignments.Details[0].Changes)
}

func TestDiff_NewAssignmentWithoutTenure(t *testing.T) {
	cur := snap(snapshot.ProposedState{Assignments: []snapshot.AssignmentProposal{{
		AssignmentID:    8,
		EmployeeCheckIn: &snapshot.EmployeeCheckInProposal{Rating: optional.Of("ok")},
	}}})

	changes := Diff(cur, nil).Assignments.Details[0].Changes
	require.Equal(t, []FieldChange{
		{Field: FieldNewAssignment, Current: NoneValue, Proposed: int64(8)},
		{Field: "employee_rating", Current: NoneValue, Proposed: "ok"},
	}, changes)
}

func TestDiff_RemovedAssignmentOnlyReportedWhenRated(t *testing.T) {
	prev := snap(snapshot.ProposedState{Assignments: []snapshot.AssignmentProposal{
		withTenure(7, 50),
		{AssignmentID: 8, OfficialCheckIn: &snapshot.OfficialCheckInProposal{OfficialRating: optional.Of("meets")}},
	}})
	cur := snap(snapshot.ProposedState{})

	report := Diff(cur, prev)
	require.Len(t, report.Assignments.Details, 1)
	require.Equal(t, int64(8), report.Assignments.Details[0].EntityID)
	require.Equal(t, []FieldChange{{Field: FieldRatedAssignmentRemoved, Current: "meets", Proposed: NoneValue}}, report.Assignments.Details[0].Changes)
}

func TestDiff_Employment(t *testing.T) {
	t.Run("new rated position", func(t *testing.T) {
		prev := fullState()
		prev.Employment.RatedPosition = nil
		report := Diff(snap(fullState()), snap(prev))
		require.Equal(t, []FieldChange{{Field: FieldNewRatedPosition, Current: NoneValue, Proposed: "new rating"}}, report.Employment.Details[0].Changes)
		require.Equal(t, testSubjectID, report.Employment.Details[0].EntityID)
	})

	t.Run("rating changed", func(t *testing.T) {
		cur := fullState()
		cur.Employment.RatedPosition.OfficialRating = optional.Of("exceeds")
		report := Diff(snap(cur), snap(fullState()))
		require.Equal(t, []FieldChange{{Field: "rated_position_official_rating", Current: "meets", Proposed: "exceeds"}}, report.Employment.Details[0].Changes)
	})

	t.Run("manager changed and seat cleared", func(t *testing.T) {
		prev := fullState()
		prev.Employment.SeatID = optional.Of(int64(3))
		cur := fullState()
		cur.Employment.ManagerID = optional.Of(int64(201))
		cur.Employment.SeatID = optional.Null[int64]()
		report := Diff(snap(cur), snap(prev))
		require.Equal(t, []FieldChange{
			{Field: "manager_id", Current: testManagerID, Proposed: int64(201)},
			{Field: "seat_id", Current: int64(3), Proposed: NoneValue},
		}, report.Employment.Details[0].Changes)
	})

	t.Run("first snapshot", func(t *testing.T) {
		report := Diff(snap(fullState()), nil)
		require.Equal(t, 1, report.Counts().Employment)
		changes := report.Employment.Details[0].Changes
		require.Equal(t, FieldChange{Field: "position_id", Current: NoneValue, Proposed: int64(10)}, changes[0])
		require.Equal(t, FieldChange{Field: FieldNewRatedPosition, Current: NoneValue, Proposed: "new rating"}, changes[len(changes)-1])
	})
}

func TestDiff_MilestonesAndAspirations(t *testing.T) {
	prev := fullState()
	cur := fullState()
	cur.Milestones[0].MilestoneLevel = optional.Of(4)
	cur.Milestones = append(cur.Milestones, snapshot.MilestoneProposal{
		AbilityID:           31,
		MilestoneLevel:      optional.Of(1),
		CertifyingSubjectID: optional.Of(testManagerID),
		AttainedAt:          optional.Of("2025-06-01"),
	})
	cur.Aspirations[0].OfficialCheckIn.OfficialRating = optional.Of("not_yet")

	report := Diff(snap(cur), snap(prev))
	require.Equal(t, Counts{Milestones: 2, Aspirations: 1}, report.Counts())

	require.Equal(t, []FieldChange{{Field: "milestone_level", Current: 3, Proposed: 4}}, report.Milestones.Details[0].Changes)
	require.Equal(t, []FieldChange{
		{Field: "milestone_level", Current: NoneValue, Proposed: 1},
		{Field: "certified_by", Current: NoneValue, Proposed: testManagerID},
		{Field: "attained_at", Current: NoneValue, Proposed: "2025-06-01"},
	}, report.Milestones.Details[1].Changes)
	require.Equal(t, []FieldChange{{Field: "official_rating", Current: "ready", Proposed: "not_yet"}}, report.Aspirations.Details[0].Changes)
}

func TestDiff_RemovingUnrecordedMilestoneIsNoChange(t *testing.T) {
	cur := snapshot.ProposedState{Milestones: []snapshot.MilestoneProposal{
		{AbilityID: 30, MilestoneLevel: optional.Of(0)},
		{AbilityID: 31},
	}}
	require.False(t, Diff(snap(cur), nil).Milestones.HasChanges)

	prev := snapshot.ProposedState{Milestones: []snapshot.MilestoneProposal{{AbilityID: 30, MilestoneLevel: optional.Of(2)}}}
	report := Diff(snap(cur), snap(prev))
	require.Equal(t, Counts{Milestones: 1}, report.Counts())
	require.Equal(t, int64(30), report.Milestones.Details[0].EntityID)
	require.Equal(t, []FieldChange{{Field: "milestone_level", Current: 2, Proposed: 0}}, report.Milestones.Details[0].Changes)
}

func TestDiff_ToleratesNilSections(t *testing.T) {
	cases := []struct {
		name      string
		cur, prev *snapshot.Snapshot
	}{
		{"both nil", nil, nil},
		{"empty current", snap(snapshot.ProposedState{}), snap(fullState())},
		{"nil sub-objects", snap(snapshot.ProposedState{
			Employment:  &snapshot.EmploymentProposal{},
			Assignments: []snapshot.AssignmentProposal{{AssignmentID: 7}},
			Aspirations: []snapshot.AspirationProposal{{AspirationID: 40}},
		}), snap(snapshot.ProposedState{Employment: &snapshot.EmploymentProposal{RatedPosition: &snapshot.RatedPosition{}}})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NotPanics(t, func() { Diff(tc.cur, tc.prev) })
		})
	}
}

func TestChangeDetector_CountsAndRawPatch(t *testing.T) {
	d := NewChangeDetector(Options{})
	prev := snap(fullState())
	curState := fullState()
	curState.Assignments[0].Tenure.AnticipatedEnergyPercentage = optional.Of(60)
	cur := snap(curState)

	counts := d.ChangeCounts(context.Background(), cur, prev)
	require.Equal(t, Counts{Assignments: 1}, counts)
	require.Equal(t, 1, counts.Total())

	patch, err := d.RawPatch(cur, prev)
	require.NoError(t, err)
	require.Len(t, patch, 1)
	require.Equal(t, "/assignments/0/tenure/anticipated_energy_percentage", patch[0].Path)

	patch, err = d.RawPatch(prev, prev)
	require.NoError(t, err)
	require.Empty(t, patch)
}

func TestChangeReport_JSONShape(t *testing.T) {
	report := Diff(snap(snapshot.ProposedState{Assignments: []snapshot.AssignmentProposal{withTenure(7, 50)}}), nil)
	raw, err := json.Marshal(report)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"employment": {"has_changes": false, "details": []},
		"assignments": {"has_changes": true, "details": [
			{"entity_id": 7, "changes": [{"field": "new_tenure", "current": "none", "proposed": 50}]}
		]},
		"milestones": {"has_changes": false, "details": []},
		"aspirations": {"has_changes": false, "details": []}
	}`, string(raw))
}
