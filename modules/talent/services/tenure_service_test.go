package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-talent/modules/talent/domain/tenure"
	"github.com/iota-uz/iota-talent/pkg/optional"
)

func updateEnergy(t *testing.T, env *testEnv, assignmentID int64, energy int, date string) *AssignmentTenureResult {
	t.Helper()
	res, err := env.tenures.UpdateAssignmentTenure(context.Background(), UpdateAssignmentTenureInput{
		SubjectID:        testSubjectID,
		AssignmentID:     assignmentID,
		EnergyPercentage: energy,
		StartDate:        date,
	}, manager)
	require.NoError(t, err)
	return res
}

func activeCount(rows []tenureRow, assignmentID int64) int {
	n := 0
	for _, r := range rows {
		if r.assignmentID == assignmentID && r.ended == nil {
			n++
		}
	}
	return n
}

func TestUpdateAssignmentTenure_SingleActiveAcrossSequence(t *testing.T) {
	env := newTestEnv(t)
	steps := []struct {
		energy int
		date   string
		action TenureAction
	}{
		{0, "2025-01-01", TenureNoop},
		{25, "2025-01-01", TenureCreated},
		{25, "2025-01-15", TenureNoop},
		{50, "2025-02-01", TenureReplaced},
		{50, "2025-02-01", TenureNoop},
		{75, "2025-02-01", TenureReplaced},
		{0, "2025-03-01", TenureEnded},
		{0, "2025-03-02", TenureNoop},
		{10, "2025-04-01", TenureCreated},
	}
	for _, step := range steps {
		res := updateEnergy(t, env, 7, step.energy, step.date)
		require.Equal(t, step.action, res.Action, "energy=%d date=%s", step.energy, step.date)
		require.LessOrEqual(t, activeCount(env.assignmentTenures(t), 7), 1)
	}

	rows := env.assignmentTenures(t)
	require.Len(t, rows, 4)
	require.Equal(t, 1, activeCount(rows, 7))
}

func TestUpdateAssignmentTenure_IdempotentRepeat(t *testing.T) {
	env := newTestEnv(t)
	updateEnergy(t, env, 7, 40, "2025-05-01")
	before := len(env.assignmentTenures(t))

	res := updateEnergy(t, env, 7, 40, "2025-05-01")
	require.Equal(t, TenureNoop, res.Action)
	require.Len(t, env.assignmentTenures(t), before)
}

func TestUpdateAssignmentTenure_SameDayTransition(t *testing.T) {
	env := newTestEnv(t)
	today := testNow.Format("2006-01-02")
	monthAgo := testNow.AddDate(0, 0, -30).Format("2006-01-02")
	updateEnergy(t, env, 7, 25, monthAgo)
	before := len(env.assignmentTenures(t))

	res := updateEnergy(t, env, 7, 75, today)
	require.Equal(t, TenureReplaced, res.Action)
	require.Equal(t, day(today), *res.Ended.EndedAt)
	require.Equal(t, day(today), res.Current.StartedAt)
	require.Equal(t, 75, res.Current.AnticipatedEnergyPercentage)

	rows := env.assignmentTenures(t)
	require.Len(t, rows, before+1)
	require.Equal(t, *rows[0].ended, rows[1].started)
}

func TestUpdateAssignmentTenure_ZeroWithoutActiveIsNoop(t *testing.T) {
	env := newTestEnv(t)
	res := updateEnergy(t, env, 7, 0, testNow.Format("2006-01-02"))
	require.Equal(t, TenureNoop, res.Action)
	require.Empty(t, env.assignmentTenures(t))
}

func TestUpdateAssignmentTenure_Validation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name  string
		in    UpdateAssignmentTenureInput
		field string
	}{
		{"energy above 100", UpdateAssignmentTenureInput{SubjectID: 1, AssignmentID: 7, EnergyPercentage: 101, StartDate: "2025-01-01"}, "energy_percentage"},
		{"negative energy", UpdateAssignmentTenureInput{SubjectID: 1, AssignmentID: 7, EnergyPercentage: -5, StartDate: "2025-01-01"}, "energy_percentage"},
		{"missing subject", UpdateAssignmentTenureInput{AssignmentID: 7, EnergyPercentage: 10, StartDate: "2025-01-01"}, "subject_id"},
		{"missing assignment", UpdateAssignmentTenureInput{SubjectID: 1, EnergyPercentage: 10, StartDate: "2025-01-01"}, "assignment_id"},
		{"bad date", UpdateAssignmentTenureInput{SubjectID: 1, AssignmentID: 7, EnergyPercentage: 10, StartDate: "01/02/2025"}, "start_date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.tenures.UpdateAssignmentTenure(context.Background(), tc.in, manager)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tc.field, ve.Field)
			require.Equal(t, CodeInvalidInput, ErrorCode(err))
		})
	}
	require.Empty(t, env.assignmentTenures(t))
}

func TestUpdateAssignmentTenure_AcceptsRFC3339Date(t *testing.T) {
	env := newTestEnv(t)
	res := updateEnergy(t, env, 7, 30, "2025-05-01T15:04:05+02:00")
	require.Equal(t, day("2025-05-01"), res.Current.StartedAt)
}

func TestUpdateAssignmentTenure_RollsBackWhenSuccessorFails(t *testing.T) {
	env := newTestEnv(t)
	updateEnergy(t, env, 7, 25, "2025-01-01")

	boom := errors.New("disk full")
	env.store.FailNext("assignment_tenures.create", boom)
	_, err := env.tenures.UpdateAssignmentTenure(context.Background(), UpdateAssignmentTenureInput{
		SubjectID: testSubjectID, AssignmentID: 7, EnergyPercentage: 50, StartDate: "2025-02-01",
	}, manager)
	require.ErrorIs(t, err, boom)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)

	rows := env.assignmentTenures(t)
	require.Len(t, rows, 1)
	require.Nil(t, rows[0].ended)
	require.Equal(t, 25, rows[0].energy)
}

func TestUpdateAssignmentTenure_RejectsStartBeforeActive(t *testing.T) {
	env := newTestEnv(t)
	updateEnergy(t, env, 7, 25, "2025-03-01")
	_, err := env.tenures.UpdateAssignmentTenure(context.Background(), UpdateAssignmentTenureInput{
		SubjectID: testSubjectID, AssignmentID: 7, EnergyPercentage: 50, StartDate: "2025-02-01",
	}, manager)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, env.assignmentTenures(t), 1)
}

func hire(t *testing.T, env *testEnv, seat *int64) *tenure.EmploymentTenure {
	t.Helper()
	in := UpdateEmploymentTenureInput{
		SubjectID:      testSubjectID,
		CompanyID:      testCompanyID,
		PositionID:     ptr(int64(10)),
		ManagerID:      ptr(testManagerID),
		EmploymentType: ptr("full_time"),
		StartDate:      ptr("2025-01-01"),
	}
	if seat != nil {
		in.SeatID = optional.Of(*seat)
	}
	res, err := env.tenures.UpdateEmploymentTenure(context.Background(), in, admin)
	require.NoError(t, err)
	require.Equal(t, TenureCreated, res.Action)
	return res.Current
}

func employmentRows(t *testing.T, env *testEnv) []tenure.EmploymentTenure {
	t.Helper()
	rows, err := env.tenures.ListEmploymentTenures(context.Background(), testSubjectID, testCompanyID)
	require.NoError(t, err)
	return rows
}

func TestUpdateEmploymentTenure_SeatOnlyIsInPlace(t *testing.T) {
	env := newTestEnv(t)
	active := hire(t, env, ptr(int64(3)))

	res, err := env.tenures.UpdateEmploymentTenure(context.Background(), UpdateEmploymentTenureInput{
		SubjectID:  testSubjectID,
		CompanyID:  testCompanyID,
		PositionID: ptr(int64(10)),
		SeatID:     optional.Of(int64(4)),
	}, admin)
	require.NoError(t, err)
	require.Equal(t, TenureSeatUpdated, res.Action)

	rows := employmentRows(t, env)
	require.Len(t, rows, 1)
	require.Equal(t, active.ID, rows[0].ID)
	require.Equal(t, int64(4), *rows[0].SeatID)
	require.Nil(t, rows[0].EndedAt)
}

func TestUpdateEmploymentTenure_ClearSeatWithNull(t *testing.T) {
	env := newTestEnv(t)
	hire(t, env, ptr(int64(3)))

	res, err := env.tenures.UpdateEmploymentTenure(context.Background(), UpdateEmploymentTenureInput{
		SubjectID: testSubjectID,
		CompanyID: testCompanyID,
		SeatID:    optional.Null[int64](),
	}, admin)
	require.NoError(t, err)
	require.Equal(t, TenureSeatUpdated, res.Action)
	require.Nil(t, employmentRows(t, env)[0].SeatID)
}

func TestUpdateEmploymentTenure_CoreChangeReplacesRow(t *testing.T) {
	env := newTestEnv(t)
	active := hire(t, env, ptr(int64(3)))

	res, err := env.tenures.UpdateEmploymentTenure(context.Background(), UpdateEmploymentTenureInput{
		SubjectID:  testSubjectID,
		CompanyID:  testCompanyID,
		PositionID: ptr(int64(11)),
	}, admin)
	require.NoError(t, err)
	require.Equal(t, TenureReplaced, res.Action)

	today := normalizeDateUTC(testNow)
	rows := employmentRows(t, env)
	require.Len(t, rows, 2)
	require.Equal(t, active.ID, rows[0].ID)
	require.Equal(t, today, *rows[0].EndedAt)

	next := rows[1]
	require.Nil(t, next.EndedAt)
	require.Equal(t, today, next.StartedAt)
	require.Equal(t, int64(11), next.PositionID)
	require.Equal(t, testManagerID, next.ManagerID)
	require.Equal(t, "full_time", next.EmploymentType)
	require.Equal(t, int64(3), *next.SeatID)
	require.Equal(t, 1, tenure.CountActive(rows))
}

func TestUpdateEmploymentTenure_TerminationTakesPrecedence(t *testing.T) {
	env := newTestEnv(t)
	active := hire(t, env, nil)

	res, err := env.tenures.UpdateEmploymentTenure(context.Background(), UpdateEmploymentTenureInput{
		SubjectID:       testSubjectID,
		CompanyID:       testCompanyID,
		ManagerID:       ptr(int64(555)),
		TerminationDate: ptr("2025-06-30"),
	}, admin)
	require.NoError(t, err)
	require.Equal(t, TenureTerminated, res.Action)

	rows := employmentRows(t, env)
	require.Len(t, rows, 1)
	require.Equal(t, active.ID, rows[0].ID)
	require.Equal(t, day("2025-06-30"), *rows[0].EndedAt)
	require.Equal(t, testManagerID, rows[0].ManagerID)
}

func TestUpdateEmploymentTenure_NoChangesIsNoop(t *testing.T) {
	env := newTestEnv(t)
	hire(t, env, ptr(int64(3)))

	res, err := env.tenures.UpdateEmploymentTenure(context.Background(), UpdateEmploymentTenureInput{
		SubjectID:      testSubjectID,
		CompanyID:      testCompanyID,
		PositionID:     ptr(int64(10)),
		ManagerID:      ptr(testManagerID),
		EmploymentType: ptr("full_time"),
		SeatID:         optional.Of(int64(3)),
	}, admin)
	require.NoError(t, err)
	require.Equal(t, TenureNoop, res.Action)
	require.Len(t, employmentRows(t, env), 1)
}

func TestUpdateEmploymentTenure_HireNeedsFullSet(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.tenures.UpdateEmploymentTenure(context.Background(), UpdateEmploymentTenureInput{
		SubjectID:  testSubjectID,
		CompanyID:  testCompanyID,
		PositionID: ptr(int64(10)),
	}, admin)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Empty(t, employmentRows(t, env))
}

func TestTerminateEmployment_SetsMarkerAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	active := hire(t, env, nil)
	ctx := context.Background()

	in := TerminateEmploymentInput{SubjectID: testSubjectID, CompanyID: testCompanyID, TenureID: active.ID, Date: "2025-06-30"}
	res, err := env.tenures.TerminateEmployment(ctx, in, admin)
	require.NoError(t, err)
	require.Equal(t, TenureTerminated, res.Action)

	marker, err := env.tenures.LastTerminatedAt(ctx, testSubjectID)
	require.NoError(t, err)
	require.Equal(t, day("2025-06-30"), *marker)

	res, err = env.tenures.TerminateEmployment(ctx, in, admin)
	require.NoError(t, err)
	require.Equal(t, TenureNoop, res.Action)
	require.Len(t, employmentRows(t, env), 1)
}

func TestTerminateEmployment_MarkerFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	hire(t, env, nil)
	ctx := context.Background()

	env.store.FailNext("employment_tenures.set_last_terminated_at", errors.New("boom"))
	_, err := env.tenures.TerminateEmployment(ctx, TerminateEmploymentInput{SubjectID: testSubjectID, CompanyID: testCompanyID, Date: "2025-06-30"}, admin)
	require.Error(t, err)

	rows := employmentRows(t, env)
	require.Nil(t, rows[0].EndedAt)
	marker, err := env.tenures.LastTerminatedAt(ctx, testSubjectID)
	require.NoError(t, err)
	require.Nil(t, marker)
}

func TestUpdateAssignmentTenure_PublishesEvent(t *testing.T) {
	env := newTestEnv(t)
	var got []*AssignmentTenureChangedEvent
	env.bus.Subscribe(func(_ context.Context, e *AssignmentTenureChangedEvent) { got = append(got, e) })

	updateEnergy(t, env, 7, 25, "2025-01-01")
	updateEnergy(t, env, 7, 25, "2025-01-01")
	updateEnergy(t, env, 7, 50, "2025-02-01")

	require.Len(t, got, 2)
	require.Equal(t, TenureCreated, got[0].Action)
	require.Equal(t, TenureReplaced, got[1].Action)
	require.NotNil(t, got[1].Ended)
	require.Equal(t, testManagerID, got[1].ActorID)
}
