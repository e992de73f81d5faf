package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-talent/modules/talent/domain/checkin"
)

func openCheckIn(t *testing.T, env *testEnv) *checkin.CheckIn {
	t.Helper()
	c, err := env.checkIns.Open(context.Background(), checkin.KindAssignment, testSubjectID, 7)
	require.NoError(t, err)
	return c
}

func TestCheckInService_OpenReusesOpenCheckIn(t *testing.T) {
	env := newTestEnv(t)
	first := openCheckIn(t, env)
	second := openCheckIn(t, env)
	require.Equal(t, first.ID, second.ID)

	open, err := env.checkIns.ListOpen(context.Background(), testSubjectID)
	require.NoError(t, err)
	require.Len(t, open, 1)
}

func TestCheckInService_CompletionOrderConverges(t *testing.T) {
	for _, employeeFirst := range []bool{true, false} {
		env := newTestEnv(t)
		ctx := context.Background()
		c := openCheckIn(t, env)

		steps := []func() (*CompletionResult, error){
			func() (*CompletionResult, error) { return env.checkIns.CompleteEmployeeSide(ctx, c.ID, subject) },
			func() (*CompletionResult, error) { return env.checkIns.CompleteManagerSide(ctx, c.ID, manager) },
		}
		if !employeeFirst {
			steps[0], steps[1] = steps[1], steps[0]
		}

		res, err := steps[0]()
		require.NoError(t, err)
		require.True(t, res.Detected)
		res, err = steps[1]()
		require.NoError(t, err)
		require.Equal(t, checkin.StateBothComplete, res.State)

		for _, step := range steps {
			res, err = step()
			require.NoError(t, err)
			require.False(t, res.Detected)
			require.Equal(t, checkin.StateBothComplete, res.State)
		}
	}
}

func TestCheckInService_ConcurrentCompletions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := openCheckIn(t, env)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		detected int
		errs     []error
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var (
				res *CompletionResult
				err error
			)
			if i%2 == 0 {
				res, err = env.checkIns.CompleteEmployeeSide(ctx, c.ID, subject)
			} else {
				res, err = env.checkIns.CompleteManagerSide(ctx, c.ID, manager)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Detected {
				detected++
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Equal(t, 2, detected)
	open, err := env.checkIns.ListOpen(ctx, testSubjectID)
	require.NoError(t, err)
	require.Equal(t, checkin.StateBothComplete, open[0].State())
}

func TestCheckInService_ManagerSideNeedsAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := openCheckIn(t, env)

	_, err := env.checkIns.CompleteManagerSide(ctx, c.ID, subject)
	require.ErrorIs(t, err, ErrNotAuthorized)

	res, err := env.checkIns.CompleteManagerSide(ctx, c.ID, admin)
	require.NoError(t, err)
	require.Equal(t, checkin.StateManagerOnly, res.State)
	require.Equal(t, testAdminID, *res.CheckIn.ManagerCompletedByID)
}

func TestCheckInService_UncheckThenFinalize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := openCheckIn(t, env)

	_, err := env.checkIns.CompleteEmployeeSide(ctx, c.ID, subject)
	require.NoError(t, err)
	_, err = env.checkIns.CompleteManagerSide(ctx, c.ID, manager)
	require.NoError(t, err)

	got, err := env.checkIns.UncheckEmployeeSide(ctx, c.ID, subject)
	require.NoError(t, err)
	require.Equal(t, checkin.StateManagerOnly, got.State())

	_, err = env.checkIns.Finalize(ctx, FinalizeCheckInInput{CheckInID: c.ID}, manager)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = env.checkIns.CompleteEmployeeSide(ctx, c.ID, subject)
	require.NoError(t, err)

	_, err = env.checkIns.Finalize(ctx, FinalizeCheckInInput{CheckInID: c.ID}, subject)
	require.ErrorIs(t, err, ErrNotAuthorized)

	var finalized []*CheckInFinalizedEvent
	env.bus.Subscribe(func(_ context.Context, e *CheckInFinalizedEvent) { finalized = append(finalized, e) })

	done, err := env.checkIns.Finalize(ctx, FinalizeCheckInInput{CheckInID: c.ID, OfficialRating: ptr("exceeds")}, manager)
	require.NoError(t, err)
	require.True(t, done.Finalized())
	require.Equal(t, "exceeds", *done.OfficialRating)
	require.Equal(t, testManagerID, *done.FinalizedByID)
	require.Len(t, finalized, 1)

	_, err = env.checkIns.UncheckManagerSide(ctx, c.ID, manager)
	require.ErrorIs(t, err, checkin.ErrAlreadyFinalized)

	open, err := env.checkIns.ListOpen(ctx, testSubjectID)
	require.NoError(t, err)
	require.Empty(t, open)

	fresh := openCheckIn(t, env)
	require.NotEqual(t, c.ID, fresh.ID)
}

func TestCheckInService_UnknownCheckIn(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.checkIns.CompleteEmployeeSide(context.Background(), 4242, subject)
	require.ErrorIs(t, err, checkin.ErrNotFound)
}
