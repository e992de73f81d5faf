package persistence_test

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/iota-talent/modules/talent/domain/checkin"
	"github.com/iota-uz/iota-talent/modules/talent/domain/snapshot"
	"github.com/iota-uz/iota-talent/modules/talent/infrastructure/persistence"
	"github.com/iota-uz/iota-talent/modules/talent/services"
	"github.com/iota-uz/iota-talent/pkg/authz"
	"github.com/iota-uz/iota-talent/pkg/composables"
	"github.com/iota-uz/iota-talent/pkg/optional"
)

const testDatabaseURLEnv = "TALENT_TEST_DATABASE_URL"

func newTalentTestDB(tb testing.TB, ctx context.Context) *pgxpool.Pool {
	tb.Helper()

	adminDSN := strings.TrimSpace(os.Getenv(testDatabaseURLEnv))
	if adminDSN == "" {
		tb.Skip(testDatabaseURLEnv + " is not set; skipping integration test")
	}
	adminConn, err := pgx.Connect(ctx, adminDSN)
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = adminConn.Close(ctx) })

	dbName := "talent_" + strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, strings.ToLower(tb.Name()))

	_, _ = adminConn.Exec(ctx, "DROP DATABASE IF EXISTS "+dbName)
	_, err = adminConn.Exec(ctx, "CREATE DATABASE "+dbName)
	require.NoError(tb, err)

	u, err := url.Parse(adminDSN)
	require.NoError(tb, err)
	u.Path = "/" + dbName
	pool, err := pgxpool.New(ctx, u.String())
	require.NoError(tb, err)

	tb.Cleanup(func() {
		pool.Close()
		_, _ = adminConn.Exec(ctx, "DROP DATABASE IF EXISTS "+dbName)
	})

	results, err := persistence.Migrate(ctx, pool)
	require.NoError(tb, err)
	require.NotEmpty(tb, results)

	_, err = pool.Exec(ctx, `
		INSERT INTO talent_subjects (id, company_id, display_name) VALUES (100, 1, 'Ada Lovelace'), (200, 1, 'Grace Hopper');
		INSERT INTO talent_positions (id, company_id, title) VALUES (10, 1, 'Engineer'), (11, 1, 'Senior Engineer');
		INSERT INTO talent_assignments (id, company_id, title) VALUES (7, 1, 'Platform');
		INSERT INTO talent_abilities (id, name) VALUES (30, 'Go');
		INSERT INTO talent_aspirations (id, name) VALUES (40, 'Tech lead');
	`, pgx.QueryExecModeSimpleProtocol)
	require.NoError(tb, err)
	return pool
}

type pgEnv struct {
	ctx       context.Context
	pool      *pgxpool.Pool
	tenures   *services.TenureService
	checkIns  *services.CheckInService
	snapshots *services.SnapshotService
	engine    *services.ExecutionEngine
}

func newPgEnv(t *testing.T) *pgEnv {
	t.Helper()
	return newPgEnvWith(t, nil)
}

func newPgEnvWith(t *testing.T, configure func(*services.Options)) *pgEnv {
	t.Helper()
	ctx := context.Background()
	pool := newTalentTestDB(t, ctx)
	ctx = composables.WithPool(ctx, pool)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	opts := services.Options{Logger: logrus.NewEntry(logger)}
	if configure != nil {
		configure(&opts)
	}
	tx := persistence.NewTransactor(pool)
	refs := persistence.NewReferenceRepository()
	employment := persistence.NewEmploymentTenureRepository()
	checkIns := persistence.NewCheckInRepository()
	managerOnly := authz.ManagerOf(func(_ context.Context, actorID, _ int64) bool { return actorID == 200 })

	tenures := services.NewTenureService(persistence.NewAssignmentTenureRepository(), employment, tx, opts)
	detector := services.NewChangeDetector(opts)
	snapshots := services.NewSnapshotService(persistence.NewSnapshotRepository(), refs, detector, tx, opts)
	return &pgEnv{
		ctx:       ctx,
		pool:      pool,
		tenures:   tenures,
		checkIns:  services.NewCheckInService(checkIns, tx, managerOnly, opts),
		snapshots: snapshots,
		engine: services.NewExecutionEngine(services.ExecutionDeps{
			Snapshots:  snapshots,
			Tenures:    tenures,
			Employment: employment,
			CheckIns:   checkIns,
			Milestones: persistence.NewMilestoneRepository(),
			References: refs,
			Tx:         tx,
			Authorize:  managerOnly,
		}, opts),
	}
}

func TestPostgres_MigrationsRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := newTalentTestDB(t, ctx)

	status, err := persistence.MigrationStatus(ctx, pool)
	require.NoError(t, err)
	require.Len(t, status, 2)
	for _, s := range status {
		require.Equal(t, goose.StateApplied, s.State)
	}

	_, err = persistence.Rollback(ctx, pool)
	require.NoError(t, err)
	status, err = persistence.MigrationStatus(ctx, pool)
	require.NoError(t, err)
	require.Equal(t, goose.StatePending, status[len(status)-1].State)
}

func TestPostgres_AssignmentTenureReplacement(t *testing.T) {
	env := newPgEnv(t)
	manager := authz.NewActor(200)

	_, err := env.tenures.UpdateAssignmentTenure(env.ctx, services.UpdateAssignmentTenureInput{
		SubjectID: 100, AssignmentID: 7, EnergyPercentage: 40, StartDate: "2025-03-01",
	}, manager)
	require.NoError(t, err)
	res, err := env.tenures.UpdateAssignmentTenure(env.ctx, services.UpdateAssignmentTenureInput{
		SubjectID: 100, AssignmentID: 7, EnergyPercentage: 60, StartDate: "2025-05-01",
	}, manager)
	require.NoError(t, err)
	require.Equal(t, services.TenureReplaced, res.Action)

	rows, err := env.tenures.ListAssignmentTenures(env.ctx, 100)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].EndedAt)
	require.Nil(t, rows[1].EndedAt)
	require.Equal(t, 60, rows[1].AnticipatedEnergyPercentage)
}

func TestPostgres_OneOpenCheckInPerScope(t *testing.T) {
	env := newPgEnv(t)
	repo := persistence.NewCheckInRepository()

	_, err := repo.Create(env.ctx, checkin.New(checkin.KindAssignment, 100, 7))
	require.NoError(t, err)
	_, err = repo.Create(env.ctx, checkin.New(checkin.KindAssignment, 100, 7))

	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	require.Equal(t, "23505", pgErr.Code)
	require.Equal(t, "talent_check_ins_one_open", pgErr.ConstraintName)
}

func TestPostgres_SnapshotExecution(t *testing.T) {
	env := newPgEnv(t)
	manager := authz.NewActor(200)

	snap, err := env.snapshots.Create(env.ctx, services.CreateSnapshotInput{
		SubjectID:  100,
		CompanyID:  1,
		CreatorID:  200,
		ChangeType: string(snapshot.ChangeTypeBulk),
		ProposedState: snapshot.ProposedState{
			Assignments: []snapshot.AssignmentProposal{{
				AssignmentID:    7,
				Tenure:          &snapshot.TenureProposal{AnticipatedEnergyPercentage: optional.Of(50)},
				EmployeeCheckIn: &snapshot.EmployeeCheckInProposal{Rating: optional.Of("good")},
				ManagerCheckIn:  &snapshot.ManagerCheckInProposal{Rating: optional.Of("great")},
			}},
			Milestones: []snapshot.MilestoneProposal{{AbilityID: 30, MilestoneLevel: optional.Of(2)}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Check-in finalization for Ada Lovelace", snap.Reason)

	res, err := env.engine.ExecuteWithResult(env.ctx, snap, manager, nil)
	require.NoError(t, err)
	require.True(t, res.Success, res.String())

	stored, err := env.snapshots.GetByID(env.ctx, snap.ID)
	require.NoError(t, err)
	require.True(t, stored.Executed())
	require.Equal(t, snap.ProposedState, stored.ProposedState)

	open, err := env.checkIns.ListOpen(env.ctx, 100)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "great", *open[0].ManagerRating)

	require.False(t, env.engine.Execute(env.ctx, stored, manager, nil))
}

func TestPostgres_ServicesBindThePoolForReads(t *testing.T) {
	env := newPgEnv(t)
	ctx := context.Background()
	manager := authz.NewActor(200)

	snap, err := env.snapshots.Create(ctx, services.CreateSnapshotInput{
		SubjectID:  100,
		CompanyID:  1,
		CreatorID:  200,
		ChangeType: string(snapshot.ChangeTypeBulk),
		ProposedState: snapshot.ProposedState{Assignments: []snapshot.AssignmentProposal{{
			AssignmentID:    7,
			Tenure:          &snapshot.TenureProposal{AnticipatedEnergyPercentage: optional.Of(30)},
			EmployeeCheckIn: &snapshot.EmployeeCheckInProposal{Rating: optional.Of("good")},
		}}},
	})
	require.NoError(t, err)
	require.Equal(t, "Check-in finalization for Ada Lovelace", snap.Reason)
	require.True(t, env.engine.Execute(ctx, snap, manager, nil))

	stored, err := env.snapshots.GetByID(ctx, snap.ID)
	require.NoError(t, err)
	require.True(t, stored.Executed())

	prev, err := env.snapshots.FindPrevious(ctx, stored)
	require.NoError(t, err)
	require.Nil(t, prev)
	_, report, err := env.snapshots.DiffWithPrevious(ctx, snap.ID)
	require.NoError(t, err)
	require.Equal(t, 1, report.Counts().Assignments)

	rows, err := env.tenures.ListAssignmentTenures(ctx, 100)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	open, err := env.checkIns.ListOpen(ctx, 100)
	require.NoError(t, err)
	require.Len(t, open, 1)
	marker, err := env.tenures.LastTerminatedAt(ctx, 100)
	require.NoError(t, err)
	require.Nil(t, marker)
}
