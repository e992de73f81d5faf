package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/iota-talent/modules/talent/domain/checkin"
	"github.com/iota-uz/iota-talent/pkg/composables"
)

const (
	checkInColumns = `id, subject_id, kind, scope_id, actual_energy_percentage,
		employee_rating, personal_alignment, employee_private_notes, employee_completed_at,
		manager_rating, manager_private_notes, manager_completed_at, manager_completed_by_id,
		official_rating, shared_notes, official_completed_at, finalized_by_id,
		created_at, updated_at`

	lockCheckInByIDSQL = `SELECT ` + checkInColumns + ` FROM talent_check_ins WHERE id = $1 FOR UPDATE`

	lockOpenCheckInSQL = `SELECT ` + checkInColumns + `
		FROM talent_check_ins
		WHERE kind = $1 AND subject_id = $2 AND scope_id = $3 AND official_completed_at IS NULL
		FOR UPDATE`

	insertCheckInSQL = `INSERT INTO talent_check_ins (
		subject_id, kind, scope_id, actual_energy_percentage,
		employee_rating, personal_alignment, employee_private_notes, employee_completed_at,
		manager_rating, manager_private_notes, manager_completed_at, manager_completed_by_id,
		official_rating, shared_notes, official_completed_at, finalized_by_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	RETURNING ` + checkInColumns

	updateCheckInSQL = `UPDATE talent_check_ins SET
		actual_energy_percentage = $2,
		employee_rating = $3,
		personal_alignment = $4,
		employee_private_notes = $5,
		employee_completed_at = $6,
		manager_rating = $7,
		manager_private_notes = $8,
		manager_completed_at = $9,
		manager_completed_by_id = $10,
		official_rating = $11,
		shared_notes = $12,
		official_completed_at = $13,
		finalized_by_id = $14,
		updated_at = now()
	WHERE id = $1`

	listOpenCheckInsSQL = `SELECT ` + checkInColumns + `
		FROM talent_check_ins
		WHERE subject_id = $1 AND official_completed_at IS NULL
		ORDER BY id`
)

type CheckInRepository struct{}

func NewCheckInRepository() checkin.Repository {
	return &CheckInRepository{}
}

func scanCheckIn(row pgx.Row) (*checkin.CheckIn, error) {
	c := &checkin.CheckIn{}
	err := row.Scan(
		&c.ID, &c.SubjectID, &c.Kind, &c.ScopeID, &c.ActualEnergyPercentage,
		&c.EmployeeRating, &c.PersonalAlignment, &c.EmployeePrivateNotes, &c.EmployeeCompletedAt,
		&c.ManagerRating, &c.ManagerPrivateNotes, &c.ManagerCompletedAt, &c.ManagerCompletedByID,
		&c.OfficialRating, &c.SharedNotes, &c.OfficialCompletedAt, &c.FinalizedByID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CheckInRepository) LockByID(ctx context.Context, id int64) (*checkin.CheckIn, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to get transaction")
	}
	c, err := scanCheckIn(tx.QueryRow(ctx, lockCheckInByIDSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, checkin.ErrNotFound
	}
	return c, err
}

func (r *CheckInRepository) LockOpen(ctx context.Context, kind checkin.Kind, subjectID, scopeID int64) (*checkin.CheckIn, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, false, gerrors.Wrap(err, "failed to get transaction")
	}
	c, err := scanCheckIn(tx.QueryRow(ctx, lockOpenCheckInSQL, kind, subjectID, scopeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (r *CheckInRepository) Create(ctx context.Context, c *checkin.CheckIn) (*checkin.CheckIn, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to get transaction")
	}
	return scanCheckIn(tx.QueryRow(ctx, insertCheckInSQL,
		c.SubjectID, c.Kind, c.ScopeID, c.ActualEnergyPercentage,
		c.EmployeeRating, c.PersonalAlignment, c.EmployeePrivateNotes, c.EmployeeCompletedAt,
		c.ManagerRating, c.ManagerPrivateNotes, c.ManagerCompletedAt, c.ManagerCompletedByID,
		c.OfficialRating, c.SharedNotes, c.OfficialCompletedAt, c.FinalizedByID,
	))
}

func (r *CheckInRepository) Save(ctx context.Context, c *checkin.CheckIn) error {
	return execOne(ctx, checkin.ErrNotFound, updateCheckInSQL,
		c.ID, c.ActualEnergyPercentage,
		c.EmployeeRating, c.PersonalAlignment, c.EmployeePrivateNotes, c.EmployeeCompletedAt,
		c.ManagerRating, c.ManagerPrivateNotes, c.ManagerCompletedAt, c.ManagerCompletedByID,
		c.OfficialRating, c.SharedNotes, c.OfficialCompletedAt, c.FinalizedByID,
	)
}

func (r *CheckInRepository) ListOpen(ctx context.Context, subjectID int64) ([]*checkin.CheckIn, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, listOpenCheckInsSQL, subjectID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*checkin.CheckIn, error) {
		return scanCheckIn(row)
	})
}
