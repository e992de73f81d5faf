package persistence

import (
	"context"
	"errors"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/iota-talent/modules/talent/domain/tenure"
	"github.com/iota-uz/iota-talent/pkg/composables"
)

const (
	assignmentTenureColumns = `id, subject_id, assignment_id, anticipated_energy_percentage, started_at, ended_at, created_at, updated_at`

	selectActiveAssignmentTenureSQL = `SELECT ` + assignmentTenureColumns + `
		FROM talent_assignment_tenures
		WHERE subject_id = $1 AND assignment_id = $2 AND ended_at IS NULL
		FOR UPDATE`

	insertAssignmentTenureSQL = `INSERT INTO talent_assignment_tenures
		(subject_id, assignment_id, anticipated_energy_percentage, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + assignmentTenureColumns

	endAssignmentTenureSQL = `UPDATE talent_assignment_tenures
		SET ended_at = $2, updated_at = now()
		WHERE id = $1`

	listAssignmentTenuresSQL = `SELECT ` + assignmentTenureColumns + `
		FROM talent_assignment_tenures
		WHERE subject_id = $1
		ORDER BY started_at, id`

	employmentTenureColumns = `id, subject_id, company_id, position_id, manager_id, seat_id, employment_type, started_at, ended_at, created_at, updated_at`

	selectActiveEmploymentTenureSQL = `SELECT ` + employmentTenureColumns + `
		FROM talent_employment_tenures
		WHERE subject_id = $1 AND company_id = $2 AND ended_at IS NULL
		FOR UPDATE`

	insertEmploymentTenureSQL = `INSERT INTO talent_employment_tenures
		(subject_id, company_id, position_id, manager_id, seat_id, employment_type, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + employmentTenureColumns

	endEmploymentTenureSQL = `UPDATE talent_employment_tenures
		SET ended_at = $2, updated_at = now()
		WHERE id = $1`

	updateEmploymentSeatSQL = `UPDATE talent_employment_tenures
		SET seat_id = $2, updated_at = now()
		WHERE id = $1`

	listEmploymentTenuresSQL = `SELECT ` + employmentTenureColumns + `
		FROM talent_employment_tenures
		WHERE subject_id = $1 AND company_id = $2
		ORDER BY started_at, id`

	setLastTerminatedAtSQL = `UPDATE talent_subjects SET last_terminated_at = $2 WHERE id = $1`
	lastTerminatedAtSQL    = `SELECT last_terminated_at FROM talent_subjects WHERE id = $1`
)

var ErrTenureNotFound = gerrors.New("tenure not found")

type AssignmentTenureRepository struct{}

func NewAssignmentTenureRepository() tenure.AssignmentRepository {
	return &AssignmentTenureRepository{}
}

func scanAssignmentTenure(row pgx.Row) (tenure.AssignmentTenure, error) {
	var t tenure.AssignmentTenure
	err := row.Scan(&t.ID, &t.SubjectID, &t.AssignmentID, &t.AnticipatedEnergyPercentage,
		&t.StartedAt, &t.EndedAt, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *AssignmentTenureRepository) LockActive(ctx context.Context, subjectID, assignmentID int64) (tenure.AssignmentTenure, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return tenure.AssignmentTenure{}, false, gerrors.Wrap(err, "failed to get transaction")
	}
	t, err := scanAssignmentTenure(tx.QueryRow(ctx, selectActiveAssignmentTenureSQL, subjectID, assignmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return tenure.AssignmentTenure{}, false, nil
	}
	if err != nil {
		return tenure.AssignmentTenure{}, false, err
	}
	return t, true, nil
}

func (r *AssignmentTenureRepository) Create(ctx context.Context, t tenure.AssignmentTenure) (tenure.AssignmentTenure, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return tenure.AssignmentTenure{}, gerrors.Wrap(err, "failed to get transaction")
	}
	return scanAssignmentTenure(tx.QueryRow(ctx, insertAssignmentTenureSQL,
		t.SubjectID, t.AssignmentID, t.AnticipatedEnergyPercentage, t.StartedAt, t.EndedAt))
}

func (r *AssignmentTenureRepository) End(ctx context.Context, id int64, endedAt time.Time) error {
	return execOne(ctx, ErrTenureNotFound, endAssignmentTenureSQL, id, endedAt)
}

func (r *AssignmentTenureRepository) ListBySubject(ctx context.Context, subjectID int64) ([]tenure.AssignmentTenure, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, listAssignmentTenuresSQL, subjectID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (tenure.AssignmentTenure, error) {
		return scanAssignmentTenure(row)
	})
}

type EmploymentTenureRepository struct{}

func NewEmploymentTenureRepository() tenure.EmploymentRepository {
	return &EmploymentTenureRepository{}
}

func scanEmploymentTenure(row pgx.Row) (tenure.EmploymentTenure, error) {
	var t tenure.EmploymentTenure
	err := row.Scan(&t.ID, &t.SubjectID, &t.CompanyID, &t.PositionID, &t.ManagerID, &t.SeatID,
		&t.EmploymentType, &t.StartedAt, &t.EndedAt, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *EmploymentTenureRepository) LockActive(ctx context.Context, subjectID, companyID int64) (tenure.EmploymentTenure, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return tenure.EmploymentTenure{}, false, gerrors.Wrap(err, "failed to get transaction")
	}
	t, err := scanEmploymentTenure(tx.QueryRow(ctx, selectActiveEmploymentTenureSQL, subjectID, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return tenure.EmploymentTenure{}, false, nil
	}
	if err != nil {
		return tenure.EmploymentTenure{}, false, err
	}
	return t, true, nil
}

func (r *EmploymentTenureRepository) Create(ctx context.Context, t tenure.EmploymentTenure) (tenure.EmploymentTenure, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return tenure.EmploymentTenure{}, gerrors.Wrap(err, "failed to get transaction")
	}
	return scanEmploymentTenure(tx.QueryRow(ctx, insertEmploymentTenureSQL,
		t.SubjectID, t.CompanyID, t.PositionID, t.ManagerID, t.SeatID, t.EmploymentType, t.StartedAt, t.EndedAt))
}

func (r *EmploymentTenureRepository) End(ctx context.Context, id int64, endedAt time.Time) error {
	return execOne(ctx, ErrTenureNotFound, endEmploymentTenureSQL, id, endedAt)
}

func (r *EmploymentTenureRepository) UpdateSeat(ctx context.Context, id int64, seatID *int64) error {
	return execOne(ctx, ErrTenureNotFound, updateEmploymentSeatSQL, id, seatID)
}

func (r *EmploymentTenureRepository) ListBySubject(ctx context.Context, subjectID, companyID int64) ([]tenure.EmploymentTenure, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, listEmploymentTenuresSQL, subjectID, companyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (tenure.EmploymentTenure, error) {
		return scanEmploymentTenure(row)
	})
}

func (r *EmploymentTenureRepository) SetLastTerminatedAt(ctx context.Context, subjectID int64, at time.Time) error {
	return execOne(ctx, ErrSubjectNotFound, setLastTerminatedAtSQL, subjectID, at)
}

func (r *EmploymentTenureRepository) LastTerminatedAt(ctx context.Context, subjectID int64) (*time.Time, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to get transaction")
	}
	var at *time.Time
	err = tx.QueryRow(ctx, lastTerminatedAtSQL, subjectID).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return at, err
}
