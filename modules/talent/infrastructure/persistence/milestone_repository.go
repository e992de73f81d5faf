package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/iota-talent/modules/talent/domain/milestone"
	"github.com/iota-uz/iota-talent/pkg/composables"
)

const (
	milestoneColumns = `subject_id, ability_id, milestone_level, certifying_subject_id, attained_at, updated_at`

	getMilestoneSQL = `SELECT ` + milestoneColumns + `
		FROM talent_milestone_attainments
		WHERE subject_id = $1 AND ability_id = $2`

	upsertMilestoneSQL = `INSERT INTO talent_milestone_attainments
		(subject_id, ability_id, milestone_level, certifying_subject_id, attained_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (subject_id, ability_id) DO UPDATE SET
			milestone_level = EXCLUDED.milestone_level,
			certifying_subject_id = EXCLUDED.certifying_subject_id,
			attained_at = EXCLUDED.attained_at,
			updated_at = EXCLUDED.updated_at`

	deleteMilestoneSQL = `DELETE FROM talent_milestone_attainments WHERE subject_id = $1 AND ability_id = $2`

	listMilestonesSQL = `SELECT ` + milestoneColumns + `
		FROM talent_milestone_attainments
		WHERE subject_id = $1
		ORDER BY ability_id`
)

type MilestoneRepository struct{}

func NewMilestoneRepository() milestone.Repository {
	return &MilestoneRepository{}
}

func scanAttainment(row pgx.Row) (milestone.Attainment, error) {
	var a milestone.Attainment
	err := row.Scan(&a.SubjectID, &a.AbilityID, &a.MilestoneLevel, &a.CertifyingSubjectID, &a.AttainedAt, &a.UpdatedAt)
	return a, err
}

func (r *MilestoneRepository) Get(ctx context.Context, subjectID, abilityID int64) (milestone.Attainment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return milestone.Attainment{}, gerrors.Wrap(err, "failed to get transaction")
	}
	a, err := scanAttainment(tx.QueryRow(ctx, getMilestoneSQL, subjectID, abilityID))
	if errors.Is(err, pgx.ErrNoRows) {
		return milestone.Attainment{}, milestone.ErrNotFound
	}
	return a, err
}

func (r *MilestoneRepository) Upsert(ctx context.Context, a milestone.Attainment) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return gerrors.Wrap(err, "failed to get transaction")
	}
	_, err = tx.Exec(ctx, upsertMilestoneSQL, a.SubjectID, a.AbilityID, a.MilestoneLevel, a.CertifyingSubjectID, a.AttainedAt)
	return err
}

func (r *MilestoneRepository) Delete(ctx context.Context, subjectID, abilityID int64) error {
	return execOne(ctx, milestone.ErrNotFound, deleteMilestoneSQL, subjectID, abilityID)
}

func (r *MilestoneRepository) ListBySubject(ctx context.Context, subjectID int64) ([]milestone.Attainment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, listMilestonesSQL, subjectID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (milestone.Attainment, error) {
		return scanAttainment(row)
	})
}
