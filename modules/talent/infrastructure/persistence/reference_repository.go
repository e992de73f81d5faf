package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/iota-talent/modules/talent/domain/reference"
	"github.com/iota-uz/iota-talent/pkg/composables"
)

const (
	selectSubjectSQL    = `SELECT id, company_id, display_name FROM talent_subjects WHERE id = $1`
	selectPositionSQL   = `SELECT id, company_id, title FROM talent_positions WHERE id = $1`
	selectAssignmentSQL = `SELECT id, company_id, title FROM talent_assignments WHERE id = $1`
	selectAbilitySQL    = `SELECT id, name FROM talent_abilities WHERE id = $1`
	selectAspirationSQL = `SELECT id, name FROM talent_aspirations WHERE id = $1`
)

// ReferenceRepository reads the catalog tables.
type ReferenceRepository struct{}

func NewReferenceRepository() reference.Repository {
	return &ReferenceRepository{}
}

func lookup(ctx context.Context, kind reference.Kind, id int64, sql string, dest ...any) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return gerrors.Wrap(err, "failed to get transaction")
	}
	err = tx.QueryRow(ctx, sql, id).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return reference.NotFound(kind, id)
	}
	return err
}

func (r *ReferenceRepository) Subject(ctx context.Context, id int64) (reference.Subject, error) {
	var s reference.Subject
	err := lookup(ctx, reference.KindSubject, id, selectSubjectSQL, &s.ID, &s.CompanyID, &s.DisplayName)
	return s, err
}

func (r *ReferenceRepository) Position(ctx context.Context, id int64) (reference.Position, error) {
	var p reference.Position
	err := lookup(ctx, reference.KindPosition, id, selectPositionSQL, &p.ID, &p.CompanyID, &p.Title)
	return p, err
}

func (r *ReferenceRepository) Assignment(ctx context.Context, id int64) (reference.Assignment, error) {
	var a reference.Assignment
	err := lookup(ctx, reference.KindAssignment, id, selectAssignmentSQL, &a.ID, &a.CompanyID, &a.Title)
	return a, err
}

func (r *ReferenceRepository) Ability(ctx context.Context, id int64) (reference.Ability, error) {
	var a reference.Ability
	err := lookup(ctx, reference.KindAbility, id, selectAbilitySQL, &a.ID, &a.Name)
	return a, err
}

func (r *ReferenceRepository) Aspiration(ctx context.Context, id int64) (reference.Aspiration, error) {
	var a reference.Aspiration
	err := lookup(ctx, reference.KindAspiration, id, selectAspirationSQL, &a.ID, &a.Name)
	return a, err
}
