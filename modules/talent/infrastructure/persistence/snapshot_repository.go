package persistence

import (
	"context"
	"errors"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/iota-talent/modules/talent/domain/snapshot"
	"github.com/iota-uz/iota-talent/pkg/composables"
)

const (
	snapshotColumns = `id, subject_id, company_id, creator_id, change_type, proposed_state, reason,
		created_at, effective_date, acknowledged_at, executed_at`

	insertSnapshotSQL = `INSERT INTO talent_snapshots
		(subject_id, company_id, creator_id, change_type, proposed_state, reason, created_at, effective_date)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()), $8)
		RETURNING ` + snapshotColumns

	getSnapshotSQL  = `SELECT ` + snapshotColumns + ` FROM talent_snapshots WHERE id = $1`
	lockSnapshotSQL = getSnapshotSQL + ` FOR UPDATE`

	findPreviousSnapshotSQL = `SELECT ` + snapshotColumns + `
		FROM talent_snapshots
		WHERE subject_id = $1 AND company_id = $2 AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	updateSnapshotSQL = `UPDATE talent_snapshots SET
		proposed_state = $2,
		reason = $3,
		effective_date = $4,
		acknowledged_at = $5,
		executed_at = $6
	WHERE id = $1`

	listSnapshotsSQL = `SELECT ` + snapshotColumns + `
		FROM talent_snapshots
		WHERE subject_id = $1 AND company_id = $2
		ORDER BY created_at, id`
)

type SnapshotRepository struct{}

func NewSnapshotRepository() snapshot.Repository {
	return &SnapshotRepository{}
}

func scanSnapshot(row pgx.Row) (*snapshot.Snapshot, error) {
	var (
		s     snapshot.Snapshot
		state []byte
	)
	err := row.Scan(&s.ID, &s.SubjectID, &s.CompanyID, &s.CreatorID, &s.ChangeType, &state, &s.Reason,
		&s.CreatedAt, &s.EffectiveDate, &s.AcknowledgedAt, &s.ExecutedAt)
	if err != nil {
		return nil, err
	}
	s.ProposedState, err = snapshot.ParseProposedState(state)
	if err != nil {
		return nil, gerrors.Wrapf(err, "decode proposed_state of snapshot %d", s.ID)
	}
	return &s, nil
}

func (r *SnapshotRepository) Create(ctx context.Context, s *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to get transaction")
	}
	state, err := s.ProposedState.MarshalBytes()
	if err != nil {
		return nil, gerrors.Wrap(err, "encode proposed_state")
	}
	var createdAt *time.Time
	if !s.CreatedAt.IsZero() {
		createdAt = &s.CreatedAt
	}
	return scanSnapshot(tx.QueryRow(ctx, insertSnapshotSQL,
		s.SubjectID, s.CompanyID, s.CreatorID, s.ChangeType, state, s.Reason, createdAt, s.EffectiveDate))
}

func (r *SnapshotRepository) get(ctx context.Context, sql string, id int64) (*snapshot.Snapshot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to get transaction")
	}
	s, err := scanSnapshot(tx.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, snapshot.ErrNotFound
	}
	return s, err
}

func (r *SnapshotRepository) GetByID(ctx context.Context, id int64) (*snapshot.Snapshot, error) {
	return r.get(ctx, getSnapshotSQL, id)
}

func (r *SnapshotRepository) LockByID(ctx context.Context, id int64) (*snapshot.Snapshot, error) {
	return r.get(ctx, lockSnapshotSQL, id)
}

func (r *SnapshotRepository) FindPrevious(ctx context.Context, subjectID, companyID int64, before time.Time) (*snapshot.Snapshot, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, false, gerrors.Wrap(err, "failed to get transaction")
	}
	s, err := scanSnapshot(tx.QueryRow(ctx, findPreviousSnapshotSQL, subjectID, companyID, before))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (r *SnapshotRepository) Update(ctx context.Context, s *snapshot.Snapshot) error {
	state, err := s.ProposedState.MarshalBytes()
	if err != nil {
		return gerrors.Wrap(err, "encode proposed_state")
	}
	return execOne(ctx, snapshot.ErrNotFound, updateSnapshotSQL,
		s.ID, state, s.Reason, s.EffectiveDate, s.AcknowledgedAt, s.ExecutedAt)
}

func (r *SnapshotRepository) ListBySubject(ctx context.Context, subjectID, companyID int64) ([]*snapshot.Snapshot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, listSnapshotsSQL, subjectID, companyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*snapshot.Snapshot, error) {
		return scanSnapshot(row)
	})
}
