package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/iota-talent/modules/talent/domain/reference"
	"github.com/iota-uz/iota-talent/modules/talent/domain/snapshot"
	"github.com/iota-uz/iota-talent/pkg/authz"
	"github.com/iota-uz/iota-talent/pkg/constants"
)

const defaultReasonPrefix = "Check-in finalization for "

type SnapshotService struct {
	repo     snapshot.Repository
	refs     reference.Repository
	detector *ChangeDetector
	tx       Transactor
	opts     Options
}

func NewSnapshotService(repo snapshot.Repository, refs reference.Repository, detector *ChangeDetector, tx Transactor, opts Options) *SnapshotService {
	return &SnapshotService{
		repo:     repo,
		refs:     refs,
		detector: detector,
		tx:       tx,
		opts:     opts.withDefaults("talent.snapshot"),
	}
}

type CreateSnapshotInput struct {
	SubjectID     int64                  `json:"subject_id" validate:"required,gt=0"`
	CompanyID     int64                  `json:"company_id" validate:"required,gt=0"`
	CreatorID     int64                  `json:"creator_id" validate:"required,gt=0"`
	ChangeType    string                 `json:"change_type" validate:"required"`
	ProposedState snapshot.ProposedState `json:"proposed_state"`
	Reason        string                 `json:"reason"`
	EffectiveDate *string                `json:"effective_date,omitempty"`
}

// Create appends a snapshot. A blank reason is replaced with a generated one
// naming the subject.
func (s *SnapshotService) Create(ctx context.Context, in CreateSnapshotInput) (*snapshot.Snapshot, error) {
	if err := constants.Validate.Struct(in); err != nil {
		return nil, validationFromStruct(err)
	}
	changeType, ok := snapshot.ParseChangeType(in.ChangeType)
	if !ok {
		return nil, newValidationError("change_type", "unknown change type %q", in.ChangeType)
	}
	var effective *time.Time
	if in.EffectiveDate != nil {
		d, err := parseDate("effective_date", *in.EffectiveDate)
		if err != nil {
			return nil, err
		}
		effective = &d
	}

	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		label, err := s.subjectLabel(ctx, in.SubjectID)
		if err != nil {
			return nil, err
		}
		reason = defaultReasonPrefix + label
	}

	var event Event
	created, err := inTx(ctx, s.tx, emitting(s.opts, &event, func(txCtx context.Context) (*snapshot.Snapshot, error) {
		return s.repo.Create(txCtx, &snapshot.Snapshot{
			SubjectID:     in.SubjectID,
			CompanyID:     in.CompanyID,
			CreatorID:     in.CreatorID,
			ChangeType:    changeType,
			ProposedState: in.ProposedState,
			Reason:        reason,
			CreatedAt:     s.opts.Now().UTC(),
			EffectiveDate: effective,
		})
	}, func(created *snapshot.Snapshot) Event {
		return &SnapshotCreatedEvent{EventMeta: newEventMeta(created.CreatedAt, created.CreatorID), Snapshot: created}
	}))
	if err != nil {
		return nil, storeError("create snapshot", err)
	}

	s.opts.logWithFields(ctx, logrus.InfoLevel, "talent.snapshot.created", logrus.Fields{
		"snapshot_id": created.ID,
		"subject_id":  created.SubjectID,
		"company_id":  created.CompanyID,
		"change_type": created.ChangeType,
		"actor_id":    created.CreatorID,
	})
	s.opts.deliver(ctx, event)
	return created, nil
}

func (s *SnapshotService) subjectLabel(ctx context.Context, subjectID int64) (string, error) {
	if s.refs == nil {
		return reference.Subject{ID: subjectID}.Label(), nil
	}
	subj, err := s.refs.Subject(bind(ctx, s.tx), subjectID)
	if errors.Is(err, reference.ErrNotFound) {
		return reference.Subject{ID: subjectID}.Label(), nil
	}
	if err != nil {
		return "", storeError("lookup subject", err)
	}
	return subj.Label(), nil
}

func (s *SnapshotService) GetByID(ctx context.Context, id int64) (*snapshot.Snapshot, error) {
	snap, err := s.repo.GetByID(bind(ctx, s.tx), id)
	if errors.Is(err, snapshot.ErrNotFound) {
		return nil, err
	}
	return snap, storeError("get snapshot", err)
}

func (s *SnapshotService) ListBySubject(ctx context.Context, subjectID, companyID int64) ([]*snapshot.Snapshot, error) {
	rows, err := s.repo.ListBySubject(bind(ctx, s.tx), subjectID, companyID)
	return rows, storeError("list snapshots", err)
}

// FindPrevious returns the latest snapshot in the same (subject, company)
// created strictly before snap, or nil for the first one.
func (s *SnapshotService) FindPrevious(ctx context.Context, snap *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	prev, found, err := s.repo.FindPrevious(bind(ctx, s.tx), snap.SubjectID, snap.CompanyID, snap.CreatedAt)
	if err != nil {
		return nil, storeError("find previous snapshot", err)
	}
	if !found {
		return nil, nil
	}
	return prev, nil
}

// DiffWithPrevious loads a snapshot and reports its changes against its predecessor.
func (s *SnapshotService) DiffWithPrevious(ctx context.Context, id int64) (*snapshot.Snapshot, ChangeReport, error) {
	snap, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, ChangeReport{}, err
	}
	prev, err := s.FindPrevious(ctx, snap)
	if err != nil {
		return nil, ChangeReport{}, err
	}
	return snap, s.detector.Diff(ctx, snap, prev), nil
}

// Amend applies an RFC 6902 patch to the proposed state of a snapshot that
// has not been executed yet.
func (s *SnapshotService) Amend(ctx context.Context, id int64, patch []byte, actor authz.Actor) (*snapshot.Snapshot, error) {
	ops, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, newValidationError("patch", "invalid JSON patch: %v", err)
	}
	snap, err := s.mutate(ctx, id, func(snap *snapshot.Snapshot) error {
		doc, err := snap.ProposedState.MarshalBytes()
		if err != nil {
			return err
		}
		patched, err := ops.Apply(doc)
		if err != nil {
			return newValidationError("patch", "cannot apply: %v", err)
		}
		dec := json.NewDecoder(bytes.NewReader(patched))
		dec.DisallowUnknownFields()
		var next snapshot.ProposedState
		if err := dec.Decode(&next); err != nil {
			return newValidationError("proposed_state", "patched document is invalid: %v", err)
		}
		snap.ProposedState = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.opts.logWithFields(ctx, logrus.InfoLevel, "talent.snapshot.amended", logrus.Fields{
		"snapshot_id": id,
		"operations":  len(ops),
		"actor_id":    actor.ID,
	})
	return snap, nil
}

// SetEffectiveDate decides when a not yet executed snapshot takes effect.
func (s *SnapshotService) SetEffectiveDate(ctx context.Context, id int64, date string) (*snapshot.Snapshot, error) {
	d, err := parseDate("effective_date", date)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(snap *snapshot.Snapshot) error {
		snap.EffectiveDate = &d
		return nil
	})
}

// Acknowledge records that the subject saw the snapshot. Only the subject, or
// an admin override holder, may acknowledge; repeated calls keep the first
// timestamp.
func (s *SnapshotService) Acknowledge(ctx context.Context, id int64, actor authz.Actor) (*snapshot.Snapshot, error) {
	return inTx(ctx, s.tx, func(txCtx context.Context) (*snapshot.Snapshot, error) {
		snap, err := s.lock(txCtx, id)
		if err != nil {
			return nil, err
		}
		if actor.ID != snap.SubjectID && !actor.Has(authz.AdminOverride) {
			return nil, ErrNotAuthorized
		}
		if snap.AcknowledgedAt != nil {
			return snap, nil
		}
		now := s.opts.Now().UTC()
		snap.AcknowledgedAt = &now
		if err := s.repo.Update(txCtx, snap); err != nil {
			return nil, storeError("update snapshot", err)
		}
		return snap, nil
	})
}

// markExecuted stamps executed_at; it runs in its own transaction. The
// optional event is recorded in that transaction.
func (s *SnapshotService) markExecuted(ctx context.Context, id int64, event Event) (*snapshot.Snapshot, error) {
	var recorded Event
	return inTx(ctx, s.tx, emitting(s.opts, &recorded, func(txCtx context.Context) (*snapshot.Snapshot, error) {
		return s.mutateTx(txCtx, id, func(snap *snapshot.Snapshot) error {
			now := s.opts.Now().UTC()
			snap.ExecutedAt = &now
			return nil
		})
	}, func(*snapshot.Snapshot) Event { return event }))
}

func (s *SnapshotService) mutate(ctx context.Context, id int64, fn func(*snapshot.Snapshot) error) (*snapshot.Snapshot, error) {
	return inTx(ctx, s.tx, func(txCtx context.Context) (*snapshot.Snapshot, error) {
		return s.mutateTx(txCtx, id, fn)
	})
}

func (s *SnapshotService) mutateTx(txCtx context.Context, id int64, fn func(*snapshot.Snapshot) error) (*snapshot.Snapshot, error) {
	snap, err := s.lock(txCtx, id)
	if err != nil {
		return nil, err
	}
	if snap.Executed() {
		return nil, snapshot.ErrAlreadyExecuted
	}
	if err := fn(snap); err != nil {
		return nil, err
	}
	if err := s.repo.Update(txCtx, snap); err != nil {
		return nil, storeError("update snapshot", err)
	}
	return snap, nil
}

func (s *SnapshotService) lock(ctx context.Context, id int64) (*snapshot.Snapshot, error) {
	snap, err := s.repo.LockByID(ctx, id)
	if errors.Is(err, snapshot.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, storeError("lock snapshot", err)
	}
	return snap, nil
}
