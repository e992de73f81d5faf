package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/iota-talent/modules/talent/domain/checkin"
	"github.com/iota-uz/iota-talent/pkg/authz"
)

const (
	sideEmployee = "employee"
	sideManager  = "manager"
)

// CheckInService drives the dual-sided completion state machine against the
// store. Every call re-reads the check-in under a row lock before mutating, so
// racing completions converge.
type CheckInService struct {
	repo      checkin.Repository
	tx        Transactor
	authorize authz.Predicate
	opts      Options
}

func NewCheckInService(repo checkin.Repository, tx Transactor, authorize authz.Predicate, opts Options) *CheckInService {
	return &CheckInService{
		repo:      repo,
		tx:        tx,
		authorize: authz.WithAdminOverride(authorize),
		opts:      opts.withDefaults("talent.check_in"),
	}
}

type CompletionResult struct {
	CheckIn  *checkin.CheckIn `json:"check_in"`
	Detected bool             `json:"detected"`
	State    checkin.State    `json:"state"`
}

// Open returns the subject's open check-in for scope, creating an empty one
// when none exists.
func (s *CheckInService) Open(ctx context.Context, kind checkin.Kind, subjectID, scopeID int64) (*checkin.CheckIn, error) {
	if !kind.Valid() {
		return nil, newValidationError("kind", "unknown check-in kind %q", kind)
	}
	if subjectID <= 0 || scopeID <= 0 {
		return nil, newValidationError("subject_id", "subject and scope ids are required")
	}
	return inTx(ctx, s.tx, func(txCtx context.Context) (*checkin.CheckIn, error) {
		return lockOrCreateOpen(txCtx, s.repo, kind, subjectID, scopeID)
	})
}

func (s *CheckInService) ListOpen(ctx context.Context, subjectID int64) ([]*checkin.CheckIn, error) {
	rows, err := s.repo.ListOpen(bind(ctx, s.tx), subjectID)
	return rows, storeError("list open check-ins", err)
}

// CompleteEmployeeSide stamps the employee side. It reports Detected=false
// when the check-in was already fully complete.
func (s *CheckInService) CompleteEmployeeSide(ctx context.Context, checkInID int64, actor authz.Actor) (*CompletionResult, error) {
	return s.complete(ctx, checkInID, actor, sideEmployee, func(c *checkin.CheckIn) checkin.Transition {
		return c.CompleteEmployeeSide(s.opts.Now())
	})
}

// CompleteManagerSide stamps the manager side and records actor as completer.
func (s *CheckInService) CompleteManagerSide(ctx context.Context, checkInID int64, actor authz.Actor) (*CompletionResult, error) {
	return s.complete(ctx, checkInID, actor, sideManager, func(c *checkin.CheckIn) checkin.Transition {
		return c.CompleteManagerSide(actor.ID, s.opts.Now())
	})
}

func (s *CheckInService) complete(ctx context.Context, checkInID int64, actor authz.Actor, side string, mark func(*checkin.CheckIn) checkin.Transition) (*CompletionResult, error) {
	var event Event
	res, err := inTx(ctx, s.tx, emitting(s.opts, &event, func(txCtx context.Context) (*CompletionResult, error) {
		c, err := s.repo.LockByID(txCtx, checkInID)
		if err != nil {
			return nil, storeError("lock check-in", err)
		}
		if side == sideManager && !s.authorize(txCtx, authz.Request{Actor: actor, SubjectID: c.SubjectID, FieldGroup: authz.FieldGroupManagerCheckIn}) {
			return nil, ErrNotAuthorized
		}
		tr := mark(c)
		if tr.Detected {
			c.UpdatedAt = s.opts.Now().UTC()
			if err := s.repo.Save(txCtx, c); err != nil {
				return nil, storeError("save check-in", err)
			}
		}
		return &CompletionResult{CheckIn: c, Detected: tr.Detected, State: tr.State}, nil
	}, func(res *CompletionResult) Event {
		if !res.Detected {
			return nil
		}
		return &CheckInCompletedEvent{
			EventMeta: newEventMeta(s.opts.Now(), actor.ID),
			CheckInID: res.CheckIn.ID,
			Kind:      res.CheckIn.Kind,
			SubjectID: res.CheckIn.SubjectID,
			Side:      side,
			State:     res.State,
		}
	}))
	if err != nil {
		return nil, err
	}

	recordCompletion(side, res.Detected)
	s.opts.logWithFields(ctx, logrus.InfoLevel, "talent.check_in.completion", logrus.Fields{
		"check_in_id": checkInID,
		"subject_id":  res.CheckIn.SubjectID,
		"side":        side,
		"detected":    res.Detected,
		"state":       res.State,
		"actor_id":    actor.ID,
	})
	if event != nil {
		s.opts.deliver(ctx, event)
	}
	return res, nil
}

// UncheckEmployeeSide clears the employee completion before finalization.
func (s *CheckInService) UncheckEmployeeSide(ctx context.Context, checkInID int64, actor authz.Actor) (*checkin.CheckIn, error) {
	return s.uncheck(ctx, checkInID, actor, sideEmployee)
}

// UncheckManagerSide clears the manager completion and completer.
func (s *CheckInService) UncheckManagerSide(ctx context.Context, checkInID int64, actor authz.Actor) (*checkin.CheckIn, error) {
	return s.uncheck(ctx, checkInID, actor, sideManager)
}

func (s *CheckInService) uncheck(ctx context.Context, checkInID int64, actor authz.Actor, side string) (*checkin.CheckIn, error) {
	return inTx(ctx, s.tx, func(txCtx context.Context) (*checkin.CheckIn, error) {
		c, err := s.repo.LockByID(txCtx, checkInID)
		if err != nil {
			return nil, storeError("lock check-in", err)
		}
		if side == sideManager {
			if !s.authorize(txCtx, authz.Request{Actor: actor, SubjectID: c.SubjectID, FieldGroup: authz.FieldGroupManagerCheckIn}) {
				return nil, ErrNotAuthorized
			}
			err = c.UncheckManagerSide()
		} else {
			err = c.UncheckEmployeeSide()
		}
		if err != nil {
			return nil, err
		}
		c.UpdatedAt = s.opts.Now().UTC()
		if err := s.repo.Save(txCtx, c); err != nil {
			return nil, storeError("save check-in", err)
		}
		s.opts.logWithFields(txCtx, logrus.InfoLevel, "talent.check_in.unchecked", logrus.Fields{
			"check_in_id": checkInID,
			"side":        side,
			"state":       c.State(),
			"actor_id":    actor.ID,
		})
		return c, nil
	})
}

type FinalizeCheckInInput struct {
	CheckInID      int64   `json:"check_in_id" validate:"required,gt=0"`
	OfficialRating *string `json:"official_rating,omitempty"`
	SharedNotes    *string `json:"shared_notes,omitempty"`
}

// Finalize records the official completion. It needs the official_check_in
// field group and a check-in in both_complete.
func (s *CheckInService) Finalize(ctx context.Context, in FinalizeCheckInInput, actor authz.Actor) (*checkin.CheckIn, error) {
	if in.CheckInID <= 0 {
		return nil, newValidationError("check_in_id", "is required")
	}
	var event Event
	c, err := inTx(ctx, s.tx, emitting(s.opts, &event, func(txCtx context.Context) (*checkin.CheckIn, error) {
		c, err := s.repo.LockByID(txCtx, in.CheckInID)
		if err != nil {
			return nil, storeError("lock check-in", err)
		}
		if !s.authorize(txCtx, authz.Request{Actor: actor, SubjectID: c.SubjectID, FieldGroup: authz.FieldGroupOfficialCheckIn}) {
			return nil, ErrNotAuthorized
		}
		if in.OfficialRating != nil {
			c.OfficialRating = in.OfficialRating
		}
		if in.SharedNotes != nil {
			c.SharedNotes = in.SharedNotes
		}
		if err := finalize(c, actor.ID, s.opts.Now()); err != nil {
			return nil, err
		}
		c.UpdatedAt = s.opts.Now().UTC()
		if err := s.repo.Save(txCtx, c); err != nil {
			return nil, storeError("save check-in", err)
		}
		return c, nil
	}, func(c *checkin.CheckIn) Event { return finalizedEvent(c, actor.ID, s.opts.Now()) }))
	if err != nil {
		return nil, err
	}
	s.opts.deliver(ctx, event)
	return c, nil
}

func finalizedEvent(c *checkin.CheckIn, actorID int64, at time.Time) *CheckInFinalizedEvent {
	return &CheckInFinalizedEvent{
		EventMeta: newEventMeta(at, actorID),
		CheckInID: c.ID,
		Kind:      c.Kind,
		SubjectID: c.SubjectID,
	}
}

// finalize maps the domain refusal onto a ValidationError.
func finalize(c *checkin.CheckIn, actorID int64, at time.Time) error {
	err := c.Finalize(actorID, at)
	if errors.Is(err, checkin.ErrNotReadyForFinalization) {
		return newValidationError("official_completed_at", "check-in is %s, both sides must be complete", c.State())
	}
	return err
}

func lockOrCreateOpen(ctx context.Context, repo checkin.Repository, kind checkin.Kind, subjectID, scopeID int64) (*checkin.CheckIn, error) {
	c, found, err := repo.LockOpen(ctx, kind, subjectID, scopeID)
	if err != nil {
		return nil, storeError("lock open check-in", err)
	}
	if found {
		return c, nil
	}
	c, err = repo.Create(ctx, checkin.New(kind, subjectID, scopeID))
	if err != nil {
		return nil, storeError("create check-in", err)
	}
	return c, nil
}
