package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/iota-talent/modules/talent/domain/tenure"
	"github.com/iota-uz/iota-talent/pkg/authz"
	"github.com/iota-uz/iota-talent/pkg/constants"
	"github.com/iota-uz/iota-talent/pkg/optional"
)

type TenureAction string

const (
	TenureNoop        TenureAction = "noop"
	TenureCreated     TenureAction = "created"
	TenureEnded       TenureAction = "ended"
	TenureReplaced    TenureAction = "replaced"
	TenureSeatUpdated TenureAction = "seat_updated"
	TenureTerminated  TenureAction = "terminated"
)

// TenureService keeps at most one open tenure per (subject, assignment) and
// per (subject, company). Each call is one transaction.
type TenureService struct {
	assignments tenure.AssignmentRepository
	employment  tenure.EmploymentRepository
	tx          Transactor
	opts        Options
}

func NewTenureService(assignments tenure.AssignmentRepository, employment tenure.EmploymentRepository, tx Transactor, opts Options) *TenureService {
	return &TenureService{
		assignments: assignments,
		employment:  employment,
		tx:          tx,
		opts:        opts.withDefaults("talent.tenure"),
	}
}

type UpdateAssignmentTenureInput struct {
	SubjectID        int64  `json:"subject_id" validate:"required,gt=0"`
	AssignmentID     int64  `json:"assignment_id" validate:"required,gt=0"`
	EnergyPercentage int    `json:"energy_percentage" validate:"gte=0,lte=100"`
	StartDate        string `json:"start_date" validate:"required"`
}

type AssignmentTenureResult struct {
	Action  TenureAction             `json:"action"`
	Ended   *tenure.AssignmentTenure `json:"ended,omitempty"`
	Current *tenure.AssignmentTenure `json:"current,omitempty"`
}

// UpdateAssignmentTenure moves the subject's allocation to in.EnergyPercentage
// effective in.StartDate. Zero ends the active tenure; a different energy ends
// it and opens a successor on the same day; the same energy is a no-op.
func (s *TenureService) UpdateAssignmentTenure(ctx context.Context, in UpdateAssignmentTenureInput, actor authz.Actor) (*AssignmentTenureResult, error) {
	if err := constants.Validate.Struct(in); err != nil {
		return nil, validationFromStruct(err)
	}
	startDate, err := parseDate("start_date", in.StartDate)
	if err != nil {
		return nil, err
	}

	var event Event
	res, err := inTx(ctx, s.tx, emitting(s.opts, &event, func(txCtx context.Context) (*AssignmentTenureResult, error) {
		active, found, err := s.assignments.LockActive(txCtx, in.SubjectID, in.AssignmentID)
		if err != nil {
			return nil, storeError("lock active assignment tenure", err)
		}

		if !found {
			if in.EnergyPercentage == 0 {
				return &AssignmentTenureResult{Action: TenureNoop}, nil
			}
			created, err := s.assignments.Create(txCtx, tenure.AssignmentTenure{
				SubjectID:                   in.SubjectID,
				AssignmentID:                in.AssignmentID,
				AnticipatedEnergyPercentage: in.EnergyPercentage,
				StartedAt:                   startDate,
			})
			if err != nil {
				return nil, storeError("create assignment tenure", err)
			}
			return &AssignmentTenureResult{Action: TenureCreated, Current: &created}, nil
		}

		if active.AnticipatedEnergyPercentage == in.EnergyPercentage {
			return &AssignmentTenureResult{Action: TenureNoop, Current: &active}, nil
		}
		if startDate.Before(active.StartedAt) {
			return nil, newValidationError("start_date", "%s is before the active tenure start %s", formatDate(startDate), formatDate(active.StartedAt))
		}

		if err := s.assignments.End(txCtx, active.ID, startDate); err != nil {
			return nil, storeError("end assignment tenure", err)
		}
		ended := active
		ended.EndedAt = &startDate

		if in.EnergyPercentage == 0 {
			return &AssignmentTenureResult{Action: TenureEnded, Ended: &ended}, nil
		}

		created, err := s.assignments.Create(txCtx, tenure.AssignmentTenure{
			SubjectID:                   in.SubjectID,
			AssignmentID:                in.AssignmentID,
			AnticipatedEnergyPercentage: in.EnergyPercentage,
			StartedAt:                   startDate,
		})
		if err != nil {
			return nil, storeError("create assignment tenure", err)
		}
		return &AssignmentTenureResult{Action: TenureReplaced, Ended: &ended, Current: &created}, nil
	}, func(res *AssignmentTenureResult) Event {
		if res.Action == TenureNoop {
			return nil
		}
		return &AssignmentTenureChangedEvent{
			EventMeta:    newEventMeta(s.opts.Now(), actor.ID),
			SubjectID:    in.SubjectID,
			AssignmentID: in.AssignmentID,
			Action:       res.Action,
			Ended:        res.Ended,
			Created:      createdOnly(res),
		}
	}))
	if err != nil {
		s.opts.logWithFields(ctx, logrus.WarnLevel, "talent.assignment_tenure.rejected", logrus.Fields{
			"subject_id":    in.SubjectID,
			"assignment_id": in.AssignmentID,
			"actor_id":      actor.ID,
			"error_code":    ErrorCode(err),
			"error":         err.Error(),
		})
		return nil, err
	}

	recordTenureTransition("assignment", res.Action)
	s.opts.logWithFields(ctx, logrus.InfoLevel, "talent.assignment_tenure.updated", logrus.Fields{
		"subject_id":        in.SubjectID,
		"assignment_id":     in.AssignmentID,
		"energy_percentage": in.EnergyPercentage,
		"start_date":        formatDate(startDate),
		"action":            res.Action,
		"actor_id":          actor.ID,
	})
	if event != nil {
		s.opts.deliver(ctx, event)
	}
	return res, nil
}

func createdOnly(res *AssignmentTenureResult) *tenure.AssignmentTenure {
	if res.Action == TenureCreated || res.Action == TenureReplaced {
		return res.Current
	}
	return nil
}

// UpdateEmploymentTenureInput lists the attributes to move to. Nil pointers
// and an absent SeatID mean "unchanged"; an explicit null SeatID clears the seat.
type UpdateEmploymentTenureInput struct {
	SubjectID       int64                 `json:"subject_id" validate:"required,gt=0"`
	CompanyID       int64                 `json:"company_id" validate:"required,gt=0"`
	PositionID      *int64                `json:"position_id,omitempty" validate:"omitempty,gt=0"`
	ManagerID       *int64                `json:"manager_id,omitempty" validate:"omitempty,gt=0"`
	SeatID          optional.Value[int64] `json:"seat_id,omitzero"`
	EmploymentType  *string               `json:"employment_type,omitempty" validate:"omitempty,min=1"`
	TerminationDate *string               `json:"termination_date,omitempty"`
	// StartDate only applies when hiring, i.e. no tenure is active.
	StartDate *string `json:"start_date,omitempty"`
}

type EmploymentTenureResult struct {
	Action  TenureAction             `json:"action"`
	Ended   *tenure.EmploymentTenure `json:"ended,omitempty"`
	Current *tenure.EmploymentTenure `json:"current,omitempty"`
}

// UpdateEmploymentTenure applies exactly one policy, in priority order:
// termination ends the active row; a manager, position or employment type
// change ends it today and opens a successor; a seat-only change is written
// in place; anything else is a no-op.
func (s *TenureService) UpdateEmploymentTenure(ctx context.Context, in UpdateEmploymentTenureInput, actor authz.Actor) (*EmploymentTenureResult, error) {
	if err := constants.Validate.Struct(in); err != nil {
		return nil, validationFromStruct(err)
	}
	if in.TerminationDate != nil {
		return s.terminate(ctx, in.SubjectID, in.CompanyID, 0, *in.TerminationDate, false, actor)
	}

	var hireDate time.Time
	if in.StartDate != nil {
		d, err := parseDate("start_date", *in.StartDate)
		if err != nil {
			return nil, err
		}
		hireDate = d
	}
	if seat, ok := in.SeatID.Get(); ok && seat <= 0 {
		return nil, newValidationError("seat_id", "must be greater than 0")
	}

	var event Event
	res, err := inTx(ctx, s.tx, emitting(s.opts, &event, func(txCtx context.Context) (*EmploymentTenureResult, error) {
		active, found, err := s.employment.LockActive(txCtx, in.SubjectID, in.CompanyID)
		if err != nil {
			return nil, storeError("lock active employment tenure", err)
		}
		if !found {
			return s.hire(txCtx, in, hireDate)
		}

		if employmentCoreChanged(active, in) {
			today := s.opts.today()
			if today.Before(active.StartedAt) {
				today = active.StartedAt
			}
			if err := s.employment.End(txCtx, active.ID, today); err != nil {
				return nil, storeError("end employment tenure", err)
			}
			ended := active
			ended.EndedAt = &today

			next := active.Successor(today)
			applyEmploymentInput(&next, in)
			created, err := s.employment.Create(txCtx, next)
			if err != nil {
				return nil, storeError("create employment tenure", err)
			}
			return &EmploymentTenureResult{Action: TenureReplaced, Ended: &ended, Current: &created}, nil
		}

		if in.SeatID.IsSet() && !equalInt64Ptr(in.SeatID.Ptr(), active.SeatID) {
			seat := in.SeatID.Ptr()
			if err := s.employment.UpdateSeat(txCtx, active.ID, seat); err != nil {
				return nil, storeError("update employment seat", err)
			}
			active.SeatID = seat
			return &EmploymentTenureResult{Action: TenureSeatUpdated, Current: &active}, nil
		}

		return &EmploymentTenureResult{Action: TenureNoop, Current: &active}, nil
	}, s.employmentEvent(in.SubjectID, in.CompanyID, actor)))
	if err != nil {
		s.logEmploymentRejected(ctx, in.SubjectID, in.CompanyID, actor, err)
		return nil, err
	}
	s.afterEmploymentChange(ctx, in.SubjectID, in.CompanyID, actor, res, event)
	return res, nil
}

func (s *TenureService) hire(ctx context.Context, in UpdateEmploymentTenureInput, startDate time.Time) (*EmploymentTenureResult, error) {
	if in.PositionID == nil && in.ManagerID == nil && in.EmploymentType == nil && !in.SeatID.IsSet() {
		return &EmploymentTenureResult{Action: TenureNoop}, nil
	}
	if in.PositionID == nil || in.ManagerID == nil || in.EmploymentType == nil {
		return nil, newValidationError("position_id", "no active employment tenure: position_id, manager_id and employment_type are required to start one")
	}
	if startDate.IsZero() {
		startDate = s.opts.today()
	}
	row := tenure.EmploymentTenure{SubjectID: in.SubjectID, CompanyID: in.CompanyID, StartedAt: startDate}
	applyEmploymentInput(&row, in)
	created, err := s.employment.Create(ctx, row)
	if err != nil {
		return nil, storeError("create employment tenure", err)
	}
	return &EmploymentTenureResult{Action: TenureCreated, Current: &created}, nil
}

type TerminateEmploymentInput struct {
	SubjectID int64 `json:"subject_id" validate:"required,gt=0"`
	CompanyID int64 `json:"company_id" validate:"required,gt=0"`
	// TenureID, when set, must name the active tenure.
	TenureID int64  `json:"tenure_id,omitempty" validate:"omitempty,gt=0"`
	Date     string `json:"date" validate:"required"`
}

// TerminateEmployment ends the active tenure at in.Date and stamps the
// subject's last-terminated marker in the same transaction.
func (s *TenureService) TerminateEmployment(ctx context.Context, in TerminateEmploymentInput, actor authz.Actor) (*EmploymentTenureResult, error) {
	if err := constants.Validate.Struct(in); err != nil {
		return nil, validationFromStruct(err)
	}
	return s.terminate(ctx, in.SubjectID, in.CompanyID, in.TenureID, in.Date, true, actor)
}

func (s *TenureService) terminate(ctx context.Context, subjectID, companyID, tenureID int64, rawDate string, markSubject bool, actor authz.Actor) (*EmploymentTenureResult, error) {
	date, err := parseDate("termination_date", rawDate)
	if err != nil {
		return nil, err
	}

	var event Event
	res, err := inTx(ctx, s.tx, emitting(s.opts, &event, func(txCtx context.Context) (*EmploymentTenureResult, error) {
		active, found, err := s.employment.LockActive(txCtx, subjectID, companyID)
		if err != nil {
			return nil, storeError("lock active employment tenure", err)
		}
		if !found {
			return &EmploymentTenureResult{Action: TenureNoop}, nil
		}
		if tenureID != 0 && active.ID != tenureID {
			return nil, newValidationError("tenure_id", "tenure %d is not the active tenure", tenureID)
		}
		if date.Before(active.StartedAt) {
			return nil, newValidationError("termination_date", "%s is before the tenure start %s", formatDate(date), formatDate(active.StartedAt))
		}
		if err := s.employment.End(txCtx, active.ID, date); err != nil {
			return nil, storeError("end employment tenure", err)
		}
		if markSubject {
			if err := s.employment.SetLastTerminatedAt(txCtx, subjectID, date); err != nil {
				return nil, storeError("set last terminated at", err)
			}
		}
		ended := active
		ended.EndedAt = &date
		return &EmploymentTenureResult{Action: TenureTerminated, Ended: &ended}, nil
	}, s.employmentEvent(subjectID, companyID, actor)))
	if err != nil {
		s.logEmploymentRejected(ctx, subjectID, companyID, actor, err)
		return nil, err
	}
	s.afterEmploymentChange(ctx, subjectID, companyID, actor, res, event)
	return res, nil
}

func (s *TenureService) ListAssignmentTenures(ctx context.Context, subjectID int64) ([]tenure.AssignmentTenure, error) {
	rows, err := s.assignments.ListBySubject(bind(ctx, s.tx), subjectID)
	return rows, storeError("list assignment tenures", err)
}

func (s *TenureService) ListEmploymentTenures(ctx context.Context, subjectID, companyID int64) ([]tenure.EmploymentTenure, error) {
	rows, err := s.employment.ListBySubject(bind(ctx, s.tx), subjectID, companyID)
	return rows, storeError("list employment tenures", err)
}

// LastTerminatedAt returns the subject's termination marker, nil if never terminated.
func (s *TenureService) LastTerminatedAt(ctx context.Context, subjectID int64) (*time.Time, error) {
	at, err := s.employment.LastTerminatedAt(bind(ctx, s.tx), subjectID)
	return at, storeError("get last terminated at", err)
}

func (s *TenureService) employmentEvent(subjectID, companyID int64, actor authz.Actor) func(*EmploymentTenureResult) Event {
	return func(res *EmploymentTenureResult) Event {
		if res.Action == TenureNoop {
			return nil
		}
		return &EmploymentTenureChangedEvent{
			EventMeta: newEventMeta(s.opts.Now(), actor.ID),
			SubjectID: subjectID,
			CompanyID: companyID,
			Action:    res.Action,
			Ended:     res.Ended,
			Current:   res.Current,
		}
	}
}

func (s *TenureService) afterEmploymentChange(ctx context.Context, subjectID, companyID int64, actor authz.Actor, res *EmploymentTenureResult, event Event) {
	recordTenureTransition("employment", res.Action)
	s.opts.logWithFields(ctx, logrus.InfoLevel, "talent.employment_tenure.updated", logrus.Fields{
		"subject_id": subjectID,
		"company_id": companyID,
		"action":     res.Action,
		"actor_id":   actor.ID,
	})
	if event != nil {
		s.opts.deliver(ctx, event)
	}
}

func (s *TenureService) logEmploymentRejected(ctx context.Context, subjectID, companyID int64, actor authz.Actor, err error) {
	level := logrus.WarnLevel
	var ve *ValidationError
	if !errors.As(err, &ve) {
		level = logrus.ErrorLevel
	}
	s.opts.logWithFields(ctx, level, "talent.employment_tenure.rejected", logrus.Fields{
		"subject_id": subjectID,
		"company_id": companyID,
		"actor_id":   actor.ID,
		"error_code": ErrorCode(err),
		"error":      err.Error(),
	})
}

func employmentCoreChanged(active tenure.EmploymentTenure, in UpdateEmploymentTenureInput) bool {
	return (in.PositionID != nil && *in.PositionID != active.PositionID) ||
		(in.ManagerID != nil && *in.ManagerID != active.ManagerID) ||
		(in.EmploymentType != nil && *in.EmploymentType != active.EmploymentType)
}

func applyEmploymentInput(row *tenure.EmploymentTenure, in UpdateEmploymentTenureInput) {
	if in.PositionID != nil {
		row.PositionID = *in.PositionID
	}
	if in.ManagerID != nil {
		row.ManagerID = *in.ManagerID
	}
	if in.EmploymentType != nil {
		row.EmploymentType = *in.EmploymentType
	}
	if in.SeatID.IsSet() {
		row.SeatID = in.SeatID.Ptr()
	}
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
