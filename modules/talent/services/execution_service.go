package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/iota-uz/iota-talent/modules/talent/domain/checkin"
	"github.com/iota-uz/iota-talent/modules/talent/domain/milestone"
	"github.com/iota-uz/iota-talent/modules/talent/domain/reference"
	"github.com/iota-uz/iota-talent/modules/talent/domain/snapshot"
	"github.com/iota-uz/iota-talent/modules/talent/domain/tenure"
	"github.com/iota-uz/iota-talent/pkg/authz"
	"github.com/iota-uz/iota-talent/pkg/optional"
)

const (
	EntityEmployment = "employment"
	EntityAssignment = "assignment"
	EntityMilestone  = "milestone"
	EntityAspiration = "aspiration"
)

// SkippedField records a proposed field group left untouched because the
// actor was not authorized for it.
type SkippedField struct {
	EntityType string           `json:"entity_type"`
	EntityID   int64            `json:"entity_id"`
	FieldGroup authz.FieldGroup `json:"field_group"`
}

// EntryError is a per-entry failure that did not stop sibling entries.
type EntryError struct {
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

type AppliedChange struct {
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	Change     string `json:"change"`
}

type ExecutionResult struct {
	SnapshotID    int64           `json:"snapshot_id"`
	Success       bool            `json:"success"`
	Applied       []AppliedChange `json:"applied"`
	SkippedFields []SkippedField  `json:"skipped_fields"`
	EntryErrors   []EntryError    `json:"entry_errors"`
}

func (r *ExecutionResult) applied(entity string, id int64, change string) {
	r.Applied = append(r.Applied, AppliedChange{EntityType: entity, EntityID: id, Change: change})
}

func (r *ExecutionResult) skipped(entity string, id int64, group authz.FieldGroup) {
	recordSkippedFieldGroup(string(group))
	r.SkippedFields = append(r.SkippedFields, SkippedField{EntityType: entity, EntityID: id, FieldGroup: group})
}

func (r *ExecutionResult) entryError(entity string, id int64, err error) {
	r.EntryErrors = append(r.EntryErrors, EntryError{EntityType: entity, EntityID: id, Code: ErrorCode(err), Message: err.Error()})
}

// ExecutionEngine applies a snapshot's proposed state to live tenures,
// check-ins and milestone attainments. Every tenure update, check-in upsert
// and milestone write is its own transaction; a failure midway leaves earlier
// entries applied.
type ExecutionEngine struct {
	snapshots   *SnapshotService
	tenures     *TenureService
	employment  tenure.EmploymentRepository
	checkIns    checkin.Repository
	milestones  milestone.Repository
	refs        reference.Repository
	tx          Transactor
	defaultAuth authz.Predicate
	opts        Options
}

type ExecutionDeps struct {
	Snapshots  *SnapshotService
	Tenures    *TenureService
	Employment tenure.EmploymentRepository
	CheckIns   checkin.Repository
	Milestones milestone.Repository
	References reference.Repository
	Tx         Transactor
	// Authorize is used when Execute is called without a predicate.
	Authorize authz.Predicate
}

func NewExecutionEngine(deps ExecutionDeps, opts Options) *ExecutionEngine {
	return &ExecutionEngine{
		snapshots:   deps.Snapshots,
		tenures:     deps.Tenures,
		employment:  deps.Employment,
		checkIns:    deps.CheckIns,
		milestones:  deps.Milestones,
		refs:        deps.References,
		tx:          deps.Tx,
		defaultAuth: deps.Authorize,
		opts:        opts.withDefaults("talent.execution"),
	}
}

// Execute applies snap and reports success. Failures are logged.
func (e *ExecutionEngine) Execute(ctx context.Context, snap *snapshot.Snapshot, actor authz.Actor, authorize authz.Predicate) bool {
	res, err := e.ExecuteWithResult(ctx, snap, actor, authorize)
	return err == nil && res.Success
}

// ExecuteWithResult applies snap and returns what was applied, skipped and
// rejected. A returned error aborted the run; entries processed before it
// stay applied. The snapshot is marked executed only when every entry
// succeeded, and snap.ExecutedAt is stamped to match. A snapshot whose stored
// row is already executed is rejected before anything is applied.
func (e *ExecutionEngine) ExecuteWithResult(ctx context.Context, snap *snapshot.Snapshot, actor authz.Actor, authorize authz.Predicate) (*ExecutionResult, error) {
	ctx, span := e.opts.Tracer.Start(ctx, "talent.Execute")
	defer span.End()

	res := &ExecutionResult{Applied: []AppliedChange{}, SkippedFields: []SkippedField{}, EntryErrors: []EntryError{}}
	if snap == nil {
		return res, newValidationError("snapshot", "is required")
	}
	res.SnapshotID = snap.ID
	span.SetAttributes(
		attribute.Int64("talent.snapshot_id", snap.ID),
		attribute.Int64("talent.subject_id", snap.SubjectID),
	)

	ctx = bind(ctx, e.tx)
	if err := e.guardExecuted(ctx, snap); err != nil {
		recordExecution(false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.opts.logWithFields(ctx, logrus.ErrorLevel, "talent.snapshot.execute_failed", logrus.Fields{
			"snapshot_id": snap.ID,
			"subject_id":  snap.SubjectID,
			"actor_id":    actor.ID,
			"error_code":  ErrorCode(err),
			"error":       err.Error(),
		})
		return res, err
	}

	if authorize == nil {
		authorize = e.defaultAuth
	}
	run := &execution{
		engine:    e,
		snap:      snap,
		actor:     actor,
		authorize: authz.WithAdminOverride(authorize),
		res:       res,
		date:      e.effectiveDate(snap),
	}

	err := run.apply(ctx)
	var executed Event
	if err == nil && len(res.EntryErrors) == 0 {
		res.Success = true
		executed = &SnapshotExecutedEvent{
			EventMeta:  newEventMeta(e.opts.Now(), actor.ID),
			SnapshotID: snap.ID,
			SubjectID:  snap.SubjectID,
			Result:     res,
		}
		marked, markErr := e.snapshots.markExecuted(ctx, snap.ID, executed)
		if markErr != nil {
			res.Success = false
			executed = nil
			err = markErr
		} else {
			snap.ExecutedAt = marked.ExecutedAt
		}
	}

	recordExecution(res.Success)
	fields := logrus.Fields{
		"snapshot_id":    snap.ID,
		"subject_id":     snap.SubjectID,
		"actor_id":       actor.ID,
		"applied":        len(res.Applied),
		"skipped_fields": len(res.SkippedFields),
		"entry_errors":   len(res.EntryErrors),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		fields["error_code"] = ErrorCode(err)
		fields["error"] = err.Error()
		e.opts.logWithFields(ctx, logrus.ErrorLevel, "talent.snapshot.execute_failed", fields)
		return res, err
	}
	e.opts.logWithFields(ctx, logrus.InfoLevel, "talent.snapshot.executed", fields)
	if executed != nil {
		e.opts.deliver(ctx, executed)
	}
	return res, nil
}

// guardExecuted rejects snap when it, or its stored row, is already executed.
// The caller's copy picks up the stored executed_at.
func (e *ExecutionEngine) guardExecuted(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap.Executed() {
		return snapshot.ErrAlreadyExecuted
	}
	if snap.ID == 0 {
		return nil
	}
	stored, err := e.snapshots.GetByID(ctx, snap.ID)
	if err != nil {
		return err
	}
	if stored.Executed() {
		snap.ExecutedAt = stored.ExecutedAt
		return snapshot.ErrAlreadyExecuted
	}
	return nil
}

func (e *ExecutionEngine) effectiveDate(snap *snapshot.Snapshot) time.Time {
	if snap.EffectiveDate != nil {
		return normalizeDateUTC(*snap.EffectiveDate)
	}
	return e.opts.today()
}

// execution is the state of one Execute call.
type execution struct {
	engine    *ExecutionEngine
	snap      *snapshot.Snapshot
	actor     authz.Actor
	authorize authz.Predicate
	res       *ExecutionResult
	date      time.Time
}

func (x *execution) allowed(ctx context.Context, group authz.FieldGroup) bool {
	return x.authorize(ctx, authz.Request{Actor: x.actor, SubjectID: x.snap.SubjectID, FieldGroup: group})
}

func (x *execution) skip(ctx context.Context, entity string, id int64, group authz.FieldGroup) {
	x.res.skipped(entity, id, group)
	x.engine.opts.logWithFields(ctx, logrus.InfoLevel, "talent.snapshot.field_group_skipped", logrus.Fields{
		"snapshot_id": x.snap.ID,
		"subject_id":  x.snap.SubjectID,
		"entity_type": entity,
		"entity_id":   id,
		"field_group": group,
		"actor_id":    x.actor.ID,
	})
}

// absorb records a ReferenceNotFoundError against the entry and swallows it;
// any other error is returned and aborts the run.
func (x *execution) absorb(entity string, id int64, err error) error {
	var notFound *ReferenceNotFoundError
	if errors.As(err, &notFound) {
		x.res.entryError(entity, id, err)
		return nil
	}
	return err
}

func (x *execution) apply(ctx context.Context) error {
	state := x.snap.ProposedState

	if state.Employment != nil {
		if err := x.absorb(EntityEmployment, x.snap.SubjectID, x.applyEmployment(ctx, state.Employment)); err != nil {
			return err
		}
	}
	for i := range state.Assignments {
		a := &state.Assignments[i]
		if err := x.absorb(EntityAssignment, a.AssignmentID, x.applyAssignment(ctx, a)); err != nil {
			return err
		}
	}
	for i := range state.Milestones {
		m := &state.Milestones[i]
		if err := x.absorb(EntityMilestone, m.AbilityID, x.applyMilestone(ctx, m)); err != nil {
			return err
		}
	}
	for i := range state.Aspirations {
		a := &state.Aspirations[i]
		if err := x.absorb(EntityAspiration, a.AspirationID, x.applyAspiration(ctx, a)); err != nil {
			return err
		}
	}
	return nil
}

func (x *execution) resolve(ctx context.Context, kind reference.Kind, id int64) error {
	refs := x.engine.refs
	if refs == nil {
		return nil
	}
	var err error
	switch kind {
	case reference.KindSubject:
		_, err = refs.Subject(ctx, id)
	case reference.KindPosition:
		_, err = refs.Position(ctx, id)
	case reference.KindAssignment:
		_, err = refs.Assignment(ctx, id)
	case reference.KindAbility:
		_, err = refs.Ability(ctx, id)
	case reference.KindAspiration:
		_, err = refs.Aspiration(ctx, id)
	}
	if errors.Is(err, reference.ErrNotFound) {
		return &ReferenceNotFoundError{Kind: kind, ID: id, Cause: err}
	}
	return storeError("lookup "+string(kind), err)
}

func (x *execution) applyEmployment(ctx context.Context, p *snapshot.EmploymentProposal) error {
	if date, ok := p.TerminationDate.Get(); ok {
		res, err := x.engine.tenures.TerminateEmployment(ctx, TerminateEmploymentInput{
			SubjectID: x.snap.SubjectID,
			CompanyID: x.snap.CompanyID,
			Date:      date,
		}, x.actor)
		if err != nil {
			return err
		}
		x.res.applied(EntityEmployment, x.snap.SubjectID, "tenure:"+string(res.Action))
	} else if p.PositionID.IsSet() || p.ManagerID.IsSet() || p.SeatID.IsSet() || p.EmploymentType.IsSet() {
		if id, ok := p.PositionID.Get(); ok {
			if err := x.resolve(ctx, reference.KindPosition, id); err != nil {
				return err
			}
		}
		if id, ok := p.ManagerID.Get(); ok {
			if err := x.resolve(ctx, reference.KindSubject, id); err != nil {
				return err
			}
		}
		in := UpdateEmploymentTenureInput{
			SubjectID:      x.snap.SubjectID,
			CompanyID:      x.snap.CompanyID,
			PositionID:     p.PositionID.Ptr(),
			ManagerID:      p.ManagerID.Ptr(),
			SeatID:         p.SeatID,
			EmploymentType: p.EmploymentType.Ptr(),
		}
		start := p.StartedAt.Or(formatDate(x.date))
		in.StartDate = &start
		res, err := x.engine.tenures.UpdateEmploymentTenure(ctx, in, x.actor)
		if err != nil {
			return err
		}
		x.res.applied(EntityEmployment, x.snap.SubjectID, "tenure:"+string(res.Action))
	}

	if p.RatedPosition != nil {
		return x.applyRatedPosition(ctx, p.RatedPosition)
	}
	return nil
}

// applyRatedPosition writes the official rating onto the open position
// check-in of the active employment tenure and finalizes it.
func (x *execution) applyRatedPosition(ctx context.Context, r *snapshot.RatedPosition) error {
	if !x.allowed(ctx, authz.FieldGroupOfficialCheckIn) {
		x.skip(ctx, EntityEmployment, x.snap.SubjectID, authz.FieldGroupOfficialCheckIn)
		return nil
	}
	var finalized *CheckInFinalizedEvent
	err := x.engine.tx.InTx(ctx, func(txCtx context.Context) error {
		active, found, err := x.engine.employment.LockActive(txCtx, x.snap.SubjectID, x.snap.CompanyID)
		if err != nil {
			return storeError("lock active employment tenure", err)
		}
		if !found {
			return &ReferenceNotFoundError{Kind: reference.KindEmploymentTenure, ID: x.snap.SubjectID, Cause: reference.ErrNotFound}
		}
		c, err := lockOrCreateOpen(txCtx, x.engine.checkIns, checkin.KindPosition, x.snap.SubjectID, active.ID)
		if err != nil {
			return err
		}
		setIfPresent(&c.OfficialRating, r.OfficialRating)
		setIfPresent(&c.SharedNotes, r.SharedNotes)
		if err := finalize(c, x.actor.ID, r.RatedAt.Or(x.engine.opts.Now())); err != nil {
			return err
		}
		c.UpdatedAt = x.engine.opts.Now().UTC()
		if err := x.engine.checkIns.Save(txCtx, c); err != nil {
			return storeError("save check-in", err)
		}
		finalized = finalizedEvent(c, x.actor.ID, x.engine.opts.Now())
		return x.engine.opts.record(txCtx, finalized)
	})
	if err != nil {
		return err
	}
	x.res.applied(EntityEmployment, x.snap.SubjectID, "rated_position")
	x.engine.opts.deliver(ctx, finalized)
	return nil
}

func (x *execution) applyAssignment(ctx context.Context, a *snapshot.AssignmentProposal) error {
	if err := x.resolve(ctx, reference.KindAssignment, a.AssignmentID); err != nil {
		return err
	}
	if a.Tenure != nil {
		if energy, ok := a.Tenure.AnticipatedEnergyPercentage.Get(); ok {
			res, err := x.engine.tenures.UpdateAssignmentTenure(ctx, UpdateAssignmentTenureInput{
				SubjectID:        x.snap.SubjectID,
				AssignmentID:     a.AssignmentID,
				EnergyPercentage: energy,
				StartDate:        a.Tenure.StartedAt.Or(formatDate(x.date)),
			}, x.actor)
			if err != nil {
				return err
			}
			x.res.applied(EntityAssignment, a.AssignmentID, "tenure:"+string(res.Action))
		}
	}
	return x.applyCheckIn(ctx, checkin.KindAssignment, EntityAssignment, a.AssignmentID, a.EmployeeCheckIn, a.ManagerCheckIn, a.OfficialCheckIn)
}

func (x *execution) applyAspiration(ctx context.Context, a *snapshot.AspirationProposal) error {
	if err := x.resolve(ctx, reference.KindAspiration, a.AspirationID); err != nil {
		return err
	}
	return x.applyCheckIn(ctx, checkin.KindAspiration, EntityAspiration, a.AspirationID, a.EmployeeCheckIn, a.ManagerCheckIn, a.OfficialCheckIn)
}

// applyCheckIn upserts the open check-in for scopeID in one transaction.
// Employee fields are always written; manager and official fields only when
// the actor holds the matching field group.
func (x *execution) applyCheckIn(
	ctx context.Context,
	kind checkin.Kind,
	entity string,
	scopeID int64,
	emp *snapshot.EmployeeCheckInProposal,
	mgr *snapshot.ManagerCheckInProposal,
	off *snapshot.OfficialCheckInProposal,
) error {
	if emp == nil && mgr == nil && off == nil {
		return nil
	}
	if emp != nil {
		if v, ok := emp.ActualEnergyPercentage.Get(); ok && (v < tenure.MinEnergyPercentage || v > tenure.MaxEnergyPercentage) {
			return newValidationError("actual_energy_percentage", "must be between 0 and 100, got %d", v)
		}
	}
	writeManager := mgr != nil && x.allowed(ctx, authz.FieldGroupManagerCheckIn)
	writeOfficial := off != nil && x.allowed(ctx, authz.FieldGroupOfficialCheckIn)
	if mgr != nil && !writeManager {
		x.skip(ctx, entity, scopeID, authz.FieldGroupManagerCheckIn)
	}
	if off != nil && !writeOfficial {
		x.skip(ctx, entity, scopeID, authz.FieldGroupOfficialCheckIn)
	}
	if emp == nil && !writeManager && !writeOfficial {
		return nil
	}

	var (
		saved     *checkin.CheckIn
		before    checkin.State
		finalized bool
		events    []Event
	)
	err := x.engine.tx.InTx(ctx, func(txCtx context.Context) error {
		c, err := lockOrCreateOpen(txCtx, x.engine.checkIns, kind, x.snap.SubjectID, scopeID)
		if err != nil {
			return err
		}
		before = c.State()

		if emp != nil {
			setIfPresent(&c.ActualEnergyPercentage, emp.ActualEnergyPercentage)
			setIfPresent(&c.EmployeeRating, emp.Rating)
			setIfPresent(&c.PersonalAlignment, emp.PersonalAlignment)
			setIfPresent(&c.EmployeePrivateNotes, emp.PrivateNotes)
			if emp.CompletedAt.IsSet() {
				if err := c.SetEmployeeCompletedAt(emp.CompletedAt.Ptr()); err != nil {
					return err
				}
			}
		}
		if writeManager {
			setIfPresent(&c.ManagerRating, mgr.Rating)
			setIfPresent(&c.ManagerPrivateNotes, mgr.PrivateNotes)
			if mgr.CompletedAt.IsSet() {
				if err := c.SetManagerCompletedAt(mgr.CompletedAt.Ptr(), x.actor.ID); err != nil {
					return err
				}
			}
		}
		if writeOfficial {
			setIfPresent(&c.OfficialRating, off.OfficialRating)
			setIfPresent(&c.SharedNotes, off.SharedNotes)
			if at, ok := off.CompletedAt.Get(); ok {
				if err := finalize(c, x.actor.ID, at); err != nil {
					return err
				}
				finalized = true
			}
		}

		c.UpdatedAt = x.engine.opts.Now().UTC()
		if err := x.engine.checkIns.Save(txCtx, c); err != nil {
			return storeError("save check-in", err)
		}
		saved = c

		if after := c.State(); after != before {
			events = append(events, &CheckInCompletedEvent{
				EventMeta: newEventMeta(x.engine.opts.Now(), x.actor.ID),
				CheckInID: c.ID,
				Kind:      c.Kind,
				SubjectID: c.SubjectID,
				Side:      "snapshot",
				State:     after,
			})
		}
		if finalized {
			events = append(events, finalizedEvent(c, x.actor.ID, x.engine.opts.Now()))
		}
		for _, ev := range events {
			if err := x.engine.opts.record(txCtx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	x.res.applied(entity, scopeID, "check_in:"+string(saved.State()))
	for _, ev := range events {
		x.engine.opts.deliver(ctx, ev)
	}
	return nil
}

// applyMilestone upserts levels 1-5 and deletes the attainment for a zero or
// cleared level.
func (x *execution) applyMilestone(ctx context.Context, m *snapshot.MilestoneProposal) error {
	if !x.allowed(ctx, authz.FieldGroupMilestoneCertification) {
		x.skip(ctx, EntityMilestone, m.AbilityID, authz.FieldGroupMilestoneCertification)
		return nil
	}
	if err := x.resolve(ctx, reference.KindAbility, m.AbilityID); err != nil {
		return err
	}

	level := m.MilestoneLevel.Or(0)
	if milestone.RemovesAttainment(level) {
		err := x.engine.milestones.Delete(ctx, x.snap.SubjectID, m.AbilityID)
		if err != nil && !errors.Is(err, milestone.ErrNotFound) {
			return storeError("delete milestone", err)
		}
		x.res.applied(EntityMilestone, m.AbilityID, "milestone:removed")
		return nil
	}
	if !milestone.ValidLevel(level) {
		return newValidationError("milestone_level", "must be between %d and %d, got %d", milestone.MinLevel, milestone.MaxLevel, level)
	}

	certifier := m.CertifyingSubjectID.Or(x.actor.ID)
	if certifier != x.actor.ID {
		if err := x.resolve(ctx, reference.KindSubject, certifier); err != nil {
			return err
		}
	}
	attained := x.date
	if raw, ok := m.AttainedAt.Get(); ok {
		d, err := parseDate("attained_at", raw)
		if err != nil {
			return err
		}
		attained = d
	}
	err := x.engine.milestones.Upsert(ctx, milestone.Attainment{
		SubjectID:           x.snap.SubjectID,
		AbilityID:           m.AbilityID,
		MilestoneLevel:      level,
		CertifyingSubjectID: certifier,
		AttainedAt:          attained,
		UpdatedAt:           x.engine.opts.Now().UTC(),
	})
	if err != nil {
		return storeError("upsert milestone", err)
	}
	x.res.applied(EntityMilestone, m.AbilityID, "milestone:level_"+strconv.Itoa(level))
	return nil
}

// setIfPresent copies a present value; an explicit null clears the field.
func setIfPresent[T any](dst **T, v optional.Value[T]) {
	if v.IsSet() {
		*dst = v.Ptr()
	}
}

func (r *ExecutionResult) String() string {
	return fmt.Sprintf("snapshot %d: success=%t applied=%d skipped=%d errors=%d",
		r.SnapshotID, r.Success, len(r.Applied), len(r.SkippedFields), len(r.EntryErrors))
}
