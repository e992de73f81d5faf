package authz

import (
	"context"
	"strconv"
	"strings"
)

// FieldGroup names a set of fields that share one authorization decision.
type FieldGroup string

const (
	FieldGroupManagerCheckIn         FieldGroup = "manager_check_in"
	FieldGroupOfficialCheckIn        FieldGroup = "official_check_in"
	FieldGroupMilestoneCertification FieldGroup = "milestone_certification"
)

func (g FieldGroup) String() string { return string(g) }

// Capability is an explicit grant carried by an actor.
type Capability string

// AdminOverride bypasses field-group checks for every subject.
const AdminOverride Capability = "admin_override"

// Actor is the person performing an operation.
type Actor struct {
	ID           int64
	Capabilities []Capability
}

func NewActor(id int64, caps ...Capability) Actor {
	return Actor{ID: id, Capabilities: caps}
}

func (a Actor) Has(c Capability) bool {
	for _, have := range a.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Request is one field-group decision for an actor acting on a subject.
type Request struct {
	Actor      Actor
	SubjectID  int64
	FieldGroup FieldGroup
}

// Predicate answers whether the request is allowed. It never errors: an
// evaluation failure is a denial.
type Predicate func(ctx context.Context, req Request) bool

// WithAdminOverride returns a predicate that admits actors holding
// AdminOverride before consulting next.
func WithAdminOverride(next Predicate) Predicate {
	return func(ctx context.Context, req Request) bool {
		if req.Actor.Has(AdminOverride) {
			return true
		}
		if next == nil {
			return false
		}
		return next(ctx, req)
	}
}

// AllowAll admits every request.
func AllowAll(context.Context, Request) bool { return true }

// DenyAll rejects every request.
func DenyAll(context.Context, Request) bool { return false }

// ManagerOf builds a predicate from a "does actor manage subject" lookup; it
// covers every field group.
func ManagerOf(manages func(ctx context.Context, actorID, subjectID int64) bool) Predicate {
	return func(ctx context.Context, req Request) bool {
		if manages == nil {
			return false
		}
		return manages(ctx, req.Actor.ID, req.SubjectID)
	}
}

const (
	actorPrefix   = "user"
	subjectPrefix = "subject"
	rolePrefix    = "role"
	separator     = ":"
	defaultAction = "write"
)

// SubjectForActor returns the casbin subject for an actor, e.g. user:42.
func SubjectForActor(id int64) string {
	return actorPrefix + separator + strconv.FormatInt(id, 10)
}

// DomainForSubject returns the casbin domain for a tracked employee, e.g. subject:7.
func DomainForSubject(id int64) string {
	return subjectPrefix + separator + strconv.FormatInt(id, 10)
}

// SubjectForRole returns the canonical identifier for a role-based subject.
func SubjectForRole(slug string) string {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		slug = "unnamed"
	}
	if strings.HasPrefix(slug, rolePrefix+separator) {
		return slug
	}
	return rolePrefix + separator + slug
}
