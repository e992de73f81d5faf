// Package reference holds the read-only catalog data the talent core looks up
// by id: people, positions, assignments, abilities and aspirations.
package reference

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("reference not found")

type Kind string

const (
	KindSubject    Kind = "subject"
	KindPosition   Kind = "position"
	KindAssignment Kind = "assignment"
	KindAbility    Kind = "ability"
	KindAspiration Kind = "aspiration"
	// KindEmploymentTenure is reported when a position check-in has no active tenure to attach to.
	KindEmploymentTenure Kind = "employment_tenure"
)

type Subject struct {
	ID          int64  `json:"id"`
	CompanyID   int64  `json:"company_id"`
	DisplayName string `json:"display_name"`
}

// Label is used in generated text; it never returns an empty string.
func (s Subject) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return fmt.Sprintf("subject #%d", s.ID)
}

type Position struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	Title     string `json:"title"`
}

type Assignment struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	Title     string `json:"title"`
}

type Ability struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Aspiration struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Repository resolves reference ids. Missing ids return an error wrapping
// ErrNotFound.
type Repository interface {
	Subject(ctx context.Context, id int64) (Subject, error)
	Position(ctx context.Context, id int64) (Position, error)
	Assignment(ctx context.Context, id int64) (Assignment, error)
	Ability(ctx context.Context, id int64) (Ability, error)
	Aspiration(ctx context.Context, id int64) (Aspiration, error)
}

// NotFound builds the canonical missing-reference error.
func NotFound(kind Kind, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
}
