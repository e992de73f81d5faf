package inmem

import (
	"context"
	"sync"

	"github.com/iota-uz/iota-talent/modules/talent/domain/reference"
)

// References is a seedable catalog. Lookups of unknown ids return
// reference.ErrNotFound.
type References struct {
	mu          sync.RWMutex
	subjects    map[int64]reference.Subject
	positions   map[int64]reference.Position
	assignments map[int64]reference.Assignment
	abilities   map[int64]reference.Ability
	aspirations map[int64]reference.Aspiration
}

func NewReferences() *References {
	return &References{
		subjects:    map[int64]reference.Subject{},
		positions:   map[int64]reference.Position{},
		assignments: map[int64]reference.Assignment{},
		abilities:   map[int64]reference.Ability{},
		aspirations: map[int64]reference.Aspiration{},
	}
}

func (r *References) AddSubject(v reference.Subject) *References {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects[v.ID] = v
	return r
}

func (r *References) AddPosition(v reference.Position) *References {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[v.ID] = v
	return r
}

func (r *References) AddAssignment(v reference.Assignment) *References {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[v.ID] = v
	return r
}

func (r *References) AddAbility(v reference.Ability) *References {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abilities[v.ID] = v
	return r
}

func (r *References) AddAspiration(v reference.Aspiration) *References {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aspirations[v.ID] = v
	return r
}

func lookup[V any](mu *sync.RWMutex, m map[int64]V, kind reference.Kind, id int64) (V, error) {
	mu.RLock()
	defer mu.RUnlock()
	v, ok := m[id]
	if !ok {
		var zero V
		return zero, reference.NotFound(kind, id)
	}
	return v, nil
}

func (r *References) Subject(_ context.Context, id int64) (reference.Subject, error) {
	return lookup(&r.mu, r.subjects, reference.KindSubject, id)
}

func (r *References) Position(_ context.Context, id int64) (reference.Position, error) {
	return lookup(&r.mu, r.positions, reference.KindPosition, id)
}

func (r *References) Assignment(_ context.Context, id int64) (reference.Assignment, error) {
	return lookup(&r.mu, r.assignments, reference.KindAssignment, id)
}

func (r *References) Ability(_ context.Context, id int64) (reference.Ability, error) {
	return lookup(&r.mu, r.abilities, reference.KindAbility, id)
}

func (r *References) Aspiration(_ context.Context, id int64) (reference.Aspiration, error) {
	return lookup(&r.mu, r.aspirations, reference.KindAspiration, id)
}
