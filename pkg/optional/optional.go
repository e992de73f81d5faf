// Package optional models a JSON field that can be absent, explicitly null, or
// carry a value. Absent means "not part of the payload"; null means "clear".
package optional

import (
	"bytes"
	"encoding/json"
)

type Value[T any] struct {
	set bool
	val *T
}

func Of[T any](v T) Value[T] {
	return Value[T]{set: true, val: &v}
}

// Null returns a present value that asks for the field to be cleared.
func Null[T any]() Value[T] {
	return Value[T]{set: true}
}

// FromPtr maps nil onto Null.
func FromPtr[T any](p *T) Value[T] {
	if p == nil {
		return Null[T]()
	}
	return Of(*p)
}

// IsSet reports whether the field appeared in the payload (null included).
func (v Value[T]) IsSet() bool { return v.set }

// IsNull reports an explicit null.
func (v Value[T]) IsNull() bool { return v.set && v.val == nil }

// IsZero lets `omitzero` drop absent fields when marshalling.
func (v Value[T]) IsZero() bool { return !v.set }

func (v Value[T]) Get() (T, bool) {
	if v.val == nil {
		var zero T
		return zero, false
	}
	return *v.val, true
}

func (v Value[T]) Or(fallback T) T {
	if got, ok := v.Get(); ok {
		return got
	}
	return fallback
}

// Ptr returns a copy of the value, nil when absent or null.
func (v Value[T]) Ptr() *T {
	if v.val == nil {
		return nil
	}
	cp := *v.val
	return &cp
}

func (v Value[T]) MarshalJSON() ([]byte, error) {
	if v.val == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*v.val)
}

func (v *Value[T]) UnmarshalJSON(data []byte) error {
	v.set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		v.val = nil
		return nil
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	v.val = &out
	return nil
}
