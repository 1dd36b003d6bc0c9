package domain

import (
	"bytes"
	"encoding/json"
)

// Optional is a partial-update field. It tells apart a field that was
// absent from the input, one that was sent as null, and one that was sent
// with a value (including the zero value).
type Optional[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Null returns an Optional that was explicitly cleared.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// Get returns the value and whether one was provided (not absent, not null).
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Set && !o.Null
}

// UnmarshalJSON marks the field as provided. encoding/json only calls it
// for keys present in the document, so absence leaves Set false.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Value = zero
		o.Null = true
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON writes the value, or null when absent or cleared.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// applyTo overwrites *dst when a value was provided.
func applyTo[T any](o Optional[T], dst *T) {
	if v, ok := o.Get(); ok {
		*dst = v
	}
}

// applyNullable overwrites or clears a nullable destination.
func applyNullable[T any](o Optional[T], dst **T) {
	if !o.Set {
		return
	}
	if o.Null {
		*dst = nil
		return
	}
	v := o.Value
	*dst = &v
}
