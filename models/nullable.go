package models

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Nullable is a patch field that tells an absent JSON key apart from an
// explicit null. Set is true when the key was present; Value is nil for null.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// Some returns a Nullable that sets the field to v.
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// Null returns a Nullable that clears the field.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// Apply returns the field value after the patch.
func (n Nullable[T]) Apply(current *T) *T {
	if !n.Set {
		return current
	}
	return n.Value
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// nullableValue exposes the wrapped value to validator tags. Unset and null
// fields validate as nil, so omitempty skips them.
func nullableValue[T any](field reflect.Value) any {
	n, ok := field.Interface().(Nullable[T])
	if !ok || n.Value == nil {
		return nil
	}
	return *n.Value
}
