package types

// Nullable distinguishes "omitted" from "explicit null" in partial
// update payloads. Clearing a value and leaving it unchanged are
// different operations: an unset Nullable leaves the column alone, a
// set-but-null one writes NULL.
type Nullable[T any] struct {
	set   bool
	value *T
}

// NewNullable returns a Nullable that writes the given value
func NewNullable[T any](value T) Nullable[T] {
	return Nullable[T]{set: true, value: &value}
}

// NullValue returns a Nullable that explicitly clears the value
func NullValue[T any]() Nullable[T] {
	return Nullable[T]{set: true}
}

// IsSet reports whether the field was provided at all
func (n Nullable[T]) IsSet() bool {
	return n.set
}

// Value returns the value to write; nil means clear
func (n Nullable[T]) Value() *T {
	return n.value
}
