package orm

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a query expects exactly one row but finds none.
var ErrNotFound = errors.New("orm: not found")

// ErrGone is returned by Load when the row behind an instance no longer exists.
var ErrGone = errors.New("orm: instance was deleted from database and cannot be refreshed")

// ErrNoPrimaryKey is returned when an operation needs the primary key value
// of an instance but it is unset.
var ErrNoPrimaryKey = errors.New("orm: primary key value is required")

// ErrMapping is the root of every mapping error. Use errors.Is to test for it.
var ErrMapping = errors.New("orm: mapping error")

// ErrUnresolvedAlias is returned when a sealed alias context is asked for a
// join edge that was never planned.
var ErrUnresolvedAlias = errors.New("orm: unresolved join alias")

// MappingError reports a relation path, field name or alias that does not
// match the entity definitions. It is a programming error and is never
// retried.
type MappingError struct {
	Entity string
	Field  string
	Reason string
	Err    error
}

func (e *MappingError) Error() string {
	msg := "orm: " + e.Entity
	if e.Field != "" {
		msg += "." + e.Field
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap lets errors.Is match both ErrMapping and the underlying cause.
func (e *MappingError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMapping, e.Err}
	}
	return []error{ErrMapping}
}

func mappingErr(entity, field, format string, args ...any) *MappingError {
	return &MappingError{Entity: entity, Field: field, Reason: fmt.Sprintf(format, args...)}
}
