package model

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfRange   = errors.New("value out of range")
	ErrMissingField = errors.New("missing field")
)

type ValidationKind string

const (
	OutOfRange   ValidationKind = "out_of_range"
	MissingField ValidationKind = "missing_field"
)

// ValidationError is returned by job constructors.
// Match with errors.Is(err, ErrOutOfRange) or errors.As.
type ValidationError struct {
	Kind   ValidationKind
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Kind)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	switch e.Kind {
	case OutOfRange:
		return ErrOutOfRange
	case MissingField:
		return ErrMissingField
	}
	return nil
}

func outOfRange(field string) error {
	return &ValidationError{Kind: OutOfRange, Field: field}
}

func missingField(field string) error {
	return &ValidationError{Kind: MissingField, Field: field}
}
