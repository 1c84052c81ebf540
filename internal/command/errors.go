package command

import (
	"errors"
	"fmt"
)

var (
	ErrUnrecognizedCommand = errors.New("unrecognized command")
	ErrMalformedCoordinate = errors.New("malformed coordinate")
	ErrMalformedNumber     = errors.New("malformed number")
)

type ParseErrorKind string

const (
	UnrecognizedCommand ParseErrorKind = "unrecognized_command"
	MalformedCoordinate ParseErrorKind = "malformed_coordinate"
	MalformedNumber     ParseErrorKind = "malformed_number"
)

// ParseError describes why a raw command was rejected.
// Pos is the byte offset into Input, or -1 for structured input.
type ParseError struct {
	Kind  ParseErrorKind
	Input string
	Pos   int
	Field string
	Msg   string
}

func (e *ParseError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Msg)
	case e.Pos >= 0:
		return fmt.Sprintf("%s at offset %d in %q: %s", e.Kind, e.Pos, e.Input, e.Msg)
	default:
		return fmt.Sprintf("%s in %q: %s", e.Kind, e.Input, e.Msg)
	}
}

func (e *ParseError) Unwrap() error {
	switch e.Kind {
	case UnrecognizedCommand:
		return ErrUnrecognizedCommand
	case MalformedCoordinate:
		return ErrMalformedCoordinate
	case MalformedNumber:
		return ErrMalformedNumber
	}
	return nil
}
