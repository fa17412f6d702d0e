package tools

import (
	"errors"
	"fmt"
)

// Command validation errors.
var (
	// ErrUnknownKind is returned when a command type is not one of the recognized kinds.
	ErrUnknownKind = errors.New("unrecognized command type")

	// ErrMissingRequiredArg is returned when a required argument is missing.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType is returned when an argument has the wrong type.
	ErrInvalidArgType = errors.New("invalid argument type")
)

// ValidationError reports why a command cannot be executed.
type ValidationError struct {
	Type  string // command type as extracted, may be empty
	Field string // offending field, empty for kind errors
	Err   error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Type == "":
		return fmt.Sprintf("command has no type: %v", e.Err)
	case e.Field == "":
		return fmt.Sprintf("%v: %s", e.Err, e.Type)
	default:
		return fmt.Sprintf("invalid %s command: %v: %s", e.Type, e.Err, e.Field)
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }
