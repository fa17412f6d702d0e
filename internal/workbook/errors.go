package workbook

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when the surface is unreachable or the session was lost.
	ErrNotConnected = errors.New("not connected to workbook")

	// ErrInvalidAddress is returned for malformed A1 references.
	ErrInvalidAddress = errors.New("invalid cell address")

	// ErrRangeTooLarge is returned for ranges above the configured cell cap.
	ErrRangeTooLarge = errors.New("range too large")

	// ErrSheetNotFound is returned when a sheet-qualified address names an unknown sheet.
	ErrSheetNotFound = errors.New("sheet not found")
)

// ConnectionError is a failure to reach or keep the automation surface.
// It aborts the current batch.
type ConnectionError struct {
	Op  string // connect, ping, reconnect
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return ErrNotConnected.Error()
	}
	return fmt.Sprintf("%v: %s: %v", ErrNotConnected, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() []error { return []error{ErrNotConnected, e.Err} }

// IsConnectionError reports whether err is a connection failure.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
