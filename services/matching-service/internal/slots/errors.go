package slots

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTime          = errors.New("invalid time")
	ErrInvalidSlot          = errors.New("invalid slot index")
	ErrInvalidArraySize     = errors.New("invalid array size")
	ErrInvalidStartBoundary = errors.New("invalid start boundary")
	ErrInvalidDuration      = errors.New("invalid duration")
	// ErrSkippedTime marks a wall-clock slot that does not exist on its date, such as 02:30 on a
	// spring-forward day.
	ErrSkippedTime = errors.New("wall-clock time does not exist")
)

// ValueError pairs one of the sentinel errors above with the value that caused it.
type ValueError struct {
	Err   error
	Value any
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%v: %v", e.Err, e.Value)
}

func (e *ValueError) Unwrap() error {
	return e.Err
}

// Invalid wraps kind with the offending value.
func Invalid(kind error, value any) error {
	return &ValueError{Err: kind, Value: value}
}
