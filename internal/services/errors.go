package services

import (
	"errors"
	"fmt"

	"github.com/Ananth-NQI/salonbook-backend/internal/models"
)

// Parser errors. Step handlers turn these into reprompts; they never
// leave the conversation service.
var (
	ErrInvalidFormat = errors.New("invalid format")
	ErrOutOfRange    = errors.New("value out of range")
	ErrPastDate      = errors.New("date is in the past")
	ErrPastTime      = errors.New("time is in the past")
	ErrTooShort      = errors.New("value too short")
)

var (
	// ErrInvalidIdentity is returned when the sender has no usable digits.
	ErrInvalidIdentity = errors.New("invalid sender identity")
	// ErrIllegalTransition means a handler tried to move outside the
	// transition table.
	ErrIllegalTransition = errors.New("illegal step transition")
	// ErrIncompleteBooking means confirmation was reached without every
	// field the commit needs.
	ErrIncompleteBooking = errors.New("booking data incomplete")
)

// ValidationError describes input rejected at a step.
type ValidationError struct {
	Step models.Step
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input at step %s: %v", e.Step, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed booking commit. The cause is logged and
// never shown to the customer.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// TransportError wraps a failed outbound send.
type TransportError struct {
	To  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.To, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
