package booking

import (
	"errors"
	"fmt"
)

// ValidationError reports user-correctable input.  Field names the JSON
// field the message should be rendered next to.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

var (
	// ErrInvalidTransition is returned when an operation is not allowed
	// from the reservation's current status.
	ErrInvalidTransition = errors.New("booking: invalid status transition")
	// ErrPaymentMismatch is returned when a payment result does not
	// reference the reservation's pending payment intent.
	ErrPaymentMismatch = errors.New("booking: payment does not match the pending intent")
	// ErrNotFound is returned when a reservation or vehicle id is unknown.
	ErrNotFound = errors.New("booking: not found")
	// ErrVehicleUnavailable is returned when every unit of the vehicle is
	// already booked over the requested range.
	ErrVehicleUnavailable = errors.New("booking: no vehicle available for this period")
	// ErrStaleState is returned by the store when a conditional write
	// finds the reservation no longer in the expected state.
	ErrStaleState = errors.New("booking: reservation changed concurrently")
)
