package payment

import (
	"errors"
	"fmt"
)

// Provider level outcomes.  Adapters wrap them so callers can use errors.Is.
var (
	// ErrProviderUnavailable covers network failures and 5xx answers.
	ErrProviderUnavailable = errors.New("payment: provider unavailable")
	// ErrProviderRejected covers 4xx answers not mapped to a finer error.
	ErrProviderRejected = errors.New("payment: request rejected by provider")
	// ErrOrderNotFound means the provider does not know the order id.
	ErrOrderNotFound = errors.New("payment: order not found")
	// ErrOrderAlreadyCaptured means the order was captured before.
	ErrOrderAlreadyCaptured = errors.New("payment: order already captured")
	// ErrOrderExpired means the approval window closed.
	ErrOrderExpired = errors.New("payment: order expired")
	// ErrOrderNotApproved means the payer never approved the order.
	ErrOrderNotApproved = errors.New("payment: order not approved by payer")
)

// ProviderError is a failed provider call.  Message is the provider's own
// description, safe to show to the customer for 4xx answers.
type ProviderError struct {
	StatusCode int
	Issue      string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Issue != "" {
		return fmt.Sprintf("%v: HTTP %d %s - %s", e.Err, e.StatusCode, e.Issue, e.Message)
	}
	return fmt.Sprintf("%v: HTTP %d %s", e.Err, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// InitiationError is returned when the provider could not create an
// order.  Retryable is set for transport failures and provider outages;
// otherwise Message carries the provider's reason.
type InitiationError struct {
	Retryable bool
	Message   string
	Err       error
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("payment initiation failed: %v", e.Err)
}

func (e *InitiationError) Unwrap() error { return e.Err }

func newInitiationError(err error) *InitiationError {
	ie := &InitiationError{Err: err, Retryable: true}
	var pe *ProviderError
	if errors.As(err, &pe) && !errors.Is(err, ErrProviderUnavailable) {
		ie.Retryable = false
		ie.Message = pe.Message
	}
	return ie
}

// CaptureKind classifies capture failures.
type CaptureKind int

const (
	// CaptureInvalid: unknown token, cancelled or failed intent, or an
	// order the payer never approved.
	CaptureInvalid CaptureKind = iota + 1
	// CaptureExpired: the intent outlived its validity window.
	CaptureExpired
	// CaptureAlreadyProcessed: the intent was captured before.
	CaptureAlreadyProcessed
	// CaptureUnavailable: the provider could not be reached; the intent
	// is left pending and the capture can be retried.
	CaptureUnavailable
	// CaptureSuperseded: the provider settled the order but the
	// reservation was cancelled in the meantime.  The payment is not
	// recorded and has to be refunded.
	CaptureSuperseded
)

func (k CaptureKind) String() string {
	switch k {
	case CaptureInvalid:
		return "invalid"
	case CaptureExpired:
		return "expired"
	case CaptureAlreadyProcessed:
		return "already_processed"
	case CaptureUnavailable:
		return "unavailable"
	case CaptureSuperseded:
		return "superseded"
	}
	return "unknown"
}

// CaptureError is returned by Orchestrator.Capture.
type CaptureError struct {
	Kind          CaptureKind
	ReservationID uint64
	Err           error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return "payment capture " + e.Kind.String()
	}
	return fmt.Sprintf("payment capture %s: %v", e.Kind, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

func captureError(kind CaptureKind, reservationID uint64, err error) *CaptureError {
	return &CaptureError{Kind: kind, ReservationID: reservationID, Err: err}
}
