// Package booking implements the reservation lifecycle: creation in
// EN_ATTENTE, attachment of a payment intent, confirmation on capture,
// cancellation and the back-office pickup / return transitions.  Machine
// holds the pure transition rules; Service binds them to persistence.
package booking

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vala/car-rental-reservation/internal/model"
	"github.com/vala/car-rental-reservation/internal/pricing"
)

var phonePattern = regexp.MustCompile(`^[+]?[0-9]{10,15}$`)

// Details is the booking form submitted by a customer.  Prices and day
// counts are never accepted from the client.
type Details struct {
	VehicleID uint64
	Start     model.Date
	End       model.Date
	Contact   model.Contact
	Pickup    model.Location
	Return    model.Location
}

// PaymentResult is what a successful capture reports back.
type PaymentResult struct {
	TransactionID string
	CaptureID     string
}

// Phase classifies a reservation's date range against the current day.
type Phase int

const (
	PhaseUpcoming Phase = iota
	PhaseInProgress
	PhaseElapsed
)

// PhaseOf returns where now falls relative to r's range.  The return day
// still counts as in progress; the range has elapsed from the next day.
func PhaseOf(r *model.Reservation, now time.Time) Phase {
	today := model.NewDate(now)
	switch {
	case today.Before(r.Start.Time):
		return PhaseUpcoming
	case today.After(r.End.Time):
		return PhaseElapsed
	default:
		return PhaseInProgress
	}
}

// EffectiveStatus is the status presented to readers.  A CONFIRMEE
// reservation is reported EN_COURS while its range is running and
// TERMINEE once it has elapsed; the stored status is left untouched.
func EffectiveStatus(r *model.Reservation, now time.Time) model.Status {
	if r.Status != model.StatusConfirmed {
		return r.Status
	}
	switch PhaseOf(r, now) {
	case PhaseInProgress:
		return model.StatusOngoing
	case PhaseElapsed:
		return model.StatusCompleted
	}
	return model.StatusConfirmed
}

// Machine applies lifecycle transitions to in-memory reservations.  It
// never persists anything; a failed call leaves the reservation unchanged.
type Machine struct {
	now      func() time.Time
	validate *validator.Validate
}

// NewMachine returns a Machine reading the current time from now.  A nil
// now defaults to time.Now.
func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return &Machine{now: now, validate: v}
}

// Now returns the machine's current time.
func (m *Machine) Now() time.Time { return m.now() }

// EffectiveStatus is EffectiveStatus evaluated at the machine's clock.
func (m *Machine) EffectiveStatus(r *model.Reservation) model.Status {
	return EffectiveStatus(r, m.now())
}

// Create validates d against the vehicle and returns a new reservation in
// EN_ATTENTE with its day count and total computed from the vehicle rate.
func (m *Machine) Create(d Details, v model.Vehicle) (*model.Reservation, error) {
	contact := model.Contact{
		LastName:  strings.TrimSpace(d.Contact.LastName),
		FirstName: strings.TrimSpace(d.Contact.FirstName),
		Phone:     strings.TrimSpace(d.Contact.Phone),
		Email:     strings.ToLower(strings.TrimSpace(d.Contact.Email)),
	}
	if err := m.validate.Struct(contact); err != nil {
		return nil, translate(err)
	}
	if !d.Pickup.Valid() {
		return nil, invalid("lieuPrise", "unknown pickup location")
	}
	if !d.Return.Valid() {
		return nil, invalid("lieuRetour", "unknown return location")
	}
	if d.Start.IsZero() {
		return nil, invalid("dateDepart", "start date is required")
	}
	if d.End.IsZero() {
		return nil, invalid("dateRetour", "end date is required")
	}

	now := m.now()
	if !pricing.IsDateSelectable(d.Start.Time, now) {
		return nil, invalid("dateDepart", "start date cannot be in the past")
	}
	quote, err := pricing.NewQuote(d.Start, d.End, v.DailyRate)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidRange) {
			return nil, invalid("dateRetour", "end date must be after start date")
		}
		return nil, invalid("produitId", "vehicle has no valid daily rate")
	}

	return &model.Reservation{
		VehicleID:  v.ID,
		Start:      d.Start,
		End:        d.End,
		Contact:    contact,
		Pickup:     d.Pickup,
		Return:     d.Return,
		DayCount:   quote.DayCount,
		TotalPrice: quote.Total,
		Status:     model.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// CheckPayable reports whether a payment may be started for r.
func (m *Machine) CheckPayable(r *model.Reservation) error {
	if r.Status != model.StatusPending {
		return fmt.Errorf("%w: cannot pay a reservation in %s", ErrInvalidTransition, r.Status)
	}
	if r.PaymentStatus() == model.PaymentCaptured {
		return fmt.Errorf("%w: payment already captured", ErrInvalidTransition)
	}
	return nil
}

// BeginPayment attaches a pending payment intent to r.  Any earlier
// intent that was never captured is replaced, so a customer may retry.
// The reservation status does not change.
func (m *Machine) BeginPayment(r *model.Reservation, method model.PaymentMethod, transactionID string) (*model.Payment, error) {
	if err := m.CheckPayable(r); err != nil {
		return nil, err
	}
	if transactionID == "" {
		return nil, invalid("transactionId", "transaction id is required")
	}
	p := &model.Payment{
		TransactionID: transactionID,
		Method:        method,
		Status:        model.PaymentInitiated,
		InitiatedAt:   m.now(),
	}
	r.Payment = p
	return p, nil
}

// Confirm moves r from EN_ATTENTE to CONFIRMEE once res proves the
// pending intent was captured.
func (m *Machine) Confirm(r *model.Reservation, res PaymentResult) error {
	p := r.Payment
	if p == nil || p.Status != model.PaymentInitiated || p.TransactionID == "" || p.TransactionID != res.TransactionID {
		return ErrPaymentMismatch
	}
	if r.Status != model.StatusPending {
		return fmt.Errorf("%w: cannot confirm from %s", ErrInvalidTransition, r.Status)
	}
	r.Status = model.StatusConfirmed
	r.UpdatedAt = m.now()
	p.Status = model.PaymentCaptured
	p.CaptureID = res.CaptureID
	return nil
}

// FailPayment marks a pending intent FAILED, leaving the reservation in
// EN_ATTENTE so payment can be retried.
func (m *Machine) FailPayment(r *model.Reservation) error {
	if r.Payment == nil || r.Payment.Status != model.PaymentInitiated {
		return ErrPaymentMismatch
	}
	r.Payment.Status = model.PaymentFailed
	return nil
}

// AbandonPayment marks a pending intent CANCELLED after the customer left
// the provider's page.  The reservation stays in EN_ATTENTE.  Abandoning
// an already cancelled intent is a no-op.
func (m *Machine) AbandonPayment(r *model.Reservation) error {
	switch r.PaymentStatus() {
	case model.PaymentCancelled:
		return nil
	case model.PaymentInitiated:
	case model.PaymentCaptured:
		return fmt.Errorf("%w: payment already captured", ErrInvalidTransition)
	default:
		return ErrPaymentMismatch
	}
	if r.Status != model.StatusPending {
		return fmt.Errorf("%w: reservation is %s", ErrInvalidTransition, r.Status)
	}
	r.Payment.Status = model.PaymentCancelled
	return nil
}

// Cancel moves r to ANNULEE.  Only pending reservations and confirmed
// ones whose range has not started can be cancelled.
func (m *Machine) Cancel(r *model.Reservation) error {
	switch st := m.EffectiveStatus(r); st {
	case model.StatusPending, model.StatusConfirmed:
	default:
		return fmt.Errorf("%w: cannot cancel a reservation that is %s", ErrInvalidTransition, st)
	}
	r.Status = model.StatusCancelled
	r.UpdatedAt = m.now()
	if r.PaymentStatus() == model.PaymentInitiated {
		r.Payment.Status = model.PaymentCancelled
	}
	return nil
}

// Start records vehicle pickup: CONFIRMEE → EN_COURS, from the start day on.
func (m *Machine) Start(r *model.Reservation) error {
	if r.Status != model.StatusConfirmed || PhaseOf(r, m.now()) == PhaseUpcoming {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, m.EffectiveStatus(r))
	}
	r.Status = model.StatusOngoing
	r.UpdatedAt = m.now()
	return nil
}

// Complete records vehicle return: EN_COURS → TERMINEE, or directly from
// CONFIRMEE once the range has started.
func (m *Machine) Complete(r *model.Reservation) error {
	switch {
	case r.Status == model.StatusOngoing:
	case r.Status == model.StatusConfirmed && PhaseOf(r, m.now()) != PhaseUpcoming:
	default:
		return fmt.Errorf("%w: cannot complete from %s", ErrInvalidTransition, m.EffectiveStatus(r))
	}
	r.Status = model.StatusCompleted
	r.UpdatedAt = m.now()
	return nil
}

// Apply routes a back-office status request to the matching transition.
// CONFIRMEE is only reachable through a captured payment.
func (m *Machine) Apply(r *model.Reservation, target model.Status) error {
	switch target {
	case model.StatusCancelled:
		return m.Cancel(r)
	case model.StatusOngoing:
		return m.Start(r)
	case model.StatusCompleted:
		return m.Complete(r)
	}
	return fmt.Errorf("%w: %s cannot be set directly", ErrInvalidTransition, target)
}

func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid("", err.Error())
	}
	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "min":
		msg = fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		msg = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		msg = "invalid email format"
	case "phone":
		msg = "invalid phone format"
	default:
		msg = "is invalid"
	}
	return invalid(fe.Field(), msg)
}
