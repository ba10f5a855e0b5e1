package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the stored lifecycle state of a reservation.  Exactly one
// status is active at a time.
type Status string

const (
	StatusPending   Status = "EN_ATTENTE"
	StatusConfirmed Status = "CONFIRMEE"
	StatusOngoing   Status = "EN_COURS"
	StatusCompleted Status = "TERMINEE"
	StatusCancelled Status = "ANNULEE"
)

var statusLabels = map[Status]string{
	StatusPending:   "En attente",
	StatusConfirmed: "Confirmée",
	StatusOngoing:   "En cours",
	StatusCompleted: "Terminée",
	StatusCancelled: "Annulée",
}

// ParseStatus returns the Status named by s and whether it is known.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := statusLabels[st]
	return st, ok
}

// Label returns the human readable label shown next to the status code.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

// PaymentState tracks the payment intent attached to a reservation.
type PaymentState string

const (
	PaymentNone      PaymentState = ""
	PaymentInitiated PaymentState = "INITIATED"
	PaymentCaptured  PaymentState = "CAPTURED"
	PaymentFailed    PaymentState = "FAILED"
	PaymentCancelled PaymentState = "CANCELLED"
)

// PaymentMethod tags which provider handled the payment.
type PaymentMethod string

const (
	PaymentMethodPayPal    PaymentMethod = "PAYPAL"
	PaymentMethodSimulated PaymentMethod = "SIMULATED"
)

// Payment holds the payment metadata stored on a reservation once a
// payment attempt has begun.
//
// Fields:
//  TransactionID – provider order id; the token carried back on redirect.
//  Method        – provider tag.
//  Status        – intent state.
//  InitiatedAt   – when the intent was created.
//  CaptureID     – provider capture reference once settled.
type Payment struct {
	TransactionID string        // reservations.transaction_id
	Method        PaymentMethod // reservations.payment_method
	Status        PaymentState  // reservations.payment_status
	InitiatedAt   time.Time     // reservations.payment_initiated_at
	CaptureID     string        // reservations.capture_id
}

// Contact is the customer contact block of a reservation.
type Contact struct {
	LastName  string `json:"nom" validate:"required,min=2,max=50"`
	FirstName string `json:"prenom" validate:"required,min=2,max=50"`
	Phone     string `json:"telephone" validate:"required,phone"`
	Email     string `json:"email" validate:"required,email"`
}

// Reservation records a customer's booking of one vehicle over a date
// range.  It corresponds to a row in the `reservations` table.
//
// Fields:
//  ID         – primary key, zero until persisted.
//  VehicleID  – rented vehicle; many reservations may reference one vehicle.
//  Start, End – calendar dates, End strictly after Start.
//  Contact    – customer contact details.
//  Pickup     – pickup location.
//  Return     – return location.
//  DayCount   – billed days, derived from the range.
//  TotalPrice – DayCount × vehicle daily rate.
//  Status     – stored lifecycle state.
//  CreatedAt  – set once on creation.
//  UpdatedAt  – bumped on every status transition.
//  Payment    – nil until a payment attempt begins.
//  Vehicle    – catalog data joined on reads, nil on freshly built values.
type Reservation struct {
	ID         uint64          // reservations.id
	VehicleID  uint64          // reservations.produit_id
	Start      Date            // reservations.date_depart
	End        Date            // reservations.date_retour
	Contact    Contact         // reservations.nom, prenom, telephone, email
	Pickup     Location        // reservations.lieu_prise
	Return     Location        // reservations.lieu_retour
	DayCount   int             // reservations.nombre_jours
	TotalPrice decimal.Decimal // reservations.prix_total
	Status     Status          // reservations.statut
	CreatedAt  time.Time       // reservations.date_creation
	UpdatedAt  time.Time       // reservations.date_modification
	Payment    *Payment
	Vehicle    *Vehicle
}

// PaymentStatus returns the intent state, PaymentNone when no attempt began.
func (r *Reservation) PaymentStatus() PaymentState {
	if r.Payment == nil {
		return PaymentNone
	}
	return r.Payment.Status
}
