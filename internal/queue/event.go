// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

import (
	"time"

	"github.com/vala/car-rental-reservation/internal/model"
)

// ConfirmedQueue is the durable queue carrying ReservationConfirmedEvent.
const ConfirmedQueue = "reservation.confirmed"

// ReservationConfirmedEvent is published when a payment capture confirms a
// reservation.  It carries enough for downstream consumers to log or
// notify without querying the primary database.
type ReservationConfirmedEvent struct {
	ReservationID  uint64 `json:"reservation_id"`
	VehicleID      uint64 `json:"vehicle_id"`
	VehicleName    string `json:"vehicle_name,omitempty"`
	CustomerName   string `json:"customer_name"`
	CustomerEmail  string `json:"customer_email"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	PickupLocation string `json:"pickup_location"`
	ReturnLocation string `json:"return_location"`
	DayCount       int    `json:"day_count"`
	Total          string `json:"total"`
	PaymentMethod  string `json:"payment_method"`
	TransactionID  string `json:"transaction_id"`
	ConfirmedAt    string `json:"confirmed_at"`
}

// NewReservationConfirmedEvent builds the event for a confirmed reservation.
func NewReservationConfirmedEvent(r *model.Reservation) ReservationConfirmedEvent {
	ev := ReservationConfirmedEvent{
		ReservationID:  r.ID,
		VehicleID:      r.VehicleID,
		CustomerName:   r.Contact.FirstName + " " + r.Contact.LastName,
		CustomerEmail:  r.Contact.Email,
		StartDate:      r.Start.String(),
		EndDate:        r.End.String(),
		PickupLocation: string(r.Pickup),
		ReturnLocation: string(r.Return),
		DayCount:       r.DayCount,
		Total:          r.TotalPrice.StringFixed(2),
		ConfirmedAt:    r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if r.Vehicle != nil {
		ev.VehicleName = r.Vehicle.Brand + " " + r.Vehicle.Name
	}
	if r.Payment != nil {
		ev.PaymentMethod = string(r.Payment.Method)
		ev.TransactionID = r.Payment.TransactionID
	}
	return ev
}
