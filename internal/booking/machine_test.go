package booking

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vala/car-rental-reservation/internal/model"
)

func fixedClock(s string) func() time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func testVehicle() model.Vehicle {
	return model.Vehicle{ID: 7, Name: "Clio", Brand: "Renault", DailyRate: decimal.NewFromInt(85), Quantity: 2}
}

func validDetails() Details {
	return Details{
		VehicleID: 7,
		Start:     model.MustDate("2025-06-01"),
		End:       model.MustDate("2025-06-04"),
		Contact: model.Contact{
			LastName:  "Alaoui",
			FirstName: "Sara",
			Phone:     "+212600000000",
			Email:     " Sara@Example.com ",
		},
		Pickup: model.LocationCasablancaCentre,
		Return: model.LocationAirportMohammedV,
	}
}

func TestMachine_Create(t *testing.T) {
	m := NewMachine(fixedClock("2025-05-20T10:00:00Z"))

	r, err := m.Create(validDetails(), testVehicle())
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, r.Status)
	assert.Equal(t, 3, r.DayCount)
	assert.True(t, decimal.NewFromInt(255).Equal(r.TotalPrice))
	assert.Equal(t, "sara@example.com", r.Contact.Email)
	assert.Equal(t, uint64(7), r.VehicleID)
	assert.Nil(t, r.Payment)
	assert.Equal(t, r.CreatedAt, r.UpdatedAt)
}

func TestMachine_CreateValidation(t *testing.T) {
	m := NewMachine(fixedClock("2025-05-20T10:00:00Z"))

	tests := []struct {
		name  string
		edit  func(*Details)
		field string
	}{
		{name: "end before start", field: "dateRetour", edit: func(d *Details) { d.End = model.MustDate("2025-05-30") }},
		{name: "end equals start", field: "dateRetour", edit: func(d *Details) { d.End = d.Start }},
		{name: "start in the past", field: "dateDepart", edit: func(d *Details) { d.Start = model.MustDate("2025-05-19") }},
		{name: "missing start", field: "dateDepart", edit: func(d *Details) { d.Start = model.Date{} }},
		{name: "short name", field: "nom", edit: func(d *Details) { d.Contact.LastName = "A" }},
		{name: "blank first name", field: "prenom", edit: func(d *Details) { d.Contact.FirstName = "   " }},
		{name: "bad phone", field: "telephone", edit: func(d *Details) { d.Contact.Phone = "06-12" }},
		{name: "bad email", field: "email", edit: func(d *Details) { d.Contact.Email = "nope" }},
		{name: "unknown pickup", field: "lieuPrise", edit: func(d *Details) { d.Pickup = "paris" }},
		{name: "unknown return", field: "lieuRetour", edit: func(d *Details) { d.Return = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDetails()
			tt.edit(&d)
			_, err := m.Create(d, testVehicle())
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestMachine_CreateAllowsToday(t *testing.T) {
	m := NewMachine(fixedClock("2025-06-01T23:00:00Z"))
	_, err := m.Create(validDetails(), testVehicle())
	assert.NoError(t, err)
}

func pending(t *testing.T, m *Machine) *model.Reservation {
	t.Helper()
	r, err := m.Create(validDetails(), testVehicle())
	require.NoError(t, err)
	r.ID = 42
	return r
}

func TestMachine_CreateThenCancel(t *testing.T) {
	m := NewMachine(fixedClock("2025-05-20T10:00:00Z"))
	r := pending(t, m)

	require.NoError(t, m.Cancel(r))
	assert.Equal(t, model.StatusCancelled, r.Status)

	err := m.Cancel(r)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, model.StatusCancelled, r.Status)
}

func TestMachine_ConfirmWithoutPayment(t *testing.T) {
	m := NewMachine(fixedClock("2025-05-20T10:00:00Z"))
	r := pending(t, m)

	err := m.Confirm(r, PaymentResult{TransactionID: "X"})
	assert.ErrorIs(t, err, ErrPaymentMismatch)
	assert.Equal(t, model.StatusPending, r.Status)
}

func TestMachine_PaymentFlow(t *testing.T) {
	m := NewMachine(fixedClock("2025-05-20T10:00:00Z"))
	r := pending(t, m)

	p, err := m.BeginPayment(r, model.PaymentMethodPayPal, "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentInitiated, p.Status)
	assert.Equal(t, model.StatusPending, r.Status, "begin payment does not change status")

	err = m.Confirm(r, PaymentResult{TransactionID: "ORDER-2"})
	assert.ErrorIs(t, err, ErrPaymentMismatch)

	require.NoError(t, m.Confirm(r, PaymentResult{TransactionID: "ORDER-1", CaptureID: "CAP-1"}))
	assert.Equal(t, model.StatusConfirmed, r.Status)
	assert.Equal(t, model.PaymentCaptured, r.Payment.Status)
	assert.Equal(t, "CAP-1", r.Payment.CaptureID)

	err = m.Confirm(r, PaymentResult{TransactionID: "ORDER-1"})
	assert.ErrorIs(t, err, ErrPaymentMismatch, "captured intent cannot be confirmed twice")

	_, err = m.BeginPayment(r, model.PaymentMethodPayPal, "ORDER-3")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMachine_BeginPaymentReplacesUncapturedIntent(t *testing.T) {
	m := NewMachine(fixedClock("2025-05-20T10:00:00Z"))
	r := pending(t, m)

	_, err := m.BeginPayment(r, model.PaymentMethodPayPal, "ORDER-1")
	require.NoError(t, err)
	require.NoError(t, m.AbandonPayment(r))
	assert.Equal(t, model.PaymentCancelled, r.Payment.Status)
	require.NoError(t, m.AbandonPayment(r), "abandon is idempotent")

	_, err = m.BeginPayment(r, model.PaymentMethodPayPal, "ORDER-2")
	require.NoError(t, err)
	assert.Equal(t, "ORDER-2", r.Payment.TransactionID)
	assert.Equal(t, model.StatusPending, r.Status)
}

func TestMachine_CancelReleasesPendingIntent(t *testing.T) {
	m := NewMachine(fixedClock("2025-05-20T10:00:00Z"))
	r := pending(t, m)
	_, err := m.BeginPayment(r, model.PaymentMethodSimulated, "SIM-1")
	require.NoError(t, err)

	require.NoError(t, m.Cancel(r))
	assert.Equal(t, model.PaymentCancelled, r.Payment.Status)

	_, err = m.BeginPayment(r, model.PaymentMethodSimulated, "SIM-2")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func confirmed(t *testing.T, now string) (*Machine, *model.Reservation) {
	t.Helper()
	create := NewMachine(fixedClock("2025-05-20T10:00:00Z"))
	r := pending(t, create)
	_, err := create.BeginPayment(r, model.PaymentMethodPayPal, "ORDER-1")
	require.NoError(t, err)
	require.NoError(t, create.Confirm(r, PaymentResult{TransactionID: "ORDER-1"}))
	return NewMachine(fixedClock(now)), r
}

func TestEffectiveStatus(t *testing.T) {
	tests := []struct {
		now  string
		want model.Status
	}{
		{now: "2025-05-31T23:59:00Z", want: model.StatusConfirmed},
		{now: "2025-06-01T00:00:00Z", want: model.StatusOngoing},
		{now: "2025-06-04T18:00:00Z", want: model.StatusOngoing},
		{now: "2025-06-05T00:00:00Z", want: model.StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.now, func(t *testing.T) {
			m, r := confirmed(t, tt.now)
			assert.Equal(t, tt.want, m.EffectiveStatus(r))
			assert.Equal(t, model.StatusConfirmed, r.Status, "stored status untouched")
		})
	}
}

func TestMachine_CancelConfirmed(t *testing.T) {
	m, r := confirmed(t, "2025-05-25T10:00:00Z")
	require.NoError(t, m.Cancel(r))
	assert.Equal(t, model.StatusCancelled, r.Status)
	assert.Equal(t, model.PaymentCaptured, r.Payment.Status)

	m, r = confirmed(t, "2025-06-02T10:00:00Z")
	assert.ErrorIs(t, m.Cancel(r), ErrInvalidTransition)

	m, r = confirmed(t, "2025-07-01T10:00:00Z")
	err := m.Cancel(r)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, model.StatusConfirmed, r.Status)
}

func TestMachine_StartAndComplete(t *testing.T) {
	m, r := confirmed(t, "2025-05-25T10:00:00Z")
	assert.ErrorIs(t, m.Start(r), ErrInvalidTransition, "cannot pick up before the start day")
	assert.ErrorIs(t, m.Complete(r), ErrInvalidTransition)

	m, r = confirmed(t, "2025-06-01T09:00:00Z")
	require.NoError(t, m.Start(r))
	assert.Equal(t, model.StatusOngoing, r.Status)
	assert.ErrorIs(t, m.Start(r), ErrInvalidTransition)
	assert.ErrorIs(t, m.Cancel(r), ErrInvalidTransition)
	require.NoError(t, m.Complete(r))
	assert.Equal(t, model.StatusCompleted, r.Status)
	assert.ErrorIs(t, m.Complete(r), ErrInvalidTransition)
}

func TestMachine_Apply(t *testing.T) {
	m, r := confirmed(t, "2025-06-02T09:00:00Z")

	assert.ErrorIs(t, m.Apply(r, model.StatusConfirmed), ErrInvalidTransition)
	assert.ErrorIs(t, m.Apply(r, model.StatusPending), ErrInvalidTransition)
	require.NoError(t, m.Apply(r, model.StatusOngoing))
	require.NoError(t, m.Apply(r, model.StatusCompleted))
	assert.True(t, r.Status.Terminal())
}
