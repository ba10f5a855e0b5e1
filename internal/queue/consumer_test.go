package queue

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vala/car-rental-reservation/internal/model"
)

func confirmedReservation() *model.Reservation {
	return &model.Reservation{
		ID:         42,
		VehicleID:  7,
		Start:      model.MustDate("2025-06-01"),
		End:        model.MustDate("2025-06-04"),
		Contact:    model.Contact{LastName: "Alaoui", FirstName: "Sara", Email: "sara@example.com"},
		Pickup:     model.LocationCasablancaCentre,
		Return:     model.LocationAinDiab,
		DayCount:   3,
		TotalPrice: decimal.NewFromInt(255),
		Status:     model.StatusConfirmed,
		UpdatedAt:  time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC),
		Payment:    &model.Payment{TransactionID: "ORDER-1", Method: model.PaymentMethodPayPal, Status: model.PaymentCaptured},
		Vehicle:    &model.Vehicle{ID: 7, Name: "Clio", Brand: "Renault"},
	}
}

func TestNewReservationConfirmedEvent(t *testing.T) {
	ev := NewReservationConfirmedEvent(confirmedReservation())

	assert.Equal(t, uint64(42), ev.ReservationID)
	assert.Equal(t, "Renault Clio", ev.VehicleName)
	assert.Equal(t, "Sara Alaoui", ev.CustomerName)
	assert.Equal(t, "255.00", ev.Total)
	assert.Equal(t, "2025-06-01", ev.StartDate)
	assert.Equal(t, "ORDER-1", ev.TransactionID)
	assert.Equal(t, "2025-05-20T10:00:00Z", ev.ConfirmedAt)
}

func TestBookingLog_Handle(t *testing.T) {
	var buf bytes.Buffer
	bl := &BookingLog{w: &buf}

	body, err := json.Marshal(NewReservationConfirmedEvent(confirmedReservation()))
	require.NoError(t, err)
	require.NoError(t, bl.Handle(body))

	line := buf.String()
	assert.Contains(t, line, "reservation_id=42")
	assert.Contains(t, line, "dates=2025-06-01..2025-06-04")
	assert.Contains(t, line, "total=255.00")
	assert.Equal(t, byte('\n'), line[len(line)-1])

	assert.Error(t, bl.Handle([]byte("not json")))
	assert.Error(t, bl.Handle([]byte(`{}`)))
}
