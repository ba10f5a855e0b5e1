// Package pricing derives rental day counts and prices from a date range
// and a daily rate.  Every function is pure; the same code serves the live
// quote shown while a customer picks dates and the authoritative
// recomputation performed before a price is persisted or charged.
package pricing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vala/car-rental-reservation/internal/model"
)

const day = 24 * time.Hour

var (
	// ErrInvalidRange is returned when the end of a range is not after its start.
	ErrInvalidRange = errors.New("pricing: end date must be after start date")
	// ErrInvalidRate is returned for a negative daily rate or a non-positive day count.
	ErrInvalidRate = errors.New("pricing: invalid rate or day count")
)

// DayCount returns the number of billed days between start and end,
// rounded up to a whole day.
func DayCount(start, end time.Time) (int, error) {
	if !end.After(start) {
		return 0, ErrInvalidRange
	}
	d := end.Sub(start)
	n := int(d / day)
	if d%day != 0 {
		n++
	}
	return n, nil
}

// TotalPrice returns dailyRate × dayCount.  Decimal arithmetic keeps
// currency values exact.
func TotalPrice(dailyRate decimal.Decimal, dayCount int) (decimal.Decimal, error) {
	if dailyRate.IsNegative() || dayCount <= 0 {
		return decimal.Zero, ErrInvalidRate
	}
	return dailyRate.Mul(decimal.NewFromInt(int64(dayCount))), nil
}

// IsDateSelectable reports whether date may be booked given today's date.
// Only the calendar day is compared; any date before today is rejected.
func IsDateSelectable(date, today time.Time) bool {
	return !model.NewDate(date).Before(model.NewDate(today).Time)
}

// Quote is the price breakdown for a range.
type Quote struct {
	DayCount  int             `json:"nombreJours"`
	DailyRate decimal.Decimal `json:"prixJournalier"`
	Total     decimal.Decimal `json:"prixTotal"`
}

// NewQuote computes the day count and total for [start, end) at dailyRate.
func NewQuote(start, end model.Date, dailyRate decimal.Decimal) (Quote, error) {
	n, err := DayCount(start.Time, end.Time)
	if err != nil {
		return Quote{}, err
	}
	total, err := TotalPrice(dailyRate, n)
	if err != nil {
		return Quote{}, err
	}
	return Quote{DayCount: n, DailyRate: dailyRate, Total: total}, nil
}
