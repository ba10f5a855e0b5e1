package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vala/car-rental-reservation/internal/model"
)

func TestDayCount(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		start   time.Time
		end     time.Time
		want    int
		wantErr error
	}{
		{name: "three days", start: base, end: base.AddDate(0, 0, 3), want: 3},
		{name: "single day", start: base, end: base.AddDate(0, 0, 1), want: 1},
		{name: "partial day rounds up", start: base, end: base.Add(25 * time.Hour), want: 2},
		{name: "under a day rounds up", start: base, end: base.Add(time.Hour), want: 1},
		{name: "crosses month", start: time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC), end: time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC), want: 3},
		{name: "same instant", start: base, end: base, wantErr: ErrInvalidRange},
		{name: "end before start", start: base, end: base.AddDate(0, 0, -2), wantErr: ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DayCount(tt.start, tt.end)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDayCount_AlwaysPositiveForValidRanges(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for days := 1; days <= 400; days++ {
		n, err := DayCount(start, start.AddDate(0, 0, days))
		require.NoError(t, err)
		assert.Equal(t, days, n)
	}
}

func TestTotalPrice(t *testing.T) {
	tests := []struct {
		name    string
		rate    string
		days    int
		want    string
		wantErr error
	}{
		{name: "whole rate", rate: "85", days: 3, want: "255"},
		{name: "cents stay exact", rate: "0.10", days: 3, want: "0.3"},
		{name: "typical currency", rate: "49.99", days: 7, want: "349.93"},
		{name: "free vehicle", rate: "0", days: 2, want: "0"},
		{name: "negative rate", rate: "-1", days: 2, wantErr: ErrInvalidRate},
		{name: "zero days", rate: "85", days: 0, wantErr: ErrInvalidRate},
		{name: "negative days", rate: "85", days: -1, wantErr: ErrInvalidRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TotalPrice(decimal.RequireFromString(tt.rate), tt.days)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestIsDateSelectable(t *testing.T) {
	today := time.Date(2025, 6, 10, 15, 30, 0, 0, time.UTC)

	assert.False(t, IsDateSelectable(time.Date(2025, 6, 9, 23, 59, 0, 0, time.UTC), today))
	assert.True(t, IsDateSelectable(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), today), "today is selectable")
	assert.True(t, IsDateSelectable(time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC), today))
}

func TestNewQuote(t *testing.T) {
	q, err := NewQuote(model.MustDate("2025-06-01"), model.MustDate("2025-06-04"), decimal.NewFromInt(85))
	require.NoError(t, err)
	assert.Equal(t, 3, q.DayCount)
	assert.True(t, decimal.NewFromInt(255).Equal(q.Total))

	_, err = NewQuote(model.MustDate("2025-06-04"), model.MustDate("2025-06-01"), decimal.NewFromInt(85))
	assert.ErrorIs(t, err, ErrInvalidRange)
}
