package booking

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vala/car-rental-reservation/internal/model"
)

// memStore is an in-memory Store honoring the same conditional-write and
// capacity rules as the MySQL repository.
type memStore struct {
	mu       sync.Mutex
	vehicles map[uint64]model.Vehicle
	rows     map[uint64]model.Reservation
	nextID   uint64
	inserts  int
}

func newMemStore(vs ...model.Vehicle) *memStore {
	s := &memStore{vehicles: map[uint64]model.Vehicle{}, rows: map[uint64]model.Reservation{}}
	for _, v := range vs {
		s.vehicles[v.ID] = v
	}
	return s
}

func active(st model.Status) bool {
	return st == model.StatusPending || st == model.StatusConfirmed || st == model.StatusOngoing
}

func (s *memStore) GetVehicle(_ context.Context, id uint64) (*model.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (s *memStore) countLocked(vehicleID uint64, start, end model.Date) int {
	n := 0
	for _, r := range s.rows {
		if r.VehicleID == vehicleID && active(r.Status) && r.Start.Before(end.Time) && r.End.After(start.Time) {
			n++
		}
	}
	return n
}

func (s *memStore) InsertIfAvailable(_ context.Context, r *model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[r.VehicleID]
	if !ok {
		return ErrNotFound
	}
	if s.countLocked(r.VehicleID, r.Start, r.End) >= v.Quantity {
		return ErrVehicleUnavailable
	}
	s.nextID++
	r.ID = s.nextID
	s.rows[r.ID] = clone(*r)
	s.inserts++
	return nil
}

func (s *memStore) CountOverlapping(_ context.Context, vehicleID uint64, start, end model.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(vehicleID, start, end), nil
}

func (s *memStore) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(r)
	return &c, nil
}

func (s *memStore) Save(_ context.Context, r *model.Reservation, expect Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[r.ID]
	if !ok {
		return ErrNotFound
	}
	if SnapshotOf(&cur) != expect {
		return ErrStaleState
	}
	s.rows[r.ID] = clone(*r)
	return nil
}

func (s *memStore) List(_ context.Context, f Filter) ([]model.Reservation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.Reservation
	for _, r := range s.rows {
		if f.Email != "" && r.Contact.Email != f.Email {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		all = append(all, clone(r))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	lo := f.Page * f.Size
	if lo > len(all) {
		lo = len(all)
	}
	hi := lo + f.Size
	if hi > len(all) {
		hi = len(all)
	}
	return all[lo:hi], len(all), nil
}

func (s *memStore) ListByEmail(ctx context.Context, email string) ([]model.Reservation, error) {
	items, _, err := s.List(ctx, Filter{Email: email, Size: 1 << 20})
	return items, err
}

func (s *memStore) ListStalePending(_ context.Context, createdBefore, initiatedBefore time.Time) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, r := range s.rows {
		if r.Status != model.StatusPending || !r.CreatedAt.Before(createdBefore) || r.PaymentStatus() == model.PaymentCaptured {
			continue
		}
		if r.PaymentStatus() == model.PaymentInitiated && !r.Payment.InitiatedAt.Before(initiatedBefore) {
			continue
		}
		out = append(out, clone(r))
	}
	return out, nil
}

func clone(r model.Reservation) model.Reservation {
	if r.Payment != nil {
		p := *r.Payment
		r.Payment = &p
	}
	return r
}

func newTestService(now string, vs ...model.Vehicle) (*Service, *memStore) {
	store := newMemStore(vs...)
	return NewService(store, NewMachine(fixedClock(now)), nil, nil), store
}

func TestService_CreateThenCancel(t *testing.T) {
	svc, store := newTestService("2025-05-20T10:00:00Z", testVehicle())
	ctx := context.Background()

	r, err := svc.Create(ctx, validDetails())
	require.NoError(t, err)
	require.NotZero(t, r.ID)

	got, err := svc.Cancel(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	stored, _ := store.GetByID(ctx, r.ID)
	assert.Equal(t, model.StatusCancelled, stored.Status)

	_, err = svc.Cancel(ctx, r.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_CreateInvalidPersistsNothing(t *testing.T) {
	svc, store := newTestService("2025-05-20T10:00:00Z", testVehicle())
	d := validDetails()
	d.End = model.MustDate("2025-05-25")

	_, err := svc.Create(context.Background(), d)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, store.inserts)
}

func TestService_CreateUnknownVehicle(t *testing.T) {
	svc, _ := newTestService("2025-05-20T10:00:00Z")
	_, err := svc.Create(context.Background(), validDetails())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_CapacityIsCountBased(t *testing.T) {
	svc, _ := newTestService("2025-05-20T10:00:00Z", testVehicle())
	ctx := context.Background()

	d := validDetails()
	first, err := svc.Create(ctx, d)
	require.NoError(t, err)
	d.Contact.Email = "other@example.com"
	_, err = svc.Create(ctx, d)
	require.NoError(t, err)

	d.Contact.Email = "third@example.com"
	_, err = svc.Create(ctx, d)
	assert.ErrorIs(t, err, ErrVehicleUnavailable)

	// Adjacent ranges do not overlap.
	d.Start, d.End = model.MustDate("2025-06-04"), model.MustDate("2025-06-06")
	_, err = svc.Create(ctx, d)
	require.NoError(t, err)

	// Cancelling frees a unit.
	_, err = svc.Cancel(ctx, first.ID)
	require.NoError(t, err)
	d.Start, d.End = model.MustDate("2025-06-02"), model.MustDate("2025-06-03")
	_, err = svc.Create(ctx, d)
	require.NoError(t, err)
}

func TestService_Availability(t *testing.T) {
	svc, _ := newTestService("2025-05-20T10:00:00Z", testVehicle())
	ctx := context.Background()
	_, err := svc.Create(ctx, validDetails())
	require.NoError(t, err)

	a, err := svc.Availability(ctx, 7, model.MustDate("2025-06-02"), model.MustDate("2025-06-10"))
	require.NoError(t, err)
	assert.Equal(t, 2, a.Total)
	assert.Equal(t, 1, a.Booked)
	assert.Equal(t, 1, a.Remaining)
	assert.True(t, a.Available)

	_, err = svc.Availability(ctx, 7, model.MustDate("2025-06-10"), model.MustDate("2025-06-02"))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestService_Quote(t *testing.T) {
	svc, _ := newTestService("2025-05-20T10:00:00Z", testVehicle())
	q, err := svc.Quote(context.Background(), 7, model.MustDate("2025-06-01"), model.MustDate("2025-06-04"))
	require.NoError(t, err)
	assert.Equal(t, 3, q.DayCount)
	assert.Equal(t, "255", q.Total.String())
}

func TestService_SetStatus(t *testing.T) {
	svc, store := newTestService("2025-05-20T10:00:00Z", testVehicle())
	ctx := context.Background()
	r, err := svc.Create(ctx, validDetails())
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, r.ID, model.StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidTransition, "confirmation only through payment")

	_, err = svc.SetStatus(ctx, r.ID, "BOGUS")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.SetStatus(ctx, 999, model.StatusCancelled)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.SetStatus(ctx, r.ID, model.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	stored, _ := store.GetByID(ctx, r.ID)
	assert.Equal(t, model.StatusCancelled, stored.Status)
}

func TestService_ListPaging(t *testing.T) {
	svc, _ := newTestService("2025-05-20T10:00:00Z", model.Vehicle{ID: 7, DailyRate: testVehicle().DailyRate, Quantity: 10})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d := validDetails()
		d.Start = model.MustDate("2025-06-01").AddDays(i)
		d.End = d.Start.AddDays(1)
		_, err := svc.Create(ctx, d)
		require.NoError(t, err)
	}

	p, err := svc.List(ctx, Filter{Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, p.TotalElements)
	assert.Equal(t, 3, p.TotalPages)
	require.Len(t, p.Items, 2)
	assert.Equal(t, uint64(3), p.Items[0].ID)

	mine, err := svc.ListByEmail(ctx, "SARA@example.com")
	require.NoError(t, err)
	assert.Len(t, mine, 5)
}

func TestService_ExpirePending(t *testing.T) {
	svc, store := newTestService("2025-05-20T10:00:00Z", testVehicle())
	ctx := context.Background()
	r, err := svc.Create(ctx, validDetails())
	require.NoError(t, err)

	nineAM := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
	elevenAM := time.Date(2025, 5, 20, 11, 0, 0, 0, time.UTC)

	n, err := svc.ExpirePending(ctx, nineAM, nineAM)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "fresh reservation kept")

	n, err = svc.ExpirePending(ctx, elevenAM, nineAM)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	stored, _ := store.GetByID(ctx, r.ID)
	assert.Equal(t, model.StatusCancelled, stored.Status)
}

func TestService_ExpirePendingKeepsLiveIntent(t *testing.T) {
	svc, store := newTestService("2025-05-20T10:00:00Z", testVehicle())
	ctx := context.Background()
	r, err := svc.Create(ctx, validDetails())
	require.NoError(t, err)

	before := SnapshotOf(r)
	_, err = svc.Machine().BeginPayment(r, model.PaymentMethodPayPal, "ORDER-LIVE")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, r, before))

	createdCutoff := time.Date(2025, 5, 20, 11, 0, 0, 0, time.UTC)

	n, err := svc.ExpirePending(ctx, createdCutoff, time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "intent initiated after the intent cutoff is kept")
	stored, _ := store.GetByID(ctx, r.ID)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Equal(t, model.PaymentInitiated, stored.PaymentStatus())

	n, err = svc.ExpirePending(ctx, createdCutoff, createdCutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "outlived intent is swept")
	stored, _ = store.GetByID(ctx, r.ID)
	assert.Equal(t, model.StatusCancelled, stored.Status)
	assert.Equal(t, model.PaymentCancelled, stored.PaymentStatus())
}
