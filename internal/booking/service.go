package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vala/car-rental-reservation/internal/inflight"
	"github.com/vala/car-rental-reservation/internal/model"
	"github.com/vala/car-rental-reservation/internal/pricing"
)

// Filter narrows the back-office listing.  Zero values mean "any".
type Filter struct {
	Email  string
	Status model.Status
	Page   int
	Size   int
}

// Page is one page of reservations sorted newest first.
type Page struct {
	Items         []model.Reservation
	Page          int
	Size          int
	TotalElements int
	TotalPages    int
}

// Store persists reservations.  Implementations map missing rows to
// ErrNotFound and failed conditional writes to ErrStaleState.
type Store interface {
	GetVehicle(ctx context.Context, id uint64) (*model.Vehicle, error)
	// InsertIfAvailable persists r and sets its ID when fewer than the
	// vehicle's quantity of active reservations overlap r's range.  The
	// check and insert run atomically; ErrVehicleUnavailable otherwise.
	InsertIfAvailable(ctx context.Context, r *model.Reservation) error
	CountOverlapping(ctx context.Context, vehicleID uint64, start, end model.Date) (int, error)
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	// Save writes r's status, modification time and payment metadata if
	// the stored row still matches expect.
	Save(ctx context.Context, r *model.Reservation, expect Snapshot) error
	List(ctx context.Context, f Filter) ([]model.Reservation, int, error)
	ListByEmail(ctx context.Context, email string) ([]model.Reservation, error)
	// ListStalePending returns uncaptured EN_ATTENTE reservations created
	// before createdBefore, leaving out intents initiated at or after
	// initiatedBefore.
	ListStalePending(ctx context.Context, createdBefore, initiatedBefore time.Time) ([]model.Reservation, error)
}

// Snapshot is the stored state a conditional write expects to find.
type Snapshot struct {
	Status        model.Status
	Payment       model.PaymentState
	TransactionID string
}

// SnapshotOf captures r's current state before a transition is applied.
func SnapshotOf(r *model.Reservation) Snapshot {
	s := Snapshot{Status: r.Status, Payment: r.PaymentStatus()}
	if r.Payment != nil {
		s.TransactionID = r.Payment.TransactionID
	}
	return s
}

// Availability summarises how many units of a vehicle remain over a range.
type Availability struct {
	VehicleID uint64     `json:"produitId"`
	Start     model.Date `json:"dateDepart"`
	End       model.Date `json:"dateRetour"`
	Total     int        `json:"quantiteTotal"`
	Booked    int        `json:"quantiteReservee"`
	Remaining int        `json:"vehiculesDisponibles"`
	Available bool       `json:"disponible"`
}

// Service runs lifecycle transitions against the store.
type Service struct {
	store   Store
	machine *Machine
	guard   inflight.Guard
	log     *zap.Logger
}

// NewService wires a Service.  guard and log may be nil.
func NewService(store Store, machine *Machine, guard inflight.Guard, log *zap.Logger) *Service {
	if guard == nil {
		guard = inflight.NewLocalGuard()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, machine: machine, guard: guard, log: log}
}

// Machine exposes the transition rules, e.g. for effective status.
func (s *Service) Machine() *Machine { return s.machine }

func (s *Service) vehicle(ctx context.Context, id uint64) (*model.Vehicle, error) {
	if id == 0 {
		return nil, invalid("produitId", "vehicle id is required")
	}
	v, err := s.store.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Quote prices a range for a vehicle without persisting anything.
func (s *Service) Quote(ctx context.Context, vehicleID uint64, start, end model.Date) (pricing.Quote, error) {
	v, err := s.vehicle(ctx, vehicleID)
	if err != nil {
		return pricing.Quote{}, err
	}
	if !pricing.IsDateSelectable(start.Time, s.machine.Now()) {
		return pricing.Quote{}, invalid("dateDepart", "start date cannot be in the past")
	}
	q, err := pricing.NewQuote(start, end, v.DailyRate)
	if err != nil {
		return pricing.Quote{}, invalid("dateRetour", "end date must be after start date")
	}
	return q, nil
}

// Availability counts active reservations overlapping [start, end).
func (s *Service) Availability(ctx context.Context, vehicleID uint64, start, end model.Date) (Availability, error) {
	if !end.After(start.Time) {
		return Availability{}, invalid("dateRetour", "end date must be after start date")
	}
	v, err := s.vehicle(ctx, vehicleID)
	if err != nil {
		return Availability{}, err
	}
	booked, err := s.store.CountOverlapping(ctx, v.ID, start, end)
	if err != nil {
		return Availability{}, err
	}
	remaining := v.Quantity - booked
	if remaining < 0 {
		remaining = 0
	}
	return Availability{
		VehicleID: v.ID,
		Start:     start,
		End:       end,
		Total:     v.Quantity,
		Booked:    booked,
		Remaining: remaining,
		Available: remaining > 0,
	}, nil
}

// Create validates d, prices it and persists a new EN_ATTENTE
// reservation if the vehicle still has a free unit over the range.
// Identical submissions racing each other are rejected with
// inflight.ErrInFlight.
func (s *Service) Create(ctx context.Context, d Details) (*model.Reservation, error) {
	v, err := s.vehicle(ctx, d.VehicleID)
	if err != nil {
		return nil, err
	}
	r, err := s.machine.Create(d, *v)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("create:%s:%d:%s:%s", r.Contact.Email, r.VehicleID, r.Start, r.End)
	release, err := s.guard.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.store.InsertIfAvailable(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("reservation created",
		zap.Uint64("reservation_id", r.ID),
		zap.Uint64("vehicle_id", r.VehicleID),
		zap.String("total", r.TotalPrice.StringFixed(2)),
	)
	return r, nil
}

// Get loads one reservation.
func (s *Service) Get(ctx context.Context, id uint64) (*model.Reservation, error) {
	return s.store.GetByID(ctx, id)
}

// ListByEmail returns a customer's reservations, newest first.
func (s *Service) ListByEmail(ctx context.Context, email string) ([]model.Reservation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, invalid("email", "is required")
	}
	return s.store.ListByEmail(ctx, email)
}

// List returns one page of the back-office listing.
func (s *Service) List(ctx context.Context, f Filter) (Page, error) {
	if f.Page < 0 {
		f.Page = 0
	}
	if f.Size <= 0 || f.Size > 100 {
		f.Size = 10
	}
	if f.Status != "" {
		if _, ok := model.ParseStatus(string(f.Status)); !ok {
			return Page{}, invalid("statut", "unknown status")
		}
	}
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return Page{}, err
	}
	pages := (total + f.Size - 1) / f.Size
	return Page{Items: items, Page: f.Page, Size: f.Size, TotalElements: total, TotalPages: pages}, nil
}

// Cancel cancels a reservation on the customer's request.
func (s *Service) Cancel(ctx context.Context, id uint64) (*model.Reservation, error) {
	return s.transition(ctx, id, s.machine.Cancel)
}

// SetStatus applies a back-office status change.
func (s *Service) SetStatus(ctx context.Context, id uint64, target model.Status) (*model.Reservation, error) {
	if _, ok := model.ParseStatus(string(target)); !ok {
		return nil, invalid("statut", "unknown status")
	}
	return s.transition(ctx, id, func(r *model.Reservation) error {
		return s.machine.Apply(r, target)
	})
}

func (s *Service) transition(ctx context.Context, id uint64, apply func(*model.Reservation) error) (*model.Reservation, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	before := SnapshotOf(r)
	if err := apply(r); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, r, before); err != nil {
		if errors.Is(err, ErrStaleState) {
			return nil, fmt.Errorf("%w: reservation %d changed concurrently", ErrInvalidTransition, id)
		}
		return nil, err
	}
	s.log.Info("reservation status changed",
		zap.Uint64("reservation_id", r.ID),
		zap.String("from", string(before.Status)),
		zap.String("to", string(r.Status)),
	)
	return r, nil
}

// ExpirePending cancels EN_ATTENTE reservations created before
// createdBefore whose payment never settled.  A payment intent initiated at
// or after initiatedBefore is still capturable and keeps its reservation.
// It returns how many were cancelled.
func (s *Service) ExpirePending(ctx context.Context, createdBefore, initiatedBefore time.Time) (int, error) {
	stale, err := s.store.ListStalePending(ctx, createdBefore, initiatedBefore)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range stale {
		r := &stale[i]
		if p := r.Payment; p != nil && p.Status == model.PaymentInitiated && !p.InitiatedAt.Before(initiatedBefore) {
			continue
		}
		before := SnapshotOf(r)
		if err := s.machine.Cancel(r); err != nil {
			continue
		}
		if err := s.store.Save(ctx, r, before); err != nil {
			if errors.Is(err, ErrStaleState) {
				continue
			}
			return n, err
		}
		n++
		s.log.Info("stale pending reservation cancelled", zap.Uint64("reservation_id", r.ID))
	}
	return n, nil
}
