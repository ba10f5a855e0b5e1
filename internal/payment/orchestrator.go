package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vala/car-rental-reservation/internal/booking"
	"github.com/vala/car-rental-reservation/internal/inflight"
	"github.com/vala/car-rental-reservation/internal/model"
	"github.com/vala/car-rental-reservation/internal/pricing"
	"github.com/vala/car-rental-reservation/internal/queue"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	GetVehicle(ctx context.Context, id uint64) (*model.Vehicle, error)
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*model.Reservation, error)
	Save(ctx context.Context, r *model.Reservation, expect booking.Snapshot) error
}

// Publisher announces confirmed reservations.
type Publisher interface {
	PublishReservationConfirmed(ctx context.Context, ev queue.ReservationConfirmedEvent) error
}

// Options tune the orchestrator.
type Options struct {
	Currency        string
	FrontendBaseURL string
	// IntentTTL bounds how long an initiated payment can still be captured.
	IntentTTL time.Duration
}

// InitiateRequest starts a payment.  Amount and Currency are optional
// client echoes; when present they must match the authoritative values.
type InitiateRequest struct {
	ReservationID uint64
	Amount        *decimal.Decimal
	Currency      string
}

// Initiation is the outcome of Initiate.
type Initiation struct {
	ReservationID uint64              `json:"reservationId"`
	TransactionID string              `json:"transactionId"`
	ApprovalURL   string              `json:"approvalUrl,omitempty"`
	Method        model.PaymentMethod `json:"paymentMethod"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
}

// CaptureRequest identifies the order to capture.  ReservationID is the
// id carried through the provider redirect; zero skips the cross check.
type CaptureRequest struct {
	Token         string
	ReservationID uint64
}

// Orchestrator drives a pending reservation through the external payment
// step.  The provider is called once per operation and never retried;
// every state change goes through the booking Machine and a conditional
// store write.
type Orchestrator struct {
	store     Store
	provider  Provider
	machine   *booking.Machine
	guard     inflight.Guard
	publisher Publisher
	log       *zap.Logger
	opts      Options
}

// NewOrchestrator wires an Orchestrator.  guard, publisher and log may be nil.
func NewOrchestrator(store Store, provider Provider, machine *booking.Machine, guard inflight.Guard, publisher Publisher, log *zap.Logger, opts Options) *Orchestrator {
	if guard == nil {
		guard = inflight.NewLocalGuard()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Currency == "" {
		opts.Currency = "EUR"
	}
	if opts.IntentTTL <= 0 {
		opts.IntentTTL = 3 * time.Hour
	}
	opts.FrontendBaseURL = strings.TrimRight(opts.FrontendBaseURL, "/")
	return &Orchestrator{
		store:     store,
		provider:  provider,
		machine:   machine,
		guard:     guard,
		publisher: publisher,
		log:       log,
		opts:      opts,
	}
}

func (o *Orchestrator) redirectURL(path string, reservationID uint64) string {
	q := url.Values{"reservationId": {strconv.FormatUint(reservationID, 10)}}
	return o.opts.FrontendBaseURL + path + "?" + q.Encode()
}

// Initiate recomputes the amount due for a pending reservation, creates
// a provider order and records it as the reservation's payment intent.
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	if req.ReservationID == 0 {
		return nil, &booking.ValidationError{Field: "reservationId", Message: "is required"}
	}
	release, err := o.guard.Acquire(ctx, "initiate:"+strconv.FormatUint(req.ReservationID, 10))
	if err != nil {
		return nil, err
	}
	defer release()

	log := o.log.With(zap.Uint64("reservation_id", req.ReservationID))

	r, err := o.store.GetByID(ctx, req.ReservationID)
	if err != nil {
		return nil, err
	}
	if err := o.machine.CheckPayable(r); err != nil {
		return nil, err
	}

	vehicle := r.Vehicle
	if vehicle == nil {
		if vehicle, err = o.store.GetVehicle(ctx, r.VehicleID); err != nil {
			return nil, err
		}
	}
	quote, err := pricing.NewQuote(r.Start, r.End, vehicle.DailyRate)
	if err != nil {
		return nil, &booking.ValidationError{Field: "reservationId", Message: "reservation cannot be priced"}
	}
	if req.Amount != nil && !req.Amount.Equal(quote.Total) {
		log.Warn("client amount mismatch", zap.String("client", req.Amount.String()), zap.String("expected", quote.Total.StringFixed(2)))
		return nil, &booking.ValidationError{Field: "amount", Message: "amount does not match the reservation total"}
	}
	if req.Currency != "" && !strings.EqualFold(req.Currency, o.opts.Currency) {
		return nil, &booking.ValidationError{Field: "currency", Message: "unsupported currency"}
	}
	if !quote.Total.Equal(r.TotalPrice) {
		log.Warn("vehicle rate changed since booking", zap.String("stored", r.TotalPrice.StringFixed(2)), zap.String("charged", quote.Total.StringFixed(2)))
	}

	order, err := o.provider.CreateOrder(ctx, OrderRequest{
		ReservationID: r.ID,
		Amount:        quote.Total,
		Currency:      o.opts.Currency,
		Description:   fmt.Sprintf("Reservation #%d", r.ID),
		ReturnURL:     o.redirectURL("/payment-success", r.ID),
		CancelURL:     o.redirectURL("/payment-cancel", r.ID),
	})
	if err != nil {
		log.Error("payment order creation failed", zap.Error(err))
		return nil, newInitiationError(err)
	}

	before := booking.SnapshotOf(r)
	if _, err := o.machine.BeginPayment(r, o.provider.Method(), order.TransactionID); err != nil {
		return nil, err
	}
	if err := o.store.Save(ctx, r, before); err != nil {
		if errors.Is(err, booking.ErrStaleState) {
			return nil, fmt.Errorf("%w: reservation %d changed during payment initiation", booking.ErrInvalidTransition, r.ID)
		}
		return nil, err
	}
	log.Info("payment initiated", zap.String("transaction_id", order.TransactionID), zap.String("method", string(o.provider.Method())))

	return &Initiation{
		ReservationID: r.ID,
		TransactionID: order.TransactionID,
		ApprovalURL:   order.ApprovalURL,
		Method:        o.provider.Method(),
		Amount:        quote.Total,
		Currency:      o.opts.Currency,
	}, nil
}

// Capture settles the order identified by the provider token and confirms
// its reservation.  The reservation is reconstructed from the token alone,
// so this works after a full page redirect.
func (o *Orchestrator) Capture(ctx context.Context, req CaptureRequest) (*model.Reservation, error) {
	if req.Token == "" {
		return nil, captureError(CaptureInvalid, 0, errors.New("missing payment token"))
	}
	release, err := o.guard.Acquire(ctx, "capture:"+req.Token)
	if err != nil {
		return nil, err
	}
	defer release()

	log := o.log.With(zap.String("transaction_id", req.Token))

	r, err := o.store.GetByTransactionID(ctx, req.Token)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return nil, captureError(CaptureInvalid, 0, err)
		}
		return nil, err
	}
	log = log.With(zap.Uint64("reservation_id", r.ID))
	if req.ReservationID != 0 && req.ReservationID != r.ID {
		log.Warn("capture token does not belong to reservation", zap.Uint64("claimed", req.ReservationID))
		return nil, booking.ErrPaymentMismatch
	}

	switch r.PaymentStatus() {
	case model.PaymentCaptured:
		return r, captureError(CaptureAlreadyProcessed, r.ID, nil)
	case model.PaymentInitiated:
	default:
		return nil, captureError(CaptureInvalid, r.ID, fmt.Errorf("payment intent is %s", r.PaymentStatus()))
	}
	if r.Status != model.StatusPending {
		return nil, captureError(CaptureInvalid, r.ID, fmt.Errorf("reservation is %s", r.Status))
	}

	if o.machine.Now().Sub(r.Payment.InitiatedAt) > o.opts.IntentTTL {
		log.Info("payment intent expired before capture")
		return nil, o.fail(ctx, r, captureError(CaptureExpired, r.ID, nil))
	}

	captureID := ""
	res, err := o.provider.CaptureOrder(ctx, req.Token)
	switch {
	case err == nil:
		captureID = res.CaptureID
	case errors.Is(err, ErrOrderAlreadyCaptured):
		// Settled at the provider but not recorded here, e.g. a crash
		// between capture and save.  Reconcile by confirming.
		log.Warn("order already captured at provider, reconciling")
	case errors.Is(err, ErrOrderExpired):
		return nil, o.fail(ctx, r, captureError(CaptureExpired, r.ID, err))
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrOrderNotApproved), errors.Is(err, ErrProviderRejected):
		log.Warn("provider refused capture", zap.Error(err))
		return nil, captureError(CaptureInvalid, r.ID, err)
	default:
		log.Error("payment capture failed", zap.Error(err))
		return nil, captureError(CaptureUnavailable, r.ID, err)
	}

	before := booking.SnapshotOf(r)
	if err := o.machine.Confirm(r, booking.PaymentResult{TransactionID: req.Token, CaptureID: captureID}); err != nil {
		return nil, err
	}
	if err := o.store.Save(ctx, r, before); err != nil {
		if errors.Is(err, booking.ErrStaleState) {
			return o.lostConfirm(ctx, log, r.ID, req.Token, captureID, err)
		}
		log.Error("captured payment could not be recorded", zap.String("capture_id", captureID), zap.Error(err))
		return nil, err
	}
	log.Info("reservation confirmed", zap.String("capture_id", captureID))

	if o.publisher != nil {
		if err := o.publisher.PublishReservationConfirmed(ctx, queue.NewReservationConfirmedEvent(r)); err != nil {
			log.Warn("confirmation event not published", zap.Error(err))
		}
	}
	return r, nil
}

// lostConfirm resolves a confirmation write that found the row changed
// after the provider had already settled the order.  Only a row holding
// this very capture is reported as already processed.
func (o *Orchestrator) lostConfirm(ctx context.Context, log *zap.Logger, id uint64, token, captureID string, cause error) (*model.Reservation, error) {
	cur, err := o.store.GetByID(ctx, id)
	if err != nil {
		log.Error("captured payment could not be recorded", zap.String("capture_id", captureID), zap.Error(err))
		return nil, err
	}
	if cur.PaymentStatus() == model.PaymentCaptured && cur.Payment.TransactionID == token {
		return cur, captureError(CaptureAlreadyProcessed, id, cause)
	}
	log.Error("payment captured for a reservation that changed meanwhile, refund required",
		zap.String("capture_id", captureID),
		zap.String("status", string(cur.Status)),
		zap.String("payment_status", string(cur.PaymentStatus())),
	)
	return nil, captureError(CaptureSuperseded, id, cause)
}

// fail marks the pending intent FAILED and returns cause.
func (o *Orchestrator) fail(ctx context.Context, r *model.Reservation, cause *CaptureError) error {
	before := booking.SnapshotOf(r)
	if err := o.machine.FailPayment(r); err != nil {
		return cause
	}
	if err := o.store.Save(ctx, r, before); err != nil && !errors.Is(err, booking.ErrStaleState) {
		o.log.Error("failed intent could not be recorded", zap.Uint64("reservation_id", r.ID), zap.Error(err))
	}
	return cause
}

// CancelPayment records that the payer abandoned the provider page.  The
// reservation stays in EN_ATTENTE so payment can be retried; calling it
// again is harmless.
func (o *Orchestrator) CancelPayment(ctx context.Context, reservationID uint64) (*model.Reservation, error) {
	r, err := o.store.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.PaymentStatus() == model.PaymentCancelled {
		return r, nil
	}
	before := booking.SnapshotOf(r)
	if err := o.machine.AbandonPayment(r); err != nil {
		return nil, err
	}
	if err := o.store.Save(ctx, r, before); err != nil {
		if errors.Is(err, booking.ErrStaleState) {
			return nil, fmt.Errorf("%w: reservation %d changed concurrently", booking.ErrInvalidTransition, r.ID)
		}
		return nil, err
	}
	o.log.Info("payment abandoned", zap.Uint64("reservation_id", r.ID))
	return r, nil
}
