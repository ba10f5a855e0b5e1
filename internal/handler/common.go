package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vala/car-rental-reservation/internal/booking"
	"github.com/vala/car-rental-reservation/internal/inflight"
	"github.com/vala/car-rental-reservation/internal/logger"
	"github.com/vala/car-rental-reservation/internal/model"
	"github.com/vala/car-rental-reservation/internal/payment"
)

// writeError renders err as the single user-facing message of a failed
// workflow step.  Validation errors carry the offending field.
func writeError(c echo.Context, err error) error {
	var (
		ve *booking.ValidationError
		ie *payment.InitiationError
		ce *payment.CaptureError
	)
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Message, "field": ve.Field})
	case errors.Is(err, booking.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation or vehicle not found"})
	case errors.Is(err, inflight.ErrInFlight):
		return c.JSON(http.StatusConflict, echo.Map{"error": "request already in progress, please wait"})
	case errors.Is(err, booking.ErrVehicleUnavailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "no vehicle available for this period"})
	case errors.Is(err, booking.ErrPaymentMismatch):
		return c.JSON(http.StatusConflict, echo.Map{"error": "payment does not match this reservation"})
	case errors.Is(err, booking.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "operation not allowed in the reservation's current state"})
	case errors.As(err, &ie):
		if ie.Retryable {
			logger.FromContext(c.Request().Context()).Error("payment initiation failed", zap.Error(err))
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment service unavailable, please try again"})
		}
		msg := ie.Message
		if msg == "" {
			msg = "payment was refused by the provider"
		}
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": msg})
	case errors.As(err, &ce):
		return c.JSON(captureStatus(ce.Kind), echo.Map{"error": captureMessage(ce.Kind), "code": ce.Kind.String()})
	}
	logger.FromContext(c.Request().Context()).Error("request failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func captureStatus(k payment.CaptureKind) int {
	switch k {
	case payment.CaptureExpired:
		return http.StatusGone
	case payment.CaptureAlreadyProcessed, payment.CaptureSuperseded:
		return http.StatusConflict
	case payment.CaptureUnavailable:
		return http.StatusBadGateway
	}
	return http.StatusUnprocessableEntity
}

func captureMessage(k payment.CaptureKind) string {
	switch k {
	case payment.CaptureExpired:
		return "payment session expired, please start the payment again"
	case payment.CaptureAlreadyProcessed:
		return "this payment has already been processed"
	case payment.CaptureUnavailable:
		return "payment service unavailable, please try again"
	case payment.CaptureSuperseded:
		return "reservation was cancelled while the payment was processed, the amount will be refunded"
	}
	return "invalid payment token"
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &booking.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

func queryID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.QueryParam(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &booking.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

func queryDate(c echo.Context, name string) (model.Date, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return model.Date{}, &booking.ValidationError{Field: name, Message: "is required"}
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return model.Date{}, &booking.ValidationError{Field: name, Message: "must be a date (YYYY-MM-DD)"}
	}
	return d, nil
}

type vehicleResponse struct {
	ID        uint64          `json:"id"`
	Nom       string          `json:"nom"`
	Marque    string          `json:"marque"`
	Categorie string          `json:"categorie,omitempty"`
	Prix      decimal.Decimal `json:"prix"`
	ImageURL  string          `json:"imageUrl,omitempty"`
}

type paymentResponse struct {
	TransactionID string              `json:"transactionId"`
	Method        model.PaymentMethod `json:"paymentMethod"`
	Status        model.PaymentState  `json:"paymentStatus"`
	InitiatedAt   time.Time           `json:"initiatedAt"`
	CaptureID     string              `json:"captureId,omitempty"`
}

// reservationResponse is the wire shape of a reservation.  Statut is the
// stored status; StatutAffiche is what the customer sees after date-based
// reclassification of CONFIRMEE.
type reservationResponse struct {
	ID               uint64           `json:"id"`
	ProduitID        uint64           `json:"produitId"`
	Produit          *vehicleResponse `json:"produit,omitempty"`
	DateDepart       model.Date       `json:"dateDepart"`
	DateRetour       model.Date       `json:"dateRetour"`
	Nom              string           `json:"nom"`
	Prenom           string           `json:"prenom"`
	Telephone        string           `json:"telephone"`
	Email            string           `json:"email"`
	LieuPrise        model.Location   `json:"lieuPrise"`
	LieuPriseLabel   string           `json:"lieuPriseLabel"`
	LieuRetour       model.Location   `json:"lieuRetour"`
	LieuRetourLabel  string           `json:"lieuRetourLabel"`
	NombreJours      int              `json:"nombreJours"`
	PrixTotal        decimal.Decimal  `json:"prixTotal"`
	Statut           model.Status     `json:"statut"`
	StatutAffiche    model.Status     `json:"statutAffiche"`
	StatutLabel      string           `json:"statutLabel"`
	DateCreation     time.Time        `json:"dateCreation"`
	DateModification time.Time        `json:"dateModification"`
	Paiement         *paymentResponse `json:"paiement,omitempty"`
}

func toReservationResponse(r *model.Reservation, now time.Time) reservationResponse {
	shown := booking.EffectiveStatus(r, now)
	out := reservationResponse{
		ID:               r.ID,
		ProduitID:        r.VehicleID,
		DateDepart:       r.Start,
		DateRetour:       r.End,
		Nom:              r.Contact.LastName,
		Prenom:           r.Contact.FirstName,
		Telephone:        r.Contact.Phone,
		Email:            r.Contact.Email,
		LieuPrise:        r.Pickup,
		LieuPriseLabel:   r.Pickup.Label(),
		LieuRetour:       r.Return,
		LieuRetourLabel:  r.Return.Label(),
		NombreJours:      r.DayCount,
		PrixTotal:        r.TotalPrice,
		Statut:           r.Status,
		StatutAffiche:    shown,
		StatutLabel:      shown.Label(),
		DateCreation:     r.CreatedAt,
		DateModification: r.UpdatedAt,
	}
	if v := r.Vehicle; v != nil {
		out.Produit = &vehicleResponse{ID: v.ID, Nom: v.Name, Marque: v.Brand, Categorie: v.Category, Prix: v.DailyRate, ImageURL: v.ImageURL}
	}
	if p := r.Payment; p != nil {
		out.Paiement = &paymentResponse{TransactionID: p.TransactionID, Method: p.Method, Status: p.Status, InitiatedAt: p.InitiatedAt, CaptureID: p.CaptureID}
	}
	return out
}

func toReservationList(rs []model.Reservation, now time.Time) []reservationResponse {
	out := make([]reservationResponse, 0, len(rs))
	for i := range rs {
		out = append(out, toReservationResponse(&rs[i], now))
	}
	return out
}
