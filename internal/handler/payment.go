package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/vala/car-rental-reservation/internal/model"
	"github.com/vala/car-rental-reservation/internal/payment"
)

// PaymentHandler exposes the payment orchestrator.  Nothing is kept
// between calls: the return and cancel endpoints rebuild everything from
// the provider token or the reservation id in the query string.
type PaymentHandler struct {
	Orch *payment.Orchestrator
	Now  func() time.Time
}

func NewPaymentHandler(o *payment.Orchestrator, now func() time.Time) *PaymentHandler {
	if now == nil {
		now = time.Now
	}
	return &PaymentHandler{Orch: o, Now: now}
}

type initiateReq struct {
	ReservationID uint64           `json:"reservationId"`
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency"`
}

type reservationIDReq struct {
	ReservationID uint64 `json:"reservationId"`
}

type captureResp struct {
	Success     bool                `json:"success"`
	Status      string              `json:"status"`
	Reservation reservationResponse `json:"reservation"`
}

// Initiate POST /v1/payments/initiate
func (h *PaymentHandler) Initiate(c echo.Context) error {
	var req initiateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	out, err := h.Orch.Initiate(c.Request().Context(), payment.InitiateRequest{
		ReservationID: req.ReservationID,
		Amount:        req.Amount,
		Currency:      strings.TrimSpace(req.Currency),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Return GET /v1/payments/return?token&PayerID&reservationId is where the
// provider sends the payer back after approval.
func (h *PaymentHandler) Return(c echo.Context) error {
	return h.capture(c, c.QueryParam("token"), c.QueryParam("reservationId"))
}

// Capture POST /v1/payments/capture/:token
func (h *PaymentHandler) Capture(c echo.Context) error {
	var body reservationIDReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	rid := c.QueryParam("reservationId")
	if rid == "" && body.ReservationID != 0 {
		rid = strconv.FormatUint(body.ReservationID, 10)
	}
	return h.capture(c, c.Param("token"), rid)
}

func (h *PaymentHandler) capture(c echo.Context, token, reservationID string) error {
	req := payment.CaptureRequest{Token: strings.TrimSpace(token)}
	if reservationID != "" {
		id, err := strconv.ParseUint(reservationID, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "must be a positive integer", "field": "reservationId"})
		}
		req.ReservationID = id
	}

	r, err := h.Orch.Capture(c.Request().Context(), req)
	var ce *payment.CaptureError
	if errors.As(err, &ce) && ce.Kind == payment.CaptureAlreadyProcessed && r != nil {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":       captureMessage(ce.Kind),
			"code":        ce.Kind.String(),
			"reservation": toReservationResponse(r, h.Now()),
		})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, captureResp{Success: true, Status: string(model.PaymentCaptured), Reservation: toReservationResponse(r, h.Now())})
}

// Cancel handles both POST /v1/payments/cancel {reservationId} and the
// provider's GET cancel return with ?reservationId.
func (h *PaymentHandler) Cancel(c echo.Context) error {
	var id uint64
	if c.Request().Method == http.MethodGet {
		v, err := queryID(c, "reservationId")
		if err != nil {
			return writeError(c, err)
		}
		id = v
	} else {
		var req reservationIDReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
		}
		if req.ReservationID == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "is required", "field": "reservationId"})
		}
		id = req.ReservationID
	}

	r, err := h.Orch.CancelPayment(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"cancelled":   true,
		"reservation": toReservationResponse(r, h.Now()),
	})
}
