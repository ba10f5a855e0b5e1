package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vala/car-rental-reservation/internal/booking"
	"github.com/vala/car-rental-reservation/internal/model"
	"github.com/vala/car-rental-reservation/internal/pricing"
)

// ReservationHandler serves the public booking flow.
type ReservationHandler struct {
	Svc *booking.Service
}

func NewReservationHandler(svc *booking.Service) *ReservationHandler {
	return &ReservationHandler{Svc: svc}
}

type createReservationReq struct {
	ProduitID  uint64         `json:"produitId"`
	DateDepart model.Date     `json:"dateDepart"`
	DateRetour model.Date     `json:"dateRetour"`
	Nom        string         `json:"nom"`
	Prenom     string         `json:"prenom"`
	Telephone  string         `json:"telephone"`
	Email      string         `json:"email"`
	LieuPrise  model.Location `json:"lieuPrise"`
	LieuRetour model.Location `json:"lieuRetour"`
}

type quoteResp struct {
	pricing.Quote
	ProduitID  uint64     `json:"produitId"`
	DateDepart model.Date `json:"dateDepart"`
	DateRetour model.Date `json:"dateRetour"`
}

func rangeParams(c echo.Context) (model.Date, model.Date, error) {
	start, err := queryDate(c, "dateDepart")
	if err != nil {
		return model.Date{}, model.Date{}, err
	}
	end, err := queryDate(c, "dateRetour")
	if err != nil {
		return model.Date{}, model.Date{}, err
	}
	return start, end, nil
}

// Quote GET /v1/quote?produitId&dateDepart&dateRetour
func (h *ReservationHandler) Quote(c echo.Context) error {
	id, err := queryID(c, "produitId")
	if err != nil {
		return writeError(c, err)
	}
	start, end, err := rangeParams(c)
	if err != nil {
		return writeError(c, err)
	}
	q, err := h.Svc.Quote(c.Request().Context(), id, start, end)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, quoteResp{Quote: q, ProduitID: id, DateDepart: start, DateRetour: end})
}

// Availability GET /v1/reservations/disponibilite/:produitId?dateDepart&dateRetour
func (h *ReservationHandler) Availability(c echo.Context) error {
	id, err := pathID(c, "produitId")
	if err != nil {
		return writeError(c, err)
	}
	start, end, err := rangeParams(c)
	if err != nil {
		return writeError(c, err)
	}
	a, err := h.Svc.Availability(c.Request().Context(), id, start, end)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Create POST /v1/reservations.  Prices and day counts sent by the client
// are ignored and recomputed from the vehicle rate.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req createReservationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	r, err := h.Svc.Create(c.Request().Context(), booking.Details{
		VehicleID: req.ProduitID,
		Start:     req.DateDepart,
		End:       req.DateRetour,
		Contact: model.Contact{
			LastName:  req.Nom,
			FirstName: req.Prenom,
			Phone:     req.Telephone,
			Email:     req.Email,
		},
		Pickup: req.LieuPrise,
		Return: req.LieuRetour,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toReservationResponse(r, h.Svc.Machine().Now()))
}

// Get GET /v1/reservations/:id
func (h *ReservationHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	r, err := h.Svc.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r, h.Svc.Machine().Now()))
}

// ByEmail GET /v1/reservations/client/:email
func (h *ReservationHandler) ByEmail(c echo.Context) error {
	rs, err := h.Svc.ListByEmail(c.Request().Context(), c.Param("email"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationList(rs, h.Svc.Machine().Now()))
}

// Cancel POST /v1/reservations/:id/cancel
func (h *ReservationHandler) Cancel(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	r, err := h.Svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r, h.Svc.Machine().Now()))
}
