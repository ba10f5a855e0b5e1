package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vala/car-rental-reservation/internal/booking"
	"github.com/vala/car-rental-reservation/internal/model"
)

// AdminReservationHandler serves the back-office reservation screens.
type AdminReservationHandler struct {
	Svc *booking.Service
}

func NewAdminReservationHandler(svc *booking.Service) *AdminReservationHandler {
	return &AdminReservationHandler{Svc: svc}
}

type pageResp struct {
	Content       []reservationResponse `json:"content"`
	Page          int                   `json:"page"`
	Size          int                   `json:"size"`
	TotalElements int                   `json:"totalElements"`
	TotalPages    int                   `json:"totalPages"`
}

type setStatusReq struct {
	Statut string `json:"statut"`
}

// List GET /v1/admin/reservations?page&size&email&statut
func (h *AdminReservationHandler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	p, err := h.Svc.List(c.Request().Context(), booking.Filter{
		Email:  c.QueryParam("email"),
		Status: model.Status(strings.ToUpper(strings.TrimSpace(c.QueryParam("statut")))),
		Page:   page,
		Size:   size,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, pageResp{
		Content:       toReservationList(p.Items, h.Svc.Machine().Now()),
		Page:          p.Page,
		Size:          p.Size,
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
	})
}

// SetStatus PUT /v1/admin/reservations/:id/statut {statut}
func (h *AdminReservationHandler) SetStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req setStatusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	target := model.Status(strings.ToUpper(strings.TrimSpace(req.Statut)))
	r, err := h.Svc.SetStatus(c.Request().Context(), id, target)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r, h.Svc.Machine().Now()))
}
