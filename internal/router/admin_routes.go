package router

import (
	"github.com/labstack/echo/v4"

	"github.com/vala/car-rental-reservation/internal/handler"
	"github.com/vala/car-rental-reservation/internal/middleware"
	"github.com/vala/car-rental-reservation/internal/model"
)

// RegisterAdmin registers back-office endpoints.  All routes require a
// valid JWT and the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminReservationHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.GET("/reservations", h.List)
	g.PUT("/reservations/:id/statut", h.SetStatus)
}
