package router

import (
	"github.com/labstack/echo/v4"

	"github.com/vala/car-rental-reservation/internal/handler"
)

// RegisterBooking registers the public reservation and payment flow.
// Customers book without an account; cache wraps the availability lookup.
func RegisterBooking(e *echo.Echo, r *handler.ReservationHandler, p *handler.PaymentHandler, cache echo.MiddlewareFunc) {
	v1 := e.Group("/v1")
	v1.GET("/quote", r.Quote)

	res := v1.Group("/reservations")
	res.POST("", r.Create)
	res.GET("/disponibilite/:produitId", r.Availability, cache)
	res.GET("/client/:email", r.ByEmail)
	res.GET("/:id", r.Get)
	res.POST("/:id/cancel", r.Cancel)

	pay := v1.Group("/payments")
	pay.POST("/initiate", p.Initiate)
	pay.GET("/return", p.Return)
	pay.POST("/capture/:token", p.Capture)
	pay.POST("/cancel", p.Cancel)
	pay.GET("/cancel", p.Cancel)
}
