// Package router registers the HTTP routes of the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/vala/car-rental-reservation/internal/handler"
	"github.com/vala/car-rental-reservation/internal/middleware"
	"github.com/vala/car-rental-reservation/internal/model"
)

// RegisterRoutes registers the health check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers login under /v1/auth and the protected /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	e.POST("/v1/auth/login", a.Login)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))
	auth.GET("/me", a.Me)
}
