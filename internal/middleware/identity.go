package middleware

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// UserID returns the authenticated subject, or "" on public routes.
func UserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok {
		return s
	}
	return ""
}

// Role returns the role claim of the authenticated user, or "".
func Role(c echo.Context) string {
	if s, ok := c.Get(ctxRole).(string); ok {
		return s
	}
	return ""
}

// subjectOrAnon keys anonymous traffic together for rate limiting.
func subjectOrAnon(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
