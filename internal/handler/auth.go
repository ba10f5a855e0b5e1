package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/vala/car-rental-reservation/internal/logger"
	"github.com/vala/car-rental-reservation/internal/middleware"
	"github.com/vala/car-rental-reservation/internal/model"
	"github.com/vala/car-rental-reservation/internal/repository"
	"github.com/vala/car-rental-reservation/internal/utils"
)

// UserStore is the account lookup the auth handler needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// AuthHandler signs back-office users in.
type AuthHandler struct {
	Users     UserStore
	Secret    string
	AccessTTL time.Duration
}

func NewAuthHandler(users UserStore, secret string, accessTTL time.Duration) *AuthHandler {
	return &AuthHandler{Users: users, Secret: secret, AccessTTL: accessTTL}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type loginResp struct {
	User   userPart          `json:"user"`
	Access utils.AccessToken `json:"access"`
}

// Login POST /v1/auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		logger.FromContext(ctx).Error("user lookup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	access, err := utils.NewAccessToken(h.Secret, u.ID, u.Role, h.AccessTTL)
	if err != nil {
		logger.FromContext(ctx).Error("sign access token failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, loginResp{
		User:   userPart{ID: u.ID, Email: u.Email, Role: u.Role},
		Access: access,
	})
}

// Me GET /v1/me
func (h *AuthHandler) Me(c echo.Context) error {
	id, err := strconv.ParseUint(middleware.UserID(c), 10, 64)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
	}
	u, err := h.Users.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown user"})
		}
		logger.FromContext(c.Request().Context()).Error("user lookup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, userPart{ID: u.ID, Email: u.Email, Role: middleware.Role(c)})
}
