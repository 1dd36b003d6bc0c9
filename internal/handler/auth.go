package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/agrotrack/plotmanager/internal/domain"
	"github.com/agrotrack/plotmanager/internal/security/auth"
	"github.com/agrotrack/plotmanager/internal/security/middleware"
	"github.com/agrotrack/plotmanager/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	userService *service.UserService
	tokens      *auth.TokenManager
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, userService *service.UserService, tokens *auth.TokenManager, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		authService: authService,
		userService: userService,
		tokens:      tokens,
		logger:      logger,
	}
}

// LoginRequest represents login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the token in the body for clients that cannot use
// cross-site cookies.
type LoginResponse struct {
	Message   string       `json:"message"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

// ChangePasswordRequest represents change password request
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Register handles POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.authService.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "user registered successfully", ID: user.ID})
}

// Login handles POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, h.tokens.SessionCookie(result.Token, result.ExpiresAt))
	writeJSON(w, http.StatusOK, LoginResponse{
		Message:   "login successful",
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      result.User,
	})
}

// Logout handles POST /api/logout. The cookie is cleared even when the
// token was already invalid.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.tokens.ClearSessionCookie())

	if err := h.authService.Logout(r.Context(), middleware.TokenFromRequest(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// Me handles GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, r, h.logger, domain.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, principal)
}

// MyProfile handles GET /api/my-profile
func (h *AuthHandler) MyProfile(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, r, h.logger, domain.ErrUnauthenticated)
		return
	}

	profile, err := h.userService.GetProfile(r.Context(), principal, principal.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ChangePassword handles POST /api/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, r, h.logger, domain.ErrUnauthenticated)
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), principal.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "password changed successfully"})
}
