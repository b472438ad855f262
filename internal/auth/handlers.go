package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eximia-labs/backend-quotes/internal/common"
)

// Handler exposes the admin login and status endpoints.
type Handler struct {
	Svc *Service
}

// Login handles POST /api/v1/admin/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if payload.Username == "" || payload.Password == "" {
		common.JSONError(w, http.StatusBadRequest, "MISSING_CREDENTIALS", "username and password are required", nil)
		return
	}
	token, expiresAt, err := h.Svc.Login(payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			common.JSONError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": expiresAt,
		"user":      map[string]string{"username": payload.Username},
	})
}

// Status handles GET /api/v1/admin/status. It reports whether the supplied
// token is still valid.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return
	}
	token := extractToken(r)
	if token == "" {
		common.JSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	username, err := h.Svc.ParseAccessToken(token)
	if err != nil {
		common.JSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          map[string]string{"username": username},
	})
}
