package quote

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eximia-labs/backend-quotes/internal/common"
)

// AdminHandler exposes the protected admin surface over stored quotes.
type AdminHandler struct {
	Store Repository
}

// List handles GET /api/v1/admin/quotes, newest first.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote store not configured", nil)
		return
	}
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 50)
	offset := common.AtoiDefault(r.URL.Query().Get("offset"), 0)
	quotes, err := h.Store.List(r.Context(), limit, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	if quotes == nil {
		quotes = []Quote{}
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":  quotes,
		"count": len(quotes),
	})
}

// UpdateStatus handles PATCH /api/v1/admin/quotes/{id}/status.
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ID", "invalid quote id", nil)
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if !ValidStatus(payload.Status) {
		common.JSONError(w, http.StatusBadRequest, "INVALID_STATUS", "unknown status", map[string]any{
			"allowed": []string{StatusPending, StatusPaymentSent, StatusPaid, StatusCancelled},
		})
		return
	}
	q, err := h.Store.UpdateStatus(r.Context(), id, payload.Status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "quote not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": q})
}
