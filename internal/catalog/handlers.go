package catalog

import (
	"net/http"

	"github.com/eximia-labs/backend-quotes/internal/common"
)

// Handler exposes the public pricing catalog endpoint.
type Handler struct {
	Service *Service
}

// Pricing handles GET /api/v1/pricing.
func (h *Handler) Pricing(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	common.JSON(w, http.StatusOK, h.Service.Snapshot(r.Context()))
}
