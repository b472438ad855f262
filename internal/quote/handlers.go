package quote

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/eximia-labs/backend-quotes/internal/common"
	"github.com/eximia-labs/backend-quotes/internal/pricing"
)

// Handler exposes the public quote endpoints.
type Handler struct {
	Svc *Service
}

type selectionPayload struct {
	PackageIDs   []string `json:"packageIds"`
	PackageID    string   `json:"packageId"`
	AddonIDs     []string `json:"addonIds"`
	ContractTerm string   `json:"contractTerm"`
}

// selection accepts both the list form and the legacy single packageId form
// still sent by older clients.
func (p selectionPayload) selection() pricing.Selection {
	ids := p.PackageIDs
	if len(ids) == 0 && p.PackageID != "" {
		ids = []string{p.PackageID}
	}
	return pricing.Selection{
		PackageIDs:     ids,
		AddonIDs:       p.AddonIDs,
		ContractTermID: p.ContractTerm,
	}
}

type submitPayload struct {
	selectionPayload
	Contact Contact `json:"contact"`
}

type previewResponse struct {
	Totals     pricing.Totals `json:"totals"`
	Currency   string         `json:"currency"`
	FromRemote bool           `json:"fromRemote"`
}

// Preview handles POST /api/v1/quotes/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var payload selectionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	totals, snap, err := h.Svc.Preview(r.Context(), payload.selection())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, previewResponse{
		Totals:     totals,
		Currency:   snap.Currency,
		FromRemote: snap.FromRemote,
	})
}

// SubmitEstimate handles POST /api/v1/quotes/estimate.
func (h *Handler) SubmitEstimate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	result, err := h.Svc.SubmitEstimate(r.Context(), SubmitRequest{
		Selection: payload.selection(),
		Contact:   payload.Contact,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"quoteId":    result.Quote.ID,
		"estimateId": result.EstimateID,
		"totals":     result.Quote.Totals,
	})
}

// Checkout handles POST /api/v1/quotes/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	result, err := h.Svc.Checkout(r.Context(), SubmitRequest{
		Selection: payload.selection(),
		Contact:   payload.Contact,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"quoteId":    result.Quote.ID,
		"paymentUrl": result.PaymentURL,
		"invoiceId":  result.InvoiceID,
		"totals":     result.Quote.Totals,
	})
}

// Get handles GET /api/v1/quotes/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ID", "invalid quote id", nil)
		return
	}
	q, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": q})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
	case errors.Is(err, pricing.ErrEmptySelection):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_SELECTION", "no package or addon selected", nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "quote not found", nil)
	case errors.Is(err, ErrPaymentUnavailable):
		common.JSONError(w, http.StatusBadGateway, "PAYMENT_UNAVAILABLE", "unable to generate a payment page", nil)
	default:
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid contact details", details)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
	}
}
