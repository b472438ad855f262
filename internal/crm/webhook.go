package crm

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eximia-labs/backend-quotes/internal/common"
	"github.com/eximia-labs/backend-quotes/internal/events"
	"github.com/eximia-labs/backend-quotes/internal/obs"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-GHL-Signature"

// QuoteDirectory resolves quotes by the invoice that was issued for them.
type QuoteDirectory interface {
	// UpdateStatusByInvoice moves the quote linked to invoiceID into status.
	// It reports whether a matching quote was found.
	UpdateStatusByInvoice(ctx context.Context, invoiceID, status string) (uuid.UUID, bool, error)
}

// Webhook handles inbound CRM callbacks: invoice lifecycle changes and new
// contacts. Signature verification and replay protection run before any
// state change.
type Webhook struct {
	Secret    string
	Quotes    QuoteDirectory
	Notes     Biller
	Replay    *redis.Client
	ReplayTTL time.Duration
	Events    *events.Bus
	Logger    zerolog.Logger
}

type webhookEvent struct {
	Type      string          `json:"type"`
	EventType string          `json:"eventType"`
	Event     string          `json:"event"`
	Trigger   string          `json:"trigger"`
	Data      json.RawMessage `json:"data"`
}

type invoiceEventData struct {
	InvoiceID   string `json:"invoiceId"`
	ContactID   string `json:"contactId"`
	AmountCents int64  `json:"amount"`
	Email       string `json:"customerEmail"`
}

func (e webhookEvent) kind() string {
	for _, candidate := range []string{e.Type, e.EventType, e.Event, e.Trigger} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

// Handle processes a CRM webhook delivery.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if !h.verifySignature(body, r.Header.Get(SignatureHeader)) {
		countWebhook("invalid_signature")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	ctx := r.Context()
	if h.Replay != nil && h.ReplayTTL > 0 {
		key := "wh:ghl:" + common.Sha256Hex(string(body))
		ok, err := h.Replay.SetNX(ctx, key, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !ok {
			countWebhook("replay")
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "malformed payload", nil)
		return
	}
	kind := event.kind()
	if kind == "" {
		common.JSONError(w, http.StatusBadRequest, "MISSING_EVENT_TYPE", "no event type specified", nil)
		return
	}
	data := event.Data
	if len(data) == 0 {
		data = body
	}

	// The CRM is loose about event type casing and naming, so match on
	// normalized substrings the way it actually behaves in the field.
	normalized := strings.ToLower(kind)
	outcome := "processed"
	switch {
	case strings.Contains(normalized, "invoice") && strings.Contains(normalized, "paid"):
		h.handleInvoicePaid(ctx, data)
	case strings.Contains(normalized, "invoice") && strings.Contains(normalized, "overdue"):
		h.handleInvoiceOverdue(ctx, data)
	case strings.Contains(normalized, "invoice") && strings.Contains(normalized, "cancel"):
		h.handleInvoiceCancelled(ctx, data)
	case strings.Contains(normalized, "contact") && strings.Contains(normalized, "creat"):
		h.handleContactCreated(ctx, data)
	default:
		outcome = "ignored"
		h.Logger.Info().Str("event_type", kind).Msg("unhandled crm webhook event")
	}
	countWebhook(outcome)

	common.JSON(w, http.StatusOK, map[string]any{
		"received":  true,
		"eventType": kind,
	})
}

func countWebhook(result string) {
	if obs.CRMWebhookTotal != nil {
		obs.CRMWebhookTotal.WithLabelValues(result).Inc()
	}
}

func (h Webhook) verifySignature(body []byte, provided string) bool {
	if strings.TrimSpace(h.Secret) == "" {
		// No shared secret provisioned; accept but flag it.
		h.Logger.Warn().Msg("crm webhook secret not configured, skipping verification")
		return true
	}
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(provided)))
}

func (h Webhook) handleInvoicePaid(ctx context.Context, raw json.RawMessage) {
	var data invoiceEventData
	if err := json.Unmarshal(raw, &data); err != nil || data.InvoiceID == "" {
		h.Logger.Warn().Msg("invoice paid event missing invoice id")
		return
	}
	quoteID, found, err := h.updateQuote(ctx, data.InvoiceID, "paid")
	if err != nil {
		h.Logger.Error().Err(err).Str("invoice_id", data.InvoiceID).Msg("mark quote paid")
		return
	}
	if found && h.Events != nil {
		payload := map[string]any{
			"quoteId":   quoteID.String(),
			"invoiceId": data.InvoiceID,
			"amount":    float64(data.AmountCents) / 100,
		}
		if _, err := h.Events.Emit(ctx, events.TopicQuotePaid, quoteID, payload); err != nil {
			h.Logger.Warn().Err(err).Msg("emit quote paid event")
		}
	}
	if data.ContactID != "" && h.Notes != nil {
		note := fmt.Sprintf("Factura pagada via GHL. Invoice ID: %s. Monto: $%.2f USD.",
			data.InvoiceID, float64(data.AmountCents)/100)
		if err := h.Notes.AddNote(ctx, data.ContactID, note); err != nil {
			h.Logger.Warn().Err(err).Str("contact_id", data.ContactID).Msg("add payment note")
		}
	}
}

func (h Webhook) handleInvoiceOverdue(ctx context.Context, raw json.RawMessage) {
	var data invoiceEventData
	if err := json.Unmarshal(raw, &data); err != nil || data.InvoiceID == "" {
		return
	}
	h.Logger.Info().Str("invoice_id", data.InvoiceID).Msg("invoice overdue")
	if h.Events != nil {
		payload := map[string]any{"invoiceId": data.InvoiceID, "contactId": data.ContactID}
		if _, err := h.Events.Emit(ctx, events.TopicInvoiceOverdue, uuid.Nil, payload); err != nil {
			h.Logger.Warn().Err(err).Msg("emit invoice overdue event")
		}
	}
}

func (h Webhook) handleInvoiceCancelled(ctx context.Context, raw json.RawMessage) {
	var data invoiceEventData
	if err := json.Unmarshal(raw, &data); err != nil || data.InvoiceID == "" {
		return
	}
	quoteID, found, err := h.updateQuote(ctx, data.InvoiceID, "cancelled")
	if err != nil {
		h.Logger.Error().Err(err).Str("invoice_id", data.InvoiceID).Msg("mark quote cancelled")
		return
	}
	if found && h.Events != nil {
		payload := map[string]any{"quoteId": quoteID.String(), "invoiceId": data.InvoiceID}
		if _, err := h.Events.Emit(ctx, events.TopicQuoteCancelled, quoteID, payload); err != nil {
			h.Logger.Warn().Err(err).Msg("emit quote cancelled event")
		}
	}
}

func (h Webhook) handleContactCreated(ctx context.Context, raw json.RawMessage) {
	var data struct {
		ContactID string `json:"contactId"`
		ID        string `json:"id"`
		Email     string `json:"email"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return
	}
	contactID := data.ContactID
	if contactID == "" {
		contactID = data.ID
	}
	if h.Events != nil {
		payload := map[string]any{"contactId": contactID, "email": data.Email}
		if _, err := h.Events.Emit(ctx, events.TopicContactCreated, uuid.Nil, payload); err != nil {
			h.Logger.Warn().Err(err).Msg("emit contact created event")
		}
	}
}

func (h Webhook) updateQuote(ctx context.Context, invoiceID, status string) (uuid.UUID, bool, error) {
	if h.Quotes == nil {
		return uuid.Nil, false, nil
	}
	return h.Quotes.UpdateStatusByInvoice(ctx, invoiceID, status)
}
