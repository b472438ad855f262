package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eximia-labs/backend-quotes/internal/resilience"
)

// Billing is the EXIMIA billing/CRM client. It provisions recurring monthly
// charges with a hosted payment page and keeps contact notes and
// opportunities in sync after payment events.
type Billing struct {
	APIKey     string
	BaseURL    string
	PipelineID string
	StageID    string
	HTTP       resilience.HTTPClient
	Logger     zerolog.Logger
}

// NewBilling constructs a Billing client against the default API host.
func NewBilling(apiKey string, httpClient resilience.HTTPClient, logger zerolog.Logger) *Billing {
	return &Billing{
		APIKey:  strings.TrimSpace(apiKey),
		BaseURL: "https://api.eximia.com/v1",
		HTTP:    httpClient,
		Logger:  logger,
	}
}

// CreateRecurringCharge provisions a monthly subscription. Amounts are sent
// in minor units.
func (b *Billing) CreateRecurringCharge(ctx context.Context, req RecurringChargeRequest) (RecurringCharge, error) {
	if b.APIKey == "" {
		return RecurringCharge{}, ErrNotConfigured
	}
	payload := map[string]any{
		"contactId":   req.ContactID,
		"description": req.Description,
		"amount":      toCents(req.AmountMonthly),
		"currency":    "USD",
		"interval":    "month",
		"taxRate":     req.TaxRate,
		"setupFee":    toCents(req.SetupFee),
	}
	var out struct {
		PaymentURL string `json:"paymentUrl"`
		InvoiceID  string `json:"invoiceId"`
	}
	if err := b.do(ctx, http.MethodPost, "/billing/recurring-charges", payload, &out); err != nil {
		return RecurringCharge{}, fmt.Errorf("create recurring charge: %w", err)
	}
	return RecurringCharge{InvoiceID: out.InvoiceID, PaymentURL: out.PaymentURL}, nil
}

// AddNote appends a note to a CRM contact.
func (b *Billing) AddNote(ctx context.Context, contactID, text string) error {
	if b.APIKey == "" {
		return ErrNotConfigured
	}
	payload := map[string]any{"body": text, "userId": "system"}
	return b.do(ctx, http.MethodPost, "/contacts/"+url.PathEscape(contactID)+"/notes", payload, nil)
}

// UpsertContact mirrors the lead into the EXIMIA CRM.
func (b *Billing) UpsertContact(ctx context.Context, contact Contact, tags []string) (string, error) {
	if b.APIKey == "" {
		return "", ErrNotConfigured
	}
	first, last := splitName(contact.Name)
	payload := map[string]any{
		"firstName":   first,
		"lastName":    last,
		"email":       contact.Email,
		"phone":       contact.Phone,
		"companyName": contact.Company,
		"tags":        tags,
	}
	var out struct {
		ContactID string `json:"contactId"`
		ID        string `json:"id"`
	}
	if err := b.do(ctx, http.MethodPost, "/contacts/upsert", payload, &out); err != nil {
		return "", fmt.Errorf("upsert contact: %w", err)
	}
	if out.ContactID != "" {
		return out.ContactID, nil
	}
	return out.ID, nil
}

// CreateOpportunity records a won quote in the configured pipeline stage.
func (b *Billing) CreateOpportunity(ctx context.Context, contactID string, monetaryValue float64) (string, error) {
	if b.APIKey == "" {
		return "", ErrNotConfigured
	}
	payload := map[string]any{
		"contactId":     contactID,
		"pipelineId":    b.PipelineID,
		"stageId":       b.StageID,
		"title":         "EXIMIA Auto-cotización",
		"monetaryValue": toCents(monetaryValue),
		"currency":      "USD",
	}
	var out struct {
		OpportunityID string `json:"opportunityId"`
		ID            string `json:"id"`
	}
	if err := b.do(ctx, http.MethodPost, "/opportunities", payload, &out); err != nil {
		return "", fmt.Errorf("create opportunity: %w", err)
	}
	if out.OpportunityID != "" {
		return out.OpportunityID, nil
	}
	return out.ID, nil
}

func (b *Billing) do(ctx context.Context, method, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(b.BaseURL, "/")+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+b.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.HTTP.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("billing: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}
