package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eximia-labs/backend-quotes/internal/catalog"
	"github.com/eximia-labs/backend-quotes/internal/resilience"
)

const highLevelAPIVersion = "2021-07-28"

// HighLevel is the GoHighLevel REST client. It implements Provider for
// contacts, estimates and invoices, and catalog.ProductSource for the
// product listing the pricing catalog merges in.
type HighLevel struct {
	APIKey     string
	BaseURL    string
	LocationID string
	HTTP       resilience.HTTPClient
	Logger     zerolog.Logger
}

// NewHighLevel constructs a client with the production API host as default.
func NewHighLevel(apiKey, locationID string, httpClient resilience.HTTPClient, logger zerolog.Logger) *HighLevel {
	return &HighLevel{
		APIKey:     strings.TrimSpace(apiKey),
		BaseURL:    "https://services.leadconnectorhq.com",
		LocationID: strings.TrimSpace(locationID),
		HTTP:       httpClient,
		Logger:     logger,
	}
}

type highLevelContact struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SearchContactByPhone looks the number up under each stored variation and
// returns the matching contact id, or empty when none matches.
func (c *HighLevel) SearchContactByPhone(ctx context.Context, phone string) (string, error) {
	if c.APIKey == "" {
		return "", ErrNotConfigured
	}
	wanted := PhoneVariations(phone)
	for _, variation := range wanted {
		query := url.Values{"locationId": {c.LocationID}, "query": {variation}}
		var out struct {
			Contacts []highLevelContact `json:"contacts"`
		}
		if err := c.do(ctx, http.MethodGet, "/contacts/?"+query.Encode(), nil, &out); err != nil {
			continue
		}
		for _, contact := range out.Contacts {
			if contact.Phone == "" {
				continue
			}
			if variationsOverlap(wanted, PhoneVariations(contact.Phone)) {
				return contact.ID, nil
			}
		}
	}
	return "", nil
}

// UpsertContact returns the id of an existing contact matched by phone, or
// creates one. Either way the quotation tag ends up on the contact.
func (c *HighLevel) UpsertContact(ctx context.Context, contact Contact) (string, error) {
	if c.APIKey == "" {
		return "", ErrNotConfigured
	}
	if existing, err := c.SearchContactByPhone(ctx, contact.Phone); err == nil && existing != "" {
		if err := c.AddTag(ctx, existing, QuotationTag); err != nil {
			c.Logger.Warn().Err(err).Str("contact_id", existing).Msg("tag existing contact")
		}
		return existing, nil
	}

	first, last := splitName(contact.Name)
	payload := map[string]any{
		"firstName":   first,
		"lastName":    last,
		"email":       contact.Email,
		"phone":       FormatPhone(contact.Phone),
		"companyName": contact.Company,
		"locationId":  c.LocationID,
		"tags":        []string{QuotationTag},
	}
	var out struct {
		ID      string           `json:"id"`
		Contact highLevelContact `json:"contact"`
		Meta    struct {
			ContactID string `json:"contactId"`
		} `json:"meta"`
	}
	err := c.do(ctx, http.MethodPost, "/contacts/", payload, &out)
	if err != nil {
		// A duplicate error still carries the existing contact id.
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest && apiErr.DuplicateContactID != "" {
			if tagErr := c.AddTag(ctx, apiErr.DuplicateContactID, QuotationTag); tagErr != nil {
				c.Logger.Warn().Err(tagErr).Msg("tag duplicate contact")
			}
			return apiErr.DuplicateContactID, nil
		}
		return "", fmt.Errorf("create contact: %w", err)
	}
	if out.Contact.ID != "" {
		return out.Contact.ID, nil
	}
	return out.ID, nil
}

// AddTag appends a tag to a contact.
func (c *HighLevel) AddTag(ctx context.Context, contactID, tag string) error {
	if c.APIKey == "" {
		return ErrNotConfigured
	}
	payload := map[string]any{"tags": []string{tag}}
	return c.do(ctx, http.MethodPost, "/contacts/"+url.PathEscape(contactID)+"/tags", payload, nil)
}

// CreateEstimate creates an estimate document for the selection preview.
func (c *HighLevel) CreateEstimate(ctx context.Context, req DocumentRequest) (Document, error) {
	var out struct {
		ID             string  `json:"_id"`
		Status         string  `json:"status"`
		EstimateNumber int     `json:"estimateNumber"`
		Total          float64 `json:"total"`
	}
	if err := c.createDocument(ctx, req, 30, &out); err != nil {
		return Document{}, fmt.Errorf("create estimate: %w", err)
	}
	return Document{ID: out.ID, Status: out.Status, Number: out.EstimateNumber, Total: out.Total}, nil
}

// CreateInvoice creates an invoice due in 14 days unless the request says
// otherwise.
func (c *HighLevel) CreateInvoice(ctx context.Context, req DocumentRequest) (Document, error) {
	due := req.DueInDays
	if due <= 0 {
		due = 14
	}
	var out struct {
		ID            string  `json:"_id"`
		Status        string  `json:"status"`
		InvoiceNumber int     `json:"invoiceNumber"`
		Total         float64 `json:"total"`
	}
	if err := c.createDocument(ctx, req, due, &out); err != nil {
		return Document{}, fmt.Errorf("create invoice: %w", err)
	}
	return Document{ID: out.ID, Status: out.Status, Number: out.InvoiceNumber, Total: out.Total}, nil
}

// SendInvoice asks the CRM to deliver the invoice to the contact.
func (c *HighLevel) SendInvoice(ctx context.Context, invoiceID string) error {
	if c.APIKey == "" {
		return ErrNotConfigured
	}
	return c.do(ctx, http.MethodPost, "/invoices/"+url.PathEscape(invoiceID)+"/send", map[string]any{}, nil)
}

type highLevelProduct struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Prices      []struct {
		ID     string  `json:"id"`
		Amount float64 `json:"amount"`
		Type   string  `json:"type"`
	} `json:"prices"`
}

// ListProducts implements catalog.ProductSource from the CRM product listing.
// The first price on each product wins; amounts arrive in minor units.
func (c *HighLevel) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	if c.APIKey == "" {
		return nil, ErrNotConfigured
	}
	query := url.Values{"locationId": {c.LocationID}}
	var out struct {
		Products []highLevelProduct `json:"products"`
	}
	if err := c.do(ctx, http.MethodGet, "/products/?"+query.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	products := make([]catalog.Product, 0, len(out.Products))
	for _, p := range out.Products {
		product := catalog.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Type:        strings.ToUpper(strings.TrimSpace(p.Type)),
		}
		if len(p.Prices) > 0 {
			product.PriceCents = int64(p.Prices[0].Amount)
			product.PriceID = p.Prices[0].ID
		}
		products = append(products, product)
	}
	return products, nil
}

func (c *HighLevel) createDocument(ctx context.Context, req DocumentRequest, dueInDays int, out any) error {
	if c.APIKey == "" {
		return ErrNotConfigured
	}
	contactPhone := "+17875550123"
	if req.Contact.Phone != "" {
		contactPhone = FormatPhone(req.Contact.Phone)
	}
	contactEmail := req.Contact.Email
	if contactEmail == "" {
		contactEmail = "info@eximia.agency"
	}
	contactName := req.Contact.Name
	if contactName == "" {
		contactName = "Cliente EXIMIA"
	}
	items := make([]map[string]any, 0, len(req.Items))
	for _, item := range req.Items {
		qty := item.Qty
		if qty < 1 {
			qty = 1
		}
		items = append(items, map[string]any{
			"name":        item.Name,
			"description": item.Description,
			"amount":      item.Amount,
			"qty":         qty,
			"currency":    req.Currency,
			"type":        "one_time",
		})
	}
	today := time.Now().UTC()
	payload := map[string]any{
		"altId":    c.LocationID,
		"altType":  "location",
		"name":     req.Name,
		"currency": req.Currency,
		"businessDetails": map[string]any{
			"name": "EXIMIA",
			"address": map[string]any{
				"addressLine1": "Puerto Rico",
				"city":         "San Juan",
				"state":        "PR",
				"countryCode":  "US",
				"postalCode":   "00901",
			},
			"phoneNo": "+17875550123",
			"website": "www.eximia.agency",
		},
		"contactDetails": map[string]any{
			"id":      req.ContactID,
			"name":    contactName,
			"phoneNo": contactPhone,
			"email":   contactEmail,
		},
		"items":     items,
		"issueDate": today.Format("2006-01-02"),
		"dueDate":   today.AddDate(0, 0, dueInDays).Format("2006-01-02"),
		"liveMode":  false,
		"discount":  map[string]any{"type": "percentage", "value": 0},
		"sentTo":    map[string]any{"email": []string{contactEmail}},
	}
	return c.do(ctx, http.MethodPost, "/invoices/", payload, out)
}

type apiError struct {
	Status             int
	Message            string
	DuplicateContactID string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("highlevel: status %d: %s", e.Status, e.Message)
}

func (c *HighLevel) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Version", highLevelAPIVersion)

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var errBody struct {
			Message string `json:"message"`
			Meta    struct {
				ContactID string `json:"contactId"`
			} `json:"meta"`
		}
		_ = json.Unmarshal(data, &errBody)
		return &apiError{
			Status:             resp.StatusCode,
			Message:            errBody.Message,
			DuplicateContactID: errBody.Meta.ContactID,
		}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func variationsOverlap(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
