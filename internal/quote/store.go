// Package quote implements the lead-to-quote flow: live totals preview,
// estimate submission, checkout with hosted payment, persistence and the
// admin surface over stored quotes.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eximia-labs/backend-quotes/internal/pricing"
)

// Quote lifecycle states.
const (
	StatusPending     = "pending"
	StatusPaymentSent = "payment_sent"
	StatusPaid        = "paid"
	StatusCancelled   = "cancelled"
)

// ErrNotFound is returned when no quote matches the lookup.
var ErrNotFound = errors.New("quote: not found")

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusPaymentSent, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// Contact is the lead captured by the quote form. Billing fields are only
// filled when the lead asked for billing details to be recorded.
type Contact struct {
	Name           string  `json:"name" validate:"required,min=2,max=120"`
	Email          string  `json:"email" validate:"required,email"`
	Phone          string  `json:"phone" validate:"required,min=7,max=20"`
	Company        string  `json:"company,omitempty" validate:"max=120"`
	NeedsBilling   bool    `json:"needsBilling,omitempty"`
	BillingAddress string  `json:"billingAddress,omitempty" validate:"max=200"`
	BillingCity    string  `json:"billingCity,omitempty" validate:"max=80"`
	BillingState   string  `json:"billingState,omitempty" validate:"max=80"`
	BillingZip     string  `json:"billingZip,omitempty" validate:"max=16"`
	MonthlyAdSpend float64 `json:"monthlyAdSpend,omitempty" validate:"min=0"`
}

// Quote is one persisted quotation.
type Quote struct {
	ID               uuid.UUID         `json:"id"`
	Selection        pricing.Selection `json:"selection"`
	Contact          Contact           `json:"contact"`
	Totals           pricing.Totals    `json:"totals"`
	Status           string            `json:"status"`
	CRMContactID     string            `json:"crmContactId,omitempty"`
	BillingContactID string            `json:"billingContactId,omitempty"`
	InvoiceID        string            `json:"invoiceId,omitempty"`
	PaymentURL       string            `json:"paymentUrl,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Store persists quotes in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

// Create inserts the quote and returns it with assigned id and timestamps.
func (s *Store) Create(ctx context.Context, q Quote) (Quote, error) {
	if s == nil || s.Pool == nil {
		return Quote{}, errors.New("quote: pool not configured")
	}
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Status == "" {
		q.Status = StatusPending
	}
	contact, err := json.Marshal(q.Contact)
	if err != nil {
		return Quote{}, fmt.Errorf("quote: encode contact: %w", err)
	}
	totals, err := json.Marshal(q.Totals)
	if err != nil {
		return Quote{}, fmt.Errorf("quote: encode totals: %w", err)
	}
	err = s.Pool.QueryRow(ctx,
		`INSERT INTO quotes (
			id, package_ids, addon_ids, contract_term, contact, totals, status,
			crm_contact_id, billing_contact_id, invoice_id, payment_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		q.ID, q.Selection.PackageIDs, q.Selection.AddonIDs, q.Selection.ContractTermID,
		contact, totals, q.Status,
		q.CRMContactID, q.BillingContactID, q.InvoiceID, q.PaymentURL,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return Quote{}, err
	}
	return q, nil
}

const quoteColumns = `id, package_ids, addon_ids, contract_term, contact, totals, status,
	crm_contact_id, billing_contact_id, invoice_id, payment_url, created_at, updated_at`

// GetByID fetches one quote.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (Quote, error) {
	if s == nil || s.Pool == nil {
		return Quote{}, errors.New("quote: pool not configured")
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id)
	q, err := scanQuote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quote{}, ErrNotFound
	}
	return q, err
}

// List returns quotes newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Quote, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("quote: pool not configured")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT `+quoteColumns+` FROM quotes ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// UpdateStatus moves the quote into status and returns the updated row.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (Quote, error) {
	if s == nil || s.Pool == nil {
		return Quote{}, errors.New("quote: pool not configured")
	}
	if !ValidStatus(status) {
		return Quote{}, fmt.Errorf("quote: invalid status %q", status)
	}
	row := s.Pool.QueryRow(ctx,
		`UPDATE quotes SET status = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+quoteColumns, id, status)
	q, err := scanQuote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quote{}, ErrNotFound
	}
	return q, err
}

// UpdateStatusByInvoice moves the quote linked to the CRM invoice into
// status. It reports whether a matching quote existed, satisfying the
// webhook's directory contract.
func (s *Store) UpdateStatusByInvoice(ctx context.Context, invoiceID, status string) (uuid.UUID, bool, error) {
	if s == nil || s.Pool == nil {
		return uuid.Nil, false, errors.New("quote: pool not configured")
	}
	if !ValidStatus(status) {
		return uuid.Nil, false, fmt.Errorf("quote: invalid status %q", status)
	}
	var id uuid.UUID
	err := s.Pool.QueryRow(ctx,
		`UPDATE quotes SET status = $2, updated_at = now()
		 WHERE invoice_id = $1
		 RETURNING id`, invoiceID, status).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuote(row rowScanner) (Quote, error) {
	var q Quote
	var contact, totals []byte
	err := row.Scan(
		&q.ID, &q.Selection.PackageIDs, &q.Selection.AddonIDs, &q.Selection.ContractTermID,
		&contact, &totals, &q.Status,
		&q.CRMContactID, &q.BillingContactID, &q.InvoiceID, &q.PaymentURL,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return Quote{}, err
	}
	if err := json.Unmarshal(contact, &q.Contact); err != nil {
		return Quote{}, fmt.Errorf("quote: decode contact: %w", err)
	}
	if err := json.Unmarshal(totals, &q.Totals); err != nil {
		return Quote{}, fmt.Errorf("quote: decode totals: %w", err)
	}
	return q, nil
}
