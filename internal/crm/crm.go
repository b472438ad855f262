// Package crm integrates the quote flow with the CRM and billing systems:
// contact upsert, estimate and invoice creation, recurring charges, and the
// inbound webhook that reports invoice lifecycle changes back to us.
package crm

import (
	"context"
	"errors"
)

// QuotationTag marks every contact that came through the quote flow.
const QuotationTag = "eximia-cotizacion"

// ErrNotConfigured is returned by clients missing an API key.
var ErrNotConfigured = errors.New("crm: client not configured")

// Contact carries the lead details captured by the quote form.
type Contact struct {
	Name    string
	Email   string
	Phone   string
	Company string
}

// LineItem is a single billable entry on an estimate or invoice.
// Amount is in currency units.
type LineItem struct {
	Name        string
	Description string
	Amount      float64
	Qty         int
}

// DocumentRequest describes an estimate or invoice to create.
type DocumentRequest struct {
	ContactID string
	Name      string
	Currency  string
	Contact   Contact
	Items     []LineItem
	DueInDays int
}

// Document is the created estimate or invoice.
type Document struct {
	ID     string
	Status string
	Number int
	Total  float64
}

// RecurringChargeRequest describes a monthly subscription charge.
// Amounts are in currency units; clients convert to minor units on the wire.
type RecurringChargeRequest struct {
	ContactID     string
	Description   string
	AmountMonthly float64
	TaxRate       float64
	SetupFee      float64
}

// RecurringCharge is the provisioned subscription with its hosted payment page.
type RecurringCharge struct {
	InvoiceID  string
	PaymentURL string
}

// Provider is the CRM side of the integration: contacts and quote documents.
type Provider interface {
	SearchContactByPhone(ctx context.Context, phone string) (string, error)
	UpsertContact(ctx context.Context, contact Contact) (string, error)
	AddTag(ctx context.Context, contactID, tag string) error
	CreateEstimate(ctx context.Context, req DocumentRequest) (Document, error)
	CreateInvoice(ctx context.Context, req DocumentRequest) (Document, error)
	SendInvoice(ctx context.Context, invoiceID string) error
}

// Biller provisions recurring charges and keeps CRM notes in sync.
type Biller interface {
	CreateRecurringCharge(ctx context.Context, req RecurringChargeRequest) (RecurringCharge, error)
	AddNote(ctx context.Context, contactID, text string) error
}
