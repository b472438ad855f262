package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eximia-labs/backend-quotes/internal/catalog"
	"github.com/eximia-labs/backend-quotes/internal/crm"
	"github.com/eximia-labs/backend-quotes/internal/events"
	"github.com/eximia-labs/backend-quotes/internal/obs"
	"github.com/eximia-labs/backend-quotes/internal/pricing"
)

// ErrPaymentUnavailable is returned when neither billing path could produce
// a hosted payment page.
var ErrPaymentUnavailable = errors.New("quote: no payment method available")

// Repository is the persistence surface the service needs.
type Repository interface {
	Create(ctx context.Context, q Quote) (Quote, error)
	GetByID(ctx context.Context, id uuid.UUID) (Quote, error)
	List(ctx context.Context, limit, offset int) ([]Quote, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (Quote, error)
}

// CatalogSource provides the pricing catalog snapshot for a request.
type CatalogSource interface {
	Snapshot(ctx context.Context) catalog.Snapshot
}

// BillingClient is the EXIMIA billing surface used during checkout.
type BillingClient interface {
	UpsertContact(ctx context.Context, contact crm.Contact, tags []string) (string, error)
	CreateRecurringCharge(ctx context.Context, req crm.RecurringChargeRequest) (crm.RecurringCharge, error)
	CreateOpportunity(ctx context.Context, contactID string, monetaryValue float64) (string, error)
	AddNote(ctx context.Context, contactID, text string) error
}

// Service orchestrates the quote flow. CRM and billing calls are best-effort:
// a quote is still persisted when the CRM is down, but checkout fails when no
// payment page exists.
type Service struct {
	Catalog  CatalogSource
	Store    Repository
	CRM      crm.Provider
	Billing  BillingClient
	Bus      *events.Bus
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// SubmitRequest is the input shared by estimate and checkout submissions.
type SubmitRequest struct {
	Selection pricing.Selection
	Contact   Contact
}

// EstimateResult is the outcome of an estimate submission.
type EstimateResult struct {
	Quote      Quote
	EstimateID string
}

// CheckoutResult is the outcome of a checkout submission.
type CheckoutResult struct {
	Quote      Quote
	PaymentURL string
	InvoiceID  string
}

// Preview computes totals for the selection against the current catalog
// without persisting anything.
func (s *Service) Preview(ctx context.Context, sel pricing.Selection) (pricing.Totals, catalog.Snapshot, error) {
	snap := s.Catalog.Snapshot(ctx)
	s.logDropped(sel, snap.Config)
	totals, err := pricing.ComputeTotals(sel, snap.Config)
	return totals, snap, err
}

// SubmitEstimate computes totals, mirrors the lead into the CRM, creates an
// estimate document and persists the quote. CRM failures degrade to a quote
// without CRM references.
func (s *Service) SubmitEstimate(ctx context.Context, req SubmitRequest) (EstimateResult, error) {
	if err := s.validateContact(req.Contact); err != nil {
		return EstimateResult{}, err
	}
	snap := s.Catalog.Snapshot(ctx)
	s.logDropped(req.Selection, snap.Config)
	totals, err := pricing.ComputeTotals(req.Selection, snap.Config)
	if err != nil {
		return EstimateResult{}, err
	}

	contact := crmContact(req.Contact)
	var contactID string
	if s.CRM != nil {
		contactID, err = s.CRM.UpsertContact(ctx, contact)
		if err != nil {
			s.Logger.Warn().Err(err).Msg("crm contact upsert failed, continuing without contact")
			contactID = ""
		}
	}

	var estimateID string
	if s.CRM != nil && contactID != "" {
		doc, err := s.CRM.CreateEstimate(ctx, crm.DocumentRequest{
			ContactID: contactID,
			Name:      "Cotización EXIMIA - " + selectionTitle(req.Selection, snap.Config),
			Currency:  snap.Currency,
			Contact:   contact,
			Items:     lineItems(req.Selection, snap.Config, totals),
			DueInDays: 30,
		})
		if err != nil {
			s.Logger.Warn().Err(err).Msg("crm estimate creation failed, continuing without estimate")
		} else {
			estimateID = doc.ID
		}
	}

	stored, err := s.Store.Create(ctx, Quote{
		Selection:    req.Selection,
		Contact:      req.Contact,
		Totals:       totals,
		Status:       StatusPending,
		CRMContactID: contactID,
		InvoiceID:    estimateID,
	})
	if err != nil {
		return EstimateResult{}, fmt.Errorf("persist quote: %w", err)
	}
	if obs.QuoteCreatedTotal != nil {
		obs.QuoteCreatedTotal.WithLabelValues("estimate").Inc()
	}
	s.emit(ctx, events.TopicQuoteEstimateCreated, stored, map[string]any{
		"quoteId":    stored.ID.String(),
		"estimateId": estimateID,
		"contact":    req.Contact,
		"totals":     totals,
	})
	return EstimateResult{Quote: stored, EstimateID: estimateID}, nil
}

// Checkout computes totals, provisions a recurring charge with the billing
// platform, and falls back to a CRM invoice when billing is unavailable. A
// quote is only persisted when a payment page exists.
func (s *Service) Checkout(ctx context.Context, req SubmitRequest) (CheckoutResult, error) {
	if err := s.validateContact(req.Contact); err != nil {
		return CheckoutResult{}, err
	}
	snap := s.Catalog.Snapshot(ctx)
	s.logDropped(req.Selection, snap.Config)
	totals, err := pricing.ComputeTotals(req.Selection, snap.Config)
	if err != nil {
		return CheckoutResult{}, err
	}

	contact := crmContact(req.Contact)
	title := selectionTitle(req.Selection, snap.Config)

	var billingContactID string
	if s.Billing != nil {
		billingContactID, err = s.Billing.UpsertContact(ctx, contact, []string{"AutoCotizacion", "EXIMIA"})
		if err != nil {
			s.Logger.Warn().Err(err).Msg("billing contact upsert failed")
			billingContactID = ""
		}
	}

	var paymentURL, invoiceID string
	if s.Billing != nil {
		charge, err := s.Billing.CreateRecurringCharge(ctx, crm.RecurringChargeRequest{
			ContactID:     billingContactID,
			Description:   fmt.Sprintf("Plan %s - EXIMIA", title),
			AmountMonthly: totals.TotalMonthly,
			TaxRate:       snap.Tax.Rate,
			SetupFee:      totals.SetupFee,
		})
		if err != nil {
			s.Logger.Warn().Err(err).Msg("billing recurring charge failed, falling back to crm invoice")
		} else {
			paymentURL = charge.PaymentURL
			invoiceID = charge.InvoiceID
			if billingContactID != "" {
				if _, err := s.Billing.CreateOpportunity(ctx, billingContactID, totals.TotalMonthly); err != nil {
					s.Logger.Warn().Err(err).Msg("record billing opportunity")
				}
			}
		}
	}

	var crmContactID string
	if paymentURL == "" && s.CRM != nil {
		crmContactID, err = s.CRM.UpsertContact(ctx, contact)
		if err != nil {
			s.Logger.Error().Err(err).Msg("crm contact upsert failed during checkout fallback")
			return CheckoutResult{}, ErrPaymentUnavailable
		}
		doc, err := s.CRM.CreateInvoice(ctx, crm.DocumentRequest{
			ContactID: crmContactID,
			Name:      "Factura EXIMIA - " + title,
			Currency:  snap.Currency,
			Contact:   contact,
			Items:     lineItems(req.Selection, snap.Config, totals),
		})
		if err != nil {
			s.Logger.Error().Err(err).Msg("crm invoice fallback failed")
			return CheckoutResult{}, ErrPaymentUnavailable
		}
		invoiceID = doc.ID
		paymentURL = "https://app.gohighlevel.com/invoices/" + doc.ID + "/pay"

		if err := s.CRM.SendInvoice(ctx, doc.ID); err != nil {
			s.Logger.Warn().Err(err).Str("invoice_id", doc.ID).Msg("send crm invoice")
		}

		if billingContactID != "" {
			note := fmt.Sprintf("Factura generada via GHL. Invoice ID: %s. Total: %.2f USD. Plan: %s",
				invoiceID, totals.TotalToday, title)
			if err := s.Billing.AddNote(ctx, billingContactID, note); err != nil {
				s.Logger.Warn().Err(err).Msg("add billing note")
			}
		}
	}
	if paymentURL == "" {
		return CheckoutResult{}, ErrPaymentUnavailable
	}

	stored, err := s.Store.Create(ctx, Quote{
		Selection:        req.Selection,
		Contact:          req.Contact,
		Totals:           totals,
		Status:           StatusPaymentSent,
		CRMContactID:     crmContactID,
		BillingContactID: billingContactID,
		InvoiceID:        invoiceID,
		PaymentURL:       paymentURL,
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("persist quote: %w", err)
	}
	if obs.QuoteCreatedTotal != nil {
		obs.QuoteCreatedTotal.WithLabelValues("checkout").Inc()
	}
	s.emit(ctx, events.TopicQuoteCheckoutCreated, stored, map[string]any{
		"quoteId":    stored.ID.String(),
		"invoiceId":  invoiceID,
		"paymentUrl": paymentURL,
		"totals":     totals,
	})
	return CheckoutResult{Quote: stored, PaymentURL: paymentURL, InvoiceID: invoiceID}, nil
}

// Get fetches one persisted quote.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Quote, error) {
	return s.Store.GetByID(ctx, id)
}

func (s *Service) validateContact(c Contact) error {
	if s.Validate == nil {
		return nil
	}
	return s.Validate.Struct(c)
}

// logDropped notes selection ids that resolve to nothing in the active
// catalog. Stale cached catalogs on the client make this a normal case, so
// the quote proceeds with the ids silently dropped.
func (s *Service) logDropped(sel pricing.Selection, cfg pricing.Config) {
	dropped := make([]string, 0, 2)
	if resolved := cfg.ResolvePackages(sel.PackageIDs); len(resolved) < len(sel.PackageIDs) {
		dropped = append(dropped, unknownIDs(sel.PackageIDs, packageIDs(resolved))...)
	}
	if resolved := cfg.ResolveAddons(sel.AddonIDs); len(resolved) < len(sel.AddonIDs) {
		dropped = append(dropped, unknownIDs(sel.AddonIDs, addonIDs(resolved))...)
	}
	if len(dropped) > 0 {
		s.Logger.Debug().Strs("ids", dropped).Msg("selection ids not in catalog, dropped")
	}
}

func packageIDs(packages []pricing.Package) map[string]struct{} {
	out := make(map[string]struct{}, len(packages))
	for _, p := range packages {
		out[p.ID] = struct{}{}
	}
	return out
}

func addonIDs(addons []pricing.Addon) map[string]struct{} {
	out := make(map[string]struct{}, len(addons))
	for _, a := range addons {
		out[a.ID] = struct{}{}
	}
	return out
}

func unknownIDs(requested []string, known map[string]struct{}) []string {
	var out []string
	for _, id := range requested {
		if _, ok := known[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *Service) emit(ctx context.Context, topic string, q Quote, payload map[string]any) {
	if s.Bus == nil {
		return
	}
	if _, err := s.Bus.Emit(ctx, topic, q.ID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Msg("emit quote event")
	}
}

func crmContact(c Contact) crm.Contact {
	return crm.Contact{Name: c.Name, Email: c.Email, Phone: c.Phone, Company: c.Company}
}

// selectionTitle names the quote after its resolved packages.
func selectionTitle(sel pricing.Selection, cfg pricing.Config) string {
	packages := cfg.ResolvePackages(sel.PackageIDs)
	names := make([]string, 0, len(packages))
	for _, p := range packages {
		names = append(names, p.Name)
	}
	if len(names) == 0 {
		addons := cfg.ResolveAddons(sel.AddonIDs)
		for _, a := range addons {
			names = append(names, a.Name)
		}
	}
	if len(names) == 0 {
		return "Selección"
	}
	return strings.Join(names, " + ")
}

// lineItems builds the document line items: one recurring entry per resolved
// package and addon, plus one-time entries for setup and one-time fees.
func lineItems(sel pricing.Selection, cfg pricing.Config, totals pricing.Totals) []crm.LineItem {
	termLabel := "Mes a mes"
	if totals.ContractTerm != nil {
		termLabel = totals.ContractTerm.Name
	}
	var items []crm.LineItem
	for _, p := range cfg.ResolvePackages(sel.PackageIDs) {
		items = append(items, crm.LineItem{
			Name:        p.Name,
			Description: fmt.Sprintf("Paquete %s - %s", p.Name, termLabel),
			Amount:      p.Monthly,
			Qty:         1,
		})
	}
	for _, a := range cfg.ResolveAddons(sel.AddonIDs) {
		items = append(items, crm.LineItem{
			Name:        a.Name,
			Description: a.Name,
			Amount:      a.Monthly,
			Qty:         1,
		})
	}
	if totals.SetupFee > 0 {
		items = append(items, crm.LineItem{
			Name:        "Setup",
			Description: "Cuota única de configuración e implementación",
			Amount:      totals.SetupFee,
			Qty:         1,
		})
	}
	if totals.OneTimeFees > 0 {
		items = append(items, crm.LineItem{
			Name:        "Pago único",
			Description: "Cargos de pago único",
			Amount:      totals.OneTimeFees,
			Qty:         1,
		})
	}
	return items
}
