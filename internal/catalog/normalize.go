// Package catalog assembles the pricing configuration the engine consumes:
// a static fallback file merged with the remote CRM product list, normalized
// into one stable shape and cached per TTL.
package catalog

import (
	"math"
	"strings"

	"github.com/eximia-labs/backend-quotes/internal/pricing"
)

// Normalize coerces a raw pricing configuration into the shape the engine
// trusts: no NaN or negative prices, discount rates inside [0,1), months at
// least 1, unique ids (first declaration wins), and a guaranteed base term.
func Normalize(cfg pricing.Config) pricing.Config {
	out := cfg
	if strings.TrimSpace(out.Currency) == "" {
		out.Currency = "USD"
	}
	if strings.TrimSpace(out.BaseTermID) == "" {
		out.BaseTermID = pricing.DefaultBaseTermID
	}
	out.Tax.Rate = clampRate(out.Tax.Rate)
	out.SetupFee.Amount = clampPrice(out.SetupFee.Amount)

	seen := make(map[string]struct{})
	packages := make([]pricing.Package, 0, len(cfg.Packages))
	for _, p := range cfg.Packages {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p.ID = id
		p.Monthly = clampPrice(p.Monthly)
		p.OneTime = clampPrice(p.OneTime)
		packages = append(packages, p)
	}
	out.Packages = packages

	seen = make(map[string]struct{})
	addons := make([]pricing.Addon, 0, len(cfg.Addons))
	for _, a := range cfg.Addons {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		a.ID = id
		a.Monthly = clampPrice(a.Monthly)
		a.OneTime = clampPrice(a.OneTime)
		addons = append(addons, a)
	}
	out.Addons = addons

	seen = make(map[string]struct{})
	terms := make([]pricing.ContractTerm, 0, len(cfg.ContractTerms))
	hasBase := false
	for _, t := range cfg.ContractTerms {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		t.ID = id
		t.Discount = clampRate(t.Discount)
		if t.Months < 1 {
			t.Months = 1
		}
		if t.ID == out.BaseTermID {
			hasBase = true
		}
		terms = append(terms, t)
	}
	if !hasBase {
		terms = append([]pricing.ContractTerm{{
			ID:     out.BaseTermID,
			Name:   "1 month",
			Months: 1,
		}}, terms...)
	}
	out.ContractTerms = terms
	return out
}

func clampPrice(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// clampRate keeps discount/tax rates inside [0, 1). A rate of exactly 1 would
// make a subscription free, which is always a data entry error.
func clampRate(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	if v >= 1 {
		return 0.99
	}
	return v
}
