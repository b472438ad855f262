// Package pricing implements the quote totals engine. It is deliberately
// dependency-free and side-effect-free so the same computation can back both
// the live preview endpoint and the authoritative quote persistence path.
package pricing

import (
	"errors"
	"math"
)

// ErrEmptySelection is returned when neither a package nor an addon resolves
// against the catalog. Callers must treat it as "nothing chosen", not as a
// zero-cost quote.
var ErrEmptySelection = errors.New("pricing: empty selection")

// DefaultBaseTermID is the no-commitment contract term. The setup fee only
// applies to this term.
const DefaultBaseTermID = "1month"

// Package is a purchasable plan. A missing price is represented as 0.
type Package struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Monthly    float64  `json:"monthly,omitempty"`
	OneTime    float64  `json:"oneTime,omitempty"`
	HasAI      bool     `json:"hasAI,omitempty"`
	BundleWith []string `json:"bundleWith,omitempty"`
}

// Addon is an optional extra attached to the selection. The Requires* flags
// are eligibility predicates evaluated by the Selector, not by the engine.
type Addon struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Monthly              float64 `json:"monthly,omitempty"`
	OneTime              float64 `json:"oneTime,omitempty"`
	RequiresAnyPackage   bool    `json:"requiresAnyPackage,omitempty"`
	RequiresNonAIPackage bool    `json:"requiresNonAIPackage,omitempty"`
}

// ContractTerm is a commitment length with an associated discount rate.
type ContractTerm struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Months   int     `json:"months"`
	Discount float64 `json:"discount"`
}

// Tax holds the flat tax settings applied to the discounted monthly subtotal.
type Tax struct {
	Enabled bool    `json:"enabled"`
	Rate    float64 `json:"rate"`
}

// SetupFee holds the one-time onboarding fee settings.
type SetupFee struct {
	Enabled bool    `json:"enabled"`
	Amount  float64 `json:"amount"`
}

// Config is an immutable catalog snapshot passed by the caller. The engine
// never mutates it.
type Config struct {
	Currency               string         `json:"currency"`
	CollectFirstMonthToday bool           `json:"collectFirstMonthToday"`
	Tax                    Tax            `json:"tax"`
	SetupFee               SetupFee       `json:"setupFee"`
	BaseTermID             string         `json:"baseTermId,omitempty"`
	Packages               []Package      `json:"packages"`
	Addons                 []Addon        `json:"addons"`
	ContractTerms          []ContractTerm `json:"contractTerms"`
}

// Selection is the caller-supplied input. Unknown ids are dropped leniently
// so stale client-cached catalogs do not break quoting.
type Selection struct {
	PackageIDs     []string `json:"packageIds"`
	AddonIDs       []string `json:"addonIds"`
	ContractTermID string   `json:"contractTerm"`
}

// Totals is the itemized monetary breakdown of one computation. All money
// fields are rounded to two decimals.
type Totals struct {
	SubtotalMonthly    float64       `json:"subtotalMonthly"`
	DiscountedSubtotal float64       `json:"discountedSubtotal"`
	Discount           float64       `json:"discount"`
	DiscountPercentage int           `json:"discountPercentage"`
	TaxMonthly         float64       `json:"taxMonthly"`
	SetupFee           float64       `json:"setupFee"`
	OneTimeFees        float64       `json:"oneTimeFees"`
	TotalToday         float64       `json:"totalToday"`
	TotalMonthly       float64       `json:"totalMonthly"`
	ContractTerm       *ContractTerm `json:"contractTerm,omitempty"`
}

// epsilon mirrors the machine epsilon nudge the historical implementations
// applied before rounding to counter binary float representation error.
var epsilon = math.Nextafter(1, 2) - 1

// Round2 rounds a monetary value to two decimals, half away from zero, after
// the epsilon nudge: round((v + eps) * 100) / 100. Displayed totals depend on
// this exact rule.
func Round2(v float64) float64 {
	return math.Round((v+epsilon)*100) / 100
}

// ComputeTotals calculates the full breakdown for the selection against the
// catalog snapshot. It is pure: identical inputs yield bit-identical Totals.
func ComputeTotals(sel Selection, cfg Config) (Totals, error) {
	packages := resolvePackages(sel.PackageIDs, cfg.Packages)
	addons := resolveAddons(sel.AddonIDs, cfg.Addons)
	if len(packages) == 0 && len(addons) == 0 {
		return Totals{}, ErrEmptySelection
	}

	termID := sel.ContractTermID
	if termID == "" {
		termID = cfg.baseTermID()
	}
	term := findTerm(cfg.ContractTerms, termID)

	var packagesMonthly, addonsMonthly float64
	var packagesOneTime, addonsOneTime float64
	for _, p := range packages {
		packagesMonthly += sanitize(p.Monthly)
		packagesOneTime += sanitize(p.OneTime)
	}
	for _, a := range addons {
		addonsMonthly += sanitize(a.Monthly)
		addonsOneTime += sanitize(a.OneTime)
	}
	subtotalMonthly := packagesMonthly + addonsMonthly
	oneTimeFees := packagesOneTime + addonsOneTime

	var discountRate float64
	if term != nil {
		discountRate = term.Discount
	}
	discountedSubtotal := subtotalMonthly * (1 - discountRate)
	taxMonthly := 0.0
	if cfg.Tax.Enabled {
		taxMonthly = discountedSubtotal * cfg.Tax.Rate
	}
	totalMonthly := discountedSubtotal + taxMonthly

	// Setup fee only applies on the base no-commitment term, and a one-time
	// payment package waives it entirely. The requested term id is compared,
	// not the resolved term, matching historical behavior for unknown ids.
	setupFee := 0.0
	if cfg.SetupFee.Enabled && packagesOneTime == 0 && termID == cfg.baseTermID() {
		setupFee = cfg.SetupFee.Amount
	}

	totalToday := setupFee + oneTimeFees
	if cfg.CollectFirstMonthToday {
		totalToday += totalMonthly
	}

	return Totals{
		SubtotalMonthly:    Round2(subtotalMonthly),
		DiscountedSubtotal: Round2(discountedSubtotal),
		Discount:           Round2(subtotalMonthly - discountedSubtotal),
		DiscountPercentage: int(math.Round(discountRate * 100)),
		TaxMonthly:         Round2(taxMonthly),
		SetupFee:           Round2(setupFee),
		OneTimeFees:        Round2(oneTimeFees),
		TotalToday:         Round2(totalToday),
		TotalMonthly:       Round2(totalMonthly),
		ContractTerm:       term,
	}, nil
}

func (c Config) baseTermID() string {
	if c.BaseTermID != "" {
		return c.BaseTermID
	}
	return DefaultBaseTermID
}

// FindPackage returns the catalog package with the given id, if any.
func (c Config) FindPackage(id string) (Package, bool) {
	for _, p := range c.Packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// FindAddon returns the catalog addon with the given id, if any.
func (c Config) FindAddon(id string) (Addon, bool) {
	for _, a := range c.Addons {
		if a.ID == id {
			return a, true
		}
	}
	return Addon{}, false
}

// ResolvePackages maps ids to catalog packages, silently dropping unknowns.
func (c Config) ResolvePackages(ids []string) []Package {
	return resolvePackages(ids, c.Packages)
}

// ResolveAddons maps ids to catalog addons, silently dropping unknowns.
func (c Config) ResolveAddons(ids []string) []Addon {
	return resolveAddons(ids, c.Addons)
}

func resolvePackages(ids []string, catalog []Package) []Package {
	out := make([]Package, 0, len(ids))
	for _, id := range ids {
		for _, p := range catalog {
			if p.ID == id {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func resolveAddons(ids []string, catalog []Addon) []Addon {
	out := make([]Addon, 0, len(ids))
	for _, id := range ids {
		for _, a := range catalog {
			if a.ID == id {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

func findTerm(terms []ContractTerm, id string) *ContractTerm {
	for _, t := range terms {
		if t.ID == id {
			copied := t
			return &copied
		}
	}
	return nil
}

// sanitize defends against malformed numeric inputs that slipped past
// normalization. Missing or invalid prices are treated as 0, never an error.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
