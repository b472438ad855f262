package catalog

import (
	"context"

	"github.com/eximia-labs/backend-quotes/internal/pricing"
)

// Product is a normalized entry from the remote CRM product listing. Prices
// arrive in minor units and are converted to currency units during merge.
type Product struct {
	ID          string
	Name        string
	Description string
	Type        string
	PriceCents  int64
	PriceID     string
}

// Remote product types mapped onto the catalog shape.
const (
	ProductTypeService = "SERVICE"
	ProductTypeDigital = "DIGITAL"
)

// ProductSource lists products from the remote catalog (CRM).
type ProductSource interface {
	ListProducts(ctx context.Context) ([]Product, error)
}

// merge lays the remote product listing over the static configuration.
// Structural settings (currency, tax, setup fee, contract terms) always come
// from the static config; packages and addons are replaced per kind when the
// remote listing provides at least one entry of that kind.
func merge(static pricing.Config, products []Product) pricing.Config {
	var packages []pricing.Package
	var addons []pricing.Addon
	for _, p := range products {
		switch p.Type {
		case ProductTypeService:
			packages = append(packages, pricing.Package{
				ID:      p.ID,
				Name:    p.Name,
				Monthly: float64(p.PriceCents) / 100,
			})
		case ProductTypeDigital:
			addons = append(addons, pricing.Addon{
				ID:      p.ID,
				Name:    p.Name,
				Monthly: float64(p.PriceCents) / 100,
			})
		}
	}
	merged := static
	if len(packages) > 0 {
		merged.Packages = packages
	}
	if len(addons) > 0 {
		merged.Addons = addons
	}
	return Normalize(merged)
}
