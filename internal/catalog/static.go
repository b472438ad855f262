package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/eximia-labs/backend-quotes/internal/pricing"
)

// LoadStatic reads the static pricing configuration from the first path that
// exists. The returned configuration is already normalized.
func LoadStatic(paths ...string) (pricing.Config, error) {
	var lastErr error
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		var cfg pricing.Config
		if err := json.Unmarshal(data, &cfg); err != nil {
			lastErr = fmt.Errorf("parse %s: %w", path, err)
			continue
		}
		return Normalize(cfg), nil
	}
	if lastErr == nil {
		lastErr = os.ErrNotExist
	}
	return pricing.Config{}, fmt.Errorf("load static pricing config: %w", lastErr)
}

// DefaultStatic returns the built-in configuration used when no pricing file
// is present at all. It carries no products, only the structural defaults.
func DefaultStatic() pricing.Config {
	return Normalize(pricing.Config{
		Currency:               "USD",
		CollectFirstMonthToday: true,
		SetupFee:               pricing.SetupFee{Enabled: false, Amount: 199},
		ContractTerms: []pricing.ContractTerm{
			{ID: pricing.DefaultBaseTermID, Name: "1 month", Months: 1, Discount: 0},
		},
	})
}
