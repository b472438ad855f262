package catalog

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eximia-labs/backend-quotes/internal/pricing"
)

func TestNormalizeDefaults(t *testing.T) {
	out := Normalize(pricing.Config{})
	require.Equal(t, "USD", out.Currency)
	require.Equal(t, pricing.DefaultBaseTermID, out.BaseTermID)
	require.Len(t, out.ContractTerms, 1)
	require.Equal(t, pricing.DefaultBaseTermID, out.ContractTerms[0].ID)
	require.Equal(t, 1, out.ContractTerms[0].Months)
}

func TestNormalizeClampsPrices(t *testing.T) {
	out := Normalize(pricing.Config{
		SetupFee: pricing.SetupFee{Enabled: true, Amount: -50},
		Packages: []pricing.Package{
			{ID: "a", Monthly: math.NaN(), OneTime: -10},
			{ID: "b", Monthly: math.Inf(1)},
		},
		Addons: []pricing.Addon{{ID: "x", Monthly: -1}},
	})
	require.Zero(t, out.SetupFee.Amount)
	require.Zero(t, out.Packages[0].Monthly)
	require.Zero(t, out.Packages[0].OneTime)
	require.Zero(t, out.Packages[1].Monthly)
	require.Zero(t, out.Addons[0].Monthly)
}

func TestNormalizeClampsRates(t *testing.T) {
	out := Normalize(pricing.Config{
		Tax: pricing.Tax{Enabled: true, Rate: 1.5},
		ContractTerms: []pricing.ContractTerm{
			{ID: "1month", Months: 1},
			{ID: "12month", Months: 12, Discount: -0.2},
			{ID: "24month", Months: 24, Discount: 1},
		},
	})
	require.Equal(t, 0.99, out.Tax.Rate)
	require.Zero(t, out.ContractTerms[1].Discount)
	require.Equal(t, 0.99, out.ContractTerms[2].Discount)
}

func TestNormalizeDedupesFirstWins(t *testing.T) {
	out := Normalize(pricing.Config{
		Packages: []pricing.Package{
			{ID: "starter", Monthly: 197},
			{ID: "starter", Monthly: 999},
			{ID: " ", Monthly: 5},
		},
		ContractTerms: []pricing.ContractTerm{
			{ID: "1month", Months: 1},
			{ID: "1month", Months: 2},
		},
	})
	require.Len(t, out.Packages, 1)
	require.Equal(t, 197.0, out.Packages[0].Monthly)
	require.Len(t, out.ContractTerms, 1)
	require.Equal(t, 1, out.ContractTerms[0].Months)
}

func TestNormalizePrependsMissingBaseTerm(t *testing.T) {
	out := Normalize(pricing.Config{
		ContractTerms: []pricing.ContractTerm{{ID: "12month", Months: 12, Discount: 0.2}},
	})
	require.Len(t, out.ContractTerms, 2)
	require.Equal(t, pricing.DefaultBaseTermID, out.ContractTerms[0].ID)
	require.Equal(t, "12month", out.ContractTerms[1].ID)
}

func TestNormalizeRespectsCustomBaseTerm(t *testing.T) {
	out := Normalize(pricing.Config{
		BaseTermID:    "monthly",
		ContractTerms: []pricing.ContractTerm{{ID: "monthly", Months: 1}},
	})
	require.Equal(t, "monthly", out.BaseTermID)
	require.Len(t, out.ContractTerms, 1)
}

func TestNormalizeMinimumMonths(t *testing.T) {
	out := Normalize(pricing.Config{
		ContractTerms: []pricing.ContractTerm{{ID: "1month", Months: 0}},
	})
	require.Equal(t, 1, out.ContractTerms[0].Months)
}
