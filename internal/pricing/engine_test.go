package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Currency:               "USD",
		CollectFirstMonthToday: true,
		Tax:                    Tax{Enabled: false},
		SetupFee:               SetupFee{Enabled: true, Amount: 99},
		Packages: []Package{
			{ID: "starter", Name: "Starter", Monthly: 197},
			{ID: "pro", Name: "Pro", Monthly: 497, HasAI: true},
			{ID: "site", Name: "Website", OneTime: 500},
		},
		Addons: []Addon{
			{ID: "whatsapp", Name: "WhatsApp", Monthly: 49},
			{ID: "ads", Name: "Ads", Monthly: 299, OneTime: 150},
		},
		ContractTerms: []ContractTerm{
			{ID: "1month", Name: "1 month", Months: 1, Discount: 0},
			{ID: "6month", Name: "6 months", Months: 6, Discount: 0.10},
			{ID: "12month", Name: "12 months", Months: 12, Discount: 0.20},
		},
	}
}

func TestComputeTotalsBaseTermWithSetupFee(t *testing.T) {
	totals, err := ComputeTotals(Selection{PackageIDs: []string{"starter"}}, testConfig())
	require.NoError(t, err)
	require.Equal(t, 197.00, totals.SubtotalMonthly)
	require.Equal(t, 99.00, totals.SetupFee)
	require.Equal(t, 197.00, totals.TotalMonthly)
	require.Equal(t, 296.00, totals.TotalToday)
	require.Equal(t, 0, totals.DiscountPercentage)
	require.NotNil(t, totals.ContractTerm)
	require.Equal(t, "1month", totals.ContractTerm.ID)
}

func TestComputeTotalsDiscountedTermWaivesSetupFee(t *testing.T) {
	sel := Selection{
		PackageIDs:     []string{"starter"},
		AddonIDs:       []string{"whatsapp"},
		ContractTermID: "6month",
	}
	totals, err := ComputeTotals(sel, testConfig())
	require.NoError(t, err)
	require.Equal(t, 246.00, totals.SubtotalMonthly)
	require.Equal(t, 221.40, totals.DiscountedSubtotal)
	require.Equal(t, 24.60, totals.Discount)
	require.Equal(t, 10, totals.DiscountPercentage)
	require.Equal(t, 0.00, totals.SetupFee)
	require.Equal(t, 221.40, totals.TotalMonthly)
	require.Equal(t, 221.40, totals.TotalToday)
}

func TestComputeTotalsOneTimePackageWaivesSetupFee(t *testing.T) {
	cfg := testConfig()
	for _, termID := range []string{"1month", "6month", "12month"} {
		sel := Selection{PackageIDs: []string{"site"}, ContractTermID: termID}
		totals, err := ComputeTotals(sel, cfg)
		require.NoError(t, err)
		require.Equal(t, 0.00, totals.SetupFee, "term %s", termID)
		require.Equal(t, 500.00, totals.OneTimeFees)
		require.Equal(t, 500.00, totals.TotalToday)
	}
}

func TestComputeTotalsEmptySelection(t *testing.T) {
	_, err := ComputeTotals(Selection{}, testConfig())
	require.ErrorIs(t, err, ErrEmptySelection)

	// Unknown ids resolve to nothing and count as empty.
	_, err = ComputeTotals(Selection{PackageIDs: []string{"ghost"}, AddonIDs: []string{"phantom"}}, testConfig())
	require.ErrorIs(t, err, ErrEmptySelection)
}

func TestComputeTotalsUnknownTermDefaultsToNoDiscount(t *testing.T) {
	sel := Selection{PackageIDs: []string{"starter"}, ContractTermID: "24month"}
	totals, err := ComputeTotals(sel, testConfig())
	require.NoError(t, err)
	require.Nil(t, totals.ContractTerm)
	require.Equal(t, 0, totals.DiscountPercentage)
	require.Equal(t, 197.00, totals.SubtotalMonthly)
	require.Equal(t, 197.00, totals.DiscountedSubtotal)
	// Non-base term id, even unknown, never charges the setup fee.
	require.Equal(t, 0.00, totals.SetupFee)
}

func TestComputeTotalsUnknownIDsSilentlyDropped(t *testing.T) {
	sel := Selection{PackageIDs: []string{"starter", "ghost"}, AddonIDs: []string{"whatsapp", "phantom"}}
	totals, err := ComputeTotals(sel, testConfig())
	require.NoError(t, err)
	require.Equal(t, 246.00, totals.SubtotalMonthly)
}

func TestComputeTotalsTaxAppliedToDiscountedSubtotal(t *testing.T) {
	cfg := testConfig()
	cfg.Tax = Tax{Enabled: true, Rate: 0.115}
	sel := Selection{PackageIDs: []string{"starter"}, ContractTermID: "12month"}
	totals, err := ComputeTotals(sel, cfg)
	require.NoError(t, err)
	require.Equal(t, 157.60, totals.DiscountedSubtotal)
	require.Equal(t, Round2(157.6*0.115), totals.TaxMonthly)
	require.Equal(t, Round2(157.6+157.6*0.115), totals.TotalMonthly)
}

func TestComputeTotalsFirstMonthNotCollected(t *testing.T) {
	cfg := testConfig()
	cfg.CollectFirstMonthToday = false
	totals, err := ComputeTotals(Selection{PackageIDs: []string{"starter"}}, cfg)
	require.NoError(t, err)
	require.Equal(t, 99.00, totals.TotalToday)
	require.Equal(t, 197.00, totals.TotalMonthly)
}

func TestComputeTotalsAddonOnlySelection(t *testing.T) {
	totals, err := ComputeTotals(Selection{AddonIDs: []string{"whatsapp"}}, testConfig())
	require.NoError(t, err)
	require.Equal(t, 49.00, totals.SubtotalMonthly)
}

func TestComputeTotalsIdempotent(t *testing.T) {
	sel := Selection{PackageIDs: []string{"starter", "pro"}, AddonIDs: []string{"ads"}, ContractTermID: "6month"}
	cfg := testConfig()
	first, err := ComputeTotals(sel, cfg)
	require.NoError(t, err)
	second, err := ComputeTotals(sel, cfg)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestComputeTotalsAdditivity(t *testing.T) {
	cfg := testConfig()
	base, err := ComputeTotals(Selection{PackageIDs: []string{"starter"}}, cfg)
	require.NoError(t, err)
	withAddon, err := ComputeTotals(Selection{PackageIDs: []string{"starter"}, AddonIDs: []string{"whatsapp"}}, cfg)
	require.NoError(t, err)
	require.Equal(t, Round2(base.TotalMonthly+49), withAddon.TotalMonthly)
}

func TestComputeTotalsDiscountBounds(t *testing.T) {
	cfg := testConfig()
	for _, rate := range []float64{0, 0.05, 0.33, 0.5, 0.99} {
		cfg.ContractTerms = []ContractTerm{{ID: "x", Months: 6, Discount: rate}}
		totals, err := ComputeTotals(Selection{PackageIDs: []string{"starter"}, ContractTermID: "x"}, cfg)
		require.NoError(t, err)
		require.GreaterOrEqual(t, totals.DiscountedSubtotal, 0.0)
		require.LessOrEqual(t, totals.DiscountedSubtotal, totals.SubtotalMonthly)
		require.Equal(t, Round2(totals.SubtotalMonthly-totals.DiscountedSubtotal), totals.Discount)
	}
}

func TestComputeTotalsMalformedPricesTreatedAsZero(t *testing.T) {
	cfg := testConfig()
	cfg.Packages = append(cfg.Packages, Package{ID: "broken", Monthly: -10})
	totals, err := ComputeTotals(Selection{PackageIDs: []string{"broken"}}, cfg)
	require.NoError(t, err)
	require.Equal(t, 0.00, totals.SubtotalMonthly)
}

func TestRound2Stability(t *testing.T) {
	values := []float64{0, 0.005, 1.005, 2.675, 197, 221.39999999999998, 246.00000000000003, 999999.995}
	for _, v := range values {
		once := Round2(v)
		require.Equal(t, once, Round2(once), "value %v", v)
	}
}

func TestRound2MatchesHistoricalRule(t *testing.T) {
	// 1.005 famously rounds down without the epsilon nudge.
	require.Equal(t, 1.01, Round2(1.005))
	require.Equal(t, 2.68, Round2(2.675))
	require.Equal(t, 221.40, Round2(246*0.9))
}
