package domain

import "testing"

func TestDeriveFeedbackPricingCrossProduct(t *testing.T) {
	pricing := SubmissionPricing{
		Currency:        "GBP",
		EnterpriseValue: 250_000_000_00,
		Limits: []PricingBand{
			{Percentage: 10, Enabled: true},
			{Percentage: 20, Enabled: true},
			{Percentage: 30, Enabled: false},
		},
		Retentions: []PricingBand{
			{Percentage: 0.5, Enabled: true},
			{Percentage: 1, Enabled: false},
			{Percentage: 2, Enabled: true},
		},
	}

	derived := DeriveFeedbackPricing(pricing)

	if derived.Currency != "GBP" {
		t.Fatalf("expected currency GBP, got %s", derived.Currency)
	}
	if len(derived.Options) != 4 {
		t.Fatalf("expected 2x2 grid, got %d options", len(derived.Options))
	}

	seen := map[[2]float64]bool{}
	for _, opt := range derived.Options {
		if opt.Premium != 0 {
			t.Fatal("derived premiums must be zero")
		}
		seen[[2]float64{opt.LimitPercentage, opt.RetentionPercentage}] = true
	}
	for _, want := range [][2]float64{{10, 0.5}, {10, 2}, {20, 0.5}, {20, 2}} {
		if !seen[want] {
			t.Fatalf("missing grid cell limit %.1f retention %.1f", want[0], want[1])
		}
	}
}

func TestDeriveFeedbackPricingEmptyBands(t *testing.T) {
	derived := DeriveFeedbackPricing(SubmissionPricing{Currency: "EUR"})
	if len(derived.Options) != 0 {
		t.Fatalf("expected empty grid, got %d options", len(derived.Options))
	}
}

func TestDefaultSubmissionPricingBandsEnabled(t *testing.T) {
	pricing := DefaultSubmissionPricing()
	if len(pricing.EnabledLimits()) == 0 {
		t.Fatal("default pricing must enable at least one limit band")
	}
	if len(pricing.EnabledRetentions()) == 0 {
		t.Fatal("default pricing must enable at least one retention band")
	}
}
