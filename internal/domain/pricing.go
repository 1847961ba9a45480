package domain

// PricingBand is one limit or retention option expressed as a percentage of
// the enterprise value. Disabled bands stay on the submission for reference
// but are excluded from the derived feedback pricing grid.
type PricingBand struct {
	Percentage float64
	Enabled    bool
}

// SubmissionPricing captures the broker-proposed pricing assumptions:
// enterprise value in minor currency units plus limit and retention bands.
type SubmissionPricing struct {
	Currency        string
	EnterpriseValue int64
	Limits          []PricingBand
	Retentions      []PricingBand
}

// DefaultSubmissionPricing returns the band layout a fresh draft starts with.
func DefaultSubmissionPricing() SubmissionPricing {
	return SubmissionPricing{
		Currency:        "EUR",
		EnterpriseValue: 0,
		Limits: []PricingBand{
			{Percentage: 10, Enabled: true},
			{Percentage: 20, Enabled: true},
			{Percentage: 30, Enabled: true},
			{Percentage: 50, Enabled: false},
		},
		Retentions: []PricingBand{
			{Percentage: 0.5, Enabled: true},
			{Percentage: 1, Enabled: true},
			{Percentage: 2, Enabled: false},
		},
	}
}

// EnabledLimits returns the limit bands that participate in pricing.
func (p SubmissionPricing) EnabledLimits() []PricingBand {
	return enabledBands(p.Limits)
}

// EnabledRetentions returns the retention bands that participate in pricing.
func (p SubmissionPricing) EnabledRetentions() []PricingBand {
	return enabledBands(p.Retentions)
}

func enabledBands(bands []PricingBand) []PricingBand {
	var enabled []PricingBand
	for _, b := range bands {
		if b.Enabled {
			enabled = append(enabled, b)
		}
	}
	return enabled
}

// FeedbackPricingOption is one priced cell of the limit x retention grid.
type FeedbackPricingOption struct {
	LimitPercentage     float64
	RetentionPercentage float64
	Premium             int64
}

// FeedbackPricing is the insurer-priced counter-offer: the option grid plus fees.
type FeedbackPricing struct {
	Currency           string
	Options            []FeedbackPricingOption
	BrokerageFeePct    float64
	UnderwritingFee    int64
	MinimumPremiumFlat int64
}

// DeriveFeedbackPricing builds the blank pricing grid an insurer starts from:
// the cross product of the submission's enabled limit and retention bands,
// every premium zero until the underwriter fills it in.
func DeriveFeedbackPricing(pricing SubmissionPricing) FeedbackPricing {
	limits := pricing.EnabledLimits()
	retentions := pricing.EnabledRetentions()

	options := make([]FeedbackPricingOption, 0, len(limits)*len(retentions))
	for _, limit := range limits {
		for _, retention := range retentions {
			options = append(options, FeedbackPricingOption{
				LimitPercentage:     limit.Percentage,
				RetentionPercentage: retention.Percentage,
			})
		}
	}

	return FeedbackPricing{
		Currency: pricing.Currency,
		Options:  options,
	}
}
