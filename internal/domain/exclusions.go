package domain

// defaultExclusions is the standard carve-out catalogue every fresh feedback
// starts from. Underwriters trim or extend it per deal.
var defaultExclusions = []string{
	"Known matters and matters fairly disclosed",
	"Purchase price adjustments and leakage",
	"Forward-looking statements and projections",
	"Pension underfunding",
	"Transfer pricing",
	"Secondary tax liabilities",
	"Environmental contamination",
	"Anti-bribery and corruption",
	"Sanctions and export controls",
	"Cyber incidents and data loss",
	"Condition of physical assets",
	"Product liability and recall",
}

// DefaultExclusions returns a fresh copy of the standard exclusion catalogue.
func DefaultExclusions() []string {
	exclusions := make([]string, len(defaultExclusions))
	copy(exclusions, defaultExclusions)
	return exclusions
}
