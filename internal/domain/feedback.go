package domain

import (
	"fmt"
	"strings"
	"time"
)

// FeedbackStatus is the explicit workflow state of an insurer's feedback.
// Submitted and declined are mutually exclusive by construction.
type FeedbackStatus string

const (
	// FeedbackStatusDraft is the initial state after the broker submits the deal.
	FeedbackStatusDraft FeedbackStatus = "draft"
	// FeedbackStatusSubmitted means the insurer returned a priced offer.
	FeedbackStatusSubmitted FeedbackStatus = "submitted"
	// FeedbackStatusDeclined means the insurer passed on the deal.
	FeedbackStatusDeclined FeedbackStatus = "declined"
)

// CoveragePosition is the insurer's stance on one warranty clause.
type CoveragePosition string

const (
	// CoveragePending means the underwriter has not taken a position yet.
	CoveragePending CoveragePosition = "pending"
	// CoverageCovered means the clause is fully covered.
	CoverageCovered CoveragePosition = "covered"
	// CoveragePartial means the clause is covered with carve-backs.
	CoveragePartial CoveragePosition = "partial"
	// CoverageExcluded means the clause is excluded from cover.
	CoverageExcluded CoveragePosition = "excluded"
)

// KnowledgeScrape grades how far the clause is qualified by deal-team knowledge.
type KnowledgeScrape string

const (
	// ScrapeNone leaves the clause unqualified.
	ScrapeNone KnowledgeScrape = "none"
	// ScrapePartial scrapes knowledge qualifiers from part of the clause.
	ScrapePartial KnowledgeScrape = "partial"
	// ScrapeFull scrapes all knowledge qualifiers.
	ScrapeFull KnowledgeScrape = "full"
)

// FeedbackEnhancement is the insurer's position on a broker-requested coverage extra.
type FeedbackEnhancement struct {
	Title                string
	Description          string
	Offered              bool
	AdditionalPremiumPct float64
}

// FeedbackWarranty is the insurer's coverage position per warranty clause.
type FeedbackWarranty struct {
	Order            int
	Description      string
	CoveragePosition CoveragePosition
	KnowledgeScrape  KnowledgeScrape
}

// Additional premium bounds for enhancement offers, in percent.
const (
	MinEnhancementAPPct = 0
	MaxEnhancementAPPct = 100
)

// SubmissionFeedback is one insurer's full working copy of a deal: pricing
// counter-offer, coverage positions, and exclusions. Transitions return a new
// value; callers must thread the result forward.
type SubmissionFeedback struct {
	ID                   string
	SubmissionID         string
	InsuranceCompanyID   string
	InsuranceCompanyName string
	Name                 string

	Status      FeedbackStatus
	NdaAccepted bool
	ForReview   bool
	IsLive      bool

	Notes             string
	Pricing           FeedbackPricing
	Enhancements      []FeedbackEnhancement
	Exclusions        []string
	ExcludedCountries []string
	UwFocus           []string
	Warranties        []FeedbackWarranty

	ETag      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSubmissionFeedback derives a fresh feedback for one invited insurer from
// the parent submission: only broker-requested enhancements are copied, the
// warranty list carries over with pending positions, the exclusion catalogue
// starts at the default, and the pricing grid is the enabled limit x retention
// cross product with zero premiums.
func NewSubmissionFeedback(id, insuranceCompanyID, insuranceCompanyName string, submission DealSubmission, now time.Time) (SubmissionFeedback, error) {
	id = strings.TrimSpace(id)
	insuranceCompanyID = strings.TrimSpace(insuranceCompanyID)
	insuranceCompanyName = strings.TrimSpace(insuranceCompanyName)

	switch {
	case id == "":
		return SubmissionFeedback{}, fmt.Errorf("%w: feedback id is required", ErrInvalidEntity)
	case insuranceCompanyID == "":
		return SubmissionFeedback{}, fmt.Errorf("%w: insurance company id is required", ErrInvalidEntity)
	case insuranceCompanyName == "":
		return SubmissionFeedback{}, fmt.Errorf("%w: insurance company name is required", ErrInvalidEntity)
	case submission.ID == "":
		return SubmissionFeedback{}, fmt.Errorf("%w: submission id is required", ErrInvalidEntity)
	}

	feedback := SubmissionFeedback{
		ID:                   id,
		SubmissionID:         submission.ID,
		InsuranceCompanyID:   insuranceCompanyID,
		InsuranceCompanyName: insuranceCompanyName,
		Name:                 submission.Name,
		Status:               FeedbackStatusDraft,
		Pricing:              DeriveFeedbackPricing(submission.Pricing),
		Enhancements:         deriveFeedbackEnhancements(submission.Enhancements, nil),
		Exclusions:           DefaultExclusions(),
		Warranties:           deriveFeedbackWarranties(submission.Warranties, nil),
		CreatedAt:            now.UTC(),
		UpdatedAt:            now.UTC(),
	}
	return feedback, nil
}

// Reparse refreshes the feedback's enhancements and warranties against an
// updated submission. Entries the insurer already worked on are preserved in
// place when they still match: enhancements by title and description,
// warranties by order and description.
func (f SubmissionFeedback) Reparse(submission DealSubmission, now time.Time) SubmissionFeedback {
	f.Enhancements = deriveFeedbackEnhancements(submission.Enhancements, f.Enhancements)
	f.Warranties = deriveFeedbackWarranties(submission.Warranties, f.Warranties)
	f.UpdatedAt = now.UTC()
	return f
}

// Submitted reports whether the insurer has returned a priced offer.
func (f SubmissionFeedback) Submitted() bool {
	return f.Status == FeedbackStatusSubmitted
}

// Declined reports whether the insurer passed on the deal.
func (f SubmissionFeedback) Declined() bool {
	return f.Status == FeedbackStatusDeclined
}

// FeedbackUpdate carries the replaceable working-copy fields for Update.
type FeedbackUpdate struct {
	Notes             string
	Pricing           FeedbackPricing
	Enhancements      []FeedbackEnhancement
	Exclusions        []string
	ExcludedCountries []string
	UwFocus           []string
	Warranties        []FeedbackWarranty
	ETag              string
}

// Update replaces the insurer's working-copy fields. Enhancement additional
// premium percentages outside the permitted band fail with
// ErrEnhancementAPOutOfRange.
func (f SubmissionFeedback) Update(update FeedbackUpdate, now time.Time) (SubmissionFeedback, error) {
	for _, e := range update.Enhancements {
		if e.AdditionalPremiumPct < MinEnhancementAPPct || e.AdditionalPremiumPct > MaxEnhancementAPPct {
			return SubmissionFeedback{}, fmt.Errorf("%w: %q at %.2f%%", ErrEnhancementAPOutOfRange, e.Title, e.AdditionalPremiumPct)
		}
	}

	f.Notes = update.Notes
	f.Pricing = update.Pricing
	f.Enhancements = cloneFeedbackEnhancements(update.Enhancements)
	f.Exclusions = cloneStringsList(update.Exclusions)
	f.ExcludedCountries = cloneStringsList(update.ExcludedCountries)
	f.UwFocus = cloneStringsList(update.UwFocus)
	f.Warranties = cloneFeedbackWarranties(update.Warranties)
	f.ETag = update.ETag
	f.UpdatedAt = now.UTC()
	return f, nil
}

// AcceptNda records the insurer's NDA acceptance.
func (f SubmissionFeedback) AcceptNda(now time.Time) SubmissionFeedback {
	f.NdaAccepted = true
	f.UpdatedAt = now.UTC()
	return f
}

// Submit moves the feedback to submitted. Declining later overrides this.
func (f SubmissionFeedback) Submit(now time.Time) SubmissionFeedback {
	f.Status = FeedbackStatusSubmitted
	f.UpdatedAt = now.UTC()
	return f
}

// Decline moves the feedback to declined. Submitting later overrides this.
func (f SubmissionFeedback) Decline(now time.Time) SubmissionFeedback {
	f.Status = FeedbackStatusDeclined
	f.UpdatedAt = now.UTC()
	return f
}

// SubmissionModified flags a submitted feedback for re-review after the
// broker changed the deal.
func (f SubmissionFeedback) SubmissionModified(now time.Time) (SubmissionFeedback, error) {
	if !f.Submitted() {
		return SubmissionFeedback{}, fmt.Errorf("%w: feedback %s", ErrModifyFeedbackNotSubmitted, f.ID)
	}
	f.ForReview = true
	f.UpdatedAt = now.UTC()
	return f, nil
}

// GoLive marks the feedback as the winning offer. Only a submitted feedback
// can go live.
func (f SubmissionFeedback) GoLive(now time.Time) (SubmissionFeedback, error) {
	if !f.Submitted() {
		return SubmissionFeedback{}, fmt.Errorf("%w: feedback %s", ErrFeedbackGoLiveNotSubmitted, f.ID)
	}
	f.IsLive = true
	f.UpdatedAt = now.UTC()
	return f, nil
}

// NudgeEligible reports whether the broker may still nudge this insurer.
// Submitted and declined feedbacks each surface a distinct error so the
// caller can show a precise message.
func (f SubmissionFeedback) NudgeEligible() error {
	switch f.Status {
	case FeedbackStatusSubmitted:
		return fmt.Errorf("%w: feedback %s", ErrNudgeAlreadySubmitted, f.ID)
	case FeedbackStatusDeclined:
		return fmt.Errorf("%w: feedback %s", ErrNudgeAlreadyDeclined, f.ID)
	}
	return nil
}

func deriveFeedbackEnhancements(requested []Enhancement, existing []FeedbackEnhancement) []FeedbackEnhancement {
	var derived []FeedbackEnhancement
	for _, e := range requested {
		if !e.BrokerRequestsIt {
			continue
		}
		entry := FeedbackEnhancement{Title: e.Title, Description: e.Description}
		for _, prior := range existing {
			if prior.Title == e.Title && prior.Description == e.Description {
				entry = prior
				break
			}
		}
		derived = append(derived, entry)
	}
	return derived
}

func deriveFeedbackWarranties(warranties []Warranty, existing []FeedbackWarranty) []FeedbackWarranty {
	var derived []FeedbackWarranty
	for _, w := range warranties {
		entry := FeedbackWarranty{
			Order:            w.Order,
			Description:      w.Description,
			CoveragePosition: CoveragePending,
			KnowledgeScrape:  ScrapeNone,
		}
		for _, prior := range existing {
			if prior.Order == w.Order && prior.Description == w.Description {
				entry = prior
				break
			}
		}
		derived = append(derived, entry)
	}
	return derived
}

func cloneFeedbackEnhancements(enhancements []FeedbackEnhancement) []FeedbackEnhancement {
	if len(enhancements) == 0 {
		return nil
	}
	cloned := make([]FeedbackEnhancement, len(enhancements))
	copy(cloned, enhancements)
	return cloned
}

func cloneFeedbackWarranties(warranties []FeedbackWarranty) []FeedbackWarranty {
	if len(warranties) == 0 {
		return nil
	}
	cloned := make([]FeedbackWarranty, len(warranties))
	copy(cloned, warranties)
	return cloned
}

func cloneStringsList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	cloned := make([]string, len(values))
	copy(cloned, values)
	return cloned
}
