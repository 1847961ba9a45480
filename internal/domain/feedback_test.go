package domain

import (
	"errors"
	"testing"
	"time"
)

func parentSubmission(t *testing.T) DealSubmission {
	t.Helper()
	sub := draftSubmission(t)
	sub.Enhancements = []Enhancement{
		{Title: "Synthetic tax deed", Description: "Full synthetic tax cover", BrokerRequestsIt: true},
		{Title: "Knowledge scrape", Description: "General scrape", BrokerRequestsIt: false},
		{Title: "Nil seller recourse", Description: "No recourse to sellers", BrokerRequestsIt: true},
	}
	sub.Warranties = []Warranty{
		{Order: 1, Description: "Title and capacity"},
		{Order: 2, Description: "Accounts prepared per GAAP"},
	}
	return sub
}

func TestNewSubmissionFeedbackDerivation(t *testing.T) {
	sub := parentSubmission(t)

	fb, err := NewSubmissionFeedback("fbk_1", "ins-a", "Aviron Re", sub, testNow)
	if err != nil {
		t.Fatalf("new feedback: %v", err)
	}

	if fb.SubmissionID != sub.ID || fb.Name != sub.Name {
		t.Fatal("feedback must reference the parent submission")
	}
	if fb.Status != FeedbackStatusDraft || fb.NdaAccepted || fb.ForReview || fb.IsLive {
		t.Fatal("fresh feedback must start with all state flags down")
	}

	// Only broker-requested enhancements carry over.
	if len(fb.Enhancements) != 2 {
		t.Fatalf("expected 2 requested enhancements, got %d", len(fb.Enhancements))
	}
	for _, e := range fb.Enhancements {
		if e.Offered || e.AdditionalPremiumPct != 0 {
			t.Fatal("derived enhancements must start unoffered and unpriced")
		}
	}

	if len(fb.Warranties) != 2 {
		t.Fatalf("expected 2 warranties, got %d", len(fb.Warranties))
	}
	for _, w := range fb.Warranties {
		if w.CoveragePosition != CoveragePending || w.KnowledgeScrape != ScrapeNone {
			t.Fatal("derived warranties must start pending")
		}
	}

	wantGrid := len(sub.Pricing.EnabledLimits()) * len(sub.Pricing.EnabledRetentions())
	if len(fb.Pricing.Options) != wantGrid {
		t.Fatalf("expected %d pricing options, got %d", wantGrid, len(fb.Pricing.Options))
	}
	for _, opt := range fb.Pricing.Options {
		if opt.Premium != 0 {
			t.Fatal("derived pricing grid must start unpriced")
		}
	}

	if len(fb.Exclusions) != len(DefaultExclusions()) {
		t.Fatal("fresh feedback must start with the default exclusion catalogue")
	}
}

func TestNewSubmissionFeedbackValidates(t *testing.T) {
	sub := parentSubmission(t)
	if _, err := NewSubmissionFeedback("", "ins-a", "Aviron Re", sub, testNow); !errors.Is(err, ErrInvalidEntity) {
		t.Fatalf("expected invalid entity, got %v", err)
	}
	if _, err := NewSubmissionFeedback("fbk_1", "", "Aviron Re", sub, testNow); !errors.Is(err, ErrInvalidEntity) {
		t.Fatalf("expected invalid entity, got %v", err)
	}
	if _, err := NewSubmissionFeedback("fbk_1", "ins-a", "", sub, testNow); !errors.Is(err, ErrInvalidEntity) {
		t.Fatalf("expected invalid entity, got %v", err)
	}
}

func TestReparsePreservesMatchingInsurerWork(t *testing.T) {
	sub := parentSubmission(t)
	fb, err := NewSubmissionFeedback("fbk_1", "ins-a", "Aviron Re", sub, testNow)
	if err != nil {
		t.Fatalf("new feedback: %v", err)
	}

	// Underwriter works on the existing entries.
	fb.Enhancements[0].Offered = true
	fb.Enhancements[0].AdditionalPremiumPct = 7.5
	fb.Warranties[1].CoveragePosition = CoverageCovered
	fb.Warranties[1].KnowledgeScrape = ScrapeFull

	// Broker drops one enhancement, adds a warranty, keeps the rest.
	sub.Enhancements = []Enhancement{
		{Title: "Synthetic tax deed", Description: "Full synthetic tax cover", BrokerRequestsIt: true},
		{Title: "US-style damages", Description: "No scrape of damages", BrokerRequestsIt: true},
	}
	sub.Warranties = []Warranty{
		{Order: 1, Description: "Title and capacity"},
		{Order: 2, Description: "Accounts prepared per GAAP"},
		{Order: 3, Description: "No undisclosed liabilities"},
	}

	reparsed := fb.Reparse(sub, testNow)

	if len(reparsed.Enhancements) != 2 {
		t.Fatalf("expected 2 enhancements after reparse, got %d", len(reparsed.Enhancements))
	}
	kept := reparsed.Enhancements[0]
	if kept.Title != "Synthetic tax deed" || !kept.Offered || kept.AdditionalPremiumPct != 7.5 {
		t.Fatal("matching enhancement must preserve insurer-entered data")
	}
	fresh := reparsed.Enhancements[1]
	if fresh.Title != "US-style damages" || fresh.Offered {
		t.Fatal("new enhancement must start blank")
	}

	if len(reparsed.Warranties) != 3 {
		t.Fatalf("expected 3 warranties after reparse, got %d", len(reparsed.Warranties))
	}
	if reparsed.Warranties[1].CoveragePosition != CoverageCovered || reparsed.Warranties[1].KnowledgeScrape != ScrapeFull {
		t.Fatal("matching warranty must preserve the insurer's position")
	}
	if reparsed.Warranties[2].CoveragePosition != CoveragePending {
		t.Fatal("new warranty must start pending")
	}
}

func TestSubmitAndDeclineAreMutuallyExclusive(t *testing.T) {
	sub := parentSubmission(t)
	fb, err := NewSubmissionFeedback("fbk_1", "ins-a", "Aviron Re", sub, testNow)
	if err != nil {
		t.Fatalf("new feedback: %v", err)
	}

	declined := fb.Submit(testNow).Decline(testNow)
	if declined.Submitted() || !declined.Declined() {
		t.Fatal("decline after submit must leave only declined set")
	}

	submitted := fb.Decline(testNow).Submit(testNow)
	if !submitted.Submitted() || submitted.Declined() {
		t.Fatal("submit after decline must leave only submitted set")
	}
}

func TestSubmissionModifiedRequiresSubmitted(t *testing.T) {
	sub := parentSubmission(t)
	fb, _ := NewSubmissionFeedback("fbk_1", "ins-a", "Aviron Re", sub, testNow)

	if _, err := fb.SubmissionModified(testNow); !errors.Is(err, ErrModifyFeedbackNotSubmitted) {
		t.Fatalf("draft: expected not-submitted, got %v", err)
	}
	if _, err := fb.Decline(testNow).SubmissionModified(testNow); !errors.Is(err, ErrModifyFeedbackNotSubmitted) {
		t.Fatalf("declined: expected not-submitted, got %v", err)
	}

	flagged, err := fb.Submit(testNow).SubmissionModified(testNow)
	if err != nil {
		t.Fatalf("submitted: %v", err)
	}
	if !flagged.ForReview {
		t.Fatal("submission-modified must flag the feedback for review")
	}
}

func TestGoLiveRequiresSubmitted(t *testing.T) {
	sub := parentSubmission(t)
	fb, _ := NewSubmissionFeedback("fbk_1", "ins-a", "Aviron Re", sub, testNow)

	if _, err := fb.GoLive(testNow); !errors.Is(err, ErrFeedbackGoLiveNotSubmitted) {
		t.Fatalf("draft: expected not-submitted, got %v", err)
	}
	if _, err := fb.Decline(testNow).GoLive(testNow); !errors.Is(err, ErrFeedbackGoLiveNotSubmitted) {
		t.Fatalf("declined: expected not-submitted, got %v", err)
	}

	live, err := fb.Submit(testNow).GoLive(testNow)
	if err != nil {
		t.Fatalf("submitted: %v", err)
	}
	if !live.IsLive {
		t.Fatal("go-live must set the live flag")
	}
}

func TestNudgeEligibility(t *testing.T) {
	sub := parentSubmission(t)
	fb, _ := NewSubmissionFeedback("fbk_1", "ins-a", "Aviron Re", sub, testNow)

	if err := fb.NudgeEligible(); err != nil {
		t.Fatalf("draft must be nudgeable: %v", err)
	}
	if err := fb.Submit(testNow).NudgeEligible(); !errors.Is(err, ErrNudgeAlreadySubmitted) {
		t.Fatalf("expected already-submitted, got %v", err)
	}
	if err := fb.Decline(testNow).NudgeEligible(); !errors.Is(err, ErrNudgeAlreadyDeclined) {
		t.Fatalf("expected already-declined, got %v", err)
	}
}

func TestUpdateValidatesEnhancementAP(t *testing.T) {
	sub := parentSubmission(t)
	fb, _ := NewSubmissionFeedback("fbk_1", "ins-a", "Aviron Re", sub, testNow)

	_, err := fb.Update(FeedbackUpdate{
		Pricing: fb.Pricing,
		Enhancements: []FeedbackEnhancement{
			{Title: "Synthetic tax deed", Offered: true, AdditionalPremiumPct: 120},
		},
	}, testNow)
	if !errors.Is(err, ErrEnhancementAPOutOfRange) {
		t.Fatalf("expected ap-out-of-range, got %v", err)
	}

	updated, err := fb.Update(FeedbackUpdate{
		Notes:   "priced with 10% NCD",
		Pricing: fb.Pricing,
		Enhancements: []FeedbackEnhancement{
			{Title: "Synthetic tax deed", Offered: true, AdditionalPremiumPct: 12.5},
		},
		UwFocus: []string{"tax", "environmental"},
		ETag:    "v2",
	}, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Notes != "priced with 10% NCD" || updated.ETag != "v2" {
		t.Fatal("update must replace working-copy fields")
	}
}
