package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/coverplace/api/internal/domain"
	pfirestore "github.com/coverplace/api/internal/platform/firestore"
)

const feedbacksCollection = "submission_feedbacks"

// FeedbackRepository persists each insurer's working copy of a deal. A
// feedback document is keyed by its own ID and carries the parent submission
// and insurer identifiers for scoped queries.
type FeedbackRepository struct {
	base *pfirestore.BaseRepository[feedbackDocument]
}

// NewFeedbackRepository constructs a Firestore-backed feedback repository.
func NewFeedbackRepository(provider *pfirestore.Provider) (*FeedbackRepository, error) {
	if provider == nil {
		return nil, errors.New("feedback repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[feedbackDocument](provider, feedbacksCollection, nil, nil)
	return &FeedbackRepository{base: base}, nil
}

// Insert stores a freshly derived feedback. The parent submission supplies the
// broker-side projection fields used by insurer list views.
func (r *FeedbackRepository) Insert(ctx context.Context, feedback domain.SubmissionFeedback, submission domain.DealSubmission) (domain.SubmissionFeedback, error) {
	if r == nil || r.base == nil {
		return domain.SubmissionFeedback{}, errors.New("feedback repository not initialised")
	}
	feedbackID := strings.TrimSpace(feedback.ID)
	if feedbackID == "" {
		return domain.SubmissionFeedback{}, errors.New("feedback repository: feedback id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, feedbackID)
	if err != nil {
		return domain.SubmissionFeedback{}, err
	}
	doc := encodeFeedbackDocument(feedback)
	doc.BrokerCompanyID = strings.TrimSpace(submission.BrokerCompanyID)
	doc.BrokerName = strings.TrimSpace(submission.BrokerName)
	result, err := docRef.Create(ctx, doc)
	if err != nil {
		return domain.SubmissionFeedback{}, pfirestore.WrapError("submission_feedbacks.insert", err)
	}
	saved := feedback
	saved.ETag = encodeUpdateToken(result.UpdateTime)
	saved.UpdatedAt = result.UpdateTime.UTC()
	return saved, nil
}

// Update replaces the persisted feedback state. The feedback's ETag must match
// the stored document's update time or the write fails with a conflict.
func (r *FeedbackRepository) Update(ctx context.Context, feedback domain.SubmissionFeedback) (domain.SubmissionFeedback, error) {
	if r == nil || r.base == nil {
		return domain.SubmissionFeedback{}, errors.New("feedback repository not initialised")
	}
	feedbackID := strings.TrimSpace(feedback.ID)
	if feedbackID == "" {
		return domain.SubmissionFeedback{}, errors.New("feedback repository: feedback id is required")
	}
	expectedUpdate, err := decodeUpdateToken(feedback.ETag)
	if err != nil {
		return domain.SubmissionFeedback{}, fmt.Errorf("feedback repository: invalid etag: %w", err)
	}

	doc := encodeFeedbackDocument(feedback)
	updates := []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "status", Value: doc.Status},
		{Path: "ndaAccepted", Value: doc.NdaAccepted},
		{Path: "forReview", Value: doc.ForReview},
		{Path: "isLive", Value: doc.IsLive},
		{Path: "notes", Value: doc.Notes},
		{Path: "pricing", Value: doc.Pricing},
		{Path: "enhancements", Value: doc.Enhancements},
		{Path: "exclusions", Value: doc.Exclusions},
		{Path: "excludedCountries", Value: doc.ExcludedCountries},
		{Path: "uwFocus", Value: doc.UwFocus},
		{Path: "warranties", Value: doc.Warranties},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}

	result, err := r.base.Update(ctx, feedbackID, updates, firestore.LastUpdateTime(expectedUpdate.UTC()))
	if err != nil {
		return domain.SubmissionFeedback{}, err
	}

	saved := feedback
	saved.ETag = encodeUpdateToken(result.UpdateTime)
	saved.UpdatedAt = result.UpdateTime.UTC()
	return saved, nil
}

// FindByID fetches a single feedback.
func (r *FeedbackRepository) FindByID(ctx context.Context, feedbackID string) (domain.SubmissionFeedback, error) {
	if r == nil || r.base == nil {
		return domain.SubmissionFeedback{}, errors.New("feedback repository not initialised")
	}
	feedbackID = strings.TrimSpace(feedbackID)
	if feedbackID == "" {
		return domain.SubmissionFeedback{}, errors.New("feedback repository: feedback id is required")
	}
	doc, err := r.base.Get(ctx, feedbackID)
	if err != nil {
		return domain.SubmissionFeedback{}, err
	}
	return decodeFeedbackDocument(feedbackID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// FindByCompany fetches the feedback one insurer holds on a submission.
func (r *FeedbackRepository) FindByCompany(ctx context.Context, insuranceCompanyID string, submissionID string) (domain.SubmissionFeedback, error) {
	if r == nil || r.base == nil {
		return domain.SubmissionFeedback{}, errors.New("feedback repository not initialised")
	}
	insuranceCompanyID = strings.TrimSpace(insuranceCompanyID)
	submissionID = strings.TrimSpace(submissionID)
	if insuranceCompanyID == "" || submissionID == "" {
		return domain.SubmissionFeedback{}, errors.New("feedback repository: insurance company id and submission id are required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("insuranceCompanyId", "==", insuranceCompanyID).
			Where("submissionId", "==", submissionID).
			Limit(1)
	})
	if err != nil {
		return domain.SubmissionFeedback{}, err
	}
	if len(docs) == 0 {
		return domain.SubmissionFeedback{}, notFoundError("submission_feedbacks.find_by_company", "feedback not found")
	}
	doc := docs[0]
	return decodeFeedbackDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// ListBySubmission returns every insurer's feedback on one submission.
func (r *FeedbackRepository) ListBySubmission(ctx context.Context, submissionID string) ([]domain.SubmissionFeedback, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("feedback repository not initialised")
	}
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return nil, errors.New("feedback repository: submission id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("submissionId", "==", submissionID).
			OrderBy("insuranceCompanyName", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	feedbacks := make([]domain.SubmissionFeedback, 0, len(docs))
	for _, doc := range docs {
		feedbacks = append(feedbacks, decodeFeedbackDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return feedbacks, nil
}

type feedbackDocument struct {
	SubmissionID         string `firestore:"submissionId"`
	InsuranceCompanyID   string `firestore:"insuranceCompanyId"`
	InsuranceCompanyName string `firestore:"insuranceCompanyName"`
	BrokerCompanyID      string `firestore:"brokerCompanyId"`
	BrokerName           string `firestore:"brokerName"`
	Name                 string `firestore:"name"`

	Status      string `firestore:"status"`
	NdaAccepted bool   `firestore:"ndaAccepted"`
	ForReview   bool   `firestore:"forReview"`
	IsLive      bool   `firestore:"isLive"`

	Notes             string                        `firestore:"notes"`
	Pricing           feedbackPricingDocument       `firestore:"pricing"`
	Enhancements      []feedbackEnhancementDocument `firestore:"enhancements"`
	Exclusions        []string                      `firestore:"exclusions"`
	ExcludedCountries []string                      `firestore:"excludedCountries"`
	UwFocus           []string                      `firestore:"uwFocus"`
	Warranties        []feedbackWarrantyDocument    `firestore:"warranties"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type feedbackPricingDocument struct {
	Currency           string                          `firestore:"currency"`
	Options            []feedbackPricingOptionDocument `firestore:"options"`
	BrokerageFeePct    float64                         `firestore:"brokerageFeePct"`
	UnderwritingFee    int64                           `firestore:"underwritingFee"`
	MinimumPremiumFlat int64                           `firestore:"minimumPremiumFlat"`
}

type feedbackPricingOptionDocument struct {
	LimitPercentage     float64 `firestore:"limitPercentage"`
	RetentionPercentage float64 `firestore:"retentionPercentage"`
	Premium             int64   `firestore:"premium"`
}

type feedbackEnhancementDocument struct {
	Title                string  `firestore:"title"`
	Description          string  `firestore:"description"`
	Offered              bool    `firestore:"offered"`
	AdditionalPremiumPct float64 `firestore:"additionalPremiumPct"`
}

type feedbackWarrantyDocument struct {
	Order            int    `firestore:"order"`
	Description      string `firestore:"description"`
	CoveragePosition string `firestore:"coveragePosition"`
	KnowledgeScrape  string `firestore:"knowledgeScrape"`
}

func encodeFeedbackDocument(feedback domain.SubmissionFeedback) feedbackDocument {
	return feedbackDocument{
		SubmissionID:         strings.TrimSpace(feedback.SubmissionID),
		InsuranceCompanyID:   strings.TrimSpace(feedback.InsuranceCompanyID),
		InsuranceCompanyName: strings.TrimSpace(feedback.InsuranceCompanyName),
		Name:                 strings.TrimSpace(feedback.Name),
		Status:               string(feedback.Status),
		NdaAccepted:          feedback.NdaAccepted,
		ForReview:            feedback.ForReview,
		IsLive:               feedback.IsLive,
		Notes:                feedback.Notes,
		Pricing:              encodeFeedbackPricing(feedback.Pricing),
		Enhancements:         encodeFeedbackEnhancements(feedback.Enhancements),
		Exclusions:           cloneStrings(feedback.Exclusions),
		ExcludedCountries:    cloneStrings(feedback.ExcludedCountries),
		UwFocus:              cloneStrings(feedback.UwFocus),
		Warranties:           encodeFeedbackWarranties(feedback.Warranties),
		CreatedAt:            feedback.CreatedAt.UTC(),
		UpdatedAt:            feedback.UpdatedAt.UTC(),
	}
}

func decodeFeedbackDocument(id string, doc feedbackDocument, createdAt, updatedAt time.Time) domain.SubmissionFeedback {
	return domain.SubmissionFeedback{
		ID:                   strings.TrimSpace(id),
		SubmissionID:         strings.TrimSpace(doc.SubmissionID),
		InsuranceCompanyID:   strings.TrimSpace(doc.InsuranceCompanyID),
		InsuranceCompanyName: strings.TrimSpace(doc.InsuranceCompanyName),
		Name:                 strings.TrimSpace(doc.Name),
		Status:               domain.FeedbackStatus(strings.TrimSpace(doc.Status)),
		NdaAccepted:          doc.NdaAccepted,
		ForReview:            doc.ForReview,
		IsLive:               doc.IsLive,
		Notes:                doc.Notes,
		Pricing:              decodeFeedbackPricing(doc.Pricing),
		Enhancements:         decodeFeedbackEnhancements(doc.Enhancements),
		Exclusions:           cloneStrings(doc.Exclusions),
		ExcludedCountries:    cloneStrings(doc.ExcludedCountries),
		UwFocus:              cloneStrings(doc.UwFocus),
		Warranties:           decodeFeedbackWarranties(doc.Warranties),
		ETag:                 encodeUpdateToken(updatedAt),
		CreatedAt:            chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:            chooseTime(doc.UpdatedAt, updatedAt),
	}
}

func encodeFeedbackPricing(pricing domain.FeedbackPricing) feedbackPricingDocument {
	doc := feedbackPricingDocument{
		Currency:           strings.TrimSpace(pricing.Currency),
		BrokerageFeePct:    pricing.BrokerageFeePct,
		UnderwritingFee:    pricing.UnderwritingFee,
		MinimumPremiumFlat: pricing.MinimumPremiumFlat,
	}
	if len(pricing.Options) > 0 {
		doc.Options = make([]feedbackPricingOptionDocument, 0, len(pricing.Options))
		for _, opt := range pricing.Options {
			doc.Options = append(doc.Options, feedbackPricingOptionDocument{
				LimitPercentage:     opt.LimitPercentage,
				RetentionPercentage: opt.RetentionPercentage,
				Premium:             opt.Premium,
			})
		}
	}
	return doc
}

func decodeFeedbackPricing(doc feedbackPricingDocument) domain.FeedbackPricing {
	pricing := domain.FeedbackPricing{
		Currency:           strings.TrimSpace(doc.Currency),
		BrokerageFeePct:    doc.BrokerageFeePct,
		UnderwritingFee:    doc.UnderwritingFee,
		MinimumPremiumFlat: doc.MinimumPremiumFlat,
	}
	if len(doc.Options) > 0 {
		pricing.Options = make([]domain.FeedbackPricingOption, 0, len(doc.Options))
		for _, opt := range doc.Options {
			pricing.Options = append(pricing.Options, domain.FeedbackPricingOption{
				LimitPercentage:     opt.LimitPercentage,
				RetentionPercentage: opt.RetentionPercentage,
				Premium:             opt.Premium,
			})
		}
	}
	return pricing
}

func encodeFeedbackEnhancements(enhancements []domain.FeedbackEnhancement) []feedbackEnhancementDocument {
	if len(enhancements) == 0 {
		return nil
	}
	docs := make([]feedbackEnhancementDocument, 0, len(enhancements))
	for _, e := range enhancements {
		docs = append(docs, feedbackEnhancementDocument{
			Title:                strings.TrimSpace(e.Title),
			Description:          e.Description,
			Offered:              e.Offered,
			AdditionalPremiumPct: e.AdditionalPremiumPct,
		})
	}
	return docs
}

func decodeFeedbackEnhancements(docs []feedbackEnhancementDocument) []domain.FeedbackEnhancement {
	if len(docs) == 0 {
		return nil
	}
	enhancements := make([]domain.FeedbackEnhancement, 0, len(docs))
	for _, doc := range docs {
		enhancements = append(enhancements, domain.FeedbackEnhancement{
			Title:                strings.TrimSpace(doc.Title),
			Description:          doc.Description,
			Offered:              doc.Offered,
			AdditionalPremiumPct: doc.AdditionalPremiumPct,
		})
	}
	return enhancements
}

func encodeFeedbackWarranties(warranties []domain.FeedbackWarranty) []feedbackWarrantyDocument {
	if len(warranties) == 0 {
		return nil
	}
	docs := make([]feedbackWarrantyDocument, 0, len(warranties))
	for _, w := range warranties {
		docs = append(docs, feedbackWarrantyDocument{
			Order:            w.Order,
			Description:      w.Description,
			CoveragePosition: string(w.CoveragePosition),
			KnowledgeScrape:  string(w.KnowledgeScrape),
		})
	}
	return docs
}

func decodeFeedbackWarranties(docs []feedbackWarrantyDocument) []domain.FeedbackWarranty {
	if len(docs) == 0 {
		return nil
	}
	warranties := make([]domain.FeedbackWarranty, 0, len(docs))
	for _, doc := range docs {
		warranties = append(warranties, domain.FeedbackWarranty{
			Order:            doc.Order,
			Description:      doc.Description,
			CoveragePosition: domain.CoveragePosition(strings.TrimSpace(doc.CoveragePosition)),
			KnowledgeScrape:  domain.KnowledgeScrape(strings.TrimSpace(doc.KnowledgeScrape)),
		})
	}
	return warranties
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
