package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/coverplace/api/internal/domain"
	"github.com/coverplace/api/internal/platform/auth"
	"github.com/coverplace/api/internal/platform/httpx"
	"github.com/coverplace/api/internal/repositories"
	"github.com/coverplace/api/internal/services"
)

const maxFeedbackBodySize = 256 * 1024

// FeedbackHandlers exposes the insurer-facing feedback endpoints. Routes are
// mounted under /deals/{dealId}/feedback.
type FeedbackHandlers struct {
	feedbacks services.FeedbackService
}

// NewFeedbackHandlers constructs handlers for the feedback endpoints.
func NewFeedbackHandlers(feedbacks services.FeedbackService) *FeedbackHandlers {
	return &FeedbackHandlers{feedbacks: feedbacks}
}

// Routes wires the feedback endpoints onto the provided router. Authentication
// is inherited from the enclosing /deals group.
func (h *FeedbackHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getFeedback)
	r.Get("/all", h.getAllFeedback)
	r.Put("/", h.updateFeedback)
	r.Post("/nda", h.acceptNda)
	r.Post("/submit", h.submitFeedback)
	r.Post("/decline", h.declineFeedback)
}

func (h *FeedbackHandlers) getFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	feedback, err := h.feedbacks.GetFeedback(ctx, services.GetFeedbackCommand{
		ActorID:      identity.UID,
		SubmissionID: chi.URLParam(r, "dealId"),
	})
	if err != nil {
		writeFeedbackError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, feedbackResponse{Feedback: buildFeedbackPayload(feedback)})
}

func (h *FeedbackHandlers) getAllFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	feedbacks, err := h.feedbacks.GetAllFeedback(ctx, services.GetAllFeedbackCommand{
		ActorID:      identity.UID,
		SubmissionID: chi.URLParam(r, "dealId"),
	})
	if err != nil {
		writeFeedbackError(ctx, w, err)
		return
	}

	items := make([]feedbackPayload, 0, len(feedbacks))
	for _, feedback := range feedbacks {
		items = append(items, buildFeedbackPayload(feedback))
	}
	writeJSONResponse(w, http.StatusOK, feedbackListResponse{Feedbacks: items})
}

func (h *FeedbackHandlers) updateFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxFeedbackBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateFeedbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	feedback, err := h.feedbacks.UpdateFeedback(ctx, services.UpdateFeedbackCommand{
		ActorID:      identity.UID,
		SubmissionID: chi.URLParam(r, "dealId"),
		Update:       req.toFeedbackUpdate(),
	})
	if err != nil {
		writeFeedbackError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, feedbackResponse{Feedback: buildFeedbackPayload(feedback)})
}

func (h *FeedbackHandlers) acceptNda(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actorID, dealID string) (services.SubmissionFeedback, error) {
		return h.feedbacks.AcceptNda(ctx, services.AcceptNdaCommand{ActorID: actorID, SubmissionID: dealID})
	})
}

func (h *FeedbackHandlers) submitFeedback(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actorID, dealID string) (services.SubmissionFeedback, error) {
		return h.feedbacks.SubmitFeedback(ctx, services.SubmitFeedbackCommand{ActorID: actorID, SubmissionID: dealID})
	})
}

func (h *FeedbackHandlers) declineFeedback(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actorID, dealID string) (services.SubmissionFeedback, error) {
		return h.feedbacks.DeclineFeedback(ctx, services.DeclineFeedbackCommand{ActorID: actorID, SubmissionID: dealID})
	})
}

func (h *FeedbackHandlers) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, actorID, dealID string) (services.SubmissionFeedback, error)) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	feedback, err := apply(ctx, identity.UID, chi.URLParam(r, "dealId"))
	if err != nil {
		writeFeedbackError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, feedbackResponse{Feedback: buildFeedbackPayload(feedback)})
}

func (h *FeedbackHandlers) require(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.feedbacks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("feedback_service_unavailable", "feedback service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return requireIdentity(ctx, w)
}

// Requests and responses ------------------------------------------------------

type updateFeedbackRequest struct {
	Notes             string                        `json:"notes"`
	Pricing           feedbackPricingPayload        `json:"pricing"`
	Enhancements      []feedbackEnhancementPayload  `json:"enhancements"`
	Exclusions        []string                      `json:"exclusions"`
	ExcludedCountries []string                      `json:"excluded_countries"`
	UwFocus           []string                      `json:"uw_focus"`
	Warranties        []feedbackWarrantyPayload     `json:"warranties"`
	ETag              string                        `json:"etag"`
}

func (req updateFeedbackRequest) toFeedbackUpdate() domain.FeedbackUpdate {
	update := domain.FeedbackUpdate{
		Notes:             sanitizeText(req.Notes),
		Pricing:           req.Pricing.toDomain(),
		Exclusions:        sanitizeTextSlice(req.Exclusions),
		ExcludedCountries: sanitizeTextSlice(req.ExcludedCountries),
		UwFocus:           sanitizeTextSlice(req.UwFocus),
		ETag:              strings.TrimSpace(req.ETag),
	}
	for _, e := range req.Enhancements {
		update.Enhancements = append(update.Enhancements, domain.FeedbackEnhancement{
			Title:                sanitizeText(e.Title),
			Description:          sanitizeText(e.Description),
			Offered:              e.Offered,
			AdditionalPremiumPct: e.AdditionalPremiumPct,
		})
	}
	for _, wty := range req.Warranties {
		update.Warranties = append(update.Warranties, domain.FeedbackWarranty{
			Order:            wty.Order,
			Description:      sanitizeText(wty.Description),
			CoveragePosition: domain.CoveragePosition(strings.TrimSpace(wty.CoveragePosition)),
			KnowledgeScrape:  domain.KnowledgeScrape(strings.TrimSpace(wty.KnowledgeScrape)),
		})
	}
	return update
}

type feedbackResponse struct {
	Feedback feedbackPayload `json:"feedback"`
}

type feedbackListResponse struct {
	Feedbacks []feedbackPayload `json:"feedbacks"`
}

type feedbackPayload struct {
	ID                   string                       `json:"id"`
	DealID               string                       `json:"deal_id"`
	InsuranceCompanyID   string                       `json:"insurance_company_id"`
	InsuranceCompanyName string                       `json:"insurance_company_name"`
	Name                 string                       `json:"name"`
	Status               string                       `json:"status"`
	NdaAccepted          bool                         `json:"nda_accepted"`
	ForReview            bool                         `json:"for_review"`
	IsLive               bool                         `json:"is_live"`
	Notes                string                       `json:"notes,omitempty"`
	Pricing              feedbackPricingPayload       `json:"pricing"`
	Enhancements         []feedbackEnhancementPayload `json:"enhancements,omitempty"`
	Exclusions           []string                     `json:"exclusions,omitempty"`
	ExcludedCountries    []string                     `json:"excluded_countries,omitempty"`
	UwFocus              []string                     `json:"uw_focus,omitempty"`
	Warranties           []feedbackWarrantyPayload    `json:"warranties,omitempty"`
	ETag                 string                       `json:"etag,omitempty"`
	CreatedAt            string                       `json:"created_at"`
	UpdatedAt            string                       `json:"updated_at"`
}

type feedbackPricingPayload struct {
	Currency           string                         `json:"currency"`
	Options            []feedbackPricingOptionPayload `json:"options"`
	BrokerageFeePct    float64                        `json:"brokerage_fee_pct"`
	UnderwritingFee    int64                          `json:"underwriting_fee"`
	MinimumPremiumFlat int64                          `json:"minimum_premium_flat"`
}

func (p feedbackPricingPayload) toDomain() domain.FeedbackPricing {
	pricing := domain.FeedbackPricing{
		Currency:           strings.TrimSpace(p.Currency),
		BrokerageFeePct:    p.BrokerageFeePct,
		UnderwritingFee:    p.UnderwritingFee,
		MinimumPremiumFlat: p.MinimumPremiumFlat,
	}
	for _, option := range p.Options {
		pricing.Options = append(pricing.Options, domain.FeedbackPricingOption{
			LimitPercentage:     option.LimitPercentage,
			RetentionPercentage: option.RetentionPercentage,
			Premium:             option.Premium,
		})
	}
	return pricing
}

type feedbackPricingOptionPayload struct {
	LimitPercentage     float64 `json:"limit_percentage"`
	RetentionPercentage float64 `json:"retention_percentage"`
	Premium             int64   `json:"premium"`
}

type feedbackEnhancementPayload struct {
	Title                string  `json:"title"`
	Description          string  `json:"description,omitempty"`
	Offered              bool    `json:"offered"`
	AdditionalPremiumPct float64 `json:"additional_premium_pct"`
}

type feedbackWarrantyPayload struct {
	Order            int    `json:"order"`
	Description      string `json:"description"`
	CoveragePosition string `json:"coverage_position"`
	KnowledgeScrape  string `json:"knowledge_scrape"`
}

func buildFeedbackPayload(feedback services.SubmissionFeedback) feedbackPayload {
	payload := feedbackPayload{
		ID:                   feedback.ID,
		DealID:               feedback.SubmissionID,
		InsuranceCompanyID:   feedback.InsuranceCompanyID,
		InsuranceCompanyName: feedback.InsuranceCompanyName,
		Name:                 feedback.Name,
		Status:               string(feedback.Status),
		NdaAccepted:          feedback.NdaAccepted,
		ForReview:            feedback.ForReview,
		IsLive:               feedback.IsLive,
		Notes:                feedback.Notes,
		Exclusions:           feedback.Exclusions,
		ExcludedCountries:    feedback.ExcludedCountries,
		UwFocus:              feedback.UwFocus,
		ETag:                 feedback.ETag,
		CreatedAt:            formatTime(feedback.CreatedAt),
		UpdatedAt:            formatTime(feedback.UpdatedAt),
	}

	payload.Pricing = feedbackPricingPayload{
		Currency:           feedback.Pricing.Currency,
		BrokerageFeePct:    feedback.Pricing.BrokerageFeePct,
		UnderwritingFee:    feedback.Pricing.UnderwritingFee,
		MinimumPremiumFlat: feedback.Pricing.MinimumPremiumFlat,
	}
	for _, option := range feedback.Pricing.Options {
		payload.Pricing.Options = append(payload.Pricing.Options, feedbackPricingOptionPayload{
			LimitPercentage:     option.LimitPercentage,
			RetentionPercentage: option.RetentionPercentage,
			Premium:             option.Premium,
		})
	}

	for _, e := range feedback.Enhancements {
		payload.Enhancements = append(payload.Enhancements, feedbackEnhancementPayload{
			Title:                e.Title,
			Description:          e.Description,
			Offered:              e.Offered,
			AdditionalPremiumPct: e.AdditionalPremiumPct,
		})
	}
	for _, wty := range feedback.Warranties {
		payload.Warranties = append(payload.Warranties, feedbackWarrantyPayload{
			Order:            wty.Order,
			Description:      wty.Description,
			CoveragePosition: string(wty.CoveragePosition),
			KnowledgeScrape:  string(wty.KnowledgeScrape),
		})
	}

	return payload
}

func writeFeedbackError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var dealErr *domain.DealError
	switch {
	case errors.Is(err, services.ErrFeedbackInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrFeedbackForbidden), errors.Is(err, services.ErrCompanyNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions for feedback", http.StatusForbidden))
	case errors.Is(err, services.ErrFeedbackConflict):
		httpx.WriteError(ctx, w, httpx.NewError("feedback_conflict", "feedback data has changed, reload and retry", http.StatusConflict))
	case errors.Is(err, services.ErrFeedbackNotFound), errors.Is(err, services.ErrDealNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("feedback_not_found", "feedback not found", http.StatusNotFound))
	case errors.Is(err, services.ErrNotificationDispatchFailed):
		httpx.WriteError(ctx, w, httpx.NewError("notification_failed", "feedback updated but notification dispatch failed", http.StatusBadGateway))
	case errors.As(err, &dealErr):
		httpx.WriteError(ctx, w, httpx.NewError(dealErr.Code(), dealErr.SafeMessage(), http.StatusUnprocessableEntity))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("feedback_service_unavailable", "feedback repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("feedback_error", "failed to process feedback request", http.StatusInternalServerError))
	}
}
