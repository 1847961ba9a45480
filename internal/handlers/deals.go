package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/coverplace/api/internal/domain"
	"github.com/coverplace/api/internal/platform/auth"
	"github.com/coverplace/api/internal/platform/httpx"
	"github.com/coverplace/api/internal/repositories"
	"github.com/coverplace/api/internal/services"
)

const (
	maxDealBodySize = 256 * 1024

	nudgeRateLimit  = 5
	nudgeRateWindow = time.Hour
)

// DealHandlers exposes the broker-facing deal workflow endpoints.
type DealHandlers struct {
	authn  *auth.Authenticator
	deals  services.DealService
	nudges rateLimiter
}

// DealOption customises the deal handlers.
type DealOption func(*DealHandlers)

// WithNudgeRateLimiter overrides the per-user limiter applied to nudges.
func WithNudgeRateLimiter(limiter rateLimiter) DealOption {
	return func(h *DealHandlers) {
		h.nudges = limiter
	}
}

// NewDealHandlers constructs handlers for the /deals endpoints.
func NewDealHandlers(authn *auth.Authenticator, deals services.DealService, opts ...DealOption) *DealHandlers {
	h := &DealHandlers{
		authn:  authn,
		deals:  deals,
		nudges: newSimpleRateLimiter(nudgeRateLimit, nudgeRateWindow, nil),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes wires the deal endpoints onto the provided router.
func (h *DealHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createDeal)
	r.Get("/", h.listDeals)
	r.Get("/live", h.listLiveDeals)
	r.Get("/live/{liveDealId}", h.getLiveDeal)
	r.Get("/{dealId}", h.getDeal)
	r.Put("/{dealId}", h.updateDeal)
	r.Put("/{dealId}/assignees", h.updateAssignees)
	r.Post("/{dealId}/submit", h.submitDeal)
	r.Post("/{dealId}/modify", h.modifyDeal)
	r.Post("/{dealId}/golive", h.goLive)
	r.Post("/{dealId}/nudge", h.nudgeInsurer)
}

func (h *DealHandlers) createDeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxDealBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createDealRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	deal, err := h.deals.CreateDeal(ctx, services.CreateDealCommand{
		ActorID: identity.UID,
		Name:    sanitizeText(req.Name),
	})
	if err != nil {
		writeDealError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, dealResponse{Deal: buildSubmissionPayload(deal)})
}

func (h *DealHandlers) listDeals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	cmd := services.ListDealsCommand{
		ActorID:    identity.UID,
		Pagination: paginationFromQuery(r),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("updated_after")); raw != "" {
		updatedAfter, err := parseRFC3339(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "updated_after must be RFC 3339", http.StatusBadRequest))
			return
		}
		cmd.UpdatedAfter = &updatedAfter
	}

	page, err := h.deals.ListDeals(ctx, cmd)
	if err != nil {
		writeDealError(ctx, w, err)
		return
	}

	items := make([]submissionPayload, 0, len(page.Items))
	for _, deal := range page.Items {
		items = append(items, buildSubmissionPayload(deal))
	}
	writeJSONResponse(w, http.StatusOK, dealListResponse{
		Deals:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *DealHandlers) getDeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	deal, err := h.deals.GetDeal(ctx, services.GetDealCommand{
		ActorID:      identity.UID,
		SubmissionID: chi.URLParam(r, "dealId"),
	})
	if err != nil {
		writeDealError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, dealResponse{Deal: buildSubmissionPayload(deal)})
}

func (h *DealHandlers) updateDeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxDealBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateDealRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	update, err := req.toSubmissionUpdate()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	deal, err := h.deals.UpdateDeal(ctx, services.UpdateDealCommand{
		ActorID:      identity.UID,
		SubmissionID: chi.URLParam(r, "dealId"),
		Update:       update,
	})
	if err != nil {
		writeDealError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, dealResponse{Deal: buildSubmissionPayload(deal)})
}

func (h *DealHandlers) updateAssignees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxDealBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateAssigneesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	assignees := make([]domain.Assignee, 0, len(req.Assignees))
	for _, a := range req.Assignees {
		assignees = append(assignees, domain.Assignee{
			UserID:    strings.TrimSpace(a.UserID),
			FirstName: sanitizeText(a.FirstName),
			LastName:  sanitizeText(a.LastName),
		})
	}

	deal, err := h.deals.UpdateAssignees(ctx, services.UpdateAssigneesCommand{
		ActorID:      identity.UID,
		SubmissionID: chi.URLParam(r, "dealId"),
		Assignees:    assignees,
	})
	if err != nil {
		writeDealError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, dealResponse{Deal: buildSubmissionPayload(deal)})
}

func (h *DealHandlers) submitDeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxDealBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req submitDealRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	deadline, err := parseRFC3339(req.SubmissionDeadline)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "submission_deadline must be RFC 3339", http.StatusBadRequest))
		return
	}

	result, err := h.deals.SubmitDeal(ctx, services.SubmitDealCommand{
		ActorID:            identity.UID,
		SubmissionID:       chi.URLParam(r, "dealId"),
		InsurerCompanyIDs:  req.InsurerCompanyIDs,
		SubmissionDeadline: deadline,
	})
	if err != nil {
		writeDealError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, submitDealResponse{
		Deal:          buildSubmissionPayload(result.Submission),
		Notifications: buildResolutionPayloads(result.Recipients),
	})
}

func (h *DealHandlers) modifyDeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxDealBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req modifyDealRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	deal, err := h.deals.ModifyDeal(ctx, services.ModifyDealCommand{
		ActorID:      identity.UID,
		SubmissionID: chi.URLParam(r, "dealId"),
		Notes:        sanitizeText(req.Notes),
	})
	if err != nil {
		writeDealError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, dealResponse{Deal: buildSubmissionPayload(deal)})
}

func (h *DealHandlers) goLive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxDealBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req goLiveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.FeedbackID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "feedback_id is required", http.StatusBadRequest))
		return
	}

	result, err := h.deals.GoLive(ctx, services.GoLiveCommand{
		ActorID:      identity.UID,
		SubmissionID: chi.URLParam(r, "dealId"),
		FeedbackID:   strings.TrimSpace(req.FeedbackID),
	})
	if err != nil {
		writeDealError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, goLiveResponse{
		Deal:     buildSubmissionPayload(result.Submission),
		LiveDeal: buildLiveDealPayload(result.LiveDeal),
	})
}

func (h *DealHandlers) nudgeInsurer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	if h.nudges != nil && !h.nudges.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many nudges, try again later", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxDealBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req nudgeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.InsurerCompanyID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "insurer_company_id is required", http.StatusBadRequest))
		return
	}

	if err := h.deals.NudgeInsurer(ctx, services.NudgeInsurerCommand{
		ActorID:          identity.UID,
		SubmissionID:     chi.URLParam(r, "dealId"),
		InsurerCompanyID: strings.TrimSpace(req.InsurerCompanyID),
	}); err != nil {
		writeDealError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DealHandlers) listLiveDeals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	page, err := h.deals.ListLiveDeals(ctx, services.ListLiveDealsCommand{
		ActorID:    identity.UID,
		Pagination: paginationFromQuery(r),
	})
	if err != nil {
		writeDealError(ctx, w, err)
		return
	}

	items := make([]liveDealPayload, 0, len(page.Items))
	for _, deal := range page.Items {
		items = append(items, buildLiveDealPayload(deal))
	}
	writeJSONResponse(w, http.StatusOK, liveDealListResponse{
		LiveDeals:     items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *DealHandlers) getLiveDeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.require(ctx, w)
	if !ok {
		return
	}

	deal, err := h.deals.GetLiveDeal(ctx, services.GetLiveDealCommand{
		ActorID:    identity.UID,
		LiveDealID: chi.URLParam(r, "liveDealId"),
	})
	if err != nil {
		writeDealError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, liveDealResponse{LiveDeal: buildLiveDealPayload(deal)})
}

func (h *DealHandlers) require(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.deals == nil {
		httpx.WriteError(ctx, w, httpx.NewError("deal_service_unavailable", "deal service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return requireIdentity(ctx, w)
}

func paginationFromQuery(r *http.Request) domain.Pagination {
	p := domain.Pagination{
		PageToken: strings.TrimSpace(r.URL.Query().Get("page_token")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil && size > 0 {
			p.PageSize = size
		}
	}
	return p
}

// Requests and responses ------------------------------------------------------

type createDealRequest struct {
	Name string `json:"name"`
}

type updateDealRequest struct {
	Name               string               `json:"name"`
	Terms              termsPayload         `json:"terms"`
	Pricing            pricingPayload       `json:"pricing"`
	Enhancements       []enhancementPayload `json:"enhancements"`
	Warranties         []warrantyPayload    `json:"warranties"`
	Files              []filePayload        `json:"files"`
	SubmissionDeadline string               `json:"submission_deadline,omitempty"`
	ETag               string               `json:"etag"`
}

func (req updateDealRequest) toSubmissionUpdate() (domain.SubmissionUpdate, error) {
	update := domain.SubmissionUpdate{
		Name: sanitizeText(req.Name),
		Terms: domain.DealTerms{
			TargetCompany: sanitizeText(req.Terms.TargetCompany),
			Jurisdiction:  sanitizeText(req.Terms.Jurisdiction),
			Sector:        sanitizeText(req.Terms.Sector),
			Description:   sanitizeText(req.Terms.Description),
		},
		Pricing: req.Pricing.toDomain(),
		ETag:    strings.TrimSpace(req.ETag),
	}

	if raw := strings.TrimSpace(req.Terms.SigningDate); raw != "" {
		signing, err := parseRFC3339(raw)
		if err != nil {
			return domain.SubmissionUpdate{}, errors.New("terms.signing_date must be RFC 3339")
		}
		update.Terms.SigningDate = &signing
	}
	if raw := strings.TrimSpace(req.SubmissionDeadline); raw != "" {
		deadline, err := parseRFC3339(raw)
		if err != nil {
			return domain.SubmissionUpdate{}, errors.New("submission_deadline must be RFC 3339")
		}
		update.SubmissionDeadline = &deadline
	}

	for _, e := range req.Enhancements {
		update.Enhancements = append(update.Enhancements, domain.Enhancement{
			Title:            sanitizeText(e.Title),
			Description:      sanitizeText(e.Description),
			BrokerRequestsIt: e.BrokerRequestsIt,
		})
	}
	for _, wty := range req.Warranties {
		update.Warranties = append(update.Warranties, domain.Warranty{
			Order:       wty.Order,
			Description: sanitizeText(wty.Description),
		})
	}
	for _, f := range req.Files {
		file := domain.DealFile{
			ID:          strings.TrimSpace(f.ID),
			FileName:    strings.TrimSpace(f.FileName),
			StoredName:  strings.TrimSpace(f.StoredName),
			ContentType: strings.TrimSpace(f.ContentType),
			SizeBytes:   f.SizeBytes,
			UploadedBy:  strings.TrimSpace(f.UploadedBy),
		}
		if raw := strings.TrimSpace(f.LastModified); raw != "" {
			lastModified, err := parseRFC3339(raw)
			if err != nil {
				return domain.SubmissionUpdate{}, errors.New("files.last_modified must be RFC 3339")
			}
			file.LastModified = lastModified
		}
		update.Files = append(update.Files, file)
	}

	return update, nil
}

type updateAssigneesRequest struct {
	Assignees []assigneePayload `json:"assignees"`
}

type submitDealRequest struct {
	InsurerCompanyIDs  []string `json:"insurer_company_ids"`
	SubmissionDeadline string   `json:"submission_deadline"`
}

type modifyDealRequest struct {
	Notes string `json:"notes"`
}

type goLiveRequest struct {
	FeedbackID string `json:"feedback_id"`
}

type nudgeRequest struct {
	InsurerCompanyID string `json:"insurer_company_id"`
}

type dealResponse struct {
	Deal submissionPayload `json:"deal"`
}

type dealListResponse struct {
	Deals         []submissionPayload `json:"deals"`
	NextPageToken string              `json:"next_page_token,omitempty"`
}

type submitDealResponse struct {
	Deal          submissionPayload   `json:"deal"`
	Notifications []resolutionPayload `json:"notifications"`
}

type goLiveResponse struct {
	Deal     submissionPayload `json:"deal"`
	LiveDeal liveDealPayload   `json:"live_deal"`
}

type liveDealResponse struct {
	LiveDeal liveDealPayload `json:"live_deal"`
}

type liveDealListResponse struct {
	LiveDeals     []liveDealPayload `json:"live_deals"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

// Payload shapes --------------------------------------------------------------

type submissionPayload struct {
	ID                 string                   `json:"id"`
	BrokerCompanyID    string                   `json:"broker_company_id"`
	Name               string                   `json:"name"`
	BrokerName         string                   `json:"broker_name"`
	Terms              termsPayload             `json:"terms"`
	Pricing            pricingPayload           `json:"pricing"`
	Enhancements       []enhancementPayload     `json:"enhancements,omitempty"`
	Warranties         []warrantyPayload        `json:"warranties,omitempty"`
	Assignees          []assigneePayload        `json:"assignees,omitempty"`
	Files              []filePayload            `json:"files,omitempty"`
	Feedbacks          []feedbackDetailsPayload `json:"feedbacks,omitempty"`
	Modifications      []modificationPayload    `json:"modifications,omitempty"`
	Submitted          bool                     `json:"submitted"`
	SubmissionDeadline string                   `json:"submission_deadline,omitempty"`
	ETag               string                   `json:"etag,omitempty"`
	CreatedAt          string                   `json:"created_at"`
	UpdatedAt          string                   `json:"updated_at"`
}

type termsPayload struct {
	TargetCompany string `json:"target_company,omitempty"`
	Jurisdiction  string `json:"jurisdiction,omitempty"`
	Sector        string `json:"sector,omitempty"`
	SigningDate   string `json:"signing_date,omitempty"`
	Description   string `json:"description,omitempty"`
}

type pricingPayload struct {
	Currency        string        `json:"currency"`
	EnterpriseValue int64         `json:"enterprise_value"`
	Limits          []bandPayload `json:"limits"`
	Retentions      []bandPayload `json:"retentions"`
}

func (p pricingPayload) toDomain() domain.SubmissionPricing {
	pricing := domain.SubmissionPricing{
		Currency:        strings.TrimSpace(p.Currency),
		EnterpriseValue: p.EnterpriseValue,
	}
	for _, band := range p.Limits {
		pricing.Limits = append(pricing.Limits, domain.PricingBand{Percentage: band.Percentage, Enabled: band.Enabled})
	}
	for _, band := range p.Retentions {
		pricing.Retentions = append(pricing.Retentions, domain.PricingBand{Percentage: band.Percentage, Enabled: band.Enabled})
	}
	return pricing
}

type bandPayload struct {
	Percentage float64 `json:"percentage"`
	Enabled    bool    `json:"enabled"`
}

type enhancementPayload struct {
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	BrokerRequestsIt bool   `json:"broker_requests_it"`
}

type warrantyPayload struct {
	Order       int    `json:"order"`
	Description string `json:"description"`
}

type assigneePayload struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type filePayload struct {
	ID           string `json:"id"`
	FileName     string `json:"file_name"`
	StoredName   string `json:"stored_name,omitempty"`
	ContentType  string `json:"content_type"`
	SizeBytes    int64  `json:"size_bytes"`
	UploadedBy   string `json:"uploaded_by,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

type feedbackDetailsPayload struct {
	FeedbackID         string            `json:"feedback_id"`
	InsuranceCompanyID string            `json:"insurance_company_id"`
	IsLive             bool              `json:"is_live"`
	Assignees          []assigneePayload `json:"assignees,omitempty"`
}

type modificationPayload struct {
	Notes      string `json:"notes"`
	ModifiedAt string `json:"modified_at"`
}

type liveDealPayload struct {
	ID                 string            `json:"id"`
	SubmissionID       string            `json:"deal_id"`
	FeedbackID         string            `json:"feedback_id"`
	BrokerCompanyID    string            `json:"broker_company_id"`
	InsuranceCompanyID string            `json:"insurance_company_id"`
	Name               string            `json:"name"`
	BrokerName         string            `json:"broker_name"`
	InsurerName        string            `json:"insurer_name"`
	AssigneesBroker    []assigneePayload `json:"assignees_broker,omitempty"`
	AssigneesInsurer   []assigneePayload `json:"assignees_insurer,omitempty"`
	Currency           string            `json:"currency"`
	EnterpriseValue    int64             `json:"enterprise_value"`
	CreatedAt          string            `json:"created_at"`
}

type resolutionPayload struct {
	CompanyID  string `json:"company_id"`
	Recipients int    `json:"recipients"`
	Error      string `json:"error,omitempty"`
}

func buildSubmissionPayload(deal services.DealSubmission) submissionPayload {
	payload := submissionPayload{
		ID:              deal.ID,
		BrokerCompanyID: deal.BrokerCompanyID,
		Name:            deal.Name,
		BrokerName:      deal.BrokerName,
		Terms: termsPayload{
			TargetCompany: deal.Terms.TargetCompany,
			Jurisdiction:  deal.Terms.Jurisdiction,
			Sector:        deal.Terms.Sector,
			SigningDate:   formatTimePointer(deal.Terms.SigningDate),
			Description:   deal.Terms.Description,
		},
		Pricing:            buildPricingPayload(deal.Pricing),
		Submitted:          deal.Submitted(),
		SubmissionDeadline: formatTimePointer(deal.SubmissionDeadline),
		ETag:               deal.ETag,
		CreatedAt:          formatTime(deal.CreatedAt),
		UpdatedAt:          formatTime(deal.UpdatedAt),
	}

	for _, e := range deal.Enhancements {
		payload.Enhancements = append(payload.Enhancements, enhancementPayload{
			Title:            e.Title,
			Description:      e.Description,
			BrokerRequestsIt: e.BrokerRequestsIt,
		})
	}
	for _, wty := range deal.Warranties {
		payload.Warranties = append(payload.Warranties, warrantyPayload{
			Order:       wty.Order,
			Description: wty.Description,
		})
	}
	payload.Assignees = buildAssigneePayloads(deal.Assignees)
	for _, f := range deal.Files {
		payload.Files = append(payload.Files, buildFilePayload(f))
	}
	for _, fb := range deal.Feedbacks {
		payload.Feedbacks = append(payload.Feedbacks, feedbackDetailsPayload{
			FeedbackID:         fb.FeedbackID,
			InsuranceCompanyID: fb.InsuranceCompanyID,
			IsLive:             fb.IsLive,
			Assignees:          buildAssigneePayloads(fb.Assignees),
		})
	}
	for _, m := range deal.Modifications {
		payload.Modifications = append(payload.Modifications, modificationPayload{
			Notes:      m.Notes,
			ModifiedAt: formatTime(m.ModifiedAt),
		})
	}

	return payload
}

func buildPricingPayload(pricing domain.SubmissionPricing) pricingPayload {
	payload := pricingPayload{
		Currency:        pricing.Currency,
		EnterpriseValue: pricing.EnterpriseValue,
	}
	for _, band := range pricing.Limits {
		payload.Limits = append(payload.Limits, bandPayload{Percentage: band.Percentage, Enabled: band.Enabled})
	}
	for _, band := range pricing.Retentions {
		payload.Retentions = append(payload.Retentions, bandPayload{Percentage: band.Percentage, Enabled: band.Enabled})
	}
	return payload
}

func buildAssigneePayloads(assignees []domain.Assignee) []assigneePayload {
	if len(assignees) == 0 {
		return nil
	}
	payloads := make([]assigneePayload, 0, len(assignees))
	for _, a := range assignees {
		payloads = append(payloads, assigneePayload{
			UserID:    a.UserID,
			FirstName: a.FirstName,
			LastName:  a.LastName,
		})
	}
	return payloads
}

func buildFilePayload(file domain.DealFile) filePayload {
	return filePayload{
		ID:           file.ID,
		FileName:     file.FileName,
		StoredName:   file.StoredName,
		ContentType:  file.ContentType,
		SizeBytes:    file.SizeBytes,
		UploadedBy:   file.UploadedBy,
		LastModified: formatTime(file.LastModified),
	}
}

func buildLiveDealPayload(deal services.LiveDeal) liveDealPayload {
	return liveDealPayload{
		ID:                 deal.ID,
		SubmissionID:       deal.SubmissionID,
		FeedbackID:         deal.FeedbackID,
		BrokerCompanyID:    deal.BrokerCompanyID,
		InsuranceCompanyID: deal.InsuranceCompanyID,
		Name:               deal.Name,
		BrokerName:         deal.BrokerName,
		InsurerName:        deal.InsurerName,
		AssigneesBroker:    buildAssigneePayloads(deal.AssigneesBroker),
		AssigneesInsurer:   buildAssigneePayloads(deal.AssigneesInsurer),
		Currency:           deal.Currency,
		EnterpriseValue:    deal.EnterpriseValue,
		CreatedAt:          formatTime(deal.CreatedAt),
	}
}

func buildResolutionPayloads(resolutions []services.RecipientResolution) []resolutionPayload {
	payloads := make([]resolutionPayload, 0, len(resolutions))
	for _, resolution := range resolutions {
		payload := resolutionPayload{
			CompanyID:  resolution.CompanyID,
			Recipients: len(resolution.Recipients),
		}
		if resolution.Err != nil {
			payload.Error = "recipient resolution failed"
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

func writeDealError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var dealErr *domain.DealError
	switch {
	case errors.Is(err, services.ErrDealInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAssigneesNotValid):
		httpx.WriteError(ctx, w, httpx.NewError("assignees_not_valid", "assignees must be employees of your company", http.StatusBadRequest))
	case errors.Is(err, services.ErrDealForbidden), errors.Is(err, services.ErrCompanyNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions for deal", http.StatusForbidden))
	case errors.Is(err, services.ErrDealConflict):
		httpx.WriteError(ctx, w, httpx.NewError("deal_conflict", "deal data has changed, reload and retry", http.StatusConflict))
	case errors.Is(err, services.ErrDealNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("deal_not_found", "deal not found", http.StatusNotFound))
	case errors.Is(err, services.ErrNotificationDispatchFailed):
		httpx.WriteError(ctx, w, httpx.NewError("notification_failed", "deal updated but notification dispatch failed", http.StatusBadGateway))
	case errors.As(err, &dealErr):
		httpx.WriteError(ctx, w, httpx.NewError(dealErr.Code(), dealErr.SafeMessage(), http.StatusUnprocessableEntity))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("deal_service_unavailable", "deal repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("deal_error", "failed to process deal request", http.StatusInternalServerError))
	}
}
