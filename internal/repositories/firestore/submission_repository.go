package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/coverplace/api/internal/domain"
	pfirestore "github.com/coverplace/api/internal/platform/firestore"
	"github.com/coverplace/api/internal/repositories"
)

const submissionsCollection = "deal_submissions"

// SubmissionRepository persists deal submission aggregates. Concurrency is
// enforced through Firestore update-time preconditions surfaced as ETags.
type SubmissionRepository struct {
	base *pfirestore.BaseRepository[submissionDocument]
}

// NewSubmissionRepository constructs a Firestore-backed submission repository.
func NewSubmissionRepository(provider *pfirestore.Provider) (*SubmissionRepository, error) {
	if provider == nil {
		return nil, errors.New("submission repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[submissionDocument](provider, submissionsCollection, nil, nil)
	return &SubmissionRepository{base: base}, nil
}

// Insert stores a new submission draft. The ID must be unique.
func (r *SubmissionRepository) Insert(ctx context.Context, submission domain.DealSubmission) (domain.DealSubmission, error) {
	if r == nil || r.base == nil {
		return domain.DealSubmission{}, errors.New("submission repository not initialised")
	}
	submissionID := strings.TrimSpace(submission.ID)
	if submissionID == "" {
		return domain.DealSubmission{}, errors.New("submission repository: submission id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, submissionID)
	if err != nil {
		return domain.DealSubmission{}, err
	}
	doc := encodeSubmissionDocument(submission)
	result, err := docRef.Create(ctx, doc)
	if err != nil {
		return domain.DealSubmission{}, pfirestore.WrapError("deal_submissions.insert", err)
	}
	saved := submission
	saved.ETag = encodeUpdateToken(result.UpdateTime)
	saved.UpdatedAt = result.UpdateTime.UTC()
	return saved, nil
}

// Update replaces the persisted submission state. The submission's ETag must
// match the stored document's update time or the write fails with a conflict.
func (r *SubmissionRepository) Update(ctx context.Context, submission domain.DealSubmission) (domain.DealSubmission, error) {
	if r == nil || r.base == nil {
		return domain.DealSubmission{}, errors.New("submission repository not initialised")
	}
	submissionID := strings.TrimSpace(submission.ID)
	if submissionID == "" {
		return domain.DealSubmission{}, errors.New("submission repository: submission id is required")
	}
	expectedUpdate, err := decodeUpdateToken(submission.ETag)
	if err != nil {
		return domain.DealSubmission{}, fmt.Errorf("submission repository: invalid etag: %w", err)
	}

	doc := encodeSubmissionDocument(submission)
	updates := []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "brokerName", Value: doc.BrokerName},
		{Path: "terms", Value: doc.Terms},
		{Path: "pricing", Value: doc.Pricing},
		{Path: "enhancements", Value: doc.Enhancements},
		{Path: "warranties", Value: doc.Warranties},
		{Path: "assignees", Value: doc.Assignees},
		{Path: "files", Value: doc.Files},
		{Path: "feedbacks", Value: doc.Feedbacks},
		{Path: "insurerIds", Value: doc.InsurerIDs},
		{Path: "modifications", Value: doc.Modifications},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
	if doc.SubmissionDeadline == nil {
		updates = append(updates, firestore.Update{Path: "submissionDeadline", Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: "submissionDeadline", Value: *doc.SubmissionDeadline})
	}

	result, err := r.base.Update(ctx, submissionID, updates, firestore.LastUpdateTime(expectedUpdate.UTC()))
	if err != nil {
		return domain.DealSubmission{}, err
	}

	saved := submission
	saved.ETag = encodeUpdateToken(result.UpdateTime)
	saved.UpdatedAt = result.UpdateTime.UTC()
	return saved, nil
}

// FindByID fetches a single submission.
func (r *SubmissionRepository) FindByID(ctx context.Context, submissionID string) (domain.DealSubmission, error) {
	if r == nil || r.base == nil {
		return domain.DealSubmission{}, errors.New("submission repository not initialised")
	}
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return domain.DealSubmission{}, errors.New("submission repository: submission id is required")
	}
	doc, err := r.base.Get(ctx, submissionID)
	if err != nil {
		return domain.DealSubmission{}, err
	}
	return decodeSubmissionDocument(submissionID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns the submissions visible to one company ordered by most recent update.
func (r *SubmissionRepository) List(ctx context.Context, filter repositories.SubmissionListFilter) (domain.CursorPage[domain.DealSubmission], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.DealSubmission]{}, errors.New("submission repository not initialised")
	}
	companyID := strings.TrimSpace(filter.CompanyID)
	if companyID == "" {
		return domain.CursorPage[domain.DealSubmission]{}, errors.New("submission repository: company id is required")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.DealSubmission]{}, fmt.Errorf("submission repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	var updatedAfter *time.Time
	if filter.UpdatedAfter != nil {
		value := filter.UpdatedAfter.UTC()
		if !value.IsZero() {
			updatedAfter = &value
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.CompanyType == domain.CompanyTypeInsurer {
			q = q.Where("insurerIds", "array-contains", companyID)
		} else {
			q = q.Where("brokerCompanyId", "==", companyID)
		}
		if updatedAfter != nil {
			q = q.Where("updatedAt", ">", *updatedAfter)
		}
		q = q.OrderBy("updatedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.DealSubmission]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.UpdatedAt
		if tokenTime.IsZero() {
			tokenTime = last.UpdateTime
		}
		nextToken = encodeListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.DealSubmission, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeSubmissionDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}

	return domain.CursorPage[domain.DealSubmission]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type submissionDocument struct {
	BrokerCompanyID    string                    `firestore:"brokerCompanyId"`
	Name               string                    `firestore:"name"`
	BrokerName         string                    `firestore:"brokerName"`
	Terms              termsDocument             `firestore:"terms"`
	Pricing            submissionPricingDocument `firestore:"pricing"`
	Enhancements       []enhancementDocument     `firestore:"enhancements"`
	Warranties         []warrantyDocument        `firestore:"warranties"`
	Assignees          []assigneeDocument        `firestore:"assignees"`
	Files              []dealFileDocument        `firestore:"files"`
	Feedbacks          []feedbackDetailsDocument `firestore:"feedbacks"`
	InsurerIDs         []string                  `firestore:"insurerIds"`
	Modifications      []modificationDocument    `firestore:"modifications"`
	SubmissionDeadline *time.Time                `firestore:"submissionDeadline,omitempty"`
	CreatedAt          time.Time                 `firestore:"createdAt"`
	UpdatedAt          time.Time                 `firestore:"updatedAt"`
}

type termsDocument struct {
	TargetCompany string     `firestore:"targetCompany"`
	Jurisdiction  string     `firestore:"jurisdiction"`
	Sector        string     `firestore:"sector"`
	SigningDate   *time.Time `firestore:"signingDate,omitempty"`
	Description   string     `firestore:"description"`
}

type pricingBandDocument struct {
	Percentage float64 `firestore:"percentage"`
	Enabled    bool    `firestore:"enabled"`
}

type submissionPricingDocument struct {
	Currency        string                `firestore:"currency"`
	EnterpriseValue int64                 `firestore:"enterpriseValue"`
	Limits          []pricingBandDocument `firestore:"limits"`
	Retentions      []pricingBandDocument `firestore:"retentions"`
}

type enhancementDocument struct {
	Title            string `firestore:"title"`
	Description      string `firestore:"description"`
	BrokerRequestsIt bool   `firestore:"brokerRequestsIt"`
}

type warrantyDocument struct {
	Order       int    `firestore:"order"`
	Description string `firestore:"description"`
}

type assigneeDocument struct {
	UserID    string `firestore:"userId"`
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
}

type dealFileDocument struct {
	ID           string    `firestore:"id"`
	FileName     string    `firestore:"fileName"`
	StoredName   string    `firestore:"storedName"`
	ContentType  string    `firestore:"contentType"`
	SizeBytes    int64     `firestore:"sizeBytes"`
	UploadedBy   string    `firestore:"uploadedBy"`
	LastModified time.Time `firestore:"lastModified"`
}

type feedbackDetailsDocument struct {
	FeedbackID         string             `firestore:"feedbackId"`
	InsuranceCompanyID string             `firestore:"insuranceCompanyId"`
	IsLive             bool               `firestore:"isLive"`
	Assignees          []assigneeDocument `firestore:"assignees"`
}

type modificationDocument struct {
	Notes      string    `firestore:"notes"`
	ModifiedAt time.Time `firestore:"modifiedAt"`
}

func encodeSubmissionDocument(submission domain.DealSubmission) submissionDocument {
	doc := submissionDocument{
		BrokerCompanyID:    strings.TrimSpace(submission.BrokerCompanyID),
		Name:               strings.TrimSpace(submission.Name),
		BrokerName:         strings.TrimSpace(submission.BrokerName),
		Terms:              encodeTerms(submission.Terms),
		Pricing:            encodeSubmissionPricing(submission.Pricing),
		Enhancements:       encodeEnhancements(submission.Enhancements),
		Warranties:         encodeWarranties(submission.Warranties),
		Assignees:          encodeAssignees(submission.Assignees),
		Files:              encodeDealFiles(submission.Files),
		Feedbacks:          encodeFeedbackDetails(submission.Feedbacks),
		Modifications:      encodeModifications(submission.Modifications),
		SubmissionDeadline: normalizeTimePointer(submission.SubmissionDeadline),
		CreatedAt:          submission.CreatedAt.UTC(),
		UpdatedAt:          submission.UpdatedAt.UTC(),
	}
	doc.InsurerIDs = make([]string, 0, len(doc.Feedbacks))
	for _, fb := range doc.Feedbacks {
		doc.InsurerIDs = append(doc.InsurerIDs, fb.InsuranceCompanyID)
	}
	return doc
}

func decodeSubmissionDocument(id string, doc submissionDocument, createdAt, updatedAt time.Time) domain.DealSubmission {
	submission := domain.DealSubmission{
		ID:                 strings.TrimSpace(id),
		BrokerCompanyID:    strings.TrimSpace(doc.BrokerCompanyID),
		Name:               strings.TrimSpace(doc.Name),
		BrokerName:         strings.TrimSpace(doc.BrokerName),
		Terms:              decodeTerms(doc.Terms),
		Pricing:            decodeSubmissionPricing(doc.Pricing),
		Enhancements:       decodeEnhancements(doc.Enhancements),
		Warranties:         decodeWarranties(doc.Warranties),
		Assignees:          decodeAssignees(doc.Assignees),
		Files:              decodeDealFiles(doc.Files),
		Feedbacks:          decodeFeedbackDetails(doc.Feedbacks),
		Modifications:      decodeModifications(doc.Modifications),
		SubmissionDeadline: normalizeTimePointer(doc.SubmissionDeadline),
		ETag:               encodeUpdateToken(updatedAt),
		CreatedAt:          chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:          chooseTime(doc.UpdatedAt, updatedAt),
	}
	return submission.NormalizeFiles()
}

func encodeTerms(terms domain.DealTerms) termsDocument {
	return termsDocument{
		TargetCompany: strings.TrimSpace(terms.TargetCompany),
		Jurisdiction:  strings.TrimSpace(terms.Jurisdiction),
		Sector:        strings.TrimSpace(terms.Sector),
		SigningDate:   normalizeTimePointer(terms.SigningDate),
		Description:   terms.Description,
	}
}

func decodeTerms(doc termsDocument) domain.DealTerms {
	return domain.DealTerms{
		TargetCompany: strings.TrimSpace(doc.TargetCompany),
		Jurisdiction:  strings.TrimSpace(doc.Jurisdiction),
		Sector:        strings.TrimSpace(doc.Sector),
		SigningDate:   normalizeTimePointer(doc.SigningDate),
		Description:   doc.Description,
	}
}

func encodeSubmissionPricing(pricing domain.SubmissionPricing) submissionPricingDocument {
	return submissionPricingDocument{
		Currency:        strings.TrimSpace(pricing.Currency),
		EnterpriseValue: pricing.EnterpriseValue,
		Limits:          encodePricingBands(pricing.Limits),
		Retentions:      encodePricingBands(pricing.Retentions),
	}
}

func decodeSubmissionPricing(doc submissionPricingDocument) domain.SubmissionPricing {
	return domain.SubmissionPricing{
		Currency:        strings.TrimSpace(doc.Currency),
		EnterpriseValue: doc.EnterpriseValue,
		Limits:          decodePricingBands(doc.Limits),
		Retentions:      decodePricingBands(doc.Retentions),
	}
}

func encodePricingBands(bands []domain.PricingBand) []pricingBandDocument {
	if len(bands) == 0 {
		return nil
	}
	docs := make([]pricingBandDocument, 0, len(bands))
	for _, band := range bands {
		docs = append(docs, pricingBandDocument{Percentage: band.Percentage, Enabled: band.Enabled})
	}
	return docs
}

func decodePricingBands(docs []pricingBandDocument) []domain.PricingBand {
	if len(docs) == 0 {
		return nil
	}
	bands := make([]domain.PricingBand, 0, len(docs))
	for _, doc := range docs {
		bands = append(bands, domain.PricingBand{Percentage: doc.Percentage, Enabled: doc.Enabled})
	}
	return bands
}

func encodeEnhancements(enhancements []domain.Enhancement) []enhancementDocument {
	if len(enhancements) == 0 {
		return nil
	}
	docs := make([]enhancementDocument, 0, len(enhancements))
	for _, e := range enhancements {
		docs = append(docs, enhancementDocument{
			Title:            strings.TrimSpace(e.Title),
			Description:      e.Description,
			BrokerRequestsIt: e.BrokerRequestsIt,
		})
	}
	return docs
}

func decodeEnhancements(docs []enhancementDocument) []domain.Enhancement {
	if len(docs) == 0 {
		return nil
	}
	enhancements := make([]domain.Enhancement, 0, len(docs))
	for _, doc := range docs {
		enhancements = append(enhancements, domain.Enhancement{
			Title:            strings.TrimSpace(doc.Title),
			Description:      doc.Description,
			BrokerRequestsIt: doc.BrokerRequestsIt,
		})
	}
	return enhancements
}

func encodeWarranties(warranties []domain.Warranty) []warrantyDocument {
	if len(warranties) == 0 {
		return nil
	}
	docs := make([]warrantyDocument, 0, len(warranties))
	for _, w := range warranties {
		docs = append(docs, warrantyDocument{Order: w.Order, Description: w.Description})
	}
	return docs
}

func decodeWarranties(docs []warrantyDocument) []domain.Warranty {
	if len(docs) == 0 {
		return nil
	}
	warranties := make([]domain.Warranty, 0, len(docs))
	for _, doc := range docs {
		warranties = append(warranties, domain.Warranty{Order: doc.Order, Description: doc.Description})
	}
	return warranties
}

func encodeAssignees(assignees []domain.Assignee) []assigneeDocument {
	if len(assignees) == 0 {
		return nil
	}
	docs := make([]assigneeDocument, 0, len(assignees))
	for _, a := range assignees {
		docs = append(docs, assigneeDocument{
			UserID:    strings.TrimSpace(a.UserID),
			FirstName: strings.TrimSpace(a.FirstName),
			LastName:  strings.TrimSpace(a.LastName),
		})
	}
	return docs
}

func decodeAssignees(docs []assigneeDocument) []domain.Assignee {
	if len(docs) == 0 {
		return nil
	}
	assignees := make([]domain.Assignee, 0, len(docs))
	for _, doc := range docs {
		assignees = append(assignees, domain.Assignee{
			UserID:    strings.TrimSpace(doc.UserID),
			FirstName: strings.TrimSpace(doc.FirstName),
			LastName:  strings.TrimSpace(doc.LastName),
		})
	}
	return assignees
}

func encodeDealFiles(files []domain.DealFile) []dealFileDocument {
	if len(files) == 0 {
		return nil
	}
	docs := make([]dealFileDocument, 0, len(files))
	for _, f := range files {
		docs = append(docs, dealFileDocument{
			ID:           strings.TrimSpace(f.ID),
			FileName:     strings.TrimSpace(f.FileName),
			StoredName:   strings.TrimSpace(f.StoredName),
			ContentType:  strings.TrimSpace(f.ContentType),
			SizeBytes:    f.SizeBytes,
			UploadedBy:   strings.TrimSpace(f.UploadedBy),
			LastModified: f.LastModified.UTC(),
		})
	}
	return docs
}

func decodeDealFiles(docs []dealFileDocument) []domain.DealFile {
	if len(docs) == 0 {
		return nil
	}
	files := make([]domain.DealFile, 0, len(docs))
	for _, doc := range docs {
		files = append(files, domain.DealFile{
			ID:           strings.TrimSpace(doc.ID),
			FileName:     strings.TrimSpace(doc.FileName),
			StoredName:   strings.TrimSpace(doc.StoredName),
			ContentType:  strings.TrimSpace(doc.ContentType),
			SizeBytes:    doc.SizeBytes,
			UploadedBy:   strings.TrimSpace(doc.UploadedBy),
			LastModified: doc.LastModified.UTC(),
		})
	}
	return files
}

func encodeFeedbackDetails(details []domain.FeedbackDetails) []feedbackDetailsDocument {
	if len(details) == 0 {
		return nil
	}
	docs := make([]feedbackDetailsDocument, 0, len(details))
	for _, d := range details {
		docs = append(docs, feedbackDetailsDocument{
			FeedbackID:         strings.TrimSpace(d.FeedbackID),
			InsuranceCompanyID: strings.TrimSpace(d.InsuranceCompanyID),
			IsLive:             d.IsLive,
			Assignees:          encodeAssignees(d.Assignees),
		})
	}
	return docs
}

func decodeFeedbackDetails(docs []feedbackDetailsDocument) []domain.FeedbackDetails {
	if len(docs) == 0 {
		return nil
	}
	details := make([]domain.FeedbackDetails, 0, len(docs))
	for _, doc := range docs {
		details = append(details, domain.FeedbackDetails{
			FeedbackID:         strings.TrimSpace(doc.FeedbackID),
			InsuranceCompanyID: strings.TrimSpace(doc.InsuranceCompanyID),
			IsLive:             doc.IsLive,
			Assignees:          decodeAssignees(doc.Assignees),
		})
	}
	return details
}

func encodeModifications(modifications []domain.Modification) []modificationDocument {
	if len(modifications) == 0 {
		return nil
	}
	docs := make([]modificationDocument, 0, len(modifications))
	for _, m := range modifications {
		docs = append(docs, modificationDocument{Notes: m.Notes, ModifiedAt: m.ModifiedAt.UTC()})
	}
	return docs
}

func decodeModifications(docs []modificationDocument) []domain.Modification {
	if len(docs) == 0 {
		return nil
	}
	modifications := make([]domain.Modification, 0, len(docs))
	for _, doc := range docs {
		modifications = append(modifications, domain.Modification{Notes: doc.Notes, ModifiedAt: doc.ModifiedAt.UTC()})
	}
	return modifications
}

func chooseTime(primary time.Time, fallback time.Time) time.Time {
	if !primary.IsZero() {
		return primary.UTC()
	}
	if !fallback.IsZero() {
		return fallback.UTC()
	}
	return time.Time{}
}

func normalizeTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	if value.IsZero() {
		return nil
	}
	ts := value.UTC()
	return &ts
}

// encodeUpdateToken derives the opaque concurrency token handed to clients
// from the document's server-side update timestamp.
func encodeUpdateToken(updateTime time.Time) string {
	if updateTime.IsZero() {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(updateTime.UTC().Format(time.RFC3339Nano)))
}

func decodeUpdateToken(token string) (time.Time, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, errors.New("token is required")
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

func encodeListToken(updatedAt time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", updatedAt.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeListToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}

func notFoundError(op string, detail string) error {
	return pfirestore.WrapError(op, status.Error(codes.NotFound, detail))
}
