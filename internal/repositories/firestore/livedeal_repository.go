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
	"github.com/coverplace/api/internal/repositories"
)

const liveDealsCollection = "live_deals"

// LiveDealRepository stores the immutable go-live snapshots. Documents are
// written once and never updated.
type LiveDealRepository struct {
	base *pfirestore.BaseRepository[liveDealDocument]
}

// NewLiveDealRepository constructs a Firestore-backed live-deal repository.
func NewLiveDealRepository(provider *pfirestore.Provider) (*LiveDealRepository, error) {
	if provider == nil {
		return nil, errors.New("live deal repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[liveDealDocument](provider, liveDealsCollection, nil, nil)
	return &LiveDealRepository{base: base}, nil
}

// Insert stores the snapshot. The ID must be unique.
func (r *LiveDealRepository) Insert(ctx context.Context, deal domain.LiveDeal) (domain.LiveDeal, error) {
	if r == nil || r.base == nil {
		return domain.LiveDeal{}, errors.New("live deal repository not initialised")
	}
	dealID := strings.TrimSpace(deal.ID)
	if dealID == "" {
		return domain.LiveDeal{}, errors.New("live deal repository: live deal id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, dealID)
	if err != nil {
		return domain.LiveDeal{}, err
	}
	doc := encodeLiveDealDocument(deal)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return domain.LiveDeal{}, pfirestore.WrapError("live_deals.insert", err)
	}
	return deal, nil
}

// FindByID fetches a single live deal.
func (r *LiveDealRepository) FindByID(ctx context.Context, liveDealID string) (domain.LiveDeal, error) {
	if r == nil || r.base == nil {
		return domain.LiveDeal{}, errors.New("live deal repository not initialised")
	}
	liveDealID = strings.TrimSpace(liveDealID)
	if liveDealID == "" {
		return domain.LiveDeal{}, errors.New("live deal repository: live deal id is required")
	}
	doc, err := r.base.Get(ctx, liveDealID)
	if err != nil {
		return domain.LiveDeal{}, err
	}
	return decodeLiveDealDocument(liveDealID, doc.Data, doc.CreateTime), nil
}

// List returns the live deals visible to one company ordered by most recent first.
func (r *LiveDealRepository) List(ctx context.Context, filter repositories.LiveDealListFilter) (domain.CursorPage[domain.LiveDeal], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.LiveDeal]{}, errors.New("live deal repository not initialised")
	}
	companyID := strings.TrimSpace(filter.CompanyID)
	if companyID == "" {
		return domain.CursorPage[domain.LiveDeal]{}, errors.New("live deal repository: company id is required")
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
			return domain.CursorPage[domain.LiveDeal]{}, fmt.Errorf("live deal repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.CompanyType == domain.CompanyTypeInsurer {
			q = q.Where("insuranceCompanyId", "==", companyID)
		} else {
			q = q.Where("brokerCompanyId", "==", companyID)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.LiveDeal]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.LiveDeal, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeLiveDealDocument(doc.ID, doc.Data, doc.CreateTime))
	}

	return domain.CursorPage[domain.LiveDeal]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type liveDealDocument struct {
	SubmissionID       string `firestore:"submissionId"`
	FeedbackID         string `firestore:"feedbackId"`
	BrokerCompanyID    string `firestore:"brokerCompanyId"`
	InsuranceCompanyID string `firestore:"insuranceCompanyId"`

	Name        string `firestore:"name"`
	BrokerName  string `firestore:"brokerName"`
	InsurerName string `firestore:"insurerName"`

	AssigneesBroker  []assigneeDocument `firestore:"assigneesBroker"`
	AssigneesInsurer []assigneeDocument `firestore:"assigneesInsurer"`

	Currency        string `firestore:"currency"`
	EnterpriseValue int64  `firestore:"enterpriseValue"`

	CreatedAt time.Time `firestore:"createdAt"`
}

func encodeLiveDealDocument(deal domain.LiveDeal) liveDealDocument {
	return liveDealDocument{
		SubmissionID:       strings.TrimSpace(deal.SubmissionID),
		FeedbackID:         strings.TrimSpace(deal.FeedbackID),
		BrokerCompanyID:    strings.TrimSpace(deal.BrokerCompanyID),
		InsuranceCompanyID: strings.TrimSpace(deal.InsuranceCompanyID),
		Name:               strings.TrimSpace(deal.Name),
		BrokerName:         strings.TrimSpace(deal.BrokerName),
		InsurerName:        strings.TrimSpace(deal.InsurerName),
		AssigneesBroker:    encodeAssignees(deal.AssigneesBroker),
		AssigneesInsurer:   encodeAssignees(deal.AssigneesInsurer),
		Currency:           strings.TrimSpace(deal.Currency),
		EnterpriseValue:    deal.EnterpriseValue,
		CreatedAt:          deal.CreatedAt.UTC(),
	}
}

func decodeLiveDealDocument(id string, doc liveDealDocument, createdAt time.Time) domain.LiveDeal {
	return domain.LiveDeal{
		ID:                 strings.TrimSpace(id),
		SubmissionID:       strings.TrimSpace(doc.SubmissionID),
		FeedbackID:         strings.TrimSpace(doc.FeedbackID),
		BrokerCompanyID:    strings.TrimSpace(doc.BrokerCompanyID),
		InsuranceCompanyID: strings.TrimSpace(doc.InsuranceCompanyID),
		Name:               strings.TrimSpace(doc.Name),
		BrokerName:         strings.TrimSpace(doc.BrokerName),
		InsurerName:        strings.TrimSpace(doc.InsurerName),
		AssigneesBroker:    decodeAssignees(doc.AssigneesBroker),
		AssigneesInsurer:   decodeAssignees(doc.AssigneesInsurer),
		Currency:           strings.TrimSpace(doc.Currency),
		EnterpriseValue:    doc.EnterpriseValue,
		CreatedAt:          chooseTime(doc.CreatedAt, createdAt),
	}
}
