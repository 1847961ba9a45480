package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/coverplace/api/internal/domain"
	pfirestore "github.com/coverplace/api/internal/platform/firestore"
)

const companiesCollection = "companies"

// CompanyRepository reads the broker/insurer company directory. The directory
// is provisioned out of band; this repository never writes.
type CompanyRepository struct {
	base *pfirestore.BaseRepository[companyDocument]
}

// NewCompanyRepository constructs a Firestore-backed company directory.
func NewCompanyRepository(provider *pfirestore.Provider) (*CompanyRepository, error) {
	if provider == nil {
		return nil, errors.New("company repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[companyDocument](provider, companiesCollection, nil, nil)
	return &CompanyRepository{base: base}, nil
}

// FindByID fetches a single company.
func (r *CompanyRepository) FindByID(ctx context.Context, companyID string) (domain.Company, error) {
	if r == nil || r.base == nil {
		return domain.Company{}, errors.New("company repository not initialised")
	}
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return domain.Company{}, errors.New("company repository: company id is required")
	}
	doc, err := r.base.Get(ctx, companyID)
	if err != nil {
		return domain.Company{}, err
	}
	return decodeCompanyDocument(companyID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// FindByUser resolves the company a user belongs to. Users belong to exactly
// one company in the directory.
func (r *CompanyRepository) FindByUser(ctx context.Context, userID string) (domain.Company, error) {
	if r == nil || r.base == nil {
		return domain.Company{}, errors.New("company repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Company{}, errors.New("company repository: user id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("employeeIds", "array-contains", userID).Limit(1)
	})
	if err != nil {
		return domain.Company{}, err
	}
	if len(docs) == 0 {
		return domain.Company{}, notFoundError("companies.find_by_user", "company not found for user")
	}
	doc := docs[0]
	return decodeCompanyDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// ListByType returns all companies of the given type ordered by name.
func (r *CompanyRepository) ListByType(ctx context.Context, companyType domain.CompanyType) ([]domain.Company, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("company repository not initialised")
	}
	if companyType == "" {
		return nil, errors.New("company repository: company type is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("type", "==", string(companyType)).
			OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	companies := make([]domain.Company, 0, len(docs))
	for _, doc := range docs {
		companies = append(companies, decodeCompanyDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return companies, nil
}

type companyDocument struct {
	Name        string             `firestore:"name"`
	Type        string             `firestore:"type"`
	Employees   []employeeDocument `firestore:"employees"`
	EmployeeIDs []string           `firestore:"employeeIds"`
	CreatedAt   time.Time          `firestore:"createdAt"`
	UpdatedAt   time.Time          `firestore:"updatedAt"`
}

type employeeDocument struct {
	UserID    string `firestore:"userId"`
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
	Email     string `firestore:"email"`
	Locale    string `firestore:"locale"`
}

func decodeCompanyDocument(id string, doc companyDocument, createdAt, updatedAt time.Time) domain.Company {
	company := domain.Company{
		ID:        strings.TrimSpace(id),
		Name:      strings.TrimSpace(doc.Name),
		Type:      domain.CompanyType(strings.TrimSpace(doc.Type)),
		CreatedAt: chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt: chooseTime(doc.UpdatedAt, updatedAt),
	}
	if len(doc.Employees) > 0 {
		company.Employees = make([]domain.Employee, 0, len(doc.Employees))
		for _, e := range doc.Employees {
			company.Employees = append(company.Employees, domain.Employee{
				UserID:    strings.TrimSpace(e.UserID),
				FirstName: strings.TrimSpace(e.FirstName),
				LastName:  strings.TrimSpace(e.LastName),
				Email:     strings.TrimSpace(e.Email),
				Locale:    strings.TrimSpace(e.Locale),
			})
		}
	}
	return company
}
