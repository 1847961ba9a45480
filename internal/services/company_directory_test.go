package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/coverplace/api/internal/domain"
)

type stubCompanyRepo struct {
	companies map[string]domain.Company
	listErr   error
}

func newStubCompanyRepo(companies ...domain.Company) *stubCompanyRepo {
	repo := &stubCompanyRepo{companies: map[string]domain.Company{}}
	for _, company := range companies {
		repo.companies[company.ID] = company
	}
	return repo
}

func (r *stubCompanyRepo) FindByID(_ context.Context, companyID string) (domain.Company, error) {
	company, ok := r.companies[companyID]
	if !ok {
		return domain.Company{}, stubRepoError{notFound: true}
	}
	return company, nil
}

func (r *stubCompanyRepo) FindByUser(_ context.Context, userID string) (domain.Company, error) {
	for _, company := range r.companies {
		if company.HasEmployee(userID) {
			return company, nil
		}
	}
	return domain.Company{}, stubRepoError{notFound: true}
}

func (r *stubCompanyRepo) ListByType(_ context.Context, companyType domain.CompanyType) ([]domain.Company, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var matched []domain.Company
	for _, company := range r.companies {
		if company.Type == companyType {
			matched = append(matched, company)
		}
	}
	return matched, nil
}

func newTestDirectory(t *testing.T, repo *stubCompanyRepo) CompanyDirectory {
	t.Helper()
	directory, err := NewCompanyDirectory(CompanyDirectoryDeps{Companies: repo})
	if err != nil {
		t.Fatalf("NewCompanyDirectory: %v", err)
	}
	return directory
}

func TestResolveCompanyOfUser(t *testing.T) {
	directory := newTestDirectory(t, newStubCompanyRepo(brokerCompany()))

	company, err := directory.ResolveCompanyOfUser(context.Background(), "user_broker")
	if err != nil {
		t.Fatalf("ResolveCompanyOfUser: %v", err)
	}
	if company.ID != "cmp_broker" {
		t.Fatalf("unexpected company %+v", company)
	}

	if _, err := directory.ResolveCompanyOfUser(context.Background(), "user_unknown"); !errors.Is(err, ErrCompanyNotFound) {
		t.Fatalf("expected ErrCompanyNotFound, got %v", err)
	}
	if _, err := directory.ResolveCompanyOfUser(context.Background(), "  "); !errors.Is(err, ErrCompanyInvalidInput) {
		t.Fatalf("expected ErrCompanyInvalidInput for blank id, got %v", err)
	}
}

func TestResolveCompanyNormalizesLocales(t *testing.T) {
	company := domain.Company{
		ID:   "cmp_mixed",
		Name: "Polyglot Re",
		Type: domain.CompanyTypeInsurer,
		Employees: []domain.Employee{
			{UserID: "u1", Email: "a@polyglot.example", Locale: "DE-de"},
			{UserID: "u2", Email: "b@polyglot.example", Locale: ""},
			{UserID: "u3", Email: "c@polyglot.example", Locale: "not-a-locale-at-all!"},
		},
	}
	directory := newTestDirectory(t, newStubCompanyRepo(company))

	resolved, err := directory.ResolveCompany(context.Background(), "cmp_mixed")
	if err != nil {
		t.Fatalf("ResolveCompany: %v", err)
	}

	got := map[string]string{}
	for _, employee := range resolved.Employees {
		got[employee.UserID] = employee.Locale
	}
	if got["u1"] != "de-DE" {
		t.Errorf("expected canonical de-DE, got %q", got["u1"])
	}
	if got["u2"] != "en" {
		t.Errorf("expected fallback en for empty locale, got %q", got["u2"])
	}
	if got["u3"] != "en" {
		t.Errorf("expected fallback en for junk locale, got %q", got["u3"])
	}
}

func TestValidateEmployeesBelongToCompany(t *testing.T) {
	directory := newTestDirectory(t, newStubCompanyRepo(brokerCompany()))
	company := brokerCompany()

	if !directory.ValidateEmployeesBelongToCompany(company, []string{"user_broker", "user_broker2"}) {
		t.Fatalf("expected employees to validate")
	}
	if directory.ValidateEmployeesBelongToCompany(company, []string{"user_broker", "user_outsider"}) {
		t.Fatalf("expected outsider to fail validation")
	}
}

func TestListInsurers(t *testing.T) {
	insurer := insurerCompany("cmp_ins_a", "Atlas Underwriting", "user_ins_a", "alex@atlas.example")
	directory := newTestDirectory(t, newStubCompanyRepo(brokerCompany(), insurer))

	insurers, err := directory.ListInsurers(context.Background())
	if err != nil {
		t.Fatalf("ListInsurers: %v", err)
	}
	if len(insurers) != 1 || insurers[0].ID != "cmp_ins_a" {
		t.Fatalf("unexpected insurers %+v", insurers)
	}
}

func TestListInsurersMapsRepositoryFailure(t *testing.T) {
	repo := newStubCompanyRepo()
	repo.listErr = errors.New("directory offline")
	directory := newTestDirectory(t, repo)

	if _, err := directory.ListInsurers(context.Background()); !errors.Is(err, ErrCompanyRepositoryFailure) {
		t.Fatalf("expected ErrCompanyRepositoryFailure, got %v", err)
	}
}
