package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	domain "github.com/coverplace/api/internal/domain"
	"github.com/coverplace/api/internal/repositories"
)

var (
	// ErrCompanyInvalidInput indicates validation failures for directory lookups.
	ErrCompanyInvalidInput = errors.New("company: invalid input")
	// ErrCompanyNotFound indicates the company or user could not be resolved.
	ErrCompanyNotFound = errors.New("company: not found")
	// ErrCompanyRepositoryFailure wraps unexpected directory failures.
	ErrCompanyRepositoryFailure = errors.New("company: repository failure")
)

const defaultRecipientLocale = "en"

// CompanyDirectoryDeps bundles collaborators for the directory service.
type CompanyDirectoryDeps struct {
	Companies repositories.CompanyRepository
}

type companyDirectory struct {
	companies repositories.CompanyRepository
}

var _ CompanyDirectory = (*companyDirectory)(nil)

// NewCompanyDirectory wires the read-only company directory used for
// authorization and recipient resolution.
func NewCompanyDirectory(deps CompanyDirectoryDeps) (CompanyDirectory, error) {
	if deps.Companies == nil {
		return nil, errors.New("company directory: company repository is required")
	}
	return &companyDirectory{companies: deps.Companies}, nil
}

func (d *companyDirectory) ResolveCompanyOfUser(ctx context.Context, userID string) (Company, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Company{}, fmt.Errorf("%w: user id is required", ErrCompanyInvalidInput)
	}

	company, err := d.companies.FindByUser(ctx, userID)
	if err != nil {
		return Company{}, d.mapError(err)
	}
	return normalizeCompany(company), nil
}

func (d *companyDirectory) ResolveCompany(ctx context.Context, companyID string) (Company, error) {
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return Company{}, fmt.Errorf("%w: company id is required", ErrCompanyInvalidInput)
	}

	company, err := d.companies.FindByID(ctx, companyID)
	if err != nil {
		return Company{}, d.mapError(err)
	}
	return normalizeCompany(company), nil
}

func (d *companyDirectory) ResolveEmployees(ctx context.Context, companyID string) ([]Employee, error) {
	company, err := d.ResolveCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return company.Employees, nil
}

func (d *companyDirectory) ValidateEmployeesBelongToCompany(company Company, userIDs []string) bool {
	for _, userID := range userIDs {
		if !company.HasEmployee(strings.TrimSpace(userID)) {
			return false
		}
	}
	return true
}

func (d *companyDirectory) ListInsurers(ctx context.Context) ([]Company, error) {
	companies, err := d.companies.ListByType(ctx, domain.CompanyTypeInsurer)
	if err != nil {
		return nil, d.mapError(err)
	}
	normalized := make([]Company, 0, len(companies))
	for _, company := range companies {
		normalized = append(normalized, normalizeCompany(company))
	}
	return normalized, nil
}

func (d *companyDirectory) mapError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCompanyNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrCompanyRepositoryFailure, err)
}

func normalizeCompany(company Company) Company {
	if len(company.Employees) == 0 {
		return company
	}
	employees := make([]Employee, len(company.Employees))
	for i, employee := range company.Employees {
		employee.Locale = normalizeLocale(employee.Locale)
		employees[i] = employee
	}
	company.Employees = employees
	return company
}

// normalizeLocale canonicalises directory locale strings into BCP 47 tags so
// the mailer templates never see free-form values.
func normalizeLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return defaultRecipientLocale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return defaultRecipientLocale
	}
	return tag.String()
}
