package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/coverplace/api/internal/domain"
	"github.com/coverplace/api/internal/platform/auth"
	"github.com/coverplace/api/internal/platform/httpx"
	"github.com/coverplace/api/internal/services"
)

// CompanyHandlers exposes the read-only company directory endpoints: the
// insurer list brokers pick from and the caller's own company.
type CompanyHandlers struct {
	authn     *auth.Authenticator
	directory services.CompanyDirectory
}

// NewCompanyHandlers constructs handlers for the directory endpoints.
func NewCompanyHandlers(authn *auth.Authenticator, directory services.CompanyDirectory) *CompanyHandlers {
	return &CompanyHandlers{
		authn:     authn,
		directory: directory,
	}
}

// InsurerRoutes wires the /insurers endpoints onto the provided router.
func (h *CompanyHandlers) InsurerRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listInsurers)
}

// MeCompanyRoutes wires the /me/company endpoint onto the provided router.
func (h *CompanyHandlers) MeCompanyRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getOwnCompany)
}

func (h *CompanyHandlers) listInsurers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.directory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("directory_unavailable", "company directory unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	insurers, err := h.directory.ListInsurers(ctx)
	if err != nil {
		writeCompanyError(ctx, w, err)
		return
	}

	items := make([]companyPayload, 0, len(insurers))
	for _, company := range insurers {
		items = append(items, buildCompanyPayload(company))
	}
	writeJSONResponse(w, http.StatusOK, companyListResponse{Companies: items})
}

func (h *CompanyHandlers) getOwnCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.directory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("directory_unavailable", "company directory unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	company, err := h.directory.ResolveCompanyOfUser(ctx, identity.UID)
	if err != nil {
		writeCompanyError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, companyResponse{Company: buildCompanyPayload(company)})
}

type companyResponse struct {
	Company companyPayload `json:"company"`
}

type companyListResponse struct {
	Companies []companyPayload `json:"companies"`
}

type companyPayload struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Employees []employeePayload `json:"employees,omitempty"`
}

type employeePayload struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email"`
	Locale    string `json:"locale,omitempty"`
}

func buildCompanyPayload(company domain.Company) companyPayload {
	payload := companyPayload{
		ID:   company.ID,
		Name: company.Name,
		Type: string(company.Type),
	}
	for _, employee := range company.Employees {
		payload.Employees = append(payload.Employees, employeePayload{
			UserID:    employee.UserID,
			FirstName: employee.FirstName,
			LastName:  employee.LastName,
			Email:     employee.Email,
			Locale:    employee.Locale,
		})
	}
	return payload
}

func writeCompanyError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCompanyInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCompanyNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("company_not_found", "company not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("directory_error", "failed to resolve company directory", http.StatusInternalServerError))
	}
}
