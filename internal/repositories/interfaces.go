package repositories

import (
	"context"
	"time"

	domain "github.com/coverplace/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Submissions() SubmissionRepository
	Feedbacks() FeedbackRepository
	LiveDeals() LiveDealRepository
	Companies() CompanyRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// SubmissionRepository persists deal submissions. Update performs a
// compare-and-swap on the submission's ETag and must surface a conflict
// categorised RepositoryError when the stored token no longer matches.
type SubmissionRepository interface {
	Insert(ctx context.Context, submission domain.DealSubmission) (domain.DealSubmission, error)
	Update(ctx context.Context, submission domain.DealSubmission) (domain.DealSubmission, error)
	FindByID(ctx context.Context, submissionID string) (domain.DealSubmission, error)
	List(ctx context.Context, filter SubmissionListFilter) (domain.CursorPage[domain.DealSubmission], error)
}

// FeedbackRepository persists per-insurer feedback aggregates, keyed by
// (insurance company, submission). Insert receives the parent submission for
// list-item projections. Update is ETag compare-and-swap like submissions.
type FeedbackRepository interface {
	Insert(ctx context.Context, feedback domain.SubmissionFeedback, submission domain.DealSubmission) (domain.SubmissionFeedback, error)
	Update(ctx context.Context, feedback domain.SubmissionFeedback) (domain.SubmissionFeedback, error)
	FindByID(ctx context.Context, feedbackID string) (domain.SubmissionFeedback, error)
	FindByCompany(ctx context.Context, insuranceCompanyID string, submissionID string) (domain.SubmissionFeedback, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]domain.SubmissionFeedback, error)
}

// LiveDealRepository stores the immutable go-live snapshots.
type LiveDealRepository interface {
	Insert(ctx context.Context, deal domain.LiveDeal) (domain.LiveDeal, error)
	FindByID(ctx context.Context, liveDealID string) (domain.LiveDeal, error)
	List(ctx context.Context, filter LiveDealListFilter) (domain.CursorPage[domain.LiveDeal], error)
}

// CompanyRepository is the read-only directory of broker and insurer companies.
type CompanyRepository interface {
	FindByID(ctx context.Context, companyID string) (domain.Company, error)
	FindByUser(ctx context.Context, userID string) (domain.Company, error)
	ListByType(ctx context.Context, companyType domain.CompanyType) ([]domain.Company, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// SubmissionListFilter scopes submission listings to one company's view.
type SubmissionListFilter struct {
	CompanyID    string
	CompanyType  domain.CompanyType
	UpdatedAfter *time.Time
	Pagination   domain.Pagination
}

// LiveDealListFilter scopes live-deal listings to one company.
type LiveDealListFilter struct {
	CompanyID   string
	CompanyType domain.CompanyType
	Pagination  domain.Pagination
}
