package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/coverplace/api/internal/platform/firestore"
	"github.com/coverplace/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider    *pfirestore.Provider
	submissions *SubmissionRepository
	feedbacks   *FeedbackRepository
	liveDeals   *LiveDealRepository
	companies   *CompanyRepository
	health      repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every repository against the shared provider. The
// health repository is supplied by the caller so probes can cover more than
// Firestore alone.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	submissions, err := NewSubmissionRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	feedbacks, err := NewFeedbackRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	liveDeals, err := NewLiveDealRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	companies, err := NewCompanyRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	return &Registry{
		provider:    provider,
		submissions: submissions,
		feedbacks:   feedbacks,
		liveDeals:   liveDeals,
		companies:   companies,
		health:      health,
	}, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Submissions returns the submission repository.
func (r *Registry) Submissions() repositories.SubmissionRepository { return r.submissions }

// Feedbacks returns the feedback repository.
func (r *Registry) Feedbacks() repositories.FeedbackRepository { return r.feedbacks }

// LiveDeals returns the live-deal repository.
func (r *Registry) LiveDeals() repositories.LiveDealRepository { return r.liveDeals }

// Companies returns the company directory.
func (r *Registry) Companies() repositories.CompanyRepository { return r.companies }

// Health returns the health repository, if configured.
func (r *Registry) Health() repositories.HealthRepository { return r.health }
