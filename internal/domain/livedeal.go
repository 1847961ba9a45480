package domain

import (
	"fmt"
	"strings"
	"time"
)

// LiveDeal is the immutable point-in-time projection created when a
// submission goes live with one insurer's feedback. It is never mutated.
type LiveDeal struct {
	ID                 string
	SubmissionID       string
	FeedbackID         string
	BrokerCompanyID    string
	InsuranceCompanyID string

	Name        string
	BrokerName  string
	InsurerName string

	AssigneesBroker  []Assignee
	AssigneesInsurer []Assignee

	Currency        string
	EnterpriseValue int64

	CreatedAt time.Time
}

// NewLiveDeal materializes the live-deal snapshot from the submission and the
// winning feedback. Insurer assignees come from the submission's matching
// feedback details, the list of record, not from the feedback aggregate.
func NewLiveDeal(id string, submission DealSubmission, feedback SubmissionFeedback, now time.Time) (LiveDeal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return LiveDeal{}, fmt.Errorf("%w: live deal id is required", ErrInvalidEntity)
	}

	details, ok := submission.FeedbackFor(feedback.InsuranceCompanyID)
	if !ok {
		return LiveDeal{}, fmt.Errorf("%w: insurer %s", ErrFeedbackNotFound, feedback.InsuranceCompanyID)
	}

	return LiveDeal{
		ID:                 id,
		SubmissionID:       submission.ID,
		FeedbackID:         feedback.ID,
		BrokerCompanyID:    submission.BrokerCompanyID,
		InsuranceCompanyID: feedback.InsuranceCompanyID,
		Name:               submission.Name,
		BrokerName:         submission.BrokerName,
		InsurerName:        feedback.InsuranceCompanyName,
		AssigneesBroker:    cloneAssignees(submission.Assignees),
		AssigneesInsurer:   cloneAssignees(details.Assignees),
		Currency:           submission.Pricing.Currency,
		EnterpriseValue:    submission.Pricing.EnterpriseValue,
		CreatedAt:          now.UTC(),
	}, nil
}
