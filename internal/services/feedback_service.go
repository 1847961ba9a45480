package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/coverplace/api/internal/domain"
	"github.com/coverplace/api/internal/repositories"
)

var (
	// ErrFeedbackInvalidInput indicates validation failures for feedback commands.
	ErrFeedbackInvalidInput = errors.New("feedback: invalid input")
	// ErrFeedbackNotFound indicates the feedback could not be located.
	ErrFeedbackNotFound = errors.New("feedback: not found")
	// ErrFeedbackForbidden indicates the caller's company may not act on the feedback.
	ErrFeedbackForbidden = errors.New("feedback: forbidden")
	// ErrFeedbackConflict signals a concurrent edit rejected by the version token check.
	ErrFeedbackConflict = errors.New("feedback: data has changed")
	// ErrFeedbackRepositoryFailure wraps unexpected persistence failures.
	ErrFeedbackRepositoryFailure = errors.New("feedback: repository failure")
)

// FeedbackServiceDeps bundles collaborators required to construct a FeedbackService.
type FeedbackServiceDeps struct {
	Feedbacks   repositories.FeedbackRepository
	Submissions repositories.SubmissionRepository
	Directory   CompanyDirectory
	Dispatcher  NotificationDispatcher
	Clock       func() time.Time
	IDGenerator func(prefix string) string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type feedbackService struct {
	feedbacks   repositories.FeedbackRepository
	submissions repositories.SubmissionRepository
	directory   CompanyDirectory
	notify      *notifier
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

var _ FeedbackService = (*feedbackService)(nil)

// NewFeedbackService wires dependencies into the insurer-side workflow service.
func NewFeedbackService(deps FeedbackServiceDeps) (FeedbackService, error) {
	if deps.Feedbacks == nil {
		return nil, errors.New("feedback service: feedback repository is required")
	}
	if deps.Submissions == nil {
		return nil, errors.New("feedback service: submission repository is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("feedback service: company directory is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func(prefix string) string {
			return prefix + ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	utcClock := func() time.Time {
		return clock().UTC()
	}

	return &feedbackService{
		feedbacks:   deps.Feedbacks,
		submissions: deps.Submissions,
		directory:   deps.Directory,
		notify: &notifier{
			dispatcher: deps.Dispatcher,
			directory:  deps.Directory,
			clock:      utcClock,
			newID:      newID,
			logger:     logger,
		},
		clock:  utcClock,
		logger: logger,
	}, nil
}

func (s *feedbackService) GetFeedback(ctx context.Context, cmd GetFeedbackCommand) (SubmissionFeedback, error) {
	company, err := s.resolveInsurer(ctx, cmd.ActorID)
	if err != nil {
		return SubmissionFeedback{}, err
	}
	return s.fetchCompanyFeedback(ctx, company, cmd.SubmissionID)
}

func (s *feedbackService) GetAllFeedback(ctx context.Context, cmd GetAllFeedbackCommand) ([]SubmissionFeedback, error) {
	company, err := s.resolveCompany(ctx, cmd.ActorID)
	if err != nil {
		return nil, err
	}

	submission, err := s.fetchSubmission(ctx, cmd.SubmissionID)
	if err != nil {
		return nil, err
	}
	if submission.BrokerCompanyID != company.ID {
		return nil, fmt.Errorf("%w: company %s does not own deal %s", ErrFeedbackForbidden, company.ID, submission.ID)
	}

	feedbacks, err := s.feedbacks.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return feedbacks, nil
}

func (s *feedbackService) UpdateFeedback(ctx context.Context, cmd UpdateFeedbackCommand) (SubmissionFeedback, error) {
	company, err := s.resolveInsurer(ctx, cmd.ActorID)
	if err != nil {
		return SubmissionFeedback{}, err
	}

	feedback, err := s.fetchCompanyFeedback(ctx, company, cmd.SubmissionID)
	if err != nil {
		return SubmissionFeedback{}, err
	}

	updated, err := feedback.Update(cmd.Update, s.clock())
	if err != nil {
		return SubmissionFeedback{}, err
	}

	persisted, err := s.feedbacks.Update(ctx, updated)
	if err != nil {
		return SubmissionFeedback{}, s.mapRepositoryError(err)
	}
	return persisted, nil
}

func (s *feedbackService) AcceptNda(ctx context.Context, cmd AcceptNdaCommand) (SubmissionFeedback, error) {
	company, err := s.resolveInsurer(ctx, cmd.ActorID)
	if err != nil {
		return SubmissionFeedback{}, err
	}

	feedback, err := s.fetchCompanyFeedback(ctx, company, cmd.SubmissionID)
	if err != nil {
		return SubmissionFeedback{}, err
	}
	if feedback.NdaAccepted {
		return feedback, nil
	}

	persisted, err := s.feedbacks.Update(ctx, feedback.AcceptNda(s.clock()))
	if err != nil {
		return SubmissionFeedback{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "feedback.nda_accepted", map[string]any{
		"feedbackId": persisted.ID,
		"companyId":  company.ID,
	})
	return persisted, nil
}

func (s *feedbackService) SubmitFeedback(ctx context.Context, cmd SubmitFeedbackCommand) (SubmissionFeedback, error) {
	return s.transitionAndNotifyBroker(ctx, cmd.ActorID, cmd.SubmissionID,
		func(feedback SubmissionFeedback, now time.Time) SubmissionFeedback {
			return feedback.Submit(now)
		},
		domain.NotificationBrokerNewFeedback, "feedback.submitted")
}

func (s *feedbackService) DeclineFeedback(ctx context.Context, cmd DeclineFeedbackCommand) (SubmissionFeedback, error) {
	return s.transitionAndNotifyBroker(ctx, cmd.ActorID, cmd.SubmissionID,
		func(feedback SubmissionFeedback, now time.Time) SubmissionFeedback {
			return feedback.Decline(now)
		},
		domain.NotificationBrokerSubmissionDeclined, "feedback.declined")
}

func (s *feedbackService) transitionAndNotifyBroker(ctx context.Context, actorID, submissionID string, transition func(SubmissionFeedback, time.Time) SubmissionFeedback, notificationType NotificationType, event string) (SubmissionFeedback, error) {
	company, err := s.resolveInsurer(ctx, actorID)
	if err != nil {
		return SubmissionFeedback{}, err
	}

	feedback, err := s.fetchCompanyFeedback(ctx, company, submissionID)
	if err != nil {
		return SubmissionFeedback{}, err
	}

	persisted, err := s.feedbacks.Update(ctx, transition(feedback, s.clock()))
	if err != nil {
		return SubmissionFeedback{}, s.mapRepositoryError(err)
	}

	submission, err := s.fetchSubmission(ctx, persisted.SubmissionID)
	if err != nil {
		return SubmissionFeedback{}, err
	}

	resolutions := s.notify.resolveRecipients(ctx, []string{submission.BrokerCompanyID})
	data := notificationData(submission, map[string]string{
		domain.NotificationKeyInsurerCompany: persisted.InsuranceCompanyName,
	})
	if err := s.notify.send(ctx, notificationType, resolutions, data); err != nil {
		return SubmissionFeedback{}, err
	}

	s.logger(ctx, event, map[string]any{
		"feedbackId": persisted.ID,
		"dealId":     persisted.SubmissionID,
		"companyId":  company.ID,
	})
	return persisted, nil
}

func (s *feedbackService) resolveCompany(ctx context.Context, actorID string) (Company, error) {
	company, err := s.directory.ResolveCompanyOfUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrCompanyNotFound) {
			return Company{}, fmt.Errorf("%w: %v", ErrFeedbackForbidden, err)
		}
		return Company{}, err
	}
	return company, nil
}

func (s *feedbackService) resolveInsurer(ctx context.Context, actorID string) (Company, error) {
	company, err := s.resolveCompany(ctx, actorID)
	if err != nil {
		return Company{}, err
	}
	if company.Type != domain.CompanyTypeInsurer {
		return Company{}, fmt.Errorf("%w: company %s is not an insurer", ErrFeedbackForbidden, company.ID)
	}
	return company, nil
}

func (s *feedbackService) fetchCompanyFeedback(ctx context.Context, company Company, submissionID string) (SubmissionFeedback, error) {
	if strings.TrimSpace(submissionID) == "" {
		return SubmissionFeedback{}, fmt.Errorf("%w: submission id is required", ErrFeedbackInvalidInput)
	}
	feedback, err := s.feedbacks.FindByCompany(ctx, company.ID, submissionID)
	if err != nil {
		return SubmissionFeedback{}, s.mapRepositoryError(err)
	}
	return feedback, nil
}

func (s *feedbackService) fetchSubmission(ctx context.Context, submissionID string) (DealSubmission, error) {
	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return DealSubmission{}, mapDealRepositoryError(err)
	}
	return submission, nil
}

func (s *feedbackService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrFeedbackNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrFeedbackConflict, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrFeedbackRepositoryFailure, err)
}
