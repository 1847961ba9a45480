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

const (
	submissionIDPrefix = "sub_"
	feedbackIDPrefix   = "fbk_"
	liveDealIDPrefix   = "lvd_"
)

var (
	// ErrDealInvalidInput indicates validation failures for deal commands.
	ErrDealInvalidInput = errors.New("deal: invalid input")
	// ErrDealNotFound indicates the submission or live deal could not be located.
	ErrDealNotFound = errors.New("deal: not found")
	// ErrDealForbidden indicates the caller's company may not act on the deal.
	ErrDealForbidden = errors.New("deal: forbidden")
	// ErrDealConflict signals a concurrent edit rejected by the version token check.
	ErrDealConflict = errors.New("deal: data has changed")
	// ErrDealRepositoryFailure wraps unexpected persistence failures.
	ErrDealRepositoryFailure = errors.New("deal: repository failure")
	// ErrAssigneesNotValid indicates a proposed assignee is not an employee of the caller's company.
	ErrAssigneesNotValid = errors.New("deal: assignees are not valid")
)

// DealFileArchiver snapshots a submission's attachments when a deal goes live.
type DealFileArchiver interface {
	ArchiveDealFiles(ctx context.Context, submission DealSubmission) error
}

// DealServiceDeps bundles collaborators required to construct a DealService.
type DealServiceDeps struct {
	Submissions repositories.SubmissionRepository
	Feedbacks   repositories.FeedbackRepository
	LiveDeals   repositories.LiveDealRepository
	Directory   CompanyDirectory
	Dispatcher  NotificationDispatcher
	Archiver    DealFileArchiver
	Clock       func() time.Time
	IDGenerator func(prefix string) string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type dealService struct {
	submissions repositories.SubmissionRepository
	feedbacks   repositories.FeedbackRepository
	liveDeals   repositories.LiveDealRepository
	directory   CompanyDirectory
	archiver    DealFileArchiver
	notify      *notifier
	clock       func() time.Time
	newID       func(prefix string) string
	logger      func(context.Context, string, map[string]any)
}

var _ DealService = (*dealService)(nil)

// NewDealService wires dependencies into the broker-side workflow service.
func NewDealService(deps DealServiceDeps) (DealService, error) {
	if deps.Submissions == nil {
		return nil, errors.New("deal service: submission repository is required")
	}
	if deps.Feedbacks == nil {
		return nil, errors.New("deal service: feedback repository is required")
	}
	if deps.LiveDeals == nil {
		return nil, errors.New("deal service: live deal repository is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("deal service: company directory is required")
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

	return &dealService{
		submissions: deps.Submissions,
		feedbacks:   deps.Feedbacks,
		liveDeals:   deps.LiveDeals,
		directory:   deps.Directory,
		archiver:    deps.Archiver,
		notify: &notifier{
			dispatcher: deps.Dispatcher,
			directory:  deps.Directory,
			clock:      utcClock,
			newID:      newID,
			logger:     logger,
		},
		clock:  utcClock,
		newID:  newID,
		logger: logger,
	}, nil
}

func (s *dealService) CreateDeal(ctx context.Context, cmd CreateDealCommand) (DealSubmission, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return DealSubmission{}, fmt.Errorf("%w: deal name is required", ErrDealInvalidInput)
	}

	company, err := s.resolveBroker(ctx, cmd.ActorID)
	if err != nil {
		return DealSubmission{}, err
	}

	submission, err := domain.NewDealSubmission(s.newID(submissionIDPrefix), company.ID, cmd.Name, company.Name, s.clock())
	if err != nil {
		return DealSubmission{}, fmt.Errorf("%w: %v", ErrDealInvalidInput, err)
	}

	created, err := s.submissions.Insert(ctx, submission)
	if err != nil {
		return DealSubmission{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "deal.created", map[string]any{
		"dealId":    created.ID,
		"companyId": company.ID,
	})
	return created, nil
}

func (s *dealService) GetDeal(ctx context.Context, cmd GetDealCommand) (DealSubmission, error) {
	company, err := s.resolveCompany(ctx, cmd.ActorID)
	if err != nil {
		return DealSubmission{}, err
	}

	submission, err := s.fetchSubmission(ctx, cmd.SubmissionID)
	if err != nil {
		return DealSubmission{}, err
	}
	if err := authorizeDealAccess(submission, company); err != nil {
		return DealSubmission{}, err
	}
	return submission, nil
}

func (s *dealService) ListDeals(ctx context.Context, cmd ListDealsCommand) (domain.CursorPage[DealSubmission], error) {
	company, err := s.resolveCompany(ctx, cmd.ActorID)
	if err != nil {
		return domain.CursorPage[DealSubmission]{}, err
	}

	page, err := s.submissions.List(ctx, repositories.SubmissionListFilter{
		CompanyID:    company.ID,
		CompanyType:  company.Type,
		UpdatedAfter: cmd.UpdatedAfter,
		Pagination:   cmd.Pagination,
	})
	if err != nil {
		return domain.CursorPage[DealSubmission]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *dealService) UpdateDeal(ctx context.Context, cmd UpdateDealCommand) (DealSubmission, error) {
	company, err := s.resolveBroker(ctx, cmd.ActorID)
	if err != nil {
		return DealSubmission{}, err
	}

	submission, err := s.fetchOwnedSubmission(ctx, cmd.SubmissionID, company)
	if err != nil {
		return DealSubmission{}, err
	}

	updated, err := submission.Update(cmd.Update, s.clock())
	if err != nil {
		return DealSubmission{}, err
	}

	persisted, err := s.submissions.Update(ctx, updated)
	if err != nil {
		return DealSubmission{}, s.mapRepositoryError(err)
	}
	return persisted, nil
}

func (s *dealService) UpdateAssignees(ctx context.Context, cmd UpdateAssigneesCommand) (DealSubmission, error) {
	company, err := s.resolveCompany(ctx, cmd.ActorID)
	if err != nil {
		return DealSubmission{}, err
	}

	userIDs := make([]string, 0, len(cmd.Assignees))
	for _, assignee := range cmd.Assignees {
		userIDs = append(userIDs, assignee.UserID)
	}
	if !s.directory.ValidateEmployeesBelongToCompany(company, userIDs) {
		return DealSubmission{}, fmt.Errorf("%w: company %s", ErrAssigneesNotValid, company.ID)
	}

	submission, err := s.fetchSubmission(ctx, cmd.SubmissionID)
	if err != nil {
		return DealSubmission{}, err
	}

	updated, err := submission.UpdateAssignees(cmd.Assignees, company.ID, s.clock())
	if err != nil {
		return DealSubmission{}, err
	}

	persisted, err := s.submissions.Update(ctx, updated)
	if err != nil {
		return DealSubmission{}, s.mapRepositoryError(err)
	}
	return persisted, nil
}

func (s *dealService) SubmitDeal(ctx context.Context, cmd SubmitDealCommand) (SubmitDealResult, error) {
	if len(cmd.InsurerCompanyIDs) == 0 {
		return SubmitDealResult{}, fmt.Errorf("%w: at least one insurer is required", ErrDealInvalidInput)
	}

	company, err := s.resolveBroker(ctx, cmd.ActorID)
	if err != nil {
		return SubmitDealResult{}, err
	}

	submission, err := s.fetchOwnedSubmission(ctx, cmd.SubmissionID, company)
	if err != nil {
		return SubmitDealResult{}, err
	}

	now := s.clock()
	feedbacks := make([]SubmissionFeedback, 0, len(cmd.InsurerCompanyIDs))
	details := make([]FeedbackDetails, 0, len(cmd.InsurerCompanyIDs))
	for _, insurerID := range cmd.InsurerCompanyIDs {
		insurer, err := s.directory.ResolveCompany(ctx, insurerID)
		if err != nil {
			return SubmitDealResult{}, err
		}
		if insurer.Type != domain.CompanyTypeInsurer {
			return SubmitDealResult{}, fmt.Errorf("%w: company %s is not an insurer", ErrDealInvalidInput, insurerID)
		}

		feedback, err := domain.NewSubmissionFeedback(s.newID(feedbackIDPrefix), insurer.ID, insurer.Name, submission, now)
		if err != nil {
			return SubmitDealResult{}, fmt.Errorf("%w: %v", ErrDealInvalidInput, err)
		}
		feedbacks = append(feedbacks, feedback)
		details = append(details, FeedbackDetails{
			FeedbackID:         feedback.ID,
			InsuranceCompanyID: insurer.ID,
		})
	}

	submitted, err := submission.Submit(details, cmd.SubmissionDeadline, now)
	if err != nil {
		return SubmitDealResult{}, err
	}

	persisted, err := s.submissions.Update(ctx, submitted)
	if err != nil {
		return SubmitDealResult{}, s.mapRepositoryError(err)
	}

	// Feedbacks are paired with the pre-submit submission for their
	// list-item projection.
	created := make([]SubmissionFeedback, 0, len(feedbacks))
	for _, feedback := range feedbacks {
		inserted, err := s.feedbacks.Insert(ctx, feedback, submission)
		if err != nil {
			return SubmitDealResult{}, s.mapRepositoryError(err)
		}
		created = append(created, inserted)
	}

	resolutions := s.notify.resolveRecipients(ctx, cmd.InsurerCompanyIDs)
	if err := s.notify.send(ctx, domain.NotificationInsurerNewSubmission, resolutions, notificationData(persisted, nil)); err != nil {
		return SubmitDealResult{}, err
	}

	s.logger(ctx, "deal.submitted", map[string]any{
		"dealId":   persisted.ID,
		"insurers": len(created),
	})
	return SubmitDealResult{
		Submission: persisted,
		Feedbacks:  created,
		Recipients: resolutions,
	}, nil
}

func (s *dealService) ModifyDeal(ctx context.Context, cmd ModifyDealCommand) (DealSubmission, error) {
	company, err := s.resolveBroker(ctx, cmd.ActorID)
	if err != nil {
		return DealSubmission{}, err
	}

	submission, err := s.fetchOwnedSubmission(ctx, cmd.SubmissionID, company)
	if err != nil {
		return DealSubmission{}, err
	}

	now := s.clock()
	modified, err := submission.ModifySubmission(cmd.Notes, now)
	if err != nil {
		return DealSubmission{}, err
	}

	persisted, err := s.submissions.Update(ctx, modified)
	if err != nil {
		return DealSubmission{}, s.mapRepositoryError(err)
	}

	// Refresh each insurer's working copy against the changed deal and flag
	// submitted offers for re-review. Best effort per insurer.
	insurerIDs := make([]string, 0, len(persisted.Feedbacks))
	for _, detail := range persisted.Feedbacks {
		insurerIDs = append(insurerIDs, detail.InsuranceCompanyID)

		feedback, err := s.feedbacks.FindByCompany(ctx, detail.InsuranceCompanyID, persisted.ID)
		if err != nil {
			s.logger(ctx, "deal.modify.feedback_skipped", map[string]any{
				"dealId":    persisted.ID,
				"companyId": detail.InsuranceCompanyID,
				"error":     err.Error(),
			})
			continue
		}

		refreshed := feedback.Reparse(persisted, now)
		if refreshed.Submitted() {
			flagged, err := refreshed.SubmissionModified(now)
			if err == nil {
				refreshed = flagged
			}
		}
		if _, err := s.feedbacks.Update(ctx, refreshed); err != nil {
			s.logger(ctx, "deal.modify.feedback_update_failed", map[string]any{
				"dealId":     persisted.ID,
				"feedbackId": refreshed.ID,
				"error":      err.Error(),
			})
		}
	}

	resolutions := s.notify.resolveRecipients(ctx, insurerIDs)
	if err := s.notify.send(ctx, domain.NotificationInsurerSubmissionModified, resolutions, notificationData(persisted, nil)); err != nil {
		return DealSubmission{}, err
	}
	return persisted, nil
}

func (s *dealService) GoLive(ctx context.Context, cmd GoLiveCommand) (GoLiveResult, error) {
	company, err := s.resolveBroker(ctx, cmd.ActorID)
	if err != nil {
		return GoLiveResult{}, err
	}

	submission, err := s.fetchOwnedSubmission(ctx, cmd.SubmissionID, company)
	if err != nil {
		return GoLiveResult{}, err
	}

	now := s.clock()

	// Both transitions must validate before either aggregate is written: a
	// rejected winner would otherwise leave the submission marked live with
	// no live deal behind it.
	feedback, err := s.feedbacks.FindByID(ctx, cmd.FeedbackID)
	if err != nil {
		return GoLiveResult{}, s.mapRepositoryError(err)
	}
	wonFeedback, err := feedback.GoLive(now)
	if err != nil {
		return GoLiveResult{}, err
	}
	live, err := submission.GoLive(cmd.FeedbackID, now)
	if err != nil {
		return GoLiveResult{}, err
	}

	persisted, err := s.submissions.Update(ctx, live)
	if err != nil {
		return GoLiveResult{}, s.mapRepositoryError(err)
	}
	if _, err := s.feedbacks.Update(ctx, wonFeedback); err != nil {
		return GoLiveResult{}, s.mapRepositoryError(err)
	}

	liveDeal, err := domain.NewLiveDeal(s.newID(liveDealIDPrefix), persisted, wonFeedback, now)
	if err != nil {
		return GoLiveResult{}, err
	}
	createdDeal, err := s.liveDeals.Insert(ctx, liveDeal)
	if err != nil {
		return GoLiveResult{}, s.mapRepositoryError(err)
	}

	if s.archiver != nil {
		if err := s.archiver.ArchiveDealFiles(ctx, persisted); err != nil {
			s.logger(ctx, "deal.golive.archive_failed", map[string]any{
				"dealId": persisted.ID,
				"error":  err.Error(),
			})
		}
	}

	data := notificationData(persisted, map[string]string{
		domain.NotificationKeyInsurerCompany: wonFeedback.InsuranceCompanyName,
	})

	accepted := s.notify.resolveRecipients(ctx, []string{wonFeedback.InsuranceCompanyID})
	if err := s.notify.send(ctx, domain.NotificationInsurerFeedbackAccepted, accepted, data); err != nil {
		return GoLiveResult{}, err
	}

	var declinedIDs []string
	for _, detail := range persisted.Feedbacks {
		if !detail.IsLive {
			declinedIDs = append(declinedIDs, detail.InsuranceCompanyID)
		}
	}
	declined := s.notify.resolveRecipients(ctx, declinedIDs)
	if len(declinedIDs) > 0 {
		if err := s.notify.send(ctx, domain.NotificationInsurerFeedbackDeclined, declined, notificationData(persisted, nil)); err != nil {
			return GoLiveResult{}, err
		}
	}

	s.logger(ctx, "deal.live", map[string]any{
		"dealId":     persisted.ID,
		"liveDealId": createdDeal.ID,
		"feedbackId": wonFeedback.ID,
	})

	result := GoLiveResult{
		Submission: persisted,
		LiveDeal:   createdDeal,
		Declined:   declined,
	}
	if len(accepted) > 0 {
		result.Accepted = accepted[0]
	}
	return result, nil
}

func (s *dealService) NudgeInsurer(ctx context.Context, cmd NudgeInsurerCommand) error {
	company, err := s.resolveBroker(ctx, cmd.ActorID)
	if err != nil {
		return err
	}

	submission, err := s.fetchOwnedSubmission(ctx, cmd.SubmissionID, company)
	if err != nil {
		return err
	}

	feedback, err := s.feedbacks.FindByCompany(ctx, cmd.InsurerCompanyID, submission.ID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if err := feedback.NudgeEligible(); err != nil {
		return err
	}

	resolutions := s.notify.resolveRecipients(ctx, []string{cmd.InsurerCompanyID})
	return s.notify.send(ctx, domain.NotificationInsurerFeedbackNudge, resolutions, notificationData(submission, map[string]string{
		domain.NotificationKeyInsurerCompany: feedback.InsuranceCompanyName,
	}))
}

func (s *dealService) GetLiveDeal(ctx context.Context, cmd GetLiveDealCommand) (LiveDeal, error) {
	company, err := s.resolveCompany(ctx, cmd.ActorID)
	if err != nil {
		return LiveDeal{}, err
	}

	deal, err := s.liveDeals.FindByID(ctx, cmd.LiveDealID)
	if err != nil {
		return LiveDeal{}, s.mapRepositoryError(err)
	}
	if deal.BrokerCompanyID != company.ID && deal.InsuranceCompanyID != company.ID {
		return LiveDeal{}, fmt.Errorf("%w: company %s", ErrDealForbidden, company.ID)
	}
	return deal, nil
}

func (s *dealService) ListLiveDeals(ctx context.Context, cmd ListLiveDealsCommand) (domain.CursorPage[LiveDeal], error) {
	company, err := s.resolveCompany(ctx, cmd.ActorID)
	if err != nil {
		return domain.CursorPage[LiveDeal]{}, err
	}

	page, err := s.liveDeals.List(ctx, repositories.LiveDealListFilter{
		CompanyID:   company.ID,
		CompanyType: company.Type,
		Pagination:  cmd.Pagination,
	})
	if err != nil {
		return domain.CursorPage[LiveDeal]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *dealService) resolveCompany(ctx context.Context, actorID string) (Company, error) {
	company, err := s.directory.ResolveCompanyOfUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrCompanyNotFound) {
			return Company{}, fmt.Errorf("%w: %v", ErrDealForbidden, err)
		}
		return Company{}, err
	}
	return company, nil
}

func (s *dealService) resolveBroker(ctx context.Context, actorID string) (Company, error) {
	company, err := s.resolveCompany(ctx, actorID)
	if err != nil {
		return Company{}, err
	}
	if company.Type != domain.CompanyTypeBroker {
		return Company{}, fmt.Errorf("%w: company %s is not a broker", ErrDealForbidden, company.ID)
	}
	return company, nil
}

func (s *dealService) fetchSubmission(ctx context.Context, submissionID string) (DealSubmission, error) {
	if strings.TrimSpace(submissionID) == "" {
		return DealSubmission{}, fmt.Errorf("%w: submission id is required", ErrDealInvalidInput)
	}
	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return DealSubmission{}, s.mapRepositoryError(err)
	}
	return submission, nil
}

func (s *dealService) fetchOwnedSubmission(ctx context.Context, submissionID string, company Company) (DealSubmission, error) {
	submission, err := s.fetchSubmission(ctx, submissionID)
	if err != nil {
		return DealSubmission{}, err
	}
	if submission.BrokerCompanyID != company.ID {
		return DealSubmission{}, fmt.Errorf("%w: company %s does not own deal %s", ErrDealForbidden, company.ID, submission.ID)
	}
	return submission, nil
}

func (s *dealService) mapRepositoryError(err error) error {
	return mapDealRepositoryError(err)
}

func mapDealRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrDealNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrDealConflict, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrDealRepositoryFailure, err)
}

func authorizeDealAccess(submission DealSubmission, company Company) error {
	if submission.BrokerCompanyID == company.ID {
		return nil
	}
	if _, ok := submission.FeedbackFor(company.ID); ok {
		return nil
	}
	return fmt.Errorf("%w: company %s", ErrDealForbidden, company.ID)
}
