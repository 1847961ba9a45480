package services

import (
	"context"
	"time"

	domain "github.com/coverplace/api/internal/domain"
	"github.com/coverplace/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Company            = domain.Company
	CompanyType        = domain.CompanyType
	Employee           = domain.Employee
	Assignee           = domain.Assignee
	DealFile           = domain.DealFile
	DealSubmission     = domain.DealSubmission
	SubmissionFeedback = domain.SubmissionFeedback
	FeedbackDetails    = domain.FeedbackDetails
	LiveDeal           = domain.LiveDeal
	Recipient          = domain.Recipient
	NotificationType   = domain.NotificationType
	SystemHealthReport = domain.SystemHealthReport
)

// DealService orchestrates the broker-side workflow: drafting, submitting,
// modifying, nudging, and taking a deal live.
type DealService interface {
	CreateDeal(ctx context.Context, cmd CreateDealCommand) (DealSubmission, error)
	GetDeal(ctx context.Context, cmd GetDealCommand) (DealSubmission, error)
	ListDeals(ctx context.Context, cmd ListDealsCommand) (domain.CursorPage[DealSubmission], error)
	UpdateDeal(ctx context.Context, cmd UpdateDealCommand) (DealSubmission, error)
	UpdateAssignees(ctx context.Context, cmd UpdateAssigneesCommand) (DealSubmission, error)
	SubmitDeal(ctx context.Context, cmd SubmitDealCommand) (SubmitDealResult, error)
	ModifyDeal(ctx context.Context, cmd ModifyDealCommand) (DealSubmission, error)
	GoLive(ctx context.Context, cmd GoLiveCommand) (GoLiveResult, error)
	NudgeInsurer(ctx context.Context, cmd NudgeInsurerCommand) error
	GetLiveDeal(ctx context.Context, cmd GetLiveDealCommand) (LiveDeal, error)
	ListLiveDeals(ctx context.Context, cmd ListLiveDealsCommand) (domain.CursorPage[LiveDeal], error)
}

// FeedbackService orchestrates the insurer-side workflow on one feedback
// aggregate, plus the broker's read access to all feedbacks of a submission.
type FeedbackService interface {
	GetFeedback(ctx context.Context, cmd GetFeedbackCommand) (SubmissionFeedback, error)
	GetAllFeedback(ctx context.Context, cmd GetAllFeedbackCommand) ([]SubmissionFeedback, error)
	UpdateFeedback(ctx context.Context, cmd UpdateFeedbackCommand) (SubmissionFeedback, error)
	AcceptNda(ctx context.Context, cmd AcceptNdaCommand) (SubmissionFeedback, error)
	SubmitFeedback(ctx context.Context, cmd SubmitFeedbackCommand) (SubmissionFeedback, error)
	DeclineFeedback(ctx context.Context, cmd DeclineFeedbackCommand) (SubmissionFeedback, error)
}

// FileService manages deal attachments: concurrent upload fan-out, deletion,
// signed downloads, and the archive copy taken when a deal goes live.
type FileService interface {
	UploadFiles(ctx context.Context, cmd UploadFilesCommand) (UploadFilesResult, error)
	DeleteFile(ctx context.Context, cmd DeleteFileCommand) (DealSubmission, error)
	IssueDownload(ctx context.Context, cmd DownloadFileCommand) (SignedFileURL, error)
	ArchiveDealFiles(ctx context.Context, submission DealSubmission) error
}

// CompanyDirectory resolves users to companies and companies to notification
// recipients. Read-only.
type CompanyDirectory interface {
	ResolveCompanyOfUser(ctx context.Context, userID string) (Company, error)
	ResolveCompany(ctx context.Context, companyID string) (Company, error)
	ResolveEmployees(ctx context.Context, companyID string) ([]Employee, error)
	ValidateEmployeesBelongToCompany(company Company, userIDs []string) bool
	ListInsurers(ctx context.Context) ([]Company, error)
}

// SystemService aggregates utility endpoints (health checks, build metadata).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// NotificationDispatcher hands a composed notification message to the
// transport (Pub/Sub topic consumed by the mailer).
type NotificationDispatcher interface {
	DispatchNotification(ctx context.Context, message NotificationMessage) (string, error)
}

// NotificationMessage is the wire payload published for the mailer.
type NotificationMessage struct {
	MessageID  string             `json:"messageId"`
	Type       NotificationType   `json:"type"`
	Recipients []domain.Recipient `json:"recipients"`
	Data       map[string]string  `json:"data,omitempty"`
	QueuedAt   time.Time          `json:"queuedAt"`
}

// RecipientResolution is the explicit partial result of resolving one
// company's employees into notification recipients. A failed resolution is
// recorded, not silently dropped.
type RecipientResolution struct {
	CompanyID  string
	Recipients []Recipient
	Err        error
}

// Command and DTO definitions ------------------------------------------------

type CreateDealCommand struct {
	ActorID string
	Name    string
}

type GetDealCommand struct {
	ActorID      string
	SubmissionID string
}

type ListDealsCommand struct {
	ActorID      string
	UpdatedAfter *time.Time
	Pagination   Pagination
}

type UpdateDealCommand struct {
	ActorID      string
	SubmissionID string
	Update       domain.SubmissionUpdate
}

type UpdateAssigneesCommand struct {
	ActorID      string
	SubmissionID string
	Assignees    []Assignee
}

type SubmitDealCommand struct {
	ActorID            string
	SubmissionID       string
	InsurerCompanyIDs  []string
	SubmissionDeadline time.Time
}

// SubmitDealResult reports the submitted deal, the feedbacks created per
// insurer, and the per-company recipient resolution outcomes.
type SubmitDealResult struct {
	Submission DealSubmission
	Feedbacks  []SubmissionFeedback
	Recipients []RecipientResolution
}

type ModifyDealCommand struct {
	ActorID      string
	SubmissionID string
	Notes        string
}

type GoLiveCommand struct {
	ActorID      string
	SubmissionID string
	FeedbackID   string
}

// GoLiveResult carries the live-deal snapshot plus the accepted/declined
// notification fan-out outcomes.
type GoLiveResult struct {
	Submission DealSubmission
	LiveDeal   LiveDeal
	Accepted   RecipientResolution
	Declined   []RecipientResolution
}

type NudgeInsurerCommand struct {
	ActorID          string
	SubmissionID     string
	InsurerCompanyID string
}

type GetLiveDealCommand struct {
	ActorID    string
	LiveDealID string
}

type ListLiveDealsCommand struct {
	ActorID    string
	Pagination Pagination
}

type GetFeedbackCommand struct {
	ActorID      string
	SubmissionID string
}

type GetAllFeedbackCommand struct {
	ActorID      string
	SubmissionID string
}

type UpdateFeedbackCommand struct {
	ActorID      string
	SubmissionID string
	Update       domain.FeedbackUpdate
}

type AcceptNdaCommand struct {
	ActorID      string
	SubmissionID string
}

type SubmitFeedbackCommand struct {
	ActorID      string
	SubmissionID string
}

type DeclineFeedbackCommand struct {
	ActorID      string
	SubmissionID string
}

type UploadFilesCommand struct {
	ActorID      string
	SubmissionID string
	Files        []FileUpload
}

// FileUpload is one attachment in an upload fan-out.
type FileUpload struct {
	FileName    string
	ContentType string
	SizeBytes   int64
	Content     []byte
}

// FileUploadOutcome is the per-file result of an upload fan-out. Failed
// uploads are reported to the caller but never folded into the submission.
type FileUploadOutcome struct {
	FileName string
	File     DealFile
	Err      error
}

// UploadFilesResult pairs the persisted submission with per-file outcomes.
type UploadFilesResult struct {
	Submission DealSubmission
	Outcomes   []FileUploadOutcome
}

type DeleteFileCommand struct {
	ActorID      string
	SubmissionID string
	FileID       string
}

type DownloadFileCommand struct {
	ActorID      string
	SubmissionID string
	FileID       string
}

// SignedFileURL is a time-limited download grant for one attachment.
type SignedFileURL struct {
	URL       string
	Method    string
	FileName  string
	ExpiresAt time.Time
}

// DealListFilter re-exports the repository filter for handler use.
type DealListFilter = repositories.SubmissionListFilter
