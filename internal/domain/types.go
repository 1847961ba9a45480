package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// CompanyType distinguishes the two sides of a placement.
type CompanyType string

const (
	// CompanyTypeBroker marks a broker company.
	CompanyTypeBroker CompanyType = "broker"
	// CompanyTypeInsurer marks an insurance company.
	CompanyTypeInsurer CompanyType = "insurer"
)

// Company is a directory entry resolved for authorization and recipient lookups.
type Company struct {
	ID        string
	Name      string
	Type      CompanyType
	Employees []Employee
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Employee is a member of a company's directory.
type Employee struct {
	UserID    string
	FirstName string
	LastName  string
	Email     string
	Locale    string
}

// HasEmployee reports whether the given user id belongs to the company.
func (c Company) HasEmployee(userID string) bool {
	for _, e := range c.Employees {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

// Assignee is a person assigned to a deal on either side of the placement.
type Assignee struct {
	UserID    string
	FirstName string
	LastName  string
}

// DealFile describes an attachment stored in the deal file bucket.
type DealFile struct {
	ID           string
	FileName     string
	StoredName   string
	ContentType  string
	SizeBytes    int64
	UploadedBy   string
	LastModified time.Time
}

// Modification is an append-only audit entry recording a post-submission change.
type Modification struct {
	Notes      string
	ModifiedAt time.Time
}

// NotificationType enumerates the cross-party notifications emitted by the workflow.
type NotificationType string

const (
	// NotificationInsurerNewSubmission is sent to invited insurers when a deal is submitted.
	NotificationInsurerNewSubmission NotificationType = "insurer_new_submission"
	// NotificationInsurerSubmissionModified is sent to insurers when a submitted deal changes.
	NotificationInsurerSubmissionModified NotificationType = "insurer_submission_modified"
	// NotificationInsurerFeedbackAccepted is sent to the winning insurer on go-live.
	NotificationInsurerFeedbackAccepted NotificationType = "insurer_feedback_accepted"
	// NotificationInsurerFeedbackDeclined is sent to the remaining insurers on go-live.
	NotificationInsurerFeedbackDeclined NotificationType = "insurer_feedback_declined"
	// NotificationInsurerFeedbackNudge is sent when a broker nudges a pending insurer.
	NotificationInsurerFeedbackNudge NotificationType = "insurer_feedback_nudge"
	// NotificationBrokerNewFeedback is sent to the broker when an insurer submits feedback.
	NotificationBrokerNewFeedback NotificationType = "broker_new_feedback"
	// NotificationBrokerSubmissionDeclined is sent to the broker when an insurer declines.
	NotificationBrokerSubmissionDeclined NotificationType = "broker_submission_declined"
)

// Recipient identifies one notification addressee.
type Recipient struct {
	FirstName string
	LastName  string
	Email     string
}

// Notification carries a typed message to a set of recipients with templated data.
type Notification struct {
	Type       NotificationType
	Recipients []Recipient
	Data       map[string]string
}

// Data map keys shared by all workflow notifications.
const (
	NotificationKeyDealID         = "deal_id"
	NotificationKeyProjectName    = "project_name"
	NotificationKeyBrokerCompany  = "broker_company"
	NotificationKeyInsurerCompany = "insurer_company"
)

// RecipientsFromEmployees projects directory employees into notification recipients.
func RecipientsFromEmployees(employees []Employee) []Recipient {
	if len(employees) == 0 {
		return nil
	}
	recipients := make([]Recipient, 0, len(employees))
	for _, e := range employees {
		recipients = append(recipients, Recipient{
			FirstName: e.FirstName,
			LastName:  e.LastName,
			Email:     e.Email,
		})
	}
	return recipients
}
