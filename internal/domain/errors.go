package domain

import "fmt"

// DealError is a business-rule violation with a stable machine-readable code.
// Instances are sentinels: compare with errors.Is against the exported values
// below, or switch on Code() at the transport boundary.
type DealError struct {
	code    string
	message string
}

// Error implements the error interface.
func (e *DealError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Code returns the stable error code carried across layers.
func (e *DealError) Code() string {
	if e == nil {
		return ""
	}
	return e.code
}

// SafeMessage returns the human-readable message suitable for API responses.
func (e *DealError) SafeMessage() string {
	if e == nil {
		return ""
	}
	return e.message
}

var (
	// ErrInvalidDeadline signals a submission deadline set in the past.
	ErrInvalidDeadline = &DealError{code: "invalid_deadline", message: "submission deadline must be in the future"}
	// ErrAssigneesCompanyNotInSubmission signals an assignee update for a company the submission was never submitted to.
	ErrAssigneesCompanyNotInSubmission = &DealError{code: "assignees_company_not_in_submission", message: "company does not exist in submission"}
	// ErrModifyDealNotSubmitted signals a modification attempt against a draft submission.
	ErrModifyDealNotSubmitted = &DealError{code: "modify_deal_not_submitted", message: "deal has not been submitted yet"}
	// ErrModifyDealNoNotes signals a modification attempt without change notes.
	ErrModifyDealNoNotes = &DealError{code: "modify_deal_no_notes", message: "modification notes are required"}
	// ErrGoLiveNotSubmitted signals a go-live attempt against a draft submission.
	ErrGoLiveNotSubmitted = &DealError{code: "go_live_not_submitted", message: "deal has not been submitted yet"}
	// ErrFeedbackNotFound signals that no feedback with the requested id exists on the submission.
	ErrFeedbackNotFound = &DealError{code: "feedback_not_found", message: "feedback does not exist in submission"}
	// ErrFeedbackAlreadyLive signals a second go-live against a submission that already has a live feedback.
	ErrFeedbackAlreadyLive = &DealError{code: "feedback_already_live", message: "submission already has a live feedback"}
	// ErrModifyFeedbackNotSubmitted signals a modified-notification against a feedback that was never submitted.
	ErrModifyFeedbackNotSubmitted = &DealError{code: "modify_feedback_not_submitted", message: "feedback has not been submitted yet"}
	// ErrFeedbackGoLiveNotSubmitted signals a go-live against a feedback that was never submitted.
	ErrFeedbackGoLiveNotSubmitted = &DealError{code: "feedback_go_live_not_submitted", message: "feedback has not been submitted yet"}
	// ErrNudgeAlreadySubmitted signals a nudge against an insurer that already submitted feedback.
	ErrNudgeAlreadySubmitted = &DealError{code: "nudge_already_submitted", message: "feedback has already been submitted"}
	// ErrNudgeAlreadyDeclined signals a nudge against an insurer that already declined.
	ErrNudgeAlreadyDeclined = &DealError{code: "nudge_already_declined", message: "feedback has already been declined"}
	// ErrFileNotFound signals an operation against a file id not present on the aggregate.
	ErrFileNotFound = &DealError{code: "file_not_found", message: "file does not exist in submission"}
	// ErrEnhancementAPOutOfRange signals an additional-premium percentage outside the permitted band.
	ErrEnhancementAPOutOfRange = &DealError{code: "enhancement_ap_out_of_range", message: "enhancement additional premium percentage is out of range"}
	// ErrInvalidEntity signals construction-time validation failures (empty ids, names).
	ErrInvalidEntity = &DealError{code: "invalid_entity", message: "entity fields failed validation"}
)
