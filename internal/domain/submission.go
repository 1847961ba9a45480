package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DealTerms carries the free-form structured terms of the deal.
type DealTerms struct {
	TargetCompany string
	Jurisdiction  string
	Sector        string
	SigningDate   *time.Time
	Description   string
}

// Enhancement is an optional coverage extra the broker can request.
type Enhancement struct {
	Title            string
	Description      string
	BrokerRequestsIt bool
}

// Warranty is one contractual warranty clause, kept in broker-defined order.
type Warranty struct {
	Order       int
	Description string
}

// FeedbackDetails is the lightweight per-insurer pointer a submission keeps
// for every invited insurer. The insurer-side assignee list of record lives
// here, not on the feedback aggregate.
type FeedbackDetails struct {
	FeedbackID         string
	InsuranceCompanyID string
	IsLive             bool
	Assignees          []Assignee
}

// GoLive returns a copy marked live. Preconditions belong to the feedback
// aggregate; this side always succeeds.
func (d FeedbackDetails) GoLive() FeedbackDetails {
	d.IsLive = true
	return d
}

// UpdateAssignees returns a copy with the insurer assignee list replaced wholesale.
func (d FeedbackDetails) UpdateAssignees(assignees []Assignee) FeedbackDetails {
	d.Assignees = cloneAssignees(assignees)
	return d
}

// DealSubmission is the broker's working draft and, once submitted, the
// umbrella workflow object. Transitions return a new value; callers must
// thread the result forward.
type DealSubmission struct {
	ID              string
	BrokerCompanyID string
	Name            string
	BrokerName      string

	Terms        DealTerms
	Pricing      SubmissionPricing
	Enhancements []Enhancement
	Warranties   []Warranty
	Assignees    []Assignee

	// Files is kept sorted by LastModified descending.
	Files []DealFile

	// Feedbacks is empty while the deal is a draft; non-empty means submitted.
	Feedbacks []FeedbackDetails

	Modifications []Modification

	SubmissionDeadline *time.Time
	ETag               string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewDealSubmission constructs an empty draft for the given broker.
func NewDealSubmission(id, brokerCompanyID, name, brokerName string, now time.Time) (DealSubmission, error) {
	id = strings.TrimSpace(id)
	brokerCompanyID = strings.TrimSpace(brokerCompanyID)
	name = strings.TrimSpace(name)
	brokerName = strings.TrimSpace(brokerName)

	switch {
	case id == "":
		return DealSubmission{}, fmt.Errorf("%w: submission id is required", ErrInvalidEntity)
	case brokerCompanyID == "":
		return DealSubmission{}, fmt.Errorf("%w: broker company id is required", ErrInvalidEntity)
	case name == "":
		return DealSubmission{}, fmt.Errorf("%w: submission name is required", ErrInvalidEntity)
	case brokerName == "":
		return DealSubmission{}, fmt.Errorf("%w: broker name is required", ErrInvalidEntity)
	}

	return DealSubmission{
		ID:              id,
		BrokerCompanyID: brokerCompanyID,
		Name:            name,
		BrokerName:      brokerName,
		Pricing:         DefaultSubmissionPricing(),
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}, nil
}

// Submitted reports whether the draft has been submitted to at least one insurer.
func (s DealSubmission) Submitted() bool {
	return len(s.Feedbacks) > 0
}

// LiveFeedback returns the live feedback details when the deal has gone live.
func (s DealSubmission) LiveFeedback() (FeedbackDetails, bool) {
	for _, fb := range s.Feedbacks {
		if fb.IsLive {
			return fb, true
		}
	}
	return FeedbackDetails{}, false
}

// FeedbackFor returns the feedback details for the given insurer company.
func (s DealSubmission) FeedbackFor(insuranceCompanyID string) (FeedbackDetails, bool) {
	for _, fb := range s.Feedbacks {
		if fb.InsuranceCompanyID == insuranceCompanyID {
			return fb, true
		}
	}
	return FeedbackDetails{}, false
}

// FileByID returns the attachment with the given id.
func (s DealSubmission) FileByID(fileID string) (DealFile, bool) {
	for _, f := range s.Files {
		if f.ID == fileID {
			return f, true
		}
	}
	return DealFile{}, false
}

// SubmissionUpdate carries the replaceable detail fields for Update. Assignees
// and feedbacks are deliberately absent; those have dedicated operations so an
// unrelated edit cannot discard them.
type SubmissionUpdate struct {
	Name               string
	Terms              DealTerms
	Pricing            SubmissionPricing
	Enhancements       []Enhancement
	Warranties         []Warranty
	Files              []DealFile
	SubmissionDeadline *time.Time
	ETag               string
}

// Update replaces the submission's detail fields. A non-nil deadline in the
// past fails with ErrInvalidDeadline.
func (s DealSubmission) Update(update SubmissionUpdate, now time.Time) (DealSubmission, error) {
	if update.SubmissionDeadline != nil && !update.SubmissionDeadline.After(now) {
		return DealSubmission{}, fmt.Errorf("%w: %s", ErrInvalidDeadline, update.SubmissionDeadline.Format(time.RFC3339))
	}

	if name := strings.TrimSpace(update.Name); name != "" {
		s.Name = name
	}
	s.Terms = update.Terms
	s.Pricing = update.Pricing
	s.Enhancements = cloneEnhancements(update.Enhancements)
	s.Warranties = cloneWarranties(update.Warranties)
	s.Files = sortFilesDesc(update.Files)
	s.SubmissionDeadline = cloneTime(update.SubmissionDeadline)
	s.ETag = update.ETag
	s.UpdatedAt = now.UTC()
	return s, nil
}

// UpdateAssignees replaces exactly one company-scoped assignee list: the
// broker's own when companyID matches the broker, otherwise the list on the
// matching insurer's feedback details.
func (s DealSubmission) UpdateAssignees(assignees []Assignee, companyID string, now time.Time) (DealSubmission, error) {
	if companyID == s.BrokerCompanyID {
		s.Assignees = cloneAssignees(assignees)
		s.UpdatedAt = now.UTC()
		return s, nil
	}

	for i, fb := range s.Feedbacks {
		if fb.InsuranceCompanyID == companyID {
			feedbacks := cloneFeedbackDetails(s.Feedbacks)
			feedbacks[i] = fb.UpdateAssignees(assignees)
			s.Feedbacks = feedbacks
			s.UpdatedAt = now.UTC()
			return s, nil
		}
	}

	return DealSubmission{}, fmt.Errorf("%w: company %s", ErrAssigneesCompanyNotInSubmission, companyID)
}

// AddFiles appends attachments, re-establishing the most-recent-first order.
func (s DealSubmission) AddFiles(files []DealFile, now time.Time) DealSubmission {
	merged := make([]DealFile, 0, len(s.Files)+len(files))
	merged = append(merged, s.Files...)
	merged = append(merged, files...)
	s.Files = sortFilesDesc(merged)
	s.UpdatedAt = now.UTC()
	return s
}

// RemoveFile drops the attachment with the given id. Callers verify existence
// first; a miss is reported as ErrFileNotFound.
func (s DealSubmission) RemoveFile(fileID string, now time.Time) (DealSubmission, error) {
	for i, f := range s.Files {
		if f.ID == fileID {
			files := make([]DealFile, 0, len(s.Files)-1)
			files = append(files, s.Files[:i]...)
			files = append(files, s.Files[i+1:]...)
			s.Files = files
			s.UpdatedAt = now.UTC()
			return s, nil
		}
	}
	return DealSubmission{}, fmt.Errorf("%w: file %s", ErrFileNotFound, fileID)
}

// Submit performs the draft-to-submitted transition: the invited insurers
// become the feedback list and the deadline is fixed. A deadline not in the
// future fails with ErrInvalidDeadline.
func (s DealSubmission) Submit(insurers []FeedbackDetails, deadline time.Time, now time.Time) (DealSubmission, error) {
	if !deadline.After(now) {
		return DealSubmission{}, fmt.Errorf("%w: %s", ErrInvalidDeadline, deadline.Format(time.RFC3339))
	}

	s.Feedbacks = cloneFeedbackDetails(insurers)
	utc := deadline.UTC()
	s.SubmissionDeadline = &utc
	s.UpdatedAt = now.UTC()
	return s, nil
}

// ModifySubmission records a post-submission change note in the audit log.
func (s DealSubmission) ModifySubmission(notes string, now time.Time) (DealSubmission, error) {
	if !s.Submitted() {
		return DealSubmission{}, fmt.Errorf("%w: submission %s", ErrModifyDealNotSubmitted, s.ID)
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return DealSubmission{}, fmt.Errorf("%w: submission %s", ErrModifyDealNoNotes, s.ID)
	}

	modifications := make([]Modification, 0, len(s.Modifications)+1)
	modifications = append(modifications, s.Modifications...)
	modifications = append(modifications, Modification{Notes: notes, ModifiedAt: now.UTC()})
	s.Modifications = modifications
	s.UpdatedAt = now.UTC()
	return s, nil
}

// GoLive marks the chosen insurer's feedback details live. At most one
// feedback may ever be live; a second go-live fails with
// ErrFeedbackAlreadyLive.
func (s DealSubmission) GoLive(feedbackID string, now time.Time) (DealSubmission, error) {
	if !s.Submitted() {
		return DealSubmission{}, fmt.Errorf("%w: submission %s", ErrGoLiveNotSubmitted, s.ID)
	}
	if live, ok := s.LiveFeedback(); ok {
		return DealSubmission{}, fmt.Errorf("%w: feedback %s is live", ErrFeedbackAlreadyLive, live.FeedbackID)
	}

	for i, fb := range s.Feedbacks {
		if fb.FeedbackID == feedbackID {
			feedbacks := cloneFeedbackDetails(s.Feedbacks)
			feedbacks[i] = fb.GoLive()
			s.Feedbacks = feedbacks
			s.UpdatedAt = now.UTC()
			return s, nil
		}
	}

	return DealSubmission{}, fmt.Errorf("%w: feedback %s", ErrFeedbackNotFound, feedbackID)
}

// NormalizeFiles re-applies the most-recent-first ordering invariant. Used by
// the persistence layer after hydration.
func (s DealSubmission) NormalizeFiles() DealSubmission {
	s.Files = sortFilesDesc(s.Files)
	return s
}

func sortFilesDesc(files []DealFile) []DealFile {
	if len(files) == 0 {
		return nil
	}
	sorted := make([]DealFile, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastModified.After(sorted[j].LastModified)
	})
	return sorted
}

func cloneAssignees(assignees []Assignee) []Assignee {
	if len(assignees) == 0 {
		return nil
	}
	cloned := make([]Assignee, len(assignees))
	copy(cloned, assignees)
	return cloned
}

func cloneFeedbackDetails(details []FeedbackDetails) []FeedbackDetails {
	if len(details) == 0 {
		return nil
	}
	cloned := make([]FeedbackDetails, len(details))
	for i, d := range details {
		d.Assignees = cloneAssignees(d.Assignees)
		cloned[i] = d
	}
	return cloned
}

func cloneEnhancements(enhancements []Enhancement) []Enhancement {
	if len(enhancements) == 0 {
		return nil
	}
	cloned := make([]Enhancement, len(enhancements))
	copy(cloned, enhancements)
	return cloned
}

func cloneWarranties(warranties []Warranty) []Warranty {
	if len(warranties) == 0 {
		return nil
	}
	cloned := make([]Warranty, len(warranties))
	copy(cloned, warranties)
	return cloned
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
