package domain

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func draftSubmission(t *testing.T) DealSubmission {
	t.Helper()
	sub, err := NewDealSubmission("sub_1", "broker-1", "Project Aurora", "Marsh & Birch", testNow)
	if err != nil {
		t.Fatalf("new submission: %v", err)
	}
	return sub
}

func submittedSubmission(t *testing.T) DealSubmission {
	t.Helper()
	sub := draftSubmission(t)
	insurers := []FeedbackDetails{
		{FeedbackID: "fbk_a", InsuranceCompanyID: "ins-a"},
		{FeedbackID: "fbk_b", InsuranceCompanyID: "ins-b"},
	}
	sub, err := sub.Submit(insurers, testNow.Add(7*24*time.Hour), testNow)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return sub
}

func TestNewDealSubmissionValidatesIdentity(t *testing.T) {
	cases := []struct {
		name    string
		id      string
		company string
		deal    string
		broker  string
	}{
		{name: "empty id", company: "broker-1", deal: "n", broker: "b"},
		{name: "empty company", id: "sub_1", deal: "n", broker: "b"},
		{name: "empty name", id: "sub_1", company: "broker-1", broker: "b"},
		{name: "empty broker name", id: "sub_1", company: "broker-1", deal: "n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewDealSubmission(tc.id, tc.company, tc.deal, tc.broker, testNow); !errors.Is(err, ErrInvalidEntity) {
				t.Fatalf("expected invalid entity error, got %v", err)
			}
		})
	}
}

func TestNewDealSubmissionStartsAsEmptyDraft(t *testing.T) {
	sub := draftSubmission(t)
	if sub.Submitted() {
		t.Fatal("fresh submission must be a draft")
	}
	if len(sub.Files) != 0 || len(sub.Feedbacks) != 0 || len(sub.Modifications) != 0 {
		t.Fatal("fresh submission must start empty")
	}
	if len(sub.Pricing.Limits) == 0 || len(sub.Pricing.Retentions) == 0 {
		t.Fatal("fresh submission must carry default pricing bands")
	}
}

func TestUpdateSortsFilesMostRecentFirst(t *testing.T) {
	sub := draftSubmission(t)
	files := []DealFile{
		{ID: "f1", FileName: "old.pdf", LastModified: testNow.Add(-2 * time.Hour)},
		{ID: "f2", FileName: "new.pdf", LastModified: testNow.Add(-time.Minute)},
		{ID: "f3", FileName: "mid.pdf", LastModified: testNow.Add(-time.Hour)},
	}

	updated, err := sub.Update(SubmissionUpdate{Pricing: sub.Pricing, Files: files}, testNow)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	want := []string{"f2", "f3", "f1"}
	for i, id := range want {
		if updated.Files[i].ID != id {
			t.Fatalf("file order mismatch at %d: want %s got %s", i, id, updated.Files[i].ID)
		}
	}
}

func TestUpdateRejectsPastDeadline(t *testing.T) {
	sub := draftSubmission(t)
	past := testNow.Add(-time.Hour)
	if _, err := sub.Update(SubmissionUpdate{SubmissionDeadline: &past}, testNow); !errors.Is(err, ErrInvalidDeadline) {
		t.Fatalf("expected invalid deadline, got %v", err)
	}
}

func TestUpdateAcceptsNilDeadline(t *testing.T) {
	sub := draftSubmission(t)
	if _, err := sub.Update(SubmissionUpdate{}, testNow); err != nil {
		t.Fatalf("nil deadline must be valid: %v", err)
	}
}

func TestUpdateDoesNotTouchAssigneesOrFeedbacks(t *testing.T) {
	sub := submittedSubmission(t)
	sub.Assignees = []Assignee{{UserID: "u1", FirstName: "Ada", LastName: "Byrne"}}

	updated, err := sub.Update(SubmissionUpdate{Pricing: sub.Pricing}, testNow)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.Assignees) != 1 || updated.Assignees[0].UserID != "u1" {
		t.Fatal("update must not touch broker assignees")
	}
	if len(updated.Feedbacks) != 2 {
		t.Fatal("update must not touch feedbacks")
	}
}

func TestUpdateAssigneesBrokerSide(t *testing.T) {
	sub := submittedSubmission(t)
	assignees := []Assignee{{UserID: "u9", FirstName: "Noor", LastName: "Patel"}}

	updated, err := sub.UpdateAssignees(assignees, "broker-1", testNow)
	if err != nil {
		t.Fatalf("update assignees: %v", err)
	}
	if len(updated.Assignees) != 1 || updated.Assignees[0].UserID != "u9" {
		t.Fatal("broker assignees not replaced")
	}
	for _, fb := range updated.Feedbacks {
		if len(fb.Assignees) != 0 {
			t.Fatal("insurer assignees must be untouched")
		}
	}
}

func TestUpdateAssigneesInsurerSide(t *testing.T) {
	sub := submittedSubmission(t)
	assignees := []Assignee{{UserID: "i1", FirstName: "Finn", LastName: "Dahl"}}

	updated, err := sub.UpdateAssignees(assignees, "ins-b", testNow)
	if err != nil {
		t.Fatalf("update assignees: %v", err)
	}

	a, _ := updated.FeedbackFor("ins-a")
	b, _ := updated.FeedbackFor("ins-b")
	if len(a.Assignees) != 0 {
		t.Fatal("other insurer's assignees must be untouched")
	}
	if len(b.Assignees) != 1 || b.Assignees[0].UserID != "i1" {
		t.Fatal("target insurer's assignees not replaced")
	}
	if len(updated.Assignees) != 0 {
		t.Fatal("broker assignees must be untouched")
	}
}

func TestUpdateAssigneesUnknownCompanyFails(t *testing.T) {
	draft := draftSubmission(t)
	if _, err := draft.UpdateAssignees(nil, "ins-x", testNow); !errors.Is(err, ErrAssigneesCompanyNotInSubmission) {
		t.Fatalf("draft: expected company-not-in-submission, got %v", err)
	}

	sub := submittedSubmission(t)
	if _, err := sub.UpdateAssignees(nil, "ins-x", testNow); !errors.Is(err, ErrAssigneesCompanyNotInSubmission) {
		t.Fatalf("submitted: expected company-not-in-submission, got %v", err)
	}
}

func TestSubmitRequiresFutureDeadline(t *testing.T) {
	sub := draftSubmission(t)
	insurers := []FeedbackDetails{{FeedbackID: "fbk_a", InsuranceCompanyID: "ins-a"}}

	if _, err := sub.Submit(insurers, testNow, testNow); !errors.Is(err, ErrInvalidDeadline) {
		t.Fatalf("deadline == now must fail, got %v", err)
	}
	if _, err := sub.Submit(insurers, testNow.Add(-time.Second), testNow); !errors.Is(err, ErrInvalidDeadline) {
		t.Fatalf("past deadline must fail, got %v", err)
	}

	submitted, err := sub.Submit(insurers, testNow.Add(time.Second), testNow)
	if err != nil {
		t.Fatalf("future deadline must succeed: %v", err)
	}
	if !submitted.Submitted() || len(submitted.Feedbacks) != 1 {
		t.Fatal("submit must set the feedback list")
	}
	if submitted.SubmissionDeadline == nil {
		t.Fatal("submit must set the deadline")
	}
}

func TestModifySubmissionPreconditions(t *testing.T) {
	draft := draftSubmission(t)
	if _, err := draft.ModifySubmission("changed terms", testNow); !errors.Is(err, ErrModifyDealNotSubmitted) {
		t.Fatalf("draft modify: expected not-submitted, got %v", err)
	}

	sub := submittedSubmission(t)
	if _, err := sub.ModifySubmission("  ", testNow); !errors.Is(err, ErrModifyDealNoNotes) {
		t.Fatalf("empty notes: expected no-notes, got %v", err)
	}

	modified, err := sub.ModifySubmission("reduced retention band", testNow)
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if len(modified.Modifications) != 1 {
		t.Fatalf("expected exactly one modification, got %d", len(modified.Modifications))
	}
	entry := modified.Modifications[0]
	if entry.Notes != "reduced retention band" {
		t.Fatalf("unexpected notes %q", entry.Notes)
	}
	if !entry.ModifiedAt.Equal(testNow) {
		t.Fatalf("unexpected timestamp %s", entry.ModifiedAt)
	}
}

func TestGoLiveTransitions(t *testing.T) {
	draft := draftSubmission(t)
	if _, err := draft.GoLive("fbk_a", testNow); !errors.Is(err, ErrGoLiveNotSubmitted) {
		t.Fatalf("draft go-live: expected not-submitted, got %v", err)
	}

	sub := submittedSubmission(t)
	if _, err := sub.GoLive("fbk_missing", testNow); !errors.Is(err, ErrFeedbackNotFound) {
		t.Fatalf("unknown feedback: expected not-found, got %v", err)
	}

	live, err := sub.GoLive("fbk_a", testNow)
	if err != nil {
		t.Fatalf("go-live: %v", err)
	}
	a, _ := live.FeedbackFor("ins-a")
	b, _ := live.FeedbackFor("ins-b")
	if !a.IsLive {
		t.Fatal("chosen feedback must be live")
	}
	if b.IsLive {
		t.Fatal("other feedback must stay not-live")
	}

	if _, err := live.GoLive("fbk_b", testNow); !errors.Is(err, ErrFeedbackAlreadyLive) {
		t.Fatalf("second go-live: expected already-live, got %v", err)
	}
}

func TestAddAndRemoveFiles(t *testing.T) {
	sub := draftSubmission(t)
	sub = sub.AddFiles([]DealFile{
		{ID: "f1", LastModified: testNow.Add(-time.Hour)},
		{ID: "f2", LastModified: testNow},
	}, testNow)

	if sub.Files[0].ID != "f2" {
		t.Fatal("added files must be ordered most recent first")
	}

	removed, err := sub.RemoveFile("f1", testNow)
	if err != nil {
		t.Fatalf("remove file: %v", err)
	}
	if len(removed.Files) != 1 || removed.Files[0].ID != "f2" {
		t.Fatal("file not removed")
	}

	if _, err := removed.RemoveFile("f1", testNow); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected file-not-found, got %v", err)
	}
}

func TestTransitionsDoNotMutateReceiver(t *testing.T) {
	sub := submittedSubmission(t)
	if _, err := sub.GoLive("fbk_a", testNow); err != nil {
		t.Fatalf("go-live: %v", err)
	}
	if _, ok := sub.LiveFeedback(); ok {
		t.Fatal("go-live must not mutate the receiver")
	}

	if _, err := sub.ModifySubmission("note", testNow); err != nil {
		t.Fatalf("modify: %v", err)
	}
	if len(sub.Modifications) != 0 {
		t.Fatal("modify must not mutate the receiver")
	}
}
