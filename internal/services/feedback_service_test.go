package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/coverplace/api/internal/domain"
)

func newTestFeedbackService(t *testing.T, submissions *stubSubmissionRepo, feedbacks *stubFeedbackRepo, directory *stubDirectory, dispatcher *captureDispatcher) FeedbackService {
	t.Helper()
	service, err := NewFeedbackService(FeedbackServiceDeps{
		Feedbacks:   feedbacks,
		Submissions: submissions,
		Directory:   directory,
		Dispatcher:  dispatcher,
		Clock:       testClock,
		IDGenerator: sequenceIDs(),
	})
	if err != nil {
		t.Fatalf("NewFeedbackService: %v", err)
	}
	return service
}

func submittedDealWithFeedback(t *testing.T) (domain.DealSubmission, domain.SubmissionFeedback) {
	t.Helper()
	submission := draftSubmission(t)
	feedback, err := domain.NewSubmissionFeedback("fbk_a", "cmp_ins_a", "Atlas Underwriting", submission, testNow)
	if err != nil {
		t.Fatalf("NewSubmissionFeedback: %v", err)
	}
	submitted, err := submission.Submit([]domain.FeedbackDetails{
		{FeedbackID: "fbk_a", InsuranceCompanyID: "cmp_ins_a"},
	}, testNow.AddDate(0, 0, 7), testNow)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return submitted, feedback
}

func TestGetFeedbackScopedToOwnCompany(t *testing.T) {
	insurerA := insurerCompany("cmp_ins_a", "Atlas Underwriting", "user_ins_a", "alex@atlas.example")
	insurerB := insurerCompany("cmp_ins_b", "Borealis Specialty", "user_ins_b", "billie@borealis.example")
	submission, feedback := submittedDealWithFeedback(t)
	service := newTestFeedbackService(t, newStubSubmissionRepo(submission), newStubFeedbackRepo(feedback), newStubDirectory(insurerA, insurerB), &captureDispatcher{})

	got, err := service.GetFeedback(context.Background(), GetFeedbackCommand{ActorID: "user_ins_a", SubmissionID: "sub_test"})
	if err != nil {
		t.Fatalf("GetFeedback: %v", err)
	}
	if got.ID != "fbk_a" || got.InsuranceCompanyID != "cmp_ins_a" {
		t.Fatalf("unexpected feedback %+v", got)
	}

	// An insurer that was never invited has no feedback to see.
	if _, err := service.GetFeedback(context.Background(), GetFeedbackCommand{ActorID: "user_ins_b", SubmissionID: "sub_test"}); !errors.Is(err, ErrFeedbackNotFound) {
		t.Fatalf("expected ErrFeedbackNotFound, got %v", err)
	}
}

func TestGetAllFeedbackRequiresBrokerOwner(t *testing.T) {
	insurerA := insurerCompany("cmp_ins_a", "Atlas Underwriting", "user_ins_a", "alex@atlas.example")
	submission, feedback := submittedDealWithFeedback(t)
	service := newTestFeedbackService(t, newStubSubmissionRepo(submission), newStubFeedbackRepo(feedback), newStubDirectory(brokerCompany(), insurerA), &captureDispatcher{})

	all, err := service.GetAllFeedback(context.Background(), GetAllFeedbackCommand{ActorID: "user_broker", SubmissionID: "sub_test"})
	if err != nil {
		t.Fatalf("GetAllFeedback: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one feedback, got %d", len(all))
	}

	if _, err := service.GetAllFeedback(context.Background(), GetAllFeedbackCommand{ActorID: "user_ins_a", SubmissionID: "sub_test"}); !errors.Is(err, ErrFeedbackForbidden) {
		t.Fatalf("expected ErrFeedbackForbidden for insurer actor, got %v", err)
	}
}

func TestUpdateFeedbackRejectsOutOfRangePremium(t *testing.T) {
	insurerA := insurerCompany("cmp_ins_a", "Atlas Underwriting", "user_ins_a", "alex@atlas.example")
	submission, feedback := submittedDealWithFeedback(t)
	service := newTestFeedbackService(t, newStubSubmissionRepo(submission), newStubFeedbackRepo(feedback), newStubDirectory(insurerA), &captureDispatcher{})

	_, err := service.UpdateFeedback(context.Background(), UpdateFeedbackCommand{
		ActorID:      "user_ins_a",
		SubmissionID: "sub_test",
		Update: domain.FeedbackUpdate{
			Enhancements: []domain.FeedbackEnhancement{
				{Title: "Tax cover", Offered: true, AdditionalPremiumPct: 140},
			},
		},
	})
	if !errors.Is(err, domain.ErrEnhancementAPOutOfRange) {
		t.Fatalf("expected ErrEnhancementAPOutOfRange, got %v", err)
	}
}

func TestUpdateFeedbackPersistsWorkingCopy(t *testing.T) {
	insurerA := insurerCompany("cmp_ins_a", "Atlas Underwriting", "user_ins_a", "alex@atlas.example")
	submission, feedback := submittedDealWithFeedback(t)
	feedbacks := newStubFeedbackRepo(feedback)
	service := newTestFeedbackService(t, newStubSubmissionRepo(submission), feedbacks, newStubDirectory(insurerA), &captureDispatcher{})

	updated, err := service.UpdateFeedback(context.Background(), UpdateFeedbackCommand{
		ActorID:      "user_ins_a",
		SubmissionID: "sub_test",
		Update: domain.FeedbackUpdate{
			Notes:             "Appetite confirmed for 20% limit",
			ExcludedCountries: []string{"RU"},
		},
	})
	if err != nil {
		t.Fatalf("UpdateFeedback: %v", err)
	}
	if updated.Notes != "Appetite confirmed for 20% limit" {
		t.Fatalf("notes not applied: %+v", updated)
	}
	if stored := feedbacks.feedbacks["fbk_a"]; len(stored.ExcludedCountries) != 1 || stored.ExcludedCountries[0] != "RU" {
		t.Fatalf("excluded countries not persisted: %+v", stored)
	}
}

func TestAcceptNdaIsIdempotent(t *testing.T) {
	insurerA := insurerCompany("cmp_ins_a", "Atlas Underwriting", "user_ins_a", "alex@atlas.example")
	submission, feedback := submittedDealWithFeedback(t)
	feedbacks := newStubFeedbackRepo(feedback)
	service := newTestFeedbackService(t, newStubSubmissionRepo(submission), feedbacks, newStubDirectory(insurerA), &captureDispatcher{})

	first, err := service.AcceptNda(context.Background(), AcceptNdaCommand{ActorID: "user_ins_a", SubmissionID: "sub_test"})
	if err != nil {
		t.Fatalf("AcceptNda: %v", err)
	}
	if !first.NdaAccepted {
		t.Fatalf("expected NDA accepted")
	}

	again, err := service.AcceptNda(context.Background(), AcceptNdaCommand{ActorID: "user_ins_a", SubmissionID: "sub_test"})
	if err != nil {
		t.Fatalf("second AcceptNda: %v", err)
	}
	if !again.NdaAccepted {
		t.Fatalf("expected NDA to stay accepted")
	}
}

func TestSubmitFeedbackNotifiesBroker(t *testing.T) {
	insurerA := insurerCompany("cmp_ins_a", "Atlas Underwriting", "user_ins_a", "alex@atlas.example")
	submission, feedback := submittedDealWithFeedback(t)
	dispatcher := &captureDispatcher{}
	service := newTestFeedbackService(t, newStubSubmissionRepo(submission), newStubFeedbackRepo(feedback), newStubDirectory(brokerCompany(), insurerA), dispatcher)

	submitted, err := service.SubmitFeedback(context.Background(), SubmitFeedbackCommand{ActorID: "user_ins_a", SubmissionID: "sub_test"})
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if submitted.Status != domain.FeedbackStatusSubmitted {
		t.Fatalf("expected submitted status, got %s", submitted.Status)
	}

	sent := dispatcher.messagesOfType(domain.NotificationBrokerNewFeedback)
	if len(sent) != 1 {
		t.Fatalf("expected one broker notification, got %d", len(sent))
	}
	if len(sent[0].Recipients) != 2 {
		t.Fatalf("expected both broker employees, got %d recipients", len(sent[0].Recipients))
	}
	if sent[0].Data[domain.NotificationKeyInsurerCompany] != "Atlas Underwriting" {
		t.Fatalf("expected insurer name in data, got %v", sent[0].Data)
	}
}

func TestDeclineFeedbackNotifiesBroker(t *testing.T) {
	insurerA := insurerCompany("cmp_ins_a", "Atlas Underwriting", "user_ins_a", "alex@atlas.example")
	submission, feedback := submittedDealWithFeedback(t)
	feedbacks := newStubFeedbackRepo(feedback)
	dispatcher := &captureDispatcher{}
	service := newTestFeedbackService(t, newStubSubmissionRepo(submission), feedbacks, newStubDirectory(brokerCompany(), insurerA), dispatcher)

	declined, err := service.DeclineFeedback(context.Background(), DeclineFeedbackCommand{ActorID: "user_ins_a", SubmissionID: "sub_test"})
	if err != nil {
		t.Fatalf("DeclineFeedback: %v", err)
	}
	if declined.Status != domain.FeedbackStatusDeclined {
		t.Fatalf("expected declined status, got %s", declined.Status)
	}
	if len(dispatcher.messagesOfType(domain.NotificationBrokerSubmissionDeclined)) != 1 {
		t.Fatalf("expected decline notification")
	}
}

func TestFeedbackActionsRejectBrokerActor(t *testing.T) {
	submission, feedback := submittedDealWithFeedback(t)
	service := newTestFeedbackService(t, newStubSubmissionRepo(submission), newStubFeedbackRepo(feedback), newStubDirectory(brokerCompany()), &captureDispatcher{})

	if _, err := service.SubmitFeedback(context.Background(), SubmitFeedbackCommand{ActorID: "user_broker", SubmissionID: "sub_test"}); !errors.Is(err, ErrFeedbackForbidden) {
		t.Fatalf("expected ErrFeedbackForbidden, got %v", err)
	}
}
