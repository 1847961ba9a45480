package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/coverplace/api/internal/domain"
	"github.com/coverplace/api/internal/platform/auth"
	"github.com/coverplace/api/internal/services"
)

type stubDealService struct {
	createFunc       func(ctx context.Context, cmd services.CreateDealCommand) (services.DealSubmission, error)
	getFunc          func(ctx context.Context, cmd services.GetDealCommand) (services.DealSubmission, error)
	listFunc         func(ctx context.Context, cmd services.ListDealsCommand) (domain.CursorPage[services.DealSubmission], error)
	updateFunc       func(ctx context.Context, cmd services.UpdateDealCommand) (services.DealSubmission, error)
	assigneesFunc    func(ctx context.Context, cmd services.UpdateAssigneesCommand) (services.DealSubmission, error)
	submitFunc       func(ctx context.Context, cmd services.SubmitDealCommand) (services.SubmitDealResult, error)
	modifyFunc       func(ctx context.Context, cmd services.ModifyDealCommand) (services.DealSubmission, error)
	goLiveFunc       func(ctx context.Context, cmd services.GoLiveCommand) (services.GoLiveResult, error)
	nudgeFunc        func(ctx context.Context, cmd services.NudgeInsurerCommand) error
	getLiveFunc      func(ctx context.Context, cmd services.GetLiveDealCommand) (services.LiveDeal, error)
	listLiveFunc     func(ctx context.Context, cmd services.ListLiveDealsCommand) (domain.CursorPage[services.LiveDeal], error)
}

func (s *stubDealService) CreateDeal(ctx context.Context, cmd services.CreateDealCommand) (services.DealSubmission, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.DealSubmission{}, nil
}

func (s *stubDealService) GetDeal(ctx context.Context, cmd services.GetDealCommand) (services.DealSubmission, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, cmd)
	}
	return services.DealSubmission{}, nil
}

func (s *stubDealService) ListDeals(ctx context.Context, cmd services.ListDealsCommand) (domain.CursorPage[services.DealSubmission], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, cmd)
	}
	return domain.CursorPage[services.DealSubmission]{}, nil
}

func (s *stubDealService) UpdateDeal(ctx context.Context, cmd services.UpdateDealCommand) (services.DealSubmission, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.DealSubmission{}, nil
}

func (s *stubDealService) UpdateAssignees(ctx context.Context, cmd services.UpdateAssigneesCommand) (services.DealSubmission, error) {
	if s.assigneesFunc != nil {
		return s.assigneesFunc(ctx, cmd)
	}
	return services.DealSubmission{}, nil
}

func (s *stubDealService) SubmitDeal(ctx context.Context, cmd services.SubmitDealCommand) (services.SubmitDealResult, error) {
	if s.submitFunc != nil {
		return s.submitFunc(ctx, cmd)
	}
	return services.SubmitDealResult{}, nil
}

func (s *stubDealService) ModifyDeal(ctx context.Context, cmd services.ModifyDealCommand) (services.DealSubmission, error) {
	if s.modifyFunc != nil {
		return s.modifyFunc(ctx, cmd)
	}
	return services.DealSubmission{}, nil
}

func (s *stubDealService) GoLive(ctx context.Context, cmd services.GoLiveCommand) (services.GoLiveResult, error) {
	if s.goLiveFunc != nil {
		return s.goLiveFunc(ctx, cmd)
	}
	return services.GoLiveResult{}, nil
}

func (s *stubDealService) NudgeInsurer(ctx context.Context, cmd services.NudgeInsurerCommand) error {
	if s.nudgeFunc != nil {
		return s.nudgeFunc(ctx, cmd)
	}
	return nil
}

func (s *stubDealService) GetLiveDeal(ctx context.Context, cmd services.GetLiveDealCommand) (services.LiveDeal, error) {
	if s.getLiveFunc != nil {
		return s.getLiveFunc(ctx, cmd)
	}
	return services.LiveDeal{}, nil
}

func (s *stubDealService) ListLiveDeals(ctx context.Context, cmd services.ListLiveDealsCommand) (domain.CursorPage[services.LiveDeal], error) {
	if s.listLiveFunc != nil {
		return s.listLiveFunc(ctx, cmd)
	}
	return domain.CursorPage[services.LiveDeal]{}, nil
}

func authenticated(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
}

func sampleDeal(t *testing.T) domain.DealSubmission {
	t.Helper()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	deal, err := domain.NewDealSubmission("sub_01", "cmp_broker", "Project Aurora", "Meridian Risk Partners", now)
	if err != nil {
		t.Fatalf("NewDealSubmission: %v", err)
	}
	return deal
}

func TestDealHandlersCreateSuccess(t *testing.T) {
	deal := sampleDeal(t)
	var captured services.CreateDealCommand
	service := &stubDealService{
		createFunc: func(_ context.Context, cmd services.CreateDealCommand) (services.DealSubmission, error) {
			captured = cmd
			return deal, nil
		},
	}

	handler := NewDealHandlers(nil, service)
	router := NewRouter(WithDealRoutes(handler.Routes))

	body := bytes.NewBufferString(`{"name":" Project Aurora <script>alert(1)</script> "}`)
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/v1/deals", body), "user-1")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ActorID != "user-1" {
		t.Fatalf("expected actor propagated, got %q", captured.ActorID)
	}
	if captured.Name != "Project Aurora" {
		t.Fatalf("expected markup stripped from name, got %q", captured.Name)
	}

	var payload dealResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Deal.ID != "sub_01" || payload.Deal.Submitted {
		t.Fatalf("unexpected deal payload %+v", payload.Deal)
	}
	if payload.Deal.Pricing.Currency != "EUR" {
		t.Fatalf("expected default pricing currency, got %q", payload.Deal.Pricing.Currency)
	}
}

func TestDealHandlersRequireAuthentication(t *testing.T) {
	handler := NewDealHandlers(nil, &stubDealService{})
	router := NewRouter(WithDealRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestDealHandlersSubmitParsesDeadline(t *testing.T) {
	deal := sampleDeal(t)
	var captured services.SubmitDealCommand
	service := &stubDealService{
		submitFunc: func(_ context.Context, cmd services.SubmitDealCommand) (services.SubmitDealResult, error) {
			captured = cmd
			return services.SubmitDealResult{
				Submission: deal,
				Recipients: []services.RecipientResolution{
					{CompanyID: "cmp_ins_a", Recipients: []domain.Recipient{{Email: "a@x.example"}}},
				},
			}, nil
		},
	}

	handler := NewDealHandlers(nil, service)
	router := NewRouter(WithDealRoutes(handler.Routes))

	body := bytes.NewBufferString(`{"insurer_company_ids":["cmp_ins_a"],"submission_deadline":"2025-06-08T09:00:00Z"}`)
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/v1/deals/sub_01/submit", body), "user-1")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.SubmissionID != "sub_01" {
		t.Fatalf("expected deal id from path, got %q", captured.SubmissionID)
	}
	expected := time.Date(2025, 6, 8, 9, 0, 0, 0, time.UTC)
	if !captured.SubmissionDeadline.Equal(expected) {
		t.Fatalf("expected parsed deadline, got %v", captured.SubmissionDeadline)
	}

	var payload submitDealResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload.Notifications) != 1 || payload.Notifications[0].Recipients != 1 {
		t.Fatalf("unexpected notifications payload %+v", payload.Notifications)
	}
}

func TestDealHandlersSubmitRejectsBadDeadline(t *testing.T) {
	handler := NewDealHandlers(nil, &stubDealService{})
	router := NewRouter(WithDealRoutes(handler.Routes))

	body := bytes.NewBufferString(`{"insurer_company_ids":["cmp_ins_a"],"submission_deadline":"next week"}`)
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/v1/deals/sub_01/submit", body), "user-1")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestDealHandlersDomainRuleViolation(t *testing.T) {
	service := &stubDealService{
		modifyFunc: func(_ context.Context, _ services.ModifyDealCommand) (services.DealSubmission, error) {
			return services.DealSubmission{}, domain.ErrModifyDealNotSubmitted
		},
	}
	handler := NewDealHandlers(nil, service)
	router := NewRouter(WithDealRoutes(handler.Routes))

	body := bytes.NewBufferString(`{"notes":"update"}`)
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/v1/deals/sub_01/modify", body), "user-1")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["error"] != "modify_deal_not_submitted" {
		t.Fatalf("expected stable error code, got %v", payload["error"])
	}
}

func TestDealHandlersConflictMapsTo409(t *testing.T) {
	service := &stubDealService{
		updateFunc: func(_ context.Context, _ services.UpdateDealCommand) (services.DealSubmission, error) {
			return services.DealSubmission{}, services.ErrDealConflict
		},
	}
	handler := NewDealHandlers(nil, service)
	router := NewRouter(WithDealRoutes(handler.Routes))

	body := bytes.NewBufferString(`{"name":"Project Aurora","etag":"stale"}`)
	req := authenticated(httptest.NewRequest(http.MethodPut, "/api/v1/deals/sub_01", body), "user-1")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestDealHandlersNudgeRateLimited(t *testing.T) {
	service := &stubDealService{}
	handler := NewDealHandlers(nil, service, WithNudgeRateLimiter(newSimpleRateLimiter(1, time.Hour, nil)))
	router := NewRouter(WithDealRoutes(handler.Routes))

	body := `{"insurer_company_id":"cmp_ins_a"}`
	first := authenticated(httptest.NewRequest(http.MethodPost, "/api/v1/deals/sub_01/nudge", bytes.NewBufferString(body)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, first)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rr.Code, rr.Body.String())
	}

	second := authenticated(httptest.NewRequest(http.MethodPost, "/api/v1/deals/sub_01/nudge", bytes.NewBufferString(body)), "user-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, second)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
}

func TestDealHandlersListLiveDeals(t *testing.T) {
	service := &stubDealService{
		listLiveFunc: func(_ context.Context, cmd services.ListLiveDealsCommand) (domain.CursorPage[services.LiveDeal], error) {
			if cmd.Pagination.PageSize != 10 {
				t.Fatalf("expected page size 10, got %d", cmd.Pagination.PageSize)
			}
			return domain.CursorPage[services.LiveDeal]{
				Items: []services.LiveDeal{{
					ID:              "lvd_01",
					SubmissionID:    "sub_01",
					FeedbackID:      "fbk_01",
					Name:            "Project Aurora",
					Currency:        "EUR",
					EnterpriseValue: 25_000_000,
				}},
				NextPageToken: "tok",
			}, nil
		},
	}
	handler := NewDealHandlers(nil, service)
	router := NewRouter(WithDealRoutes(handler.Routes))

	req := authenticated(httptest.NewRequest(http.MethodGet, "/api/v1/deals/live?page_size=10", nil), "user-1")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload liveDealListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload.LiveDeals) != 1 || payload.LiveDeals[0].ID != "lvd_01" {
		t.Fatalf("unexpected live deals %+v", payload.LiveDeals)
	}
	if payload.NextPageToken != "tok" {
		t.Fatalf("expected next page token, got %q", payload.NextPageToken)
	}
}
