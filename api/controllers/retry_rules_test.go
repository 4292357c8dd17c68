package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/renewals-backend/internal/retry"
	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/renewals-backend/pkg/errors"
	"github.com/angelmondragon/renewals-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test", Output: io.Discard})
}

type fakeRulesService struct {
	rules []models.RetryRule
	err   error

	listOrderID *uuid.UUID
	created     *retry.RuleInput
	updatedID   uuid.UUID
	updated     *retry.RuleInput
	deletedID   uuid.UUID
}

func (f *fakeRulesService) List(_ context.Context, orderID *uuid.UUID) ([]models.RetryRule, error) {
	f.listOrderID = orderID
	return f.rules, f.err
}

func (f *fakeRulesService) Create(_ context.Context, input retry.RuleInput) (*models.RetryRule, error) {
	f.created = &input
	if f.err != nil {
		return nil, f.err
	}
	return &models.RetryRule{ID: uuid.New(), Position: input.Position, IntervalSeconds: input.IntervalSeconds}, nil
}

func (f *fakeRulesService) Update(_ context.Context, id uuid.UUID, input retry.RuleInput) (*models.RetryRule, error) {
	f.updatedID = id
	f.updated = &input
	if f.err != nil {
		return nil, f.err
	}
	return &models.RetryRule{ID: id, Position: input.Position, IntervalSeconds: input.IntervalSeconds}, nil
}

func (f *fakeRulesService) Delete(_ context.Context, id uuid.UUID) error {
	f.deletedID = id
	return f.err
}

func ruleRouter(svc *fakeRulesService) http.Handler {
	logg := testLogger()
	r := chi.NewRouter()
	r.Get("/admin/retry-rules", RetryRuleList(svc, logg))
	r.Post("/admin/retry-rules", RetryRuleCreate(svc, logg))
	r.Put("/admin/retry-rules/{ruleId}", RetryRuleUpdate(svc, logg))
	r.Delete("/admin/retry-rules/{ruleId}", RetryRuleDelete(svc, logg))
	return r
}

func TestRetryRuleListDefaultsToGlobalTable(t *testing.T) {
	svc := &fakeRulesService{rules: []models.RetryRule{{ID: uuid.New(), IntervalSeconds: 3600}}}
	rec := httptest.NewRecorder()
	ruleRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/retry-rules", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.listOrderID != nil {
		t.Fatalf("expected nil order filter, got %s", svc.listOrderID)
	}
}

func TestRetryRuleListFiltersByOrder(t *testing.T) {
	orderID := uuid.New()
	svc := &fakeRulesService{}
	rec := httptest.NewRecorder()
	ruleRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/retry-rules?order_id="+orderID.String(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.listOrderID == nil || *svc.listOrderID != orderID {
		t.Fatalf("order filter not passed through")
	}
}

func TestRetryRuleListRejectsBadOrderID(t *testing.T) {
	svc := &fakeRulesService{}
	rec := httptest.NewRecorder()
	ruleRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/retry-rules?order_id=nope", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRetryRuleCreateParsesStatusTargets(t *testing.T) {
	svc := &fakeRulesService{}
	body := []byte(`{"position":0,"interval_seconds":3600,"order_status":"failed","sub_status":"on_hold"}`)
	rec := httptest.NewRecorder()
	ruleRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/retry-rules", bytes.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.created == nil {
		t.Fatalf("create not called")
	}
	if svc.created.OrderStatus == nil || *svc.created.OrderStatus != enums.OrderStatusFailed {
		t.Fatalf("order status target not parsed: %+v", svc.created.OrderStatus)
	}
	if svc.created.SubStatus == nil || *svc.created.SubStatus != enums.SubscriptionStatusOnHold {
		t.Fatalf("subscription status target not parsed: %+v", svc.created.SubStatus)
	}
	if svc.created.IntervalSeconds != 3600 {
		t.Fatalf("interval mismatch: %d", svc.created.IntervalSeconds)
	}
}

func TestRetryRuleCreateRejectsUnknownStatus(t *testing.T) {
	svc := &fakeRulesService{}
	body := []byte(`{"position":0,"interval_seconds":3600,"order_status":"bogus"}`)
	rec := httptest.NewRecorder()
	ruleRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/retry-rules", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.created != nil {
		t.Fatalf("create should not be called")
	}
}

func TestRetryRuleCreateRequiresInterval(t *testing.T) {
	svc := &fakeRulesService{}
	body := []byte(`{"position":1}`)
	rec := httptest.NewRecorder()
	ruleRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/retry-rules", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestRetryRuleUpdateValidatesID(t *testing.T) {
	svc := &fakeRulesService{}
	body := []byte(`{"position":0,"interval_seconds":60}`)
	rec := httptest.NewRecorder()
	ruleRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/retry-rules/not-a-uuid", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRetryRuleUpdatePropagatesNotFound(t *testing.T) {
	ruleID := uuid.New()
	svc := &fakeRulesService{err: pkgerrors.New(pkgerrors.CodeNotFound, "rule not found")}
	body := []byte(`{"position":2,"interval_seconds":7200}`)
	rec := httptest.NewRecorder()
	ruleRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/retry-rules/"+ruleID.String(), bytes.NewReader(body)))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if svc.updatedID != ruleID {
		t.Fatalf("update called with wrong id")
	}
}

func TestRetryRuleDelete(t *testing.T) {
	ruleID := uuid.New()
	svc := &fakeRulesService{}
	rec := httptest.NewRecorder()
	ruleRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/retry-rules/"+ruleID.String(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.deletedID != ruleID {
		t.Fatalf("delete called with wrong id")
	}

	var envelope struct {
		Data any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
