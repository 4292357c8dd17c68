package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/renewals-backend/pkg/errors"
	"github.com/angelmondragon/renewals-backend/pkg/pagination"
)

type fakeRetryAdmin struct {
	attempts   []models.RetryAttempt
	nextCursor string
	err        error

	listOrderID   uuid.UUID
	listParams    pagination.Params
	cancelOrderID uuid.UUID
	cancelReason  string
	cancelCalls   int
}

func (f *fakeRetryAdmin) ListAttempts(_ context.Context, orderID uuid.UUID, params pagination.Params) ([]models.RetryAttempt, string, error) {
	f.listOrderID = orderID
	f.listParams = params
	return f.attempts, f.nextCursor, f.err
}

func (f *fakeRetryAdmin) CancelForOrder(_ context.Context, orderID uuid.UUID, reason string) error {
	f.cancelOrderID = orderID
	f.cancelReason = reason
	f.cancelCalls++
	return f.err
}

func attemptRouter(svc *fakeRetryAdmin) http.Handler {
	logg := testLogger()
	r := chi.NewRouter()
	r.Get("/admin/orders/{orderId}/retry-attempts", RetryAttemptList(svc, logg))
	r.Post("/admin/orders/{orderId}/retry/cancel", RetryCancel(svc, logg))
	return r
}

func TestRetryAttemptListReturnsPage(t *testing.T) {
	orderID := uuid.New()
	svc := &fakeRetryAdmin{
		attempts: []models.RetryAttempt{
			{ID: uuid.New(), OrderID: orderID, Status: enums.RetryStatusComplete, ScheduledAt: time.Now()},
		},
		nextCursor: "cursor-token",
	}
	rec := httptest.NewRecorder()
	attemptRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders/"+orderID.String()+"/retry-attempts?limit=10&cursor=abc", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.listOrderID != orderID {
		t.Fatalf("order id not passed through")
	}
	if svc.listParams.Limit != 10 || svc.listParams.Cursor != "abc" {
		t.Fatalf("pagination params mismatch: %+v", svc.listParams)
	}

	var envelope struct {
		Data struct {
			Attempts   []models.RetryAttempt `json:"attempts"`
			NextCursor string                `json:"next_cursor"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Attempts) != 1 {
		t.Fatalf("expected one attempt, got %d", len(envelope.Data.Attempts))
	}
	if envelope.Data.NextCursor != "cursor-token" {
		t.Fatalf("next cursor not surfaced: %q", envelope.Data.NextCursor)
	}
}

func TestRetryAttemptListDefaultsLimit(t *testing.T) {
	orderID := uuid.New()
	svc := &fakeRetryAdmin{}
	rec := httptest.NewRecorder()
	attemptRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders/"+orderID.String()+"/retry-attempts", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.listParams.Limit != pagination.DefaultLimit {
		t.Fatalf("expected default limit, got %d", svc.listParams.Limit)
	}
}

func TestRetryAttemptListRejectsBadOrderID(t *testing.T) {
	svc := &fakeRetryAdmin{}
	rec := httptest.NewRecorder()
	attemptRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders/nope/retry-attempts", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRetryCancelPassesReason(t *testing.T) {
	orderID := uuid.New()
	svc := &fakeRetryAdmin{}
	body := []byte(`{"reason":"customer closed account"}`)
	rec := httptest.NewRecorder()
	attemptRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders/"+orderID.String()+"/retry/cancel", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.cancelOrderID != orderID {
		t.Fatalf("order id not passed through")
	}
	if svc.cancelReason != "customer closed account" {
		t.Fatalf("reason not passed through: %q", svc.cancelReason)
	}
}

func TestRetryCancelAllowsEmptyBody(t *testing.T) {
	orderID := uuid.New()
	svc := &fakeRetryAdmin{}
	rec := httptest.NewRecorder()
	attemptRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders/"+orderID.String()+"/retry/cancel", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.cancelCalls != 1 {
		t.Fatalf("cancel not called")
	}
	if svc.cancelReason != "" {
		t.Fatalf("expected empty reason, got %q", svc.cancelReason)
	}
}

func TestRetryCancelSurfacesStateConflict(t *testing.T) {
	orderID := uuid.New()
	svc := &fakeRetryAdmin{err: pkgerrors.New(pkgerrors.CodeStateConflict, "no armed retry for order")}
	rec := httptest.NewRecorder()
	attemptRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders/"+orderID.String()+"/retry/cancel", nil))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (%s)", rec.Code, rec.Body.String())
	}
}
