package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/renewals-backend/pkg/logger"
)

func middlewareTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "middleware-test", Output: io.Discard})
}

func adminProtected(apiKey string) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return AdminAuth(apiKey, middlewareTestLogger())(next)
}

func TestAdminAuthAcceptsHeaderKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/retry-rules", nil)
	req.Header.Set("X-Api-Key", "sekrit")
	rec := httptest.NewRecorder()
	adminProtected("sekrit").ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestAdminAuthAcceptsBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/retry-rules", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec := httptest.NewRecorder()
	adminProtected("sekrit").ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestAdminAuthRejectsMissingCredentials(t *testing.T) {
	rec := httptest.NewRecorder()
	adminProtected("sekrit").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/retry-rules", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAdminAuthRejectsWrongKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/retry-rules", nil)
	req.Header.Set("X-Api-Key", "wrong")
	rec := httptest.NewRecorder()
	adminProtected("sekrit").ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAdminAuthFailsClosedWithoutConfiguredKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/retry-rules", nil)
	req.Header.Set("X-Api-Key", "anything")
	rec := httptest.NewRecorder()
	adminProtected("").ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
