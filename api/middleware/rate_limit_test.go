package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeLimiterStore struct {
	counts map[string]int64
	err    error
}

func (f *fakeLimiterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key]++
	return f.counts[key], nil
}

func rateLimited(policy RateLimitPolicy, store rateLimiterStore) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return RateLimit(policy, store, middlewareTestLogger())(next)
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	store := &fakeLimiterStore{}
	handler := rateLimited(NewRateLimitPolicy("admin", time.Minute, 2), store)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/admin/retry-rules", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d should pass, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/retry-rules", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRateLimitCountsPerIP(t *testing.T) {
	store := &fakeLimiterStore{}
	handler := rateLimited(NewRateLimitPolicy("admin", time.Minute, 1), store)

	first := httptest.NewRequest(http.MethodGet, "/admin/retry-rules", nil)
	first.RemoteAddr = "10.0.0.1:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first ip should pass, got %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/admin/retry-rules", nil)
	second.RemoteAddr = "10.0.0.2:4000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("second ip should have its own counter, got %d", rec.Code)
	}
}

func TestRateLimitUsesForwardedFor(t *testing.T) {
	store := &fakeLimiterStore{}
	handler := rateLimited(NewRateLimitPolicy("webhooks", time.Minute, 1), store)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
	if _, ok := store.counts["rl:ip:webhooks:198.51.100.7"]; !ok {
		t.Fatalf("expected forwarded address in key, got %v", store.counts)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := &fakeLimiterStore{}
	handler := rateLimited(NewRateLimitPolicy("admin", 0, 0), store)

	req := httptest.NewRequest(http.MethodGet, "/admin/retry-rules", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
	if len(store.counts) != 0 {
		t.Fatalf("store should not be touched")
	}
}

func TestRateLimitStoreFailure(t *testing.T) {
	store := &fakeLimiterStore{err: errors.New("redis: connection refused")}
	handler := rateLimited(NewRateLimitPolicy("admin", time.Minute, 5), store)

	req := httptest.NewRequest(http.MethodGet, "/admin/retry-rules", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
