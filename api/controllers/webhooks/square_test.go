package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	webhookguard "github.com/angelmondragon/renewals-backend/internal/webhooks"
	squarewebhook "github.com/angelmondragon/renewals-backend/internal/webhooks/square"
	"github.com/google/uuid"
)

func TestSquareWebhook_SuccessAndIdempotent(t *testing.T) {
	payload := buildSquareEvent(t, "subscription.updated")
	header := buildSquareSignature(payload, "secret")
	service := &fakeSquareWebhookService{}
	store := newInMemoryStore()
	guard, err := webhookguard.NewIdempotencyGuard(store, time.Minute, "square-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := SquareWebhook(service, &fakeSigningClient{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req.Header.Set("Square-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req2.Header.Set("Square-Signature", header)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec2.Code)
	}
	if service.calls != 1 {
		t.Fatalf("duplicate should not increment calls, got %d", service.calls)
	}
}

func TestSquareWebhook_InvalidSignature(t *testing.T) {
	payload := buildSquareEvent(t, "subscription.updated")
	service := &fakeSquareWebhookService{}
	store := newInMemoryStore()
	guard, err := webhookguard.NewIdempotencyGuard(store, time.Minute, "square-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := SquareWebhook(service, &fakeSigningClient{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req.Header.Set("Square-Signature", "invalid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for invalid signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func buildSquareEvent(t *testing.T, eventType string) []byte {
	t.Helper()
	event := &squarewebhook.WebhookEvent{
		EventID: "evt_" + uuid.NewString(),
		Type:    eventType,
		Data: squarewebhook.WebhookData{
			ID: eventType + "_" + uuid.NewString(),
			Object: squarewebhook.WebhookObject{
				Subscription: &squarewebhook.WebhookSubscription{
					ID:     "sub_" + uuid.NewString(),
					Status: "CANCELED",
				},
			},
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func buildSquareSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type fakeSquareWebhookService struct {
	calls int
}

func (f *fakeSquareWebhookService) HandleEvent(ctx context.Context, event *squarewebhook.WebhookEvent) error {
	f.calls++
	return nil
}
