package subscriptions

import (
	"testing"

	"github.com/angelmondragon/renewals-backend/pkg/enums"
)

func TestMapStripeStatus(t *testing.T) {
	tests := []struct {
		raw    string
		want   enums.SubscriptionStatus
		wantOK bool
	}{
		{"active", enums.SubscriptionStatusActive, true},
		{"past_due", enums.SubscriptionStatusOnHold, true},
		{"PAST-DUE", enums.SubscriptionStatusOnHold, true},
		{"canceled", enums.SubscriptionStatusCancelled, true},
		{"incomplete_expired", enums.SubscriptionStatusExpired, true},
		{"incomplete", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := MapStripeStatus(tt.raw)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("MapStripeStatus(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestMapSquareStatus(t *testing.T) {
	tests := []struct {
		raw    string
		want   enums.SubscriptionStatus
		wantOK bool
	}{
		{"ACTIVE", enums.SubscriptionStatusActive, true},
		{"PAUSED", enums.SubscriptionStatusOnHold, true},
		{"DEACTIVATED", enums.SubscriptionStatusCancelled, true},
		{"COMPLETED", enums.SubscriptionStatusExpired, true},
		{"unknown", "", false},
	}
	for _, tt := range tests {
		got, ok := MapSquareStatus(tt.raw)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("MapSquareStatus(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}
