package subscriptions

import (
	"strings"

	"github.com/angelmondragon/renewals-backend/pkg/enums"
)

// MapStripeStatus converts a Stripe subscription status string into the
// canonical status enum.
func MapStripeStatus(raw string) (enums.SubscriptionStatus, bool) {
	switch normalizeStatus(raw) {
	case "ACTIVE", "TRIALING":
		return enums.SubscriptionStatusActive, true
	case "PAST_DUE", "UNPAID":
		return enums.SubscriptionStatusOnHold, true
	case "CANCELED", "CANCELLED":
		return enums.SubscriptionStatusCancelled, true
	case "INCOMPLETE_EXPIRED":
		return enums.SubscriptionStatusExpired, true
	default:
		return "", false
	}
}

// MapSquareStatus converts a Square subscription status string into the
// canonical status enum.
func MapSquareStatus(raw string) (enums.SubscriptionStatus, bool) {
	switch normalizeStatus(raw) {
	case "ACTIVE", "PENDING":
		return enums.SubscriptionStatusActive, true
	case "PAUSED", "SUSPENDED":
		return enums.SubscriptionStatusOnHold, true
	case "CANCELED", "CANCELLED", "DEACTIVATED":
		return enums.SubscriptionStatusCancelled, true
	case "COMPLETED":
		return enums.SubscriptionStatusExpired, true
	default:
		return "", false
	}
}

func normalizeStatus(raw string) string {
	normalized := strings.TrimSpace(raw)
	normalized = strings.ToUpper(normalized)
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	return normalized
}
