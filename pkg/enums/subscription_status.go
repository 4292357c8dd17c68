package enums

import "fmt"

// SubscriptionStatus mirrors the recurring billing subscription state.
type SubscriptionStatus string

const (
	SubscriptionStatusActive        SubscriptionStatus = "active"
	SubscriptionStatusOnHold        SubscriptionStatus = "on_hold"
	SubscriptionStatusPendingCancel SubscriptionStatus = "pending_cancel"
	SubscriptionStatusCancelled     SubscriptionStatus = "cancelled"
	SubscriptionStatusSwitched      SubscriptionStatus = "switched"
	SubscriptionStatusExpired       SubscriptionStatus = "expired"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusOnHold,
	SubscriptionStatusPendingCancel,
	SubscriptionStatusCancelled,
	SubscriptionStatusSwitched,
	SubscriptionStatusExpired,
}

// retryHaltingStatuses are the lifecycle states that invalidate any pending
// scheduled retry: the subscription either recovered on its own or moved to a
// final state, so a stale retry must never fire against it.
var retryHaltingStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusPendingCancel,
	SubscriptionStatusCancelled,
	SubscriptionStatusSwitched,
	SubscriptionStatusExpired,
}

// String implements fmt.Stringer.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// HaltsRetries reports whether entering this status must clear any pending
// scheduled retry for the subscription's orders.
func (s SubscriptionStatus) HaltsRetries() bool {
	for _, candidate := range retryHaltingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}
