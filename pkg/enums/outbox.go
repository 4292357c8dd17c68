package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateSubscription OutboxAggregateType = "subscription"
	AggregateRetryAttempt OutboxAggregateType = "retry_attempt"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateSubscription,
	AggregateRetryAttempt,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventRenewalPaymentFailed      OutboxEventType = "renewal_payment_failed"
	EventRetryScheduled            OutboxEventType = "retry_scheduled"
	EventRetryCancelled            OutboxEventType = "retry_cancelled"
	EventRetryCompleted            OutboxEventType = "retry_completed"
	EventRetryFailed               OutboxEventType = "retry_failed"
	EventOrderStatusChanged        OutboxEventType = "order_status_changed"
	EventSubscriptionStatusChanged OutboxEventType = "subscription_status_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventRenewalPaymentFailed,
	EventRetryScheduled,
	EventRetryCancelled,
	EventRetryCompleted,
	EventRetryFailed,
	EventOrderStatusChanged,
	EventSubscriptionStatusChanged,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
