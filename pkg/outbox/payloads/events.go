package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/renewals-backend/pkg/enums"
)

// RenewalPaymentFailedEvent is emitted when a renewal charge bounces at the
// gateway and the order enters the retry pipeline.
type RenewalPaymentFailedEvent struct {
	OrderID      uuid.UUID       `json:"order_id"`
	Total        decimal.Decimal `json:"total"`
	Currency     enums.Currency  `json:"currency"`
	GatewayError string          `json:"gateway_error,omitempty"`
	FailedAt     time.Time       `json:"failed_at"`
}

// RetryScheduledEvent signals a retry has been armed for an order.
type RetryScheduledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	AttemptID   uuid.UUID `json:"attempt_id"`
	RetryCount  int       `json:"retry_count"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// RetryCancelledEvent is emitted when a scheduled retry is withdrawn before it ran.
type RetryCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	AttemptID   uuid.UUID `json:"attempt_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// RetryCompletedEvent is emitted when a retried charge settles successfully.
type RetryCompletedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	AttemptID   uuid.UUID `json:"attempt_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// RetryFailedEvent is emitted when a retried charge fails again.
type RetryFailedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	AttemptID  uuid.UUID `json:"attempt_id"`
	RetryCount int       `json:"retry_count"`
	Error      string    `json:"error,omitempty"`
	FailedAt   time.Time `json:"failed_at"`
}

// OrderStatusChangedEvent mirrors an order status transition applied by a rule
// or a settlement.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// SubscriptionStatusChangedEvent mirrors a subscription status transition.
type SubscriptionStatusChangedEvent struct {
	SubscriptionID uuid.UUID                `json:"subscription_id"`
	From           enums.SubscriptionStatus `json:"from"`
	To             enums.SubscriptionStatus `json:"to"`
}
