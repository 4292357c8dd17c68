package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/renewals-backend/pkg/enums"
)

// Order is a renewal order raised against one or more subscriptions.
type Order struct {
	ID              uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Number          string            `gorm:"column:number;not null;unique"`
	Status          enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Total           decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Currency        enums.Currency    `gorm:"column:currency;not null;default:'USD'"`
	PaymentMethodID *uuid.UUID        `gorm:"column:payment_method_id;type:uuid"`
	GatewayRef      *string           `gorm:"column:gateway_ref"`
	// RetryDueAt is the armed execution time for a scheduled retry; nil
	// means no retry is armed for this order.
	RetryDueAt *time.Time `gorm:"column:retry_due_at;index"`
	PaidAt     *time.Time `gorm:"column:paid_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// NeedsPayment reports whether the order still owes its renewal charge.
func (o *Order) NeedsPayment() bool {
	if o == nil {
		return false
	}
	return o.Status.NeedsPayment() && o.Total.IsPositive()
}

// OrderSubscription links a renewal order to the subscriptions it bills.
type OrderSubscription struct {
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;primaryKey"`
	SubscriptionID uuid.UUID `gorm:"column:subscription_id;type:uuid;not null;primaryKey;index"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// OrderNote is an audit entry attached to an order.
type OrderNote struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	Note      string    `gorm:"column:note;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
