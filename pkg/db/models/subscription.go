package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/renewals-backend/pkg/enums"
)

// Subscription persists recurring billing state per customer plan.
type Subscription struct {
	ID              uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerRef     string                   `gorm:"column:customer_ref;not null;index"`
	GatewaySubRef   *string                  `gorm:"column:gateway_sub_ref;uniqueIndex"`
	Status          enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	PaymentMethodID *uuid.UUID               `gorm:"column:payment_method_id;type:uuid"`
	NextPaymentAt   *time.Time               `gorm:"column:next_payment_at"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
