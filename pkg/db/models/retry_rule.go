package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/renewals-backend/pkg/enums"
)

// RetryRule is one row of the admin-maintained retry rule table. Position is
// the 0-based retry attempt index the rule applies to. A nil OrderID means
// the rule belongs to the default table; a set OrderID scopes an override
// table to that single order.
type RetryRule struct {
	ID              uuid.UUID                 `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         *uuid.UUID                `gorm:"column:order_id;type:uuid;index"`
	Position        int                       `gorm:"column:position;not null"`
	IntervalSeconds int64                     `gorm:"column:interval_seconds;not null"`
	OrderStatus     *enums.OrderStatus        `gorm:"column:order_status;type:order_status"`
	SubStatus       *enums.SubscriptionStatus `gorm:"column:sub_status;type:subscription_status"`
	CreatedAt       time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
