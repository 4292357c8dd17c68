package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/renewals-backend/pkg/enums"
)

// RetryAttempt records one scheduled or executed renewal payment retry for an
// order. The rule in effect at scheduling time is frozen onto the row
// (RuleIntervalSeconds, RuleOrderStatus, RuleSubStatus) so execution always
// evaluates against the rule that produced the attempt, even if the rule
// table changed since. Rows are never deleted: terminal attempts are the
// history that drives the next attempt-count lookup.
type RetryAttempt struct {
	ID                  uuid.UUID                 `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID             uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	Status              enums.RetryStatus         `gorm:"column:status;type:retry_status;not null;default:'pending'"`
	ScheduledAt         time.Time                 `gorm:"column:scheduled_at;not null"`
	RuleID              *uuid.UUID                `gorm:"column:rule_id;type:uuid"`
	RuleIntervalSeconds int64                     `gorm:"column:rule_interval_seconds;not null"`
	RuleOrderStatus     *enums.OrderStatus        `gorm:"column:rule_order_status;type:order_status"`
	RuleSubStatus       *enums.SubscriptionStatus `gorm:"column:rule_sub_status;type:subscription_status"`
	CreatedAt           time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
