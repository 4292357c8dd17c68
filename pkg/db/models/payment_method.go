package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/renewals-backend/pkg/enums"
)

// PaymentMethod is a tokenized instrument renewal charges are collected with.
type PaymentMethod struct {
	ID          uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Gateway     enums.PaymentGateway    `gorm:"column:gateway;type:payment_gateway;not null"`
	Type        enums.PaymentMethodType `gorm:"column:type;type:payment_method_type;not null;default:'card'"`
	GatewayRef  string                  `gorm:"column:gateway_ref;not null"`
	CustomerRef string                  `gorm:"column:customer_ref;not null"`
	CardBrand   *string                 `gorm:"column:card_brand"`
	CardLast4   *string                 `gorm:"column:card_last4"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// SupportsRetry reports whether the retry engine may reschedule charges on
// this method: manual methods and methods that cannot move their charge date
// are excluded.
func (p *PaymentMethod) SupportsRetry() bool {
	if p == nil {
		return false
	}
	if p.Gateway == enums.PaymentGatewayOffline {
		return false
	}
	return !p.Type.IsManual() && p.Type.SupportsDateChanges()
}
