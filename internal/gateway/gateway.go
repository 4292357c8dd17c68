package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
)

// ChargeRequest carries everything a gateway needs to collect a renewal payment.
type ChargeRequest struct {
	Order          models.Order
	Method         models.PaymentMethod
	IdempotencyKey string
}

// ChargeResult reports a settled charge.
type ChargeResult struct {
	GatewayRef string
}

// Charger collects a renewal payment through one payment gateway.
type Charger interface {
	Name() enums.PaymentGateway
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// DeclineError marks a charge the gateway rejected for payment reasons, as
// opposed to an infrastructure failure. Declines advance the retry pipeline;
// infrastructure failures are surfaced to the caller.
type DeclineError struct {
	Reason string
	Err    error
}

func (e *DeclineError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("payment declined: %s", e.Reason)
	}
	return "payment declined"
}

func (e *DeclineError) Unwrap() error {
	return e.Err
}

// IsDecline reports whether the error represents a payment decline.
func IsDecline(err error) bool {
	var decline *DeclineError
	return errors.As(err, &decline)
}

// Registry resolves the charger for a payment method's gateway.
type Registry struct {
	chargers map[enums.PaymentGateway]Charger
}

// NewRegistry indexes the provided chargers by gateway name.
func NewRegistry(chargers ...Charger) *Registry {
	reg := &Registry{chargers: make(map[enums.PaymentGateway]Charger, len(chargers))}
	for _, c := range chargers {
		if c == nil {
			continue
		}
		reg.chargers[c.Name()] = c
	}
	return reg
}

// Resolve returns the charger registered for the gateway.
func (r *Registry) Resolve(gw enums.PaymentGateway) (Charger, error) {
	if r == nil {
		return nil, fmt.Errorf("gateway registry not initialized")
	}
	charger, ok := r.chargers[gw]
	if !ok {
		return nil, fmt.Errorf("no charger registered for gateway %s", gw)
	}
	return charger, nil
}
