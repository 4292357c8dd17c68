package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/angelmondragon/renewals-backend/pkg/enums"
	pkgstripe "github.com/angelmondragon/renewals-backend/pkg/stripe"
)

// StripePaymentClient exposes the subset of Stripe operations the renewal
// charger needs.
type StripePaymentClient interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripePaymentWrapper struct{}

// NewStripePaymentClient wraps the configured Stripe client so the charger can
// be tested.
func NewStripePaymentClient(api *pkgstripe.Client) StripePaymentClient {
	if api == nil {
		return nil
	}
	return &stripePaymentWrapper{}
}

func (w *stripePaymentWrapper) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

// StripeCharger collects renewal payments against stored Stripe payment methods.
type StripeCharger struct {
	client StripePaymentClient
}

// NewStripeCharger builds the Stripe charger.
func NewStripeCharger(client StripePaymentClient) (*StripeCharger, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe payment client required")
	}
	return &StripeCharger{client: client}, nil
}

func (c *StripeCharger) Name() enums.PaymentGateway {
	return enums.PaymentGatewayStripe
}

func (c *StripeCharger) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	amount := amountCents(req.Order.Total)
	if amount <= 0 {
		return nil, &DeclineError{Reason: "nothing to collect"}
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(strings.ToLower(string(req.Order.Currency))),
		Customer:      stripe.String(req.Method.CustomerRef),
		PaymentMethod: stripe.String(req.Method.GatewayRef),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}

	intent, err := c.client.CreatePaymentIntent(ctx, params)
	if err != nil {
		if reason, declined := stripeDeclineReason(err); declined {
			return nil, &DeclineError{Reason: reason, Err: err}
		}
		return nil, fmt.Errorf("stripe charge: %w", err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return &ChargeResult{GatewayRef: intent.ID}, nil
	case stripe.PaymentIntentStatusProcessing:
		// Settlement is asynchronous; the webhook resolves the outcome.
		return &ChargeResult{GatewayRef: intent.ID}, nil
	default:
		return nil, &DeclineError{Reason: fmt.Sprintf("payment intent %s", intent.Status)}
	}
}

func stripeDeclineReason(err error) (string, bool) {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return "", false
	}
	if stripeErr.Type == stripe.ErrorTypeCard || stripeErr.DeclineCode != "" {
		reason := string(stripeErr.DeclineCode)
		if reason == "" {
			reason = string(stripeErr.Code)
		}
		return reason, true
	}
	return "", false
}
