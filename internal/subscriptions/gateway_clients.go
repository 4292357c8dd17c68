package subscriptions

import (
	"context"

	sq "github.com/square/square-go-sdk"
	"github.com/stripe/stripe-go/v84"
	stripesub "github.com/stripe/stripe-go/v84/subscription"

	pkgstripe "github.com/angelmondragon/renewals-backend/pkg/stripe"
)

// StripeSubscriptionClient reads subscription state from Stripe.
type StripeSubscriptionClient interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

type stripeSubscriptionWrapper struct{}

// NewStripeSubscriptionClient wraps the configured Stripe client so callers
// can be tested against the interface.
func NewStripeSubscriptionClient(api *pkgstripe.Client) StripeSubscriptionClient {
	if api == nil {
		return nil
	}
	return &stripeSubscriptionWrapper{}
}

func (w *stripeSubscriptionWrapper) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return stripesub.Get(id, params)
}

// SquareSubscriptionClient reads subscription state from Square. The pkg
// square client satisfies it directly.
type SquareSubscriptionClient interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*sq.Subscription, error)
}

// SquareStatusString extracts the raw status of a Square subscription.
func SquareStatusString(sub *sq.Subscription) string {
	if sub == nil {
		return ""
	}
	status := sub.GetStatus()
	if status == nil {
		return ""
	}
	return string(*status)
}
