package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/renewals-backend/internal/subscriptions"
	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
	"github.com/angelmondragon/renewals-backend/pkg/logger"
)

const (
	defaultReconcileLimit    = 250
	defaultReconcileLookback = 24 * time.Hour
)

// SubscriptionReconcileJobParams configure the gateway sync cron job.
type SubscriptionReconcileJobParams struct {
	Logger        *logger.Logger
	Subscriptions reconcileSubscriptionLister
	MethodReader  paymentMethodReader
	Stripe        subscriptions.StripeSubscriptionClient
	Square        subscriptions.SquareSubscriptionClient
	StatusSink    subscriptionStatusSink
	Limit         int
	Lookback      time.Duration
	Now           func() time.Time
}

type reconcileSubscriptionLister interface {
	ListForReconciliation(ctx context.Context, limit int, cutoff time.Time) ([]models.Subscription, error)
}

type paymentMethodReader interface {
	FindPaymentMethod(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error)
}

// subscriptionStatusSink applies a gateway-observed status change, cancelling
// any armed retries the change invalidates.
type subscriptionStatusSink interface {
	HandleSubscriptionStatusChange(ctx context.Context, subscriptionID uuid.UUID, status enums.SubscriptionStatus) error
}

// NewSubscriptionReconcileJob builds the cron job that re-syncs subscription
// statuses from the payment gateways. Webhooks cover the common path; the
// sweep catches deliveries that were lost.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if params.MethodReader == nil {
		return nil, fmt.Errorf("payment method reader required")
	}
	if params.StatusSink == nil {
		return nil, fmt.Errorf("status sink required")
	}
	if params.Stripe == nil && params.Square == nil {
		return nil, fmt.Errorf("at least one gateway client required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &subscriptionReconcileJob{
		logg:     params.Logger,
		subs:     params.Subscriptions,
		methods:  params.MethodReader,
		stripe:   params.Stripe,
		square:   params.Square,
		sink:     params.StatusSink,
		limit:    limit,
		lookback: lookback,
		now:      now,
	}, nil
}

type subscriptionReconcileJob struct {
	logg     *logger.Logger
	subs     reconcileSubscriptionLister
	methods  paymentMethodReader
	stripe   subscriptions.StripeSubscriptionClient
	square   subscriptions.SquareSubscriptionClient
	sink     subscriptionStatusSink
	limit    int
	lookback time.Duration
	now      func() time.Time
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.lookback)
	candidates, err := j.subs.ListForReconciliation(ctx, j.limit, cutoff)
	if err != nil {
		return fmt.Errorf("list subscriptions for reconciliation: %w", err)
	}

	var errs error
	synced := 0
	for i := range candidates {
		if err := j.reconcileSubscription(ctx, &candidates[i]); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		synced++
	}
	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"synced":     synced,
	})
	j.logg.Info(reportCtx, "subscription reconcile loop complete")
	return errs
}

func (j *subscriptionReconcileJob) reconcileSubscription(ctx context.Context, sub *models.Subscription) error {
	logCtx := j.logg.WithSubscriptionID(ctx, sub.ID.String())
	if sub.GatewaySubRef == nil || strings.TrimSpace(*sub.GatewaySubRef) == "" {
		j.logg.Info(logCtx, "subscription missing gateway ref; skipping")
		return nil
	}
	if sub.PaymentMethodID == nil {
		j.logg.Info(logCtx, "subscription has no payment method; skipping")
		return nil
	}
	method, err := j.methods.FindPaymentMethod(logCtx, *sub.PaymentMethodID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			j.logg.Info(logCtx, "payment method removed; skipping")
			return nil
		}
		return fmt.Errorf("load payment method: %w", err)
	}

	status, ok, err := j.fetchGatewayStatus(logCtx, method.Gateway, *sub.GatewaySubRef)
	if err != nil {
		return fmt.Errorf("fetch %s subscription %s: %w", method.Gateway, *sub.GatewaySubRef, err)
	}
	if !ok || status == sub.Status {
		return nil
	}

	changeCtx := j.logg.WithFields(logCtx, map[string]any{
		"from": sub.Status,
		"to":   status,
	})
	j.logg.Info(changeCtx, "subscription drifted from gateway; syncing")
	if err := j.sink.HandleSubscriptionStatusChange(logCtx, sub.ID, status); err != nil {
		return fmt.Errorf("apply status change for %s: %w", sub.ID, err)
	}
	return nil
}

func (j *subscriptionReconcileJob) fetchGatewayStatus(ctx context.Context, gw enums.PaymentGateway, ref string) (enums.SubscriptionStatus, bool, error) {
	switch gw {
	case enums.PaymentGatewayStripe:
		if j.stripe == nil {
			return "", false, nil
		}
		remote, err := j.stripe.GetSubscription(ctx, ref)
		if err != nil {
			return "", false, err
		}
		if remote == nil {
			return "", false, nil
		}
		status, ok := subscriptions.MapStripeStatus(string(remote.Status))
		return status, ok, nil
	case enums.PaymentGatewaySquare:
		if j.square == nil {
			return "", false, nil
		}
		remote, err := j.square.GetSubscription(ctx, ref)
		if err != nil {
			return "", false, err
		}
		status, ok := subscriptions.MapSquareStatus(subscriptions.SquareStatusString(remote))
		return status, ok, nil
	}
	return "", false, nil
}
