package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/renewals-backend/internal/gateway"
	"github.com/angelmondragon/renewals-backend/internal/orders"
	"github.com/angelmondragon/renewals-backend/internal/subscriptions"
	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/renewals-backend/pkg/errors"
	"github.com/angelmondragon/renewals-backend/pkg/logger"
	"github.com/angelmondragon/renewals-backend/pkg/metrics"
	"github.com/angelmondragon/renewals-backend/pkg/outbox"
	"github.com/angelmondragon/renewals-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/renewals-backend/pkg/pagination"
)

// Cancellation reasons recorded on retry_cancelled events and order notes.
const (
	CancelReasonManual           = "manual"
	CancelReasonPaidExternally   = "paid_externally"
	CancelReasonOrderSettled     = "order_no_longer_needs_payment"
	CancelReasonOrderStatusMoved = "order_status_changed"
	CancelReasonPaymentMethod    = "payment_method_not_retryable"
	CancelReasonSubscriptionHalt = "subscription_halts_retries"
	CancelReasonGatewayMissing   = "gateway_unavailable"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type chargerRegistry interface {
	Resolve(gw enums.PaymentGateway) (gateway.Charger, error)
}

// ProcessFailureInput reports one failed renewal charge to the retry engine.
type ProcessFailureInput struct {
	OrderID      uuid.UUID
	GatewayError string
}

// Service is the retry decision engine. It owns the attempt lifecycle:
// scheduling retries after failed renewal payments, executing due retries,
// and cancelling armed retries when the order no longer needs one.
type Service interface {
	ProcessRenewalFailure(ctx context.Context, input ProcessFailureInput) error
	ExecuteDue(ctx context.Context, orderID uuid.UUID) error
	CancelForOrder(ctx context.Context, orderID uuid.UUID, reason string) error
	HandleExternalPayment(ctx context.Context, orderID uuid.UUID, gatewayRef string) error
	HandleSubscriptionStatusChange(ctx context.Context, subscriptionID uuid.UUID, status enums.SubscriptionStatus) error
	ListAttempts(ctx context.Context, orderID uuid.UUID, params pagination.Params) ([]models.RetryAttempt, string, error)
}

// ServiceParams groups dependencies for the retry service.
type ServiceParams struct {
	Logger            *logger.Logger
	TransactionRunner txRunner
	Orders            orders.Repository
	Subscriptions     subscriptions.Repository
	Rules             RulesRepository
	Attempts          AttemptsRepository
	Gateways          chargerRegistry
	Outbox            outboxPublisher
	Metrics           *metrics.RetryMetrics
	Hooks             *Hooks
	Now               func() time.Time
}

type service struct {
	logg     *logger.Logger
	tx       txRunner
	orders   orders.Repository
	subs     subscriptions.Repository
	rules    RulesRepository
	attempts AttemptsRepository
	gateways chargerRegistry
	outbox   outboxPublisher
	metrics  *metrics.RetryMetrics
	hooks    *Hooks
	now      func() time.Time
}

// NewService builds a retry service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repo required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions repo required")
	}
	if params.Rules == nil {
		return nil, fmt.Errorf("rules repo required")
	}
	if params.Attempts == nil {
		return nil, fmt.Errorf("attempts repo required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	hooks := params.Hooks
	if hooks == nil {
		hooks = NewHooks()
	}
	return &service{
		logg:     params.Logger,
		tx:       params.TransactionRunner,
		orders:   params.Orders,
		subs:     params.Subscriptions,
		rules:    params.Rules,
		attempts: params.Attempts,
		gateways: params.Gateways,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		hooks:    hooks,
		now:      now,
	}, nil
}

// effects collects lifecycle notifications during a transaction so hooks and
// metrics only fire after the transaction commits.
type effects struct {
	scheduled []attemptEffect
	completed []attemptEffect
	failed    []attemptEffect
	cancelled []cancelEffect
}

type attemptEffect struct {
	order   models.Order
	attempt models.RetryAttempt
}

type cancelEffect struct {
	order   models.Order
	attempt models.RetryAttempt
	reason  string
}

func (s *service) flush(ctx context.Context, fx *effects) {
	for _, e := range fx.completed {
		s.metrics.IncAttempt("complete")
		s.hooks.completed(ctx, e.order, e.attempt)
	}
	for _, e := range fx.failed {
		s.hooks.failed(ctx, e.order, e.attempt)
	}
	for _, e := range fx.cancelled {
		s.metrics.IncCancelled(e.reason)
		s.hooks.cancelled(ctx, e.order, e.attempt, e.reason)
	}
	for _, e := range fx.scheduled {
		s.metrics.IncScheduled()
		s.hooks.scheduled(ctx, e.order, e.attempt)
	}
}

func (s *service) ProcessRenewalFailure(ctx context.Context, input ProcessFailureInput) error {
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())
	fx := &effects{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if !order.NeedsPayment() {
			s.logg.Info(ctx, "renewal failure reported for settled order; nothing to schedule")
			return nil
		}
		if _, err := s.attempts.WithTx(tx).FindOpenForOrder(ctx, order.ID); err == nil {
			s.logg.Info(ctx, "retry already armed; ignoring duplicate failure report")
			return nil
		} else if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find open retry attempt")
		}

		failedAt := s.now().UTC()
		event := outbox.DomainEvent{
			EventType:     enums.EventRenewalPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    failedAt,
			Data: payloads.RenewalPaymentFailedEvent{
				OrderID:      order.ID,
				Total:        order.Total,
				Currency:     order.Currency,
				GatewayError: input.GatewayError,
				FailedAt:     failedAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit renewal payment failed")
		}
		note := "renewal payment failed"
		if input.GatewayError != "" {
			note = fmt.Sprintf("renewal payment failed: %s", input.GatewayError)
		}
		if err := repo.AddNote(ctx, &models.OrderNote{OrderID: order.ID, Note: note}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add order note")
		}
		return s.scheduleNext(ctx, tx, order, fx)
	})
	if err != nil {
		return err
	}
	s.flush(ctx, fx)
	return nil
}

// scheduleNext arms the order's next retry attempt under the rule matching
// its current retry count. It silently declines to schedule when the order is
// ineligible or the rule table is exhausted, leaving a note either way.
func (s *service) scheduleNext(ctx context.Context, tx *gorm.DB, order *models.Order, fx *effects) error {
	repo := s.orders.WithTx(tx)

	skip := func(reason string) error {
		s.logg.Info(ctx, "retry not scheduled: "+reason)
		note := &models.OrderNote{OrderID: order.ID, Note: "retry not scheduled: " + reason}
		if err := repo.AddNote(ctx, note); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add order note")
		}
		return nil
	}

	if order.PaymentMethodID == nil {
		return skip("no payment method on file")
	}
	method, err := repo.FindPaymentMethod(ctx, *order.PaymentMethodID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return skip("payment method missing")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment method")
	}
	if !method.SupportsRetry() {
		return skip("payment method does not support retries")
	}

	subs, err := repo.FindSubscriptionsForOrder(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order subscriptions")
	}
	if len(subs) == 0 {
		return skip("order has no subscriptions")
	}
	for _, sub := range subs {
		if !subscriptionRetryable(sub.Status) {
			return skip(fmt.Sprintf("subscription %s is %s", sub.ID, sub.Status))
		}
	}

	attempts := s.attempts.WithTx(tx)
	count, err := attempts.CountNonCancelled(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count retry attempts")
	}
	rs, err := LoadRuleSet(ctx, s.rules.WithTx(tx), order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load retry rules")
	}
	rule, ok := rs.RuleFor(count)
	if !ok {
		return skip(fmt.Sprintf("retry rules exhausted after %d attempts", count))
	}

	scheduledAt := s.now().UTC().Add(Interval(rule))
	attempt := &models.RetryAttempt{
		OrderID:             order.ID,
		Status:              enums.RetryStatusPending,
		ScheduledAt:         scheduledAt,
		RuleID:              &rule.ID,
		RuleIntervalSeconds: rule.IntervalSeconds,
		RuleOrderStatus:     rule.OrderStatus,
		RuleSubStatus:       rule.SubStatus,
	}
	s.hooks.scheduling(ctx, *order, *attempt)
	if _, err := attempts.CreateAttempt(ctx, attempt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create retry attempt")
	}

	if rule.OrderStatus != nil && *rule.OrderStatus != order.Status {
		if err := s.changeOrderStatus(ctx, tx, order, *rule.OrderStatus); err != nil {
			return err
		}
	}
	if rule.SubStatus != nil {
		for i := range subs {
			if subs[i].Status == *rule.SubStatus {
				continue
			}
			if err := s.changeSubscriptionStatus(ctx, tx, &subs[i], *rule.SubStatus); err != nil {
				return err
			}
		}
	}

	// A zero-interval rule nudges statuses only: the attempt is recorded but
	// no timed execution is armed.
	if rule.IntervalSeconds > 0 {
		if err := repo.SetRetryDue(ctx, order.ID, &scheduledAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "arm retry due")
		}
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRetryScheduled,
		AggregateType: enums.AggregateRetryAttempt,
		AggregateID:   attempt.ID,
		Version:       1,
		Data: payloads.RetryScheduledEvent{
			OrderID:     order.ID,
			AttemptID:   attempt.ID,
			RetryCount:  count,
			ScheduledAt: scheduledAt,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit retry scheduled")
	}
	noteText := fmt.Sprintf("retry %d scheduled for %s", count+1, scheduledAt.Format(time.RFC3339))
	if rule.IntervalSeconds == 0 {
		noteText = fmt.Sprintf("retry %d applied status changes only, no charge scheduled", count+1)
	}
	note := &models.OrderNote{
		OrderID: order.ID,
		Note:    noteText,
	}
	if err := repo.AddNote(ctx, note); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add order note")
	}
	fx.scheduled = append(fx.scheduled, attemptEffect{order: *order, attempt: *attempt})
	return nil
}

func (s *service) ExecuteDue(ctx context.Context, orderID uuid.UUID) error {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	fx := &effects{}
	var run struct {
		ok      bool
		order   models.Order
		method  models.PaymentMethod
		attempt models.RetryAttempt
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		attempts := s.attempts.WithTx(tx)

		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		attempt, err := attempts.FindOpenForOrder(ctx, order.ID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				if order.RetryDueAt != nil {
					if derr := repo.SetRetryDue(ctx, order.ID, nil); derr != nil {
						return pkgerrors.Wrap(pkgerrors.CodeInternal, derr, "disarm retry due")
					}
					s.logg.Info(ctx, "retry due armed with no open attempt; disarmed")
				}
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find open retry attempt")
		}
		if attempt.Status != enums.RetryStatusPending {
			s.logg.Warn(ctx, "open retry attempt already processing; skipping")
			return nil
		}
		if s.now().Before(attempt.ScheduledAt) {
			return nil
		}

		ctx = s.logg.WithRetryID(ctx, attempt.ID.String())
		if attempt.RuleIntervalSeconds == 0 {
			// Zero-interval attempts nudge statuses at scheduling time and
			// never execute a charge.
			if order.RetryDueAt != nil {
				if derr := repo.SetRetryDue(ctx, order.ID, nil); derr != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, derr, "disarm retry due")
				}
			}
			return nil
		}

		// The attempt stays pending through validation, so a cancellation
		// here is pending to cancelled inside the same locked transaction.
		// The processing transition happens only once the charge will
		// actually be attempted.
		if !order.NeedsPayment() {
			return s.cancelLocked(ctx, tx, order, attempt, CancelReasonOrderSettled, fx)
		}
		// The rule frozen onto the attempt pinned the order status it
		// expected to retry under. A mismatch means an operator moved the
		// order since scheduling and the retry must not fire.
		if attempt.RuleOrderStatus != nil && order.Status != *attempt.RuleOrderStatus {
			return s.cancelLocked(ctx, tx, order, attempt, CancelReasonOrderStatusMoved, fx)
		}
		if order.PaymentMethodID == nil {
			return s.cancelLocked(ctx, tx, order, attempt, CancelReasonPaymentMethod, fx)
		}
		method, err := repo.FindPaymentMethod(ctx, *order.PaymentMethodID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return s.cancelLocked(ctx, tx, order, attempt, CancelReasonPaymentMethod, fx)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment method")
		}
		if !method.SupportsRetry() {
			return s.cancelLocked(ctx, tx, order, attempt, CancelReasonPaymentMethod, fx)
		}
		subs, err := repo.FindSubscriptionsForOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order subscriptions")
		}
		for _, sub := range subs {
			if !subscriptionRetryable(sub.Status) {
				return s.cancelLocked(ctx, tx, order, attempt, CancelReasonSubscriptionHalt, fx)
			}
			// The frozen rule also pinned the subscription status it
			// expected to retry under. A mismatch means the subscription
			// moved on since scheduling, usually because the customer
			// settled up, and the retry must not fire.
			if attempt.RuleSubStatus != nil && sub.Status != *attempt.RuleSubStatus {
				return s.cancelLocked(ctx, tx, order, attempt, CancelReasonSubscriptionHalt, fx)
			}
		}
		if _, err := s.gateways.Resolve(method.Gateway); err != nil {
			return s.cancelLocked(ctx, tx, order, attempt, CancelReasonGatewayMissing, fx)
		}

		s.hooks.executing(ctx, *order, *attempt)
		if err := s.transitionAttempt(ctx, attempts, attempt, enums.RetryStatusProcessing); err != nil {
			return err
		}
		// Every subscription on the order is held while the charge is in
		// flight; settlement releases the hold.
		for i := range subs {
			if subs[i].Status == enums.SubscriptionStatusOnHold {
				continue
			}
			if err := s.changeSubscriptionStatus(ctx, tx, &subs[i], enums.SubscriptionStatusOnHold); err != nil {
				return err
			}
		}
		if err := repo.SetRetryDue(ctx, order.ID, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "disarm retry due")
		}
		run.ok = true
		run.order = *order
		run.method = *method
		run.attempt = *attempt
		return nil
	})
	if err != nil {
		return err
	}
	s.flush(ctx, fx)
	if !run.ok {
		return nil
	}
	return s.charge(ctx, run.order, run.method, run.attempt)
}

// charge collects the payment outside any transaction, then settles the
// outcome in a fresh one.
func (s *service) charge(ctx context.Context, order models.Order, method models.PaymentMethod, attempt models.RetryAttempt) error {
	ctx = s.logg.WithRetryID(ctx, attempt.ID.String())
	charger, err := s.gateways.Resolve(method.Gateway)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve gateway")
	}

	started := s.now()
	result, chargeErr := charger.Charge(ctx, gateway.ChargeRequest{
		Order:          order,
		Method:         method,
		IdempotencyKey: attempt.ID.String(),
	})
	s.metrics.ObserveGatewayDuration(string(method.Gateway), s.now().Sub(started))

	if chargeErr == nil {
		return s.settleSuccess(ctx, order, attempt, result.GatewayRef, charger.Name())
	}
	return s.settleFailure(ctx, order, attempt, chargeErr)
}

func (s *service) settleSuccess(ctx context.Context, order models.Order, attempt models.RetryAttempt, gatewayRef string, gw enums.PaymentGateway) error {
	fx := &effects{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		attempts := s.attempts.WithTx(tx)

		if err := s.transitionAttempt(ctx, attempts, &attempt, enums.RetryStatusComplete); err != nil {
			return err
		}
		paidAt := s.now().UTC()
		updates := map[string]any{
			"status":  enums.OrderStatusCompleted,
			"paid_at": paidAt,
		}
		if gatewayRef != "" {
			updates["gateway_ref"] = gatewayRef
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
		}
		if order.Status != enums.OrderStatusCompleted {
			if err := s.emitOrderStatusChanged(ctx, tx, order.ID, order.Status, enums.OrderStatusCompleted); err != nil {
				return err
			}
		}

		subs, err := repo.FindSubscriptionsForOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order subscriptions")
		}
		for i := range subs {
			if subs[i].Status != enums.SubscriptionStatusOnHold {
				continue
			}
			if err := s.changeSubscriptionStatus(ctx, tx, &subs[i], enums.SubscriptionStatusActive); err != nil {
				return err
			}
		}

		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRetryCompleted,
			AggregateType: enums.AggregateRetryAttempt,
			AggregateID:   attempt.ID,
			Version:       1,
			Data: payloads.RetryCompletedEvent{
				OrderID:     order.ID,
				AttemptID:   attempt.ID,
				CompletedAt: paidAt,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit retry completed")
		}
		note := &models.OrderNote{
			OrderID: order.ID,
			Note:    fmt.Sprintf("retry payment collected via %s", gw),
		}
		if err := repo.AddNote(ctx, note); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add order note")
		}
		fx.completed = append(fx.completed, attemptEffect{order: order, attempt: attempt})
		return nil
	})
	if err != nil {
		return err
	}
	s.flush(ctx, fx)
	s.logg.Info(ctx, "retry payment collected")
	return nil
}

// settleFailure records the failed attempt and schedules the next retry. A
// decline and an infrastructure failure advance the pipeline the same way;
// an infrastructure failure is additionally surfaced to the caller.
func (s *service) settleFailure(ctx context.Context, order models.Order, attempt models.RetryAttempt, chargeErr error) error {
	decline := gateway.IsDecline(chargeErr)
	fx := &effects{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		attempts := s.attempts.WithTx(tx)

		if err := s.transitionAttempt(ctx, attempts, &attempt, enums.RetryStatusFailed); err != nil {
			return err
		}
		current, err := repo.FindOrderForUpdate(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if current.Status != enums.OrderStatusFailed {
			if err := s.changeOrderStatus(ctx, tx, current, enums.OrderStatusFailed); err != nil {
				return err
			}
		}

		count, err := attempts.CountNonCancelled(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count retry attempts")
		}
		failedAt := s.now().UTC()
		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRetryFailed,
			AggregateType: enums.AggregateRetryAttempt,
			AggregateID:   attempt.ID,
			Version:       1,
			Data: payloads.RetryFailedEvent{
				OrderID:    order.ID,
				AttemptID:  attempt.ID,
				RetryCount: count,
				Error:      chargeErr.Error(),
				FailedAt:   failedAt,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit retry failed")
		}
		note := &models.OrderNote{
			OrderID: order.ID,
			Note:    fmt.Sprintf("retry payment failed: %s", chargeErr.Error()),
		}
		if err := repo.AddNote(ctx, note); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add order note")
		}
		fx.failed = append(fx.failed, attemptEffect{order: *current, attempt: attempt})
		return s.scheduleNext(ctx, tx, current, fx)
	})
	if err != nil {
		return err
	}
	if decline {
		s.metrics.IncAttempt("declined")
	} else {
		s.metrics.IncAttempt("error")
	}
	s.flush(ctx, fx)
	if decline {
		s.logg.Info(ctx, "retry payment declined")
		return nil
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, chargeErr, "gateway charge failed")
}

func (s *service) CancelForOrder(ctx context.Context, orderID uuid.UUID, reason string) error {
	if reason == "" {
		reason = CancelReasonManual
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	fx := &effects{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		attempt, err := s.attempts.WithTx(tx).FindOpenForOrder(ctx, order.ID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				if order.RetryDueAt != nil {
					return repo.SetRetryDue(ctx, order.ID, nil)
				}
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find open retry attempt")
		}
		return s.cancelLocked(ctx, tx, order, attempt, reason, fx)
	})
	if err != nil {
		return err
	}
	s.flush(ctx, fx)
	return nil
}

func (s *service) HandleExternalPayment(ctx context.Context, orderID uuid.UUID, gatewayRef string) error {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	fx := &effects{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}

		attempt, err := s.attempts.WithTx(tx).FindOpenForOrder(ctx, order.ID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find open retry attempt")
		}
		if attempt != nil {
			if err := s.cancelLocked(ctx, tx, order, attempt, CancelReasonPaidExternally, fx); err != nil {
				return err
			}
		} else if order.RetryDueAt != nil {
			if err := repo.SetRetryDue(ctx, order.ID, nil); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "disarm retry due")
			}
		}

		if !order.NeedsPayment() {
			return nil
		}
		paidAt := s.now().UTC()
		updates := map[string]any{
			"status":  enums.OrderStatusCompleted,
			"paid_at": paidAt,
		}
		if gatewayRef != "" {
			updates["gateway_ref"] = gatewayRef
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
		}
		if err := s.emitOrderStatusChanged(ctx, tx, order.ID, order.Status, enums.OrderStatusCompleted); err != nil {
			return err
		}

		subs, err := repo.FindSubscriptionsForOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order subscriptions")
		}
		for i := range subs {
			if subs[i].Status != enums.SubscriptionStatusOnHold {
				continue
			}
			if err := s.changeSubscriptionStatus(ctx, tx, &subs[i], enums.SubscriptionStatusActive); err != nil {
				return err
			}
		}
		note := &models.OrderNote{OrderID: order.ID, Note: "payment received outside the retry pipeline"}
		if err := repo.AddNote(ctx, note); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add order note")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.flush(ctx, fx)
	return nil
}

func (s *service) HandleSubscriptionStatusChange(ctx context.Context, subscriptionID uuid.UUID, status enums.SubscriptionStatus) error {
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid subscription status")
	}
	ctx = s.logg.WithSubscriptionID(ctx, subscriptionID.String())
	fx := &effects{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		subs := s.subs.WithTx(tx)
		sub, err := subs.FindByID(ctx, subscriptionID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
		}
		if sub.Status == status {
			return nil
		}
		if err := s.changeSubscriptionStatus(ctx, tx, sub, status); err != nil {
			return err
		}
		if !status.HaltsRetries() {
			return nil
		}

		repo := s.orders.WithTx(tx)
		attempts := s.attempts.WithTx(tx)
		ordersForSub, err := repo.FindOrdersForSubscription(ctx, subscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription orders")
		}
		for i := range ordersForSub {
			order, err := repo.FindOrderForUpdate(ctx, ordersForSub[i].ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
			}
			attempt, err := attempts.FindOpenForOrder(ctx, order.ID)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					continue
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find open retry attempt")
			}
			if err := s.cancelLocked(ctx, tx, order, attempt, CancelReasonSubscriptionHalt, fx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.flush(ctx, fx)
	return nil
}

func (s *service) ListAttempts(ctx context.Context, orderID uuid.UUID, params pagination.Params) ([]models.RetryAttempt, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.attempts.ListForOrder(ctx, orderID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list retry attempts")
	}
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[limit-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

// subscriptionRetryable reports whether a subscription in this status may
// still have renewal retries scheduled or executed against it. Terminal and
// pending-cancel subscriptions never retry; HaltsRetries covers the
// complementary on-entry rule for armed retries.
func subscriptionRetryable(status enums.SubscriptionStatus) bool {
	switch status {
	case enums.SubscriptionStatusActive, enums.SubscriptionStatusOnHold:
		return true
	}
	return false
}

// cancelLocked withdraws the order's open attempt. The caller must hold the
// order row lock.
func (s *service) cancelLocked(ctx context.Context, tx *gorm.DB, order *models.Order, attempt *models.RetryAttempt, reason string, fx *effects) error {
	repo := s.orders.WithTx(tx)
	if err := s.transitionAttempt(ctx, s.attempts.WithTx(tx), attempt, enums.RetryStatusCancelled); err != nil {
		return err
	}
	if err := repo.SetRetryDue(ctx, order.ID, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "disarm retry due")
	}
	cancelledAt := s.now().UTC()
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRetryCancelled,
		AggregateType: enums.AggregateRetryAttempt,
		AggregateID:   attempt.ID,
		Version:       1,
		Data: payloads.RetryCancelledEvent{
			OrderID:     order.ID,
			AttemptID:   attempt.ID,
			Reason:      reason,
			CancelledAt: cancelledAt,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit retry cancelled")
	}
	note := &models.OrderNote{OrderID: order.ID, Note: "retry cancelled: " + reason}
	if err := repo.AddNote(ctx, note); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add order note")
	}
	fx.cancelled = append(fx.cancelled, cancelEffect{order: *order, attempt: *attempt, reason: reason})
	return nil
}

func (s *service) transitionAttempt(ctx context.Context, repo AttemptsRepository, attempt *models.RetryAttempt, next enums.RetryStatus) error {
	if !attempt.Status.CanTransitionTo(next) {
		msg := fmt.Sprintf("retry attempt cannot move from %s to %s", attempt.Status, next)
		return pkgerrors.New(pkgerrors.CodeStateConflict, msg)
	}
	if err := repo.UpdateAttemptStatus(ctx, attempt.ID, next); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update retry attempt status")
	}
	attempt.Status = next
	return nil
}

func (s *service) changeOrderStatus(ctx context.Context, tx *gorm.DB, order *models.Order, next enums.OrderStatus) error {
	repo := s.orders.WithTx(tx)
	from := order.Status
	if err := repo.UpdateOrderStatus(ctx, order.ID, next); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	order.Status = next
	return s.emitOrderStatusChanged(ctx, tx, order.ID, from, next)
}

func (s *service) emitOrderStatusChanged(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.OrderStatus) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Version:       1,
		Data: payloads.OrderStatusChangedEvent{
			OrderID: orderID,
			From:    from,
			To:      to,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order status changed")
	}
	return nil
}

func (s *service) changeSubscriptionStatus(ctx context.Context, tx *gorm.DB, sub *models.Subscription, next enums.SubscriptionStatus) error {
	from := sub.Status
	if err := s.subs.WithTx(tx).UpdateStatus(ctx, sub.ID, next); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update subscription status")
	}
	sub.Status = next
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionStatusChanged,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Version:       1,
		Data: payloads.SubscriptionStatusChangedEvent{
			SubscriptionID: sub.ID,
			From:           from,
			To:             next,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit subscription status changed")
	}
	return nil
}
