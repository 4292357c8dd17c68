package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/logger"
)

const defaultRetryBatchSize = 100

// RetryDueJobParams configure the due-retry sweep.
type RetryDueJobParams struct {
	Logger    *logger.Logger
	DueReader dueOrderReader
	Retry     retryExecutor
	BatchSize int
	Now       func() time.Time
}

type dueOrderReader interface {
	FindDueOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type retryExecutor interface {
	ExecuteDue(ctx context.Context, orderID uuid.UUID) error
}

// NewRetryDueJob builds the cron job that executes armed retries whose
// scheduled time has passed.
func NewRetryDueJob(params RetryDueJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DueReader == nil {
		return nil, fmt.Errorf("due orders reader required")
	}
	if params.Retry == nil {
		return nil, fmt.Errorf("retry service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRetryBatchSize
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &retryDueJob{
		logg:      params.Logger,
		dueReader: params.DueReader,
		retry:     params.Retry,
		batch:     batch,
		now:       now,
	}, nil
}

type retryDueJob struct {
	logg      *logger.Logger
	dueReader dueOrderReader
	retry     retryExecutor
	batch     int
	now       func() time.Time
}

func (j *retryDueJob) Name() string { return "retry-due" }

func (j *retryDueJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	due, err := j.dueReader.FindDueOrders(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query due orders: %w", err)
	}

	var errs error
	executed := 0
	for _, order := range due {
		// One order failing must not starve the rest of the batch.
		if runErr := j.retry.ExecuteDue(ctx, order.ID); runErr != nil {
			orderCtx := j.logg.WithOrderID(ctx, order.ID.String())
			j.logg.Error(orderCtx, "due retry failed", runErr)
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, runErr))
			continue
		}
		executed++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":      len(due),
		"executed": executed,
	})
	j.logg.Info(logCtx, "due retry sweep complete")
	return errs
}
