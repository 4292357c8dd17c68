package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/logger"
)

type fakeDueReader struct {
	orders []models.Order
	cutoff time.Time
	limit  int
}

func (f *fakeDueReader) FindDueOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.orders, nil
}

type fakeRetryExecutor struct {
	executed []uuid.UUID
	failOn   map[uuid.UUID]error
}

func (f *fakeRetryExecutor) ExecuteDue(ctx context.Context, orderID uuid.UUID) error {
	if err, ok := f.failOn[orderID]; ok {
		return err
	}
	f.executed = append(f.executed, orderID)
	return nil
}

func TestRetryDueJobExecutesBatch(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	reader := &fakeDueReader{orders: []models.Order{
		{ID: uuid.New()},
		{ID: uuid.New()},
	}}
	executor := &fakeRetryExecutor{}
	job, err := NewRetryDueJob(RetryDueJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		DueReader: reader,
		Retry:     executor,
		BatchSize: 50,
		Now:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reader.cutoff.Equal(now) {
		t.Fatalf("cutoff = %s, want %s", reader.cutoff, now)
	}
	if reader.limit != 50 {
		t.Fatalf("limit = %d", reader.limit)
	}
	if len(executor.executed) != 2 {
		t.Fatalf("executed %d orders", len(executor.executed))
	}
}

func TestRetryDueJobContinuesPastFailures(t *testing.T) {
	bad := uuid.New()
	good := uuid.New()
	reader := &fakeDueReader{orders: []models.Order{{ID: bad}, {ID: good}}}
	executor := &fakeRetryExecutor{failOn: map[uuid.UUID]error{bad: errors.New("gateway down")}}
	job, err := NewRetryDueJob(RetryDueJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		DueReader: reader,
		Retry:     executor,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	runErr := job.Run(context.Background())
	if runErr == nil {
		t.Fatal("expected the failure to be reported")
	}
	if len(executor.executed) != 1 || executor.executed[0] != good {
		t.Fatalf("remaining orders not executed: %v", executor.executed)
	}
}
