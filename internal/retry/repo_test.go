package retry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
)

func setupRetryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS retry_rules (
  id TEXT PRIMARY KEY,
  order_id TEXT,
  position INTEGER NOT NULL,
  interval_seconds INTEGER NOT NULL,
  order_status TEXT,
  sub_status TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS retry_attempts (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  scheduled_at DATETIME NOT NULL,
  rule_id TEXT,
  rule_interval_seconds INTEGER NOT NULL,
  rule_order_status TEXT,
  rule_sub_status TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error)
	}

	t.Cleanup(func() {
		for _, table := range []string{"retry_attempts", "retry_rules"} {
			db.Exec("DELETE FROM " + table)
		}
	})
	return db
}

func seedRule(t *testing.T, db *gorm.DB, orderID *uuid.UUID, position int, interval int64) *models.RetryRule {
	t.Helper()
	rule := &models.RetryRule{
		ID:              uuid.New(),
		OrderID:         orderID,
		Position:        position,
		IntervalSeconds: interval,
	}
	require.NoError(t, db.Create(rule).Error)
	return rule
}

func seedAttempt(t *testing.T, db *gorm.DB, orderID uuid.UUID, status enums.RetryStatus, createdAt time.Time) *models.RetryAttempt {
	t.Helper()
	attempt := &models.RetryAttempt{
		ID:                  uuid.New(),
		OrderID:             orderID,
		Status:              status,
		ScheduledAt:         createdAt.Add(time.Hour),
		RuleIntervalSeconds: 3600,
		CreatedAt:           createdAt,
	}
	require.NoError(t, db.Create(attempt).Error)
	return attempt
}

func TestRulesRepositoryScopedLists(t *testing.T) {
	db := setupRetryTestDB(t)
	repo := NewRulesRepository(db)
	ctx := context.Background()

	orderID := uuid.New()
	seedRule(t, db, nil, 1, 200)
	seedRule(t, db, nil, 0, 100)
	seedRule(t, db, &orderID, 0, 999)

	defaults, err := repo.ListDefault(ctx)
	require.NoError(t, err)
	require.Len(t, defaults, 2)
	assert.Equal(t, 0, defaults[0].Position)
	assert.Equal(t, 1, defaults[1].Position)

	override, err := repo.ListForOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, override, 1)
	assert.EqualValues(t, 999, override[0].IntervalSeconds)

	none, err := repo.ListForOrder(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRulesRepositoryCRUD(t *testing.T) {
	db := setupRetryTestDB(t)
	repo := NewRulesRepository(db)
	ctx := context.Background()

	onHold := enums.SubscriptionStatusOnHold
	created, err := repo.CreateRule(ctx, &models.RetryRule{
		ID:              uuid.New(),
		Position:        0,
		IntervalSeconds: 43200,
		SubStatus:       &onHold,
	})
	require.NoError(t, err)

	found, err := repo.FindRule(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, found.SubStatus)
	assert.Equal(t, enums.SubscriptionStatusOnHold, *found.SubStatus)

	require.NoError(t, repo.UpdateRule(ctx, created.ID, map[string]any{"interval_seconds": 86400}))
	found, err = repo.FindRule(ctx, created.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 86400, found.IntervalSeconds)

	require.NoError(t, repo.DeleteRule(ctx, created.ID))
	_, err = repo.FindRule(ctx, created.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAttemptsRepositoryOpenAndCount(t *testing.T) {
	db := setupRetryTestDB(t)
	repo := NewAttemptsRepository(db)
	ctx := context.Background()

	orderID := uuid.New()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seedAttempt(t, db, orderID, enums.RetryStatusFailed, base)
	seedAttempt(t, db, orderID, enums.RetryStatusCancelled, base.Add(time.Hour))
	open := seedAttempt(t, db, orderID, enums.RetryStatusPending, base.Add(2*time.Hour))
	seedAttempt(t, db, uuid.New(), enums.RetryStatusPending, base)

	found, err := repo.FindOpenForOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, open.ID, found.ID)

	// Cancelled attempts do not count toward the retry position.
	count, err := repo.CountNonCancelled(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, repo.UpdateAttemptStatus(ctx, open.ID, enums.RetryStatusCancelled))
	_, err = repo.FindOpenForOrder(ctx, orderID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAttemptsRepositoryListForOrder(t *testing.T) {
	db := setupRetryTestDB(t)
	repo := NewAttemptsRepository(db)
	ctx := context.Background()

	orderID := uuid.New()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		seedAttempt(t, db, orderID, enums.RetryStatusFailed, base.Add(time.Duration(i)*time.Hour))
	}

	rows, err := repo.ListForOrder(ctx, orderID, 3, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].CreatedAt.After(rows[1].CreatedAt))
}
