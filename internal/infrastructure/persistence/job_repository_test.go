package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/infrastructure/persistence/models"
)

func TestGormJobRepository_ClaimDue(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewGormJobRepository(db)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	integrationID := uuid.New()

	pending := integration.NewReconcileJob(integration.JobKindOrder, integrationID, "1001", []byte(`{}`), now.Add(-3*time.Minute))
	dueRetry := integration.NewReconcileJob(integration.JobKindRefund, integrationID, "1002", []byte(`{}`), now.Add(-2*time.Minute))
	dueRetry.MarkFailed("timeout", now.Add(-2*time.Minute))
	laterRetry := integration.NewReconcileJob(integration.JobKindRefund, integrationID, "1003", []byte(`{}`), now.Add(-time.Minute))
	laterRetry.MarkFailed("timeout", now.Add(-time.Second))
	laterRetry.MarkFailed("timeout", now.Add(-time.Second))
	done := integration.NewReconcileJob(integration.JobKindOrder, integrationID, "1004", []byte(`{}`), now.Add(-4*time.Minute))
	done.MarkSucceeded(now.Add(-time.Minute))

	require.NoError(t, repo.Save(ctx, pending, dueRetry, laterRetry, done))

	claimed, err := repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, pending.ID, claimed[0].ID)
	assert.Equal(t, dueRetry.ID, claimed[1].ID)
	for _, j := range claimed {
		assert.Equal(t, integration.JobStatusProcessing, j.Status)
	}

	again, err := repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	stored, err := repo.FindByID(ctx, dueRetry.ID)
	require.NoError(t, err)
	assert.Equal(t, integration.JobStatusProcessing, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, "timeout", stored.LastError)
}

func TestGormJobRepository_Maintenance(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewGormJobRepository(db)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	integrationID := uuid.New()

	stuck := integration.NewReconcileJob(integration.JobKindOrder, integrationID, "A", nil, now.Add(-time.Hour))
	dead := integration.NewReconcileJob(integration.JobKindOrder, integrationID, "B", nil, now.Add(-time.Hour))
	dead.MarkDead("unknown channel", now.Add(-time.Hour))
	oldDone := integration.NewReconcileJob(integration.JobKindProduct, integrationID, "C", nil, now.Add(-48*time.Hour))
	oldDone.MarkSkipped("no_refund_lines", now.Add(-48*time.Hour))
	freshDone := integration.NewReconcileJob(integration.JobKindProduct, integrationID, "D", nil, now.Add(-time.Hour))
	freshDone.MarkSucceeded(now.Add(-time.Minute))
	require.NoError(t, repo.Save(ctx, stuck, dead, oldDone, freshDone))

	require.NoError(t, db.Model(&models.ReconcileJobModel{}).
		Where("id = ?", stuck.ID).
		UpdateColumns(map[string]interface{}{
			"status":     integration.JobStatusProcessing,
			"updated_at": now.Add(-time.Hour),
		}).Error)

	t.Run("release stale claims", func(t *testing.T) {
		released, err := repo.ReleaseStale(ctx, now.Add(-15*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), released)

		job, err := repo.FindByID(ctx, stuck.ID)
		require.NoError(t, err)
		assert.Equal(t, integration.JobStatusPending, job.Status)
	})

	t.Run("dead letter listing", func(t *testing.T) {
		jobs, total, err := repo.FindDead(ctx, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, jobs, 1)
		assert.Equal(t, dead.ID, jobs[0].ID)
	})

	t.Run("count by status", func(t *testing.T) {
		counts, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[integration.JobStatusPending])
		assert.Equal(t, int64(1), counts[integration.JobStatusDead])
		assert.Equal(t, int64(1), counts[integration.JobStatusSkipped])
		assert.Equal(t, int64(1), counts[integration.JobStatusSucceeded])
	})

	t.Run("cleanup removes finished jobs past retention", func(t *testing.T) {
		deleted, err := repo.DeleteFinishedBefore(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = repo.FindByID(ctx, oldDone.ID)
		assert.ErrorIs(t, err, integration.ErrJobNotFound)
		_, err = repo.FindByID(ctx, freshDone.ID)
		assert.NoError(t, err)
	})
}

func TestGormSyncBatchRepository_LatestCompleted(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewGormSyncBatchRepository(db)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	integrationID := uuid.New()

	_, err := repo.LatestCompleted(ctx, integrationID, integration.SyncKindOrders)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	first := integration.NewSyncBatch(integrationID, integration.SyncKindOrders, nil, now.Add(-2*time.Hour))
	first.RecordPage(3)
	first.Complete(now.Add(-2 * time.Hour))
	second := integration.NewSyncBatch(integrationID, integration.SyncKindOrders, nil, now.Add(-time.Hour))
	second.Complete(now.Add(-time.Hour))
	failed := integration.NewSyncBatch(integrationID, integration.SyncKindOrders, nil, now)
	failed.Fail("rate limited", now)
	other := integration.NewSyncBatch(integrationID, integration.SyncKindReturns, nil, now)
	other.Complete(now)
	for _, b := range []*integration.SyncBatch{first, second, failed, other} {
		require.NoError(t, repo.Save(ctx, b))
	}

	latest, err := repo.LatestCompleted(ctx, integrationID, integration.SyncKindOrders)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	stored, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Pages)
	assert.Equal(t, 3, stored.ItemsEnqueued)
}
