package bulksync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/infrastructure/persistence"
	"github.com/omnisync/backend/internal/infrastructure/persistence/models"
)

// pagedPuller serves fixed pages and optionally fails on one of them
type pagedPuller struct {
	pages  [][]string
	failAt int
	calls  []string
	since  []*time.Time
}

func (p *pagedPuller) Platform() integration.PlatformCode { return integration.PlatformTrendyol }

func (p *pagedPuller) Pull(_ context.Context, _ *integration.Integration, _ integration.SyncKind, since *time.Time, cursor string) (*integration.PullPage, error) {
	p.calls = append(p.calls, cursor)
	p.since = append(p.since, since)
	idx := len(p.calls) - 1
	if p.failAt > 0 && idx+1 == p.failAt {
		return nil, integration.ErrPlatformUnavailable
	}
	page := &integration.PullPage{}
	for _, id := range p.pages[idx] {
		page.Items = append(page.Items, integration.PullItem{
			ExternalID: id,
			Kind:       integration.JobKindOrder,
			Payload:    json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)),
		})
	}
	if idx+1 < len(p.pages) {
		page.HasMore = true
		page.NextCursor = fmt.Sprintf("page-%d", idx+2)
	}
	return page, nil
}

type syncFixture struct {
	db     *gorm.DB
	clock  *shared.FixedClock
	locker *LocalLocker
	integ  *integration.Integration
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	clock := shared.NewFixedClock(time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC))
	integ, err := integration.NewIntegration(integration.IntegrationTypeSalesChannel, integration.PlatformTrendyol, "TY", integration.Settings{integration.SettingSupplierID: "42"}, clock.Now())
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormIntegrationRepository(db).Save(context.Background(), integ))
	return &syncFixture{db: db, clock: clock, locker: NewLocalLocker(), integ: integ}
}

func (f *syncFixture) service(p *pagedPuller) *BulkSyncService {
	return NewBulkSyncService(Deps{
		Integrations: persistence.NewGormIntegrationRepository(f.db),
		Batches:      persistence.NewGormSyncBatchRepository(f.db),
		Jobs:         persistence.NewGormJobRepository(f.db),
		Pullers:      []integration.ChannelPuller{p},
		Locker:       f.locker,
		Clock:        f.clock,
		Logger:       zap.NewNop(),
	}, Config{Lookback: 24 * time.Hour})
}

func (f *syncFixture) jobs(t *testing.T) []models.ReconcileJobModel {
	t.Helper()
	var out []models.ReconcileJobModel
	require.NoError(t, f.db.Order("external_id").Find(&out).Error)
	return out
}

func TestBulkSyncService_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueues one job per item across pages", func(t *testing.T) {
		f := newSyncFixture(t)
		p := &pagedPuller{pages: [][]string{{"a", "b"}, {"c"}, {}}}
		batch, err := f.service(p).Run(ctx, f.integ.ID, integration.SyncKindOrders, nil)
		require.NoError(t, err)

		assert.Equal(t, integration.BatchStatusCompleted, batch.Status)
		assert.Equal(t, 3, batch.Pages)
		assert.Equal(t, 3, batch.ItemsEnqueued)
		assert.Equal(t, []string{"", "page-2", "page-3"}, p.calls)
		require.NotNil(t, p.since[0])
		assert.Equal(t, f.clock.Now().Add(-24*time.Hour), *p.since[0])

		jobs := f.jobs(t)
		require.Len(t, jobs, 3)
		for _, j := range jobs {
			require.NotNil(t, j.BatchID)
			assert.Equal(t, batch.ID, *j.BatchID)
			assert.Equal(t, integration.JobStatusPending, j.Status)
		}
	})

	t.Run("next run resumes from the last completed batch", func(t *testing.T) {
		f := newSyncFixture(t)
		svc := f.service(&pagedPuller{pages: [][]string{{"a"}}})
		first, err := svc.Run(ctx, f.integ.ID, integration.SyncKindOrders, nil)
		require.NoError(t, err)

		f.clock.Advance(time.Hour)
		p := &pagedPuller{pages: [][]string{{"b"}}}
		_, err = f.service(p).Run(ctx, f.integ.ID, integration.SyncKindOrders, nil)
		require.NoError(t, err)
		require.NotNil(t, p.since[0])
		assert.True(t, first.StartedAt.Equal(*p.since[0]))
	})

	t.Run("page failure fails the batch but keeps enqueued items", func(t *testing.T) {
		f := newSyncFixture(t)
		p := &pagedPuller{pages: [][]string{{"a", "b"}, {"c"}}, failAt: 2}
		batch, err := f.service(p).Run(ctx, f.integ.ID, integration.SyncKindOrders, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, integration.ErrPlatformUnavailable))
		require.NotNil(t, batch)
		assert.Equal(t, integration.BatchStatusFailed, batch.Status)

		stored, err := persistence.NewGormSyncBatchRepository(f.db).FindByID(ctx, batch.ID)
		require.NoError(t, err)
		assert.Equal(t, integration.BatchStatusFailed, stored.Status)
		assert.Equal(t, 2, stored.ItemsEnqueued)
		assert.Len(t, f.jobs(t), 2)
	})

	t.Run("concurrent run is refused", func(t *testing.T) {
		f := newSyncFixture(t)
		lock, err := f.locker.Obtain(ctx, fmt.Sprintf("sync:%s:%s", f.integ.ID, integration.SyncKindOrders), time.Minute)
		require.NoError(t, err)

		_, err = f.service(&pagedPuller{pages: [][]string{{"a"}}}).Run(ctx, f.integ.ID, integration.SyncKindOrders, nil)
		assert.ErrorIs(t, err, ErrSyncInProgress)

		require.NoError(t, lock.Release(ctx))
		_, err = f.service(&pagedPuller{pages: [][]string{{"a"}}}).Run(ctx, f.integ.ID, integration.SyncKindOrders, nil)
		assert.NoError(t, err)
	})

	t.Run("rejects invalid kind and unsupported provider", func(t *testing.T) {
		f := newSyncFixture(t)
		svc := f.service(&pagedPuller{})
		_, err := svc.Run(ctx, f.integ.ID, "invoices", nil)
		assert.ErrorIs(t, err, ErrInvalidSyncKind)

		shop, err := integration.NewIntegration(integration.IntegrationTypeSalesChannel, integration.PlatformShopify, "Shop", nil, f.clock.Now())
		require.NoError(t, err)
		require.NoError(t, persistence.NewGormIntegrationRepository(f.db).Save(ctx, shop))
		_, err = svc.Run(ctx, shop.ID, integration.SyncKindOrders, nil)
		assert.ErrorIs(t, err, ErrSyncUnsupported)
	})
}

func TestBulkSyncService_RunAll(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	svc := f.service(&pagedPuller{pages: [][]string{{"a"}}})

	runs := svc.RunAll(ctx, integration.SyncKindOrders)
	assert.Equal(t, 1, runs)
	assert.Len(t, f.jobs(t), 1)
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	lock, err := l.Obtain(ctx, "k", time.Minute)
	require.NoError(t, err)
	_, err = l.Obtain(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotObtained)

	require.NoError(t, lock.Release(ctx))
	_, err = l.Obtain(ctx, "k", time.Minute)
	assert.NoError(t, err)
}
