package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronobill/chronobill/internal/config"
	"github.com/chronobill/chronobill/internal/domain/subscription"
	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/chronobill/chronobill/internal/logger"
	"github.com/chronobill/chronobill/internal/testutil"
	"github.com/chronobill/chronobill/internal/types"
)

func newTestParams(now time.Time) ServiceParams {
	log, _ := logger.NewLogger()
	return ServiceParams{
		Logger:    log,
		Config:    config.GetDefaultConfig(),
		Clock:     types.FixedClock{Instant: now},
		DB:        NoopTxRunner{},
		Catalog:   testutil.DefaultTestCatalog(),
		EventRepo: testutil.NewInMemorySubscriptionEventStore(),
		SubRepo:   testutil.NewInMemorySubscriptionStore(),
	}
}

func createTestSubscription(t *testing.T, ctx context.Context, svc SubscriptionService, start time.Time) *subscription.Subscription {
	t.Helper()
	bundle, err := svc.CreateBundle(ctx, CreateBundleParams{
		ExternalKey: "bundle-ext-1",
		AccountID:   "account-1",
		StartDate:   start,
	})
	require.NoError(t, err)

	sub, err := svc.CreateSubscription(ctx, CreateSubscriptionParams{
		BundleID:      bundle.ID,
		StartDate:     start,
		BillCycleDay:  1,
		PlanName:      "gold-monthly",
		PhaseName:     "gold-monthly-evergreen",
		PriceListName: "DEFAULT",
	})
	require.NoError(t, err)
	return sub
}

func TestSubscriptionServiceLifecycle(t *testing.T) {
	ctx := testutil.SetupContext()
	start := types.NewDate(2011, time.January, 1)
	now := types.NewDate(2011, time.June, 1)

	t.Run("create then rebuild timeline", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		sub := createTestSubscription(t, ctx, svc, start)

		timeline, err := svc.GetTimeline(ctx, sub.ID)
		require.NoError(t, err)
		require.Len(t, timeline.Transitions, 1)
		assert.Equal(t, types.SubscriptionEventCreate, timeline.Current.TransitionType)
		assert.Equal(t, "gold-monthly", timeline.Current.NextPlan)
		assert.Equal(t, types.SubscriptionStateActive, timeline.CurrentState())
	})

	t.Run("create rejects a future start date", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		bundle, err := svc.CreateBundle(ctx, CreateBundleParams{
			ExternalKey: "bundle-ext-2",
			AccountID:   "account-1",
			StartDate:   start,
		})
		require.NoError(t, err)

		_, err = svc.CreateSubscription(ctx, CreateSubscriptionParams{
			BundleID:     bundle.ID,
			StartDate:    now.AddDate(0, 1, 0),
			BillCycleDay: 1,
			PlanName:     "gold-monthly",
			PhaseName:    "gold-monthly-evergreen",
		})
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("change plan takes effect on the timeline", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		sub := createTestSubscription(t, ctx, svc, start)

		err := svc.ChangePlan(ctx, ChangePlanParams{
			SubscriptionID: sub.ID,
			PlanName:       "silver-monthly",
			PhaseName:      "silver-monthly-evergreen",
			PriceListName:  "DEFAULT",
			EffectiveDate:  types.NewDate(2011, time.March, 10),
		})
		require.NoError(t, err)

		timeline, err := svc.GetTimeline(ctx, sub.ID)
		require.NoError(t, err)
		require.Len(t, timeline.Transitions, 2)
		assert.Equal(t, "gold-monthly", timeline.Transitions[1].PreviousPlan)
		assert.Equal(t, "silver-monthly", timeline.Current.NextPlan)
	})

	t.Run("cancel closes and blocks further changes", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		sub := createTestSubscription(t, ctx, svc, start)

		require.NoError(t, svc.Cancel(ctx, sub.ID, types.NewDate(2011, time.April, 1)))

		timeline, err := svc.GetTimeline(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, types.SubscriptionStateCancelled, timeline.CurrentState())

		err = svc.ChangePlan(ctx, ChangePlanParams{
			SubscriptionID: sub.ID,
			PlanName:       "silver-monthly",
			PhaseName:      "silver-monthly-evergreen",
			EffectiveDate:  types.NewDate(2011, time.May, 1),
		})
		require.Error(t, err)
		assert.True(t, ierr.IsInvalidOperation(err))
	})

	t.Run("uncancel removes a pending cancel", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		sub := createTestSubscription(t, ctx, svc, start)

		require.NoError(t, svc.Cancel(ctx, sub.ID, types.NewDate(2011, time.July, 1)))
		require.NoError(t, svc.Uncancel(ctx, sub.ID))

		timeline, err := svc.GetTimeline(ctx, sub.ID)
		require.NoError(t, err)
		require.Len(t, timeline.Transitions, 1)
		assert.Equal(t, types.SubscriptionStateActive, timeline.CurrentState())
	})

	t.Run("uncancel fails when the cancel already took effect", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		sub := createTestSubscription(t, ctx, svc, start)

		require.NoError(t, svc.Cancel(ctx, sub.ID, types.NewDate(2011, time.April, 1)))

		err := svc.Uncancel(ctx, sub.ID)
		require.Error(t, err)
		assert.True(t, ierr.IsInvalidOperation(err))
	})

	t.Run("re-create reopens a cancelled subscription", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		sub := createTestSubscription(t, ctx, svc, start)

		require.NoError(t, svc.Cancel(ctx, sub.ID, types.NewDate(2011, time.April, 1)))
		require.NoError(t, svc.ReCreate(ctx, ReCreateParams{
			SubscriptionID: sub.ID,
			PlanName:       "silver-monthly",
			PhaseName:      "silver-monthly-evergreen",
			PriceListName:  "DEFAULT",
			EffectiveDate:  types.NewDate(2011, time.May, 1),
		}))

		timeline, err := svc.GetTimeline(ctx, sub.ID)
		require.NoError(t, err)
		require.Len(t, timeline.Transitions, 3)
		assert.Equal(t, types.SubscriptionStateActive, timeline.CurrentState())
		assert.Equal(t, "silver-monthly", timeline.Current.NextPlan)
		assert.Empty(t, timeline.Current.PreviousPlan)
	})

	t.Run("re-create on an open subscription is rejected", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		sub := createTestSubscription(t, ctx, svc, start)

		err := svc.ReCreate(ctx, ReCreateParams{
			SubscriptionID: sub.ID,
			PlanName:       "silver-monthly",
			PhaseName:      "silver-monthly-evergreen",
			EffectiveDate:  types.NewDate(2011, time.May, 1),
		})
		require.Error(t, err)
		assert.True(t, ierr.IsInvalidOperation(err))
	})
}

func TestSubscriptionServiceTransfer(t *testing.T) {
	ctx := testutil.SetupContext()
	start := types.NewDate(2011, time.January, 1)
	now := types.NewDate(2011, time.June, 1)

	t.Run("transfer closes the source and opens a new subscription", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		source := createTestSubscription(t, ctx, svc, start)

		destBundle, err := svc.CreateBundle(ctx, CreateBundleParams{
			ExternalKey: "bundle-ext-dest",
			AccountID:   "account-2",
			StartDate:   start,
		})
		require.NoError(t, err)

		transferDate := types.NewDate(2011, time.March, 1)
		dest, err := svc.Transfer(ctx, TransferParams{
			SubscriptionID:      source.ID,
			DestinationBundleID: destBundle.ID,
			EffectiveDate:       transferDate,
		})
		require.NoError(t, err)
		require.NotEqual(t, source.ID, dest.ID)
		assert.Equal(t, destBundle.ID, dest.BundleID)
		assert.Equal(t, source.BillCycleDayLocal, dest.BillCycleDayLocal)

		sourceTimeline, err := svc.GetTimeline(ctx, source.ID)
		require.NoError(t, err)
		assert.Equal(t, types.SubscriptionStateCancelled, sourceTimeline.CurrentState())

		destTimeline, err := svc.GetTimeline(ctx, dest.ID)
		require.NoError(t, err)
		require.Len(t, destTimeline.Transitions, 1)
		assert.Equal(t, types.SubscriptionEventTransfer, destTimeline.Current.TransitionType)
		assert.Equal(t, "gold-monthly", destTimeline.Current.NextPlan)
		assert.True(t, destTimeline.Current.EffectiveDate.Equal(transferDate))
	})

	t.Run("transfer of a cancelled subscription is rejected", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		source := createTestSubscription(t, ctx, svc, start)
		require.NoError(t, svc.Cancel(ctx, source.ID, types.NewDate(2011, time.February, 1)))

		destBundle, err := svc.CreateBundle(ctx, CreateBundleParams{
			ExternalKey: "bundle-ext-dest-2",
			AccountID:   "account-2",
			StartDate:   start,
		})
		require.NoError(t, err)

		_, err = svc.Transfer(ctx, TransferParams{
			SubscriptionID:      source.ID,
			DestinationBundleID: destBundle.ID,
			EffectiveDate:       types.NewDate(2011, time.March, 1),
		})
		require.Error(t, err)
		assert.True(t, ierr.IsInvalidOperation(err))
	})
}

func TestSubscriptionServiceMigrateBilling(t *testing.T) {
	ctx := testutil.SetupContext()
	start := types.NewDate(2011, time.January, 1)
	now := types.NewDate(2011, time.June, 1)

	t.Run("migration carries the current plan forward", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		sub := createTestSubscription(t, ctx, svc, start)

		migrationDate := types.NewDate(2011, time.April, 1)
		require.NoError(t, svc.MigrateBilling(ctx, sub.ID, migrationDate))

		timeline, err := svc.GetTimeline(ctx, sub.ID)
		require.NoError(t, err)
		require.Len(t, timeline.Transitions, 2)
		assert.Equal(t, types.SubscriptionEventMigrateBilling, timeline.Current.TransitionType)
		assert.Equal(t, "gold-monthly", timeline.Current.NextPlan)
		assert.Equal(t, types.SubscriptionStateActive, timeline.CurrentState())
	})

	t.Run("migration as the first event is rejected", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		bundle, err := svc.CreateBundle(ctx, CreateBundleParams{
			ExternalKey: "bundle-ext-migrate",
			AccountID:   "account-1",
			StartDate:   start,
		})
		require.NoError(t, err)

		_, err = svc.CreateSubscription(ctx, CreateSubscriptionParams{
			BundleID:      bundle.ID,
			StartDate:     start,
			BillCycleDay:  1,
			PlanName:      "gold-monthly",
			PhaseName:     "gold-monthly-evergreen",
			PriceListName: "DEFAULT",
			EventType:     types.SubscriptionEventMigrateBilling,
		})
		require.Error(t, err)
		assert.True(t, ierr.IsInvalidOperation(err))
	})
}

func TestSubscriptionServiceRepair(t *testing.T) {
	ctx := testutil.SetupContext()
	start := types.NewDate(2011, time.January, 1)
	now := types.NewDate(2011, time.June, 1)

	t.Run("repair replaces the active version atomically", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		sub := createTestSubscription(t, ctx, svc, start)

		err := svc.RepairTimeline(ctx, sub.ID, []RepairEventSpec{
			{
				EventType:     types.SubscriptionEventCreate,
				EffectiveDate: start,
				PlanName:      "silver-monthly",
				PhaseName:     "silver-monthly-evergreen",
				PriceListName: "DEFAULT",
			},
			{
				EventType:     types.SubscriptionEventChange,
				EffectiveDate: types.NewDate(2011, time.February, 1),
				PlanName:      "gold-monthly",
				PhaseName:     "gold-monthly-evergreen",
				PriceListName: "DEFAULT",
			},
		})
		require.NoError(t, err)

		repaired, err := params.SubRepo.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, repaired.CurrentActiveVersion)

		timeline, err := svc.GetTimeline(ctx, sub.ID)
		require.NoError(t, err)
		require.Len(t, timeline.Transitions, 2)
		assert.Equal(t, "silver-monthly", timeline.Transitions[0].NextPlan)
		assert.Equal(t, "gold-monthly", timeline.Current.NextPlan)

		// the superseded version stays in the log for audit
		all, err := params.EventRepo.GetEvents(ctx, sub.ID)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("a repair that cannot replay is rejected before writing", func(t *testing.T) {
		params := newTestParams(now)
		svc := NewSubscriptionService(params)
		sub := createTestSubscription(t, ctx, svc, start)

		err := svc.RepairTimeline(ctx, sub.ID, []RepairEventSpec{
			{
				EventType:     types.SubscriptionEventChange,
				EffectiveDate: start,
				PlanName:      "silver-monthly",
				PhaseName:     "silver-monthly-evergreen",
			},
		})
		require.Error(t, err)
		assert.True(t, ierr.IsMalformedTimeline(err))

		unchanged, err := params.SubRepo.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, unchanged.CurrentActiveVersion)

		timeline, err := svc.GetTimeline(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, "gold-monthly", timeline.Current.NextPlan)
	})
}
