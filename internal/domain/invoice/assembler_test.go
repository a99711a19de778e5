package invoice

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronobill/chronobill/internal/domain/billing"
	"github.com/chronobill/chronobill/internal/types"
)

func pricePtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func newEvent(subID string, effective time.Time, bcd int, recurring *decimal.Decimal) *billing.BillingEvent {
	return &billing.BillingEvent{
		SubscriptionID:    subID,
		BundleID:          "bundle-1",
		PlanName:          "gold-monthly",
		PhaseName:         "gold-monthly-evergreen",
		BillingPeriod:     types.BILLING_PERIOD_MONTHLY,
		BillingMode:       types.BillingModeInAdvance,
		EffectiveDate:     effective,
		BillCycleDayLocal: bcd,
		RecurringPrice:    recurring,
		Currency:          "USD",
	}
}

func TestAssembleInvoiceItems(t *testing.T) {
	t.Run("single event bills one whole period", func(t *testing.T) {
		set, err := billing.NewEventSet([]*billing.BillingEvent{
			newEvent("sub-1", types.NewDate(2011, time.January, 1), 1, pricePtr(30)),
		})
		require.NoError(t, err)

		items, err := AssembleInvoiceItems(set, nil, types.NewDate(2011, time.January, 1))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, InvoiceItemTypeRecurring, items[0].Type)
		assert.Equal(t, types.NewDate(2011, time.January, 1), items[0].StartDate)
		require.NotNil(t, items[0].EndDate)
		assert.Equal(t, types.NewDate(2011, time.February, 1), *items[0].EndDate)
		assert.True(t, items[0].Amount.Equal(decimal.NewFromInt(30)))
		assert.Equal(t, "USD", items[0].Currency)
	})

	t.Run("plan change closes the old range and restarts anchors on the new bcd", func(t *testing.T) {
		old := newEvent("sub-1", types.NewDate(2011, time.January, 1), 1, pricePtr(31))
		changed := newEvent("sub-1", types.NewDate(2011, time.February, 10), 10, pricePtr(20))
		changed.PlanName = "silver-monthly"
		set, err := billing.NewEventSet([]*billing.BillingEvent{old, changed})
		require.NoError(t, err)

		items, err := AssembleInvoiceItems(set, nil, types.NewDate(2011, time.February, 20))
		require.NoError(t, err)
		require.Len(t, items, 3)

		assert.Equal(t, types.NewDate(2011, time.January, 1), items[0].StartDate)
		assert.Equal(t, types.NewDate(2011, time.February, 1), *items[0].EndDate)
		assert.True(t, items[0].Amount.Equal(decimal.NewFromInt(31)))

		// old plan's trailing stub, 9 of 28 days at 31/period
		assert.Equal(t, types.NewDate(2011, time.February, 1), items[1].StartDate)
		assert.Equal(t, types.NewDate(2011, time.February, 10), *items[1].EndDate)
		assert.True(t, items[1].Amount.Equal(decimal.NewFromFloat(9.96)), "got %s", items[1].Amount)

		assert.Equal(t, "silver-monthly", items[2].PlanName)
		assert.Equal(t, types.NewDate(2011, time.February, 10), items[2].StartDate)
		assert.Equal(t, types.NewDate(2011, time.March, 10), *items[2].EndDate)
		assert.True(t, items[2].Amount.Equal(decimal.NewFromInt(20)))
	})

	t.Run("no-billing marker closes the range without generating items", func(t *testing.T) {
		active := newEvent("sub-1", types.NewDate(2011, time.January, 1), 1, pricePtr(30))
		cancel := &billing.BillingEvent{
			SubscriptionID: "sub-1",
			BundleID:       "bundle-1",
			BillingPeriod:  types.BILLING_PERIOD_NO_BILLING,
			EffectiveDate:  types.NewDate(2011, time.March, 1),
		}
		set, err := billing.NewEventSet([]*billing.BillingEvent{active, cancel})
		require.NoError(t, err)

		items, err := AssembleInvoiceItems(set, nil, types.NewDate(2011, time.April, 1))
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, types.NewDate(2011, time.February, 1), *items[0].EndDate)
		assert.Equal(t, types.NewDate(2011, time.March, 1), *items[1].EndDate)
	})

	t.Run("events past the target date are ignored", func(t *testing.T) {
		current := newEvent("sub-1", types.NewDate(2011, time.January, 1), 1, pricePtr(30))
		future := newEvent("sub-1", types.NewDate(2011, time.June, 1), 1, pricePtr(50))
		set, err := billing.NewEventSet([]*billing.BillingEvent{current, future})
		require.NoError(t, err)

		items, err := AssembleInvoiceItems(set, nil, types.NewDate(2011, time.January, 15))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.True(t, items[0].Amount.Equal(decimal.NewFromInt(30)))
	})

	t.Run("fixed price bills once at the event date", func(t *testing.T) {
		event := newEvent("sub-1", types.NewDate(2011, time.January, 1), 1, pricePtr(30))
		event.FixedPrice = pricePtr(100)
		set, err := billing.NewEventSet([]*billing.BillingEvent{event})
		require.NoError(t, err)

		items, err := AssembleInvoiceItems(set, nil, types.NewDate(2011, time.January, 1))
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, InvoiceItemTypeFixed, items[0].Type)
		assert.Equal(t, types.NewDate(2011, time.January, 1), items[0].StartDate)
		assert.Nil(t, items[0].EndDate)
		assert.True(t, items[0].Amount.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, InvoiceItemTypeRecurring, items[1].Type)
	})
}

func TestAssembleInvoiceItems_CutoffFilter(t *testing.T) {
	t.Run("in advance drops items starting before the cutoff", func(t *testing.T) {
		set, err := billing.NewEventSet([]*billing.BillingEvent{
			newEvent("sub-1", types.NewDate(2011, time.January, 1), 1, pricePtr(30)),
		})
		require.NoError(t, err)

		cutoff := types.NewDate(2011, time.February, 1)
		items, err := AssembleInvoiceItems(set, &cutoff, types.NewDate(2011, time.February, 15))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, types.NewDate(2011, time.February, 1), items[0].StartDate)
	})

	t.Run("in arrears keeps items whose period completes at the cutoff", func(t *testing.T) {
		event := newEvent("sub-1", types.NewDate(2011, time.January, 1), 1, pricePtr(30))
		event.BillingMode = types.BillingModeInArrear
		set, err := billing.NewEventSet([]*billing.BillingEvent{event})
		require.NoError(t, err)

		cutoff := types.NewDate(2011, time.February, 1)
		items, err := AssembleInvoiceItems(set, &cutoff, types.NewDate(2011, time.February, 15))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, types.NewDate(2011, time.January, 1), items[0].StartDate)
		assert.Equal(t, types.NewDate(2011, time.February, 1), *items[0].EndDate)
	})

	t.Run("omitting the cutoff only adds already-billed history back", func(t *testing.T) {
		set, err := billing.NewEventSet([]*billing.BillingEvent{
			newEvent("sub-1", types.NewDate(2011, time.January, 1), 1, pricePtr(30)),
		})
		require.NoError(t, err)

		cutoff := types.NewDate(2011, time.February, 1)
		filtered, err := AssembleInvoiceItems(set, &cutoff, types.NewDate(2011, time.February, 15))
		require.NoError(t, err)
		full, err := AssembleInvoiceItems(set, nil, types.NewDate(2011, time.February, 15))
		require.NoError(t, err)

		require.Len(t, full, 2)
		require.Len(t, filtered, 1)
		assert.Equal(t, full[1].StartDate, filtered[0].StartDate)
		assert.True(t, full[1].Amount.Equal(filtered[0].Amount))
	})
}
