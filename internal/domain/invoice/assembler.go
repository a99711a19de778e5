package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chronobill/chronobill/internal/domain/billing"
	"github.com/chronobill/chronobill/internal/domain/proration"
	"github.com/chronobill/chronobill/internal/types"
)

// AssembleInvoiceItems walks one ordered billing event set and builds the
// fixed and recurring invoice items billable up to targetDate. Each event
// opens a date range that the subscription's next event closes; the last
// event's range is open-ended.
//
// cutoffDate is an optional optimization supplied by callers that already
// settled earlier history: items billed before it are dropped. Omitting it
// never changes which periods exist, only how many are re-emitted.
func AssembleInvoiceItems(events *billing.EventSet, cutoffDate *time.Time, targetDate time.Time) ([]*InvoiceItem, error) {
	target := types.NormalizeDate(targetDate)
	var cutoff *time.Time
	if cutoffDate != nil {
		c := types.NormalizeDate(*cutoffDate)
		cutoff = &c
	}

	items := make([]*InvoiceItem, 0)
	for i, event := range events.Events() {
		if event.EffectiveDate.After(target) {
			continue
		}

		if fixed := fixedItemFor(event, cutoff); fixed != nil {
			items = append(items, fixed)
		}

		recurring, err := recurringItemsFor(events, i, cutoff, target)
		if err != nil {
			return nil, err
		}
		items = append(items, recurring...)
	}
	return items, nil
}

// fixedItemFor emits the one-off charge attached to an event, if any. Fixed
// charges are always billed at the event's effective date.
func fixedItemFor(event *billing.BillingEvent, cutoff *time.Time) *InvoiceItem {
	if event.FixedPrice == nil {
		return nil
	}
	if cutoff != nil && event.EffectiveDate.Before(*cutoff) {
		return nil
	}
	return &InvoiceItem{
		ID:             newItemID(),
		Type:           InvoiceItemTypeFixed,
		SubscriptionID: event.SubscriptionID,
		BundleID:       event.BundleID,
		PlanName:       event.PlanName,
		PhaseName:      event.PhaseName,
		StartDate:      event.EffectiveDate,
		Rate:           *event.FixedPrice,
		Amount:         event.FixedPrice.Round(MoneyScale),
		NumberOfCycles: decimal.NewFromInt(1),
		Currency:       event.Currency,
	}
}

func recurringItemsFor(events *billing.EventSet, i int, cutoff *time.Time, target time.Time) ([]*InvoiceItem, error) {
	event := events.Events()[i]
	months := event.BillingPeriod.MonthCount()
	if months < 1 || event.RecurringPrice == nil {
		return nil, nil
	}

	var end *time.Time
	if next := events.NextForSubscription(i); next != nil {
		end = &next.EffectiveDate
	}

	result, err := proration.GenerateInvoiceItemData(
		event.EffectiveDate, end, target,
		event.BillCycleDayLocal, event.BillingPeriod, event.BillingMode)
	if err != nil {
		return nil, err
	}

	items := make([]*InvoiceItem, 0, len(result.Items))
	for _, data := range result.Items {
		if !retainedByCutoff(data.StartDate, months, event.BillingMode, cutoff) {
			continue
		}
		endDate := data.EndDate
		items = append(items, &InvoiceItem{
			ID:             newItemID(),
			Type:           InvoiceItemTypeRecurring,
			SubscriptionID: event.SubscriptionID,
			BundleID:       event.BundleID,
			PlanName:       event.PlanName,
			PhaseName:      event.PhaseName,
			StartDate:      data.StartDate,
			EndDate:        &endDate,
			Rate:           *event.RecurringPrice,
			Amount:         event.RecurringPrice.Mul(data.NumberOfCycles).Round(MoneyScale),
			NumberOfCycles: data.NumberOfCycles,
			Currency:       event.Currency,
		})
	}
	return items, nil
}

// retainedByCutoff keeps an item when its billed-at boundary is not before
// the cutoff. The arrears boundary is recomputed as start plus one nominal
// period rather than read from the item, since a pro-rated item's recorded
// end can fall short of it.
func retainedByCutoff(startDate time.Time, months int, mode types.BillingMode, cutoff *time.Time) bool {
	if cutoff == nil {
		return true
	}
	if mode == types.BillingModeInArrear {
		billedAt := types.AddMonthsClamped(startDate, months)
		return !billedAt.Before(*cutoff)
	}
	return !startDate.Before(*cutoff)
}
