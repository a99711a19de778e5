package proration

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/chronobill/chronobill/internal/types"
)

// ProrationScale is the fixed decimal scale used for every fractional period
// produced by this package. Changing it changes historical invoice amounts,
// so it is a versioned constant rather than configuration.
const ProrationScale = 9

// GenerateInvoiceItemData computes the billable recurring periods for one
// subscription phase between its start date and the target date, honoring an
// optional end date and the billing mode. Whole periods run anchor to anchor
// on the bill cycle day; a partial leading or trailing period contributes a
// day-count fraction of the enclosing full period.
func GenerateInvoiceItemData(startDate time.Time, endDate *time.Time, targetDate time.Time,
	billCycleDay int, period types.BillingPeriod, mode types.BillingMode) (*ItemDataResult, error) {
	start := types.NormalizeDate(startDate)
	target := types.NormalizeDate(targetDate)
	var end *time.Time
	if endDate != nil {
		e := types.NormalizeDate(*endDate)
		end = &e
	}

	if err := validateDateSequence(start, end, target); err != nil {
		return nil, err
	}
	if err := types.ValidateBillCycleDay(billCycleDay); err != nil {
		return nil, err
	}
	months := period.MonthCount()
	if months < 1 {
		return nil, ierr.NewError("billing period has no recurring interval").
			WithHintf("billing period %s cannot generate recurring items", period).
			Mark(ierr.ErrValidation)
	}
	if err := mode.Validate(); err != nil {
		return nil, err
	}

	detail := newBillingIntervalDetail(start, end, target, billCycleDay, months, mode)
	result := &ItemDataResult{
		Items:                []RecurringInvoiceItemData{},
		NextBillingCycleDate: detail.nextBillingCycleDate(),
	}
	if !detail.hasSomethingToBill() {
		return result, nil
	}

	firstBCD := detail.firstBillingCycleDate
	effEnd := detail.effectiveEndDate

	// Subscription ends on or before the first anchor: one partial period,
	// never past the end date, and nothing else.
	if end != nil && !end.After(firstBCD) {
		if end.After(start) {
			result.Items = append(result.Items, detail.leadingProrationItem(start, *end))
		}
		return result, nil
	}

	periodStart := start
	if firstBCD.After(start) {
		result.Items = append(result.Items, detail.leadingProrationItem(start, firstBCD))
		periodStart = firstBCD
	}

	for k := 1; ; k++ {
		periodEnd := detail.futureBillingDateFor(k)
		if periodEnd.After(effEnd) {
			break
		}
		result.Items = append(result.Items, RecurringInvoiceItemData{
			StartDate:      periodStart,
			EndDate:        periodEnd,
			NumberOfCycles: decimal.NewFromInt(1),
		})
		periodStart = periodEnd
	}

	if effEnd.After(detail.lastBillingCycleDate) {
		result.Items = append(result.Items, detail.trailingProrationItem(detail.lastBillingCycleDate, effEnd))
	}
	return result, nil
}

// CalculateNumberOfBillingCycles returns the total (possibly fractional)
// number of billing cycles between the start date and the target date,
// counting the period containing the target as started.
func CalculateNumberOfBillingCycles(startDate time.Time, endDate *time.Time, targetDate time.Time,
	billCycleDay int, period types.BillingPeriod) (decimal.Decimal, error) {
	result, err := GenerateInvoiceItemData(startDate, endDate, targetDate, billCycleDay, period, types.BillingModeInAdvance)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, item := range result.Items {
		total = total.Add(item.NumberOfCycles)
	}
	return total, nil
}

func validateDateSequence(start time.Time, end *time.Time, target time.Time) error {
	if end != nil && end.Before(start) {
		return ierr.NewError("end date precedes start date").
			WithHint("subscription end date cannot be earlier than its start date").
			WithReportableDetails(map[string]interface{}{
				"start_date": start.Format(time.DateOnly),
				"end_date":   end.Format(time.DateOnly),
			}).
			Mark(ierr.ErrInvalidDateSequence)
	}
	if target.Before(start) {
		return ierr.NewError("target date precedes start date").
			WithHint("target date cannot be earlier than the subscription start date").
			WithReportableDetails(map[string]interface{}{
				"start_date":  start.Format(time.DateOnly),
				"target_date": target.Format(time.DateOnly),
			}).
			Mark(ierr.ErrInvalidDateSequence)
	}
	return nil
}

// futureBillingDateFor returns the k-th anchor after the first billing cycle
// date.
func (d *billingIntervalDetail) futureBillingDateFor(k int) time.Time {
	return d.anchor(k)
}

// leadingProrationItem prorates the stub between the start date and the first
// anchor against the actual day count of the full period ending on that
// anchor.
func (d *billingIntervalDetail) leadingProrationItem(itemStart, itemEnd time.Time) RecurringInvoiceItemData {
	periodEnd := d.firstBillingCycleDate
	periodStart := types.AlignBillCycleDay(types.AddMonthsClamped(periodEnd, -d.months), d.billCycleDay)
	return RecurringInvoiceItemData{
		StartDate:      itemStart,
		EndDate:        itemEnd,
		NumberOfCycles: prorationFraction(itemStart, itemEnd, periodStart, periodEnd),
	}
}

// trailingProrationItem prorates the stub between the last anchor and the
// effective end against the actual day count of the full period starting on
// that anchor.
func (d *billingIntervalDetail) trailingProrationItem(itemStart, itemEnd time.Time) RecurringInvoiceItemData {
	periodStart := d.lastBillingCycleDate
	periodEnd := types.AlignBillCycleDay(types.AddMonthsClamped(periodStart, d.months), d.billCycleDay)
	return RecurringInvoiceItemData{
		StartDate:      itemStart,
		EndDate:        itemEnd,
		NumberOfCycles: prorationFraction(itemStart, itemEnd, periodStart, periodEnd),
	}
}

func prorationFraction(itemStart, itemEnd, periodStart, periodEnd time.Time) decimal.Decimal {
	itemDays := types.DaysBetween(itemStart, itemEnd)
	periodDays := types.DaysBetween(periodStart, periodEnd)
	if periodDays <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(itemDays)).
		DivRound(decimal.NewFromInt(int64(periodDays)), ProrationScale)
}
