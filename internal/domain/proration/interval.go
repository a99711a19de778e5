package proration

import (
	"time"

	"github.com/chronobill/chronobill/internal/types"
)

// billingIntervalDetail derives every anchor date needed for one proration
// run: the first billing cycle date at or after the start date, the effective
// end of billable time for the chosen billing mode, and the last anchor not
// past that end. Anchors are always re-derived from the nominal billing cycle
// day, so a day clamped by a short month never drifts permanently.
type billingIntervalDetail struct {
	startDate    time.Time
	endDate      *time.Time
	targetDate   time.Time
	billCycleDay int
	months       int
	mode         types.BillingMode

	firstBillingCycleDate time.Time
	effectiveEndDate      time.Time
	lastBillingCycleDate  time.Time
}

func newBillingIntervalDetail(startDate time.Time, endDate *time.Time, targetDate time.Time,
	billCycleDay int, months int, mode types.BillingMode) *billingIntervalDetail {
	d := &billingIntervalDetail{
		startDate:    startDate,
		endDate:      endDate,
		targetDate:   targetDate,
		billCycleDay: billCycleDay,
		months:       months,
		mode:         mode,
	}
	d.calculateFirstBillingCycleDate()
	d.calculateEffectiveEndDate()
	d.calculateLastBillingCycleDate()
	return d
}

// anchor returns the k-th billing cycle date, counted from the first one.
// Each anchor is computed from the first anchor, not cumulatively, and
// re-aligned to the nominal billing cycle day.
func (d *billingIntervalDetail) anchor(k int) time.Time {
	return types.AlignBillCycleDay(types.AddMonthsClamped(d.firstBillingCycleDate, k*d.months), d.billCycleDay)
}

func (d *billingIntervalDetail) calculateFirstBillingCycleDate() {
	proposed := types.AlignBillCycleDay(d.startDate, d.billCycleDay)
	for proposed.Before(d.startDate) {
		proposed = types.AlignBillCycleDay(types.AddMonthsClamped(proposed, d.months), d.billCycleDay)
	}
	d.firstBillingCycleDate = proposed
}

func (d *billingIntervalDetail) calculateEffectiveEndDate() {
	switch d.mode {
	case types.BillingModeInArrear:
		d.calculateInArrearEffectiveEndDate()
	default:
		d.calculateInAdvanceEffectiveEndDate()
	}
}

// calculateInAdvanceEffectiveEndDate bills through the first anchor strictly
// after the target date: the period containing the target is charged at its
// start.
func (d *billingIntervalDetail) calculateInAdvanceEffectiveEndDate() {
	if d.endDate != nil && !d.targetDate.Before(*d.endDate) {
		d.effectiveEndDate = *d.endDate
		return
	}
	if d.targetDate.Before(d.firstBillingCycleDate) {
		d.effectiveEndDate = d.firstBillingCycleDate
		return
	}

	proposed := d.anchor(0)
	for k := 1; !proposed.After(d.targetDate); k++ {
		proposed = d.anchor(k)
	}
	if d.endDate != nil && !d.endDate.After(proposed) {
		d.effectiveEndDate = *d.endDate
	} else {
		d.effectiveEndDate = proposed
	}
}

// calculateInArrearEffectiveEndDate bills only completed periods: the
// effective end is the last anchor at or before the target date. A target on
// the subscription start date therefore yields nothing to bill.
func (d *billingIntervalDetail) calculateInArrearEffectiveEndDate() {
	if d.endDate != nil && !d.targetDate.Before(*d.endDate) {
		d.effectiveEndDate = *d.endDate
		return
	}
	if d.targetDate.Before(d.firstBillingCycleDate) {
		d.effectiveEndDate = d.startDate
		return
	}

	k := 0
	for !d.anchor(k + 1).After(d.targetDate) {
		k++
	}
	last := d.anchor(k)
	if d.endDate != nil && d.endDate.Before(last) {
		d.effectiveEndDate = *d.endDate
	} else {
		d.effectiveEndDate = last
	}
}

func (d *billingIntervalDetail) calculateLastBillingCycleDate() {
	if d.effectiveEndDate.Before(d.firstBillingCycleDate) {
		// never reach back past the first anchor
		d.lastBillingCycleDate = d.firstBillingCycleDate
		return
	}
	k := 0
	for !d.anchor(k + 1).After(d.effectiveEndDate) {
		k++
	}
	d.lastBillingCycleDate = d.anchor(k)
}

// hasSomethingToBill reports whether any billable time exists; periods
// shorter than a day are never billed.
func (d *billingIntervalDetail) hasSomethingToBill() bool {
	return d.effectiveEndDate.After(d.startDate)
}

// nextBillingCycleDate is the first anchor strictly after the target date,
// used by callers to schedule the next invoice run. It is the same date for
// both billing modes: the next time a period starts in advance is also the
// next time an earlier period completes in arrears.
func (d *billingIntervalDetail) nextBillingCycleDate() time.Time {
	if d.targetDate.Before(d.firstBillingCycleDate) {
		return d.firstBillingCycleDate
	}
	k := 1
	proposed := d.anchor(1)
	for !proposed.After(d.targetDate) {
		k++
		proposed = d.anchor(k)
	}
	return proposed
}
