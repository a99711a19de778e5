package proration

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecurringInvoiceItemData is one period boundary emitted by the proration
// engine: a whole billing period carries exactly one cycle, a leading or
// trailing partial period carries a fraction. Instances are created fresh on
// every invoice run, consumed by the assembler and discarded.
type RecurringInvoiceItemData struct {
	StartDate      time.Time
	EndDate        time.Time
	NumberOfCycles decimal.Decimal
}

// ItemDataResult is the output of GenerateInvoiceItemData: the emitted period
// boundaries plus the next billing cycle date after the last generated
// period, used by callers to schedule the next invoice run.
type ItemDataResult struct {
	Items                []RecurringInvoiceItemData
	NextBillingCycleDate time.Time
}
