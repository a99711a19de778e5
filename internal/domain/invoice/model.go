package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chronobill/chronobill/internal/types"
)

// MoneyScale is the decimal scale applied once, when a fractional cycle count
// meets a price. Intermediate proration fractions keep their full scale.
const MoneyScale = 2

// InvoiceItemType distinguishes one-off charges from recurring period
// charges.
type InvoiceItemType string

const (
	InvoiceItemTypeFixed     InvoiceItemType = "FIXED"
	InvoiceItemTypeRecurring InvoiceItemType = "RECURRING"
)

// InvoiceItem is one line of a generated invoice. Items are created fresh on
// every run and never mutated afterwards.
type InvoiceItem struct {
	ID             string
	Type           InvoiceItemType
	SubscriptionID string
	BundleID       string
	PlanName       string
	PhaseName      string

	// StartDate is the charge date for fixed items and the period start for
	// recurring items. EndDate is nil for fixed items.
	StartDate time.Time
	EndDate   *time.Time

	// Rate is the full-period price; Amount is rate times the number of
	// cycles, rounded to MoneyScale.
	Rate           decimal.Decimal
	Amount         decimal.Decimal
	NumberOfCycles decimal.Decimal
	Currency       string
}

func newItemID() string {
	return types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM)
}
