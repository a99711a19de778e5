package testutil

import (
	"github.com/shopspring/decimal"

	"github.com/chronobill/chronobill/internal/domain/catalog"
	"github.com/chronobill/chronobill/internal/types"
)

// DefaultTestCatalog returns a static catalog with a handful of plans used
// across service tests.
func DefaultTestCatalog() *catalog.StaticCatalog {
	gold := decimal.NewFromInt(30)
	silver := decimal.NewFromInt(20)
	annual := decimal.NewFromInt(240)
	setup := decimal.NewFromInt(100)

	return catalog.NewStaticCatalog(
		&catalog.PlanPhase{
			PlanName:       "gold-monthly",
			PhaseName:      "gold-monthly-evergreen",
			PriceListName:  "DEFAULT",
			BillingPeriod:  types.BILLING_PERIOD_MONTHLY,
			BillingMode:    types.BillingModeInAdvance,
			RecurringPrice: &gold,
			Currency:       "USD",
		},
		&catalog.PlanPhase{
			PlanName:       "silver-monthly",
			PhaseName:      "silver-monthly-evergreen",
			PriceListName:  "DEFAULT",
			BillingPeriod:  types.BILLING_PERIOD_MONTHLY,
			BillingMode:    types.BillingModeInAdvance,
			RecurringPrice: &silver,
			Currency:       "USD",
		},
		&catalog.PlanPhase{
			PlanName:       "gold-annual",
			PhaseName:      "gold-annual-evergreen",
			PriceListName:  "DEFAULT",
			BillingPeriod:  types.BILLING_PERIOD_ANNUAL,
			BillingMode:    types.BillingModeInAdvance,
			RecurringPrice: &annual,
			FixedPrice:     &setup,
			Currency:       "USD",
		},
		&catalog.PlanPhase{
			PlanName:       "metered-monthly",
			PhaseName:      "metered-monthly-evergreen",
			PriceListName:  "DEFAULT",
			BillingPeriod:  types.BILLING_PERIOD_MONTHLY,
			BillingMode:    types.BillingModeInArrear,
			RecurringPrice: &silver,
			Currency:       "USD",
		},
	)
}
