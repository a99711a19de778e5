package types

import (
	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/samber/lo"
)

// BillingMode determines which boundary of a billing period is used as the
// billed-at date: in advance bills a period at its start, in arrear at its end.
type BillingMode string

// BillingPeriod is the recurring billing period, a fixed number of calendar months.
type BillingPeriod string

// SubscriptionCategory describes how a subscription aligns within its bundle.
type SubscriptionCategory string

// SubscriptionState is the entitlement state derived from the event timeline.
type SubscriptionState string

const (
	BillingModeInAdvance BillingMode = "IN_ADVANCE"
	BillingModeInArrear  BillingMode = "IN_ARREAR"

	// BILLING_PERIOD_NO_BILLING marks billing events that terminate or do not
	// carry a recurring period (ex cancel markers)
	BILLING_PERIOD_NO_BILLING BillingPeriod = "NO_BILLING_PERIOD"
	BILLING_PERIOD_MONTHLY    BillingPeriod = "MONTHLY"
	BILLING_PERIOD_QUARTER    BillingPeriod = "QUARTERLY"
	BILLING_PERIOD_HALF_YEAR  BillingPeriod = "SEMIANNUAL"
	BILLING_PERIOD_ANNUAL     BillingPeriod = "ANNUAL"

	SubscriptionCategoryBase       SubscriptionCategory = "BASE"
	SubscriptionCategoryAddOn      SubscriptionCategory = "ADD_ON"
	SubscriptionCategoryStandalone SubscriptionCategory = "STANDALONE"

	SubscriptionStateActive    SubscriptionState = "ACTIVE"
	SubscriptionStateCancelled SubscriptionState = "CANCELLED"
)

func (m BillingMode) String() string {
	return string(m)
}

func (m BillingMode) Validate() error {
	allowed := []BillingMode{
		BillingModeInAdvance,
		BillingModeInArrear,
	}
	if !lo.Contains(allowed, m) {
		return ierr.NewError("invalid billing mode").
			WithHint("Invalid billing mode").
			WithReportableDetails(map[string]any{
				"mode":          m,
				"allowed_modes": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (p BillingPeriod) String() string {
	return string(p)
}

// MonthCount returns the number of calendar months in one billing period.
// A period without recurring billing has zero months.
func (p BillingPeriod) MonthCount() int {
	switch p {
	case BILLING_PERIOD_MONTHLY:
		return 1
	case BILLING_PERIOD_QUARTER:
		return 3
	case BILLING_PERIOD_HALF_YEAR:
		return 6
	case BILLING_PERIOD_ANNUAL:
		return 12
	default:
		return 0
	}
}

func (p BillingPeriod) Validate() error {
	allowed := []BillingPeriod{
		BILLING_PERIOD_NO_BILLING,
		BILLING_PERIOD_MONTHLY,
		BILLING_PERIOD_QUARTER,
		BILLING_PERIOD_HALF_YEAR,
		BILLING_PERIOD_ANNUAL,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid billing period").
			WithHint("Invalid billing period").
			WithReportableDetails(map[string]any{
				"period":          p,
				"allowed_periods": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (c SubscriptionCategory) String() string {
	return string(c)
}

func (c SubscriptionCategory) Validate() error {
	allowed := []SubscriptionCategory{
		SubscriptionCategoryBase,
		SubscriptionCategoryAddOn,
		SubscriptionCategoryStandalone,
	}
	if !lo.Contains(allowed, c) {
		return ierr.NewError("invalid subscription category").
			WithHint("Invalid subscription category").
			WithReportableDetails(map[string]any{
				"category":           c,
				"allowed_categories": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (s SubscriptionState) String() string {
	return string(s)
}

// ValidateBillCycleDay checks the billing cycle day is within the 1..31
// calendar range. Short months clamp at computation time, not here.
func ValidateBillCycleDay(bcd int) error {
	if bcd < 1 || bcd > 31 {
		return ierr.NewError("invalid billing cycle day").
			WithHintf("billing cycle day must be between 1 and 31, got %d", bcd).
			Mark(ierr.ErrValidation)
	}
	return nil
}
