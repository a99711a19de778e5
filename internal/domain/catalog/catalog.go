package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/chronobill/chronobill/internal/types"
)

// PlanPhase is the billing-relevant slice of one catalog plan phase, resolved
// for a specific effective date.
type PlanPhase struct {
	PlanName      string
	PhaseName     string
	PriceListName string

	BillingPeriod  types.BillingPeriod
	BillingMode    types.BillingMode
	RecurringPrice *decimal.Decimal
	FixedPrice     *decimal.Decimal
	Currency       string
}

// Catalog resolves plan phases by name at a given effective date. Lookups are
// read-only; the catalog version in force at the effective date determines
// the result, so the same names can resolve differently across dates.
type Catalog interface {
	GetPlanPhase(ctx context.Context, planName, phaseName string, effectiveDate time.Time) (*PlanPhase, error)
}

// StaticCatalog serves a fixed set of plan phases. It backs tests and the
// command line dry-run tool; a production deployment adapts its own catalog
// service to the Catalog interface instead.
type StaticCatalog struct {
	phases map[string]*PlanPhase
}

func NewStaticCatalog(phases ...*PlanPhase) *StaticCatalog {
	m := make(map[string]*PlanPhase, len(phases))
	for _, p := range phases {
		m[staticKey(p.PlanName, p.PhaseName)] = p
	}
	return &StaticCatalog{phases: m}
}

func (c *StaticCatalog) GetPlanPhase(_ context.Context, planName, phaseName string, _ time.Time) (*PlanPhase, error) {
	if p, ok := c.phases[staticKey(planName, phaseName)]; ok {
		return p, nil
	}
	return nil, ierr.NewError("plan phase not found").
		WithHintf("no catalog entry for plan %s phase %s", planName, phaseName).
		WithReportableDetails(map[string]interface{}{
			"plan_name":  planName,
			"phase_name": phaseName,
		}).
		Mark(ierr.ErrNotFound)
}

func staticKey(planName, phaseName string) string {
	return planName + "/" + phaseName
}
