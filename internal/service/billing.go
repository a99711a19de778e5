package service

import (
	"context"
	"time"

	"github.com/chronobill/chronobill/internal/domain/billing"
	"github.com/chronobill/chronobill/internal/domain/subscription"
	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/chronobill/chronobill/internal/types"
)

// BillingEventService derives the ordered billing event set of a
// subscription from its rebuilt timeline and the catalog. The derived set is
// read-only input for one invoice run.
type BillingEventService interface {
	BuildEventSet(ctx context.Context, subscriptionID string) (*billing.EventSet, error)
	BuildEventSetForSubscriptions(ctx context.Context, subscriptionIDs []string) (*billing.EventSet, error)
}

type billingEventService struct {
	ServiceParams
}

func NewBillingEventService(params ServiceParams) BillingEventService {
	return &billingEventService{ServiceParams: params}
}

func (s *billingEventService) BuildEventSet(ctx context.Context, subscriptionID string) (*billing.EventSet, error) {
	evts, err := s.deriveEvents(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return billing.NewEventSet(evts)
}

func (s *billingEventService) BuildEventSetForSubscriptions(ctx context.Context, subscriptionIDs []string) (*billing.EventSet, error) {
	all := make([]*billing.BillingEvent, 0)
	for _, id := range subscriptionIDs {
		evts, err := s.deriveEvents(ctx, id)
		if err != nil {
			return nil, err
		}
		all = append(all, evts...)
	}
	return billing.NewEventSet(all)
}

// deriveEvents maps each timeline transition to one billing event. Cancel
// transitions become no-billing markers that close the preceding event's
// date range; every other transition resolves its plan phase in the catalog
// at the transition's effective date.
func (s *billingEventService) deriveEvents(ctx context.Context, subscriptionID string) ([]*billing.BillingEvent, error) {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	active, err := s.EventRepo.GetActiveEvents(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	timeline, err := subscription.RebuildTimeline(active, sub.CurrentActiveVersion, s.now().Now())
	if err != nil {
		return nil, err
	}

	transitions := timeline.Transitions
	// billing ownership starts at the latest billing migration, if any
	for i := len(transitions) - 1; i >= 0; i-- {
		if transitions[i].TransitionType == types.SubscriptionEventMigrateBilling {
			transitions = transitions[i:]
			break
		}
	}

	evts := make([]*billing.BillingEvent, 0, len(transitions))
	for _, tr := range transitions {
		if tr.NextState == types.SubscriptionStateCancelled {
			evts = append(evts, &billing.BillingEvent{
				SubscriptionID: sub.ID,
				BundleID:       sub.BundleID,
				BillingPeriod:  types.BILLING_PERIOD_NO_BILLING,
				EffectiveDate:  tr.EffectiveDate,
			})
			continue
		}

		phase, err := s.Catalog.GetPlanPhase(ctx, tr.NextPlan, tr.NextPhase, tr.EffectiveDate)
		if err != nil {
			// proration must not run with an unresolved billing mode
			return nil, ierr.WithError(err).
				WithHintf("plan %s phase %s is not resolvable at %s",
					tr.NextPlan, tr.NextPhase, tr.EffectiveDate.Format(time.DateOnly)).
				Mark(ierr.ErrNotFound)
		}
		evts = append(evts, &billing.BillingEvent{
			SubscriptionID:    sub.ID,
			BundleID:          sub.BundleID,
			PlanName:          phase.PlanName,
			PhaseName:         phase.PhaseName,
			BillingPeriod:     phase.BillingPeriod,
			BillingMode:       phase.BillingMode,
			EffectiveDate:     tr.EffectiveDate,
			BillCycleDayLocal: sub.BillCycleDayLocal,
			RecurringPrice:    phase.RecurringPrice,
			FixedPrice:        phase.FixedPrice,
			Currency:          phase.Currency,
		})
	}
	return evts, nil
}
