package billing

import (
	"sort"
	"time"

	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/chronobill/chronobill/internal/types"
	"github.com/shopspring/decimal"
)

// BillingEvent is a derived, read-only input to the invoice generation run.
// It is produced from the subscription timeline plus the catalog, one event
// per effective date range with a stable plan/phase/period/mode combination.
type BillingEvent struct {
	SubscriptionID string
	BundleID       string
	PlanName       string
	PhaseName      string

	// BillingPeriod is NO_BILLING_PERIOD on terminating events such as a
	// cancel marker; those events never generate recurring items but still
	// close the preceding event's date range.
	BillingPeriod types.BillingPeriod
	BillingMode   types.BillingMode
	EffectiveDate time.Time

	// BillCycleDayLocal is the nominal billing cycle day (1..31) in effect
	// from this event onwards. A mid-lifetime change restarts anchor
	// computation from this event's effective date.
	BillCycleDayLocal int

	RecurringPrice *decimal.Decimal
	FixedPrice     *decimal.Decimal
	Currency       string
}

// EventSet is an immutable, navigable ordered set of billing events for the
// duration of one invoice run.
type EventSet struct {
	events []*BillingEvent
}

// NewEventSet validates and orders the events by (effectiveDate,
// subscriptionID) so a run walks each subscription's ranges in order.
func NewEventSet(evts []*BillingEvent) (*EventSet, error) {
	for _, e := range evts {
		if e.SubscriptionID == "" {
			return nil, ierr.NewError("billing event without subscription").
				WithHint("Billing events must carry a subscription id").
				Mark(ierr.ErrValidation)
		}
		if e.BillingPeriod.MonthCount() > 0 {
			if err := e.BillingMode.Validate(); err != nil {
				return nil, err
			}
			if err := types.ValidateBillCycleDay(e.BillCycleDayLocal); err != nil {
				return nil, err
			}
		}
	}

	ordered := make([]*BillingEvent, len(evts))
	copy(ordered, evts)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].EffectiveDate.Equal(ordered[j].EffectiveDate) {
			return ordered[i].EffectiveDate.Before(ordered[j].EffectiveDate)
		}
		return ordered[i].SubscriptionID < ordered[j].SubscriptionID
	})

	return &EventSet{events: ordered}, nil
}

// Size returns the number of events in the set.
func (s *EventSet) Size() int {
	return len(s.events)
}

// Events returns the ordered events. The slice must not be mutated.
func (s *EventSet) Events() []*BillingEvent {
	return s.events
}

// NextForSubscription returns the next event after index i that belongs to
// the same subscription as the event at i, or nil when the event at i is the
// subscription's last.
func (s *EventSet) NextForSubscription(i int) *BillingEvent {
	cur := s.events[i]
	for j := i + 1; j < len(s.events); j++ {
		if s.events[j].SubscriptionID == cur.SubscriptionID {
			return s.events[j]
		}
	}
	return nil
}
