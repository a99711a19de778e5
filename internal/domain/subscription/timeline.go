package subscription

import (
	"time"

	"github.com/chronobill/chronobill/internal/domain/events"
	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/chronobill/chronobill/internal/types"
)

// Transition is one link of the rebuilt subscription state chain.
type Transition struct {
	EventID        string
	SubscriptionID string
	EffectiveDate  time.Time
	RequestedDate  time.Time
	TransitionType types.SubscriptionEventType
	TotalOrdering  int64

	// Previous* are empty on the first transition of a (sub-)chain: the
	// initial create/transfer/migrate, and any reopen after a cancel.
	PreviousState     types.SubscriptionState
	PreviousPlan      string
	PreviousPhase     string
	PreviousPriceList string

	// Next* are empty on cancel transitions, which close the chain until an
	// uncancel or re-create reopens it.
	NextState     types.SubscriptionState
	NextPlan      string
	NextPhase     string
	NextPriceList string
}

// Timeline is the result of replaying a subscription's active event set.
type Timeline struct {
	SubscriptionID string
	Transitions    []*Transition

	// Current is the transition in effect at the rebuild instant.
	Current *Transition
}

// CurrentState returns the entitlement state at the rebuild instant.
func (t *Timeline) CurrentState() types.SubscriptionState {
	return t.Current.NextState
}

// RebuildTimeline replays the active, ordered event set of one subscription
// into its chain of state transitions and resolves the state current at now.
//
// The function is pure and deterministic: rebuilding twice from the same
// active set yields identical transitions and current state. Malformed input
// (duplicate ordering keys, an event type unreachable at its sequence
// position, a version mismatch) is a data integrity fault and fails fast; no
// partial reconstruction is attempted.
func RebuildTimeline(evts []*events.SubscriptionEvent, currentActiveVersion int, now time.Time) (*Timeline, error) {
	active := events.ActiveSet(evts, currentActiveVersion)
	if len(active) == 0 {
		return nil, ierr.NewError("no active events").
			WithHintf("no active events for version %d", currentActiveVersion).
			Mark(ierr.ErrMalformedTimeline)
	}

	sorted := make([]*events.SubscriptionEvent, len(active))
	copy(sorted, active)
	events.SortEvents(sorted)

	subscriptionID := sorted[0].SubscriptionID

	var (
		prevState     types.SubscriptionState
		prevPlan      string
		prevPhase     string
		prevPriceList string

		// stashed at cancel time so an uncancel can restore the plan when the
		// uncancel row does not carry one
		planBeforeCancel      string
		phaseBeforeCancel     string
		priceListBeforeCancel string
	)

	transitions := make([]*Transition, 0, len(sorted))

	for i, cur := range sorted {
		if cur.SubscriptionID != subscriptionID {
			return nil, ierr.NewError("event from another subscription").
				WithHintf("event %s belongs to subscription %s, expected %s", cur.ID, cur.SubscriptionID, subscriptionID).
				Mark(ierr.ErrMalformedTimeline)
		}
		if i > 0 {
			prev := sorted[i-1]
			if cur.EffectiveDate.Equal(prev.EffectiveDate) && cur.TotalOrdering == prev.TotalOrdering {
				return nil, ierr.NewError("duplicate ordering key").
					WithHintf("events %s and %s share ordering key (%s, %d)",
						prev.ID, cur.ID, cur.EffectiveDate.Format(time.RFC3339), cur.TotalOrdering).
					Mark(ierr.ErrMalformedTimeline)
			}
		}

		if i == 0 {
			switch cur.EventType {
			case types.SubscriptionEventCreate,
				types.SubscriptionEventTransfer,
				types.SubscriptionEventMigrateEntitlement:
			default:
				return nil, unreachableTransition(cur, "chain must open with a create, transfer or entitlement migration")
			}
		}

		chainOpen := prevState == types.SubscriptionStateActive

		var (
			nextState     types.SubscriptionState
			nextPlan      string
			nextPhase     string
			nextPriceList string
			resetChain    bool
		)

		switch cur.EventType {
		case types.SubscriptionEventCreate,
			types.SubscriptionEventTransfer,
			types.SubscriptionEventMigrateEntitlement:
			if i > 0 {
				return nil, unreachableTransition(cur, "chain already started")
			}
			resetChain = true
			nextState = types.SubscriptionStateActive
			nextPlan = cur.PlanName
			nextPhase = cur.PhaseName
			nextPriceList = cur.PriceListName

		case types.SubscriptionEventReCreate:
			if chainOpen {
				return nil, unreachableTransition(cur, "re-create on an open chain")
			}
			resetChain = true
			nextState = types.SubscriptionStateActive
			nextPlan = cur.PlanName
			nextPhase = cur.PhaseName
			nextPriceList = cur.PriceListName

		case types.SubscriptionEventMigrateBilling:
			resetChain = true
			nextState = types.SubscriptionStateActive
			nextPlan = cur.PlanName
			nextPhase = cur.PhaseName
			nextPriceList = cur.PriceListName

		case types.SubscriptionEventUncancel:
			if chainOpen {
				return nil, unreachableTransition(cur, "uncancel on an open chain")
			}
			resetChain = true
			nextState = types.SubscriptionStateActive
			nextPlan = cur.PlanName
			nextPhase = cur.PhaseName
			nextPriceList = cur.PriceListName
			if nextPlan == "" {
				nextPlan = planBeforeCancel
				nextPhase = phaseBeforeCancel
				nextPriceList = priceListBeforeCancel
			}
			if nextPlan == "" {
				return nil, unreachableTransition(cur, "uncancel with no plan to restore")
			}

		case types.SubscriptionEventChange:
			if !chainOpen {
				return nil, unreachableTransition(cur, "change on a closed chain")
			}
			nextState = types.SubscriptionStateActive
			nextPlan = cur.PlanName
			nextPhase = cur.PhaseName
			nextPriceList = cur.PriceListName

		case types.SubscriptionEventPhase:
			if !chainOpen {
				return nil, unreachableTransition(cur, "phase on a closed chain")
			}
			nextState = types.SubscriptionStateActive
			nextPlan = prevPlan
			nextPhase = cur.PhaseName
			nextPriceList = prevPriceList

		case types.SubscriptionEventCancel:
			if !chainOpen {
				return nil, unreachableTransition(cur, "cancel on a closed chain")
			}
			nextState = types.SubscriptionStateCancelled
			planBeforeCancel = prevPlan
			phaseBeforeCancel = prevPhase
			priceListBeforeCancel = prevPriceList

		default:
			return nil, unreachableTransition(cur, "unknown event type")
		}

		tr := &Transition{
			EventID:        cur.ID,
			SubscriptionID: cur.SubscriptionID,
			EffectiveDate:  cur.EffectiveDate,
			RequestedDate:  cur.RequestedDate,
			TransitionType: cur.EventType,
			TotalOrdering:  cur.TotalOrdering,
			NextState:      nextState,
			NextPlan:       nextPlan,
			NextPhase:      nextPhase,
			NextPriceList:  nextPriceList,
		}
		if !resetChain {
			tr.PreviousState = prevState
			tr.PreviousPlan = prevPlan
			tr.PreviousPhase = prevPhase
			tr.PreviousPriceList = prevPriceList
		}
		transitions = append(transitions, tr)

		prevState = nextState
		prevPlan = nextPlan
		prevPhase = nextPhase
		prevPriceList = nextPriceList
	}

	var current *Transition
	for _, tr := range transitions {
		if !tr.EffectiveDate.After(now) {
			current = tr
		}
	}
	if current == nil {
		// every transition is in the future relative to the supplied clock;
		// surfaced to the caller rather than clamped
		return nil, ierr.NewError("timeline entirely in the future").
			WithHintf("first transition is effective %s, now is %s",
				transitions[0].EffectiveDate.Format(time.RFC3339), now.Format(time.RFC3339)).
			Mark(ierr.ErrInvalidOperation)
	}

	return &Timeline{
		SubscriptionID: subscriptionID,
		Transitions:    transitions,
		Current:        current,
	}, nil
}

func unreachableTransition(evt *events.SubscriptionEvent, reason string) error {
	return ierr.NewError("unreachable transition").
		WithHintf("event %s (%s) cannot occur at its position: %s", evt.ID, evt.EventType, reason).
		WithReportableDetails(map[string]any{
			"event_id":       evt.ID,
			"event_type":     evt.EventType,
			"effective_date": evt.EffectiveDate,
			"total_ordering": evt.TotalOrdering,
		}).
		Mark(ierr.ErrMalformedTimeline)
}
