package events

import (
	"sort"
	"time"

	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/chronobill/chronobill/internal/types"
)

// SubscriptionEvent is one immutable row of the append-only subscription
// event log. Repair, transfer and migration never delete rows: they insert a
// new active version and deactivate the superseded one, so the full audit
// trail is always reconstructible.
type SubscriptionEvent struct {
	ID             string                      `db:"id" json:"id"`
	SubscriptionID string                      `db:"subscription_id" json:"subscription_id"`
	EventType      types.SubscriptionEventType `db:"event_type" json:"event_type"`

	// TotalOrdering is a process-wide monotonically increasing sequence value
	// assigned by the event store at insertion. It breaks ties between events
	// sharing an effective date.
	TotalOrdering int64 `db:"total_ordering" json:"total_ordering"`

	RequestedDate time.Time `db:"requested_date" json:"requested_date"`
	EffectiveDate time.Time `db:"effective_date" json:"effective_date"`
	ProcessedDate time.Time `db:"processed_date" json:"processed_date"`

	// PlanName and PhaseName are empty for CANCEL and UNCANCEL rows.
	PlanName      string `db:"plan_name" json:"plan_name"`
	PhaseName     string `db:"phase_name" json:"phase_name"`
	PriceListName string `db:"price_list_name" json:"price_list_name"`

	// ActiveVersion is the generation counter of the subscription's event set.
	// Events participate in current state iff ActiveVersion equals the
	// subscription's current active version and IsActive is true.
	ActiveVersion int  `db:"active_version" json:"active_version"`
	IsActive      bool `db:"is_active" json:"is_active"`

	types.BaseModel
}

// NewSubscriptionEventParams is the full flat attribute set used to build an
// event. Events are constructed as plain immutable values through
// NewSubscriptionEvent rather than mutated in place.
type NewSubscriptionEventParams struct {
	SubscriptionID string
	EventType      types.SubscriptionEventType
	RequestedDate  time.Time
	EffectiveDate  time.Time
	PlanName       string
	PhaseName      string
	PriceListName  string
	ActiveVersion  int
	TotalOrdering  int64

	// Now is the globally consistent clock instant of the request; it is
	// supplied by the caller, never read from the system clock here.
	Now time.Time
}

// NewSubscriptionEvent validates and builds an immutable subscription event.
func NewSubscriptionEvent(params NewSubscriptionEventParams) (*SubscriptionEvent, error) {
	if params.SubscriptionID == "" {
		return nil, ierr.NewError("subscription id is required").
			WithHint("Subscription id is required").
			Mark(ierr.ErrValidation)
	}
	if err := params.EventType.Validate(); err != nil {
		return nil, err
	}
	if params.EffectiveDate.IsZero() || params.RequestedDate.IsZero() {
		return nil, ierr.NewError("event dates are required").
			WithHint("Requested and effective dates are required").
			Mark(ierr.ErrValidation)
	}
	if params.ActiveVersion < 1 {
		return nil, ierr.NewError("active version must be positive").
			WithHintf("active version must be >= 1, got %d", params.ActiveVersion).
			Mark(ierr.ErrValidation)
	}
	if params.TotalOrdering < 1 {
		return nil, ierr.NewError("total ordering must be assigned").
			WithHint("Total ordering must be obtained from the event store sequence").
			Mark(ierr.ErrValidation)
	}
	if params.EventType.RequiresPlan() && params.PlanName == "" {
		return nil, ierr.NewError("plan name is required").
			WithHintf("event type %s requires a plan name", params.EventType).
			Mark(ierr.ErrValidation)
	}
	if params.EventType == types.SubscriptionEventPhase && params.PhaseName == "" {
		return nil, ierr.NewError("phase name is required").
			WithHint("Phase events must carry the next phase name").
			Mark(ierr.ErrValidation)
	}

	// A subscription must not come into existence in the future: the first
	// event of a created, transferred or migrated subscription is rejected
	// outright when its effective date is after the request instant. This is
	// a terminal input error, never retried.
	switch params.EventType {
	case types.SubscriptionEventCreate,
		types.SubscriptionEventTransfer,
		types.SubscriptionEventMigrateEntitlement:
		if !params.Now.IsZero() && params.EffectiveDate.After(params.Now) {
			return nil, ierr.NewError("subscription start in the future").
				WithHintf("effective date %s is after now %s",
					params.EffectiveDate.Format(time.RFC3339), params.Now.Format(time.RFC3339)).
				WithReportableDetails(map[string]any{
					"effective_date": params.EffectiveDate,
					"now":            params.Now,
				}).
				Mark(ierr.ErrValidation)
		}
	}

	processed := params.Now
	if processed.IsZero() {
		processed = time.Now().UTC()
	}

	return &SubscriptionEvent{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_EVENT),
		SubscriptionID: params.SubscriptionID,
		EventType:      params.EventType,
		TotalOrdering:  params.TotalOrdering,
		RequestedDate:  params.RequestedDate.UTC(),
		EffectiveDate:  params.EffectiveDate.UTC(),
		ProcessedDate:  processed.UTC(),
		PlanName:       params.PlanName,
		PhaseName:      params.PhaseName,
		PriceListName:  params.PriceListName,
		ActiveVersion:  params.ActiveVersion,
		IsActive:       true,
		BaseModel: types.BaseModel{
			Status:    types.StatusActive,
			CreatedAt: processed.UTC(),
			UpdatedAt: processed.UTC(),
		},
	}, nil
}

// OrderingKeyBefore reports whether e sorts strictly before other in the
// (effectiveDate, totalOrdering) chain order.
func (e *SubscriptionEvent) OrderingKeyBefore(other *SubscriptionEvent) bool {
	if !e.EffectiveDate.Equal(other.EffectiveDate) {
		return e.EffectiveDate.Before(other.EffectiveDate)
	}
	return e.TotalOrdering < other.TotalOrdering
}

// SortEvents orders events in place by (effectiveDate, totalOrdering).
func SortEvents(evts []*SubscriptionEvent) {
	sort.SliceStable(evts, func(i, j int) bool {
		return evts[i].OrderingKeyBefore(evts[j])
	})
}

// ActiveSet filters the events participating in the subscription's current
// state: active rows tagged with the current active version.
func ActiveSet(evts []*SubscriptionEvent, currentActiveVersion int) []*SubscriptionEvent {
	out := make([]*SubscriptionEvent, 0, len(evts))
	for _, e := range evts {
		if e.IsActive && e.ActiveVersion == currentActiveVersion {
			out = append(out, e)
		}
	}
	return out
}
