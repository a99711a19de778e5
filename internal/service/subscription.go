package service

import (
	"context"
	"time"

	"github.com/chronobill/chronobill/internal/domain/events"
	"github.com/chronobill/chronobill/internal/domain/subscription"
	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/chronobill/chronobill/internal/types"
)

// SubscriptionService owns the lifecycle of subscriptions and their
// append-only event timelines. Every mutation serializes through one write
// transaction per subscription, and every lifecycle operation is validated
// against the rebuilt timeline before its event is appended.
type SubscriptionService interface {
	CreateBundle(ctx context.Context, params CreateBundleParams) (*subscription.Bundle, error)
	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*subscription.Subscription, error)

	ChangePlan(ctx context.Context, params ChangePlanParams) error
	EnterPhase(ctx context.Context, subscriptionID, phaseName string, effectiveDate time.Time) error
	Cancel(ctx context.Context, subscriptionID string, effectiveDate time.Time) error
	Uncancel(ctx context.Context, subscriptionID string) error
	ReCreate(ctx context.Context, params ReCreateParams) error

	// Transfer closes the subscription and reopens it under the destination
	// bundle as a new subscription whose timeline starts with a TRANSFER
	// event carrying the plan in effect at the transfer date.
	Transfer(ctx context.Context, params TransferParams) (*subscription.Subscription, error)
	// MigrateBilling marks the point where billing ownership moved onto this
	// system. Invoicing derives nothing before the migration event.
	MigrateBilling(ctx context.Context, subscriptionID string, effectiveDate time.Time) error

	// RepairTimeline replaces the subscription's active event set with a new
	// version built from the given specs. Deactivation of the old version and
	// insertion of the new one are atomic; the new set is validated by a full
	// rebuild before anything is written.
	RepairTimeline(ctx context.Context, subscriptionID string, specs []RepairEventSpec) error

	GetTimeline(ctx context.Context, subscriptionID string) (*subscription.Timeline, error)
}

type CreateBundleParams struct {
	ExternalKey string
	AccountID   string
	StartDate   time.Time
}

type CreateSubscriptionParams struct {
	BundleID      string
	Category      types.SubscriptionCategory
	StartDate     time.Time
	BillCycleDay  int
	PlanName      string
	PhaseName     string
	PriceListName string

	// EventType defaults to CREATE; transfers and entitlement migrations
	// seed the timeline with their own opener type.
	EventType types.SubscriptionEventType
}

type ChangePlanParams struct {
	SubscriptionID string
	PlanName       string
	PhaseName      string
	PriceListName  string
	EffectiveDate  time.Time
}

type TransferParams struct {
	SubscriptionID      string
	DestinationBundleID string
	EffectiveDate       time.Time
}

type ReCreateParams struct {
	SubscriptionID string
	PlanName       string
	PhaseName      string
	PriceListName  string
	EffectiveDate  time.Time
}

// RepairEventSpec is one event of a replacement timeline version. Ordering
// and version tags are assigned by the repair itself.
type RepairEventSpec struct {
	EventType     types.SubscriptionEventType
	RequestedDate time.Time
	EffectiveDate time.Time
	PlanName      string
	PhaseName     string
	PriceListName string
}

type subscriptionService struct {
	ServiceParams
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{ServiceParams: params}
}

func (s *subscriptionService) CreateBundle(ctx context.Context, params CreateBundleParams) (*subscription.Bundle, error) {
	if params.ExternalKey == "" || params.AccountID == "" {
		return nil, ierr.NewError("bundle requires an external key and account").
			WithHint("External key and account id are required").
			Mark(ierr.ErrValidation)
	}

	now := s.now().Now()
	bundle := &subscription.Bundle{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BUNDLE),
		ExternalKey: params.ExternalKey,
		AccountID:   params.AccountID,
		StartDate:   params.StartDate.UTC(),
		BaseModel:   types.GetDefaultBaseModel(ctx),
	}
	if bundle.StartDate.IsZero() {
		bundle.StartDate = now
	}

	if err := s.SubRepo.CreateBundle(ctx, bundle); err != nil {
		return nil, err
	}
	s.Logger.Infow("created bundle", "bundle_id", bundle.ID, "external_key", bundle.ExternalKey)
	return bundle, nil
}

func (s *subscriptionService) CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*subscription.Subscription, error) {
	if err := types.ValidateBillCycleDay(params.BillCycleDay); err != nil {
		return nil, err
	}
	if params.Category == "" {
		params.Category = types.SubscriptionCategoryBase
	}
	if err := params.Category.Validate(); err != nil {
		return nil, err
	}
	opener := params.EventType
	if opener == "" {
		opener = types.SubscriptionEventCreate
	}
	if !opener.OpensChain() ||
		opener == types.SubscriptionEventReCreate ||
		opener == types.SubscriptionEventUncancel ||
		opener == types.SubscriptionEventMigrateBilling {
		return nil, ierr.NewError("event type cannot open a subscription").
			WithHintf("%s is not a valid first event", opener).
			Mark(ierr.ErrInvalidOperation)
	}

	bundle, err := s.SubRepo.GetBundle(ctx, params.BundleID)
	if err != nil {
		return nil, err
	}

	now := s.now().Now()
	sub := &subscription.Subscription{
		ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		BundleID:             bundle.ID,
		Category:             params.Category,
		StartDate:            params.StartDate.UTC(),
		BundleStartDate:      bundle.StartDate,
		CurrentActiveVersion: 1,
		BillCycleDayLocal:    params.BillCycleDay,
		BaseModel:            types.GetDefaultBaseModel(ctx),
	}

	err = s.tx().WithTx(ctx, func(ctx context.Context) error {
		ordering, err := s.EventRepo.NextTotalOrdering(ctx)
		if err != nil {
			return err
		}
		evt, err := events.NewSubscriptionEvent(events.NewSubscriptionEventParams{
			SubscriptionID: sub.ID,
			EventType:      opener,
			RequestedDate:  params.StartDate,
			EffectiveDate:  params.StartDate,
			PlanName:       params.PlanName,
			PhaseName:      params.PhaseName,
			PriceListName:  params.PriceListName,
			ActiveVersion:  1,
			TotalOrdering:  ordering,
			Now:            now,
		})
		if err != nil {
			return err
		}
		if err := s.SubRepo.Create(ctx, sub); err != nil {
			return err
		}
		return s.EventRepo.AppendEvents(ctx, []*events.SubscriptionEvent{evt})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("created subscription",
		"subscription_id", sub.ID,
		"bundle_id", sub.BundleID,
		"plan_name", params.PlanName,
		"bill_cycle_day", sub.BillCycleDayLocal,
	)
	return sub, nil
}

func (s *subscriptionService) ChangePlan(ctx context.Context, params ChangePlanParams) error {
	return s.appendLifecycleEvent(ctx, params.SubscriptionID, lifecycleEvent{
		EventType:     types.SubscriptionEventChange,
		EffectiveDate: params.EffectiveDate,
		PlanName:      params.PlanName,
		PhaseName:     params.PhaseName,
		PriceListName: params.PriceListName,
		requireOpen:   true,
	})
}

func (s *subscriptionService) EnterPhase(ctx context.Context, subscriptionID, phaseName string, effectiveDate time.Time) error {
	return s.appendLifecycleEvent(ctx, subscriptionID, lifecycleEvent{
		EventType:     types.SubscriptionEventPhase,
		EffectiveDate: effectiveDate,
		PhaseName:     phaseName,
		requireOpen:   true,
	})
}

func (s *subscriptionService) Cancel(ctx context.Context, subscriptionID string, effectiveDate time.Time) error {
	return s.appendLifecycleEvent(ctx, subscriptionID, lifecycleEvent{
		EventType:     types.SubscriptionEventCancel,
		EffectiveDate: effectiveDate,
		requireOpen:   true,
	})
}

// Uncancel removes a cancel that has not yet taken effect by deactivating its
// event row. A cancel already in effect cannot be undone this way; the
// subscription has to be re-created.
func (s *subscriptionService) Uncancel(ctx context.Context, subscriptionID string) error {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	now := s.now().Now()

	return s.tx().WithTx(ctx, func(ctx context.Context) error {
		active, err := s.EventRepo.GetActiveEvents(ctx, subscriptionID)
		if err != nil {
			return err
		}
		for _, evt := range events.ActiveSet(active, sub.CurrentActiveVersion) {
			if evt.EventType == types.SubscriptionEventCancel && evt.EffectiveDate.After(now) {
				s.Logger.Infow("removing pending cancel",
					"subscription_id", subscriptionID,
					"event_id", evt.ID,
					"cancel_effective", evt.EffectiveDate,
				)
				return s.EventRepo.DeactivateEvent(ctx, evt.ID)
			}
		}
		return ierr.NewError("nothing to uncancel").
			WithHintf("subscription %s has no pending cancel", subscriptionID).
			Mark(ierr.ErrInvalidOperation)
	})
}

func (s *subscriptionService) ReCreate(ctx context.Context, params ReCreateParams) error {
	return s.appendLifecycleEvent(ctx, params.SubscriptionID, lifecycleEvent{
		EventType:     types.SubscriptionEventReCreate,
		EffectiveDate: params.EffectiveDate,
		PlanName:      params.PlanName,
		PhaseName:     params.PhaseName,
		PriceListName: params.PriceListName,
		requireClosed: true,
	})
}

func (s *subscriptionService) Transfer(ctx context.Context, params TransferParams) (*subscription.Subscription, error) {
	source, err := s.SubRepo.Get(ctx, params.SubscriptionID)
	if err != nil {
		return nil, err
	}
	timeline, err := s.GetTimeline(ctx, params.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if timeline.CurrentState() != types.SubscriptionStateActive {
		return nil, ierr.NewError("subscription is not active").
			WithHintf("subscription %s cannot be transferred while cancelled", params.SubscriptionID).
			Mark(ierr.ErrInvalidOperation)
	}

	var dest *subscription.Subscription
	err = s.tx().WithTx(ctx, func(ctx context.Context) error {
		if err := s.Cancel(ctx, params.SubscriptionID, params.EffectiveDate); err != nil {
			return err
		}
		dest, err = s.CreateSubscription(ctx, CreateSubscriptionParams{
			BundleID:      params.DestinationBundleID,
			Category:      source.Category,
			StartDate:     params.EffectiveDate,
			BillCycleDay:  source.BillCycleDayLocal,
			PlanName:      timeline.Current.NextPlan,
			PhaseName:     timeline.Current.NextPhase,
			PriceListName: timeline.Current.NextPriceList,
			EventType:     types.SubscriptionEventTransfer,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("transferred subscription",
		"source_subscription_id", params.SubscriptionID,
		"destination_subscription_id", dest.ID,
		"destination_bundle_id", params.DestinationBundleID,
		"effective_date", params.EffectiveDate,
	)
	return dest, nil
}

func (s *subscriptionService) MigrateBilling(ctx context.Context, subscriptionID string, effectiveDate time.Time) error {
	timeline, err := s.GetTimeline(ctx, subscriptionID)
	if err != nil {
		return err
	}
	return s.appendLifecycleEvent(ctx, subscriptionID, lifecycleEvent{
		EventType:     types.SubscriptionEventMigrateBilling,
		EffectiveDate: effectiveDate,
		PlanName:      timeline.Current.NextPlan,
		PhaseName:     timeline.Current.NextPhase,
		PriceListName: timeline.Current.NextPriceList,
		requireOpen:   true,
	})
}

func (s *subscriptionService) RepairTimeline(ctx context.Context, subscriptionID string, specs []RepairEventSpec) error {
	if len(specs) == 0 {
		return ierr.NewError("repair requires at least one event").
			WithHint("A timeline cannot be repaired to an empty event set").
			Mark(ierr.ErrValidation)
	}

	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	now := s.now().Now()
	newVersion := sub.CurrentActiveVersion + 1

	return s.tx().WithTx(ctx, func(ctx context.Context) error {
		replacements := make([]*events.SubscriptionEvent, 0, len(specs))
		for _, spec := range specs {
			ordering, err := s.EventRepo.NextTotalOrdering(ctx)
			if err != nil {
				return err
			}
			requested := spec.RequestedDate
			if requested.IsZero() {
				requested = spec.EffectiveDate
			}
			evt, err := events.NewSubscriptionEvent(events.NewSubscriptionEventParams{
				SubscriptionID: subscriptionID,
				EventType:      spec.EventType,
				RequestedDate:  requested,
				EffectiveDate:  spec.EffectiveDate,
				PlanName:       spec.PlanName,
				PhaseName:      spec.PhaseName,
				PriceListName:  spec.PriceListName,
				ActiveVersion:  newVersion,
				TotalOrdering:  ordering,
				Now:            now,
			})
			if err != nil {
				return err
			}
			replacements = append(replacements, evt)
		}

		// a repaired set that cannot be replayed must never be written
		if _, err := subscription.RebuildTimeline(replacements, newVersion, now); err != nil {
			return err
		}

		if err := s.EventRepo.SwitchActiveVersion(ctx, subscriptionID, newVersion, replacements); err != nil {
			return err
		}
		if err := s.SubRepo.SetCurrentActiveVersion(ctx, subscriptionID, newVersion); err != nil {
			return err
		}
		s.Logger.Infow("repaired subscription timeline",
			"subscription_id", subscriptionID,
			"new_version", newVersion,
			"event_count", len(replacements),
		)
		return nil
	})
}

func (s *subscriptionService) GetTimeline(ctx context.Context, subscriptionID string) (*subscription.Timeline, error) {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	active, err := s.EventRepo.GetActiveEvents(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return subscription.RebuildTimeline(active, sub.CurrentActiveVersion, s.now().Now())
}

type lifecycleEvent struct {
	EventType     types.SubscriptionEventType
	EffectiveDate time.Time
	PlanName      string
	PhaseName     string
	PriceListName string

	requireOpen   bool
	requireClosed bool
}

// appendLifecycleEvent validates the operation against the rebuilt timeline
// at its effective date, then appends the event inside the subscription's
// write transaction.
func (s *subscriptionService) appendLifecycleEvent(ctx context.Context, subscriptionID string, op lifecycleEvent) error {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	now := s.now().Now()

	return s.tx().WithTx(ctx, func(ctx context.Context) error {
		active, err := s.EventRepo.GetActiveEvents(ctx, subscriptionID)
		if err != nil {
			return err
		}
		timeline, err := subscription.RebuildTimeline(active, sub.CurrentActiveVersion, now)
		if err != nil {
			return err
		}

		last := timeline.Transitions[len(timeline.Transitions)-1]
		chainOpen := last.NextState != types.SubscriptionStateCancelled
		if op.requireOpen && !chainOpen {
			return ierr.NewError("subscription is cancelled").
				WithHintf("%s requires an open subscription", op.EventType).
				Mark(ierr.ErrInvalidOperation)
		}
		if op.requireClosed && chainOpen {
			return ierr.NewError("subscription is still open").
				WithHintf("%s requires a cancelled subscription", op.EventType).
				Mark(ierr.ErrInvalidOperation)
		}
		if op.EffectiveDate.Before(last.EffectiveDate) {
			return ierr.NewError("effective date precedes the latest transition").
				WithHintf("effective date %s is before %s",
					op.EffectiveDate.Format(time.DateOnly), last.EffectiveDate.Format(time.DateOnly)).
				Mark(ierr.ErrInvalidDateSequence)
		}

		ordering, err := s.EventRepo.NextTotalOrdering(ctx)
		if err != nil {
			return err
		}
		evt, err := events.NewSubscriptionEvent(events.NewSubscriptionEventParams{
			SubscriptionID: subscriptionID,
			EventType:      op.EventType,
			RequestedDate:  now,
			EffectiveDate:  op.EffectiveDate,
			PlanName:       op.PlanName,
			PhaseName:      op.PhaseName,
			PriceListName:  op.PriceListName,
			ActiveVersion:  sub.CurrentActiveVersion,
			TotalOrdering:  ordering,
			Now:            now,
		})
		if err != nil {
			return err
		}
		if err := s.EventRepo.AppendEvents(ctx, []*events.SubscriptionEvent{evt}); err != nil {
			return err
		}

		s.Logger.Infow("appended subscription event",
			"subscription_id", subscriptionID,
			"event_type", op.EventType,
			"effective_date", op.EffectiveDate,
		)
		return nil
	})
}
