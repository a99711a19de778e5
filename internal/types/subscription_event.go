package types

import (
	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/samber/lo"
)

// SubscriptionEventType is the tag of a subscription event variant. The full
// event attribute set is flat; behavior differences are branches on this tag.
type SubscriptionEventType string

const (
	SubscriptionEventCreate             SubscriptionEventType = "CREATE"
	SubscriptionEventReCreate           SubscriptionEventType = "RE_CREATE"
	SubscriptionEventChange             SubscriptionEventType = "CHANGE"
	SubscriptionEventCancel             SubscriptionEventType = "CANCEL"
	SubscriptionEventUncancel           SubscriptionEventType = "UNCANCEL"
	SubscriptionEventPhase              SubscriptionEventType = "PHASE"
	SubscriptionEventTransfer           SubscriptionEventType = "TRANSFER"
	SubscriptionEventMigrateEntitlement SubscriptionEventType = "MIGRATE_ENTITLEMENT"
	SubscriptionEventMigrateBilling     SubscriptionEventType = "MIGRATE_BILLING"
)

func (t SubscriptionEventType) String() string {
	return string(t)
}

func (t SubscriptionEventType) Validate() error {
	allowed := []SubscriptionEventType{
		SubscriptionEventCreate,
		SubscriptionEventReCreate,
		SubscriptionEventChange,
		SubscriptionEventCancel,
		SubscriptionEventUncancel,
		SubscriptionEventPhase,
		SubscriptionEventTransfer,
		SubscriptionEventMigrateEntitlement,
		SubscriptionEventMigrateBilling,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid subscription event type").
			WithHint("Invalid subscription event type").
			WithReportableDetails(map[string]any{
				"event_type":    t,
				"allowed_types": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// OpensChain reports whether this event type starts a fresh transition
// sub-chain with no logical predecessor.
func (t SubscriptionEventType) OpensChain() bool {
	switch t {
	case SubscriptionEventCreate,
		SubscriptionEventReCreate,
		SubscriptionEventUncancel,
		SubscriptionEventTransfer,
		SubscriptionEventMigrateEntitlement,
		SubscriptionEventMigrateBilling:
		return true
	default:
		return false
	}
}

// RequiresPlan reports whether the event must carry a plan name. Cancel and
// uncancel rows may omit it (uncancel is backfilled from the pre-cancel state
// when appended); phase events only carry the next phase name.
func (t SubscriptionEventType) RequiresPlan() bool {
	switch t {
	case SubscriptionEventCancel, SubscriptionEventUncancel, SubscriptionEventPhase:
		return false
	default:
		return true
	}
}
