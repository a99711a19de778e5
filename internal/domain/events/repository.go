package events

import (
	"context"
)

// Repository is the durable, append-only subscription event store.
//
// Writers to the same subscription are expected to serialize through the
// store's transactional boundary: a reader of GetActiveEvents must observe a
// fully consistent active version, never a partially applied bump.
type Repository interface {
	// NextTotalOrdering returns the next value of the process-wide monotonic
	// ordering sequence owned by the store.
	NextTotalOrdering(ctx context.Context) (int64, error)

	// AppendEvents durably appends new event rows. Rows are never updated in
	// place except for deactivation.
	AppendEvents(ctx context.Context, evts []*SubscriptionEvent) error

	// GetEvents returns every event row of a subscription across all
	// versions, in (effectiveDate, totalOrdering) order.
	GetEvents(ctx context.Context, subscriptionID string) ([]*SubscriptionEvent, error)

	// GetActiveEvents returns the active event set of a subscription in
	// (effectiveDate, totalOrdering) order.
	GetActiveEvents(ctx context.Context, subscriptionID string) ([]*SubscriptionEvent, error)

	// SwitchActiveVersion atomically deactivates every event of the
	// subscription's current version and appends the replacement rows tagged
	// with newVersion. Readers see either the old version fully or the new
	// version fully.
	SwitchActiveVersion(ctx context.Context, subscriptionID string, newVersion int, replacements []*SubscriptionEvent) error

	// DeactivateEvent marks a single event inactive within the current
	// version (ex an uncancel removing a still-pending cancel).
	DeactivateEvent(ctx context.Context, eventID string) error
}
