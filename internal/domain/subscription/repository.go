package subscription

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetByBundle(ctx context.Context, bundleID string) ([]*Subscription, error)

	// SetCurrentActiveVersion moves the subscription's active version
	// pointer. Must run inside the same transaction as the event store's
	// version switch so readers never observe a half applied bump.
	SetCurrentActiveVersion(ctx context.Context, id string, version int) error

	// UpdateChargedThroughDate advances the charged through boundary.
	// The update is rejected with a version conflict when the new value would
	// move the boundary backward; callers holding the per-subscription write
	// transaction re-read and retry the whole operation instead of patching.
	UpdateChargedThroughDate(ctx context.Context, id string, chargedThrough time.Time) error

	CreateBundle(ctx context.Context, bundle *Bundle) error
	GetBundle(ctx context.Context, id string) (*Bundle, error)
	GetBundleByExternalKey(ctx context.Context, externalKey string) (*Bundle, error)
}
