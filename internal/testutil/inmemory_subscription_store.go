package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chronobill/chronobill/internal/domain/subscription"
	ierr "github.com/chronobill/chronobill/internal/errors"
)

// InMemorySubscriptionStore implements subscription.Repository
type InMemorySubscriptionStore struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription.Subscription
	bundles       map[string]*subscription.Bundle
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		subscriptions: make(map[string]*subscription.Subscription),
		bundles:       make(map[string]*subscription.Bundle),
	}
}

func (s *InMemorySubscriptionStore) Create(_ context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").
			WithHint("Subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subscriptions[sub.ID]; exists {
		return ierr.NewError("subscription already exists").
			WithHintf("duplicate subscription id %s", sub.ID).
			Mark(ierr.ErrAlreadyExists)
	}
	s.subscriptions[sub.ID] = copySubscription(sub)
	return nil
}

func (s *InMemorySubscriptionStore) Get(_ context.Context, id string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sub, ok := s.subscriptions[id]; ok {
		return copySubscription(sub), nil
	}
	return nil, ierr.NewError("subscription not found").
		WithHintf("no subscription with id %s", id).
		Mark(ierr.ErrNotFound)
}

func (s *InMemorySubscriptionStore) GetByBundle(_ context.Context, bundleID string) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.BundleID == bundleID {
			out = append(out, copySubscription(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *InMemorySubscriptionStore) SetCurrentActiveVersion(_ context.Context, id string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return ierr.NewError("subscription not found").
			WithHintf("no subscription with id %s", id).
			Mark(ierr.ErrNotFound)
	}
	sub.CurrentActiveVersion = version
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemorySubscriptionStore) UpdateChargedThroughDate(_ context.Context, id string, chargedThrough time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return ierr.NewError("subscription not found").
			WithHintf("no subscription with id %s", id).
			Mark(ierr.ErrNotFound)
	}
	if sub.ChargedThroughDate != nil && chargedThrough.Before(*sub.ChargedThroughDate) {
		return ierr.NewError("charged through date would move backward").
			WithHintf("subscription %s already charged past %s", id, chargedThrough.Format(time.DateOnly)).
			Mark(ierr.ErrVersionConflict)
	}
	sub.ChargedThroughDate = &chargedThrough
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemorySubscriptionStore) CreateBundle(_ context.Context, bundle *subscription.Bundle) error {
	if bundle == nil {
		return ierr.NewError("bundle cannot be nil").
			WithHint("Bundle cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bundles[bundle.ID]; exists {
		return ierr.NewError("bundle already exists").
			WithHintf("duplicate bundle id %s", bundle.ID).
			Mark(ierr.ErrAlreadyExists)
	}
	for _, existing := range s.bundles {
		if existing.ExternalKey == bundle.ExternalKey {
			return ierr.NewError("bundle already exists").
				WithHintf("duplicate bundle external key %s", bundle.ExternalKey).
				Mark(ierr.ErrAlreadyExists)
		}
	}
	s.bundles[bundle.ID] = copyBundle(bundle)
	return nil
}

func (s *InMemorySubscriptionStore) GetBundle(_ context.Context, id string) (*subscription.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if bundle, ok := s.bundles[id]; ok {
		return copyBundle(bundle), nil
	}
	return nil, ierr.NewError("bundle not found").
		WithHintf("no bundle with id %s", id).
		Mark(ierr.ErrNotFound)
}

func (s *InMemorySubscriptionStore) GetBundleByExternalKey(_ context.Context, externalKey string) (*subscription.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, bundle := range s.bundles {
		if bundle.ExternalKey == externalKey {
			return copyBundle(bundle), nil
		}
	}
	return nil, ierr.NewError("bundle not found").
		WithHintf("no bundle with external key %s", externalKey).
		Mark(ierr.ErrNotFound)
}

func copySubscription(sub *subscription.Subscription) *subscription.Subscription {
	if sub == nil {
		return nil
	}
	copied := *sub
	if sub.ChargedThroughDate != nil {
		d := *sub.ChargedThroughDate
		copied.ChargedThroughDate = &d
	}
	if sub.PaidThroughDate != nil {
		d := *sub.PaidThroughDate
		copied.PaidThroughDate = &d
	}
	return &copied
}

func copyBundle(bundle *subscription.Bundle) *subscription.Bundle {
	if bundle == nil {
		return nil
	}
	copied := *bundle
	return &copied
}
