package testutil

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chronobill/chronobill/internal/domain/events"
	ierr "github.com/chronobill/chronobill/internal/errors"
)

// InMemorySubscriptionEventStore implements events.Repository
type InMemorySubscriptionEventStore struct {
	mu       sync.RWMutex
	events   []*events.SubscriptionEvent
	sequence atomic.Int64
}

func NewInMemorySubscriptionEventStore() *InMemorySubscriptionEventStore {
	return &InMemorySubscriptionEventStore{
		events: make([]*events.SubscriptionEvent, 0),
	}
}

func (s *InMemorySubscriptionEventStore) NextTotalOrdering(_ context.Context) (int64, error) {
	return s.sequence.Add(1), nil
}

func (s *InMemorySubscriptionEventStore) AppendEvents(_ context.Context, evts []*events.SubscriptionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, evt := range evts {
		if evt == nil {
			return ierr.NewError("event cannot be nil").
				WithHint("Event cannot be nil").
				Mark(ierr.ErrValidation)
		}
		for _, existing := range s.events {
			if existing.ID == evt.ID {
				return ierr.NewError("event already exists").
					WithHintf("duplicate event id %s", evt.ID).
					Mark(ierr.ErrAlreadyExists)
			}
		}
	}
	for _, evt := range evts {
		s.events = append(s.events, copySubscriptionEvent(evt))
	}
	return nil
}

func (s *InMemorySubscriptionEventStore) GetEvents(_ context.Context, subscriptionID string) ([]*events.SubscriptionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(subscriptionID, false), nil
}

func (s *InMemorySubscriptionEventStore) GetActiveEvents(_ context.Context, subscriptionID string) ([]*events.SubscriptionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(subscriptionID, true), nil
}

func (s *InMemorySubscriptionEventStore) SwitchActiveVersion(_ context.Context, subscriptionID string, newVersion int, replacements []*events.SubscriptionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, evt := range replacements {
		if evt.ActiveVersion != newVersion || !evt.IsActive {
			return ierr.NewError("replacement events must carry the new active version").
				WithHintf("event %s is tagged version %d, expected %d", evt.ID, evt.ActiveVersion, newVersion).
				Mark(ierr.ErrInvalidOperation)
		}
	}

	for _, existing := range s.events {
		if existing.SubscriptionID == subscriptionID {
			existing.IsActive = false
		}
	}
	for _, evt := range replacements {
		s.events = append(s.events, copySubscriptionEvent(evt))
	}
	return nil
}

func (s *InMemorySubscriptionEventStore) DeactivateEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.events {
		if existing.ID == eventID && existing.IsActive {
			existing.IsActive = false
			return nil
		}
	}
	return ierr.NewError("event not found or already inactive").
		WithHintf("no active event with id %s", eventID).
		Mark(ierr.ErrNotFound)
}

func (s *InMemorySubscriptionEventStore) collect(subscriptionID string, activeOnly bool) []*events.SubscriptionEvent {
	out := make([]*events.SubscriptionEvent, 0)
	for _, evt := range s.events {
		if evt.SubscriptionID != subscriptionID {
			continue
		}
		if activeOnly && !evt.IsActive {
			continue
		}
		out = append(out, copySubscriptionEvent(evt))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EffectiveDate.Equal(out[j].EffectiveDate) {
			return out[i].EffectiveDate.Before(out[j].EffectiveDate)
		}
		return out[i].TotalOrdering < out[j].TotalOrdering
	})
	return out
}

func copySubscriptionEvent(evt *events.SubscriptionEvent) *events.SubscriptionEvent {
	if evt == nil {
		return nil
	}
	copied := *evt
	return &copied
}
