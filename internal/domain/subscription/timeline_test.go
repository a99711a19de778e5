package subscription

import (
	"testing"
	"time"

	"github.com/chronobill/chronobill/internal/domain/events"
	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/chronobill/chronobill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventSpec struct {
	eventType types.SubscriptionEventType
	effective time.Time
	ordering  int64
	plan      string
	phase     string
	version   int
	inactive  bool
}

func buildEvents(t *testing.T, specs []eventSpec) []*events.SubscriptionEvent {
	t.Helper()
	out := make([]*events.SubscriptionEvent, 0, len(specs))
	for _, s := range specs {
		version := s.version
		if version == 0 {
			version = 1
		}
		evt := &events.SubscriptionEvent{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_EVENT),
			SubscriptionID: "sub_timeline",
			EventType:      s.eventType,
			TotalOrdering:  s.ordering,
			RequestedDate:  s.effective,
			EffectiveDate:  s.effective,
			ProcessedDate:  s.effective,
			PlanName:       s.plan,
			PhaseName:      s.phase,
			PriceListName:  "DEFAULT",
			ActiveVersion:  version,
			IsActive:       !s.inactive,
		}
		out = append(out, evt)
	}
	return out
}

func TestRebuildTimeline(t *testing.T) {
	jan1 := types.NewDate(2011, time.January, 1)
	feb1 := types.NewDate(2011, time.February, 1)
	mar1 := types.NewDate(2011, time.March, 1)
	apr1 := types.NewDate(2011, time.April, 1)

	t.Run("create_phase_change_chain", func(t *testing.T) {
		evts := buildEvents(t, []eventSpec{
			{eventType: types.SubscriptionEventCreate, effective: jan1, ordering: 1, plan: "shotgun-monthly", phase: "trial"},
			{eventType: types.SubscriptionEventPhase, effective: feb1, ordering: 2, phase: "evergreen"},
			{eventType: types.SubscriptionEventChange, effective: mar1, ordering: 3, plan: "assault-rifle-monthly", phase: "evergreen"},
		})

		tl, err := RebuildTimeline(evts, 1, mar1)
		require.NoError(t, err)
		require.Len(t, tl.Transitions, 3)

		first := tl.Transitions[0]
		assert.Empty(t, first.PreviousPhase)
		assert.Empty(t, first.PreviousState)
		assert.Equal(t, "shotgun-monthly", first.NextPlan)
		assert.Equal(t, "trial", first.NextPhase)

		// each transition's previous equals its predecessor's next
		phase := tl.Transitions[1]
		assert.Equal(t, first.NextPhase, phase.PreviousPhase)
		assert.Equal(t, "shotgun-monthly", phase.NextPlan)
		assert.Equal(t, "evergreen", phase.NextPhase)

		change := tl.Transitions[2]
		assert.Equal(t, phase.NextPlan, change.PreviousPlan)
		assert.Equal(t, "assault-rifle-monthly", change.NextPlan)

		assert.Equal(t, change, tl.Current)
		assert.Equal(t, types.SubscriptionStateActive, tl.CurrentState())
	})

	t.Run("cancel_closes_chain", func(t *testing.T) {
		evts := buildEvents(t, []eventSpec{
			{eventType: types.SubscriptionEventCreate, effective: jan1, ordering: 1, plan: "shotgun-monthly", phase: "evergreen"},
			{eventType: types.SubscriptionEventCancel, effective: mar1, ordering: 2},
		})

		tl, err := RebuildTimeline(evts, 1, apr1)
		require.NoError(t, err)
		cancel := tl.Transitions[1]
		assert.Equal(t, types.SubscriptionStateCancelled, cancel.NextState)
		assert.Empty(t, cancel.NextPlan)
		assert.Empty(t, cancel.NextPhase)
		assert.Equal(t, "shotgun-monthly", cancel.PreviousPlan)
		assert.Equal(t, types.SubscriptionStateCancelled, tl.CurrentState())
	})

	t.Run("uncancel_reopens_with_previous_plan", func(t *testing.T) {
		evts := buildEvents(t, []eventSpec{
			{eventType: types.SubscriptionEventCreate, effective: jan1, ordering: 1, plan: "shotgun-monthly", phase: "evergreen"},
			{eventType: types.SubscriptionEventCancel, effective: feb1, ordering: 2},
			{eventType: types.SubscriptionEventUncancel, effective: mar1, ordering: 3},
		})

		tl, err := RebuildTimeline(evts, 1, apr1)
		require.NoError(t, err)
		reopened := tl.Transitions[2]
		// a reopen starts a fresh sub-chain with no predecessor
		assert.Empty(t, reopened.PreviousState)
		assert.Empty(t, reopened.PreviousPlan)
		assert.Equal(t, "shotgun-monthly", reopened.NextPlan)
		assert.Equal(t, "evergreen", reopened.NextPhase)
		assert.Equal(t, types.SubscriptionStateActive, tl.CurrentState())
	})

	t.Run("version_filtering", func(t *testing.T) {
		evts := buildEvents(t, []eventSpec{
			{eventType: types.SubscriptionEventCreate, effective: jan1, ordering: 1, plan: "shotgun-monthly", phase: "evergreen", inactive: true},
			{eventType: types.SubscriptionEventCancel, effective: feb1, ordering: 2, inactive: true},
			{eventType: types.SubscriptionEventCreate, effective: jan1, ordering: 3, plan: "shotgun-annual", phase: "evergreen", version: 2},
		})

		tl, err := RebuildTimeline(evts, 2, mar1)
		require.NoError(t, err)
		require.Len(t, tl.Transitions, 1)
		assert.Equal(t, "shotgun-annual", tl.Current.NextPlan)
	})

	t.Run("idempotent", func(t *testing.T) {
		evts := buildEvents(t, []eventSpec{
			{eventType: types.SubscriptionEventCreate, effective: jan1, ordering: 1, plan: "shotgun-monthly", phase: "trial"},
			{eventType: types.SubscriptionEventPhase, effective: feb1, ordering: 2, phase: "evergreen"},
		})

		tl1, err := RebuildTimeline(evts, 1, mar1)
		require.NoError(t, err)
		tl2, err := RebuildTimeline(evts, 1, mar1)
		require.NoError(t, err)
		assert.Equal(t, tl1.Transitions, tl2.Transitions)
		assert.Equal(t, tl1.Current, tl2.Current)
	})

	t.Run("duplicate_ordering_key_fails_fast", func(t *testing.T) {
		evts := buildEvents(t, []eventSpec{
			{eventType: types.SubscriptionEventCreate, effective: jan1, ordering: 1, plan: "shotgun-monthly", phase: "evergreen"},
			{eventType: types.SubscriptionEventChange, effective: feb1, ordering: 2, plan: "a", phase: "p"},
			{eventType: types.SubscriptionEventChange, effective: feb1, ordering: 2, plan: "b", phase: "p"},
		})

		_, err := RebuildTimeline(evts, 1, mar1)
		require.Error(t, err)
		assert.True(t, ierr.IsMalformedTimeline(err))
	})

	t.Run("change_before_create_fails_fast", func(t *testing.T) {
		evts := buildEvents(t, []eventSpec{
			{eventType: types.SubscriptionEventChange, effective: jan1, ordering: 1, plan: "shotgun-monthly", phase: "evergreen"},
		})

		_, err := RebuildTimeline(evts, 1, mar1)
		require.Error(t, err)
		assert.True(t, ierr.IsMalformedTimeline(err))
	})

	t.Run("change_after_cancel_fails_fast", func(t *testing.T) {
		evts := buildEvents(t, []eventSpec{
			{eventType: types.SubscriptionEventCreate, effective: jan1, ordering: 1, plan: "shotgun-monthly", phase: "evergreen"},
			{eventType: types.SubscriptionEventCancel, effective: feb1, ordering: 2},
			{eventType: types.SubscriptionEventChange, effective: mar1, ordering: 3, plan: "a", phase: "p"},
		})

		_, err := RebuildTimeline(evts, 1, apr1)
		require.Error(t, err)
		assert.True(t, ierr.IsMalformedTimeline(err))
	})

	t.Run("all_future_transitions_is_an_error", func(t *testing.T) {
		evts := buildEvents(t, []eventSpec{
			{eventType: types.SubscriptionEventCreate, effective: mar1, ordering: 1, plan: "shotgun-monthly", phase: "evergreen"},
		})

		_, err := RebuildTimeline(evts, 1, jan1)
		require.Error(t, err)
		assert.True(t, ierr.IsInvalidOperation(err))
	})

	t.Run("empty_active_set_is_malformed", func(t *testing.T) {
		_, err := RebuildTimeline(nil, 1, jan1)
		require.Error(t, err)
		assert.True(t, ierr.IsMalformedTimeline(err))
	})

	t.Run("same_day_events_ordered_by_total_ordering", func(t *testing.T) {
		evts := buildEvents(t, []eventSpec{
			{eventType: types.SubscriptionEventCreate, effective: jan1, ordering: 1, plan: "shotgun-monthly", phase: "evergreen"},
			{eventType: types.SubscriptionEventChange, effective: feb1, ordering: 5, plan: "second", phase: "evergreen"},
			{eventType: types.SubscriptionEventChange, effective: feb1, ordering: 3, plan: "first", phase: "evergreen"},
		})

		tl, err := RebuildTimeline(evts, 1, mar1)
		require.NoError(t, err)
		require.Len(t, tl.Transitions, 3)
		assert.Equal(t, "first", tl.Transitions[1].NextPlan)
		assert.Equal(t, "second", tl.Transitions[2].NextPlan)
		assert.Equal(t, "first", tl.Transitions[2].PreviousPlan)
	})
}
