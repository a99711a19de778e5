package events

import (
	"testing"
	"time"

	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/chronobill/chronobill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() NewSubscriptionEventParams {
	return NewSubscriptionEventParams{
		SubscriptionID: "sub_123",
		EventType:      types.SubscriptionEventCreate,
		RequestedDate:  types.NewDate(2011, time.February, 15),
		EffectiveDate:  types.NewDate(2011, time.February, 15),
		PlanName:       "shotgun-monthly",
		PhaseName:      "shotgun-monthly-evergreen",
		PriceListName:  "DEFAULT",
		ActiveVersion:  1,
		TotalOrdering:  1,
		Now:            types.NewDate(2011, time.February, 15),
	}
}

func TestNewSubscriptionEvent(t *testing.T) {
	t.Run("valid_create", func(t *testing.T) {
		evt, err := NewSubscriptionEvent(validParams())
		require.NoError(t, err)
		assert.NotEmpty(t, evt.ID)
		assert.True(t, evt.IsActive)
		assert.Equal(t, 1, evt.ActiveVersion)
		assert.Equal(t, types.SubscriptionEventCreate, evt.EventType)
	})

	t.Run("missing_subscription_id", func(t *testing.T) {
		params := validParams()
		params.SubscriptionID = ""
		_, err := NewSubscriptionEvent(params)
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("missing_plan_for_change", func(t *testing.T) {
		params := validParams()
		params.EventType = types.SubscriptionEventChange
		params.PlanName = ""
		_, err := NewSubscriptionEvent(params)
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("cancel_without_plan_is_valid", func(t *testing.T) {
		params := validParams()
		params.EventType = types.SubscriptionEventCancel
		params.PlanName = ""
		params.PhaseName = ""
		_, err := NewSubscriptionEvent(params)
		require.NoError(t, err)
	})

	t.Run("phase_requires_phase_name", func(t *testing.T) {
		params := validParams()
		params.EventType = types.SubscriptionEventPhase
		params.PhaseName = ""
		_, err := NewSubscriptionEvent(params)
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("create_in_the_future_rejected", func(t *testing.T) {
		params := validParams()
		params.EffectiveDate = types.NewDate(2011, time.February, 16)
		_, err := NewSubscriptionEvent(params)
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("transfer_in_the_future_rejected", func(t *testing.T) {
		params := validParams()
		params.EventType = types.SubscriptionEventTransfer
		params.EffectiveDate = types.NewDate(2011, time.March, 1)
		_, err := NewSubscriptionEvent(params)
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("change_in_the_future_allowed", func(t *testing.T) {
		params := validParams()
		params.EventType = types.SubscriptionEventChange
		params.EffectiveDate = types.NewDate(2011, time.March, 1)
		_, err := NewSubscriptionEvent(params)
		require.NoError(t, err)
	})

	t.Run("unassigned_total_ordering_rejected", func(t *testing.T) {
		params := validParams()
		params.TotalOrdering = 0
		_, err := NewSubscriptionEvent(params)
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})
}

func TestSortEvents(t *testing.T) {
	mk := func(effective time.Time, ordering int64) *SubscriptionEvent {
		return &SubscriptionEvent{EffectiveDate: effective, TotalOrdering: ordering}
	}

	evts := []*SubscriptionEvent{
		mk(types.NewDate(2011, time.March, 1), 7),
		mk(types.NewDate(2011, time.February, 15), 3),
		mk(types.NewDate(2011, time.March, 1), 5),
		mk(types.NewDate(2011, time.January, 1), 9),
	}
	SortEvents(evts)

	assert.Equal(t, int64(9), evts[0].TotalOrdering)
	assert.Equal(t, int64(3), evts[1].TotalOrdering)
	// same effective date; the lower sequence value wins
	assert.Equal(t, int64(5), evts[2].TotalOrdering)
	assert.Equal(t, int64(7), evts[3].TotalOrdering)
}

func TestActiveSet(t *testing.T) {
	evts := []*SubscriptionEvent{
		{ID: "evt_1", ActiveVersion: 1, IsActive: false},
		{ID: "evt_2", ActiveVersion: 1, IsActive: true},
		{ID: "evt_3", ActiveVersion: 2, IsActive: true},
		{ID: "evt_4", ActiveVersion: 2, IsActive: true},
	}

	active := ActiveSet(evts, 2)
	require.Len(t, active, 2)
	assert.Equal(t, "evt_3", active[0].ID)
	assert.Equal(t, "evt_4", active[1].ID)

	assert.Len(t, ActiveSet(evts, 1), 1)
}
