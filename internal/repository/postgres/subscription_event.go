package postgres

import (
	"context"
	"time"

	"github.com/chronobill/chronobill/internal/domain/events"
	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/chronobill/chronobill/internal/logger"
	"github.com/chronobill/chronobill/internal/postgres"
)

type subscriptionEventRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionEventRepository(db *postgres.DB, logger *logger.Logger) events.Repository {
	return &subscriptionEventRepository{db: db, logger: logger}
}

func (r *subscriptionEventRepository) NextTotalOrdering(ctx context.Context) (int64, error) {
	var next int64
	q := r.db.GetQuerier(ctx)
	err := q.GetContext(ctx, &next, `SELECT nextval('subscription_events_total_ordering_seq')`)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to advance the event ordering sequence").
			Mark(ierr.ErrDatabase)
	}
	return next, nil
}

func (r *subscriptionEventRepository) AppendEvents(ctx context.Context, evts []*events.SubscriptionEvent) error {
	if len(evts) == 0 {
		return nil
	}

	query := `
		INSERT INTO subscription_events (
			id, subscription_id, event_type, total_ordering,
			requested_date, effective_date, processed_date,
			plan_name, phase_name, price_list_name,
			active_version, is_active,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :subscription_id, :event_type, :total_ordering,
			:requested_date, :effective_date, :processed_date,
			:plan_name, :phase_name, :price_list_name,
			:active_version, :is_active,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		for _, evt := range evts {
			r.logger.Debugw("appending subscription event",
				"event_id", evt.ID,
				"subscription_id", evt.SubscriptionID,
				"event_type", evt.EventType,
				"effective_date", evt.EffectiveDate,
			)
			if _, err := r.db.NamedExecContext(ctx, query, evt); err != nil {
				return ierr.WithError(err).
					WithHint("Failed to append subscription event").
					WithReportableDetails(map[string]interface{}{
						"event_id":        evt.ID,
						"subscription_id": evt.SubscriptionID,
					}).
					Mark(ierr.ErrDatabase)
			}
		}
		return nil
	})
}

func (r *subscriptionEventRepository) GetEvents(ctx context.Context, subscriptionID string) ([]*events.SubscriptionEvent, error) {
	query := `
		SELECT * FROM subscription_events
		WHERE subscription_id = $1
		ORDER BY effective_date, total_ordering`

	var evts []*events.SubscriptionEvent
	q := r.db.GetQuerier(ctx)
	if err := q.SelectContext(ctx, &evts, query, subscriptionID); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read subscription events").
			WithReportableDetails(map[string]interface{}{
				"subscription_id": subscriptionID,
			}).
			Mark(ierr.ErrDatabase)
	}
	return evts, nil
}

func (r *subscriptionEventRepository) GetActiveEvents(ctx context.Context, subscriptionID string) ([]*events.SubscriptionEvent, error) {
	query := `
		SELECT * FROM subscription_events
		WHERE subscription_id = $1 AND is_active = TRUE
		ORDER BY effective_date, total_ordering`

	var evts []*events.SubscriptionEvent
	q := r.db.GetQuerier(ctx)
	if err := q.SelectContext(ctx, &evts, query, subscriptionID); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read the active subscription event set").
			WithReportableDetails(map[string]interface{}{
				"subscription_id": subscriptionID,
			}).
			Mark(ierr.ErrDatabase)
	}
	return evts, nil
}

// SwitchActiveVersion deactivates the current version's rows and inserts the
// replacement rows in one transaction, so a concurrent reader sees either
// version fully but never a mix.
func (r *subscriptionEventRepository) SwitchActiveVersion(ctx context.Context, subscriptionID string, newVersion int, replacements []*events.SubscriptionEvent) error {
	for _, evt := range replacements {
		if evt.ActiveVersion != newVersion || !evt.IsActive {
			return ierr.NewError("replacement events must carry the new active version").
				WithHintf("event %s is tagged version %d, expected %d", evt.ID, evt.ActiveVersion, newVersion).
				Mark(ierr.ErrInvalidOperation)
		}
	}

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.GetQuerier(ctx)
		_, err := q.ExecContext(ctx, `
			UPDATE subscription_events
			SET is_active = FALSE, updated_at = $2
			WHERE subscription_id = $1 AND is_active = TRUE`,
			subscriptionID, time.Now().UTC())
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to deactivate the previous event version").
				WithReportableDetails(map[string]interface{}{
					"subscription_id": subscriptionID,
					"new_version":     newVersion,
				}).
				Mark(ierr.ErrDatabase)
		}
		return r.AppendEvents(ctx, replacements)
	})
}

func (r *subscriptionEventRepository) DeactivateEvent(ctx context.Context, eventID string) error {
	q := r.db.GetQuerier(ctx)
	result, err := q.ExecContext(ctx, `
		UPDATE subscription_events
		SET is_active = FALSE, updated_at = $2
		WHERE id = $1 AND is_active = TRUE`,
		eventID, time.Now().UTC())
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to deactivate subscription event").
			WithReportableDetails(map[string]interface{}{"event_id": eventID}).
			Mark(ierr.ErrDatabase)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if affected == 0 {
		return ierr.NewError("event not found or already inactive").
			WithHintf("no active event with id %s", eventID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
