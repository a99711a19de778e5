package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/chronobill/chronobill/internal/domain/subscription"
	ierr "github.com/chronobill/chronobill/internal/errors"
	"github.com/chronobill/chronobill/internal/logger"
	"github.com/chronobill/chronobill/internal/postgres"
)

const pqUniqueViolation = "23505"

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, bundle_id, category, start_date, bundle_start_date,
			current_active_version, bill_cycle_day_local,
			charged_through_date, paid_through_date,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :bundle_id, :category, :start_date, :bundle_start_date,
			:current_active_version, :bill_cycle_day_local,
			:charged_through_date, :paid_through_date,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("creating subscription",
		"subscription_id", sub.ID,
		"bundle_id", sub.BundleID,
	)

	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		return r.wrapWriteError(err, "subscription", sub.ID)
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	q := r.db.GetQuerier(ctx)
	err := q.GetContext(ctx, &sub, `SELECT * FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("subscription not found").
				WithHintf("no subscription with id %s", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to read subscription").
			Mark(ierr.ErrDatabase)
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetByBundle(ctx context.Context, bundleID string) ([]*subscription.Subscription, error) {
	var subs []*subscription.Subscription
	q := r.db.GetQuerier(ctx)
	err := q.SelectContext(ctx, &subs, `
		SELECT * FROM subscriptions
		WHERE bundle_id = $1
		ORDER BY start_date, id`, bundleID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read bundle subscriptions").
			WithReportableDetails(map[string]interface{}{"bundle_id": bundleID}).
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}

func (r *subscriptionRepository) SetCurrentActiveVersion(ctx context.Context, id string, version int) error {
	q := r.db.GetQuerier(ctx)
	result, err := q.ExecContext(ctx, `
		UPDATE subscriptions
		SET current_active_version = $2, updated_at = $3
		WHERE id = $1`,
		id, version, time.Now().UTC())
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to move the active version pointer").
			WithReportableDetails(map[string]interface{}{
				"subscription_id": id,
				"version":         version,
			}).
			Mark(ierr.ErrDatabase)
	}
	return r.requireRow(result, id)
}

// UpdateChargedThroughDate advances the billing boundary. The monotonicity
// guard lives in the statement itself so a concurrent regression loses the
// race at the row rather than in application code.
func (r *subscriptionRepository) UpdateChargedThroughDate(ctx context.Context, id string, chargedThrough time.Time) error {
	q := r.db.GetQuerier(ctx)
	result, err := q.ExecContext(ctx, `
		UPDATE subscriptions
		SET charged_through_date = $2, updated_at = $3
		WHERE id = $1
		  AND (charged_through_date IS NULL OR charged_through_date <= $2)`,
		id, chargedThrough, time.Now().UTC())
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update charged through date").
			WithReportableDetails(map[string]interface{}{"subscription_id": id}).
			Mark(ierr.ErrDatabase)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if affected == 0 {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ierr.NewError("charged through date would move backward").
			WithHintf("subscription %s already charged past %s", id, chargedThrough.Format(time.DateOnly)).
			WithReportableDetails(map[string]interface{}{
				"subscription_id": id,
				"rejected_value":  chargedThrough.Format(time.DateOnly),
			}).
			Mark(ierr.ErrVersionConflict)
	}
	return nil
}

func (r *subscriptionRepository) CreateBundle(ctx context.Context, bundle *subscription.Bundle) error {
	query := `
		INSERT INTO bundles (
			id, external_key, account_id, start_date,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :external_key, :account_id, :start_date,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := r.db.NamedExecContext(ctx, query, bundle); err != nil {
		return r.wrapWriteError(err, "bundle", bundle.ID)
	}
	return nil
}

func (r *subscriptionRepository) GetBundle(ctx context.Context, id string) (*subscription.Bundle, error) {
	var bundle subscription.Bundle
	q := r.db.GetQuerier(ctx)
	err := q.GetContext(ctx, &bundle, `SELECT * FROM bundles WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("bundle not found").
				WithHintf("no bundle with id %s", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to read bundle").
			Mark(ierr.ErrDatabase)
	}
	return &bundle, nil
}

func (r *subscriptionRepository) GetBundleByExternalKey(ctx context.Context, externalKey string) (*subscription.Bundle, error) {
	var bundle subscription.Bundle
	q := r.db.GetQuerier(ctx)
	err := q.GetContext(ctx, &bundle, `SELECT * FROM bundles WHERE external_key = $1`, externalKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("bundle not found").
				WithHintf("no bundle with external key %s", externalKey).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to read bundle").
			Mark(ierr.ErrDatabase)
	}
	return &bundle, nil
}

func (r *subscriptionRepository) wrapWriteError(err error, entity, id string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ierr.WithError(err).
			WithHintf("%s %s already exists", entity, id).
			Mark(ierr.ErrAlreadyExists)
	}
	return ierr.WithError(err).
		WithHintf("Failed to create %s", entity).
		WithReportableDetails(map[string]interface{}{"id": id}).
		Mark(ierr.ErrDatabase)
}

func (r *subscriptionRepository) requireRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if affected == 0 {
		return ierr.NewError("subscription not found").
			WithHintf("no subscription with id %s", id).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
