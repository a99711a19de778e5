package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"

	"github.com/chronobill/chronobill/internal/domain/invoice"
	"github.com/chronobill/chronobill/internal/domain/subscription"
	"github.com/chronobill/chronobill/internal/types"
)

// InvoiceService runs invoice item generation. A run is pure computation per
// subscription; parallelism across subscriptions is safe because no state is
// shared between them.
type InvoiceService interface {
	// GenerateItems computes the billable invoice items of one subscription
	// up to targetDate and advances its charged through boundary.
	GenerateItems(ctx context.Context, subscriptionID string, targetDate time.Time) (*InvoiceRunResult, error)

	// GenerateItemsForSubscriptions runs generation for each subscription,
	// fanning out across a bounded worker pool. Any failure aborts the run.
	GenerateItemsForSubscriptions(ctx context.Context, subscriptionIDs []string, targetDate time.Time) ([]*InvoiceRunResult, error)

	// GenerateItemsForBundle runs generation for every subscription of a
	// bundle.
	GenerateItemsForBundle(ctx context.Context, bundleID string, targetDate time.Time) ([]*InvoiceRunResult, error)

	// PreviewItems computes items without updating any state. The optional
	// cutoff drops items already settled by an earlier run.
	PreviewItems(ctx context.Context, subscriptionID string, cutoffDate *time.Time, targetDate time.Time) ([]*invoice.InvoiceItem, error)
}

// InvoiceRunResult is the outcome of one subscription's generation pass.
type InvoiceRunResult struct {
	SubscriptionID string

	// InvoiceNumber is a short human-readable reference, assigned only when
	// the run produced items.
	InvoiceNumber string
	Items         []*invoice.InvoiceItem

	// ChargedThroughDate is the boundary the run advanced to, the latest
	// period end among the generated items.
	ChargedThroughDate *time.Time
}

type invoiceService struct {
	ServiceParams
	billingEvents BillingEventService
}

func NewInvoiceService(params ServiceParams) InvoiceService {
	return &invoiceService{
		ServiceParams: params,
		billingEvents: NewBillingEventService(params),
	}
}

func (s *invoiceService) GenerateItems(ctx context.Context, subscriptionID string, targetDate time.Time) (*InvoiceRunResult, error) {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	items, err := s.PreviewItems(ctx, subscriptionID, sub.ChargedThroughDate, targetDate)
	if err != nil {
		return nil, err
	}

	result := &InvoiceRunResult{
		SubscriptionID: subscriptionID,
		Items:          items,
	}
	if len(items) > 0 {
		result.InvoiceNumber = types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_INVOICE)
	}
	boundary := latestPeriodEnd(items)
	if boundary == nil {
		return result, nil
	}

	// Never pull the boundary backward; an older concurrent run must not
	// undo a newer one.
	if sub.ChargedThroughDate == nil || boundary.After(*sub.ChargedThroughDate) {
		if err := s.SubRepo.UpdateChargedThroughDate(ctx, subscriptionID, *boundary); err != nil {
			return nil, err
		}
		result.ChargedThroughDate = boundary
	} else {
		result.ChargedThroughDate = sub.ChargedThroughDate
	}

	s.Logger.Infow("generated invoice items",
		"request_id", types.GetRequestID(ctx),
		"subscription_id", subscriptionID,
		"item_count", len(items),
		"charged_through", result.ChargedThroughDate,
	)
	return result, nil
}

func (s *invoiceService) GenerateItemsForSubscriptions(ctx context.Context, subscriptionIDs []string, targetDate time.Time) ([]*InvoiceRunResult, error) {
	if len(subscriptionIDs) == 0 {
		return []*InvoiceRunResult{}, nil
	}

	maxParallel := s.Config.Billing.MaxParallelSubscriptions
	if maxParallel < 1 {
		maxParallel = 1
	}

	results := make([]*InvoiceRunResult, len(subscriptionIDs))
	p := pool.New().
		WithErrors().
		WithContext(ctx).
		WithMaxGoroutines(maxParallel)
	for i, id := range subscriptionIDs {
		i, id := i, id
		p.Go(func(ctx context.Context) error {
			result, err := s.GenerateItems(ctx, id, targetDate)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *invoiceService) GenerateItemsForBundle(ctx context.Context, bundleID string, targetDate time.Time) ([]*InvoiceRunResult, error) {
	subs, err := s.SubRepo.GetByBundle(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	ids := lo.Map(subs, func(sub *subscription.Subscription, _ int) string {
		return sub.ID
	})
	return s.GenerateItemsForSubscriptions(ctx, ids, targetDate)
}

func (s *invoiceService) PreviewItems(ctx context.Context, subscriptionID string, cutoffDate *time.Time, targetDate time.Time) ([]*invoice.InvoiceItem, error) {
	set, err := s.billingEvents.BuildEventSet(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return invoice.AssembleInvoiceItems(set, cutoffDate, targetDate)
}

func latestPeriodEnd(items []*invoice.InvoiceItem) *time.Time {
	ends := lo.FilterMap(items, func(item *invoice.InvoiceItem, _ int) (time.Time, bool) {
		if item.Type != invoice.InvoiceItemTypeRecurring || item.EndDate == nil {
			return time.Time{}, false
		}
		return *item.EndDate, true
	})
	if len(ends) == 0 {
		return nil
	}
	latest := lo.MaxBy(ends, func(a, b time.Time) bool {
		return a.After(b)
	})
	return &latest
}
