package catalog

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedCatalog memoizes plan phase lookups. Catalog reads are pure for a
// given (plan, phase, effective date), so entries only expire to bound memory
// and to pick up out-of-band catalog deployments.
type CachedCatalog struct {
	inner Catalog
	cache *gocache.Cache
}

func NewCachedCatalog(inner Catalog, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *CachedCatalog) GetPlanPhase(ctx context.Context, planName, phaseName string, effectiveDate time.Time) (*PlanPhase, error) {
	key := fmt.Sprintf("%s/%s/%s", planName, phaseName, effectiveDate.Format(time.DateOnly))
	if cached, ok := c.cache.Get(key); ok {
		return cached.(*PlanPhase), nil
	}

	phase, err := c.inner.GetPlanPhase(ctx, planName, phaseName, effectiveDate)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, phase, gocache.DefaultExpiration)
	return phase, nil
}
