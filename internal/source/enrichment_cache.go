package source

import (
	"context"
	"fmt"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/cache"
	"github.com/AdamBeresnev/yumcup/internal/logging"
	"github.com/AdamBeresnev/yumcup/internal/place"
)

const DefaultEnrichmentTTL = 24 * time.Hour

type Enricher interface {
	Lookup(ctx context.Context, p place.Place) (*place.Enrichment, error)
}

// cachedLookup also records misses so places the upstream does not know are not asked again.
type cachedLookup struct {
	Found      bool              `json:"found"`
	Enrichment *place.Enrichment `json:"enrichment,omitempty"`
}

// CachedEnrichment memoises lookups by place identity and name. Cache failures fall through
// to the upstream.
type CachedEnrichment struct {
	next  Enricher
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedEnrichment(next Enricher, c cache.Cache, ttl time.Duration) *CachedEnrichment {
	if ttl <= 0 {
		ttl = DefaultEnrichmentTTL
	}
	return &CachedEnrichment{next: next, cache: c, ttl: ttl}
}

func enrichmentKey(p place.Place) string {
	return fmt.Sprintf("place:%s:%s", p.ExternalID, p.Name)
}

func (c *CachedEnrichment) Lookup(ctx context.Context, p place.Place) (*place.Enrichment, error) {
	key := enrichmentKey(p)

	var hit cachedLookup
	ok, err := c.cache.Get(ctx, key, &hit)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("enrichment cache read failed")
	} else if ok {
		if !hit.Found {
			return nil, nil
		}
		return hit.Enrichment, nil
	}

	e, err := c.next.Lookup(ctx, p)
	if err != nil {
		return nil, err
	}

	entry := cachedLookup{Found: e != nil, Enrichment: e}
	if err := c.cache.Set(ctx, key, entry, c.ttl); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("enrichment cache write failed")
	}
	return e, nil
}
