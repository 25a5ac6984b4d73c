// Package discovery turns a coordinate into a persisted, enriched candidate set for a game.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/apperr"
	"github.com/AdamBeresnev/yumcup/internal/cache"
	"github.com/AdamBeresnev/yumcup/internal/geo"
	"github.com/AdamBeresnev/yumcup/internal/logging"
	"github.com/AdamBeresnev/yumcup/internal/metrics"
	"github.com/AdamBeresnev/yumcup/internal/place"
	"github.com/AdamBeresnev/yumcup/internal/source"
	"github.com/AdamBeresnev/yumcup/internal/worker"
)

type LocalSearchSource interface {
	SearchPage(ctx context.Context, q source.Query, page int) (*source.Page, error)
}

type EnrichmentSource interface {
	Lookup(ctx context.Context, p place.Place) (*place.Enrichment, error)
}

type PlaceStore interface {
	FindByExternalIDs(ctx context.Context, externalIDs []string) ([]place.Place, error)
	SaveOrUpdate(ctx context.Context, places []place.Place) ([]place.Place, error)
}

type Config struct {
	// Prefix of every result cache key
	Purpose   string
	Precision uint
	CacheTTL  time.Duration
	// Pages fetched in parallel per window after the first page
	EagerPages int
	MaxPages   int
	// Upper bound for the whole enrichment barrier. Zero leaves it to the caller's context.
	EnrichmentBudget time.Duration
}

func DefaultConfig() Config {
	return Config{
		Purpose:          "restaurants",
		Precision:        geo.DefaultPrecision,
		CacheTTL:         time.Hour,
		EagerPages:       3,
		MaxPages:         source.MaxPages,
		EnrichmentBudget: 30 * time.Second,
	}
}

type Orchestrator struct {
	search LocalSearchSource
	enrich EnrichmentSource
	places PlaceStore
	cache  cache.Cache
	pool   *worker.Pool
	cfg    Config
}

func New(search LocalSearchSource, enrich EnrichmentSource, places PlaceStore, c cache.Cache, pool *worker.Pool, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.Purpose == "" {
		cfg.Purpose = def.Purpose
	}
	if cfg.Precision == 0 {
		cfg.Precision = def.Precision
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.EagerPages <= 0 {
		cfg.EagerPages = 1
	}
	if cfg.MaxPages <= 0 || cfg.MaxPages > source.MaxPages {
		cfg.MaxPages = source.MaxPages
	}
	if c == nil {
		c = cache.Noop{}
	}
	return &Orchestrator{search: search, enrich: enrich, places: places, cache: c, pool: pool, cfg: cfg}
}

// FindNearby returns exactly minimum distinct places around q, from the result cache when
// possible and from the upstream search otherwise.
func (o *Orchestrator) FindNearby(ctx context.Context, q source.Query, minimum int) ([]place.Place, error) {
	if minimum < 1 {
		return nil, fmt.Errorf("%w: minimum must be positive", apperr.ErrValidation)
	}
	start := time.Now()
	defer func() { metrics.DiscoveryDuration.Observe(time.Since(start).Seconds()) }()

	key := geo.CacheKey(o.cfg.Purpose, q.Latitude, q.Longitude, o.cfg.Precision, q.Radius)
	log := logging.Ctx(ctx).With().Str("cache_key", key).Logger()

	if places, ok := o.fromCache(ctx, key, minimum); ok {
		log.Debug().Int("places", len(places)).Msg("discovery served from cache")
		return places, nil
	}

	docs, err := o.collect(ctx, q, minimum)
	if err != nil {
		return nil, err
	}

	candidates := make([]place.Place, len(docs))
	for i, d := range docs {
		candidates[i] = d.ToPlace(q)
	}

	enriched, err := o.enrichAll(ctx, candidates)
	if err != nil {
		return nil, err
	}

	saved, err := o.places.SaveOrUpdate(ctx, enriched)
	if err != nil {
		return nil, fmt.Errorf("failed to save places: %w", err)
	}

	if len(saved) < minimum {
		return nil, &apperr.InsufficientResults{Found: len(saved), Required: minimum}
	}

	ids := make([]string, len(saved))
	for i := range saved {
		ids[i] = saved[i].ExternalID
	}
	if err := o.cache.Set(ctx, key, ids, o.cfg.CacheTTL); err != nil {
		log.Warn().Err(err).Msg("failed to write discovery cache")
	}

	log.Info().Int("places", len(saved)).Dur("took", time.Since(start)).Msg("discovery completed")
	return saved, nil
}

// fromCache serves a cached id list only if every id still resolves to a stored place.
func (o *Orchestrator) fromCache(ctx context.Context, key string, minimum int) ([]place.Place, bool) {
	var ids []string
	ok, err := o.cache.Get(ctx, key, &ids)
	if err != nil {
		metrics.DiscoveryCacheLookups.WithLabelValues("error").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("cache_key", key).Msg("discovery cache read failed")
		return nil, false
	}
	if !ok {
		metrics.DiscoveryCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	places, err := o.places.FindByExternalIDs(ctx, ids)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("cache_key", key).Msg("failed to load cached places")
		metrics.DiscoveryCacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}

	if len(places) != len(ids) || len(ids) < minimum {
		logging.Ctx(ctx).Info().Str("cache_key", key).Int("cached", len(ids)).Int("loaded", len(places)).
			Msg("evicting inconsistent discovery cache entry")
		if err := o.cache.Delete(ctx, key); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("cache_key", key).Msg("failed to evict discovery cache entry")
		}
		metrics.DiscoveryCacheLookups.WithLabelValues("evicted").Inc()
		return nil, false
	}

	metrics.DiscoveryCacheLookups.WithLabelValues("hit").Inc()
	return places[:minimum], true
}

// Evict drops every cached result set. Stored places are untouched.
func (o *Orchestrator) Evict(ctx context.Context) (int, error) {
	return o.cache.DeleteByPattern(ctx, geo.PurposePattern(o.cfg.Purpose))
}

func (o *Orchestrator) enrichAll(ctx context.Context, candidates []place.Place) ([]place.Place, error) {
	batchCtx := ctx
	if o.cfg.EnrichmentBudget > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, o.cfg.EnrichmentBudget)
		defer cancel()
	}

	tasks := make([]worker.Task[*place.Enrichment], len(candidates))
	for i := range candidates {
		p := candidates[i]
		tasks[i] = func(ctx context.Context) (*place.Enrichment, error) {
			return o.enrich.Lookup(ctx, p)
		}
	}

	results := worker.RunBatch(batchCtx, o.pool, tasks)

	out := make([]place.Place, len(candidates))
	for _, r := range results {
		p := candidates[r.Index]
		switch {
		case r.Err == nil:
			p.Apply(r.Value)
			if r.Value.Empty() {
				metrics.EnrichmentTasks.WithLabelValues("empty").Inc()
			} else {
				metrics.EnrichmentTasks.WithLabelValues("enriched").Inc()
			}
		case errors.Is(r.Err, worker.ErrTaskTimeout):
			metrics.EnrichmentTasks.WithLabelValues("timeout").Inc()
			logging.Ctx(ctx).Warn().Str("external_id", p.ExternalID).Msg("enrichment timed out, keeping base fields")
		default:
			metrics.EnrichmentTasks.WithLabelValues("error").Inc()
			logging.Ctx(ctx).Warn().Err(r.Err).Str("external_id", p.ExternalID).Msg("enrichment failed, keeping base fields")
		}
		out[r.Index] = p
	}

	// Single tasks degrade on their own; losing the whole batch deadline does not.
	if ctx.Err() == nil && errors.Is(batchCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %d candidates", apperr.ErrEnrichmentTimeout, len(candidates))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
