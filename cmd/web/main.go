package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/cache"
	"github.com/AdamBeresnev/yumcup/internal/config"
	"github.com/AdamBeresnev/yumcup/internal/db"
	"github.com/AdamBeresnev/yumcup/internal/discovery"
	"github.com/AdamBeresnev/yumcup/internal/logging"
	"github.com/AdamBeresnev/yumcup/internal/service"
	"github.com/AdamBeresnev/yumcup/internal/source"
	"github.com/AdamBeresnev/yumcup/internal/store"
	"github.com/AdamBeresnev/yumcup/internal/worker"
	"github.com/joho/godotenv"
)

func main() {
	evictCache := flag.Bool("evict-cache", false, "drop cached discovery results and exit")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Log())
	if envErr != nil {
		logging.Info().Msg("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.InitDB(ctx, cfg.DB())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB, db.NormalizeDriver(cfg.Database.Driver)); err != nil {
		logging.Fatal().Err(err).Msg("Failed to run migrations")
	}

	resultCache, closeCache := openCache(ctx, cfg)
	defer closeCache()

	kakao := source.Chain(source.LocalSearchAPI, cfg.Kakao.Timeout, cfg.Retry(), cfg.Breaker())
	google := source.Chain(source.EnrichmentAPI, cfg.Google.Timeout, cfg.Retry(), cfg.Breaker())
	search := source.NewLocalSearch(kakao, cfg.Kakao.BaseURL, cfg.Kakao.APIKey)
	enrichment := source.NewEnrichment(google, cfg.Google.BaseURL, cfg.Google.APIKey)

	pool := worker.New(cfg.Pool())
	places := store.NewPlaceStore(database, cfg.Discovery.StaleAfter)
	orchestrator := discovery.New(
		search,
		source.NewCachedEnrichment(enrichment, resultCache, cfg.Google.EnrichmentTTL),
		places,
		resultCache,
		pool,
		cfg.Orchestrator(),
	)

	if *evictCache {
		n, err := orchestrator.Evict(ctx)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to evict cache")
		}
		logging.Info().Int("keys", n).Msg("Discovery cache evicted")
		return
	}

	games := service.NewGameService(database, store.NewGameStore(database), places)
	locations, err := service.NewLocationGameService(games, orchestrator, cfg.LocationGame())
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid game configuration")
	}

	router := newRouter(&handlers{
		db:        database,
		games:     games,
		locations: locations,
		photoURL:  enrichment.PhotoURL,
	}, cfg)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("Server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("Server stopped")
		}
	case <-ctx.Done():
		logging.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("HTTP shutdown did not finish cleanly")
	}
	// The pool outlives the server so in-flight discovery requests can finish.
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Worker pool forced to stop")
	}
	logging.Info().Msg("Shutdown complete")
}

// openCache picks redis when configured and falls back to process memory.
func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, func()) {
	if cfg.Redis.URL != "" {
		r, err := cache.NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		logging.Info().Msg("Using redis result cache")
		return r, func() {
			if err := r.Close(); err != nil {
				logging.Warn().Err(err).Msg("Failed to close redis")
			}
		}
	}

	mem := cache.NewMemory()
	sweepCtx, cancel := context.WithCancel(ctx)
	go mem.RunSweeper(sweepCtx, cfg.Redis.SweepInterval)
	logging.Info().Msg("Using in-memory result cache")
	return mem, cancel
}
