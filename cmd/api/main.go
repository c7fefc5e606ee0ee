package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"menugen/internal/batch"
	"menugen/internal/cache"
	"menugen/internal/http/handlers"
	httpapi "menugen/internal/http/httpapi"
	"menugen/internal/infra"
	"menugen/internal/pipeline"
	"menugen/internal/providers/genai"
	"menugen/internal/providers/image"
	"menugen/internal/storage"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage for uploads and generated artifacts, plus the snapshot dir for
	// cache persistence.
	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	snapshots, err := cache.NewSnapshotStore(cfg.SnapshotDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open snapshot store")
	}

	links := cache.NewShareLinkRegistry(cfg.ShareTTL)
	results := cache.NewResultsCache(cache.Options{
		Capacity:  cfg.CacheCapacity,
		TTL:       cfg.CacheTTL,
		Snapshots: snapshots,
		Links:     links,
		Uploads:   store,
		Logger:    logger,
	})

	// Gemini client; renders synthetic plates when no API key is configured.
	client, err := genai.NewClient(genai.Options{
		APIKey:   cfg.GeminiAPIKey,
		BaseURL:  cfg.GeminiBaseURL,
		Model:    cfg.GeminiModel,
		Logger:   &logger,
		CacheTTL: cfg.ProviderCacheTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build gemini client")
	}
	generator := image.NewGeminiGenerator(client, store, cfg.StorageBaseURL, logger)

	scheduler := batch.NewScheduler(batch.Config{
		Workers:      cfg.BatchWorkers,
		MaxRetries:   cfg.BatchMaxRetries,
		DequeueDelay: cfg.BatchDequeueDelay,
		RetryBackoff: cfg.BatchRetryBackoff,
	}, generator, logger)
	pipe := pipeline.New(scheduler, results, store, logger)
	scheduler.OnProgress(pipe.HandleProgress)
	scheduler.Start()
	defer scheduler.Stop()

	sweeper := cache.NewSweeper(results, links, cfg.SweepInterval, logger)

	app := handlers.NewApp(results, scheduler, pipe, store, cfg.StorageBaseURL, logger)
	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("server stopped")
}
