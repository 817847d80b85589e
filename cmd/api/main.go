package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/generation"
	"mediagen/internal/http/handlers"
	httpapi "mediagen/internal/http/httpapi"
	"mediagen/internal/infra"
	"mediagen/internal/infra/credentials"
	"mediagen/internal/infra/geoip"
	"mediagen/internal/middleware"
	"mediagen/internal/profile"
	"mediagen/internal/providers/fal"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		records generation.RecordStore
		reader  handlers.RecordReader
		pinger  handlers.Pinger
		creds   *credentials.Store
	)
	pool, err := infra.NewDBPool(ctx, cfg)
	switch {
	case err == nil:
		defer pool.Close()
		runner := infra.NewSQLRunner(pool, logger)
		pg := repo.NewGenerationRepository(runner)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("api: ensure schema failed")
		}
		records, reader, pinger = pg, pg, pool
		creds = credentials.NewStore(runner)
	case errors.Is(err, infra.ErrNoDatabase):
		logger.Warn().Msg("api: DATABASE_URL not set, keeping generation records in memory")
		mem := repo.NewGenerationMemoryRepository()
		records, reader = mem, mem
	default:
		logger.Fatal().Err(err).Msg("api: failed to connect database")
	}

	falKey, err := credentials.ResolveFalKey(ctx, cfg.FalAPIKey, creds)
	if err != nil {
		logger.Warn().Err(err).Msg("api: failed to load fal key from store")
	}
	falClient, err := fal.NewClient(fal.Options{
		APIKey:       falKey,
		BaseURL:      cfg.FalQueueURL,
		PollInterval: cfg.FalPollInterval,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure fal client")
	}
	if !falClient.Configured() {
		logger.Warn().Msg("api: fal key missing, every dispatch will fail")
	}

	var country middleware.CountryLookup
	geo, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	} else if geo != nil {
		defer geo.Close()
		country = geo.CountryCode
	}

	dispatcher := generation.NewDispatcher(generation.DispatcherOptions{
		Provider: falClient,
		Timeouts: generation.TimeoutPolicyFromConfig(cfg),
		Attempts: records,
		Observer: func(p generation.Progress) {
			logger.Debug().
				Str("request_id", p.GenerationID).
				Str("model", p.Model).
				Int("attempt", p.Sequence).
				Str("status", p.Status).
				Int("queue_position", p.QueuePosition).
				Strs("logs", p.Logs).
				Msg("dispatch: progress")
		},
		Logger: &logger,
	})
	normalizer := generation.NewNormalizer(profile.Default(), generation.NewImagePreparer(generation.ImageOptions{
		Inline:   cfg.InlineRemoteImages,
		MaxBytes: cfg.InlineImageMaxSize,
		Logger:   &logger,
	}))
	orchestrator := generation.NewOrchestrator(generation.OrchestratorOptions{
		Normalizer:    normalizer,
		Dispatcher:    dispatcher,
		Records:       records,
		Logger:        &logger,
		AnonRetention: cfg.AnonRetention,
	})

	app := handlers.NewApp(handlers.Options{
		Generator: orchestrator,
		Records:   reader,
		DB:        pinger,
		Logger:    &logger,
	})
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit:      cfg.RateLimitPerMin,
		Country:        country,
	})

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout+30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: shutdown failed")
	}
	logger.Info().Msg("api: stopped")
}
