package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

type sweeper struct {
	repo     domain.RetentionRepository
	logger   infra.Logger
	interval time.Duration
	now      func() time.Time
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	pg := repo.NewGenerationRepository(infra.NewSQLRunner(pool, logger))
	if err := pg.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: ensure schema failed")
	}

	s := &sweeper{repo: pg, logger: logger, interval: cfg.RetentionSweep, now: time.Now}
	s.Run(ctx)
	logger.Info().Msg("worker: stopped")
}

// Run sweeps once immediately and then every interval until ctx ends.
func (s *sweeper) Run(ctx context.Context) {
	interval := s.interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	s.logger.Info().Dur("interval", interval).Msg("worker: retention sweeper started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *sweeper) sweep(ctx context.Context) {
	n, err := s.repo.PurgeExpired(ctx, s.now())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("worker: purge expired generations failed")
		}
		return
	}
	if n > 0 {
		s.logger.Info().Int64("purged", n).Msg("worker: purged expired anonymous generations")
	}
}
