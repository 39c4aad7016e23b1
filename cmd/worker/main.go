package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yazidnurfadil/mosque-hero/internal/bootstrap"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
)

// sweepEvery runs the stale sweep on every n-th tick.
const sweepEvery = 10

type pendingChecker interface {
	CheckPending(ctx context.Context, batch, concurrency int) (checked, failed int, err error)
}

type staleSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type jobWorker struct {
	ctx         context.Context
	logger      infra.Logger
	checker     pendingChecker
	sweeper     staleSweeper
	interval    time.Duration
	batch       int
	concurrency int
	ticks       int
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

	svc, err := bootstrap.Build(ctx, cfg, logger, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: wiring failed")
	}
	defer svc.Close()

	worker := &jobWorker{
		ctx:         ctx,
		logger:      logger,
		checker:     svc.Poller,
		sweeper:     svc.Sweeper,
		interval:    cfg.WorkerPollInterval,
		batch:       cfg.WorkerBatchSize,
		concurrency: cfg.WorkerConcurrency,
	}
	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// Run checks processing records on every tick until the context ends.
func (w *jobWorker) Run() error {
	interval := w.interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	w.logger.Info().Dur("interval", interval).Msg("worker: started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		w.tick()
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *jobWorker) tick() {
	checked, failed, err := w.checker.CheckPending(w.ctx, w.batch, w.concurrency)
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		w.logger.Error().Err(err).Msg("worker: pending check failed")
	case checked > 0:
		w.logger.Info().Int("checked", checked).Int("failed", failed).Msg("worker: pending checked")
	}

	w.ticks++
	if w.ticks%sweepEvery != 1 {
		return
	}
	if _, err := w.sweeper.Sweep(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error().Err(err).Msg("worker: sweep failed")
	}
}
