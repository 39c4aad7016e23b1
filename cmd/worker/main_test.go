package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
)

type countingChecker struct {
	calls int
	err   error
}

func (c *countingChecker) CheckPending(ctx context.Context, batch, concurrency int) (int, int, error) {
	c.calls++
	return 2, 1, c.err
}

type countingSweeper struct{ calls int }

func (s *countingSweeper) Sweep(ctx context.Context) (int, error) {
	s.calls++
	return 1, nil
}

func TestTickSweepsPeriodically(t *testing.T) {
	checker := &countingChecker{}
	sweeper := &countingSweeper{}
	w := &jobWorker{ctx: context.Background(), logger: zerolog.New(io.Discard), checker: checker, sweeper: sweeper}

	for i := 0; i < sweepEvery+1; i++ {
		w.tick()
	}
	if checker.calls != sweepEvery+1 {
		t.Fatalf("expected %d checks, got %d", sweepEvery+1, checker.calls)
	}
	if sweeper.calls != 2 {
		t.Fatalf("expected sweep on first and eleventh tick, got %d", sweeper.calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	checker := &countingChecker{err: errors.New("db down")}
	w := &jobWorker{ctx: ctx, logger: zerolog.New(io.Discard), checker: checker, sweeper: &countingSweeper{}}
	cancel()

	if err := w.Run(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if checker.calls != 1 {
		t.Fatalf("expected one tick before stopping, got %d", checker.calls)
	}
}
