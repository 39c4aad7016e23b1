package generation

import (
	"context"
	"time"
)

// MessageTimedOut is stored on records swept for staleness.
const MessageTimedOut = "generation timed out"

// Sweeper fails records stuck in processing. Abandoned polling otherwise
// leaves them there forever.
type Sweeper struct {
	orch       *Orchestrator
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

// NewSweeper builds a sweeper. staleAfter must be positive.
func NewSweeper(orch *Orchestrator, staleAfter time.Duration, batch int) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = 6 * time.Hour
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{orch: orch, staleAfter: staleAfter, batch: batch, now: time.Now}
}

// Sweep fails every processing record older than the threshold, up to one
// batch, and returns how many it transitioned.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	records, err := s.orch.artifacts.ListProcessing(ctx, cutoff, s.batch)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		res, err := s.orch.Fail(ctx, rec.ID, MessageTimedOut)
		if err != nil {
			s.orch.logger.Warn().Err(err).Str("record_id", rec.ID).Msg("stale record not swept")
			continue
		}
		if res.Outcome == OutcomeApplied {
			swept++
		}
	}
	if swept > 0 {
		s.orch.logger.Info().Int("swept", swept).Time("cutoff", cutoff).Msg("stale generations failed")
	}
	return swept, nil
}
