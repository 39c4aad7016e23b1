package generation

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
)

// Snapshot is the result of one status check.
type Snapshot struct {
	JobID        string                   `json:"jobId"`
	RecordID     string                   `json:"generationId,omitempty"`
	Status       domain.JobStatus         `json:"status"`
	OutputURL    string                   `json:"outputUrl,omitempty"`
	CompositeURL string                   `json:"compositeUrl,omitempty"`
	StoragePath  string                   `json:"storagePath,omitempty"`
	Error        string                   `json:"error,omitempty"`
	Record       *domain.GenerationRecord `json:"-"`
}

// Poller translates remote job status into record transitions. It keeps no
// schedule; callers decide when to check again.
type Poller struct {
	jobs   JobClient
	orch   *Orchestrator
	logger *infra.Logger
}

// NewPoller shares the orchestrator's job client.
func NewPoller(orch *Orchestrator, logger *infra.Logger) *Poller {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Poller{jobs: orch.jobs, orch: orch, logger: logger}
}

// CheckOnce performs exactly one remote query. A terminal status drives the
// matching transition on recordID before returning; other statuses have no
// side effects. Without recordID the record is resolved by job id, so a late
// status check still lands on its record. Safe to call repeatedly and
// concurrently.
func (p *Poller) CheckOnce(ctx context.Context, jobID, recordID string) (Snapshot, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Snapshot{}, domain.NewError(domain.KindInvalidInput, domain.CodeInvalidRequest, "job id is required", nil)
	}
	job, err := p.jobs.Poll(ctx, jobID)
	if err != nil {
		return Snapshot{JobID: jobID, RecordID: recordID}, err
	}
	snap := Snapshot{JobID: job.ID, RecordID: recordID, Status: job.Status, OutputURL: job.OutputURL, Error: job.Error}
	if !job.Status.Terminal() {
		return snap, nil
	}
	if recordID == "" {
		rec, err := p.orch.artifacts.GetRecordByJob(ctx, jobID)
		if errors.Is(err, domain.ErrRecordNotFound) {
			return snap, nil
		}
		if err != nil {
			return snap, err
		}
		recordID = rec.ID
		snap.RecordID = rec.ID
	}

	var res TransitionResult
	if job.Status == domain.JobStatusSucceeded {
		res, err = p.orch.Complete(ctx, recordID, job)
	} else {
		res, err = p.orch.Fail(ctx, recordID, job.Error)
	}
	if errors.Is(err, domain.ErrRecordNotFound) {
		// the output stays reachable through the job itself
		p.logger.Warn().Str("job_id", jobID).Str("record_id", recordID).Msg("terminal job for unknown record")
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	snap.Record = res.Record
	if rec := res.Record; rec != nil {
		snap.CompositeURL = domain.Deref(rec.CompositeImageURL)
		snap.StoragePath = domain.Deref(rec.CompositeStoragePath)
		if rec.Status == domain.GenerationStatusFailed && snap.Error == "" {
			snap.Error = domain.Deref(rec.ErrorMessage)
		}
	}
	return snap, nil
}

// CheckPending runs CheckOnce for up to batch processing records, at most
// concurrency at a time. Individual failures are logged and counted; only a
// failed listing aborts the pass.
func (p *Poller) CheckPending(ctx context.Context, batch, concurrency int) (checked, failed int, err error) {
	records, err := p.orch.artifacts.ListProcessing(ctx, time.Now(), batch)
	if err != nil {
		return 0, 0, err
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]error, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, rec := range records {
		if rec.JobID == "" {
			continue
		}
		g.Go(func() error {
			_, results[i] = p.CheckOnce(gctx, rec.JobID, rec.ID)
			return nil
		})
	}
	_ = g.Wait()
	for i, cerr := range results {
		if records[i].JobID == "" {
			continue
		}
		checked++
		if cerr != nil {
			failed++
			p.logger.Warn().Err(cerr).Str("record_id", records[i].ID).Str("job_id", records[i].JobID).Msg("status check failed")
		}
	}
	return checked, failed, ctx.Err()
}
