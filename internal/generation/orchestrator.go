// Package generation drives one photo from upload through inference and
// framing to a terminal record state.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
	"github.com/yazidnurfadil/mosque-hero/internal/storage"
)

const (
	DefaultMaxUploadBytes = 10 << 20

	// MessageNoOutput is stored when the job succeeded without an output URL.
	MessageNoOutput = "generation finished without output"
)

// JobClient is the remote inference capability.
type JobClient interface {
	Submit(ctx context.Context, sourceImageURL, prompt string) (domain.Job, error)
	Poll(ctx context.Context, jobID string) (domain.Job, error)
}

// Compositor frames a portrait.
type Compositor interface {
	Compose(ctx context.Context, portrait []byte, ft domain.FrameType) ([]byte, error)
}

// PromptResolver returns the inference instruction for a frame.
type PromptResolver interface {
	Prompt(ft domain.FrameType) (string, error)
}

// Artifacts is the paired blob and metadata store.
type Artifacts interface {
	PutObject(ctx context.Context, data []byte, suggestedName, contentType string, ownerScope *string) (storage.Object, error)
	DeleteObject(ctx context.Context, key string) error
	CreateRecord(ctx context.Context, in domain.NewGeneration) (*domain.GenerationRecord, error)
	UpdateRecord(ctx context.Context, id string, patch domain.GenerationPatch) (*domain.GenerationRecord, error)
	GetRecord(ctx context.Context, id string) (*domain.GenerationRecord, error)
	GetRecordByJob(ctx context.Context, jobID string) (*domain.GenerationRecord, error)
	QueryRecords(ctx context.Context, ownerScope *string, limit int) ([]domain.GenerationRecord, error)
	ListProcessing(ctx context.Context, olderThan time.Time, limit int) ([]domain.GenerationRecord, error)
	DeleteRecord(ctx context.Context, id string) (bool, error)
}

// TransitionObserver counts lifecycle transitions.
type TransitionObserver interface {
	RecordTransition(transition, outcome string)
}

// Outcome tells the caller what a transition actually did.
type Outcome string

const (
	OutcomeApplied  Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
	OutcomeNoop     Outcome = "noop"
	OutcomeLostRace Outcome = "stale"
)

// Degraded step names.
const (
	StepRecord    = "record"
	StepComposite = "composite"
)

// StartRequest is one submitted photo.
type StartRequest struct {
	Photo       []byte
	Filename    string
	ContentType string
	FrameType   string
	OwnerScope  *string
}

// StartResult is populated as far as the pipeline got. On a submission
// failure OriginalURL and OriginalKey are still set.
type StartResult struct {
	JobID       string           `json:"jobId,omitempty"`
	JobStatus   domain.JobStatus `json:"status,omitempty"`
	RecordID    string           `json:"generationId,omitempty"`
	FrameType   domain.FrameType `json:"frameType"`
	OriginalURL string           `json:"originalImageUrl,omitempty"`
	OriginalKey string           `json:"-"`
	Degraded    []string         `json:"degraded,omitempty"`
}

// TransitionResult is the record after Complete or Fail.
type TransitionResult struct {
	Record   *domain.GenerationRecord
	Outcome  Outcome
	Degraded []string
	// Cause holds the swallowed error of a degraded step.
	Cause error
}

// CompositeRequest frames an arbitrary portrait URL, optionally attaching the
// result to a record.
type CompositeRequest struct {
	PortraitURL string
	FrameType   string
	RecordID    string
}

// CompositeResult locates a stored composite.
type CompositeResult struct {
	URL         string                   `json:"compositeUrl"`
	StoragePath string                   `json:"storagePath"`
	Record      *domain.GenerationRecord `json:"-"`
}

// Options wires the orchestrator.
type Options struct {
	Jobs           JobClient
	Compositor     Compositor
	Prompts        PromptResolver
	Artifacts      Artifacts
	Fetcher        ImageFetcher
	Observer       TransitionObserver
	Logger         *infra.Logger
	MaxUploadBytes int64
}

// Orchestrator holds no per-generation state; concurrent calls for the same
// record converge through conditional metadata updates.
type Orchestrator struct {
	jobs      JobClient
	composer  Compositor
	prompts   PromptResolver
	artifacts Artifacts
	fetcher   ImageFetcher
	observer  TransitionObserver
	logger    *infra.Logger
	maxUpload int64
}

// New validates options.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("generation: job client is required")
	case opts.Compositor == nil:
		return nil, errors.New("generation: compositor is required")
	case opts.Prompts == nil:
		return nil, errors.New("generation: prompt resolver is required")
	case opts.Artifacts == nil:
		return nil, errors.New("generation: artifact store is required")
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(0, 0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &Orchestrator{
		jobs:      opts.Jobs,
		composer:  opts.Compositor,
		prompts:   opts.Prompts,
		artifacts: opts.Artifacts,
		fetcher:   fetcher,
		observer:  opts.Observer,
		logger:    logger,
		maxUpload: maxUpload,
	}, nil
}

// Start validates the photo, uploads it, submits the job and creates the
// processing record, in that order. Input is fully validated before any
// remote call.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	res, err := o.start(ctx, req)
	switch {
	case err != nil:
		o.observe("start", "error")
	case len(res.Degraded) > 0:
		o.observe("start", string(OutcomeDegraded))
	default:
		o.observe("start", string(OutcomeApplied))
	}
	return res, err
}

func (o *Orchestrator) start(ctx context.Context, req StartRequest) (StartResult, error) {
	if len(req.Photo) == 0 {
		return StartResult{}, domain.NewError(domain.KindInvalidInput, domain.CodeNoImageProvided, "no image provided", nil)
	}
	ft, err := domain.ParseFrameType(req.FrameType)
	if err != nil {
		return StartResult{}, err
	}
	res := StartResult{FrameType: ft}
	if int64(len(req.Photo)) > o.maxUpload {
		return res, domain.NewError(domain.KindInvalidInput, domain.CodeImageTooLarge, fmt.Sprintf("image exceeds %d bytes", o.maxUpload), nil)
	}
	contentType := photoContentType(req.ContentType, req.Photo)
	if !strings.HasPrefix(contentType, "image/") {
		return res, domain.NewError(domain.KindInvalidInput, domain.CodeInvalidRequest, "file must be an image", nil)
	}
	prompt, err := o.prompts.Prompt(ft)
	if err != nil {
		return res, err
	}

	original, err := o.artifacts.PutObject(ctx, req.Photo, req.Filename, contentType, req.OwnerScope)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return res, err
		}
		return res, domain.NewError(domain.KindStorage, domain.CodeStorageUnavailable, "upload original photo", err)
	}
	res.OriginalURL = original.URL
	res.OriginalKey = original.Key
	log := o.logger.With().Str("frame_type", string(ft)).Str("storage_key", original.Key).Str("url", original.URL).Logger()
	log.Info().Msg("original photo stored")

	job, err := o.jobs.Submit(ctx, original.URL, prompt)
	if err != nil {
		log.Error().Err(err).Msg("inference submission failed; original photo retained")
		return res, submissionError(err)
	}
	res.JobID = job.ID
	res.JobStatus = job.Status

	rec, err := o.artifacts.CreateRecord(ctx, domain.NewGeneration{
		UserID:           req.OwnerScope,
		OriginalImageURL: original.URL,
		FrameType:        ft,
		JobID:            job.ID,
	})
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("generation record not created; job output only reachable by job id")
		res.Degraded = append(res.Degraded, StepRecord)
		return res, nil
	}
	res.RecordID = rec.ID
	log.Info().Str("job_id", job.ID).Str("record_id", rec.ID).Msg("generation started")
	return res, nil
}

// submissionError keeps credential and rate-limit failures distinguishable
// and folds everything else into UpstreamUnavailable.
func submissionError(err error) error {
	switch domain.KindOf(err) {
	case domain.KindAuthentication, domain.KindRateLimited:
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	kind := domain.KindOf(err)
	if kind != domain.KindTransient {
		kind = domain.KindUpstreamProtocol
	}
	return domain.NewError(kind, domain.CodeUpstreamUnavailable, "inference submission failed", err)
}

func photoContentType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}

// Complete moves a record to completed for a succeeded job. Records that are
// already terminal are returned unchanged. A compositing failure degrades to
// a completed record carrying only the generated image.
func (o *Orchestrator) Complete(ctx context.Context, recordID string, job domain.Job) (TransitionResult, error) {
	res, err := o.complete(ctx, recordID, job)
	o.observeResult("complete", res, err)
	return res, err
}

func (o *Orchestrator) complete(ctx context.Context, recordID string, job domain.Job) (TransitionResult, error) {
	rec, err := o.artifacts.GetRecord(ctx, recordID)
	if err != nil {
		return TransitionResult{}, err
	}
	log := o.logger.With().Str("record_id", recordID).Str("job_id", job.ID).Logger()
	if rec.Status.Terminal() {
		log.Debug().Str("status", string(rec.Status)).Msg("record already terminal")
		return TransitionResult{Record: rec, Outcome: OutcomeNoop}, nil
	}
	if strings.TrimSpace(job.OutputURL) == "" {
		log.Warn().Msg("job succeeded without output")
		return o.fail(ctx, recordID, MessageNoOutput)
	}

	if rec.HasComposite() {
		// attached earlier by Composite; only the status is outstanding
		return o.markCompleted(ctx, recordID, job.OutputURL, OutcomeApplied)
	}

	composite, err := o.composeAndStore(ctx, job.OutputURL, rec.FrameType, rec.UserID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return TransitionResult{}, err
		}
		log.Warn().Err(err).Str("url", job.OutputURL).Msg("composite failed; completing with generated image")
		res, uerr := o.markCompleted(ctx, recordID, job.OutputURL, OutcomeDegraded)
		if uerr != nil {
			return TransitionResult{}, uerr
		}
		if res.Outcome == OutcomeDegraded {
			res.Degraded = []string{StepComposite}
			res.Cause = err
		}
		return res, nil
	}

	updated, err := o.artifacts.UpdateRecord(ctx, recordID, domain.GenerationPatch{
		GeneratedImageURL:    domain.StringPtr(job.OutputURL),
		CompositeImageURL:    domain.StringPtr(composite.URL),
		CompositeStoragePath: domain.StringPtr(composite.Key),
		Status:               domain.StatusPtr(domain.GenerationStatusCompleted),
		OnlyIfNoComposite:    true,
	})
	if errors.Is(err, domain.ErrStaleTransition) {
		o.discard(ctx, composite.Key)
		current, gerr := o.artifacts.GetRecord(ctx, recordID)
		if gerr != nil {
			return TransitionResult{}, gerr
		}
		if current.Status.Terminal() {
			return TransitionResult{Record: current, Outcome: OutcomeLostRace}, nil
		}
		return o.markCompleted(ctx, recordID, job.OutputURL, OutcomeLostRace)
	}
	if err != nil {
		o.discard(ctx, composite.Key)
		return TransitionResult{}, err
	}
	log.Info().Str("storage_key", composite.Key).Str("url", composite.URL).Msg("generation completed")
	return TransitionResult{Record: updated, Outcome: OutcomeApplied}, nil
}

// markCompleted sets the generated URL and completed status without touching
// composite fields.
func (o *Orchestrator) markCompleted(ctx context.Context, recordID, outputURL string, outcome Outcome) (TransitionResult, error) {
	updated, err := o.artifacts.UpdateRecord(ctx, recordID, domain.GenerationPatch{
		GeneratedImageURL: domain.StringPtr(outputURL),
		Status:            domain.StatusPtr(domain.GenerationStatusCompleted),
	})
	if errors.Is(err, domain.ErrStaleTransition) {
		return o.reread(ctx, recordID)
	}
	if err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Record: updated, Outcome: outcome}, nil
}

// Fail moves a record to failed. A completed record is never regressed.
func (o *Orchestrator) Fail(ctx context.Context, recordID, message string) (TransitionResult, error) {
	res, err := o.fail(ctx, recordID, message)
	o.observeResult("fail", res, err)
	return res, err
}

func (o *Orchestrator) fail(ctx context.Context, recordID, message string) (TransitionResult, error) {
	rec, err := o.artifacts.GetRecord(ctx, recordID)
	if err != nil {
		return TransitionResult{}, err
	}
	if rec.Status.Terminal() {
		return TransitionResult{Record: rec, Outcome: OutcomeNoop}, nil
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "generation failed"
	}
	updated, err := o.artifacts.UpdateRecord(ctx, recordID, domain.GenerationPatch{
		Status:       domain.StatusPtr(domain.GenerationStatusFailed),
		ErrorMessage: &message,
	})
	if errors.Is(err, domain.ErrStaleTransition) {
		return o.reread(ctx, recordID)
	}
	if err != nil {
		return TransitionResult{}, err
	}
	o.logger.Info().Str("record_id", recordID).Str("error_message", message).Msg("generation failed")
	return TransitionResult{Record: updated, Outcome: OutcomeApplied}, nil
}

// Composite frames the portrait at PortraitURL and stores the PNG. With a
// RecordID the result is attached to that record; a record that already has
// a composite is returned as is.
func (o *Orchestrator) Composite(ctx context.Context, req CompositeRequest) (CompositeResult, error) {
	res, err := o.composite(ctx, req)
	outcome := string(OutcomeApplied)
	if err != nil {
		outcome = "error"
	}
	o.observe("composite", outcome)
	return res, err
}

func (o *Orchestrator) composite(ctx context.Context, req CompositeRequest) (CompositeResult, error) {
	if strings.TrimSpace(req.PortraitURL) == "" {
		return CompositeResult{}, domain.NewError(domain.KindInvalidInput, domain.CodeNoImageProvided, "no portrait url provided", nil)
	}
	ft, err := domain.ParseFrameType(req.FrameType)
	if err != nil {
		return CompositeResult{}, err
	}
	var owner *string
	if req.RecordID != "" {
		rec, err := o.artifacts.GetRecord(ctx, req.RecordID)
		if err != nil {
			return CompositeResult{}, err
		}
		if rec.HasComposite() {
			return existingComposite(rec), nil
		}
		owner = rec.UserID
	}

	obj, err := o.composeAndStore(ctx, req.PortraitURL, ft, owner)
	if err != nil {
		return CompositeResult{}, err
	}
	res := CompositeResult{URL: obj.URL, StoragePath: obj.Key}
	if req.RecordID == "" {
		return res, nil
	}

	// Status is left alone so a processing record still completes through
	// the job lifecycle.
	updated, err := o.artifacts.UpdateRecord(ctx, req.RecordID, domain.GenerationPatch{
		CompositeImageURL:    domain.StringPtr(obj.URL),
		CompositeStoragePath: domain.StringPtr(obj.Key),
		OnlyIfNoComposite:    true,
	})
	if errors.Is(err, domain.ErrStaleTransition) {
		o.discard(ctx, obj.Key)
		rec, gerr := o.artifacts.GetRecord(ctx, req.RecordID)
		if gerr != nil {
			return CompositeResult{}, gerr
		}
		if !rec.HasComposite() {
			return CompositeResult{}, err
		}
		return existingComposite(rec), nil
	}
	if err != nil {
		o.discard(ctx, obj.Key)
		return CompositeResult{}, err
	}
	res.Record = updated
	return res, nil
}

func existingComposite(rec *domain.GenerationRecord) CompositeResult {
	return CompositeResult{
		URL:         domain.Deref(rec.CompositeImageURL),
		StoragePath: domain.Deref(rec.CompositeStoragePath),
		Record:      rec,
	}
}

// History lists records newest first.
func (o *Orchestrator) History(ctx context.Context, ownerScope *string, limit int) ([]domain.GenerationRecord, error) {
	return o.artifacts.QueryRecords(ctx, ownerScope, limit)
}

// Record returns one record.
func (o *Orchestrator) Record(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	return o.artifacts.GetRecord(ctx, id)
}

// Delete removes a record and, best effort, its blobs. It reports false when
// the record did not exist.
func (o *Orchestrator) Delete(ctx context.Context, recordID string) (bool, error) {
	ok, err := o.artifacts.DeleteRecord(ctx, recordID)
	switch {
	case err != nil:
		o.observe("delete", "error")
	case ok:
		o.observe("delete", string(OutcomeApplied))
	default:
		o.observe("delete", string(OutcomeNoop))
	}
	return ok, err
}

func (o *Orchestrator) composeAndStore(ctx context.Context, portraitURL string, ft domain.FrameType, owner *string) (storage.Object, error) {
	portrait, _, err := o.fetcher.Fetch(ctx, portraitURL)
	if err != nil {
		return storage.Object{}, err
	}
	png, err := o.composer.Compose(ctx, portrait, ft)
	if err != nil {
		return storage.Object{}, err
	}
	obj, err := o.artifacts.PutObject(ctx, png, "composite.png", "image/png", owner)
	if err != nil {
		return storage.Object{}, err
	}
	o.logger.Info().Str("frame_type", string(ft)).Str("storage_key", obj.Key).Str("url", obj.URL).Msg("composite stored")
	return obj, nil
}

// discard removes a composite that lost a conditional update.
func (o *Orchestrator) discard(ctx context.Context, key string) {
	if err := o.artifacts.DeleteObject(ctx, key); err != nil && !errors.Is(err, domain.ErrObjectNotFound) {
		o.logger.Warn().Err(err).Str("storage_key", key).Msg("orphan composite not removed")
	}
}

func (o *Orchestrator) reread(ctx context.Context, recordID string) (TransitionResult, error) {
	rec, err := o.artifacts.GetRecord(ctx, recordID)
	if err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Record: rec, Outcome: OutcomeLostRace}, nil
}

func (o *Orchestrator) observeResult(transition string, res TransitionResult, err error) {
	if err != nil {
		o.observe(transition, "error")
		return
	}
	o.observe(transition, string(res.Outcome))
}

func (o *Orchestrator) observe(transition, outcome string) {
	if o.observer != nil {
		o.observer.RecordTransition(transition, outcome)
	}
}
