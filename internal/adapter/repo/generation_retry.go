package repo

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
)

// RetryingGenerationRepository retries metadata store failures with
// exponential backoff. Missing records and stale transitions are final.
//
// Create and Delete are retried only when the driver reports that the
// statement never reached the server. Update is conditional, so a retry that
// finds the row already carrying the patch counts as applied.
type RetryingGenerationRepository struct {
	delegate     domain.GenerationRepository
	buildBackoff func() backoff.BackOff
	logger       *infra.Logger
}

// DefaultRepositoryBackoff allows three retries within maxElapsed.
func DefaultRepositoryBackoff(maxElapsed time.Duration) func() backoff.BackOff {
	if maxElapsed <= 0 {
		maxElapsed = 5 * time.Second
	}
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 100 * time.Millisecond
		b.MaxElapsedTime = maxElapsed
		return backoff.WithMaxRetries(b, 3)
	}
}

// NewRetryingGenerationRepository wraps delegate. A nil factory uses
// DefaultRepositoryBackoff(0).
func NewRetryingGenerationRepository(delegate domain.GenerationRepository, factory func() backoff.BackOff, logger *infra.Logger) *RetryingGenerationRepository {
	if factory == nil {
		factory = DefaultRepositoryBackoff(0)
	}
	return &RetryingGenerationRepository{delegate: delegate, buildBackoff: factory, logger: logger}
}

func (r *RetryingGenerationRepository) Create(ctx context.Context, in domain.NewGeneration) (*domain.GenerationRecord, error) {
	var rec *domain.GenerationRecord
	err := r.retry(ctx, "create", unsent, func() error {
		var err error
		rec, err = r.delegate.Create(ctx, in)
		return err
	})
	return rec, err
}

func (r *RetryingGenerationRepository) Update(ctx context.Context, id string, patch domain.GenerationPatch) (*domain.GenerationRecord, error) {
	var rec *domain.GenerationRecord
	ambiguous := false
	err := r.retry(ctx, "update", storeFailure, func() error {
		var err error
		rec, err = r.delegate.Update(ctx, id, patch)
		if ambiguous && errors.Is(err, domain.ErrStaleTransition) {
			current, getErr := r.delegate.GetByID(ctx, id)
			if getErr == nil && carries(current, patch) {
				rec = current
				return nil
			}
		}
		if storeFailure(err) && !pgconn.SafeToRetry(err) {
			ambiguous = true
		}
		return err
	})
	return rec, err
}

func (r *RetryingGenerationRepository) GetByID(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	var rec *domain.GenerationRecord
	err := r.retry(ctx, "get", storeFailure, func() error {
		var err error
		rec, err = r.delegate.GetByID(ctx, id)
		return err
	})
	return rec, err
}

func (r *RetryingGenerationRepository) GetByJobID(ctx context.Context, jobID string) (*domain.GenerationRecord, error) {
	var rec *domain.GenerationRecord
	err := r.retry(ctx, "get_by_job", storeFailure, func() error {
		var err error
		rec, err = r.delegate.GetByJobID(ctx, jobID)
		return err
	})
	return rec, err
}

func (r *RetryingGenerationRepository) ListByOwner(ctx context.Context, userID *string, limit int) ([]domain.GenerationRecord, error) {
	var out []domain.GenerationRecord
	err := r.retry(ctx, "list", storeFailure, func() error {
		var err error
		out, err = r.delegate.ListByOwner(ctx, userID, limit)
		return err
	})
	return out, err
}

func (r *RetryingGenerationRepository) ListProcessing(ctx context.Context, olderThan time.Time, limit int) ([]domain.GenerationRecord, error) {
	var out []domain.GenerationRecord
	err := r.retry(ctx, "list_processing", storeFailure, func() error {
		var err error
		out, err = r.delegate.ListProcessing(ctx, olderThan, limit)
		return err
	})
	return out, err
}

func (r *RetryingGenerationRepository) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.retry(ctx, "delete", unsent, func() error {
		var err error
		deleted, err = r.delegate.Delete(ctx, id)
		return err
	})
	return deleted, err
}

func (r *RetryingGenerationRepository) retry(ctx context.Context, op string, retriable func(error) bool, fn func() error) error {
	b := backoff.WithContext(r.buildBackoff(), ctx)
	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !retriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if r.logger != nil {
			r.logger.Warn().Err(err).Str("op", op).Dur("wait", wait).Msg("metadata store: retrying")
		}
	})
}

func storeFailure(err error) bool {
	return domain.KindOf(err) == domain.KindStorage
}

// unsent matches failures that happened before the statement was sent.
func unsent(err error) bool {
	return storeFailure(err) && pgconn.SafeToRetry(err)
}

// carries reports whether rec already holds every field the patch sets.
func carries(rec *domain.GenerationRecord, patch domain.GenerationPatch) bool {
	if rec == nil || patch.Empty() {
		return false
	}
	same := func(want, got *string) bool {
		return want == nil || domain.Deref(want) == domain.Deref(got)
	}
	if patch.Status != nil && *patch.Status != rec.Status {
		return false
	}
	return same(patch.GeneratedImageURL, rec.GeneratedImageURL) &&
		same(patch.CompositeImageURL, rec.CompositeImageURL) &&
		same(patch.CompositeStoragePath, rec.CompositeStoragePath) &&
		same(patch.ErrorMessage, rec.ErrorMessage)
}

var _ domain.GenerationRepository = (*RetryingGenerationRepository)(nil)
