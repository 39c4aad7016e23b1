package storage

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
)

// RetryingStore retries transient blob failures with exponential backoff.
// Conflicts, missing objects and rejected requests fail immediately.
type RetryingStore struct {
	delegate     BlobStore
	buildBackoff func() backoff.BackOff
	logger       *infra.Logger
}

// DefaultBackoff bounds retries by attempts and total elapsed time.
func DefaultBackoff(maxElapsed time.Duration) func() backoff.BackOff {
	if maxElapsed <= 0 {
		maxElapsed = 10 * time.Second
	}
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxElapsedTime = maxElapsed
		return backoff.WithMaxRetries(b, 3)
	}
}

// NewRetryingStore wraps delegate. A nil factory uses DefaultBackoff(0).
func NewRetryingStore(delegate BlobStore, factory func() backoff.BackOff, logger *infra.Logger) *RetryingStore {
	if factory == nil {
		factory = DefaultBackoff(0)
	}
	return &RetryingStore{delegate: delegate, buildBackoff: factory, logger: logger}
}

// Put retries transient failures. Keys are unique per upload, so a conflict
// after a failed attempt means that attempt committed the object.
func (r *RetryingStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	var obj Object
	attempts := 0
	err := r.retry(ctx, "put", key, func() error {
		attempts++
		var err error
		obj, err = r.delegate.Put(ctx, key, data, contentType)
		if err != nil && attempts > 1 && errors.Is(err, domain.ErrStorageConflict) {
			if r.logger != nil {
				r.logger.Info().Str("storage_key", key).Msg("storage: earlier attempt committed")
			}
			obj = Object{Key: key, URL: r.delegate.URL(key)}
			return nil
		}
		return err
	})
	return obj, err
}

func (r *RetryingStore) Delete(ctx context.Context, key string) error {
	return r.retry(ctx, "delete", key, func() error { return r.delegate.Delete(ctx, key) })
}

func (r *RetryingStore) URL(key string) string {
	return r.delegate.URL(key)
}

func (r *RetryingStore) KeyFromURL(rawURL string) (string, bool) {
	return r.delegate.KeyFromURL(rawURL)
}

func (r *RetryingStore) retry(ctx context.Context, op, key string, fn func() error) error {
	b := backoff.WithContext(r.buildBackoff(), ctx)
	err := backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !retriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if r.logger != nil {
			r.logger.Warn().Err(err).Str("op", op).Str("storage_key", key).Dur("wait", wait).Msg("storage: retrying")
		}
	})
	return err
}

func retriable(err error) bool {
	switch domain.KindOf(err) {
	case domain.KindStorage, domain.KindTransient:
		return true
	default:
		return false
	}
}

var _ BlobStore = (*RetryingStore)(nil)
