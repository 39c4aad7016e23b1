package storage

import (
	"context"
	"time"
)

// Observer captures telemetry for blob operations.
type Observer interface {
	RecordBlob(operation string, duration time.Duration, sizeBytes int, err error)
}

// ObservedStore reports every Put and Delete to an Observer.
type ObservedStore struct {
	delegate BlobStore
	observer Observer
}

// NewObservedStore wraps delegate. A nil observer makes it a pass-through.
func NewObservedStore(delegate BlobStore, observer Observer) *ObservedStore {
	return &ObservedStore{delegate: delegate, observer: observer}
}

func (o *ObservedStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	started := time.Now()
	obj, err := o.delegate.Put(ctx, key, data, contentType)
	if o.observer != nil {
		o.observer.RecordBlob("put", time.Since(started), len(data), err)
	}
	return obj, err
}

func (o *ObservedStore) Delete(ctx context.Context, key string) error {
	started := time.Now()
	err := o.delegate.Delete(ctx, key)
	if o.observer != nil {
		o.observer.RecordBlob("delete", time.Since(started), 0, err)
	}
	return err
}

func (o *ObservedStore) URL(key string) string {
	return o.delegate.URL(key)
}

func (o *ObservedStore) KeyFromURL(rawURL string) (string, bool) {
	return o.delegate.KeyFromURL(rawURL)
}

var _ BlobStore = (*ObservedStore)(nil)
