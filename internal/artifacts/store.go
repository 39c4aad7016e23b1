// Package artifacts pairs the blob store with the generation metadata store.
// The two writes are not transactional; every write path logs the keys and
// URLs it produced so an inconsistent pair can be reconciled.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
	"github.com/yazidnurfadil/mosque-hero/internal/storage"
)

// Store is safe for concurrent use when its collaborators are.
type Store struct {
	blobs   storage.BlobStore
	records domain.GenerationRepository
	logger  *infra.Logger
	now     func() time.Time
}

// Options wires the adapter.
type Options struct {
	Blobs   storage.BlobStore
	Records domain.GenerationRepository
	Logger  *infra.Logger
	Clock   func() time.Time
}

// New validates options and builds the adapter.
func New(opts Options) (*Store, error) {
	if opts.Blobs == nil {
		return nil, errors.New("artifacts: blob store is required")
	}
	if opts.Records == nil {
		return nil, errors.New("artifacts: record store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{blobs: opts.Blobs, records: opts.Records, logger: logger, now: clock}, nil
}

// PutObject stores data under a fresh "<owner|anonymous>/<millis>-<uuid>.<ext>" key.
func (s *Store) PutObject(ctx context.Context, data []byte, suggestedName, contentType string, ownerScope *string) (storage.Object, error) {
	if len(data) == 0 {
		return storage.Object{}, domain.NewError(domain.KindInvalidInput, domain.CodeNoImageProvided, "no image provided", nil)
	}
	key := storage.NewKey(domain.Deref(ownerScope), suggestedName, contentType, s.now())
	obj, err := s.blobs.Put(ctx, key, data, contentType)
	if err != nil {
		s.logger.Error().Err(err).Str("storage_key", key).Msg("artifacts: upload failed")
		return storage.Object{}, err
	}
	s.logger.Info().
		Str("storage_key", obj.Key).
		Str("url", obj.URL).
		Int("bytes", len(data)).
		Msg("artifacts: object stored")
	return obj, nil
}

// DeleteObject removes a blob by key.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	return s.blobs.Delete(ctx, key)
}

// CreateRecord inserts a processing record.
func (s *Store) CreateRecord(ctx context.Context, in domain.NewGeneration) (*domain.GenerationRecord, error) {
	rec, err := s.records.Create(ctx, in)
	if err != nil {
		s.logger.Error().Err(err).
			Str("job_id", in.JobID).
			Str("url", in.OriginalImageURL).
			Msg("artifacts: create record failed")
		return nil, err
	}
	s.logger.Info().Str("record_id", rec.ID).Str("job_id", rec.JobID).Msg("artifacts: record created")
	return rec, nil
}

// UpdateRecord merges a patch. updated_at is always refreshed.
func (s *Store) UpdateRecord(ctx context.Context, id string, patch domain.GenerationPatch) (*domain.GenerationRecord, error) {
	rec, err := s.records.Update(ctx, id, patch)
	if err != nil {
		ev := s.logger.Warn()
		if !errors.Is(err, domain.ErrStaleTransition) {
			ev = s.logger.Error()
		}
		ev.Err(err).
			Str("record_id", id).
			Str("composite_url", domain.Deref(patch.CompositeImageURL)).
			Str("storage_key", domain.Deref(patch.CompositeStoragePath)).
			Msg("artifacts: update record failed")
		return nil, err
	}
	return rec, nil
}

// GetRecord fetches one record.
func (s *Store) GetRecord(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	return s.records.GetByID(ctx, id)
}

// GetRecordByJob resolves the record correlated with a remote job.
func (s *Store) GetRecordByJob(ctx context.Context, jobID string) (*domain.GenerationRecord, error) {
	return s.records.GetByJobID(ctx, jobID)
}

// QueryRecords lists an owner scope newest first, bounded by limit.
func (s *Store) QueryRecords(ctx context.Context, ownerScope *string, limit int) ([]domain.GenerationRecord, error) {
	return s.records.ListByOwner(ctx, ownerScope, limit)
}

// ListProcessing lists records still processing that were created before olderThan.
func (s *Store) ListProcessing(ctx context.Context, olderThan time.Time, limit int) ([]domain.GenerationRecord, error) {
	return s.records.ListProcessing(ctx, olderThan, limit)
}

// DeleteRecord removes every blob the record references, best effort, then
// the metadata row. It reports false when the record does not exist.
func (s *Store) DeleteRecord(ctx context.Context, id string) (bool, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	for _, key := range s.ReferencedKeys(rec) {
		if err := s.blobs.Delete(ctx, key); err != nil {
			ev := s.logger.Warn()
			if errors.Is(err, domain.ErrObjectNotFound) {
				ev = s.logger.Debug()
			}
			ev.Err(err).Str("record_id", rec.ID).Str("storage_key", key).Msg("artifacts: blob removal skipped")
			continue
		}
		s.logger.Info().Str("record_id", rec.ID).Str("storage_key", key).Msg("artifacts: blob removed")
	}
	deleted, err := s.records.Delete(ctx, rec.ID)
	if err != nil {
		return false, fmt.Errorf("artifacts: delete record %s: %w", rec.ID, err)
	}
	return deleted, nil
}

// ReferencedKeys lists the storage keys owned by this deployment that a
// record points at. Remote URLs such as inference outputs are skipped.
func (s *Store) ReferencedKeys(rec *domain.GenerationRecord) []string {
	if rec == nil {
		return nil
	}
	seen := map[string]bool{}
	var keys []string
	add := func(key string) {
		key = strings.TrimSpace(key)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		keys = append(keys, key)
	}
	add(domain.Deref(rec.CompositeStoragePath))
	for _, u := range []string{rec.OriginalImageURL, domain.Deref(rec.GeneratedImageURL), domain.Deref(rec.CompositeImageURL)} {
		if key, ok := s.blobs.KeyFromURL(u); ok {
			add(key)
		}
	}
	return keys
}
