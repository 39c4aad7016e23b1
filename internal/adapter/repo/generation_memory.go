package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
)

// MemoryGenerationRepository mirrors GenerationRepositoryPG in process memory,
// including the conditional update rules. Used by tests and local tooling.
type MemoryGenerationRepository struct {
	mu      sync.Mutex
	records map[string]domain.GenerationRecord
	now     func() time.Time
}

// NewMemoryGenerationRepository constructs an empty repository.
func NewMemoryGenerationRepository() *MemoryGenerationRepository {
	return &MemoryGenerationRepository{records: map[string]domain.GenerationRecord{}, now: time.Now}
}

func (m *MemoryGenerationRepository) Create(ctx context.Context, in domain.NewGeneration) (*domain.GenerationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	rec := domain.GenerationRecord{
		ID:               uuid.NewString(),
		UserID:           normalizeOwner(in.UserID),
		OriginalImageURL: in.OriginalImageURL,
		FrameType:        in.FrameType,
		Status:           domain.GenerationStatusProcessing,
		JobID:            in.JobID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.records[rec.ID] = rec
	return clone(rec), nil
}

func (m *MemoryGenerationRepository) Update(ctx context.Context, id string, patch domain.GenerationPatch) (*domain.GenerationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	if !accepts(rec, patch) {
		return nil, domain.ErrStaleTransition
	}
	if patch.GeneratedImageURL != nil {
		rec.GeneratedImageURL = patch.GeneratedImageURL
	}
	if patch.CompositeImageURL != nil {
		rec.CompositeImageURL = patch.CompositeImageURL
	}
	if patch.CompositeStoragePath != nil {
		rec.CompositeStoragePath = patch.CompositeStoragePath
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.ErrorMessage != nil {
		rec.ErrorMessage = patch.ErrorMessage
	}
	rec.UpdatedAt = m.now()
	m.records[id] = rec
	return clone(rec), nil
}

// accepts applies the same guard as QUpdateGeneration.
func accepts(rec domain.GenerationRecord, patch domain.GenerationPatch) bool {
	if patch.OnlyIfNoComposite && rec.HasComposite() {
		return false
	}
	switch rec.Status {
	case domain.GenerationStatusProcessing:
		return true
	case domain.GenerationStatusCompleted:
		return patch.Status == nil || *patch.Status == domain.GenerationStatusCompleted
	case domain.GenerationStatusFailed:
		return patch.Status != nil && *patch.Status == domain.GenerationStatusFailed
	default:
		return false
	}
}

func (m *MemoryGenerationRepository) GetByID(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return clone(rec), nil
}

func (m *MemoryGenerationRepository) GetByJobID(ctx context.Context, jobID string) (*domain.GenerationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *domain.GenerationRecord
	for _, rec := range m.records {
		if rec.JobID != jobID || jobID == "" {
			continue
		}
		if found == nil || rec.CreatedAt.After(found.CreatedAt) {
			found = clone(rec)
		}
	}
	if found == nil {
		return nil, domain.ErrRecordNotFound
	}
	return found, nil
}

func (m *MemoryGenerationRepository) ListByOwner(ctx context.Context, userID *string, limit int) ([]domain.GenerationRecord, error) {
	owner := normalizeOwner(userID)
	return m.list(ClampLimit(limit), true, func(rec domain.GenerationRecord) bool {
		if owner == nil {
			return rec.UserID == nil
		}
		return rec.UserID != nil && *rec.UserID == *owner
	}), nil
}

func (m *MemoryGenerationRepository) ListProcessing(ctx context.Context, olderThan time.Time, limit int) ([]domain.GenerationRecord, error) {
	return m.list(ClampLimit(limit), false, func(rec domain.GenerationRecord) bool {
		return rec.Status == domain.GenerationStatusProcessing && rec.CreatedAt.Before(olderThan)
	}), nil
}

func (m *MemoryGenerationRepository) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

// SetClock replaces the timestamp source.
func (m *MemoryGenerationRepository) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Len reports the number of stored records.
func (m *MemoryGenerationRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MemoryGenerationRepository) list(limit int, newestFirst bool, keep func(domain.GenerationRecord) bool) []domain.GenerationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.GenerationRecord, 0, len(m.records))
	for _, rec := range m.records {
		if keep(rec) {
			out = append(out, *clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clone(rec domain.GenerationRecord) *domain.GenerationRecord {
	cp := rec
	cp.UserID = copyString(rec.UserID)
	cp.GeneratedImageURL = copyString(rec.GeneratedImageURL)
	cp.CompositeImageURL = copyString(rec.CompositeImageURL)
	cp.CompositeStoragePath = copyString(rec.CompositeStoragePath)
	cp.ErrorMessage = copyString(rec.ErrorMessage)
	return &cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

var _ domain.GenerationRepository = (*MemoryGenerationRepository)(nil)
