package domain

import (
	"context"
	"time"
)

// GenerationRepository persists generation metadata.
type GenerationRepository interface {
	Create(ctx context.Context, in NewGeneration) (*GenerationRecord, error)
	Update(ctx context.Context, id string, patch GenerationPatch) (*GenerationRecord, error)
	GetByID(ctx context.Context, id string) (*GenerationRecord, error)
	GetByJobID(ctx context.Context, jobID string) (*GenerationRecord, error)
	ListByOwner(ctx context.Context, userID *string, limit int) ([]GenerationRecord, error)
	ListProcessing(ctx context.Context, olderThan time.Time, limit int) ([]GenerationRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
}
