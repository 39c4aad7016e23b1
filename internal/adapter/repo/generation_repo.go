package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
	"github.com/yazidnurfadil/mosque-hero/internal/sqlinline"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// GenerationRepositoryPG implements domain.GenerationRepository.
type GenerationRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewGenerationRepository creates a repository backed by PostgreSQL.
func NewGenerationRepository(sql infra.SQLExecutor) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{sql: sql}
}

// Create inserts a new record in the processing state.
func (r *GenerationRepositoryPG) Create(ctx context.Context, in domain.NewGeneration) (*domain.GenerationRecord, error) {
	if strings.TrimSpace(in.OriginalImageURL) == "" {
		return nil, domain.NewError(domain.KindInvalidInput, domain.CodeInvalidRequest, "original image url is required", nil)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertGeneration,
		normalizeOwner(in.UserID),
		in.OriginalImageURL,
		string(in.FrameType),
		in.JobID,
	)
	rec, err := scanGeneration(row)
	if err != nil {
		return nil, storeError("insert generation", err)
	}
	return rec, nil
}

// Update merges the patch. A row that exists but rejects the transition yields
// domain.ErrStaleTransition.
func (r *GenerationRepositoryPG) Update(ctx context.Context, id string, patch domain.GenerationPatch) (*domain.GenerationRecord, error) {
	if !validID(id) {
		return nil, domain.ErrRecordNotFound
	}
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	row := r.sql.QueryRow(ctx, sqlinline.QUpdateGeneration,
		id,
		patch.GeneratedImageURL,
		patch.CompositeImageURL,
		patch.CompositeStoragePath,
		status,
		patch.ErrorMessage,
		patch.OnlyIfNoComposite,
	)
	rec, err := scanGeneration(row)
	if err == nil {
		return rec, nil
	}
	if !infra.IsNoRows(err) {
		return nil, storeError("update generation", err)
	}
	var exists bool
	if err := r.sql.QueryRow(ctx, sqlinline.QGenerationExists, id).Scan(&exists); err != nil {
		return nil, storeError("check generation", err)
	}
	if !exists {
		return nil, domain.ErrRecordNotFound
	}
	return nil, domain.ErrStaleTransition
}

// GetByID fetches a record by its identifier.
func (r *GenerationRepositoryPG) GetByID(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	if !validID(id) {
		return nil, domain.ErrRecordNotFound
	}
	rec, err := scanGeneration(r.sql.QueryRow(ctx, sqlinline.QSelectGenerationByID, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, storeError("select generation", err)
	}
	return rec, nil
}

// GetByJobID resolves the newest record correlated with a remote job.
func (r *GenerationRepositoryPG) GetByJobID(ctx context.Context, jobID string) (*domain.GenerationRecord, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, domain.ErrRecordNotFound
	}
	rec, err := scanGeneration(r.sql.QueryRow(ctx, sqlinline.QSelectGenerationByJobID, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, storeError("select generation by job", err)
	}
	return rec, nil
}

// ListByOwner returns newest-first records of one owner scope.
func (r *GenerationRepositoryPG) ListByOwner(ctx context.Context, userID *string, limit int) ([]domain.GenerationRecord, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListGenerationsByOwner, normalizeOwner(userID), ClampLimit(limit))
	if err != nil {
		return nil, storeError("list generations", err)
	}
	return collect(rows)
}

// ListProcessing returns records still processing that were created before olderThan.
func (r *GenerationRepositoryPG) ListProcessing(ctx context.Context, olderThan time.Time, limit int) ([]domain.GenerationRecord, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListProcessingGenerations, olderThan, ClampLimit(limit))
	if err != nil {
		return nil, storeError("list processing generations", err)
	}
	return collect(rows)
}

// Delete removes the metadata row and reports whether it existed.
func (r *GenerationRepositoryPG) Delete(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteGeneration, id)
	if err != nil {
		return false, storeError("delete generation", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClampLimit applies the history defaults.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

func collect(rows pgx.Rows) ([]domain.GenerationRecord, error) {
	defer rows.Close()
	var out []domain.GenerationRecord
	for rows.Next() {
		rec, err := scanGeneration(rows)
		if err != nil {
			return nil, storeError("scan generation", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate generations", err)
	}
	return out, nil
}

func scanGeneration(row pgx.Row) (*domain.GenerationRecord, error) {
	var (
		rec                                         domain.GenerationRecord
		userID, generated, composite, path, errText string
		frameType, status                           string
	)
	if err := row.Scan(
		&rec.ID,
		&userID,
		&rec.OriginalImageURL,
		&generated,
		&composite,
		&path,
		&frameType,
		&status,
		&rec.JobID,
		&errText,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.UserID = domain.StringPtr(userID)
	rec.GeneratedImageURL = domain.StringPtr(generated)
	rec.CompositeImageURL = domain.StringPtr(composite)
	rec.CompositeStoragePath = domain.StringPtr(path)
	rec.ErrorMessage = domain.StringPtr(errText)
	rec.FrameType = domain.FrameType(frameType)
	rec.Status = domain.GenerationStatus(status)
	return &rec, nil
}

func normalizeOwner(userID *string) *string {
	if userID == nil {
		return nil
	}
	return domain.StringPtr(*userID)
}

func validID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

func storeError(op string, err error) error {
	return domain.NewError(domain.KindStorage, domain.CodeStorageUnavailable, fmt.Sprintf("metadata store: %s", op), err)
}

var _ domain.GenerationRepository = (*GenerationRepositoryPG)(nil)
