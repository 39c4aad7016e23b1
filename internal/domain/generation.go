package domain

import (
	"strings"
	"time"
)

// GenerationStatus enumerates the lifecycle states of a generation record.
type GenerationStatus string

const (
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// Terminal reports whether no further automatic transition is attempted.
func (s GenerationStatus) Terminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

// CanTransition reports whether moving from s to next is legal. Re-applying the
// same status is allowed so that repeated completions stay idempotent.
func (s GenerationStatus) CanTransition(next GenerationStatus) bool {
	if s == next {
		return true
	}
	return s == GenerationStatusProcessing && next.Terminal()
}

// FrameType identifies a frame/layout preset.
type FrameType string

const (
	FrameIkhwan FrameType = "ikhwan"
	FrameAkhwat FrameType = "akhwat"
)

// FrameTypes lists every supported preset in display order.
var FrameTypes = []FrameType{FrameIkhwan, FrameAkhwat}

// ParseFrameType validates free-form input against the fixed enum.
func ParseFrameType(raw string) (FrameType, error) {
	candidate := FrameType(strings.ToLower(strings.TrimSpace(raw)))
	for _, ft := range FrameTypes {
		if candidate == ft {
			return ft, nil
		}
	}
	return "", NewError(KindInvalidInput, CodeInvalidFrameType, "invalid frame type "+quote(raw)+", must be ikhwan or akhwat", nil)
}

// GenerationRecord is the persisted state of one submitted photo.
type GenerationRecord struct {
	ID                   string           `json:"id"`
	UserID               *string          `json:"user_id"`
	OriginalImageURL     string           `json:"original_image_url"`
	GeneratedImageURL    *string          `json:"generated_image_url"`
	CompositeImageURL    *string          `json:"composite_image_url"`
	CompositeStoragePath *string          `json:"composite_storage_path"`
	FrameType            FrameType        `json:"frame_type"`
	Status               GenerationStatus `json:"status"`
	JobID                string           `json:"job_id"`
	ErrorMessage         *string          `json:"error_message"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// BestImageURL applies the documented fallback order: composite, generated, original.
func (r *GenerationRecord) BestImageURL() string {
	if r == nil {
		return ""
	}
	if v := deref(r.CompositeImageURL); v != "" {
		return v
	}
	if v := deref(r.GeneratedImageURL); v != "" {
		return v
	}
	return r.OriginalImageURL
}

// HasComposite reports whether the frame composite has been stored.
func (r *GenerationRecord) HasComposite() bool {
	return r != nil && deref(r.CompositeImageURL) != ""
}

// NewGeneration carries the fields written when a record is created.
type NewGeneration struct {
	UserID           *string
	OriginalImageURL string
	FrameType        FrameType
	JobID            string
}

// GenerationPatch merges non-nil fields into an existing record. UpdatedAt is
// always refreshed by the store.
type GenerationPatch struct {
	GeneratedImageURL    *string
	CompositeImageURL    *string
	CompositeStoragePath *string
	Status               *GenerationStatus
	ErrorMessage         *string

	// OnlyIfNoComposite makes the write conditional on composite_image_url being
	// unset so that concurrent completions have a single winner.
	OnlyIfNoComposite bool
}

// Empty reports whether the patch would only refresh UpdatedAt.
func (p GenerationPatch) Empty() bool {
	return p.GeneratedImageURL == nil && p.CompositeImageURL == nil && p.CompositeStoragePath == nil &&
		p.Status == nil && p.ErrorMessage == nil
}

// StringPtr returns nil for blank input.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// StatusPtr is a convenience for building patches.
func StatusPtr(s GenerationStatus) *GenerationStatus {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	return deref(s)
}

func quote(s string) string {
	return "\"" + s + "\""
}
