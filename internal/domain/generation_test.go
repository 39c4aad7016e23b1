package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestParseFrameType(t *testing.T) {
	tests := []struct {
		in      string
		want    FrameType
		wantErr bool
	}{
		{in: "ikhwan", want: FrameIkhwan},
		{in: "  AKHWAT ", want: FrameAkhwat},
		{in: "unknown", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseFrameType(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidFrameType) {
				t.Fatalf("ParseFrameType(%q) err = %v, want InvalidFrameType", tc.in, err)
			}
			if KindOf(err) != KindInvalidInput {
				t.Fatalf("kind = %s", KindOf(err))
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseFrameType(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to GenerationStatus
		ok       bool
	}{
		{GenerationStatusProcessing, GenerationStatusCompleted, true},
		{GenerationStatusProcessing, GenerationStatusFailed, true},
		{GenerationStatusCompleted, GenerationStatusCompleted, true},
		{GenerationStatusFailed, GenerationStatusFailed, true},
		{GenerationStatusCompleted, GenerationStatusProcessing, false},
		{GenerationStatusFailed, GenerationStatusCompleted, false},
		{GenerationStatusCompleted, GenerationStatusFailed, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
	if GenerationStatusProcessing.Terminal() {
		t.Fatal("processing must not be terminal")
	}
}

func TestBestImageURLFallbackOrder(t *testing.T) {
	rec := &GenerationRecord{OriginalImageURL: "orig"}
	if got := rec.BestImageURL(); got != "orig" {
		t.Fatalf("got %q", got)
	}
	rec.GeneratedImageURL = StringPtr("gen")
	if got := rec.BestImageURL(); got != "gen" {
		t.Fatalf("got %q", got)
	}
	rec.CompositeImageURL = StringPtr("comp")
	if got := rec.BestImageURL(); got != "comp" || !rec.HasComposite() {
		t.Fatalf("got %q", got)
	}
	var nilRec *GenerationRecord
	if nilRec.BestImageURL() != "" || nilRec.HasComposite() {
		t.Fatal("nil record should be empty")
	}
}

func TestPatchEmpty(t *testing.T) {
	if !(GenerationPatch{OnlyIfNoComposite: true}).Empty() {
		t.Fatal("flag-only patch should be empty")
	}
	if (GenerationPatch{Status: StatusPtr(GenerationStatusFailed)}).Empty() {
		t.Fatal("status patch should not be empty")
	}
	if StringPtr("   ") != nil {
		t.Fatal("blank string should map to nil")
	}
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("replicate: submit: %w", NewError(KindRateLimited, CodeRateLimited, "slow down", nil))
	tests := []struct {
		name      string
		err       error
		status    int
		retriable bool
	}{
		{name: "nil", err: nil, status: http.StatusOK},
		{name: "input", err: NewError(KindInvalidInput, CodeNoImageProvided, "no image", nil), status: http.StatusBadRequest},
		{name: "not found", err: ErrRecordNotFound, status: http.StatusNotFound},
		{name: "rate limited", err: wrapped, status: http.StatusTooManyRequests, retriable: true},
		{name: "transient", err: NewError(KindTransient, CodeTransientNetwork, "timeout", errors.New("i/o timeout")), status: http.StatusInternalServerError, retriable: true},
		{name: "auth", err: ErrAuthentication, status: http.StatusInternalServerError},
		{name: "untyped", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatus(tc.err); got != tc.status {
				t.Fatalf("status = %d, want %d", got, tc.status)
			}
			if got := IsRetriable(tc.err); got != tc.retriable {
				t.Fatalf("retriable = %v, want %v", got, tc.retriable)
			}
		})
	}

	if !errors.Is(wrapped, ErrRateLimited) {
		t.Fatal("wrapped error should match sentinel by code")
	}
	if errors.Is(wrapped, ErrAuthentication) {
		t.Fatal("codes must not cross-match")
	}
	if CodeOf(errors.New("boom")) != CodeInternal {
		t.Fatal("untyped errors map to Internal")
	}
	cause := errors.New("disk full")
	if !errors.Is(NewError(KindStorage, CodeStorageUnavailable, "put", cause), cause) {
		t.Fatal("cause must stay reachable")
	}
}
