package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/generation"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
	"github.com/yazidnurfadil/mosque-hero/internal/middleware"
)

// Generations is the lifecycle surface the API exposes.
type Generations interface {
	Start(ctx context.Context, req generation.StartRequest) (generation.StartResult, error)
	Composite(ctx context.Context, req generation.CompositeRequest) (generation.CompositeResult, error)
	History(ctx context.Context, ownerScope *string, limit int) ([]domain.GenerationRecord, error)
	Record(ctx context.Context, id string) (*domain.GenerationRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
	Archive(ctx context.Context, id string) ([]byte, *domain.GenerationRecord, error)
}

// StatusChecker performs one status check.
type StatusChecker interface {
	CheckOnce(ctx context.Context, jobID, recordID string) (generation.Snapshot, error)
}

type App struct {
	Generations    Generations
	Status         StatusChecker
	Fetcher        generation.ImageFetcher
	Logger         *infra.Logger
	MaxUploadBytes int64
	Location       *time.Location
	Now            func() time.Time
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    domain.Code `json:"code"`
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

// fail writes the structured error for err, localized to the request.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, extra map[string]any) {
	status := domain.HTTPStatus(err)
	body := errorBody{Code: domain.CodeOf(err), Kind: domain.KindOf(err)}
	var typed *domain.Error
	if errors.As(err, &typed) {
		body.Message = typed.Message
		if typed.RetryAfter > 0 {
			w.Header().Set("Retry-After", retryAfterSeconds(typed.RetryAfter))
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		body.Code, body.Kind = domain.CodeTransientNetwork, domain.KindTransient
	}
	body.Message = localize(middleware.LocaleFromContext(r.Context()), body.Code, body.Message)

	log := a.logger(r)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("code", string(body.Code)).Int("status", status).Msg("request failed")

	payload := map[string]any{"error": body}
	for k, v := range extra {
		payload[k] = v
	}
	a.json(w, status, payload)
}

func (a *App) badRequest(w http.ResponseWriter, r *http.Request, message string) {
	a.fail(w, r, domain.NewError(domain.KindInvalidInput, domain.CodeInvalidRequest, message, nil), nil)
}

func (a *App) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	if a.Logger != nil {
		return a.Logger
	}
	return infra.NopLogger()
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
