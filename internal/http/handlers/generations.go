package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/generation"
)

const multipartOverhead = 1 << 20

// StartGeneration accepts multipart fields image, frameType and userId.
func (a *App) StartGeneration(w http.ResponseWriter, r *http.Request) {
	maxUpload := a.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = generation.DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(maxUpload + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.fail(w, r, domain.NewError(domain.KindInvalidInput, domain.CodeImageTooLarge, "image too large", err), nil)
			return
		}
		// No form or a form without parts carries no photo either.
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, io.EOF) {
			a.fail(w, r, domain.ErrNoImageProvided, nil)
			return
		}
		a.badRequest(w, r, "malformed multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	req := generation.StartRequest{
		FrameType:  r.FormValue("frameType"),
		OwnerScope: ownerScope(r, r.FormValue("userId")),
	}
	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		a.badRequest(w, r, "unreadable image field")
		return
	default:
		defer file.Close()
		req.Photo, err = io.ReadAll(io.LimitReader(file, maxUpload+1))
		if err != nil {
			a.badRequest(w, r, "unreadable image field")
			return
		}
		req.Filename = header.Filename
		req.ContentType = header.Header.Get("Content-Type")
	}

	res, err := a.Generations.Start(r.Context(), req)
	if err != nil {
		var extra map[string]any
		if res.OriginalURL != "" {
			extra = map[string]any{"originalImageUrl": res.OriginalURL}
		}
		a.fail(w, r, err, extra)
		return
	}
	a.json(w, http.StatusOK, res)
}

// CheckGeneration reports job status and drives terminal transitions.
func (a *App) CheckGeneration(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.URL.Query().Get("id"))
	if jobID == "" {
		a.badRequest(w, r, "id is required")
		return
	}
	snap, err := a.Status.CheckOnce(r.Context(), jobID, strings.TrimSpace(r.URL.Query().Get("generationId")))
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, snap)
}

type compositeRequest struct {
	SuperheroImage string `json:"superheroImage"`
	FrameType      string `json:"frameType"`
	GenerationID   string `json:"generationId"`
}

// Composite frames a portrait URL. Accepts JSON or form encoding.
func (a *App) Composite(w http.ResponseWriter, r *http.Request) {
	var in compositeRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&in); err != nil {
			a.badRequest(w, r, "invalid payload")
			return
		}
	} else {
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(1 << 20)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			a.badRequest(w, r, "invalid form")
			return
		}
		in = compositeRequest{
			SuperheroImage: r.FormValue("superheroImage"),
			FrameType:      r.FormValue("frameType"),
			GenerationID:   r.FormValue("generationId"),
		}
	}
	res, err := a.Generations.Composite(r.Context(), generation.CompositeRequest{
		PortraitURL: in.SuperheroImage,
		FrameType:   in.FrameType,
		RecordID:    strings.TrimSpace(in.GenerationID),
	})
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, res)
}

type historyResponse struct {
	Generations []recordView `json:"generations"`
}

// History lists the owner's records newest first.
func (a *App) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.badRequest(w, r, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := a.Generations.History(r.Context(), ownerScope(r, r.URL.Query().Get("userId")), limit)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	out := historyResponse{Generations: make([]recordView, 0, len(records))}
	for i := range records {
		out.Generations = append(out.Generations, viewOf(&records[i]))
	}
	a.json(w, http.StatusOK, out)
}

// GetGeneration returns one record.
func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	rec, err := a.Generations.Record(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, viewOf(rec))
}

// DeleteGeneration removes a record by path id or ?id=.
func (a *App) DeleteGeneration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		id = r.URL.Query().Get("id")
	}
	if strings.TrimSpace(id) == "" {
		a.badRequest(w, r, "id is required")
		return
	}
	ok, err := a.Generations.Delete(r.Context(), id)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	if !ok {
		a.fail(w, r, domain.ErrRecordNotFound, nil)
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"deleted": true})
}

type recordView struct {
	*domain.GenerationRecord
	ImageURL string `json:"image_url"`
}

func viewOf(rec *domain.GenerationRecord) recordView {
	return recordView{GenerationRecord: rec, ImageURL: rec.BestImageURL()}
}

// ownerScope prefers the explicit field over the X-User-ID header.
func ownerScope(r *http.Request, field string) *string {
	if v := domain.StringPtr(field); v != nil {
		return v
	}
	return domain.StringPtr(r.Header.Get("X-User-ID"))
}
