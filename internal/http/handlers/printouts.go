package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/printout"
)

// QRCode encodes ?url= as a PNG.
func (a *App) QRCode(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		a.badRequest(w, r, "url is required")
		return
	}
	a.writeQR(w, r, target)
}

// GenerationQR encodes the record's best image URL.
func (a *App) GenerationQR(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.record(w, r)
	if !ok {
		return
	}
	a.writeQR(w, r, rec.BestImageURL())
}

func (a *App) writeQR(w http.ResponseWriter, r *http.Request, content string) {
	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.badRequest(w, r, "size must be a positive integer")
			return
		}
		size = n
	}
	png, err := printout.QR(content, size)
	if err != nil {
		a.fail(w, r, domain.NewError(domain.KindInternal, domain.CodeEncodeError, "qr encoding failed", err), nil)
		return
	}
	a.blob(w, "image/png", "", png)
}

// Receipt renders the download slip PDF.
func (a *App) Receipt(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.record(w, r)
	if !ok {
		return
	}
	pdf, err := printout.RenderReceipt(printout.Receipt{
		URL:          rec.BestImageURL(),
		Instructions: printout.DefaultInstructions,
		At:           a.now(),
		Location:     a.Location,
	})
	if err != nil {
		a.fail(w, r, domain.NewError(domain.KindInternal, domain.CodeEncodeError, "receipt rendering failed", err), nil)
		return
	}
	a.blob(w, "application/pdf", fmt.Sprintf("receipt-%s.pdf", rec.ID), pdf)
}

// PortraitSheet renders the best image on a thermal sheet.
func (a *App) PortraitSheet(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.record(w, r)
	if !ok {
		return
	}
	if a.Fetcher == nil {
		a.fail(w, r, domain.NewError(domain.KindInternal, domain.CodeInternal, "image fetcher not configured", nil), nil)
		return
	}
	img, _, err := a.Fetcher.Fetch(r.Context(), rec.BestImageURL())
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	pdf, err := printout.RenderPortrait(printout.Portrait{Image: img, At: a.now(), Location: a.Location})
	if err != nil {
		a.fail(w, r, domain.NewError(domain.KindProcessing, domain.CodeDecodeError, "portrait rendering failed", err), nil)
		return
	}
	a.blob(w, "application/pdf", fmt.Sprintf("portrait-%s.pdf", rec.ID), pdf)
}

// Archive bundles every reachable artifact of a record.
func (a *App) Archive(w http.ResponseWriter, r *http.Request) {
	data, rec, err := a.Generations.Archive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.blob(w, "application/zip", fmt.Sprintf("superhero-%s.zip", rec.ID), data)
}

func (a *App) record(w http.ResponseWriter, r *http.Request) (*domain.GenerationRecord, bool) {
	rec, err := a.Generations.Record(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err, nil)
		return nil, false
	}
	return rec, true
}

func (a *App) blob(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
