package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/yazidnurfadil/mosque-hero/internal/http/handlers"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
	"github.com/yazidnurfadil/mosque-hero/internal/middleware"
)

// Options carries the cross-cutting pieces the router mounts around the handlers.
type Options struct {
	Logger          infra.Logger
	AllowedOrigins  []string
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	RateLimitPerMin int
	Metrics         http.Handler
	// StaticDir is served under /static when the filesystem backend is in use.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	// Expensive operations share one per-client budget.
	limited := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)
		r.Get("/qr", app.QRCode)
		r.With(limited).Post("/composite", app.Composite)

		r.Route("/generations", func(r chi.Router) {
			r.With(limited).Post("/", app.StartGeneration)
			r.Get("/", app.History)
			r.Delete("/", app.DeleteGeneration)
			r.Get("/check", app.CheckGeneration)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.GetGeneration)
				r.Delete("/", app.DeleteGeneration)
				r.Get("/qr.png", app.GenerationQR)
				r.Get("/receipt.pdf", app.Receipt)
				r.With(limited).Get("/portrait.pdf", app.PortraitSheet)
				r.With(limited).Get("/archive.zip", app.Archive)
			})
		})
	})

	return r
}
