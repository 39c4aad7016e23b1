package infra

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const shutdownGrace = 15 * time.Second

// HTTPServer wraps http.Server with context-driven shutdown.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer applies the configured timeouts. WriteTimeout must cover a
// full composite render.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}
	return &HTTPServer{server: srv}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *HTTPServer) Run(ctx context.Context, logger Logger) error {
	if s.server == nil {
		return nil
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", s.server.Addr).Msg("http server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("http server stopped")
	return nil
}
