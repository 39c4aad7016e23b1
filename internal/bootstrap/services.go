// Package bootstrap assembles the generation pipeline from configuration.
// The API and the worker share one graph so both observe the same storage,
// metadata and job client.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yazidnurfadil/mosque-hero/internal/adapter/repo"
	"github.com/yazidnurfadil/mosque-hero/internal/artifacts"
	"github.com/yazidnurfadil/mosque-hero/internal/compositor"
	"github.com/yazidnurfadil/mosque-hero/internal/frames"
	"github.com/yazidnurfadil/mosque-hero/internal/generation"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
	"github.com/yazidnurfadil/mosque-hero/internal/infra/credentials"
	"github.com/yazidnurfadil/mosque-hero/internal/metrics"
	"github.com/yazidnurfadil/mosque-hero/internal/replicate"
	"github.com/yazidnurfadil/mosque-hero/internal/storage"
)

type Services struct {
	Pool         *pgxpool.Pool
	Metrics      *metrics.Recorder
	Fetcher      *generation.HTTPFetcher
	Orchestrator *generation.Orchestrator
	Poller       *generation.Poller
	Sweeper      *generation.Sweeper
	// StaticDir is set when objects are served from local disk.
	StaticDir string
}

// Build connects to the database and wires every component. Close must be
// called to release the pool.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger, reg *prometheus.Registry) (*Services, error) {
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := build(cfg, logger, reg, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return svc, nil
}

func build(cfg *infra.Config, logger infra.Logger, reg *prometheus.Registry, pool *pgxpool.Pool) (*Services, error) {
	recorder, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}
	runner := infra.NewSQLRunner(pool, logger)

	blobs, staticDir, err := newBlobStore(cfg)
	if err != nil {
		return nil, err
	}
	storeLogger := logger.With().Str("component", "storage").Logger()
	blobs = storage.NewObservedStore(
		storage.NewRetryingStore(blobs, storage.DefaultBackoff(cfg.StorageRetryMaxElapsed), &storeLogger),
		recorder,
	)

	records := repo.NewRetryingGenerationRepository(
		repo.NewGenerationRepository(runner),
		repo.DefaultRepositoryBackoff(cfg.StorageRetryMaxElapsed),
		&storeLogger,
	)

	artifactStore, err := artifacts.New(artifacts.Options{
		Blobs:   blobs,
		Records: records,
		Logger:  &logger,
	})
	if err != nil {
		return nil, err
	}

	registry, err := frames.New(frames.Options{ConfigPath: cfg.FramesConfig, AssetsDir: cfg.FramesDir})
	if err != nil {
		return nil, err
	}
	comp, err := compositor.New(registry)
	if err != nil {
		return nil, err
	}

	jobLogger := logger.With().Str("component", "replicate").Logger()
	jobs, err := replicate.NewClient(replicate.Options{
		APIToken:     cfg.ReplicateAPIToken,
		Tokens:       credentials.NewStore(runner),
		BaseURL:      cfg.ReplicateBaseURL,
		Model:        cfg.ReplicateModel,
		OutputFormat: cfg.ReplicateOutputFormat,
		Logger:       &jobLogger,
		Observer:     recorder,
	})
	if err != nil {
		return nil, err
	}

	fetcher := generation.NewHTTPFetcher(cfg.ImageFetchTimeout, cfg.MaxFetchBytes)
	orch, err := generation.New(generation.Options{
		Jobs:           jobs,
		Compositor:     comp,
		Prompts:        registry,
		Artifacts:      artifactStore,
		Fetcher:        fetcher,
		Observer:       recorder,
		Logger:         &logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: orchestrator: %w", err)
	}

	return &Services{
		Pool:         pool,
		Metrics:      recorder,
		Fetcher:      fetcher,
		Orchestrator: orch,
		Poller:       generation.NewPoller(orch, &logger),
		Sweeper:      generation.NewSweeper(orch, cfg.StaleAfter, cfg.WorkerBatchSize),
		StaticDir:    staticDir,
	}, nil
}

func newBlobStore(cfg *infra.Config) (storage.BlobStore, string, error) {
	switch cfg.StorageBackend {
	case infra.StorageBackendSupabase:
		store, err := storage.NewSupabaseStore(storage.SupabaseOptions{
			ProjectURL:     cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Bucket:         cfg.SupabaseBucket,
			HTTPClient:     &http.Client{Timeout: cfg.ImageFetchTimeout},
		})
		return store, "", err
	default:
		store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if err != nil {
			return nil, "", err
		}
		return store, store.BasePath(), nil
	}
}

func (s *Services) Close() {
	if s != nil && s.Pool != nil {
		s.Pool.Close()
	}
}
