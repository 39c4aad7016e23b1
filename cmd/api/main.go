package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/yazidnurfadil/mosque-hero/internal/bootstrap"
	"github.com/yazidnurfadil/mosque-hero/internal/http/handlers"
	"github.com/yazidnurfadil/mosque-hero/internal/http/httpapi"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
	"github.com/yazidnurfadil/mosque-hero/internal/infra/geoip"
	"github.com/yazidnurfadil/mosque-hero/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.Build(ctx, cfg, logger, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: wiring failed")
	}
	defer svc.Close()

	var countryLookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		countryLookup = resolver.CountryCode
	}

	location, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		location = time.UTC
	}

	app := &handlers.App{
		Generations:    svc.Orchestrator,
		Status:         svc.Poller,
		Fetcher:        svc.Fetcher,
		Logger:         &logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Location:       location,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   countryLookup,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Metrics:         svc.Metrics.Handler(),
		StaticDir:       svc.StaticDir,
	})

	if err := infra.NewHTTPServer(cfg, router).Run(ctx, logger); err != nil {
		logger.Error().Err(err).Msg("api: http server failed")
	}
}
