package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageBackendFile     = "file"
	StorageBackendSupabase = "supabase"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	StorageBackend         string
	StoragePath            string
	StorageBaseURL         string
	StorageRetryMaxElapsed time.Duration
	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string

	ReplicateAPIToken     string
	ReplicateBaseURL      string
	ReplicateModel        string
	ReplicateOutputFormat string

	FramesDir         string
	FramesConfig      string
	ImageFetchTimeout time.Duration
	MaxUploadBytes    int64
	MaxFetchBytes     int64

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
	GeoIPDBPath        string
	DefaultLocale      string

	WorkerPollInterval time.Duration
	WorkerBatchSize    int
	WorkerConcurrency  int
	StaleAfter         time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StorageBackend:         strings.ToLower(getEnv("STORAGE_BACKEND", StorageBackendFile)),
		StoragePath:            getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:         strings.TrimRight(getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"), "/"),
		StorageRetryMaxElapsed: getEnvDuration("STORAGE_RETRY_MAX_ELAPSED_SECONDS", time.Second, 10),
		SupabaseURL:            strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "superhero-images"),

		ReplicateAPIToken:     os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:      getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateModel:        getEnv("REPLICATE_MODEL", "black-forest-labs/flux-kontext-pro"),
		ReplicateOutputFormat: getEnv("REPLICATE_OUTPUT_FORMAT", "jpg"),

		FramesDir:         os.Getenv("FRAMES_DIR"),
		FramesConfig:      os.Getenv("FRAMES_CONFIG"),
		ImageFetchTimeout: getEnvDuration("IMAGE_FETCH_TIMEOUT_SECONDS", time.Second, 30),
		MaxUploadBytes:    int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		MaxFetchBytes:     int64(getEnvInt("MAX_FETCH_BYTES", 25<<20)),

		HTTPReadTimeout:    getEnvDuration("HTTP_READ_TIMEOUT_SECONDS", time.Second, 15),
		HTTPWriteTimeout:   getEnvDuration("HTTP_WRITE_TIMEOUT_SECONDS", time.Second, 90),
		HTTPIdleTimeout:    getEnvDuration("HTTP_IDLE_TIMEOUT_SECONDS", time.Second, 60),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),

		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL_SECONDS", time.Second, 5),
		WorkerBatchSize:    getEnvInt("WORKER_BATCH_SIZE", 50),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		StaleAfter:         getEnvDuration("STALE_AFTER_HOURS", time.Hour, 6),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.StorageBackend {
	case StorageBackendFile:
	case StorageBackendSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseServiceRoleKey == "" {
			return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for the supabase storage backend")
		}
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageBackendFile, StorageBackendSupabase, cfg.StorageBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration reads an integer count of unit.
func getEnvDuration(key string, unit time.Duration, fallback int) time.Duration {
	return unit * time.Duration(getEnvInt(key, fallback))
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
