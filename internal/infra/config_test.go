package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaultStorageBaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("STORAGE_BACKEND", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:8080/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
	if cfg.StorageBackend != StorageBackendFile {
		t.Fatalf("StorageBackend mismatch: got %q", cfg.StorageBackend)
	}
	if cfg.ImageFetchTimeout != 30*time.Second {
		t.Fatalf("ImageFetchTimeout mismatch: got %s", cfg.ImageFetchTimeout)
	}
	if cfg.StaleAfter != 6*time.Hour {
		t.Fatalf("StaleAfter mismatch: got %s", cfg.StaleAfter)
	}
	if cfg.ReplicateModel != "black-forest-labs/flux-kontext-pro" {
		t.Fatalf("ReplicateModel mismatch: got %q", cfg.ReplicateModel)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigHonorsExplicitStorageBaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "https://cdn.example.com/static/")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "https://cdn.example.com/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigValidatesStorageBackend(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("STORAGE_BACKEND", "supabase")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for supabase backend without credentials")
	}

	t.Setenv("SUPABASE_URL", "https://proj.supabase.co/")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service-key")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SupabaseURL != "https://proj.supabase.co" || cfg.SupabaseBucket != "superhero-images" {
		t.Fatalf("unexpected supabase config: %q %q", cfg.SupabaseURL, cfg.SupabaseBucket)
	}

	t.Setenv("STORAGE_BACKEND", "s3")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestLoadConfigParsesLists(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://booth.example.com, ,http://localhost:3000 ")
	t.Setenv("WORKER_POLL_INTERVAL_SECONDS", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := []string{"https://booth.example.com", "http://localhost:3000"}
	if len(cfg.CORSAllowedOrigins) != len(expected) {
		t.Fatalf("CORSAllowedOrigins mismatch: got %#v want %#v", cfg.CORSAllowedOrigins, expected)
	}
	for i, origin := range expected {
		if cfg.CORSAllowedOrigins[i] != origin {
			t.Fatalf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.CORSAllowedOrigins[i], origin)
		}
	}
	if cfg.WorkerPollInterval != 2*time.Second {
		t.Fatalf("WorkerPollInterval mismatch: got %s", cfg.WorkerPollInterval)
	}
}
