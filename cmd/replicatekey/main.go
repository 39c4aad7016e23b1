package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/yazidnurfadil/mosque-hero/internal/infra"
	"github.com/yazidnurfadil/mosque-hero/internal/infra/credentials"
)

func main() {
	_ = godotenv.Load()

	var (
		keyFlag   string
		modelFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "Replicate API token (falls back to REPLICATE_API_TOKEN)")
	flag.StringVar(&modelFlag, "model", "", "optional model note stored alongside the token")
	flag.Parse()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("REPLICATE_API_TOKEN"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "Replicate API token is required via -key or REPLICATE_API_TOKEN")
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "replicatekey").Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	var props map[string]any
	if m := strings.TrimSpace(modelFlag); m != "" {
		props = map[string]any{"model": m}
	}
	if err := store.SetReplicateAPIToken(ctx, key, props); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist replicate api token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Replicate API token stored successfully")
}
