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

	"mediagen/internal/infra"
	"mediagen/internal/infra/credentials"
	"mediagen/internal/sqlinline"
)

func main() {
	_ = godotenv.Load()

	var keyFlag, noteFlag string
	flag.StringVar(&keyFlag, "key", "", "fal API key (falls back to FAL_KEY)")
	flag.StringVar(&noteFlag, "note", "", "free-form note stored with the key")
	flag.Parse()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("FAL_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "fal API key is required via -key or FAL_KEY")
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

	logger := infra.NewLogger("cli").With().Str("cmd", "falkey").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	if _, err := runner.Exec(ctx, sqlinline.QCreateIntegrationTokensTable); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare integration_tokens: %v\n", err)
		os.Exit(1)
	}

	props := map[string]any{"source": "falkey", "stored_at": time.Now().UTC().Format(time.RFC3339)}
	if note := strings.TrimSpace(noteFlag); note != "" {
		props["note"] = note
	}
	if err := credentials.NewStore(runner).SetFalAPIKey(ctx, key, props); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist fal api key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("fal API key stored successfully")
}
