package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/config"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/db"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		log.Fatalf("env file: %v", err)
	}
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, 1)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Printf("schema applied")
}
