package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/capdex/exchange/exchange"
	"github.com/capdex/exchange/exchange/database"
	"github.com/capdex/exchange/exchange/logger"
)

// capdex-migrate applies the exchange schema and exits. The server does the
// same at startup; this exists for provisioning pipelines that migrate before
// rolling the deployment.
func main() {
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := exchange.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Prefix, cfg.Log.Level)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed", slog.Any("error", err))
		os.Exit(-1)
	}
	defer db.Close()

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Schema migration failed", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.Info("Schema migration completed", slog.String("database", cfg.DB.Database))
}
