package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/capdex/exchange/exchange"
	"github.com/capdex/exchange/exchange/api"
	"github.com/capdex/exchange/exchange/catalog"
	"github.com/capdex/exchange/exchange/database"
	"github.com/capdex/exchange/exchange/database/repositories"
	"github.com/capdex/exchange/exchange/engine"
	"github.com/capdex/exchange/exchange/events"
	"github.com/capdex/exchange/exchange/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := exchange.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	customHandler := logger.NewHandler(cfg.Log.Prefix, cfg.Log.Level)
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting CapDex Exchange",
		slog.String("version", version),
		slog.String("commit", commit))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbStartTime := time.Now()
	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.Any("error", err),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Schema initialization failed", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Database connected",
		slog.String("database", cfg.DB.Database),
		slog.Duration("startup_time", time.Since(dbStartTime)))

	users := repositories.NewUserRepository(db.BunDB())
	captures := repositories.NewCaptureRepository(db.BunDB())
	listings := repositories.NewListingRepository(db.BunDB())
	bids := repositories.NewBidRepository(db.BunDB())
	offers := repositories.NewTradeOfferRepository(db.BunDB())
	txns := repositories.NewTransactionRepository(db.BunDB())

	var publisher *events.Publisher
	if cfg.Events.URL != "" {
		publisher, err = events.NewPublisher(cfg.Events.URL, cfg.Events.Queue)
		if err != nil {
			// The exchange works without the broker; consumers just
			// miss events until it comes back and we reconnect.
			slog.Warn("Event publisher unavailable", slog.Any("error", err))
			publisher = nil
		} else {
			defer publisher.Close()
			slog.Info("Event publisher connected", slog.String("queue", cfg.Events.Queue))
		}
	}

	eng := engine.New(db.BunDB(), listings, bids, offers, captures, publisher)

	reader, err := catalog.New(listings, bids, offers, captures, txns, users)
	if err != nil {
		slog.Error("Catalog initialization failed", slog.Any("error", err))
		os.Exit(-1)
	}

	sweeper := engine.NewSweeper(eng, cfg.Sweep.Interval(), cfg.Sweep.BatchSize, cfg.Sweep.Workers)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweeper.Start(sweepCtx)

	app := api.New(eng, reader, strings.Join(cfg.API.AllowOrigins, ","))

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	go func() {
		if err := app.Listen(addr); err != nil {
			slog.Error("HTTP server stopped", slog.Any("error", err))
			os.Exit(-1)
		}
	}()
	slog.Info("Exchange API listening", slog.String("addr", addr))

	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-s

	logger.LogSystem("Shutting down...")
	stopSweep()
	sweeper.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("HTTP shutdown failed", slog.Any("error", err))
	}
	logger.LogSystem("Shutdown complete")
}
