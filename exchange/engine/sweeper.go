package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/capdex/exchange/exchange/logger"
)

// Sweeper drives the expiry finalization on a fixed interval. One sweeper per
// process is enough; running more replicas is safe, just redundant work.
type Sweeper struct {
	engine    *Engine
	interval  time.Duration
	batchSize int
	workers   int

	stop chan struct{}
	done chan struct{}
}

func NewSweeper(engine *Engine, interval time.Duration, batchSize, workers int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		engine:    engine,
		interval:  interval,
		batchSize: batchSize,
		workers:   workers,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sweep loop. The first sweep runs immediately so a restart
// never leaves a backlog waiting for the next tick.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.sweep(ctx)
		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	slog.Info("Expiry sweeper started",
		slog.Duration("interval", s.interval),
		slog.Int("batch_size", s.batchSize),
		slog.Int("workers", s.workers))
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()
	count, err := s.engine.FinalizeExpiredListings(ctx, s.batchSize, s.workers)
	if err != nil || count > 0 {
		logger.LogOperation("finalize_expired_listings", time.Since(start), err)
	}
	if count > 0 {
		slog.Info("Expiry sweep finished", slog.Int("finalized", count))
	}
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
