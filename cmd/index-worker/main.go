// The index worker drains the outbox and mirrors questions and answers
// into the search index. It shares the service configuration and can run
// alongside any number of qa-service replicas.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askloop/askloop/server/internal/config"
	"github.com/askloop/askloop/server/internal/logger"
	"github.com/askloop/askloop/server/internal/outbox"
	"github.com/askloop/askloop/server/qaservice"
)

func main() {
	log := logger.New("index-worker")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := qaservice.NewStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("store")
	}

	idx, err := qaservice.NewSearchIndex(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("search index")
	}

	w := outbox.NewWorker(st, idx, outbox.Config{
		BatchSize: cfg.OutboxBatchSize,
		Interval:  time.Duration(cfg.OutboxIntervalSeconds) * time.Second,
	}, log)

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("index worker exit")
		os.Exit(1)
	}
}
