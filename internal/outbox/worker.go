// Package outbox drains index maintenance jobs enqueued alongside content
// mutations and applies them to the vector index. Rows are leased in
// batches, retried with exponential backoff, and deleted once applied.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/searchindex"
	"github.com/askloop/askloop/server/internal/store"
)

// Operation names stored in outbox.op (idempotent targets)
const (
	OpUpsertQuestion = "upsert_question"
	OpDeleteQuestion = "delete_question"
	OpUpsertAnswer   = "upsert_answer"
	OpDeleteAnswer   = "delete_answer"
)

// Config controls batch size and polling cadence.
type Config struct {
	BatchSize int
	Interval  time.Duration
}

// Worker processes outbox rows and applies them to the vector index.
type Worker struct {
	store store.Store
	index searchindex.Index
	cfg   Config
	log   zerolog.Logger
}

func NewWorker(s store.Store, idx searchindex.Index, cfg Config, log zerolog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Worker{store: s, index: idx, cfg: cfg, log: log}
}

// Run starts the polling loop until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("batch", w.cfg.BatchSize).Dur("interval", w.cfg.Interval).Msg("outbox worker starting")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("outbox worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil {
				// Log and continue; per-row backoff prevents hot-looping.
				w.log.Error().Err(err).Msg("outbox processing cycle failed")
			}
		}
	}
}

// ProcessOnce leases and handles a single batch. Exposed for tests and
// for one-shot draining from the CLI.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	jobs, err := w.store.Outbox().Lease(ctx, w.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := w.handle(ctx, j); err != nil {
			w.log.Warn().Err(err).Int64("id", j.ID).Str("op", j.Op).Msg("outbox job failed, will retry")
			if e := w.store.Outbox().MarkFailed(ctx, j.ID); e != nil {
				w.log.Error().Err(e).Int64("id", j.ID).Msg("markFailed error")
			}
			continue
		}
		if e := w.store.Outbox().MarkDone(ctx, j.ID); e != nil {
			w.log.Error().Err(e).Int64("id", j.ID).Msg("markDone error")
		}
	}
	return nil
}

// handle executes one outbox operation. Upserts read the entity fresh from
// the store; an entity deleted since enqueue counts as handled because the
// deletion path already removed it from the index.
func (w *Worker) handle(ctx context.Context, j model.OutboxJob) error {
	switch j.Op {
	case OpUpsertQuestion:
		q, err := w.store.Questions().GetByID(ctx, j.AggregateID)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return w.index.Upsert(ctx, searchindex.Document{
			ID:           q.QuestionID,
			Kind:         string(model.TargetQuestion),
			Title:        q.Title,
			Body:         q.Description,
			Tags:         q.Tags,
			AuthorID:     q.AuthorID,
			CreationTime: q.CreationTime.UTC().Format(time.RFC3339),
		})
	case OpUpsertAnswer:
		a, err := w.store.Answers().GetByID(ctx, j.AggregateID)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return w.index.Upsert(ctx, searchindex.Document{
			ID:           a.AnswerID,
			Kind:         string(model.TargetAnswer),
			Body:         a.Content,
			AuthorID:     a.AuthorID,
			CreationTime: a.CreationTime.UTC().Format(time.RFC3339),
		})
	case OpDeleteQuestion, OpDeleteAnswer:
		return w.index.Delete(ctx, j.AggregateID)
	default:
		return fmt.Errorf("unknown op: %s", j.Op)
	}
}
