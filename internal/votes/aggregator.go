package votes

import (
	"context"
	"fmt"

	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/store"
)

// Aggregator applies ledger deltas to the target's denormalized counters.
type Aggregator struct {
	store store.Store
}

func NewAggregator(s store.Store) *Aggregator {
	return &Aggregator{store: s}
}

// Apply increments the target's counters by d and returns the result. A
// zero delta skips the write and just reads the current counters, so
// idempotent re-votes still report fresh totals.
func (a *Aggregator) Apply(ctx context.Context, target model.TargetRef, d model.ScoreDelta) (*model.ScoreCounters, error) {
	if d.IsZero() {
		return a.current(ctx, target)
	}
	switch target.Kind {
	case model.TargetQuestion:
		return a.store.Questions().ApplyScoreDelta(ctx, target.ID, d)
	case model.TargetAnswer:
		return a.store.Answers().ApplyScoreDelta(ctx, target.ID, d)
	default:
		return nil, fmt.Errorf("target kind %q: %w", target.Kind, model.ErrValidation)
	}
}

// current reads the counters without writing. Score reads are idempotent,
// so a transient store failure is retried once.
func (a *Aggregator) current(ctx context.Context, target model.TargetRef) (*model.ScoreCounters, error) {
	switch target.Kind {
	case model.TargetQuestion:
		q, err := store.ReadWithRetry(ctx, func() (*model.Question, error) {
			return a.store.Questions().GetByID(ctx, target.ID)
		})
		if err != nil {
			return nil, err
		}
		c := q.Counters
		return &c, nil
	case model.TargetAnswer:
		ans, err := store.ReadWithRetry(ctx, func() (*model.Answer, error) {
			return a.store.Answers().GetByID(ctx, target.ID)
		})
		if err != nil {
			return nil, err
		}
		c := ans.Counters
		return &c, nil
	default:
		return nil, fmt.Errorf("target kind %q: %w", target.Kind, model.ErrValidation)
	}
}
