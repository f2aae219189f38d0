// Package votes owns the single-vote ledger and the score aggregator.
//
// The ledger guarantees at most one recorded vote per (actor, target) and
// translates every cast or removal into a counter delta. The aggregator
// applies those deltas as atomic increments against the target's row.
package votes

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/store"
)

// casRetries bounds the observed-kind retry loop. Two same-actor requests
// racing resolves in one retry; more attempts than that means something is
// broken and the caller should see the conflict.
const casRetries = 3

// Ledger records votes and computes the resulting counter deltas.
type Ledger struct {
	store store.Store
	log   zerolog.Logger
}

func NewLedger(s store.Store, log zerolog.Logger) *Ledger {
	return &Ledger{store: s, log: log}
}

// Cast records an up or down vote by actorID on target and returns the
// counter delta to apply. Re-casting the same kind is an idempotent no-op
// (zero delta); casting the opposite kind flips the recorded vote.
func (l *Ledger) Cast(ctx context.Context, actorID string, target model.TargetRef, kind model.VoteKind) (model.ScoreDelta, error) {
	if err := l.targetExists(ctx, target); err != nil {
		return model.ScoreDelta{}, err
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		existing, err := l.store.Votes().Get(ctx, actorID, target)
		switch {
		case errors.Is(err, model.ErrNotFound):
			createErr := l.store.Votes().Create(ctx, &model.VoteRecord{
				ActorID: actorID,
				Target:  target,
				Kind:    kind,
			})
			if errors.Is(createErr, model.ErrConflict) {
				// Another request from the same actor won the insert.
				continue
			}
			if createErr != nil {
				return model.ScoreDelta{}, createErr
			}
			return deltaFor(kind, 1), nil

		case err != nil:
			return model.ScoreDelta{}, err

		case existing.Kind == kind:
			return model.ScoreDelta{}, nil

		default:
			// Flip. Conditional on the kind we just observed so a racing
			// same-actor request cannot double-apply.
			updErr := l.store.Votes().UpdateKind(ctx, actorID, target, existing.Kind, kind)
			if errors.Is(updErr, model.ErrConflict) {
				continue
			}
			if updErr != nil {
				return model.ScoreDelta{}, updErr
			}
			d := deltaFor(existing.Kind, -1)
			up := deltaFor(kind, 1)
			d.Upvotes += up.Upvotes
			d.Downvotes += up.Downvotes
			return d, nil
		}
	}
	l.log.Warn().Str("actorId", actorID).Str("targetId", target.ID).Msg("vote cast lost the retry race")
	return model.ScoreDelta{}, model.ErrConflict
}

// Remove deletes the actor's vote on target and returns the delta that
// undoes it. Removing a vote that does not exist is an idempotent no-op.
func (l *Ledger) Remove(ctx context.Context, actorID string, target model.TargetRef) (model.ScoreDelta, error) {
	if err := l.targetExists(ctx, target); err != nil {
		return model.ScoreDelta{}, err
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		existing, err := l.store.Votes().Get(ctx, actorID, target)
		if errors.Is(err, model.ErrNotFound) {
			return model.ScoreDelta{}, nil
		}
		if err != nil {
			return model.ScoreDelta{}, err
		}

		delErr := l.store.Votes().Delete(ctx, actorID, target, existing.Kind)
		if errors.Is(delErr, model.ErrConflict) {
			continue
		}
		if delErr != nil {
			return model.ScoreDelta{}, delErr
		}
		return deltaFor(existing.Kind, -1), nil
	}
	l.log.Warn().Str("actorId", actorID).Str("targetId", target.ID).Msg("vote removal lost the retry race")
	return model.ScoreDelta{}, model.ErrConflict
}

// Get returns the actor's current vote on target, or model.ErrNotFound.
func (l *Ledger) Get(ctx context.Context, actorID string, target model.TargetRef) (*model.VoteRecord, error) {
	return l.store.Votes().Get(ctx, actorID, target)
}

func (l *Ledger) targetExists(ctx context.Context, target model.TargetRef) error {
	var err error
	switch target.Kind {
	case model.TargetQuestion:
		_, err = l.store.Questions().GetByID(ctx, target.ID)
	case model.TargetAnswer:
		_, err = l.store.Answers().GetByID(ctx, target.ID)
	default:
		return fmt.Errorf("target kind %q: %w", target.Kind, model.ErrValidation)
	}
	return err
}

func deltaFor(kind model.VoteKind, sign int64) model.ScoreDelta {
	if kind == model.VoteUp {
		return model.ScoreDelta{Upvotes: sign}
	}
	return model.ScoreDelta{Downvotes: sign}
}
