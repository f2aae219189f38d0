// Package accept coordinates the accepted-answer transition. A question
// has at most one accepted answer; the question row's pointer is the
// authoritative record and per-answer flags are a denormalized mirror.
package accept

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/notify"
	"github.com/askloop/askloop/server/internal/store"
)

// Coordinator validates and applies acceptance transitions.
type Coordinator struct {
	store  store.Store
	fanout *notify.Fanout
	log    zerolog.Logger
}

func NewCoordinator(s store.Store, f *notify.Fanout, log zerolog.Logger) *Coordinator {
	return &Coordinator{store: s, fanout: f, log: log}
}

// Accept marks answerID as the accepted answer of questionID on behalf of
// actorID. Only the question author may accept; accepting a different
// answer atomically moves the acceptance. Re-accepting the current answer
// is a no-op.
func (c *Coordinator) Accept(ctx context.Context, actorID, questionID, answerID string) (*model.Question, error) {
	q, err := c.store.Questions().GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q.AuthorID != actorID {
		return nil, fmt.Errorf("only the question author may accept an answer: %w", model.ErrForbidden)
	}
	a, err := c.store.Answers().GetByID(ctx, answerID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("answer %s: %w", answerID, model.ErrNotFound)
		}
		return nil, err
	}
	if a.QuestionID != questionID {
		return nil, fmt.Errorf("answer %s does not belong to question %s: %w", answerID, questionID, model.ErrInvalidState)
	}

	if q.AcceptedAnswerID != nil && *q.AcceptedAnswerID == answerID {
		return q, nil
	}

	if err := c.transition(ctx, q, &answerID); err != nil {
		return nil, err
	}

	c.fanout.Emit(ctx, notify.OnAnswerAccepted(q, a))

	return c.store.Questions().GetByID(ctx, questionID)
}

// Unaccept clears the accepted answer of questionID. Author-only; clearing
// a question with no accepted answer is a no-op.
func (c *Coordinator) Unaccept(ctx context.Context, actorID, questionID string) (*model.Question, error) {
	q, err := c.store.Questions().GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q.AuthorID != actorID {
		return nil, fmt.Errorf("only the question author may clear acceptance: %w", model.ErrForbidden)
	}
	if q.AcceptedAnswerID == nil {
		return q, nil
	}
	if err := c.transition(ctx, q, nil); err != nil {
		return nil, err
	}
	return c.store.Questions().GetByID(ctx, questionID)
}

// transition applies the flag changes and the conditional pointer update.
// Inside a transaction when the driver supports one; otherwise ordered so
// that a crash mid-way leaves at most stale flags, never a pointer to an
// unflagged answer, and the versioned pointer update always runs last.
func (c *Coordinator) transition(ctx context.Context, q *model.Question, answerID *string) error {
	apply := func(s store.Store) error {
		if err := s.Answers().ClearAccepted(ctx, q.QuestionID); err != nil {
			return err
		}
		if answerID != nil {
			if err := s.Answers().MarkAccepted(ctx, *answerID); err != nil {
				return err
			}
		}
		return s.Questions().SetAccepted(ctx, q.QuestionID, answerID, q.Version)
	}

	var err error
	if tr, ok := c.store.(store.TxRunner); ok {
		err = tr.RunInTx(ctx, apply)
	} else {
		err = apply(c.store)
		if errors.Is(err, model.ErrConflict) {
			// Without a transaction the flags already flipped before the
			// conditional pointer update rejected the transition. Realign
			// them with whatever pointer actually won.
			c.repairFlags(ctx, q.QuestionID)
		}
	}
	if errors.Is(err, model.ErrConflict) {
		c.log.Info().Str("questionId", q.QuestionID).Msg("acceptance lost a concurrent update")
		return fmt.Errorf("question changed concurrently, retry: %w", model.ErrConflict)
	}
	return err
}

// repairFlags resets the per-answer flags to mirror the question's current
// accepted-answer pointer. Best effort; the pointer stays authoritative.
func (c *Coordinator) repairFlags(ctx context.Context, questionID string) {
	fresh, err := c.store.Questions().GetByID(ctx, questionID)
	if err != nil {
		c.log.Warn().Err(err).Str("questionId", questionID).Msg("flag repair read failed")
		return
	}
	if err := c.store.Answers().ClearAccepted(ctx, questionID); err != nil {
		c.log.Warn().Err(err).Str("questionId", questionID).Msg("flag repair clear failed")
		return
	}
	if fresh.AcceptedAnswerID == nil {
		return
	}
	if err := c.store.Answers().MarkAccepted(ctx, *fresh.AcceptedAnswerID); err != nil {
		c.log.Warn().Err(err).Str("questionId", questionID).Msg("flag repair mark failed")
	}
}
