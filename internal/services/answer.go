package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/askloop/askloop/server/internal/ids"
	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/notify"
	"github.com/askloop/askloop/server/internal/outbox"
	"github.com/askloop/askloop/server/internal/searchindex"
	"github.com/askloop/askloop/server/internal/store"
)

// mentionPattern matches @handle references in post bodies.
var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_-]{2,32})`)

// AnswerService manages answers and their comment threads.
type AnswerService struct {
	store  store.Store
	index  searchindex.Index
	fanout *notify.Fanout
	log    zerolog.Logger
}

func NewAnswerService(s store.Store, idx searchindex.Index, f *notify.Fanout, log zerolog.Logger) *AnswerService {
	return &AnswerService{store: s, index: idx, fanout: f, log: log}
}

// Create posts an answer to a question. The question author is notified
// unless they answered themselves; mentioned users are notified too.
func (svc *AnswerService) Create(ctx context.Context, actorID, questionID, content string) (*model.Answer, error) {
	qid, err := ids.ParseQuestionID(questionID)
	if err != nil {
		return nil, err
	}
	if err := validateContent(actorID, content); err != nil {
		return nil, err
	}
	q, err := svc.store.Questions().GetByID(ctx, qid.String())
	if err != nil {
		return nil, err
	}

	a, err := svc.store.Answers().Create(ctx, &model.Answer{
		AnswerID:   ids.NewAnswerID().String(),
		QuestionID: qid.String(),
		AuthorID:   actorID,
		Content:    content,
	})
	if err != nil {
		return nil, err
	}

	svc.fanout.Emit(ctx, notify.OnAnswerCreated(q, a))
	svc.emitMentions(ctx, actorID, content, a.AnswerID)

	if err := svc.store.Outbox().Enqueue(ctx, outbox.OpUpsertAnswer, a.AnswerID, nil); err != nil {
		svc.log.Error().Stack().Err(err).Str("answerId", a.AnswerID).Msg("enqueue index upsert failed")
	}
	svc.log.Info().Str("answerId", a.AnswerID).Str("questionId", qid.String()).Msg("answer created")
	return a, nil
}

// Update edits an answer's content. Author only; re-indexed via outbox.
func (svc *AnswerService) Update(ctx context.Context, actorID, answerID, content string) (*model.Answer, error) {
	aid, err := ids.ParseAnswerID(answerID)
	if err != nil {
		return nil, err
	}
	if err := validateContent(actorID, content); err != nil {
		return nil, err
	}
	a, err := svc.store.Answers().GetByID(ctx, aid.String())
	if err != nil {
		return nil, err
	}
	if a.AuthorID != actorID {
		return nil, fmt.Errorf("only the author may edit an answer: %w", model.ErrForbidden)
	}
	a.Content = content
	updated, err := svc.store.Answers().Update(ctx, a)
	if err != nil {
		return nil, err
	}
	if err := svc.store.Outbox().Enqueue(ctx, outbox.OpUpsertAnswer, a.AnswerID, nil); err != nil {
		svc.log.Error().Stack().Err(err).Str("answerId", a.AnswerID).Msg("enqueue index upsert failed")
	}
	return updated, nil
}

// Delete removes an answer with its comments, votes, notifications, and
// index entry. Author only. A cleared acceptance stays cleared.
func (svc *AnswerService) Delete(ctx context.Context, actorID, answerID string) error {
	aid, err := ids.ParseAnswerID(answerID)
	if err != nil {
		return err
	}
	a, err := svc.store.Answers().GetByID(ctx, aid.String())
	if err != nil {
		return err
	}
	if a.AuthorID != actorID {
		return fmt.Errorf("only the author may delete an answer: %w", model.ErrForbidden)
	}
	if err := svc.store.Answers().Delete(ctx, aid.String()); err != nil {
		return err
	}
	if err := svc.index.Delete(ctx, aid.String()); err != nil {
		svc.log.Warn().Err(err).Str("answerId", aid.String()).Msg("index delete failed")
	}
	svc.log.Info().Str("answerId", aid.String()).Msg("answer deleted")
	return nil
}

// CreateComment adds a comment under an answer and notifies the answer
// author and any mentioned users.
func (svc *AnswerService) CreateComment(ctx context.Context, actorID, answerID, content string) (*model.Comment, error) {
	aid, err := ids.ParseAnswerID(answerID)
	if err != nil {
		return nil, err
	}
	if err := validateContent(actorID, content); err != nil {
		return nil, err
	}
	a, err := svc.store.Answers().GetByID(ctx, aid.String())
	if err != nil {
		return nil, err
	}
	c, err := svc.store.Comments().Create(ctx, &model.Comment{
		CommentID:  uuid.NewString(),
		AnswerID:   a.AnswerID,
		QuestionID: a.QuestionID,
		AuthorID:   actorID,
		Content:    content,
	})
	if err != nil {
		return nil, err
	}
	svc.fanout.Emit(ctx, notify.OnCommentCreated(a, c))
	svc.emitMentions(ctx, actorID, content, a.AnswerID)
	return c, nil
}

// DeleteComment removes a comment. Author only.
func (svc *AnswerService) DeleteComment(ctx context.Context, actorID, commentID string) error {
	c, err := svc.store.Comments().GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if c.AuthorID != actorID {
		return fmt.Errorf("only the author may delete a comment: %w", model.ErrForbidden)
	}
	return svc.store.Comments().Delete(ctx, commentID)
}

func (svc *AnswerService) emitMentions(ctx context.Context, actorID, content, relatedID string) {
	seen := map[string]bool{}
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		handle := m[1]
		if seen[handle] {
			continue
		}
		seen[handle] = true
		svc.fanout.Emit(ctx, notify.OnMention(actorID, handle, relatedID))
	}
}

func validateContent(actorID, content string) error {
	if strings.TrimSpace(actorID) == "" {
		return fmt.Errorf("actor is required: %w", model.ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required: %w", model.ErrValidation)
	}
	if len(content) > maxBodyLen {
		return fmt.Errorf("content exceeds %d characters: %w", maxBodyLen, model.ErrValidation)
	}
	return nil
}
