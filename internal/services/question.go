// Package services holds the application services composed by the HTTP
// layer. Services validate input, orchestrate the store, the vote ledger,
// the acceptance coordinator, notification fan-out, and index sync.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/askloop/askloop/server/internal/ids"
	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/outbox"
	"github.com/askloop/askloop/server/internal/searchindex"
	"github.com/askloop/askloop/server/internal/store"
)

const (
	maxTitleLen = 300
	maxBodyLen  = 30000
	maxTags     = 5
)

// CreateQuestionRequest carries validated-at-the-edge question input.
type CreateQuestionRequest struct {
	AuthorID    string   `json:"authorId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// UpdateQuestionRequest carries a question edit. Nil fields are unchanged.
type UpdateQuestionRequest struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// AnswerWithComments is an answer and its comment thread.
type AnswerWithComments struct {
	model.Answer
	Comments []*model.Comment `json:"comments"`
}

// QuestionDetail is the full question view: the question, its answers with
// comments, and the live answer count.
type QuestionDetail struct {
	model.Question
	Answers     []*AnswerWithComments `json:"answers"`
	AnswerCount int                   `json:"answerCount"`
}

// QuestionService manages question lifecycle and keeps the index in sync.
type QuestionService struct {
	store store.Store
	index searchindex.Index
	log   zerolog.Logger
}

func NewQuestionService(s store.Store, idx searchindex.Index, log zerolog.Logger) *QuestionService {
	return &QuestionService{store: s, index: idx, log: log}
}

// Create validates and persists a new question and enqueues an index
// upsert in the same logical mutation.
func (svc *QuestionService) Create(ctx context.Context, req CreateQuestionRequest) (*model.Question, error) {
	if err := validateQuestionInput(req.AuthorID, req.Title, req.Description, req.Tags); err != nil {
		return nil, err
	}
	q, err := svc.store.Questions().Create(ctx, &model.Question{
		QuestionID:  ids.NewQuestionID().String(),
		AuthorID:    req.AuthorID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Tags:        normalizeTags(req.Tags),
	})
	if err != nil {
		return nil, err
	}
	if err := svc.store.Outbox().Enqueue(ctx, outbox.OpUpsertQuestion, q.QuestionID, nil); err != nil {
		svc.log.Error().Stack().Err(err).Str("questionId", q.QuestionID).Msg("enqueue index upsert failed")
	}
	if err := svc.store.Tags().IncrementUsage(ctx, q.Tags); err != nil {
		svc.log.Warn().Err(err).Str("questionId", q.QuestionID).Msg("tag usage update failed")
	}
	svc.log.Info().Str("questionId", q.QuestionID).Str("authorId", q.AuthorID).Msg("question created")
	return q, nil
}

// PopularTags lists the most used tags, highest usage first.
func (svc *QuestionService) PopularTags(ctx context.Context, limit int) ([]*model.TagStat, error) {
	stats, err := store.ReadWithRetry(ctx, func() ([]*model.TagStat, error) {
		return svc.store.Tags().ListPopular(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []*model.TagStat{}
	}
	return stats, nil
}

// Get loads the full question view. countView atomically bumps the view
// counter; the returned snapshot includes the increment.
func (svc *QuestionService) Get(ctx context.Context, questionID string, countView bool) (*QuestionDetail, error) {
	id, err := ids.ParseQuestionID(questionID)
	if err != nil {
		return nil, err
	}
	if countView {
		if err := svc.store.Questions().IncrementViewCount(ctx, id.String()); err != nil {
			return nil, err
		}
	}
	q, err := svc.store.Questions().GetByID(ctx, id.String())
	if err != nil {
		return nil, err
	}
	answers, err := svc.store.Answers().ListByQuestion(ctx, id.String())
	if err != nil {
		return nil, err
	}
	detail := &QuestionDetail{
		Question:    *q,
		Answers:     make([]*AnswerWithComments, 0, len(answers)),
		AnswerCount: len(answers),
	}
	for _, a := range answers {
		comments, err := svc.store.Comments().ListByAnswer(ctx, a.AnswerID)
		if err != nil {
			return nil, err
		}
		if comments == nil {
			comments = []*model.Comment{}
		}
		detail.Answers = append(detail.Answers, &AnswerWithComments{Answer: *a, Comments: comments})
	}
	return detail, nil
}

// List pages questions by filter, newest first.
func (svc *QuestionService) List(ctx context.Context, f model.QuestionFilter) ([]*model.Question, int, error) {
	return svc.store.Questions().List(ctx, f)
}

// Update edits a question. Author only; a re-index is enqueued.
func (svc *QuestionService) Update(ctx context.Context, actorID, questionID string, req UpdateQuestionRequest) (*model.Question, error) {
	id, err := ids.ParseQuestionID(questionID)
	if err != nil {
		return nil, err
	}
	q, err := svc.store.Questions().GetByID(ctx, id.String())
	if err != nil {
		return nil, err
	}
	if q.AuthorID != actorID {
		return nil, fmt.Errorf("only the author may edit a question: %w", model.ErrForbidden)
	}
	if req.Title != nil {
		q.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		q.Description = *req.Description
	}
	if req.Tags != nil {
		q.Tags = normalizeTags(*req.Tags)
	}
	if err := validateQuestionInput(q.AuthorID, q.Title, q.Description, q.Tags); err != nil {
		return nil, err
	}
	updated, err := svc.store.Questions().Update(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := svc.store.Outbox().Enqueue(ctx, outbox.OpUpsertQuestion, q.QuestionID, nil); err != nil {
		svc.log.Error().Stack().Err(err).Str("questionId", q.QuestionID).Msg("enqueue index upsert failed")
	}
	return updated, nil
}

// Delete removes the question and everything hanging off it. Author only.
// Index entries for the question and its answers are deleted synchronously
// so stale hits do not linger until the outbox drains.
func (svc *QuestionService) Delete(ctx context.Context, actorID, questionID string) error {
	id, err := ids.ParseQuestionID(questionID)
	if err != nil {
		return err
	}
	q, err := svc.store.Questions().GetByID(ctx, id.String())
	if err != nil {
		return err
	}
	if q.AuthorID != actorID {
		return fmt.Errorf("only the author may delete a question: %w", model.ErrForbidden)
	}
	answers, err := svc.store.Answers().ListByQuestion(ctx, id.String())
	if err != nil {
		return err
	}
	if err := svc.store.Questions().Delete(ctx, id.String()); err != nil {
		return err
	}
	if err := svc.index.Delete(ctx, id.String()); err != nil {
		svc.log.Warn().Err(err).Str("questionId", id.String()).Msg("index delete failed")
	}
	for _, a := range answers {
		if err := svc.index.Delete(ctx, a.AnswerID); err != nil {
			svc.log.Warn().Err(err).Str("answerId", a.AnswerID).Msg("index delete failed")
		}
	}
	svc.log.Info().Str("questionId", id.String()).Int("answers", len(answers)).Msg("question deleted")
	return nil
}

// AnswerCount is the live count; nothing denormalized to drift.
func (svc *QuestionService) AnswerCount(ctx context.Context, questionID string) (int, error) {
	id, err := ids.ParseQuestionID(questionID)
	if err != nil {
		return 0, err
	}
	return svc.store.Questions().CountAnswers(ctx, id.String())
}

func validateQuestionInput(authorID, title, description string, tags []string) error {
	if strings.TrimSpace(authorID) == "" {
		return fmt.Errorf("authorId is required: %w", model.ErrValidation)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("title is required: %w", model.ErrValidation)
	}
	if len(title) > maxTitleLen {
		return fmt.Errorf("title exceeds %d characters: %w", maxTitleLen, model.ErrValidation)
	}
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("description is required: %w", model.ErrValidation)
	}
	if len(description) > maxBodyLen {
		return fmt.Errorf("description exceeds %d characters: %w", maxBodyLen, model.ErrValidation)
	}
	if len(tags) > maxTags {
		return fmt.Errorf("at most %d tags: %w", maxTags, model.ErrValidation)
	}
	return nil
}

// normalizeTags lowercases, trims, and dedupes while keeping order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
