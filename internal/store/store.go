package store

import (
	"context"

	"github.com/askloop/askloop/server/internal/model"
)

// Store exposes persistence operations required by the core.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
//
// Counter mutations go through the ApplyScoreDelta methods, which must be
// implemented as a single atomic increment expression on the row, never a
// read-modify-write of the whole record.
type Store interface {
	Questions() Questions
	Answers() Answers
	Votes() Votes
	Comments() Comments
	Notifications() Notifications
	Outbox() Outbox
	Tags() Tags
}

// TxRunner is optionally implemented by drivers that support transactions.
// The acceptance coordinator uses it when available; otherwise it falls
// back to crash-safe step ordering.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(Store) error) error
}

type Questions interface {
	Create(ctx context.Context, q *model.Question) (*model.Question, error)
	GetByID(ctx context.Context, questionID string) (*model.Question, error)
	Update(ctx context.Context, q *model.Question) (*model.Question, error)
	// Delete removes the question and cascades to its answers, their
	// comments, all votes on the question or its answers, and
	// notifications referencing any of them.
	Delete(ctx context.Context, questionID string) error
	List(ctx context.Context, f model.QuestionFilter) ([]*model.Question, int, error)

	// ApplyScoreDelta atomically increments upvotes, downvotes, and the
	// cached score in one round trip and returns the resulting counters.
	ApplyScoreDelta(ctx context.Context, questionID string, d model.ScoreDelta) (*model.ScoreCounters, error)
	IncrementViewCount(ctx context.Context, questionID string) error

	// SetAccepted updates the accepted-answer pointer, conditional on the
	// question's version (model.ErrConflict on mismatch). A nil answerID
	// clears acceptance.
	SetAccepted(ctx context.Context, questionID string, answerID *string, expectedVersion int64) error

	// CountAnswers is the authoritative live answer count.
	CountAnswers(ctx context.Context, questionID string) (int, error)

	// FindLexical returns questions sharing at least one tag with tags OR
	// whose title contains any of titleWords case-insensitively, excluding
	// excludeID, newest first.
	FindLexical(ctx context.Context, tags []string, titleWords []string, excludeID string, limit int) ([]*model.Question, error)
}

type Answers interface {
	Create(ctx context.Context, a *model.Answer) (*model.Answer, error)
	GetByID(ctx context.Context, answerID string) (*model.Answer, error)
	Update(ctx context.Context, a *model.Answer) (*model.Answer, error)
	// Delete cascades to the answer's comments, votes, and notifications.
	Delete(ctx context.Context, answerID string) error
	ListByQuestion(ctx context.Context, questionID string) ([]*model.Answer, error)

	ApplyScoreDelta(ctx context.Context, answerID string, d model.ScoreDelta) (*model.ScoreCounters, error)

	// ClearAccepted resets is_accepted on every answer of the question.
	ClearAccepted(ctx context.Context, questionID string) error
	// MarkAccepted sets is_accepted on a single answer.
	MarkAccepted(ctx context.Context, answerID string) error
}

// Votes owns VoteRecord identity. The conditional operations serialize
// same-actor races: they apply only when the record still carries the kind
// the caller observed and report model.ErrConflict otherwise.
type Votes interface {
	// Get returns model.ErrNotFound when the actor has no vote on target.
	Get(ctx context.Context, actorID string, target model.TargetRef) (*model.VoteRecord, error)
	// Create inserts a new record; model.ErrConflict if one already exists.
	Create(ctx context.Context, rec *model.VoteRecord) error
	// UpdateKind flips the vote, conditional on the previously observed kind.
	UpdateKind(ctx context.Context, actorID string, target model.TargetRef, observed, next model.VoteKind) error
	// Delete removes the vote, conditional on the previously observed kind.
	Delete(ctx context.Context, actorID string, target model.TargetRef, observed model.VoteKind) error
}

type Comments interface {
	Create(ctx context.Context, c *model.Comment) (*model.Comment, error)
	GetByID(ctx context.Context, commentID string) (*model.Comment, error)
	ListByAnswer(ctx context.Context, answerID string) ([]*model.Comment, error)
	Delete(ctx context.Context, commentID string) error
}

type Notifications interface {
	Create(ctx context.Context, n *model.Notification) (*model.Notification, error)
	ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*model.Notification, error)
	Counts(ctx context.Context, recipientID string) (total, unread int, err error)
	MarkRead(ctx context.Context, notificationID, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, notificationID, recipientID string) error
}

// Tags tracks per-tag usage statistics, updated when questions are created.
type Tags interface {
	// IncrementUsage bumps the usage count of each tag, creating rows for
	// tags seen for the first time.
	IncrementUsage(ctx context.Context, tags []string) error
	// ListPopular returns tag stats ordered by usage count descending.
	ListPopular(ctx context.Context, limit int) ([]*model.TagStat, error)
}

// Outbox queues index maintenance operations written in the same logical
// mutation as the entity change and drained by the index worker.
type Outbox interface {
	Enqueue(ctx context.Context, op, aggregateID string, payload map[string]interface{}) error
	// Lease returns up to batch ready jobs, oldest first.
	Lease(ctx context.Context, batch int) ([]model.OutboxJob, error)
	MarkDone(ctx context.Context, id int64) error
	// MarkFailed bumps the attempt count and schedules a backoff retry.
	MarkFailed(ctx context.Context, id int64) error
}
