package model

import "time"

// TargetKind identifies which entity family a vote or lookup refers to.
type TargetKind string

const (
	TargetQuestion TargetKind = "question"
	TargetAnswer   TargetKind = "answer"
)

// TargetRef is a typed reference to a votable entity.
type TargetRef struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

// VoteKind is the direction of a vote.
type VoteKind string

const (
	VoteUp   VoteKind = "up"
	VoteDown VoteKind = "down"
)

// ScoreCounters are the denormalized vote counters embedded in questions
// and answers. Score is a cached projection and always equals
// Upvotes - Downvotes; it is updated in the same atomic increment that
// changes the two components.
type ScoreCounters struct {
	Upvotes   int64 `json:"upvotes"`
	Downvotes int64 `json:"downvotes"`
	Score     int64 `json:"score"`
}

// ScoreDelta is a signed change applied atomically to ScoreCounters.
type ScoreDelta struct {
	Upvotes   int64 `json:"upvotes"`
	Downvotes int64 `json:"downvotes"`
}

// IsZero reports whether applying the delta would be a no-op.
func (d ScoreDelta) IsZero() bool { return d.Upvotes == 0 && d.Downvotes == 0 }

// Question is the aggregate root: deleting a question cascades to its
// answers, their comments, votes, and related notifications.
type Question struct {
	QuestionID       string        `json:"questionId"`
	AuthorID         string        `json:"authorId"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Tags             []string      `json:"tags"`
	ViewCount        int64         `json:"viewCount"`
	Counters         ScoreCounters `json:"counters"`
	AcceptedAnswerID *string       `json:"acceptedAnswerId,omitempty"`
	HasAccepted      bool          `json:"hasAcceptedAnswer"`
	Version          int64         `json:"-"`
	CreationTime     time.Time     `json:"creationTime"`
	UpdateTime       *time.Time    `json:"updateTime,omitempty"`
}

// Answer belongs to exactly one question.
type Answer struct {
	AnswerID     string        `json:"answerId"`
	QuestionID   string        `json:"questionId"`
	AuthorID     string        `json:"authorId"`
	Content      string        `json:"content"`
	IsAccepted   bool          `json:"isAccepted"`
	Counters     ScoreCounters `json:"counters"`
	CreationTime time.Time     `json:"creationTime"`
	UpdateTime   *time.Time    `json:"updateTime,omitempty"`
}

// Comment belongs to an answer. QuestionID is carried for cascade deletes.
type Comment struct {
	CommentID    string    `json:"commentId"`
	AnswerID     string    `json:"answerId"`
	QuestionID   string    `json:"questionId"`
	AuthorID     string    `json:"authorId"`
	Content      string    `json:"content"`
	CreationTime time.Time `json:"creationTime"`
}

// VoteRecord is an actor's current vote on a target. At most one record
// exists per (ActorID, Target) pair; re-votes mutate Kind in place.
type VoteRecord struct {
	ActorID string    `json:"actorId"`
	Target  TargetRef `json:"target"`
	Kind    VoteKind  `json:"kind"`
	CastAt  time.Time `json:"castAt"`
}

// Notification is a persisted inbox row for a recipient.
type Notification struct {
	NotificationID string     `json:"notificationId"`
	RecipientID    string     `json:"recipientId"`
	Kind           string     `json:"kind"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	RelatedID      string     `json:"relatedId,omitempty"`
	IsRead         bool       `json:"isRead"`
	CreationTime   time.Time  `json:"creationTime"`
	ReadTime       *time.Time `json:"readTime,omitempty"`
}

// TagStat is the usage record of one tag across all questions.
type TagStat struct {
	Tag        string    `json:"tag"`
	UsageCount int64     `json:"usageCount"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// HitSource tells which retrieval path produced a search hit.
type HitSource string

const (
	SourceSemantic HitSource = "semantic"
	SourceLexical  HitSource = "lexical-fallback"
)

// SearchHit is a transient result record. Display attributes are read
// from the store at query time, never from the index's cached copy.
type SearchHit struct {
	Target         TargetRef     `json:"target"`
	RelevanceScore float64       `json:"relevanceScore"`
	Source         HitSource     `json:"source"`
	Title          string        `json:"title"`
	Tags           []string      `json:"tags,omitempty"`
	AuthorID       string        `json:"authorId"`
	Counters       ScoreCounters `json:"counters"`
	AnswerCount    int           `json:"answerCount"`
	CreationTime   time.Time     `json:"creationTime"`
}

// QuestionFilter captures filters used when listing or searching questions
// through the store.
type QuestionFilter struct {
	Query       string
	Tags        []string
	AuthorID    string
	HasAccepted *bool
	Page        int
	Limit       int
}

// SearchResult is a page of hits with pagination cursors.
type SearchResult struct {
	Hits    []SearchHit `json:"hits"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
	HasNext bool        `json:"hasNext"`
	HasPrev bool        `json:"hasPrev"`
}

// OutboxJob is a leased index maintenance operation.
type OutboxJob struct {
	ID          int64
	Op          string
	AggregateID string
	Payload     map[string]interface{}
}
