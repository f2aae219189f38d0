// Package notify derives notifications from content mutations and fans
// them out to delivery sinks. Derivation is pure; delivery is best effort
// and never fails the mutation that triggered it.
package notify

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/askloop/askloop/server/internal/model"
)

// Notification kinds.
const (
	KindAnswerCreated  = "answer_created"
	KindAnswerAccepted = "answer_accepted"
	KindCommentCreated = "comment_created"
	KindMention        = "mention"
)

// OnAnswerCreated notifies the question author that someone answered.
// Returns nil when the actor answered their own question.
func OnAnswerCreated(q *model.Question, a *model.Answer) *model.Notification {
	if q.AuthorID == a.AuthorID {
		return nil
	}
	return &model.Notification{
		NotificationID: uuid.NewString(),
		RecipientID:    q.AuthorID,
		Kind:           KindAnswerCreated,
		Title:          "New answer to your question",
		Message:        fmt.Sprintf("Your question %q has a new answer", q.Title),
		RelatedID:      a.AnswerID,
	}
}

// OnAnswerAccepted notifies the answer author that their answer was
// accepted. Returns nil when the question author accepted their own answer.
func OnAnswerAccepted(q *model.Question, a *model.Answer) *model.Notification {
	if q.AuthorID == a.AuthorID {
		return nil
	}
	return &model.Notification{
		NotificationID: uuid.NewString(),
		RecipientID:    a.AuthorID,
		Kind:           KindAnswerAccepted,
		Title:          "Your answer was accepted",
		Message:        fmt.Sprintf("Your answer to %q was accepted", q.Title),
		RelatedID:      a.AnswerID,
	}
}

// OnCommentCreated notifies the answer author that someone commented.
// Returns nil when the actor commented on their own answer.
func OnCommentCreated(a *model.Answer, c *model.Comment) *model.Notification {
	if a.AuthorID == c.AuthorID {
		return nil
	}
	return &model.Notification{
		NotificationID: uuid.NewString(),
		RecipientID:    a.AuthorID,
		Kind:           KindCommentCreated,
		Title:          "New comment on your answer",
		Message:        "Someone commented on your answer",
		RelatedID:      c.AnswerID,
	}
}

// OnMention notifies a user that actorID mentioned them in a post.
// Returns nil for self-mentions.
func OnMention(actorID, mentionedID, relatedID string) *model.Notification {
	if actorID == mentionedID {
		return nil
	}
	return &model.Notification{
		NotificationID: uuid.NewString(),
		RecipientID:    mentionedID,
		Kind:           KindMention,
		Title:          "You were mentioned",
		Message:        "You were mentioned in a post",
		RelatedID:      relatedID,
	}
}
