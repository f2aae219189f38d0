// Package storetest holds a driver-agnostic compliance suite for the store
// contract. Each driver runs it against a real database handle.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/store"
)

// Run executes the full compliance suite. makeStore must return a fresh,
// empty store for each subtest.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Run("QuestionCRUD", func(t *testing.T) { testQuestionCRUD(t, makeStore(t)) })
	t.Run("QuestionList", func(t *testing.T) { testQuestionList(t, makeStore(t)) })
	t.Run("QuestionCounters", func(t *testing.T) { testQuestionCounters(t, makeStore(t)) })
	t.Run("QuestionAcceptedVersion", func(t *testing.T) { testAcceptedVersion(t, makeStore(t)) })
	t.Run("QuestionDeleteCascade", func(t *testing.T) { testQuestionDeleteCascade(t, makeStore(t)) })
	t.Run("QuestionFindLexical", func(t *testing.T) { testFindLexical(t, makeStore(t)) })
	t.Run("AnswerCRUD", func(t *testing.T) { testAnswerCRUD(t, makeStore(t)) })
	t.Run("AnswerAcceptedFlags", func(t *testing.T) { testAnswerAcceptedFlags(t, makeStore(t)) })
	t.Run("AnswerDeleteCascade", func(t *testing.T) { testAnswerDeleteCascade(t, makeStore(t)) })
	t.Run("VoteConditionalOps", func(t *testing.T) { testVoteConditionalOps(t, makeStore(t)) })
	t.Run("Comments", func(t *testing.T) { testComments(t, makeStore(t)) })
	t.Run("Notifications", func(t *testing.T) { testNotifications(t, makeStore(t)) })
	t.Run("Outbox", func(t *testing.T) { testOutbox(t, makeStore(t)) })
	t.Run("TagStats", func(t *testing.T) { testTagStats(t, makeStore(t)) })
}

func mustCreateQuestion(t *testing.T, s store.Store, authorID, title string, tags []string) *model.Question {
	t.Helper()
	q, err := s.Questions().Create(context.Background(), &model.Question{
		QuestionID:  uuid.NewString(),
		AuthorID:    authorID,
		Title:       title,
		Description: "body of " + title,
		Tags:        tags,
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	return q
}

func mustCreateAnswer(t *testing.T, s store.Store, questionID, authorID string) *model.Answer {
	t.Helper()
	a, err := s.Answers().Create(context.Background(), &model.Answer{
		AnswerID:   uuid.NewString(),
		QuestionID: questionID,
		AuthorID:   authorID,
		Content:    "an answer",
	})
	if err != nil {
		t.Fatalf("create answer: %v", err)
	}
	return a
}

func testQuestionCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()

	q := mustCreateQuestion(t, s, "alice", "How do goroutines work?", []string{"go", "concurrency"})
	if q.CreationTime.IsZero() {
		t.Fatal("creation time not set")
	}
	if q.HasAccepted || q.AcceptedAnswerID != nil {
		t.Fatal("new question must not have an accepted answer")
	}

	got, err := s.Questions().GetByID(ctx, q.QuestionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != q.Title || got.AuthorID != "alice" || len(got.Tags) != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	got.Title = "How do goroutines really work?"
	got.Tags = []string{"go"}
	updated, err := s.Questions().Update(ctx, got)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != got.Title || len(updated.Tags) != 1 {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.UpdateTime == nil {
		t.Fatal("update time not set")
	}

	if err := s.Questions().Delete(ctx, q.QuestionID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Questions().GetByID(ctx, q.QuestionID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
	if err := s.Questions().Delete(ctx, q.QuestionID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound deleting twice, got %v", err)
	}
}

func testQuestionList(t *testing.T, s store.Store) {
	ctx := context.Background()

	mustCreateQuestion(t, s, "alice", "Indexing JSONB columns", []string{"postgres"})
	mustCreateQuestion(t, s, "bob", "Graceful shutdown patterns", []string{"go", "http"})
	mustCreateQuestion(t, s, "alice", "Channel deadlock debugging", []string{"go", "concurrency"})

	got, total, err := s.Questions().List(ctx, model.QuestionFilter{Tags: []string{"go"}, Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list by tag: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Fatalf("want 2 go questions, got total=%d len=%d", total, len(got))
	}

	got, total, err = s.Questions().List(ctx, model.QuestionFilter{AuthorID: "alice", Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list by author: %v", err)
	}
	if total != 2 {
		t.Fatalf("want 2 alice questions, got %d", total)
	}

	got, total, err = s.Questions().List(ctx, model.QuestionFilter{Query: "shutdown", Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if total != 1 || got[0].Title != "Graceful shutdown patterns" {
		t.Fatalf("query filter mismatch: total=%d", total)
	}

	got, total, err = s.Questions().List(ctx, model.QuestionFilter{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if total != 3 || len(got) != 1 {
		t.Fatalf("pagination mismatch: total=%d len=%d", total, len(got))
	}
}

func testQuestionCounters(t *testing.T, s store.Store) {
	ctx := context.Background()
	q := mustCreateQuestion(t, s, "alice", "counters", nil)

	sc, err := s.Questions().ApplyScoreDelta(ctx, q.QuestionID, model.ScoreDelta{Upvotes: 1})
	if err != nil {
		t.Fatalf("upvote delta: %v", err)
	}
	if sc.Upvotes != 1 || sc.Downvotes != 0 || sc.Score != 1 {
		t.Fatalf("after upvote: %+v", sc)
	}

	// Flip: one up removed, one down added, score swings by 2.
	sc, err = s.Questions().ApplyScoreDelta(ctx, q.QuestionID, model.ScoreDelta{Upvotes: -1, Downvotes: 1})
	if err != nil {
		t.Fatalf("flip delta: %v", err)
	}
	if sc.Upvotes != 0 || sc.Downvotes != 1 || sc.Score != -1 {
		t.Fatalf("after flip: %+v", sc)
	}

	if _, err := s.Questions().ApplyScoreDelta(ctx, uuid.NewString(), model.ScoreDelta{Upvotes: 1}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown question, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Questions().IncrementViewCount(ctx, q.QuestionID); err != nil {
			t.Fatalf("increment views: %v", err)
		}
	}
	got, err := s.Questions().GetByID(ctx, q.QuestionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ViewCount != 3 {
		t.Fatalf("want 3 views, got %d", got.ViewCount)
	}
	if got.Counters.Score != -1 {
		t.Fatalf("cached score drifted: %+v", got.Counters)
	}
}

func testAcceptedVersion(t *testing.T, s store.Store) {
	ctx := context.Background()
	q := mustCreateQuestion(t, s, "alice", "versioned acceptance", nil)
	a := mustCreateAnswer(t, s, q.QuestionID, "bob")

	if err := s.Questions().SetAccepted(ctx, q.QuestionID, &a.AnswerID, q.Version); err != nil {
		t.Fatalf("set accepted: %v", err)
	}
	got, err := s.Questions().GetByID(ctx, q.QuestionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.HasAccepted || got.AcceptedAnswerID == nil || *got.AcceptedAnswerID != a.AnswerID {
		t.Fatalf("accepted pointer not set: %+v", got)
	}
	if got.Version != q.Version+1 {
		t.Fatalf("version not bumped: %d -> %d", q.Version, got.Version)
	}

	// Stale version loses the race.
	if err := s.Questions().SetAccepted(ctx, q.QuestionID, nil, q.Version); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("want ErrConflict on stale version, got %v", err)
	}
	if err := s.Questions().SetAccepted(ctx, uuid.NewString(), nil, 0); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown question, got %v", err)
	}

	// Clear with the current version.
	if err := s.Questions().SetAccepted(ctx, q.QuestionID, nil, got.Version); err != nil {
		t.Fatalf("clear accepted: %v", err)
	}
	got, _ = s.Questions().GetByID(ctx, q.QuestionID)
	if got.HasAccepted || got.AcceptedAnswerID != nil {
		t.Fatalf("accepted pointer not cleared: %+v", got)
	}
}

func testQuestionDeleteCascade(t *testing.T, s store.Store) {
	ctx := context.Background()
	q := mustCreateQuestion(t, s, "alice", "cascade", nil)
	a := mustCreateAnswer(t, s, q.QuestionID, "bob")

	if _, err := s.Comments().Create(ctx, &model.Comment{
		CommentID: uuid.NewString(), AnswerID: a.AnswerID, QuestionID: q.QuestionID,
		AuthorID: "carol", Content: "nice",
	}); err != nil {
		t.Fatalf("create comment: %v", err)
	}
	if err := s.Votes().Create(ctx, &model.VoteRecord{
		ActorID: "carol", Target: model.TargetRef{Kind: model.TargetAnswer, ID: a.AnswerID}, Kind: model.VoteUp,
	}); err != nil {
		t.Fatalf("create vote: %v", err)
	}
	if _, err := s.Notifications().Create(ctx, &model.Notification{
		NotificationID: uuid.NewString(), RecipientID: "alice", Kind: "answer_created",
		Title: "t", Message: "m", RelatedID: a.AnswerID,
	}); err != nil {
		t.Fatalf("create notification: %v", err)
	}

	if err := s.Questions().Delete(ctx, q.QuestionID); err != nil {
		t.Fatalf("delete question: %v", err)
	}

	if _, err := s.Answers().GetByID(ctx, a.AnswerID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("answer survived cascade: %v", err)
	}
	if cs, err := s.Comments().ListByAnswer(ctx, a.AnswerID); err != nil || len(cs) != 0 {
		t.Fatalf("comments survived cascade: %v %d", err, len(cs))
	}
	target := model.TargetRef{Kind: model.TargetAnswer, ID: a.AnswerID}
	if _, err := s.Votes().Get(ctx, "carol", target); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("vote survived cascade: %v", err)
	}
	if total, _, err := s.Notifications().Counts(ctx, "alice"); err != nil || total != 0 {
		t.Fatalf("notification survived cascade: %v %d", err, total)
	}
}

func testFindLexical(t *testing.T, s store.Store) {
	ctx := context.Background()
	self := mustCreateQuestion(t, s, "alice", "Connection pooling in pgx", []string{"go", "postgres"})
	byTag := mustCreateQuestion(t, s, "bob", "Unrelated title", []string{"postgres"})
	byWord := mustCreateQuestion(t, s, "carol", "HTTP connection reuse", []string{"http"})
	mustCreateQuestion(t, s, "dave", "Nothing in common", []string{"rust"})

	got, err := s.Questions().FindLexical(ctx, []string{"go", "postgres"}, []string{"connection", "pooling"}, self.QuestionID, 10)
	if err != nil {
		t.Fatalf("find lexical: %v", err)
	}
	ids := map[string]bool{}
	for _, q := range got {
		ids[q.QuestionID] = true
	}
	if ids[self.QuestionID] {
		t.Fatal("lexical search must exclude the source question")
	}
	if !ids[byTag.QuestionID] || !ids[byWord.QuestionID] || len(got) != 2 {
		t.Fatalf("lexical candidates mismatch: %v", ids)
	}

	got, err = s.Questions().FindLexical(ctx, nil, nil, self.QuestionID, 10)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty criteria should match nothing: %v %d", err, len(got))
	}
}

func testAnswerCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	q := mustCreateQuestion(t, s, "alice", "answers", nil)

	a := mustCreateAnswer(t, s, q.QuestionID, "bob")
	a2 := mustCreateAnswer(t, s, q.QuestionID, "carol")

	got, err := s.Answers().GetByID(ctx, a.AnswerID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.QuestionID != q.QuestionID || got.IsAccepted {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	got.Content = "revised"
	updated, err := s.Answers().Update(ctx, got)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Content != "revised" || updated.UpdateTime == nil {
		t.Fatalf("update not applied: %+v", updated)
	}

	list, err := s.Answers().ListByQuestion(ctx, q.QuestionID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("want 2 answers, got %d", len(list))
	}

	n, err := s.Questions().CountAnswers(ctx, q.QuestionID)
	if err != nil || n != 2 {
		t.Fatalf("count answers: %v %d", err, n)
	}

	sc, err := s.Answers().ApplyScoreDelta(ctx, a2.AnswerID, model.ScoreDelta{Downvotes: 1})
	if err != nil || sc.Score != -1 {
		t.Fatalf("answer delta: %v %+v", err, sc)
	}
}

func testAnswerAcceptedFlags(t *testing.T, s store.Store) {
	ctx := context.Background()
	q := mustCreateQuestion(t, s, "alice", "flags", nil)
	a1 := mustCreateAnswer(t, s, q.QuestionID, "bob")
	a2 := mustCreateAnswer(t, s, q.QuestionID, "carol")

	if err := s.Answers().MarkAccepted(ctx, a1.AnswerID); err != nil {
		t.Fatalf("mark accepted: %v", err)
	}
	if err := s.Answers().ClearAccepted(ctx, q.QuestionID); err != nil {
		t.Fatalf("clear accepted: %v", err)
	}
	if err := s.Answers().MarkAccepted(ctx, a2.AnswerID); err != nil {
		t.Fatalf("mark accepted: %v", err)
	}

	// At most one answer per question carries the flag.
	list, err := s.Answers().ListByQuestion(ctx, q.QuestionID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	accepted := 0
	for _, a := range list {
		if a.IsAccepted {
			accepted++
			if a.AnswerID != a2.AnswerID {
				t.Fatalf("wrong answer flagged: %s", a.AnswerID)
			}
		}
	}
	if accepted != 1 {
		t.Fatalf("want exactly 1 accepted answer, got %d", accepted)
	}

	if err := s.Answers().MarkAccepted(ctx, uuid.NewString()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func testAnswerDeleteCascade(t *testing.T, s store.Store) {
	ctx := context.Background()
	q := mustCreateQuestion(t, s, "alice", "answer cascade", nil)
	a := mustCreateAnswer(t, s, q.QuestionID, "bob")

	if err := s.Answers().MarkAccepted(ctx, a.AnswerID); err != nil {
		t.Fatalf("mark accepted: %v", err)
	}
	if err := s.Questions().SetAccepted(ctx, q.QuestionID, &a.AnswerID, q.Version); err != nil {
		t.Fatalf("set accepted: %v", err)
	}
	if _, err := s.Comments().Create(ctx, &model.Comment{
		CommentID: uuid.NewString(), AnswerID: a.AnswerID, QuestionID: q.QuestionID,
		AuthorID: "carol", Content: "hm",
	}); err != nil {
		t.Fatalf("create comment: %v", err)
	}
	target := model.TargetRef{Kind: model.TargetAnswer, ID: a.AnswerID}
	if err := s.Votes().Create(ctx, &model.VoteRecord{ActorID: "carol", Target: target, Kind: model.VoteUp}); err != nil {
		t.Fatalf("create vote: %v", err)
	}

	if err := s.Answers().Delete(ctx, a.AnswerID); err != nil {
		t.Fatalf("delete answer: %v", err)
	}

	got, err := s.Questions().GetByID(ctx, q.QuestionID)
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	if got.HasAccepted || got.AcceptedAnswerID != nil {
		t.Fatal("accepted pointer must be cleared when the answer is deleted")
	}
	if cs, _ := s.Comments().ListByAnswer(ctx, a.AnswerID); len(cs) != 0 {
		t.Fatalf("comments survived cascade: %d", len(cs))
	}
	if _, err := s.Votes().Get(ctx, "carol", target); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("vote survived cascade: %v", err)
	}
}

func testVoteConditionalOps(t *testing.T, s store.Store) {
	ctx := context.Background()
	q := mustCreateQuestion(t, s, "alice", "votes", nil)
	target := model.TargetRef{Kind: model.TargetQuestion, ID: q.QuestionID}

	if _, err := s.Votes().Get(ctx, "bob", target); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound before voting, got %v", err)
	}

	rec := &model.VoteRecord{ActorID: "bob", Target: target, Kind: model.VoteUp}
	if err := s.Votes().Create(ctx, rec); err != nil {
		t.Fatalf("create vote: %v", err)
	}
	if err := s.Votes().Create(ctx, rec); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("want ErrConflict on duplicate vote, got %v", err)
	}

	got, err := s.Votes().Get(ctx, "bob", target)
	if err != nil || got.Kind != model.VoteUp {
		t.Fatalf("get vote: %v %+v", err, got)
	}

	// Flip succeeds only against the observed kind.
	if err := s.Votes().UpdateKind(ctx, "bob", target, model.VoteDown, model.VoteUp); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("want ErrConflict on wrong observed kind, got %v", err)
	}
	if err := s.Votes().UpdateKind(ctx, "bob", target, model.VoteUp, model.VoteDown); err != nil {
		t.Fatalf("flip vote: %v", err)
	}

	if err := s.Votes().Delete(ctx, "bob", target, model.VoteUp); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("want ErrConflict on wrong observed kind, got %v", err)
	}
	if err := s.Votes().Delete(ctx, "bob", target, model.VoteDown); err != nil {
		t.Fatalf("delete vote: %v", err)
	}
	if _, err := s.Votes().Get(ctx, "bob", target); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("vote not deleted: %v", err)
	}
}

func testComments(t *testing.T, s store.Store) {
	ctx := context.Background()
	q := mustCreateQuestion(t, s, "alice", "comments", nil)
	a := mustCreateAnswer(t, s, q.QuestionID, "bob")

	c, err := s.Comments().Create(ctx, &model.Comment{
		CommentID: uuid.NewString(), AnswerID: a.AnswerID, QuestionID: q.QuestionID,
		AuthorID: "carol", Content: "have you tried pprof?",
	})
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	got, err := s.Comments().GetByID(ctx, c.CommentID)
	if err != nil || got.Content != c.Content {
		t.Fatalf("get comment: %v", err)
	}
	list, err := s.Comments().ListByAnswer(ctx, a.AnswerID)
	if err != nil || len(list) != 1 {
		t.Fatalf("list comments: %v %d", err, len(list))
	}
	if err := s.Comments().Delete(ctx, c.CommentID); err != nil {
		t.Fatalf("delete comment: %v", err)
	}
	if _, err := s.Comments().GetByID(ctx, c.CommentID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
}

func testNotifications(t *testing.T, s store.Store) {
	ctx := context.Background()

	var first *model.Notification
	for i := 0; i < 3; i++ {
		n, err := s.Notifications().Create(ctx, &model.Notification{
			NotificationID: uuid.NewString(), RecipientID: "alice",
			Kind: "answer_created", Title: "New answer", Message: "someone answered",
		})
		if err != nil {
			t.Fatalf("create notification: %v", err)
		}
		if first == nil {
			first = n
		}
	}

	list, err := s.Notifications().ListByRecipient(ctx, "alice", 10, 0)
	if err != nil || len(list) != 3 {
		t.Fatalf("list: %v %d", err, len(list))
	}
	total, unread, err := s.Notifications().Counts(ctx, "alice")
	if err != nil || total != 3 || unread != 3 {
		t.Fatalf("counts: %v total=%d unread=%d", err, total, unread)
	}

	if err := s.Notifications().MarkRead(ctx, first.NotificationID, "alice"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	// Recipient scoping: someone else cannot touch alice's rows.
	if err := s.Notifications().MarkRead(ctx, first.NotificationID, "bob"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound for wrong recipient, got %v", err)
	}

	n, err := s.Notifications().MarkAllRead(ctx, "alice")
	if err != nil || n != 2 {
		t.Fatalf("mark all read: %v n=%d", err, n)
	}
	_, unread, _ = s.Notifications().Counts(ctx, "alice")
	if unread != 0 {
		t.Fatalf("want 0 unread, got %d", unread)
	}

	if err := s.Notifications().Delete(ctx, first.NotificationID, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	total, _, _ = s.Notifications().Counts(ctx, "alice")
	if total != 2 {
		t.Fatalf("want 2 after delete, got %d", total)
	}
}

func testOutbox(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Outbox().Enqueue(ctx, "upsert_question", uuid.NewString(), map[string]interface{}{"n": i}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	jobs, err := s.Outbox().Lease(ctx, 2)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("want 2 leased jobs, got %d", len(jobs))
	}
	if jobs[0].ID >= jobs[1].ID {
		t.Fatal("jobs must come back oldest first")
	}

	// Leased jobs are invisible to a second lease.
	rest, err := s.Outbox().Lease(ctx, 10)
	if err != nil {
		t.Fatalf("second lease: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("want 1 remaining job, got %d", len(rest))
	}

	if err := s.Outbox().MarkDone(ctx, jobs[0].ID); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	// Failed jobs back off and are not immediately ready.
	if err := s.Outbox().MarkFailed(ctx, jobs[1].ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	again, err := s.Outbox().Lease(ctx, 10)
	if err != nil {
		t.Fatalf("third lease: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("failed job leased before backoff elapsed: %d", len(again))
	}
}

func testTagStats(t *testing.T, s store.Store) {
	ctx := context.Background()

	if err := s.Tags().IncrementUsage(ctx, []string{"go", "postgres"}); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := s.Tags().IncrementUsage(ctx, []string{"go"}); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := s.Tags().IncrementUsage(ctx, nil); err != nil {
		t.Fatalf("empty increment must be a no-op: %v", err)
	}

	stats, err := s.Tags().ListPopular(ctx, 10)
	if err != nil {
		t.Fatalf("list popular: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("want 2 tags, got %d", len(stats))
	}
	if stats[0].Tag != "go" || stats[0].UsageCount != 2 {
		t.Fatalf("most used tag mismatch: %+v", stats[0])
	}
	if stats[1].Tag != "postgres" || stats[1].UsageCount != 1 {
		t.Fatalf("second tag mismatch: %+v", stats[1])
	}
	if stats[0].LastUsedAt.IsZero() {
		t.Fatal("last used time not set")
	}

	stats, err = s.Tags().ListPopular(ctx, 1)
	if err != nil || len(stats) != 1 {
		t.Fatalf("limit not honored: %v %d", err, len(stats))
	}
}
