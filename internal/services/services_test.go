package services

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/notify"
	"github.com/askloop/askloop/server/internal/searchindex"
	"github.com/askloop/askloop/server/internal/store"
	"github.com/askloop/askloop/server/internal/store/sqlite"
	"github.com/askloop/askloop/server/internal/votes"
)

type recordingIndex struct {
	deletes []string
}

func (r *recordingIndex) Upsert(context.Context, searchindex.Document) error { return nil }
func (r *recordingIndex) Delete(_ context.Context, id string) error {
	r.deletes = append(r.deletes, id)
	return nil
}
func (r *recordingIndex) Query(context.Context, string, int, searchindex.Filter) ([]searchindex.Hit, error) {
	return nil, nil
}

type fixture struct {
	store     store.Store
	index     *recordingIndex
	questions *QuestionService
	answers   *AnswerService
	votes     *VoteService
	inbox     *NotificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.OpenMemory()
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := sqlite.EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	s := sqlite.New(db)
	idx := &recordingIndex{}
	log := zerolog.Nop()
	fanout := notify.NewFanout(log, notify.NewInboxSink(s))
	return &fixture{
		store:     s,
		index:     idx,
		questions: NewQuestionService(s, idx, log),
		answers:   NewAnswerService(s, idx, fanout, log),
		votes:     NewVoteService(votes.NewLedger(s, log), votes.NewAggregator(s)),
		inbox:     NewNotificationService(s),
	}
}

func TestQuestionCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []CreateQuestionRequest{
		{AuthorID: "", Title: "t", Description: "d"},
		{AuthorID: "alice", Title: "  ", Description: "d"},
		{AuthorID: "alice", Title: "t", Description: ""},
		{AuthorID: "alice", Title: "t", Description: "d", Tags: []string{"a", "b", "c", "d", "e", "f"}},
	}
	for i, req := range cases {
		if _, err := f.questions.Create(ctx, req); !errors.Is(err, model.ErrValidation) {
			t.Fatalf("case %d: want ErrValidation, got %v", i, err)
		}
	}
}

func TestQuestionCreateEnqueuesIndexUpsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.questions.Create(ctx, CreateQuestionRequest{
		AuthorID: "alice", Title: "Outbox wiring", Description: "body",
		Tags: []string{"Go", "go", " infra "},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(q.Tags) != 2 || q.Tags[0] != "go" || q.Tags[1] != "infra" {
		t.Fatalf("tags not normalized: %v", q.Tags)
	}

	jobs, err := f.store.Outbox().Lease(ctx, 10)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Op != "upsert_question" || jobs[0].AggregateID != q.QuestionID {
		t.Fatalf("outbox jobs: %+v", jobs)
	}
}

func TestGetCountsViewsAndComposes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.questions.Create(ctx, CreateQuestionRequest{
		AuthorID: "alice", Title: "composition", Description: "body",
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	a, err := f.answers.Create(ctx, "bob", q.QuestionID, "an answer")
	if err != nil {
		t.Fatalf("create answer: %v", err)
	}
	if _, err := f.answers.CreateComment(ctx, "carol", a.AnswerID, "a comment"); err != nil {
		t.Fatalf("create comment: %v", err)
	}

	detail, err := f.questions.Get(ctx, q.QuestionID, true)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.ViewCount != 1 {
		t.Fatalf("view count: %d", detail.ViewCount)
	}
	if detail.AnswerCount != 1 || len(detail.Answers) != 1 || len(detail.Answers[0].Comments) != 1 {
		t.Fatalf("composition: %+v", detail)
	}

	// Listing view does not bump the counter.
	detail, err = f.questions.Get(ctx, q.QuestionID, false)
	if err != nil {
		t.Fatalf("get without view: %v", err)
	}
	if detail.ViewCount != 1 {
		t.Fatalf("view count moved on read: %d", detail.ViewCount)
	}
}

func TestAnswerCreateNotifiesQuestionAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.questions.Create(ctx, CreateQuestionRequest{
		AuthorID: "alice", Title: "q", Description: "b",
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}

	if _, err := f.answers.Create(ctx, "bob", q.QuestionID, "answer from bob"); err != nil {
		t.Fatalf("create answer: %v", err)
	}
	_, unread, err := f.inbox.Counts(ctx, "alice")
	if err != nil || unread != 1 {
		t.Fatalf("alice inbox: %v unread=%d", err, unread)
	}

	// Self-answer stays silent.
	if _, err := f.answers.Create(ctx, "alice", q.QuestionID, "answering myself"); err != nil {
		t.Fatalf("self answer: %v", err)
	}
	_, unread, _ = f.inbox.Counts(ctx, "alice")
	if unread != 1 {
		t.Fatalf("self-answer notified: unread=%d", unread)
	}

	// Mentions fan out to the named users.
	if _, err := f.answers.Create(ctx, "bob", q.QuestionID, "ping @carol and @carol again"); err != nil {
		t.Fatalf("mention answer: %v", err)
	}
	_, unread, _ = f.inbox.Counts(ctx, "carol")
	if unread != 1 {
		t.Fatalf("mention fanout: unread=%d", unread)
	}
}

func TestOwnershipGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.questions.Create(ctx, CreateQuestionRequest{AuthorID: "alice", Title: "q", Description: "b"})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	a, err := f.answers.Create(ctx, "bob", q.QuestionID, "answer")
	if err != nil {
		t.Fatalf("create answer: %v", err)
	}

	title := "hijack"
	if _, err := f.questions.Update(ctx, "bob", q.QuestionID, UpdateQuestionRequest{Title: &title}); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("question update guard: %v", err)
	}
	if err := f.questions.Delete(ctx, "bob", q.QuestionID); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("question delete guard: %v", err)
	}
	if _, err := f.answers.Update(ctx, "alice", a.AnswerID, "rewrite"); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("answer update guard: %v", err)
	}
	if err := f.answers.Delete(ctx, "alice", a.AnswerID); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("answer delete guard: %v", err)
	}
}

func TestQuestionDeleteRemovesIndexEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.questions.Create(ctx, CreateQuestionRequest{AuthorID: "alice", Title: "q", Description: "b"})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	a, err := f.answers.Create(ctx, "bob", q.QuestionID, "answer")
	if err != nil {
		t.Fatalf("create answer: %v", err)
	}

	if err := f.questions.Delete(ctx, "alice", q.QuestionID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.index.deletes) != 2 {
		t.Fatalf("index deletes: %v", f.index.deletes)
	}
	want := map[string]bool{q.QuestionID: true, a.AnswerID: true}
	for _, id := range f.index.deletes {
		if !want[id] {
			t.Fatalf("unexpected index delete: %s", id)
		}
	}
}

func TestVoteServiceEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.questions.Create(ctx, CreateQuestionRequest{AuthorID: "alice", Title: "q", Description: "b"})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}

	sc, err := f.votes.Cast(ctx, "bob", "question", q.QuestionID, "up")
	if err != nil || sc.Score != 1 {
		t.Fatalf("cast: %v %+v", err, sc)
	}
	sc, err = f.votes.Cast(ctx, "carol", "question", q.QuestionID, "down")
	if err != nil || sc.Score != 0 {
		t.Fatalf("second cast: %v %+v", err, sc)
	}
	sc, err = f.votes.Remove(ctx, "bob", "question", q.QuestionID)
	if err != nil || sc.Score != -1 || sc.Upvotes != 0 || sc.Downvotes != 1 {
		t.Fatalf("remove: %v %+v", err, sc)
	}

	if _, err := f.votes.Cast(ctx, "bob", "poll", q.QuestionID, "up"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("bad target kind: %v", err)
	}
	if _, err := f.votes.Cast(ctx, "bob", "question", q.QuestionID, "sideways"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("bad vote kind: %v", err)
	}
}
