package accept

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/notify"
	"github.com/askloop/askloop/server/internal/store"
	"github.com/askloop/askloop/server/internal/store/sqlite"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sqlite.OpenMemory()
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := sqlite.EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return sqlite.New(db)
}

func seed(t *testing.T, s store.Store) (q *model.Question, a1, a2 *model.Answer) {
	t.Helper()
	ctx := context.Background()
	q, err := s.Questions().Create(ctx, &model.Question{
		QuestionID: uuid.NewString(), AuthorID: "alice",
		Title: "which answer wins?", Description: "body",
	})
	if err != nil {
		t.Fatalf("seed question: %v", err)
	}
	a1, err = s.Answers().Create(ctx, &model.Answer{
		AnswerID: uuid.NewString(), QuestionID: q.QuestionID, AuthorID: "bob", Content: "first",
	})
	if err != nil {
		t.Fatalf("seed answer 1: %v", err)
	}
	a2, err = s.Answers().Create(ctx, &model.Answer{
		AnswerID: uuid.NewString(), QuestionID: q.QuestionID, AuthorID: "carol", Content: "second",
	})
	if err != nil {
		t.Fatalf("seed answer 2: %v", err)
	}
	return q, a1, a2
}

func assertExclusive(t *testing.T, s store.Store, questionID, wantAccepted string) {
	t.Helper()
	list, err := s.Answers().ListByQuestion(context.Background(), questionID)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	flagged := 0
	for _, a := range list {
		if a.IsAccepted {
			flagged++
			if a.AnswerID != wantAccepted {
				t.Fatalf("wrong answer flagged: %s", a.AnswerID)
			}
		}
	}
	want := 1
	if wantAccepted == "" {
		want = 0
	}
	if flagged != want {
		t.Fatalf("want %d flagged answers, got %d", want, flagged)
	}
}

func TestAcceptAndSwitch(t *testing.T) {
	s := newTestStore(t)
	c := NewCoordinator(s, notify.NewFanout(zerolog.Nop(), notify.NewInboxSink(s)), zerolog.Nop())
	q, a1, a2 := seed(t, s)
	ctx := context.Background()

	got, err := c.Accept(ctx, "alice", q.QuestionID, a1.AnswerID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !got.HasAccepted || *got.AcceptedAnswerID != a1.AnswerID {
		t.Fatalf("pointer after accept: %+v", got)
	}
	assertExclusive(t, s, q.QuestionID, a1.AnswerID)

	// Bob gets an inbox notification for the accept.
	_, unread, err := s.Notifications().Counts(ctx, "bob")
	if err != nil || unread != 1 {
		t.Fatalf("bob notifications: %v unread=%d", err, unread)
	}

	// Switching moves the flag and the pointer together.
	got, err = c.Accept(ctx, "alice", q.QuestionID, a2.AnswerID)
	if err != nil {
		t.Fatalf("switch accept: %v", err)
	}
	if *got.AcceptedAnswerID != a2.AnswerID {
		t.Fatalf("pointer after switch: %+v", got)
	}
	assertExclusive(t, s, q.QuestionID, a2.AnswerID)

	// Re-accepting the current answer is a no-op and emits nothing.
	before, _, _ := s.Notifications().Counts(ctx, "carol")
	if _, err := c.Accept(ctx, "alice", q.QuestionID, a2.AnswerID); err != nil {
		t.Fatalf("re-accept: %v", err)
	}
	after, _, _ := s.Notifications().Counts(ctx, "carol")
	if after != before {
		t.Fatal("no-op re-accept emitted a notification")
	}
}

func TestAcceptGuards(t *testing.T) {
	s := newTestStore(t)
	c := NewCoordinator(s, notify.NewFanout(zerolog.Nop()), zerolog.Nop())
	q, a1, _ := seed(t, s)
	ctx := context.Background()

	// Non-author may not accept, and state must not move.
	if _, err := c.Accept(ctx, "bob", q.QuestionID, a1.AnswerID); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
	got, _ := s.Questions().GetByID(ctx, q.QuestionID)
	if got.HasAccepted {
		t.Fatal("forbidden accept changed state")
	}
	assertExclusive(t, s, q.QuestionID, "")

	// Unknown question and unknown answer.
	if _, err := c.Accept(ctx, "alice", uuid.NewString(), a1.AnswerID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound for question, got %v", err)
	}
	if _, err := c.Accept(ctx, "alice", q.QuestionID, uuid.NewString()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound for answer, got %v", err)
	}

	// Answer from a different question.
	other, err := s.Questions().Create(ctx, &model.Question{
		QuestionID: uuid.NewString(), AuthorID: "alice", Title: "other", Description: "b",
	})
	if err != nil {
		t.Fatalf("seed other question: %v", err)
	}
	foreign, err := s.Answers().Create(ctx, &model.Answer{
		AnswerID: uuid.NewString(), QuestionID: other.QuestionID, AuthorID: "bob", Content: "x",
	})
	if err != nil {
		t.Fatalf("seed foreign answer: %v", err)
	}
	if _, err := c.Accept(ctx, "alice", q.QuestionID, foreign.AnswerID); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("want ErrInvalidState, got %v", err)
	}
}

func TestUnaccept(t *testing.T) {
	s := newTestStore(t)
	c := NewCoordinator(s, notify.NewFanout(zerolog.Nop()), zerolog.Nop())
	q, a1, _ := seed(t, s)
	ctx := context.Background()

	// Clearing an unaccepted question is a no-op.
	got, err := c.Unaccept(ctx, "alice", q.QuestionID)
	if err != nil {
		t.Fatalf("unaccept noop: %v", err)
	}
	if got.HasAccepted {
		t.Fatalf("unexpected accepted state: %+v", got)
	}

	if _, err := c.Accept(ctx, "alice", q.QuestionID, a1.AnswerID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := c.Unaccept(ctx, "bob", q.QuestionID); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}

	got, err = c.Unaccept(ctx, "alice", q.QuestionID)
	if err != nil {
		t.Fatalf("unaccept: %v", err)
	}
	if got.HasAccepted || got.AcceptedAnswerID != nil {
		t.Fatalf("pointer not cleared: %+v", got)
	}
	assertExclusive(t, s, q.QuestionID, "")
}

func TestConcurrentAcceptsConvergeToOneAnswer(t *testing.T) {
	s := newTestStore(t)
	c := NewCoordinator(s, notify.NewFanout(zerolog.Nop()), zerolog.Nop())
	q, a1, a2 := seed(t, s)

	const callers = 8
	errCh := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		answerID := a1.AnswerID
		if i%2 == 1 {
			answerID = a2.AnswerID
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Accept(context.Background(), "alice", q.QuestionID, answerID); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)

	failures := 0
	for err := range errCh {
		failures++
		if !errors.Is(err, model.ErrConflict) {
			t.Fatalf("concurrent accept failed with non-conflict error: %v", err)
		}
	}
	if failures == callers {
		t.Fatal("no accept call succeeded")
	}

	got, err := s.Questions().GetByID(context.Background(), q.QuestionID)
	if err != nil {
		t.Fatalf("read question: %v", err)
	}
	if !got.HasAccepted || got.AcceptedAnswerID == nil {
		t.Fatalf("no accepted answer after concurrent accepts: %+v", got)
	}
	assertExclusive(t, s, q.QuestionID, *got.AcceptedAnswerID)
}

// racingAnswers bumps the question version behind the caller's back right
// after the flag flips, forcing the conditional pointer update to lose.
type racingAnswers struct {
	store.Answers
	db         *sql.DB
	questionID string
}

func (r racingAnswers) MarkAccepted(ctx context.Context, answerID string) error {
	if err := r.Answers.MarkAccepted(ctx, answerID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE questions SET version = version + 1 WHERE question_id = ?`, r.questionID)
	return err
}

// noTxStore hides the transaction capability of the wrapped store.
type noTxStore struct {
	store.Store
	answers store.Answers
}

func (s noTxStore) Answers() store.Answers { return s.answers }

func TestNonTxConflictRepairsFlags(t *testing.T) {
	db, err := sqlite.OpenMemory()
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := sqlite.EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	base := sqlite.New(db)
	q, a1, _ := seed(t, base)

	wrapped := noTxStore{
		Store:   base,
		answers: racingAnswers{Answers: base.Answers(), db: db, questionID: q.QuestionID},
	}
	c := NewCoordinator(wrapped, notify.NewFanout(zerolog.Nop()), zerolog.Nop())

	if _, err := c.Accept(context.Background(), "alice", q.QuestionID, a1.AnswerID); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("want ErrConflict from raced accept, got %v", err)
	}

	got, err := base.Questions().GetByID(context.Background(), q.QuestionID)
	if err != nil {
		t.Fatalf("read question: %v", err)
	}
	if got.AcceptedAnswerID != nil || got.HasAccepted {
		t.Fatalf("pointer moved despite conflict: %+v", got)
	}
	// The losing flag must not survive the conflict.
	assertExclusive(t, base, q.QuestionID, "")
}
