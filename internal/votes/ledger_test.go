package votes

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/askloop/askloop/server/internal/model"
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

func seedQuestion(t *testing.T, s store.Store) model.TargetRef {
	t.Helper()
	q, err := s.Questions().Create(context.Background(), &model.Question{
		QuestionID:  uuid.NewString(),
		AuthorID:    "author",
		Title:       "test question",
		Description: "body",
	})
	if err != nil {
		t.Fatalf("seed question: %v", err)
	}
	return model.TargetRef{Kind: model.TargetQuestion, ID: q.QuestionID}
}

func applyCast(t *testing.T, l *Ledger, agg *Aggregator, actor string, target model.TargetRef, kind model.VoteKind) *model.ScoreCounters {
	t.Helper()
	d, err := l.Cast(context.Background(), actor, target, kind)
	if err != nil {
		t.Fatalf("cast %s by %s: %v", kind, actor, err)
	}
	sc, err := agg.Apply(context.Background(), target, d)
	if err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	return sc
}

func TestCastIsIdempotentPerKind(t *testing.T) {
	s := newTestStore(t)
	l := NewLedger(s, zerolog.Nop())
	agg := NewAggregator(s)
	target := seedQuestion(t, s)

	sc := applyCast(t, l, agg, "alice", target, model.VoteUp)
	if sc.Upvotes != 1 || sc.Score != 1 {
		t.Fatalf("after first upvote: %+v", sc)
	}

	// Same actor, same kind: no counter movement, fresh totals returned.
	for i := 0; i < 3; i++ {
		sc = applyCast(t, l, agg, "alice", target, model.VoteUp)
	}
	if sc.Upvotes != 1 || sc.Downvotes != 0 || sc.Score != 1 {
		t.Fatalf("re-votes moved counters: %+v", sc)
	}
}

func TestFlipSwingsScoreByTwo(t *testing.T) {
	s := newTestStore(t)
	l := NewLedger(s, zerolog.Nop())
	agg := NewAggregator(s)
	target := seedQuestion(t, s)

	applyCast(t, l, agg, "alice", target, model.VoteUp)
	sc := applyCast(t, l, agg, "alice", target, model.VoteDown)
	if sc.Upvotes != 0 || sc.Downvotes != 1 || sc.Score != -1 {
		t.Fatalf("after flip: %+v", sc)
	}

	// Flip back.
	sc = applyCast(t, l, agg, "alice", target, model.VoteUp)
	if sc.Upvotes != 1 || sc.Downvotes != 0 || sc.Score != 1 {
		t.Fatalf("after second flip: %+v", sc)
	}
}

func TestCastRemoveAcrossActors(t *testing.T) {
	s := newTestStore(t)
	l := NewLedger(s, zerolog.Nop())
	agg := NewAggregator(s)
	target := seedQuestion(t, s)
	ctx := context.Background()

	applyCast(t, l, agg, "alice", target, model.VoteUp)
	applyCast(t, l, agg, "bob", target, model.VoteDown)

	d, err := l.Remove(ctx, "alice", target)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	sc, err := agg.Apply(ctx, target, d)
	if err != nil {
		t.Fatalf("apply removal: %v", err)
	}
	if sc.Upvotes != 0 || sc.Downvotes != 1 || sc.Score != -1 {
		t.Fatalf("after alice removes: %+v", sc)
	}

	// Removing again is a no-op.
	d, err = l.Remove(ctx, "alice", target)
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if !d.IsZero() {
		t.Fatalf("second remove produced delta: %+v", d)
	}
}

func TestVotesAreIndependentPerActor(t *testing.T) {
	s := newTestStore(t)
	l := NewLedger(s, zerolog.Nop())
	agg := NewAggregator(s)
	target := seedQuestion(t, s)

	var sc *model.ScoreCounters
	for _, actor := range []string{"a", "b", "c"} {
		sc = applyCast(t, l, agg, actor, target, model.VoteUp)
	}
	sc = applyCast(t, l, agg, "d", target, model.VoteDown)
	if sc.Upvotes != 3 || sc.Downvotes != 1 || sc.Score != 2 {
		t.Fatalf("mixed actors: %+v", sc)
	}
}

func TestCastUnknownTarget(t *testing.T) {
	s := newTestStore(t)
	l := NewLedger(s, zerolog.Nop())

	target := model.TargetRef{Kind: model.TargetQuestion, ID: uuid.NewString()}
	if _, err := l.Cast(context.Background(), "alice", target, model.VoteUp); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := l.Remove(context.Background(), "alice", target); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
