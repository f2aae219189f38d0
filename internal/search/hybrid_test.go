package search

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/searchindex"
	"github.com/askloop/askloop/server/internal/store"
	"github.com/askloop/askloop/server/internal/store/sqlite"
)

type fakeIndex struct {
	hits    []searchindex.Hit
	err     error
	queries int
}

func (f *fakeIndex) Upsert(context.Context, searchindex.Document) error { return nil }
func (f *fakeIndex) Delete(context.Context, string) error               { return nil }

func (f *fakeIndex) Query(_ context.Context, _ string, limit int, _ searchindex.Filter) ([]searchindex.Hit, error) {
	f.queries++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > limit {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

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

func seedQuestion(t *testing.T, s store.Store, title string, tags []string) *model.Question {
	t.Helper()
	q, err := s.Questions().Create(context.Background(), &model.Question{
		QuestionID:  uuid.NewString(),
		AuthorID:    "author",
		Title:       title,
		Description: "body of " + title,
		Tags:        tags,
	})
	if err != nil {
		t.Fatalf("seed question: %v", err)
	}
	return q
}

func TestFindSimilarSemanticPath(t *testing.T) {
	s := newTestStore(t)
	src := seedQuestion(t, s, "Tuning connection pools", []string{"go", "postgres"})
	n1 := seedQuestion(t, s, "Pool sizing for pgx", []string{"postgres"})
	n2 := seedQuestion(t, s, "Timeouts under load", []string{"go"})

	idx := &fakeIndex{hits: []searchindex.Hit{
		{ID: src.QuestionID, Kind: "question", Score: 0.99}, // index returns the source too
		{ID: n1.QuestionID, Kind: "question", Score: 0.91},
		{ID: n2.QuestionID, Kind: "question", Score: 0.84},
	}}
	sr := NewSearcher(s, idx, zerolog.Nop())

	hits, err := sr.FindSimilar(context.Background(), src.QuestionID, 2)
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("want 2 hits, got %d", len(hits))
	}
	for _, h := range hits {
		if h.Target.ID == src.QuestionID {
			t.Fatal("source question returned as its own neighbor")
		}
		if h.Source != model.SourceSemantic {
			t.Fatalf("want semantic source, got %s", h.Source)
		}
	}
	if hits[0].Target.ID != n1.QuestionID || hits[0].RelevanceScore != 0.91 {
		t.Fatalf("top hit mismatch: %+v", hits[0])
	}
	if hits[0].Title != n1.Title || hits[0].AuthorID != "author" {
		t.Fatal("display attributes not hydrated from the store")
	}
}

func TestFindSimilarLexicalFallback(t *testing.T) {
	s := newTestStore(t)
	src := seedQuestion(t, s, "Connection pooling guide", []string{"go", "postgres"})
	both := seedQuestion(t, s, "Connection reuse tips", []string{"go"})          // 1 tag + 1 word = 3
	tagOnly := seedQuestion(t, s, "Unrelated title", []string{"go", "postgres"}) // 2 tags = 4
	wordOnly := seedQuestion(t, s, "Pooling strategies", []string{"rust"})       // 1 word = 1
	seedQuestion(t, s, "Zero overlap here", []string{"rust"})

	// 2 source tags and 3 title words make 7 the maximum raw score.
	const maxScore = 7.0

	for _, idx := range []*fakeIndex{
		{hits: nil},                          // empty result
		{err: errors.New("index unreachable")}, // transport failure
	} {
		sr := NewSearcher(s, idx, zerolog.Nop())
		hits, err := sr.FindSimilar(context.Background(), src.QuestionID, 5)
		if err != nil {
			t.Fatalf("find similar: %v", err)
		}
		if len(hits) != 3 {
			t.Fatalf("want 3 fallback hits, got %d", len(hits))
		}
		if hits[0].Target.ID != tagOnly.QuestionID || hits[0].RelevanceScore != 4.0/maxScore {
			t.Fatalf("rank 1 mismatch: %+v", hits[0])
		}
		if hits[1].Target.ID != both.QuestionID || hits[1].RelevanceScore != 3.0/maxScore {
			t.Fatalf("rank 2 mismatch: %+v", hits[1])
		}
		if hits[2].Target.ID != wordOnly.QuestionID || hits[2].RelevanceScore != 1.0/maxScore {
			t.Fatalf("rank 3 mismatch: %+v", hits[2])
		}
		for _, h := range hits {
			if h.Source != model.SourceLexical {
				t.Fatalf("want lexical source, got %s", h.Source)
			}
			if h.Target.ID == src.QuestionID {
				t.Fatal("fallback returned the source question")
			}
			if h.RelevanceScore <= 0 || h.RelevanceScore > 1 {
				t.Fatalf("relevance score out of (0, 1]: %f", h.RelevanceScore)
			}
		}
	}
}

func TestFindSimilarFallbackRelevanceStaysNormalized(t *testing.T) {
	s := newTestStore(t)
	src := seedQuestion(t, s, "Streaming replication setup", []string{"go", "postgres"})
	// Full overlap: both tags plus all three leading title words.
	twin := seedQuestion(t, s, "Streaming replication setup for standbys", []string{"go", "postgres"})

	sr := NewSearcher(s, &fakeIndex{}, zerolog.Nop())
	hits, err := sr.FindSimilar(context.Background(), src.QuestionID, 5)
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(hits) != 1 || hits[0].Target.ID != twin.QuestionID {
		t.Fatalf("want the twin question, got %+v", hits)
	}
	if hits[0].RelevanceScore != 1 {
		t.Fatalf("full overlap must score exactly 1, got %f", hits[0].RelevanceScore)
	}
}

func TestFindSimilarRetriesIndexOnce(t *testing.T) {
	s := newTestStore(t)
	src := seedQuestion(t, s, "retry behavior", nil)

	idx := &fakeIndex{err: errors.New("flaky")}
	sr := NewSearcher(s, idx, zerolog.Nop())
	if _, err := sr.FindSimilar(context.Background(), src.QuestionID, 3); err != nil {
		t.Fatalf("index failure must not surface: %v", err)
	}
	if idx.queries != 2 {
		t.Fatalf("want exactly 2 query attempts, got %d", idx.queries)
	}
}

// flakyQuestions fails reads a fixed number of times before delegating.
type flakyQuestions struct {
	store.Questions
	failures int
}

func (f *flakyQuestions) GetByID(ctx context.Context, id string) (*model.Question, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	return f.Questions.GetByID(ctx, id)
}

type flakyStore struct {
	store.Store
	questions *flakyQuestions
}

func (s flakyStore) Questions() store.Questions { return s.questions }

func TestFindSimilarRetriesTransientStoreRead(t *testing.T) {
	base := newTestStore(t)
	src := seedQuestion(t, base, "Tuning connection pools", []string{"go"})
	n1 := seedQuestion(t, base, "Pool sizing for pgx", []string{"go"})

	flaky := flakyStore{Store: base, questions: &flakyQuestions{Questions: base.Questions(), failures: 1}}
	idx := &fakeIndex{hits: []searchindex.Hit{{ID: n1.QuestionID, Kind: "question", Score: 0.9}}}
	sr := NewSearcher(flaky, idx, zerolog.Nop())

	hits, err := sr.FindSimilar(context.Background(), src.QuestionID, 3)
	if err != nil {
		t.Fatalf("single transient store failure must be retried: %v", err)
	}
	if len(hits) != 1 || hits[0].Target.ID != n1.QuestionID {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestFindSimilarUnknownQuestion(t *testing.T) {
	s := newTestStore(t)
	sr := NewSearcher(s, &fakeIndex{}, zerolog.Nop())
	if _, err := sr.FindSimilar(context.Background(), uuid.NewString(), 3); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSearchFallsBackToStoreListing(t *testing.T) {
	s := newTestStore(t)
	seedQuestion(t, s, "Graceful shutdown patterns", []string{"go"})
	seedQuestion(t, s, "Shutdown hooks in containers", []string{"docker"})
	seedQuestion(t, s, "Unrelated", []string{"rust"})

	sr := NewSearcher(s, &fakeIndex{err: errors.New("down")}, zerolog.Nop())
	res, err := sr.Search(context.Background(), model.QuestionFilter{Query: "shutdown", Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Total != 2 || len(res.Hits) != 2 {
		t.Fatalf("fallback listing: total=%d len=%d", res.Total, len(res.Hits))
	}
	for _, h := range res.Hits {
		if h.Source != model.SourceLexical {
			t.Fatalf("want lexical source, got %s", h.Source)
		}
		if h.RelevanceScore <= 0 || h.RelevanceScore > 1 {
			t.Fatalf("fallback score out of range: %f", h.RelevanceScore)
		}
	}
}

func TestSearchSemanticWithTagFilter(t *testing.T) {
	s := newTestStore(t)
	goQ := seedQuestion(t, s, "Worker pools", []string{"go"})
	rustQ := seedQuestion(t, s, "Thread pools", []string{"rust"})

	idx := &fakeIndex{hits: []searchindex.Hit{
		{ID: goQ.QuestionID, Kind: "question", Score: 0.9},
		{ID: rustQ.QuestionID, Kind: "question", Score: 0.8},
	}}
	sr := NewSearcher(s, idx, zerolog.Nop())

	res, err := sr.Search(context.Background(), model.QuestionFilter{
		Query: "pools", Tags: []string{"go"}, Page: 1, Limit: 10,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].Target.ID != goQ.QuestionID {
		t.Fatalf("tag filter not applied: %+v", res.Hits)
	}
	if res.Hits[0].Source != model.SourceSemantic {
		t.Fatalf("want semantic source, got %s", res.Hits[0].Source)
	}
}

func TestSearchEmptyQueryUsesStore(t *testing.T) {
	s := newTestStore(t)
	seedQuestion(t, s, "first", []string{"go"})
	seedQuestion(t, s, "second", []string{"go"})

	idx := &fakeIndex{}
	sr := NewSearcher(s, idx, zerolog.Nop())
	res, err := sr.Search(context.Background(), model.QuestionFilter{Page: 1, Limit: 1})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if idx.queries != 0 {
		t.Fatal("empty query must not hit the index")
	}
	if res.Total != 2 || len(res.Hits) != 1 || !res.HasNext {
		t.Fatalf("pagination: total=%d len=%d hasNext=%v", res.Total, len(res.Hits), res.HasNext)
	}
}
