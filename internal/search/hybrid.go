// Package search composes semantic retrieval over the vector index with a
// lexical store-side fallback. Index results carry only identity and
// relevance; everything shown to users is hydrated live from the store.
package search

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/searchindex"
	"github.com/askloop/askloop/server/internal/store"
)

// titleWordCount is how many leading title words feed the lexical
// fallback. Longer prefixes drown the tag signal in common words.
const titleWordCount = 3

// lexicalCandidateLimit bounds the fallback candidate pool.
const lexicalCandidateLimit = 50

// Searcher answers similarity and full-text queries.
type Searcher struct {
	store store.Store
	index searchindex.Index
	log   zerolog.Logger
}

func NewSearcher(s store.Store, idx searchindex.Index, log zerolog.Logger) *Searcher {
	return &Searcher{store: s, index: idx, log: log}
}

// FindSimilar returns up to limit questions similar to questionID, the
// source itself excluded. The semantic path is preferred; when the index
// yields nothing usable the lexical fallback takes over.
func (s *Searcher) FindSimilar(ctx context.Context, questionID string, limit int) ([]model.SearchHit, error) {
	if limit < 1 {
		limit = 5
	}
	src, err := s.getQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	hits := s.semanticNeighbors(ctx, src, limit)
	if len(hits) == 0 {
		return s.lexicalFallback(ctx, src, limit)
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return s.hydrate(ctx, hits)
}

// semanticNeighbors queries the index with the source's text. Over-fetch
// by one because the source itself is usually the best match. Transport
// failures are retried once, then downgraded to an empty result so the
// caller falls back; similarity is advisory, not load-bearing.
func (s *Searcher) semanticNeighbors(ctx context.Context, src *model.Question, limit int) []partialHit {
	text := src.Title + " " + src.Description
	f := searchindex.Filter{Kind: string(model.TargetQuestion), ExcludeID: src.QuestionID}

	raw, err := s.index.Query(ctx, text, limit+1, f)
	if err != nil {
		raw, err = s.index.Query(ctx, text, limit+1, f)
	}
	if err != nil {
		s.log.Debug().Err(err).Str("questionId", src.QuestionID).Msg("semantic query failed, using lexical fallback")
		return nil
	}

	out := make([]partialHit, 0, len(raw))
	for _, h := range raw {
		if h.ID == src.QuestionID {
			continue
		}
		out = append(out, partialHit{id: h.ID, score: h.Score, source: model.SourceSemantic})
	}
	return out
}

func (s *Searcher) lexicalFallback(ctx context.Context, src *model.Question, limit int) ([]model.SearchHit, error) {
	words := titleWords(src.Title)
	candidates, err := store.ReadWithRetry(ctx, func() ([]*model.Question, error) {
		return s.store.Questions().FindLexical(ctx, src.Tags, words, src.QuestionID, lexicalCandidateLimit)
	})
	if err != nil {
		return nil, err
	}

	// Relevance stays in (0, 1]: raw overlap counts are divided by the
	// maximum attainable score for this source.
	maxScore := 2*len(src.Tags) + len(words)

	type scored struct {
		q     *model.Question
		score int
	}
	var kept []scored
	for _, cand := range candidates {
		sc := lexicalScore(src.Tags, words, cand)
		if sc == 0 {
			continue
		}
		kept = append(kept, scored{q: cand, score: sc})
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].score != kept[j].score {
			return kept[i].score > kept[j].score
		}
		return kept[i].q.CreationTime.After(kept[j].q.CreationTime)
	})
	if len(kept) > limit {
		kept = kept[:limit]
	}

	out := make([]model.SearchHit, 0, len(kept))
	for _, k := range kept {
		hit := displayHit(k.q)
		hit.RelevanceScore = float64(k.score) / float64(maxScore)
		hit.Source = model.SourceLexical
		n, err := s.countAnswers(ctx, k.q.QuestionID)
		if err != nil {
			return nil, err
		}
		hit.AnswerCount = n
		out = append(out, hit)
	}
	return out, nil
}

// lexicalScore weighs shared tags double against title-word matches.
func lexicalScore(tags, words []string, cand *model.Question) int {
	score := 0
	candTags := make(map[string]bool, len(cand.Tags))
	for _, t := range cand.Tags {
		candTags[t] = true
	}
	for _, t := range tags {
		if candTags[t] {
			score += 2
		}
	}
	title := strings.ToLower(cand.Title)
	for _, w := range words {
		if strings.Contains(title, w) {
			score++
		}
	}
	return score
}

func titleWords(title string) []string {
	fields := strings.Fields(strings.ToLower(title))
	if len(fields) > titleWordCount {
		fields = fields[:titleWordCount]
	}
	return fields
}

// Search runs a paged full-text query with optional tag, author, and
// acceptance filters. Semantic ranking when the index cooperates; a
// store-side lexical listing otherwise.
func (s *Searcher) Search(ctx context.Context, f model.QuestionFilter) (*model.SearchResult, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}
	if strings.TrimSpace(f.Query) == "" {
		return s.storeSearch(ctx, f)
	}

	// The index cannot express author or acceptance filters, and tag
	// post-filtering shrinks the result set, so over-fetch and trim.
	k := f.Page * f.Limit
	if len(f.Tags) > 0 || f.AuthorID != "" || f.HasAccepted != nil {
		k = f.Page * f.Limit * 2
	}
	raw, err := s.index.Query(ctx, f.Query, k+1, searchindex.Filter{
		Kind: string(model.TargetQuestion),
		Tags: f.Tags,
	})
	if err != nil {
		raw, err = s.index.Query(ctx, f.Query, k+1, searchindex.Filter{
			Kind: string(model.TargetQuestion),
			Tags: f.Tags,
		})
	}
	if err != nil || len(raw) == 0 {
		if err != nil {
			s.log.Debug().Err(err).Str("query", f.Query).Msg("semantic search failed, using store listing")
		}
		return s.storeSearch(ctx, f)
	}

	partials := make([]partialHit, 0, len(raw))
	for _, h := range raw {
		partials = append(partials, partialHit{id: h.ID, score: h.Score, source: model.SourceSemantic})
	}
	hydrated, err := s.hydrateFiltered(ctx, partials, f)
	if err != nil {
		return nil, err
	}

	return paginate(hydrated, f.Page, f.Limit), nil
}

// storeSearch lists questions straight from the store, newest first.
// Relevance is rank-based so fallback scores still land in [0, 1].
func (s *Searcher) storeSearch(ctx context.Context, f model.QuestionFilter) (*model.SearchResult, error) {
	type listing struct {
		qs    []*model.Question
		total int
	}
	l, err := store.ReadWithRetry(ctx, func() (listing, error) {
		qs, total, err := s.store.Questions().List(ctx, f)
		return listing{qs: qs, total: total}, err
	})
	if err != nil {
		return nil, err
	}
	hits := make([]model.SearchHit, 0, len(l.qs))
	for i, q := range l.qs {
		hit := displayHit(q)
		hit.Source = model.SourceLexical
		hit.RelevanceScore = 1.0 / float64(i+1)
		n, err := s.countAnswers(ctx, q.QuestionID)
		if err != nil {
			return nil, err
		}
		hit.AnswerCount = n
		hits = append(hits, hit)
	}
	return &model.SearchResult{
		Hits:    hits,
		Total:   l.total,
		Page:    f.Page,
		Limit:   f.Limit,
		HasNext: f.Page*f.Limit < l.total,
		HasPrev: f.Page > 1,
	}, nil
}

type partialHit struct {
	id     string
	score  float64
	source model.HitSource
}

// hydrate loads live display attributes for each hit. Hits whose question
// vanished since indexing are dropped silently.
func (s *Searcher) hydrate(ctx context.Context, partials []partialHit) ([]model.SearchHit, error) {
	out := make([]model.SearchHit, 0, len(partials))
	for _, p := range partials {
		q, err := s.getQuestion(ctx, p.id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		hit := displayHit(q)
		hit.RelevanceScore = p.score
		hit.Source = p.source
		n, err := s.countAnswers(ctx, q.QuestionID)
		if err != nil {
			return nil, err
		}
		hit.AnswerCount = n
		out = append(out, hit)
	}
	return out, nil
}

// hydrateFiltered hydrates and applies the filters the index cannot.
func (s *Searcher) hydrateFiltered(ctx context.Context, partials []partialHit, f model.QuestionFilter) ([]model.SearchHit, error) {
	out := make([]model.SearchHit, 0, len(partials))
	for _, p := range partials {
		q, err := s.getQuestion(ctx, p.id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if f.AuthorID != "" && q.AuthorID != f.AuthorID {
			continue
		}
		if f.HasAccepted != nil && q.HasAccepted != *f.HasAccepted {
			continue
		}
		if len(f.Tags) > 0 && !sharesTag(f.Tags, q.Tags) {
			continue
		}
		hit := displayHit(q)
		hit.RelevanceScore = p.score
		hit.Source = p.source
		n, err := s.countAnswers(ctx, q.QuestionID)
		if err != nil {
			return nil, err
		}
		hit.AnswerCount = n
		out = append(out, hit)
	}
	return out, nil
}

// getQuestion and countAnswers are the searcher's idempotent store reads;
// both retry once on transient failure.
func (s *Searcher) getQuestion(ctx context.Context, id string) (*model.Question, error) {
	return store.ReadWithRetry(ctx, func() (*model.Question, error) {
		return s.store.Questions().GetByID(ctx, id)
	})
}

func (s *Searcher) countAnswers(ctx context.Context, id string) (int, error) {
	return store.ReadWithRetry(ctx, func() (int, error) {
		return s.store.Questions().CountAnswers(ctx, id)
	})
}

func sharesTag(want, have []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if set[t] {
			return true
		}
	}
	return false
}

func displayHit(q *model.Question) model.SearchHit {
	return model.SearchHit{
		Target:       model.TargetRef{Kind: model.TargetQuestion, ID: q.QuestionID},
		Title:        q.Title,
		Tags:         q.Tags,
		AuthorID:     q.AuthorID,
		Counters:     q.Counters,
		CreationTime: q.CreationTime,
	}
}

func paginate(hits []model.SearchHit, page, limit int) *model.SearchResult {
	total := len(hits)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return &model.SearchResult{
		Hits:    hits[start:end],
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasNext: end < total,
		HasPrev: page > 1,
	}
}
