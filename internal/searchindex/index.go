// Package searchindex defines the vector index abstraction used for
// semantic retrieval and provides the Weaviate-backed implementation.
package searchindex

import "context"

// Document is a question or answer projected into the index. Embeddings
// are computed by the index's configured vectorizer module.
type Document struct {
	ID           string
	Kind         string // "question" or "answer"
	Title        string
	Body         string
	Tags         []string
	AuthorID     string
	CreationTime string // RFC 3339
}

// Hit is a scored index match. Score is a certainty in [0, 1] where
// higher means more similar.
type Hit struct {
	ID    string
	Kind  string
	Score float64
}

// Filter narrows a query. Zero values mean no constraint.
type Filter struct {
	Kind      string
	Tags      []string
	ExcludeID string
}

// Index is the retrieval surface the search layer depends on. Failures
// are reported as errors; callers decide whether to fall back.
type Index interface {
	Upsert(ctx context.Context, doc Document) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, text string, limit int, f Filter) ([]Hit, error)
}
