package searchindex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	filters "github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

const postClass = "QAPost"

// weavIndex implements Index using the Weaviate Go client.
type weavIndex struct {
	client  *weaviate.Client
	baseURL string // host:port without scheme
}

// NewWeaviateIndex constructs an Index backed by Weaviate at baseURL.
// baseURL should be host:port (without scheme), e.g. "localhost:8080".
func NewWeaviateIndex(baseURL string) (Index, error) {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &weavIndex{client: cl, baseURL: baseURL}, nil
}

// Upsert replaces the object for doc.ID. Weaviate's creator rejects
// duplicate IDs, so a best-effort delete runs first; the outbox worker
// retries the whole operation on failure.
func (w *weavIndex) Upsert(ctx context.Context, doc Document) error {
	if w == nil || w.client == nil || doc.ID == "" {
		return nil
	}
	_ = w.client.Data().Deleter().WithClassName(postClass).WithID(doc.ID).Do(ctx)

	props := map[string]interface{}{
		"postId":   doc.ID,
		"kind":     doc.Kind,
		"title":    doc.Title,
		"body":     doc.Body,
		"tags":     doc.Tags,
		"authorId": doc.AuthorID,
	}
	if doc.CreationTime != "" {
		props["creationTime"] = doc.CreationTime
	}
	_, err := w.client.Data().Creator().
		WithClassName(postClass).
		WithID(doc.ID).
		WithProperties(props).
		Do(ctx)
	return err
}

func (w *weavIndex) Delete(ctx context.Context, id string) error {
	if w == nil || w.client == nil || id == "" {
		return nil
	}
	_ = w.client.Data().Deleter().WithClassName(postClass).WithID(id).Do(ctx)
	return nil
}

func (w *weavIndex) Query(ctx context.Context, text string, limit int, f Filter) ([]Hit, error) {
	nt := (&gql.NearTextArgumentBuilder{}).WithConcepts([]string{text})

	req := w.client.GraphQL().Get().
		WithClassName(postClass).
		WithNearText(nt).
		WithLimit(limit).
		WithFields(
			gql.Field{Name: "postId"},
			gql.Field{Name: "kind"},
			gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "certainty"}}},
		)
	if where := buildWhere(f); where != nil {
		req = req.WithWhere(where)
	}

	resp, err := req.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(resp.Errors))
	}

	getData, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	raw, ok := getData[postClass].([]interface{})
	if !ok {
		return []Hit{}, nil
	}

	out := make([]Hit, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		hit := Hit{}
		hit.ID, _ = m["postId"].(string)
		hit.Kind, _ = m["kind"].(string)
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			switch v := add["certainty"].(type) {
			case float64:
				hit.Score = v
			case string:
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					hit.Score = f
				}
			}
		}
		if hit.ID == "" {
			continue
		}
		out = append(out, hit)
	}
	return out, nil
}

func buildWhere(f Filter) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	if f.Kind != "" {
		operands = append(operands,
			filters.Where().WithPath([]string{"kind"}).WithOperator(filters.Equal).WithValueText(f.Kind))
	}
	if f.ExcludeID != "" {
		operands = append(operands,
			filters.Where().WithPath([]string{"postId"}).WithOperator(filters.NotEqual).WithValueText(f.ExcludeID))
	}
	if len(f.Tags) > 0 {
		operands = append(operands,
			filters.Where().WithPath([]string{"tags"}).WithOperator(filters.ContainsAny).WithValueText(f.Tags...))
	}
	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}

// HealthPing implements health.HealthPinger. It calls
// GET http://<baseURL>/v1/meta and expects 200 OK.
func (w *weavIndex) HealthPing(ctx context.Context) error {
	if w == nil || w.baseURL == "" {
		return fmt.Errorf("weaviate baseURL missing")
	}
	url := w.baseURL
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/v1/meta", nil)
	if err != nil {
		return err
	}
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weaviate status %d", resp.StatusCode)
	}
	return nil
}

func formatGraphQLErrors(errs interface{}) string {
	if b, err := json.Marshal(errs); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", errs)
}
