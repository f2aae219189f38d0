package searchindex

import (
	"context"
	"fmt"
	"time"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// BootstrapWeaviate ensures the QAPost class exists with the configured
// vectorizer. An existing class with a different vectorizer is dropped and
// recreated; acceptable in dev, where the outbox repopulates the index.
func BootstrapWeaviate(ctx context.Context, baseURL, vectorizer string) error {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	desired := &models.Class{
		Class:      postClass,
		Vectorizer: vectorizer,
		Properties: []*models.Property{
			{Name: "postId", DataType: []string{"uuid"}},
			{Name: "kind", DataType: []string{"text"}},
			{Name: "title", DataType: []string{"text"}},
			{Name: "body", DataType: []string{"text"}},
			{Name: "tags", DataType: []string{"text[]"}},
			{Name: "authorId", DataType: []string{"text"}},
			{Name: "creationTime", DataType: []string{"date"}},
		},
	}

	ex, err := cl.Schema().ClassGetter().WithClassName(postClass).Do(cctx)
	if err == nil && ex != nil {
		if ex.Vectorizer == vectorizer {
			return nil
		}
		if err := cl.Schema().ClassDeleter().WithClassName(postClass).Do(cctx); err != nil {
			return fmt.Errorf("delete class %s: %w", postClass, err)
		}
	}
	if err := cl.Schema().ClassCreator().WithClass(desired).Do(cctx); err != nil {
		return fmt.Errorf("create class %s: %w", postClass, err)
	}
	return nil
}
