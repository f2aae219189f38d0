package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askloop/askloop/server/internal/accept"
	"github.com/askloop/askloop/server/internal/api/recovery"
	"github.com/askloop/askloop/server/internal/auth"
	"github.com/askloop/askloop/server/internal/notify"
	"github.com/askloop/askloop/server/internal/search"
	"github.com/askloop/askloop/server/internal/searchindex"
	"github.com/askloop/askloop/server/internal/services"
	"github.com/askloop/askloop/server/internal/store/sqlite"
	"github.com/askloop/askloop/server/internal/votes"
)

// noopIndex keeps every search on the store fallback path.
type noopIndex struct{}

func (noopIndex) Upsert(ctx context.Context, doc searchindex.Document) error { return nil }
func (noopIndex) Delete(ctx context.Context, id string) error                { return nil }
func (noopIndex) Query(ctx context.Context, text string, limit int, f searchindex.Filter) ([]searchindex.Hit, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	require.NoError(t, sqlite.EnsureSchema(db))
	t.Cleanup(func() { _ = db.Close() })

	st := sqlite.New(db)
	idx := noopIndex{}
	log := zerolog.Nop()

	fanout := notify.NewFanout(log, notify.NewInboxSink(st))
	ledger := votes.NewLedger(st, log)
	aggregator := votes.NewAggregator(st)
	coordinator := accept.NewCoordinator(st, fanout, log)
	searcher := search.NewSearcher(st, idx, log)

	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	healthHandler := NewHealthHandler(nil)
	root.HandleFunc("/v0/health", healthHandler.Check).Methods("GET")

	v0 := root.PathPrefix("/v0").Subrouter()
	v0.Use(AuthMiddleware(auth.NewStaticAuthorizer()))

	question := NewQuestionHandler(services.NewQuestionService(st, idx, log))
	v0.HandleFunc("/questions", question.Create).Methods("POST")
	v0.HandleFunc("/questions", question.List).Methods("GET")
	v0.HandleFunc("/questions/{questionId}", question.Get).Methods("GET")
	v0.HandleFunc("/questions/{questionId}", question.Update).Methods("PATCH")
	v0.HandleFunc("/questions/{questionId}", question.Delete).Methods("DELETE")
	v0.HandleFunc("/tags", question.PopularTags).Methods("GET")

	answer := NewAnswerHandler(services.NewAnswerService(st, idx, fanout, log), coordinator)
	v0.HandleFunc("/questions/{questionId}/answers", answer.Create).Methods("POST")
	v0.HandleFunc("/questions/{questionId}/accept", answer.Accept).Methods("POST")
	v0.HandleFunc("/questions/{questionId}/accept", answer.Unaccept).Methods("DELETE")
	v0.HandleFunc("/answers/{answerId}", answer.Update).Methods("PATCH")
	v0.HandleFunc("/answers/{answerId}", answer.Delete).Methods("DELETE")
	v0.HandleFunc("/answers/{answerId}/comments", answer.CreateComment).Methods("POST")
	v0.HandleFunc("/comments/{commentId}", answer.DeleteComment).Methods("DELETE")

	vote := NewVoteHandler(services.NewVoteService(ledger, aggregator))
	v0.HandleFunc("/votes/{targetKind}/{targetId}", vote.Cast).Methods("POST")
	v0.HandleFunc("/votes/{targetKind}/{targetId}", vote.Remove).Methods("DELETE")
	v0.HandleFunc("/votes/{targetKind}/{targetId}", vote.Get).Methods("GET")

	searchHandler := NewSearchHandler(searcher)
	v0.HandleFunc("/search", searchHandler.Search).Methods("GET")
	v0.HandleFunc("/questions/{questionId}/similar", searchHandler.Similar).Methods("GET")

	notification := NewNotificationHandler(services.NewNotificationService(st))
	v0.HandleFunc("/notifications", notification.List).Methods("GET")
	v0.HandleFunc("/notifications/counts", notification.Counts).Methods("GET")
	v0.HandleFunc("/notifications/read", notification.MarkAllRead).Methods("POST")
	v0.HandleFunc("/notifications/{notificationId}/read", notification.MarkRead).Methods("POST")
	v0.HandleFunc("/notifications/{notificationId}", notification.Delete).Methods("DELETE")

	srv := httptest.NewServer(root)
	t.Cleanup(srv.Close)
	return srv
}

// doAs issues a request authenticated as the given local actor.
func doAs(t *testing.T, srv *httptest.Server, actor, method, path string, payload interface{}) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, body)
	require.NoError(t, err)
	if actor != "" {
		req.Header.Set("Authorization", "Bearer "+auth.LocalDevKeyPrefix+actor)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, data
}

func decodeInto(t *testing.T, data []byte, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, out))
}

func TestAuthIsRequired(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doAs(t, srv, "", "GET", "/v0/questions", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest("GET", srv.URL+"/v0/questions", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-local-key")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t)
	resp, data := doAs(t, srv, "", "GET", "/v0/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeInto(t, data, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestQuestionLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, data := doAs(t, srv, "alice", "POST", "/v0/questions", map[string]interface{}{
		"title":       "How do transactions nest?",
		"description": "Savepoints or flat retries?",
		"tags":        []string{"Go", "Database"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var q struct {
		QuestionID string   `json:"questionId"`
		AuthorID   string   `json:"authorId"`
		Tags       []string `json:"tags"`
	}
	decodeInto(t, data, &q)
	assert.NotEmpty(t, q.QuestionID)
	assert.Equal(t, "alice", q.AuthorID)
	assert.Equal(t, []string{"go", "database"}, q.Tags)

	// Answer from a different actor
	resp, data = doAs(t, srv, "bob", "POST", "/v0/questions/"+q.QuestionID+"/answers", map[string]interface{}{
		"content": "Savepoints, but the store flattens nesting.",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var a struct {
		AnswerID string `json:"answerId"`
	}
	decodeInto(t, data, &a)

	// Question author accepts
	resp, data = doAs(t, srv, "alice", "POST", "/v0/questions/"+q.QuestionID+"/accept", map[string]interface{}{
		"answerId": a.AnswerID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accepted struct {
		AcceptedAnswerID *string `json:"acceptedAnswerId"`
		HasAccepted      bool    `json:"hasAcceptedAnswer"`
	}
	decodeInto(t, data, &accepted)
	require.NotNil(t, accepted.AcceptedAnswerID)
	assert.Equal(t, a.AnswerID, *accepted.AcceptedAnswerID)
	assert.True(t, accepted.HasAccepted)

	// Detail view composes answers and the live count
	resp, data = doAs(t, srv, "alice", "GET", "/v0/questions/"+q.QuestionID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail struct {
		AnswerCount int `json:"answerCount"`
		Answers     []struct {
			AnswerID   string `json:"answerId"`
			IsAccepted bool   `json:"isAccepted"`
		} `json:"answers"`
	}
	decodeInto(t, data, &detail)
	assert.Equal(t, 1, detail.AnswerCount)
	require.Len(t, detail.Answers, 1)
	assert.True(t, detail.Answers[0].IsAccepted)

	// Answer author got an inbox notification
	resp, data = doAs(t, srv, "bob", "GET", "/v0/notifications", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var inbox struct {
		Notifications []struct {
			Kind string `json:"kind"`
		} `json:"notifications"`
	}
	decodeInto(t, data, &inbox)
	kinds := make([]string, 0, len(inbox.Notifications))
	for _, n := range inbox.Notifications {
		kinds = append(kinds, n.Kind)
	}
	assert.Contains(t, kinds, "answer_accepted")

	// Delete and verify gone
	resp, _ = doAs(t, srv, "alice", "DELETE", "/v0/questions/"+q.QuestionID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = doAs(t, srv, "alice", "GET", "/v0/questions/"+q.QuestionID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVoteEndpoints(t *testing.T) {
	srv := newTestServer(t)

	_, data := doAs(t, srv, "alice", "POST", "/v0/questions", map[string]interface{}{
		"title":       "Index maintenance windows",
		"description": "When does the nightly vacuum run?",
	})
	var q struct {
		QuestionID string `json:"questionId"`
	}
	decodeInto(t, data, &q)

	votePath := "/v0/votes/question/" + q.QuestionID

	resp, data := doAs(t, srv, "bob", "POST", votePath, map[string]string{"kind": "up"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var counters struct {
		Upvotes   int64 `json:"upvotes"`
		Downvotes int64 `json:"downvotes"`
		Score     int64 `json:"score"`
	}
	decodeInto(t, data, &counters)
	assert.Equal(t, int64(1), counters.Upvotes)
	assert.Equal(t, int64(1), counters.Score)

	// Flip swings the score by two
	resp, data = doAs(t, srv, "bob", "POST", votePath, map[string]string{"kind": "down"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, data, &counters)
	assert.Equal(t, int64(0), counters.Upvotes)
	assert.Equal(t, int64(1), counters.Downvotes)
	assert.Equal(t, int64(-1), counters.Score)

	resp, data = doAs(t, srv, "bob", "GET", votePath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec struct {
		Kind string `json:"kind"`
	}
	decodeInto(t, data, &rec)
	assert.Equal(t, "down", rec.Kind)

	resp, data = doAs(t, srv, "bob", "DELETE", votePath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, data, &counters)
	assert.Equal(t, int64(0), counters.Score)

	resp, _ = doAs(t, srv, "bob", "GET", votePath, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doAs(t, srv, "bob", "POST", votePath, map[string]string{"kind": "sideways"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOwnershipEnforcedOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	_, data := doAs(t, srv, "alice", "POST", "/v0/questions", map[string]interface{}{
		"title":       "Who can edit this?",
		"description": "Only the author, presumably.",
	})
	var q struct {
		QuestionID string `json:"questionId"`
	}
	decodeInto(t, data, &q)

	resp, _ := doAs(t, srv, "mallory", "PATCH", "/v0/questions/"+q.QuestionID, map[string]string{
		"title": "Hijacked",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doAs(t, srv, "mallory", "DELETE", "/v0/questions/"+q.QuestionID, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestQuestionValidationOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doAs(t, srv, "alice", "POST", "/v0/questions", map[string]interface{}{
		"title":       "",
		"description": "No title at all.",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchEndpointsFallBackToStore(t *testing.T) {
	srv := newTestServer(t)

	_, data := doAs(t, srv, "alice", "POST", "/v0/questions", map[string]interface{}{
		"title":       "Connection pooling guide",
		"description": "Sizing pools for burst traffic.",
		"tags":        []string{"postgres"},
	})
	var q struct {
		QuestionID string `json:"questionId"`
	}
	decodeInto(t, data, &q)

	_, _ = doAs(t, srv, "alice", "POST", "/v0/questions", map[string]interface{}{
		"title":       "Connection reuse tips",
		"description": "Keep-alives and pool sizing.",
		"tags":        []string{"postgres"},
	})

	resp, data := doAs(t, srv, "bob", "GET", "/v0/search?q=connection+pooling", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Hits []struct {
			Source string  `json:"source"`
			Score  float64 `json:"relevanceScore"`
		} `json:"hits"`
		Total int `json:"total"`
	}
	decodeInto(t, data, &result)
	assert.NotEmpty(t, result.Hits)

	resp, data = doAs(t, srv, "bob", "GET", "/v0/questions/"+q.QuestionID+"/similar", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var similar struct {
		Hits []struct {
			Source string `json:"source"`
		} `json:"hits"`
	}
	decodeInto(t, data, &similar)
	require.NotEmpty(t, similar.Hits)
	assert.Equal(t, "lexical-fallback", similar.Hits[0].Source)
}

func TestPopularTagsTrackQuestionCreation(t *testing.T) {
	srv := newTestServer(t)

	_, _ = doAs(t, srv, "alice", "POST", "/v0/questions", map[string]interface{}{
		"title":       "Pool sizing heuristics",
		"description": "How big should the pool be?",
		"tags":        []string{"go", "postgres"},
	})
	_, _ = doAs(t, srv, "bob", "POST", "/v0/questions", map[string]interface{}{
		"title":       "Context cancellation in handlers",
		"description": "Who cancels first?",
		"tags":        []string{"go"},
	})

	resp, data := doAs(t, srv, "carol", "GET", "/v0/tags", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Tags []struct {
			Tag        string `json:"tag"`
			UsageCount int64  `json:"usageCount"`
		} `json:"tags"`
	}
	decodeInto(t, data, &body)
	require.Len(t, body.Tags, 2)
	assert.Equal(t, "go", body.Tags[0].Tag)
	assert.Equal(t, int64(2), body.Tags[0].UsageCount)
	assert.Equal(t, "postgres", body.Tags[1].Tag)
	assert.Equal(t, int64(1), body.Tags[1].UsageCount)

	resp, data = doAs(t, srv, "carol", "GET", "/v0/tags?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, data, &body)
	assert.Len(t, body.Tags, 1)
}
