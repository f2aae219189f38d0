package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/askloop/askloop/server/internal/api/respond"
	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/services"
)

type QuestionHandler struct {
	svc *services.QuestionService
}

func NewQuestionHandler(svc *services.QuestionService) *QuestionHandler {
	return &QuestionHandler{svc: svc}
}

func (h *QuestionHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	q, err := h.svc.Create(r.Context(), services.CreateQuestionRequest{
		AuthorID:    actor.ActorID,
		Title:       in.Title,
		Description: in.Description,
		Tags:        in.Tags,
	})
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, q)
}

func (h *QuestionHandler) Get(w http.ResponseWriter, r *http.Request) {
	questionID := mux.Vars(r)["questionId"]
	countView := r.URL.Query().Get("countView") != "false"
	detail, err := h.svc.Get(r.Context(), questionID, countView)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, detail)
}

func (h *QuestionHandler) List(w http.ResponseWriter, r *http.Request) {
	f := filterFromQuery(r)
	qs, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if qs == nil {
		qs = []*model.Question{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"questions": qs,
		"total":     total,
		"page":      f.Page,
		"limit":     f.Limit,
	})
}

func (h *QuestionHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in services.UpdateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	q, err := h.svc.Update(r.Context(), actor.ActorID, mux.Vars(r)["questionId"], in)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, q)
}

func (h *QuestionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), actor.ActorID, mux.Vars(r)["questionId"]); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuestionHandler) PopularTags(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.PopularTags(r.Context(), intQuery(r.URL.Query().Get("limit"), 20))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"tags": stats})
}

func filterFromQuery(r *http.Request) model.QuestionFilter {
	q := r.URL.Query()
	f := model.QuestionFilter{
		Query:    q.Get("q"),
		AuthorID: q.Get("author"),
		Page:     intQuery(q.Get("page"), 1),
		Limit:    intQuery(q.Get("limit"), 10),
	}
	if tags := q.Get("tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Tags = append(f.Tags, strings.ToLower(t))
			}
		}
	}
	if v := q.Get("hasAccepted"); v != "" {
		b := v == "true"
		f.HasAccepted = &b
	}
	return f
}

func intQuery(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
