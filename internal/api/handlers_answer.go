package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/askloop/askloop/server/internal/accept"
	"github.com/askloop/askloop/server/internal/api/respond"
	"github.com/askloop/askloop/server/internal/services"
)

type AnswerHandler struct {
	svc         *services.AnswerService
	coordinator *accept.Coordinator
}

func NewAnswerHandler(svc *services.AnswerService, c *accept.Coordinator) *AnswerHandler {
	return &AnswerHandler{svc: svc, coordinator: c}
}

func (h *AnswerHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	a, err := h.svc.Create(r.Context(), actor.ActorID, mux.Vars(r)["questionId"], in.Content)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, a)
}

func (h *AnswerHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	a, err := h.svc.Update(r.Context(), actor.ActorID, mux.Vars(r)["answerId"], in.Content)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, a)
}

func (h *AnswerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), actor.ActorID, mux.Vars(r)["answerId"]); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accept marks an answer as accepted for its question.
func (h *AnswerHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in struct {
		AnswerID string `json:"answerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	q, err := h.coordinator.Accept(r.Context(), actor.ActorID, mux.Vars(r)["questionId"], in.AnswerID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, q)
}

// Unaccept clears a question's accepted answer.
func (h *AnswerHandler) Unaccept(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	q, err := h.coordinator.Unaccept(r.Context(), actor.ActorID, mux.Vars(r)["questionId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, q)
}

func (h *AnswerHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	c, err := h.svc.CreateComment(r.Context(), actor.ActorID, mux.Vars(r)["answerId"], in.Content)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, c)
}

func (h *AnswerHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteComment(r.Context(), actor.ActorID, mux.Vars(r)["commentId"]); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
