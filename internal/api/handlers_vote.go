package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/askloop/askloop/server/internal/api/respond"
	"github.com/askloop/askloop/server/internal/services"
)

type VoteHandler struct {
	svc *services.VoteService
}

func NewVoteHandler(svc *services.VoteService) *VoteHandler {
	return &VoteHandler{svc: svc}
}

// Cast records or flips the actor's vote on a target.
func (h *VoteHandler) Cast(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	vars := mux.Vars(r)
	counters, err := h.svc.Cast(r.Context(), actor.ActorID, vars["targetKind"], vars["targetId"], in.Kind)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, counters)
}

// Remove withdraws the actor's vote on a target.
func (h *VoteHandler) Remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	counters, err := h.svc.Remove(r.Context(), actor.ActorID, vars["targetKind"], vars["targetId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, counters)
}

// Get returns the actor's current vote on a target, 404 when none.
func (h *VoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	rec, err := h.svc.Get(r.Context(), actor.ActorID, vars["targetKind"], vars["targetId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, rec)
}
