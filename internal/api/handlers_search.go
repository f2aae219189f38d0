package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/askloop/askloop/server/internal/api/respond"
	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/search"
)

type SearchHandler struct {
	searcher *search.Searcher
}

func NewSearchHandler(s *search.Searcher) *SearchHandler {
	return &SearchHandler{searcher: s}
}

// Search runs a paged hybrid query over questions.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	res, err := h.searcher.Search(r.Context(), filterFromQuery(r))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if res.Hits == nil {
		res.Hits = []model.SearchHit{}
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// Similar returns questions similar to the given one.
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r.URL.Query().Get("limit"), 5)
	hits, err := h.searcher.FindSimilar(r.Context(), mux.Vars(r)["questionId"], limit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if hits == nil {
		hits = []model.SearchHit{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"hits": hits})
}
