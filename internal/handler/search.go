package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shoplist-api/shoplist/internal/model"
)

// SearchItems handles GET /api/v1/lists/{listID}/search?q=. The named
// list is the home list of the search: its active names are excluded
// from the result and its rows keep their private attributes. Rows
// sourced from other accessible lists come back redacted.
func (h *Handler) SearchItems(w http.ResponseWriter, r *http.Request) {
	list, ok := h.accessibleList(w, r, mux.Vars(r)["listID"])
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	userID := principal(r)

	results, err := h.engine.Search(r.Context(), userID, list.ID, query)
	if err != nil {
		h.logger.Error("search failed",
			zap.String("list_id", list.ID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	if results == nil {
		results = []model.ItemProjection{}
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(results))
}
