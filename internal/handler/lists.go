package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shoplist-api/shoplist/internal/model"
	"github.com/shoplist-api/shoplist/internal/store"
)

// listRequest is the body of list create and update requests.
type listRequest struct {
	Name string `json:"name"`
}

// ListLists handles GET /api/v1/lists. It returns every list the
// principal may read: its own lists first, then lists shared through
// groups.
func (h *Handler) ListLists(w http.ResponseWriter, r *http.Request) {
	userID := principal(r)

	ids, err := h.store.AccessibleLists(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to resolve accessible lists",
			zap.String("user_id", userID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list lists")
		return
	}

	lists := make([]model.List, 0, len(ids))
	for _, id := range ids {
		list, err := h.store.GetList(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			h.logger.Error("failed to load list", zap.String("list_id", id), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "failed to list lists")
			return
		}
		lists = append(lists, *list)
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(lists))
}

// CreateList handles POST /api/v1/lists.
func (h *Handler) CreateList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	list := &model.List{
		Name:    req.Name,
		OwnerID: principal(r),
	}

	if err := list.Validate(); err != nil {
		errs := model.FieldErrors{}
		errs.Add("name", err.Error())
		h.writeFieldErrors(w, errs)
		return
	}

	created, err := h.store.CreateList(r.Context(), list)
	if err != nil {
		h.logger.Error("failed to create list", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to create list")
		return
	}

	h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(created))
}

// GetList handles GET /api/v1/lists/{listID}.
func (h *Handler) GetList(w http.ResponseWriter, r *http.Request) {
	list, ok := h.accessibleList(w, r, mux.Vars(r)["listID"])
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(list))
}

// UpdateList handles PUT /api/v1/lists/{listID}. Only the owner may
// rename a list.
func (h *Handler) UpdateList(w http.ResponseWriter, r *http.Request) {
	list, ok := h.accessibleList(w, r, mux.Vars(r)["listID"])
	if !ok {
		return
	}

	if list.OwnerID != principal(r) {
		h.writeError(w, http.StatusUnauthorized, "only the owner may modify the list")
		return
	}

	var req listRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	list.Name = req.Name
	if err := list.Validate(); err != nil {
		errs := model.FieldErrors{}
		errs.Add("name", err.Error())
		h.writeFieldErrors(w, errs)
		return
	}

	updated, err := h.store.UpdateList(r.Context(), list.ID, list)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Error("failed to update list", zap.String("list_id", list.ID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to update list")
		return
	}

	h.broadcast(updated.ID, model.EventListUpdated, updated)
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(updated))
}

// DeleteList handles DELETE /api/v1/lists/{listID}. Only the owner may
// delete a list; deletion destroys every item on it.
func (h *Handler) DeleteList(w http.ResponseWriter, r *http.Request) {
	list, ok := h.accessibleList(w, r, mux.Vars(r)["listID"])
	if !ok {
		return
	}

	if list.OwnerID != principal(r) {
		h.writeError(w, http.StatusUnauthorized, "only the owner may delete the list")
		return
	}

	if err := h.store.DeleteList(r.Context(), list.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Error("failed to delete list", zap.String("list_id", list.ID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to delete list")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
