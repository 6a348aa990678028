package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shoplist-api/shoplist/internal/lifecycle"
	"github.com/shoplist-api/shoplist/internal/model"
	"github.com/shoplist-api/shoplist/internal/store"
)

// createItemRequest is the body of item creation requests.
type createItemRequest struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Unit     string  `json:"unit"`
}

// itemEdits carries the editable item fields of an update request.
// Absent fields are left untouched. State and DesiredState are
// mutually exclusive ways of moving the item through its lifecycle:
// State assigns the stored state verbatim, DesiredState is resolved
// to a permitted transition by the lifecycle machine.
type itemEdits struct {
	Name         *string  `json:"name"`
	Quantity     *float64 `json:"quantity"`
	Price        *float64 `json:"price"`
	Unit         *string  `json:"unit"`
	State        *string  `json:"state"`
	DesiredState *string  `json:"desired_state"`
}

// batchUpdateRequest is the body of batch item update requests: one
// set of edits applied to every named item.
type batchUpdateRequest struct {
	ItemIDs []string  `json:"item_ids"`
	Edits   itemEdits `json:"edits"`
}

// applyEdits mutates the item according to the edits and returns the
// collected validation errors. An explicit state wins over a desired
// state; a desired state the lifecycle cannot reach from the current
// state is reported on the state field.
func applyEdits(item *model.Item, edits itemEdits) model.FieldErrors {
	errs := model.FieldErrors{}

	if edits.Name != nil {
		item.Name = *edits.Name
	}
	if edits.Quantity != nil {
		item.Quantity = *edits.Quantity
	}
	if edits.Price != nil {
		item.Price = *edits.Price
	}
	if edits.Unit != nil {
		item.Unit = *edits.Unit
	}

	switch {
	case edits.State != nil:
		item.State = model.ItemState(*edits.State)
	case edits.DesiredState != nil:
		if err := lifecycle.ApplyDesiredState(item, *edits.DesiredState); err != nil {
			errs.Add("state", "invalid state change")
		}
	}

	if err := item.Validate(); err != nil {
		errs.Add(validationField(err), err.Error())
	}

	return errs
}

// ListItems handles GET /api/v1/lists/{listID}/items. Archived items
// are excluded; an optional name query parameter filters by
// case-insensitive prefix.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	list, ok := h.accessibleList(w, r, mux.Vars(r)["listID"])
	if !ok {
		return
	}

	items, err := h.store.ItemsInList(r.Context(), list.ID, r.URL.Query().Get("name"))
	if err != nil {
		h.logger.Error("failed to list items", zap.String("list_id", list.ID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	active := items[:0]
	for _, item := range items {
		if !item.State.Archived() {
			active = append(active, item)
		}
	}

	homeSourced := list.OwnerID == principal(r)
	h.writeJSON(w, http.StatusOK,
		model.NewSuccessResponse(model.ProjectItems(active, homeSourced)))
}

// CreateItem handles POST /api/v1/lists/{listID}/items. When an
// archived item with the same name exists on the list it is revived
// and its frequency bumped instead of inserting a second record.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	list, ok := h.accessibleList(w, r, mux.Vars(r)["listID"])
	if !ok {
		return
	}

	var req createItemRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()

	archived, err := h.store.FindArchivedByName(ctx, list.ID, req.Name)
	switch {
	case err == nil:
		item := archived
		if err := lifecycle.Fire(item, lifecycle.EventRevive); err != nil {
			h.logger.Error("failed to revive item",
				zap.String("item_id", item.ID), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "failed to create item")
			return
		}
		item.Frequency++
		item.Quantity = req.Quantity
		item.Price = req.Price
		item.Unit = req.Unit

		if errs := validateItem(item); !errs.Empty() {
			h.writeFieldErrors(w, errs)
			return
		}

		if err := h.store.SaveItems(ctx, []model.Item{*item}); err != nil {
			h.handleItemSaveError(w, err)
			return
		}

		h.broadcast(list.ID, model.EventItemCreated, item.Project(true))
		h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(item.Project(true)))

	case errors.Is(err, store.ErrNotFound):
		item := &model.Item{
			ListID:   list.ID,
			Name:     req.Name,
			Quantity: req.Quantity,
			Price:    req.Price,
			Unit:     req.Unit,
		}

		if errs := validateItem(item); !errs.Empty() {
			h.writeFieldErrors(w, errs)
			return
		}

		created, err := h.store.CreateItem(ctx, item)
		if err != nil {
			h.handleItemSaveError(w, err)
			return
		}

		h.broadcast(list.ID, model.EventItemCreated, created.Project(true))
		h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(created.Project(true)))

	default:
		h.logger.Error("failed to look up archived item",
			zap.String("list_id", list.ID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to create item")
	}
}

// GetItem handles GET /api/v1/lists/{listID}/items/{itemID}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	list, ok := h.accessibleList(w, r, vars["listID"])
	if !ok {
		return
	}

	item, err := h.store.GetItem(r.Context(), list.ID, vars["itemID"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Error("failed to load item", zap.String("item_id", vars["itemID"]), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}

	homeSourced := list.OwnerID == principal(r)
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(item.Project(homeSourced)))
}

// UpdateItem handles PUT /api/v1/lists/{listID}/items/{itemID}.
// Validation or lifecycle failures return 400 with field errors and
// persist nothing.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	list, ok := h.accessibleList(w, r, vars["listID"])
	if !ok {
		return
	}

	var edits itemEdits
	if !h.decodeJSON(w, r, &edits) {
		return
	}

	item, err := h.store.GetItem(r.Context(), list.ID, vars["itemID"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Error("failed to load item", zap.String("item_id", vars["itemID"]), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}

	wasArchived := item.State.Archived()

	if errs := applyEdits(item, edits); !errs.Empty() {
		h.writeFieldErrors(w, errs)
		return
	}

	if err := h.store.SaveItems(r.Context(), []model.Item{*item}); err != nil {
		h.handleItemSaveError(w, err)
		return
	}

	eventType := model.EventItemUpdated
	if !wasArchived && item.State.Archived() {
		eventType = model.EventItemArchived
	}
	h.broadcast(list.ID, eventType, item.Project(true))

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(item.Project(true)))
}

// BatchUpdateItems handles PUT /api/v1/lists/{listID}/items: one set
// of edits applied to several items in a single unit of work. The
// first item that fails resolution aborts the request and nothing is
// persisted.
func (h *Handler) BatchUpdateItems(w http.ResponseWriter, r *http.Request) {
	list, ok := h.accessibleList(w, r, mux.Vars(r)["listID"])
	if !ok {
		return
	}

	var req batchUpdateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if len(req.ItemIDs) == 0 {
		h.writeJSON(w, http.StatusOK, model.NewSuccessResponse([]model.ItemProjection{}))
		return
	}

	items := make([]model.Item, 0, len(req.ItemIDs))
	for _, itemID := range req.ItemIDs {
		item, err := h.store.GetItem(r.Context(), list.ID, itemID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			h.logger.Error("failed to load item", zap.String("item_id", itemID), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "failed to load items")
			return
		}

		if errs := applyEdits(item, req.Edits); !errs.Empty() {
			h.writeFieldErrors(w, errs)
			return
		}

		items = append(items, *item)
	}

	if err := h.store.SaveItems(r.Context(), items); err != nil {
		h.handleItemSaveError(w, err)
		return
	}

	projections := model.ProjectItems(items, true)
	h.broadcast(list.ID, model.EventItemsUpdated, projections)

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(projections))
}

// DeleteItem handles DELETE /api/v1/lists/{listID}/items/{itemID}.
// The item is archived, not destroyed, so its name and frequency keep
// feeding search. With ?purge=true the record is removed outright.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	list, ok := h.accessibleList(w, r, vars["listID"])
	if !ok {
		return
	}

	item, err := h.store.GetItem(r.Context(), list.ID, vars["itemID"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Error("failed to load item", zap.String("item_id", vars["itemID"]), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	if r.URL.Query().Get("purge") == "true" {
		if err := h.store.DestroyItem(r.Context(), list.ID, item.ID); err != nil {
			h.logger.Error("failed to destroy item",
				zap.String("item_id", item.ID), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "failed to delete item")
			return
		}

		h.broadcast(list.ID, model.EventItemDestroyed, item.Project(true))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := lifecycle.Fire(item, lifecycle.EventDelete); err != nil {
		errs := model.FieldErrors{}
		errs.Add("state", "invalid state change")
		h.writeFieldErrors(w, errs)
		return
	}

	if err := h.store.SaveItems(r.Context(), []model.Item{*item}); err != nil {
		h.handleItemSaveError(w, err)
		return
	}

	h.broadcast(list.ID, model.EventItemArchived, item.Project(true))
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(item.Project(true)))
}

// validateItem runs item validation and wraps the result as field
// errors.
func validateItem(item *model.Item) model.FieldErrors {
	errs := model.FieldErrors{}
	if err := item.Validate(); err != nil {
		errs.Add(validationField(err), err.Error())
	}
	return errs
}

// handleItemSaveError maps store write failures to HTTP responses.
func (h *Handler) handleItemSaveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrDuplicateName):
		errs := model.FieldErrors{}
		errs.Add("name", "has already been taken")
		h.writeFieldErrors(w, errs)
	case errors.Is(err, store.ErrNotFound):
		w.WriteHeader(http.StatusNoContent)
	default:
		h.logger.Error("failed to save items", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to save items")
	}
}
