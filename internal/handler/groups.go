package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shoplist-api/shoplist/internal/model"
	"github.com/shoplist-api/shoplist/internal/store"
)

// groupRequest is the body of group creation requests.
type groupRequest struct {
	Name string `json:"name"`
}

// InviteTargetGroup is the only supported invite target kind. The
// target kind is a closed enum; unknown kinds are rejected rather
// than resolved dynamically.
const InviteTargetGroup = "group"

// inviteRequest is the body of invite requests. TargetKind selects
// what the user is invited to and TargetID names the instance.
type inviteRequest struct {
	TargetKind string `json:"target_kind"`
	TargetID   string `json:"target_id"`
	UserID     string `json:"user_id"`
}

// ListGroups handles GET /api/v1/groups. It returns the groups the
// principal belongs to.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	userID := principal(r)

	groups, err := h.store.GroupsWithMember(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list groups", zap.String("user_id", userID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	if groups == nil {
		groups = []model.Group{}
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(groups))
}

// CreateGroup handles POST /api/v1/groups. The creator becomes the
// first member.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	group := &model.Group{
		Name:      req.Name,
		CreatorID: principal(r),
	}

	if err := group.Validate(); err != nil {
		errs := model.FieldErrors{}
		errs.Add("name", err.Error())
		h.writeFieldErrors(w, errs)
		return
	}

	created, err := h.store.CreateGroup(r.Context(), group)
	if err != nil {
		h.logger.Error("failed to create group", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}

	h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(created))
}

// GetGroup handles GET /api/v1/groups/{groupID}. Only members see the
// group; everyone else gets 204 as if it did not exist.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, ok := h.memberGroup(w, r, mux.Vars(r)["groupID"])
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(group))
}

// DeleteGroup handles DELETE /api/v1/groups/{groupID}. Only the
// creator may dissolve a group.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	group, ok := h.memberGroup(w, r, mux.Vars(r)["groupID"])
	if !ok {
		return
	}

	if group.CreatorID != principal(r) {
		h.writeError(w, http.StatusUnauthorized, "only the creator may delete the group")
		return
	}

	if err := h.store.DeleteGroup(r.Context(), group.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Error("failed to delete group", zap.String("group_id", group.ID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to delete group")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateInvite handles POST /api/v1/invites. The target kind must be
// one of the known kinds and the principal must be the creator of the
// target. Inviting an existing member is a no-op.
func (h *Handler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if req.TargetKind != InviteTargetGroup {
		errs := model.FieldErrors{}
		errs.Add("target_kind", "is not a valid invite target")
		h.writeFieldErrors(w, errs)
		return
	}

	if req.UserID == "" {
		errs := model.FieldErrors{}
		errs.Add("user_id", "cannot be empty")
		h.writeFieldErrors(w, errs)
		return
	}

	group, err := h.store.GetGroup(r.Context(), req.TargetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Error("failed to load group", zap.String("group_id", req.TargetID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to create invite")
		return
	}

	if group.CreatorID != principal(r) {
		h.writeError(w, http.StatusUnauthorized, "only the creator may invite members")
		return
	}

	if err := h.store.AddGroupMember(r.Context(), group.ID, req.UserID); err != nil {
		h.logger.Error("failed to add group member",
			zap.String("group_id", group.ID),
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "failed to create invite")
		return
	}

	updated, err := h.store.GetGroup(r.Context(), group.ID)
	if err != nil {
		h.logger.Error("failed to reload group", zap.String("group_id", group.ID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to create invite")
		return
	}

	h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(updated))
}

// memberGroup loads the group and checks that the principal is a
// member, answering 204 otherwise.
func (h *Handler) memberGroup(
	w http.ResponseWriter,
	r *http.Request,
	groupID string,
) (*model.Group, bool) {
	group, err := h.store.GetGroup(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
			w.WriteHeader(http.StatusNoContent)
			return nil, false
		}
		h.logger.Error("failed to load group", zap.String("group_id", groupID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load group")
		return nil, false
	}

	if !group.HasMember(principal(r)) {
		w.WriteHeader(http.StatusNoContent)
		return nil, false
	}

	return group, true
}
