// Package handler implements the HTTP handlers for the REST API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shoplist-api/shoplist/internal/auth"
	"github.com/shoplist-api/shoplist/internal/model"
	"github.com/shoplist-api/shoplist/internal/search"
	"github.com/shoplist-api/shoplist/internal/store"
)

// Version is the application version reported by the health endpoints.
const Version = "1.0.0"

// anonymousSubject is the principal used when authentication is
// disabled. Every unauthenticated request acts as this single user.
const anonymousSubject = "anonymous"

// Handler handles HTTP requests for lists, items, groups and search.
type Handler struct {
	store  store.Store
	engine *search.Engine
	hub    *Hub
	logger *zap.Logger
}

// New creates a new Handler. The hub may be nil when no websocket
// broadcasting is wired.
func New(st store.Store, engine *search.Engine, hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{
		store:  st,
		engine: engine,
		hub:    hub,
		logger: logger,
	}
}

// RegisterRoutes registers all REST routes on the given router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.Ready).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/lists", h.ListLists).Methods(http.MethodGet)
	api.HandleFunc("/lists", h.CreateList).Methods(http.MethodPost)
	api.HandleFunc("/lists/{listID}", h.GetList).Methods(http.MethodGet)
	api.HandleFunc("/lists/{listID}", h.UpdateList).Methods(http.MethodPut)
	api.HandleFunc("/lists/{listID}", h.DeleteList).Methods(http.MethodDelete)

	api.HandleFunc("/lists/{listID}/items", h.ListItems).Methods(http.MethodGet)
	api.HandleFunc("/lists/{listID}/items", h.CreateItem).Methods(http.MethodPost)
	api.HandleFunc("/lists/{listID}/items", h.BatchUpdateItems).Methods(http.MethodPut)
	api.HandleFunc("/lists/{listID}/items/{itemID}", h.GetItem).Methods(http.MethodGet)
	api.HandleFunc("/lists/{listID}/items/{itemID}", h.UpdateItem).Methods(http.MethodPut)
	api.HandleFunc("/lists/{listID}/items/{itemID}", h.DeleteItem).Methods(http.MethodDelete)

	api.HandleFunc("/lists/{listID}/search", h.SearchItems).Methods(http.MethodGet)

	api.HandleFunc("/groups", h.ListGroups).Methods(http.MethodGet)
	api.HandleFunc("/groups", h.CreateGroup).Methods(http.MethodPost)
	api.HandleFunc("/groups/{groupID}", h.GetGroup).Methods(http.MethodGet)
	api.HandleFunc("/groups/{groupID}", h.DeleteGroup).Methods(http.MethodDelete)

	api.HandleFunc("/invites", h.CreateInvite).Methods(http.MethodPost)
}

// HealthResponse is the response body of the health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Health handles GET /health requests.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().UTC(),
	})
}

// Ready handles GET /ready requests. The service is ready when the
// store answers.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.AccessibleLists(r.Context(), anonymousSubject); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}

	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ready",
		Version:   Version,
		Timestamp: time.Now().UTC(),
	})
}

// principal returns the authenticated subject of the request, or the
// anonymous principal when authentication is disabled.
func principal(r *http.Request) string {
	if subject := auth.Subject(r.Context()); subject != "" {
		return subject
	}
	return anonymousSubject
}

// accessibleList loads the list and checks that the principal may read
// it. A missing or inaccessible list yields a 204 response so resource
// existence is not leaked; the bool result reports whether the caller
// should continue.
func (h *Handler) accessibleList(
	w http.ResponseWriter,
	r *http.Request,
	listID string,
) (*model.List, bool) {
	list, err := h.store.GetList(r.Context(), listID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
			w.WriteHeader(http.StatusNoContent)
			return nil, false
		}
		h.logger.Error("failed to load list", zap.String("list_id", listID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load list")
		return nil, false
	}

	userID := principal(r)
	accessible, err := h.store.AccessibleLists(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to resolve accessible lists",
			zap.String("user_id", userID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to resolve access")
		return nil, false
	}

	for _, id := range accessible {
		if id == list.ID {
			return list, true
		}
	}

	w.WriteHeader(http.StatusNoContent)
	return nil, false
}

// decodeJSON decodes the request body into dst, replying 400 on
// malformed input. The bool result reports whether decoding succeeded.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, model.ErrorResponse{
		Code:    status,
		Message: message,
	})
}

// writeFieldErrors writes a 400 response carrying per-field validation
// messages. Nothing was persisted when this is sent.
func (h *Handler) writeFieldErrors(w http.ResponseWriter, errs model.FieldErrors) {
	h.writeJSON(w, http.StatusBadRequest, model.FieldErrorResponse{
		Success: false,
		Errors:  errs,
	})
}

// validationField maps an item validation error to the request field
// it belongs to.
func validationField(err error) string {
	switch {
	case errors.Is(err, model.ErrEmptyName), errors.Is(err, model.ErrNameTooLong):
		return "name"
	case errors.Is(err, model.ErrNegativeQuantity):
		return "quantity"
	case errors.Is(err, model.ErrNegativePrice):
		return "price"
	case errors.Is(err, model.ErrInvalidState):
		return "state"
	case errors.Is(err, model.ErrMissingList):
		return "list_id"
	default:
		return "base"
	}
}

// broadcast publishes an event on the list channel when a hub is wired.
func (h *Handler) broadcast(listID, eventType string, data any) {
	if h.hub == nil {
		return
	}
	h.hub.Broadcast(listID, eventType, data)
}
