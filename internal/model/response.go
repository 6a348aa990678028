package model

import "time"

// APIResponse is a generic wrapper for API responses. Data is always
// present on success so sequence-valued endpoints serialize an empty
// result as an empty array rather than dropping the key.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error API response.
func NewErrorResponse[T any](errMsg string) APIResponse[T] {
	return APIResponse[T]{
		Success: false,
		Error:   errMsg,
	}
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// FieldErrors collects validation messages per field. Write endpoints
// return it with status 400; a non-empty map means nothing was saved.
type FieldErrors map[string][]string

// Add appends a message for the given field.
func (e FieldErrors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Empty reports whether no errors were collected.
func (e FieldErrors) Empty() bool {
	return len(e) == 0
}

// FieldErrorResponse is the body of a failed write request.
type FieldErrorResponse struct {
	Success bool        `json:"success"`
	Errors  FieldErrors `json:"errors"`
}

// EventMessage is a message broadcast on a list channel.
type EventMessage struct {
	EventType string    `json:"event_type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcast event types. Event types are always upper-cased on the wire.
const (
	EventItemCreated   = "ITEM_CREATED"
	EventItemUpdated   = "ITEM_UPDATED"
	EventItemArchived  = "ITEM_ARCHIVED"
	EventItemDestroyed = "ITEM_DESTROYED"
	EventItemsUpdated  = "ITEMS_UPDATED"
	EventListUpdated   = "LIST_UPDATED"
)
