// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"time"
)

// ItemState is the lifecycle state of a shopping item.
type ItemState string

// Item lifecycle states. An item starts in StateToBuy and is archived,
// not destroyed, when it reaches StateDeleted.
const (
	StateToBuy   ItemState = "to_buy"
	StateBought  ItemState = "bought"
	StateMissing ItemState = "missing"
	StateDeleted ItemState = "deleted"
)

// Valid reports whether s is one of the known item states.
func (s ItemState) Valid() bool {
	switch s {
	case StateToBuy, StateBought, StateMissing, StateDeleted:
		return true
	}
	return false
}

// Archived reports whether the state is the archived (historical) state.
func (s ItemState) Archived() bool {
	return s == StateDeleted
}

// Validation errors for Item.
var (
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrNameTooLong      = errors.New("name cannot exceed 60 characters")
	ErrNegativeQuantity = errors.New("quantity cannot be negative")
	ErrNegativePrice    = errors.New("price cannot be negative")
	ErrInvalidState     = errors.New("unknown item state")
	ErrMissingList      = errors.New("item must belong to a list")
)

// MaxItemNameLength is the maximum length of an item name.
const MaxItemNameLength = 60

// Item represents a shopping item owned by exactly one list.
//
// Quantity, price and unit are descriptive attributes meaningful only
// while the item is active. Frequency counts how often the same name
// recurred on the list and only matters for ranking archived items.
type Item struct {
	ID        string    `json:"id"`
	ListID    string    `json:"list_id"`
	Name      string    `json:"name"`
	Quantity  float64   `json:"quantity,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Frequency int       `json:"frequency"`
	State     ItemState `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the Item has valid field values.
func (i *Item) Validate() error {
	if i.Name == "" {
		return ErrEmptyName
	}

	if len(i.Name) > MaxItemNameLength {
		return ErrNameTooLong
	}

	if i.Quantity < 0 {
		return ErrNegativeQuantity
	}

	if i.Price < 0 {
		return ErrNegativePrice
	}

	if i.State != "" && !i.State.Valid() {
		return ErrInvalidState
	}

	if i.ListID == "" {
		return ErrMissingList
	}

	return nil
}

// ItemProjection is the wire shape of an item. Rows sourced from a
// foreign list omit quantity, price and unit.
type ItemProjection struct {
	ID        string    `json:"id"`
	ListID    string    `json:"list_id"`
	Name      string    `json:"name"`
	Quantity  float64   `json:"quantity,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Frequency int       `json:"frequency"`
	State     ItemState `json:"state"`
}

// Project builds the wire projection of an item. When homeSourced is
// false the list-private attributes are stripped; name, id and the
// owning list remain visible.
func (i *Item) Project(homeSourced bool) ItemProjection {
	p := ItemProjection{
		ID:        i.ID,
		ListID:    i.ListID,
		Name:      i.Name,
		Frequency: i.Frequency,
		State:     i.State,
	}

	if homeSourced {
		p.Quantity = i.Quantity
		p.Price = i.Price
		p.Unit = i.Unit
	}

	return p
}

// ProjectItems projects a slice of items with uniform sourcing.
func ProjectItems(items []Item, homeSourced bool) []ItemProjection {
	projections := make([]ItemProjection, 0, len(items))
	for idx := range items {
		projections = append(projections, items[idx].Project(homeSourced))
	}
	return projections
}
