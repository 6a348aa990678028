package model

import (
	"errors"
	"time"
)

// Validation errors for List and Group.
var (
	ErrEmptyListName  = errors.New("list name cannot be empty")
	ErrListNameLong   = errors.New("list name cannot exceed 60 characters")
	ErrMissingOwner   = errors.New("list must have an owner")
	ErrEmptyGroupName = errors.New("group name cannot be empty")
	ErrMissingCreator = errors.New("group must have a creator")
)

// MaxListNameLength is the maximum length of a list name.
const MaxListNameLength = 60

// List is a shopping list. It owns zero or more items and belongs to
// exactly one user; other users gain access through shared groups.
type List struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the List has valid field values.
func (l *List) Validate() error {
	if l.Name == "" {
		return ErrEmptyListName
	}

	if len(l.Name) > MaxListNameLength {
		return ErrListNameLong
	}

	if l.OwnerID == "" {
		return ErrMissingOwner
	}

	return nil
}

// Group is a set of users who share their shopping lists with each
// other. The creator is the only user allowed to invite new members.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatorID string    `json:"creator_id"`
	MemberIDs []string  `json:"member_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the Group has valid field values.
func (g *Group) Validate() error {
	if g.Name == "" {
		return ErrEmptyGroupName
	}

	if g.CreatorID == "" {
		return ErrMissingCreator
	}

	return nil
}

// HasMember reports whether the user belongs to the group.
func (g *Group) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
