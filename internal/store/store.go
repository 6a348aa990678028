// Package store provides data storage interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/shoplist-api/shoplist/internal/model"
)

// Store errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateName = errors.New("name already taken")
	ErrInvalidID     = errors.New("invalid record ID")
	ErrNilRecord     = errors.New("record cannot be nil")
)

// Store defines the storage operations for lists, groups and items.
//
// SaveItems is the transactional primitive batch updates rely on: it
// persists every given item or none of them. ActiveItemNames,
// ArchivedItemsMatchingPrefix and AccessibleLists back the search
// engine's collaborator interfaces.
type Store interface {
	// CreateList adds a new list and returns it with a generated ID.
	CreateList(ctx context.Context, list *model.List) (*model.List, error)

	// GetList retrieves a list by its ID.
	GetList(ctx context.Context, id string) (*model.List, error)

	// ListsOwnedBy returns the lists owned by the user, oldest first.
	ListsOwnedBy(ctx context.Context, ownerID string) ([]model.List, error)

	// UpdateList modifies an existing list.
	UpdateList(ctx context.Context, id string, list *model.List) (*model.List, error)

	// DeleteList removes a list and destroys all of its items.
	DeleteList(ctx context.Context, id string) error

	// AccessibleLists returns the IDs of every list the user may read:
	// its own lists first, then lists owned by users it shares a group
	// with. The order is deterministic.
	AccessibleLists(ctx context.Context, userID string) ([]string, error)

	// CreateGroup adds a new group; the creator becomes a member.
	CreateGroup(ctx context.Context, group *model.Group) (*model.Group, error)

	// GetGroup retrieves a group with its member IDs.
	GetGroup(ctx context.Context, id string) (*model.Group, error)

	// GroupsWithMember returns the groups the user belongs to.
	GroupsWithMember(ctx context.Context, userID string) ([]model.Group, error)

	// AddGroupMember adds a user to a group. Adding an existing member
	// is a no-op.
	AddGroupMember(ctx context.Context, groupID, userID string) error

	// DeleteGroup removes a group and its memberships.
	DeleteGroup(ctx context.Context, id string) error

	// CreateItem adds a new item to its list. It fails with
	// ErrDuplicateName when an active item with the same name already
	// exists on the list (case-insensitive).
	CreateItem(ctx context.Context, item *model.Item) (*model.Item, error)

	// GetItem retrieves an item scoped to its list.
	GetItem(ctx context.Context, listID, itemID string) (*model.Item, error)

	// ItemsInList returns the items of a list, optionally filtered by a
	// case-insensitive name prefix, oldest first.
	ItemsInList(ctx context.Context, listID, namePrefix string) ([]model.Item, error)

	// SaveItems persists the given items in one unit of work: either
	// every item is written or none is. Active-name uniqueness is
	// enforced against the post-save view of each list.
	SaveItems(ctx context.Context, items []model.Item) error

	// DestroyItem removes an item record entirely. Archiving goes
	// through the item lifecycle instead.
	DestroyItem(ctx context.Context, listID, itemID string) error

	// ActiveItemNames returns the lower-cased names of non-archived
	// items in the list.
	ActiveItemNames(ctx context.Context, listID string) (map[string]struct{}, error)

	// ArchivedItemsMatchingPrefix returns archived items of the list
	// whose name starts with the prefix, case-insensitively.
	ArchivedItemsMatchingPrefix(ctx context.Context, listID, prefix string) ([]model.Item, error)

	// FindArchivedByName returns the most recently updated archived
	// item with the given name (case-insensitive), or ErrNotFound.
	FindArchivedByName(ctx context.Context, listID, name string) (*model.Item, error)

	// Close releases the underlying resources.
	Close() error
}
