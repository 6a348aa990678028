package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shoplist-api/shoplist/internal/model"
)

// MemoryStore implements Store with mutex-guarded in-memory maps.
type MemoryStore struct {
	mu      sync.RWMutex
	lists   map[string]model.List
	groups  map[string]model.Group
	members map[string]map[string]bool // group id -> user ids
	items   map[string]model.Item
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists:   make(map[string]model.List),
		groups:  make(map[string]model.Group),
		members: make(map[string]map[string]bool),
		items:   make(map[string]model.Item),
	}
}

// checkCtx converts an already-canceled context into an error without
// blocking; memory operations themselves never block.
func checkCtx(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
		return nil
	}
}

// CreateList adds a new list and returns it with a generated ID.
func (s *MemoryStore) CreateList(ctx context.Context, list *model.List) (*model.List, error) {
	if err := checkCtx(ctx, "create list"); err != nil {
		return nil, err
	}
	if list == nil {
		return nil, ErrNilRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	newList := model.List{
		ID:        uuid.New().String(),
		Name:      list.Name,
		OwnerID:   list.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.lists[newList.ID] = newList

	return &newList, nil
}

// GetList retrieves a list by its ID.
func (s *MemoryStore) GetList(ctx context.Context, id string) (*model.List, error) {
	if err := checkCtx(ctx, "get list"); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list, exists := s.lists[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &list, nil
}

// ListsOwnedBy returns the lists owned by the user, oldest first.
func (s *MemoryStore) ListsOwnedBy(ctx context.Context, ownerID string) ([]model.List, error) {
	if err := checkCtx(ctx, "lists owned by"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var lists []model.List
	for _, list := range s.lists {
		if list.OwnerID == ownerID {
			lists = append(lists, list)
		}
	}
	sortLists(lists)
	return lists, nil
}

// UpdateList modifies an existing list.
func (s *MemoryStore) UpdateList(ctx context.Context, id string, list *model.List) (*model.List, error) {
	if err := checkCtx(ctx, "update list"); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrInvalidID
	}
	if list == nil {
		return nil, ErrNilRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.lists[id]
	if !exists {
		return nil, ErrNotFound
	}

	existing.Name = list.Name
	existing.UpdatedAt = time.Now().UTC()
	s.lists[id] = existing

	return &existing, nil
}

// DeleteList removes a list and destroys all of its items.
func (s *MemoryStore) DeleteList(ctx context.Context, id string) error {
	if err := checkCtx(ctx, "delete list"); err != nil {
		return err
	}
	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lists[id]; !exists {
		return ErrNotFound
	}
	delete(s.lists, id)

	for itemID, item := range s.items {
		if item.ListID == id {
			delete(s.items, itemID)
		}
	}
	return nil
}

// AccessibleLists returns the IDs of every list the user may read.
func (s *MemoryStore) AccessibleLists(ctx context.Context, userID string) ([]string, error) {
	if err := checkCtx(ctx, "accessible lists"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coMembers := map[string]bool{userID: true}
	for groupID, members := range s.members {
		if !members[userID] {
			continue
		}
		for member := range s.members[groupID] {
			coMembers[member] = true
		}
	}

	var own, shared []model.List
	for _, list := range s.lists {
		switch {
		case list.OwnerID == userID:
			own = append(own, list)
		case coMembers[list.OwnerID]:
			shared = append(shared, list)
		}
	}
	sortLists(own)
	sortLists(shared)

	ids := make([]string, 0, len(own)+len(shared))
	for _, list := range own {
		ids = append(ids, list.ID)
	}
	for _, list := range shared {
		ids = append(ids, list.ID)
	}
	return ids, nil
}

// CreateGroup adds a new group; the creator becomes a member.
func (s *MemoryStore) CreateGroup(ctx context.Context, group *model.Group) (*model.Group, error) {
	if err := checkCtx(ctx, "create group"); err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrNilRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newGroup := model.Group{
		ID:        uuid.New().String(),
		Name:      group.Name,
		CreatorID: group.CreatorID,
		MemberIDs: []string{group.CreatorID},
		CreatedAt: time.Now().UTC(),
	}
	s.groups[newGroup.ID] = newGroup
	s.members[newGroup.ID] = map[string]bool{group.CreatorID: true}

	return &newGroup, nil
}

// GetGroup retrieves a group with its member IDs.
func (s *MemoryStore) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	if err := checkCtx(ctx, "get group"); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	group, exists := s.groups[id]
	if !exists {
		return nil, ErrNotFound
	}
	group.MemberIDs = s.memberIDs(id)
	return &group, nil
}

// GroupsWithMember returns the groups the user belongs to.
func (s *MemoryStore) GroupsWithMember(ctx context.Context, userID string) ([]model.Group, error) {
	if err := checkCtx(ctx, "groups with member"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var groups []model.Group
	for id, members := range s.members {
		if members[userID] {
			group := s.groups[id]
			group.MemberIDs = s.memberIDs(id)
			groups = append(groups, group)
		}
	}
	sort.Slice(groups, func(a, b int) bool {
		if !groups[a].CreatedAt.Equal(groups[b].CreatedAt) {
			return groups[a].CreatedAt.Before(groups[b].CreatedAt)
		}
		return groups[a].ID < groups[b].ID
	})
	return groups, nil
}

// AddGroupMember adds a user to a group.
func (s *MemoryStore) AddGroupMember(ctx context.Context, groupID, userID string) error {
	if err := checkCtx(ctx, "add group member"); err != nil {
		return err
	}
	if groupID == "" || userID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[groupID]; !exists {
		return ErrNotFound
	}
	s.members[groupID][userID] = true
	return nil
}

// DeleteGroup removes a group and its memberships.
func (s *MemoryStore) DeleteGroup(ctx context.Context, id string) error {
	if err := checkCtx(ctx, "delete group"); err != nil {
		return err
	}
	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[id]; !exists {
		return ErrNotFound
	}
	delete(s.groups, id)
	delete(s.members, id)
	return nil
}

// CreateItem adds a new item to its list.
func (s *MemoryStore) CreateItem(ctx context.Context, item *model.Item) (*model.Item, error) {
	if err := checkCtx(ctx, "create item"); err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNilRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lists[item.ListID]; !exists {
		return nil, ErrNotFound
	}

	state := item.State
	if state == "" {
		state = model.StateToBuy
	}
	if !state.Archived() && s.activeNameTakenLocked(item.ListID, item.Name, "") {
		return nil, ErrDuplicateName
	}

	frequency := item.Frequency
	if frequency == 0 {
		frequency = 1
	}

	now := time.Now().UTC()
	newItem := model.Item{
		ID:        uuid.New().String(),
		ListID:    item.ListID,
		Name:      item.Name,
		Quantity:  item.Quantity,
		Price:     item.Price,
		Unit:      item.Unit,
		Frequency: frequency,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.items[newItem.ID] = newItem

	return &newItem, nil
}

// GetItem retrieves an item scoped to its list.
func (s *MemoryStore) GetItem(ctx context.Context, listID, itemID string) (*model.Item, error) {
	if err := checkCtx(ctx, "get item"); err != nil {
		return nil, err
	}
	if listID == "" || itemID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.items[itemID]
	if !exists || item.ListID != listID {
		return nil, ErrNotFound
	}
	return &item, nil
}

// ItemsInList returns the items of a list, optionally filtered by a
// case-insensitive name prefix, oldest first.
func (s *MemoryStore) ItemsInList(ctx context.Context, listID, namePrefix string) ([]model.Item, error) {
	if err := checkCtx(ctx, "items in list"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := strings.ToLower(namePrefix)
	var items []model.Item
	for _, item := range s.items {
		if item.ListID != listID {
			continue
		}
		if prefix != "" && !strings.HasPrefix(strings.ToLower(item.Name), prefix) {
			continue
		}
		items = append(items, item)
	}
	sortItems(items)
	return items, nil
}

// SaveItems persists the given items in one unit of work.
func (s *MemoryStore) SaveItems(ctx context.Context, items []model.Item) error {
	if err := checkCtx(ctx, "save items"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before touching the maps so a late failure
	// cannot leave a partial batch behind.
	inBatch := make(map[string]bool, len(items))
	for i := range items {
		if items[i].ID == "" {
			return ErrInvalidID
		}
		if _, exists := s.items[items[i].ID]; !exists {
			return ErrNotFound
		}
		inBatch[items[i].ID] = true
	}

	// Uniqueness is checked against the post-save view: rows being
	// rewritten in this batch count with their new values only.
	for i := range items {
		if items[i].State.Archived() {
			continue
		}
		name := strings.ToLower(items[i].Name)
		for j := range items {
			if i != j && items[j].ListID == items[i].ListID &&
				!items[j].State.Archived() && strings.ToLower(items[j].Name) == name {
				return ErrDuplicateName
			}
		}
		for id, existing := range s.items {
			if inBatch[id] || existing.ListID != items[i].ListID {
				continue
			}
			if !existing.State.Archived() && strings.ToLower(existing.Name) == name {
				return ErrDuplicateName
			}
		}
	}

	now := time.Now().UTC()
	for i := range items {
		saved := items[i]
		saved.UpdatedAt = now
		s.items[saved.ID] = saved
	}
	return nil
}

// DestroyItem removes an item record entirely.
func (s *MemoryStore) DestroyItem(ctx context.Context, listID, itemID string) error {
	if err := checkCtx(ctx, "destroy item"); err != nil {
		return err
	}
	if listID == "" || itemID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[itemID]
	if !exists || item.ListID != listID {
		return ErrNotFound
	}
	delete(s.items, itemID)
	return nil
}

// ActiveItemNames returns the lower-cased names of non-archived items
// in the list.
func (s *MemoryStore) ActiveItemNames(ctx context.Context, listID string) (map[string]struct{}, error) {
	if err := checkCtx(ctx, "active item names"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make(map[string]struct{})
	for _, item := range s.items {
		if item.ListID == listID && !item.State.Archived() {
			names[strings.ToLower(item.Name)] = struct{}{}
		}
	}
	return names, nil
}

// ArchivedItemsMatchingPrefix returns archived items of the list whose
// name starts with the prefix, case-insensitively.
func (s *MemoryStore) ArchivedItemsMatchingPrefix(ctx context.Context, listID, prefix string) ([]model.Item, error) {
	if err := checkCtx(ctx, "archived items matching prefix"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := strings.ToLower(prefix)
	var items []model.Item
	for _, item := range s.items {
		if item.ListID != listID || !item.State.Archived() {
			continue
		}
		if strings.HasPrefix(strings.ToLower(item.Name), lowered) {
			items = append(items, item)
		}
	}
	sortItems(items)
	return items, nil
}

// FindArchivedByName returns the most recently updated archived item
// with the given name.
func (s *MemoryStore) FindArchivedByName(ctx context.Context, listID, name string) (*model.Item, error) {
	if err := checkCtx(ctx, "find archived by name"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := strings.ToLower(name)
	var found *model.Item
	for id := range s.items {
		item := s.items[id]
		if item.ListID != listID || !item.State.Archived() {
			continue
		}
		if strings.ToLower(item.Name) != lowered {
			continue
		}
		if found == nil || item.UpdatedAt.After(found.UpdatedAt) ||
			(item.UpdatedAt.Equal(found.UpdatedAt) && item.ID < found.ID) {
			copied := item
			found = &copied
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// Close releases the underlying resources.
func (s *MemoryStore) Close() error {
	return nil
}

// activeNameTakenLocked reports whether an active item other than
// excludeID already uses the name on the list. Callers hold the lock.
func (s *MemoryStore) activeNameTakenLocked(listID, name, excludeID string) bool {
	lowered := strings.ToLower(name)
	for id, item := range s.items {
		if id == excludeID {
			continue
		}
		if item.ListID == listID && !item.State.Archived() &&
			strings.ToLower(item.Name) == lowered {
			return true
		}
	}
	return false
}

// memberIDs returns the sorted member IDs of a group. Callers hold the
// lock.
func (s *MemoryStore) memberIDs(groupID string) []string {
	ids := make([]string, 0, len(s.members[groupID]))
	for id := range s.members[groupID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortLists(lists []model.List) {
	sort.Slice(lists, func(a, b int) bool {
		if !lists[a].CreatedAt.Equal(lists[b].CreatedAt) {
			return lists[a].CreatedAt.Before(lists[b].CreatedAt)
		}
		return lists[a].ID < lists[b].ID
	})
}

func sortItems(items []model.Item) {
	sort.Slice(items, func(a, b int) bool {
		if !items[a].CreatedAt.Equal(items[b].CreatedAt) {
			return items[a].CreatedAt.Before(items[b].CreatedAt)
		}
		return items[a].ID < items[b].ID
	})
}
