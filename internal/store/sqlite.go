package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // database/sql driver

	"github.com/shoplist-api/shoplist/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS lists (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	owner_id   TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS groups (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	creator_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS group_memberships (
	group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	user_id  TEXT NOT NULL,
	PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS items (
	id         TEXT PRIMARY KEY,
	list_id    TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	quantity   REAL NOT NULL DEFAULT 0,
	price      REAL NOT NULL DEFAULT 0,
	unit       TEXT NOT NULL DEFAULT '',
	frequency  INTEGER NOT NULL DEFAULT 1,
	state      TEXT NOT NULL DEFAULT 'to_buy',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_items_active_name
	ON items (list_id, lower(name)) WHERE state != 'deleted';

CREATE INDEX IF NOT EXISTS idx_items_list_state ON items (list_id, state);
`

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite database at the given
// path and ensures the schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation detects a violated unique constraint. The modernc
// driver exposes constraint failures only through the error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// escapeLike escapes LIKE wildcards in a user-supplied prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// CreateList adds a new list and returns it with a generated ID.
func (s *SQLiteStore) CreateList(ctx context.Context, list *model.List) (*model.List, error) {
	if list == nil {
		return nil, ErrNilRecord
	}

	now := time.Now().UTC()
	newList := model.List{
		ID:        uuid.New().String(),
		Name:      list.Name,
		OwnerID:   list.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lists (id, name, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		newList.ID, newList.Name, newList.OwnerID, newList.CreatedAt, newList.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating list: %w", err)
	}
	return &newList, nil
}

// GetList retrieves a list by its ID.
func (s *SQLiteStore) GetList(ctx context.Context, id string) (*model.List, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	var list model.List
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at, updated_at FROM lists WHERE id = ?`, id,
	).Scan(&list.ID, &list.Name, &list.OwnerID, &list.CreatedAt, &list.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting list: %w", err)
	}
	return &list, nil
}

// ListsOwnedBy returns the lists owned by the user, oldest first.
func (s *SQLiteStore) ListsOwnedBy(ctx context.Context, ownerID string) ([]model.List, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, owner_id, created_at, updated_at
		 FROM lists WHERE owner_id = ? ORDER BY created_at, id`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing lists: %w", err)
	}
	defer rows.Close()

	return scanLists(rows)
}

// UpdateList modifies an existing list.
func (s *SQLiteStore) UpdateList(ctx context.Context, id string, list *model.List) (*model.List, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if list == nil {
		return nil, ErrNilRecord
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE lists SET name = ?, updated_at = ? WHERE id = ?`,
		list.Name, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating list: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("updating list: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetList(ctx, id)
}

// DeleteList removes a list; its items go with it via the cascade.
func (s *SQLiteStore) DeleteList(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting list: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting list: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AccessibleLists returns the IDs of every list the user may read: own
// lists first, then lists owned by co-members of shared groups.
func (s *SQLiteStore) AccessibleLists(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM lists
		 WHERE owner_id = ?
		    OR owner_id IN (
		        SELECT gm2.user_id
		        FROM group_memberships gm1
		        JOIN group_memberships gm2 ON gm2.group_id = gm1.group_id
		        WHERE gm1.user_id = ?
		    )
		 ORDER BY owner_id != ?, created_at, id`,
		userID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("resolving accessible lists: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning list id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateGroup adds a new group; the creator becomes a member.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *model.Group) (*model.Group, error) {
	if group == nil {
		return nil, ErrNilRecord
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	newGroup := model.Group{
		ID:        uuid.New().String(),
		Name:      group.Name,
		CreatorID: group.CreatorID,
		MemberIDs: []string{group.CreatorID},
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, creator_id, created_at) VALUES (?, ?, ?, ?)`,
		newGroup.ID, newGroup.Name, newGroup.CreatorID, newGroup.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating group: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO group_memberships (group_id, user_id) VALUES (?, ?)`,
		newGroup.ID, newGroup.CreatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("adding creator membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing group creation: %w", err)
	}
	return &newGroup, nil
}

// GetGroup retrieves a group with its member IDs.
func (s *SQLiteStore) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	var group model.Group
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, creator_id, created_at FROM groups WHERE id = ?`, id,
	).Scan(&group.ID, &group.Name, &group.CreatorID, &group.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting group: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM group_memberships WHERE group_id = ? ORDER BY user_id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("getting group members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		group.MemberIDs = append(group.MemberIDs, userID)
	}
	return &group, rows.Err()
}

// GroupsWithMember returns the groups the user belongs to.
func (s *SQLiteStore) GroupsWithMember(ctx context.Context, userID string) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.creator_id, g.created_at
		 FROM groups g
		 JOIN group_memberships gm ON gm.group_id = g.id
		 WHERE gm.user_id = ?
		 ORDER BY g.created_at, g.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		var group model.Group
		if err := rows.Scan(&group.ID, &group.Name, &group.CreatorID, &group.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// AddGroupMember adds a user to a group.
func (s *SQLiteStore) AddGroupMember(ctx context.Context, groupID, userID string) error {
	if groupID == "" || userID == "" {
		return ErrInvalidID
	}

	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_memberships (group_id, user_id) VALUES (?, ?)
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("adding group member: %w", err)
	}
	return nil
}

// DeleteGroup removes a group and its memberships.
func (s *SQLiteStore) DeleteGroup(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting group: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateItem adds a new item to its list.
func (s *SQLiteStore) CreateItem(ctx context.Context, item *model.Item) (*model.Item, error) {
	if item == nil {
		return nil, ErrNilRecord
	}

	if _, err := s.GetList(ctx, item.ListID); err != nil {
		return nil, err
	}

	state := item.State
	if state == "" {
		state = model.StateToBuy
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, list_id, name, quantity, price, unit, frequency, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		newItem.ID, newItem.ListID, newItem.Name, newItem.Quantity, newItem.Price,
		newItem.Unit, newItem.Frequency, newItem.State, newItem.CreatedAt, newItem.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateName
	}
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return &newItem, nil
}

// GetItem retrieves an item scoped to its list.
func (s *SQLiteStore) GetItem(ctx context.Context, listID, itemID string) (*model.Item, error) {
	if listID == "" || itemID == "" {
		return nil, ErrInvalidID
	}

	var item model.Item
	err := s.db.QueryRowContext(ctx,
		`SELECT id, list_id, name, quantity, price, unit, frequency, state, created_at, updated_at
		 FROM items WHERE id = ? AND list_id = ?`, itemID, listID,
	).Scan(&item.ID, &item.ListID, &item.Name, &item.Quantity, &item.Price,
		&item.Unit, &item.Frequency, &item.State, &item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return &item, nil
}

// ItemsInList returns the items of a list, optionally filtered by a
// case-insensitive name prefix, oldest first.
func (s *SQLiteStore) ItemsInList(ctx context.Context, listID, namePrefix string) ([]model.Item, error) {
	var rows *sql.Rows
	var err error

	if namePrefix != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, list_id, name, quantity, price, unit, frequency, state, created_at, updated_at
			 FROM items
			 WHERE list_id = ? AND lower(name) LIKE lower(?) ESCAPE '\'
			 ORDER BY created_at, id`,
			listID, escapeLike(namePrefix)+"%",
		)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, list_id, name, quantity, price, unit, frequency, state, created_at, updated_at
			 FROM items WHERE list_id = ? ORDER BY created_at, id`,
			listID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// SaveItems persists the given items in one transaction. Archived
// rows are written first: the unique index on active names is checked
// per statement, so an item archived by this batch must release its
// name before another batch item may take it.
func (s *SQLiteStore) SaveItems(ctx context.Context, items []model.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ordered := make([]model.Item, 0, len(items))
	for i := range items {
		if items[i].ID == "" {
			return ErrInvalidID
		}
		if items[i].State.Archived() {
			ordered = append(ordered, items[i])
		}
	}
	for i := range items {
		if !items[i].State.Archived() {
			ordered = append(ordered, items[i])
		}
	}

	now := time.Now().UTC()
	for i := range ordered {
		item := &ordered[i]

		result, err := tx.ExecContext(ctx,
			`UPDATE items
			 SET name = ?, quantity = ?, price = ?, unit = ?, frequency = ?, state = ?, updated_at = ?
			 WHERE id = ? AND list_id = ?`,
			item.Name, item.Quantity, item.Price, item.Unit,
			item.Frequency, item.State, now, item.ID, item.ListID,
		)
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		if err != nil {
			return fmt.Errorf("saving item %s: %w", item.ID, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("saving item %s: %w", item.ID, err)
		}
		if affected == 0 {
			return ErrNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("committing items: %w", err)
	}
	return nil
}

// DestroyItem removes an item record entirely.
func (s *SQLiteStore) DestroyItem(ctx context.Context, listID, itemID string) error {
	if listID == "" || itemID == "" {
		return ErrInvalidID
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE id = ? AND list_id = ?`, itemID, listID,
	)
	if err != nil {
		return fmt.Errorf("destroying item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("destroying item: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveItemNames returns the lower-cased names of non-archived items
// in the list.
func (s *SQLiteStore) ActiveItemNames(ctx context.Context, listID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lower(name) FROM items WHERE list_id = ? AND state != 'deleted'`, listID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading active names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning name: %w", err)
		}
		names[name] = struct{}{}
	}
	return names, rows.Err()
}

// ArchivedItemsMatchingPrefix returns archived items of the list whose
// name starts with the prefix, case-insensitively.
func (s *SQLiteStore) ArchivedItemsMatchingPrefix(ctx context.Context, listID, prefix string) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, list_id, name, quantity, price, unit, frequency, state, created_at, updated_at
		 FROM items
		 WHERE list_id = ? AND state = 'deleted' AND lower(name) LIKE lower(?) ESCAPE '\'
		 ORDER BY created_at, id`,
		listID, escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("searching archived items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// FindArchivedByName returns the most recently updated archived item
// with the given name.
func (s *SQLiteStore) FindArchivedByName(ctx context.Context, listID, name string) (*model.Item, error) {
	var item model.Item
	err := s.db.QueryRowContext(ctx,
		`SELECT id, list_id, name, quantity, price, unit, frequency, state, created_at, updated_at
		 FROM items
		 WHERE list_id = ? AND state = 'deleted' AND lower(name) = lower(?)
		 ORDER BY updated_at DESC, id LIMIT 1`,
		listID, name,
	).Scan(&item.ID, &item.ListID, &item.Name, &item.Quantity, &item.Price,
		&item.Unit, &item.Frequency, &item.State, &item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding archived item: %w", err)
	}
	return &item, nil
}

func scanLists(rows *sql.Rows) ([]model.List, error) {
	var lists []model.List
	for rows.Next() {
		var list model.List
		if err := rows.Scan(&list.ID, &list.Name, &list.OwnerID, &list.CreatedAt, &list.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning list: %w", err)
		}
		lists = append(lists, list)
	}
	return lists, rows.Err()
}

func scanItems(rows *sql.Rows) ([]model.Item, error) {
	var items []model.Item
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(&item.ID, &item.ListID, &item.Name, &item.Quantity, &item.Price,
			&item.Unit, &item.Frequency, &item.State, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
