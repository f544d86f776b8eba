package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/workq/internal/types"
)

// LocalIDPrefix marks identifiers generated locally and not yet confirmed by
// a remote source.
const LocalIDPrefix = "local-"

// ErrExists is returned by Rename when the target identifier is taken.
var ErrExists = errors.New("item already exists")

// IsLocalID reports whether id is a temporary local identifier.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Store is the file-backed item store.
type Store struct {
	dir string

	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

// New returns a store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{
		dir:   dir,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return LocalIDPrefix + uuid.NewString()[:8] },
	}
}

// Dir returns the items directory.
func (s *Store) Dir() string {
	return s.dir
}

// SetClock replaces the time source used for created/updated stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetIDGenerator replaces the generator used by Create. The store retries
// until the generator yields an unused id.
func (s *Store) SetIDGenerator(next func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newID = next
}

// load reads the whole arena keyed by id.
func (s *Store) load() (map[string]*types.WorkItem, error) {
	items, err := ReadAllItemFiles(s.dir)
	if err != nil {
		return nil, err
	}
	graph := make(map[string]*types.WorkItem, len(items))
	for _, item := range items {
		graph[item.ID] = item
	}
	return graph, nil
}

// Create validates fields against the graph as if the new item already
// existed and persists it under a fresh temporary identifier.
func (s *Store) Create(ctx context.Context, fields types.ItemFields) (*types.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	graph, err := s.load()
	if err != nil {
		return nil, err
	}

	id := s.newID()
	for graph[id] != nil {
		id = s.newID()
	}

	now := s.now()
	item := &types.WorkItem{ID: id, Created: now, Updated: now}
	fields.Patch().Apply(item)

	if err := checkFields(item); err != nil {
		return nil, err
	}
	graph[id] = item
	if err := validateRelations(graph, item); err != nil {
		return nil, err
	}

	if err := WriteItemFile(s.dir, item); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	return item.Clone(), nil
}

// Update applies patch to the item and validates the resulting graph with
// this item's edges replaced by the proposed ones.
func (s *Store) Update(ctx context.Context, id string, patch types.ItemPatch) (*types.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	graph, err := s.load()
	if err != nil {
		return nil, err
	}
	current, ok := graph[id]
	if !ok {
		return nil, types.NotFound(id)
	}

	proposed := current.Clone()
	patch.Apply(proposed)
	proposed.Updated = s.now()

	if err := checkFields(proposed); err != nil {
		return nil, err
	}
	graph[id] = proposed
	if err := validateRelations(graph, proposed); err != nil {
		return nil, err
	}

	if err := WriteItemFile(s.dir, proposed); err != nil {
		return nil, fmt.Errorf("failed to update item %s: %w", id, err)
	}
	return proposed.Clone(), nil
}

// Delete removes the item and repairs every item that referenced it.
// Deleting an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	graph, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := graph[id]; !ok {
		return nil
	}
	delete(graph, id)

	// Repair referrers before removing the file so a crash never leaves
	// dangling references behind.
	now := s.now()
	for _, other := range sortedItems(graph) {
		if !repairReferences(other, id, "") {
			continue
		}
		other.Updated = now
		if err := WriteItemFile(s.dir, other); err != nil {
			return fmt.Errorf("failed to repair %s after deleting %s: %w", other.ID, id, err)
		}
	}

	return RemoveItemFile(s.dir, id)
}

// Get returns the item with the given id.
func (s *Store) Get(ctx context.Context, id string) (*types.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ValidateID(id) != nil {
		return nil, types.NotFound(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := ReadItemFile(filepath.Join(s.dir, Filename(id)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, types.NotFound(id)
		}
		return nil, err
	}
	return item, nil
}

// List returns every item matching filter, oldest first.
func (s *Store) List(ctx context.Context, filter types.ItemFilter) ([]*types.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	graph, err := s.load()
	if err != nil {
		return nil, err
	}
	result := make([]*types.WorkItem, 0, len(graph))
	for _, item := range sortedItems(graph) {
		if filter.Matches(item) {
			result = append(result, item)
		}
	}
	return result, nil
}

// Children returns the items whose parent is id.
func (s *Store) Children(ctx context.Context, id string) ([]*types.WorkItem, error) {
	all, err := s.List(ctx, types.ItemFilter{})
	if err != nil {
		return nil, err
	}
	return ChildrenOf(all, id), nil
}

// Dependents returns the items that depend on id.
func (s *Store) Dependents(ctx context.Context, id string) ([]*types.WorkItem, error) {
	all, err := s.List(ctx, types.ItemFilter{})
	if err != nil {
		return nil, err
	}
	return DependentsOf(all, id), nil
}

// AddComment appends a comment to the item's history.
func (s *Store) AddComment(ctx context.Context, id string, input types.CommentInput) (*types.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	graph, err := s.load()
	if err != nil {
		return nil, err
	}
	item, ok := graph[id]
	if !ok {
		return nil, types.NotFound(id)
	}

	now := s.now()
	comment := types.Comment{Author: input.Author, Date: now, Body: input.Body}
	item.Comments = append(item.Comments, comment)
	item.Updated = now

	if err := WriteItemFile(s.dir, item); err != nil {
		return nil, fmt.Errorf("failed to add comment to %s: %w", id, err)
	}
	return &comment, nil
}

// Put overwrites the stored record for item.ID in full, creating it if
// needed. Relationship rules are not checked: the caller is replicating a
// record from the source of record.
func (s *Store) Put(ctx context.Context, item *types.WorkItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := WriteItemFile(s.dir, item); err != nil {
		return fmt.Errorf("failed to put item %s: %w", item.ID, err)
	}
	return nil
}

// Rename moves an item to a new identifier and rewrites every parent and
// dependency reference to it. It is used when a remote source assigns its
// own id to a locally created item.
func (s *Store) Rename(ctx context.Context, oldID, newID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateID(newID); err != nil {
		return fmt.Errorf("cannot rename %s: %w", oldID, err)
	}
	if oldID == newID {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	graph, err := s.load()
	if err != nil {
		return err
	}
	item, ok := graph[oldID]
	if !ok {
		return types.NotFound(oldID)
	}
	if _, taken := graph[newID]; taken {
		return fmt.Errorf("cannot rename %s to %s: %w", oldID, newID, ErrExists)
	}

	item.ID = newID
	if err := WriteItemFile(s.dir, item); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", oldID, newID, err)
	}
	delete(graph, oldID)

	for _, other := range sortedItems(graph) {
		if other.ID == newID || !repairReferences(other, oldID, newID) {
			continue
		}
		if err := WriteItemFile(s.dir, other); err != nil {
			return fmt.Errorf("failed to rewrite references in %s: %w", other.ID, err)
		}
	}

	return RemoveItemFile(s.dir, oldID)
}

// ChildrenOf filters items down to those whose parent is id.
func ChildrenOf(items []*types.WorkItem, id string) []*types.WorkItem {
	result := []*types.WorkItem{}
	for _, item := range items {
		if item.Parent == id && id != "" {
			result = append(result, item)
		}
	}
	return result
}

// DependentsOf filters items down to those that depend on id.
func DependentsOf(items []*types.WorkItem, id string) []*types.WorkItem {
	result := []*types.WorkItem{}
	for _, item := range items {
		if item.HasDependency(id) {
			result = append(result, item)
		}
	}
	return result
}

// repairReferences replaces references to oldID with newID in item, or drops
// them when newID is empty. It reports whether anything changed.
func repairReferences(item *types.WorkItem, oldID, newID string) bool {
	changed := false
	if item.Parent == oldID {
		item.Parent = newID
		changed = true
	}

	deps := item.DependsOn[:0:0]
	for _, dep := range item.DependsOn {
		if dep != oldID {
			deps = append(deps, dep)
			continue
		}
		changed = true
		if newID != "" && !slices.Contains(deps, newID) {
			deps = append(deps, newID)
		}
	}
	item.DependsOn = deps
	item.Normalize()
	return changed
}

func sortedItems(graph map[string]*types.WorkItem) []*types.WorkItem {
	items := make([]*types.WorkItem, 0, len(graph))
	for _, item := range graph {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Created.Equal(items[j].Created) {
			return items[i].Created.Before(items[j].Created)
		}
		return items[i].ID < items[j].ID
	})
	return items
}
