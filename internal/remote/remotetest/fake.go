// Package remotetest provides an in-memory RemoteSource for tests.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mschirtzinger/workq/internal/remote"
	"github.com/mschirtzinger/workq/internal/types"
)

// Fake is an in-memory remote source of record. It assigns ids of the form
// {Prefix}-{n} and can be told to fail specific calls.
type Fake struct {
	Prefix string

	mu            sync.Mutex
	items         map[string]*types.WorkItem
	nextID        int
	vocab         types.Vocabulary
	failures      map[string]error
	listFailures  int
	listErr       error
	calls         []string
	invalidations int
	now           func() time.Time
}

var _ remote.RemoteSource = (*Fake)(nil)
var _ remote.CacheInvalidator = (*Fake)(nil)

// New returns an empty fake with prefix "R".
func New() *Fake {
	return &Fake{
		Prefix:   "R",
		items:    make(map[string]*types.WorkItem),
		nextID:   1,
		failures: make(map[string]error),
		vocab: types.Vocabulary{
			Iterations:       []string{"sprint-1", "sprint-2"},
			CurrentIteration: "sprint-2",
			Statuses:         []string{"todo", "doing", "done"},
			Types:            []string{"task", "bug", "story"},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Seed stores items as-is, replacing any with the same id.
func (f *Fake) Seed(items ...*types.WorkItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		f.items[item.ID] = item.Clone()
	}
}

// SetVocabulary replaces the vocabulary returned by the Get* queries.
func (f *Fake) SetVocabulary(v types.Vocabulary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vocab = v
}

// FailOn makes the next calls of op against key return err until cleared.
// For "create" the key is the item title; for the others it is the item id.
func (f *Fake) FailOn(op, key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+":"+key] = err
}

// ClearFailures removes every injected failure.
func (f *Fake) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = make(map[string]error)
	f.listFailures = 0
	f.listErr = nil
}

// FailListing makes the next n ListItems calls return err.
func (f *Fake) FailListing(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFailures = n
	f.listErr = err
}

// Item returns a copy of the stored item, or nil.
func (f *Fake) Item(id string) *types.WorkItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item, ok := f.items[id]; ok {
		return item.Clone()
	}
	return nil
}

// Len returns the number of stored items.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Calls returns the log of calls as "op:key" strings.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many calls of op were made.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) > len(op) && c[:len(op)+1] == op+":" {
			n++
		}
	}
	return n
}

// Invalidations returns how many times InvalidateCaches was called.
func (f *Fake) Invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidations
}

// record logs the call and returns any injected failure. Callers hold f.mu.
func (f *Fake) record(op, key string) error {
	f.calls = append(f.calls, op+":"+key)
	return f.failures[op+":"+key]
}

func (f *Fake) ListItems(_ context.Context, filter types.ItemFilter) ([]*types.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, "list:")
	if f.listFailures > 0 {
		f.listFailures--
		return nil, f.listErr
	}

	result := []*types.WorkItem{}
	for _, item := range f.items {
		if filter.Matches(item) {
			result = append(result, item.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *Fake) GetItem(_ context.Context, id string) (*types.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("get", id); err != nil {
		return nil, err
	}
	item, ok := f.items[id]
	if !ok {
		return nil, types.NotFound(id)
	}
	return item.Clone(), nil
}

func (f *Fake) CreateItem(_ context.Context, fields types.ItemFields) (*types.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("create", fields.Title); err != nil {
		return nil, err
	}

	id := fmt.Sprintf("%s-%d", f.Prefix, f.nextID)
	f.nextID++

	now := f.now()
	item := &types.WorkItem{ID: id, Created: now, Updated: now}
	fields.Patch().Apply(item)
	f.items[id] = item
	return item.Clone(), nil
}

func (f *Fake) UpdateItem(_ context.Context, id string, patch types.ItemPatch) (*types.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("update", id); err != nil {
		return nil, err
	}
	item, ok := f.items[id]
	if !ok {
		return nil, types.NotFound(id)
	}
	patch.Apply(item)
	item.Updated = f.now()
	return item.Clone(), nil
}

func (f *Fake) DeleteItem(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("delete", id); err != nil {
		return err
	}
	if _, ok := f.items[id]; !ok {
		return types.NotFound(id)
	}
	delete(f.items, id)
	return nil
}

func (f *Fake) AddComment(_ context.Context, id string, input types.CommentInput) (*types.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("comment", id); err != nil {
		return nil, err
	}
	item, ok := f.items[id]
	if !ok {
		return nil, types.NotFound(id)
	}
	c := types.Comment{Author: input.Author, Date: f.now(), Body: input.Body}
	item.Comments = append(item.Comments, c)
	return &c, nil
}

func (f *Fake) GetIterations(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("vocab", "iterations"); err != nil {
		return nil, err
	}
	return append([]string(nil), f.vocab.Iterations...), nil
}

func (f *Fake) GetCurrentIteration(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("vocab", "current"); err != nil {
		return "", err
	}
	return f.vocab.CurrentIteration, nil
}

func (f *Fake) GetStatuses(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("vocab", "statuses"); err != nil {
		return nil, err
	}
	return append([]string(nil), f.vocab.Statuses...), nil
}

func (f *Fake) GetWorkItemTypes(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("vocab", "types"); err != nil {
		return nil, err
	}
	return append([]string(nil), f.vocab.Types...), nil
}

// InvalidateCaches counts invalidations so tests can assert the hook ran.
func (f *Fake) InvalidateCaches() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
}
