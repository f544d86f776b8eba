// Package local is the write path for items edited on this machine.
//
// Source persists every mutation to the item store and, when the workspace
// is linked to a remote, appends a matching entry to the mutation queue so
// the sync engine can replay it later.
package local

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mschirtzinger/workq/internal/queue"
	"github.com/mschirtzinger/workq/internal/remote"
	"github.com/mschirtzinger/workq/internal/store"
	"github.com/mschirtzinger/workq/internal/types"
)

// Source implements remote.Source over the local store.
type Source struct {
	store  *store.Store
	queue  *queue.Queue
	logger *log.Logger
}

var _ remote.Source = (*Source)(nil)

// New returns a local source. A nil queue means the workspace is local-only
// and mutations are not recorded for sync.
func New(st *store.Store, q *queue.Queue, logger *log.Logger) *Source {
	if logger == nil {
		logger = log.New(os.Stderr, "[local] ", log.LstdFlags)
	}
	return &Source{store: st, queue: q, logger: logger}
}

// Store returns the underlying item store.
func (s *Source) Store() *store.Store {
	return s.store
}

// Tracked reports whether mutations are queued for a remote.
func (s *Source) Tracked() bool {
	return s.queue != nil
}

func (s *Source) ListItems(ctx context.Context, filter types.ItemFilter) ([]*types.WorkItem, error) {
	return s.store.List(ctx, filter)
}

func (s *Source) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	return s.store.Get(ctx, id)
}

func (s *Source) CreateItem(ctx context.Context, fields types.ItemFields) (*types.WorkItem, error) {
	item, err := s.store.Create(ctx, fields)
	if err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, types.QueueEntry{Action: types.ActionCreate, ItemID: item.ID}); err != nil {
		return item, err
	}
	return item, nil
}

func (s *Source) UpdateItem(ctx context.Context, id string, patch types.ItemPatch) (*types.WorkItem, error) {
	item, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, types.QueueEntry{Action: types.ActionUpdate, ItemID: id}); err != nil {
		return item, err
	}
	return item, nil
}

// DeleteItem removes the item locally. The delete is queued even when the
// item is already gone locally, since the remote may still hold it.
func (s *Source) DeleteItem(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	return s.enqueue(ctx, types.QueueEntry{Action: types.ActionDelete, ItemID: id})
}

func (s *Source) AddComment(ctx context.Context, id string, input types.CommentInput) (*types.Comment, error) {
	c, err := s.store.AddComment(ctx, id, input)
	if err != nil {
		return nil, err
	}
	payload := input
	if err := s.enqueue(ctx, types.QueueEntry{Action: types.ActionComment, ItemID: id, Comment: &payload}); err != nil {
		return c, err
	}
	return c, nil
}

// enqueue records a mutation for sync. The local write has already
// happened, so a failure here is reported but not rolled back.
func (s *Source) enqueue(ctx context.Context, entry types.QueueEntry) error {
	if s.queue == nil {
		return nil
	}
	if _, err := s.queue.Append(ctx, entry); err != nil {
		s.logger.Printf("Warning: %s %s saved locally but not queued: %v", entry.Action, entry.ItemID, err)
		return fmt.Errorf("%w: %s %s: %w", types.ErrNotQueued, entry.Action, entry.ItemID, err)
	}
	return nil
}
