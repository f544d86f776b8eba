package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/mschirtzinger/workq/internal/remote"
	"github.com/mschirtzinger/workq/internal/store"
	"github.com/mschirtzinger/workq/internal/types"
)

// errLocalMissing marks an entry whose local item was deleted before it
// could be pushed. Such entries can never succeed.
var errLocalMissing = errors.New("local item no longer exists")

// push replays one queue snapshot. The returned error is only set when the
// batch could not run at all or a local bookkeeping write failed; remote
// failures are reported per entry in the result.
func (e *Engine) push(ctx context.Context) (*PushResult, error) {
	ctx, span := e.metrics.startSpan(ctx, "sync.push")
	defer span.End()

	snap, err := e.queue.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	res := &PushResult{
		Errors:     []types.SyncError{},
		IDMappings: make(map[string]string),
	}
	if len(snap.Pending) == 0 {
		return res, nil
	}
	e.logger.Printf("Pushing %d queued mutations", len(snap.Pending))

	entries := snap.Pending
	unpushedCreates := make(map[string]bool)

	for i := range entries {
		entry := entries[i]
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if unpushedCreates[entry.ItemID] {
			e.fail(res, entry, fmt.Errorf("create for %s has not been pushed", entry.ItemID))
			continue
		}

		newID, err := e.pushEntry(ctx, entry)
		switch {
		case err == nil:
		case errors.Is(err, errLocalMissing):
			if rmErr := e.queue.RemoveEntry(ctx, entry.Seq); rmErr != nil {
				return res, fmt.Errorf("failed to drop entry %d: %w", entry.Seq, rmErr)
			}
			e.logger.Printf("Dropped %s %s: %v", entry.Action, entry.ItemID, err)
			res.Dropped++
			continue
		default:
			e.fail(res, entry, err)
			if entry.Action == types.ActionCreate {
				unpushedCreates[entry.ItemID] = true
			}
			continue
		}

		if newID != "" && newID != entry.ItemID {
			if err := e.remap(ctx, entry.ItemID, newID); err != nil {
				return res, err
			}
			res.IDMappings[entry.ItemID] = newID
			for j := i + 1; j < len(entries); j++ {
				if entries[j].ItemID == entry.ItemID {
					entries[j].ItemID = newID
				}
			}
		}

		if err := e.queue.RemoveEntry(ctx, entry.Seq); err != nil {
			return res, fmt.Errorf("failed to remove pushed entry %d: %w", entry.Seq, err)
		}
		res.Pushed++
	}

	e.metrics.recordPush(ctx, res)
	e.logger.Printf("Push complete: pushed=%d failed=%d dropped=%d", res.Pushed, res.Failed, res.Dropped)
	return res, nil
}

// pushEntry sends one entry to the remote. For a create it returns the
// remote-assigned id.
func (e *Engine) pushEntry(ctx context.Context, entry types.QueueEntry) (string, error) {
	switch entry.Action {
	case types.ActionCreate:
		item, err := e.localItem(ctx, entry.ItemID)
		if err != nil {
			return "", err
		}
		created, err := e.remote.CreateItem(ctx, item.Fields())
		if err != nil {
			return "", remote.Wrap("create", entry.ItemID, err)
		}
		return created.ID, nil

	case types.ActionUpdate:
		item, err := e.localItem(ctx, entry.ItemID)
		if err != nil {
			return "", err
		}
		if _, err := e.remote.UpdateItem(ctx, entry.ItemID, item.Fields().Patch()); err != nil {
			return "", remote.Wrap("update", entry.ItemID, err)
		}
		return "", nil

	case types.ActionDelete:
		err := e.remote.DeleteItem(ctx, entry.ItemID)
		if err != nil && !types.IsNotFound(err) {
			return "", remote.Wrap("delete", entry.ItemID, err)
		}
		return "", nil

	case types.ActionComment:
		if entry.Comment == nil {
			return "", fmt.Errorf("comment entry %d has no payload", entry.Seq)
		}
		// A temporary id the remote never saw only exists locally; once the
		// local item is gone the comment has nowhere to go.
		if store.IsLocalID(entry.ItemID) {
			if _, err := e.localItem(ctx, entry.ItemID); err != nil {
				return "", err
			}
		}
		if _, err := e.remote.AddComment(ctx, entry.ItemID, *entry.Comment); err != nil {
			return "", remote.Wrap("comment", entry.ItemID, err)
		}
		return "", nil
	}
	return "", fmt.Errorf("unknown queue action %q", entry.Action)
}

func (e *Engine) localItem(ctx context.Context, id string) (*types.WorkItem, error) {
	item, err := e.store.Get(ctx, id)
	if err != nil {
		if types.IsNotFound(err) {
			return nil, errLocalMissing
		}
		return nil, fmt.Errorf("failed to read local item %s: %w", id, err)
	}
	return item, nil
}

// remap moves a pushed item from its temporary id to the remote id in the
// store and in the queue.
func (e *Engine) remap(ctx context.Context, oldID, newID string) error {
	if err := e.store.Rename(ctx, oldID, newID); err != nil && !types.IsNotFound(err) {
		return fmt.Errorf("failed to rename %s to %s: %w", oldID, newID, err)
	}
	if err := e.queue.RenameItem(ctx, oldID, newID); err != nil {
		return fmt.Errorf("failed to rename queued entries for %s: %w", oldID, err)
	}
	e.logger.Printf("Remapped %s -> %s", oldID, newID)
	return nil
}

func (e *Engine) fail(res *PushResult, entry types.QueueEntry, err error) {
	res.Failed++
	res.Errors = append(res.Errors, types.SyncError{
		Entry:     entry,
		Message:   err.Error(),
		Timestamp: e.now(),
	})
	e.logger.Printf("Failed to push %s %s: %v", entry.Action, entry.ItemID, err)
}
