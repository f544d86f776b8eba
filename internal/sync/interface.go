package sync

import (
	"context"

	"github.com/mschirtzinger/workq/internal/types"
)

// Syncer pushes queued local mutations and pulls remote state.
//
// *Engine is the implementation; the daemon and dashboard depend on this
// interface so they can be exercised without a remote.
type Syncer interface {
	// PushPending replays a snapshot of the mutation queue against the
	// remote. Entries appended during the call belong to the next push.
	PushPending(ctx context.Context) (*PushResult, error)

	// Pull overwrites local items with the remote listing and returns the
	// number of remote items written.
	Pull(ctx context.Context) (int, error)

	// Sync runs PushPending then Pull. Pull runs even when push reported
	// failures.
	Sync(ctx context.Context) (*SyncResult, error)

	// Status returns the latest status snapshot.
	Status() types.SyncStatus

	// Subscribe registers fn for status changes and returns a function
	// that removes it.
	Subscribe(fn func(types.SyncStatus)) (unsubscribe func())
}

// PushResult aggregates one push batch.
type PushResult struct {
	Pushed int `json:"pushed"`
	Failed int `json:"failed"`

	// Dropped counts entries discarded because their local item no longer
	// exists. They are not failures.
	Dropped int `json:"dropped"`

	Errors []types.SyncError `json:"errors"`

	// IDMappings maps temporary local ids to remote-assigned ids.
	IDMappings map[string]string `json:"idMappings"`
}

// SyncResult is the outcome of Sync.
type SyncResult struct {
	Push      *PushResult `json:"push"`
	PullCount int         `json:"pullCount"`
}
