package types

import "time"

// Action is the kind of mutation recorded in the queue.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionComment Action = "comment"
)

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionComment:
		return true
	}
	return false
}

// QueueEntry is one pending local mutation. ItemID is the identifier known
// locally at enqueue time; only a rename rewrites it.
type QueueEntry struct {
	Seq       int64         `json:"seq"`
	Action    Action        `json:"action"`
	ItemID    string        `json:"itemId"`
	Timestamp time.Time     `json:"timestamp"`
	Comment   *CommentInput `json:"comment,omitempty"`
}

// SyncState is the engine's coarse state.
type SyncState string

const (
	SyncIdle    SyncState = "idle"
	SyncSyncing SyncState = "syncing"
	SyncFailed  SyncState = "error"
)

// SyncError records a queue entry that failed to push.
type SyncError struct {
	Entry     QueueEntry `json:"entry"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// SyncStatus is the snapshot broadcast to observers.
type SyncStatus struct {
	State        SyncState   `json:"state"`
	PendingCount int         `json:"pendingCount"`
	LastSyncTime *time.Time  `json:"lastSyncTime,omitempty"`
	Errors       []SyncError `json:"errors"`
}

// Vocabulary is the remote-authoritative configuration merged on pull.
type Vocabulary struct {
	Iterations       []string `json:"iterations"`
	CurrentIteration string   `json:"currentIteration"`
	Statuses         []string `json:"statuses"`
	Types            []string `json:"types"`
}
