// Package sync reconciles the local workspace with a remote source.
//
// Overview
//
// A sync run has two phases. Push drains the mutation queue against the
// remote in enqueue order. Pull then overwrites the local item files with
// the remote's current state:
//
//	.workq/workq.db (mutations)      remote source
//	          │                            ▲
//	          └──────── PushPending ───────┘
//	                                       │
//	.workq/items/*.md  ◄──────── Pull ─────┘
//
// Usage
//
//	database, err := db.OpenAndInit(ctx, ".workq/workq.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//
//	src, err := remote.Open(remote.KindDir, remote.Config{Dir: "/shared/board"})
//	if err != nil {
//	    return err
//	}
//
//	engine := sync.New(store.New(".workq/items"), queue.New(database), database, src, sync.DefaultConfig())
//	result, err := engine.Sync(ctx)
//
// Identifier remapping
//
// Items created offline carry a temporary "local-" identifier. When the
// remote assigns its own identifier on create, the engine renames the
// local file, rewrites parent and dependency references in other items,
// and rewrites every later queue entry for the item. Entries later in the
// same batch see the new identifier.
//
// Error Handling
//
// Push isolates failures per entry:
//
//   - A remote failure leaves the entry queued and is reported in PushResult.Errors
//   - An entry whose local item is gone is dropped and not counted as a failure
//   - Entries queued behind a failed create for the same item are skipped
//
// Pull retries the vocabulary and listing fetches with exponential backoff
// bounded by Config.PullMaxElapsed. A failed local write during pull is
// logged and skipped.
//
// Concurrency
//
// One run at a time. An overlapping PushPending, Pull or Sync returns
// ErrSyncInProgress. Observers are called synchronously on the goroutine
// running the sync and must not call back into the engine.
package sync
