package sync

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/workq/internal/db"
	"github.com/mschirtzinger/workq/internal/local"
	"github.com/mschirtzinger/workq/internal/queue"
	"github.com/mschirtzinger/workq/internal/remote"
	"github.com/mschirtzinger/workq/internal/remote/dirremote"
	"github.com/mschirtzinger/workq/internal/remote/remotetest"
	"github.com/mschirtzinger/workq/internal/store"
	"github.com/mschirtzinger/workq/internal/types"
)

type harness struct {
	engine *Engine
	store  *store.Store
	queue  *queue.Queue
	db     *db.DB
	local  *local.Source
	remote *remotetest.Fake
	events []types.SyncState
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testConfig() Config {
	return Config{
		Logger:              quietLogger(),
		PullMaxElapsed:      time.Second,
		PullInitialInterval: time.Millisecond,
	}
}

func setup(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	database, err := db.OpenAndInit(context.Background(), filepath.Join(dir, "workq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	h := &harness{
		store:  store.New(filepath.Join(dir, "items")),
		queue:  queue.New(database),
		db:     database,
		remote: remotetest.New(),
	}
	h.local = local.New(h.store, h.queue, quietLogger())
	h.engine = New(h.store, h.queue, database, h.remote, testConfig())
	h.engine.Subscribe(func(s types.SyncStatus) {
		h.events = append(h.events, s.State)
	})
	return h
}

// seedBoth writes item to the local store and the remote.
func (h *harness) seedBoth(t *testing.T, item *types.WorkItem) {
	t.Helper()
	require.NoError(t, h.store.Put(context.Background(), item))
	h.remote.Seed(item)
}

func (h *harness) pending(t *testing.T) []types.QueueEntry {
	t.Helper()
	snap, err := h.queue.Read(context.Background())
	require.NoError(t, err)
	return snap.Pending
}

func TestPushPending_EmptyQueue(t *testing.T) {
	h := setup(t)

	res, err := h.engine.PushPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pushed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, types.SyncIdle, h.engine.Status().State)
	assert.Equal(t, []types.SyncState{types.SyncSyncing, types.SyncIdle}, h.events)
}

func TestPushPending_CreateRemapsIdentifier(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	item, err := h.local.CreateItem(ctx, types.ItemFields{Title: "offline", Status: "todo"})
	require.NoError(t, err)
	require.True(t, store.IsLocalID(item.ID))

	res, err := h.engine.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, map[string]string{item.ID: "R-1"}, res.IDMappings)

	got, err := h.store.Get(ctx, "R-1")
	require.NoError(t, err)
	assert.Equal(t, "offline", got.Title)

	_, err = h.store.Get(ctx, item.ID)
	assert.True(t, types.IsNotFound(err), "old id should be gone, got %v", err)
	assert.Empty(t, h.pending(t))
	assert.Equal(t, 0, h.engine.Status().PendingCount)
}

func TestPushPending_RemapReachesReferencesAndLaterEntries(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	parent, err := h.local.CreateItem(ctx, types.ItemFields{Title: "parent"})
	require.NoError(t, err)
	_, err = h.local.CreateItem(ctx, types.ItemFields{Title: "child", Parent: parent.ID})
	require.NoError(t, err)
	title := "parent renamed"
	_, err = h.local.UpdateItem(ctx, parent.ID, types.ItemPatch{Title: &title})
	require.NoError(t, err)

	res, err := h.engine.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pushed)
	assert.Equal(t, 0, res.Failed)

	child := h.remote.Item("R-2")
	require.NotNil(t, child)
	assert.Equal(t, "R-1", child.Parent, "child must be created against the remapped parent id")
	assert.Equal(t, "parent renamed", h.remote.Item("R-1").Title)
	assert.Equal(t, 1, h.remote.CallCount("update"))
	assert.Contains(t, h.remote.Calls(), "update:R-1")
}

func TestPushPending_FailureDoesNotBlockLaterEntries(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	for _, id := range []string{"A", "B", "C"} {
		h.seedBoth(t, &types.WorkItem{ID: id, Title: "item " + id, Status: "todo"})
	}
	done := "done"
	for _, id := range []string{"A", "B", "C"} {
		_, err := h.local.UpdateItem(ctx, id, types.ItemPatch{Status: &done})
		require.NoError(t, err)
	}
	h.remote.FailOn("update", "B", errors.New("connection refused"))

	res, err := h.engine.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pushed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "B", res.Errors[0].Entry.ItemID)
	assert.Contains(t, res.Errors[0].Message, "connection refused")

	assert.Equal(t, "done", h.remote.Item("A").Status)
	assert.Equal(t, "todo", h.remote.Item("B").Status)
	assert.Equal(t, "done", h.remote.Item("C").Status)

	left := h.pending(t)
	require.Len(t, left, 1)
	assert.Equal(t, "B", left[0].ItemID)
	assert.Equal(t, types.ActionUpdate, left[0].Action)

	status := h.engine.Status()
	assert.Equal(t, types.SyncFailed, status.State)
	assert.Equal(t, 1, status.PendingCount)
	assert.Len(t, status.Errors, 1)

	h.remote.ClearFailures()
	res, err = h.engine.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, types.SyncIdle, h.engine.Status().State)
	assert.Empty(t, h.engine.Status().Errors)
}

func TestPushPending_FailedEntryKeepsRelativePosition(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	for _, id := range []string{"A", "B"} {
		h.seedBoth(t, &types.WorkItem{ID: id, Title: id})
	}
	_, err := h.local.AddComment(ctx, "A", types.CommentInput{Author: "ana", Body: "first"})
	require.NoError(t, err)
	_, err = h.local.AddComment(ctx, "B", types.CommentInput{Author: "ana", Body: "second"})
	require.NoError(t, err)
	h.remote.FailOn("comment", "A", errors.New("timeout"))

	_, err = h.engine.PushPending(ctx)
	require.NoError(t, err)

	// A later local edit queues behind the failed entry.
	_, err = h.local.AddComment(ctx, "B", types.CommentInput{Author: "ana", Body: "third"})
	require.NoError(t, err)

	left := h.pending(t)
	require.Len(t, left, 2)
	assert.Equal(t, "A", left[0].ItemID)
	assert.Equal(t, "first", left[0].Comment.Body)
	assert.Equal(t, "B", left[1].ItemID)
	assert.Equal(t, "third", left[1].Comment.Body)
}

func TestPushPending_DropsEntriesForDeletedLocalItems(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	item, err := h.local.CreateItem(ctx, types.ItemFields{Title: "short lived"})
	require.NoError(t, err)
	// Removed behind the queue's back, so only the create is queued.
	require.NoError(t, h.store.Delete(ctx, item.ID))

	res, err := h.engine.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pushed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 0, h.remote.CallCount("create"))
	assert.Empty(t, h.pending(t))
	assert.Equal(t, types.SyncIdle, h.engine.Status().State)
}

func TestPushPending_CreateThenDeleteOffline(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	item, err := h.local.CreateItem(ctx, types.ItemFields{Title: "oops"})
	require.NoError(t, err)
	require.NoError(t, h.local.DeleteItem(ctx, item.ID))

	res, err := h.engine.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 1, res.Pushed, "delete of an item the remote never saw counts as pushed")
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, h.remote.Len())
	assert.Empty(t, h.pending(t))
}

func TestPushPending_CommentOnItemDeletedOffline(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	item, err := h.local.CreateItem(ctx, types.ItemFields{Title: "short lived"})
	require.NoError(t, err)
	_, err = h.local.AddComment(ctx, item.ID, types.CommentInput{Author: "alice", Body: "note"})
	require.NoError(t, err)
	require.NoError(t, h.local.DeleteItem(ctx, item.ID))

	res, err := h.engine.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Dropped, "create and comment are dropped")
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, h.remote.CallCount("comment"))
	assert.Empty(t, h.pending(t))
	assert.Equal(t, types.SyncIdle, h.engine.Status().State)

	res, err = h.engine.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, h.engine.Status().PendingCount)
}

func TestPushPending_CommentOnRemoteItemStillSent(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.seedBoth(t, &types.WorkItem{ID: "R-7", Title: "shared"})

	_, err := h.local.AddComment(ctx, "R-7", types.CommentInput{Author: "bob", Body: "before delete"})
	require.NoError(t, err)
	require.NoError(t, h.local.DeleteItem(ctx, "R-7"))

	res, err := h.engine.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pushed)
	assert.Equal(t, 1, h.remote.CallCount("comment"))
	assert.Nil(t, h.remote.Item("R-7"))
}

func TestPushPending_SkipsEntriesBehindFailedCreate(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	item, err := h.local.CreateItem(ctx, types.ItemFields{Title: "flaky"})
	require.NoError(t, err)
	status := "doing"
	_, err = h.local.UpdateItem(ctx, item.ID, types.ItemPatch{Status: &status})
	require.NoError(t, err)
	h.remote.FailOn("create", "flaky", remote.ErrUnavailable)

	res, err := h.engine.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pushed)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 0, h.remote.CallCount("update"))
	assert.Contains(t, res.Errors[0].Message, remote.ErrUnavailable.Error())
	assert.Len(t, h.pending(t), 2)

	h.remote.ClearFailures()
	res, err = h.engine.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pushed)
	assert.Equal(t, "doing", h.remote.Item("R-1").Status)
}

func TestPushPending_Comment(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	h.seedBoth(t, &types.WorkItem{ID: "A", Title: "a"})
	_, err := h.local.AddComment(ctx, "A", types.CommentInput{Author: "ana", Body: "looks good"})
	require.NoError(t, err)

	res, err := h.engine.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)

	comments := h.remote.Item("A").Comments
	require.Len(t, comments, 1)
	assert.Equal(t, "ana", comments[0].Author)
	assert.Equal(t, "looks good", comments[0].Body)
}

func TestPull_OverwritesLocalFields(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	require.NoError(t, h.store.Put(ctx, &types.WorkItem{
		ID: "A", Title: "old", Status: "todo", Priority: types.PriorityLow,
		Assignee: "ana", Labels: []string{"x"}, Description: "old body",
	}))
	remoteItem := &types.WorkItem{
		ID: "A", Title: "new", Status: "done", Priority: types.PriorityHigh,
		Assignee: "bo", Labels: []string{"y", "z"}, Description: "new body\n",
	}
	remoteItem.Normalize()
	h.remote.Seed(remoteItem)

	n, err := h.engine.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.store.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, remoteItem.Fields(), got.Fields())
}

func TestPull_DeletesAbsentItemsUnlessPending(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	require.NoError(t, h.store.Put(ctx, &types.WorkItem{ID: "GONE", Title: "deleted remotely"}))
	h.seedBoth(t, &types.WorkItem{ID: "KEEP", Title: "still there"})
	fresh, err := h.local.CreateItem(ctx, types.ItemFields{Title: "not pushed yet"})
	require.NoError(t, err)

	n, err := h.engine.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = h.store.Get(ctx, "GONE")
	assert.True(t, types.IsNotFound(err))
	_, err = h.store.Get(ctx, "KEEP")
	assert.NoError(t, err)
	_, err = h.store.Get(ctx, fresh.ID)
	assert.NoError(t, err, "pending item must survive pull")
}

func TestPull_MergesVocabulary(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	want := types.Vocabulary{
		Iterations:       []string{"2026-q3", "2026-q4"},
		CurrentIteration: "2026-q4",
		Statuses:         []string{"new", "closed"},
		Types:            []string{"epic"},
	}
	h.remote.SetVocabulary(want)

	_, err := h.engine.Pull(ctx)
	require.NoError(t, err)

	got, err := h.db.GetVocabulary(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestPull_DropsRemoteCachesBeforeVocabulary(t *testing.T) {
	h := setup(t)

	_, err := h.engine.Pull(context.Background())
	require.NoError(t, err)
	_, err = h.engine.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, h.remote.Invalidations())
}

func TestPull_SeesVocabularyChangedBetweenRuns(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "shared")
	meta := dirremote.DefaultMeta()
	require.NoError(t, dirremote.Init(dir, meta))
	src, err := dirremote.Open(dir, quietLogger())
	require.NoError(t, err)
	engine := New(h.store, h.queue, h.db, src, testConfig())

	_, err = engine.Pull(ctx)
	require.NoError(t, err)
	vocab, err := h.db.GetVocabulary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "backlog", vocab.CurrentIteration)

	meta.Iterations = append(meta.Iterations, "sprint-2")
	meta.CurrentIteration = "sprint-2"
	require.NoError(t, os.Remove(filepath.Join(dir, dirremote.MetaFile)))
	require.NoError(t, dirremote.Init(dir, meta))

	_, err = engine.Pull(ctx)
	require.NoError(t, err)
	vocab, err = h.db.GetVocabulary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sprint-2", vocab.CurrentIteration)
	assert.Equal(t, []string{"backlog", "sprint-2"}, vocab.Iterations)
}

func TestPull_FailureKeepsState(t *testing.T) {
	h := setup(t)
	h.remote.FailListing(10, remote.ErrRejected)

	_, err := h.engine.Pull(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.SyncIdle, h.engine.Status().State)
	assert.Equal(t, []types.SyncState{types.SyncSyncing, types.SyncIdle}, h.events)
}

func TestPull_KeepsStateOfLastPush(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.local.CreateItem(ctx, types.ItemFields{Title: "stuck"})
	require.NoError(t, err)
	h.remote.FailOn("create", "stuck", remote.ErrUnavailable)
	res, err := h.engine.PushPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)

	_, err = h.engine.Pull(ctx)
	require.NoError(t, err)
	status := h.engine.Status()
	assert.Equal(t, types.SyncFailed, status.State, "errors from the last push are still listed")
	assert.Len(t, status.Errors, 1)
	assert.NotNil(t, status.LastSyncTime)

	h.remote.ClearFailures()
	_, err = h.engine.PushPending(ctx)
	require.NoError(t, err)
	_, err = h.engine.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.SyncIdle, h.engine.Status().State)
	assert.Empty(t, h.engine.Status().Errors)
}

func TestPull_RetriesTransientListingFailures(t *testing.T) {
	h := setup(t)
	h.remote.Seed(&types.WorkItem{ID: "A", Title: "a"})
	h.remote.FailListing(2, errors.New("connection reset by peer"))

	n, err := h.engine.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, h.remote.CallCount("list"))
}

func TestPull_StopsOnPermanentFailure(t *testing.T) {
	h := setup(t)
	h.remote.FailListing(10, remote.ErrRejected)

	_, err := h.engine.Pull(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrRejected)
	assert.Equal(t, 1, h.remote.CallCount("list"))
	assert.Nil(t, h.engine.Status().LastSyncTime)
}

func TestPull_GivesUpAfterMaxElapsed(t *testing.T) {
	h := setup(t)
	h.engine.pullMaxElapsed = 20 * time.Millisecond
	h.remote.FailListing(1_000_000, remote.ErrTimeout)

	_, err := h.engine.Pull(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrTimeout)
	assert.Greater(t, h.remote.CallCount("list"), 1)
}

func TestSync_EndToEnd(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	fields := types.ItemFields{
		Title:       "write the sync engine",
		Type:        "task",
		Status:      "doing",
		Priority:    types.PriorityHigh,
		Assignee:    "ana",
		Labels:      []string{"core"},
		Iteration:   "sprint-2",
		Description: "Push then pull.\n",
	}
	created, err := h.local.CreateItem(ctx, fields)
	require.NoError(t, err)

	result, err := h.engine.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Push.Pushed)
	assert.Equal(t, 1, result.PullCount)

	items, err := h.store.List(ctx, types.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, result.Push.IDMappings[created.ID], items[0].ID)
	assert.Equal(t, created.Fields(), items[0].Fields())
	assert.Empty(t, h.pending(t))

	status := h.engine.Status()
	assert.Equal(t, types.SyncIdle, status.State)
	assert.NotNil(t, status.LastSyncTime)
	assert.Equal(t, []types.SyncState{types.SyncSyncing, types.SyncIdle}, h.events)
}

func TestSync_PullRunsAfterPushFailures(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	h.remote.Seed(&types.WorkItem{ID: "R-100", Title: "made elsewhere"})
	item, err := h.local.CreateItem(ctx, types.ItemFields{Title: "stuck"})
	require.NoError(t, err)
	h.remote.FailOn("create", "stuck", errors.New("503"))

	result, err := h.engine.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Push.Failed)
	assert.Equal(t, 1, result.PullCount)

	_, err = h.store.Get(ctx, "R-100")
	assert.NoError(t, err)
	_, err = h.store.Get(ctx, item.ID)
	assert.NoError(t, err, "unpushed item is still pending and must survive")
	assert.Equal(t, types.SyncFailed, h.engine.Status().State)
}

func TestSync_PullErrorLeavesPushState(t *testing.T) {
	h := setup(t)
	h.remote.FailListing(10, remote.ErrRejected)

	result, err := h.engine.Sync(context.Background())
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Push.Failed)
	assert.Equal(t, types.SyncIdle, h.engine.Status().State)
	assert.Nil(t, h.engine.Status().LastSyncTime)
}

func TestSync_RejectsOverlappingRun(t *testing.T) {
	h := setup(t)
	h.engine.running.Store(true)
	defer h.engine.running.Store(false)

	_, err := h.engine.Sync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
	_, err = h.engine.PushPending(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
	_, err = h.engine.Pull(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Empty(t, h.events)
}

func TestLoadStatus_RestoresBookkeeping(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.local.CreateItem(ctx, types.ItemFields{Title: "stuck"})
	require.NoError(t, err)
	h.remote.FailOn("create", "stuck", errors.New("503"))
	_, err = h.engine.Sync(ctx)
	require.NoError(t, err)

	fresh := New(h.store, h.queue, h.db, h.remote, testConfig())
	require.NoError(t, fresh.LoadStatus(ctx))

	status := fresh.Status()
	assert.Equal(t, types.SyncFailed, status.State)
	assert.Equal(t, 1, status.PendingCount)
	require.Len(t, status.Errors, 1)
	assert.Contains(t, status.Errors[0].Message, "503")
	require.NotNil(t, status.LastSyncTime)
	assert.True(t, status.LastSyncTime.Equal(*h.engine.Status().LastSyncTime))
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	h := setup(t)

	var calls int
	unsubscribe := h.engine.Subscribe(func(types.SyncStatus) { calls++ })
	_, err := h.engine.PushPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	unsubscribe()
	unsubscribe()
	_, err = h.engine.PushPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
