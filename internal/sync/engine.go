package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/mschirtzinger/workq/internal/db"
	"github.com/mschirtzinger/workq/internal/queue"
	"github.com/mschirtzinger/workq/internal/remote"
	"github.com/mschirtzinger/workq/internal/store"
	"github.com/mschirtzinger/workq/internal/types"
)

// ErrSyncInProgress is returned when a run is requested while another one
// is still active.
var ErrSyncInProgress = errors.New("sync already in progress")

// Config holds engine settings.
type Config struct {
	// Logger for sync progress. Nil uses a stderr logger with a "[sync] " prefix.
	Logger *log.Logger

	// PullMaxElapsed bounds the retries of the remote vocabulary and
	// listing fetches during pull.
	PullMaxElapsed time.Duration

	// PullInitialInterval is the first retry delay during pull.
	PullInitialInterval time.Duration

	// Clock returns the current time. Nil uses time.Now in UTC.
	Clock func() time.Time
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		PullMaxElapsed:      30 * time.Second,
		PullInitialInterval: 500 * time.Millisecond,
	}
}

// Engine implements Syncer over the local store, the mutation queue and a
// remote source.
type Engine struct {
	store  *store.Store
	queue  *queue.Queue
	db     *db.DB
	remote remote.RemoteSource

	logger          *log.Logger
	now             func() time.Time
	pullMaxElapsed  time.Duration
	pullInitialWait time.Duration
	metrics         *syncMetrics

	running atomic.Bool

	mu        stdsync.Mutex
	status    types.SyncStatus
	settled   types.SyncState // terminal state of the last push
	observers map[int]func(types.SyncStatus)
	nextObs   int
}

var _ Syncer = (*Engine)(nil)

// New creates an engine. The database must already have its schema.
func New(st *store.Store, q *queue.Queue, database *db.DB, src remote.RemoteSource, cfg Config) *Engine {
	defaults := DefaultConfig()
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.PullMaxElapsed <= 0 {
		cfg.PullMaxElapsed = defaults.PullMaxElapsed
	}
	if cfg.PullInitialInterval <= 0 {
		cfg.PullInitialInterval = defaults.PullInitialInterval
	}
	return &Engine{
		store:           st,
		queue:           q,
		db:              database,
		remote:          src,
		logger:          cfg.Logger,
		now:             cfg.Clock,
		pullMaxElapsed:  cfg.PullMaxElapsed,
		pullInitialWait: cfg.PullInitialInterval,
		metrics:         newSyncMetrics(),
		status:          types.SyncStatus{State: types.SyncIdle, Errors: []types.SyncError{}},
		settled:         types.SyncIdle,
		observers:       make(map[int]func(types.SyncStatus)),
	}
}

// LoadStatus restores the pending count, last sync time and last push
// errors recorded by earlier processes.
func (e *Engine) LoadStatus(ctx context.Context) error {
	pending, err := e.queue.Len(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending entries: %w", err)
	}

	var last *time.Time
	raw, err := e.db.GetConfig(ctx, db.KeyLastSync)
	switch {
	case err == nil:
		t, perr := time.Parse(time.RFC3339Nano, raw)
		if perr != nil {
			return fmt.Errorf("failed to parse last sync time: %w", perr)
		}
		last = &t
	case !errors.Is(err, db.ErrNoConfig):
		return err
	}

	syncErrors := []types.SyncError{}
	if err := e.db.GetConfigJSON(ctx, db.KeyLastErrors, &syncErrors); err != nil && !errors.Is(err, db.ErrNoConfig) {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.PendingCount = pending
	e.status.LastSyncTime = last
	e.status.Errors = syncErrors
	if len(syncErrors) > 0 {
		e.status.State = types.SyncFailed
		e.settled = types.SyncFailed
	}
	return nil
}

// Status implements Syncer.Status.
func (e *Engine) Status() types.SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyStatus(e.status)
}

// Subscribe implements Syncer.Subscribe.
func (e *Engine) Subscribe(fn func(types.SyncStatus)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = fn

	var once stdsync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.observers, id)
			e.mu.Unlock()
		})
	}
}

// PushPending implements Syncer.PushPending.
func (e *Engine) PushPending(ctx context.Context) (*PushResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer e.running.Store(false)

	e.begin()
	res, err := e.push(ctx)
	e.finish(ctx, runOutcome{pushRan: true, push: res, pushErr: err})
	return res, err
}

// Pull implements Syncer.Pull.
func (e *Engine) Pull(ctx context.Context) (int, error) {
	if !e.running.CompareAndSwap(false, true) {
		return 0, ErrSyncInProgress
	}
	defer e.running.Store(false)

	e.begin()
	n, err := e.pull(ctx)
	e.finish(ctx, runOutcome{pullRan: true, pullErr: err})
	return n, err
}

// Sync implements Syncer.Sync.
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer e.running.Store(false)

	start := time.Now()
	e.begin()
	e.logger.Printf("Starting sync")

	res, pushErr := e.push(ctx)
	result := &SyncResult{Push: res}
	if pushErr != nil {
		e.logger.Printf("Push aborted: %v", pushErr)
	}

	n, pullErr := e.pull(ctx)
	result.PullCount = n

	e.finish(ctx, runOutcome{pushRan: true, push: res, pushErr: pushErr, pullRan: true, pullErr: pullErr})
	e.metrics.recordDuration(ctx, time.Since(start), pushErr == nil && pullErr == nil)

	if pushErr != nil {
		return result, pushErr
	}
	if pullErr != nil {
		return result, pullErr
	}
	e.logger.Printf("Sync complete: pushed=%d failed=%d pulled=%d", res.Pushed, res.Failed, n)
	return result, nil
}

func (e *Engine) begin() {
	e.mu.Lock()
	e.status.State = types.SyncSyncing
	e.mu.Unlock()
	e.notify()
}

// runOutcome describes what one engine run did.
type runOutcome struct {
	pushRan bool
	push    *PushResult
	pushErr error

	pullRan bool
	pullErr error
}

// finish records the terminal status. The state is error iff the last push
// reported failures or aborted. A run without a push restores the state the
// last push left, and pull failures never change it.
func (e *Engine) finish(ctx context.Context, o runOutcome) {
	pending, err := e.queue.Len(ctx)
	if err != nil {
		e.logger.Printf("Warning: failed to count pending entries: %v", err)
	}
	if o.pullErr != nil {
		e.logger.Printf("Pull failed: %v", o.pullErr)
	}
	pulled := o.pullRan && o.pullErr == nil

	e.mu.Lock()
	if err == nil {
		e.status.PendingCount = pending
	}
	if o.pushRan {
		if o.push != nil {
			e.status.Errors = append([]types.SyncError{}, o.push.Errors...)
		}
		if (o.push != nil && o.push.Failed > 0) || o.pushErr != nil {
			e.settled = types.SyncFailed
		} else {
			e.settled = types.SyncIdle
		}
	}
	e.status.State = e.settled
	if pulled {
		t := e.now()
		e.status.LastSyncTime = &t
	}
	snapshot := copyStatus(e.status)
	e.mu.Unlock()

	e.persist(ctx, snapshot, o.pushRan && o.push != nil, pulled)
	e.notify()
}

func (e *Engine) persist(ctx context.Context, st types.SyncStatus, pushed, pulled bool) {
	if pulled && st.LastSyncTime != nil {
		if err := e.db.SetConfig(ctx, db.KeyLastSync, st.LastSyncTime.Format(time.RFC3339Nano)); err != nil {
			e.logger.Printf("Warning: %v", err)
		}
	}
	if pushed {
		if err := e.db.SetConfigJSON(ctx, db.KeyLastErrors, st.Errors); err != nil {
			e.logger.Printf("Warning: %v", err)
		}
	}
}

func (e *Engine) notify() {
	e.mu.Lock()
	st := copyStatus(e.status)
	fns := make([]func(types.SyncStatus), 0, len(e.observers))
	for i := 0; i < e.nextObs; i++ {
		if fn, ok := e.observers[i]; ok {
			fns = append(fns, fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func copyStatus(s types.SyncStatus) types.SyncStatus {
	out := s
	out.Errors = append([]types.SyncError{}, s.Errors...)
	if s.LastSyncTime != nil {
		t := *s.LastSyncTime
		out.LastSyncTime = &t
	}
	return out
}
