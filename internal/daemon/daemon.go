// Package daemon runs periodic syncs and watches the items directory.
//
// The daemon:
//  1. Runs a sync on start and then every SyncInterval
//  2. Watches .workq/items for files changed outside the process
//  3. Invalidates the listing cache once a burst of changes settles
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	wqsync "github.com/mschirtzinger/workq/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to push and pull.
	SyncInterval time.Duration

	// DebounceInterval is how long a file must stay quiet before its
	// change is processed. This batches rapid updates together.
	DebounceInterval time.Duration

	// OnItemsChanged is called with the ids of settled item changes,
	// after the cache was invalidated. Optional.
	OnItemsChanged func(ids []string)

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Invalidator drops cached listings. *cache.Cache implements it.
type Invalidator interface {
	Invalidate()
}

// Daemon orchestrates periodic sync and file watching.
type Daemon struct {
	syncer   wqsync.Syncer
	cache    Invalidator
	itemsDir string
	config   *Config

	watcher       *FileWatcher
	changeQueue   map[string]time.Time // item id -> last event
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
}

// New creates a daemon with default configuration.
func New(syncer wqsync.Syncer, cache Invalidator, itemsDir string) (*Daemon, error) {
	return NewWithConfig(syncer, cache, itemsDir, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration. A nil syncer
// runs the daemon in watch-only mode for local-only workspaces.
func NewWithConfig(syncer wqsync.Syncer, cache Invalidator, itemsDir string, config *Config) (*Daemon, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if itemsDir == "" {
		return nil, fmt.Errorf("itemsDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = DefaultConfig().SyncInterval
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		syncer:      syncer,
		cache:       cache,
		itemsDir:    itemsDir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start runs an initial sync, starts the background loops and blocks
// until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := os.MkdirAll(d.itemsDir, 0755); err != nil {
		return fmt.Errorf("failed to create items directory: %w", err)
	}
	if err := d.watcher.Start(d.itemsDir); err != nil {
		return err
	}
	d.config.Logger.Printf("Watching: %s", d.itemsDir)

	d.SyncNow(ctx)

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.syncLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()
		if err := d.watcher.Stop(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

// SyncNow runs one sync and logs the outcome. Sync errors do not stop the
// daemon; the next tick tries again.
func (d *Daemon) SyncNow(ctx context.Context) {
	if d.syncer == nil {
		return
	}
	result, err := d.syncer.Sync(ctx)
	switch {
	case errors.Is(err, wqsync.ErrSyncInProgress):
		d.config.Logger.Println("Sync skipped: previous run still active")
		return
	case err != nil:
		d.config.Logger.Printf("Sync failed: %v", err)
	default:
		d.config.Logger.Printf("Sync: pushed=%d failed=%d pulled=%d",
			result.Push.Pushed, result.Push.Failed, result.PullCount)
	}
	d.cache.Invalidate()
}

func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.SyncNow(d.ctx)
		}
	}
}

// watchFileEvents queues item changes reported by the watcher.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.queueChange(event.ItemID)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) queueChange(id string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	d.changeQueue[id] = time.Now()
}

func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges handles items that have been quiet for at least
// DebounceInterval.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	now := time.Now()
	var settled []string
	for id, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		settled = append(settled, id)
		delete(d.changeQueue, id)
	}
	d.changeQueueMu.Unlock()

	if len(settled) == 0 {
		return
	}
	sort.Strings(settled)
	d.config.Logger.Printf("Items changed: %v", settled)
	d.cache.Invalidate()
	if d.config.OnItemsChanged != nil {
		d.config.OnItemsChanged(settled)
	}
}
