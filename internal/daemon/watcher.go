package daemon

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mschirtzinger/workq/internal/store"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new item file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing item file was modified.
	OpModify
	// OpDelete indicates an item file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ItemEvent is a change to one item file.
type ItemEvent struct {
	// ItemID is derived from the file name.
	ItemID string
	// Path is the file that changed.
	Path string
	Op   EventOp
}

// FileWatcher watches the items directory for item file changes.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	events   chan ItemEvent
	errors   chan error
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	itemsDir string
}

// NewFileWatcher creates a new FileWatcher instance.
// The watcher must be started with Start() before it will emit events.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan ItemEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching itemsDir for *.md changes.
func (fw *FileWatcher) Start(itemsDir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(itemsDir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", itemsDir, err)
	}
	if err := fw.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch items directory %s: %w", itemsDir, err)
	}
	fw.itemsDir = abs

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching and blocks until the event loop has exited.
// It is safe to call on a watcher that was never started.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	wasRunning := fw.running
	fw.running = false
	fw.mu.Unlock()

	if !wasRunning {
		return fw.watcher.Close()
	}

	close(fw.done)
	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)
	return nil
}

// Events returns the channel of item events. It is closed by Stop.
func (fw *FileWatcher) Events() <-chan ItemEvent {
	return fw.events
}

// Errors returns the channel of watcher errors. It is closed by Stop.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if itemEvent, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- itemEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event to an ItemEvent. Temporary files
// written by the store before their rename are ignored.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (ItemEvent, bool) {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, store.ItemFileExt) || strings.HasPrefix(name, ".") {
		return ItemEvent{}, false
	}
	if filepath.Dir(event.Name) != fw.itemsDir {
		return ItemEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// the new name of a rename arrives as its own create
		op = OpDelete
	default:
		return ItemEvent{}, false
	}

	return ItemEvent{
		ItemID: strings.TrimSuffix(name, store.ItemFileExt),
		Path:   event.Name,
		Op:     op,
	}, true
}
