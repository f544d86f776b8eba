// Package dirremote implements a RemoteSource backed by a shared directory.
//
// The directory is the source of record for a team that shares it over a
// network mount or a synced folder:
//
//	<dir>/remote.toml    id prefix, id counter and vocabulary
//	<dir>/items/*.md     one file per item, same format as the local store
//
// Identifiers are assigned as {prefix}-{n} from the counter in remote.toml.
// The vocabulary is read once and memoized until InvalidateCaches.
package dirremote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/mschirtzinger/workq/internal/remote"
	"github.com/mschirtzinger/workq/internal/store"
	"github.com/mschirtzinger/workq/internal/types"
)

// MetaFile is the name of the metadata file at the directory root.
const MetaFile = "remote.toml"

func init() {
	remote.Register(remote.KindDir, func(cfg remote.Config) (remote.RemoteSource, error) {
		return Open(cfg.Dir, cfg.Logger)
	})
}

// Meta is the content of remote.toml.
type Meta struct {
	Prefix           string   `toml:"prefix"`
	NextID           int      `toml:"next_id"`
	CurrentIteration string   `toml:"current_iteration"`
	Iterations       []string `toml:"iterations"`
	Statuses         []string `toml:"statuses"`
	Types            []string `toml:"types"`
}

// DefaultMeta returns the metadata written by Init when none is given.
func DefaultMeta() Meta {
	return Meta{
		Prefix:           "WQ",
		NextID:           1,
		CurrentIteration: "backlog",
		Iterations:       []string{"backlog"},
		Statuses:         []string{"todo", "in-progress", "done"},
		Types:            []string{"task", "bug", "story", "epic"},
	}
}

// Remote is a shared-directory source of record.
type Remote struct {
	dir    string
	items  *store.Store
	logger *log.Logger

	mu   sync.Mutex
	meta *Meta // memoized vocabulary; nil until first read
}

var _ remote.RemoteSource = (*Remote)(nil)
var _ remote.CacheInvalidator = (*Remote)(nil)

// Init creates the directory layout with the given metadata. An existing
// remote.toml is left untouched.
func Init(dir string, meta Meta) error {
	if err := os.MkdirAll(filepath.Join(dir, "items"), 0755); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}
	if _, err := os.Stat(filepath.Join(dir, MetaFile)); err == nil {
		return nil
	}
	return writeMeta(dir, &meta)
}

// Open opens an initialized shared directory.
func Open(dir string, logger *log.Logger) (*Remote, error) {
	if dir == "" {
		return nil, fmt.Errorf("remote directory is required")
	}
	if _, err := os.Stat(filepath.Join(dir, MetaFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no %s (run init first)", remote.ErrUnavailable, dir, MetaFile)
		}
		return nil, fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[dirremote] ", log.LstdFlags)
	}
	return &Remote{
		dir:    dir,
		items:  store.New(filepath.Join(dir, "items")),
		logger: logger,
	}, nil
}

// Dir returns the shared directory.
func (r *Remote) Dir() string {
	return r.dir
}

func (r *Remote) ListItems(ctx context.Context, filter types.ItemFilter) ([]*types.WorkItem, error) {
	items, err := r.items.List(ctx, filter)
	if err != nil {
		return nil, remote.Wrap("list", "", fmt.Errorf("%w: %v", remote.ErrUnavailable, err))
	}
	return items, nil
}

func (r *Remote) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	item, err := r.items.Get(ctx, id)
	return item, remote.Wrap("get", id, err)
}

// CreateItem assigns the next {prefix}-{n} identifier. The counter is always
// re-read from disk so two writers sharing the directory don't reuse ids
// between invalidations.
func (r *Remote) CreateItem(ctx context.Context, fields types.ItemFields) (*types.WorkItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, err := readMeta(r.dir)
	if err != nil {
		return nil, remote.Wrap("create", "", err)
	}

	r.items.SetIDGenerator(func() string {
		id := fmt.Sprintf("%s-%d", meta.Prefix, meta.NextID)
		meta.NextID++
		return id
	})

	item, err := r.items.Create(ctx, fields)
	if err != nil {
		return nil, remote.Wrap("create", "", rejectValidation(err))
	}
	if err := writeMeta(r.dir, meta); err != nil {
		return nil, remote.Wrap("create", item.ID, err)
	}
	r.logger.Printf("created %s %q", item.ID, item.Title)
	return item, nil
}

func (r *Remote) UpdateItem(ctx context.Context, id string, patch types.ItemPatch) (*types.WorkItem, error) {
	item, err := r.items.Update(ctx, id, patch)
	if err != nil {
		return nil, remote.Wrap("update", id, rejectValidation(err))
	}
	return item, nil
}

func (r *Remote) DeleteItem(ctx context.Context, id string) error {
	if _, err := r.items.Get(ctx, id); err != nil {
		return remote.Wrap("delete", id, err)
	}
	return remote.Wrap("delete", id, r.items.Delete(ctx, id))
}

func (r *Remote) AddComment(ctx context.Context, id string, input types.CommentInput) (*types.Comment, error) {
	c, err := r.items.AddComment(ctx, id, input)
	if err != nil {
		return nil, remote.Wrap("comment", id, err)
	}
	return c, nil
}

func (r *Remote) GetIterations(context.Context) ([]string, error) {
	meta, err := r.cachedMeta()
	if err != nil {
		return nil, err
	}
	return append([]string(nil), meta.Iterations...), nil
}

func (r *Remote) GetCurrentIteration(context.Context) (string, error) {
	meta, err := r.cachedMeta()
	if err != nil {
		return "", err
	}
	return meta.CurrentIteration, nil
}

func (r *Remote) GetStatuses(context.Context) ([]string, error) {
	meta, err := r.cachedMeta()
	if err != nil {
		return nil, err
	}
	return append([]string(nil), meta.Statuses...), nil
}

func (r *Remote) GetWorkItemTypes(context.Context) ([]string, error) {
	meta, err := r.cachedMeta()
	if err != nil {
		return nil, err
	}
	return append([]string(nil), meta.Types...), nil
}

// InvalidateCaches drops the memoized vocabulary.
func (r *Remote) InvalidateCaches() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta = nil
}

func (r *Remote) cachedMeta() (*Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.meta == nil {
		meta, err := readMeta(r.dir)
		if err != nil {
			return nil, err
		}
		r.meta = meta
	}
	return r.meta, nil
}

func readMeta(dir string) (*Meta, error) {
	var meta Meta
	path := filepath.Join(dir, MetaFile)
	if _, err := toml.DecodeFile(path, &meta); err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", remote.ErrUnavailable, path, err)
	}
	if meta.Prefix == "" {
		meta.Prefix = DefaultMeta().Prefix
	}
	if meta.NextID < 1 {
		meta.NextID = 1
	}
	return &meta, nil
}

// writeMeta replaces remote.toml atomically via a temp file.
func writeMeta(dir string, meta *Meta) error {
	path := filepath.Join(dir, MetaFile)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(meta); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}

// rejectValidation marks relationship failures as remote rejections so the
// caller can tell them apart from transport problems.
func rejectValidation(err error) error {
	if _, ok := types.AsValidation(err); ok {
		return fmt.Errorf("%w: %w", remote.ErrRejected, err)
	}
	return err
}
