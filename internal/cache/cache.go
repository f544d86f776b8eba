// Package cache provides a read-through cache over any item source.
//
// The full listing is fetched once and reused for a configurable time to
// live. Derived views (children, dependents, assignees, labels) are computed
// from that one listing instead of separate source calls. Every successful
// write drops the listing immediately and gives the source a chance to drop
// caches of its own; a failed write leaves the cache alone.
//
// Items returned from the cache are shared between callers and must be
// treated as read-only.
package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mschirtzinger/workq/internal/remote"
	"github.com/mschirtzinger/workq/internal/store"
	"github.com/mschirtzinger/workq/internal/types"
)

// DefaultTTL is used when Config.TTL is zero.
const DefaultTTL = 30 * time.Second

// Config holds cache settings.
type Config struct {
	// TTL is how long a fetched listing is served without refetching.
	TTL time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	// OnInvalidate is called after every invalidation, after the source's
	// own InvalidateCaches hook.
	OnInvalidate func()
}

// Cache wraps a source with a memoized listing.
type Cache struct {
	src          remote.Source
	ttl          time.Duration
	now          func() time.Time
	onInvalidate func()

	mu         sync.Mutex
	items      []*types.WorkItem
	capturedAt time.Time
	generation uint64
	fetches    int

	group singleflight.Group
}

var _ remote.Source = (*Cache)(nil)

// New wraps src.
func New(src remote.Source, cfg Config) *Cache {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Cache{
		src:          src,
		ttl:          cfg.TTL,
		now:          cfg.Clock,
		onInvalidate: cfg.OnInvalidate,
	}
}

// Source returns the wrapped source.
func (c *Cache) Source() remote.Source {
	return c.src
}

// All returns the full listing, fetching it if the cached copy is missing
// or older than the TTL. Concurrent misses share one fetch.
func (c *Cache) All(ctx context.Context) ([]*types.WorkItem, error) {
	c.mu.Lock()
	if c.items != nil && c.now().Sub(c.capturedAt) < c.ttl {
		items := c.items
		c.mu.Unlock()
		return items, nil
	}
	gen := c.generation
	c.mu.Unlock()

	v, err, _ := c.group.Do("list", func() (any, error) {
		items, err := c.src.ListItems(ctx, types.ItemFilter{})
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		c.fetches++
		// A write that landed during the fetch invalidated the result.
		if c.generation == gen {
			c.items = items
			c.capturedAt = c.now()
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*types.WorkItem), nil
}

// Fetches returns how many listings were fetched from the source.
func (c *Cache) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// Invalidate drops the cached listing and runs the invalidation hooks.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.items = nil
	c.capturedAt = time.Time{}
	c.generation++
	c.mu.Unlock()

	c.group.Forget("list")

	if inv, ok := c.src.(remote.CacheInvalidator); ok {
		inv.InvalidateCaches()
	}
	if c.onInvalidate != nil {
		c.onInvalidate()
	}
}

// ListItems filters the cached listing.
func (c *Cache) ListItems(ctx context.Context, filter types.ItemFilter) ([]*types.WorkItem, error) {
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	if filter == (types.ItemFilter{}) {
		return all, nil
	}
	result := make([]*types.WorkItem, 0, len(all))
	for _, item := range all {
		if filter.Matches(item) {
			result = append(result, item)
		}
	}
	return result, nil
}

// GetItem reads through to the source.
func (c *Cache) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	return c.src.GetItem(ctx, id)
}

func (c *Cache) CreateItem(ctx context.Context, fields types.ItemFields) (*types.WorkItem, error) {
	item, err := c.src.CreateItem(ctx, fields)
	if !written(err) {
		return nil, err
	}
	c.Invalidate()
	return item, err
}

func (c *Cache) UpdateItem(ctx context.Context, id string, patch types.ItemPatch) (*types.WorkItem, error) {
	item, err := c.src.UpdateItem(ctx, id, patch)
	if !written(err) {
		return nil, err
	}
	c.Invalidate()
	return item, err
}

func (c *Cache) DeleteItem(ctx context.Context, id string) error {
	err := c.src.DeleteItem(ctx, id)
	if !written(err) {
		return err
	}
	c.Invalidate()
	return err
}

func (c *Cache) AddComment(ctx context.Context, id string, input types.CommentInput) (*types.Comment, error) {
	comment, err := c.src.AddComment(ctx, id, input)
	if !written(err) {
		return nil, err
	}
	c.Invalidate()
	return comment, err
}

// written reports whether a write reached the source, including writes
// saved locally whose sync record failed.
func written(err error) bool {
	return err == nil || errors.Is(err, types.ErrNotQueued)
}

// Children returns the items whose parent is id.
func (c *Cache) Children(ctx context.Context, id string) ([]*types.WorkItem, error) {
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	return store.ChildrenOf(all, id), nil
}

// Dependents returns the items that depend on id.
func (c *Cache) Dependents(ctx context.Context, id string) ([]*types.WorkItem, error) {
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	return store.DependentsOf(all, id), nil
}

// Assignees returns the distinct non-empty assignees, sorted.
func (c *Cache) Assignees(ctx context.Context) ([]string, error) {
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, item := range all {
		if item.Assignee != "" {
			seen[item.Assignee] = true
		}
	}
	return sortedKeys(seen), nil
}

// Labels returns the distinct labels across all items, sorted.
func (c *Cache) Labels(ctx context.Context) ([]string, error) {
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, item := range all {
		for _, l := range item.Labels {
			seen[l] = true
		}
	}
	return sortedKeys(seen), nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
