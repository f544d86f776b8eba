package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mschirtzinger/workq/internal/remote"
	"github.com/mschirtzinger/workq/internal/types"
)

// pull merges the remote vocabulary and overwrites local items with the
// remote listing. Local items absent remotely are deleted unless they still
// have queued mutations.
func (e *Engine) pull(ctx context.Context) (int, error) {
	ctx, span := e.metrics.startSpan(ctx, "sync.pull")
	defer span.End()

	// The remote owns the vocabulary, so any copy it memoized is dropped
	// before each fetch.
	inv, _ := e.remote.(remote.CacheInvalidator)

	var vocab *types.Vocabulary
	err := e.withRetry(ctx, "fetch vocabulary", func() error {
		if inv != nil {
			inv.InvalidateCaches()
		}
		var ferr error
		vocab, ferr = remote.FetchVocabulary(ctx, e.remote)
		return ferr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch remote configuration: %w", err)
	}
	if err := e.db.SetVocabulary(ctx, vocab); err != nil {
		return 0, fmt.Errorf("failed to save remote configuration: %w", err)
	}

	var items []*types.WorkItem
	err = e.withRetry(ctx, "list items", func() error {
		var lerr error
		items, lerr = e.remote.ListItems(ctx, types.ItemFilter{})
		return remote.Wrap("list", "", lerr)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list remote items: %w", err)
	}

	pending, err := e.queue.PendingIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read pending ids: %w", err)
	}

	var (
		written int
		failed  int
	)
	remoteIDs := make(map[string]bool, len(items))
	for _, item := range items {
		remoteIDs[item.ID] = true
		if err := e.store.Put(ctx, item); err != nil {
			e.logger.Printf("Warning: failed to write %s: %v", item.ID, err)
			failed++
			continue
		}
		written++
	}

	local, err := e.store.List(ctx, types.ItemFilter{})
	if err != nil {
		return written, fmt.Errorf("failed to list local items: %w", err)
	}
	var deleted int
	for _, item := range local {
		if remoteIDs[item.ID] || pending[item.ID] {
			continue
		}
		if err := e.store.Delete(ctx, item.ID); err != nil {
			e.logger.Printf("Warning: failed to delete %s: %v", item.ID, err)
			failed++
			continue
		}
		deleted++
	}

	e.metrics.recordPull(ctx, written)
	e.logger.Printf("Pull complete: written=%d deleted=%d failed=%d", written, deleted, failed)
	return written, nil
}

// withRetry runs op with exponential backoff until it succeeds, fails with
// a non-retryable error, or the pull deadline passes.
func (e *Engine) withRetry(ctx context.Context, what string, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.pullInitialWait
	bo.MaxElapsedTime = e.pullMaxElapsed

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !remote.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		e.logger.Printf("%s failed, retrying in %s: %v", what, wait, err)
	})
}
