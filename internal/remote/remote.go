// Package remote defines the contract between workq and a remote source of
// record, and the registry that selects a backend by configuration.
//
// # Architecture
//
// Source is the item CRUD contract. The local write path and every remote
// backend implement it, so the cache layer can wrap either one.
// RemoteSource adds the vocabulary queries that pull merges into local
// configuration.
//
// Backends register a constructor from an init function:
//
//	func init() {
//	    remote.Register(remote.KindDir, New)
//	}
//
// and callers open one by kind:
//
//	src, err := remote.Open(remote.KindDir, remote.Config{Dir: "/shared/board"})
//
// # Implementations
//
//   - internal/remote/dirremote: a shared directory of item files
//   - internal/remote/cliremote: a vendor CLI that speaks JSON
//   - internal/remote/remotetest: in-memory fake for tests
package remote

import (
	"context"
	"log"
	"time"

	"github.com/mschirtzinger/workq/internal/types"
)

// Kind identifies a remote backend.
type Kind string

const (
	// KindNone means items are purely local and nothing is queued.
	KindNone Kind = ""

	// KindDir is a shared directory acting as the source of record.
	KindDir Kind = "dir"

	// KindCLI shells out to a tracker's command line client.
	KindCLI Kind = "cli"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	if k == KindNone {
		return "none"
	}
	return string(k)
}

// Source is the item CRUD contract.
type Source interface {
	// ListItems returns every item matching filter.
	ListItems(ctx context.Context, filter types.ItemFilter) ([]*types.WorkItem, error)

	// GetItem returns one item, or an error wrapping types.ErrNotFound.
	GetItem(ctx context.Context, id string) (*types.WorkItem, error)

	// CreateItem creates an item and returns it with the identifier the
	// source assigned, which may differ from any locally proposed one.
	CreateItem(ctx context.Context, fields types.ItemFields) (*types.WorkItem, error)

	// UpdateItem applies a partial update.
	UpdateItem(ctx context.Context, id string, patch types.ItemPatch) (*types.WorkItem, error)

	// DeleteItem removes an item.
	DeleteItem(ctx context.Context, id string) error

	// AddComment appends a comment to an item.
	AddComment(ctx context.Context, id string, input types.CommentInput) (*types.Comment, error)
}

// RemoteSource is a Source that also owns the shared vocabulary.
type RemoteSource interface {
	Source

	GetIterations(ctx context.Context) ([]string, error)
	GetCurrentIteration(ctx context.Context) (string, error)
	GetStatuses(ctx context.Context) ([]string, error)
	GetWorkItemTypes(ctx context.Context) ([]string, error)
}

// CacheInvalidator is implemented by sources that keep caches of their own,
// such as a memoized iteration list. The cache layer calls it after every
// successful write.
type CacheInvalidator interface {
	InvalidateCaches()
}

// Config carries backend settings. Each backend reads the fields it needs.
type Config struct {
	// Dir is the shared directory for KindDir.
	Dir string

	// Command and Args name the client binary for KindCLI. Args are placed
	// before the verb on every call.
	Command string
	Args    []string

	// WorkDir is the working directory for spawned commands.
	WorkDir string

	// Timeout bounds a single remote call. Zero means no timeout.
	Timeout time.Duration

	// Logger receives backend diagnostics. Nil uses a default stderr logger.
	Logger *log.Logger
}

// FetchVocabulary collects the four vocabulary queries into one value.
func FetchVocabulary(ctx context.Context, src RemoteSource) (*types.Vocabulary, error) {
	var (
		vocab types.Vocabulary
		err   error
	)
	if vocab.Iterations, err = src.GetIterations(ctx); err != nil {
		return nil, Wrap("get iterations", "", err)
	}
	if vocab.CurrentIteration, err = src.GetCurrentIteration(ctx); err != nil {
		return nil, Wrap("get current iteration", "", err)
	}
	if vocab.Statuses, err = src.GetStatuses(ctx); err != nil {
		return nil, Wrap("get statuses", "", err)
	}
	if vocab.Types, err = src.GetWorkItemTypes(ctx); err != nil {
		return nil, Wrap("get work item types", "", err)
	}
	return &vocab, nil
}
