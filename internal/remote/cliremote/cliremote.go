// Package cliremote implements a RemoteSource that shells out to a tracker's
// command line client.
//
// The client is any executable that follows a small JSON protocol. Each call
// appends a verb (and sometimes an id) to the configured command:
//
//	<command> [args...] list [--iteration NAME]   -> JSON array of items
//	<command> [args...] get ID                    -> JSON item
//	<command> [args...] create        (stdin JSON fields) -> JSON item
//	<command> [args...] update ID     (stdin JSON patch)  -> JSON item
//	<command> [args...] delete ID
//	<command> [args...] comment ID    (stdin JSON {author, body}) -> JSON comment
//	<command> [args...] iterations | statuses | types     -> JSON string array
//	<command> [args...] current-iteration                  -> JSON string
//
// A non-zero exit whose stderr mentions "not found" maps to
// types.ErrNotFound. The iteration list is memoized until InvalidateCaches.
package cliremote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/workq/internal/remote"
	"github.com/mschirtzinger/workq/internal/types"
)

// DefaultTimeout bounds a single client invocation when the config has none.
const DefaultTimeout = 30 * time.Second

func init() {
	remote.Register(remote.KindCLI, func(cfg remote.Config) (remote.RemoteSource, error) {
		return New(cfg)
	})
}

// Remote runs the configured client for every call.
type Remote struct {
	command string
	args    []string
	workDir string
	timeout time.Duration
	logger  *log.Logger

	mu         sync.Mutex
	iterations []string // memoized; nil until first read
}

var _ remote.RemoteSource = (*Remote)(nil)
var _ remote.CacheInvalidator = (*Remote)(nil)

// New validates cfg and returns a client-backed remote.
func New(cfg remote.Config) (*Remote, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("cli remote requires a command")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[cliremote] ", log.LstdFlags)
	}
	return &Remote{
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		workDir: cfg.WorkDir,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// run invokes the client with verb args, sending in as JSON on stdin when
// non-nil, and decodes stdout into out when non-nil.
func (r *Remote) run(ctx context.Context, in, out any, verb ...string) error {
	var stdin io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		stdin = bytes.NewReader(data)
	}

	args := append(append([]string(nil), r.args...), verb...)
	output, err := execContext(ctx, r.timeout, r.workDir, stdin, r.command, args...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(output, out); err != nil {
		return fmt.Errorf("%w: unreadable output from %s %s: %v", remote.ErrRejected, r.command, verb[0], err)
	}
	return nil
}

func (r *Remote) ListItems(ctx context.Context, filter types.ItemFilter) ([]*types.WorkItem, error) {
	verb := []string{"list"}
	if filter.Iteration != "" {
		verb = append(verb, "--iteration", filter.Iteration)
	}

	var items []*types.WorkItem
	if err := r.run(ctx, nil, &items, verb...); err != nil {
		return nil, remote.Wrap("list", "", err)
	}

	// The client only filters by iteration; apply the rest locally.
	result := make([]*types.WorkItem, 0, len(items))
	for _, item := range items {
		item.Normalize()
		if filter.Matches(item) {
			result = append(result, item)
		}
	}
	return result, nil
}

func (r *Remote) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	var item types.WorkItem
	if err := r.run(ctx, nil, &item, "get", id); err != nil {
		return nil, remote.Wrap("get", id, err)
	}
	item.Normalize()
	return &item, nil
}

func (r *Remote) CreateItem(ctx context.Context, fields types.ItemFields) (*types.WorkItem, error) {
	var item types.WorkItem
	if err := r.run(ctx, fields, &item, "create"); err != nil {
		return nil, remote.Wrap("create", "", err)
	}
	if item.ID == "" {
		return nil, remote.Wrap("create", "", fmt.Errorf("%w: client returned no id", remote.ErrRejected))
	}
	item.Normalize()
	r.logger.Printf("created %s", item.ID)
	return &item, nil
}

func (r *Remote) UpdateItem(ctx context.Context, id string, patch types.ItemPatch) (*types.WorkItem, error) {
	var item types.WorkItem
	if err := r.run(ctx, patch, &item, "update", id); err != nil {
		return nil, remote.Wrap("update", id, err)
	}
	item.Normalize()
	return &item, nil
}

func (r *Remote) DeleteItem(ctx context.Context, id string) error {
	return remote.Wrap("delete", id, r.run(ctx, nil, nil, "delete", id))
}

func (r *Remote) AddComment(ctx context.Context, id string, input types.CommentInput) (*types.Comment, error) {
	var c types.Comment
	if err := r.run(ctx, input, &c, "comment", id); err != nil {
		return nil, remote.Wrap("comment", id, err)
	}
	return &c, nil
}

// GetIterations returns the memoized iteration list, fetching it on first use.
func (r *Remote) GetIterations(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	cached := r.iterations
	r.mu.Unlock()
	if cached != nil {
		return append([]string(nil), cached...), nil
	}

	var iterations []string
	if err := r.run(ctx, nil, &iterations, "iterations"); err != nil {
		return nil, remote.Wrap("iterations", "", err)
	}
	if iterations == nil {
		iterations = []string{}
	}

	r.mu.Lock()
	r.iterations = iterations
	r.mu.Unlock()
	return append([]string(nil), iterations...), nil
}

func (r *Remote) GetCurrentIteration(ctx context.Context) (string, error) {
	var current string
	if err := r.run(ctx, nil, &current, "current-iteration"); err != nil {
		return "", remote.Wrap("current-iteration", "", err)
	}
	return current, nil
}

func (r *Remote) GetStatuses(ctx context.Context) ([]string, error) {
	return r.stringList(ctx, "statuses")
}

func (r *Remote) GetWorkItemTypes(ctx context.Context) ([]string, error) {
	return r.stringList(ctx, "types")
}

// InvalidateCaches drops the memoized iteration list.
func (r *Remote) InvalidateCaches() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterations = nil
}

func (r *Remote) stringList(ctx context.Context, verb string) ([]string, error) {
	output, err := execContext(ctx, r.timeout, r.workDir, nil, r.command, append(append([]string(nil), r.args...), verb)...)
	if err != nil {
		return nil, remote.Wrap(verb, "", err)
	}

	// Accept a JSON array, or one value per line for simpler clients.
	var list []string
	if err := json.Unmarshal(output, &list); err == nil {
		return list, nil
	}
	return parseLines(output), nil
}
