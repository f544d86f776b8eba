package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/mschirtzinger/workq/internal/cache"
	"github.com/mschirtzinger/workq/internal/config"
	"github.com/mschirtzinger/workq/internal/db"
	"github.com/mschirtzinger/workq/internal/local"
	"github.com/mschirtzinger/workq/internal/queue"
	"github.com/mschirtzinger/workq/internal/remote"
	"github.com/mschirtzinger/workq/internal/store"
	wqsync "github.com/mschirtzinger/workq/internal/sync"
	"github.com/mschirtzinger/workq/internal/telemetry"
)

// Version is set at build time.
var Version = "dev"

// workspace bundles the components opened for one command.
type workspace struct {
	root   string
	cfg    *config.Config
	db     *db.DB
	store  *store.Store
	queue  *queue.Queue       // nil when local-only
	remote remote.RemoteSource // nil when local-only
	engine *wqsync.Engine     // nil when local-only
	cache  *cache.Cache
}

// newLogger returns a prefixed logger that writes to stderr only with --verbose.
func newLogger(prefix string) *log.Logger {
	var w io.Writer = io.Discard
	if verbose {
		w = os.Stderr
	}
	return log.New(w, "["+prefix+"] ", log.LstdFlags)
}

// openWorkspace locates the workspace above --dir and wires its components.
func openWorkspace(ctx context.Context) (*workspace, error) {
	root, err := config.FindRoot(workDir)
	if err != nil {
		return nil, err
	}
	return openWorkspaceAt(ctx, root, newLogger)
}

func openWorkspaceAt(ctx context.Context, root string, logger func(string) *log.Logger) (*workspace, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	if err := telemetry.Init(ctx, telemetry.Options{
		Enabled: cfg.Telemetry.Enabled,
		Stdout:  cfg.Telemetry.Stdout,
		Version: Version,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry disabled: %v\n", err)
	}

	database, err := db.OpenAndInit(ctx, config.DBPath(root))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ws := &workspace{
		root:  root,
		cfg:   cfg,
		db:    database,
		store: store.New(config.ItemsDir(root)),
	}

	if kind := cfg.RemoteKind(); kind != remote.KindNone {
		src, err := remote.Open(kind, cfg.RemoteSourceConfig(root, logger(kind.String())))
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to open %s remote: %w", kind, err)
		}
		ws.remote = telemetry.WrapRemote(src)
		ws.queue = queue.New(database)

		engineCfg := wqsync.DefaultConfig()
		engineCfg.Logger = logger("sync")
		engineCfg.PullMaxElapsed = cfg.Sync.PullMaxElapsed
		ws.engine = wqsync.New(ws.store, ws.queue, database, ws.remote, engineCfg)
		if err := ws.engine.LoadStatus(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load sync status: %v\n", err)
		}
	}

	cacheCfg := cache.Config{TTL: cfg.Cache.TTL}
	if inv, ok := ws.remote.(remote.CacheInvalidator); ok {
		cacheCfg.OnInvalidate = inv.InvalidateCaches
	}
	ws.cache = cache.New(local.New(ws.store, ws.queue, logger("local")), cacheCfg)
	return ws, nil
}

// syncer returns the engine as a Syncer, or nil for a local-only workspace.
func (ws *workspace) syncer() wqsync.Syncer {
	if ws.engine == nil {
		return nil
	}
	return ws.engine
}

// requireRemote fails commands that need a configured remote.
func (ws *workspace) requireRemote() error {
	if ws.engine == nil {
		return fmt.Errorf("no remote configured (set remote.type in %s)", config.Path(ws.root))
	}
	return nil
}

// Close releases the database and flushes telemetry.
func (ws *workspace) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	telemetry.Shutdown(ctx)
	if err := ws.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}

// mustOpenWorkspace opens the workspace or exits.
func mustOpenWorkspace(ctx context.Context) *workspace {
	ws, err := openWorkspace(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return ws
}
