package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/workq/internal/config"
	"github.com/mschirtzinger/workq/internal/daemon"
	"github.com/mschirtzinger/workq/internal/dashboard"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Run background sync and file watching",
	Long: `Run the sync daemon until interrupted. It syncs on start and then every
sync.interval, and watches .workq/items so edits made outside wq invalidate
the listing cache.

Local-only workspaces run in watch-only mode.

Logs go to .workq/daemon.log (rotated by size); --foreground also copies
them to stderr. With --dashboard the status dashboard is served from the
same process and receives live sync and item-change events.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		foreground, _ := cmd.Flags().GetBool("foreground")
		withDashboard, _ := cmd.Flags().GetBool("dashboard")

		root, err := config.FindRoot(workDir)
		if err != nil {
			fatalf("%v", err)
		}
		cfg, err := config.Load(root)
		if err != nil {
			fatalf("%v", err)
		}

		logger, closer, err := daemon.OpenLog(daemon.LogConfig{
			Path:       cfg.LogPath(root),
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Foreground: foreground,
		}, "[daemon] ")
		if err != nil {
			fatalf("failed to open log: %v", err)
		}
		defer closer.Close()
		logFor := func(prefix string) *log.Logger {
			return log.New(logger.Writer(), "["+prefix+"] ", log.LstdFlags)
		}

		ctx, cancel := signalContext()
		defer cancel()

		ws, err := openWorkspaceAt(ctx, root, logFor)
		if err != nil {
			fatalf("%v", err)
		}
		defer ws.Close()

		dcfg := &daemon.Config{
			SyncInterval:     cfg.Sync.Interval,
			DebounceInterval: cfg.Daemon.Debounce,
			Logger:           logger,
		}

		if withDashboard {
			server := dashboard.NewServer(&dashboard.Config{
				Addr:   cfg.Dashboard.Addr,
				Port:   cfg.Dashboard.Port,
				Items:  ws.cache,
				Syncer: ws.syncer(),
				Logger: logFor("dashboard"),
			})
			if err := server.Start(); err != nil {
				fatalf("failed to start dashboard: %v", err)
			}
			defer stopServer(server, logger)

			handler := dashboard.NewHandler(server, logFor("dashboard"))
			if s := ws.syncer(); s != nil {
				detach := handler.Attach(s)
				defer detach()
			}
			dcfg.OnItemsChanged = handler.OnItemsChanged
			fmt.Fprintf(os.Stderr, "Dashboard on http://%s\n", server.GetAddr())
		}

		d, err := daemon.NewWithConfig(ws.syncer(), ws.cache, config.ItemsDir(root), dcfg)
		if err != nil {
			fatalf("%v", err)
		}

		mode := "sync"
		if ws.engine == nil {
			mode = "watch-only"
		}
		fmt.Fprintf(os.Stderr, "Daemon running (%s), logging to %s. Press Ctrl+C to stop.\n", mode, cfg.LogPath(root))
		if err := d.Start(ctx); err != nil {
			fatalf("daemon: %v", err)
		}
	},
}

func stopServer(server *dashboard.Server, logger *log.Logger) {
	if err := server.Stop(); err != nil {
		logger.Printf("Error stopping dashboard: %v", err)
	}
}

func init() {
	daemonCmd.Flags().Bool("foreground", false, "Also log to stderr")
	daemonCmd.Flags().Bool("dashboard", false, "Serve the status dashboard from the daemon")
	rootCmd.AddCommand(daemonCmd)
}
