package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/workq/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Serve the sync status dashboard",
	Long: `Start an HTTP server exposing workspace items and sync status.

Endpoints:
  GET /api/status       current sync status
  GET /api/items        items, filtered by ?status= ?assignee= ?iteration= ?label= ?type=
  GET /api/items/{id}   one item
  GET /ws               WebSocket stream of sync_status and items_changed messages
  GET /health           liveness check

This command serves a snapshot and does not sync. Run "wq daemon --dashboard"
for live updates.

Example usage:
  wq dashboard                   # Start on the configured port (default 8080)
  wq dashboard --port 9000       # Start on custom port`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()

		port := ws.cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		server := dashboard.NewServer(&dashboard.Config{
			Addr:   ws.cfg.Dashboard.Addr,
			Port:   port,
			Items:  ws.cache,
			Syncer: ws.syncer(),
			Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
		})
		if err := server.Start(); err != nil {
			fatalf("failed to start dashboard: %v", err)
		}

		addr := server.GetAddr()
		fmt.Printf("Dashboard server started on http://%s\n", addr)
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", addr)
		fmt.Printf("Health check: http://%s/health\n", addr)
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fatalf("during shutdown: %v", err)
		}
		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().Int("port", 8080, "Port to listen on")
	rootCmd.AddCommand(dashboardCmd)
}
