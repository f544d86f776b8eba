// Command wq manages an offline work-item workspace and keeps it in sync
// with a shared remote.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/workq/internal/ui"

	// Remote backends register themselves with the remote package.
	_ "github.com/mschirtzinger/workq/internal/remote/cliremote"
	_ "github.com/mschirtzinger/workq/internal/remote/dirremote"
)

var (
	jsonOutput bool
	noColor    bool
	verbose    bool
	workDir    string
)

var rootCmd = &cobra.Command{
	Use:   "wq",
	Short: "Offline work items with background sync",
	Long: `wq keeps work items as Markdown files under .workq/items and records
every local change in a mutation queue. Changes are pushed to the configured
remote and remote state is pulled back by "wq sync" or by the daemon.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.InitColor(noColor)
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "items", Title: "Work Items:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Services:"},
	)

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log remote and sync activity to stderr")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", ".", "Run as if started in this directory")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
