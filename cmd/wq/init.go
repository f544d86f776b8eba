package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/workq/internal/config"
	"github.com/mschirtzinger/workq/internal/remote"
	"github.com/mschirtzinger/workq/internal/remote/dirremote"
	"github.com/mschirtzinger/workq/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "items",
	Short:   "Create a workspace in the current directory",
	Long: `Create .workq/ with an empty item store and a config file.

Without --remote the workspace is local-only: nothing is queued and sync
commands are unavailable. With --remote dir the shared directory is created
and initialized if it has no remote.toml yet.

Examples:
  wq init
  wq init --remote dir --remote-dir ../shared --prefix PRJ
  wq init --remote cli --command workctl`,
	Run: func(cmd *cobra.Command, args []string) {
		kind, _ := cmd.Flags().GetString("remote")
		dir, _ := cmd.Flags().GetString("remote-dir")
		command, _ := cmd.Flags().GetString("command")
		prefix, _ := cmd.Flags().GetString("prefix")
		force, _ := cmd.Flags().GetBool("force")

		root, err := filepath.Abs(workDir)
		if err != nil {
			fatalf("%v", err)
		}
		if _, err := os.Stat(config.Path(root)); err == nil && !force {
			fatalf("workspace already initialized at %s (use --force to overwrite the config)", root)
		}

		cfg := config.DefaultConfig()
		cfg.Remote.Type = kind
		cfg.Remote.Dir = dir
		cfg.Remote.Command = command
		if err := cfg.Validate(); err != nil {
			fatalf("%v", err)
		}

		if remote.Kind(kind) == remote.KindDir {
			meta := dirremote.DefaultMeta()
			if prefix != "" {
				meta.Prefix = prefix
			}
			shared := cfg.RemoteSourceConfig(root, nil).Dir
			if err := dirremote.Init(shared, meta); err != nil {
				fatalf("%v", err)
			}
		}

		if err := os.MkdirAll(config.ItemsDir(root), 0755); err != nil {
			fatalf("failed to create items directory: %v", err)
		}
		if err := config.Save(root, cfg); err != nil {
			fatalf("%v", err)
		}

		if jsonOutput {
			printJSON(map[string]string{"root": root, "remote": kind})
			return
		}
		fmt.Printf("%s Initialized workspace in %s\n", ui.RenderPassIcon(), filepath.Join(root, config.DirName))
		if kind == "" {
			fmt.Println(ui.RenderMuted("Local-only: no remote configured"))
		} else {
			fmt.Printf("Remote: %s. Run 'wq pull' to fetch existing items.\n", kind)
		}
	},
}

func init() {
	initCmd.Flags().String("remote", "", "Remote backend: dir or cli (empty for local-only)")
	initCmd.Flags().String("remote-dir", "", "Shared directory for the dir backend")
	initCmd.Flags().String("command", "", "Client command for the cli backend")
	initCmd.Flags().String("prefix", "", "Identifier prefix when creating a new shared directory")
	initCmd.Flags().Bool("force", false, "Overwrite an existing config")
	rootCmd.AddCommand(initCmd)
}
