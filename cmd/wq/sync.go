package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	wqsync "github.com/mschirtzinger/workq/internal/sync"
	"github.com/mschirtzinger/workq/internal/types"
	"github.com/mschirtzinger/workq/internal/ui"
)

// signalContext cancels on interrupt so a long retry can be aborted.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var pushCmd = &cobra.Command{
	Use:     "push",
	GroupID: "sync",
	Short:   "Replay queued local changes against the remote",
	Long: `Replay every queued mutation in order. Successful entries leave the queue;
failed entries stay in place for the next attempt. Creates receive their
remote identifiers, and references to the temporary ids are rewritten.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()
		if err := ws.requireRemote(); err != nil {
			fatalf("%v", err)
		}

		res, err := ws.engine.PushPending(ctx)
		if err != nil {
			fatalf("push failed: %v", err)
		}
		if jsonOutput {
			printJSON(res)
			return
		}
		printPushResult(res)
		if res.Failed > 0 {
			os.Exit(1)
		}
	},
}

var pullCmd = &cobra.Command{
	Use:     "pull",
	GroupID: "sync",
	Short:   "Replace local items with the remote state",
	Long: `Fetch the vocabulary and every remote item and write them locally. Local
items absent from the remote are deleted unless they still have queued
changes.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()
		if err := ws.requireRemote(); err != nil {
			fatalf("%v", err)
		}

		n, err := ws.engine.Pull(ctx)
		if err != nil {
			fatalf("pull failed: %v", err)
		}
		if jsonOutput {
			printJSON(map[string]int{"pulled": n})
			return
		}
		fmt.Printf("%s Pulled %d items\n", ui.RenderPassIcon(), n)
	},
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push queued changes, then pull",
	Long: `Push queued changes, then pull the remote state. The pull runs even when
some entries failed to push.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()
		if err := ws.requireRemote(); err != nil {
			fatalf("%v", err)
		}

		res, err := ws.engine.Sync(ctx)
		if jsonOutput {
			out := struct {
				*wqsync.SyncResult
				Error string `json:"error,omitempty"`
			}{SyncResult: res}
			if err != nil {
				out.Error = err.Error()
			}
			printJSON(out)
			if err != nil {
				os.Exit(1)
			}
			return
		}
		if res != nil && res.Push != nil {
			printPushResult(res.Push)
		}
		if err != nil {
			fatalf("sync failed: %v", err)
		}
		fmt.Printf("%s Pulled %d items\n", ui.RenderPassIcon(), res.PullCount)
		if res.Push != nil && res.Push.Failed > 0 {
			os.Exit(1)
		}
	},
}

func printPushResult(res *wqsync.PushResult) {
	icon := ui.RenderPassIcon()
	if res.Failed > 0 {
		icon = ui.RenderWarnIcon()
	}
	fmt.Printf("%s Pushed %d, failed %d", icon, res.Pushed, res.Failed)
	if res.Dropped > 0 {
		fmt.Printf(", dropped %d", res.Dropped)
	}
	fmt.Println()
	for local, remoteID := range res.IDMappings {
		fmt.Printf("  %s → %s\n", ui.RenderID(local), remoteID)
	}
	for _, e := range res.Errors {
		fmt.Printf("  %s %s %s: %s\n", ui.RenderFailIcon(), e.Entry.Action, e.Entry.ItemID, e.Message)
	}
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync state",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()

		if ws.engine == nil {
			if jsonOutput {
				printJSON(map[string]any{"remote": nil})
				return
			}
			fmt.Println(ui.RenderMuted("Local-only workspace: no remote configured"))
			return
		}

		st := ws.engine.Status()
		if jsonOutput {
			printJSON(st)
			return
		}
		printStatus(st, ws.cfg.Remote.Type)
	},
}

func printStatus(st types.SyncStatus, remoteKind string) {
	fmt.Printf("%-10s %s\n", "Remote:", remoteKind)
	fmt.Printf("%-10s %s\n", "State:", ui.RenderState(st.State))
	fmt.Printf("%-10s %d\n", "Pending:", st.PendingCount)
	last := ui.RenderMuted("never")
	if st.LastSyncTime != nil {
		last = fmt.Sprintf("%s (%s ago)", st.LastSyncTime.Local().Format("2006-01-02 15:04:05"),
			time.Since(*st.LastSyncTime).Round(time.Second))
	}
	fmt.Printf("%-10s %s\n", "Last sync:", last)
	if len(st.Errors) > 0 {
		fmt.Printf("\n%s\n", ui.RenderCategory("errors"))
		for _, e := range st.Errors {
			fmt.Printf("%s%s %s: %s\n", ui.TreeChild, e.Entry.Action, ui.RenderID(e.Entry.ItemID), e.Message)
		}
	}
}

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "sync",
	Short:   "List queued local changes",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()
		if err := ws.requireRemote(); err != nil {
			fatalf("%v", err)
		}

		snap, err := ws.queue.Read(ctx)
		if err != nil {
			fatalf("failed to read queue: %v", err)
		}
		if jsonOutput {
			printJSON(snap.Pending)
			return
		}
		if len(snap.Pending) == 0 {
			fmt.Println(ui.RenderMuted("Queue is empty"))
			return
		}
		ui.QueueTable(os.Stdout, snap.Pending)
	},
}

var queueDropCmd = &cobra.Command{
	Use:   "drop <id> <action>",
	Short: "Discard queued entries for an item and action",
	Long: `Discard every queued entry with the given item id and action, so it is
never pushed. The local item is left as it is.

Example:
  wq queue drop local-1a2b update`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()
		if err := ws.requireRemote(); err != nil {
			fatalf("%v", err)
		}

		action := types.Action(args[1])
		if !action.IsValid() {
			fatalf("unknown action %q (want create, update, delete or comment)", args[1])
		}
		if err := ws.queue.Remove(ctx, args[0], action); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Dropped %s entries for %s\n", ui.RenderPassIcon(), action, ui.RenderID(args[0]))
	},
}

func init() {
	queueCmd.AddCommand(queueDropCmd)
	rootCmd.AddCommand(pushCmd, pullCmd, syncCmd, statusCmd, queueCmd)
}
