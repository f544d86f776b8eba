package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/workq/internal/types"
	"github.com/mschirtzinger/workq/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create <title>",
	GroupID: "items",
	Short:   "Create a work item",
	Long: `Create a work item with a temporary local identifier. The identifier is
replaced by the remote one on the next successful push.

Unset type, status and iteration default to the first type, the first status
and the current iteration of the last pulled vocabulary.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()

		fields := types.ItemFields{Title: args[0]}
		fields.Type, _ = cmd.Flags().GetString("type")
		fields.Status, _ = cmd.Flags().GetString("status")
		fields.Assignee, _ = cmd.Flags().GetString("assignee")
		fields.Iteration, _ = cmd.Flags().GetString("iteration")
		fields.Description, _ = cmd.Flags().GetString("description")
		fields.Parent, _ = cmd.Flags().GetString("parent")
		fields.Labels, _ = cmd.Flags().GetStringSlice("label")
		fields.DependsOn, _ = cmd.Flags().GetStringSlice("depends-on")
		prio, _ := cmd.Flags().GetString("priority")
		p, err := types.ParsePriority(prio)
		if err != nil {
			fatalf("%v", err)
		}
		fields.Priority = p

		applyVocabularyDefaults(ctx, ws, &fields)

		item, err := ws.cache.CreateItem(ctx, fields)
		checkWrite("create item", err)
		if jsonOutput {
			printJSON(item)
			return
		}
		fmt.Printf("%s Created %s\n", ui.RenderPassIcon(), ui.RenderID(item.ID))
	},
}

// checkWrite exits on a failed write. A write saved locally but missing from
// the sync queue only warns.
func checkWrite(what string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, types.ErrNotQueued):
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	default:
		fatalf("failed to %s: %v", what, err)
	}
}

// applyVocabularyDefaults fills empty type, status and iteration from the
// stored vocabulary.
func applyVocabularyDefaults(ctx context.Context, ws *workspace, fields *types.ItemFields) {
	vocab, err := ws.db.GetVocabulary(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to read vocabulary: %v\n", err)
		return
	}
	if fields.Type == "" && len(vocab.Types) > 0 {
		fields.Type = vocab.Types[0]
	}
	if fields.Status == "" && len(vocab.Statuses) > 0 {
		fields.Status = vocab.Statuses[0]
	}
	if fields.Iteration == "" {
		fields.Iteration = vocab.CurrentIteration
	}
}

var updateCmd = &cobra.Command{
	Use:     "update <id>",
	GroupID: "items",
	Short:   "Update fields of a work item",
	Long: `Update only the fields given as flags. Lists given with --label or
--depends-on replace the whole list; pass an empty value to clear it.

Examples:
  wq update WQ-3 --status done
  wq update local-1a2b --parent WQ-1 --priority high
  wq update WQ-3 --label=`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()

		patch, err := patchFromFlags(cmd)
		if err != nil {
			fatalf("%v", err)
		}
		if patch.IsEmpty() {
			fatalf("nothing to update (pass at least one field flag)")
		}

		item, err := ws.cache.UpdateItem(ctx, args[0], patch)
		checkWrite("update "+args[0], err)
		if jsonOutput {
			printJSON(item)
			return
		}
		fmt.Printf("%s Updated %s\n", ui.RenderPassIcon(), ui.RenderID(item.ID))
	},
}

func patchFromFlags(cmd *cobra.Command) (types.ItemPatch, error) {
	var patch types.ItemPatch
	flags := cmd.Flags()
	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}
	list := func(name string) *[]string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetStringSlice(name)
		if v == nil {
			v = []string{}
		}
		return &v
	}

	patch.Title = str("title")
	patch.Type = str("type")
	patch.Status = str("status")
	patch.Assignee = str("assignee")
	patch.Iteration = str("iteration")
	patch.Description = str("description")
	patch.Parent = str("parent")
	patch.Labels = list("label")
	patch.DependsOn = list("depends-on")
	if s := str("priority"); s != nil {
		p, err := types.ParsePriority(*s)
		if err != nil {
			return patch, err
		}
		patch.Priority = &p
	}
	return patch, nil
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "items",
	Short:   "Show a work item",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()

		item, err := ws.cache.GetItem(ctx, args[0])
		if errors.Is(err, types.ErrNotFound) {
			fatalf("no item %s", args[0])
		} else if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(item)
			return
		}
		printItem(item)
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "items",
	Short:   "List work items",
	Long: `List work items, optionally filtered. Filters combine with AND.

Examples:
  wq list --status todo
  wq list --assignee alice --iteration sprint-4
  wq list --label backend --json`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()

		var filter types.ItemFilter
		filter.Iteration, _ = cmd.Flags().GetString("iteration")
		filter.Status, _ = cmd.Flags().GetString("status")
		filter.Assignee, _ = cmd.Flags().GetString("assignee")
		filter.Label, _ = cmd.Flags().GetString("label")
		filter.Type, _ = cmd.Flags().GetString("type")

		items, err := ws.cache.ListItems(ctx, filter)
		if err != nil {
			fatalf("failed to list items: %v", err)
		}
		printItems(items)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	GroupID: "items",
	Short:   "Delete a work item",
	Long: `Delete a work item. Deletion is refused while other items reference it
as parent or dependency.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()

		checkWrite("delete "+args[0], ws.cache.DeleteItem(ctx, args[0]))
		if jsonOutput {
			printJSON(map[string]string{"deleted": args[0]})
			return
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPassIcon(), ui.RenderID(args[0]))
	},
}

var commentCmd = &cobra.Command{
	Use:     "comment <id> <text>",
	GroupID: "items",
	Short:   "Add a comment to a work item",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()

		author, _ := cmd.Flags().GetString("author")
		if author == "" {
			author = defaultAuthor()
		}
		c, err := ws.cache.AddComment(ctx, args[0], types.CommentInput{Author: author, Body: args[1]})
		checkWrite("comment on "+args[0], err)
		if jsonOutput {
			printJSON(c)
			return
		}
		fmt.Printf("%s Commented on %s as %s\n", ui.RenderPassIcon(), ui.RenderID(args[0]), c.Author)
	},
}

// defaultAuthor resolves the comment author from WQ_AUTHOR, then USER.
func defaultAuthor() string {
	if a := os.Getenv("WQ_AUTHOR"); a != "" {
		return a
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

var childrenCmd = &cobra.Command{
	Use:     "children <id>",
	GroupID: "items",
	Short:   "List items whose parent is <id>",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()

		items, err := ws.cache.Children(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		printItems(items)
	},
}

var dependentsCmd = &cobra.Command{
	Use:     "dependents <id>",
	GroupID: "items",
	Short:   "List items that depend on <id>",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()

		items, err := ws.cache.Dependents(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		printItems(items)
	},
}

var assigneesCmd = &cobra.Command{
	Use:     "assignees",
	GroupID: "items",
	Short:   "List distinct assignees",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()

		names, err := ws.cache.Assignees(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		printStrings(names)
	},
}

var labelsCmd = &cobra.Command{
	Use:     "labels",
	GroupID: "items",
	Short:   "List distinct labels",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ws := mustOpenWorkspace(ctx)
		defer ws.Close()

		labels, err := ws.cache.Labels(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		printStrings(labels)
	},
}

func addFieldFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", "", "Item type")
	cmd.Flags().String("status", "", "Status")
	cmd.Flags().StringP("priority", "p", "medium", "Priority: low, medium, high or critical")
	cmd.Flags().StringP("assignee", "a", "", "Assignee")
	cmd.Flags().String("iteration", "", "Iteration")
	cmd.Flags().StringP("description", "d", "", "Description (Markdown)")
	cmd.Flags().String("parent", "", "Parent item id")
	cmd.Flags().StringSliceP("label", "l", nil, "Labels (repeatable or comma-separated)")
	cmd.Flags().StringSlice("depends-on", nil, "Ids this item depends on")
}

func init() {
	addFieldFlags(createCmd)
	addFieldFlags(updateCmd)
	updateCmd.Flags().String("title", "", "Title")

	listCmd.Flags().String("iteration", "", "Filter by iteration")
	listCmd.Flags().String("status", "", "Filter by status")
	listCmd.Flags().StringP("assignee", "a", "", "Filter by assignee")
	listCmd.Flags().StringP("label", "l", "", "Filter by label")
	listCmd.Flags().String("type", "", "Filter by type")

	commentCmd.Flags().String("author", "", "Comment author (default: $WQ_AUTHOR or $USER)")

	rootCmd.AddCommand(createCmd, updateCmd, showCmd, listCmd, deleteCmd, commentCmd,
		childrenCmd, dependentsCmd, assigneesCmd, labelsCmd)
}
