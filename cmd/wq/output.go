package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mschirtzinger/workq/internal/types"
	"github.com/mschirtzinger/workq/internal/ui"
)

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("failed to encode JSON: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// printItem writes the detail view used by show, create and update.
func printItem(item *types.WorkItem) {
	fmt.Printf("%s %s\n", ui.RenderID(item.ID), ui.RenderAccent(item.Title))
	fmt.Println(ui.RenderSeparator())
	row := func(label, value string) {
		if value != "" {
			fmt.Printf("%-12s %s\n", label+":", value)
		}
	}
	row("Type", item.Type)
	row("Status", item.Status)
	row("Priority", ui.RenderPriority(item.Priority))
	row("Assignee", item.Assignee)
	row("Iteration", item.Iteration)
	row("Labels", strings.Join(item.Labels, ", "))
	row("Parent", item.Parent)
	row("Depends on", strings.Join(item.DependsOn, ", "))
	row("Updated", item.Updated.Local().Format("2006-01-02 15:04"))

	if item.Description != "" {
		fmt.Printf("\n%s\n", item.Description)
	}
	if len(item.Comments) > 0 {
		fmt.Printf("\n%s\n", ui.RenderCategory("comments"))
		for _, c := range item.Comments {
			fmt.Printf("%s%s %s\n", ui.TreeChild, ui.RenderMuted(c.Date.Local().Format("2006-01-02 15:04")), c.Author)
			fmt.Printf("   %s\n", c.Body)
		}
	}
}

func printItems(items []*types.WorkItem) {
	if jsonOutput {
		printJSON(items)
		return
	}
	if len(items) == 0 {
		fmt.Println(ui.RenderMuted("No items"))
		return
	}
	ui.ItemTable(os.Stdout, items)
}

func printStrings(values []string) {
	if jsonOutput {
		printJSON(values)
		return
	}
	for _, v := range values {
		fmt.Println(v)
	}
}
