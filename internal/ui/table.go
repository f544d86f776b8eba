package ui

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/mschirtzinger/workq/internal/types"
)

// NewTable returns a table writer mirrored to w with the CLI's style.
func NewTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	style := table.StyleLight
	style.Options.DrawBorder = false
	style.Options.SeparateColumns = false
	style.Options.SeparateHeader = true
	style.Format.Header = text.FormatUpper
	tw.SetStyle(style)
	return tw
}

// ItemTable renders items as a table with one row per item.
func ItemTable(w io.Writer, items []*types.WorkItem) {
	tw := NewTable(w)
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Assignee", "Iteration"})
	for _, item := range items {
		tw.AppendRow(table.Row{
			RenderID(item.ID),
			item.Title,
			item.Status,
			RenderPriority(item.Priority),
			item.Assignee,
			item.Iteration,
		})
	}
	tw.Render()
}

// QueueTable renders pending queue entries in replay order.
func QueueTable(w io.Writer, entries []types.QueueEntry) {
	tw := NewTable(w)
	tw.AppendHeader(table.Row{"Seq", "Action", "Item", "Queued"})
	for _, e := range entries {
		tw.AppendRow(table.Row{e.Seq, string(e.Action), RenderID(e.ItemID), e.Timestamp.Local().Format("2006-01-02 15:04:05")})
	}
	tw.Render()
}
