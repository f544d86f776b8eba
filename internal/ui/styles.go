// Package ui provides terminal styling for wq CLI output.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mschirtzinger/workq/internal/types"
)

// Adaptive palette for light and dark terminals.
var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	PassStyle     = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle     = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle     = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconInfo = "ℹ"
)

// TreeChild prefixes nested items in hierarchical output.
const TreeChild = "└─ "

const SeparatorLight = "──────────────────────────────────────────"

func RenderPass(s string) string     { return PassStyle.Render(s) }
func RenderWarn(s string) string     { return WarnStyle.Render(s) }
func RenderFail(s string) string     { return FailStyle.Render(s) }
func RenderMuted(s string) string    { return MutedStyle.Render(s) }
func RenderAccent(s string) string   { return AccentStyle.Render(s) }
func RenderCategory(s string) string { return CategoryStyle.Render(strings.ToUpper(s)) }
func RenderSeparator() string        { return MutedStyle.Render(SeparatorLight) }

func RenderPassIcon() string { return PassStyle.Render(IconPass) }
func RenderWarnIcon() string { return WarnStyle.Render(IconWarn) }
func RenderFailIcon() string { return FailStyle.Render(IconFail) }

// RenderState colors a sync state: idle is green, syncing yellow and
// error red.
func RenderState(s types.SyncState) string {
	switch s {
	case types.SyncIdle:
		return RenderPass(string(s))
	case types.SyncSyncing:
		return RenderWarn(string(s))
	case types.SyncFailed:
		return RenderFail(string(s))
	}
	return string(s)
}

// RenderPriority colors high and critical priorities.
func RenderPriority(p types.Priority) string {
	switch p {
	case types.PriorityCritical:
		return RenderFail(p.String())
	case types.PriorityHigh:
		return RenderWarn(p.String())
	case types.PriorityLow:
		return RenderMuted(p.String())
	}
	return p.String()
}

// RenderID renders an item id, muting temporary local ids.
func RenderID(id string) string {
	if strings.HasPrefix(id, "local-") {
		return RenderMuted(id)
	}
	return RenderAccent(id)
}
