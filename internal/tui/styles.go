package tui

import "github.com/charmbracelet/lipgloss"

// Colors adapt to light and dark terminal backgrounds.
var (
	primaryColor  = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#22D3EE"}
	mutedColor    = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6B7280"}
	accentColor   = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#F59E0B"}
	priorityColor = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	errorColor    = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}
	onlineColor   = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#10B981"}
)

func boxed(padV, padH int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(mutedColor).
		Padding(padV, padH)
}

var (
	sidebarStyle = boxed(1, 1)
	listStyle    = boxed(0, 1)
	readerStyle  = boxed(1, 2)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.AdaptiveColor{Light: "#E5E7EB", Dark: "#1F2937"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#111827", Dark: "#D1D5DB"}).
			Padding(0, 1)

	titleStyle     = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	selectedStyle  = lipgloss.NewStyle().Background(primaryColor).Foreground(lipgloss.Color("#FFFFFF"))
	unreadStyle    = lipgloss.NewStyle().Bold(true)
	priorityStyle  = lipgloss.NewStyle().Foreground(priorityColor).Bold(true)
	starStyle      = lipgloss.NewStyle().Foreground(accentColor)
	mutedTextStyle = lipgloss.NewStyle().Foreground(mutedColor)
)
