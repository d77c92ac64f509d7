package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorPrimary lipgloss.Color = "99"  // purple, titles
	colorAccent  lipgloss.Color = "86"  // cyan, next prayer
	colorMuted   lipgloss.Color = "241" // passed prayers, labels
	colorNormal  lipgloss.Color = "250"
	colorWarn    lipgloss.Color = "214" // stale schedule
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	passedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	upcomingStyle = lipgloss.NewStyle().
			Foreground(colorNormal)

	nextStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	countdownStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			Padding(1, 0, 0, 0)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorWarn)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(1, 0, 0, 0)

	frameStyle = lipgloss.NewStyle().
			Padding(1, 2)
)
