package main

import "github.com/charmbracelet/lipgloss"

var (
	colorTeal = lipgloss.Color("#2BB3A3")
	colorGray = lipgloss.Color("#777777")
	colorRed  = lipgloss.Color("#E5484D")
	colorBlue = lipgloss.Color("#4C8DF6")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorTeal)

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	assistantLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorTeal)

	noteStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorTeal).
			Padding(0, 1)
)
