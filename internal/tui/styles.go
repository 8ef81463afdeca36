package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles for one theme.
type Styles struct {
	Header   lipgloss.Style
	Toggle   lipgloss.Style
	User     lipgloss.Style
	Bot      lipgloss.Style
	Error    lipgloss.Style
	Time     lipgloss.Style
	Typing   lipgloss.Style
	Input    lipgloss.Style
	Help     lipgloss.Style
	Status   lipgloss.Style
	Markdown string
}

// NewStyles returns the palette for the dark or light theme.
func NewStyles(dark bool) Styles {
	fg, muted, accent, bubble := lipgloss.Color("236"), lipgloss.Color("245"), lipgloss.Color("25"), lipgloss.Color("254")
	markdown := "light"
	if dark {
		fg, muted, accent, bubble = lipgloss.Color("252"), lipgloss.Color("242"), lipgloss.Color("75"), lipgloss.Color("238")
		markdown = "dark"
	}

	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1),
		Toggle:   lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		User:     lipgloss.NewStyle().Foreground(fg).Background(bubble).Padding(0, 1),
		Bot:      lipgloss.NewStyle().Foreground(fg),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true),
		Time:     lipgloss.NewStyle().Foreground(muted).Italic(true),
		Typing:   lipgloss.NewStyle().Foreground(muted).Italic(true),
		Input:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1),
		Help:     lipgloss.NewStyle().Foreground(muted),
		Status:   lipgloss.NewStyle().Foreground(accent),
		Markdown: markdown,
	}
}
