package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/onedevai/ai-chatbot/internal/model/chat"
)

const (
	avatarUser = "🧑"
	avatarBot  = "🤖"
	typingText = "Typing..."
)

func (m Model) View() string {
	state := m.dispatcher.Store().Snapshot()

	var b strings.Builder
	b.WriteString(m.renderHeader(state.DarkMode))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if state.InFlight {
		b.WriteString(m.styles.Typing.Render(fmt.Sprintf("%s %s %s", avatarBot, m.spinner.View(), typingText)))
	}
	b.WriteString("\n")
	b.WriteString(m.styles.Input.Render(m.input.View()))
	b.WriteString("\n")

	help := "enter send • ctrl+t theme • ctrl+y copy reply • esc quit"
	if m.status != "" {
		help = m.styles.Status.Render(m.status) + "  " + help
	}
	b.WriteString(m.styles.Help.Render(help))
	return b.String()
}

func (m Model) renderHeader(dark bool) string {
	// The toggle names the theme it switches to.
	toggle := "Dark Mode"
	if dark {
		toggle = "Light Mode"
	}
	title := m.styles.Header.Render("AI Chatbot")
	hint := m.styles.Toggle.Render("[ctrl+t] " + toggle)

	gap := m.width - lipgloss.Width(title) - lipgloss.Width(hint)
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + hint
}

func (m Model) renderHistory(history []chat.Message) string {
	if len(history) == 0 {
		return m.styles.Help.Render("Say something to start the conversation.")
	}

	blocks := make([]string, 0, len(history))
	for _, msg := range history {
		blocks = append(blocks, m.renderMessage(msg))
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderMessage(msg chat.Message) string {
	stamp := m.styles.Time.Render(msg.Time)

	if !msg.IsBot() {
		return fmt.Sprintf("%s %s\n%s", avatarUser, stamp, m.styles.User.Render(msg.Text))
	}

	if msg.Error {
		return fmt.Sprintf("%s %s\n%s", avatarBot, stamp, m.styles.Error.Render(msg.Text))
	}

	body := m.styles.Bot.Render(msg.Text)
	if m.renderer != nil {
		if rendered, err := m.renderer.Render(msg.Text); err == nil {
			body = strings.TrimRight(rendered, "\n")
		}
	}
	return fmt.Sprintf("%s %s\n%s", avatarBot, stamp, body)
}
