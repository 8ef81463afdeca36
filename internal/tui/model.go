// Package tui renders a conversation in the terminal with bubbletea.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/onedevai/ai-chatbot/internal/model/chat"
	"github.com/onedevai/ai-chatbot/internal/service/dispatch"
)

const (
	headerHeight = 2
	footerHeight = 5
	statusTTL    = 3 * time.Second
)

type (
	storeEventMsg  chat.Event
	storeClosedMsg struct{}
	cycleDoneMsg   struct {
		reply chat.Message
		err   error
	}
	clearStatusMsg struct{}
)

// Model is the bubbletea model for one conversation.
type Model struct {
	dispatcher *dispatch.Dispatcher
	events     <-chan chat.Event
	cancel     func()
	copy       func(string) error

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	styles   Styles

	width    int
	height   int
	ready    bool
	status   string
	pending  string
	spinning bool
}

// Option customises the Model.
type Option func(*Model)

// WithClipboard overrides the function used by the copy shortcut.
func WithClipboard(copyFn func(string) error) Option {
	return func(m *Model) { m.copy = copyFn }
}

// New builds a model around d. The caller must call Close when the program exits.
func New(d *dispatch.Dispatcher, opts ...Option) Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Prompt = "🧑 "
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	events, cancel := d.Store().Subscribe()

	m := Model{
		dispatcher: d,
		events:     events,
		cancel:     cancel,
		copy:       clipboard.WriteAll,
		input:      input,
		spinner:    sp,
		viewport:   viewport.New(80, 20),
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.applyTheme(d.Store().DarkMode())
	return m
}

// Close detaches the model from the store.
func (m Model) Close() {
	m.cancel()
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

func waitForEvent(events <-chan chat.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return storeClosedMsg{}
		}
		return storeEventMsg(ev)
	}
}

func (m Model) submit(text string) tea.Cmd {
	d := m.dispatcher
	return func() tea.Msg {
		reply, err := d.Submit(context.Background(), text)
		return cycleDoneMsg{reply: reply, err: err}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return clearStatusMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	store := m.dispatcher.Store()

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := m.input.Value()
			if strings.TrimSpace(text) == "" || store.InFlight() || m.pending != "" {
				return m, nil
			}
			// The input is cleared once the store accepts the prompt.
			m.pending = text
			return m, m.submit(text)
		case "ctrl+t":
			m.applyTheme(store.ToggleTheme())
			m.refresh()
			return m, nil
		case "ctrl+y":
			last, ok := store.Snapshot().LastBotMessage()
			if !ok {
				m.status = "Nothing to copy yet"
			} else if err := m.copy(last.Text); err != nil {
				log.Warn().Err(err).Msg("clipboard write failed")
				m.status = "Copy failed"
			} else {
				m.status = "Copied last reply"
			}
			return m, clearStatusAfter(statusTTL)
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		store.SetPendingInput(m.input.Value())
		return m, cmd

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 3)
		m.input.Width = max(msg.Width-8, 10)
		m.ready = true
		m.applyTheme(store.DarkMode())
		m.refresh()
		return m, nil

	case storeEventMsg:
		if msg.Message != nil && !msg.Message.IsBot() && m.pending != "" && msg.Message.Text == m.pending {
			m.acceptPending()
		}
		m.refresh()
		cmds := []tea.Cmd{waitForEvent(m.events)}
		if store.InFlight() && !m.spinning {
			m.spinning = true
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case storeClosedMsg:
		return m, tea.Quit

	case cycleDoneMsg:
		if msg.err == nil {
			m.acceptPending()
		}
		m.pending = ""
		m.refresh()
		if msg.err != nil {
			log.Debug().Err(msg.err).Msg("submit rejected")
			if errors.Is(msg.err, dispatch.ErrInFlight) {
				m.status = "Still waiting for the previous reply"
				return m, clearStatusAfter(statusTTL)
			}
		}
		return m, nil

	case clearStatusMsg:
		m.status = ""
		return m, nil

	case spinner.TickMsg:
		if !store.InFlight() {
			m.spinning = false
			return m, nil
		}
		m.spinning = true
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// acceptPending clears the input once its prompt is in the history.
func (m *Model) acceptPending() {
	if m.pending != "" && m.input.Value() == m.pending {
		m.input.Reset()
	}
	m.pending = ""
}

func (m *Model) applyTheme(dark bool) {
	m.styles = NewStyles(dark)
	m.spinner.Style = m.styles.Typing

	wrap := 80
	if m.width > 8 {
		wrap = m.width - 8
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.styles.Markdown),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		log.Warn().Err(err).Msg("markdown renderer unavailable")
		m.renderer = nil
		return
	}
	m.renderer = renderer
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory(m.dispatcher.Store().History()))
	m.viewport.GotoBottom()
}
