// Package ui provides the terminal chat interface.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/wordwrap"

	"github.com/vinayprograms/deepagent/internal/chat"
	"github.com/vinayprograms/deepagent/internal/modes"
	"github.com/vinayprograms/deepagent/internal/session"
)

// Service is the chat backend the UI drives.
type Service interface {
	Submit(ctx context.Context, mode modes.Mode, input string) (session.Turn, error)
	Reset(active modes.Mode) []modes.Mode
	Sessions() *session.Coordinator
}

// Options configures the UI.
type Options struct {
	Title    string
	Model    string
	Theme    string // glamour standard style
	WordWrap int
}

// replyMsg carries the outcome of a submitted turn.
type replyMsg struct {
	mode  modes.Mode
	turn  session.Turn
	err   error
	epoch int
}

const (
	headerHeight = 3
	footerHeight = 4
)

// Model is the bubbletea model of the chat screen.
type Model struct {
	svc  Service
	opts Options

	mode     modes.Mode
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	busy    map[modes.Mode]bool
	cancels map[modes.Mode]context.CancelFunc
	errs    map[modes.Mode]string
	epochs  map[modes.Mode]int // bumped when a mode is reset

	width  int
	height int
	ready  bool
}

// New creates the chat model.
func New(svc Service, opts Options) Model {
	if opts.Title == "" {
		opts.Title = "Deep Agent"
	}
	if opts.Theme == "" {
		opts.Theme = "dark"
	}
	if opts.WordWrap <= 0 {
		opts.WordWrap = 100
	}

	ti := textinput.New()
	ti.Placeholder = "Ask anything..."
	ti.Prompt = "> "
	ti.CharLimit = 10000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		svc:      svc,
		opts:     opts,
		mode:     modes.Normal,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		busy:     make(map[modes.Mode]bool),
		cancels:  make(map[modes.Mode]context.CancelFunc),
		errs:     make(map[modes.Mode]string),
		epochs:   make(map[modes.Mode]int),
	}
}

// Mode returns the selected mode.
func (m Model) Mode() modes.Mode { return m.mode }

// Busy reports whether mode has a turn running.
func (m Model) Busy(mode modes.Mode) bool { return m.busy[mode] }

// Err returns the last error shown for mode.
func (m Model) Err(mode modes.Mode) string { return m.errs[mode] }

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.renderer = newRenderer(m.opts.Theme, m.wrapWidth())
		m.ready = true
		m.refresh()
		return m, nil

	case replyMsg:
		if msg.epoch != m.epochs[msg.mode] {
			// Superseded by a reset.
			return m, nil
		}
		delete(m.busy, msg.mode)
		if cancel := m.cancels[msg.mode]; cancel != nil {
			cancel()
			delete(m.cancels, msg.mode)
		}
		if msg.err != nil {
			m.errs[msg.mode] = describe(msg.err)
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.anyBusy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancelAll()
			return m, tea.Quit

		case "tab":
			m.mode = m.mode.Next()
			m.refresh()
			return m, nil

		case "esc":
			if cancel := m.cancels[m.mode]; cancel != nil {
				cancel()
			}
			return m, nil

		case "ctrl+r":
			for _, mode := range m.svc.Reset(m.mode) {
				if cancel := m.cancels[mode]; cancel != nil {
					cancel()
					delete(m.cancels, mode)
				}
				delete(m.busy, mode)
				delete(m.errs, mode)
				m.epochs[mode]++
			}
			m.refresh()
			return m, nil

		case "enter":
			return m.submit()

		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.busy[m.mode] {
		m.errs[m.mode] = "A reply is still being generated. Press esc to cancel it."
		m.refresh()
		return m, nil
	}

	mode := m.mode
	ctx, cancel := context.WithCancel(context.Background())
	m.cancels[mode] = cancel
	m.busy[mode] = true
	delete(m.errs, mode)
	m.input.Reset()
	m.refresh()

	svc, epoch := m.svc, m.epochs[mode]
	run := func() tea.Msg {
		turn, err := svc.Submit(ctx, mode, text)
		return replyMsg{mode: mode, turn: turn, err: err, epoch: epoch}
	}
	return m, tea.Batch(run, m.spinner.Tick)
}

func (m Model) anyBusy() bool {
	for _, b := range m.busy {
		if b {
			return true
		}
	}
	return false
}

func (m Model) cancelAll() {
	for mode, cancel := range m.cancels {
		cancel()
		delete(m.cancels, mode)
	}
}

func (m Model) wrapWidth() int {
	w := m.opts.WordWrap
	if m.width > 0 && m.width-4 < w {
		w = m.width - 4
	}
	return max(w, 20)
}

// refresh re-renders the conversation of the selected mode into the viewport.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m Model) renderConversation() string {
	var b strings.Builder
	width := m.wrapWidth()

	history := m.svc.Sessions().History(m.mode)
	if len(history) == 0 && !m.busy[m.mode] {
		b.WriteString(dimStyle.Render(wordwrap.String(emptyHint(m.mode), width)))
		b.WriteString("\n")
	}

	for _, turn := range history {
		switch turn.Role {
		case session.RoleUser:
			b.WriteString(userLabelStyle.Render("You"))
			b.WriteString("\n")
			b.WriteString(wordwrap.String(turn.Content, width))
			b.WriteString("\n\n")
		default:
			b.WriteString(assistantLabelStyle.Render("Assistant"))
			b.WriteString("\n")
			b.WriteString(m.renderMarkdown(turn.Content, width))
			b.WriteString("\n")
		}
	}

	if m.busy[m.mode] {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(dimStyle.Render(m.mode.Loading()))
		b.WriteString("\n")
	}
	if e := m.errs[m.mode]; e != "" {
		b.WriteString(errorStyle.Render(wordwrap.String("Error: "+e, width)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMarkdown(content string, width int) string {
	if m.renderer != nil {
		if out, err := m.renderer.Render(content); err == nil {
			return out
		}
	}
	return wordwrap.String(content, width) + "\n"
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.opts.Title))
	if m.opts.Model != "" {
		b.WriteString(dimStyle.Render("  " + m.opts.Model))
	}
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("tab switch mode • enter send • esc cancel • ctrl+r reset • ctrl+c quit"))
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, len(modes.All()))
	for _, mode := range modes.All() {
		label := mode.Label()
		switch {
		case mode == m.mode:
			tabs = append(tabs, activeTabStyle.Render(label))
		case m.busy[mode]:
			tabs = append(tabs, busyTabStyle.Render(label+" …"))
		default:
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return strings.Join(tabs, " ")
}

func emptyHint(mode modes.Mode) string {
	if mode == modes.DeepResearch {
		return "Deep Research plans the question, sends sub-agents to search the web and returns a cited report."
	}
	return "Ask a question. The assistant searches the web when it needs to."
}

// describe turns a turn error into a one-line message.
func describe(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "The turn timed out."
	case errors.Is(err, chat.ErrSessionReset):
		return "The conversation was reset before the reply arrived."
	}
	var te *chat.TurnError
	if errors.As(err, &te) {
		return te.Err.Error()
	}
	return err.Error()
}

func newRenderer(theme string, width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// Run starts the UI and blocks until the user quits.
func Run(svc Service, opts Options) error {
	p := tea.NewProgram(New(svc, opts), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running chat ui: %w", err)
	}
	return nil
}
