// Package tui provides the terminal dashboard for a running hrconnect
// server.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/callback"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
)

const (
	reconnectDelay = 2 * time.Second
	statusTTL      = 4 * time.Second
	actionTimeout  = 30 * time.Second
)

// Model is the Bubble Tea model for the watch dashboard.
type Model struct {
	client *Client
	feed   *Feed

	services []connection.Service
	status   callback.StatusResponse
	online   bool
	lastSeen string // last change, one line

	selected int
	width    int
	height   int
	help     bool

	keys    keyMap
	styles  Styles
	spinner *Spinner

	statusMsg string
	statusSeq int
	err       error
}

// New creates a dashboard for the server behind client.
func New(client *Client) Model {
	opts := SpinnerOptionsFromEnv()
	styles := DefaultStyles()
	if opts.NoColor {
		styles = PlainStyles()
	}
	return Model{
		client:   client,
		services: connection.Services(),
		status:   callback.StatusResponse{Services: connection.NewState()},
		keys:     defaultKeyMap(),
		styles:   styles,
		spinner:  NewSpinner(opts),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick(), m.dial())
}

func (m Model) dial() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		feed, err := client.Dial(ctx)
		return feedReadyMsg{feed: feed, err: err}
	}
}

func waitFrame(feed *Feed) tea.Cmd {
	return func() tea.Msg {
		frame, err := feed.Next()
		if err != nil {
			return feedClosedMsg{err: err}
		}
		return frameMsg{frame: frame}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case feedReadyMsg:
		if msg.err != nil {
			m.online = false
			m.err = msg.err
			return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })
		}
		m.feed = msg.feed
		m.online = true
		m.err = nil
		return m, waitFrame(msg.feed)

	case frameMsg:
		m.status = msg.frame.Status
		if m.status.Services == nil {
			m.status.Services = connection.NewState()
		}
		if ch := msg.frame.Change; ch != nil {
			m.lastSeen = fmt.Sprintf("%s %s: %s -> %s (%s)",
				ch.At.Local().Format("15:04:05"), ch.Service, ch.From, ch.To, ch.Reason)
		}
		if m.feed == nil {
			return m, nil
		}
		return m, waitFrame(m.feed)

	case feedClosedMsg:
		m.feed.Close()
		m.feed = nil
		m.online = false
		m.err = msg.err
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.dial()

	case actionDoneMsg:
		if msg.err != nil {
			return m.setStatus(msg.action + " failed: " + msg.err.Error())
		}
		return m.setStatus(msg.action)

	case statusClearMsg:
		if msg.seq == m.statusSeq {
			m.statusMsg = ""
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.help {
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		m.help = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.feed.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help = true
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.services)-1 {
			m.selected++
		}
		return m, nil

	case key.Matches(msg, m.keys.Connect):
		svc := m.current()
		return m, m.action("opened "+string(svc)+" authorization", func(ctx context.Context) error {
			_, err := m.client.ConnectPopup(ctx, svc)
			return err
		})

	case key.Matches(msg, m.keys.Mark):
		svc := m.current()
		return m, m.action("marked "+string(svc)+" connected", func(ctx context.Context) error {
			_, err := m.client.MarkConnected(ctx, svc)
			return err
		})

	case key.Matches(msg, m.keys.Reset):
		return m, m.action("reset all connections", m.client.Reset)
	}
	return m, nil
}

func (m Model) action(label string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{action: label, err: fn(ctx)}
	}
}

func (m Model) setStatus(text string) (tea.Model, tea.Cmd) {
	m.statusSeq++
	m.statusMsg = text
	seq := m.statusSeq
	return m, tea.Tick(statusTTL, func(time.Time) tea.Msg { return statusClearMsg{seq: seq} })
}

func (m Model) current() connection.Service {
	if m.selected >= 0 && m.selected < len(m.services) {
		return m.services[m.selected]
	}
	return m.services[0]
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.help {
		return m.helpView()
	}
	return m.mainView()
}

func (m Model) mainView() string {
	header := m.styles.Header.Render("hrconnect - integrations")
	scope := m.status.Scope
	if scope == "" {
		scope = "(waiting for server)"
	}
	scopeLine := m.styles.Scope.Render(m.truncate("scope " + scope))

	content := lipgloss.JoinVertical(lipgloss.Left,
		header,
		scopeLine,
		m.renderServices(),
		"",
		m.styles.StatusText.Render(m.truncate(m.lastSeen)),
	)

	status := m.renderStatusBar()
	if gap := m.height - lipgloss.Height(content) - 1; gap > 0 {
		content = lipgloss.JoinVertical(lipgloss.Left,
			content,
			lipgloss.NewStyle().Height(gap).Render(""),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left, content, status)
}

func (m Model) renderServices() string {
	pending := make(map[connection.Service]bool, len(m.status.Pending))
	for _, svc := range m.status.Pending {
		pending[svc] = true
	}

	rows := make([]string, 0, len(m.services))
	for i, svc := range m.services {
		st := m.status.Services[svc]
		badge := m.styles.StatusStyle(st).Render(st.String())
		if pending[svc] || st == connection.StatusLoading {
			badge += " " + m.spinner.View()
		}

		style := m.styles.Item
		if i == m.selected {
			style = m.styles.SelectedItem
		}
		rows = append(rows, style.Render(fmt.Sprintf("%-8s %s", svc, badge)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderStatusBar() string {
	var left string
	switch {
	case m.statusMsg != "":
		left = m.styles.StatusText.Render(m.statusMsg)
	case !m.online:
		reason := "connecting to " + m.client.BaseURL()
		if m.err != nil {
			reason = "offline: " + m.err.Error()
		}
		left = m.styles.Offline.Render(reason)
	default:
		var parts []string
		for _, b := range m.keys.ShortHelp() {
			h := b.Help()
			parts = append(parts, m.styles.StatusKey.Render(h.Key)+" "+h.Desc)
		}
		left = strings.Join(parts, "  ")
	}
	bar := m.styles.StatusBar.Width(m.width)
	return bar.Render(ansi.Truncate(left, max(m.width-2, 0), "…"))
}

func (m Model) truncate(s string) string {
	if m.width <= 0 {
		return s
	}
	return ansi.Truncate(s, m.width, "…")
}

func (m Model) helpView() string {
	var b strings.Builder
	b.WriteString("Keyboard Shortcuts\n==================\n")
	for _, group := range m.keys.FullHelp() {
		b.WriteString("\n")
		for _, k := range group {
			h := k.Help()
			fmt.Fprintf(&b, "  %-8s %s\n", h.Key, h.Desc)
		}
	}
	b.WriteString("\nPress any key to return...\n")
	return m.styles.Help.Render(b.String())
}

// Run starts the dashboard against the server at baseURL.
func Run(baseURL string) error {
	p := tea.NewProgram(New(NewClient(baseURL)), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
