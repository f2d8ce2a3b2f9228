// Package tui provides the live log watcher terminal UI for vigil.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/voslund/vigil/internal/models"
)

const pollEvery = 2 * time.Second

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	cyanColor    = lipgloss.Color("#06B6D4")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	typeStyles = map[models.LogType]lipgloss.Style{
		models.LogTypeInfo:       lipgloss.NewStyle().Foreground(mutedColor),
		models.LogTypeAction:     lipgloss.NewStyle().Foreground(successColor),
		models.LogTypeReflection: lipgloss.NewStyle().Foreground(primaryColor),
		models.LogTypePrompt:     lipgloss.NewStyle().Foreground(cyanColor),
		models.LogTypeResponse:   lipgloss.NewStyle().Foreground(warningColor),
		models.LogTypeError:      lipgloss.NewStyle().Foreground(errorColor).Bold(true),
	}
)

// App is the log watcher application model.
type App struct {
	client   *Client
	info     *models.AgentInfo
	entries  []models.LogEntry
	lastSeen time.Time
	viewport viewport.Model
	width    int
	height   int
	online   bool
	ready    bool
}

// New creates a log watcher pointed at the daemon API.
func New(apiAddr string) *App {
	return &App{
		client:   NewClient(apiAddr),
		viewport: viewport.New(80, 20),
	}
}

// Run starts the watcher and blocks until quit.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type infoMsg struct {
	info *models.AgentInfo
	err  error
}

type logsMsg struct {
	entries []models.LogEntry
	err     error
}

type pollMsg time.Time

func (a *App) fetchInfo() tea.Msg {
	info, err := a.client.AgentInfo()
	return infoMsg{info: info, err: err}
}

func (a *App) fetchLogs() tea.Msg {
	if a.lastSeen.IsZero() {
		entries, err := a.client.Logs(200)
		return logsMsg{entries: entries, err: err}
	}
	entries, err := a.client.LogsSince(a.lastSeen)
	return logsMsg{entries: entries, err: err}
}

func poll() tea.Cmd {
	return tea.Tick(pollEvery, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

// Init starts the first fetches.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.fetchInfo, a.fetchLogs, poll())
}

// Update handles messages.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.viewport.Width = msg.Width
		a.viewport.Height = msg.Height - 4
		a.ready = true
		a.refreshContent()

	case infoMsg:
		if msg.err == nil {
			a.info = msg.info
			a.online = true
		} else {
			a.online = false
		}

	case logsMsg:
		if msg.err != nil {
			a.online = false
			break
		}
		a.online = true
		if len(msg.entries) > 0 {
			a.entries = append(a.entries, msg.entries...)
			a.lastSeen = msg.entries[len(msg.entries)-1].Timestamp
			a.refreshContent()
			a.viewport.GotoBottom()
		}

	case pollMsg:
		cmds := []tea.Cmd{a.fetchLogs, poll()}
		if a.info == nil {
			cmds = append(cmds, a.fetchInfo)
		}
		return a, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

func (a *App) refreshContent() {
	var b strings.Builder
	for _, e := range a.entries {
		style, ok := typeStyles[e.Type]
		if !ok {
			style = typeStyles[models.LogTypeInfo]
		}
		line := fmt.Sprintf("%s  %-10s  %s",
			e.Timestamp.Local().Format("15:04:05"),
			string(e.Type),
			firstLine(e.Message))
		b.WriteString(style.Render(line) + "\n")
	}
	a.viewport.SetContent(b.String())
}

// View renders the watcher.
func (a *App) View() string {
	if !a.ready {
		return "loading..."
	}

	title := "vigil"
	if a.info != nil {
		title = fmt.Sprintf("vigil - %s (%s)", a.info.Name, a.info.Model)
	}

	status := offlineStyle.Render("● offline")
	if a.online {
		status = onlineStyle.Render("● online")
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render(title), "  ", status)
	help := helpStyle.Render("q: quit  ↑/↓: scroll")

	return header + "\n\n" + a.viewport.View() + "\n" + help
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const maxLen = 160
	if len(s) > maxLen {
		s = s[:maxLen-3] + "..."
	}
	return s
}
