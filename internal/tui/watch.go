package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/nova/internal/projection"
)

// Fetcher returns the current projection of a root.
type Fetcher interface {
	View(ctx context.Context, rootID string) (*projection.Status, error)
}

// WatchRefreshMsg carries the result of one poll.
type WatchRefreshMsg struct {
	Status *projection.Status
	Err    error
	At     time.Time
}

type watchTickMsg struct{}

// WatchApp is the bubbletea model behind `nova watch`. It polls a Fetcher
// and re-renders the projection.
type WatchApp struct {
	fetcher  Fetcher
	rootID   string
	interval time.Duration

	view     *StatusView
	bar      progress.Model
	status   *projection.Status
	err      error
	updated  time.Time
	width    int
	height   int
	quitting bool

	errorStyle  lipgloss.Style
	footerStyle lipgloss.Style
}

// NewWatchApp creates a WatchApp polling every interval.
func NewWatchApp(fetcher Fetcher, rootID string, interval time.Duration) *WatchApp {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &WatchApp{
		fetcher:  fetcher,
		rootID:   rootID,
		interval: interval,
		view:     NewStatusView(80),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		footerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (a *WatchApp) Init() tea.Cmd {
	return a.fetch()
}

// Update implements tea.Model.
func (a *WatchApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "r":
			return a, a.fetch()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.view = NewStatusView(msg.Width)
		if w := msg.Width - 20; w > 10 {
			a.bar.Width = w
		}

	case WatchRefreshMsg:
		a.updated = msg.At
		a.err = msg.Err
		if msg.Err == nil {
			a.status = msg.Status
		}
		return a, a.tick()

	case watchTickMsg:
		return a, a.fetch()
	}
	return a, nil
}

// View implements tea.Model.
func (a *WatchApp) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder
	if a.status == nil {
		if a.err != nil {
			b.WriteString(a.errorStyle.Render(fmt.Sprintf("Error: %v", a.err)))
		} else {
			b.WriteString("Loading " + a.rootID + "...")
		}
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(a.bar.ViewAs(a.status.Progress()))
	b.WriteString("\n\n")
	b.WriteString(a.view.Render(a.status))
	b.WriteString("\n")

	if a.err != nil {
		b.WriteString(a.errorStyle.Render(fmt.Sprintf("Last refresh failed: %v", a.err)))
		b.WriteString("\n")
	}
	b.WriteString(a.footerStyle.Render(fmt.Sprintf("Updated %s  r refresh  q quit", a.updated.Format("15:04:05"))))
	b.WriteString("\n")
	return b.String()
}

// Status returns the last successfully fetched projection.
func (a *WatchApp) Status() *projection.Status {
	return a.status
}

func (a *WatchApp) fetch() tea.Cmd {
	fetcher, rootID, timeout := a.fetcher, a.rootID, a.interval
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		st, err := fetcher.View(ctx, rootID)
		return WatchRefreshMsg{Status: st, Err: err, At: time.Now()}
	}
}

func (a *WatchApp) tick() tea.Cmd {
	return tea.Tick(a.interval, func(time.Time) tea.Msg {
		return watchTickMsg{}
	})
}

// NewWatchProgram creates a new Bubbletea program for the watch view.
func NewWatchProgram(fetcher Fetcher, rootID string, interval time.Duration) (*tea.Program, *WatchApp) {
	app := NewWatchApp(fetcher, rootID, interval)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}
