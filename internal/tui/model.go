// Package tui renders a live timer dashboard in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joescharf/focus/internal/clock"
	"github.com/joescharf/focus/internal/models"
	"github.com/joescharf/focus/internal/output"
	"github.com/joescharf/focus/internal/store"
)

// Timer is the subset of *clock.Clock the dashboard drives.
type Timer interface {
	View(ctx context.Context) (clock.View, error)
	Start(ctx context.Context, seconds int) (models.SessionState, error)
	Pause(ctx context.Context) (models.SessionState, error)
	Resume(ctx context.Context) (models.SessionState, error)
	Stop(ctx context.Context) (models.SessionState, error)
}

// DefaultRefresh is how often the dashboard re-reads the timer.
const DefaultRefresh = time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(1, 2).
			MarginTop(1)

	clockStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	noteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7DC6F")).Bold(true)

	phaseColors = map[models.Phase]lipgloss.Color{
		models.PhaseIdle:    lipgloss.Color("#AAAAAA"),
		models.PhaseRunning: lipgloss.Color("#04B575"),
		models.PhasePaused:  lipgloss.Color("#F7DC6F"),
		models.PhaseBreak:   lipgloss.Color("#4A90E2"),
	}
)

type tickMsg time.Time

type viewMsg struct {
	view         clock.View
	notification *models.Notification
	err          error
}

type actionMsg struct{ err error }

// Model is the bubbletea model for the dashboard.
type Model struct {
	timer   Timer
	store   store.Store
	refresh time.Duration

	view         clock.View
	loaded       bool
	notification *models.Notification
	err          error
	width        int
}

// New creates a dashboard model. s may be nil, in which case notifications
// are not shown.
func New(t Timer, s store.Store) Model {
	return Model{timer: t, store: s, refresh: DefaultRefresh}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) load() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		v, err := m.timer.View(ctx)
		if err != nil {
			return viewMsg{err: err}
		}
		msg := viewMsg{view: v}
		if m.store != nil {
			vals, err := m.store.Get(ctx, store.KeyNotification)
			if err == nil {
				if n, ok, err := store.DecodeNotification(vals[store.KeyNotification]); err == nil && ok {
					msg.notification = &n
				}
			}
		}
		return msg
	}
}

func (m Model) do(op func(ctx context.Context) (models.SessionState, error)) tea.Cmd {
	return func() tea.Msg {
		_, err := op(context.Background())
		return actionMsg{err: err}
	}
}

// Init loads the timer and starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), tickCmd(m.refresh))
}

// Update handles key presses, refresh ticks and async results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "s":
			return m, m.do(func(ctx context.Context) (models.SessionState, error) {
				return m.timer.Start(ctx, 0)
			})
		case "p", " ":
			if m.view.Phase == models.PhasePaused {
				return m, m.do(m.timer.Resume)
			}
			return m, m.do(m.timer.Pause)
		case "x":
			return m, m.do(m.timer.Stop)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.load(), tickCmd(m.refresh))

	case viewMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.view = msg.view
		m.loaded = true
		if msg.notification != nil {
			m.notification = msg.notification
		}
		return m, nil

	case actionMsg:
		m.err = msg.err
		return m, m.load()
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("focus"))
	b.WriteString("\n")

	if !m.loaded {
		b.WriteString(boxStyle.Render("Loading..."))
		if m.err != nil {
			b.WriteString("\n" + errStyle.Render("error: "+m.err.Error()))
		}
		return b.String()
	}

	v := m.view
	phase := lipgloss.NewStyle().Bold(true).Foreground(phaseColors[v.Phase]).Render(strings.ToUpper(string(v.Phase)))
	if v.Phase == models.PhasePaused && v.PausedPhase != "" {
		phase += dimStyle.Render(" (" + string(v.PausedPhase) + ")")
	}

	var body strings.Builder
	fmt.Fprintf(&body, "%s  %s\n", phase, clockStyle.Render(output.Clock(v.RemainingSeconds)))
	body.WriteString(progressBar(v, 30))
	body.WriteString("\n\n")
	fmt.Fprintf(&body, "Session   %s\n", output.Duration(int64(v.SessionSeconds)))
	fmt.Fprintf(&body, "Break     %s\n", output.Duration(int64(v.BreakSeconds)))
	fmt.Fprintf(&body, "Focused   %s\n", output.Duration(v.RuntimeSeconds))
	fmt.Fprintf(&body, "Completed %d", v.CompletedSessions)

	b.WriteString(boxStyle.Render(body.String()))
	b.WriteString("\n")

	if m.notification != nil {
		b.WriteString(noteStyle.Render(clock.Message(*m.notification)))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("s start  p pause/resume  x stop  q quit"))
	return b.String()
}

// progressBar shows how much of the current interval has elapsed.
func progressBar(v clock.View, width int) string {
	total := v.SessionSeconds
	phase := v.Phase
	if phase == models.PhasePaused {
		phase = v.PausedPhase
	}
	if phase == models.PhaseBreak {
		total = v.BreakSeconds
	}
	filled := 0
	if total > 0 && v.Phase != models.PhaseIdle {
		filled = (total - v.RemainingSeconds) * width / total
	}
	filled = min(max(filled, 0), width)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// Run starts the dashboard on the terminal and blocks until the user quits.
func Run(t Timer, s store.Store) error {
	_, err := tea.NewProgram(New(t, s), tea.WithAltScreen()).Run()
	return err
}
