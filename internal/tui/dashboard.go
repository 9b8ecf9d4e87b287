package tui

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"driftwatch/internal/app"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type refreshMsg struct{}

type trackingStartedMsg struct{ err error }

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// DashboardModel renders the live activity dashboard and feeds terminal input
// into the tracker: wheel events become scrolls, pointer motion becomes mouse
// movement, presses become clicks, keys mark activity, and terminal focus
// changes stand in for tab visibility.
type DashboardModel struct {
	app   *app.Application
	theme Theme
	keys  keyMap

	width  int
	height int
	ready  bool

	starting bool
	startErr error
	snap     app.Snapshot

	gauge      progress.Model
	scrollPos  int
	spinnerPos int
	showHelp   bool
}

func NewDashboard(application *app.Application) *DashboardModel {
	gauge := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())

	return &DashboardModel{
		app:      application,
		theme:    NewTheme(application.Config.Theme),
		keys:     defaultKeyMap(),
		width:    100,
		height:   30,
		starting: true,
		gauge:    gauge,
	}
}

func (m *DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.startTracking(), m.refreshTick())
}

func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.gauge.Width = max(10, min(60, m.width-30))
		m.ready = true
		return m, nil

	case trackingStartedMsg:
		m.starting = false
		m.startErr = msg.err
		m.snap = m.app.Tracker.Snapshot()
		return m, nil

	case refreshMsg:
		m.snap = m.app.Tracker.Snapshot()
		m.spinnerPos = (m.spinnerPos + 1) % len(spinnerFrames)
		return m, m.refreshTick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.app.Tracker.Stop()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Toggle):
			if m.starting {
				return m, nil
			}
			if m.snap.Active {
				m.app.Tracker.Stop()
				m.snap = m.app.Tracker.Snapshot()
				return m, nil
			}
			m.starting = true
			m.startErr = nil
			return m, m.startTracking()
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		}
		m.app.Tracker.KeyPress()
		return m, nil

	case tea.MouseMsg:
		switch {
		case msg.Button == tea.MouseButtonWheelUp:
			m.scrollPos = max(0, m.scrollPos-wheelStep)
			m.app.Tracker.Scroll(m.scrollPos)
		case msg.Button == tea.MouseButtonWheelDown:
			m.scrollPos += wheelStep
			m.app.Tracker.Scroll(m.scrollPos)
		case msg.Action == tea.MouseActionMotion:
			m.app.Tracker.MouseMove()
		case msg.Action == tea.MouseActionPress:
			m.app.Tracker.Click(msg.X, msg.Y)
		}
		return m, nil

	case tea.FocusMsg:
		m.app.Tracker.Visibility(false)
		return m, nil

	case tea.BlurMsg:
		m.app.Tracker.Visibility(true)
		return m, nil
	}

	return m, nil
}

// wheelStep approximates the vertical offset of one wheel notch.
const wheelStep = 3

func (m *DashboardModel) View() string {
	if !m.ready {
		return "…"
	}

	top := m.renderTopBar()
	var body string
	if m.showHelp {
		body = m.renderHelp()
	} else {
		body = m.renderBody()
	}
	footer := m.renderFooter()
	return lipgloss.JoinVertical(lipgloss.Left, top, body, footer)
}

func (m *DashboardModel) startTracking() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return trackingStartedMsg{err: m.app.Tracker.Start(ctx)}
	}
}

func (m *DashboardModel) refreshTick() tea.Cmd {
	d := 500 * time.Millisecond
	if os.Getenv("DRIFTWATCH_REDUCE_MOTION") == "1" {
		d = time.Second
	}
	return tea.Tick(d, func(_ time.Time) tea.Msg { return refreshMsg{} })
}

func (m *DashboardModel) renderTopBar() string {
	left := m.theme.TopBarTitle.Render("driftwatch")

	var status string
	switch {
	case m.starting:
		status = m.theme.Spinner.Render(spinnerFrames[m.spinnerPos] + " Starting session…")
	case m.startErr != nil:
		status = m.theme.StatusErr.Render("TRACKING FAILED")
	case m.snap.Active:
		status = m.theme.StatusOK.Render("TRACKING")
	default:
		status = m.theme.TopBarMeta.Render("STOPPED")
	}

	right := m.theme.TopBarMeta.Render(shortID(m.snap.SessionID))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(status) - lipgloss.Width(right)
	if gap < 2 {
		gap = 2
	}
	a := gap / 2
	b := gap - a
	return m.theme.TopBar.Render(left + strings.Repeat(" ", a) + status + strings.Repeat(" ", b) + right)
}

func (m *DashboardModel) renderBody() string {
	if m.startErr != nil {
		msg := fmt.Sprintf("Could not start tracking: %v\n\nctrl+s to try again.", m.startErr)
		return m.theme.Pane.Width(max(20, m.width-2)).Render(m.theme.StatusErr.Render(msg))
	}

	cards := m.renderCards()
	drift := m.renderDriftPane()

	parts := []string{cards, drift}
	if banner := m.renderAlert(); banner != "" {
		parts = append(parts, banner)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *DashboardModel) renderCards() string {
	metrics := m.snap.Metrics
	row1 := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderCard("active", formatDuration(metrics.ActiveTime)),
		m.renderCard("scrolls", fmt.Sprintf("%d", metrics.Scrolls)),
		m.renderCard("clicks", fmt.Sprintf("%d", metrics.Clicks)),
	)
	row2 := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderCard("moves", fmt.Sprintf("%d", metrics.MouseBursts)),
		m.renderCard("idle", formatDuration(metrics.IdleTime)),
		m.renderCard("tabs", fmt.Sprintf("%d", metrics.TabCount)),
	)
	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func (m *DashboardModel) renderCard(label, value string) string {
	w := max(12, (m.width-8)/3)
	content := m.theme.CardLabel.Render(label) + "\n" + m.theme.CardValue.Render(value)
	return m.theme.Card.Width(w).Render(content)
}

func (m *DashboardModel) renderDriftPane() string {
	title := m.theme.PaneTitle.Render("Focus drift")

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")

	if m.snap.Analysis == nil {
		b.WriteString(m.theme.CardLabel.Render("Waiting for the first analysis…"))
		return m.theme.Pane.Width(max(20, m.width-2)).Render(b.String())
	}

	an := m.snap.Analysis
	b.WriteString(m.gauge.ViewAs(an.DriftScore / 100))
	b.WriteString(m.theme.TopBarMeta.Render(fmt.Sprintf("  %.0f/100 · confidence %.0f%%", an.DriftScore, an.Confidence*100)))
	b.WriteString("\n")
	b.WriteString(m.theme.CardLabel.Render(an.Recommendation))

	if len(an.Factors) > 0 {
		names := make([]string, 0, len(an.Factors))
		for name, on := range an.Factors {
			if on {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		if len(names) > 0 {
			b.WriteString("\n")
			b.WriteString(m.theme.FactorOn.Render("▲ " + strings.Join(names, "  ▲ ")))
		}
	}

	return m.theme.Pane.Width(max(20, m.width-2)).Render(b.String())
}

func (m *DashboardModel) renderAlert() string {
	if m.snap.Alert == nil {
		return ""
	}
	text := "Focus drift detected: " + m.snap.Alert.Recommendation
	return m.theme.AlertBanner.Width(max(20, m.width-2)).Render(text)
}

func (m *DashboardModel) renderFooter() string {
	hints := "ctrl+s stop/start  ctrl+h help  shift+q quit"
	if m.width < 60 {
		hints = "ctrl+h help  shift+q quit"
	}
	return m.theme.Footer.Width(m.width).Render(hints)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func formatDuration(d time.Duration) string {
	total := int(d.Seconds())
	h := total / 3600
	mnt := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mnt, s)
	}
	return fmt.Sprintf("%02d:%02d", mnt, s)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
