package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Quit   key.Binding
	Toggle key.Binding
	Help   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "Q"),
			key.WithHelp("shift+q", "quit"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "stop/start tracking"),
		),
		Help: key.NewBinding(
			key.WithKeys("ctrl+h"),
			key.WithHelp("ctrl+h", "help"),
		),
	}
}

func (m *DashboardModel) renderHelp() string {
	var b strings.Builder

	b.WriteString(m.theme.PaneTitle.Render("driftwatch help"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  %s  stop or restart tracking\n", m.theme.CardValue.Render("ctrl+s")))
	b.WriteString(fmt.Sprintf("  %s  toggle this help\n", m.theme.CardValue.Render("ctrl+h")))
	b.WriteString(fmt.Sprintf("  %s  quit (ends the session)\n", m.theme.CardValue.Render("shift+q")))
	b.WriteString("\n")
	b.WriteString(m.theme.CardLabel.Render("Everything else counts as activity: typing, moving the\nmouse, scrolling and clicking all feed the drift model."))

	return m.theme.Pane.Width(max(20, m.width-2)).Render(b.String())
}
