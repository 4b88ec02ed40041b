package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kalambet/cvsift/internal/run"
)

// Run shows the run until the user quits. updates carries the run's
// snapshots and is closed when the run ends.
func Run(ctl Controller, updates <-chan run.Snapshot, cfg Config) error {
	m := newModel(ctl, updates, cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
