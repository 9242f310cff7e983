package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// ProgramOptions are the bubbletea options every terminal view runs with.
func ProgramOptions() []tea.ProgramOption {
	return []tea.ProgramOption{tea.WithAltScreen(), tea.WithMouseCellMotion()}
}

// RunLocal runs a view in the process's own terminal until the user quits
// or ctx is cancelled.
func RunLocal(ctx context.Context, eng Engine, opts Options) error {
	m := NewModel(eng, opts)
	defer m.Close()

	p := tea.NewProgram(m, append(ProgramOptions(), tea.WithContext(ctx))...)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run local terminal: %w", err)
	}
	return nil
}
