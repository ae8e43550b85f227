package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/timada-org/todobase/internal/core"
)

// Run shows the terminal interface until the user quits.
func Run(ctx context.Context, ctrl Controller) error {
	p := tea.NewProgram(New(ctx, ctrl), tea.WithAltScreen(), tea.WithContext(ctx))

	subscription, err := ctrl.Subscribe("#", func(*core.Event) {
		go p.Send(changedMsg{})
	})
	if err != nil {
		return err
	}
	defer subscription.Unsubscribe()

	_, err = p.Run()

	return err
}
