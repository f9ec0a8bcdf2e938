package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Styles contains the lipgloss styles for the progress view.
type Styles struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Help    lipgloss.Style
}

// DefaultStyles returns the default color scheme.
func DefaultStyles() Styles {
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special := lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(highlight).
			Padding(0, 1),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87")),
		Success: lipgloss.NewStyle().
			Foreground(special),
		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAF00")),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
	}
}

// KeyMap holds the bindings that interrupt the running operation.
type KeyMap struct {
	Cancel key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Cancel: key.NewBinding(
			key.WithKeys("ctrl+c", "q", "esc"),
			key.WithHelp("ctrl+c", "cancel"),
		),
	}
}

// Matches reports whether msg is a cancel key.
func (k KeyMap) Matches(msg tea.KeyMsg) bool {
	return key.Matches(msg, k.Cancel)
}
