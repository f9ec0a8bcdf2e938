// Package tui renders the progress of a long-running watch operation as a
// bubbletea program: the latest status line, a progress bar for byte counts
// and the final outcome.
package tui

import (
	"fmt"
	"strings"

	bar "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/chaz8081/watchlink/internal/progress"
)

// maxHistory is the number of earlier status lines kept on screen.
const maxHistory = 4

// eventMsg carries one progress event into the program.
type eventMsg progress.Event

// eventsClosedMsg signals the operation closed its progress channel.
type eventsClosedMsg struct{}

// resultMsg signals the operation returned.
type resultMsg struct {
	err error
}

// Model shows the progress of one operation.
type Model struct {
	title   string
	events  <-chan progress.Event
	cancel  func()
	keys    KeyMap
	styles  Styles
	bar     bar.Model
	history []string
	status  string
	percent float64
	showBar bool

	cancelling bool
	finished   bool
	err        error
}

// NewModel returns a model reading events. cancel is invoked when the user
// interrupts; it may be nil.
func NewModel(title string, events <-chan progress.Event, cancel func()) Model {
	return Model{
		title:  title,
		events: events,
		cancel: cancel,
		keys:   DefaultKeyMap(),
		styles: DefaultStyles(),
		bar: bar.New(
			bar.WithDefaultGradient(),
			bar.WithWidth(40),
		),
	}
}

// Err returns the outcome of the operation once the program has exited.
func (m Model) Err() error {
	return m.err
}

// Init starts listening for progress events.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan progress.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.keys.Matches(msg) && !m.cancelling {
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		if w := msg.Width - 4; w > 10 && w < 80 {
			m.bar.Width = w
		}
		return m, nil

	case eventMsg:
		ev := progress.Event(msg)
		if ev.IsMessage() {
			if m.status != "" {
				m.history = append(m.history, m.status)
				if len(m.history) > maxHistory {
					m.history = m.history[len(m.history)-maxHistory:]
				}
			}
			m.status = ev.Message
		} else {
			m.showBar = true
			m.percent = ev.Fraction()
		}
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, nil

	case resultMsg:
		m.finished = true
		m.err = msg.err
		if msg.err == nil && m.showBar {
			m.percent = 1
		}
		return m, tea.Quit
	}
	return m, nil
}

// View renders the model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.title))
	b.WriteString("\n\n")
	for _, line := range m.history {
		b.WriteString(m.styles.Muted.Render("  " + line))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString("  " + m.status + "\n")
	}
	if m.showBar {
		b.WriteString("\n  " + m.bar.ViewAs(m.percent) + "\n")
	}

	switch {
	case m.finished && m.err != nil:
		b.WriteString("\n" + m.styles.Error.Render(fmt.Sprintf("Failed: %v", m.err)) + "\n")
	case m.finished:
		b.WriteString("\n" + m.styles.Success.Render("Finished") + "\n")
	case m.cancelling:
		b.WriteString("\n" + m.styles.Warning.Render("Cancelling...") + "\n")
	default:
		b.WriteString("\n" + m.styles.Help.Render("ctrl+c to cancel") + "\n")
	}
	return b.String()
}
