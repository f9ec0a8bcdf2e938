package tui

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/chaz8081/watchlink/internal/progress"
)

// Operation is a long-running watch operation reporting to p.
type Operation func(ctx context.Context, p *progress.Sender) error

// Run executes op while rendering its progress, and returns op's error.
// Interrupting the program cancels op's context; Run still waits for op to
// return so the watch is never left mid-exchange by the UI.
func Run(ctx context.Context, title string, op Operation) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sender, events := progress.NewChannel(progress.DefaultBuffer)
	m := NewModel(title, events, cancel)
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithoutSignalHandler())

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := op(ctx, sender)
		sender.Close()
		p.Send(resultMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		cancel()
		<-done
		return fmt.Errorf("tui: %w", err)
	}
	return final.(Model).Err()
}

// RunPlain executes op and prints each status line to w, for terminals
// without cursor control and for scripts.
func RunPlain(ctx context.Context, w io.Writer, op Operation) error {
	sender, events := progress.NewChannel(progress.DefaultBuffer)
	errc := make(chan error, 1)
	go func() {
		err := op(ctx, sender)
		sender.Close()
		errc <- err
	}()

	lastPercent := -1
	for ev := range events {
		if ev.IsMessage() {
			fmt.Fprintln(w, ev.Message)
			continue
		}
		// One line per 10%.
		if pct := int(ev.Fraction()*100) / 10 * 10; pct != lastPercent {
			lastPercent = pct
			fmt.Fprintf(w, "  %3d%% (%d/%d bytes)\n", pct, ev.Current, ev.Total)
		}
	}
	return <-errc
}
