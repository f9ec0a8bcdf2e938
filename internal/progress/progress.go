// Package progress carries human-readable status and current/total counters
// from long-running watch operations to an observer. Delivery is best effort:
// a full channel drops the event rather than stalling the transfer.
package progress

import "log/slog"

// DefaultBuffer is the channel capacity used by callers that don't care.
const DefaultBuffer = 32

// Event is either a status message or a numeric progress update.
type Event struct {
	Message string
	Current uint32
	Total   uint32
}

// IsMessage reports whether the event carries a status message.
func (e Event) IsMessage() bool {
	return e.Message != ""
}

// Fraction returns Current/Total in [0, 1], or 0 for message events.
func (e Event) Fraction() float64 {
	if e.Total == 0 {
		return 0
	}
	f := float64(e.Current) / float64(e.Total)
	if f > 1 {
		return 1
	}
	return f
}

// Sender publishes events. A nil *Sender discards everything, so operations
// accept one unconditionally.
type Sender struct {
	ch chan Event
}

// NewChannel returns a sender and the receive side of a channel holding up to
// size pending events. size <= 0 uses DefaultBuffer.
func NewChannel(size int) (*Sender, <-chan Event) {
	if size <= 0 {
		size = DefaultBuffer
	}
	ch := make(chan Event, size)
	return &Sender{ch: ch}, ch
}

// Message reports a status line.
func (s *Sender) Message(msg string) {
	s.send(Event{Message: msg})
}

// Numbers reports current out of total.
func (s *Sender) Numbers(current, total uint32) {
	s.send(Event{Current: current, Total: total})
}

// Close closes the channel. Sends after Close are dropped. Close must not
// race with an operation still sending.
func (s *Sender) Close() {
	if s == nil || s.ch == nil {
		return
	}
	close(s.ch)
	s.ch = nil
}

func (s *Sender) send(ev Event) {
	if s == nil || s.ch == nil {
		return
	}
	select {
	case s.ch <- ev:
	default:
		slog.Debug("[progress] observer behind, dropping event", "message", ev.Message, "current", ev.Current, "total", ev.Total)
	}
}
