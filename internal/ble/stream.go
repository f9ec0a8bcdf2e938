package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned when no notification arrives within the wait bound.
	ErrTimeout = errors.New("ble: timed out waiting for notification")
	// ErrStreamClosed is returned when the notification stream ends.
	ErrStreamClosed = errors.New("ble: notification stream closed")
)

// DefaultStreamBuffer is the number of notifications held before new ones
// are dropped.
const DefaultStreamBuffer = 64

// Stream is a subscription to one characteristic's notifications.
// Values are delivered in arrival order.
type Stream struct {
	char Characteristic
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

// Subscribe enables notifications on char and returns a stream of values.
func Subscribe(char Characteristic, buffer int) (*Stream, error) {
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	s := &Stream{
		char: char,
		ch:   make(chan []byte, buffer),
		done: make(chan struct{}),
	}
	err := char.Subscribe(func(data []byte) {
		// The transport may reuse buf after the callback returns.
		cp := make([]byte, len(data))
		copy(cp, data)
		select {
		case <-s.done:
		case s.ch <- cp:
		default:
			slog.Warn("[BLE] notification buffer full, dropping value", "uuid", char.UUID(), "len", len(cp))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("ble: subscribe %s: %w", char.UUID(), err)
	}
	return s, nil
}

// Next waits for the next notification. The wait is bounded by ctx and, when
// timeout > 0, by timeout.
func (s *Stream) Next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	// Values that arrived before the stream was closed are still delivered.
	select {
	case v := <-s.ch:
		return v, nil
	default:
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case v := <-s.ch:
		return v, nil
	case <-s.done:
		return nil, ErrStreamClosed
	case <-timer:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the stream and disables notifications. Pending waiters receive
// ErrStreamClosed. Safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.char.Unsubscribe()
	})
	return err
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
