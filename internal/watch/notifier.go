package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaz8081/watchlink/internal/ble"
	"github.com/chaz8081/watchlink/internal/ble/protocol"
)

// DefaultNotifierQueue is the number of alerts held while the watch is busy
// flashing firmware.
const DefaultNotifierQueue = 16

// Notifier forwards alerts to the watch. While a firmware upgrade is running
// alerts are queued and delivered on the next Send or Flush after it ends.
// Safe for concurrent use.
type Notifier struct {
	session *Session
	char    ble.Characteristic

	mu        sync.Mutex
	queue     []protocol.Notification
	queueSize int
}

// NewNotifier resolves the new-alert characteristic of s. queueSize <= 0
// uses DefaultNotifierQueue.
func NewNotifier(s *Session, queueSize int) (*Notifier, error) {
	char, err := s.resolve(ble.NewAlertUUID)
	if err != nil {
		return nil, err
	}
	if queueSize <= 0 {
		queueSize = DefaultNotifierQueue
	}
	return &Notifier{session: s, char: char, queueSize: queueSize}, nil
}

// Send delivers n, or queues it if a firmware upgrade is in progress.
func (n *Notifier) Send(ctx context.Context, notif protocol.Notification) error {
	msg, err := protocol.MarshalNotification(notif)
	if err != nil {
		return err
	}

	n.mu.Lock()
	if n.session.IsUpgradingFirmware() {
		n.enqueue(notif)
		n.mu.Unlock()
		slog.Debug("[BLE] firmware upgrade in progress, alert queued", "title", notif.Title)
		return nil
	}
	n.mu.Unlock()

	n.Flush(ctx)
	return n.write(ctx, msg)
}

func (n *Notifier) write(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.session.isDisconnected() {
		return ErrDisconnected
	}
	if err := n.char.Write(msg); err != nil {
		return fmt.Errorf("watch: write alert: %w", err)
	}
	return nil
}

// enqueue adds notif to the queue (caller must hold mu).
func (n *Notifier) enqueue(notif protocol.Notification) {
	if len(n.queue) >= n.queueSize {
		slog.Warn("[BLE] alert queue full, dropping oldest alert", "title", n.queue[0].Title)
		n.queue = n.queue[1:]
	}
	n.queue = append(n.queue, notif)
}

// QueueLen returns the number of queued alerts.
func (n *Notifier) QueueLen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Flush delivers queued alerts unless an upgrade is still running. Alerts
// that fail to send are logged and dropped.
func (n *Notifier) Flush(ctx context.Context) {
	n.mu.Lock()
	if n.session.IsUpgradingFirmware() || len(n.queue) == 0 {
		n.mu.Unlock()
		return
	}
	queued := n.queue
	n.queue = nil
	n.mu.Unlock()

	for _, notif := range queued {
		msg, err := protocol.MarshalNotification(notif)
		if err == nil {
			err = n.write(ctx, msg)
		}
		if err != nil {
			slog.Error("[BLE] failed to flush queued alert", "title", notif.Title, "error", err)
		}
	}
}

// Close reports alerts that were never delivered.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) > 0 {
		slog.Warn("[BLE] closing with undelivered alerts", "count", len(n.queue))
	}
	n.queue = nil
}
