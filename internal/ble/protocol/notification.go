package protocol

import "fmt"

// Alert categories understood by the firmware. It defines more, but only
// simple alerts and calls are implemented on the watch.
const (
	CategorySimpleAlert = 0x00
	CategoryCall        = 0x03
)

// Notification is an alert pushed to the new-alert characteristic.
type Notification struct {
	Category byte
	Title    string
	Content  string // ignored for calls
}

// Alert builds a simple alert notification.
func Alert(title, content string) Notification {
	return Notification{Category: CategorySimpleAlert, Title: title, Content: content}
}

// Call builds an incoming-call notification.
func Call(caller string) Notification {
	return Notification{Category: CategoryCall, Title: caller}
}

// MarshalNotification encodes n as the 3-byte header [category, count=1, 0x00]
// followed by the title and, for simple alerts, a NUL and the content.
func MarshalNotification(n Notification) ([]byte, error) {
	switch n.Category {
	case CategorySimpleAlert:
		buf := make([]byte, 0, 4+len(n.Title)+len(n.Content))
		buf = append(buf, n.Category, 0x01, 0x00)
		buf = append(buf, n.Title...)
		buf = append(buf, 0x00)
		return append(buf, n.Content...), nil
	case CategoryCall:
		buf := make([]byte, 0, 3+len(n.Title))
		buf = append(buf, n.Category, 0x01, 0x00)
		return append(buf, n.Title...), nil
	default:
		return nil, fmt.Errorf("protocol: unsupported notification category %d", n.Category)
	}
}
