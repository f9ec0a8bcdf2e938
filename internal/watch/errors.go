package watch

import (
	"errors"
	"fmt"
)

// ErrDisconnected is returned by operations on a session whose peer is gone.
var ErrDisconnected = errors.New("watch: disconnected")

// ReceiptError indicates a DFU control point notification that does not
// acknowledge the step just performed.
type ReceiptError struct {
	Step byte
	Got  []byte
	Want []byte
}

func (e *ReceiptError) Error() string {
	if e.Want == nil {
		return fmt.Sprintf("dfu: unexpected receipt after step 0x%02x: % x", e.Step, e.Got)
	}
	return fmt.Sprintf("dfu: unexpected receipt after step 0x%02x: got % x, want % x", e.Step, e.Got, e.Want)
}

// ByteCountMismatchError indicates the watch acknowledged a different number
// of firmware bytes than were sent.
type ByteCountMismatchError struct {
	Sent     uint32
	Received uint32
}

func (e *ByteCountMismatchError) Error() string {
	return fmt.Sprintf("dfu: byte count mismatch: sent %d, watch received %d", e.Sent, e.Received)
}
