package protocol

import "fmt"

// ShortFrameError indicates a response shorter than its fixed layout.
type ShortFrameError struct {
	Command Command
	Got     int
	Want    int
}

func (e *ShortFrameError) Error() string {
	return fmt.Sprintf("protocol: %s response too short: %d < %d bytes", e.Command, e.Got, e.Want)
}

// UnexpectedCommandError indicates a response whose opcode is not the
// expected echo of the request.
type UnexpectedCommandError struct {
	Got  byte
	Want Command
}

func (e *UnexpectedCommandError) Error() string {
	return fmt.Sprintf("protocol: unexpected response command 0x%02x, want 0x%02x (%s)", e.Got, byte(e.Want), e.Want)
}

// InvalidCommandError indicates a byte that is not a known command opcode.
type InvalidCommandError struct {
	Raw byte
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("protocol: invalid command byte 0x%02x", e.Raw)
}

// InvalidStatusError indicates a byte that is not a known filesystem status.
type InvalidStatusError struct {
	Raw int8
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("protocol: invalid status code %d", e.Raw)
}

// StatusError is a filesystem error reported by the device.
type StatusError struct {
	Command Command
	Status  Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("protocol: %s failed: littlefs error %s (%d)", e.Command, e.Status, int8(e.Status))
}
