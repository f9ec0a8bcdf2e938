// Package watch drives an InfiniTime watch over an established BLE
// connection: filesystem transfers, firmware upgrades, resource installs,
// device info reads and alert notifications.
//
// A Session allows one filesystem or firmware operation at a time. The
// protocols carry no request identifiers, so a response is matched to its
// request purely by ordering; concurrent callers wait for the session's
// operation gate instead of interleaving on the wire.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/watchlink/internal/ble"
	"github.com/chaz8081/watchlink/internal/ble/protocol"
)

// Options tunes transfers. Zero fields take the DefaultOptions value.
type Options struct {
	ChunkSize       uint32        // file bytes per FS read/write frame
	ResponseTimeout time.Duration // bound on every wait for a notification
	ReceiptInterval uint8         // DFU packets between receipts
	PacketSize      int           // firmware bytes per DFU packet
	StreamBuffer    int           // notifications buffered per operation
}

// DefaultOptions returns the values InfiniTime is tested with.
func DefaultOptions() Options {
	return Options{
		ChunkSize:       protocol.FSChunkSize,
		ResponseTimeout: 20 * time.Second,
		ReceiptInterval: 100,
		PacketSize:      protocol.DFUPacketSize,
		StreamBuffer:    ble.DefaultStreamBuffer,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ChunkSize == 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = d.ResponseTimeout
	}
	if o.ReceiptInterval == 0 {
		o.ReceiptInterval = d.ReceiptInterval
	}
	if o.PacketSize <= 0 {
		o.PacketSize = d.PacketSize
	}
	if o.StreamBuffer <= 0 {
		o.StreamBuffer = d.StreamBuffer
	}
	return o
}

// requiredCharacteristics must be present for a session to be usable.
var requiredCharacteristics = []string{
	ble.FSTransferUUID,
	ble.DFUControlPointUUID,
	ble.DFUPacketUUID,
	ble.FirmwareRevisionUUID,
	ble.BatteryLevelUUID,
}

// Session is one connected watch.
type Session struct {
	conn     ble.Connection
	registry *ble.Registry
	opts     Options

	fsTransfer       ble.Characteristic
	dfuControl       ble.Characteristic
	dfuPacket        ble.Characteristic
	firmwareRevision ble.Characteristic
	batteryLevel     ble.Characteristic

	// gate holds a token while a filesystem or firmware operation runs.
	gate      chan struct{}
	upgrading atomic.Bool

	mu           sync.Mutex
	streams      map[*ble.Stream]struct{}
	disconnected bool
	done         chan struct{}

	now func() time.Time
}

// NewSession discovers the characteristics of conn and resolves the ones
// every operation depends on. A missing one fails with *ble.NotFoundError.
func NewSession(conn ble.Connection, opts Options) (*Session, error) {
	registry, err := ble.NewRegistry(conn)
	if err != nil {
		return nil, err
	}

	s := &Session{
		conn:     conn,
		registry: registry,
		opts:     opts.withDefaults(),
		gate:     make(chan struct{}, 1),
		streams:  make(map[*ble.Stream]struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}

	resolved := make(map[string]ble.Characteristic, len(requiredCharacteristics))
	for _, uuid := range requiredCharacteristics {
		c, err := registry.Resolve(uuid)
		if err != nil {
			return nil, fmt.Errorf("watch: %w", err)
		}
		resolved[uuid] = c
	}
	s.fsTransfer = resolved[ble.FSTransferUUID]
	s.dfuControl = resolved[ble.DFUControlPointUUID]
	s.dfuPacket = resolved[ble.DFUPacketUUID]
	s.firmwareRevision = resolved[ble.FirmwareRevisionUUID]
	s.batteryLevel = resolved[ble.BatteryLevelUUID]

	conn.OnDisconnect(s.handleDisconnect)
	return s, nil
}

// Connect enables the adapter, connects to mac and opens a session.
func Connect(ctx context.Context, adapter ble.Adapter, mac string, opts Options) (*Session, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("watch: enable adapter: %w", err)
	}
	conn, err := adapter.Connect(ctx, mac)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	s, err := NewSession(conn, opts)
	if err != nil {
		_ = conn.Disconnect()
		return nil, err
	}
	slog.Info("[BLE] connected", "mac", mac, "characteristics", s.registry.Len())
	return s, nil
}

// Options returns the effective transfer options.
func (s *Session) Options() Options {
	return s.opts
}

// IsUpgradingFirmware reports whether a firmware upgrade is in progress.
// Safe to call from any goroutine.
func (s *Session) IsUpgradingFirmware() bool {
	return s.upgrading.Load()
}

// Done is closed when the watch disconnects.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close disconnects from the watch.
func (s *Session) Close() error {
	err := s.conn.Disconnect()
	s.handleDisconnect()
	if err != nil {
		return fmt.Errorf("watch: disconnect: %w", err)
	}
	return nil
}

func (s *Session) handleDisconnect() {
	s.mu.Lock()
	if s.disconnected {
		s.mu.Unlock()
		return
	}
	s.disconnected = true
	close(s.done)
	streams := make([]*ble.Stream, 0, len(s.streams))
	for st := range s.streams {
		streams = append(streams, st)
	}
	s.streams = make(map[*ble.Stream]struct{})
	s.mu.Unlock()

	if len(streams) > 0 {
		slog.Warn("[BLE] disconnected during operation", "streams", len(streams))
	} else {
		slog.Info("[BLE] disconnected")
	}
	for _, st := range streams {
		_ = st.Close()
	}
}

func (s *Session) isDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// acquire takes the operation gate, waiting under ctx. The returned release
// must be called exactly once.
func (s *Session) acquire(ctx context.Context) (release func(), err error) {
	select {
	case s.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrDisconnected
	}
	if s.isDisconnected() {
		<-s.gate
		return nil, ErrDisconnected
	}
	return func() { <-s.gate }, nil
}

// beginUpgrade raises the upgrade flag and returns the function that lowers
// it. Use as: defer s.beginUpgrade()().
func (s *Session) beginUpgrade() func() {
	s.upgrading.Store(true)
	return func() { s.upgrading.Store(false) }
}

// subscribe opens a fresh notification stream on char that is closed by a
// disconnect. Callers close it when their exchange ends.
func (s *Session) subscribe(char ble.Characteristic) (*stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnected {
		return nil, ErrDisconnected
	}
	st, err := ble.Subscribe(char, s.opts.StreamBuffer)
	if err != nil {
		return nil, err
	}
	s.streams[st] = struct{}{}
	return &stream{Stream: st, session: s}, nil
}

// stream is a session-tracked notification stream.
type stream struct {
	*ble.Stream
	session *Session
}

func (st *stream) Close() error {
	st.session.mu.Lock()
	delete(st.session.streams, st.Stream)
	st.session.mu.Unlock()
	return st.Stream.Close()
}

// await waits for the next notification, bounded by ctx and the response
// timeout. A stream ended by a disconnect reports ErrDisconnected as well.
func (st *stream) await(ctx context.Context) ([]byte, error) {
	v, err := st.Next(ctx, st.session.opts.ResponseTimeout)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, ble.ErrStreamClosed) && st.session.isDisconnected() {
		return nil, fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
	return nil, err
}
