package watch

import (
	"encoding/binary"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/watchlink/internal/ble"
	"github.com/chaz8081/watchlink/internal/ble/protocol"
)

// fakeChar is an in-memory characteristic. onWrite runs synchronously after
// each successful write, outside the lock, and may call notify.
type fakeChar struct {
	uuid string

	mu           sync.Mutex
	value        []byte
	readErr      error
	writeErr     error
	writes       [][]byte
	callback     func([]byte)
	onWrite      func([]byte)
	unsubscribed int
}

func newFakeChar(uuid string) *fakeChar {
	return &fakeChar{uuid: uuid}
}

func (c *fakeChar) UUID() string { return c.uuid }

func (c *fakeChar) Read() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	out := make([]byte, len(c.value))
	copy(out, c.value)
	return out, nil
}

func (c *fakeChar) Write(data []byte) error {
	c.mu.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	h := c.onWrite
	c.mu.Unlock()
	if h != nil {
		h(cp)
	}
	return nil
}

func (c *fakeChar) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
	return nil
}

func (c *fakeChar) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = nil
	c.unsubscribed++
	return nil
}

func (c *fakeChar) notify(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

func (c *fakeChar) setValue(v []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
}

func (c *fakeChar) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeChar) allWrites() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

type fakeConn struct {
	chars []ble.Characteristic

	mu           sync.Mutex
	disconnectCb func()
	disconnects  int
}

func (c *fakeConn) DiscoverCharacteristics() ([]ble.Characteristic, error) {
	return c.chars, nil
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *fakeConn) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *fakeConn) simulateDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// fakeWatch emulates the InfiniTime GATT server: an in-memory filesystem
// behind the FS transfer characteristic and a DFU bootloader behind the
// control point and packet characteristics.
type fakeWatch struct {
	t    *testing.T
	conn *fakeConn

	battery, firmware, heartRate, alert, fsVersion *fakeChar
	fsTransfer, dfuControl, dfuPacket              *fakeChar

	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool

	// readPath is the file of the read in progress.
	readPath  string
	writePath string

	// statusFor forces the status of responses to a command.
	statusFor map[protocol.Command]protocol.Status
	// silent drops responses to these commands.
	silent map[protocol.Command]bool
	// extraListEntries are sent after a complete listing.
	extraListEntries int

	dfu fakeDFU
}

type fakeDFU struct {
	state      string
	imageSize  uint32
	initPacket []byte
	interval   int
	packets    int
	received   uint32
	image      []byte
	activated  bool

	// receiptSkew is added to every packet receipt's byte count.
	receiptSkew            uint32
	sentBadReceipt         bool
	packetsAfterBadReceipt int
	// badAckFor answers this step with a failure result code.
	badAckFor byte
}

func newFakeWatch(t *testing.T) *fakeWatch {
	t.Helper()
	w := &fakeWatch{
		t:          t,
		battery:    newFakeChar(ble.BatteryLevelUUID),
		firmware:   newFakeChar(ble.FirmwareRevisionUUID),
		heartRate:  newFakeChar(ble.HeartRateUUID),
		alert:      newFakeChar(ble.NewAlertUUID),
		fsVersion:  newFakeChar(ble.FSVersionUUID),
		fsTransfer: newFakeChar(ble.FSTransferUUID),
		dfuControl: newFakeChar(ble.DFUControlPointUUID),
		dfuPacket:  newFakeChar(ble.DFUPacketUUID),
		files:      make(map[string][]byte),
		dirs:       map[string]bool{"/": true},
		statusFor:  make(map[protocol.Command]protocol.Status),
		silent:     make(map[protocol.Command]bool),
	}
	w.battery.setValue([]byte{87})
	w.firmware.setValue([]byte("1.14.0"))
	w.heartRate.setValue([]byte{0x00, 72})
	w.fsVersion.setValue([]byte{0x01, 0x00})
	w.fsTransfer.onWrite = w.handleFS
	w.dfuControl.onWrite = w.handleControl
	w.dfuPacket.onWrite = w.handlePacket
	w.conn = &fakeConn{chars: []ble.Characteristic{
		w.battery, w.firmware, w.heartRate, w.alert, w.fsVersion,
		w.fsTransfer, w.dfuControl, w.dfuPacket,
	}}
	return w
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ResponseTimeout = 2 * time.Second
	return opts
}

func (w *fakeWatch) session(opts Options) *Session {
	w.t.Helper()
	s, err := NewSession(w.conn, opts)
	if err != nil {
		w.t.Fatalf("NewSession() error = %v", err)
	}
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s
}

func (w *fakeWatch) putFile(path string, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[path] = append([]byte(nil), data...)
}

func (w *fakeWatch) file(path string) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.files[path]
	return data, ok
}

func (w *fakeWatch) hasDir(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirs[path]
}

// respond sends a frame unless cmd is silenced. Must not hold mu.
func (w *fakeWatch) respond(cmd protocol.Command, frame []byte) {
	w.mu.Lock()
	silent := w.silent[cmd]
	w.mu.Unlock()
	if !silent {
		w.fsTransfer.notify(frame)
	}
}

// status returns the forced status for cmd, or def (caller holds mu).
func (w *fakeWatch) status(cmd protocol.Command, def protocol.Status) protocol.Status {
	if s, ok := w.statusFor[cmd]; ok {
		return s
	}
	return def
}

func readRespFrame(status protocol.Status, offset, total uint32, data []byte) []byte {
	buf := []byte{byte(protocol.CommandReadResp), byte(status), 0, 0}
	buf = binary.LittleEndian.AppendUint32(buf, offset)
	buf = binary.LittleEndian.AppendUint32(buf, total)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

func writeRespFrame(status protocol.Status, offset, remaining uint32) []byte {
	buf := []byte{byte(protocol.CommandWriteResp), byte(status), 0, 0}
	buf = binary.LittleEndian.AppendUint32(buf, offset)
	buf = binary.LittleEndian.AppendUint64(buf, 0)
	return binary.LittleEndian.AppendUint32(buf, remaining)
}

func listDirFrame(status protocol.Status, idx, total uint32, isDir bool, size uint32, path string) []byte {
	var flags uint32
	if isDir {
		flags = protocol.FlagDirectory
	}
	buf := []byte{byte(protocol.CommandListDirResp), byte(status)}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(path)))
	buf = binary.LittleEndian.AppendUint32(buf, idx)
	buf = binary.LittleEndian.AppendUint32(buf, total)
	buf = binary.LittleEndian.AppendUint32(buf, flags)
	buf = binary.LittleEndian.AppendUint64(buf, 1700000000000000000)
	buf = binary.LittleEndian.AppendUint32(buf, size)
	return append(buf, path...)
}

func (w *fakeWatch) handleFS(req []byte) {
	cmd := protocol.Command(req[0])
	le := binary.LittleEndian
	switch cmd {
	case protocol.CommandReadInit:
		pathLen := int(le.Uint16(req[2:4]))
		offset := le.Uint32(req[4:8])
		chunk := le.Uint32(req[8:12])
		path := string(req[12 : 12+pathLen])
		w.mu.Lock()
		w.readPath = path
		w.mu.Unlock()
		w.respond(protocol.CommandReadInit, w.readChunk(protocol.CommandReadInit, path, offset, chunk))

	case protocol.CommandReadContinue:
		offset := le.Uint32(req[4:8])
		chunk := le.Uint32(req[8:12])
		w.mu.Lock()
		path := w.readPath
		w.mu.Unlock()
		w.respond(protocol.CommandReadContinue, w.readChunk(protocol.CommandReadContinue, path, offset, chunk))

	case protocol.CommandWriteInit:
		pathLen := int(le.Uint16(req[2:4]))
		offset := le.Uint32(req[4:8])
		length := le.Uint32(req[16:20])
		path := string(req[20 : 20+pathLen])
		w.mu.Lock()
		status := w.status(cmd, protocol.StatusOk)
		if status == protocol.StatusOk {
			w.writePath = path
			data := w.files[path]
			if uint32(len(data)) > offset {
				data = data[:offset]
			}
			w.files[path] = data
		}
		w.mu.Unlock()
		w.respond(cmd, writeRespFrame(status, offset, length))

	case protocol.CommandWriteContinue:
		offset := le.Uint32(req[4:8])
		length := le.Uint32(req[8:12])
		chunk := req[12 : 12+length]
		w.mu.Lock()
		status := w.status(cmd, protocol.StatusOk)
		if status == protocol.StatusOk {
			data := w.files[w.writePath]
			for uint32(len(data)) < offset {
				data = append(data, 0)
			}
			data = append(data[:offset], chunk...)
			w.files[w.writePath] = data
		}
		w.mu.Unlock()
		w.respond(cmd, writeRespFrame(status, offset+length, 0))

	case protocol.CommandDelete:
		pathLen := int(le.Uint16(req[2:4]))
		path := string(req[4 : 4+pathLen])
		w.mu.Lock()
		status := protocol.StatusOk
		if _, ok := w.files[path]; ok {
			delete(w.files, path)
		} else if w.dirs[path] {
			delete(w.dirs, path)
		} else {
			status = protocol.StatusNoDirectoryEntry
		}
		status = w.status(cmd, status)
		w.mu.Unlock()
		w.respond(cmd, []byte{byte(protocol.CommandDeleteResp), byte(status)})

	case protocol.CommandMakeDir:
		pathLen := int(le.Uint16(req[2:4]))
		path := string(req[16 : 16+pathLen])
		w.mu.Lock()
		status := protocol.StatusOk
		if w.dirs[path] {
			status = protocol.StatusExists
		} else {
			w.dirs[path] = true
		}
		status = w.status(cmd, status)
		w.mu.Unlock()
		frame := make([]byte, protocol.MakeDirRespSize)
		frame[0] = byte(protocol.CommandMakeDirResp)
		frame[1] = byte(status)
		w.respond(cmd, frame)

	case protocol.CommandListDir:
		pathLen := int(le.Uint16(req[2:4]))
		path := string(req[4 : 4+pathLen])
		for _, frame := range w.listing(path) {
			w.respond(cmd, frame)
		}

	case protocol.CommandMove:
		oldLen := int(le.Uint16(req[2:4]))
		newLen := int(le.Uint16(req[4:6]))
		oldPath := string(req[6 : 6+oldLen])
		newPath := string(req[7+oldLen : 7+oldLen+newLen])
		w.mu.Lock()
		status := protocol.StatusOk
		if data, ok := w.files[oldPath]; ok {
			delete(w.files, oldPath)
			w.files[newPath] = data
		} else {
			status = protocol.StatusNoDirectoryEntry
		}
		w.mu.Unlock()
		w.respond(cmd, []byte{byte(protocol.CommandMoveResp), byte(status)})

	default:
		w.t.Errorf("fake watch: unexpected FS command 0x%02x", req[0])
	}
}

func (w *fakeWatch) readChunk(cmd protocol.Command, path string, offset, chunk uint32) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.files[path]
	if !ok {
		return readRespFrame(protocol.StatusNoDirectoryEntry, offset, 0, nil)
	}
	if status := w.status(cmd, protocol.StatusOk); status != protocol.StatusOk {
		return readRespFrame(status, offset, 0, nil)
	}
	total := uint32(len(data))
	if offset > total {
		offset = total
	}
	end := offset + chunk
	if end > total {
		end = total
	}
	return readRespFrame(protocol.StatusOk, offset, total, data[offset:end])
}

// listing builds ListDir frames for the direct children of dir.
func (w *fakeWatch) listing(dir string) [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	if status := w.status(protocol.CommandListDir, protocol.StatusOk); status != protocol.StatusOk {
		return [][]byte{listDirFrame(status, 0, 0, false, 0, "")}
	}

	prefix := strings.TrimSuffix(dir, "/") + "/"
	type child struct {
		name  string
		isDir bool
		size  uint32
	}
	var children []child
	for p := range w.dirs {
		if p != "/" && strings.HasPrefix(p, prefix) && !strings.Contains(p[len(prefix):], "/") {
			children = append(children, child{name: p[len(prefix):], isDir: true})
		}
	}
	for p, data := range w.files {
		if strings.HasPrefix(p, prefix) && !strings.Contains(p[len(prefix):], "/") {
			children = append(children, child{name: p[len(prefix):], size: uint32(len(data))})
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].name < children[j].name })

	if len(children) == 0 {
		return [][]byte{listDirFrame(protocol.StatusOk, 0, 0, false, 0, "")}
	}
	total := uint32(len(children))
	var frames [][]byte
	for i, c := range children {
		frames = append(frames, listDirFrame(protocol.StatusOk, uint32(i), total, c.isDir, c.size, c.name))
	}
	for i := 0; i < w.extraListEntries; i++ {
		frames = append(frames, listDirFrame(protocol.StatusOk, total+uint32(i), total, false, 0, "extra"))
	}
	return frames
}

func (w *fakeWatch) handleControl(msg []byte) {
	w.mu.Lock()
	d := &w.dfu
	var reply []byte
	switch msg[0] {
	case protocol.DFUOpStart:
		d.state = "start"
	case protocol.DFUOpInitParams:
		if msg[1] == 0x00 {
			d.state = "init"
		} else {
			reply = protocol.DFUResponse(protocol.DFUOpInitParams)
		}
	case protocol.DFUOpReceiptInterval:
		d.interval = int(msg[1])
	case protocol.DFUOpReceiveImage:
		d.state = "image"
	case protocol.DFUOpValidate:
		reply = protocol.DFUResponse(protocol.DFUOpValidate)
	case protocol.DFUOpActivateAndReset:
		d.activated = true
	}
	if reply != nil && d.badAckFor == msg[0] {
		reply = []byte{protocol.DFUOpResponse, msg[0], 0x06}
	}
	w.mu.Unlock()
	if reply != nil {
		w.dfuControl.notify(reply)
	}
}

func (w *fakeWatch) handlePacket(data []byte) {
	w.mu.Lock()
	d := &w.dfu
	var replies [][]byte
	switch d.state {
	case "start":
		d.imageSize = binary.LittleEndian.Uint32(data[8:12])
		ack := protocol.DFUResponse(protocol.DFUOpStart)
		if d.badAckFor == protocol.DFUOpStart {
			ack = []byte{protocol.DFUOpResponse, protocol.DFUOpStart, 0x06}
		}
		replies = append(replies, ack)
		d.state = ""
	case "init":
		d.initPacket = append([]byte(nil), data...)
		d.state = ""
	case "image":
		if d.sentBadReceipt {
			d.packetsAfterBadReceipt++
		}
		d.image = append(d.image, data...)
		d.received += uint32(len(data))
		d.packets++
		if d.interval > 0 && d.packets%d.interval == 0 {
			receipt := []byte{protocol.DFUOpPacketReceipt}
			receipt = binary.LittleEndian.AppendUint32(receipt, d.received+d.receiptSkew)
			if d.receiptSkew != 0 {
				d.sentBadReceipt = true
			}
			replies = append(replies, receipt)
		}
		if d.received >= d.imageSize {
			ack := protocol.DFUResponse(protocol.DFUOpReceiveImage)
			if d.badAckFor == protocol.DFUOpReceiveImage {
				ack = []byte{protocol.DFUOpResponse, protocol.DFUOpReceiveImage, 0x06}
			}
			replies = append(replies, ack)
			d.state = "received"
		}
	default:
		w.t.Errorf("fake watch: unexpected DFU packet in state %q", d.state)
	}
	w.mu.Unlock()
	for _, r := range replies {
		w.dfuControl.notify(r)
	}
}

func (w *fakeWatch) dfuState() fakeDFU {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dfu
}
