// Package protocol implements the binary frames exchanged with InfiniTime:
// the filesystem transfer protocol, legacy DFU control messages, and alert
// notifications. Everything here is pure; no I/O.
package protocol

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Command is the opcode in the first byte of every filesystem frame.
// Responses use the request opcode + 1.
type Command byte

const (
	CommandReadInit      Command = 0x10
	CommandReadResp      Command = 0x11
	CommandReadContinue  Command = 0x12
	CommandWriteInit     Command = 0x20
	CommandWriteResp     Command = 0x21
	CommandWriteContinue Command = 0x22
	CommandDelete        Command = 0x30
	CommandDeleteResp    Command = 0x31
	CommandMakeDir       Command = 0x40
	CommandMakeDirResp   Command = 0x41
	CommandListDir       Command = 0x50
	CommandListDirResp   Command = 0x51
	CommandMove          Command = 0x60
	CommandMoveResp      Command = 0x61
)

var commandNames = map[Command]string{
	CommandReadInit:      "ReadInit",
	CommandReadResp:      "ReadResp",
	CommandReadContinue:  "ReadContinue",
	CommandWriteInit:     "WriteInit",
	CommandWriteResp:     "WriteResp",
	CommandWriteContinue: "WriteContinue",
	CommandDelete:        "Delete",
	CommandDeleteResp:    "DeleteResp",
	CommandMakeDir:       "MakeDir",
	CommandMakeDirResp:   "MakeDirResp",
	CommandListDir:       "ListDir",
	CommandListDirResp:   "ListDirResp",
	CommandMove:          "Move",
	CommandMoveResp:      "MoveResp",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(0x%02x)", byte(c))
}

// ParseCommand converts a raw opcode byte.
func ParseCommand(b byte) (Command, error) {
	c := Command(b)
	if _, ok := commandNames[c]; !ok {
		return 0, &InvalidCommandError{Raw: b}
	}
	return c, nil
}

// Status mirrors the LittleFS error space used by the firmware.
type Status int8

const (
	StatusOk               Status = 1
	StatusIoError          Status = -5
	StatusCorrupted        Status = -84
	StatusNoDirectoryEntry Status = -2
	StatusExists           Status = -17
	StatusNotDir           Status = -20
	StatusIsDir            Status = -21
	StatusNotEmpty         Status = -39
	StatusBadNumber        Status = -9
	StatusFileTooLarge     Status = -27
	StatusInvalidParam     Status = -22
	StatusNoSpaceLeft      Status = -28
	StatusNoMemory         Status = -12
	StatusNoAttribute      Status = -61
	StatusNameTooLong      Status = -36
)

var statusNames = map[Status]string{
	StatusOk:               "Ok",
	StatusIoError:          "IoError",
	StatusCorrupted:        "Corrupted",
	StatusNoDirectoryEntry: "NoDirectoryEntry",
	StatusExists:           "Exists",
	StatusNotDir:           "NotDir",
	StatusIsDir:            "IsDir",
	StatusNotEmpty:         "NotEmpty",
	StatusBadNumber:        "BadNumber",
	StatusFileTooLarge:     "FileTooLarge",
	StatusInvalidParam:     "InvalidParam",
	StatusNoSpaceLeft:      "NoSpaceLeft",
	StatusNoMemory:         "NoMemory",
	StatusNoAttribute:      "NoAttribute",
	StatusNameTooLong:      "NameTooLong",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int8(s))
}

// ParseStatus converts a raw status byte. Unknown codes are an error, never
// a default value.
func ParseStatus(b byte) (Status, error) {
	s := Status(int8(b))
	if _, ok := statusNames[s]; !ok {
		return 0, &InvalidStatusError{Raw: int8(b)}
	}
	return s, nil
}

// Err returns nil for StatusOk and a *StatusError otherwise.
func (s Status) Err(cmd Command) error {
	if s == StatusOk {
		return nil
	}
	return &StatusError{Command: cmd, Status: s}
}

// Fixed response sizes (header only, before any variable payload).
const (
	ReadRespHeaderSize    = 16
	WriteRespSize         = 20
	DeleteRespSize        = 2
	MakeDirRespSize       = 16
	ListDirRespHeaderSize = 28
	MoveRespSize          = 2
)

// -- Requests --

func appendPathLen(buf []byte, path string) []byte {
	return binary.LittleEndian.AppendUint16(buf, uint16(len(path)))
}

// ReadInitRequest starts reading path at offset, asking for chunkSize bytes
// per response.
func ReadInitRequest(path string, offset, chunkSize uint32) []byte {
	buf := make([]byte, 0, 12+len(path))
	buf = append(buf, byte(CommandReadInit), 0x00)
	buf = appendPathLen(buf, path)
	buf = binary.LittleEndian.AppendUint32(buf, offset)
	buf = binary.LittleEndian.AppendUint32(buf, chunkSize)
	return append(buf, path...)
}

// ReadContinueRequest asks for the next chunk at offset.
func ReadContinueRequest(offset, chunkSize uint32) []byte {
	buf := make([]byte, 0, 12)
	buf = append(buf, byte(CommandReadContinue), byte(StatusOk), 0x00, 0x00)
	buf = binary.LittleEndian.AppendUint32(buf, offset)
	return binary.LittleEndian.AppendUint32(buf, chunkSize)
}

// WriteInitRequest starts writing length bytes to path at offset.
// timestamp is nanoseconds since the Unix epoch.
func WriteInitRequest(path string, offset, length uint32, timestamp uint64) []byte {
	buf := make([]byte, 0, 20+len(path))
	buf = append(buf, byte(CommandWriteInit), 0x00)
	buf = appendPathLen(buf, path)
	buf = binary.LittleEndian.AppendUint32(buf, offset)
	buf = binary.LittleEndian.AppendUint64(buf, timestamp)
	buf = binary.LittleEndian.AppendUint32(buf, length)
	return append(buf, path...)
}

// WriteContinueRequest carries one chunk of file content.
func WriteContinueRequest(offset uint32, chunk []byte) []byte {
	buf := make([]byte, 0, 12+len(chunk))
	buf = append(buf, byte(CommandWriteContinue), byte(StatusOk), 0x00, 0x00)
	buf = binary.LittleEndian.AppendUint32(buf, offset)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(chunk)))
	return append(buf, chunk...)
}

// DeleteRequest removes a file or empty directory.
func DeleteRequest(path string) []byte {
	buf := make([]byte, 0, 4+len(path))
	buf = append(buf, byte(CommandDelete), 0x00)
	buf = appendPathLen(buf, path)
	return append(buf, path...)
}

// MakeDirRequest creates a directory.
func MakeDirRequest(path string, timestamp uint64) []byte {
	buf := make([]byte, 0, 16+len(path))
	buf = append(buf, byte(CommandMakeDir), 0x00)
	buf = appendPathLen(buf, path)
	buf = append(buf, 0x00, 0x00, 0x00, 0x00)
	buf = binary.LittleEndian.AppendUint64(buf, timestamp)
	return append(buf, path...)
}

// ListDirRequest lists a directory.
func ListDirRequest(path string) []byte {
	buf := make([]byte, 0, 4+len(path))
	buf = append(buf, byte(CommandListDir), 0x00)
	buf = appendPathLen(buf, path)
	return append(buf, path...)
}

// MoveRequest renames oldPath to newPath.
func MoveRequest(oldPath, newPath string) []byte {
	buf := make([]byte, 0, 7+len(oldPath)+len(newPath))
	buf = append(buf, byte(CommandMove), 0x00)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(oldPath)))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(newPath)))
	buf = append(buf, oldPath...)
	buf = append(buf, 0x00)
	return append(buf, newPath...)
}

// -- Responses --

// checkFrame validates the opcode echo and the fixed minimum length.
func checkFrame(data []byte, minSize int, want Command) error {
	if len(data) == 0 {
		return &ShortFrameError{Command: want, Got: 0, Want: minSize}
	}
	if Command(data[0]) != want {
		return &UnexpectedCommandError{Got: data[0], Want: want}
	}
	if len(data) < minSize {
		return &ShortFrameError{Command: want, Got: len(data), Want: minSize}
	}
	return nil
}

// ReadResponse answers ReadInit and ReadContinue.
type ReadResponse struct {
	Status    Status
	Offset    uint32
	TotalSize uint32
	ChunkSize uint32
	Data      []byte
}

// ParseReadResponse decodes a ReadResp frame.
func ParseReadResponse(data []byte) (*ReadResponse, error) {
	if err := checkFrame(data, ReadRespHeaderSize, CommandReadResp); err != nil {
		return nil, err
	}
	status, err := ParseStatus(data[1])
	if err != nil {
		return nil, err
	}
	r := &ReadResponse{
		Status:    status,
		Offset:    binary.LittleEndian.Uint32(data[4:8]),
		TotalSize: binary.LittleEndian.Uint32(data[8:12]),
		ChunkSize: binary.LittleEndian.Uint32(data[12:16]),
	}
	if status != StatusOk {
		return r, nil
	}
	end := ReadRespHeaderSize + int(r.ChunkSize)
	if r.ChunkSize > uint32(len(data)-ReadRespHeaderSize) {
		return nil, &ShortFrameError{Command: CommandReadResp, Got: len(data), Want: end}
	}
	r.Data = data[ReadRespHeaderSize:end]
	return r, nil
}

// WriteResponse answers WriteInit and WriteContinue.
type WriteResponse struct {
	Status    Status
	Offset    uint32
	Timestamp uint64
	Remaining uint32
}

// ParseWriteResponse decodes a WriteResp frame.
func ParseWriteResponse(data []byte) (*WriteResponse, error) {
	if err := checkFrame(data, WriteRespSize, CommandWriteResp); err != nil {
		return nil, err
	}
	status, err := ParseStatus(data[1])
	if err != nil {
		return nil, err
	}
	return &WriteResponse{
		Status:    status,
		Offset:    binary.LittleEndian.Uint32(data[4:8]),
		Timestamp: binary.LittleEndian.Uint64(data[8:16]),
		Remaining: binary.LittleEndian.Uint32(data[16:20]),
	}, nil
}

// ParseDeleteResponse decodes a DeleteResp frame and returns its status.
func ParseDeleteResponse(data []byte) (Status, error) {
	if err := checkFrame(data, DeleteRespSize, CommandDeleteResp); err != nil {
		return 0, err
	}
	return ParseStatus(data[1])
}

// MakeDirResponse answers MakeDir.
type MakeDirResponse struct {
	Status    Status
	Timestamp uint64
}

// ParseMakeDirResponse decodes a MakeDirResp frame.
func ParseMakeDirResponse(data []byte) (*MakeDirResponse, error) {
	if err := checkFrame(data, MakeDirRespSize, CommandMakeDirResp); err != nil {
		return nil, err
	}
	status, err := ParseStatus(data[1])
	if err != nil {
		return nil, err
	}
	return &MakeDirResponse{
		Status:    status,
		Timestamp: binary.LittleEndian.Uint64(data[8:16]),
	}, nil
}

// FlagDirectory marks a directory in ListDirResponse.Flags.
const FlagDirectory = 0x01

// ListDirResponse is one entry of a directory listing.
type ListDirResponse struct {
	Status       Status
	EntryIndex   uint32
	EntriesTotal uint32
	Flags        uint32
	Timestamp    uint64
	Size         uint32
	Path         string
}

// IsDir reports whether the entry is a directory.
func (r *ListDirResponse) IsDir() bool {
	return r.Flags&FlagDirectory != 0
}

// IsLast reports whether this is the final entry of the listing.
func (r *ListDirResponse) IsLast() bool {
	return r.EntriesTotal == 0 || r.EntryIndex >= r.EntriesTotal-1
}

// ParseListDirResponse decodes a ListDirResp frame.
func ParseListDirResponse(data []byte) (*ListDirResponse, error) {
	if err := checkFrame(data, ListDirRespHeaderSize, CommandListDirResp); err != nil {
		return nil, err
	}
	status, err := ParseStatus(data[1])
	if err != nil {
		return nil, err
	}
	pathLen := int(binary.LittleEndian.Uint16(data[2:4]))
	if len(data) < ListDirRespHeaderSize+pathLen {
		return nil, &ShortFrameError{Command: CommandListDirResp, Got: len(data), Want: ListDirRespHeaderSize + pathLen}
	}
	path := data[ListDirRespHeaderSize : ListDirRespHeaderSize+pathLen]
	if !utf8.Valid(path) {
		return nil, fmt.Errorf("protocol: %s path is not valid UTF-8", CommandListDirResp)
	}
	return &ListDirResponse{
		Status:       status,
		EntryIndex:   binary.LittleEndian.Uint32(data[4:8]),
		EntriesTotal: binary.LittleEndian.Uint32(data[8:12]),
		Flags:        binary.LittleEndian.Uint32(data[12:16]),
		Timestamp:    binary.LittleEndian.Uint64(data[16:24]),
		Size:         binary.LittleEndian.Uint32(data[24:28]),
		Path:         string(path),
	}, nil
}

// ParseMoveResponse decodes a MoveResp frame and returns its status.
func ParseMoveResponse(data []byte) (Status, error) {
	if err := checkFrame(data, MoveRespSize, CommandMoveResp); err != nil {
		return 0, err
	}
	return ParseStatus(data[1])
}
