package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Legacy Nordic DFU control point opcodes.
const (
	DFUOpStart            = 0x01
	DFUOpInitParams       = 0x02
	DFUOpReceiveImage     = 0x03
	DFUOpValidate         = 0x04
	DFUOpActivateAndReset = 0x05
	DFUOpReceiptInterval  = 0x08
	DFUOpResponse         = 0x10
	DFUOpPacketReceipt    = 0x11
)

// DFUResultSuccess is the result code of a successful control step.
const DFUResultSuccess = 0x01

// dfuImageTypeApplication selects an application image in the start command.
const dfuImageTypeApplication = 0x04

// Control point messages, in the order they are sent.
var (
	DFUStartMessage         = []byte{DFUOpStart, dfuImageTypeApplication}
	DFUInitBeginMessage     = []byte{DFUOpInitParams, 0x00}
	DFUInitCompleteMessage  = []byte{DFUOpInitParams, 0x01}
	DFUReceiveImageMessage  = []byte{DFUOpReceiveImage}
	DFUValidateMessage      = []byte{DFUOpValidate}
	DFUActivateResetMessage = []byte{DFUOpActivateAndReset}
)

// DFUReceiptIntervalMessage asks for a packet receipt every interval packets.
func DFUReceiptIntervalMessage(interval uint8) []byte {
	return []byte{DFUOpReceiptInterval, interval}
}

// DFUImageSizePacket is written to the packet characteristic after the start
// command: soft device and bootloader sizes (zero) then the application size.
func DFUImageSizePacket(imageSize uint32) []byte {
	buf := make([]byte, 8, 12)
	return binary.LittleEndian.AppendUint32(buf, imageSize)
}

// DFUResponse returns the control point acknowledgement expected after op.
func DFUResponse(op byte) []byte {
	return []byte{DFUOpResponse, op, DFUResultSuccess}
}

// IsDFUResponse reports whether receipt is the successful acknowledgement of op.
func IsDFUResponse(receipt []byte, op byte) bool {
	return bytes.Equal(receipt, DFUResponse(op))
}

// ParsePacketReceipt extracts the bytes-received counter of a packet receipt
// notification: [opcode, u32 little-endian].
func ParsePacketReceipt(receipt []byte) (uint32, error) {
	if len(receipt) < 5 {
		return 0, fmt.Errorf("protocol: packet receipt too short: %d < 5 bytes", len(receipt))
	}
	return binary.LittleEndian.Uint32(receipt[1:5]), nil
}
