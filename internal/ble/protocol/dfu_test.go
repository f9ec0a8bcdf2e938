package protocol

import (
	"bytes"
	"testing"
)

func TestDFUControlMessages(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"start", DFUStartMessage, []byte{0x01, 0x04}},
		{"init begin", DFUInitBeginMessage, []byte{0x02, 0x00}},
		{"init complete", DFUInitCompleteMessage, []byte{0x02, 0x01}},
		{"receive image", DFUReceiveImageMessage, []byte{0x03}},
		{"validate", DFUValidateMessage, []byte{0x04}},
		{"activate", DFUActivateResetMessage, []byte{0x05}},
		{"receipt interval", DFUReceiptIntervalMessage(100), []byte{0x08, 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Equal(tt.got, tt.want) {
				t.Errorf("got %x, want %x", tt.got, tt.want)
			}
		})
	}
}

func TestDFUImageSizePacket(t *testing.T) {
	got := DFUImageSizePacket(0x00012345)
	want := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0x45, 0x23, 0x01, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("DFUImageSizePacket() = %x, want %x", got, want)
	}
}

func TestIsDFUResponse(t *testing.T) {
	if !IsDFUResponse([]byte{0x10, 0x01, 0x01}, DFUOpStart) {
		t.Error("start acknowledgement not recognized")
	}
	if IsDFUResponse([]byte{0x10, 0x02, 0x01}, DFUOpStart) {
		t.Error("acknowledgement for a different step accepted")
	}
	if IsDFUResponse([]byte{0x10, 0x01, 0x06}, DFUOpStart) {
		t.Error("failed result code accepted")
	}
	if IsDFUResponse([]byte{0x10, 0x01, 0x01, 0x00}, DFUOpStart) {
		t.Error("trailing bytes accepted")
	}
}

func TestParsePacketReceipt(t *testing.T) {
	got, err := ParsePacketReceipt([]byte{0x11, 0xD0, 0x07, 0x00, 0x00})
	if err != nil {
		t.Fatalf("ParsePacketReceipt() error = %v", err)
	}
	if got != 2000 {
		t.Errorf("ParsePacketReceipt() = %d, want 2000", got)
	}

	if _, err := ParsePacketReceipt([]byte{0x11, 0xD0, 0x07}); err == nil {
		t.Error("expected error for truncated receipt")
	}
}
