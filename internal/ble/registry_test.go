package ble

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistryResolve(t *testing.T) {
	conn := newMockConnection(FSTransferUUID, strings.ToUpper(DFUControlPointUUID))
	reg, err := NewRegistry(conn)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}

	c, err := reg.Resolve(FSTransferUUID)
	if err != nil {
		t.Fatalf("Resolve(fs transfer) error = %v", err)
	}
	if c.UUID() != FSTransferUUID {
		t.Errorf("UUID() = %q, want %q", c.UUID(), FSTransferUUID)
	}

	// Lookup is case-insensitive.
	if !reg.Has(DFUControlPointUUID) {
		t.Error("Has(dfu control point) = false, want true")
	}
}

func TestRegistryResolveMissing(t *testing.T) {
	reg, err := NewRegistry(newMockConnection(BatteryLevelUUID))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	_, err = reg.Resolve(DFUPacketUUID)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Resolve() error = %v, want *NotFoundError", err)
	}
	if nf.UUID != DFUPacketUUID {
		t.Errorf("NotFoundError.UUID = %q, want %q", nf.UUID, DFUPacketUUID)
	}
}
