package ble

import (
	"fmt"
	"log/slog"
	"strings"
)

// NotFoundError reports a characteristic missing from the peer's GATT tree.
// Absence is structural: an older firmware or a different device.
type NotFoundError struct {
	UUID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ble: characteristic %s not found", e.UUID)
}

// Registry maps characteristic UUIDs to handles for one connection.
// It is built once; reconnecting requires a new Registry.
type Registry struct {
	chars map[string]Characteristic
}

// NewRegistry enumerates every characteristic exposed by conn.
func NewRegistry(conn Connection) (*Registry, error) {
	chars, err := conn.DiscoverCharacteristics()
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	r := &Registry{chars: make(map[string]Characteristic, len(chars))}
	for _, c := range chars {
		r.chars[strings.ToLower(c.UUID())] = c
	}
	slog.Debug("[BLE] characteristics discovered", "count", len(r.chars))
	return r, nil
}

// Resolve returns the characteristic with the given UUID.
func (r *Registry) Resolve(uuid string) (Characteristic, error) {
	c, ok := r.chars[strings.ToLower(uuid)]
	if !ok {
		return nil, &NotFoundError{UUID: uuid}
	}
	return c, nil
}

// Has reports whether the characteristic exists.
func (r *Registry) Has(uuid string) bool {
	_, ok := r.chars[strings.ToLower(uuid)]
	return ok
}

// Len returns the number of discovered characteristics.
func (r *Registry) Len() int {
	return len(r.chars)
}
