// Package ble provides the BLE transport for talking to a watch running
// InfiniTime: adapter and connection abstractions, characteristic discovery,
// and notification streams with bounded waits.
package ble

import "context"

// DefaultDeviceName is the local name InfiniTime advertises.
const DefaultDeviceName = "InfiniTime"

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// UUID returns the lowercase canonical UUID string.
	UUID() string
	// Read returns the current characteristic value.
	Read() ([]byte, error)
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	// A later Subscribe replaces the previous callback.
	Subscribe(callback func(data []byte)) error
	// Unsubscribe disables notifications.
	Unsubscribe() error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name string
	MAC  string
	RSSI int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristics enumerates every characteristic of every service.
	DiscoverCharacteristics() ([]Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals whose local name equals name.
	// Returns discovered devices until ctx is cancelled or timeout.
	Scan(ctx context.Context, name string) ([]Device, error)
	// Connect establishes a connection to the device with the given MAC address.
	Connect(ctx context.Context, mac string) (Connection, error)
}
