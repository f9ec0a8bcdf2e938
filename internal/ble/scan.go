package ble

import (
	"context"
	"fmt"
	"time"
)

// ScanForDevices scans for peripherals advertising the given local name.
func ScanForDevices(adapter Adapter, name string, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}
	if name == "" {
		name = DefaultDeviceName
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}

// FindDevice scans for the full timeout and returns the matching device with
// the strongest signal.
func FindDevice(adapter Adapter, name string, timeout time.Duration) (Device, error) {
	devices, err := ScanForDevices(adapter, name, timeout)
	if err != nil {
		return Device{}, err
	}
	if len(devices) == 0 {
		return Device{}, fmt.Errorf("ble: no device named %q found within %s", name, timeout)
	}
	best := devices[0]
	for _, d := range devices[1:] {
		if d.RSSI > best.RSSI {
			best = d
		}
	}
	return best, nil
}
