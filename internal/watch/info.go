package watch

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/chaz8081/watchlink/internal/ble"
)

// Info is a snapshot of the watch's basic characteristics.
type Info struct {
	FirmwareVersion string
	BatteryLevel    uint8
	HeartRate       uint8
	FSVersion       uint16
}

// ReadInfo reads firmware version and battery level, plus heart rate and
// filesystem version when the watch exposes them.
func (s *Session) ReadInfo(ctx context.Context) (Info, error) {
	var info Info
	var err error
	if info.FirmwareVersion, err = s.ReadFirmwareVersion(ctx); err != nil {
		return Info{}, err
	}
	if info.BatteryLevel, err = s.ReadBatteryLevel(ctx); err != nil {
		return Info{}, err
	}
	if s.registry.Has(ble.HeartRateUUID) {
		if info.HeartRate, err = s.ReadHeartRate(ctx); err != nil {
			return Info{}, err
		}
	}
	if s.registry.Has(ble.FSVersionUUID) {
		if info.FSVersion, err = s.ReadFSVersion(ctx); err != nil {
			return Info{}, err
		}
	}
	return info, nil
}

func (s *Session) read(ctx context.Context, char ble.Characteristic, what string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isDisconnected() {
		return nil, ErrDisconnected
	}
	data, err := char.Read()
	if err != nil {
		return nil, fmt.Errorf("watch: read %s: %w", what, err)
	}
	return data, nil
}

func (s *Session) resolve(uuid string) (ble.Characteristic, error) {
	c, err := s.registry.Resolve(uuid)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	return c, nil
}

// ReadBatteryLevel returns the charge in percent.
func (s *Session) ReadBatteryLevel(ctx context.Context) (uint8, error) {
	data, err := s.read(ctx, s.batteryLevel, "battery level")
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, fmt.Errorf("watch: battery level: empty value")
	}
	return data[0], nil
}

// ReadFirmwareVersion returns the firmware revision string, e.g. "1.14.0".
func (s *Session) ReadFirmwareVersion(ctx context.Context) (string, error) {
	data, err := s.read(ctx, s.firmwareRevision, "firmware revision")
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("watch: firmware revision is not valid UTF-8")
	}
	return strings.TrimRight(string(data), "\x00"), nil
}

// ReadHeartRate returns the last measured heart rate in beats per minute.
func (s *Session) ReadHeartRate(ctx context.Context) (uint8, error) {
	char, err := s.resolve(ble.HeartRateUUID)
	if err != nil {
		return 0, err
	}
	data, err := s.read(ctx, char, "heart rate")
	if err != nil {
		return 0, err
	}
	return heartRateValue(data)
}

// heartRateValue extracts the 8-bit measurement following the flags byte.
func heartRateValue(data []byte) (uint8, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("watch: heart rate measurement too short: %d bytes", len(data))
	}
	return data[1], nil
}

// ReadFSVersion returns the filesystem protocol version.
func (s *Session) ReadFSVersion(ctx context.Context) (uint16, error) {
	char, err := s.resolve(ble.FSVersionUUID)
	if err != nil {
		return 0, err
	}
	data, err := s.read(ctx, char, "fs version")
	if err != nil {
		return 0, err
	}
	if len(data) != 2 {
		return 0, fmt.Errorf("watch: fs version: want 2 bytes, got %d", len(data))
	}
	return binary.LittleEndian.Uint16(data), nil
}

// HeartRateStream delivers heart rate notifications until ctx is done or
// the watch disconnects, then closes the channel.
func (s *Session) HeartRateStream(ctx context.Context) (<-chan uint8, error) {
	char, err := s.resolve(ble.HeartRateUUID)
	if err != nil {
		return nil, err
	}
	st, err := s.subscribe(char)
	if err != nil {
		return nil, err
	}

	out := make(chan uint8)
	go func() {
		defer close(out)
		defer st.Close()
		for {
			data, err := st.Next(ctx, 0)
			if err != nil {
				slog.Debug("[BLE] heart rate stream ended", "error", err)
				return
			}
			bpm, err := heartRateValue(data)
			if err != nil {
				slog.Warn("[BLE] skipping heart rate notification", "error", err)
				continue
			}
			select {
			case out <- bpm:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
