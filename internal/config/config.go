package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Transfer TransferConfig `yaml:"transfer"`
	Scan     ScanConfig     `yaml:"scan"`
	LogLevel string         `yaml:"log_level"`
}

// DeviceConfig selects the watch to talk to.
type DeviceConfig struct {
	Address string `yaml:"address"` // empty: scan for Name
	Name    string `yaml:"name"`
}

// TransferConfig tunes filesystem and firmware transfers.
type TransferConfig struct {
	ChunkSize       uint32        `yaml:"chunk_size"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	ReceiptInterval uint8         `yaml:"receipt_interval"`
	PacketSize      int           `yaml:"packet_size"`
	// ArchiveDir is where relative archive paths given on the command line
	// are looked up.
	ArchiveDir string `yaml:"archive_dir"`
}

// ScanConfig holds device discovery settings.
type ScanConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "watchlink")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name: "InfiniTime",
		},
		Transfer: TransferConfig{
			ChunkSize:       200,
			ResponseTimeout: 20 * time.Second,
			ReceiptInterval: 100,
			PacketSize:      20,
			ArchiveDir:      ".",
		},
		Scan: ScanConfig{
			Timeout: 10 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in archive_dir is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Transfer.ArchiveDir = expandTilde(cfg.Transfer.ArchiveDir)

	return cfg, nil
}

// LoadOrDefault loads path if it exists and returns the defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Address == "" && c.Device.Name == "" {
		return fmt.Errorf("device.address or device.name must be set")
	}

	if c.Transfer.ChunkSize == 0 {
		return fmt.Errorf("transfer.chunk_size must be > 0")
	}

	if c.Transfer.ResponseTimeout <= 0 {
		return fmt.Errorf("transfer.response_timeout must be > 0")
	}

	if c.Transfer.ReceiptInterval == 0 {
		return fmt.Errorf("transfer.receipt_interval must be > 0")
	}

	// The bootloader accepts at most 20 bytes per packet write.
	if c.Transfer.PacketSize <= 0 || c.Transfer.PacketSize > 20 {
		return fmt.Errorf("transfer.packet_size must be in 1..20, got %d", c.Transfer.PacketSize)
	}

	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("scan.timeout must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

const defaultHeader = `# watchlink configuration
#
# device.address pins a watch; leave it empty to connect to the strongest
# device advertising device.name.
`

// WriteDefault writes the default config to DefaultConfigPath and returns
// the path. An existing file is left untouched and ("", nil) is returned.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if path == "config.yaml" {
		return "", fmt.Errorf("cannot determine home directory")
	}
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values map
// to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
