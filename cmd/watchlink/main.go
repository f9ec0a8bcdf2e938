package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/chaz8081/watchlink/internal/config"
)

// CLI is the root command structure for watchlink.
type CLI struct {
	Config  string `short:"c" help:"Path to config file (default: ~/.config/watchlink/config.yaml)" type:"path"`
	Verbose bool   `short:"v" help:"Enable debug logging"`
	Address string `short:"a" help:"Watch address; overrides device.address"`
	Plain   bool   `help:"Print progress as plain lines instead of the interactive view"`

	Scan      ScanCmd      `cmd:"" help:"Scan for watches"`
	Info      InfoCmd      `cmd:"" help:"Show firmware version, battery and heart rate"`
	HeartRate HeartRateCmd `cmd:"" name:"heart-rate" help:"Stream heart rate measurements"`
	Flash     FlashCmd     `cmd:"" help:"Upgrade the firmware from a DFU archive"`
	Resources ResourcesCmd `cmd:"" help:"Install a resource bundle"`
	Fs        FsCmd        `cmd:"" help:"Filesystem operations"`
	Notify    NotifyCmd    `cmd:"" help:"Send an alert or incoming call"`
	ConfigCmd ConfigCmd    `cmd:"" name:"config" help:"Configuration file helpers"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("watchlink"),
		kong.Description("Manage an InfiniTime watch over Bluetooth LE."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newEnv(ctx, &cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watchlink: %v\n", err)
		os.Exit(1)
	}

	err = kctx.Run(env)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "watchlink: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command runs with.
type env struct {
	ctx context.Context
	cli *CLI
	cfg *config.Config
}

func newEnv(ctx context.Context, cli *CLI) (*env, error) {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cli.Address != "" {
		cfg.Device.Address = cli.Address
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	level := config.ParseLogLevel(cfg.LogLevel)
	if cli.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	return &env{ctx: ctx, cli: cli, cfg: cfg}, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadOrDefault(config.DefaultConfigPath())
}
