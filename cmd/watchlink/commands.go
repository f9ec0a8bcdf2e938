package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/chaz8081/watchlink/internal/ble"
	"github.com/chaz8081/watchlink/internal/ble/protocol"
	"github.com/chaz8081/watchlink/internal/config"
	"github.com/chaz8081/watchlink/internal/progress"
	"github.com/chaz8081/watchlink/internal/tui"
	"github.com/chaz8081/watchlink/internal/watch"
)

func (e *env) options() watch.Options {
	t := e.cfg.Transfer
	return watch.Options{
		ChunkSize:       t.ChunkSize,
		ResponseTimeout: t.ResponseTimeout,
		ReceiptInterval: t.ReceiptInterval,
		PacketSize:      t.PacketSize,
	}
}

// connect opens a session to the configured address, or to the strongest
// watch advertising the configured name.
func (e *env) connect() (*watch.Session, error) {
	adapter := ble.NewTinyGoAdapter()
	mac := e.cfg.Device.Address
	if mac == "" {
		fmt.Fprintf(os.Stderr, "Scanning for %q...\n", e.cfg.Device.Name)
		dev, err := ble.FindDevice(adapter, e.cfg.Device.Name, e.cfg.Scan.Timeout)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Found %s (%s, %d dBm)\n", dev.Name, dev.MAC, dev.RSSI)
		mac = dev.MAC
	}
	return watch.Connect(e.ctx, adapter, mac, e.options())
}

// withSession connects, runs fn and disconnects.
func (e *env) withSession(fn func(s *watch.Session) error) error {
	s, err := e.connect()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// runOperation renders op's progress in the interactive view, or as lines
// with --plain.
func (e *env) runOperation(title string, op tui.Operation) error {
	if e.cli.Plain {
		return tui.RunPlain(e.ctx, os.Stderr, op)
	}
	return tui.Run(e.ctx, title, op)
}

// readArchive reads path, resolving relative paths against
// transfer.archive_dir when they don't exist in the working directory.
func (e *env) readArchive(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !filepath.IsAbs(path) && e.cfg.Transfer.ArchiveDir != "" {
		return os.ReadFile(filepath.Join(e.cfg.Transfer.ArchiveDir, path))
	}
	return data, err
}

// --- Device commands ---

type ScanCmd struct{}

func (c *ScanCmd) Run(e *env) error {
	devices, err := ble.ScanForDevices(ble.NewTinyGoAdapter(), e.cfg.Device.Name, e.cfg.Scan.Timeout)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Printf("No device named %q found\n", e.cfg.Device.Name)
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%d\n", d.MAC, d.Name, d.RSSI)
	}
	return w.Flush()
}

type InfoCmd struct{}

func (c *InfoCmd) Run(e *env) error {
	return e.withSession(func(s *watch.Session) error {
		info, err := s.ReadInfo(e.ctx)
		if err != nil {
			return err
		}
		fmt.Printf("  Firmware:   %s\n", info.FirmwareVersion)
		fmt.Printf("  Battery:    %d%%\n", info.BatteryLevel)
		if info.HeartRate != 0 {
			fmt.Printf("  Heart rate: %d bpm\n", info.HeartRate)
		}
		if info.FSVersion != 0 {
			fmt.Printf("  FS version: %d\n", info.FSVersion)
		}
		return nil
	})
}

type HeartRateCmd struct{}

func (c *HeartRateCmd) Run(e *env) error {
	return e.withSession(func(s *watch.Session) error {
		bpm, err := s.HeartRateStream(e.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Streaming heart rate, Ctrl+C to stop")
		for v := range bpm {
			fmt.Printf("%d bpm\n", v)
		}
		return nil
	})
}

// --- Firmware and resources ---

type FlashCmd struct {
	Archive string `arg:"" help:"DFU zip (e.g. pinetime-mcuboot-app-dfu-1.14.0.zip)"`
}

func (c *FlashCmd) Run(e *env) error {
	data, err := e.readArchive(c.Archive)
	if err != nil {
		return err
	}
	return e.withSession(func(s *watch.Session) error {
		return e.runOperation("Upgrading firmware", func(ctx context.Context, p *progress.Sender) error {
			return s.UpgradeFirmwareArchive(ctx, data, p)
		})
	})
}

type ResourcesCmd struct {
	Archive string `arg:"" help:"Resource zip (e.g. infinitime-resources-1.14.0.zip)"`
}

func (c *ResourcesCmd) Run(e *env) error {
	data, err := e.readArchive(c.Archive)
	if err != nil {
		return err
	}
	return e.withSession(func(s *watch.Session) error {
		return e.runOperation("Installing resources", func(ctx context.Context, p *progress.Sender) error {
			return s.InstallResources(ctx, data, p)
		})
	})
}

// --- Filesystem commands ---

type FsCmd struct {
	Ls    FsLsCmd    `cmd:"" help:"List a directory"`
	Cat   FsCatCmd   `cmd:"" help:"Read a file"`
	Put   FsPutCmd   `cmd:"" help:"Write a local file to the watch"`
	Rm    FsRmCmd    `cmd:"" help:"Delete a file or empty directory"`
	Mkdir FsMkdirCmd `cmd:"" help:"Create a directory"`
	Mv    FsMvCmd    `cmd:"" help:"Move or rename a file"`
}

type FsLsCmd struct {
	Path string `arg:"" optional:"" default:"/" help:"Directory on the watch"`
}

func (c *FsLsCmd) Run(e *env) error {
	return e.withSession(func(s *watch.Session) error {
		entries, err := s.ListDir(e.ctx, c.Path)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, entry := range entries {
			kind := "-"
			if entry.IsDir {
				kind = "d"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", kind, entry.Size, entry.ModTime.Format("2006-01-02 15:04"), entry.Path)
		}
		return w.Flush()
	})
}

type FsCatCmd struct {
	Path   string `arg:"" help:"File on the watch"`
	Offset uint32 `help:"Start reading at this byte offset"`
	Output string `short:"o" help:"Write to this local file instead of stdout" type:"path"`
}

func (c *FsCatCmd) Run(e *env) error {
	return e.withSession(func(s *watch.Session) error {
		data, err := s.ReadFile(e.ctx, c.Path, c.Offset, nil)
		if err != nil {
			return err
		}
		if c.Output != "" {
			return os.WriteFile(c.Output, data, 0o644)
		}
		_, err = os.Stdout.Write(data)
		return err
	})
}

type FsPutCmd struct {
	Local   string `arg:"" help:"Local file" type:"existingfile"`
	Remote  string `arg:"" help:"Destination path on the watch"`
	Offset  uint32 `help:"Start writing at this byte offset"`
	Parents bool   `short:"p" help:"Create missing parent directories"`
}

func (c *FsPutCmd) Run(e *env) error {
	data, err := os.ReadFile(c.Local)
	if err != nil {
		return err
	}
	return e.withSession(func(s *watch.Session) error {
		if c.Parents {
			if err := s.MakeDirs(e.ctx, c.Remote); err != nil {
				return err
			}
		}
		return e.runOperation("Writing "+c.Remote, func(ctx context.Context, p *progress.Sender) error {
			return s.WriteFile(ctx, c.Remote, data, c.Offset, p)
		})
	})
}

type FsRmCmd struct {
	Path string `arg:"" help:"Path on the watch"`
}

func (c *FsRmCmd) Run(e *env) error {
	return e.withSession(func(s *watch.Session) error {
		return s.DeleteFile(e.ctx, c.Path)
	})
}

type FsMkdirCmd struct {
	Path    string `arg:"" help:"Directory on the watch"`
	Parents bool   `short:"p" help:"Create missing parent directories"`
}

func (c *FsMkdirCmd) Run(e *env) error {
	return e.withSession(func(s *watch.Session) error {
		if c.Parents {
			if err := s.MakeDirs(e.ctx, c.Path); err != nil {
				return err
			}
		}
		return s.MakeDir(e.ctx, c.Path)
	})
}

type FsMvCmd struct {
	From string `arg:"" help:"Existing path"`
	To   string `arg:"" help:"New path"`
}

func (c *FsMvCmd) Run(e *env) error {
	return e.withSession(func(s *watch.Session) error {
		return s.MoveFile(e.ctx, c.From, c.To)
	})
}

// --- Notifications ---

type NotifyCmd struct {
	Title string `arg:"" help:"Alert title, or the caller name with --call"`
	Body  string `arg:"" optional:"" help:"Alert body"`
	Call  bool   `help:"Show an incoming call instead of an alert"`
}

func (c *NotifyCmd) Run(e *env) error {
	notif := protocol.Alert(c.Title, c.Body)
	if c.Call {
		notif = protocol.Call(c.Title)
	}
	return e.withSession(func(s *watch.Session) error {
		n, err := watch.NewNotifier(s, 0)
		if err != nil {
			return err
		}
		defer n.Close()
		return n.Send(e.ctx, notif)
	})
}

// --- Config ---

type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write the default config file"`
}

type ConfigInitCmd struct{}

func (c *ConfigInitCmd) Run(e *env) error {
	return writeDefaultConfig(os.Stdout)
}

func writeDefaultConfig(w io.Writer) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintf(w, "Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Fprintf(w, "Wrote default config to %s\n", path)
	return nil
}
