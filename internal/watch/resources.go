package watch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chaz8081/watchlink/internal/archive"
	"github.com/chaz8081/watchlink/internal/progress"
	"github.com/chaz8081/watchlink/internal/version"
)

// InstallResources installs the files listed in a resource bundle's
// resources.json and removes obsolete files the running firmware no longer
// needs. Directory creation and writes are fatal; obsolete file removal is
// best effort.
func (s *Session) InstallResources(ctx context.Context, bundle []byte, p *progress.Sender) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return fmt.Errorf("resources: %w", err)
	}
	defer release()

	if err := s.installResources(ctx, bundle, p); err != nil {
		return fmt.Errorf("resources: %w", err)
	}
	return nil
}

func (s *Session) installResources(ctx context.Context, bundle []byte, p *progress.Sender) error {
	a, err := archive.Open(bundle)
	if err != nil {
		return err
	}
	manifest, err := a.ResourceManifest()
	if err != nil {
		return err
	}

	paths := make([]string, len(manifest.Resources))
	for i, r := range manifest.Resources {
		paths[i] = r.Path
	}
	for _, dir := range AncestorsUnion(paths) {
		p.Message("Creating directory: " + dir)
		if err := s.makeDir(ctx, dir); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	for _, r := range manifest.Resources {
		content, err := a.ReadEntry(r.Filename, archive.MaxResourceSize)
		if err != nil {
			return err
		}
		p.Message("Writing resource file: " + r.Path)
		slog.Info("[FS] installing resource", "file", r.Filename, "path", r.Path, "size", len(content))
		if err := s.writeFile(ctx, r.Path, content, 0, p); err != nil {
			return fmt.Errorf("write %s: %w", r.Path, err)
		}
	}

	if len(manifest.ObsoleteFiles) == 0 {
		return nil
	}
	current, err := s.ReadFirmwareVersion(ctx)
	if err != nil {
		return err
	}
	for _, obsolete := range manifest.ObsoleteFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		atLeast, ok := version.AtLeast(current, obsolete.Since)
		if !ok {
			slog.Warn("[FS] cannot compare versions, keeping file", "path", obsolete.Path, "since", obsolete.Since, "firmware", current)
			continue
		}
		if !atLeast {
			continue
		}
		p.Message("Removing obsolete file: " + obsolete.Path)
		if err := s.deleteFile(ctx, obsolete.Path); err != nil {
			slog.Warn("[FS] failed to delete obsolete file", "path", obsolete.Path, "error", err)
		}
	}
	return nil
}
