// Package archive reads the zip bundles published for InfiniTime: DFU
// packages (firmware image plus init packet) and resource bundles.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Size ceilings for entries pulled out of an archive. An entry whose size
// reaches the ceiling is rejected.
const (
	MaxFirmwareSize   = 512 * 1024
	MaxResourceSize   = 4 * 1024 * 1024
	MaxInitPacketSize = 4 * 1024
)

// ErrEntryNotFound is returned when a named entry is absent.
var ErrEntryNotFound = errors.New("archive: entry not found")

// SizeLimitError indicates an entry at or above the caller's ceiling.
type SizeLimitError struct {
	Name  string
	Size  uint64
	Limit uint64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("archive: %s is too large: %d bytes, limit %d", e.Name, e.Size, e.Limit)
}

// Archive is an opened zip container held in memory.
type Archive struct {
	files map[string]*zip.File
	names []string
}

// Open parses data as a zip archive.
func Open(data []byte) (*Archive, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	a := &Archive{files: make(map[string]*zip.File, len(r.File))}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		a.files[f.Name] = f
		a.names = append(a.names, f.Name)
	}
	sort.Strings(a.names)
	return a, nil
}

// Names lists the file entries, sorted.
func (a *Archive) Names() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Has reports whether the archive contains a file entry called name.
func (a *Archive) Has(name string) bool {
	_, ok := a.files[name]
	return ok
}

// ReadEntry reads the named entry in full. A limit of 0 disables the ceiling;
// otherwise entries declaring limit bytes or more fail with *SizeLimitError
// before any content is decompressed.
func (a *Archive) ReadEntry(name string, limit uint64) ([]byte, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if limit > 0 && f.UncompressedSize64 >= limit {
		return nil, &SizeLimitError{Name: name, Size: f.UncompressedSize64, Limit: limit}
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", name, err)
	}
	defer rc.Close()

	r := io.Reader(rc)
	if limit > 0 {
		r = io.LimitReader(rc, int64(limit))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", name, err)
	}
	if limit > 0 && uint64(len(data)) >= limit {
		return nil, &SizeLimitError{Name: name, Size: uint64(len(data)), Limit: limit}
	}
	return data, nil
}
