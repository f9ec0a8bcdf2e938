package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Well-known manifest entry names.
const (
	DFUManifestName      = "manifest.json"
	ResourceManifestName = "resources.json"
)

// ManifestError indicates a manifest that is missing or malformed.
type ManifestError struct {
	Name string
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("archive: invalid %s: %v", e.Name, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// DFUFiles names the two entries of a DFU package.
type DFUFiles struct {
	BinFile string
	DatFile string
}

type dfuManifest struct {
	Manifest struct {
		Application *struct {
			BinFile string `json:"bin_file"`
			DatFile string `json:"dat_file"`
		} `json:"application"`
	} `json:"manifest"`
}

// DFUFiles locates the firmware image and init packet. It prefers the
// application entry of manifest.json; archives without a manifest must hold
// exactly one .bin and one .dat entry.
func (a *Archive) DFUFiles() (DFUFiles, error) {
	if a.Has(DFUManifestName) {
		return a.dfuFilesFromManifest()
	}
	return a.dfuFilesBySuffix()
}

func (a *Archive) dfuFilesFromManifest() (DFUFiles, error) {
	data, err := a.ReadEntry(DFUManifestName, 0)
	if err != nil {
		return DFUFiles{}, err
	}
	var m dfuManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return DFUFiles{}, &ManifestError{Name: DFUManifestName, Err: err}
	}
	app := m.Manifest.Application
	if app == nil || app.BinFile == "" || app.DatFile == "" {
		return DFUFiles{}, &ManifestError{Name: DFUManifestName, Err: errors.New("no application bin_file/dat_file")}
	}
	for _, name := range []string{app.BinFile, app.DatFile} {
		if !a.Has(name) {
			return DFUFiles{}, &ManifestError{Name: DFUManifestName, Err: fmt.Errorf("%w: %s", ErrEntryNotFound, name)}
		}
	}
	return DFUFiles{BinFile: app.BinFile, DatFile: app.DatFile}, nil
}

func (a *Archive) dfuFilesBySuffix() (DFUFiles, error) {
	var files DFUFiles
	for _, name := range a.names {
		switch {
		case strings.HasSuffix(name, ".bin"):
			if files.BinFile != "" {
				return DFUFiles{}, errors.New("archive: DFU package contains multiple .bin files")
			}
			files.BinFile = name
		case strings.HasSuffix(name, ".dat"):
			if files.DatFile != "" {
				return DFUFiles{}, errors.New("archive: DFU package contains multiple .dat files")
			}
			files.DatFile = name
		}
	}
	if files.BinFile == "" || files.DatFile == "" {
		return DFUFiles{}, errors.New("archive: DFU package is lacking .bin and/or .dat files")
	}
	return files, nil
}

// Resource is one file to install and where it goes on the watch.
type Resource struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// ObsoleteFile is removed once the watch runs firmware Since or newer.
type ObsoleteFile struct {
	Path  string `json:"path"`
	Since string `json:"since"`
}

// ResourceManifest is the content of resources.json.
type ResourceManifest struct {
	Resources     []Resource     `json:"resources"`
	ObsoleteFiles []ObsoleteFile `json:"obsolete_files"`
}

// ResourceManifest reads and decodes resources.json.
func (a *Archive) ResourceManifest() (*ResourceManifest, error) {
	data, err := a.ReadEntry(ResourceManifestName, 0)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, &ManifestError{Name: ResourceManifestName, Err: err}
		}
		return nil, err
	}
	var m ResourceManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Name: ResourceManifestName, Err: err}
	}
	for i, r := range m.Resources {
		if r.Filename == "" || r.Path == "" {
			return nil, &ManifestError{Name: ResourceManifestName, Err: fmt.Errorf("resource %d: filename and path are required", i)}
		}
	}
	return &m, nil
}
