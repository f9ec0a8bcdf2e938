package archive

import (
	"errors"
	"testing"
)

func TestDFUFilesFromManifest(t *testing.T) {
	manifest := `{"manifest":{"application":{"bin_file":"pinetime-mcuboot-app-image.bin","dat_file":"pinetime-mcuboot-app-image.dat"}}}`
	a := mustOpen(t, buildZip(t,
		entry{DFUManifestName, manifest},
		entry{"pinetime-mcuboot-app-image.bin", "image"},
		entry{"pinetime-mcuboot-app-image.dat", "init"},
		entry{"other.bin", "ignored"},
	))
	files, err := a.DFUFiles()
	if err != nil {
		t.Fatalf("DFUFiles() error = %v", err)
	}
	if files.BinFile != "pinetime-mcuboot-app-image.bin" || files.DatFile != "pinetime-mcuboot-app-image.dat" {
		t.Errorf("DFUFiles() = %+v", files)
	}
}

func TestDFUFilesManifestErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"malformed", `{"manifest":`},
		{"no application", `{"manifest":{}}`},
		{"missing entry", `{"manifest":{"application":{"bin_file":"gone.bin","dat_file":"a.dat"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mustOpen(t, buildZip(t, entry{DFUManifestName, tt.manifest}, entry{"a.dat", "init"}))
			_, err := a.DFUFiles()
			var mErr *ManifestError
			if !errors.As(err, &mErr) {
				t.Errorf("DFUFiles() error = %v, want *ManifestError", err)
			}
		})
	}
}

func TestDFUFilesBySuffix(t *testing.T) {
	a := mustOpen(t, buildZip(t, entry{"fw.bin", "image"}, entry{"fw.dat", "init"}))
	files, err := a.DFUFiles()
	if err != nil {
		t.Fatalf("DFUFiles() error = %v", err)
	}
	if files.BinFile != "fw.bin" || files.DatFile != "fw.dat" {
		t.Errorf("DFUFiles() = %+v", files)
	}
}

func TestDFUFilesBySuffixErrors(t *testing.T) {
	tests := []struct {
		name    string
		entries []entry
	}{
		{"multiple bin", []entry{{"a.bin", "1"}, {"b.bin", "2"}, {"a.dat", "3"}}},
		{"multiple dat", []entry{{"a.bin", "1"}, {"a.dat", "2"}, {"b.dat", "3"}}},
		{"missing dat", []entry{{"a.bin", "1"}}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mustOpen(t, buildZip(t, tt.entries...))
			if _, err := a.DFUFiles(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestResourceManifest(t *testing.T) {
	manifest := `{
		"resources": [
			{"filename": "lv_font_dots_40.bin", "path": "/fonts/lv_font_dots_40.bin"},
			{"filename": "teko.bin", "path": "/fonts/teko.bin"}
		],
		"obsolete_files": [
			{"path": "/fonts/old.bin", "since": "1.11.0"}
		]
	}`
	a := mustOpen(t, buildZip(t, entry{ResourceManifestName, manifest}))
	m, err := a.ResourceManifest()
	if err != nil {
		t.Fatalf("ResourceManifest() error = %v", err)
	}
	if len(m.Resources) != 2 || m.Resources[1].Path != "/fonts/teko.bin" {
		t.Errorf("Resources = %+v", m.Resources)
	}
	if len(m.ObsoleteFiles) != 1 || m.ObsoleteFiles[0].Since != "1.11.0" {
		t.Errorf("ObsoleteFiles = %+v", m.ObsoleteFiles)
	}
}

func TestResourceManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		entries []entry
	}{
		{"missing", []entry{{"font.bin", "x"}}},
		{"malformed", []entry{{ResourceManifestName, `{"resources": [`}}},
		{"missing path", []entry{{ResourceManifestName, `{"resources": [{"filename": "a.bin"}]}`}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mustOpen(t, buildZip(t, tt.entries...))
			_, err := a.ResourceManifest()
			var mErr *ManifestError
			if !errors.As(err, &mErr) {
				t.Errorf("ResourceManifest() error = %v, want *ManifestError", err)
			}
		})
	}
}
