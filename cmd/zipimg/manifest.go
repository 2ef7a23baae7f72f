package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"zipos/kernel/mem"
)

const (
	defaultSectorSize  = 512
	defaultStagingSize = "0x501000"
)

// Manifest describes the contents of a disk image.
//
//	output: disk.img
//	stagingSize: 0x501000
//	files:
//	  - name: bg.raw
//	    path: assets/bg.raw
type Manifest struct {
	Output      string         `yaml:"output"`
	SectorSize  int            `yaml:"sectorSize"`
	StagingSize string         `yaml:"stagingSize"`
	Files       []ManifestFile `yaml:"files"`
}

// ManifestFile maps a host file to an archive entry. Name defaults to the
// base name of Path.
type ManifestFile struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Layout is the validated geometry of an image.
type Layout struct {
	SectorSize  int
	StagingSize int
}

// loadManifest reads a YAML manifest. Relative file paths are resolved
// against the manifest's directory.
func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err = yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	for i := range m.Files {
		if m.Files[i].Path != "" && !filepath.IsAbs(m.Files[i].Path) {
			m.Files[i].Path = filepath.Join(baseDir, m.Files[i].Path)
		}
	}

	return &m, nil
}

// layout validates the image geometry, applying defaults for unset fields.
func (m *Manifest) layout() (Layout, error) {
	l := Layout{SectorSize: m.SectorSize}
	if l.SectorSize == 0 {
		l.SectorSize = defaultSectorSize
	}
	if l.SectorSize < 0 || !mem.Size(l.SectorSize).IsPowerOfTwo() {
		return Layout{}, fmt.Errorf("sector size %d is not a power of two", l.SectorSize)
	}

	staging := m.StagingSize
	if staging == "" {
		staging = defaultStagingSize
	}
	size, ok := mem.ParseSize(staging)
	if !ok {
		return Layout{}, fmt.Errorf("invalid staging size %q", staging)
	}
	l.StagingSize = int(size)

	if l.StagingSize < 2*l.SectorSize || l.StagingSize%l.SectorSize != 0 {
		return Layout{}, fmt.Errorf("staging size %d must be a multiple of the sector size %d spanning at least two sectors", l.StagingSize, l.SectorSize)
	}

	return l, nil
}

// validate checks that every file has a path and a unique entry name.
func (m *Manifest) validate() error {
	if len(m.Files) == 0 {
		return errors.New("manifest lists no files")
	}

	seen := make(map[string]bool, len(m.Files))
	for i := range m.Files {
		f := &m.Files[i]
		if f.Path == "" {
			return fmt.Errorf("file %d has no path", i)
		}
		if f.Name == "" {
			f.Name = filepath.Base(f.Path)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate entry name %q", f.Name)
		}
		seen[f.Name] = true
	}

	return nil
}
