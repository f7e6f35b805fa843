package flash

import (
	"context"
	"fmt"
	"io"
)

// Version identifies one flashable firmware release
type Version struct {
	Device       string
	Firmware     string
	Name         string
	ManifestPath string
}

func (v Version) String() string {
	return fmt.Sprintf("%s/%s@%s", v.Device, v.Firmware, v.Name)
}

// Manifest lists the image parts of a version, build by build
type Manifest struct {
	Name    string  `yaml:"name" json:"name"`
	Version string  `yaml:"version" json:"version"`
	Builds  []Build `yaml:"builds" json:"builds"`
}

type Build struct {
	ChipFamily string `yaml:"chipFamily" json:"chipFamily"`
	Parts      []Part `yaml:"parts" json:"parts"`
}

// Part paths are relative to the manifest's directory
type Part struct {
	Path   string `yaml:"path" json:"path"`
	Offset uint32 `yaml:"offset" json:"offset"`
}

// Catalog resolves manifests and their binaries
type Catalog interface {
	Manifest(ctx context.Context, v Version) (*Manifest, error)
	Binary(ctx context.Context, v Version, partPath string) ([]byte, error)
}

// LoadFiles fetches every part of v in manifest order. Parts are neither
// sorted nor deduplicated.
func LoadFiles(ctx context.Context, cat Catalog, v Version, console io.Writer) ([]FileEntry, error) {
	if console == nil {
		console = io.Discard
	}
	m, err := cat.Manifest(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}

	var files []FileEntry
	for _, build := range m.Builds {
		for _, part := range build.Parts {
			fmt.Fprintf(console, "Fetching %s...\n", part.Path)
			data, err := cat.Binary(ctx, v, part.Path)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w", part.Path, err)
			}
			files = append(files, FileEntry{Data: data, Offset: part.Offset})
		}
	}

	if len(files) == 0 {
		return nil, ErrEmptyManifest
	}
	return files, nil
}
