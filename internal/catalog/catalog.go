// Package catalog serves firmware releases from a directory tree or a static
// web site laid out as
//
//	firmware/config.json              device index
//	firmware/<...>/manifest.json      one manifest per version
//	firmware/<...>/<part>.bin         parts, relative to their manifest
//
// Documents ending in .yaml or .yml are read as YAML, everything else as JSON.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/allbin/serialflash/internal/flash"
)

const DefaultIndexPath = "firmware/config.json"

var (
	ErrNotFound    = errors.New("not found in catalog")
	ErrInvalidPath = errors.New("path escapes catalog root")
)

// Index is the device → firmware → version tree
type Index struct {
	Devices []Device `yaml:"devices" json:"devices"`
}

type Device struct {
	ID        string     `yaml:"id" json:"id"`
	Name      string     `yaml:"name" json:"name"`
	Image     string     `yaml:"image,omitempty" json:"image,omitempty"`
	Firmwares []Firmware `yaml:"firmwares" json:"firmwares"`
}

type Firmware struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Versions    []Release `yaml:"versions" json:"versions"`
}

// Release is one entry of a firmware's version list
type Release struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	ManifestPath string `yaml:"manifest_path" json:"manifest_path"`
}

// Option configures a Store
type Option func(*Store)

// WithIndexPath overrides DefaultIndexPath; empty keeps the default
func WithIndexPath(p string) Option {
	return func(s *Store) {
		if p != "" {
			s.indexPath = p
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store reads catalog documents relative to a root directory or base URL
type Store struct {
	root      string
	base      *url.URL // nil for local stores
	indexPath string
	client    *http.Client
	logger    *slog.Logger
}

var _ flash.Catalog = (*Store)(nil)

// Open creates a store rooted at root, which is a directory or an http(s) URL
func Open(root string, opts ...Option) (*Store, error) {
	s := &Store{
		root:      root,
		indexPath: DefaultIndexPath,
		client:    &http.Client{Timeout: 60 * time.Second},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if strings.HasPrefix(root, "http://") || strings.HasPrefix(root, "https://") {
		u, err := url.Parse(root)
		if err != nil {
			return nil, fmt.Errorf("catalog url: %w", err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		s.base = u
		return s, nil
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("catalog root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog root %s: not a directory", root)
	}
	return s, nil
}

// Root returns the directory or URL the store reads from
func (s *Store) Root() string {
	return s.root
}

// Index loads the device index
func (s *Store) Index(ctx context.Context) (*Index, error) {
	var idx Index
	if err := s.decode(ctx, s.indexPath, &idx); err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	return &idx, nil
}

// Find resolves a version by device, firmware and version id or name. An
// empty version selects the first listed.
func (s *Store) Find(ctx context.Context, device, firmware, version string) (flash.Version, error) {
	idx, err := s.Index(ctx)
	if err != nil {
		return flash.Version{}, err
	}
	return idx.Find(device, firmware, version)
}

// Find is the lookup behind Store.Find
func (idx *Index) Find(device, firmware, version string) (flash.Version, error) {
	for _, d := range idx.Devices {
		if !matches(device, d.ID, d.Name) {
			continue
		}
		for _, f := range d.Firmwares {
			if !matches(firmware, f.ID, f.Name) {
				continue
			}
			for _, r := range f.Versions {
				if version == "" || matches(version, r.ID, r.Name) {
					return flash.Version{
						Device:       d.ID,
						Firmware:     f.ID,
						Name:         r.ID,
						ManifestPath: r.ManifestPath,
					}, nil
				}
			}
			return flash.Version{}, fmt.Errorf("version %q of %s/%s: %w", version, d.ID, f.ID, ErrNotFound)
		}
		return flash.Version{}, fmt.Errorf("firmware %q for %s: %w", firmware, d.ID, ErrNotFound)
	}
	return flash.Version{}, fmt.Errorf("device %q: %w", device, ErrNotFound)
}

// Entry is one flattened device/firmware/version row
type Entry struct {
	Device   Device
	Firmware Firmware
	Release  Release
	Version  flash.Version
}

// Entries lists every version in index order
func (idx *Index) Entries() []Entry {
	var out []Entry
	for _, d := range idx.Devices {
		for _, f := range d.Firmwares {
			for _, r := range f.Versions {
				out = append(out, Entry{
					Device:   d,
					Firmware: f,
					Release:  r,
					Version: flash.Version{
						Device:       d.ID,
						Firmware:     f.ID,
						Name:         r.ID,
						ManifestPath: r.ManifestPath,
					},
				})
			}
		}
	}
	return out
}

func matches(want, id, name string) bool {
	return want == id || strings.EqualFold(want, name)
}

// Manifest loads the manifest of v
func (s *Store) Manifest(ctx context.Context, v flash.Version) (*flash.Manifest, error) {
	if v.ManifestPath == "" {
		return nil, fmt.Errorf("version %s has no manifest: %w", v, ErrNotFound)
	}
	var m flash.Manifest
	if err := s.decode(ctx, v.ManifestPath, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Binary loads a part named relative to the manifest of v
func (s *Store) Binary(ctx context.Context, v flash.Version, partPath string) ([]byte, error) {
	return s.read(ctx, path.Join(path.Dir(v.ManifestPath), partPath))
}

func (s *Store) decode(ctx context.Context, rel string, out any) error {
	data, err := s.read(ctx, rel)
	if err != nil {
		return err
	}

	switch strings.ToLower(path.Ext(rel)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	default:
		err = json.Unmarshal(data, out)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", rel, err)
	}
	return nil
}

// read fetches rel, a slash separated path below the root
func (s *Store) read(ctx context.Context, rel string) ([]byte, error) {
	clean := path.Clean(strings.TrimPrefix(rel, "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return nil, fmt.Errorf("%s: %w", rel, ErrInvalidPath)
	}

	if s.base != nil {
		return s.fetch(ctx, clean)
	}

	s.logger.Debug("catalog read", "path", clean)
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(clean)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", clean, ErrNotFound)
	}
	return data, err
}

func (s *Store) fetch(ctx context.Context, rel string) ([]byte, error) {
	u := s.base.ResolveReference(&url.URL{Path: rel})
	s.logger.Debug("catalog fetch", "url", u.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rel, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("fetch %s: %w", rel, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("fetch %s: %s", rel, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
