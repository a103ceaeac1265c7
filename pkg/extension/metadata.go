package extension

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/yaml"
)

// ErrInvalidMetadata means required metadata is missing or malformed.
var ErrInvalidMetadata = errors.New("invalid extension metadata")

// Metadata identifies an extension. Name doubles as the extension ID.
type Metadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// Validate checks that name and version are present and that the name can
// be used as a namespace.
func (m Metadata) Validate() error {
	var problems []string
	switch {
	case strings.TrimSpace(m.Name) == "":
		problems = append(problems, "name is required")
	case strings.ContainsAny(m.Name, ": \t\n/"):
		problems = append(problems, fmt.Sprintf("name %q must not contain ':', '/' or whitespace", m.Name))
	}
	if strings.TrimSpace(m.Version) == "" {
		problems = append(problems, "version is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMetadata, strings.Join(problems, "; "))
	}
	return nil
}

// Manifest is extension metadata read from disk.
type Manifest struct {
	Metadata
	Path string `json:"-"`
}

// manifestExts are the file extensions ReadManifests picks up.
var manifestExts = map[string]bool{".json": true, ".yaml": true, ".yml": true}

// ParseManifest decodes JSON or YAML manifest bytes and validates them.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// LoadManifest reads and validates the manifest at path.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// ReadManifests loads every manifest file directly inside dir in parallel.
// Results are sorted by name. The first failure cancels the rest.
func ReadManifests(ctx context.Context, dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read manifest dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !manifestExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	out := make([]Manifest, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := LoadManifest(p)
			if err != nil {
				return err
			}
			out[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]string, len(out))
	for _, m := range out {
		if prev, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("%w: %q declared by both %s and %s", ErrInvalidMetadata, m.Name, prev, m.Path)
		}
		seen[m.Name] = m.Path
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
