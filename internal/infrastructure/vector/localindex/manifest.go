package localindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

const manifestFile = "manifest.yaml"

// ManifestFile stores an IndexManifest as YAML. Writes go through a temp file
// and a rename so readers never see a partial manifest.
type ManifestFile struct {
	path string
}

// NewManifestFile returns the manifest kept at indexDir/vector_index/manifest.yaml.
func NewManifestFile(indexDir string) *ManifestFile {
	if indexDir == "" {
		indexDir = "."
	}
	return &ManifestFile{path: filepath.Join(indexDir, domain.IndexName, manifestFile)}
}

func (m *ManifestFile) Path() string {
	return m.path
}

func (m *ManifestFile) Read(context.Context) (domain.IndexManifest, error) {
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.IndexManifest{}, domain.WrapError(domain.ErrIndexUnavailable, "read index manifest", err)
	}
	if err != nil {
		return domain.IndexManifest{}, fmt.Errorf("read index manifest: %w", err)
	}

	var manifest domain.IndexManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return domain.IndexManifest{}, fmt.Errorf("decode index manifest: %w", err)
	}
	return manifest, nil
}

func (m *ManifestFile) Write(manifest domain.IndexManifest) error {
	raw, err := yaml.Marshal(manifest)
	if err != nil {
		return err
	}
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "manifest-*.yaml.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), m.path)
}

// Remove deletes the manifest. A missing manifest is not an error.
func (m *ManifestFile) Remove() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
