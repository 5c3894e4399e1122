package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Storage reads corpus files from one directory. It never creates the directory.
type Storage struct {
	basePath string
}

func New(basePath string) *Storage {
	if basePath == "" {
		basePath = "data"
	}
	return &Storage{basePath: basePath}
}

func (s *Storage) BasePath() string {
	return s.basePath
}

// List returns the names of regular files ending in suffix, sorted by name.
func (s *Storage) List(ctx context.Context, suffix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", s.basePath, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if strings.HasSuffix(entry.Name(), suffix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Storage) Location(name string) string {
	return filepath.Join(s.basePath, name)
}

func (s *Storage) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(s.Location(name))
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}
