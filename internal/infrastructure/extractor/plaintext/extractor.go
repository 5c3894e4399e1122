package plaintext

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

type opener interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

type Extractor struct {
	storage opener
}

func NewExtractor(storage opener) *Extractor {
	return &Extractor{storage: storage}
}

// Extract reads a corpus file as UTF-8 with Windows line endings normalised.
func (e *Extractor) Extract(ctx context.Context, name string) (string, error) {
	reader, err := e.storage.Open(ctx, name)
	if err != nil {
		return "", fmt.Errorf("open corpus file: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read corpus file: %w", err)
	}

	if !utf8.Valid(raw) {
		return "", fmt.Errorf("corpus file is not valid utf-8: %s", name)
	}

	text := strings.TrimPrefix(string(raw), "\ufeff")
	return strings.ReplaceAll(text, "\r\n", "\n"), nil
}
