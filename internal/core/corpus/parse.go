// Package corpus turns raw corpus files into titled segments.
package corpus

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

const FileSuffix = ".txt"

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// CategoryFromFilename strips the directory and the .txt suffix.
func CategoryFromFilename(name string) string {
	return strings.TrimSuffix(filepath.Base(name), FileSuffix)
}

// ExtractURLs returns every URL match in order, duplicates included.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	return matches
}

func NewSourceDocument(category, source, text string) domain.SourceDocument {
	return domain.SourceDocument{
		Category: category,
		Source:   source,
		Text:     text,
		URLs:     ExtractURLs(text),
	}
}

// Segments splits doc on blank lines. Every segment carries the file-wide URL list.
func Segments(doc domain.SourceDocument) []domain.Segment {
	blocks := strings.Split(doc.Text, "\n\n")
	out := make([]domain.Segment, 0, len(blocks))
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		lines := strings.Split(block, "\n")
		body := block
		if len(lines) > 1 {
			body = strings.Join(lines[1:], "\n")
		}

		out = append(out, domain.Segment{
			Title:    lines[0],
			Body:     body,
			Index:    len(out) + 1,
			Category: doc.Category,
			Source:   doc.Source,
			URLs:     doc.URLs,
		})
	}
	return out
}
