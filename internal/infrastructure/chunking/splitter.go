package chunking

import (
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 300
)

// DefaultSeparators is ordered from the strongest boundary to the weakest.
var DefaultSeparators = []string{
	"\n\n",
	"\n1. ", "\n2. ", "\n3. ",
	"\n가. ", "\n나. ", "\n다. ", "\n라. ",
	"\n",
	". ",
	", ",
	" ",
}

// Span is a rune range [Start, End) of the split text.
type Span struct {
	Start int
	End   int
}

type Splitter struct {
	ChunkSize  int
	Overlap    int
	Separators []string

	seps []separator
}

type separator struct {
	runes []rune
	// keep is how many leading runes stay with the chunk that ends at this separator.
	keep int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		slog.Warn("chunk_overlap_clamped", "chunk_size", chunkSize, "overlap", overlap, "clamped_to", chunkSize-1)
		overlap = chunkSize - 1
	}

	s := &Splitter{
		ChunkSize:  chunkSize,
		Overlap:    overlap,
		Separators: DefaultSeparators,
	}
	s.seps = compileSeparators(s.Separators)
	return s
}

func compileSeparators(raw []string) []separator {
	out := make([]separator, 0, len(raw))
	for _, sep := range raw {
		if sep == "" {
			continue
		}
		keep := len(sep) - len(strings.TrimLeft(sep, "\n"))
		if keep == 0 {
			keep = utf8.RuneCountInString(sep)
		}
		out = append(out, separator{runes: []rune(sep), keep: keep})
	}
	return out
}

// Chunk splits every segment body and copies the segment metadata onto each piece.
func (s *Splitter) Chunk(segments []domain.Segment) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(segments))
	for _, seg := range segments {
		for _, piece := range s.Split(seg.Body) {
			out = append(out, domain.Chunk{
				ID:       len(out),
				Content:  piece,
				Category: seg.Category,
				Title:    seg.Title,
				Index:    seg.Index,
				Source:   seg.Source,
				URLs:     slices.Clone(seg.URLs),
			})
		}
	}
	return out
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	spans := s.spans(runes)
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, string(runes[sp.Start:sp.End]))
	}
	return out
}

// SplitSpans returns the rune ranges Split would produce.
// Starts and ends both strictly increase and Start(i+1) <= End(i).
func (s *Splitter) SplitSpans(text string) []Span {
	return s.spans([]rune(text))
}

func (s *Splitter) spans(runes []rune) []Span {
	n := len(runes)
	if n == 0 {
		return nil
	}
	if s.seps == nil {
		s.seps = compileSeparators(s.Separators)
	}

	out := make([]Span, 0, n/max(1, s.ChunkSize-s.Overlap)+1)
	start, prevEnd := 0, 0
	for start < n {
		if n-start <= s.ChunkSize {
			out = append(out, Span{Start: start, End: n})
			break
		}

		end := s.cut(runes, start, prevEnd)
		out = append(out, Span{Start: start, End: end})
		prevEnd = end
		if end >= n {
			break
		}
		start = s.nextStart(runes, start, end)
	}
	return out
}

// cut picks the end of the window beginning at start. The end always lies past
// prevEnd so no chunk sits inside the one before it.
func (s *Splitter) cut(runes []rune, start, prevEnd int) int {
	window := runes[start : start+s.ChunkSize]

	// The strongest separator that still leaves more than the overlap behind.
	for _, sep := range s.seps {
		if at := lastIndex(window, sep.runes); at >= 0 && at+sep.keep > s.Overlap {
			return start + at + sep.keep
		}
	}
	// Any separator inside the overlap that still moves past the previous chunk.
	for _, sep := range s.seps {
		if at := lastIndex(window, sep.runes); at >= 0 && start+at+sep.keep > prevEnd {
			return start + at + sep.keep
		}
	}

	// One indivisible token: emit it whole up to the next whitespace.
	for i := start + s.ChunkSize; i < len(runes); i++ {
		if runes[i] == ' ' || runes[i] == '\n' {
			return i + 1
		}
	}
	return len(runes)
}

func (s *Splitter) nextStart(runes []rune, start, end int) int {
	next := end - s.Overlap
	if next <= start {
		return end
	}
	for p := next; p < end; p++ {
		if isSpace(runes[p-1]) && !isSpace(runes[p]) {
			return p
		}
	}
	return end
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

func lastIndex(haystack, needle []rune) int {
	for i := len(haystack) - len(needle); i >= 0; i-- {
		if slices.Equal(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}
