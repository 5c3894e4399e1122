package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

type storageFake struct {
	names []string
	err   error
}

func (f *storageFake) List(context.Context, string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.names, nil
}

func (f *storageFake) Location(name string) string {
	if name == "" {
		return "data"
	}
	return "data/" + name
}

type extractorFake struct {
	files map[string]string
	err   error
}

func (f *extractorFake) Extract(_ context.Context, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	text, ok := f.files[name]
	if !ok {
		return "", fmt.Errorf("missing file %s", name)
	}
	return text, nil
}

// lineChunker emits one chunk per segment.
type lineChunker struct{}

func (lineChunker) Chunk(segments []domain.Segment) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(segments))
	for _, seg := range segments {
		out = append(out, domain.Chunk{
			ID:       len(out),
			Content:  seg.Body,
			Category: seg.Category,
			Title:    seg.Title,
			Index:    seg.Index,
			Source:   seg.Source,
			URLs:     seg.URLs,
		})
	}
	return out
}

func (lineChunker) Split(text string) []string { return []string{text} }

type embedderFake struct {
	mu        sync.Mutex
	batches   [][]string
	queries   []string
	dimension int
	short     bool
	err       error
	queryErr  error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = f.vector(texts[i])
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queries = append(f.queries, text)
	f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.vector(text), nil
}

func (f *embedderFake) vector(text string) []float32 {
	dim := f.dimension
	if dim == 0 {
		dim = 3
	}
	v := make([]float32, dim)
	v[0] = float32(len(text))
	return v
}

type vectorIndexFake struct {
	manifest    domain.IndexManifest
	manifestErr error
	replaceErr  error
	searchErr   error
	results     []domain.RetrievedChunk

	replaced   []domain.Chunk
	vectors    [][]float32
	written    *domain.IndexManifest
	lastLimit  int
	searchHits int
}

func (f *vectorIndexFake) Replace(_ context.Context, chunks []domain.Chunk, vectors [][]float32, manifest domain.IndexManifest) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced = chunks
	f.vectors = vectors
	f.written = &manifest
	return nil
}

func (f *vectorIndexFake) Search(_ context.Context, _ []float32, limit int) ([]domain.RetrievedChunk, error) {
	f.lastLimit = limit
	f.searchHits++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func (f *vectorIndexFake) Manifest(context.Context) (domain.IndexManifest, error) {
	if f.manifestErr != nil {
		return domain.IndexManifest{}, f.manifestErr
	}
	return f.manifest, nil
}

type generatorFake struct {
	contexts []string
	reply    string
	err      error
}

func (f *generatorFake) Generate(_ context.Context, _ string, contextText string) (string, error) {
	f.contexts = append(f.contexts, contextText)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type upperFormatter struct{}

func (upperFormatter) Format(raw string) string { return strings.ToUpper(raw) }

type sessionStoreFake struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	saveErr  error
	saves    int
}

func newSessionStoreFake() *sessionStoreFake {
	return &sessionStoreFake{sessions: map[string]*domain.Session{}}
}

func (f *sessionStoreFake) Create(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s.Clone()
	return nil
}

func (f *sessionStoreFake) Get(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", errors.New(id))
	}
	return s.Clone(), nil
}

func (f *sessionStoreFake) Save(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.sessions[s.ID] = s.Clone()
	return nil
}

type turnObserverFake struct {
	outcomes []string
	sources  []string
}

func (f *turnObserverFake) ObserveTurn(outcome string, _ time.Duration) {
	f.outcomes = append(f.outcomes, outcome)
}

func (f *turnObserverFake) ObserveRetrieval(_ int, departmentSource string, _ int) {
	f.sources = append(f.sources, departmentSource)
}

func retrieved(content string, urls ...string) domain.RetrievedChunk {
	return domain.RetrievedChunk{Chunk: domain.Chunk{Content: content, URLs: urls}}
}
