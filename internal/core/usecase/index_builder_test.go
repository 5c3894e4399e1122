package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

type corpusSourceFake struct {
	corpus domain.Corpus
	err    error
	loads  int
}

func (f *corpusSourceFake) Load(context.Context) (domain.Corpus, error) {
	f.loads++
	return f.corpus, f.err
}

func testCorpus(segments int) domain.Corpus {
	out := domain.Corpus{Documents: []domain.SourceDocument{{Category: "a"}}}
	for i := 0; i < segments; i++ {
		out.Segments = append(out.Segments, domain.Segment{
			Title:    "t",
			Body:     string(rune('a' + i)),
			Index:    i + 1,
			Category: "a",
		})
	}
	return out
}

func testBuilderConfig() IndexBuilderConfig {
	return IndexBuilderConfig{
		Backend:          "local",
		EmbedModel:       "nomic-embed-text",
		ChunkSize:        800,
		ChunkOverlap:     300,
		EmbedBatchSize:   2,
		EmbedConcurrency: 2,
	}
}

func TestIndexBuilderBuildBatchesAndWritesManifest(t *testing.T) {
	embedder := &embedderFake{dimension: 4}
	index := &vectorIndexFake{}
	builder := NewIndexBuilder(&corpusSourceFake{corpus: testCorpus(5)}, lineChunker{}, embedder, index, testBuilderConfig())
	builder.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	manifest, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(embedder.batches) != 3 {
		t.Fatalf("expected 3 embed batches, got %d", len(embedder.batches))
	}
	if manifest.Chunks != 5 || manifest.Dimension != 4 || manifest.Documents != 1 || manifest.Name != domain.IndexName {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
	if index.written == nil || len(index.replaced) != 5 || len(index.vectors) != 5 {
		t.Fatalf("expected full replace, got %+v", index.written)
	}
	for i, chunk := range index.replaced {
		if index.vectors[i][0] != float32(len(chunk.Content)) {
			t.Fatalf("vector %d not aligned with chunk %q", i, chunk.Content)
		}
	}
}

func TestIndexBuilderBuildReportsProgress(t *testing.T) {
	var (
		mu     sync.Mutex
		stages = map[string]IndexProgress{}
	)
	builder := NewIndexBuilder(&corpusSourceFake{corpus: testCorpus(3)}, lineChunker{}, &embedderFake{}, &vectorIndexFake{}, testBuilderConfig()).
		WithProgress(func(p IndexProgress) {
			mu.Lock()
			defer mu.Unlock()
			if p.Done >= stages[p.Stage].Done {
				stages[p.Stage] = p
			}
		})

	if _, err := builder.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := stages[StageEmbed]; got.Done != 3 || got.Total != 3 {
		t.Fatalf("expected embed progress 3/3, got %+v", got)
	}
	if got := stages[StageLoad]; got.Done != 1 {
		t.Fatalf("expected load progress for 1 file, got %+v", got)
	}
	if got := stages[StageWrite]; got.Done != 1 {
		t.Fatalf("expected write progress, got %+v", got)
	}
}

func TestIndexBuilderBuildPropagatesCorpusErrors(t *testing.T) {
	loadErr := domain.WrapError(domain.ErrCorpusUnavailable, "list corpus", errors.New("missing"))
	index := &vectorIndexFake{}
	builder := NewIndexBuilder(&corpusSourceFake{err: loadErr}, lineChunker{}, &embedderFake{}, index, testBuilderConfig())

	_, err := builder.Build(context.Background())
	if !errors.Is(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable, got %v", err)
	}
	if index.written != nil {
		t.Fatalf("index must not be replaced on failure")
	}
}

func TestIndexBuilderBuildEmbeddingFailure(t *testing.T) {
	index := &vectorIndexFake{}
	builder := NewIndexBuilder(&corpusSourceFake{corpus: testCorpus(3)}, lineChunker{}, &embedderFake{err: errors.New("connection refused")}, index, testBuilderConfig())

	_, err := builder.Build(context.Background())
	if !errors.Is(err, domain.ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
	if index.written != nil {
		t.Fatalf("index must not be replaced on failure")
	}
}

func TestIndexBuilderBuildVectorCountMismatch(t *testing.T) {
	builder := NewIndexBuilder(&corpusSourceFake{corpus: testCorpus(2)}, lineChunker{}, &embedderFake{short: true}, &vectorIndexFake{}, testBuilderConfig())

	_, err := builder.Build(context.Background())
	if !errors.Is(err, domain.ErrIndexBuild) {
		t.Fatalf("expected ErrIndexBuild, got %v", err)
	}
}

func TestIndexBuilderBuildReplaceFailure(t *testing.T) {
	builder := NewIndexBuilder(&corpusSourceFake{corpus: testCorpus(1)}, lineChunker{}, &embedderFake{}, &vectorIndexFake{replaceErr: errors.New("disk full")}, testBuilderConfig())

	_, err := builder.Build(context.Background())
	if !errors.Is(err, domain.ErrIndexBuild) {
		t.Fatalf("expected ErrIndexBuild, got %v", err)
	}
}

func TestIndexBuilderLoadOrBuildReusesCompatibleIndex(t *testing.T) {
	source := &corpusSourceFake{corpus: testCorpus(1)}
	index := &vectorIndexFake{manifest: domain.IndexManifest{
		Name:         domain.IndexName,
		EmbedModel:   "nomic-embed-text",
		ChunkSize:    800,
		ChunkOverlap: 300,
		Chunks:       12,
	}}
	builder := NewIndexBuilder(source, lineChunker{}, &embedderFake{}, index, testBuilderConfig())

	manifest, err := builder.LoadOrBuild(context.Background())
	if err != nil {
		t.Fatalf("LoadOrBuild() error = %v", err)
	}
	if manifest.Chunks != 12 || source.loads != 0 {
		t.Fatalf("expected reuse without loading corpus, got manifest=%+v loads=%d", manifest, source.loads)
	}
}

func TestIndexBuilderLoadOrBuildRebuildsStaleOrMissingIndex(t *testing.T) {
	cases := map[string]*vectorIndexFake{
		"missing":        {manifestErr: domain.WrapError(domain.ErrIndexUnavailable, "manifest", errors.New("not found"))},
		"model changed":  {manifest: domain.IndexManifest{EmbedModel: "other", ChunkSize: 800, ChunkOverlap: 300, Chunks: 3}},
		"params changed": {manifest: domain.IndexManifest{EmbedModel: "nomic-embed-text", ChunkSize: 500, ChunkOverlap: 300, Chunks: 3}},
	}
	for name, index := range cases {
		t.Run(name, func(t *testing.T) {
			source := &corpusSourceFake{corpus: testCorpus(2)}
			builder := NewIndexBuilder(source, lineChunker{}, &embedderFake{}, index, testBuilderConfig())

			manifest, err := builder.LoadOrBuild(context.Background())
			if err != nil {
				t.Fatalf("LoadOrBuild() error = %v", err)
			}
			if source.loads != 1 || manifest.Chunks != 2 {
				t.Fatalf("expected rebuild, got loads=%d manifest=%+v", source.loads, manifest)
			}
		})
	}
}
