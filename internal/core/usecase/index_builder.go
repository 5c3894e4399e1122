package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/core/ports"
)

const (
	StageLoad  = "load"
	StageEmbed = "embed"
	StageWrite = "write"

	defaultEmbedBatchSize   = 32
	defaultEmbedConcurrency = 2
)

// IndexProgress is reported while a build runs. Done and Total count files for
// the load stage and chunks for the embed stage.
type IndexProgress struct {
	Stage string
	Done  int
	Total int
}

type corpusSource interface {
	Load(ctx context.Context) (domain.Corpus, error)
}

type IndexBuilderConfig struct {
	Backend          string
	EmbedModel       string
	ChunkSize        int
	ChunkOverlap     int
	EmbedBatchSize   int
	EmbedConcurrency int
	Progress         func(IndexProgress)
}

type IndexBuilder struct {
	corpus   corpusSource
	chunker  ports.Chunker
	embedder ports.Embedder
	index    ports.VectorIndex
	cfg      IndexBuilderConfig
	now      func() time.Time

	progressMu sync.Mutex
}

func NewIndexBuilder(
	corpus corpusSource,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	cfg IndexBuilderConfig,
) *IndexBuilder {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = defaultEmbedBatchSize
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = defaultEmbedConcurrency
	}
	return &IndexBuilder{
		corpus:   corpus,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithProgress returns a copy of the builder that reports to fn.
func (b *IndexBuilder) WithProgress(fn func(IndexProgress)) *IndexBuilder {
	cfg := b.cfg
	cfg.Progress = fn
	return &IndexBuilder{
		corpus:   b.corpus,
		chunker:  b.chunker,
		embedder: b.embedder,
		index:    b.index,
		cfg:      cfg,
		now:      b.now,
	}
}

// LoadOrBuild reuses the persisted index when its manifest matches the current
// embedding model and chunk parameters.
func (b *IndexBuilder) LoadOrBuild(ctx context.Context) (domain.IndexManifest, error) {
	manifest, err := b.index.Manifest(ctx)
	switch {
	case err == nil && manifest.Compatible(b.cfg.EmbedModel, b.cfg.ChunkSize, b.cfg.ChunkOverlap):
		slog.Info("index_reused",
			"name", manifest.Name,
			"chunks", manifest.Chunks,
			"built_at", manifest.BuiltAt,
		)
		return manifest, nil
	case err == nil:
		slog.Info("index_stale",
			"embed_model", manifest.EmbedModel,
			"chunk_size", manifest.ChunkSize,
			"chunk_overlap", manifest.ChunkOverlap,
		)
	case !domain.IsKind(err, domain.ErrIndexUnavailable):
		slog.Warn("index_manifest_unreadable", "error", err)
	}
	return b.Build(ctx)
}

// Build runs load, chunk, embed and replace. The previous index stays in place on failure.
func (b *IndexBuilder) Build(ctx context.Context) (domain.IndexManifest, error) {
	started := time.Now()

	loaded, err := b.corpus.Load(ctx)
	if err != nil {
		return domain.IndexManifest{}, err
	}
	b.report(IndexProgress{Stage: StageLoad, Done: len(loaded.Documents), Total: len(loaded.Documents)})

	chunks := b.chunker.Chunk(loaded.Segments)
	if len(chunks) == 0 {
		return domain.IndexManifest{}, domain.WrapError(domain.ErrIndexBuild, "build index", errors.New("no chunks to index"))
	}

	vectors, err := b.embedAll(ctx, chunks)
	if err != nil {
		return domain.IndexManifest{}, err
	}

	dimension, err := vectorDimension(vectors, len(chunks))
	if err != nil {
		return domain.IndexManifest{}, domain.WrapError(domain.ErrIndexBuild, "build index", err)
	}

	manifest := domain.IndexManifest{
		Name:         domain.IndexName,
		Backend:      b.cfg.Backend,
		EmbedModel:   b.cfg.EmbedModel,
		Dimension:    dimension,
		Chunks:       len(chunks),
		Documents:    len(loaded.Documents),
		ChunkSize:    b.cfg.ChunkSize,
		ChunkOverlap: b.cfg.ChunkOverlap,
		BuiltAt:      b.now(),
	}

	b.report(IndexProgress{Stage: StageWrite, Done: 0, Total: 1})
	if err := b.index.Replace(ctx, chunks, vectors, manifest); err != nil {
		if domain.IsKind(err, domain.ErrIndexBuild) {
			return domain.IndexManifest{}, err
		}
		return domain.IndexManifest{}, domain.WrapError(domain.ErrIndexBuild, "replace index", err)
	}
	b.report(IndexProgress{Stage: StageWrite, Done: 1, Total: 1})

	slog.Info("index_build_finished",
		"documents", manifest.Documents,
		"chunks", manifest.Chunks,
		"dimension", manifest.Dimension,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return manifest, nil
}

func (b *IndexBuilder) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	var (
		doneMu sync.Mutex
		done   int
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(b.cfg.EmbedConcurrency)

	for start := 0; start < len(chunks); start += b.cfg.EmbedBatchSize {
		end := min(start+b.cfg.EmbedBatchSize, len(chunks))
		group.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, chunk := range chunks[start:end] {
				texts = append(texts, chunk.Content)
			}

			batch, err := b.embedder.Embed(groupCtx, texts)
			if err != nil {
				if domain.IsKind(err, domain.ErrEmbeddingService) {
					return err
				}
				return domain.WrapError(domain.ErrEmbeddingService, "embed chunks", err)
			}
			if len(batch) != len(texts) {
				return domain.WrapError(
					domain.ErrIndexBuild,
					"embed chunks",
					fmt.Errorf("embedding count mismatch: got %d vectors for %d chunks", len(batch), len(texts)),
				)
			}
			copy(vectors[start:end], batch)

			doneMu.Lock()
			done += len(texts)
			current := done
			doneMu.Unlock()
			b.report(IndexProgress{Stage: StageEmbed, Done: current, Total: len(chunks)})
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (b *IndexBuilder) report(p IndexProgress) {
	if b.cfg.Progress == nil {
		return
	}
	b.progressMu.Lock()
	defer b.progressMu.Unlock()
	b.cfg.Progress(p)
}

func vectorDimension(vectors [][]float32, expected int) (int, error) {
	if len(vectors) != expected {
		return 0, fmt.Errorf("vector count mismatch: got %d for %d chunks", len(vectors), expected)
	}
	dimension := len(vectors[0])
	if dimension == 0 {
		return 0, errors.New("empty embedding vector")
	}
	for i, vector := range vectors {
		if len(vector) != dimension {
			return 0, fmt.Errorf("vector %d has dimension %d, expected %d", i, len(vector), dimension)
		}
	}
	return dimension, nil
}
