package ports

import (
	"context"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

// CorpusStorage lists and opens raw corpus files.
type CorpusStorage interface {
	List(ctx context.Context, suffix string) ([]string, error)
	Location(name string) string
}

// TextExtractor reads a corpus file as UTF-8 text.
type TextExtractor interface {
	Extract(ctx context.Context, name string) (string, error)
}

// Chunker bounds segment bodies to overlapping chunks.
type Chunker interface {
	Chunk(segments []domain.Segment) []domain.Chunk
	Split(text string) []string
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the opaque nearest-neighbour collaborator.
// Replace swaps the whole index; there is no incremental update.
type VectorIndex interface {
	Replace(ctx context.Context, chunks []domain.Chunk, vectors [][]float32, manifest domain.IndexManifest) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error)
	Manifest(ctx context.Context) (domain.IndexManifest, error)
}

// AnswerGenerator renders the prompt and calls the chat-completion service.
type AnswerGenerator interface {
	Generate(ctx context.Context, question, contextText string) (string, error)
}

// ResponseFormatter reflows generated text for display.
type ResponseFormatter interface {
	Format(raw string) string
}

// SessionStore persists sessions keyed by id.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
}

// RebuildQueue publishes and consumes index rebuild events.
type RebuildQueue interface {
	PublishRebuildRequested(ctx context.Context, reason string) error
	SubscribeRebuildRequested(ctx context.Context, handler func(context.Context, string) error) error
	PublishIndexRebuilt(ctx context.Context, manifest domain.IndexManifest) error
	SubscribeIndexRebuilt(ctx context.Context, handler func(context.Context, domain.IndexManifest) error) error
}
