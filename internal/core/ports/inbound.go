package ports

import (
	"context"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

// ChatService is the inbound contract for one conversational turn and session lifecycle.
type ChatService interface {
	Start(ctx context.Context) (*domain.Session, error)
	Ask(ctx context.Context, sessionID, question string) (*domain.Answer, error)
	Reset(ctx context.Context, sessionID string) (*domain.Session, error)
	History(ctx context.Context, sessionID string) (*domain.Session, error)
}

// IndexService builds, reuses and describes the persisted vector index.
type IndexService interface {
	Build(ctx context.Context) (domain.IndexManifest, error)
	LoadOrBuild(ctx context.Context) (domain.IndexManifest, error)
}

// CorpusCatalog lists the discovered corpus files.
type CorpusCatalog interface {
	Files(ctx context.Context) ([]domain.CorpusFile, error)
}
