package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/campus-assistant/internal/config"
	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/core/ports"
	"github.com/kirillkom/campus-assistant/internal/core/usecase"
	rediscache "github.com/kirillkom/campus-assistant/internal/infrastructure/cache/redis"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/formatting"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/repository/memory"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/vector/localindex"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/vector/qdrant"
)

var (
	_ ports.ChatService   = (*usecase.ChatUseCase)(nil)
	_ ports.IndexService  = (*usecase.IndexBuilder)(nil)
	_ ports.CorpusCatalog = (*usecase.CorpusLoader)(nil)
	_ ports.RebuildQueue  = (*nats.Queue)(nil)
	_ ports.VectorIndex   = (*localindex.Index)(nil)
	_ ports.VectorIndex   = (*qdrant.Client)(nil)
)

type App struct {
	Config config.Config

	Corpus    *usecase.CorpusLoader
	Indexer   *usecase.IndexBuilder
	Chat      *usecase.ChatUseCase
	Formatter *formatting.Formatter
	Index     ports.VectorIndex

	// Queue is nil when NATS_URL is empty.
	Queue *nats.Queue

	localIndex *localindex.Index
	closeFns   []func()
}

type options struct {
	resilienceObserver resilience.Observer
	turnObserver       usecase.TurnObserver
	withoutQueue       bool
}

type Option func(*options)

func WithResilienceObserver(o resilience.Observer) Option {
	return func(opts *options) {
		opts.resilienceObserver = o
	}
}

func WithTurnObserver(o usecase.TurnObserver) Option {
	return func(opts *options) {
		opts.turnObserver = o
	}
}

// WithoutQueue skips the NATS connection even when NATS_URL is set.
func WithoutQueue() Option {
	return func(opts *options) {
		opts.withoutQueue = true
	}
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	executor := newExecutor(cfg, o.resilienceObserver)

	storage := localfs.New(cfg.DataDir)
	app.Corpus = usecase.NewCorpusLoader(storage, plaintext.NewExtractor(storage))

	llm := ollama.New(cfg.LLMURL, cfg.ChatModel, cfg.EmbeddingModel, ollama.Options{
		APIKey:      cfg.LLMAPIKey,
		Temperature: cfg.ChatTemperature,
		HTTPTimeout: 2 * cfg.LLMTimeout,
		Executor:    executor,
	})

	var embedder ports.Embedder = ollama.NewEmbedder(llm)
	if cfg.EmbedCacheRedisURL != "" {
		rdb, err := rediscache.NewClient(ctx, cfg.EmbedCacheRedisURL)
		if err != nil {
			return nil, fmt.Errorf("init embedding cache: %w", err)
		}
		app.closeFns = append(app.closeFns, func() { _ = rdb.Close() })
		embedder = rediscache.NewEmbeddingCache(embedder, rdb, cfg.EmbeddingModel, cfg.EmbedCacheTTL)
	}

	switch cfg.IndexBackend {
	case config.IndexBackendQdrant:
		app.Index = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, localindex.NewManifestFile(cfg.IndexDir), qdrant.Options{
			Executor: executor,
		})
	default:
		app.localIndex = localindex.New(cfg.IndexDir)
		app.Index = app.localIndex
	}

	app.Indexer = usecase.NewIndexBuilder(app.Corpus, chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap), embedder, app.Index, usecase.IndexBuilderConfig{
		Backend:          cfg.IndexBackend,
		EmbedModel:       cfg.EmbeddingModel,
		ChunkSize:        cfg.ChunkSize,
		ChunkOverlap:     cfg.ChunkOverlap,
		EmbedBatchSize:   cfg.EmbedBatchSize,
		EmbedConcurrency: cfg.EmbedConcurrency,
	})

	store, err := newSessionStore(ctx, cfg, app)
	if err != nil {
		return nil, err
	}

	app.Formatter = formatting.New()
	chatOpts := []usecase.ChatOption{usecase.WithTurnTimeout(cfg.TurnTimeout())}
	if o.turnObserver != nil {
		chatOpts = append(chatOpts, usecase.WithTurnObserver(o.turnObserver))
	}
	app.Chat = usecase.NewChatUseCase(
		store,
		usecase.NewRetriever(embedder, app.Index, cfg.TopK),
		ollama.NewGenerator(llm),
		app.Formatter,
		chatOpts...,
	)

	if cfg.NATSURL != "" && !o.withoutQueue {
		queue, err := nats.New(cfg.NATSURL, nats.Options{
			RebuildSubject:     cfg.NATSRebuildSubject,
			RebuiltSubject:     cfg.NATSRebuiltSubject,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closeFns = append(app.closeFns, queue.Close)
	}

	ok = true
	return app, nil
}

func newExecutor(cfg config.Config, observer resilience.Observer) *resilience.Executor {
	rc := resilience.DefaultConfig()
	rc.AttemptTimeout = cfg.LLMTimeout
	rc.RetryMaxAttempts = cfg.RetryMaxAttempts
	rc.RetryInitialBackoff = cfg.RetryInitialBackoff
	rc.RetryMaxBackoff = cfg.RetryMaxBackoff

	var opts []resilience.Option
	if observer != nil {
		opts = append(opts, resilience.WithObserver(observer))
	}
	return resilience.NewExecutor(rc, opts...)
}

func newSessionStore(ctx context.Context, cfg config.Config, app *App) (ports.SessionStore, error) {
	if cfg.SessionStore != config.SessionStorePostgres {
		return memory.NewSessionStore(), nil
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closeFns = append(app.closeFns, func() { closeDB(db) })

	repo := postgres.NewSessionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("postgres_close_failed", "error", err)
	}
}

// ReloadIndex swaps in a rebuilt local index. Qdrant serves rebuilt collections directly.
func (a *App) ReloadIndex(ctx context.Context, manifest domain.IndexManifest) error {
	if a.localIndex == nil {
		return nil
	}
	if err := a.localIndex.Reload(ctx); err != nil {
		return fmt.Errorf("reload local index: %w", err)
	}
	slog.Info("index_reloaded", "name", manifest.Name, "chunks", manifest.Chunks, "built_at", manifest.BuiltAt)
	return nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
