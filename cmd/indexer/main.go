package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/campus-assistant/internal/bootstrap"
	"github.com/kirillkom/campus-assistant/internal/config"
	"github.com/kirillkom/campus-assistant/internal/core/corpus"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/campus-assistant/internal/observability/logging"
	"github.com/kirillkom/campus-assistant/internal/observability/metrics"
	"github.com/kirillkom/campus-assistant/internal/observability/tracing"
)

const (
	triggerStartup = "startup"
	triggerQueue   = "queue"
	triggerWatch   = "watch"

	watchDebounce = 2 * time.Second
	buildTimeout  = 30 * time.Minute
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New("indexer", cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: "campus-indexer",
		Endpoint:    cfg.OTelEndpoint,
		SampleRate:  cfg.OTelSampleRate,
		Enabled:     cfg.OTelEnabled,
	})
	if err != nil {
		slog.Error("tracing_init_failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	indexerMetrics := metrics.NewIndexerMetrics("indexer")
	app, err := bootstrap.New(ctx, cfg, bootstrap.WithResilienceObserver(indexerMetrics))
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := startMetricsServer(cfg.WorkerMetricsPort, indexerMetrics.Handler())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	r := &runner{app: app, metrics: indexerMetrics}
	if err := r.build(ctx, triggerStartup, false); err != nil {
		slog.Error("initial_index_build_failed", "error", err)
		os.Exit(1)
	}

	triggers := make(chan string, 1)
	request := func(trigger string) {
		select {
		case triggers <- trigger:
		default:
			slog.Debug("index_rebuild_coalesced", "trigger", trigger)
		}
	}

	if app.Queue != nil {
		go func() {
			slog.Info("indexer_subscribed", "subject", cfg.NATSRebuildSubject)
			err := app.Queue.SubscribeRebuildRequested(ctx, func(_ context.Context, reason string) error {
				slog.Info("index_rebuild_requested", "reason", reason)
				request(triggerQueue)
				return nil
			})
			if err != nil {
				slog.Error("rebuild_subscription_failed", "error", err)
				stop()
			}
		}()
	}

	if cfg.IndexWatch {
		changes, err := localfs.New(cfg.DataDir).Watch(ctx, corpus.FileSuffix, watchDebounce)
		if err != nil {
			slog.Error("corpus_watch_failed", "error", err)
			os.Exit(1)
		}
		go func() {
			for range changes {
				request(triggerWatch)
			}
		}()
		slog.Info("corpus_watch_started", "dir", cfg.DataDir)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("indexer_stopped")
			return
		case trigger := <-triggers:
			if err := r.build(ctx, trigger, true); err != nil {
				slog.Error("index_rebuild_failed", "trigger", trigger, "error", err)
			}
		}
	}
}

type runner struct {
	app     *bootstrap.App
	metrics *metrics.IndexerMetrics
}

// build runs one full build. Startup reuses a compatible index; other triggers always rebuild.
func (r *runner) build(ctx context.Context, trigger string, force bool) error {
	buildCtx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	r.metrics.StartBuild()
	start := time.Now()

	run := r.app.Indexer.LoadOrBuild
	if force {
		run = r.app.Indexer.Build
	}
	result, err := run(buildCtx)
	r.metrics.FinishBuild(trigger, time.Since(start), result.Chunks, err)
	if err != nil {
		return err
	}

	if r.app.Queue != nil {
		if err := r.app.Queue.PublishIndexRebuilt(ctx, result); err != nil {
			slog.Warn("index_rebuilt_publish_failed", "error", err)
		}
	}
	return nil
}

func startMetricsServer(port string, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("indexer_metrics_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("indexer_metrics_server_failed", "error", err)
		}
	}()
	return server
}
