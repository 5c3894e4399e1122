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

	httpadapter "github.com/kirillkom/campus-assistant/internal/adapters/http"
	"github.com/kirillkom/campus-assistant/internal/bootstrap"
	"github.com/kirillkom/campus-assistant/internal/config"
	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/observability/logging"
	"github.com/kirillkom/campus-assistant/internal/observability/metrics"
	"github.com/kirillkom/campus-assistant/internal/observability/tracing"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New("api", cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: "campus-api",
		Endpoint:    cfg.OTelEndpoint,
		SampleRate:  cfg.OTelSampleRate,
		Enabled:     cfg.OTelEnabled,
	})
	if err != nil {
		slog.Error("tracing_init_failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("tracing_shutdown_failed", "error", err)
		}
	}()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithResilienceObserver(httpMetrics),
		bootstrap.WithTurnObserver(httpMetrics),
	)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	manifest, err := app.Indexer.LoadOrBuild(ctx)
	if err != nil {
		slog.Error("index_unavailable", "error", err, "startup_fatal", domain.IsStartupFatal(err))
		os.Exit(1)
	}
	slog.Info("index_ready", "name", manifest.Name, "chunks", manifest.Chunks, "backend", manifest.Backend)

	routerOpts := []httpadapter.Option{httpadapter.WithMetrics(httpMetrics)}
	if app.Queue != nil {
		routerOpts = append(routerOpts, httpadapter.WithRebuildRequester(app.Queue))
		go func() {
			if err := app.Queue.SubscribeIndexRebuilt(ctx, app.ReloadIndex); err != nil {
				slog.Error("index_rebuilt_subscription_failed", "error", err)
			}
		}()
	}

	router := httpadapter.NewRouter(cfg, app.Chat, app.Corpus, app.Formatter, routerOpts...).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.TurnTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
