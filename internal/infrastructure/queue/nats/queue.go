package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/resilience"
)

// rebuildGroup makes each rebuild request land on exactly one indexer.
const rebuildGroup = "indexers"

type Queue struct {
	conn           *nats.Conn
	rebuildSubject string
	rebuiltSubject string
	executor       *resilience.Executor
}

type Options struct {
	RebuildSubject       string
	RebuiltSubject       string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

type rebuildRequest struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

func New(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	rebuildSubject := options.RebuildSubject
	if rebuildSubject == "" {
		rebuildSubject = "campus.index.rebuild"
	}
	rebuiltSubject := options.RebuiltSubject
	if rebuiltSubject == "" {
		rebuiltSubject = "campus.index.rebuilt"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("campus-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		rebuildSubject: rebuildSubject,
		rebuiltSubject: rebuiltSubject,
		executor:       options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishRebuildRequested(ctx context.Context, reason string) error {
	payload, err := json.Marshal(rebuildRequest{Reason: reason, RequestedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal rebuild request: %w", err)
	}
	return q.publish(ctx, q.rebuildSubject, payload)
}

func (q *Queue) PublishIndexRebuilt(ctx context.Context, manifest domain.IndexManifest) error {
	payload, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal index manifest: %w", err)
	}
	return q.publish(ctx, q.rebuiltSubject, payload)
}

// SubscribeRebuildRequested blocks until ctx is done.
func (q *Queue) SubscribeRebuildRequested(ctx context.Context, handler func(context.Context, string) error) error {
	return q.subscribe(ctx, q.rebuildSubject, rebuildGroup, func(handlerCtx context.Context, data []byte) error {
		reason, err := decodeRebuildRequest(data)
		if err != nil {
			return err
		}
		return handler(handlerCtx, reason)
	})
}

// SubscribeIndexRebuilt blocks until ctx is done. Every subscriber sees every notification.
func (q *Queue) SubscribeIndexRebuilt(ctx context.Context, handler func(context.Context, domain.IndexManifest) error) error {
	return q.subscribe(ctx, q.rebuiltSubject, "", func(handlerCtx context.Context, data []byte) error {
		var manifest domain.IndexManifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			return fmt.Errorf("decode index manifest: %w", err)
		}
		return handler(handlerCtx, manifest)
	})
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (q *Queue) subscribe(ctx context.Context, subject, group string, handle func(context.Context, []byte) error) error {
	callback := func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handle(handlerCtx, msg.Data); err != nil {
			slog.Error("nats_handler_failed", "subject", subject, "error", err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if group != "" {
		sub, err = q.conn.QueueSubscribe(subject, group, callback)
	} else {
		sub, err = q.conn.Subscribe(subject, callback)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// decodeRebuildRequest accepts the JSON envelope or a bare reason string.
func decodeRebuildRequest(data []byte) (string, error) {
	var req rebuildRequest
	if err := json.Unmarshal(data, &req); err != nil {
		if len(data) > 0 && data[0] != '{' {
			return string(data), nil
		}
		return "", fmt.Errorf("decode rebuild request: %w", err)
	}
	return req.Reason, nil
}
