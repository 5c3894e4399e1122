package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/resilience"
)

const upsertBatchSize = 256

type manifestStore interface {
	Read(ctx context.Context) (domain.IndexManifest, error)
	Write(manifest domain.IndexManifest) error
	Remove() error
}

type Options struct {
	HTTPTimeout time.Duration
	Executor    *resilience.Executor
}

// Client keeps the chunk vectors in a Qdrant collection reached through an
// alias named collection. The manifest lives beside it in manifests because
// Qdrant has no place for build metadata.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
	manifests  manifestStore
	now        func() time.Time
}

func New(baseURL, collection string, manifests manifestStore, options Options) *Client {
	timeout := options.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
		manifests:  manifests,
		now:        time.Now,
	}
}

// Replace uploads every chunk into a fresh versioned collection and then
// points the alias at it. The live collection is untouched until the alias
// switch, and a failed build drops only the collection it created.
func (c *Client) Replace(ctx context.Context, chunks []domain.Chunk, vectors [][]float32, manifest domain.IndexManifest) error {
	if len(chunks) == 0 || len(chunks) != len(vectors) {
		return domain.WrapError(domain.ErrIndexBuild, "replace qdrant collection",
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	target := fmt.Sprintf("%s_%d", c.collection, c.now().UnixNano())
	if err := c.createCollection(ctx, target, len(vectors[0])); err != nil {
		return domain.WrapError(domain.ErrIndexBuild, "create qdrant collection", err)
	}
	if err := c.upsert(ctx, target, chunks, vectors); err != nil {
		c.dropCollection(context.WithoutCancel(ctx), target)
		return domain.WrapError(domain.ErrIndexBuild, "upsert qdrant points", err)
	}

	previous, err := c.aliasTarget(ctx)
	if err != nil {
		c.dropCollection(context.WithoutCancel(ctx), target)
		return domain.WrapError(domain.ErrIndexBuild, "read qdrant alias", err)
	}
	// The manifest goes first so a half-finished switch forces a rebuild on next start.
	if err := c.manifests.Remove(); err != nil {
		c.dropCollection(context.WithoutCancel(ctx), target)
		return domain.WrapError(domain.ErrIndexBuild, "remove index manifest", err)
	}
	if err := c.switchAlias(ctx, previous, target); err != nil {
		c.dropCollection(context.WithoutCancel(ctx), target)
		return domain.WrapError(domain.ErrIndexBuild, "switch qdrant alias", err)
	}
	if err := c.manifests.Write(manifest); err != nil {
		return domain.WrapError(domain.ErrIndexBuild, "write index manifest", err)
	}
	if previous != "" && previous != target {
		c.dropCollection(ctx, previous)
	}
	return nil
}

func (c *Client) upsert(ctx context.Context, collection string, chunks []domain.Chunk, vectors [][]float32) error {
	type point struct {
		ID      int            `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, collection)
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		points := make([]point, 0, end-start)
		for i := start; i < end; i++ {
			chunk := chunks[i]
			points = append(points, point{
				ID:     i,
				Vector: vectors[i],
				Payload: map[string]any{
					"content":  chunk.Content,
					"category": chunk.Category,
					"title":    chunk.Title,
					"index":    chunk.Index,
					"source":   chunk.Source,
					"urls":     chunk.URLs,
				},
			})
		}
		if err := c.call(ctx, "qdrant.upsert", func(callCtx context.Context) error {
			return c.doJSON(callCtx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert")
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error) {
	if limit <= 0 {
		limit = domain.DefaultTopK
	}

	var searchResp struct {
		Result []struct {
			ID      int            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if err := c.call(ctx, "qdrant.search", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPost, url, reqBody, &searchResp, "search")
	}); err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "search qdrant", err)
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedChunk{
			Chunk: domain.Chunk{
				ID:       r.ID,
				Content:  getStringPayload(r.Payload, "content"),
				Category: getStringPayload(r.Payload, "category"),
				Title:    getStringPayload(r.Payload, "title"),
				Index:    getIntPayload(r.Payload, "index"),
				Source:   getStringPayload(r.Payload, "source"),
				URLs:     getStringsPayload(r.Payload, "urls"),
			},
			Score: r.Score,
		})
	}
	return out, nil
}

func (c *Client) Manifest(ctx context.Context) (domain.IndexManifest, error) {
	return c.manifests.Read(ctx)
}

func (c *Client) createCollection(ctx context.Context, name string, vectorSize int) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)
	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	return c.call(ctx, "qdrant.create_collection", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPut, url, reqBody, nil, "create collection")
	})
}

// dropCollection is best effort; a leftover versioned collection only costs disk.
func (c *Client) dropCollection(ctx context.Context, name string) {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)
	_ = c.call(ctx, "qdrant.delete_collection", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodDelete, url, nil, nil, "delete collection")
	})
}

// aliasTarget returns the collection the alias points at, or "" when there is no alias yet.
func (c *Client) aliasTarget(ctx context.Context) (string, error) {
	var resp struct {
		Result struct {
			Aliases []struct {
				AliasName      string `json:"alias_name"`
				CollectionName string `json:"collection_name"`
			} `json:"aliases"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/aliases", c.baseURL)
	if err := c.call(ctx, "qdrant.list_aliases", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodGet, url, nil, &resp, "list aliases")
	}); err != nil {
		return "", err
	}
	for _, alias := range resp.Result.Aliases {
		if alias.AliasName == c.collection {
			return alias.CollectionName, nil
		}
	}
	return "", nil
}

func (c *Client) switchAlias(ctx context.Context, previous, target string) error {
	if previous == "" {
		// A plain collection under the alias name predates versioned builds.
		url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
		err := c.call(ctx, "qdrant.delete_collection", func(callCtx context.Context) error {
			return c.doJSON(callCtx, http.MethodDelete, url, nil, nil, "delete collection")
		})
		var statusErr *StatusError
		if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound) {
			return err
		}
	}

	actions := make([]map[string]any, 0, 2)
	if previous != "" {
		actions = append(actions, map[string]any{
			"delete_alias": map[string]any{"alias_name": c.collection},
		})
	}
	actions = append(actions, map[string]any{
		"create_alias": map[string]any{"collection_name": target, "alias_name": c.collection},
	})
	url := fmt.Sprintf("%s/collections/aliases", c.baseURL)
	return c.call(ctx, "qdrant.update_aliases", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPost, url, map[string]any{"actions": actions}, nil, "update aliases")
	})
}

func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyQdrantError)
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload any, out any, operation string) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, e.Body)
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	if f, ok := payload[key].(float64); ok {
		return int(f)
	}
	return 0
}

func getStringsPayload(payload map[string]any, key string) []string {
	items, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
