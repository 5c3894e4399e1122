package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/resilience"
)

const DefaultTemperature = 0.3

type Options struct {
	APIKey      string
	Temperature float64
	HTTPTimeout time.Duration
	Executor    *resilience.Executor
}

type Client struct {
	baseURL     string
	chatModel   string
	embedModel  string
	apiKey      string
	temperature float64
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(baseURL, chatModel, embedModel string, options Options) *Client {
	timeout := options.HTTPTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	temperature := options.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		chatModel:   chatModel,
		embedModel:  embedModel,
		apiKey:      options.APIKey,
		temperature: temperature,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    options.Executor,
	}
}

func (c *Client) EmbedModel() string {
	return c.embedModel
}

// call runs fn under the resilience executor when one is configured.
func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyOllamaError)
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.call(ctx, "ollama.embed", func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingService, "embed", wrapTemporaryIfNeeded("embed", err))
	}
	if len(response.Embeddings) != len(texts) {
		return nil, domain.WrapError(
			domain.ErrEmbeddingService,
			"embed",
			fmt.Errorf("embeddings/texts mismatch: %d/%d", len(response.Embeddings), len(texts)),
		)
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
	prompt *answerPrompt
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client, prompt: newAnswerPrompt()}
}

// Generate renders the answer template and returns the model output unmodified.
func (g *Generator) Generate(ctx context.Context, question, contextText string) (string, error) {
	prompt, err := g.prompt.Render(question, contextText)
	if err != nil {
		return "", domain.WrapError(domain.ErrChatService, "render prompt", err)
	}

	reqBody := map[string]any{
		"model":  g.client.chatModel,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": g.client.temperature,
		},
	}

	var response struct {
		Response string `json:"response"`
	}
	err = g.client.call(ctx, "ollama.generate", func(callCtx context.Context) error {
		return g.client.postJSON(callCtx, "/api/generate", reqBody, &response, "generate")
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrChatService, "generate", wrapTemporaryIfNeeded("generate", err))
	}
	return response.Response, nil
}
