package ollama

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

	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/resilience"
)

const maxErrorBody = 2048

// StatusError is a non-2xx answer from the model server. Message holds the
// server's {"error": "..."} text when it sent one.
type StatusError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ollama %s: %d %s", e.Operation, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("ollama %s: %d: %s", e.Operation, e.StatusCode, e.Message)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStatusError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func readStatusError(operation string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(raw))

	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
		message = envelope.Error
	}
	return &StatusError{Operation: operation, StatusCode: resp.StatusCode, Message: message}
}

func classifyOllamaError(err error) resilience.ErrorClassification {
	retry := resilience.ErrorClassification{Retryable: true, RecordFailure: true}

	var statusErr *StatusError
	var netErr net.Error
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, resilience.ErrAttemptTimeout), resilience.IsCircuitOpen(err):
		return retry
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case errors.As(err, &statusErr):
		if statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError {
			return retry
		}
		// Unknown model or bad payload: the server itself is healthy.
		return resilience.ErrorClassification{}
	case errors.As(err, &netErr):
		return retry
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyOllamaError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
