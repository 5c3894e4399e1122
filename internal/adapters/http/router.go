package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/campus-assistant/internal/config"
	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/core/ports"
)

const maxRequestBodyBytes = 64 << 10

// RebuildRequester queues an index rebuild for the indexer process.
type RebuildRequester interface {
	PublishRebuildRequested(ctx context.Context, reason string) error
}

type httpMetrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type Option func(*Router)

func WithMetrics(m httpMetrics) Option {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func WithRebuildRequester(r RebuildRequester) Option {
	return func(rt *Router) {
		rt.rebuild = r
	}
}

type Router struct {
	chat      ports.ChatService
	catalog   ports.CorpusCatalog
	formatter ports.ResponseFormatter
	rebuild   RebuildRequester
	metrics   httpMetrics

	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
}

func NewRouter(
	cfg config.Config,
	chat ports.ChatService,
	catalog ports.CorpusCatalog,
	formatter ports.ResponseFormatter,
	opts ...Option,
) *Router {
	rt := &Router{
		chat:             chat,
		catalog:          catalog,
		formatter:        formatter,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: cfg.APIBackpressureWait,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Handler panics if the embedded OpenAPI document is invalid.
func (rt *Router) Handler() http.Handler {
	_, contract, err := loadOpenAPI()
	if err != nil {
		panic(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/sessions", rt.createSession)
	mux.HandleFunc("GET /v1/sessions/{sessionId}", rt.getSession)
	mux.HandleFunc("DELETE /v1/sessions/{sessionId}", rt.resetSession)
	mux.HandleFunc("POST /v1/sessions/{sessionId}/messages", rt.askQuestion)
	mux.HandleFunc("GET /v1/corpus/files", rt.listCorpusFiles)
	mux.HandleFunc("POST /v1/index/rebuild", rt.requestRebuild)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = openAPIValidationMiddleware(mux, contract)
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.backpressureWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type messageResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	ID                 string            `json:"id"`
	Messages           []messageResponse `json:"messages"`
	LastDepartmentInfo string            `json:"last_department_info,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

type sourceResponse struct {
	Category string  `json:"category"`
	Title    string  `json:"title"`
	Source   string  `json:"source"`
	Score    float64 `json:"score"`
}

type answerResponse struct {
	SessionID      string           `json:"session_id"`
	Answer         string           `json:"answer"`
	DepartmentInfo string           `json:"department_info,omitempty"`
	URLs           []string         `json:"urls"`
	Sources        []sourceResponse `json:"sources"`
	Fallback       bool             `json:"fallback"`
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	session, err := rt.chat.Start(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt.toSessionResponse(session))
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := bindSessionID(w, r)
	if !ok {
		return
	}
	session, err := rt.chat.History(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.toSessionResponse(session))
}

func (rt *Router) resetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := bindSessionID(w, r)
	if !ok {
		return
	}
	session, err := rt.chat.Reset(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.toSessionResponse(session))
}

func (rt *Router) askQuestion(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := bindSessionID(w, r)
	if !ok {
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	answer, err := rt.chat.Ask(r.Context(), sessionID, req.Question)
	if err != nil {
		if isClientError(err) {
			writeDomainError(w, r, err)
			return
		}
		// The turn failed after the question was recorded; the session already holds the fallback.
		writeJSON(w, http.StatusOK, answerResponse{
			SessionID: sessionID,
			Answer:    domain.FallbackMessage,
			URLs:      []string{},
			Sources:   []sourceResponse{},
			Fallback:  true,
		})
		return
	}

	sources := make([]sourceResponse, 0, len(answer.Sources))
	for _, s := range answer.Sources {
		sources = append(sources, sourceResponse{
			Category: s.Chunk.Category,
			Title:    s.Chunk.Title,
			Source:   s.Chunk.Source,
			Score:    s.Score,
		})
	}
	urls := answer.URLs
	if urls == nil {
		urls = []string{}
	}
	writeJSON(w, http.StatusOK, answerResponse{
		SessionID:      answer.SessionID,
		Answer:         answer.Text,
		DepartmentInfo: answer.DepartmentInfo,
		URLs:           urls,
		Sources:        sources,
	})
}

func (rt *Router) listCorpusFiles(w http.ResponseWriter, r *http.Request) {
	files, err := rt.catalog.Files(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (rt *Router) requestRebuild(w http.ResponseWriter, r *http.Request) {
	if rt.rebuild == nil {
		writeError(w, http.StatusServiceUnavailable, "index rebuild queue is not configured")
		return
	}
	if err := rt.rebuild.PublishRebuildRequested(r.Context(), "api"); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (rt *Router) toSessionResponse(session *domain.Session) sessionResponse {
	messages := make([]messageResponse, 0, len(session.ChatHistory))
	for _, msg := range session.ChatHistory {
		content := msg.Content
		if msg.Role == domain.RoleAssistant {
			content = rt.formatter.Format(content)
		}
		messages = append(messages, messageResponse{
			Role:      msg.Role,
			Content:   content,
			CreatedAt: msg.CreatedAt,
		})
	}
	return sessionResponse{
		ID:                 session.ID,
		Messages:           messages,
		LastDepartmentInfo: session.LastDepartmentInfo,
		CreatedAt:          session.CreatedAt,
		UpdatedAt:          session.UpdatedAt,
	}
}

func bindSessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var sessionID uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "sessionId", r.PathValue("sessionId"), &sessionID, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sessionId: "+err.Error())
		return "", false
	}
	return sessionID.String(), true
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
