package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/campus-assistant/internal/config"
	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

const testSessionID = "5f0c6f0e-8a43-4a8e-9d1e-3f5b1a2c7d10"

type chatServiceFake struct {
	session  *domain.Session
	answer   *domain.Answer
	askErr   error
	getErr   error
	question string
}

func (f *chatServiceFake) Start(_ context.Context) (*domain.Session, error) {
	if f.session == nil {
		f.session = domain.NewSession(testSessionID, time.Unix(0, 0).UTC())
	}
	return f.session, nil
}

func (f *chatServiceFake) Ask(_ context.Context, sessionID, question string) (*domain.Answer, error) {
	f.question = question
	if f.askErr != nil {
		return nil, f.askErr
	}
	if f.answer != nil {
		return f.answer, nil
	}
	return &domain.Answer{SessionID: sessionID, Question: question, Text: "answer"}, nil
}

func (f *chatServiceFake) Reset(ctx context.Context, sessionID string) (*domain.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, _ := f.Start(ctx)
	s.Reset(time.Unix(1, 0).UTC())
	return s, nil
}

func (f *chatServiceFake) History(ctx context.Context, _ string) (*domain.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Start(ctx)
}

type catalogFake struct {
	files []domain.CorpusFile
	err   error
}

func (f *catalogFake) Files(_ context.Context) ([]domain.CorpusFile, error) {
	return f.files, f.err
}

type bracketFormatter struct{}

func (bracketFormatter) Format(raw string) string { return "[" + raw + "]" }

type rebuildFake struct {
	reasons []string
	err     error
}

func (f *rebuildFake) PublishRebuildRequested(_ context.Context, reason string) error {
	f.reasons = append(f.reasons, reason)
	return f.err
}

func newTestHandler(t *testing.T, cfg config.Config, chat *chatServiceFake, opts ...Option) http.Handler {
	t.Helper()
	catalog := &catalogFake{files: []domain.CorpusFile{{Category: "학사", Filename: "학사_수강신청.txt"}}}
	return NewRouter(cfg, chat, catalog, bracketFormatter{}, opts...).Handler()
}

func doJSON(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestCreateSessionReturnsGreeting(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &chatServiceFake{})

	res := doJSON(handler, http.MethodPost, "/v1/sessions", "")
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var got sessionResponse
	if err := json.Unmarshal(res.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != testSessionID {
		t.Fatalf("id = %q, want %q", got.ID, testSessionID)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "["+domain.GreetingMessage+"]" {
		t.Fatalf("expected formatted greeting, got %+v", got.Messages)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected %s header", requestIDHeader)
	}
}

func TestAskReturnsFormattedAnswerWithSources(t *testing.T) {
	chat := &chatServiceFake{answer: &domain.Answer{
		SessionID:      testSessionID,
		Text:           "formatted",
		DepartmentInfo: "학사과(☎061-240-7033)",
		URLs:           []string{"https://www.mmu.ac.kr/a"},
		Sources: []domain.RetrievedChunk{{
			Chunk: domain.Chunk{Category: "학사", Title: "수강신청", Source: "학사_수강신청.txt"},
			Score: 0.9,
		}},
	}}
	handler := newTestHandler(t, config.Config{}, chat)

	res := doJSON(handler, http.MethodPost, "/v1/sessions/"+testSessionID+"/messages", `{"question":"  수강신청 기간은?  "}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var got answerResponse
	if err := json.Unmarshal(res.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Fallback {
		t.Fatalf("unexpected fallback answer")
	}
	if got.Answer != "formatted" || got.DepartmentInfo != "학사과(☎061-240-7033)" {
		t.Fatalf("unexpected answer: %+v", got)
	}
	if len(got.Sources) != 1 || got.Sources[0].Title != "수강신청" {
		t.Fatalf("unexpected sources: %+v", got.Sources)
	}
	if chat.question != "  수강신청 기간은?  " {
		t.Fatalf("question should reach the chat service untouched, got %q", chat.question)
	}
}

func TestAskReturnsFallbackOnServiceFailure(t *testing.T) {
	chat := &chatServiceFake{askErr: domain.WrapError(domain.ErrChatService, "generate", errors.New("boom"))}
	handler := newTestHandler(t, config.Config{}, chat)

	res := doJSON(handler, http.MethodPost, "/v1/sessions/"+testSessionID+"/messages", `{"question":"학식 메뉴"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var got answerResponse
	if err := json.Unmarshal(res.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.Fallback || got.Answer != domain.FallbackMessage {
		t.Fatalf("expected fallback answer, got %+v", got)
	}
}

func TestAskMapsClientErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "missing session", err: domain.ErrSessionNotFound, want: http.StatusNotFound},
		{name: "blank question", err: domain.ErrInvalidInput, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestHandler(t, config.Config{}, &chatServiceFake{askErr: tt.err})
			res := doJSON(handler, http.MethodPost, "/v1/sessions/"+testSessionID+"/messages", `{"question":" x "}`)
			if res.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, res.Code)
			}
		})
	}
}

func TestAskRejectsRequestsOutsideContract(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &chatServiceFake{})

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "empty question", path: "/v1/sessions/" + testSessionID + "/messages", body: `{"question":""}`},
		{name: "missing question", path: "/v1/sessions/" + testSessionID + "/messages", body: `{}`},
		{name: "session id is not a uuid", path: "/v1/sessions/not-a-uuid/messages", body: `{"question":"q"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := doJSON(handler, http.MethodPost, tt.path, tt.body)
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
			}
		})
	}
}

func TestGetSessionNotFound(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &chatServiceFake{getErr: domain.ErrSessionNotFound})

	res := doJSON(handler, http.MethodGet, "/v1/sessions/"+testSessionID, "")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestResetSessionReseedsGreeting(t *testing.T) {
	chat := &chatServiceFake{}
	handler := newTestHandler(t, config.Config{}, chat)
	_, _ = chat.Start(context.Background())
	chat.session.Append(domain.RoleUser, "q", time.Unix(0, 0))
	chat.session.LastDepartmentInfo = "학사과(☎061-240-7033)"

	res := doJSON(handler, http.MethodDelete, "/v1/sessions/"+testSessionID, "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var got sessionResponse
	if err := json.Unmarshal(res.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Messages) != 1 || got.LastDepartmentInfo != "" {
		t.Fatalf("expected a fresh session, got %+v", got)
	}
}

func TestListCorpusFiles(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &chatServiceFake{})

	res := doJSON(handler, http.MethodGet, "/v1/corpus/files", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "학사_수강신청.txt") {
		t.Fatalf("expected corpus file in body, got %s", res.Body.String())
	}
}

func TestRequestRebuild(t *testing.T) {
	t.Run("without queue", func(t *testing.T) {
		handler := newTestHandler(t, config.Config{}, &chatServiceFake{})
		res := doJSON(handler, http.MethodPost, "/v1/index/rebuild", "")
		if res.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", res.Code)
		}
	})

	t.Run("queued", func(t *testing.T) {
		queue := &rebuildFake{}
		handler := newTestHandler(t, config.Config{}, &chatServiceFake{}, WithRebuildRequester(queue))
		res := doJSON(handler, http.MethodPost, "/v1/index/rebuild", "")
		if res.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", res.Code)
		}
		if len(queue.reasons) != 1 || queue.reasons[0] != "api" {
			t.Fatalf("unexpected rebuild requests: %v", queue.reasons)
		}
	})

	t.Run("queue failure", func(t *testing.T) {
		queue := &rebuildFake{err: domain.WrapError(domain.ErrTemporary, "publish", errors.New("nats down"))}
		handler := newTestHandler(t, config.Config{}, &chatServiceFake{}, WithRebuildRequester(queue))
		res := doJSON(handler, http.MethodPost, "/v1/index/rebuild", "")
		if res.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", res.Code)
		}
	})
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("x")), want: http.StatusBadRequest},
		{err: domain.ErrSessionNotFound, want: http.StatusNotFound},
		{err: domain.ErrIndexUnavailable, want: http.StatusServiceUnavailable},
		{err: domain.ErrCorpusUnavailable, want: http.StatusServiceUnavailable},
		{err: domain.ErrEmbeddingService, want: http.StatusBadGateway},
		{err: errors.New("plain"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapErrorToHTTPStatus(tt.err); got != tt.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
