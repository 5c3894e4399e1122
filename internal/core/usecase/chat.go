package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/core/ports"
	"github.com/kirillkom/campus-assistant/internal/observability/tracing"
)

const (
	TurnAnswered = "answered"
	TurnFallback = "fallback"
)

type ContextRetriever interface {
	Retrieve(ctx context.Context, question string, session *domain.Session) (domain.RetrievalContext, error)
}

// TurnObserver receives per-turn outcomes. Metrics implement it.
type TurnObserver interface {
	ObserveTurn(outcome string, duration time.Duration)
	ObserveRetrieval(chunks int, departmentSource string, urls int)
}

type ChatOption func(*ChatUseCase)

func WithTurnObserver(observer TurnObserver) ChatOption {
	return func(uc *ChatUseCase) {
		if observer != nil {
			uc.observer = observer
		}
	}
}

// WithTurnTimeout bounds retrieval and generation for one turn. A turn that
// runs out of time ends in the fallback reply.
func WithTurnTimeout(d time.Duration) ChatOption {
	return func(uc *ChatUseCase) {
		uc.turnTimeout = d
	}
}

type ChatUseCase struct {
	store     ports.SessionStore
	retriever ContextRetriever
	generator ports.AnswerGenerator
	formatter ports.ResponseFormatter
	observer  TurnObserver
	locks     sessionLocks

	turnTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

func NewChatUseCase(
	store ports.SessionStore,
	retriever ContextRetriever,
	generator ports.AnswerGenerator,
	formatter ports.ResponseFormatter,
	opts ...ChatOption,
) *ChatUseCase {
	uc := &ChatUseCase{
		store:     store,
		retriever: retriever,
		generator: generator,
		formatter: formatter,
		observer:  noopTurnObserver{},
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *ChatUseCase) Start(ctx context.Context) (*domain.Session, error) {
	session := domain.NewSession(uc.newID(), uc.now())
	if err := uc.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Ask runs one turn. On failure the fallback message is recorded as the
// assistant reply and the typed error is returned.
func (uc *ChatUseCase) Ask(ctx context.Context, sessionID, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("question is empty"))
	}

	unlock := uc.locks.lock(sessionID)
	defer unlock()

	session, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	session.Append(domain.RoleUser, question, uc.now())

	turnCtx := ctx
	if uc.turnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, uc.turnTimeout)
		defer cancel()
	}
	answer, turnErr := uc.turn(turnCtx, session, question)
	if turnErr != nil {
		slog.Error("chat_turn_failed",
			"session_id", sessionID,
			"error", turnErr,
		)
		session.Append(domain.RoleAssistant, domain.FallbackMessage, uc.now())
		if err := uc.store.Save(ctx, session); err != nil {
			slog.Error("session_save_failed", "session_id", sessionID, "error", err)
		}
		uc.observer.ObserveTurn(TurnFallback, time.Since(started))
		return nil, turnErr
	}

	session.Append(domain.RoleAssistant, answer.Raw, uc.now())
	if err := uc.store.Save(ctx, session); err != nil {
		uc.observer.ObserveTurn(TurnFallback, time.Since(started))
		return nil, fmt.Errorf("save session: %w", err)
	}

	uc.observer.ObserveTurn(TurnAnswered, time.Since(started))
	slog.Info("chat_turn_answered",
		"session_id", sessionID,
		"chunks", len(answer.Sources),
		"urls", len(answer.URLs),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return answer, nil
}

func (uc *ChatUseCase) turn(ctx context.Context, session *domain.Session, question string) (answer *domain.Answer, err error) {
	ctx, span := tracing.Start(ctx, "chat.turn", attribute.String("session_id", session.ID))
	defer func() { tracing.End(span, err) }()

	retrieved, err := uc.retriever.Retrieve(ctx, question, session)
	if err != nil {
		return nil, err
	}
	uc.observer.ObserveRetrieval(len(retrieved.Chunks), retrieved.DepartmentSource, len(retrieved.URLs))

	raw, err := uc.generator.Generate(ctx, question, retrieved.Text)
	if err != nil {
		if domain.IsKind(err, domain.ErrChatService) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrChatService, "generate answer", err)
	}

	return &domain.Answer{
		SessionID:      session.ID,
		Question:       question,
		Raw:            raw,
		Text:           uc.formatter.Format(raw),
		Context:        retrieved.Text,
		DepartmentInfo: retrieved.DepartmentInfo,
		URLs:           retrieved.URLs,
		Sources:        retrieved.Chunks,
	}, nil
}

// Reset clears the history and the remembered department contact.
func (uc *ChatUseCase) Reset(ctx context.Context, sessionID string) (*domain.Session, error) {
	unlock := uc.locks.lock(sessionID)
	defer unlock()

	session, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Reset(uc.now())
	if err := uc.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

func (uc *ChatUseCase) History(ctx context.Context, sessionID string) (*domain.Session, error) {
	return uc.store.Get(ctx, sessionID)
}

type noopTurnObserver struct{}

func (noopTurnObserver) ObserveTurn(string, time.Duration) {}
func (noopTurnObserver) ObserveRetrieval(int, string, int) {}
