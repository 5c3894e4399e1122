package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

type observerFake struct {
	retries []int
	states  []string
}

func (o *observerFake) ObserveRetry(_ string, attempt int) { o.retries = append(o.retries, attempt) }
func (o *observerFake) ObserveBreakerState(_ string, state string) {
	o.states = append(o.states, state)
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	observer := &observerFake{}
	exec := NewExecutor(fastConfig(), WithObserver(observer))

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "embed", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(observer.retries) != 2 {
		t.Fatalf("expected 2 observed retries, got %v", observer.retries)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "chat", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteRetriesExpiredAttempt(t *testing.T) {
	cfg := fastConfig()
	cfg.AttemptTimeout = 5 * time.Millisecond
	exec := NewExecutor(cfg)

	attempts := 0
	err := exec.Execute(context.Background(), "chat", func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}, func(error) ErrorClassification {
		// Adapters treat a deadline as final; the executor must still retry its own timeout.
		return ErrorClassification{}
	})
	if err != nil {
		t.Fatalf("expected success after timed out attempt, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestExecuteReportsAttemptTimeoutWhenExhausted(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 2
	cfg.AttemptTimeout = 2 * time.Millisecond
	exec := NewExecutor(cfg)

	err := exec.Execute(context.Background(), "embed", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	if !errors.Is(err, ErrAttemptTimeout) {
		t.Fatalf("expected ErrAttemptTimeout, got %v", err)
	}
}

func TestExecuteStopsWhenParentContextCancelled(t *testing.T) {
	exec := NewExecutor(fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Execute(ctx, "embed", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatalf("operation must not run with a cancelled context")
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	observer := &observerFake{}
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}, WithObserver(observer))

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !IsCircuitOpen(err) {
		t.Fatalf("IsCircuitOpen() = false for %v", err)
	}
	if len(observer.states) == 0 || observer.states[0] != "open" {
		t.Fatalf("expected open state observed, got %v", observer.states)
	}
}
