package memory

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

func TestSessionStoreIsolatesCallers(t *testing.T) {
	store := NewSessionStore()
	session := domain.NewSession("s1", time.Now())
	if err := store.Create(context.Background(), session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	session.Append(domain.RoleUser, "not saved", time.Now())

	got, err := store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.ChatHistory) != 1 {
		t.Fatalf("expected stored copy to be unaffected, got %d messages", len(got.ChatHistory))
	}

	got.Append(domain.RoleUser, "saved", time.Now())
	if err := store.Save(context.Background(), got); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	again, _ := store.Get(context.Background(), "s1")
	if len(again.ChatHistory) != 2 || again.ChatHistory[1].Content != "saved" {
		t.Fatalf("unexpected history %+v", again.ChatHistory)
	}
}

func TestSessionStoreNotFound(t *testing.T) {
	store := NewSessionStore()

	if _, err := store.Get(context.Background(), "missing"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.Save(context.Background(), domain.NewSession("missing", time.Now())); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionStoreRejectsDuplicateCreate(t *testing.T) {
	store := NewSessionStore()
	if err := store.Create(context.Background(), domain.NewSession("s1", time.Now())); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(context.Background(), domain.NewSession("s1", time.Now())); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}
}
