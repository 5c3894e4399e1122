package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchSignalsOnceForBurstOfWrites(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := s.Watch(ctx, ".txt", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	for i := range 3 {
		body := []byte("학사 안내 " + string(rune('a'+i)))
		if err := os.WriteFile(filepath.Join(dir, "학사_안내.txt"), body, 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a change signal")
	}

	select {
	case <-changes:
		t.Fatalf("expected writes to coalesce into one signal")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatchIgnoresOtherSuffixes(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := s.Watch(ctx, ".txt", 30*time.Millisecond)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case <-changes:
		t.Fatalf("unexpected signal for non-corpus file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatchClosesOnCancel(t *testing.T) {
	s := New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())

	changes, err := s.Watch(ctx, ".txt", time.Second)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-changes:
		if ok {
			t.Fatalf("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"))
	if _, err := s.Watch(context.Background(), ".txt", time.Second); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
