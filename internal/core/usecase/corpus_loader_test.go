package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

func TestCorpusLoaderLoadParsesFilesInOrder(t *testing.T) {
	loader := NewCorpusLoader(
		&storageFake{names: []string{"admissions.txt", "dorm.txt"}},
		&extractorFake{files: map[string]string{
			"admissions.txt": "Admissions\nApply at https://x.edu",
			"dorm.txt":       "기숙사 신청\n신청 기간 안내\n\n식당\n운영 시간",
		}},
	)

	loaded, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Documents) != 2 || len(loaded.Segments) != 3 {
		t.Fatalf("expected 2 documents and 3 segments, got %d/%d", len(loaded.Documents), len(loaded.Segments))
	}

	first := loaded.Segments[0]
	if first.Category != "admissions" || first.Title != "Admissions" || first.Body != "Apply at https://x.edu" {
		t.Fatalf("unexpected first segment: %+v", first)
	}
	if first.Source != "data/admissions.txt" {
		t.Fatalf("expected source location, got %q", first.Source)
	}
	if len(first.URLs) != 1 || first.URLs[0] != "https://x.edu" {
		t.Fatalf("expected file URL list, got %v", first.URLs)
	}
	if loaded.Segments[2].Index != 2 || loaded.Segments[2].Category != "dorm" {
		t.Fatalf("unexpected last segment: %+v", loaded.Segments[2])
	}
}

func TestCorpusLoaderLoadEmptyDirectory(t *testing.T) {
	loader := NewCorpusLoader(&storageFake{}, &extractorFake{})

	_, err := loader.Load(context.Background())
	if !errors.Is(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable, got %v", err)
	}
}

func TestCorpusLoaderLoadListingFailure(t *testing.T) {
	loader := NewCorpusLoader(&storageFake{err: errors.New("permission denied")}, &extractorFake{})

	_, err := loader.Load(context.Background())
	if !errors.Is(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable, got %v", err)
	}
}

func TestCorpusLoaderLoadReadFailureReturnsNoPartialResult(t *testing.T) {
	loader := NewCorpusLoader(
		&storageFake{names: []string{"a.txt", "broken.txt"}},
		&extractorFake{files: map[string]string{"a.txt": "A\nbody"}},
	)

	loaded, err := loader.Load(context.Background())
	if !errors.Is(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable, got %v", err)
	}
	if len(loaded.Segments) != 0 {
		t.Fatalf("expected no partial segments, got %d", len(loaded.Segments))
	}
}

func TestCorpusLoaderLoadWhitespaceOnlyFiles(t *testing.T) {
	loader := NewCorpusLoader(
		&storageFake{names: []string{"blank.txt"}},
		&extractorFake{files: map[string]string{"blank.txt": "\n\n   \n\n"}},
	)

	_, err := loader.Load(context.Background())
	if !errors.Is(err, domain.ErrNoDocumentsProcessed) {
		t.Fatalf("expected ErrNoDocumentsProcessed, got %v", err)
	}
}

func TestCorpusLoaderFiles(t *testing.T) {
	loader := NewCorpusLoader(&storageFake{names: []string{"a.txt", "b.txt"}}, &extractorFake{})

	files, err := loader.Files(context.Background())
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	if len(files) != 2 || files[0].Category != "a" || files[1].Filename != "b.txt" {
		t.Fatalf("unexpected files: %+v", files)
	}
}
