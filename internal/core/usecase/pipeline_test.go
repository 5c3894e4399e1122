package usecase

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/infrastructure/chunking"
)

func TestAdmissionsCorpusFlowsIntoContext(t *testing.T) {
	loader := NewCorpusLoader(
		&storageFake{names: []string{"admissions.txt"}},
		&extractorFake{files: map[string]string{
			"admissions.txt": "Title1\nBody1\n\nTitle2\nBody2\nhttps://x.edu",
		}},
	)
	loaded, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(loaded.Segments))
	}

	chunks := chunking.NewSplitter(800, 300).Chunk(loaded.Segments)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if n := utf8.RuneCountInString(chunk.Content); n > 800 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
	}
	second := chunks[1]
	if len(second.URLs) != 1 || second.URLs[0] != "https://x.edu" {
		t.Fatalf("expected chunk 2 to carry the file URL, got %v", second.URLs)
	}

	index := &vectorIndexFake{results: []domain.RetrievedChunk{{Chunk: second, Score: 0.9}}}
	retriever := NewRetriever(&embedderFake{}, index, domain.DefaultTopK)
	session := domain.NewSession("s1", time.Now())

	result, err := retriever.Retrieve(context.Background(), "입학 안내 링크는?", session)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !strings.HasSuffix(result.Text, "URL_LIST: https://x.edu") {
		t.Fatalf("expected context to end with the URL list, got %q", result.Text)
	}
	if !strings.HasPrefix(result.Text, "Body2\nhttps://x.edu") {
		t.Fatalf("expected chunk 2 body first, got %q", result.Text)
	}
}

func TestDepartmentContactFlowsIntoContext(t *testing.T) {
	loader := NewCorpusLoader(
		&storageFake{names: []string{"scholarship.txt"}},
		&extractorFake{files: map[string]string{
			"scholarship.txt": "장학금 안내\n성적 장학금 신청 방법\n담당부서:   학생지원팀(☎ 061-123-4567)  \n",
		}},
	)
	loaded, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	chunks := chunking.NewSplitter(800, 300).Chunk(loaded.Segments)

	hits := make([]domain.RetrievedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		hits = append(hits, domain.RetrievedChunk{Chunk: chunk})
	}
	session := domain.NewSession("s1", time.Now())
	result := AssembleContext(hits, session)

	if result.DepartmentInfo != "학생지원팀(☎ 061-123-4567)" {
		t.Fatalf("unexpected department info %q", result.DepartmentInfo)
	}
	if !strings.Contains(result.Text, "DEPARTMENT_INFO: 학생지원팀(☎ 061-123-4567)") {
		t.Fatalf("expected department line in context, got %q", result.Text)
	}
	if session.LastDepartmentInfo != result.DepartmentInfo {
		t.Fatalf("expected session to remember department, got %q", session.LastDepartmentInfo)
	}
}
