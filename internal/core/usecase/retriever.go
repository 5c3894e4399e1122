package usecase

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/core/ports"
	"github.com/kirillkom/campus-assistant/internal/observability/tracing"
)

// departmentPattern matches "담당부서" followed on the same line by a name and a
// parenthesised phone number such as "(☎ 061-123-4567)" or "(☎ 240-7123)".
var departmentPattern = regexp.MustCompile(`담당부서[^\n]*?([^()\n:：]+\(☎[ \t]*\d{2,4}(?:-\d{3,4}){1,2}\))`)

type Retriever struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	topK     int
}

func NewRetriever(embedder ports.Embedder, index ports.VectorIndex, topK int) *Retriever {
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		topK:     topK,
	}
}

// Retrieve searches the index for question and assembles the grounded context.
// A department contact found in the results is written back to session.
func (r *Retriever) Retrieve(ctx context.Context, question string, session *domain.Session) (result domain.RetrievalContext, err error) {
	ctx, span := tracing.Start(ctx, "retriever.retrieve", attribute.Int("top_k", r.topK))
	defer func() { tracing.End(span, err) }()

	queryVector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		if domain.IsKind(err, domain.ErrEmbeddingService) {
			return domain.RetrievalContext{}, err
		}
		return domain.RetrievalContext{}, domain.WrapError(domain.ErrEmbeddingService, "embed question", err)
	}

	chunks, err := r.index.Search(ctx, queryVector, r.topK)
	if err != nil {
		if domain.IsKind(err, domain.ErrIndexUnavailable) {
			return domain.RetrievalContext{}, err
		}
		return domain.RetrievalContext{}, domain.WrapError(domain.ErrIndexUnavailable, "search index", err)
	}

	result = AssembleContext(chunks, session)
	span.SetAttributes(
		attribute.Int("retrieved_chunks", len(result.Chunks)),
		attribute.String("department_source", result.DepartmentSource),
		attribute.Int("urls", len(result.URLs)),
	)
	return result, nil
}

// AssembleContext builds the prompt context from ranked chunks. The first
// department match in rank order wins and is remembered on session; without a
// match the session's last known department is used.
func AssembleContext(chunks []domain.RetrievedChunk, session *domain.Session) domain.RetrievalContext {
	var (
		rawURLs    []string
		department string
		source     = domain.DepartmentNone
	)

	for _, rc := range chunks {
		rawURLs = append(rawURLs, rc.Chunk.URLs...)
		if department != "" {
			continue
		}
		if match := departmentPattern.FindStringSubmatch(rc.Chunk.Content); match != nil {
			department = strings.TrimSpace(match[1])
			source = domain.DepartmentFromChunks
		}
	}

	if department != "" {
		if session != nil {
			session.LastDepartmentInfo = department
		}
	} else if session != nil && session.LastDepartmentInfo != "" {
		department = session.LastDepartmentInfo
		source = domain.DepartmentFromSession
	}

	urls := dedupe(rawURLs)

	contents := make([]string, 0, len(chunks))
	for _, rc := range chunks {
		contents = append(contents, rc.Chunk.Content)
	}

	var text strings.Builder
	text.WriteString(strings.Join(contents, "\n\n"))
	if department != "" {
		text.WriteString("\n\nDEPARTMENT_INFO: ")
		text.WriteString(department)
	}
	if len(urls) > 0 {
		text.WriteString("\n\nURL_LIST: ")
		text.WriteString(strings.Join(urls, "\n"))
	}

	return domain.RetrievalContext{
		Text:             text.String(),
		DepartmentInfo:   department,
		DepartmentSource: source,
		URLs:             urls,
		Chunks:           chunks,
	}
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
