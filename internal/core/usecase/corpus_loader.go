package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/campus-assistant/internal/core/corpus"
	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/core/ports"
)

type CorpusLoader struct {
	storage   ports.CorpusStorage
	extractor ports.TextExtractor
}

func NewCorpusLoader(storage ports.CorpusStorage, extractor ports.TextExtractor) *CorpusLoader {
	return &CorpusLoader{
		storage:   storage,
		extractor: extractor,
	}
}

// Load reads every *.txt file in filename order. Any read failure aborts the whole load.
func (l *CorpusLoader) Load(ctx context.Context) (domain.Corpus, error) {
	names, err := l.list(ctx)
	if err != nil {
		return domain.Corpus{}, err
	}

	out := domain.Corpus{
		Documents: make([]domain.SourceDocument, 0, len(names)),
	}
	for _, name := range names {
		text, err := l.extractor.Extract(ctx, name)
		if err != nil {
			slog.Error("corpus_file_read_failed", "file", l.storage.Location(name), "error", err)
			return domain.Corpus{}, domain.WrapError(domain.ErrCorpusUnavailable, "load corpus", err)
		}

		doc := corpus.NewSourceDocument(corpus.CategoryFromFilename(name), l.storage.Location(name), text)
		out.Documents = append(out.Documents, doc)
		out.Segments = append(out.Segments, corpus.Segments(doc)...)
	}

	if len(out.Segments) == 0 {
		return domain.Corpus{}, domain.WrapError(
			domain.ErrNoDocumentsProcessed,
			"load corpus",
			fmt.Errorf("%d files produced no segments", len(names)),
		)
	}

	slog.Info("corpus_loaded", "files", len(out.Documents), "segments", len(out.Segments))
	return out, nil
}

// Files lists the discovered categories without reading file contents.
func (l *CorpusLoader) Files(ctx context.Context) ([]domain.CorpusFile, error) {
	names, err := l.list(ctx)
	if err != nil {
		return nil, err
	}

	files := make([]domain.CorpusFile, 0, len(names))
	for _, name := range names {
		files = append(files, domain.CorpusFile{
			Category: corpus.CategoryFromFilename(name),
			Filename: name,
		})
	}
	return files, nil
}

func (l *CorpusLoader) list(ctx context.Context) ([]string, error) {
	names, err := l.storage.List(ctx, corpus.FileSuffix)
	if err != nil {
		slog.Error("corpus_list_failed", "location", l.storage.Location(""), "error", err)
		return nil, domain.WrapError(domain.ErrCorpusUnavailable, "list corpus", err)
	}
	if len(names) == 0 {
		return nil, domain.WrapError(
			domain.ErrCorpusUnavailable,
			"list corpus",
			errors.New("no *.txt files found in "+l.storage.Location("")),
		)
	}
	return names, nil
}
