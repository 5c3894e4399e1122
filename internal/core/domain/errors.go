package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCorpusUnavailable    = errors.New("corpus unavailable")
	ErrNoDocumentsProcessed = errors.New("no documents processed")
	ErrEmbeddingService     = errors.New("embedding service error")
	ErrChatService          = errors.New("chat service error")
	ErrIndexBuild           = errors.New("index build error")
	ErrIndexUnavailable     = errors.New("index unavailable")
	ErrSessionNotFound      = errors.New("session not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrTemporary            = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsStartupFatal reports whether err belongs to the kinds that stop the pipeline before the first turn.
func IsStartupFatal(err error) bool {
	return IsKind(err, ErrCorpusUnavailable) ||
		IsKind(err, ErrNoDocumentsProcessed) ||
		IsKind(err, ErrIndexBuild)
}
