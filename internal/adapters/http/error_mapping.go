package httpadapter

import (
	"net/http"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrCorpusUnavailable),
		domain.IsKind(err, domain.ErrIndexUnavailable),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrEmbeddingService),
		domain.IsKind(err, domain.ErrChatService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isClientError(err error) bool {
	status := mapErrorToHTTPStatus(err)
	return status >= 400 && status < 500
}
