package httpadapter

import (
	"net/http"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
)

var statusByKind = map[error]int{
	domain.ErrInvalidInput:     http.StatusBadRequest,
	domain.ErrVideoNotFound:    http.StatusNotFound,
	domain.ErrIngestInProgress: http.StatusConflict,
	domain.ErrTemporary:        http.StatusServiceUnavailable,
}

func mapErrorToHTTPStatus(err error) int {
	if status, ok := statusByKind[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
