package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// mapError translates service and session errors into an HTTP status and code.
func mapError(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrQuizNotFound):
		return http.StatusNotFound, response.ErrQuizNotFound
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, service.ErrNotCompleted):
		return http.StatusConflict, response.ErrReportNotReady
	case errors.Is(err, session.ErrFullscreenDenied):
		return http.StatusPreconditionFailed, response.ErrFullscreenDenied
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict, response.ErrInvalidTransition
	case errors.Is(err, session.ErrStartInProgress):
		return http.StatusConflict, response.ErrStartInProgress
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, response.ErrFullscreenDenied
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
