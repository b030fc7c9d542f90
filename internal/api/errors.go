package api

import (
	"context"
	"errors"
	"net/http"

	"focusift/internal/feedback"
	"focusift/internal/session"
)

// writeSessionError maps controller errors onto HTTP status codes.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidDuration), errors.Is(err, feedback.ErrEmptyTechnique):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrUnknownTechnique):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrTooManyUsers):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, session.ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// controllerFor resolves the signed-in user's controller, writing the error
// response itself when that fails.
func controllerFor(reg *session.Registry, w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	if reg == nil {
		writeError(w, http.StatusServiceUnavailable, "timer unavailable")
		return nil, false
	}
	c, err := reg.Get(GetIdentity(r).ID)
	if err != nil {
		writeSessionError(w, err)
		return nil, false
	}
	return c, true
}
