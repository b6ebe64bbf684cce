package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/privgraph/modelhub/internal/store"
)

// ErrorMessage is the JSON body of every error response.
type ErrorMessage struct {
	Reason string `json:"error"`
}

func newError(code int, reason string, cause error) *echo.HTTPError {
	return echo.NewHTTPError(code, ErrorMessage{Reason: reason}).SetInternal(cause)
}

func badRequest(reason string, cause error) *echo.HTTPError {
	return newError(http.StatusBadRequest, reason, cause)
}

// storeError maps store errors onto HTTP statuses.
func storeError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return newError(http.StatusNotFound, err.Error(), err)
	case errors.Is(err, store.ErrDuplicateVersion), errors.Is(err, store.ErrAlreadyCollaborator):
		return newError(http.StatusConflict, err.Error(), err)
	case errors.Is(err, store.ErrInvalidVersion), errors.Is(err, store.ErrInvalidProject):
		return newError(http.StatusBadRequest, err.Error(), err)
	}
	return newError(http.StatusInternalServerError, "internal error", err)
}
