package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/doc-feedback/internal/pipeline"
)

// ErrValidation indicates a malformed request
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var reqErr *ErrValidation
	var inputErr *pipeline.ValidationError
	switch {
	case errors.As(err, &reqErr), errors.As(err, &inputErr):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, pipeline.ErrJobNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage hides internal errors from clients
func errorMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
