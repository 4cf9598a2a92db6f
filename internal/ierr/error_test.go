package ierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	t.Run("keeps typed errors", func(t *testing.T) {
		err := fmt.Errorf("wrapped: %w", New(ErrorCodeNotFound, errors.New("no such request")))

		result := From(err)

		assert.Equal(t, ErrorCodeNotFound, result.Code)
		assert.Equal(t, "no such request", result.Message)
	})

	t.Run("hides unknown causes", func(t *testing.T) {
		cause := errors.New("connection refused")

		result := From(cause)

		assert.Equal(t, ErrorCodeInternal, result.Code)
		assert.Equal(t, "Internal Server Error", result.Message)
		assert.ErrorIs(t, result, cause)
	})
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrorCodeInvalidArgument))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(ErrorCodeUnauthenticated))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(ErrorCodePermissionDenied))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(ErrorCodeInternal))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus("Unknown"))
}
