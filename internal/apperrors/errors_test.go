package apperrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundCarriesResourceAndID(t *testing.T) {
	err := NotFound("pipeline", "p1")
	assert.Equal(t, CodeNotFound, err.Code)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
	assert.Equal(t, "pipeline", err.Details["resource"])
	assert.Equal(t, "p1", err.Details["id"])
}

func TestWrapPreservesCauseViaUnwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	wrapped := Wrap(CodeRepositorySave, "save failed", http.StatusInternalServerError, cause)

	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "save failed")
	assert.Contains(t, wrapped.Error(), "underlying failure")
}

func TestWithDetailsChains(t *testing.T) {
	err := New(CodeValidation, "bad input", http.StatusBadRequest).
		WithDetails("field", "name").
		WithDetails("reason", "required")

	assert.Equal(t, "name", err.Details["field"])
	assert.Equal(t, "required", err.Details["reason"])
}

func TestCircularDependencyCarriesCycleDetails(t *testing.T) {
	cycle := []string{"a", "b", "c"}
	err := CircularDependency(cycle, [][]string{cycle})
	assert.Equal(t, CodeCircularDependency, err.Code)
	assert.Equal(t, cycle, err.Details["cycle"])
}
