package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundCarriesKindAndID(t *testing.T) {
	err := NotFound("notice", "n-1")
	assert.Equal(t, "notice not found: n-1", err.Message)
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))
}

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Clone(ErrInvariantViolation, "used exceeds total"))
	appErr := FromError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInvariantViolation.Code, appErr.Code)
	assert.Equal(t, "used exceeds total", appErr.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)
	assert.Nil(t, FromError(nil))
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrUnauthorized, "invalid token")
	assert.Equal(t, "unauthorized", ErrUnauthorized.Message)
	assert.Equal(t, "invalid token", clone.Error())
}
