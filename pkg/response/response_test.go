package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/cms-api/pkg/errors"
)

func performError(t *testing.T, err error) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/softwares/s-1/usage", nil)

	Error(c, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestErrorBodyIsStructured(t *testing.T) {
	w, env := performError(t, appErrors.Clone(appErrors.ErrInvariantViolation, "used licenses exceed total"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVARIANT_VIOLATION", env.Error.Code)
	assert.Equal(t, http.StatusBadRequest, env.Error.StatusCode)
	assert.Equal(t, "Bad Request", env.Error.Error)
	assert.Equal(t, []string{"used licenses exceed total"}, env.Error.Message)
	assert.Equal(t, "/api/v1/softwares/s-1/usage", env.Error.Path)
	assert.Equal(t, http.MethodPost, env.Error.Method)
	assert.False(t, env.Error.Timestamp.IsZero())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestErrorBodyHidesInternalCause(t *testing.T) {
	w, env := performError(t, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, []string{"internal server error"}, env.Error.Message)
}

func TestErrorBodyListsValidationFields(t *testing.T) {
	type payload struct {
		Title string `validate:"required"`
		Count int    `validate:"min=1"`
	}
	verr := validator.New().Struct(payload{})
	require.Error(t, verr)

	_, env := performError(t, appErrors.Wrap(verr, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))

	assert.Equal(t, []string{"invalid payload", "Title is required", "Count must be at least 1"}, env.Error.Message)
}
