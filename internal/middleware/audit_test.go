package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cms-api/internal/models"
)

type auditStub struct {
	logs []*models.AuditLog
	err  error
}

func (s *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return s.err
}

func TestAuditRecordsSuccessfulMutations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &auditStub{}
	router := gin.New()
	router.PUT("/notices/:id",
		func(c *gin.Context) {
			c.Set(ContextIdentityKey, &models.Identity{ID: "E5"})
			c.Next()
		},
		Audit(repo, nil, models.AuditActionNoticeUpdate, "notices"),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)
	router.DELETE("/notices/:id",
		Audit(repo, nil, models.AuditActionNoticeDelete, "notices"),
		func(c *gin.Context) { c.Status(http.StatusNotFound) },
	)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/notices/n-1", nil)
	req.Header.Set("User-Agent", "test-agent")
	router.ServeHTTP(w, req)

	require.Len(t, repo.logs, 1)
	entry := repo.logs[0]
	assert.Equal(t, models.AuditActionNoticeUpdate, entry.Action)
	assert.Equal(t, "notices", entry.Resource)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "E5", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "n-1", *entry.ResourceID)
	assert.Equal(t, "test-agent", entry.UserAgent)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.NewValues, &payload))
	assert.Equal(t, "/notices/:id", payload["path"])
	assert.Equal(t, float64(http.StatusOK), payload["status"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/notices/n-2", nil))
	assert.Len(t, repo.logs, 1)
}

func TestAuditFailureDoesNotChangeResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/softwares", Audit(&auditStub{err: errors.New("down")}, nil, models.AuditActionSoftwareCreate, "softwares"),
		func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/softwares", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
}
