package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cms-api/internal/models"
	"github.com/noah-isme/cms-api/internal/service"
	"github.com/noah-isme/cms-api/pkg/response"
)

type authService interface {
	Me(identity *models.Identity) (*models.Identity, error)
	RecordSession(ctx context.Context, identity *models.Identity, meta service.SessionMeta) (*service.Session, error)
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Me godoc
// @Summary Current identity
// @Description Returns the identity carried by the access token
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	identity, err := h.service.Me(identityFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, identity, nil)
}

// Session godoc
// @Summary Register a login
// @Description Creates the user on first sign-in, otherwise stamps the last login time
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/session [post]
func (h *AuthHandler) Session(c *gin.Context) {
	session, err := h.service.RecordSession(c.Request.Context(), identityFromContext(c), service.SessionMeta{
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if session.Created {
		status = http.StatusCreated
	}
	response.JSON(c, status, session, nil)
}
