package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cms-api/internal/models"
	"github.com/noah-isme/cms-api/internal/service"
	appErrors "github.com/noah-isme/cms-api/pkg/errors"
	"github.com/noah-isme/cms-api/pkg/response"
)

type noticeService interface {
	FindActiveNoticesForIdentity(ctx context.Context, identity *models.Identity, opts service.NoticeListOptions) ([]models.Notice, *models.Pagination, error)
	FindAllForAdmin(ctx context.Context, opts service.NoticeAdminOptions) ([]models.Notice, *models.Pagination, error)
	CountVisible(ctx context.Context, identity *models.Identity) (int, error)
	GetForIdentity(ctx context.Context, identity *models.Identity, id string) (*models.Notice, error)
	Create(ctx context.Context, authorID string, req service.CreateNoticeRequest) (*models.Notice, error)
	Update(ctx context.Context, id string, req service.UpdateNoticeRequest) (*models.Notice, error)
	Delete(ctx context.Context, id string) error
	Publish(ctx context.Context, id string) (*models.Notice, error)
	Hide(ctx context.Context, id string) (*models.Notice, error)
	Expire(ctx context.Context, id string) (*models.Notice, error)
	IncrementViewCount(ctx context.Context, id string) (*models.Notice, error)
	ProcessExpiredNotices(ctx context.Context) (int64, error)
}

// NoticeHandler exposes the notice feed and lifecycle endpoints.
type NoticeHandler struct {
	service noticeService
}

// NewNoticeHandler builds a notice handler.
func NewNoticeHandler(svc noticeService) *NoticeHandler {
	return &NoticeHandler{service: svc}
}

// Feed godoc
// @Summary List visible notices
// @Description Notices currently visible to any of the caller's roles, pinned first
// @Tags Notices
// @Produce json
// @Param priority query string false "Priority filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /notices [get]
func (h *NoticeHandler) Feed(c *gin.Context) {
	limit, offset := pageWindow(c)
	opts := service.NoticeListOptions{Limit: limit, Offset: offset}
	if raw := c.Query("priority"); raw != "" {
		priority := models.NoticePriority(strings.ToUpper(raw))
		if !priority.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown priority: "+raw))
			return
		}
		opts.Priority = &priority
	}

	notices, pagination, err := h.service.FindActiveNoticesForIdentity(c.Request.Context(), identityFromContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notices, pagination)
}

// Count godoc
// @Summary Count visible notices
// @Tags Notices
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notices/count [get]
func (h *NoticeHandler) Count(c *gin.Context) {
	count, err := h.service.CountVisible(c.Request.Context(), identityFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"count": count}, nil)
}

// Admin godoc
// @Summary List all notices
// @Description Unfiltered listing for notice managers
// @Tags Notices
// @Produce json
// @Param state query string false "State filter"
// @Param author_id query string false "Author filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /notices/admin [get]
func (h *NoticeHandler) Admin(c *gin.Context) {
	limit, offset := pageWindow(c)
	opts := service.NoticeAdminOptions{Limit: limit, Offset: offset, AuthorID: c.Query("author_id")}
	if raw := c.Query("state"); raw != "" {
		state := models.NoticeState(strings.ToUpper(raw))
		if !state.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown state: "+raw))
			return
		}
		opts.State = &state
	}

	notices, pagination, err := h.service.FindAllForAdmin(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notices, pagination)
}

// Get godoc
// @Summary Get notice
// @Tags Notices
// @Produce json
// @Param id path string true "Notice ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notices/{id} [get]
func (h *NoticeHandler) Get(c *gin.Context) {
	notice, err := h.service.GetForIdentity(c.Request.Context(), identityFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notice, nil)
}

// Create godoc
// @Summary Create notice
// @Description Creates a DRAFT notice authored by the caller
// @Tags Notices
// @Accept json
// @Produce json
// @Param payload body service.CreateNoticeRequest true "Notice payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /notices [post]
func (h *NoticeHandler) Create(c *gin.Context) {
	identity := identityFromContext(c)
	if identity == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateNoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}

	notice, err := h.service.Create(c.Request.Context(), identity.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, notice)
}

// Update godoc
// @Summary Update notice
// @Tags Notices
// @Accept json
// @Produce json
// @Param id path string true "Notice ID"
// @Param payload body service.UpdateNoticeRequest true "Patch payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notices/{id} [put]
func (h *NoticeHandler) Update(c *gin.Context) {
	var req service.UpdateNoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	notice, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notice, nil)
}

// Delete godoc
// @Summary Delete notice
// @Tags Notices
// @Param id path string true "Notice ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /notices/{id} [delete]
func (h *NoticeHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Publish godoc
// @Summary Publish notice
// @Tags Notices
// @Produce json
// @Param id path string true "Notice ID"
// @Success 200 {object} response.Envelope
// @Router /notices/{id}/publish [post]
func (h *NoticeHandler) Publish(c *gin.Context) {
	h.transition(c, h.service.Publish)
}

// Hide godoc
// @Summary Hide notice
// @Tags Notices
// @Produce json
// @Param id path string true "Notice ID"
// @Success 200 {object} response.Envelope
// @Router /notices/{id}/hide [post]
func (h *NoticeHandler) Hide(c *gin.Context) {
	h.transition(c, h.service.Hide)
}

// Expire godoc
// @Summary Expire notice
// @Tags Notices
// @Produce json
// @Param id path string true "Notice ID"
// @Success 200 {object} response.Envelope
// @Router /notices/{id}/expire [post]
func (h *NoticeHandler) Expire(c *gin.Context) {
	h.transition(c, h.service.Expire)
}

func (h *NoticeHandler) transition(c *gin.Context, fn func(context.Context, string) (*models.Notice, error)) {
	notice, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notice, nil)
}

// View godoc
// @Summary Record a notice view
// @Tags Notices
// @Produce json
// @Param id path string true "Notice ID"
// @Success 200 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /notices/{id}/view [post]
func (h *NoticeHandler) View(c *gin.Context) {
	notice, err := h.service.IncrementViewCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": notice.ID, "view_count": notice.ViewCount}, nil)
}

// ExpireSweep godoc
// @Summary Expire overdue notices
// @Description Moves every published notice past its end date to EXPIRED
// @Tags Notices
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notices/expire-sweep [post]
func (h *NoticeHandler) ExpireSweep(c *gin.Context) {
	n, err := h.service.ProcessExpiredNotices(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"expired": n}, nil)
}
