package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cms-api/internal/models"
	"github.com/noah-isme/cms-api/internal/service"
	appErrors "github.com/noah-isme/cms-api/pkg/errors"
	"github.com/noah-isme/cms-api/pkg/export"
	"github.com/noah-isme/cms-api/pkg/response"
)

type softwareService interface {
	FindActive(ctx context.Context, filter models.SoftwareFilter) ([]models.Software, *models.Pagination, error)
	FindByDepartment(ctx context.Context, departmentID string) ([]models.Software, error)
	FindByManager(ctx context.Context, managerID string) ([]models.Software, error)
	FindLowLicenseAvailability(ctx context.Context, threshold float64) ([]models.Software, error)
	FindExpiringLicenses(ctx context.Context, daysAhead int) ([]models.Software, error)
	Get(ctx context.Context, id string) (*models.Software, error)
	Create(ctx context.Context, req service.CreateSoftwareRequest) (*models.Software, error)
	Update(ctx context.Context, id string, req service.UpdateSoftwareRequest) (*models.Software, error)
	UpdateLicenseUsage(ctx context.Context, id string, used int) (*models.Software, error)
	Deactivate(ctx context.Context, id string) (*models.Software, error)
	Delete(ctx context.Context, id string) error
	CalculateTotalCosts(ctx context.Context, cycle *models.CostCycle) (models.SoftwareCostSummary, error)
	Export(ctx context.Context, format string) ([]byte, export.Renderer, error)
}

// UsageRequest sets the number of used seats.
type UsageRequest struct {
	UsedLicenses *int `json:"used_licenses" binding:"required"`
}

// SoftwareHandler exposes the license inventory endpoints.
type SoftwareHandler struct {
	service softwareService
	now     func() time.Time
}

// NewSoftwareHandler builds a software handler.
func NewSoftwareHandler(svc softwareService) *SoftwareHandler {
	return &SoftwareHandler{service: svc, now: time.Now}
}

// List godoc
// @Summary List active software
// @Tags Software
// @Produce json
// @Param manager_id query string false "Manager filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /softwares [get]
func (h *SoftwareHandler) List(c *gin.Context) {
	limit, offset := pageWindow(c)
	items, pagination, err := h.service.FindActive(c.Request.Context(), models.SoftwareFilter{
		ManagerID: c.Query("manager_id"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// ByDepartment godoc
// @Summary List software used by a department
// @Tags Software
// @Produce json
// @Param departmentId path string true "Department ID"
// @Success 200 {object} response.Envelope
// @Router /softwares/department/{departmentId} [get]
func (h *SoftwareHandler) ByDepartment(c *gin.Context) {
	items, err := h.service.FindByDepartment(c.Request.Context(), c.Param("departmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ByManager godoc
// @Summary List software owned by a manager
// @Tags Software
// @Produce json
// @Param managerId path string true "Manager ID"
// @Success 200 {object} response.Envelope
// @Router /softwares/manager/{managerId} [get]
func (h *SoftwareHandler) ByManager(c *gin.Context) {
	items, err := h.service.FindByManager(c.Request.Context(), c.Param("managerId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// LowAvailability godoc
// @Summary List software close to its seat limit
// @Tags Software
// @Produce json
// @Param threshold query number false "Usage percentage threshold (default 90)"
// @Success 200 {object} response.Envelope
// @Router /softwares/low-availability [get]
func (h *SoftwareHandler) LowAvailability(c *gin.Context) {
	var threshold float64
	if raw := c.Query("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "threshold must be a number"))
			return
		}
		threshold = v
	}
	items, err := h.service.FindLowLicenseAvailability(c.Request.Context(), threshold)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Expiring godoc
// @Summary List licenses expiring soon
// @Tags Software
// @Produce json
// @Param days query int false "Days ahead (default 30)"
// @Success 200 {object} response.Envelope
// @Router /softwares/expiring [get]
func (h *SoftwareHandler) Expiring(c *gin.Context) {
	var days int
	if raw := c.Query("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "days must be an integer"))
			return
		}
		days = v
	}
	items, err := h.service.FindExpiringLicenses(c.Request.Context(), days)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Costs godoc
// @Summary Summarise license costs
// @Tags Software
// @Produce json
// @Param cost_cycle query string false "MONTHLY, YEARLY or ONCE"
// @Success 200 {object} response.Envelope
// @Router /softwares/costs [get]
func (h *SoftwareHandler) Costs(c *gin.Context) {
	var cycle *models.CostCycle
	if raw := c.Query("cost_cycle"); raw != "" {
		v := models.CostCycle(strings.ToUpper(raw))
		switch v {
		case models.CostCycleMonthly, models.CostCycleYearly, models.CostCycleOnce:
			cycle = &v
		default:
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown cost cycle: "+raw))
			return
		}
	}
	summary, err := h.service.CalculateTotalCosts(c.Request.Context(), cycle)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Export the active inventory
// @Tags Software
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf (default csv)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /softwares/export [get]
func (h *SoftwareHandler) Export(c *gin.Context) {
	payload, renderer, err := h.service.Export(c.Request.Context(), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("software-inventory-%s.%s", h.now().UTC().Format("20060102"), renderer.Extension())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, renderer.ContentType(), payload)
}

// Get godoc
// @Summary Get software
// @Tags Software
// @Produce json
// @Param id path string true "Software ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /softwares/{id} [get]
func (h *SoftwareHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create software
// @Tags Software
// @Accept json
// @Produce json
// @Param payload body service.CreateSoftwareRequest true "Software payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /softwares [post]
func (h *SoftwareHandler) Create(c *gin.Context) {
	var req service.CreateSoftwareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	item, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update software
// @Tags Software
// @Accept json
// @Produce json
// @Param id path string true "Software ID"
// @Param payload body service.UpdateSoftwareRequest true "Patch payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /softwares/{id} [put]
func (h *SoftwareHandler) Update(c *gin.Context) {
	var req service.UpdateSoftwareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	item, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// UpdateUsage godoc
// @Summary Set used license count
// @Tags Software
// @Accept json
// @Produce json
// @Param id path string true "Software ID"
// @Param payload body UsageRequest true "Usage payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /softwares/{id}/usage [patch]
func (h *SoftwareHandler) UpdateUsage(c *gin.Context) {
	var req UsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	item, err := h.service.UpdateLicenseUsage(c.Request.Context(), c.Param("id"), *req.UsedLicenses)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Deactivate godoc
// @Summary Deactivate software
// @Tags Software
// @Produce json
// @Param id path string true "Software ID"
// @Success 200 {object} response.Envelope
// @Router /softwares/{id}/deactivate [post]
func (h *SoftwareHandler) Deactivate(c *gin.Context) {
	item, err := h.service.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete software
// @Tags Software
// @Param id path string true "Software ID"
// @Success 204
// @Router /softwares/{id} [delete]
func (h *SoftwareHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
