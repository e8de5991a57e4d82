package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cms-api/internal/models"
	appErrors "github.com/noah-isme/cms-api/pkg/errors"
	"github.com/noah-isme/cms-api/pkg/export"
)

const (
	defaultUsageThreshold = 90.0
	defaultExpiryDays     = 30
)

type softwareRepository interface {
	ListActive(ctx context.Context, filter models.SoftwareFilter) ([]models.Software, int, error)
	ListByDepartment(ctx context.Context, departmentID string) ([]models.Software, error)
	ListByManager(ctx context.Context, managerID string) ([]models.Software, error)
	ListLowAvailability(ctx context.Context, threshold float64) ([]models.Software, error)
	ListExpiring(ctx context.Context, from, to time.Time) ([]models.Software, error)
	GetByID(ctx context.Context, id string) (*models.Software, error)
	Create(ctx context.Context, item *models.Software) error
	Update(ctx context.Context, item *models.Software, setUsed bool) (*models.Software, error)
	UpdateUsage(ctx context.Context, id string, used int) (*models.Software, error)
	Deactivate(ctx context.Context, id string) (*models.Software, error)
	Delete(ctx context.Context, id string) error
	CostBuckets(ctx context.Context, cycle *models.CostCycle) ([]models.CostBucket, error)
}

// SoftwareService manages the license inventory.
type SoftwareService struct {
	repo      softwareRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSoftwareService constructs the service.
func NewSoftwareService(repo softwareRepository, validate *validator.Validate, logger *zap.Logger) *SoftwareService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SoftwareService{repo: repo, validator: newValidator(validate), logger: logger, now: time.Now}
}

// CreateSoftwareRequest describes create payload.
type CreateSoftwareRequest struct {
	Name              string     `json:"name" validate:"required,max=200"`
	Description       *string    `json:"description"`
	Version           *string    `json:"version" validate:"omitempty,max=50"`
	Vendor            *string    `json:"vendor" validate:"omitempty,max=100"`
	ManagerID         string     `json:"manager_id" validate:"required"`
	LicenseCost       *float64   `json:"license_cost" validate:"omitempty,min=0"`
	CostCycle         *string    `json:"cost_cycle" validate:"omitempty,cost_cycle"`
	DepartmentIDs     []string   `json:"department_ids"`
	TotalLicenses     int        `json:"total_licenses" validate:"min=0"`
	LicenseExpiryDate *time.Time `json:"license_expiry_date"`
}

// UpdateSoftwareRequest is a partial patch; nil fields are left untouched.
type UpdateSoftwareRequest struct {
	Name              *string    `json:"name" validate:"omitempty,max=200"`
	Description       *string    `json:"description"`
	Version           *string    `json:"version" validate:"omitempty,max=50"`
	Vendor            *string    `json:"vendor" validate:"omitempty,max=100"`
	ManagerID         *string    `json:"manager_id"`
	LicenseCost       *float64   `json:"license_cost" validate:"omitempty,min=0"`
	CostCycle         *string    `json:"cost_cycle" validate:"omitempty,cost_cycle"`
	DepartmentIDs     []string   `json:"department_ids"`
	TotalLicenses     *int       `json:"total_licenses" validate:"omitempty,min=0"`
	UsedLicenses      *int       `json:"used_licenses" validate:"omitempty,min=0"`
	LicenseExpiryDate *time.Time `json:"license_expiry_date"`
	IsActive          *bool      `json:"is_active"`
}

// FindActive lists active software, optionally for one manager.
func (s *SoftwareService) FindActive(ctx context.Context, filter models.SoftwareFilter) ([]models.Software, *models.Pagination, error) {
	items, total, err := s.repo.ListActive(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list software")
	}
	return items, models.NewPagination(filter.Limit, filter.Offset, total), nil
}

// FindByDepartment lists active software used by a department.
func (s *SoftwareService) FindByDepartment(ctx context.Context, departmentID string) ([]models.Software, error) {
	items, err := s.repo.ListByDepartment(ctx, departmentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list department software")
	}
	return items, nil
}

// FindByManager lists active software owned by a manager.
func (s *SoftwareService) FindByManager(ctx context.Context, managerID string) ([]models.Software, error) {
	items, err := s.repo.ListByManager(ctx, managerID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list manager software")
	}
	return items, nil
}

// FindLowLicenseAvailability lists software whose usage reached threshold
// percent. A non-positive threshold means 90.
func (s *SoftwareService) FindLowLicenseAvailability(ctx context.Context, threshold float64) ([]models.Software, error) {
	if threshold <= 0 {
		threshold = defaultUsageThreshold
	}
	items, err := s.repo.ListLowAvailability(ctx, threshold)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list low availability software")
	}
	return items, nil
}

// FindExpiringLicenses lists software whose license expires between today and
// daysAhead days from now. A non-positive daysAhead means 30.
func (s *SoftwareService) FindExpiringLicenses(ctx context.Context, daysAhead int) ([]models.Software, error) {
	if daysAhead <= 0 {
		daysAhead = defaultExpiryDays
	}
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	items, err := s.repo.ListExpiring(ctx, today, today.AddDate(0, 0, daysAhead))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list expiring licenses")
	}
	return items, nil
}

// Get returns a software record.
func (s *SoftwareService) Get(ctx context.Context, id string) (*models.Software, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err, id, "failed to get software")
	}
	return item, nil
}

// Create registers software with no seats in use.
func (s *SoftwareService) Create(ctx context.Context, req CreateSoftwareRequest) (*models.Software, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	item := &models.Software{
		Name:              strings.TrimSpace(req.Name),
		Description:       req.Description,
		Version:           req.Version,
		Vendor:            req.Vendor,
		ManagerID:         req.ManagerID,
		LicenseCost:       req.LicenseCost,
		CostCycle:         costCyclePtr(req.CostCycle),
		DepartmentIDs:     req.DepartmentIDs,
		TotalLicenses:     req.TotalLicenses,
		UsedLicenses:      0,
		IsActive:          true,
		LicenseExpiryDate: req.LicenseExpiryDate,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, appErrors.Internal(err, "failed to create software")
	}
	s.logger.Info("software created", zap.String("software_id", item.ID), zap.String("name", item.Name))
	return item, nil
}

// Update applies a partial patch. The result must keep used <= total. The
// stored usage is only overwritten when the patch sets used_licenses, so a
// concurrent UpdateLicenseUsage is never rolled back.
func (s *SoftwareService) Update(ctx context.Context, id string, req UpdateSoftwareRequest) (*models.Software, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		item.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		item.Description = req.Description
	}
	if req.Version != nil {
		item.Version = req.Version
	}
	if req.Vendor != nil {
		item.Vendor = req.Vendor
	}
	if req.ManagerID != nil {
		item.ManagerID = *req.ManagerID
	}
	if req.LicenseCost != nil {
		item.LicenseCost = req.LicenseCost
	}
	if req.CostCycle != nil {
		item.CostCycle = costCyclePtr(req.CostCycle)
	}
	if req.DepartmentIDs != nil {
		item.DepartmentIDs = req.DepartmentIDs
	}
	if req.TotalLicenses != nil {
		item.TotalLicenses = *req.TotalLicenses
	}
	if req.UsedLicenses != nil {
		item.UsedLicenses = *req.UsedLicenses
	}
	if req.LicenseExpiryDate != nil {
		item.LicenseExpiryDate = req.LicenseExpiryDate
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	if item.UsedLicenses > item.TotalLicenses {
		return nil, usageViolation(item.UsedLicenses, item.TotalLicenses)
	}

	updated, err := s.repo.Update(ctx, item, req.UsedLicenses != nil)
	switch {
	case err == nil:
		return updated, nil
	case hasPgCode(err, pgCheckViolation):
		return nil, usageViolation(item.UsedLicenses, item.TotalLicenses)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Internal(err, "failed to update software")
	}

	// the guarded update matched nothing: missing row or usage changed since the read
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	used := current.UsedLicenses
	if req.UsedLicenses != nil {
		used = *req.UsedLicenses
	}
	return nil, usageViolation(used, item.TotalLicenses)
}

// UpdateLicenseUsage sets the number of used seats. A value above the total
// is rejected and leaves the record unchanged.
func (s *SoftwareService) UpdateLicenseUsage(ctx context.Context, id string, used int) (*models.Software, error) {
	if used < 0 {
		return nil, appErrors.Clone(appErrors.ErrInvariantViolation, "used licenses must not be negative")
	}
	item, err := s.repo.UpdateUsage(ctx, id, used)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to update license usage")
	}

	// the guarded update matched nothing: missing row or usage above total
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, usageViolation(used, current.TotalLicenses)
}

// Deactivate retires a software record without deleting it.
func (s *SoftwareService) Deactivate(ctx context.Context, id string) (*models.Software, error) {
	item, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return nil, s.mapError(err, id, "failed to deactivate software")
	}
	return item, nil
}

// Delete removes a software record.
func (s *SoftwareService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapError(err, id, "failed to delete software")
	}
	s.logger.Info("software deleted", zap.String("software_id", id))
	return nil
}

// CalculateTotalCosts summarises license spend, optionally for one cycle.
func (s *SoftwareService) CalculateTotalCosts(ctx context.Context, cycle *models.CostCycle) (models.SoftwareCostSummary, error) {
	buckets, err := s.repo.CostBuckets(ctx, cycle)
	if err != nil {
		return models.SoftwareCostSummary{}, appErrors.Internal(err, "failed to calculate license costs")
	}
	return models.SummarizeCosts(buckets), nil
}

// Export renders the active inventory with the renderer for format.
func (s *SoftwareService) Export(ctx context.Context, format string) ([]byte, export.Renderer, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}

	var all []models.Software
	for offset := 0; ; offset += 100 {
		batch, total, err := s.repo.ListActive(ctx, models.SoftwareFilter{Limit: 100, Offset: offset})
		if err != nil {
			return nil, nil, appErrors.Internal(err, "failed to load software for export")
		}
		all = append(all, batch...)
		if len(batch) == 0 || len(all) >= total {
			break
		}
	}

	payload, err := renderer.Render(softwareDataset(all))
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to render export")
	}
	return payload, renderer, nil
}

func softwareDataset(items []models.Software) export.Dataset {
	data := export.Dataset{
		Title:   "Software inventory",
		Headers: []string{"Name", "Vendor", "Version", "Manager", "Used", "Total", "Usage %", "Cost", "Cycle", "Expires"},
	}
	for _, item := range items {
		row := map[string]string{
			"Name":    item.Name,
			"Vendor":  deref(item.Vendor),
			"Version": deref(item.Version),
			"Manager": item.ManagerID,
			"Used":    strconv.Itoa(item.UsedLicenses),
			"Total":   strconv.Itoa(item.TotalLicenses),
			"Usage %": fmt.Sprintf("%.1f", item.UsagePercent()),
		}
		if item.LicenseCost != nil {
			row["Cost"] = strconv.FormatFloat(*item.LicenseCost, 'f', 2, 64)
		}
		if item.CostCycle != nil {
			row["Cycle"] = string(*item.CostCycle)
		}
		if item.LicenseExpiryDate != nil {
			row["Expires"] = item.LicenseExpiryDate.Format("2006-01-02")
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

func (s *SoftwareService) mapError(err error, id, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.NotFound("software", id)
	}
	return appErrors.Internal(err, message)
}

func usageViolation(used, total int) error {
	return appErrors.Clone(appErrors.ErrInvariantViolation,
		fmt.Sprintf("used licenses (%d) cannot exceed total licenses (%d)", used, total))
}

func costCyclePtr(v *string) *models.CostCycle {
	if v == nil || *v == "" {
		return nil
	}
	c := models.CostCycle(strings.ToUpper(*v))
	return &c
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
