package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/cms-api/internal/models"
	appErrors "github.com/noah-isme/cms-api/pkg/errors"
	"github.com/noah-isme/cms-api/pkg/metadata"
)

type employeeDirectory interface {
	ListEmployees(ctx context.Context, page, pageSize int) (*metadata.Page[metadata.Employee], error)
}

type syncUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id string) error
}

// SyncResult summarises one employee sync pass.
type SyncResult struct {
	Created     int `json:"created"`
	Deactivated int `json:"deactivated"`
	Unchanged   int `json:"unchanged"`
}

// SyncService mirrors the metadata server's employee roster into users.
type SyncService struct {
	directory employeeDirectory
	users     syncUserRepository
	pageSize  int
	logger    *zap.Logger
}

// NewSyncService constructs a SyncService. pageSize <= 0 falls back to 100.
func NewSyncService(directory employeeDirectory, users syncUserRepository, pageSize int, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &SyncService{directory: directory, users: users, pageSize: pageSize, logger: logger}
}

// SyncEmployees walks every employee page. Active employees without a user
// row get one with role USER; inactive or resigned employees are deactivated.
func (s *SyncService) SyncEmployees(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{}
	for page := 1; ; page++ {
		batch, err := s.directory.ListEmployees(ctx, page, s.pageSize)
		if err != nil {
			return result, appErrors.Internal(err, "failed to fetch employees")
		}
		for _, employee := range batch.Data {
			if err := s.syncEmployee(ctx, employee, result); err != nil {
				return result, err
			}
		}
		if !batch.HasNext() || len(batch.Data) == 0 {
			break
		}
	}

	s.logger.Info("employee sync finished",
		zap.Int("created", result.Created),
		zap.Int("deactivated", result.Deactivated),
		zap.Int("unchanged", result.Unchanged),
	)
	return result, nil
}

func (s *SyncService) syncEmployee(ctx context.Context, employee metadata.Employee, result *SyncResult) error {
	if employee.ID == "" {
		result.Unchanged++
		return nil
	}
	user, err := s.users.FindByID(ctx, employee.ID)
	missing := errors.Is(err, sql.ErrNoRows)
	if err != nil && !missing {
		return appErrors.Internal(err, "failed to load user")
	}

	switch employee.Status {
	case metadata.EmployeeActive:
		if !missing {
			result.Unchanged++
			return nil
		}
		if err := s.users.Create(ctx, &models.User{
			ID:         employee.ID,
			Role:       models.RoleUser,
			ActiveTabs: []string{},
			IsActive:   true,
		}); err != nil {
			return appErrors.Internal(err, "failed to create user")
		}
		result.Created++
	case metadata.EmployeeInactive, metadata.EmployeeResigned:
		if missing || !user.IsActive {
			result.Unchanged++
			return nil
		}
		if err := s.users.Deactivate(ctx, employee.ID); err != nil {
			return appErrors.Internal(err, "failed to deactivate user")
		}
		result.Deactivated++
	default:
		s.logger.Warn("unknown employee status", zap.String("employee_id", employee.ID), zap.String("status", string(employee.Status)))
		result.Unchanged++
	}
	return nil
}
