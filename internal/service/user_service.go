package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cms-api/internal/models"
	appErrors "github.com/noah-isme/cms-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	ListActive(ctx context.Context) ([]models.User, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateActiveTabs(ctx context.Context, id string, tabs []string) error
	UpdateLastLoginAt(ctx context.Context, id string, ts time.Time) error
	Deactivate(ctx context.Context, id string) error
	DeleteInactive(ctx context.Context) (int64, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	ID         string   `json:"id" validate:"required,max=64"`
	Role       string   `json:"role" validate:"omitempty,role"`
	ActiveTabs []string `json:"active_tabs" validate:"omitempty,dive,required,max=64"`
}

// UpdateUserRequest payload for updating users. Nil fields are left untouched.
type UpdateUserRequest struct {
	Role       *string  `json:"role" validate:"omitempty,role"`
	ActiveTabs []string `json:"active_tabs" validate:"omitempty,dive,required,max=64"`
	IsActive   *bool    `json:"is_active"`
}

// UpdateTabsRequest replaces the caller's tab list.
type UpdateTabsRequest struct {
	ActiveTabs []string `json:"active_tabs" validate:"dive,required,max=64"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, validator: newValidator(validate), logger: logger, now: time.Now}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// FindActiveUsers returns every active user.
func (s *UserService) FindActiveUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list active users")
	}
	return users, nil
}

// FindUsersByRole returns active users holding role.
func (s *UserService) FindUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	if !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role: "+string(role))
	}
	users, err := s.repo.ListByRole(ctx, role)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list users by role")
	}
	return users, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err, id, "failed to load user")
	}
	return user, nil
}

// Exists reports whether a user row exists.
func (s *UserService) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, appErrors.Internal(err, "failed to check user")
	}
	return ok, nil
}

// Create registers an active user for an employee id. Role defaults to USER.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}

	exists, err := s.repo.Exists(ctx, req.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check user uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already exists: "+req.ID)
	}

	role := models.RoleUser
	if req.Role != "" {
		role = models.Role(strings.ToUpper(req.Role))
	}
	user := &models.User{
		ID:         req.ID,
		Role:       role,
		ActiveTabs: req.ActiveTabs,
		IsActive:   true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Internal(err, "failed to create user")
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Update modifies role, tabs or activation of a user.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Role != nil {
		user.Role = models.Role(strings.ToUpper(*req.Role))
	}
	if req.ActiveTabs != nil {
		user.ActiveTabs = req.ActiveTabs
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, s.mapError(err, id, "failed to update user")
	}
	return user, nil
}

// UpdateActiveTabs replaces the tab list of a user.
func (s *UserService) UpdateActiveTabs(ctx context.Context, id string, req UpdateTabsRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	if err := s.repo.UpdateActiveTabs(ctx, id, req.ActiveTabs); err != nil {
		return nil, s.mapError(err, id, "failed to update active tabs")
	}
	return s.Get(ctx, id)
}

// UpdateLastLoginAt stamps the current time as the last login.
func (s *UserService) UpdateLastLoginAt(ctx context.Context, id string) error {
	if err := s.repo.UpdateLastLoginAt(ctx, id, s.now().UTC()); err != nil {
		return s.mapError(err, id, "failed to update last login")
	}
	return nil
}

// Deactivate marks a user inactive, typically after the employee left.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return s.mapError(err, id, "failed to deactivate user")
	}
	s.logger.Info("user deactivated", zap.String("user_id", id))
	return nil
}

// RemoveInactiveUsers deletes every inactive user and returns the count.
func (s *UserService) RemoveInactiveUsers(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteInactive(ctx)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to remove inactive users")
	}
	s.logger.Info("inactive users removed", zap.Int64("count", n))
	return n, nil
}

func (s *UserService) mapError(err error, id, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.NotFound("user", id)
	}
	return appErrors.Internal(err, message)
}
