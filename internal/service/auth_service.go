package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cms-api/internal/models"
	appErrors "github.com/noah-isme/cms-api/pkg/errors"
)

type sessionUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLoginAt(ctx context.Context, id string, ts time.Time) error
}

type auditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SessionMeta carries request details recorded with a login.
type SessionMeta struct {
	IP        string
	UserAgent string
}

// Session is the result of registering a login.
type Session struct {
	Identity *models.Identity `json:"identity"`
	User     *models.User     `json:"user"`
	Created  bool             `json:"created"`
}

// AuthService keeps local user rows in step with SSO identities.
type AuthService struct {
	users  sessionUserRepository
	audit  auditRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewAuthService constructs an AuthService instance. audit may be nil.
func NewAuthService(users sessionUserRepository, audit auditRepository, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{users: users, audit: audit, logger: logger, now: time.Now}
}

// Me returns the caller identity.
func (s *AuthService) Me(identity *models.Identity) (*models.Identity, error) {
	if identity == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return identity, nil
}

// RecordSession registers a login. The user row is created on first sight
// with the most privileged role in the token; afterwards only the last login
// time moves. Deactivated users are refused. When two first logins race, the
// loser's insert hits the primary key and it continues as a returning user.
func (s *AuthService) RecordSession(ctx context.Context, identity *models.Identity, meta SessionMeta) (*Session, error) {
	if identity == nil || identity.ID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	now := s.now().UTC()

	user, err := s.users.FindByID(ctx, identity.ID)
	created := false
	if errors.Is(err, sql.ErrNoRows) {
		user = &models.User{
			ID:          identity.ID,
			Role:        identity.Roles.Highest(),
			ActiveTabs:  []string{},
			LastLoginAt: &now,
			IsActive:    true,
		}
		err = s.users.Create(ctx, user)
		switch {
		case err == nil:
			created = true
		case hasPgCode(err, pgUniqueViolation):
			user, err = s.users.FindByID(ctx, identity.ID)
		default:
			return nil, appErrors.Internal(err, "failed to register user")
		}
	}

	switch {
	case created:
	case err != nil:
		return nil, appErrors.Internal(err, "failed to load user")
	case !user.IsActive:
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	default:
		if err := s.users.UpdateLastLoginAt(ctx, user.ID, now); err != nil {
			s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
		} else {
			user.LastLoginAt = &now
		}
	}

	s.recordLogin(ctx, identity.ID, created, meta)
	return &Session{Identity: identity, User: user, Created: created}, nil
}

func (s *AuthService) recordLogin(ctx context.Context, userID string, created bool, meta SessionMeta) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"status": "success", "created": created})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionLogin,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record login audit log", zap.Error(err))
	}
}
