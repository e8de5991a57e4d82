package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cms-api/internal/models"
	appErrors "github.com/noah-isme/cms-api/pkg/errors"
)

type noticeRepository interface {
	ListVisible(ctx context.Context, q models.NoticeFeedQuery) ([]models.Notice, int, error)
	ListAll(ctx context.Context, filter models.NoticeAdminFilter) ([]models.Notice, int, error)
	Count(ctx context.Context, filter models.NoticeCountFilter) (int, error)
	GetByID(ctx context.Context, id string) (*models.Notice, error)
	Create(ctx context.Context, notice *models.Notice) error
	Update(ctx context.Context, notice *models.Notice) error
	SetState(ctx context.Context, id string, state models.NoticeState) (*models.Notice, error)
	IncrementViewCount(ctx context.Context, id string) (*models.Notice, error)
	ExpirePublished(ctx context.Context, at time.Time) (int64, error)
	NextVisibilityChange(ctx context.Context, roles []models.Role, at time.Time) (*time.Time, error)
	Delete(ctx context.Context, id string) error
}

// noticeManagers see every notice regardless of visibility.
var noticeManagers = []models.Role{models.RoleAdmin, models.RoleNoticeManager}

// NoticeService implements the notice feed and lifecycle.
type NoticeService struct {
	repo      noticeRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewNoticeService constructs the service. cache and metrics may be nil.
func NewNoticeService(repo noticeRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *NoticeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoticeService{
		repo:      repo,
		cache:     cache,
		metrics:   metrics,
		validator: newValidator(validate),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NoticeListOptions windows a feed query.
type NoticeListOptions struct {
	Limit    int
	Offset   int
	Priority *models.NoticePriority
}

// NoticeAdminOptions windows an unrestricted listing.
type NoticeAdminOptions struct {
	Limit    int
	Offset   int
	State    *models.NoticeState
	AuthorID string
}

// CreateNoticeRequest describes create payload.
type CreateNoticeRequest struct {
	Title          string     `json:"title" validate:"required,max=200"`
	Description    string     `json:"description" validate:"required"`
	TargetRoles    []string   `json:"target_roles" validate:"required,min=1,dive,role"`
	PublishStartAt time.Time  `json:"publish_start_at" validate:"required"`
	PublishEndAt   *time.Time `json:"publish_end_at"`
	Priority       string     `json:"priority" validate:"omitempty,priority"`
	IsPinned       bool       `json:"is_pinned"`
}

// UpdateNoticeRequest is a partial patch; nil fields are left untouched.
type UpdateNoticeRequest struct {
	Title          *string    `json:"title" validate:"omitempty,max=200"`
	Description    *string    `json:"description"`
	TargetRoles    []string   `json:"target_roles" validate:"omitempty,dive,role"`
	PublishStartAt *time.Time `json:"publish_start_at"`
	PublishEndAt   *time.Time `json:"publish_end_at"`
	ClearEnd       bool       `json:"clear_publish_end_at"`
	Priority       *string    `json:"priority" validate:"omitempty,priority"`
	IsPinned       *bool      `json:"is_pinned"`
}

type noticePage struct {
	Items      []models.Notice `json:"items"`
	Total      int             `json:"total"`
	ValidUntil time.Time       `json:"valid_until"`
}

// FindActiveNoticesForRole returns the feed visible to role now.
func (s *NoticeService) FindActiveNoticesForRole(ctx context.Context, role models.Role, opts NoticeListOptions) ([]models.Notice, *models.Pagination, error) {
	return s.feed(ctx, []models.Role{role}, opts)
}

// FindActiveNoticesForIdentity returns the union of the feeds visible to each
// of the identity's roles. An identity without roles sees nothing.
func (s *NoticeService) FindActiveNoticesForIdentity(ctx context.Context, identity *models.Identity, opts NoticeListOptions) ([]models.Notice, *models.Pagination, error) {
	if identity == nil || len(identity.Roles) == 0 {
		return []models.Notice{}, models.NewPagination(opts.Limit, opts.Offset, 0), nil
	}
	return s.feed(ctx, identity.Roles, opts)
}

func (s *NoticeService) feed(ctx context.Context, roles []models.Role, opts NoticeListOptions) ([]models.Notice, *models.Pagination, error) {
	at := s.now()
	key := feedCacheKey(roles, opts)
	var cached noticePage
	if s.cache.Get(ctx, key, &cached) && at.Before(cached.ValidUntil) {
		return cached.Items, models.NewPagination(opts.Limit, opts.Offset, cached.Total), nil
	}

	start := time.Now()
	items, total, err := s.repo.ListVisible(ctx, models.NoticeFeedQuery{
		Roles:    roles,
		At:       at,
		Priority: opts.Priority,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
	s.metrics.ObserveDBQuery("notice_feed", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list notices")
	}
	if ttl := s.feedCacheTTL(ctx, roles, at); ttl > 0 {
		s.cache.SetWithTTL(ctx, key, noticePage{Items: items, Total: total, ValidUntil: at.Add(ttl)}, ttl)
	}
	return items, models.NewPagination(opts.Limit, opts.Offset, total), nil
}

// feedCacheTTL bounds a cached feed by the next instant a published notice
// for roles enters or leaves its window. Zero means do not cache.
func (s *NoticeService) feedCacheTTL(ctx context.Context, roles []models.Role, at time.Time) time.Duration {
	if !s.cache.Enabled() {
		return 0
	}
	ttl := s.cache.TTL()
	next, err := s.repo.NextVisibilityChange(ctx, roles, at)
	if err != nil {
		s.logger.Warn("notice window lookup failed, feed not cached", zap.Error(err))
		return 0
	}
	if next != nil {
		if until := next.Sub(at); until < ttl {
			ttl = until
		}
	}
	return ttl
}

func feedCacheKey(roles []models.Role, opts NoticeListOptions) string {
	names := models.RoleSet(roles).Strings()
	sort.Strings(names)
	priority := "any"
	if opts.Priority != nil {
		priority = string(*opts.Priority)
	}
	return fmt.Sprintf("feed:%s:%s:%d:%d", strings.Join(names, ","), priority, opts.Limit, opts.Offset)
}

// FindAllForAdmin lists notices without the visibility predicate.
func (s *NoticeService) FindAllForAdmin(ctx context.Context, opts NoticeAdminOptions) ([]models.Notice, *models.Pagination, error) {
	items, total, err := s.repo.ListAll(ctx, models.NoticeAdminFilter{
		State:    opts.State,
		AuthorID: opts.AuthorID,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list notices")
	}
	return items, models.NewPagination(opts.Limit, opts.Offset, total), nil
}

// Count returns the number of matching notices. A role restricts the count
// to notices visible to that role now.
func (s *NoticeService) Count(ctx context.Context, state *models.NoticeState, authorID string, role *models.Role) (int, error) {
	n, err := s.repo.Count(ctx, models.NoticeCountFilter{State: state, AuthorID: authorID, Role: role, At: s.now()})
	if err != nil {
		return 0, appErrors.Internal(err, "failed to count notices")
	}
	return n, nil
}

// CountVisible counts notices visible to any of the identity's roles.
func (s *NoticeService) CountVisible(ctx context.Context, identity *models.Identity) (int, error) {
	if identity == nil || len(identity.Roles) == 0 {
		return 0, nil
	}
	_, total, err := s.repo.ListVisible(ctx, models.NoticeFeedQuery{Roles: identity.Roles, At: s.now(), Limit: 1})
	if err != nil {
		return 0, appErrors.Internal(err, "failed to count notices")
	}
	return total, nil
}

// Get returns a notice by id.
func (s *NoticeService) Get(ctx context.Context, id string) (*models.Notice, error) {
	notice, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err, id, "failed to get notice")
	}
	return notice, nil
}

// GetForIdentity returns a notice if the caller may see it. Notice managers
// see everything; anyone else gets NotFound for notices not visible to them.
func (s *NoticeService) GetForIdentity(ctx context.Context, identity *models.Identity, id string) (*models.Notice, error) {
	notice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if identity.HasAnyRole(noticeManagers...) {
		return notice, nil
	}
	if identity == nil || !notice.VisibleToAny(identity.Roles, s.now()) {
		return nil, appErrors.NotFound("notice", id)
	}
	return notice, nil
}

// Create stores a new DRAFT notice authored by authorID.
func (s *NoticeService) Create(ctx context.Context, authorID string, req CreateNoticeRequest) (*models.Notice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	if req.PublishEndAt != nil && req.PublishEndAt.Before(req.PublishStartAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "publish_end_at must not be before publish_start_at")
	}
	priority := models.NoticePriorityMedium
	if req.Priority != "" {
		priority = models.NoticePriority(strings.ToUpper(req.Priority))
	}

	notice := &models.Notice{
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		AuthorID:       authorID,
		TargetRoles:    toRoleSet(req.TargetRoles),
		PublishStartAt: req.PublishStartAt.UTC(),
		PublishEndAt:   utcPtr(req.PublishEndAt),
		State:          models.NoticeStateDraft,
		Priority:       priority,
		IsPinned:       req.IsPinned,
	}
	if err := s.repo.Create(ctx, notice); err != nil {
		return nil, appErrors.Internal(err, "failed to create notice")
	}
	s.cache.Invalidate(ctx)
	s.logger.Info("notice created", zap.String("notice_id", notice.ID), zap.String("author_id", authorID))
	return notice, nil
}

// Update applies a partial patch to the editable fields of a notice.
func (s *NoticeService) Update(ctx context.Context, id string, req UpdateNoticeRequest) (*models.Notice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err)
	}
	notice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		notice.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		notice.Description = *req.Description
	}
	if len(req.TargetRoles) > 0 {
		notice.TargetRoles = toRoleSet(req.TargetRoles)
	}
	if req.PublishStartAt != nil {
		notice.PublishStartAt = req.PublishStartAt.UTC()
	}
	if req.ClearEnd {
		notice.PublishEndAt = nil
	} else if req.PublishEndAt != nil {
		notice.PublishEndAt = utcPtr(req.PublishEndAt)
	}
	if req.Priority != nil {
		notice.Priority = models.NoticePriority(strings.ToUpper(*req.Priority))
	}
	if req.IsPinned != nil {
		notice.IsPinned = *req.IsPinned
	}
	if notice.PublishEndAt != nil && notice.PublishEndAt.Before(notice.PublishStartAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "publish_end_at must not be before publish_start_at")
	}

	if err := s.repo.Update(ctx, notice); err != nil {
		return nil, s.mapError(err, id, "failed to update notice")
	}
	s.cache.Invalidate(ctx)
	return notice, nil
}

// Delete removes a notice permanently.
func (s *NoticeService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapError(err, id, "failed to delete notice")
	}
	s.cache.Invalidate(ctx)
	s.logger.Info("notice deleted", zap.String("notice_id", id))
	return nil
}

// Publish sets the notice state to PUBLISHED.
func (s *NoticeService) Publish(ctx context.Context, id string) (*models.Notice, error) {
	return s.setState(ctx, id, models.NoticeStatePublished)
}

// Hide sets the notice state to HIDDEN.
func (s *NoticeService) Hide(ctx context.Context, id string) (*models.Notice, error) {
	return s.setState(ctx, id, models.NoticeStateHidden)
}

// Expire sets the notice state to EXPIRED.
func (s *NoticeService) Expire(ctx context.Context, id string) (*models.Notice, error) {
	return s.setState(ctx, id, models.NoticeStateExpired)
}

// setState is unconditional: every state may move to every state.
func (s *NoticeService) setState(ctx context.Context, id string, state models.NoticeState) (*models.Notice, error) {
	notice, err := s.repo.SetState(ctx, id, state)
	if err != nil {
		return nil, s.mapError(err, id, "failed to change notice state")
	}
	s.cache.Invalidate(ctx)
	s.metrics.RecordNoticeState(string(state))
	s.logger.Info("notice state changed", zap.String("notice_id", id), zap.String("state", string(state)))
	return notice, nil
}

// IncrementViewCount records one view and returns the updated notice. The
// cache is left alone, so view counts in cached feed pages may lag by up to
// the cache TTL; the returned notice always carries the stored count.
func (s *NoticeService) IncrementViewCount(ctx context.Context, id string) (*models.Notice, error) {
	notice, err := s.repo.IncrementViewCount(ctx, id)
	if err != nil {
		return nil, s.mapError(err, id, "failed to record notice view")
	}
	s.metrics.RecordNoticeView()
	return notice, nil
}

// ProcessExpiredNotices moves every published notice whose window closed
// before now to EXPIRED and returns how many changed. Running it twice at
// the same instant changes nothing the second time.
func (s *NoticeService) ProcessExpiredNotices(ctx context.Context) (int64, error) {
	at := s.now()
	n, err := s.repo.ExpirePublished(ctx, at)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to expire notices")
	}
	if n > 0 {
		s.cache.Invalidate(ctx)
		s.metrics.RecordNoticesExpired(n)
	}
	s.logger.Info("notice expiry sweep", zap.Int64("expired", n), zap.Time("at", at))
	return n, nil
}

func (s *NoticeService) mapError(err error, id, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.NotFound("notice", id)
	}
	return appErrors.Internal(err, message)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
