package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cms-api/internal/models"
	appErrors "github.com/noah-isme/cms-api/pkg/errors"
)

type noticeRepoMock struct {
	mu      sync.Mutex
	notices map[string]*models.Notice
	seq     int
	listErr error
	queries int
}

func newNoticeRepoMock() *noticeRepoMock {
	return &noticeRepoMock{notices: map[string]*models.Notice{}}
}

func (m *noticeRepoMock) sorted(keep func(n *models.Notice) bool) []models.Notice {
	out := []models.Notice{}
	for _, n := range m.notices {
		if keep(n) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return models.NoticeLess(out[i], out[j]) })
	return out
}

func page(items []models.Notice, limit, offset int) []models.Notice {
	if offset >= len(items) {
		return []models.Notice{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func (m *noticeRepoMock) ListVisible(ctx context.Context, q models.NoticeFeedQuery) ([]models.Notice, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	items := m.sorted(func(n *models.Notice) bool {
		if q.Priority != nil && n.Priority != *q.Priority {
			return false
		}
		return n.VisibleToAny(q.Roles, q.At)
	})
	return page(items, q.Limit, q.Offset), len(items), nil
}

func (m *noticeRepoMock) ListAll(ctx context.Context, f models.NoticeAdminFilter) ([]models.Notice, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.sorted(func(n *models.Notice) bool {
		return (f.State == nil || n.State == *f.State) && (f.AuthorID == "" || n.AuthorID == f.AuthorID)
	})
	return page(items, f.Limit, f.Offset), len(items), nil
}

func (m *noticeRepoMock) Count(ctx context.Context, f models.NoticeCountFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sorted(func(n *models.Notice) bool {
		if f.State != nil && n.State != *f.State {
			return false
		}
		if f.AuthorID != "" && n.AuthorID != f.AuthorID {
			return false
		}
		return f.Role == nil || n.VisibleTo(*f.Role, f.At)
	})), nil
}

func (m *noticeRepoMock) GetByID(ctx context.Context, id string) (*models.Notice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notices[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *n
	return &cp, nil
}

func (m *noticeRepoMock) Create(ctx context.Context, n *models.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if n.ID == "" {
		n.ID = fmt.Sprintf("n-%03d", m.seq)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Date(2026, 1, 1, 0, 0, m.seq, 0, time.UTC)
	}
	cp := *n
	m.notices[n.ID] = &cp
	return nil
}

func (m *noticeRepoMock) Update(ctx context.Context, n *models.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notices[n.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *n
	m.notices[n.ID] = &cp
	return nil
}

func (m *noticeRepoMock) SetState(ctx context.Context, id string, state models.NoticeState) (*models.Notice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notices[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	n.State = state
	cp := *n
	return &cp, nil
}

func (m *noticeRepoMock) IncrementViewCount(ctx context.Context, id string) (*models.Notice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notices[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	n.ViewCount++
	cp := *n
	return &cp, nil
}

func (m *noticeRepoMock) ExpirePublished(ctx context.Context, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.notices {
		if n.State == models.NoticeStatePublished && n.PublishEndAt != nil && n.PublishEndAt.Before(at) {
			n.State = models.NoticeStateExpired
			count++
		}
	}
	return count, nil
}

func (m *noticeRepoMock) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notices[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.notices, id)
	return nil
}

func (m *noticeRepoMock) NextVisibilityChange(ctx context.Context, roles []models.Role, at time.Time) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next *time.Time
	consider := func(t time.Time) {
		if next == nil || t.Before(*next) {
			t := t
			next = &t
		}
	}
	for _, n := range m.notices {
		if n.State != models.NoticeStatePublished || !n.TargetRoles.Intersects(roles) {
			continue
		}
		if n.PublishStartAt.After(at) {
			consider(n.PublishStartAt)
		}
		if n.PublishEndAt != nil && !n.PublishEndAt.Before(at) {
			consider(*n.PublishEndAt)
		}
	}
	return next, nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) Purge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string][]byte{}
	c.ttls = map[string]time.Duration{}
	return nil
}

func (c *memCache) ttlFor(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttls[key]
}

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestNoticeService(repo *noticeRepoMock) *NoticeService {
	svc := NewNoticeService(repo, nil, NewMetricsService(), nil, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

// newCachedNoticeService wires a one-minute feed cache and a clock the test
// can move.
func newCachedNoticeService(repo *noticeRepoMock) (*NoticeService, *memCache, *time.Time) {
	mem := newMemCache()
	metrics := NewMetricsService()
	svc := NewNoticeService(repo, NewCacheService(mem, metrics, time.Minute, nil, true), metrics, nil, nil)
	clock := fixedNow
	svc.now = func() time.Time { return clock }
	return svc, mem, &clock
}

func createNotice(t *testing.T, svc *NoticeService, title string, roles ...string) *models.Notice {
	t.Helper()
	notice, err := svc.Create(context.Background(), "E1", CreateNoticeRequest{
		Title:          title,
		Description:    "body",
		TargetRoles:    roles,
		PublishStartAt: fixedNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	return notice
}

func TestNoticeCreateDefaults(t *testing.T) {
	svc := newTestNoticeService(newNoticeRepoMock())

	notice := createNotice(t, svc, "  Welcome  ", "user", "USER")
	assert.Equal(t, "Welcome", notice.Title)
	assert.Equal(t, models.NoticeStateDraft, notice.State)
	assert.Equal(t, models.NoticePriorityMedium, notice.Priority)
	assert.False(t, notice.IsPinned)
	assert.Zero(t, notice.ViewCount)
	assert.Equal(t, models.RoleSet{models.RoleUser}, notice.TargetRoles)
}

func TestNoticeCreateValidation(t *testing.T) {
	svc := newTestNoticeService(newNoticeRepoMock())
	ctx := context.Background()

	_, err := svc.Create(ctx, "E1", CreateNoticeRequest{Title: "x", Description: "y", TargetRoles: []string{"JANITOR"}, PublishStartAt: fixedNow})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(ctx, "E1", CreateNoticeRequest{Title: "x", Description: "y", TargetRoles: []string{}, PublishStartAt: fixedNow})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	end := fixedNow.Add(-time.Minute)
	_, err = svc.Create(ctx, "E1", CreateNoticeRequest{Title: "x", Description: "y", TargetRoles: []string{"USER"}, PublishStartAt: fixedNow, PublishEndAt: &end})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestPublishThenVisibleExpireThenHidden(t *testing.T) {
	repo := newNoticeRepoMock()
	svc := newTestNoticeService(repo)
	ctx := context.Background()

	notice := createNotice(t, svc, "Town hall", "USER")
	items, _, err := svc.FindActiveNoticesForRole(ctx, models.RoleUser, NoticeListOptions{})
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = svc.Publish(ctx, notice.ID)
	require.NoError(t, err)
	items, pagination, err := svc.FindActiveNoticesForRole(ctx, models.RoleUser, NoticeListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, pagination.TotalCount)

	items, _, err = svc.FindActiveNoticesForRole(ctx, models.RoleAdmin, NoticeListOptions{})
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = svc.Expire(ctx, notice.ID)
	require.NoError(t, err)
	items, _, err = svc.FindActiveNoticesForRole(ctx, models.RoleUser, NoticeListOptions{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStateTransitionsAreUnrestricted(t *testing.T) {
	svc := newTestNoticeService(newNoticeRepoMock())
	ctx := context.Background()
	notice := createNotice(t, svc, "Any to any", "USER")

	steps := []func(context.Context, string) (*models.Notice, error){svc.Expire, svc.Publish, svc.Hide, svc.Hide, svc.Publish, svc.Expire}
	want := []models.NoticeState{models.NoticeStateExpired, models.NoticeStatePublished, models.NoticeStateHidden, models.NoticeStateHidden, models.NoticeStatePublished, models.NoticeStateExpired}
	for i, step := range steps {
		updated, err := step(ctx, notice.ID)
		require.NoError(t, err)
		assert.Equal(t, want[i], updated.State)
	}

	_, err := svc.Publish(ctx, "missing")
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "NOT_FOUND", appErr.Code)
	assert.Equal(t, "notice not found: missing", appErr.Message)
}

func TestIdentityFeedIsUnionOfRoles(t *testing.T) {
	svc := newTestNoticeService(newNoticeRepoMock())
	ctx := context.Background()

	forUsers := createNotice(t, svc, "users", "USER")
	forManagers := createNotice(t, svc, "managers", "DEPARTMENT_MANAGER")
	createNotice(t, svc, "admins", "ADMIN")
	for _, n := range []*models.Notice{forUsers, forManagers} {
		_, err := svc.Publish(ctx, n.ID)
		require.NoError(t, err)
	}

	identity := &models.Identity{ID: "E9", Roles: models.RoleSet{models.RoleUser, models.RoleDepartmentManager}}
	items, _, err := svc.FindActiveNoticesForIdentity(ctx, identity, NoticeListOptions{})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	count, err := svc.CountVisible(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIdentityWithoutRolesSkipsQuery(t *testing.T) {
	repo := newNoticeRepoMock()
	svc := newTestNoticeService(repo)

	items, pagination, err := svc.FindActiveNoticesForIdentity(context.Background(), &models.Identity{ID: "E1"}, NoticeListOptions{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, pagination.TotalCount)
	assert.Zero(t, repo.queries)
}

func TestGetForIdentityHidesInvisibleNotices(t *testing.T) {
	svc := newTestNoticeService(newNoticeRepoMock())
	ctx := context.Background()
	draft := createNotice(t, svc, "draft", "USER")

	user := &models.Identity{ID: "E2", Roles: models.RoleSet{models.RoleUser}}
	_, err := svc.GetForIdentity(ctx, user, draft.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	manager := &models.Identity{ID: "E3", Roles: models.RoleSet{models.RoleNoticeManager}}
	got, err := svc.GetForIdentity(ctx, manager, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, got.ID)

	_, err = svc.Publish(ctx, draft.ID)
	require.NoError(t, err)
	got, err = svc.GetForIdentity(ctx, user, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NoticeStatePublished, got.State)
}

func TestProcessExpiredNoticesIsIdempotent(t *testing.T) {
	repo := newNoticeRepoMock()
	svc := newTestNoticeService(repo)
	ctx := context.Background()

	past := fixedNow.Add(-time.Minute)
	closing, err := svc.Create(ctx, "E1", CreateNoticeRequest{Title: "closed", Description: "d", TargetRoles: []string{"USER"},
		PublishStartAt: fixedNow.Add(-2 * time.Hour), PublishEndAt: &past})
	require.NoError(t, err)
	open := createNotice(t, svc, "open", "USER")
	for _, id := range []string{closing.ID, open.ID} {
		_, err := svc.Publish(ctx, id)
		require.NoError(t, err)
	}

	n, err := svc.ProcessExpiredNotices(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.ProcessExpiredNotices(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := svc.Get(ctx, closing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NoticeStateExpired, stored.State)
	stored, err = svc.Get(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NoticeStatePublished, stored.State)
}

func TestIncrementViewCountIsMonotonic(t *testing.T) {
	svc := newTestNoticeService(newNoticeRepoMock())
	ctx := context.Background()
	notice := createNotice(t, svc, "views", "USER")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.IncrementViewCount(ctx, notice.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := svc.Get(ctx, notice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), stored.ViewCount)

	_, err = svc.IncrementViewCount(ctx, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestUpdateNoticePatch(t *testing.T) {
	svc := newTestNoticeService(newNoticeRepoMock())
	ctx := context.Background()
	notice := createNotice(t, svc, "draft", "USER")

	title := "Final"
	priority := "urgent"
	pinned := true
	updated, err := svc.Update(ctx, notice.ID, UpdateNoticeRequest{Title: &title, Priority: &priority, IsPinned: &pinned})
	require.NoError(t, err)
	assert.Equal(t, "Final", updated.Title)
	assert.Equal(t, models.NoticePriorityUrgent, updated.Priority)
	assert.True(t, updated.IsPinned)
	assert.Equal(t, "body", updated.Description)
	assert.Equal(t, models.NoticeStateDraft, updated.State)

	bad := "SOMEDAY"
	_, err = svc.Update(ctx, notice.ID, UpdateNoticeRequest{Priority: &bad})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Update(ctx, "missing", UpdateNoticeRequest{Title: &title})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestFeedOrderingAndAdminListing(t *testing.T) {
	svc := newTestNoticeService(newNoticeRepoMock())
	ctx := context.Background()

	low := createNotice(t, svc, "low", "USER")
	urgentP := "URGENT"
	urgent, err := svc.Create(ctx, "E2", CreateNoticeRequest{Title: "urgent", Description: "d", TargetRoles: []string{"USER"}, PublishStartAt: fixedNow.Add(-time.Hour), Priority: urgentP})
	require.NoError(t, err)
	pinned, err := svc.Create(ctx, "E2", CreateNoticeRequest{Title: "pinned", Description: "d", TargetRoles: []string{"USER"}, PublishStartAt: fixedNow.Add(-time.Hour), Priority: "LOW", IsPinned: true})
	require.NoError(t, err)
	for _, id := range []string{low.ID, urgent.ID, pinned.ID} {
		_, err := svc.Publish(ctx, id)
		require.NoError(t, err)
	}

	items, _, err := svc.FindActiveNoticesForRole(ctx, models.RoleUser, NoticeListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{pinned.ID, urgent.ID, low.ID}, []string{items[0].ID, items[1].ID, items[2].ID})

	all, pagination, err := svc.FindAllForAdmin(ctx, NoticeAdminOptions{AuthorID: "E2", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, pagination.TotalCount)

	role := models.RoleUser
	n, err := svc.Count(ctx, nil, "", &role)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDeleteNotice(t *testing.T) {
	svc := newTestNoticeService(newNoticeRepoMock())
	ctx := context.Background()
	notice := createNotice(t, svc, "bye", "USER")

	require.NoError(t, svc.Delete(ctx, notice.ID))
	assert.ErrorIs(t, svc.Delete(ctx, notice.ID), appErrors.ErrNotFound)
}

func TestFeedRepositoryFailureIsInternal(t *testing.T) {
	repo := newNoticeRepoMock()
	repo.listErr = errors.New("connection reset")
	svc := newTestNoticeService(repo)

	_, _, err := svc.FindActiveNoticesForRole(context.Background(), models.RoleUser, NoticeListOptions{})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestCachedFeedDropsNoticeWhenWindowCloses(t *testing.T) {
	repo := newNoticeRepoMock()
	svc, mem, clock := newCachedNoticeService(repo)
	ctx := context.Background()

	end := fixedNow.Add(time.Second)
	notice, err := svc.Create(ctx, "E1", CreateNoticeRequest{Title: "flash", Description: "d", TargetRoles: []string{"USER"},
		PublishStartAt: fixedNow.Add(-time.Hour), PublishEndAt: &end})
	require.NoError(t, err)
	_, err = svc.Publish(ctx, notice.ID)
	require.NoError(t, err)

	opts := NoticeListOptions{Limit: 10}
	key := feedCacheKey([]models.Role{models.RoleUser}, opts)
	items, _, err := svc.FindActiveNoticesForRole(ctx, models.RoleUser, opts)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, repo.queries)
	assert.Equal(t, time.Second, mem.ttlFor(key))

	items, _, err = svc.FindActiveNoticesForRole(ctx, models.RoleUser, opts)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, repo.queries, "second read inside the window is served from cache")

	*clock = fixedNow.Add(10 * time.Second)
	items, pagination, err := svc.FindActiveNoticesForRole(ctx, models.RoleUser, opts)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, pagination.TotalCount)
	assert.Equal(t, 2, repo.queries)
	assert.Equal(t, time.Minute, mem.ttlFor(key))
}

func TestCachedFeedPicksUpScheduledNotice(t *testing.T) {
	repo := newNoticeRepoMock()
	svc, mem, clock := newCachedNoticeService(repo)
	ctx := context.Background()

	notice, err := svc.Create(ctx, "E1", CreateNoticeRequest{Title: "later", Description: "d", TargetRoles: []string{"USER"},
		PublishStartAt: fixedNow.Add(30 * time.Second)})
	require.NoError(t, err)
	_, err = svc.Publish(ctx, notice.ID)
	require.NoError(t, err)

	opts := NoticeListOptions{}
	items, _, err := svc.FindActiveNoticesForRole(ctx, models.RoleUser, opts)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 30*time.Second, mem.ttlFor(feedCacheKey([]models.Role{models.RoleUser}, opts)))

	*clock = fixedNow.Add(30 * time.Second)
	items, _, err = svc.FindActiveNoticesForRole(ctx, models.RoleUser, opts)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, notice.ID, items[0].ID)
}

func TestCachedFeedSkipsWriteAtBoundary(t *testing.T) {
	repo := newNoticeRepoMock()
	svc, mem, _ := newCachedNoticeService(repo)
	ctx := context.Background()

	end := fixedNow
	notice, err := svc.Create(ctx, "E1", CreateNoticeRequest{Title: "last second", Description: "d", TargetRoles: []string{"USER"},
		PublishStartAt: fixedNow.Add(-time.Hour), PublishEndAt: &end})
	require.NoError(t, err)
	_, err = svc.Publish(ctx, notice.ID)
	require.NoError(t, err)

	items, _, err := svc.FindActiveNoticesForRole(ctx, models.RoleUser, NoticeListOptions{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Empty(t, mem.entries)
}

func TestViewCountLagsInCachedFeed(t *testing.T) {
	repo := newNoticeRepoMock()
	svc, _, clock := newCachedNoticeService(repo)
	ctx := context.Background()

	notice := createNotice(t, svc, "views", "USER")
	_, err := svc.Publish(ctx, notice.ID)
	require.NoError(t, err)

	items, _, err := svc.FindActiveNoticesForRole(ctx, models.RoleUser, NoticeListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(0), items[0].ViewCount)

	viewed, err := svc.IncrementViewCount(ctx, notice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), viewed.ViewCount)

	items, _, err = svc.FindActiveNoticesForRole(ctx, models.RoleUser, NoticeListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), items[0].ViewCount)

	*clock = fixedNow.Add(time.Minute)
	items, _, err = svc.FindActiveNoticesForRole(ctx, models.RoleUser, NoticeListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), items[0].ViewCount)
}
