//go:build integration

package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/noah-isme/cms-api/internal/models"
	"github.com/noah-isme/cms-api/pkg/database"
)

func startPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("cms_test"),
		postgres.WithUsername("cms"),
		postgres.WithPassword("cms"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, database.MigrateUp(url))

	db, err := database.Open(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestIntegrationNoticeLifecycle(t *testing.T) {
	db := startPostgres(t)
	repo := NewNoticeRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	past := now.Add(-time.Hour)
	seed := []models.Notice{
		{Title: "low", Priority: models.NoticePriorityLow, State: models.NoticeStatePublished},
		{Title: "urgent", Priority: models.NoticePriorityUrgent, State: models.NoticeStatePublished},
		{Title: "pinned", Priority: models.NoticePriorityLow, State: models.NoticeStatePublished, IsPinned: true},
		{Title: "closed", Priority: models.NoticePriorityHigh, State: models.NoticeStatePublished, PublishEndAt: &past},
		{Title: "draft", Priority: models.NoticePriorityHigh, State: models.NoticeStateDraft},
	}
	for i := range seed {
		seed[i].AuthorID = "E1"
		seed[i].TargetRoles = models.RoleSet{models.RoleUser}
		seed[i].PublishStartAt = now.Add(-2 * time.Hour)
		require.NoError(t, repo.Create(ctx, &seed[i]))
	}

	visible, total, err := repo.ListVisible(ctx, models.NoticeFeedQuery{Roles: []models.Role{models.RoleUser}, At: now})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	expected := append([]models.Notice(nil), visible...)
	sort.SliceStable(expected, func(i, j int) bool { return models.NoticeLess(expected[i], expected[j]) })
	for i := range visible {
		assert.Equal(t, expected[i].ID, visible[i].ID)
	}
	assert.Equal(t, "pinned", visible[0].Title)
	assert.Equal(t, "urgent", visible[1].Title)

	n, err := repo.ExpirePublished(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.ExpirePublished(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	hidden, err := repo.SetState(ctx, seed[3].ID, models.NoticeStatePublished)
	require.NoError(t, err)
	assert.Equal(t, models.NoticeStatePublished, hidden.State)
}

func TestIntegrationConcurrentViewCount(t *testing.T) {
	db := startPostgres(t)
	repo := NewNoticeRepository(db)
	ctx := context.Background()

	notice := &models.Notice{Title: "views", AuthorID: "E1", TargetRoles: models.RoleSet{models.RoleUser},
		PublishStartAt: time.Now().UTC(), State: models.NoticeStatePublished, Priority: models.NoticePriorityMedium}
	require.NoError(t, repo.Create(ctx, notice))

	const workers = 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.IncrementViewCount(ctx, notice.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.GetByID(ctx, notice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), stored.ViewCount)
}

func TestIntegrationLicenseUsageGuard(t *testing.T) {
	db := startPostgres(t)
	repo := NewSoftwareRepository(db)
	ctx := context.Background()

	item := &models.Software{Name: "IDE", ManagerID: "E1", TotalLicenses: 5, IsActive: true, DepartmentIDs: []string{"D1"}}
	require.NoError(t, repo.Create(ctx, item))

	_, err := repo.UpdateUsage(ctx, item.ID, 6)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	stored, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.UsedLicenses)

	updated, err := repo.UpdateUsage(ctx, item.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.UsedLicenses)

	byDept, err := repo.ListByDepartment(ctx, "D1")
	require.NoError(t, err)
	assert.Len(t, byDept, 1)
}
