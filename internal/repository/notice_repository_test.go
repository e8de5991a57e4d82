package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cms-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var noticeRowColumns = []string{"id", "title", "description", "author_id", "target_roles", "publish_start_at", "publish_end_at", "state", "priority", "is_pinned", "view_count", "created_at", "updated_at"}

const noticeID = "5f0c6a8e-2f57-4a8e-9a56-1a0d4c6f2b11"

func noticeRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(noticeRowColumns).
		AddRow(noticeID, "Quarterly town hall", "Join us", "E100", "{USER,ADMIN}", now.Add(-time.Hour), nil, "PUBLISHED", "HIGH", true, int64(4), now, now)
}

func TestNoticeListVisibleAppliesPredicateAndOrder(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	priority := models.NoticePriorityHigh

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+noticeColumns+" FROM notices WHERE state = 'PUBLISHED' AND publish_start_at <= $1 AND (publish_end_at IS NULL OR publish_end_at >= $1) AND target_roles && $2 AND priority = $3 ORDER BY is_pinned DESC, priority DESC, created_at DESC, id ASC LIMIT 10 OFFSET 20")).
		WithArgs(now, sqlmock.AnyArg(), "HIGH").
		WillReturnRows(noticeRows(now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notices WHERE state = 'PUBLISHED'")).
		WithArgs(now, sqlmock.AnyArg(), "HIGH").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))

	notices, total, err := repo.ListVisible(context.Background(), models.NoticeFeedQuery{
		Roles: []models.Role{models.RoleUser}, At: now, Priority: &priority, Limit: 10, Offset: 20,
	})
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, 21, total)
	assert.Equal(t, models.RoleSet{models.RoleUser, models.RoleAdmin}, notices[0].TargetRoles)
	assert.Nil(t, notices[0].PublishEndAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeListAllClampsWindow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	state := models.NoticeStateDraft
	mock.ExpectQuery(regexp.QuoteMeta("FROM notices WHERE 1=1 AND state = $1 AND author_id = $2 ORDER BY is_pinned DESC, priority DESC, created_at DESC, id ASC LIMIT 100 OFFSET 0")).
		WithArgs("DRAFT", "E100").
		WillReturnRows(sqlmock.NewRows(noticeRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notices WHERE 1=1 AND state = $1 AND author_id = $2")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	notices, total, err := repo.ListAll(context.Background(), models.NoticeAdminFilter{State: &state, AuthorID: "E100", Limit: 500, Offset: -3})
	require.NoError(t, err)
	assert.Empty(t, notices)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeCountWithRoleUsesVisibility(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	now := time.Now().UTC()
	role := models.RoleNoticeManager
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notices WHERE 1=1 AND author_id = $1 AND state = 'PUBLISHED' AND publish_start_at <= $2 AND (publish_end_at IS NULL OR publish_end_at >= $2) AND target_roles && $3")).
		WithArgs("E7", now, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.Count(context.Background(), models.NoticeCountFilter{AuthorID: "E7", Role: &role, At: now})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeIncrementViewCountIsSingleStatement(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE notices SET view_count = view_count + 1 WHERE id = $1 RETURNING")).
		WithArgs(noticeID).
		WillReturnRows(noticeRows(now))

	notice, err := repo.IncrementViewCount(context.Background(), noticeID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), notice.ViewCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeSetStateMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE notices SET state = $2, updated_at = $3 WHERE id = $1 RETURNING")).
		WithArgs(noticeID, "HIDDEN", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.SetState(context.Background(), noticeID, models.NoticeStateHidden)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = repo.SetState(context.Background(), "not-a-uuid", models.NoticeStateHidden)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeExpirePublished(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("WHERE state = 'PUBLISHED' AND publish_end_at IS NOT NULL AND publish_end_at < $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ExpirePublished(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeNextVisibilityChange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	boundary := now.Add(90 * time.Second)
	mock.ExpectQuery(regexp.QuoteMeta("FROM notices WHERE state = 'PUBLISHED' AND target_roles && $2")).
		WithArgs(now, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"least"}).AddRow(boundary))
	mock.ExpectQuery(regexp.QuoteMeta("MIN(publish_end_at) FILTER (WHERE publish_end_at >= $1)")).
		WithArgs(now, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"least"}).AddRow(nil))

	next, err := repo.NextVisibilityChange(context.Background(), []models.Role{models.RoleUser}, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(boundary))

	next, err = repo.NextVisibilityChange(context.Background(), []models.Role{models.RoleUser}, now)
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM notices WHERE id = $1")).
		WithArgs(noticeID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), noticeID), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	mock.ExpectExec("INSERT INTO notices").WillReturnResult(sqlmock.NewResult(1, 1))

	notice := &models.Notice{Title: "t", TargetRoles: models.RoleSet{models.RoleUser}, State: models.NoticeStateDraft, Priority: models.NoticePriorityMedium}
	require.NoError(t, repo.Create(context.Background(), notice))
	assert.NotEmpty(t, notice.ID)
	assert.False(t, notice.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
