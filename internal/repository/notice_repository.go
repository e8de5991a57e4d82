package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cms-api/internal/models"
)

const (
	noticeColumns = `id, title, description, author_id, target_roles, publish_start_at, publish_end_at, state, priority, is_pinned, view_count, created_at, updated_at`
	noticeOrder   = `ORDER BY is_pinned DESC, priority DESC, created_at DESC, id ASC`

	defaultLimit = 20
	maxLimit     = 100
)

// NoticeRepository provides persistence for notices.
type NoticeRepository struct {
	db *sqlx.DB
}

// NewNoticeRepository creates the repository.
func NewNoticeRepository(db *sqlx.DB) *NoticeRepository {
	return &NoticeRepository{db: db}
}

// visibleClause renders the visibility predicate for roles at instant at,
// numbering placeholders after the given args.
func visibleClause(args []interface{}, roles []models.Role, at time.Time) (string, []interface{}) {
	atIdx := len(args) + 1
	rolesIdx := len(args) + 2
	clause := fmt.Sprintf("state = 'PUBLISHED' AND publish_start_at <= $%d AND (publish_end_at IS NULL OR publish_end_at >= $%d) AND target_roles && $%d",
		atIdx, atIdx, rolesIdx)
	return clause, append(args, at, pqStringArray(models.RoleSet(roles).Strings()))
}

// ListVisible returns notices visible to any of the query roles, feed ordered.
func (r *NoticeRepository) ListVisible(ctx context.Context, q models.NoticeFeedQuery) ([]models.Notice, int, error) {
	where, args := visibleClause(nil, q.Roles, q.At)
	if q.Priority != nil {
		where += fmt.Sprintf(" AND priority = $%d", len(args)+1)
		args = append(args, string(*q.Priority))
	}

	limit, offset := window(q.Limit, q.Offset)
	query := fmt.Sprintf("SELECT %s FROM notices WHERE %s %s LIMIT %d OFFSET %d", noticeColumns, where, noticeOrder, limit, offset)

	notices := []models.Notice{}
	if err := r.db.SelectContext(ctx, &notices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list visible notices: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notices WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count visible notices: %w", err)
	}
	return notices, total, nil
}

// ListAll returns notices regardless of visibility, feed ordered.
func (r *NoticeRepository) ListAll(ctx context.Context, filter models.NoticeAdminFilter) ([]models.Notice, int, error) {
	where, args := adminClause(filter.State, filter.AuthorID)

	limit, offset := window(filter.Limit, filter.Offset)
	query := fmt.Sprintf("SELECT %s FROM notices WHERE %s %s LIMIT %d OFFSET %d", noticeColumns, where, noticeOrder, limit, offset)

	notices := []models.Notice{}
	if err := r.db.SelectContext(ctx, &notices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notices: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notices WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count notices: %w", err)
	}
	return notices, total, nil
}

// Count returns the number of notices matching filter.
func (r *NoticeRepository) Count(ctx context.Context, filter models.NoticeCountFilter) (int, error) {
	where, args := adminClause(filter.State, filter.AuthorID)
	if filter.Role != nil {
		var visible string
		visible, args = visibleClause(args, []models.Role{*filter.Role}, filter.At)
		where += " AND " + visible
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notices WHERE "+where, args...); err != nil {
		return 0, fmt.Errorf("count notices: %w", err)
	}
	return total, nil
}

// GetByID returns a notice by identifier.
func (r *NoticeRepository) GetByID(ctx context.Context, id string) (*models.Notice, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, sql.ErrNoRows
	}
	var notice models.Notice
	if err := r.db.GetContext(ctx, &notice, "SELECT "+noticeColumns+" FROM notices WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get notice: %w", err)
	}
	return &notice, nil
}

// Create inserts a new notice.
func (r *NoticeRepository) Create(ctx context.Context, notice *models.Notice) error {
	if notice.ID == "" {
		notice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if notice.CreatedAt.IsZero() {
		notice.CreatedAt = now
	}
	notice.UpdatedAt = now

	const query = `INSERT INTO notices (id, title, description, author_id, target_roles, publish_start_at, publish_end_at, state, priority, is_pinned, view_count, created_at, updated_at)
VALUES (:id, :title, :description, :author_id, :target_roles, :publish_start_at, :publish_end_at, :state, :priority, :is_pinned, :view_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notice); err != nil {
		return fmt.Errorf("create notice: %w", err)
	}
	return nil
}

// Update writes the editable fields of a notice. State and view count are
// owned by SetState and IncrementViewCount.
func (r *NoticeRepository) Update(ctx context.Context, notice *models.Notice) error {
	notice.UpdatedAt = time.Now().UTC()
	const query = `UPDATE notices SET title = :title, description = :description, target_roles = :target_roles,
publish_start_at = :publish_start_at, publish_end_at = :publish_end_at, priority = :priority, is_pinned = :is_pinned, updated_at = :updated_at
WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, notice)
	if err != nil {
		return fmt.Errorf("update notice: %w", err)
	}
	return expectAffected(res)
}

// SetState unconditionally sets the state and returns the updated row.
func (r *NoticeRepository) SetState(ctx context.Context, id string, state models.NoticeState) (*models.Notice, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, sql.ErrNoRows
	}
	query := `UPDATE notices SET state = $2, updated_at = $3 WHERE id = $1 RETURNING ` + noticeColumns
	var notice models.Notice
	if err := r.db.GetContext(ctx, &notice, query, id, string(state), time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("set notice state: %w", err)
	}
	return &notice, nil
}

// IncrementViewCount atomically adds one view and returns the updated row.
func (r *NoticeRepository) IncrementViewCount(ctx context.Context, id string) (*models.Notice, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, sql.ErrNoRows
	}
	query := `UPDATE notices SET view_count = view_count + 1 WHERE id = $1 RETURNING ` + noticeColumns
	var notice models.Notice
	if err := r.db.GetContext(ctx, &notice, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("increment notice view count: %w", err)
	}
	return &notice, nil
}

// NextVisibilityChange returns the earliest instant after at when a published
// notice targeting roles enters or leaves its window, or nil when none will.
func (r *NoticeRepository) NextVisibilityChange(ctx context.Context, roles []models.Role, at time.Time) (*time.Time, error) {
	const query = `SELECT LEAST(
	MIN(publish_start_at) FILTER (WHERE publish_start_at > $1),
	MIN(publish_end_at) FILTER (WHERE publish_end_at >= $1)
) FROM notices WHERE state = 'PUBLISHED' AND target_roles && $2`
	var next sql.NullTime
	if err := r.db.GetContext(ctx, &next, query, at, pqStringArray(models.RoleSet(roles).Strings())); err != nil {
		return nil, fmt.Errorf("next visibility change: %w", err)
	}
	if !next.Valid {
		return nil, nil
	}
	return &next.Time, nil
}

// ExpirePublished moves published notices whose window closed before at to
// EXPIRED and returns how many rows changed.
func (r *NoticeRepository) ExpirePublished(ctx context.Context, at time.Time) (int64, error) {
	const query = `UPDATE notices SET state = 'EXPIRED', updated_at = $1
WHERE state = 'PUBLISHED' AND publish_end_at IS NOT NULL AND publish_end_at < $1`
	res, err := r.db.ExecContext(ctx, query, at)
	if err != nil {
		return 0, fmt.Errorf("expire notices: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire notices rows: %w", err)
	}
	return n, nil
}

// Delete removes a notice permanently.
func (r *NoticeRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return sql.ErrNoRows
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM notices WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete notice: %w", err)
	}
	return expectAffected(res)
}

func adminClause(state *models.NoticeState, authorID string) (string, []interface{}) {
	conditions := []string{"1=1"}
	var args []interface{}
	if state != nil {
		args = append(args, string(*state))
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)))
	}
	if authorID != "" {
		args = append(args, authorID)
		conditions = append(conditions, fmt.Sprintf("author_id = $%d", len(args)))
	}
	return strings.Join(conditions, " AND "), args
}
