package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cms-api/internal/models"
)

const softwareColumns = `id, name, description, version, vendor, manager_id, license_cost, cost_cycle, department_ids, total_licenses, used_licenses, is_active, license_expiry_date, created_at, updated_at`

// SoftwareRepository handles persistence for the license inventory.
type SoftwareRepository struct {
	db *sqlx.DB
}

// NewSoftwareRepository constructs the repository.
func NewSoftwareRepository(db *sqlx.DB) *SoftwareRepository {
	return &SoftwareRepository{db: db}
}

// ListActive returns active software, newest first.
func (r *SoftwareRepository) ListActive(ctx context.Context, filter models.SoftwareFilter) ([]models.Software, int, error) {
	where := "is_active = TRUE"
	var args []interface{}
	if filter.ManagerID != "" {
		args = append(args, filter.ManagerID)
		where += " AND manager_id = $1"
	}

	limit, offset := window(filter.Limit, filter.Offset)
	query := fmt.Sprintf("SELECT %s FROM softwares WHERE %s ORDER BY created_at DESC, id ASC LIMIT %d OFFSET %d", softwareColumns, where, limit, offset)

	items := []models.Software{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list software: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM softwares WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count software: %w", err)
	}
	return items, total, nil
}

// ListByDepartment returns active software used by a department.
func (r *SoftwareRepository) ListByDepartment(ctx context.Context, departmentID string) ([]models.Software, error) {
	query := `SELECT ` + softwareColumns + ` FROM softwares WHERE is_active = TRUE AND $1 = ANY(department_ids) ORDER BY name ASC`
	items := []models.Software{}
	if err := r.db.SelectContext(ctx, &items, query, departmentID); err != nil {
		return nil, fmt.Errorf("list software by department: %w", err)
	}
	return items, nil
}

// ListByManager returns active software owned by a manager.
func (r *SoftwareRepository) ListByManager(ctx context.Context, managerID string) ([]models.Software, error) {
	query := `SELECT ` + softwareColumns + ` FROM softwares WHERE is_active = TRUE AND manager_id = $1 ORDER BY name ASC`
	items := []models.Software{}
	if err := r.db.SelectContext(ctx, &items, query, managerID); err != nil {
		return nil, fmt.Errorf("list software by manager: %w", err)
	}
	return items, nil
}

// ListLowAvailability returns active software whose seat usage is at or above
// threshold percent, fullest first.
func (r *SoftwareRepository) ListLowAvailability(ctx context.Context, threshold float64) ([]models.Software, error) {
	query := `SELECT ` + softwareColumns + ` FROM softwares
WHERE is_active = TRUE AND total_licenses > 0 AND used_licenses * 100.0 / total_licenses >= $1
ORDER BY used_licenses::numeric / total_licenses DESC, name ASC`
	items := []models.Software{}
	if err := r.db.SelectContext(ctx, &items, query, threshold); err != nil {
		return nil, fmt.Errorf("list low availability software: %w", err)
	}
	return items, nil
}

// ListExpiring returns active software whose license expires within [from, to].
func (r *SoftwareRepository) ListExpiring(ctx context.Context, from, to time.Time) ([]models.Software, error) {
	query := `SELECT ` + softwareColumns + ` FROM softwares
WHERE is_active = TRUE AND license_expiry_date BETWEEN $1 AND $2
ORDER BY license_expiry_date ASC, name ASC`
	items := []models.Software{}
	if err := r.db.SelectContext(ctx, &items, query, from, to); err != nil {
		return nil, fmt.Errorf("list expiring software: %w", err)
	}
	return items, nil
}

// GetByID returns a software record.
func (r *SoftwareRepository) GetByID(ctx context.Context, id string) (*models.Software, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, sql.ErrNoRows
	}
	var item models.Software
	if err := r.db.GetContext(ctx, &item, "SELECT "+softwareColumns+" FROM softwares WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get software: %w", err)
	}
	return &item, nil
}

// Create inserts a software record.
func (r *SoftwareRepository) Create(ctx context.Context, item *models.Software) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.DepartmentIDs == nil {
		item.DepartmentIDs = []string{}
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	const query = `INSERT INTO softwares (id, name, description, version, vendor, manager_id, license_cost, cost_cycle, department_ids, total_licenses, used_licenses, is_active, license_expiry_date, created_at, updated_at)
VALUES (:id, :name, :description, :version, :vendor, :manager_id, :license_cost, :cost_cycle, :department_ids, :total_licenses, :used_licenses, :is_active, :license_expiry_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create software: %w", err)
	}
	return nil
}

// Update writes the mutable columns of item and returns the stored row.
// used_licenses is written only when setUsed is true, and the write only
// lands when the resulting usage fits total_licenses. A missing row or a
// rejected write yields sql.ErrNoRows.
func (r *SoftwareRepository) Update(ctx context.Context, item *models.Software, setUsed bool) (*models.Software, error) {
	if _, err := uuid.Parse(item.ID); err != nil {
		return nil, sql.ErrNoRows
	}
	if item.DepartmentIDs == nil {
		item.DepartmentIDs = []string{}
	}
	item.UpdatedAt = time.Now().UTC()

	set := `name = :name, description = :description, version = :version, vendor = :vendor, manager_id = :manager_id, license_cost = :license_cost, cost_cycle = :cost_cycle, department_ids = :department_ids, total_licenses = :total_licenses, is_active = :is_active, license_expiry_date = :license_expiry_date, updated_at = :updated_at`
	usage := "used_licenses"
	if setUsed {
		set += ", used_licenses = :used_licenses"
		usage = ":used_licenses"
	}
	named := "UPDATE softwares SET " + set + "\nWHERE id = :id AND " + usage + " <= :total_licenses RETURNING " + softwareColumns

	query, args, err := r.db.BindNamed(named, item)
	if err != nil {
		return nil, fmt.Errorf("bind software update: %w", err)
	}
	var updated models.Software
	if err := r.db.GetContext(ctx, &updated, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update software: %w", err)
	}
	return &updated, nil
}

// UpdateUsage sets used_licenses only when it does not exceed total_licenses.
// It returns sql.ErrNoRows when the row is missing or the guard rejected the
// write; callers tell the two apart with GetByID.
func (r *SoftwareRepository) UpdateUsage(ctx context.Context, id string, used int) (*models.Software, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, sql.ErrNoRows
	}
	query := `UPDATE softwares SET used_licenses = $2, updated_at = $3 WHERE id = $1 AND total_licenses >= $2 RETURNING ` + softwareColumns
	var item models.Software
	if err := r.db.GetContext(ctx, &item, query, id, used, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update license usage: %w", err)
	}
	return &item, nil
}

// Deactivate flags a software record as inactive.
func (r *SoftwareRepository) Deactivate(ctx context.Context, id string) (*models.Software, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, sql.ErrNoRows
	}
	query := `UPDATE softwares SET is_active = FALSE, updated_at = $2 WHERE id = $1 RETURNING ` + softwareColumns
	var item models.Software
	if err := r.db.GetContext(ctx, &item, query, id, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("deactivate software: %w", err)
	}
	return &item, nil
}

// Delete removes a software record.
func (r *SoftwareRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return sql.ErrNoRows
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM softwares WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete software: %w", err)
	}
	return expectAffected(res)
}

// CostBuckets sums license costs of active software per cost cycle,
// optionally restricted to one cycle.
func (r *SoftwareRepository) CostBuckets(ctx context.Context, cycle *models.CostCycle) ([]models.CostBucket, error) {
	query := `SELECT cost_cycle, COALESCE(SUM(license_cost), 0) AS total_cost, COUNT(id) AS software_count
FROM softwares WHERE is_active = TRUE AND license_cost IS NOT NULL`
	var args []interface{}
	if cycle != nil {
		query += " AND cost_cycle = $1"
		args = append(args, string(*cycle))
	}
	query += " GROUP BY cost_cycle"

	buckets := []models.CostBucket{}
	if err := r.db.SelectContext(ctx, &buckets, query, args...); err != nil {
		return nil, fmt.Errorf("sum license costs: %w", err)
	}
	return buckets, nil
}
