package models

import (
	"time"

	"github.com/lib/pq"
)

// User is a CMS account keyed by the employee id from the metadata server.
type User struct {
	ID          string         `db:"id" json:"id"`
	Role        Role           `db:"role" json:"role"`
	ActiveTabs  pq.StringArray `db:"active_tabs" json:"active_tabs"`
	LastLoginAt *time.Time     `db:"last_login_at" json:"last_login_at,omitempty"`
	IsActive    bool           `db:"is_active" json:"is_active"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role     *Role
	Active   *bool
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NewPagination derives page metadata from a limit/offset window.
func NewPagination(limit, offset, total int) *Pagination {
	page := 1
	if limit > 0 {
		page = offset/limit + 1
	}
	return &Pagination{Page: page, PageSize: limit, TotalCount: total}
}
