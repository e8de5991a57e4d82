package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/lib/pq"
)

// Role identifies a coarse permission group carried in access tokens.
type Role string

const (
	RoleAdmin             Role = "ADMIN"
	RoleNoticeManager     Role = "NOTICE_MANAGER"
	RoleSoftwareManager   Role = "SOFTWARE_MANAGER"
	RoleDepartmentManager Role = "DEPARTMENT_MANAGER"
	RoleUser              Role = "USER"
)

// AllRoles lists every role in descending privilege order.
var AllRoles = []Role{RoleAdmin, RoleNoticeManager, RoleSoftwareManager, RoleDepartmentManager, RoleUser}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// RoleSet is a list of roles persisted as a PostgreSQL text array.
type RoleSet []Role

// Contains reports whether the set holds role.
func (s RoleSet) Contains(role Role) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

// Intersects reports whether the two sets share at least one role.
func (s RoleSet) Intersects(other []Role) bool {
	for _, r := range other {
		if s.Contains(r) {
			return true
		}
	}
	return false
}

// Strings returns the set as plain strings.
func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}

// Highest returns the most privileged role in the set, or RoleUser when none is known.
func (s RoleSet) Highest() Role {
	for _, r := range AllRoles {
		if s.Contains(r) {
			return r
		}
	}
	return RoleUser
}

// Value implements driver.Valuer.
func (s RoleSet) Value() (driver.Value, error) {
	if s == nil {
		return pq.StringArray{}.Value()
	}
	return pq.StringArray(s.Strings()).Value()
}

// Scan implements sql.Scanner.
func (s *RoleSet) Scan(src interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return fmt.Errorf("scan role set: %w", err)
	}
	out := make(RoleSet, len(arr))
	for i, v := range arr {
		out[i] = Role(v)
	}
	*s = out
	return nil
}
