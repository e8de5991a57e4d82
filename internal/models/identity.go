package models

import "github.com/golang-jwt/jwt/v5"

// Identity is the verified caller attached to a request.
type Identity struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	DepartmentID string  `json:"department_id"`
	Roles        RoleSet `json:"roles"`
}

// HasAnyRole reports whether the identity holds at least one of roles.
func (i *Identity) HasAnyRole(roles ...Role) bool {
	if i == nil {
		return false
	}
	return i.Roles.Intersects(roles)
}

// AccessClaims is the payload of tokens issued by the SSO server.
type AccessClaims struct {
	UserID       string   `json:"userId,omitempty"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	DepartmentID string   `json:"departmentId"`
	Roles        []string `json:"roles"`
	jwt.RegisteredClaims
}

// Identity converts verified claims to an Identity. The subject claim wins
// over userId when both are present.
func (c *AccessClaims) Identity() *Identity {
	id := c.Subject
	if id == "" {
		id = c.UserID
	}
	roles := make(RoleSet, 0, len(c.Roles))
	for _, r := range c.Roles {
		roles = append(roles, Role(r))
	}
	return &Identity{
		ID:           id,
		Email:        c.Email,
		Name:         c.Name,
		DepartmentID: c.DepartmentID,
		Roles:        roles,
	}
}
