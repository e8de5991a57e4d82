package models

import "time"

// NoticeState is the lifecycle state of a notice.
type NoticeState string

const (
	NoticeStateDraft     NoticeState = "DRAFT"
	NoticeStatePublished NoticeState = "PUBLISHED"
	NoticeStateExpired   NoticeState = "EXPIRED"
	NoticeStateHidden    NoticeState = "HIDDEN"
)

// Valid reports whether s is a known state.
func (s NoticeState) Valid() bool {
	switch s {
	case NoticeStateDraft, NoticeStatePublished, NoticeStateExpired, NoticeStateHidden:
		return true
	}
	return false
}

// NoticePriority orders notices within a feed.
type NoticePriority string

const (
	NoticePriorityLow    NoticePriority = "LOW"
	NoticePriorityMedium NoticePriority = "MEDIUM"
	NoticePriorityHigh   NoticePriority = "HIGH"
	NoticePriorityUrgent NoticePriority = "URGENT"
)

// Rank returns the ordinal of the priority, LOW being 1. Unknown values rank 0.
func (p NoticePriority) Rank() int {
	switch p {
	case NoticePriorityLow:
		return 1
	case NoticePriorityMedium:
		return 2
	case NoticePriorityHigh:
		return 3
	case NoticePriorityUrgent:
		return 4
	}
	return 0
}

// Valid reports whether p is a known priority.
func (p NoticePriority) Valid() bool {
	return p.Rank() > 0
}

// Notice is an announcement targeted at one or more roles.
type Notice struct {
	ID             string         `db:"id" json:"id"`
	Title          string         `db:"title" json:"title"`
	Description    string         `db:"description" json:"description"`
	AuthorID       string         `db:"author_id" json:"author_id"`
	TargetRoles    RoleSet        `db:"target_roles" json:"target_roles"`
	PublishStartAt time.Time      `db:"publish_start_at" json:"publish_start_at"`
	PublishEndAt   *time.Time     `db:"publish_end_at" json:"publish_end_at,omitempty"`
	State          NoticeState    `db:"state" json:"state"`
	Priority       NoticePriority `db:"priority" json:"priority"`
	IsPinned       bool           `db:"is_pinned" json:"is_pinned"`
	ViewCount      int64          `db:"view_count" json:"view_count"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// VisibleTo reports whether a holder of role sees the notice at instant at.
// Both window bounds are inclusive.
func (n *Notice) VisibleTo(role Role, at time.Time) bool {
	if n == nil || n.State != NoticeStatePublished {
		return false
	}
	if n.PublishStartAt.After(at) {
		return false
	}
	if n.PublishEndAt != nil && n.PublishEndAt.Before(at) {
		return false
	}
	return n.TargetRoles.Contains(role)
}

// VisibleToAny reports whether any of roles sees the notice at instant at.
func (n *Notice) VisibleToAny(roles []Role, at time.Time) bool {
	for _, r := range roles {
		if n.VisibleTo(r, at) {
			return true
		}
	}
	return false
}

// NoticeLess is the feed ordering: pinned first, then higher priority, then
// newer, with the id as a final tie-break.
func NoticeLess(a, b Notice) bool {
	if a.IsPinned != b.IsPinned {
		return a.IsPinned
	}
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra > rb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// NoticeFeedQuery selects the visible feed for a set of roles.
type NoticeFeedQuery struct {
	Roles    []Role
	At       time.Time
	Priority *NoticePriority
	Limit    int
	Offset   int
}

// NoticeAdminFilter selects notices regardless of visibility.
type NoticeAdminFilter struct {
	State    *NoticeState
	AuthorID string
	Limit    int
	Offset   int
}

// NoticeCountFilter narrows a notice count. When Role is set only notices
// visible to that role at At are counted.
type NoticeCountFilter struct {
	State    *NoticeState
	AuthorID string
	Role     *Role
	At       time.Time
}
