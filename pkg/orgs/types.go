package orgs

import "time"

// Plan represents subscription plan tiers. Unknown strings are tolerated in
// storage; quota enforcement maps them to the free tier's limits.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Role represents org-level membership roles.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// MembershipStatus represents the lifecycle state of a membership.
// Only StatusActive satisfies role checks.
type MembershipStatus string

const (
	StatusPending   MembershipStatus = "pending"
	StatusActive    MembershipStatus = "active"
	StatusSuspended MembershipStatus = "suspended"
)

// Organization is the tenant boundary. ID is the externally issued org id.
type Organization struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Plan           Plan      `json:"plan"`
	AICallsUsed    int       `json:"ai_calls_used"`
	AICallsResetAt time.Time `json:"ai_calls_reset_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Membership joins a user to an organization with a role and a status.
type Membership struct {
	ID        int64            `json:"id"`
	OrgID     string           `json:"org_id"`
	UserID    int64            `json:"user_id"`
	Role      Role             `json:"role"`
	Status    MembershipStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// IsActive reports whether the membership may satisfy role checks.
func (m *Membership) IsActive() bool {
	return m.Status == StatusActive
}
