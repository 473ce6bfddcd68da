package member

import (
	"errors"
	"time"
)

var (
	ErrMemberNotFound    = errors.New("member not found")
	ErrEmailTaken        = errors.New("email already belongs to a member")
	ErrCrossTenantEmail  = errors.New("email belongs to a member of another organization")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrSeatLimitExceeded = errors.New("organization has reached its seat limit")
)

// Role constants. A member's role is scoped to its organization.
const (
	RoleOwner      = "OWNER"
	RoleAdmin      = "ADMIN"
	RoleInstructor = "INSTRUCTOR"
	RoleLearner    = "LEARNER"
)

// ValidRole reports whether role is one of the known member roles.
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleInstructor, RoleLearner:
		return true
	}
	return false
}

// CanManageInvitations reports whether the role may issue, list and revoke
// invitations.
func CanManageInvitations(role string) bool {
	return role == RoleOwner || role == RoleAdmin
}

// Member is a user of one organization. An active member occupies exactly
// one seat; deactivated members keep their row but free the seat.
type Member struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Email          string     `json:"email"`
	Username       string     `json:"username"`
	FirstName      string     `json:"first_name,omitempty"`
	LastName       string     `json:"last_name,omitempty"`
	PasswordHash   string     `json:"-"`
	Role           string     `json:"role"`
	IsActive       bool       `json:"is_active"`
	InvitedBy      *string    `json:"invited_by,omitempty"`
	JoinedAt       time.Time  `json:"joined_at"`
	DeactivatedAt  *time.Time `json:"deactivated_at,omitempty"`
}
