// Package domain defines shared domain constants, types and the principal repository.
package domain

import "strings"

// Role is the closed set of principal roles.
type Role string

const (
	// RoleAdmin can manage events and grant roles to other principals.
	RoleAdmin Role = "admin"
	// RoleOrganizer can create events and drive their lifecycle.
	RoleOrganizer Role = "organizer"
	// RoleParticipant is a standard user who registers for events.
	RoleParticipant Role = "participant"
)

// Role priorities used when comparing privilege levels.
const (
	RolePriorityAdmin       = 3
	RolePriorityOrganizer   = 2
	RolePriorityParticipant = 1
)

// ParseRole normalizes raw input into a Role. Unknown values report false.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleOrganizer:
		return RoleOrganizer, true
	case RoleParticipant:
		return RoleParticipant, true
	default:
		return "", false
	}
}

// RolePriority returns the privilege level of a role; unknown roles rank 0.
func RolePriority(role Role) int {
	switch role {
	case RoleAdmin:
		return RolePriorityAdmin
	case RoleOrganizer:
		return RolePriorityOrganizer
	case RoleParticipant:
		return RolePriorityParticipant
	default:
		return 0
	}
}

// CanManageEvents reports whether the role may create events and change
// their status.
func (r Role) CanManageEvents() bool {
	return RolePriority(r) >= RolePriorityOrganizer
}

// CanGrantRoles reports whether the role may change other principals' roles.
func (r Role) CanGrantRoles() bool {
	return r == RoleAdmin
}
