package domain

import "time"

// Role enumerates the access levels a user can hold.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// IsStaff reports whether the role may see and triage all tickets.
func (r Role) IsStaff() bool {
	return r == RoleModerator || r == RoleAdmin
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// User is the domain model for everyone who signs in; requesters,
// moderators and admins are distinguished only by Role.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Skills       []string
	CreatedAt    time.Time
}
