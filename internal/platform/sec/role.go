// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// # User Roles

// UserRole represents the authorization level granted to an account.
type UserRole string

const (
	// Unrestricted marketplace administration
	RoleAdmin UserRole = "ADMIN"

	// Owns and manages one or more stores
	RoleSeller UserRole = "SELLER"

	// Default role for registered shoppers
	RoleUser UserRole = "USER"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	return r.level() > 0
}

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r UserRole) level() int {
	switch r {
	case RoleAdmin:
		return 30
	case RoleSeller:
		return 20
	case RoleUser:
		return 10
	default:
		return 0
	}
}
