package models

import "fmt"

// Role is the closed set of staff roles a principal can carry.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleKitchen Role = "Kitchen"
	RoleWaiter  Role = "Waiter"
	RoleTill    Role = "Till"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleKitchen, RoleWaiter, RoleTill}

// ParseRole rejects anything outside the closed set.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Principal is what the auth capability hands to every core operation.
// All reads and writes are scoped to TenantID.
type Principal struct {
	Subject  string `json:"sub"`
	Role     Role   `json:"role"`
	TenantID string `json:"tenant_id"`
}
