package auth

import (
	"errors"
	"fmt"
	"slices"
)

// Role represents an authorisation tier carried in a token.
type Role string

const (
	// RoleViewer can read everything but change nothing.
	RoleViewer Role = "viewer"

	// RoleOperator can also change setpoints and trigger refreshes.
	RoleOperator Role = "operator"

	// RoleAdmin can also add and remove homeservers.
	RoleAdmin Role = "admin"
)

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermStateRead       Permission = "state:read"
	PermDeviceOperate   Permission = "device:operate"
	PermDeviceConfigure Permission = "device:configure"
)

// Errors returned by this package.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrInvalidRole  = errors.New("auth: invalid role")
	ErrForbidden    = errors.New("auth: insufficient permissions")
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermStateRead,
	},
	RoleOperator: {
		PermStateRead,
		PermDeviceOperate,
	},
	RoleAdmin: {
		PermStateRead,
		PermDeviceOperate,
		PermDeviceConfigure,
	},
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := rolePermissions[r]; !ok {
		return "", fmt.Errorf("%w: %q (want viewer, operator or admin)", ErrInvalidRole, s)
	}
	return r, nil
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// Authorize returns ErrForbidden unless role grants perm.
func Authorize(role Role, perm Permission) error {
	if !HasPermission(role, perm) {
		return fmt.Errorf("%w: %s requires %s", ErrForbidden, role, perm)
	}
	return nil
}
