// Package rbac defines the static role and permission model.
//
// Roles form a closed, ordered set; permissions are opaque string tags
// drawn from a closed catalog. The role→permission mapping is fixed
// configuration: nothing in this package mutates state, so every function
// here is safe to call from any goroutine.
package rbac

import "strings"

// Role identifies one of the built-in roles. The zero value is unknown and
// holds no permissions.
type Role int

const (
	RoleUnknown Role = iota
	RoleViewer
	RoleEditor
	RoleAdmin
)

// ParseRole maps a string (case-insensitive) onto a known role.
// Unrecognized input yields RoleUnknown and ok=false.
func ParseRole(s string) (Role, bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "viewer":
		return RoleViewer, true
	case "editor":
		return RoleEditor, true
	case "admin":
		return RoleAdmin, true
	default:
		return RoleUnknown, false
	}
}

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleEditor:
		return "editor"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Rank returns the hierarchy position used by AtLeast. Unknown roles rank 0
// and therefore satisfy no minimum above zero.
func (r Role) Rank() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// Roles returns the known roles in ascending hierarchy order.
func Roles() []Role {
	return []Role{RoleViewer, RoleEditor, RoleAdmin}
}

// Permission is an opaque capability tag.
type Permission string

const (
	PermCreateContent    Permission = "create:content"
	PermReadContent      Permission = "read:content"
	PermUpdateOwnContent Permission = "update:own_content"
	PermUpdateAnyContent Permission = "update:any_content"
	PermDeleteContent    Permission = "delete:content"
	PermManageUsers      Permission = "manage:users"
	PermViewAuditLogs    Permission = "view:audit_logs"
)

var displayNames = map[Permission]string{
	PermCreateContent:    "Create Content",
	PermReadContent:      "View Content",
	PermUpdateOwnContent: "Edit Own Content",
	PermUpdateAnyContent: "Edit Any Content",
	PermDeleteContent:    "Delete Content",
	PermManageUsers:      "Manage Users",
	PermViewAuditLogs:    "View Audit Logs",
}

var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermCreateContent,
		PermReadContent,
		PermUpdateOwnContent,
		PermUpdateAnyContent,
		PermDeleteContent,
		PermManageUsers,
		PermViewAuditLogs,
	},
	RoleEditor: {
		PermCreateContent,
		PermReadContent,
		PermUpdateOwnContent,
	},
	RoleViewer: {
		PermReadContent,
	},
}

// Permissions returns a copy of the configured permission set for role.
// Unknown roles get an empty (non-nil) slice; this never fails.
func Permissions(role Role) []Permission {
	perms := rolePermissions[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether role is granted perm. Permission strings
// outside the catalog are never granted.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether role holds at least one of perms.
func HasAnyPermission(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether role holds every permission in perms.
func HasAllPermissions(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}

// AtLeast reports whether role sits at or above minimum in the hierarchy.
func AtLeast(role, minimum Role) bool {
	return role.Rank() >= minimum.Rank()
}

// AllPermissions returns the full permission catalog in a stable order.
func AllPermissions() []Permission {
	return []Permission{
		PermCreateContent,
		PermReadContent,
		PermUpdateOwnContent,
		PermUpdateAnyContent,
		PermDeleteContent,
		PermManageUsers,
		PermViewAuditLogs,
	}
}

// DisplayName returns the human-readable label for perm, or the raw tag when
// the permission is outside the catalog.
func DisplayName(perm Permission) string {
	if name, ok := displayNames[perm]; ok {
		return name
	}
	return string(perm)
}
