package auth

import "gatekeeper.dev/internal/rbac"

// Policy decides whether a verified role may pass a gate. The two built-in
// policies make the exact-match versus hierarchy choice explicit at the
// call site instead of hiding it in uncoordinated helpers.
type Policy struct {
	name  string
	allow func(rbac.Role) bool
}

// Name identifies the policy in logs and tests.
func (p Policy) Name() string { return p.name }

// Allows reports whether role passes the policy.
func (p Policy) Allows(role rbac.Role) bool {
	if p.allow == nil {
		return true
	}
	return p.allow(role)
}

// Roles requires literal set membership: the verified role must be one of
// the listed roles. A higher-ranked role outside the set is still rejected.
func Roles(roles ...rbac.Role) Policy {
	set := make(map[rbac.Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return Policy{
		name: "roles",
		allow: func(role rbac.Role) bool {
			_, ok := set[role]
			return ok
		},
	}
}

// MinRole requires the verified role to rank at or above minimum in the
// role hierarchy.
func MinRole(minimum rbac.Role) Policy {
	return Policy{
		name: "min_role",
		allow: func(role rbac.Role) bool {
			return rbac.AtLeast(role, minimum)
		},
	}
}

// Permission requires the verified role to hold the given permission.
func Permission(perm rbac.Permission) Policy {
	return Policy{
		name: "permission",
		allow: func(role rbac.Role) bool {
			return rbac.HasPermission(role, perm)
		},
	}
}
