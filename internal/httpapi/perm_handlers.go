package httpapi

import (
	"net/http"
	"strconv"

	"gatekeeper.dev/internal/auth"
	"gatekeeper.dev/internal/rbac"
)

type permissionCheckRequest struct {
	Permission string `json:"permission"`
}

type permissionDescriptor struct {
	Permission  rbac.Permission `json:"permission"`
	DisplayName string          `json:"displayName"`
}

func (a *API) handlePermissionCheck(w http.ResponseWriter, r *http.Request) {
	ident := auth.MustIdentity(r.Context())

	var req permissionCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	perm := rbac.Permission(req.Permission)
	if !knownPermission(perm) {
		writeError(w, r, http.StatusBadRequest, "unknown permission "+strconv.Quote(req.Permission))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hasPermission": rbac.HasPermission(ident.Role, perm),
		"role":          ident.Role.String(),
		"permission":    perm,
	})
}

func (a *API) handlePermissionMatrix(w http.ResponseWriter, r *http.Request) {
	matrix := make(map[string][]rbac.Permission, len(rbac.Roles()))
	for _, role := range rbac.Roles() {
		matrix[role.String()] = rbac.Permissions(role)
	}

	all := rbac.AllPermissions()
	descriptors := make([]permissionDescriptor, len(all))
	for i, p := range all {
		descriptors[i] = permissionDescriptor{Permission: p, DisplayName: rbac.DisplayName(p)}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"matrix":         matrix,
		"allPermissions": descriptors,
		"roles":          roleNames(),
	})
}

func knownPermission(p rbac.Permission) bool {
	for _, known := range rbac.AllPermissions() {
		if known == p {
			return true
		}
	}
	return false
}
