package httpapi

import (
	"net/http"
	"strconv"

	"gatekeeper.dev/internal/audit"
	"gatekeeper.dev/internal/auth"
	"gatekeeper.dev/internal/rbac"
	"gatekeeper.dev/internal/token"
	"gatekeeper.dev/internal/users"
)

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
}

// actor resolves the acting identity to an audit template. The display name
// comes from the user record when it still exists; a subject whose account
// was deleted mid-session falls back to its token email.
func (a *API) actor(r *http.Request) (token.Identity, audit.Entry) {
	ident := auth.MustIdentity(r.Context())
	name := ident.Email
	if u, err := a.users.Get(r.Context(), ident.SubjectID); err == nil {
		name = u.Name
	}
	return ident, auditActor(ident, name)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := a.users.List(r.Context())
	if err != nil {
		handleUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	_, actor := a.actor(r)

	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := rbac.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown role "+strconv.Quote(req.Role))
		return
	}

	u, err := a.users.Create(r.Context(), req.Email, req.Name, req.Password, role)
	if err != nil {
		handleUserError(w, r, err)
		return
	}

	e := actor
	e.Action = audit.ActionCreate
	e.Resource = audit.ResourceUser
	e.ResourceID = u.ID
	e.ResourceName = u.Name
	e.Status = audit.StatusSuccess
	e.Details = "created user " + u.Email + " with role " + u.Role
	if !a.recordAudit(w, r, e) {
		return
	}

	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.users.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		handleUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	_, actor := a.actor(r)
	id := r.PathValue("id")

	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	upd := users.Update{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	}
	if req.Role != nil {
		role, ok := rbac.ParseRole(*req.Role)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "unknown role "+strconv.Quote(*req.Role))
			return
		}
		upd.Role = &role
	}

	before, err := a.users.Get(r.Context(), id)
	if err != nil {
		handleUserError(w, r, err)
		return
	}

	after, err := a.users.Update(r.Context(), id, upd)
	if err != nil {
		handleUserError(w, r, err)
		return
	}

	changes := map[string]audit.Change{}
	if before.Email != after.Email {
		changes["email"] = audit.Change{From: before.Email, To: after.Email}
	}
	if before.Name != after.Name {
		changes["name"] = audit.Change{From: before.Name, To: after.Name}
	}
	if before.Role != after.Role {
		changes["role"] = audit.Change{From: before.Role, To: after.Role}
	}
	if req.Password != nil {
		changes["password"] = audit.Change{From: "[redacted]", To: "[redacted]"}
	}

	e := actor
	e.Action = audit.ActionUpdate
	e.Resource = audit.ResourceUser
	e.ResourceID = after.ID
	e.ResourceName = after.Name
	e.Status = audit.StatusSuccess
	e.Details = "updated user " + after.Email
	e.Changes = changes
	if !a.recordAudit(w, r, e) {
		return
	}

	writeJSON(w, http.StatusOK, after)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ident, actor := a.actor(r)
	id := r.PathValue("id")

	if id == ident.SubjectID {
		writeError(w, r, http.StatusBadRequest, "cannot delete your own account")
		return
	}

	victim, err := a.users.Get(r.Context(), id)
	if err != nil {
		handleUserError(w, r, err)
		return
	}
	if err := a.users.Delete(r.Context(), id); err != nil {
		handleUserError(w, r, err)
		return
	}

	e := actor
	e.Action = audit.ActionDelete
	e.Resource = audit.ResourceUser
	e.ResourceID = victim.ID
	e.ResourceName = victim.Name
	e.Status = audit.StatusSuccess
	e.Details = "deleted user " + victim.Email
	if !a.recordAudit(w, r, e) {
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

