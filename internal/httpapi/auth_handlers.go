package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"gatekeeper.dev/internal/audit"
	"gatekeeper.dev/internal/obs"
	"gatekeeper.dev/internal/rbac"
	"gatekeeper.dev/internal/token"
	"gatekeeper.dev/internal/users"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      users.User `json:"user"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	u, err := a.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			if !a.recordAudit(w, r, audit.Entry{
				SubjectID: "anonymous",
				Email:     strings.TrimSpace(strings.ToLower(req.Email)),
				Action:    audit.ActionRead,
				Resource:  audit.ResourceUser,
				Status:    audit.StatusFailure,
				Details:   "failed login attempt",
			}) {
				return
			}
			writeError(w, r, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	a.issueSession(w, r, u, "user logged in")
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Self-registration always starts at viewer; promotion is an admin
	// operation on /v1/admin/users.
	u, err := a.users.Create(r.Context(), req.Email, req.Name, req.Password, rbac.RoleViewer)
	if err != nil {
		handleUserError(w, r, err)
		return
	}

	if !a.recordAudit(w, r, audit.Entry{
		SubjectID:    u.ID,
		SubjectName:  u.Name,
		Email:        u.Email,
		Action:       audit.ActionCreate,
		Resource:     audit.ResourceUser,
		ResourceID:   u.ID,
		ResourceName: u.Name,
		Status:       audit.StatusSuccess,
		Details:      "user signed up",
	}) {
		return
	}

	a.writeSession(w, r, u, http.StatusCreated)
}

// issueSession records the successful login and returns a fresh token.
func (a *API) issueSession(w http.ResponseWriter, r *http.Request, u users.User, details string) {
	if !a.recordAudit(w, r, audit.Entry{
		SubjectID:   u.ID,
		SubjectName: u.Name,
		Email:       u.Email,
		Action:      audit.ActionRead,
		Resource:    audit.ResourceUser,
		ResourceID:  u.ID,
		Status:      audit.StatusSuccess,
		Details:     details,
	}) {
		return
	}
	a.writeSession(w, r, u, http.StatusOK)
}

func (a *API) writeSession(w http.ResponseWriter, r *http.Request, u users.User, code int) {
	raw, expiresAt, err := a.tokens.Issue(token.Identity{
		SubjectID: u.ID,
		Email:     u.Email,
		Role:      u.ParsedRole(),
	})
	if err != nil {
		obs.Log("error", "token_issue_failed", map[string]any{"error": err.Error()})
		writeError(w, r, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, code, sessionResponse{Token: raw, ExpiresAt: expiresAt, User: u})
}
