// Package httpapi wires the authorization gate, the stores and the HTTP
// surface together. Handlers never authenticate on their own: every
// protected route sits behind the gate, and handlers only add
// resource-specific rules on the identity the gate attached.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"gatekeeper.dev/internal/audit"
	"gatekeeper.dev/internal/auth"
	"gatekeeper.dev/internal/obs"
	"gatekeeper.dev/internal/posts"
	"gatekeeper.dev/internal/rbac"
	"gatekeeper.dev/internal/token"
	"gatekeeper.dev/internal/users"
)

// ReadyProbe checks readiness dependencies (currently just a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	gate    *auth.Gate
	tokens  *token.Service
	users   *users.Service
	posts   posts.Store
	audits  audit.Store
	probe   ReadyProbe
	version string

	rateBurst  int
	ratePerSec int
}

// New assembles the API over its collaborators.
func New(probe ReadyProbe, version string, tokens *token.Service, userSvc *users.Service, postStore posts.Store, auditStore audit.Store) *API {
	a := &API{
		mux:        http.NewServeMux(),
		gate:       auth.NewGate(tokens),
		tokens:     tokens,
		users:      userSvc,
		posts:      postStore,
		audits:     auditStore,
		probe:      probe,
		version:    version,
		rateBurst:  50,
		ratePerSec: 25,
	}

	admin := auth.Roles(rbac.RoleAdmin)
	contributors := auth.Roles(rbac.RoleEditor, rbac.RoleAdmin)

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)
	a.mux.HandleFunc("GET /v1/info", a.handleInfo)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	// authentication (public)
	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /v1/auth/signup", a.handleSignup)

	// user administration
	a.mux.Handle("GET /v1/admin/users", a.protect(a.handleListUsers, admin))
	a.mux.Handle("POST /v1/admin/users", a.protect(a.handleCreateUser, admin))
	a.mux.Handle("GET /v1/admin/users/{id}", a.protect(a.handleGetUser, admin))
	a.mux.Handle("PUT /v1/admin/users/{id}", a.protect(a.handleUpdateUser, admin))
	a.mux.Handle("DELETE /v1/admin/users/{id}", a.protect(a.handleDeleteUser, admin))

	// content
	a.mux.Handle("GET /v1/posts", a.protect(a.handleListPosts))
	a.mux.Handle("POST /v1/posts", a.protect(a.handleCreatePost, contributors))
	a.mux.Handle("PUT /v1/posts/{id}", a.protect(a.handleUpdatePost, contributors))
	a.mux.Handle("DELETE /v1/posts/{id}", a.protect(a.handleDeletePost, contributors))

	// audit trail
	a.mux.Handle("GET /v1/audit-logs", a.protect(a.handleAuditLogs, admin))

	// permission introspection
	a.mux.Handle("POST /v1/permissions/check", a.protect(a.handlePermissionCheck))
	a.mux.Handle("GET /v1/permissions/matrix", a.protect(a.handlePermissionMatrix, admin))

	return a
}

func (a *API) protect(h http.HandlerFunc, policies ...auth.Policy) http.Handler {
	return a.gate.Protect(h, policies...)
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- health and info handlers ---

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gatekeeper-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "gatekeeper-api",
		"version": a.version,
		"roles":   roleNames(),
	})
}

func roleNames() []string {
	roles := rbac.Roles()
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.String()
	}
	return out
}

// recordAudit appends one entry and reports whether the request may
// proceed. An append failure is surfaced as a 500 distinct from any
// authorization failure: the audit guarantee is part of the operation.
func (a *API) recordAudit(w http.ResponseWriter, r *http.Request, e audit.Entry) bool {
	if _, err := a.audits.Append(r.Context(), e); err != nil {
		obs.AuditAppend("error")
		obs.Log("error", "audit_append_failed", map[string]any{
			"error":  err.Error(),
			"action": string(e.Action),
		})
		writeError(w, r, http.StatusInternalServerError, "audit log unavailable")
		return false
	}
	obs.AuditAppend("ok")
	return true
}

func auditActor(ident token.Identity, name string) audit.Entry {
	return audit.Entry{
		SubjectID:   ident.SubjectID,
		SubjectName: name,
		Email:       ident.Email,
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, users.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, users.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, users.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "user operation failed")
	}
}

func handlePostError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, posts.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, posts.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "post not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "post operation failed")
	}
}
