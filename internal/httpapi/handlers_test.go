package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"gatekeeper.dev/internal/audit"
	"gatekeeper.dev/internal/posts"
	"gatekeeper.dev/internal/token"
	"gatekeeper.dev/internal/users"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	tokens, err := token.NewService("test-secret")
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	userSvc, err := users.NewService(users.NewMemStore())
	if err != nil {
		t.Fatalf("user service: %v", err)
	}
	if err := users.SeedDemo(context.Background(), userSvc); err != nil {
		t.Fatalf("seed users: %v", err)
	}

	api := New(ReadyProbe{}, "test", tokens, userSvc, posts.NewMemStore(), audit.NewMemStore())
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) put(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPut, path, body, headers)
}

func (c *apiClient) del(path string, headers map[string]string) *http.Response {
	return c.do(http.MethodDelete, path, nil, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) login(email string) (string, users.User) {
	c.t.Helper()
	resp := c.post("/v1/auth/login", map[string]any{
		"email":    email,
		"password": "password",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login %s: unexpected status %d", email, resp.StatusCode)
	}
	session := decode[sessionResponse](c.t, resp)
	if session.Token == "" {
		c.t.Fatalf("login %s: empty token", email)
	}
	return session.Token, session.User
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestLoginIssuesUsableToken(t *testing.T) {
	c := newTestAPI(t)

	tok, u := c.login("admin@example.com")
	if u.Role != "admin" {
		t.Fatalf("expected admin role, got %q", u.Role)
	}

	resp := c.get("/v1/admin/users", nil, bearer(tok))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 listing users, got %d", resp.StatusCode)
	}
	payload := decode[struct {
		Users []users.User `json:"users"`
	}](t, resp)
	if len(payload.Users) != 3 {
		t.Fatalf("expected 3 seeded users, got %d", len(payload.Users))
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	c := newTestAPI(t)

	for _, tc := range []struct {
		name  string
		email string
		pass  string
	}{
		{"wrong password", "admin@example.com", "nope"},
		{"unknown user", "ghost@example.com", "password"},
	} {
		resp := c.post("/v1/auth/login", map[string]any{
			"email":    tc.email,
			"password": tc.pass,
		}, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", tc.name, resp.StatusCode)
		}
	}
}

func TestProtectedRoutesCollapseAuthFailures(t *testing.T) {
	c := newTestAPI(t)

	// No credentials at all.
	resp := c.get("/v1/admin/users", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no header: expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate challenge")
	}

	// Garbage token.
	resp = c.get("/v1/admin/users", nil, bearer("not.a.token"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", resp.StatusCode)
	}

	// Valid token, insufficient role.
	viewerTok, _ := c.login("viewer@example.com")
	resp = c.get("/v1/admin/users", nil, bearer(viewerTok))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer: expected 403, got %d", resp.StatusCode)
	}
}

func TestSignupStartsAsViewer(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/v1/auth/signup", map[string]any{
		"email":    "new@example.com",
		"name":     "New User",
		"password": "password",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	session := decode[sessionResponse](t, resp)
	if session.User.Role != "viewer" {
		t.Fatalf("expected viewer role, got %q", session.User.Role)
	}

	// The fresh token works but carries no admin rights.
	resp = c.get("/v1/admin/users", nil, bearer(session.Token))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for fresh viewer, got %d", resp.StatusCode)
	}

	// Duplicate email conflicts.
	resp = c.post("/v1/auth/signup", map[string]any{
		"email":    "new@example.com",
		"name":     "Copy Cat",
		"password": "password",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate signup, got %d", resp.StatusCode)
	}
}

func TestUserAdministration(t *testing.T) {
	c := newTestAPI(t)
	adminTok, admin := c.login("admin@example.com")

	resp := c.post("/v1/admin/users", map[string]any{
		"email":    "second.editor@example.com",
		"name":     "Second Editor",
		"password": "password",
		"role":     "editor",
	}, bearer(adminTok))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	created := decode[users.User](t, resp)
	if created.Role != "editor" {
		t.Fatalf("expected editor role, got %q", created.Role)
	}

	resp = c.put("/v1/admin/users/"+created.ID, map[string]any{
		"role": "viewer",
	}, bearer(adminTok))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	updated := decode[users.User](t, resp)
	if updated.Role != "viewer" {
		t.Fatalf("expected demoted viewer, got %q", updated.Role)
	}

	// Unknown role is rejected before touching the store.
	resp = c.put("/v1/admin/users/"+created.ID, map[string]any{
		"role": "superuser",
	}, bearer(adminTok))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad role: expected 400, got %d", resp.StatusCode)
	}

	// Self-deletion is refused.
	resp = c.del("/v1/admin/users/"+admin.ID, bearer(adminTok))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("self delete: expected 400, got %d", resp.StatusCode)
	}

	resp = c.del("/v1/admin/users/"+created.ID, bearer(adminTok))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}

	resp = c.get("/v1/admin/users/"+created.ID, nil, bearer(adminTok))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestPostsVisibilityAndOwnership(t *testing.T) {
	c := newTestAPI(t)
	adminTok, _ := c.login("admin@example.com")
	editorTok, _ := c.login("editor@example.com")
	viewerTok, _ := c.login("viewer@example.com")

	// Viewer may not create content.
	resp := c.post("/v1/posts", map[string]any{
		"title":   "Nope",
		"content": "nope",
	}, bearer(viewerTok))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer create: expected 403, got %d", resp.StatusCode)
	}

	// Editor creates a draft and a published post.
	resp = c.post("/v1/posts", map[string]any{
		"title":   "Draft Notes",
		"content": "work in progress",
	}, bearer(editorTok))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("editor draft: expected 201, got %d", resp.StatusCode)
	}
	draft := decode[posts.Post](t, resp)
	if draft.Status != posts.StatusDraft {
		t.Fatalf("expected default draft status, got %q", draft.Status)
	}

	resp = c.post("/v1/posts", map[string]any{
		"title":   "Launch Announcement",
		"content": "we shipped",
		"status":  "published",
	}, bearer(editorTok))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("editor publish: expected 201, got %d", resp.StatusCode)
	}
	published := decode[posts.Post](t, resp)

	// Viewer sees only the published post; the editor sees both.
	listFor := func(tok string) []posts.Post {
		resp := c.get("/v1/posts", nil, bearer(tok))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("list: expected 200, got %d", resp.StatusCode)
		}
		return decode[struct {
			Posts []posts.Post `json:"posts"`
		}](t, resp).Posts
	}
	if got := listFor(viewerTok); len(got) != 1 || got[0].ID != published.ID {
		t.Fatalf("viewer should see exactly the published post, got %d posts", len(got))
	}
	if got := listFor(editorTok); len(got) != 2 {
		t.Fatalf("editor should see both posts, got %d", len(got))
	}

	// A different editor cannot touch this editor's post; an admin can.
	resp = c.post("/v1/admin/users", map[string]any{
		"email":    "other.editor@example.com",
		"name":     "Other Editor",
		"password": "password",
		"role":     "editor",
	}, bearer(adminTok))
	resp.Body.Close()
	otherTok, _ := c.login("other.editor@example.com")

	resp = c.put("/v1/posts/"+draft.ID, map[string]any{
		"title":   "Hijacked",
		"content": "mine now",
		"status":  "draft",
	}, bearer(otherTok))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-author update: expected 403, got %d", resp.StatusCode)
	}

	resp = c.put("/v1/posts/"+draft.ID, map[string]any{
		"title":   "Draft Notes",
		"content": "work in progress",
		"status":  "published",
	}, bearer(adminTok))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin update: expected 200, got %d", resp.StatusCode)
	}
	promoted := decode[posts.Post](t, resp)
	if promoted.Status != posts.StatusPublished {
		t.Fatalf("expected published status, got %q", promoted.Status)
	}
	if promoted.AuthorID != draft.AuthorID {
		t.Fatalf("update must preserve authorship")
	}

	resp = c.del("/v1/posts/"+published.ID, bearer(otherTok))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-author delete: expected 403, got %d", resp.StatusCode)
	}
	resp = c.del("/v1/posts/"+published.ID, bearer(editorTok))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("own delete: expected 204, got %d", resp.StatusCode)
	}
}

func TestAuditTrailEndpoint(t *testing.T) {
	c := newTestAPI(t)
	adminTok, _ := c.login("admin@example.com")
	editorTok, editor := c.login("editor@example.com")

	resp := c.post("/v1/posts", map[string]any{
		"title":   "Audited Post",
		"content": "body",
		"status":  "published",
	}, bearer(editorTok))
	resp.Body.Close()

	// Admins only.
	resp = c.get("/v1/audit-logs", nil, bearer(editorTok))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("editor reading audit: expected 403, got %d", resp.StatusCode)
	}

	type auditPage struct {
		Logs  []audit.Entry `json:"logs"`
		Stats *audit.Stats  `json:"stats"`
	}

	resp = c.get("/v1/audit-logs", url.Values{"stats": {"true"}}, bearer(adminTok))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit read: expected 200, got %d", resp.StatusCode)
	}
	page := decode[auditPage](t, resp)
	if len(page.Logs) == 0 {
		t.Fatal("expected audit entries from the logins and post creation")
	}
	if page.Stats == nil {
		t.Fatal("expected stats block")
	}
	if page.Stats.TotalLogs != len(page.Logs) {
		t.Fatalf("stats total %d does not match %d entries", page.Stats.TotalLogs, len(page.Logs))
	}
	// Newest first; the most recent action was the post creation.
	if page.Logs[0].Action != audit.ActionCreate || page.Logs[0].Resource != audit.ResourcePost {
		t.Fatalf("expected post creation first, got %s %s", page.Logs[0].Action, page.Logs[0].Resource)
	}
	for i := 1; i < len(page.Logs); i++ {
		if page.Logs[i].Timestamp.After(page.Logs[i-1].Timestamp) {
			t.Fatalf("entries out of order at %d", i)
		}
	}

	// Filtered by subject.
	resp = c.get("/v1/audit-logs", url.Values{"userId": {editor.ID}}, bearer(adminTok))
	filtered := decode[auditPage](t, resp)
	if len(filtered.Logs) == 0 {
		t.Fatal("expected entries for the editor")
	}
	for _, e := range filtered.Logs {
		if e.SubjectID != editor.ID {
			t.Fatalf("filter leak: entry for %q", e.SubjectID)
		}
	}

	// Invalid enum values are rejected.
	resp = c.get("/v1/audit-logs", url.Values{"action": {"DESTROY"}}, bearer(adminTok))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad action: expected 400, got %d", resp.StatusCode)
	}
}

func TestPermissionEndpoints(t *testing.T) {
	c := newTestAPI(t)
	adminTok, _ := c.login("admin@example.com")
	viewerTok, _ := c.login("viewer@example.com")

	check := func(tok, perm string) map[string]any {
		resp := c.post("/v1/permissions/check", map[string]any{"permission": perm}, bearer(tok))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("check %s: expected 200, got %d", perm, resp.StatusCode)
		}
		return decode[map[string]any](t, resp)
	}

	if got := check(viewerTok, "read:content"); got["hasPermission"] != true {
		t.Fatalf("viewer should read content: %v", got)
	}
	if got := check(viewerTok, "manage:users"); got["hasPermission"] != false {
		t.Fatalf("viewer must not manage users: %v", got)
	}
	if got := check(adminTok, "manage:users"); got["hasPermission"] != true {
		t.Fatalf("admin should manage users: %v", got)
	}

	resp := c.post("/v1/permissions/check", map[string]any{"permission": "fly:moon"}, bearer(viewerTok))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown permission: expected 400, got %d", resp.StatusCode)
	}

	// Matrix is admin-only.
	resp = c.get("/v1/permissions/matrix", nil, bearer(viewerTok))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer matrix: expected 403, got %d", resp.StatusCode)
	}

	resp = c.get("/v1/permissions/matrix", nil, bearer(adminTok))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin matrix: expected 200, got %d", resp.StatusCode)
	}
	matrix := decode[struct {
		Matrix         map[string][]string    `json:"matrix"`
		AllPermissions []permissionDescriptor `json:"allPermissions"`
		Roles          []string               `json:"roles"`
	}](t, resp)
	if len(matrix.Roles) != 3 {
		t.Fatalf("expected 3 roles, got %d", len(matrix.Roles))
	}
	if len(matrix.AllPermissions) != 7 {
		t.Fatalf("expected 7 permissions, got %d", len(matrix.AllPermissions))
	}
	if len(matrix.Matrix["admin"]) != 7 {
		t.Fatalf("admin should hold every permission, got %d", len(matrix.Matrix["admin"]))
	}
	if len(matrix.Matrix["viewer"]) != 1 {
		t.Fatalf("viewer should hold one permission, got %d", len(matrix.Matrix["viewer"]))
	}
}

func TestHealthAndInfo(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.StatusCode)
	}
	health := decode[map[string]any](t, resp)
	if health["status"] != "ok" {
		t.Fatalf("unexpected health payload: %v", health)
	}

	resp = c.get("/readyz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz without db: expected 200, got %d", resp.StatusCode)
	}

	resp = c.get("/v1/info", nil, nil)
	info := decode[struct {
		Service string   `json:"service"`
		Roles   []string `json:"roles"`
	}](t, resp)
	if len(info.Roles) != 3 {
		t.Fatalf("expected 3 roles in info, got %v", info.Roles)
	}
}

func TestRejectsMalformedBodies(t *testing.T) {
	c := newTestAPI(t)

	// Unknown fields are refused.
	resp := c.post("/v1/auth/login", map[string]any{
		"email":      "admin@example.com",
		"password":   "password",
		"rememberMe": true,
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", resp.StatusCode)
	}

	// Empty body is refused.
	resp = c.post("/v1/auth/login", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400, got %d", resp.StatusCode)
	}
}
