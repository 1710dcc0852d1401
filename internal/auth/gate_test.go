package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gatekeeper.dev/internal/rbac"
	"gatekeeper.dev/internal/token"
)

func newGate(t *testing.T, opts ...token.Option) (*Gate, *token.Service) {
	t.Helper()
	svc, err := token.NewService("gate-test-secret", opts...)
	if err != nil {
		t.Fatalf("token.NewService: %v", err)
	}
	return NewGate(svc), svc
}

func bearerFor(t *testing.T, svc *token.Service, role rbac.Role) string {
	t.Helper()
	raw, _, err := svc.Issue(token.Identity{SubjectID: "1", Email: "admin@example.com", Role: role})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return "Bearer " + raw
}

func TestProtectStateMachine(t *testing.T) {
	gate, svc := newGate(t)

	var calls int
	var seen token.Identity
	protected := gate.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		seen = MustIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	}), Roles(rbac.RoleAdmin))

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		return rr
	}

	// No header → 401, operation not invoked.
	if rr := do(""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("no header: expected 401, got %d", rr.Code)
	}
	// Garbage token → 401.
	if rr := do("Bearer not.a.token"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", rr.Code)
	}
	// Wrong scheme → 401.
	if rr := do("Basic abc"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong scheme: expected 401, got %d", rr.Code)
	}
	// Valid token, role outside the required set → 403.
	if rr := do(bearerFor(t, svc, rbac.RoleViewer)); rr.Code != http.StatusForbidden {
		t.Fatalf("viewer: expected 403, got %d", rr.Code)
	}
	if calls != 0 {
		t.Fatalf("operation invoked %d times before authorization", calls)
	}

	// Valid token, role in the set → operation runs exactly once with the
	// verified identity attached.
	if rr := do(bearerFor(t, svc, rbac.RoleAdmin)); rr.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", rr.Code)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one invocation, got %d", calls)
	}
	want := token.Identity{SubjectID: "1", Email: "admin@example.com", Role: rbac.RoleAdmin}
	if seen != want {
		t.Fatalf("attached identity %+v, want %+v", seen, want)
	}
}

func TestProtectExpiredToken(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	gate, svc := newGate(t, token.WithClock(func() time.Time { return now }))
	header := bearerFor(t, svc, rbac.RoleAdmin)

	now = now.Add(25 * time.Hour)
	handler := gate.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("expired token must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", header)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	// Expired collapses to the same 401 as missing or invalid tokens.
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
}

func TestProtectWithoutPolicies(t *testing.T) {
	gate, svc := newGate(t)

	var invoked bool
	handler := gate.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invoked = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/any", nil)
	req.Header.Set("Authorization", bearerFor(t, svc, rbac.RoleViewer))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !invoked {
		t.Fatal("authenticated caller must pass a policy-free gate")
	}
}

func TestAuthorizeErrors(t *testing.T) {
	gate, svc := newGate(t)

	if _, err := gate.Authorize(""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := gate.Authorize("Bearer junk"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := gate.Authorize(bearerFor(t, svc, rbac.RoleEditor), Roles(rbac.RoleAdmin)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	ident, err := gate.Authorize(bearerFor(t, svc, rbac.RoleEditor), Roles(rbac.RoleEditor, rbac.RoleAdmin))
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if ident.Role != rbac.RoleEditor {
		t.Fatalf("unexpected role %v", ident.Role)
	}
}

func TestRolesPolicyIsExactMatch(t *testing.T) {
	// Admin outranks editor in the hierarchy, but the Roles policy is
	// literal set membership: an admin token does not pass Roles(editor).
	if Roles(rbac.RoleEditor).Allows(rbac.RoleAdmin) {
		t.Fatal("Roles policy must not apply hierarchy")
	}
	if !MinRole(rbac.RoleEditor).Allows(rbac.RoleAdmin) {
		t.Fatal("MinRole policy must apply hierarchy")
	}
	if MinRole(rbac.RoleEditor).Allows(rbac.RoleViewer) {
		t.Fatal("viewer does not reach the editor minimum")
	}
	if !Permission(rbac.PermViewAuditLogs).Allows(rbac.RoleAdmin) {
		t.Fatal("admin holds view:audit_logs")
	}
	if Permission(rbac.PermViewAuditLogs).Allows(rbac.RoleEditor) {
		t.Fatal("editor does not hold view:audit_logs")
	}
}

func TestIdentityContextRoundTrip(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := IdentityFromContext(req.Context()); ok {
		t.Fatal("fresh context must not carry an identity")
	}
	want := token.Identity{SubjectID: "9", Email: "x@example.com", Role: rbac.RoleViewer}
	ctx := ContextWithIdentity(req.Context(), want)
	got, ok := IdentityFromContext(ctx)
	if !ok || got != want {
		t.Fatalf("round trip failed: got %+v ok=%v", got, ok)
	}
}
