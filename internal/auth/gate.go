// Package auth is the single authorization boundary: it turns an incoming
// Authorization header into a verified identity and enforces role policies
// before a protected handler runs. Handlers never re-authenticate; they only
// layer resource-specific rules (ownership and the like) on the attached
// identity.
package auth

import (
	"encoding/json"
	"net/http"

	"gatekeeper.dev/internal/obs"
	"gatekeeper.dev/internal/token"
)

// Gate authorizes requests against the token service. It is stateless and
// safe to share across concurrent requests.
type Gate struct {
	tokens *token.Service
}

// NewGate builds a Gate over the given token service.
func NewGate(tokens *token.Service) *Gate {
	return &Gate{tokens: tokens}
}

// Authorize runs the full decision procedure for one Authorization header
// value: extract bearer token, verify it, then check every policy. All
// verification failures collapse to ErrUnauthenticated so the caller cannot
// tell which check failed; a verified identity outside the policy yields
// ErrForbidden.
func (g *Gate) Authorize(headerValue string, policies ...Policy) (token.Identity, error) {
	raw, ok := token.ExtractBearer(headerValue)
	if !ok {
		obs.AuthDecision("unauthenticated")
		return token.Identity{}, ErrUnauthenticated
	}
	ident, err := g.tokens.Verify(raw)
	if err != nil {
		obs.AuthDecision("unauthenticated")
		return token.Identity{}, ErrUnauthenticated
	}
	for _, p := range policies {
		if !p.Allows(ident.Role) {
			obs.AuthDecision("forbidden")
			return token.Identity{}, ErrForbidden
		}
	}
	obs.AuthDecision("allowed")
	return ident, nil
}

// Protect wraps next so it only runs for authorized requests, with the
// verified identity attached to the request context. Policies are ANDed;
// with none given any authenticated caller passes. The handler is invoked
// exactly once per allowed request and never on a denied one.
func (g *Gate) Protect(next http.Handler, policies ...Policy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := g.Authorize(r.Header.Get("Authorization"), policies...)
		switch err {
		case nil:
		case ErrForbidden:
			writeDenied(w, http.StatusForbidden, "insufficient permissions for this action")
			return
		default:
			w.Header().Set("WWW-Authenticate", `Bearer realm="gatekeeper"`)
			writeDenied(w, http.StatusUnauthorized, "access denied")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), ident)))
	})
}

func writeDenied(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
