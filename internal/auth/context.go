package auth

import (
	"context"

	"gatekeeper.dev/internal/token"
)

type identityContextKey struct{}

// ContextWithIdentity attaches the verified identity to the context.
func ContextWithIdentity(ctx context.Context, id token.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the verified identity from the context. An
// absent identity below a protected handler is a programming error, not a
// runtime case: the gate attaches it before the handler runs.
func IdentityFromContext(ctx context.Context) (token.Identity, bool) {
	if ctx == nil {
		return token.Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(token.Identity)
	return id, ok
}

// MustIdentity returns the attached identity and panics when it is missing.
// Only call below a gate-protected handler.
func MustIdentity(ctx context.Context) token.Identity {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		panic("auth: identity missing from context; handler not behind a gate")
	}
	return id
}
