package auth

import "errors"

var (
	// ErrUnauthenticated covers missing, invalid and expired tokens alike;
	// the specific verification failure is never exposed to callers.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrForbidden means the identity verified but its role is not allowed.
	ErrForbidden = errors.New("auth: forbidden")
)
