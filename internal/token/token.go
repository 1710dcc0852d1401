// Package token issues and verifies the signed bearer tokens that carry a
// caller's identity. The service is stateless: verification only needs the
// shared secret, so rotating the secret invalidates every outstanding token
// at once (there is no grace period).
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gatekeeper.dev/internal/rbac"
)

const defaultTTL = 24 * time.Hour

var (
	// ErrInvalidIdentity indicates an issue request with incomplete identity data.
	ErrInvalidIdentity = errors.New("token: invalid identity")
	// ErrBadSignature indicates the token signature does not verify.
	ErrBadSignature = errors.New("token: bad signature")
	// ErrExpired indicates the token is past its expiry.
	ErrExpired = errors.New("token: expired")
	// ErrMalformedPayload indicates required identity fields are missing after decoding.
	ErrMalformedPayload = errors.New("token: malformed payload")
)

// Identity is the subject a token was issued for. Immutable once embedded in
// a signed token.
type Identity struct {
	SubjectID string
	Email     string
	Role      rbac.Role
}

func (id Identity) valid() bool {
	return strings.TrimSpace(id.SubjectID) != "" &&
		strings.TrimSpace(id.Email) != "" &&
		id.Role != rbac.RoleUnknown
}

// Claims is the JWT payload carried by issued tokens.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Service signs and verifies identity tokens with an HS256 keyed MAC.
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithTTL overrides the default 24h token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithIssuer sets the issuer claim embedded in tokens.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		s.issuer = strings.TrimSpace(issuer)
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service around the shared signing secret.
func NewService(secret string, opts ...Option) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token: signing secret is required")
	}
	svc := &Service{
		secret: []byte(secret),
		ttl:    defaultTTL,
		issuer: "gatekeeper",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue signs a token for the given identity with iat=now and exp=now+TTL.
// All three identity fields must be present.
func (s *Service) Issue(id Identity) (string, time.Time, error) {
	if !id.valid() {
		return "", time.Time{}, ErrInvalidIdentity
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Email: strings.TrimSpace(id.Email),
		Role:  id.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strings.TrimSpace(id.SubjectID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify validates the signature and time bounds of raw and returns the
// embedded identity unchanged. Failures are reported as ErrBadSignature,
// ErrExpired or ErrMalformedPayload; no field is ever coerced or defaulted.
func (s *Service) Verify(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrMalformedPayload
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrBadSignature
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuedAt())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Identity{}, ErrMalformedPayload
		default:
			return Identity{}, ErrBadSignature
		}
	}
	if !parsed.Valid {
		return Identity{}, ErrBadSignature
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return Identity{}, ErrBadSignature
	}
	if claims.ExpiresAt == nil || !s.now().Before(claims.ExpiresAt.Time) {
		return Identity{}, ErrExpired
	}

	role, ok := rbac.ParseRole(claims.Role)
	if !ok {
		return Identity{}, ErrMalformedPayload
	}
	id := Identity{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		Role:      role,
	}
	if !id.valid() {
		return Identity{}, ErrMalformedPayload
	}
	return id, nil
}

// ExtractBearer returns the token portion of an Authorization header value.
// Only the literal "Bearer " scheme is recognized; anything else yields
// ok=false, which is absence rather than an error.
func ExtractBearer(headerValue string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(headerValue, prefix) {
		return "", false
	}
	tok := strings.TrimSpace(headerValue[len(prefix):])
	if tok == "" {
		return "", false
	}
	return tok, true
}
