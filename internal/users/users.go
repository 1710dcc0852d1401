// Package users is the credential side of the system: user records, the
// persistence contract and the service that validates logins and applies
// explicit, field-by-field updates.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gatekeeper.dev/internal/rbac"
)

var (
	ErrNotFound           = errors.New("users: not found")
	ErrAlreadyExists      = errors.New("users: already exists")
	ErrInvalidInput       = errors.New("users: invalid input")
	ErrInvalidCredentials = errors.New("users: invalid credentials")
)

// User is an account record. PasswordHash is a bcrypt hash and never leaves
// the package boundary in API responses.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ParsedRole returns the user's role as the closed enum.
func (u User) ParsedRole() rbac.Role {
	role, _ := rbac.ParseRole(u.Role)
	return role
}

// Update carries explicit field changes. Nil means "leave unchanged";
// a provided empty value is rejected rather than silently defaulted, so a
// caller's intent is never masked.
type Update struct {
	Email    *string
	Name     *string
	Role     *rbac.Role
	Password *string
}

// Store describes persistence operations required for user records.
type Store interface {
	Create(ctx context.Context, u User) (User, error)
	Find(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, id string, upd Update) (User, error)
	Delete(ctx context.Context, id string) error
}

// Service validates input, hashes passwords and delegates to the store.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("users: store is required")
	}
	return &Service{store: store}, nil
}

// Create registers a new user with a hashed password.
func (s *Service) Create(ctx context.Context, email, name, password string, role rbac.Role) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if role == rbac.RoleUnknown {
		return User{}, fmt.Errorf("%w: unknown role", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	return s.store.Create(ctx, User{
		Email:        email,
		Name:         name,
		Role:         role.String(),
		PasswordHash: hash,
	})
}

// Authenticate verifies the email/password pair. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return User{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.Find(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.List(ctx)
}

// Update applies the explicitly provided fields. Empty strings are invalid
// input, not "keep the old value".
func (s *Service) Update(ctx context.Context, id string, upd Update) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Role != nil && *upd.Role == rbac.RoleUnknown {
		return User{}, fmt.Errorf("%w: unknown role", ErrInvalidInput)
	}
	if upd.Password != nil {
		pw := strings.TrimSpace(*upd.Password)
		if pw == "" {
			return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
		}
		hash, err := HashPassword(pw)
		if err != nil {
			return User{}, err
		}
		upd.Password = &hash
	}
	return s.store.Update(ctx, id, upd)
}

// Delete removes a user by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.Delete(ctx, id)
}
