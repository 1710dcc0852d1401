package users

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gatekeeper.dev/internal/ids"
	"gatekeeper.dev/internal/rbac"
)

// MemStore implements Store in process memory.
type MemStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string // email -> id
}

// NewMemStore creates an empty in-memory user store.
func NewMemStore() *MemStore {
	return &MemStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (s *MemStore) Create(ctx context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[u.Email]; taken {
		return User{}, fmt.Errorf("%w: email %s", ErrAlreadyExists, u.Email)
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	stored := u
	s.byID[u.ID] = &stored
	s.byEmail[u.Email] = u.ID
	return u, nil
}

func (s *MemStore) Find(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (s *MemStore) FindByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return *s.byID[id], nil
}

func (s *MemStore) List(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) Update(ctx context.Context, id string, upd Update) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	if upd.Email != nil && *upd.Email != u.Email {
		if _, taken := s.byEmail[*upd.Email]; taken {
			return User{}, fmt.Errorf("%w: email %s", ErrAlreadyExists, *upd.Email)
		}
		delete(s.byEmail, u.Email)
		u.Email = *upd.Email
		s.byEmail[u.Email] = id
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Role != nil {
		u.Role = upd.Role.String()
	}
	if upd.Password != nil {
		u.PasswordHash = *upd.Password
	}
	return *u, nil
}

func (s *MemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byEmail, u.Email)
	delete(s.byID, id)
	return nil
}

var _ Store = (*MemStore)(nil)

// SeedDemo loads the three demo accounts (password "password" each) into
// the service. Used by local runs and the HTTP tests.
func SeedDemo(ctx context.Context, svc *Service) error {
	seed := []struct {
		email string
		name  string
		role  rbac.Role
	}{
		{"admin@example.com", "Admin User", rbac.RoleAdmin},
		{"editor@example.com", "Editor User", rbac.RoleEditor},
		{"viewer@example.com", "Viewer User", rbac.RoleViewer},
	}
	for _, u := range seed {
		if _, err := svc.Create(ctx, u.email, u.name, "password", u.role); err != nil {
			return err
		}
	}
	return nil
}
