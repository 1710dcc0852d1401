package posts

import (
	"context"
	"sync"
	"time"

	"gatekeeper.dev/internal/ids"
)

// MemStore implements Store with in-process concurrency safety.
type MemStore struct {
	mu    sync.RWMutex
	byID  map[string]*Post
	order []string // insertion order for stable listings
	now   func() time.Time
}

// NewMemStore creates an empty in-memory post store.
func NewMemStore() *MemStore {
	return &MemStore{
		byID: make(map[string]*Post),
		now:  time.Now,
	}
}

func (s *MemStore) Create(ctx context.Context, p Post) (Post, error) {
	if err := validate(p.Title, p.Content, p.Status); err != nil {
		return Post{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt
	stored := p
	s.byID[p.ID] = &stored
	s.order = append(s.order, p.ID)
	return p, nil
}

func (s *MemStore) Find(ctx context.Context, id string) (Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	return *p, nil
}

func (s *MemStore) List(ctx context.Context) ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Post, 0, len(s.order))
	for _, id := range s.order {
		if p, ok := s.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *MemStore) Update(ctx context.Context, id, title, content string, status Status) (Post, error) {
	if err := validate(title, content, status); err != nil {
		return Post{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	p.Title = title
	p.Content = content
	p.Status = status
	p.UpdatedAt = s.now().UTC()
	return *p, nil
}

func (s *MemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

var _ Store = (*MemStore)(nil)
