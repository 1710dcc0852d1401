package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore implements Store with in-process concurrency safety.
// NOTE: replace with the Postgres store for durable deployments.
type MemStore struct {
	mu      sync.RWMutex
	nextID  int64
	entries []Entry
	now     func() time.Time
}

// MemOption configures MemStore.
type MemOption func(*MemStore)

// WithClock overrides the time source used for defaulted timestamps.
func WithClock(fn func() time.Time) MemOption {
	return func(s *MemStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewMemStore creates an empty in-memory audit log.
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemStore) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	if e.Changes != nil {
		changes := make(map[string]Change, len(e.Changes))
		for k, v := range e.Changes {
			changes[k] = v
		}
		e.Changes = changes
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *MemStore) Query(ctx context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	// Walk in reverse insertion order so the stable sort below leaves the
	// most recently appended entry first among equal timestamps.
	matched := make([]Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		if f.matches(s.entries[i]) {
			matched = append(matched, s.entries[i])
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	return matched, nil
}

func (s *MemStore) Stats(ctx context.Context) (Stats, error) {
	stats := emptyStats()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		stats.TotalLogs++
		if e.Status == StatusSuccess {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
		stats.ByAction[e.Action]++
		stats.ByResource[e.Resource]++
	}
	return stats, nil
}

func emptyStats() Stats {
	stats := Stats{
		ByAction:   make(map[Action]int, 4),
		ByResource: make(map[Resource]int, 4),
	}
	for _, a := range Actions() {
		stats.ByAction[a] = 0
	}
	for _, r := range Resources() {
		stats.ByResource[r] = 0
	}
	return stats
}

var _ Store = (*MemStore)(nil)
