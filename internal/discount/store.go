package discount

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned when no rule exists for an id.
	ErrNotFound = errors.New("discount: rule not found")
	// ErrAlreadyExists is returned when creating a rule whose id is taken.
	ErrAlreadyExists = errors.New("discount: rule already exists")
)

// Store persists discount rules keyed by id.
type Store interface {
	// FindAll returns every rule in insertion order.
	FindAll(ctx context.Context) ([]Rule, error)
	FindByID(ctx context.Context, id string) (Rule, error)
	// Save inserts or replaces the rule with the same id.
	Save(ctx context.Context, rule Rule) (Rule, error)
	// DeleteByID removes a rule. Deleting a missing id is not an error.
	DeleteByID(ctx context.Context, id string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	rules map[string]Rule
}

// NewMemoryStore returns a MemoryStore seeded with rules in order.
func NewMemoryStore(rules ...Rule) *MemoryStore {
	s := &MemoryStore{rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		_, _ = s.Save(context.Background(), r)
	}
	return s
}

func (s *MemoryStore) FindAll(context.Context) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rules[id])
	}
	return out, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return Rule{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) Save(_ context.Context, rule Rule) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rules == nil {
		s.rules = make(map[string]Rule)
	}
	if _, ok := s.rules[rule.ID]; !ok {
		s.order = append(s.order, rule.ID)
	}
	s.rules[rule.ID] = rule
	return rule, nil
}

func (s *MemoryStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return nil
	}
	delete(s.rules, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Ping satisfies the readiness check.
func (s *MemoryStore) Ping(context.Context) error { return nil }
