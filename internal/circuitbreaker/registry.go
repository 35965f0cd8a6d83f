package circuitbreaker

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the breakers owned by a composition root, keyed by name.
// It replaces ambient global lookup: call sites receive breaker handles
// from the registry at wiring time. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*CircuitBreaker)}
}

// Register adds cb under its configured name. Registering the same name
// twice is a wiring bug and returns an error.
func (r *Registry) Register(cb *CircuitBreaker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := cb.Name()
	if _, exists := r.breakers[name]; exists {
		return fmt.Errorf("circuit breaker %q already registered", name)
	}
	r.breakers[name] = cb
	return nil
}

// Get returns the breaker registered under name.
func (r *Registry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// All returns the registered breakers sorted by name for stable output.
func (r *Registry) All() []*CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		out = append(out, cb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registered breakers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.breakers)
}
