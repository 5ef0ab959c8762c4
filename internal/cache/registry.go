package cache

import (
	"fmt"
	"sort"
	"sync"
)

// Registry tracks caches by name so they can be inspected and cleared together.
type Registry struct {
	mu     sync.RWMutex
	caches map[string]Introspector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caches: make(map[string]Introspector)}
}

// Register adds c under c.Name(). Names must be unique.
func (r *Registry) Register(c Introspector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := c.Name()
	if name == "" {
		return fmt.Errorf("cache name must not be empty")
	}
	if _, exists := r.caches[name]; exists {
		return fmt.Errorf("cache %s already registered", name)
	}
	r.caches[name] = c
	return nil
}

// Lookup returns the cache registered under name.
func (r *Registry) Lookup(name string) (Introspector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caches[name]
	return c, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the statistics of every registered cache keyed by name.
func (r *Registry) Snapshot() map[string]Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Info, len(r.caches))
	for name, c := range r.caches {
		out[name] = c.Info()
	}
	return out
}

// ClearAll clears every registered cache.
func (r *Registry) ClearAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.caches {
		c.Clear()
	}
}
