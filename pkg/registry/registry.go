// Package registry provides a keyed, lazily populated set of shared values.
//
// Values are built on first access by a factory function. Concurrent callers
// asking for the same key observe exactly one construction and share its result.
package registry

import (
	"sync"
	"sync/atomic"
)

// Factory builds the value for a key. A returned error is not cached.
type Factory[T any] func(key string) (T, error)

// Registry holds one value per key.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[T]
	factory Factory[T]
}

type entry[T any] struct {
	once  sync.Once
	done  atomic.Bool
	value T
	err   error
}

// New creates a registry that builds values with factory.
// A nil factory is allowed when every lookup goes through GetWith.
func New[T any](factory func(key string) (T, error)) *Registry[T] {
	return &Registry[T]{
		entries: make(map[string]*entry[T]),
		factory: Factory[T](factory),
	}
}

// Get returns the value for key, building it if needed.
// If construction fails, the error is returned to every caller that waited on
// that attempt and the key is cleared so a later call may retry.
func (r *Registry[T]) Get(key string) (T, error) {
	return r.GetWith(key, r.factory)
}

// GetWith is Get with a per-call factory, for values whose construction needs
// more than the key. Only the first caller's factory runs.
func (r *Registry[T]) GetWith(key string, factory Factory[T]) (T, error) {
	e := r.lookup(key)

	e.once.Do(func() {
		e.value, e.err = factory(key)
		e.done.Store(true)
	})

	if e.err != nil {
		r.mu.Lock()
		if r.entries[key] == e {
			delete(r.entries, key)
		}
		r.mu.Unlock()
	}
	return e.value, e.err
}

// MustGet returns the value for key and panics if construction fails.
// Only for factories that cannot fail.
func (r *Registry[T]) MustGet(key string) T {
	v, err := r.Get(key)
	if err != nil {
		panic(err)
	}
	return v
}

func (r *Registry[T]) lookup(key string) *entry[T] {
	r.mu.RLock()
	e, exists := r.entries[key]
	r.mu.RUnlock()

	if exists {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if e, exists = r.entries[key]; exists {
		return e
	}

	e = &entry[T]{}
	r.entries[key] = e
	return e
}

// Range calls fn for every successfully built value.
func (r *Registry[T]) Range(fn func(key string, value T)) {
	r.mu.RLock()
	snapshot := make(map[string]*entry[T], len(r.entries))
	for k, e := range r.entries {
		snapshot[k] = e
	}
	r.mu.RUnlock()

	for k, e := range snapshot {
		if v, ok := e.loaded(); ok {
			fn(k, v)
		}
	}
}

// loaded reports the value if construction already completed successfully.
func (e *entry[T]) loaded() (T, bool) {
	var zero T
	if !e.done.Load() || e.err != nil {
		return zero, false
	}
	return e.value, true
}
