package circuitbreaker

import (
	"jobseries/pkg/registry"
)

// Registry manages circuit breakers for multiple resources.
// Breakers are created lazily on first access.
type Registry struct {
	breakers *registry.Registry[*Breaker]
}

// NewRegistry creates a new registry with the given default config.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: registry.New(func(string) (*Breaker, error) {
			return New(cfg), nil
		}),
	}
}

// Get returns the circuit breaker for a key, creating one if needed.
func (r *Registry) Get(key string) *Breaker {
	return r.breakers.MustGet(key)
}

// Stats holds registry statistics.
type Stats struct {
	Total    int // Total breakers
	Open     int // Breakers in open state
	HalfOpen int // Breakers in half-open state
	Closed   int // Breakers in closed state
}

// Stats returns statistics about the registry.
func (r *Registry) Stats() Stats {
	var stats Stats
	r.breakers.Range(func(_ string, b *Breaker) {
		stats.Total++
		switch b.State() {
		case Open:
			stats.Open++
		case HalfOpen:
			stats.HalfOpen++
		case Closed:
			stats.Closed++
		}
	})
	return stats
}
