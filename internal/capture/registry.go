package capture

import "sync"

// Registry records which sources are currently acquired. A physical device
// must never be opened twice.
type Registry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{held: make(map[string]struct{})}
}

// Key returns the registry key of a source within a backend.
func Key(backendID, sourceID string) string {
	return backendID + "/" + sourceID
}

// Claim marks key as acquired. It fails with ErrAlreadyAcquired when the
// key is already held.
func (r *Registry) Claim(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.held[key]; ok {
		return NewError(CodeAlreadyAcquired, "source already acquired", map[string]any{"source": key})
	}
	r.held[key] = struct{}{}
	return nil
}

// Unclaim releases key. Releasing an unheld key is a no-op.
func (r *Registry) Unclaim(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, key)
}

// holds reports whether key is acquired.
func (r *Registry) holds(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.held[key]
	return ok
}

// Len returns the number of acquired sources.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}
