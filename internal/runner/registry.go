package runner

import (
	"fmt"
	"sync"

	forgeerrors "github.com/jrmorin/forgeup/pkg/errors"
)

// Registry maps step kinds to their Runner implementations.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Register adds a runner implementation for the provided step kind.
func (r *Registry) Register(kind string, impl Runner) error {
	if impl == nil {
		return forgeerrors.NewExecutionError("", fmt.Errorf("runner for kind %q is nil", kind))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runners[kind]; exists {
		return forgeerrors.NewExecutionError("", fmt.Errorf("runner for kind %q already registered", kind))
	}

	r.runners[kind] = impl
	return nil
}

// Get retrieves a runner by step kind.
func (r *Registry) Get(kind string) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	impl, ok := r.runners[kind]
	if !ok {
		return nil, forgeerrors.NewExecutionError("", fmt.Errorf("no runner registered for kind %q", kind))
	}

	return impl, nil
}

// Kinds lists the registered step kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.runners))
	for kind := range r.runners {
		kinds = append(kinds, kind)
	}
	return kinds
}
