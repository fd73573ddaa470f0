package search

import (
	"sort"
	"sync"

	"github.com/copyleftdev/warpbench/internal/optimization"
	"github.com/copyleftdev/warpbench/internal/optimization/space"
)

// Constructor builds an optimizer over a space.
type Constructor func(s *space.Space, opts Options) (Optimizer, error)

// Registry maps optimizer names to constructors. It is populated once at
// startup and read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register installs ctor under name. Registering a name twice is an error.
func (r *Registry) Register(name string, ctor Constructor) error {
	if name == "" || ctor == nil {
		return optimization.Configurationf("optimizer name and constructor are required").
			WithComponent("search").WithOperation("Register")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[name]; exists {
		return optimization.Configurationf("optimizer %q already registered", name).
			WithComponent("search").WithOperation("Register")
	}
	r.ctors[name] = ctor
	return nil
}

// New builds the optimizer registered under name.
func (r *Registry) New(name string, s *space.Space, opts Options) (Optimizer, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, optimization.Configurationf("unknown optimizer %q", name).
			WithComponent("search").WithOperation("New")
	}
	opts.Name = name
	return ctor(s, opts)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctors[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset removes every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors = make(map[string]Constructor)
}

// NewRandom is the Constructor of the random optimizer.
func NewRandom(s *space.Space, opts Options) (Optimizer, error) {
	o, err := NewRandomOptimizer(s, opts)
	if err != nil {
		return nil, err
	}
	return o, nil
}
