package iac

import (
	"fmt"
	"sync"
)

// Factory creates a plugin instance.
type Factory func() (Plugin, error)

// Registry holds registered plugin factories by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a plugin factory, replacing any previous registration
// under the same name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get instantiates the named plugin.
func (r *Registry) Get(name string) (Plugin, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown plugin: %s", name)
	}
	return factory()
}

// List returns the registered plugin names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry is the registry plugins register with at init time.
var DefaultRegistry = NewRegistry()

// Register adds a plugin factory to the default registry.
func Register(name string, factory Factory) {
	DefaultRegistry.Register(name, factory)
}

// Get instantiates a plugin from the default registry.
func Get(name string) (Plugin, error) {
	return DefaultRegistry.Get(name)
}

// List returns plugin names from the default registry.
func List() []string {
	return DefaultRegistry.List()
}
