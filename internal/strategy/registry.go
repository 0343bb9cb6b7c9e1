package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrStrategyNotFound  = errors.New("strategy not found")
	ErrDuplicateStrategy = errors.New("strategy already registered")
)

type entry struct {
	meta    Metadata
	factory Factory
}

// Registry maps strategy names to factories. Callers own their registry;
// there is no package-level instance.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty strategy Registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a factory under meta.Name
func (r *Registry) Register(meta Metadata, factory Factory) error {
	if meta.Name == "" {
		return fmt.Errorf("strategy name is required")
	}
	if factory == nil {
		return fmt.Errorf("factory is required for strategy %s", meta.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[meta.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, meta.Name)
	}
	r.entries[meta.Name] = entry{meta: meta, factory: factory}
	return nil
}

// Factory returns a factory that merges the registered defaults under the
// given parameters before building.
func (r *Registry) Factory(name string) (Factory, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStrategyNotFound, name)
	}
	return func(params Params) (Strategy, error) {
		return e.factory(e.meta.Defaults.Merge(params))
	}, nil
}

// New builds a strategy by name
func (r *Registry) New(name string, params Params) (Strategy, error) {
	f, err := r.Factory(name)
	if err != nil {
		return nil, err
	}
	return f(params)
}

// Metadata returns the registered description of a strategy
func (r *Registry) Metadata(name string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.meta, ok
}

// List returns registered strategy names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
