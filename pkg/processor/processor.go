// Package processor holds the post-processors run after an attachment is saved.
//
// A processor is built per save from a Factory registered under a name. The
// attachment settings list processor names; names missing from the registry
// are skipped by the caller.
package processor

import (
	"context"
	"sort"
	"sync"
)

// Target is the saved file a processor works on.
type Target interface {
	// FullPath returns the absolute path of the stored file.
	FullPath() (string, error)
	// ContentType returns the declared content type of the stored file.
	ContentType() string
}

// Processor runs once against one saved file.
type Processor interface {
	Run(ctx context.Context) error
}

// Func adapts a plain function to Processor.
type Func func(ctx context.Context) error

// Run calls f.
func (f Func) Run(ctx context.Context) error {
	return f(ctx)
}

// Factory builds the processor for one target.
type Factory func(target Target) Processor

// Registry maps processor names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry with the built-in processors registered.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(NameZstd, NewZstd)
	registry.Register(NameLZ4, NewLZ4)
	registry.Register(NameChecksum, NewChecksum)
	return registry
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Lookup returns the factory registered for name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[name]
	return factory, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
