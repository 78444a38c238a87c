package processor

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds an adapter instance for one backend from the given
// options. Adapters register a Factory from their package init().
type Factory func(opts Options) (BatchProcessor, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds a backend factory to the global registry.
// Typically called from adapter package init() functions.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// New constructs an adapter for the named backend. Dispatch is on the
// configured backend identifier, never on runtime type inspection.
func New(name string, opts Options) (BatchProcessor, error) {
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("batch backend %q not registered", name)
	}
	return f(opts)
}

// List returns all registered backend names in sorted order.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
