package source

import (
	"sort"
	"sync"
)

// Registry maps source type keys to adapters. Registration happens at
// startup; lookups are concurrency-safe.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Type()] = s
}

func (r *Registry) Get(sourceType string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[sourceType]
	return s, ok
}

// Types returns the registered source type keys in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.sources))
	for t := range r.sources {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Describe returns capability summaries for all registered sources,
// sorted by type key.
func (r *Registry) Describe() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descriptors := make([]Descriptor, 0, len(r.sources))
	for _, s := range r.sources {
		descriptors = append(descriptors, Descriptor{
			Type:        s.Type(),
			Name:        s.Name(),
			Description: s.Description(),
			Configured:  s.Configured(),
			Fields:      s.ConfigFields(),
		})
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Type < descriptors[j].Type
	})
	return descriptors
}
