package provider

import (
	"context"
	"sync"

	"github.com/agentdeck/agentdeck/binpath"
)

// Registry holds the closed set of provider variants in a stable order.
// It is constructed at startup and never mutated afterwards.
type Registry struct {
	byID    map[string]Provider
	ordered []Provider
}

// NewRegistry constructs the default registry over all known variants.
func NewRegistry(resolver *binpath.Resolver) *Registry {
	return NewRegistryWith(
		NewClaude(resolver),
		NewCodex(resolver),
		NewGemini(resolver),
		NewCursor(resolver),
	)
}

// NewRegistryWith constructs a registry over an explicit provider set.
// Tests use this to register fakes.
func NewRegistryWith(providers ...Provider) *Registry {
	r := &Registry{byID: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if _, ok := r.byID[p.ID()]; ok {
			continue
		}
		r.byID[p.ID()] = p
		r.ordered = append(r.ordered, p)
	}
	return r
}

// Get returns the provider with the given id.
func (r *Registry) Get(id string) (Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// All returns every provider in registration order.
func (r *Registry) All() []Provider {
	return append([]Provider(nil), r.ordered...)
}

// IDs returns the provider ids in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.ordered))
	for _, p := range r.ordered {
		ids = append(ids, p.ID())
	}
	return ids
}

// Status pairs a provider with its probed availability.
type Status struct {
	Provider     Provider
	Availability Availability
}

// CheckAll probes every provider binary in parallel and returns statuses in
// registration order.
func (r *Registry) CheckAll(ctx context.Context) []Status {
	statuses := make([]Status, len(r.ordered))
	var wg sync.WaitGroup

	for i, p := range r.ordered {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			statuses[i] = Status{Provider: p, Availability: p.CheckAvailability(ctx)}
		}(i, p)
	}

	wg.Wait()
	return statuses
}
