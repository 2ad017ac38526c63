package capability

import (
	"fmt"

	"github.com/calebrin/tutorcore/internal/core"
)

// Registry resolves providers by logical capability name. Registration
// happens at construction; requests never mutate it.
type Registry struct {
	providers map[core.Capability]core.CapabilityProvider
}

func NewRegistry(providers ...core.CapabilityProvider) *Registry {
	r := &Registry{
		providers: make(map[core.Capability]core.CapabilityProvider, len(providers)),
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Register replaces the provider serving name. Used to swap a local
// specialist for a remote one at wiring time.
func (r *Registry) Register(p core.CapabilityProvider) {
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name core.Capability) (core.CapabilityProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown capability: %s", name)
	}
	return p, nil
}
