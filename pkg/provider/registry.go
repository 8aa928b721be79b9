package provider

import (
	"fmt"

	"github.com/pario-ai/cachegate/pkg/models"
)

// Registry maps service tags to providers.
type Registry struct {
	providers map[models.Service]Provider
}

// NewRegistry indexes providers by Name. Later providers replace earlier
// ones with the same name.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[models.Service]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Resolve returns the provider registered for service.
func (r *Registry) Resolve(service models.Service) (Provider, error) {
	if len(r.providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	p, ok := r.providers[service]
	if !ok {
		return nil, fmt.Errorf("unsupported service %q", service)
	}
	return p, nil
}
