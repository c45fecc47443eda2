package adapters

import (
	"strings"

	"github.com/smallbiznis/crosslist/internal/marketplace/domain"
)

type Registry struct {
	factories map[domain.Type]domain.Factory
}

func NewRegistry(factories ...domain.Factory) *Registry {
	registry := &Registry{factories: map[domain.Type]domain.Factory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		marketplace := domain.Type(strings.ToLower(strings.TrimSpace(factory.Marketplace().String())))
		if marketplace == "" {
			continue
		}
		registry.factories[marketplace] = factory
	}
	return registry
}

func (r *Registry) Supports(marketplace domain.Type) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[marketplace]
	return ok
}

func (r *Registry) NewAdapter(marketplace domain.Type, cfg domain.AdapterConfig) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrAdapterNotFound
	}
	factory, ok := r.factories[marketplace]
	if !ok {
		return nil, domain.ErrAdapterNotFound
	}
	cfg.Marketplace = marketplace
	return factory.NewAdapter(cfg)
}

// NewAdapterForConnection decodes a connection's stored credentials and
// builds the matching adapter.
func (r *Registry) NewAdapterForConnection(conn *domain.Connection) (domain.Adapter, error) {
	if conn == nil {
		return nil, domain.ErrConnectionNotFound
	}
	credentials, err := decodeCredentials(conn.Credentials)
	if err != nil {
		return nil, err
	}
	return r.NewAdapter(conn.Marketplace, domain.AdapterConfig{
		UserID:        conn.UserID,
		Credentials:   credentials,
		WebhookSecret: conn.WebhookSecret,
	})
}
