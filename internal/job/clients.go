package job

import (
	"context"
	"jobseries/internal/cloud"
	"jobseries/internal/compute"
	"jobseries/internal/objectstore"
	"jobseries/pkg/registry"
)

// ObjectStoreFactory builds an object store client for one set of credentials.
type ObjectStoreFactory func(ctx context.Context, creds cloud.Credentials) (objectstore.Store, error)

// ProviderFactory builds a compute provider client for one set of credentials.
type ProviderFactory func(ctx context.Context, creds cloud.Credentials) (compute.Provider, error)

// Clients caches provider clients per caller credentials.
// Concurrent first use by the same caller builds exactly one client.
type Clients struct {
	newObjectStore ObjectStoreFactory
	newProvider    ProviderFactory
	objectStores   *registry.Registry[objectstore.Store]
	providers      *registry.Registry[compute.Provider]
}

// NewClients creates an empty cache around the given factories.
func NewClients(objects ObjectStoreFactory, providers ProviderFactory) *Clients {
	return &Clients{
		newObjectStore: objects,
		newProvider:    providers,
		objectStores:   registry.New[objectstore.Store](nil),
		providers:      registry.New[compute.Provider](nil),
	}
}

// StaticClients returns a cache that hands out the same clients to every caller.
func StaticClients(objects objectstore.Store, provider compute.Provider) *Clients {
	return NewClients(
		func(context.Context, cloud.Credentials) (objectstore.Store, error) { return objects, nil },
		func(context.Context, cloud.Credentials) (compute.Provider, error) { return provider, nil },
	)
}

// ObjectStore returns the cached object store client for creds.
func (c *Clients) ObjectStore(ctx context.Context, creds cloud.Credentials) (objectstore.Store, error) {
	return c.objectStores.GetWith(creds.Key(), func(string) (objectstore.Store, error) {
		return c.newObjectStore(ctx, creds)
	})
}

// Provider returns the cached compute provider client for creds.
func (c *Clients) Provider(ctx context.Context, creds cloud.Credentials) (compute.Provider, error) {
	return c.providers.GetWith(creds.Key(), func(string) (compute.Provider, error) {
		return c.newProvider(ctx, creds)
	})
}
