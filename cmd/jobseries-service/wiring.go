package main

import (
	"context"
	"fmt"
	"jobseries/internal/cloud"
	"jobseries/internal/compute"
	"jobseries/internal/compute/docker"
	"jobseries/internal/compute/ec2"
	"jobseries/internal/config"
	"jobseries/internal/health"
	"jobseries/internal/job"
	"jobseries/internal/metadata/badgerstore"
	"jobseries/internal/metadata/memory"
	"jobseries/internal/metadata/sqlstore"
	"jobseries/internal/objectstore"
	"jobseries/internal/objectstore/s3store"
	"log/slog"
)

// openStore opens the configured metadata backend.
func openStore(ctx context.Context, cfg config.MetadataConfig, migrate bool) (job.Store, error) {
	switch cfg.Backend {
	case "memory":
		slog.Warn("Using in-memory metadata store, data is lost on restart")
		return memory.New(), nil

	case "badger":
		store, err := badgerstore.Open(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		return store, nil

	case "postgres", "mysql", "sqlite":
		store, err := sqlstore.Open(ctx, sqlstore.Dialect(cfg.Backend), cfg.DSN, sqlstore.DefaultTableConfig())
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := store.Migrate(ctx); err != nil {
				store.Close()
				return nil, err
			}
			slog.Info("Metadata schema migrated", "backend", cfg.Backend)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.Backend)
	}
}

// newClients builds the per-caller client cache. Request credentials are
// merged over the configured defaults before a client is built.
func newClients(cfg *config.ServiceConfig) (*job.Clients, func(), error) {
	keys := cloud.Credentials{
		AccessKeyID:     cfg.Compute.AccessKeyID,
		SecretAccessKey: cfg.Compute.SecretAccessKey,
	}
	storageDefaults := keys
	storageDefaults.Region = cfg.Storage.Region
	storageDefaults.Endpoint = cfg.Storage.Endpoint
	computeDefaults := keys
	computeDefaults.Region = cfg.Compute.Region
	computeDefaults.Endpoint = cfg.Compute.Endpoint

	newObjectStore := func(ctx context.Context, creds cloud.Credentials) (objectstore.Store, error) {
		awsCfg, err := cloud.AWSConfig(ctx, creds.Merge(storageDefaults))
		if err != nil {
			return nil, err
		}
		return s3store.New(awsCfg, s3store.Options{UsePathStyle: cfg.Storage.UsePathStyle}), nil
	}

	if cfg.Compute.Provider == "docker" {
		// One local daemon serves every caller.
		provider, err := docker.New()
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using local Docker daemon as compute provider")
		clients := job.NewClients(newObjectStore, func(context.Context, cloud.Credentials) (compute.Provider, error) {
			return provider, nil
		})
		return clients, func() { provider.Close() }, nil
	}

	newProvider := func(ctx context.Context, creds cloud.Credentials) (compute.Provider, error) {
		awsCfg, err := cloud.AWSConfig(ctx, creds.Merge(computeDefaults))
		if err != nil {
			return nil, err
		}
		return ec2.New(awsCfg), nil
	}
	return job.NewClients(newObjectStore, newProvider), func() {}, nil
}

// computeReadiness checks the provider client built from the default credentials.
func computeReadiness(clients *job.Clients) health.ReadinessChecker {
	return health.CheckFunc(func(ctx context.Context) error {
		provider, err := clients.Provider(ctx, cloud.Credentials{})
		if err != nil {
			return err
		}
		if rc, ok := provider.(compute.ReadyChecker); ok {
			return rc.Ready(ctx)
		}
		return nil
	})
}
