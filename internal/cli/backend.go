package cli

import (
	"fmt"

	"github.com/aevon-lab/schema-registry/internal/config"
	"github.com/aevon-lab/schema-registry/internal/registry"
	"github.com/aevon-lab/schema-registry/internal/registry/storage/memory"
	"github.com/aevon-lab/schema-registry/internal/registry/storage/pebblestore"
	"github.com/aevon-lab/schema-registry/internal/registry/storage/postgres"
)

// openBackend opens the storage backend selected by storage.backend. The
// returned func releases it.
func openBackend(cfg *config.Config) (registry.Backend, func() error, error) {
	switch cfg.Storage.Backend {
	case config.BackendPebble:
		store, err := pebblestore.Open(cfg.Storage.Path, pebblestore.Options{
			NameCacheSize: cfg.Storage.NameCacheSize,
			NoSync:        cfg.Storage.NoSync,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.BackendPostgres:
		store, err := postgres.Open(cfg.Database.DSN, postgres.Options{
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
			AutoMigrate:  cfg.Database.AutoMigrate,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.BackendMemory:
		return memory.New(), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}
