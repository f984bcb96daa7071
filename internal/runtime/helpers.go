package runtime

import (
	"context"
	"fmt"

	"github.com/tjfontaine/intake-engine/internal/pkg/config"
	"github.com/tjfontaine/intake-engine/internal/storage"
	"github.com/tjfontaine/intake-engine/internal/storage/memory"
	"github.com/tjfontaine/intake-engine/internal/storage/sqldb"
)

// openStore opens the tenant store named by cfg.Type.
func openStore(cfg config.StorageConfig) (storage.TenantStore, error) {
	switch cfg.Type {
	case "", "sqlite":
		path := cfg.SQLite.Path
		if cfg.Database.Driver == "sqlite" && cfg.Database.DSN != "" {
			path = cfg.Database.DSN
		}
		store, err := sqldb.NewSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
		return store, nil
	case "postgres":
		store, err := sqldb.New(sqldb.Config{Driver: "postgres", DSN: cfg.Database.DSN})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

// staticConfig serves a fixed configuration and never reports changes.
type staticConfig struct {
	cfg *config.Config
}

func (s staticConfig) Load(ctx context.Context) (*config.Config, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	return s.cfg, nil
}

func (staticConfig) Watch(ctx context.Context, onChange func(*config.Config)) error {
	return nil
}

func (staticConfig) Close() error { return nil }
