package runtime

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/intake-engine/internal/adapters/config/file"
	"github.com/tjfontaine/intake-engine/internal/funnel"
	"github.com/tjfontaine/intake-engine/internal/pkg/config"
	"github.com/tjfontaine/intake-engine/internal/storage"
	"github.com/tjfontaine/intake-engine/internal/storage/memory"
	"github.com/tjfontaine/intake-engine/internal/storage/sqldb"
)

// Option is a functional option for configuring an Engine.
type Option func(*Engine) error

// WithFileConfig reads config.yaml style configuration from path. With storage.type file the
// tenant definitions are reloaded whenever the file changes.
func WithFileConfig(path string) Option {
	return func(e *Engine) error {
		provider, err := file.NewProvider(path, e.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		e.config = provider
		return nil
	}
}

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		e.config = staticConfig{cfg: cfg}
		return nil
	}
}

// WithConfigProvider sets a custom config source.
func WithConfigProvider(source ConfigSource) Option {
	return func(e *Engine) error {
		e.config = source
		return nil
	}
}

// WithSQLite stores tenants in a SQLite database at path.
func WithSQLite(path string) Option {
	return func(e *Engine) error {
		store, err := sqldb.NewSQLite(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		e.store = store
		return nil
	}
}

// WithPostgres stores tenants in PostgreSQL.
func WithPostgres(dsn string) Option {
	return func(e *Engine) error {
		store, err := sqldb.New(sqldb.Config{Driver: "postgres", DSN: dsn})
		if err != nil {
			return fmt.Errorf("create postgres storage: %w", err)
		}
		e.store = store
		return nil
	}
}

// WithMemoryStorage keeps tenants in process memory.
func WithMemoryStorage() Option {
	return func(e *Engine) error {
		e.store = memory.New()
		return nil
	}
}

// WithStorageProvider sets a custom tenant store.
func WithStorageProvider(store storage.TenantStore) Option {
	return func(e *Engine) error {
		e.store = store
		return nil
	}
}

// WithFunnelTransport sets how funnels reach the intake API. The default calls the in-process
// service, or funnel.intake_url when it is set.
func WithFunnelTransport(t funnel.Transport) Option {
	return func(e *Engine) error {
		e.transport = t
		return nil
	}
}

// WithLogger sets a custom logger. Apply it before WithFileConfig so the provider logs with it.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		e.logger = logger
		return nil
	}
}
