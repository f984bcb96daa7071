// Command seed loads tenant definitions from YAML into the SQL tenant store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/intake-engine/internal/pkg/config"
	"github.com/tjfontaine/intake-engine/internal/storage"
	"github.com/tjfontaine/intake-engine/internal/storage/sqldb"
	"github.com/tjfontaine/intake-engine/internal/telemetry"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "engine config naming the database")
	tenantsPath := flag.String("tenants", "", "YAML file with a top-level tenants list (default: tenants.definitions from -config)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, logCloser := telemetry.NewLogger(cfg.Log)
	defer logCloser.Close()

	defs := cfg.Tenants.Definitions
	if *tenantsPath != "" {
		if defs, err = config.LoadTenants(*tenantsPath); err != nil {
			log.Fatalf("Failed to load tenants: %v", err)
		}
	}

	store, err := openSQL(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	created, updated, err := seed(context.Background(), store, defs, logger)
	if err != nil {
		logger.Error("seed failed", slog.String("error", err.Error()))
		store.Close()
		os.Exit(1)
	}
	logger.Info("seed complete", slog.Int("created", created), slog.Int("updated", updated))
}

func openSQL(cfg config.StorageConfig) (*sqldb.Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		return sqldb.NewSQLite(cfg.SQLite.Path)
	case "postgres":
		return sqldb.New(sqldb.Config{Driver: "postgres", DSN: cfg.Database.DSN})
	default:
		return nil, fmt.Errorf("storage type %q has nothing to seed", cfg.Type)
	}
}

// seed creates each tenant, or updates it in place when its id already exists, and maps every
// listed domain. The first domain is primary for new tenants.
func seed(ctx context.Context, store storage.TenantStore, defs []config.TenantConfig, logger *slog.Logger) (created, updated int, err error) {
	for i, def := range defs {
		t, err := def.Tenant()
		if err != nil {
			return created, updated, fmt.Errorf("tenant %d: %w", i+1, err)
		}

		existing := false
		if t.ID != "" {
			_, err := store.GetTenantByID(ctx, t.ID)
			switch {
			case err == nil:
				existing = true
			case !errors.Is(err, storage.ErrNotFound):
				return created, updated, fmt.Errorf("lookup %s: %w", t.ID, err)
			}
		}

		if existing {
			name, cfg := t.Name, t.Config
			if _, err := store.UpdateTenant(ctx, t.ID, storage.TenantUpdate{
				Name: &name, Config: &cfg, Questions: t.Questions, SetQuestions: true,
			}); err != nil {
				return created, updated, fmt.Errorf("update %s: %w", t.ID, err)
			}
			updated++
		} else {
			primary := ""
			if len(def.Domains) > 0 {
				primary = def.Domains[0]
			}
			if err := store.CreateTenant(ctx, &t, primary); err != nil {
				return created, updated, fmt.Errorf("create %s: %w", t.Name, err)
			}
			created++
		}

		if err := addDomains(ctx, store, t.ID, def.Domains); err != nil {
			return created, updated, err
		}
		logger.Info("seeded tenant", slog.String("tenant_id", t.ID), slog.String("name", t.Name), slog.Bool("updated", existing))
	}
	return created, updated, nil
}

func addDomains(ctx context.Context, store storage.TenantStore, tenantID string, hosts []string) error {
	have, err := store.Domains(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("domains of %s: %w", tenantID, err)
	}
	mapped := make(map[string]bool, len(have))
	for _, d := range have {
		mapped[d.Domain] = true
	}
	for _, h := range hosts {
		host := storage.NormalizeDomain(h)
		if host == "" || mapped[host] {
			continue
		}
		if _, err := store.AddDomain(ctx, tenantID, host, len(mapped) == 0); err != nil {
			return fmt.Errorf("add domain %s to %s: %w", host, tenantID, err)
		}
		mapped[host] = true
	}
	return nil
}
