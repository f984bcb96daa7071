// Package file provides file-based configuration with hot-reload of tenant definitions.
package file

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/pkg/config"
)

// Provider loads the config file and watches it for changes.
type Provider struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	mu      sync.RWMutex
	current *config.Config
}

// NewProvider creates a new file-based config provider.
func NewProvider(path string, logger *slog.Logger) (*Provider, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		path:   filepath.Clean(path),
		logger: logger,
	}, nil
}

// Load loads the configuration from the file.
func (p *Provider) Load(ctx context.Context) (*config.Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, err := config.Load(p.path)
	if err != nil {
		return nil, fmt.Errorf("load config from %s: %w", p.path, err)
	}

	p.current = cfg
	p.logger.InfoContext(ctx, "config loaded", slog.String("path", p.path))
	return cfg, nil
}

// Current returns the last successfully loaded configuration.
func (p *Provider) Current() *config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Watch calls onChange with each successfully reloaded configuration. The directory is watched
// rather than the file so editors that replace the file on save are still seen.
func (p *Provider) Watch(ctx context.Context, onChange func(*config.Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	p.mu.Lock()
	p.watcher = watcher
	p.mu.Unlock()

	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", p.path, err)
	}

	p.logger.Info("watching config file for changes", slog.String("path", p.path))

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("config watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != p.path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				p.logger.Info("config file changed, reloading", slog.String("path", event.Name))

				cfg, err := config.Load(p.path)
				if err != nil {
					p.logger.Error("failed to reload config",
						slog.String("error", err.Error()),
						slog.String("path", p.path))
					continue
				}

				p.mu.Lock()
				p.current = cfg
				p.mu.Unlock()

				onChange(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Error("config watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching the config file.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}

// Replacer swaps a store's full tenant set.
type Replacer interface {
	Replace(tenants []domain.Tenant, domains map[string][]string)
}

// SyncTenants validates every definition and, only if all pass, replaces the store contents.
// Definitions served from a file need explicit ids so session cookies survive reloads.
func SyncTenants(store Replacer, defs []config.TenantConfig) error {
	tenants := make([]domain.Tenant, 0, len(defs))
	domains := make(map[string][]string, len(defs))
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		if def.ID == "" {
			return fmt.Errorf("tenant %d (%s): id is required", i+1, def.Name)
		}
		if seen[def.ID] {
			return fmt.Errorf("tenant %s: duplicate id", def.ID)
		}
		seen[def.ID] = true
		t, err := def.Tenant()
		if err != nil {
			return err
		}
		tenants = append(tenants, t)
		domains[t.ID] = def.Domains
	}
	store.Replace(tenants, domains)
	return nil
}
