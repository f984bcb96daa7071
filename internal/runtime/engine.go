// Package runtime wires the intake engine together and manages its lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/intake-engine/internal/adapters/config/file"
	"github.com/tjfontaine/intake-engine/internal/api/admin"
	"github.com/tjfontaine/intake-engine/internal/auth"
	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/funnel"
	"github.com/tjfontaine/intake-engine/internal/intake"
	"github.com/tjfontaine/intake-engine/internal/intakeclient"
	"github.com/tjfontaine/intake-engine/internal/pkg/config"
	"github.com/tjfontaine/intake-engine/internal/pkg/safehttp"
	"github.com/tjfontaine/intake-engine/internal/relay"
	"github.com/tjfontaine/intake-engine/internal/server"
	"github.com/tjfontaine/intake-engine/internal/storage"
	"github.com/tjfontaine/intake-engine/internal/storage/memory"
	"github.com/tjfontaine/intake-engine/internal/tenant"
	"github.com/tjfontaine/intake-engine/internal/web"
)

// ConfigSource loads configuration and reports later changes.
type ConfigSource interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// Engine serves tenant funnels, the intake API and the admin API from one listener.
type Engine struct {
	// Dependencies (injected via options)
	config    ConfigSource
	store     storage.TenantStore
	transport funnel.Transport
	logger    *slog.Logger

	// Built by Start
	cfg          *config.Config
	registry     *tenant.Registry
	dispatcher   *relay.Dispatcher
	service      *intake.Service
	intakeClient *intakeclient.Client
	sessions     *web.SessionStore
	server       *server.Server
	errCh        chan error

	ctx         context.Context
	cancel      context.CancelFunc
	relayCancel context.CancelFunc
	mu          sync.RWMutex
}

// New creates an Engine. A config source is required; storage defaults to what the config's
// storage.type names.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		errCh:  make(chan error, 1),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if e.config == nil {
		return nil, fmt.Errorf("config source required (use WithFileConfig or WithConfig)")
	}
	return e, nil
}

// Start loads configuration, builds every component and begins serving in the background.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.server != nil {
		return errors.New("engine already started")
	}

	e.ctx, e.cancel = context.WithCancel(ctx)

	cfg, err := e.config.Load(e.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	e.cfg = cfg

	if err := e.initStorage(cfg); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	if err := e.initIntake(cfg); err != nil {
		return fmt.Errorf("init intake: %w", err)
	}

	e.initServer(cfg)

	if cfg.Storage.Type == "file" {
		if err := e.config.Watch(e.ctx, e.reload); err != nil {
			e.logger.Warn("config watch unavailable", slog.String("error", err.Error()))
		}
	}

	go func() {
		if err := e.server.Start(); err != nil {
			e.logger.Error("server error", slog.String("error", err.Error()))
			e.errCh <- err
		}
	}()

	e.logger.Info("intake engine started",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Type),
		slog.String("relay_mode", string(e.service.Mode())))

	return nil
}

// Shutdown stops the listener, drains queued webhook deliveries and closes resources.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.logger.Info("shutting down intake engine")

	if e.cancel != nil {
		e.cancel()
	}

	var errs []error
	if e.server != nil {
		if err := e.server.Shutdown(ctx); err != nil {
			e.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if e.dispatcher != nil {
		if err := e.dispatcher.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain relay queue: %w", err))
		}
	}
	if e.relayCancel != nil {
		e.relayCancel()
	}

	if e.intakeClient != nil {
		if err := e.intakeClient.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close intake client: %w", err))
		}
	}

	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}

	if err := e.config.Close(); err != nil {
		e.logger.Error("failed to close config", slog.String("error", err.Error()))
	}

	e.logger.Info("intake engine shutdown complete")
	return errors.Join(errs...)
}

// Handler returns the root HTTP handler. It is nil before Start.
func (e *Engine) Handler() http.Handler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.server == nil {
		return nil
	}
	return e.server.Router
}

// Config returns the configuration loaded by Start.
func (e *Engine) Config() *config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Err reports a listener failure after Start.
func (e *Engine) Err() <-chan error {
	return e.errCh
}

// initStorage opens the store named by the config unless one was injected. File storage
// serves tenants.definitions from memory.
func (e *Engine) initStorage(cfg *config.Config) error {
	if cfg.Storage.Type == "file" {
		mem, ok := e.store.(*memory.Store)
		if e.store == nil {
			mem, ok = memory.New(), true
			e.store = mem
		}
		if !ok {
			return fmt.Errorf("file storage needs the in-memory store")
		}
		if err := file.SyncTenants(mem, cfg.Tenants.Definitions); err != nil {
			return fmt.Errorf("load tenant definitions: %w", err)
		}
		e.logger.Info("serving tenants from config file", slog.Int("tenants", len(cfg.Tenants.Definitions)))
		return nil
	}

	if e.store != nil {
		return nil
	}
	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	e.store = store
	return nil
}

func (e *Engine) initIntake(cfg *config.Config) error {
	e.registry = tenant.NewRegistry(e.store, cfg.Tenants.CacheSize, cfg.Tenants.CacheTTL,
		tenant.WithLogger(e.logger))

	relayCtx, relayCancel := context.WithCancel(context.WithoutCancel(e.ctx))
	e.relayCancel = relayCancel
	e.dispatcher = relay.NewDispatcher(relayCtx, cfg.Relay.Workers, cfg.Relay.QueueSize, e.logger)

	operator := relay.NewClient(relay.Config{
		Name:          "operator-webhook",
		Timeout:       cfg.Relay.Timeout,
		StatusTimeout: cfg.Relay.StatusTimeout,
		Retries:       cfg.Relay.Retries,
		APIKey:        cfg.Relay.APIKey,
		Headers:       cfg.Relay.Headers,
	})

	// Tenant-supplied URLs never carry the operator credentials.
	var tenantTransport http.RoundTripper
	if !cfg.Relay.AllowPrivateTargets {
		tenantTransport = safehttp.NewTransport(0)
	}
	tenantHook := relay.NewClient(relay.Config{
		Name:          "tenant-webhook",
		Timeout:       cfg.Relay.Timeout,
		StatusTimeout: cfg.Relay.StatusTimeout,
		Retries:       cfg.Relay.Retries,
		Transport:     tenantTransport,
	})

	e.service = intake.NewService(e.registry, e.dispatcher,
		intake.WithMode(intake.Mode(cfg.Relay.Mode)),
		intake.WithWebhookURL(cfg.Relay.WebhookURL),
		intake.WithOperatorClient(operator),
		intake.WithTenantClient(tenantHook),
		intake.WithLogger(e.logger))

	if e.transport != nil {
		return nil
	}
	if cfg.Funnel.IntakeURL == "" {
		e.transport = intake.NewLocalTransport(e.service)
		return nil
	}
	client, err := intakeclient.New(intakeclient.Config{
		BaseURL: cfg.Funnel.IntakeURL,
		Timeout: cfg.Relay.Timeout + cfg.Relay.StatusTimeout,
		Logger:  e.logger,
	})
	if err != nil {
		return fmt.Errorf("create intake client: %w", err)
	}
	e.intakeClient = client
	e.transport = client
	return nil
}

func (e *Engine) initServer(cfg *config.Config) {
	e.sessions = web.NewSessionStore(cfg.Funnel.MaxSessions, cfg.Funnel.SessionTTL)
	funnels := web.NewHandler(web.Config{
		DefaultScope:  domain.SessionScope(cfg.Funnel.SessionScope),
		PollInterval:  cfg.Funnel.PollInterval,
		SecureCookies: cfg.Server.SecureCookies,
	}, e.sessions, e.transport, e.logger)
	intakeAPI := intake.NewHandler(e.service)

	adminAPI := admin.NewServer(e.store, e.registry,
		admin.WithGauge("sessions", e.sessions.Len),
		admin.WithGauge("relay_queue", e.dispatcher.Pending))

	e.server = server.New(server.Config{
		Port:            cfg.Server.Port,
		RequestTimeout:  cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, e.logger)

	r := e.server.Router
	r.Group(func(r chi.Router) {
		r.Use(e.registry.Middleware)
		r.Group(func(r chi.Router) {
			if rl := cfg.Server.RateLimit; rl.Requests > 0 {
				r.Use(server.RateLimitMiddleware(server.NewRateLimiter(rl.Requests, rl.Period, rl.Clients)))
			}
			intakeAPI.Routes(r)
		})
		funnels.Routes(r)
	})

	if len(cfg.Admin.APIKeys) == 0 {
		e.logger.Warn("no admin api keys configured, admin API rejects every request")
	}
	r.With(
		server.AdminHostGate(cfg.Server.AdminHosts),
		server.AuthMiddleware(auth.NewAuthenticator(cfg.Admin.APIKeys)),
	).Mount("/admin", adminAPI)
}

// reload re-applies tenant definitions after the config file changes. Other settings take
// effect on restart.
func (e *Engine) reload(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mem, ok := e.store.(*memory.Store)
	if !ok {
		return
	}
	if cfg.Storage.Type != "file" {
		e.logger.Warn("ignoring config change: storage type changes need a restart",
			slog.String("storage", cfg.Storage.Type))
		return
	}
	if err := file.SyncTenants(mem, cfg.Tenants.Definitions); err != nil {
		e.logger.Error("rejected tenant reload, keeping previous tenants", slog.String("error", err.Error()))
		return
	}
	e.registry.Purge()
	e.cfg.Tenants.Definitions = cfg.Tenants.Definitions
	e.logger.Info("tenant definitions reloaded", slog.Int("tenants", len(cfg.Tenants.Definitions)))
}
