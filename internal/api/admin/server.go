// Package admin serves the tenant management API: tenant CRUD, domain mapping and process stats.
package admin

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/intake-engine/internal/codec"
	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/server"
	"github.com/tjfontaine/intake-engine/internal/storage"
)

const msgInvalidBody = "Invalid request body"

// Cache is the host resolution cache that must forget tenants after writes.
type Cache interface {
	Invalidate(tenantID string, hosts ...string)
}

// Gauge reports a point-in-time count for the stats endpoint.
type Gauge func() int

// Server handles /api/... under the admin mount point.
type Server struct {
	router    *chi.Mux
	startTime time.Time
	store     storage.TenantStore
	cache     Cache
	decoder   *codec.Decoder
	gauges    map[string]Gauge
}

// Option configures a Server.
type Option func(*Server)

// WithGauge adds a named count to the stats response.
func WithGauge(name string, g Gauge) Option {
	return func(s *Server) {
		s.gauges[name] = g
	}
}

// NewServer creates the admin API. cache may be nil when nothing caches tenants.
func NewServer(store storage.TenantStore, cache Cache, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		startTime: time.Now(),
		store:     store,
		cache:     cache,
		decoder:   codec.NewDecoder(),
		gauges:    map[string]Gauge{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/stats", s.handleStats)
	s.router.Get("/api/tenants", s.handleListTenants)
	s.router.Post("/api/tenants", s.handleCreateTenant)
	s.router.Get("/api/tenants/{id}", s.handleGetTenant)
	s.router.Put("/api/tenants/{id}", s.handleUpdateTenant)
	s.router.Post("/api/tenants/{id}/domains/{domain}", s.handleAddDomain)
	s.router.Delete("/api/tenants/{id}/domains/{domain}", s.handleRemoveDomain)
	s.router.Post("/api/tenants/{id}/domains/{domain}/primary", s.handleSetPrimary)
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		codec.WriteError(w, domain.ErrNotFound("Not found"))
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type StatsResponse struct {
	Uptime       string         `json:"uptime"`
	GoVersion    string         `json:"go_version"`
	NumGoroutine int            `json:"num_goroutine"`
	Memory       MemoryStats    `json:"memory"`
	Tenants      int            `json:"tenants"`
	Gauges       map[string]int `json:"gauges,omitempty"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	tenants, err := s.store.ListTenants(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	stats := StatsResponse{
		Uptime:       time.Since(s.startTime).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
		Tenants: len(tenants),
	}
	if len(s.gauges) > 0 {
		stats.Gauges = make(map[string]int, len(s.gauges))
		for name, g := range s.gauges {
			stats.Gauges[name] = g()
		}
	}
	codec.WriteJSON(w, http.StatusOK, stats)
}

type TenantListResponse struct {
	Tenants []domain.TenantSummary `json:"tenants"`
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.store.ListTenants(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if tenants == nil {
		tenants = []domain.TenantSummary{}
	}
	codec.WriteJSON(w, http.StatusOK, TenantListResponse{Tenants: tenants})
}

// TenantDetail is a tenant with its domains.
type TenantDetail struct {
	*domain.Tenant
	Domains []domain.Domain `json:"domains"`
}

type createTenantRequest struct {
	Name      string            `json:"name" validate:"required,max=200"`
	Domain    string            `json:"domain" validate:"required,hostname_rfc1123"`
	Config    domain.AppConfig  `json:"config"`
	Questions []domain.Question `json:"questions"`
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := s.decoder.Decode(r.Body, &req, msgInvalidBody); err != nil {
		s.fail(w, r, err)
		return
	}

	t := &domain.Tenant{
		Name:      req.Name,
		Config:    req.Config,
		Questions: domain.NormalizeQuestions(req.Questions),
	}
	if err := t.Validate(); err != nil {
		s.fail(w, r, domain.ErrValidation(err.Error()))
		return
	}
	if err := s.store.CreateTenant(r.Context(), t, req.Domain); err != nil {
		s.fail(w, r, err)
		return
	}
	server.AddLogField(r.Context(), "tenant_id", t.ID)
	s.invalidate(r.Context(), t.ID, req.Domain)
	s.writeDetail(w, r, http.StatusCreated, t)
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTenantByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeDetail(w, r, http.StatusOK, t)
}

type updateTenantRequest struct {
	Name      *string            `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Config    *domain.AppConfig  `json:"config,omitempty"`
	Questions *[]domain.Question `json:"questions,omitempty"`
}

func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateTenantRequest
	if err := s.decoder.Decode(r.Body, &req, msgInvalidBody); err != nil {
		s.fail(w, r, err)
		return
	}

	current, err := s.store.GetTenantByID(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	update := storage.TenantUpdate{Name: req.Name, Config: req.Config}
	merged := *current
	if req.Name != nil {
		merged.Name = *req.Name
	}
	if req.Config != nil {
		merged.Config = *req.Config
	}
	if req.Questions != nil {
		update.Questions = domain.NormalizeQuestions(*req.Questions)
		update.SetQuestions = true
		merged.Questions = update.Questions
	}
	if err := merged.Validate(); err != nil {
		s.fail(w, r, domain.ErrValidation(err.Error()))
		return
	}

	t, err := s.store.UpdateTenant(r.Context(), id, update)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r.Context(), id)
	s.writeDetail(w, r, http.StatusOK, t)
}

func (s *Server) handleAddDomain(w http.ResponseWriter, r *http.Request) {
	id, host := chi.URLParam(r, "id"), chi.URLParam(r, "domain")
	if storage.NormalizeDomain(host) == "" {
		s.fail(w, r, domain.ErrValidation("domain is required").WithField("domain"))
		return
	}
	if _, err := s.store.GetTenantByID(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.store.AddDomain(r.Context(), id, host, r.URL.Query().Get("primary") == "true")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r.Context(), id, d.Domain)
	codec.WriteJSON(w, http.StatusCreated, d)
}

func (s *Server) handleRemoveDomain(w http.ResponseWriter, r *http.Request) {
	id, host := chi.URLParam(r, "id"), chi.URLParam(r, "domain")
	if err := s.store.RemoveDomain(r.Context(), id, host); err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r.Context(), id, host)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetPrimary(w http.ResponseWriter, r *http.Request) {
	id, host := chi.URLParam(r, "id"), chi.URLParam(r, "domain")
	if err := s.store.SetPrimaryDomain(r.Context(), id, host); err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r.Context(), id, host)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeDetail(w http.ResponseWriter, r *http.Request, status int, t *domain.Tenant) {
	domains, err := s.store.Domains(r.Context(), t.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if domains == nil {
		domains = []domain.Domain{}
	}
	codec.WriteJSON(w, status, TenantDetail{Tenant: t, Domains: domains})
}

func (s *Server) invalidate(ctx context.Context, tenantID string, hosts ...string) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(tenantID, hosts...)
	server.AddLogField(ctx, "invalidated", tenantID)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)
	codec.WriteError(w, err)
}
