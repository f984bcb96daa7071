package intake

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/intake-engine/internal/codec"
	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/server"
	"github.com/tjfontaine/intake-engine/internal/tenant"
)

const msgInvalidBody = "Invalid request body"

// Handler serves the intake JSON API.
type Handler struct {
	service *Service
	decoder *codec.Decoder
}

// NewHandler creates a handler for service.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, decoder: codec.NewDecoder()}
}

// Routes mounts the intake endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/intake", h.handleIntake)
	r.Get("/api/intake/status", h.handleStatus)
}

func (h *Handler) handleIntake(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.IntakeRequest
	if err := h.decoder.Decode(r.Body, &req, msgInvalidBody); err != nil {
		server.AddError(ctx, err)
		codec.WriteError(w, err)
		return
	}
	server.AddLogField(ctx, "tenant_id", req.AppID)
	server.AddLogField(ctx, "event", string(req.Event))
	server.AddLogField(ctx, "session_id", req.SessionID)
	server.AddLogField(ctx, "cta_tag", req.CTATag)

	resp, err := h.service.Handle(ctx, &req)
	if err != nil {
		server.AddError(ctx, err)
		codec.WriteError(w, err)
		return
	}
	codec.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	appID := r.URL.Query().Get("app_id")
	if appID == "" {
		if t, ok := tenant.FromContext(ctx); ok {
			appID = t.ID
		}
	}
	jobID := r.URL.Query().Get("job_id")
	server.AddLogField(ctx, "tenant_id", appID)
	server.AddLogField(ctx, "job_id", jobID)

	resp, err := h.service.Status(ctx, appID, jobID)
	if err != nil {
		server.AddError(ctx, err)
		codec.WriteError(w, err)
		return
	}
	codec.WriteJSON(w, http.StatusOK, resp)
}
