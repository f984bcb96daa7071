// Package web serves the visitor-facing funnel as server-rendered HTML.
package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tjfontaine/intake-engine/internal/cta"
	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/funnel"
	"github.com/tjfontaine/intake-engine/internal/server"
	"github.com/tjfontaine/intake-engine/internal/tenant"
)

// Config controls session and polling behaviour.
type Config struct {
	// DefaultScope applies when a tenant leaves sessionScope empty.
	DefaultScope domain.SessionScope
	// PollInterval is how often the pending page reloads.
	PollInterval time.Duration
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
}

// Handler renders funnels for the tenant resolved from the request host.
type Handler struct {
	cfg       Config
	sessions  *SessionStore
	transport funnel.Transport
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler creates a funnel handler. Routes expect tenant.Registry's middleware upstream.
func NewHandler(cfg Config, sessions *SessionStore, transport funnel.Transport, logger *slog.Logger) *Handler {
	if !cfg.DefaultScope.Valid() {
		cfg.DefaultScope = domain.SessionScopeTab
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cfg: cfg, sessions: sessions, transport: transport, logger: logger, now: time.Now}
}

// Routes registers the funnel pages on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Get("/funnel", h.handleFunnel)
	r.Get("/funnel/poll", h.handlePoll)
	r.Post("/funnel/start", h.handleStart)
	r.Post("/funnel/answer", h.handleAnswer)
	r.Post("/funnel/back", h.handleBack)
	r.Post("/funnel/cta/select", h.handleSelect)
	r.Post("/funnel/cta/choice", h.handleChoice)
	r.Post("/funnel/cta/reset", h.handleReset)
	r.Get(funnel.PrivacyPolicyPath, h.handlePrivacy)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant.FromContext(r.Context())
	if !ok {
		h.notConfigured(w, r)
		return
	}

	scope := t.Config.SessionScope
	if !scope.Valid() {
		scope = h.cfg.DefaultScope
	}
	sid := uuid.NewString()
	if scope == domain.SessionScopeTab {
		if c, err := r.Cookie(CookieName(t.ID)); err == nil {
			if _, err := uuid.Parse(c.Value); err == nil {
				sid = c.Value
			}
		}
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName(t.ID),
			Value:    sid,
			Path:     "/",
			HttpOnly: true,
			Secure:   h.cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}

	// Funnels are keyed per load; the tab cookie only supplies the correlation id.
	sess := &Session{
		ID:       uuid.NewString(),
		TenantID: t.ID,
		Machine: funnel.New(funnel.Options{
			AppID:     t.ID,
			SessionID: sid,
			Config:    t.Config,
			Questions: t.Questions,
			UTM:       funnel.UTMFromQuery(r.URL.Query()),
			Transport: h.transport,
			Logger:    h.logger,
			Now:       h.now,
		}),
	}
	h.sessions.Put(sess)
	server.AddLogField(r.Context(), "session_id", sid)
	server.AddLogField(r.Context(), "funnel_id", sess.ID)
	h.renderFunnel(w, r, t, sess)
}

func (h *Handler) handleFunnel(w http.ResponseWriter, r *http.Request) {
	t, sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	h.renderFunnel(w, r, t, sess)
}

func (h *Handler) handlePoll(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(sess *Session) (string, error) {
		return "", sess.Machine.Poll(r.Context())
	})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(sess *Session) (string, error) {
		return "", sess.Machine.Start(r.Context())
	})
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(sess *Session) (string, error) {
		m := sess.Machine
		step, ok := m.CurrentStep()
		if !ok {
			return "", m.Answer(r.Context(), funnel.Input{})
		}
		in := funnel.Input{
			Value:  r.PostFormValue("value"),
			Values: r.PostForm["values"],
		}
		if step.IsGroup() {
			in.Contact = make(map[string]string, len(step.Contacts))
			for _, q := range step.Contacts {
				in.Contact[q.ID] = r.PostFormValue("contact." + q.ID)
			}
			if m.ShowConsent(step) {
				given := r.PostFormValue("consent") != ""
				in.ConsentGiven = &given
			}
		}
		return "", m.Answer(r.Context(), in)
	})
}

func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(sess *Session) (string, error) {
		return "", sess.Machine.Back()
	})
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(sess *Session) (string, error) {
		out, err := sess.Machine.SelectCTA(r.Context(), r.PostFormValue("option"))
		if err != nil {
			return "", err
		}
		if out.Navigate != nil {
			server.AddLogField(r.Context(), "navigate", out.Navigate.URL)
			return out.Navigate.URL, nil
		}
		return "", nil
	})
}

func (h *Handler) handleChoice(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(sess *Session) (string, error) {
		i, err := strconv.Atoi(r.PostFormValue("index"))
		if err != nil {
			return "", cta.ErrNoSubChoice
		}
		_, err = sess.Machine.SelectSubChoice(i)
		return "", err
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(sess *Session) (string, error) {
		sess.Machine.ResetCTA()
		return "", nil
	})
}

func (h *Handler) handlePrivacy(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant.FromContext(r.Context())
	if !ok {
		h.notConfigured(w, r)
		return
	}
	content, ok := funnel.InternalPolicy(t.Config)
	if !ok {
		h.page(w, r, http.StatusNotFound, layoutFor(t, domain.StepResult), NotConfiguredPage())
		return
	}
	h.page(w, r, http.StatusOK, layoutFor(t, domain.StepResult), PrivacyPolicyPage("Privacy Policy", content))
}

// act runs fn under the session lock and redirects. Field and wrong-stage errors are kept on
// the machine and shown by the redirected render; fn may return an external URL to leave to.
func (h *Handler) act(w http.ResponseWriter, r *http.Request, fn func(*Session) (string, error)) {
	_, sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Lock()
	target, err := fn(sess)
	sess.Unlock()

	if err != nil {
		var fieldErrs funnel.FieldErrors
		switch {
		case errors.As(err, &fieldErrs):
			server.AddLogField(r.Context(), "field_errors", strconv.Itoa(len(fieldErrs)))
		case errors.Is(err, funnel.ErrWrongStage), errors.Is(err, funnel.ErrSubmitInFlight),
			errors.Is(err, cta.ErrUnknownOption), errors.Is(err, cta.ErrNoSubChoice):
			server.AddLogField(r.Context(), "ignored", err.Error())
		default:
			server.AddError(r.Context(), err)
		}
	}
	if target == "" {
		target = funnelURL("/funnel", sess.ID)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// session loads the funnel named by the sid parameter and checks it belongs to the host's
// tenant. It writes the response itself when it reports false.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*domain.Tenant, *Session, bool) {
	t, ok := tenant.FromContext(r.Context())
	if !ok {
		h.notConfigured(w, r)
		return nil, nil, false
	}
	sid := r.FormValue("sid")
	sess, ok := h.sessions.Get(sid)
	if !ok || sess.TenantID != t.ID {
		h.page(w, r, http.StatusGone, layoutFor(t, domain.StepHero), SessionExpiredPage())
		return nil, nil, false
	}
	server.AddLogField(r.Context(), "session_id", sess.Machine.SessionID())
	server.AddLogField(r.Context(), "funnel_id", sid)
	return t, sess, true
}

func (h *Handler) renderFunnel(w http.ResponseWriter, r *http.Request, t *domain.Tenant, sess *Session) {
	m := sess.Machine
	layout := layoutFor(t, m.Stage())
	if m.Stage() == domain.StepResult && m.Pending() {
		layout.RefreshURL = funnelURL("/funnel/poll", sess.ID)
		layout.RefreshSeconds = int(h.cfg.PollInterval.Round(time.Second) / time.Second)
		if layout.RefreshSeconds < 1 {
			layout.RefreshSeconds = 1
		}
	}
	h.page(w, r, http.StatusOK, layout, FunnelPage(sess.ID, m))
}

func (h *Handler) notConfigured(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, http.StatusNotFound, LayoutData{Title: "Not configured"}, NotConfiguredPage())
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request, status int, layout LayoutData, body templ.Component) {
	if err := writePage(w, r, status, Layout(layout), body); err != nil {
		server.AddError(r.Context(), err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
