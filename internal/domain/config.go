package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlowStep is a top-level stage of a tenant's funnel.
type FlowStep string

const (
	StepHero      FlowStep = "hero"
	StepQuestions FlowStep = "questions"
	// StepContact is the legacy standalone contact stage. It is accepted in stored
	// configs and folded into the grouped question steps.
	StepContact FlowStep = "contact"
	StepResult  FlowStep = "result"
)

// SessionScope controls how long a funnel session id lives in the browser.
type SessionScope string

const (
	// SessionScopeTab keeps one id for the browser session, surviving reloads.
	SessionScopeTab SessionScope = "tab"
	// SessionScopeLoad issues a fresh id on every page load.
	SessionScopeLoad SessionScope = "load"
)

// Valid reports whether s is a known scope.
func (s SessionScope) Valid() bool {
	return s == SessionScopeTab || s == SessionScopeLoad
}

// Theme holds tenant branding.
type Theme struct {
	PrimaryColor string `json:"primaryColor,omitempty"`
	Background   string `json:"background,omitempty"`
	FontFamily   string `json:"fontFamily,omitempty"`
	Layout       string `json:"layout,omitempty"`
}

// HeroConfig is the optional landing screen.
type HeroConfig struct {
	Title       string   `json:"title,omitempty"`
	Body        []string `json:"body,omitempty"`
	CtaLabel    string   `json:"ctaLabel,omitempty"`
	ButtonLabel string   `json:"buttonLabel,omitempty"`
	LogoURL     string   `json:"logoUrl,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	FooterText  string   `json:"footerText,omitempty"`
}

// Button returns the start button text, falling back to the CTA label.
func (h HeroConfig) Button() string {
	if h.ButtonLabel != "" {
		return h.ButtonLabel
	}
	if h.CtaLabel != "" {
		return h.CtaLabel
	}
	return "Start"
}

// PrivacyPolicy covers both the mode-based shape and the legacy {enabled, content} shape.
type PrivacyPolicy struct {
	Mode            string `json:"mode,omitempty"` // internal | external
	Content         string `json:"content,omitempty"`
	URL             string `json:"url,omitempty"`
	Enabled         bool   `json:"enabled,omitempty"`
	ConsentRequired *bool  `json:"consentRequired,omitempty"`
}

// AnnouncementConfig is the thin banner shown at the top of the funnel.
type AnnouncementConfig struct {
	Enabled         bool   `json:"enabled"`
	Message         string `json:"message"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	TextColor       string `json:"textColor,omitempty"`
	Scope           string `json:"scope,omitempty"` // hero | full
}

// VisibleOn reports whether the banner shows on the given stage.
func (a *AnnouncementConfig) VisibleOn(step FlowStep) bool {
	if a == nil || !a.Enabled || strings.TrimSpace(a.Message) == "" {
		return false
	}
	if a.Scope == "hero" {
		return step == StepHero
	}
	return true
}

// AppConfig is the tenant-authored funnel configuration stored as JSON.
type AppConfig struct {
	Theme                   Theme               `json:"theme"`
	Steps                   []FlowStep          `json:"steps,omitempty"`
	SiteTitle               string              `json:"siteTitle,omitempty"`
	FaviconURL              string              `json:"faviconUrl,omitempty"`
	Hero                    *HeroConfig         `json:"hero,omitempty"`
	DefaultThankYouMessage  string              `json:"defaultThankYouMessage,omitempty"`
	TextQuestionButtonLabel string              `json:"textQuestionButtonLabel,omitempty"`
	CTA                     CTA                 `json:"-"`
	PrivacyPolicy           *PrivacyPolicy      `json:"privacyPolicy,omitempty"`
	ContactConsentLabel     string              `json:"contactConsentLabel,omitempty"`
	Announcement            *AnnouncementConfig `json:"announcement,omitempty"`
	WebhookURL              string              `json:"webhookUrl,omitempty"`
	SessionScope            SessionScope        `json:"sessionScope,omitempty"`
}

type appConfigJSON AppConfig

type appConfigWire struct {
	*appConfigJSON
	CTA json.RawMessage `json:"cta,omitempty"`
}

func (c AppConfig) MarshalJSON() ([]byte, error) {
	wire := appConfigWire{appConfigJSON: (*appConfigJSON)(&c)}
	if c.CTA != nil {
		raw, err := MarshalCTA(c.CTA)
		if err != nil {
			return nil, err
		}
		wire.CTA = raw
	}
	return json.Marshal(wire)
}

func (c *AppConfig) UnmarshalJSON(data []byte) error {
	wire := appConfigWire{appConfigJSON: (*appConfigJSON)(c)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.CTA = nil
	if len(wire.CTA) > 0 && string(wire.CTA) != "null" {
		cta, err := DecodeCTA(wire.CTA)
		if err != nil {
			return fmt.Errorf("decode cta: %w", err)
		}
		c.CTA = cta
	}
	return nil
}

// DefaultSteps is used when a config omits steps.
var DefaultSteps = []FlowStep{StepHero, StepQuestions, StepResult}

// EffectiveSteps returns the configured top-level steps with the legacy
// contact stage folded away. Unknown entries and duplicates are dropped.
func (c AppConfig) EffectiveSteps() []FlowStep {
	src := c.Steps
	if len(src) == 0 {
		src = DefaultSteps
	}
	seen := make(map[FlowStep]bool, len(src))
	out := make([]FlowStep, 0, len(src))
	for _, s := range src {
		switch s {
		case StepHero, StepQuestions, StepResult:
		default:
			continue
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if !seen[StepQuestions] {
		out = append(out, StepQuestions)
	}
	return out
}

// ThankYouFallback returns the tenant default thank-you message or "Thank you.".
func (c AppConfig) ThankYouFallback() string {
	if strings.TrimSpace(c.DefaultThankYouMessage) != "" {
		return c.DefaultThankYouMessage
	}
	return "Thank you."
}

// TextButtonLabel returns the label for text questions.
func (c AppConfig) TextButtonLabel() string {
	if c.TextQuestionButtonLabel != "" {
		return c.TextQuestionButtonLabel
	}
	return "OK"
}

// Title returns the browser title, falling back to name.
func (c AppConfig) Title(name string) string {
	if c.SiteTitle != "" {
		return c.SiteTitle
	}
	return name
}
