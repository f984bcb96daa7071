package funnel

import (
	"strings"

	"github.com/tjfontaine/intake-engine/internal/domain"
)

// PrivacyPolicyPath serves tenant-authored policy text.
const PrivacyPolicyPath = "/privacy-policy"

// DefaultConsentLabel is used when a tenant sets none.
const DefaultConsentLabel = "I agree to share my information in accordance with the Privacy Policy."

// PolicyLink is where the consent checkbox points.
type PolicyLink struct {
	Href         string
	OpenInNewTab bool
}

// PrivacyPolicyLink resolves the tenant's policy link from either the mode-based or the legacy
// shape. It reports false when nothing usable is configured.
func PrivacyPolicyLink(cfg domain.AppConfig) (PolicyLink, bool) {
	pp := cfg.PrivacyPolicy
	if pp == nil {
		return PolicyLink{}, false
	}
	switch pp.Mode {
	case "external":
		if u := strings.TrimSpace(pp.URL); u != "" {
			return PolicyLink{Href: u, OpenInNewTab: true}, true
		}
		return PolicyLink{}, false
	case "internal":
		if strings.TrimSpace(pp.Content) != "" {
			return PolicyLink{Href: PrivacyPolicyPath, OpenInNewTab: true}, true
		}
		return PolicyLink{}, false
	}
	if pp.Enabled && strings.TrimSpace(pp.Content) != "" {
		return PolicyLink{Href: PrivacyPolicyPath, OpenInNewTab: true}, true
	}
	return PolicyLink{}, false
}

// InternalPolicy returns the policy text served at PrivacyPolicyPath, if any.
func InternalPolicy(cfg domain.AppConfig) (string, bool) {
	link, ok := PrivacyPolicyLink(cfg)
	if !ok || link.Href != PrivacyPolicyPath {
		return "", false
	}
	return cfg.PrivacyPolicy.Content, true
}

// ConsentEnabled reports whether the tenant asks for consent at all.
func ConsentEnabled(cfg domain.AppConfig) bool {
	if cfg.PrivacyPolicy != nil && cfg.PrivacyPolicy.ConsentRequired != nil && !*cfg.PrivacyPolicy.ConsentRequired {
		return false
	}
	_, ok := PrivacyPolicyLink(cfg)
	return ok
}

// ConsentRequired reports whether contact values must be withheld unless consent is given:
// consent is enabled and at least one contact question places the checkbox.
func ConsentRequired(cfg domain.AppConfig, questions []domain.Question) bool {
	if !ConsentEnabled(cfg) {
		return false
	}
	for _, q := range questions {
		if q.IsContact() && q.ShowConsentUnder {
			return true
		}
	}
	return false
}

// ConsentLabel returns the checkbox text.
func ConsentLabel(cfg domain.AppConfig) string {
	if l := strings.TrimSpace(cfg.ContactConsentLabel); l != "" {
		return l
	}
	return DefaultConsentLabel
}

// ApplyConsent redacts contact when consent is required but was not explicitly given.
func ApplyConsent(cfg domain.AppConfig, questions []domain.Question, contact map[string]string, given *bool) map[string]string {
	if ConsentRequired(cfg, questions) && (given == nil || !*given) {
		return Redact(contact)
	}
	return contact
}
