// Package cta resolves a tenant's call-to-action into the view shown after submission.
package cta

import (
	"errors"
	"fmt"

	"github.com/tjfontaine/intake-engine/internal/domain"
)

// DefaultDiscountLinkLabel labels a discount link when the tenant leaves it empty.
const DefaultDiscountLinkLabel = "Get offer"

var (
	// ErrUnknownOption is returned when a selection names no configured option.
	ErrUnknownOption = errors.New("cta: unknown option")
	// ErrNoSubChoice is returned when a sub-choice is picked without an open picker.
	ErrNoSubChoice = errors.New("cta: no sub-choice pending")
	// ErrEmptySubChoice is returned for a sub_choice option without choices.
	ErrEmptySubChoice = errors.New("cta: sub-choice option has no choices")
)

// View is what the result screen renders. Implementations are ThankYouView, LinkView,
// EmbedView, VideoView, DiscountView, Picker, OptionList and PendingView.
type View interface {
	isView()
}

type ThankYouView struct {
	Header     string
	Subheading string
	Message    string
}

type LinkView struct {
	Label        string
	URL          string
	OpenInNewTab bool
}

// EmbedView shows an iframe URL, or raw HTML for results that carry it.
type EmbedView struct {
	URL       string
	HTML      string
	Title     string
	Subtitle  string
	TextBelow string
	Button    *domain.Button
}

type VideoView struct {
	VideoURL string
	Title    string
	Subtitle string
	Button   *domain.Button
}

type DiscountView struct {
	Title       string
	Description string
	LinkURL     string
	LinkLabel   string
	Code        string
}

// Picker is the second-level list of a sub_choice option.
type Picker struct {
	OptionID   string
	Title      string
	Subheading string
	Prompt     string
	ImageURL   string
	Choices    []domain.VideoChoice
}

// OptionList is the top-level multi-choice menu.
type OptionList struct {
	Title      string
	Subheading string
	Prompt     string
	ImageURL   string
	Options    []domain.CTAOption
}

// PendingView is shown while a webhook-determined result is being polled.
type PendingView struct {
	JobID string
}

func (ThankYouView) isView() {}
func (LinkView) isView()     {}
func (EmbedView) isView()    {}
func (VideoView) isView()    {}
func (DiscountView) isView() {}
func (Picker) isView()       {}
func (OptionList) isView()   {}
func (PendingView) isView()  {}

// Navigation asks the caller to leave the funnel.
type Navigation struct {
	URL          string
	OpenInNewTab bool
}

// WebhookAction asks the caller to send a tagged follow-up to the webhook.
type WebhookAction struct {
	Tag string
	URL string
}

// Outcome is the result of a selection. At most one of Navigate and View is set; Webhook may
// accompany a View.
type Outcome struct {
	Navigate *Navigation
	View     View
	Webhook  *WebhookAction
}

// Resolver holds the terminal CTA state of one funnel instance. It is not safe for concurrent use.
type Resolver struct {
	cta      domain.CTA
	fallback string
	view     View
	picker   *Picker
}

// NewResolver builds a resolver. A nil cta behaves as thank_you with the fallback message.
func NewResolver(c domain.CTA, fallback string) *Resolver {
	if c == nil {
		c = domain.ThankYouCTA{}
	}
	if fallback == "" {
		fallback = "Thank you."
	}
	return &Resolver{cta: c, fallback: fallback}
}

// CTA returns the configuration being resolved.
func (r *Resolver) CTA() domain.CTA {
	return r.cta
}

// Current returns the view to render: the resolved view if any, then an open picker, then the
// option list for multi-choice CTAs. Non-multi CTAs resolve immediately.
func (r *Resolver) Current() View {
	if r.view != nil {
		return r.view
	}
	if r.picker != nil {
		return *r.picker
	}
	switch c := r.cta.(type) {
	case domain.MultiChoiceCTA:
		return OptionList{
			Title:      c.Title,
			Subheading: c.Subheading,
			Prompt:     c.Prompt,
			ImageURL:   c.ImageURL,
			Options:    c.Options,
		}
	case domain.LinkCTA:
		return LinkView{Label: c.Label, URL: c.URL, OpenInNewTab: c.OpenInNewTab}
	case domain.EmbedCTA:
		return EmbedView{URL: c.URL, Title: c.Title, Subtitle: c.Subtitle, TextBelow: c.TextBelow, Button: c.Button}
	case domain.ThankYouCTA:
		return ThankYouView{Message: r.thankYou(c.Message)}
	}
	return ThankYouView{Message: r.fallback}
}

func (r *Resolver) thankYou(msg string) string {
	if msg != "" {
		return msg
	}
	return r.fallback
}

// Select resolves a top-level multi-choice option. Any open picker is discarded.
func (r *Resolver) Select(optionID string) (Outcome, error) {
	m, ok := r.cta.(domain.MultiChoiceCTA)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q (cta is %s)", ErrUnknownOption, optionID, r.cta.CTAType())
	}
	opt, ok := m.Option(optionID)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownOption, optionID)
	}
	r.picker = nil
	r.view = nil

	switch o := opt.(type) {
	case domain.LinkOption:
		return Outcome{Navigate: &Navigation{URL: o.URL, OpenInNewTab: o.OpenInNewTab}}, nil
	case domain.VideoDirectOption:
		r.view = VideoView{VideoURL: o.VideoURL, Title: o.Title, Subtitle: o.Subtitle, Button: o.Button}
	case domain.VideoSubChoiceOption:
		if len(o.Choices) == 0 {
			return Outcome{}, fmt.Errorf("%w: %q", ErrEmptySubChoice, o.ID)
		}
		p := Picker{
			OptionID:   o.ID,
			Title:      orDefault(o.Title, m.Title),
			Subheading: orDefault(o.Subheading, m.Subheading),
			Prompt:     firstNonEmpty(o.Prompt, m.Prompt),
			ImageURL:   firstNonEmpty(o.ImageURL, m.ImageURL),
			Choices:    o.Choices,
		}
		r.picker = &p
		return Outcome{View: p}, nil
	case domain.DiscountOption:
		label := o.LinkLabel
		if label == "" {
			label = DefaultDiscountLinkLabel
		}
		r.view = DiscountView{
			Title:       o.Title,
			Description: o.Description,
			LinkURL:     o.LinkURL,
			LinkLabel:   label,
			Code:        o.Code,
		}
	case domain.WebhookOption:
		r.view = ThankYouView{
			Header:     o.ThankYouHeader,
			Subheading: o.ThankYouSubheading,
			Message:    o.ThankYouMessage,
		}
		return Outcome{View: r.view, Webhook: &WebhookAction{Tag: o.WebhookTag, URL: o.WebhookURL}}, nil
	default:
		return Outcome{}, fmt.Errorf("%w: %q has unsupported kind %s", ErrUnknownOption, optionID, opt.Kind())
	}
	return Outcome{View: r.view}, nil
}

// SelectSubChoice resolves a choice of the open picker into a video view built from that
// choice alone.
func (r *Resolver) SelectSubChoice(index int) (Outcome, error) {
	if r.picker == nil {
		return Outcome{}, ErrNoSubChoice
	}
	if index < 0 || index >= len(r.picker.Choices) {
		return Outcome{}, fmt.Errorf("cta: choice %d out of range", index)
	}
	c := r.picker.Choices[index]
	r.picker = nil
	r.view = VideoView{VideoURL: c.VideoURL, Title: c.Title, Subtitle: c.Subtitle, Button: c.Button}
	return Outcome{View: r.view}, nil
}

// Reset returns to the option list.
func (r *Resolver) Reset() {
	r.view = nil
	r.picker = nil
}

// FromResult converts a webhook-determined result into a view.
func FromResult(res *domain.IntakeResult, fallback string) View {
	if res == nil {
		return ThankYouView{Message: fallback}
	}
	if res.JobID != "" {
		return PendingView{JobID: res.JobID}
	}
	switch res.Mode {
	case domain.ResultLink:
		return LinkView{Label: res.Label, URL: res.URL}
	case domain.ResultEmbed:
		return EmbedView{
			URL:       res.URL,
			HTML:      res.HTML,
			Title:     res.Title,
			Subtitle:  res.Subtitle,
			TextBelow: res.TextBelow,
			Button:    res.Button,
		}
	}
	if res.Message != "" {
		return ThankYouView{Message: res.Message}
	}
	return ThankYouView{Message: fallback}
}

func orDefault(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
