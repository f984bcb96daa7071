package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// CTAType discriminates the post-submit call-to-action configured by a tenant.
type CTAType string

const (
	CTAThankYou    CTAType = "thank_you"
	CTALink        CTAType = "link"
	CTAEmbed       CTAType = "embed"
	CTAMultiChoice CTAType = "multi_choice"
)

// CTA is a tenant-configured call-to-action. Implementations are
// ThankYouCTA, LinkCTA, EmbedCTA and MultiChoiceCTA.
type CTA interface {
	CTAType() CTAType
	isCTA()
}

// Button is an optional action button rendered under an embed.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Color string `json:"color,omitempty"`
}

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{3,6}$`)

// ColorOr returns the button colour when it is a hex colour, otherwise fallback.
func (b *Button) ColorOr(fallback string) string {
	if b != nil && hexColor.MatchString(b.Color) {
		return b.Color
	}
	return fallback
}

type ThankYouCTA struct {
	Message string `json:"message,omitempty"`
}

type LinkCTA struct {
	Label        string `json:"label"`
	URL          string `json:"url"`
	OpenInNewTab bool   `json:"openInNewTab,omitempty"`
}

type EmbedCTA struct {
	URL       string  `json:"url"`
	Title     string  `json:"title,omitempty"`
	Subtitle  string  `json:"subtitle,omitempty"`
	TextBelow string  `json:"textBelow,omitempty"`
	Button    *Button `json:"button,omitempty"`
}

// MultiChoiceCTA presents an ordered list of labelled options.
type MultiChoiceCTA struct {
	Title      string      `json:"title,omitempty"`
	Subheading string      `json:"subheading,omitempty"`
	Prompt     string      `json:"prompt,omitempty"`
	ImageURL   string      `json:"imageUrl,omitempty"`
	Options    []CTAOption `json:"-"`
	// ShowPreviewOnContactStep renders the option labels, greyed out, under the contact block.
	ShowPreviewOnContactStep bool `json:"showPreviewOnContactStep,omitempty"`
}

func (ThankYouCTA) CTAType() CTAType    { return CTAThankYou }
func (LinkCTA) CTAType() CTAType        { return CTALink }
func (EmbedCTA) CTAType() CTAType       { return CTAEmbed }
func (MultiChoiceCTA) CTAType() CTAType { return CTAMultiChoice }

func (ThankYouCTA) isCTA()    {}
func (LinkCTA) isCTA()        {}
func (EmbedCTA) isCTA()       {}
func (MultiChoiceCTA) isCTA() {}

// Option returns the option with the given id.
func (m MultiChoiceCTA) Option(id string) (CTAOption, bool) {
	for _, o := range m.Options {
		if o.OptionID() == id {
			return o, true
		}
	}
	return nil, false
}

// OptionKind discriminates multi-choice options.
type OptionKind string

const (
	OptionEmbedVideo   OptionKind = "embed_video"
	OptionDiscountCode OptionKind = "discount_code"
	OptionWebhook      OptionKind = "webhook_then_message"
	OptionLink         OptionKind = "link"
)

// Video option variants.
const (
	VariantDirect    = "direct"
	VariantSubChoice = "sub_choice"
)

// CTAOption is one entry of a multi-choice CTA. Implementations are
// VideoDirectOption, VideoSubChoiceOption, DiscountOption, WebhookOption and LinkOption.
type CTAOption interface {
	OptionID() string
	OptionLabel() string
	Kind() OptionKind
	isCTAOption()
}

type VideoDirectOption struct {
	ID       string
	Label    string
	VideoURL string
	Title    string
	Subtitle string
	Button   *Button
}

// VideoSubChoiceOption opens a second-level picker. Nil Title/Subheading fall back to the
// parent CTA; an empty string suppresses them.
type VideoSubChoiceOption struct {
	ID         string
	Label      string
	Title      *string
	Subheading *string
	Prompt     string
	ImageURL   string
	Choices    []VideoChoice
}

type VideoChoice struct {
	Label    string  `json:"label"`
	VideoURL string  `json:"videoUrl"`
	Title    string  `json:"title,omitempty"`
	Subtitle string  `json:"subtitle,omitempty"`
	Button   *Button `json:"button,omitempty"`
}

type DiscountOption struct {
	ID          string
	Label       string
	Title       string
	Description string
	LinkURL     string
	LinkLabel   string
	Code        string
}

type WebhookOption struct {
	ID                 string
	Label              string
	WebhookTag         string
	ThankYouMessage    string
	ThankYouHeader     string
	ThankYouSubheading string
	WebhookURL         string
}

type LinkOption struct {
	ID           string
	Label        string
	URL          string
	OpenInNewTab bool
}

func (o VideoDirectOption) OptionID() string    { return o.ID }
func (o VideoSubChoiceOption) OptionID() string { return o.ID }
func (o DiscountOption) OptionID() string       { return o.ID }
func (o WebhookOption) OptionID() string        { return o.ID }
func (o LinkOption) OptionID() string           { return o.ID }

func (o VideoDirectOption) OptionLabel() string    { return o.Label }
func (o VideoSubChoiceOption) OptionLabel() string { return o.Label }
func (o DiscountOption) OptionLabel() string       { return o.Label }
func (o WebhookOption) OptionLabel() string        { return o.Label }
func (o LinkOption) OptionLabel() string           { return o.Label }

func (VideoDirectOption) Kind() OptionKind    { return OptionEmbedVideo }
func (VideoSubChoiceOption) Kind() OptionKind { return OptionEmbedVideo }
func (DiscountOption) Kind() OptionKind       { return OptionDiscountCode }
func (WebhookOption) Kind() OptionKind        { return OptionWebhook }
func (LinkOption) Kind() OptionKind           { return OptionLink }

func (VideoDirectOption) isCTAOption()    {}
func (VideoSubChoiceOption) isCTAOption() {}
func (DiscountOption) isCTAOption()       {}
func (WebhookOption) isCTAOption()        {}
func (LinkOption) isCTAOption()           {}

// ctaWire is the union of every field any CTA or option may carry. Decoding is lenient in the
// same way the tenant editor normalises configs: unknown discriminators fall back to a default
// variant and missing labels get placeholders.
type ctaWire struct {
	Type         string          `json:"type,omitempty"`
	Kind         string          `json:"kind,omitempty"`
	Variant      string          `json:"variant,omitempty"`
	ID           string          `json:"id,omitempty"`
	Label        string          `json:"label,omitempty"`
	Message      *string         `json:"message,omitempty"`
	URL          *string         `json:"url,omitempty"`
	OpenInNewTab bool            `json:"openInNewTab,omitempty"`
	Title        *string         `json:"title,omitempty"`
	Subtitle     string          `json:"subtitle,omitempty"`
	Subheading   *string         `json:"subheading,omitempty"`
	TextBelow    string          `json:"textBelow,omitempty"`
	Prompt       string          `json:"prompt,omitempty"`
	ImageURL     string          `json:"imageUrl,omitempty"`
	Button       *Button         `json:"button,omitempty"`
	Options      []ctaWire       `json:"options,omitempty"`
	ShowPreview  bool            `json:"showPreviewOnContactStep,omitempty"`
	VideoURL     string          `json:"videoUrl,omitempty"`
	Choices      []VideoChoice   `json:"choices,omitempty"`
	Description  string          `json:"description,omitempty"`
	LinkURL      string          `json:"linkUrl,omitempty"`
	LinkLabel    string          `json:"linkLabel,omitempty"`
	Code         string          `json:"code,omitempty"`
	WebhookTag   *string         `json:"webhookTag,omitempty"`
	ThankYouMsg  *string         `json:"thankYouMessage,omitempty"`
	ThankYouHead string          `json:"thankYouHeader,omitempty"`
	ThankYouSub  string          `json:"thankYouSubheading,omitempty"`
	WebhookURL   string          `json:"webhookUrl,omitempty"`
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func validButton(b *Button) *Button {
	if b == nil || b.Label == "" || b.URL == "" {
		return nil
	}
	return b
}

// DecodeCTA parses a stored CTA configuration.
func DecodeCTA(data []byte) (CTA, error) {
	var w ctaWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch CTAType(w.Type) {
	case CTALink:
		label := w.Label
		if label == "" {
			label = "Continue"
		}
		return LinkCTA{Label: label, URL: deref(w.URL, "#"), OpenInNewTab: w.OpenInNewTab}, nil
	case CTAEmbed:
		return EmbedCTA{
			URL:       deref(w.URL, ""),
			Title:     deref(w.Title, ""),
			Subtitle:  w.Subtitle,
			TextBelow: w.TextBelow,
			Button:    validButton(w.Button),
		}, nil
	case CTAMultiChoice:
		m := MultiChoiceCTA{
			Title:                    deref(w.Title, ""),
			Subheading:               deref(w.Subheading, ""),
			Prompt:                   w.Prompt,
			ImageURL:                 w.ImageURL,
			ShowPreviewOnContactStep: w.ShowPreview,
		}
		for i, ow := range w.Options {
			m.Options = append(m.Options, decodeOption(ow, i))
		}
		if len(m.Options) == 0 {
			m.Options = []CTAOption{VideoDirectOption{ID: "opt_1", Label: "Option 1"}}
		}
		return m, nil
	default:
		return ThankYouCTA{Message: deref(w.Message, "")}, nil
	}
}

func decodeOption(w ctaWire, index int) CTAOption {
	id := w.ID
	if id == "" {
		id = fmt.Sprintf("opt_%d", index+1)
	}
	label := w.Label
	if label == "" {
		label = "Option"
	}
	switch OptionKind(w.Kind) {
	case OptionDiscountCode:
		return DiscountOption{
			ID: id, Label: label,
			Title:       deref(w.Title, ""),
			Description: w.Description,
			LinkURL:     w.LinkURL,
			LinkLabel:   w.LinkLabel,
			Code:        w.Code,
		}
	case OptionLink:
		return LinkOption{ID: id, Label: label, URL: deref(w.URL, "#"), OpenInNewTab: w.OpenInNewTab}
	case OptionWebhook:
		return WebhookOption{
			ID: id, Label: label,
			WebhookTag:         deref(w.WebhookTag, "signup"),
			ThankYouMessage:    deref(w.ThankYouMsg, "Thank you. We'll be in touch."),
			ThankYouHeader:     w.ThankYouHead,
			ThankYouSubheading: w.ThankYouSub,
			WebhookURL:         w.WebhookURL,
		}
	}
	if w.Variant == VariantSubChoice {
		choices := make([]VideoChoice, 0, len(w.Choices))
		for i, c := range w.Choices {
			if c.Label == "" {
				c.Label = fmt.Sprintf("Choice %d", i+1)
			}
			c.Button = validButton(c.Button)
			choices = append(choices, c)
		}
		return VideoSubChoiceOption{
			ID: id, Label: label,
			Title:      w.Title,
			Subheading: w.Subheading,
			Prompt:     w.Prompt,
			ImageURL:   w.ImageURL,
			Choices:    choices,
		}
	}
	return VideoDirectOption{
		ID: id, Label: label,
		VideoURL: w.VideoURL,
		Title:    deref(w.Title, ""),
		Subtitle: w.Subtitle,
		Button:   validButton(w.Button),
	}
}

// MarshalCTA encodes a CTA back to its stored JSON shape.
func MarshalCTA(c CTA) ([]byte, error) {
	switch v := c.(type) {
	case ThankYouCTA:
		return json.Marshal(struct {
			Type CTAType `json:"type"`
			ThankYouCTA
		}{CTAThankYou, v})
	case LinkCTA:
		return json.Marshal(struct {
			Type CTAType `json:"type"`
			LinkCTA
		}{CTALink, v})
	case EmbedCTA:
		return json.Marshal(struct {
			Type CTAType `json:"type"`
			EmbedCTA
		}{CTAEmbed, v})
	case MultiChoiceCTA:
		options := make([]map[string]any, 0, len(v.Options))
		for _, o := range v.Options {
			options = append(options, optionJSON(o))
		}
		return json.Marshal(struct {
			Type CTAType `json:"type"`
			MultiChoiceCTA
			Options []map[string]any `json:"options"`
		}{CTAMultiChoice, v, options})
	default:
		return nil, fmt.Errorf("unknown cta type %T", c)
	}
}

func optionJSON(o CTAOption) map[string]any {
	m := map[string]any{"id": o.OptionID(), "label": o.OptionLabel(), "kind": string(o.Kind())}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	switch v := o.(type) {
	case VideoDirectOption:
		m["variant"] = VariantDirect
		m["videoUrl"] = v.VideoURL
		put("title", v.Title)
		put("subtitle", v.Subtitle)
		if v.Button != nil {
			m["button"] = v.Button
		}
	case VideoSubChoiceOption:
		m["variant"] = VariantSubChoice
		if v.Title != nil {
			m["title"] = *v.Title
		}
		if v.Subheading != nil {
			m["subheading"] = *v.Subheading
		}
		put("prompt", v.Prompt)
		put("imageUrl", v.ImageURL)
		m["choices"] = v.Choices
	case DiscountOption:
		m["title"] = v.Title
		put("description", v.Description)
		m["linkUrl"] = v.LinkURL
		put("linkLabel", v.LinkLabel)
		m["code"] = v.Code
	case WebhookOption:
		m["webhookTag"] = v.WebhookTag
		m["thankYouMessage"] = v.ThankYouMessage
		put("thankYouHeader", v.ThankYouHeader)
		put("thankYouSubheading", v.ThankYouSubheading)
		put("webhookUrl", v.WebhookURL)
	case LinkOption:
		m["url"] = v.URL
		if v.OpenInNewTab {
			m["openInNewTab"] = true
		}
	}
	return m
}
