package web

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/tjfontaine/intake-engine/internal/cta"
	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/funnel"
)

// LayoutData is the chrome around every page.
type LayoutData struct {
	Title        string
	FaviconURL   string
	Theme        domain.Theme
	Announcement *domain.AnnouncementConfig
	Stage        domain.FlowStep
	// RefreshURL, when set, reloads the page after RefreshSeconds.
	RefreshURL     string
	RefreshSeconds int
}

func layoutFor(t *domain.Tenant, stage domain.FlowStep) LayoutData {
	return LayoutData{
		Title:        t.Config.Title(t.Name),
		FaviconURL:   t.Config.FaviconURL,
		Theme:        t.Config.Theme,
		Announcement: t.Config.Announcement,
		Stage:        stage,
	}
}

// Layout renders the document shell and its children.
func Layout(d LayoutData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		h.elem("title", "", d.Title)
		if d.FaviconURL != "" {
			h.raw(`<link rel="icon"`)
			h.url("href", d.FaviconURL)
			h.raw(">")
		}
		if d.RefreshURL != "" {
			h.raw(`<meta http-equiv="refresh"`)
			h.attr("content", fmt.Sprintf("%d;url=%s", d.RefreshSeconds, d.RefreshURL))
			h.raw(">")
		}
		h.raw("<style>:root{")
		h.raw("--primary:" + templ.EscapeString(cssValue(d.Theme.PrimaryColor, "#111827")) + ";")
		h.raw("--background:" + templ.EscapeString(cssValue(d.Theme.Background, "#ffffff")) + ";")
		h.raw("--font:" + templ.EscapeString(cssValue(d.Theme.FontFamily, "system-ui, sans-serif")) + ";")
		h.raw("}body{margin:0;background:var(--background);font-family:var(--font)}")
		h.raw(".btn{background:var(--primary);color:#fff;border:0;padding:.75rem 1.25rem;border-radius:.5rem;cursor:pointer;text-decoration:none;display:inline-block}")
		h.raw(".error{color:#b91c1c}.muted{opacity:.5}main{max-width:40rem;margin:0 auto;padding:1.5rem}")
		h.raw("</style></head><body")
		if d.Theme.Layout != "" {
			h.attr("data-layout", d.Theme.Layout)
		}
		h.raw(">")
		if a := d.Announcement; a.VisibleOn(d.Stage) {
			h.raw(`<div class="announcement" style="background:` +
				templ.EscapeString(cssValue(a.BackgroundColor, "#111827")) + ";color:" +
				templ.EscapeString(cssValue(a.TextColor, "#ffffff")) + `">`)
			h.text(a.Message)
			h.raw("</div>")
		}
		h.raw("<main>")
		h.render(ctx, templ.GetChildren(ctx))
		h.raw("</main></body></html>")
		return h.err
	})
}

// hiddenSession threads the session id through every form.
func (h *htmlWriter) hiddenSession(sid string) {
	h.raw(`<input type="hidden" name="sid"`)
	h.attr("value", sid)
	h.raw(">")
}

func (h *htmlWriter) formOpen(action, sid string) {
	h.raw(`<form method="post"`)
	h.attr("action", action)
	h.raw(">")
	h.hiddenSession(sid)
}

func (h *htmlWriter) button(b *domain.Button) {
	if b == nil || b.Label == "" || b.URL == "" {
		return
	}
	h.raw(`<a class="btn" target="_blank" rel="noopener"`)
	h.url("href", b.URL)
	h.attr("style", "background:"+b.ColorOr("var(--primary)"))
	h.raw(">")
	h.text(b.Label)
	h.raw("</a>")
}

func (h *htmlWriter) image(src, alt string) {
	if src == "" {
		return
	}
	h.raw("<img")
	h.url("src", src)
	h.attr("alt", alt)
	h.raw(">")
}

// FunnelPage renders the machine's current stage.
func FunnelPage(sid string, m *funnel.Machine) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		switch m.Stage() {
		case domain.StepHero:
			return heroView(sid, m.Config()).Render(ctx, w)
		case domain.StepQuestions:
			return questionView(sid, m).Render(ctx, w)
		default:
			return resultView(sid, m.View()).Render(ctx, w)
		}
	})
}

func heroView(sid string, cfg domain.AppConfig) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		hero := cfg.Hero
		if hero == nil {
			hero = &domain.HeroConfig{}
		}
		h.raw(`<section class="hero">`)
		h.image(hero.LogoURL, "")
		h.elem("h1", "", hero.Title)
		for _, p := range hero.Body {
			h.elem("p", "", p)
		}
		h.image(hero.ImageURL, hero.Title)
		h.formOpen("/funnel/start", sid)
		h.raw(`<button class="btn" type="submit">`)
		h.text(hero.Button())
		h.raw("</button></form>")
		h.elem("footer", "", hero.FooterText)
		h.raw("</section>")
		return h.err
	})
}

func questionView(sid string, m *funnel.Machine) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		step, ok := m.CurrentStep()
		if !ok {
			h.elem("p", "error", m.Error())
			return h.err
		}
		i, n := m.Progress()
		h.raw(`<div class="progress">`)
		h.text(fmt.Sprintf("Question %d of %d", i, n))
		h.raw(`<progress max="` + strconv.Itoa(n) + `" value="` + strconv.Itoa(i) + `"></progress></div>`)

		errs := m.FieldErrors()
		answers := m.Answers()
		h.formOpen("/funnel/answer", sid)
		if step.IsGroup() {
			contactBlock(h, m, step, answers, errs)
		} else {
			singleQuestion(h, m.Config(), *step.Question, answers[step.Question.ID], errs[step.Question.ID])
		}
		h.raw("</form>")
		h.elem("p", "error", m.Error())

		if m.LogicalIndex() > 0 || m.HasHero() {
			h.formOpen("/funnel/back", sid)
			h.raw(`<button type="submit" class="back">Back</button></form>`)
		}
		return h.err
	})
}

func singleQuestion(h *htmlWriter, cfg domain.AppConfig, q domain.Question, prev domain.AnswerValue, fieldErr string) {
	h.elem("h2", "", q.Question)
	h.image(q.ImageURL, q.Question)
	switch q.Type {
	case domain.QuestionSingle:
		for _, opt := range q.Options {
			h.raw(`<button class="btn option" type="submit" name="value"`)
			h.attr("value", opt)
			h.raw(">")
			h.text(opt)
			h.raw("</button>")
		}
	case domain.QuestionMulti:
		selected := make(map[string]bool, len(prev.Values))
		for _, v := range prev.Values {
			selected[v] = true
		}
		for _, opt := range q.Options {
			h.raw(`<label><input type="checkbox" name="values"`)
			h.attr("value", opt)
			if selected[opt] {
				h.raw(" checked")
			}
			h.raw("> ")
			h.text(opt)
			h.raw("</label>")
		}
		h.elem("p", "error", fieldErr)
		submitButton(h, firstNonEmpty(q.SubmitButtonLabel, "Continue"))
		return
	default:
		h.raw(`<textarea name="value" rows="4">`)
		h.text(prev.Text)
		h.raw("</textarea>")
		h.elem("p", "error", fieldErr)
		submitButton(h, firstNonEmpty(q.SubmitButtonLabel, cfg.TextButtonLabel()))
		return
	}
	h.elem("p", "error", fieldErr)
}

func contactBlock(h *htmlWriter, m *funnel.Machine, step funnel.LogicalStep, answers domain.Answers, errs funnel.FieldErrors) {
	cfg := m.Config()
	showConsent := m.ShowConsent(step)
	consentDone := false
	for _, q := range step.Contacts {
		name := "contact." + q.ID
		h.raw(`<div class="field"><label`)
		h.attr("for", name)
		h.raw(">")
		h.text(firstNonEmpty(q.Label, q.Question))
		h.raw("</label><input")
		h.attr("id", name)
		h.attr("name", name)
		h.attr("type", inputType(q.Kind()))
		h.attr("value", answers[q.ID].Text)
		if q.Placeholder != "" {
			h.attr("placeholder", q.Placeholder)
		} else if q.Kind() == domain.ContactInstagram {
			h.attr("placeholder", "@handle")
		}
		if q.IsRequired() {
			h.raw(" required")
		}
		h.raw(">")
		h.elem("p", "error", errs[q.ID])
		h.raw("</div>")
		if showConsent && q.ShowConsentUnder && !consentDone {
			consentCheckbox(h, cfg, m.ConsentGiven())
			consentDone = true
		}
	}
	last := step.Contacts[len(step.Contacts)-1]
	submitButton(h, firstNonEmpty(last.SubmitButtonLabel, "Submit"))

	if mc, ok := cfg.CTA.(domain.MultiChoiceCTA); ok && mc.ShowPreviewOnContactStep && len(mc.Options) > 0 {
		h.raw(`<ul class="cta-preview muted">`)
		for _, o := range mc.Options {
			h.elem("li", "", o.OptionLabel())
		}
		h.raw("</ul>")
	}
}

func consentCheckbox(h *htmlWriter, cfg domain.AppConfig, given *bool) {
	h.raw(`<label class="consent"><input type="checkbox" name="consent" value="yes"`)
	if given != nil && *given {
		h.raw(" checked")
	}
	h.raw("> ")
	h.text(funnel.ConsentLabel(cfg))
	h.raw("</label>")
	if link, ok := funnel.PrivacyPolicyLink(cfg); ok {
		h.raw("<a")
		h.url("href", link.Href)
		if link.OpenInNewTab {
			h.raw(` target="_blank" rel="noopener"`)
		}
		h.raw(">Privacy Policy</a>")
	}
}

func submitButton(h *htmlWriter, label string) {
	h.raw(`<button class="btn" type="submit">`)
	h.text(label)
	h.raw("</button>")
}

func inputType(k domain.ContactKind) string {
	switch k {
	case domain.ContactEmail:
		return "email"
	case domain.ContactTel:
		return "tel"
	}
	return "text"
}

func resultView(sid string, v cta.View) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<section class="result">`)
		switch v := v.(type) {
		case cta.ThankYouView:
			h.elem("h1", "", v.Header)
			h.elem("h2", "", v.Subheading)
			h.elem("p", "", v.Message)
		case cta.LinkView:
			h.raw(`<a class="btn"`)
			h.url("href", v.URL)
			if v.OpenInNewTab {
				h.raw(` target="_blank" rel="noopener"`)
			}
			h.raw(">")
			h.text(firstNonEmpty(v.Label, "Continue"))
			h.raw("</a>")
		case cta.EmbedView:
			h.elem("h1", "", v.Title)
			h.elem("h2", "", v.Subtitle)
			if v.HTML != "" {
				h.raw(`<iframe sandbox="allow-scripts allow-forms allow-popups"`)
				h.attr("srcdoc", v.HTML)
				h.raw("></iframe>")
			} else {
				h.raw("<iframe")
				h.url("src", v.URL)
				h.raw(` allowfullscreen></iframe>`)
			}
			h.elem("p", "", v.TextBelow)
			h.button(v.Button)
		case cta.VideoView:
			h.elem("h1", "", v.Title)
			h.elem("h2", "", v.Subtitle)
			h.raw(`<iframe class="video"`)
			h.url("src", v.VideoURL)
			h.raw(` allow="autoplay; fullscreen" allowfullscreen></iframe>`)
			h.button(v.Button)
			resetForm(h, sid)
		case cta.DiscountView:
			h.elem("h1", "", v.Title)
			h.elem("p", "", v.Description)
			h.elem("code", "discount-code", v.Code)
			if v.LinkURL != "" {
				h.raw(`<a class="btn" target="_blank" rel="noopener"`)
				h.url("href", v.LinkURL)
				h.raw(">")
				h.text(v.LinkLabel)
				h.raw("</a>")
			}
			resetForm(h, sid)
		case cta.Picker:
			h.elem("h1", "", v.Title)
			h.elem("h2", "", v.Subheading)
			h.image(v.ImageURL, v.Title)
			h.elem("p", "", v.Prompt)
			h.formOpen("/funnel/cta/choice", sid)
			for i, c := range v.Choices {
				h.raw(`<button class="btn option" type="submit" name="index"`)
				h.attr("value", strconv.Itoa(i))
				h.raw(">")
				h.text(c.Label)
				h.raw("</button>")
			}
			h.raw("</form>")
			resetForm(h, sid)
		case cta.OptionList:
			h.elem("h1", "", v.Title)
			h.elem("h2", "", v.Subheading)
			h.image(v.ImageURL, v.Title)
			h.elem("p", "", v.Prompt)
			h.formOpen("/funnel/cta/select", sid)
			for _, o := range v.Options {
				h.raw(`<button class="btn option" type="submit" name="option"`)
				h.attr("value", o.OptionID())
				if l, ok := o.(domain.LinkOption); ok && l.OpenInNewTab {
					h.raw(` formtarget="_blank"`)
				}
				h.raw(">")
				h.text(o.OptionLabel())
				h.raw("</button>")
			}
			h.raw("</form>")
		case cta.PendingView:
			h.raw(`<p class="pending">One moment while we prepare your result…</p>`)
		}
		h.raw("</section>")
		return h.err
	})
}

func resetForm(h *htmlWriter, sid string) {
	h.formOpen("/funnel/cta/reset", sid)
	h.raw(`<button type="submit" class="back">Back</button></form>`)
}

// NotConfiguredPage is shown for hosts that map to no tenant.
func NotConfiguredPage() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.elem("h1", "", "Not configured")
		h.elem("p", "", "This site is not set up yet.")
		return h.err
	})
}

// SessionExpiredPage offers a restart when a session id is unknown.
func SessionExpiredPage() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.elem("p", "", "Your session has expired.")
		h.raw(`<a class="btn" href="/">Start again</a>`)
		return h.err
	})
}

// PrivacyPolicyPage renders tenant policy text, one paragraph per blank-line separated block.
func PrivacyPolicyPage(title, content string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.elem("h1", "", title)
		for _, p := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n") {
			if p = strings.TrimSpace(p); p != "" {
				h.elem("p", "", p)
			}
		}
		return h.err
	})
}

func funnelURL(path, sid string) string {
	return path + "?" + url.Values{"sid": {sid}}.Encode()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
