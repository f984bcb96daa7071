package web

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"

	"github.com/a-h/templ"
)

// htmlWriter writes escaped markup and remembers the first error.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *htmlWriter) attr(name, value string) {
	h.raw(" " + name + `="` + templ.EscapeString(value) + `"`)
}

// url writes a sanitized URL attribute; unsafe schemes are neutralised by templ.
func (h *htmlWriter) url(name, u string) {
	h.attr(name, string(templ.URL(u)))
}

// elem writes a whole element with escaped text content.
func (h *htmlWriter) elem(tag, class, content string) {
	if content == "" {
		return
	}
	h.raw("<" + tag)
	if class != "" {
		h.attr("class", class)
	}
	h.raw(">")
	h.text(content)
	h.raw("</" + tag + ">")
}

func (h *htmlWriter) render(ctx context.Context, c templ.Component) {
	if h.err == nil && c != nil {
		h.err = c.Render(ctx, h.w)
	}
}

var cssValuePattern = regexp.MustCompile(`^[\w\s#,.%()'-]+$`)

// cssValue returns v when it is a plain CSS value, else fallback.
func cssValue(v, fallback string) string {
	if v != "" && cssValuePattern.MatchString(v) {
		return v
	}
	return fallback
}

// writePage renders body inside layout into a buffer, then writes it with status.
func writePage(w http.ResponseWriter, r *http.Request, status int, layout, body templ.Component) error {
	var buf bytes.Buffer
	if err := layout.Render(templ.WithChildren(r.Context(), body), &buf); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
	return nil
}
