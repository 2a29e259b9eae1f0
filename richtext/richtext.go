// Package richtext renders structured rich text (blocks of text with
// character-range spans) as sanitized HTML.
package richtext

import (
	"bytes"
	"context"
	"html"
	"io"
	"net/url"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/a-h/templ"
	"github.com/microcosm-cc/bluemonday"
)

// Block is one rich text element: a paragraph, heading, list item,
// preformatted text or image.
type Block struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Spans []Span `json:"spans,omitempty"`
	URL   string `json:"url,omitempty"`
	Alt   string `json:"alt,omitempty"`
}

// Span marks the range [Start, End) of a block's text. Offsets count
// UTF-16 code units.
type Span struct {
	Start int      `json:"start"`
	End   int      `json:"end"`
	Type  string   `json:"type"`
	Data  SpanData `json:"data"`
}

// SpanData carries hyperlink and label details.
type SpanData struct {
	LinkType string `json:"link_type,omitempty"`
	URL      string `json:"url,omitempty"`
	UID      string `json:"uid,omitempty"`
	Type     string `json:"type,omitempty"`
	Target   string `json:"target,omitempty"`
	Label    string `json:"label,omitempty"`
}

// LinkResolver maps a document link to a site path.
type LinkResolver func(SpanData) string

// Renderer converts blocks to HTML.
type Renderer struct {
	Resolve LinkResolver
	policy  *bluemonday.Policy
}

// NewRenderer returns a Renderer that resolves document links with resolve.
// With a nil resolver document links point at "#".
func NewRenderer(resolve LinkResolver) *Renderer {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("span", "pre", "p")
	p.AllowAttrs("target").Matching(bluemonday.Paragraph).OnElements("a")
	return &Renderer{Resolve: resolve, policy: p}
}

var defaultRenderer = NewRenderer(nil)

// AsHTML renders blocks with the default renderer.
func AsHTML(blocks []Block) string {
	return defaultRenderer.AsHTML(blocks)
}

// AsHTML renders blocks and sanitizes the result.
func (r *Renderer) AsHTML(blocks []Block) string {
	var buf bytes.Buffer
	r.render(&buf, blocks)
	return r.policy.Sanitize(buf.String())
}

// Component returns a templ.Component that writes the sanitized HTML.
func (r *Renderer) Component(blocks []Block) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, r.AsHTML(blocks))
		return err
	})
}

func (r *Renderer) render(buf *bytes.Buffer, blocks []Block) {
	inList := false
	inOrderedList := false

	flushList := func() {
		if inList {
			buf.WriteString("</ul>")
			inList = false
		}
	}
	flushOrderedList := func() {
		if inOrderedList {
			buf.WriteString("</ol>")
			inOrderedList = false
		}
	}

	for _, b := range blocks {
		switch b.Type {
		case "list-item":
			flushOrderedList()
			if !inList {
				buf.WriteString("<ul>")
				inList = true
			}
			buf.WriteString("<li>")
			buf.WriteString(r.FormatSpans(b.Text, b.Spans))
			buf.WriteString("</li>")
			continue
		case "o-list-item":
			flushList()
			if !inOrderedList {
				buf.WriteString("<ol>")
				inOrderedList = true
			}
			buf.WriteString("<li>")
			buf.WriteString(r.FormatSpans(b.Text, b.Spans))
			buf.WriteString("</li>")
			continue
		}
		flushList()
		flushOrderedList()

		switch b.Type {
		case "heading1", "heading2", "heading3", "heading4", "heading5", "heading6":
			tag := "h" + b.Type[len("heading"):]
			buf.WriteString("<" + tag + ">")
			buf.WriteString(r.FormatSpans(b.Text, b.Spans))
			buf.WriteString("</" + tag + ">")
		case "preformatted":
			buf.WriteString("<pre>")
			buf.WriteString(html.EscapeString(b.Text))
			buf.WriteString("</pre>")
		case "image":
			src := SafeURL(b.URL)
			if src == "" {
				continue
			}
			buf.WriteString(`<p class="block-img"><img src="` + src + `" alt="` + html.EscapeString(b.Alt) + `" loading="lazy"/></p>`)
		case "embed":
			// Embeds carry provider markup; they are not rendered.
		default:
			buf.WriteString("<p>")
			buf.WriteString(r.FormatSpans(b.Text, b.Spans))
			buf.WriteString("</p>")
		}
	}
	flushList()
	flushOrderedList()
}

// FormatSpans escapes text and wraps the span ranges in markup. Overlapping
// spans that are not properly nested are closed and reopened so the output
// stays well formed. Newlines become <br/>.
func (r *Renderer) FormatSpans(text string, spans []Span) string {
	units := utf16.Encode([]rune(text))
	sorted := make([]Span, 0, len(spans))
	for _, sp := range spans {
		if sp.Start >= 0 && sp.End > sp.Start && sp.End <= len(units) {
			sorted = append(sorted, sp)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	var b strings.Builder
	var open []Span
	next := 0
	for i := 0; i <= len(units); i++ {
		open = r.closeAt(&b, open, i)
		for next < len(sorted) && sorted[next].Start <= i {
			b.WriteString(r.openTag(sorted[next]))
			open = append(open, sorted[next])
			next++
		}
		if i == len(units) {
			break
		}
		ch := rune(units[i])
		if utf16.IsSurrogate(ch) && i+1 < len(units) {
			ch = utf16.DecodeRune(ch, rune(units[i+1]))
			i++
		}
		if ch == '\n' {
			b.WriteString("<br/>")
			continue
		}
		b.WriteString(html.EscapeString(string(ch)))
	}
	return b.String()
}

// closeAt closes every open span ending at pos, reopening spans above them
// in the stack that continue past pos.
func (r *Renderer) closeAt(b *strings.Builder, open []Span, pos int) []Span {
	idx := -1
	for k, sp := range open {
		if sp.End <= pos {
			idx = k
			break
		}
	}
	if idx < 0 {
		return open
	}
	var reopen []Span
	for k := len(open) - 1; k >= idx; k-- {
		b.WriteString(closeTag(open[k]))
		if open[k].End > pos {
			reopen = append(reopen, open[k])
		}
	}
	open = open[:idx]
	for k := len(reopen) - 1; k >= 0; k-- {
		b.WriteString(r.openTag(reopen[k]))
		open = append(open, reopen[k])
	}
	return open
}

func (r *Renderer) openTag(sp Span) string {
	switch sp.Type {
	case "strong":
		return "<strong>"
	case "em":
		return "<em>"
	case "hyperlink":
		href := r.href(sp.Data)
		if href == "" {
			return "<span>"
		}
		attrs := `href="` + href + `"`
		if sp.Data.Target == "_blank" {
			attrs += ` target="_blank" rel="noopener noreferrer"`
		}
		return "<a " + attrs + ">"
	case "label":
		return `<span class="` + html.EscapeString(sp.Data.Label) + `">`
	default:
		return "<span>"
	}
}

func closeTag(sp Span) string {
	switch sp.Type {
	case "strong":
		return "</strong>"
	case "em":
		return "</em>"
	case "hyperlink":
		if sp.Data.LinkType == "Document" || sp.Data.URL != "" {
			return "</a>"
		}
		return "</span>"
	default:
		return "</span>"
	}
}

// href resolves a hyperlink. It must agree with closeTag on whether an
// anchor was opened, so unresolvable links fall back to "#".
func (r *Renderer) href(d SpanData) string {
	if d.LinkType == "Document" {
		if r.Resolve != nil {
			if p := SafeURL(r.Resolve(d)); p != "" {
				return p
			}
		}
		return "#"
	}
	if d.URL == "" {
		return ""
	}
	if u := SafeURL(d.URL); u != "" {
		return u
	}
	return "#"
}

// SafeURL validates and sanitizes a URL for use in HTML attributes.
func SafeURL(raw string) string {
	val := strings.TrimSpace(html.UnescapeString(raw))
	if val == "" {
		return ""
	}
	if strings.HasPrefix(val, "/") || strings.HasPrefix(val, "#") {
		return html.EscapeString(val)
	}
	parsed, err := url.Parse(val)
	if err != nil || parsed.Scheme == "" {
		return ""
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "mailto", "tel":
		return html.EscapeString(val)
	default:
		return ""
	}
}
