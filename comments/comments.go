// Package comments mounts the utterances comment widget, a foreign script
// that maps each page path to a GitHub issue.
package comments

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// MountID is the id of the element the widget is injected into.
const MountID = "inject-comments-for-utterances"

// Widget configures the embedded script.
type Widget struct {
	ScriptURL string // default https://utteranc.es/client.js
	Repo      string // owner/name of the GitHub repository holding issues
	IssueTerm string // default "pathname"
	Label     string
	Theme     string
}

// Default returns the widget configuration used by the blog.
func Default() Widget {
	return Widget{
		ScriptURL: "https://utteranc.es/client.js",
		Repo:      "williamrmendonca/ignite-challenge-blog",
		IssueTerm: "pathname",
		Label:     "blog-comment",
		Theme:     "dark-blue",
	}
}

// Enabled reports whether the widget has a repository to post to.
func (w Widget) Enabled() bool {
	return w.Repo != "" && w.ScriptURL != ""
}

// Mount returns a component rendering the mount point and the script for
// path. Each render emits a fresh mount element keyed by path, so swapping
// the page content releases the previous widget instance before the new
// script acquires the element.
func (w Widget) Mount(path string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		_, err := io.WriteString(out, w.markup(path))
		return err
	})
}

// markup is empty when the widget is disabled.
func (w Widget) markup(path string) string {
	if !w.Enabled() {
		return ""
	}
	issueTerm := w.IssueTerm
	if issueTerm == "" {
		issueTerm = "pathname"
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<div id="%s" data-path="%s">`, MountID, html.EscapeString(path))
	fmt.Fprintf(&b, `<script src="%s" repo="%s" issue-term="%s"`,
		html.EscapeString(w.ScriptURL), html.EscapeString(w.Repo), html.EscapeString(issueTerm))
	if w.Label != "" {
		fmt.Fprintf(&b, ` label="%s"`, html.EscapeString(w.Label))
	}
	if w.Theme != "" {
		fmt.Fprintf(&b, ` theme="%s"`, html.EscapeString(w.Theme))
	}
	b.WriteString(` crossorigin="anonymous" async></script></div>`)
	return b.String()
}
