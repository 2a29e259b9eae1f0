// Package views renders the blog pages. Each page is an html/template set
// (layout, shared partials and the page body) exposed as a templ.Component.
package views

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageSets = []string{"home", "post", "post_loading", "not_found", "server_error"}

const fragments = "partials"

var labelsByLocale = map[string]map[string]string{
	"pt-BR": {
		"load_more":    "Carregar mais posts",
		"loading":      "Carregando...",
		"previous":     "Post anterior",
		"next":         "Próximo post",
		"not_found":    "Página não encontrada.",
		"server_error": "Algo deu errado. Tente novamente em instantes.",
		"back_home":    "Voltar para o início",
	},
	"en": {
		"load_more":    "Load more posts",
		"loading":      "Loading...",
		"previous":     "Previous post",
		"next":         "Next post",
		"not_found":    "Page not found.",
		"server_error": "Something went wrong. Try again in a moment.",
		"back_home":    "Back to home",
	},
}

// Views holds the parsed template sets for one locale.
type Views struct {
	locale string
	labels map[string]string
	sets   map[string]*template.Template
}

// New parses the embedded templates with date and label helpers bound to
// locale. Unknown locales use English labels.
func New(locale string) (*Views, error) {
	labels, ok := labelsByLocale[locale]
	if !ok {
		labels = labelsByLocale["en"]
	}
	v := &Views{locale: locale, labels: labels, sets: make(map[string]*template.Template)}
	funcs := template.FuncMap{
		"formatDate": func(t *time.Time) string { return FormatDate(t, locale) },
		"postPath":   PostPath,
		"label":      v.Label,
		"render":     renderHTML,
	}
	for _, name := range pageSets {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/partials.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("views: parse %s: %w", name, err)
		}
		v.sets[name] = t
	}
	t, err := template.New(fragments).Funcs(funcs).ParseFS(templateFS, "templates/partials.html")
	if err != nil {
		return nil, fmt.Errorf("views: parse %s: %w", fragments, err)
	}
	v.sets[fragments] = t
	return v, nil
}

// Must is like New but panics on error.
func Must(locale string) *Views {
	v, err := New(locale)
	if err != nil {
		panic(err)
	}
	return v
}

// Locale returns the locale the views were built for.
func (v *Views) Locale() string { return v.locale }

// Label returns the localized UI string for key.
func (v *Views) Label(key string) string { return v.labels[key] }

// renderHTML embeds a component's output in a template. A nil component
// renders nothing.
func renderHTML(c templ.Component) (template.HTML, error) {
	if c == nil {
		return "", nil
	}
	var b strings.Builder
	if err := c.Render(context.Background(), &b); err != nil {
		return "", err
	}
	return template.HTML(b.String()), nil
}

func (v *Views) component(set, name string, data any) templ.Component {
	t := v.sets[set]
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return t.ExecuteTemplate(w, name, data)
	})
}

func (v *Views) Home(p HomePage) templ.Component { return v.component("home", "layout", p) }

// PostItems renders listing items followed by an out-of-band replacement
// of the load-more control.
func (v *Views) PostItems(p PostItems) templ.Component {
	p.More.OOB = true
	return v.component(fragments, "post_items_fragment", p)
}

func (v *Views) Post(p PostPage) templ.Component { return v.component("post", "layout", p) }

// PostPartial renders only the post's main element, for swapping into a
// loading placeholder.
func (v *Views) PostPartial(p PostPage) templ.Component {
	return v.component(fragments, "post_partial", p)
}

func (v *Views) PostLoading(p PostLoading) templ.Component {
	return v.component("post_loading", "layout", p)
}

func (v *Views) NotFound(p ErrorPage) templ.Component { return v.component("not_found", "layout", p) }

func (v *Views) NotFoundPartial(p ErrorPage) templ.Component {
	return v.component(fragments, "not_found_partial", p)
}

func (v *Views) ServerError(p ErrorPage) templ.Component {
	return v.component("server_error", "layout", p)
}
