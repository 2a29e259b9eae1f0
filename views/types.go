package views

import (
	"html/template"

	"github.com/a-h/templ"

	"github.com/eringen/pubfront/content"
)

// SiteConfig holds site-wide settings every page template reads.
type SiteConfig struct {
	Name        string // SITE_NAME  (default "spacetraveling")
	URL         string // SITE_URL   (default "http://localhost:3000")
	Description string // SITE_DESCRIPTION
	Author      string // SITE_AUTHOR
	Locale      string // SITE_LOCALE (default "pt-BR")
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
	Image       string
	JSONLD      template.JS
}

// PostList is a run of listing items.
type PostList struct {
	Posts []content.Post
}

// LoadMore describes the "load more" control. When Show is false the
// control renders as an empty placeholder so a later swap can clear it.
type LoadMore struct {
	Show      bool
	Method    string // "post" (server, session-bound) or "get" (static fragments)
	URL       string
	CSRFToken string
	ListingID string // page view the server-side listing belongs to
	OOB       bool   // render as an out-of-band swap
}

// HomePage is the listing page.
type HomePage struct {
	Site SiteConfig
	Meta PageMeta
	List PostList
	More LoadMore
}

// PostItems is the fragment appended to the listing by "load more".
type PostItems struct {
	List PostList
	More LoadMore
}

// Section is one rendered content block of a post.
type Section struct {
	Heading string
	Body    templ.Component
}

// PostPage is a single post with its neighbors.
type PostPage struct {
	Site        SiteConfig
	Meta        PageMeta
	Post        content.Post
	Prev        *content.Post
	Next        *content.Post
	ReadingTime int
	BannerSrc   string
	Sections    []Section
	Comments    templ.Component
}

// PostLoading is the placeholder served while a post is generated on demand.
type PostLoading struct {
	Site       SiteConfig
	Meta       PageMeta
	Slug       string
	PartialURL string
}

// ErrorPage is used by the not-found and server-error pages.
type ErrorPage struct {
	Site SiteConfig
	Meta PageMeta
}
