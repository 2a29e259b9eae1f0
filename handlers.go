package pubfront

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pubfront/content"
	"github.com/eringen/pubfront/listing"
	"github.com/eringen/pubfront/views"
)

const (
	loadMorePath = "/posts/more/"
	allPostsKey  = "posts:all"
)

func isHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}

func (a *App) meta(title, path, ogType string) views.PageMeta {
	return views.PageMeta{
		Title:       title + " | " + a.Config.Name,
		Description: a.Config.Description,
		URL:         views.BuildURL(a.Config.URL, path),
		OGType:      ogType,
	}
}

func (a *App) homePage(posts []content.Post, more views.LoadMore) views.HomePage {
	site := a.Config.site()
	meta := a.meta("Home", "", "website")
	meta.JSONLD = template.JS(views.WebsiteJsonLD(site))
	return views.HomePage{
		Site: site,
		Meta: meta,
		List: views.PostList{Posts: posts},
		More: more,
	}
}

func (a *App) handleHome(c echo.Context) error {
	first, err := Cached(c.Request().Context(), a.Cache, homeRoute, a.loadHome)
	if err != nil {
		return err
	}
	state := listing.New(first)
	var more views.LoadMore
	if state.HasMore() {
		id, err := a.mountListing(c, state)
		if err != nil {
			return err
		}
		more = a.serverLoadMore(c, id, true)
	}
	return Render(c, a.Views.Home(a.homePage(state.Posts(), more)))
}

func (a *App) serverLoadMore(c echo.Context, listingID string, show bool) views.LoadMore {
	return views.LoadMore{
		Show:      show,
		Method:    "post",
		URL:       loadMorePath,
		CSRFToken: CsrfToken(c),
		ListingID: listingID,
	}
}

// handleLoadMore appends the next page to the listing of the page view that
// posted the form and renders only the new items plus the updated control.
func (a *App) handleLoadMore(c echo.Context) error {
	if !a.loadLimiter.Allow(c.RealIP()) {
		return c.NoContent(http.StatusTooManyRequests)
	}
	id, state, ok := a.currentListing(c)
	if !ok {
		// Listing expired; reload the home page to start a new one.
		c.Response().Header().Set("HX-Refresh", "true")
		return c.NoContent(http.StatusGone)
	}
	added, err := state.LoadMore(c.Request().Context(), a.Posts)
	switch {
	case errors.Is(err, listing.ErrLoadInFlight):
		return c.NoContent(http.StatusConflict)
	case errors.Is(err, listing.ErrNoMorePages):
		return c.NoContent(http.StatusNoContent)
	case err != nil:
		c.Logger().Errorf("pubfront: load more: %v", err)
		return c.NoContent(http.StatusBadGateway)
	}
	return Render(c, a.Views.PostItems(views.PostItems{
		List: views.PostList{Posts: added},
		More: a.serverLoadMore(c, id, state.HasMore()),
	}))
}

func (a *App) handlePost(c echo.Context) error {
	ctx := c.Request().Context()
	uid := c.Param("slug")
	route := views.PostPath(uid)
	partial := c.QueryParam("partial") == "post"

	if !partial && !a.Cache.Has(ctx, route) {
		return Render(c, a.Views.PostLoading(views.PostLoading{
			Site:       a.Config.site(),
			Meta:       a.meta("Post", route, "article"),
			Slug:       uid,
			PartialURL: route + "?partial=post",
		}))
	}

	props, err := Cached(ctx, a.Cache, route, a.postLoader(uid))
	if errors.Is(err, content.ErrNotFound) {
		if partial {
			return RenderStatus(c, http.StatusNotFound, a.Views.NotFoundPartial(a.errorPage()))
		}
		return RenderStatus(c, http.StatusNotFound, a.Views.NotFound(a.errorPage()))
	}
	if err != nil {
		return err
	}
	page := a.postPage(props)
	if partial && isHTMX(c) {
		return Render(c, a.Views.PostPartial(page))
	}
	return Render(c, a.Views.Post(page))
}

// postPage turns stored props into the rendered page. Reading time and
// markup are derived here so a template change never needs a refetch.
func (a *App) postPage(props postProps) views.PostPage {
	post := props.Post
	route := views.PostPath(post.UID)
	site := a.Config.site()
	meta := a.meta("Post", route, "article")
	meta.Description = post.Subtitle
	meta.Image = post.Banner.URL
	meta.JSONLD = template.JS(views.BlogPostingJsonLD(site, post))

	sections := make([]views.Section, 0, len(post.Content))
	for _, block := range post.Content {
		sections = append(sections, views.Section{
			Heading: block.Heading,
			Body:    a.Rich.Component(block.Body),
		})
	}
	page := views.PostPage{
		Site:        site,
		Meta:        meta,
		Post:        post,
		Prev:        props.Neighbors.Prev,
		Next:        props.Neighbors.Next,
		ReadingTime: post.ReadingTime(),
		Sections:    sections,
		Comments:    a.Comments.Mount(route),
	}
	if post.Banner.URL != "" {
		page.BannerSrc = bannerPath(post.UID)
	}
	return page
}

func (a *App) errorPage() views.ErrorPage {
	return views.ErrorPage{Site: a.Config.site(), Meta: a.meta("404", "", "website")}
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.allPosts(c.Request().Context())
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return a.writeSitemap(c.Response(), posts)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.allPosts(c.Request().Context())
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return a.writeRSS(c.Response(), posts)
}

// allPosts lists every post through the snapshot cache.
func (a *App) allPosts(ctx context.Context) ([]content.Post, error) {
	return Cached(ctx, a.Cache, allPostsKey, a.Posts.All)
}

func (a *App) handleRobots(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return a.writeRobots(c.Response())
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	ok := errors.As(err, &he)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound(a.errorPage()))
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
		page := views.ErrorPage{Site: a.Config.site(), Meta: a.meta("500", "", "website")}
		_ = RenderStatus(c, code, a.Views.ServerError(page))
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
