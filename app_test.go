package pubfront

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pubfront/content/contenttest"
)

var day0 = time.Date(2021, time.March, 15, 12, 0, 0, 0, time.UTC)

// threePosts returns posts a, b and c published a day apart, c newest.
func threePosts() []contenttest.Doc {
	return []contenttest.Doc{
		contenttest.Post("id-a", "a", day0, "Post A",
			contenttest.Block("Intro", "hello world"),
			contenttest.Block("More", strings.Repeat("word ", 250))),
		contenttest.Post("id-b", "b", day0.Add(24*time.Hour), "Post B", contenttest.Block("Only", "b body")),
		contenttest.Post("id-c", "c", day0.Add(48*time.Hour), "Post C", contenttest.Block("Only", "c body")),
	}
}

func testConfig(endpoint string) SiteConfig {
	return SiteConfig{
		ContentEndpoint: endpoint,
		SessionSecret:   "test-session-secret",
		SnapshotStore:   StoreMemory,
		PageSize:        2,
		LoadMoreLimit:   100,
	}
}

func newTestApp(t *testing.T, docs ...contenttest.Doc) (*App, *contenttest.Server) {
	t.Helper()
	srv := contenttest.NewServer(t, docs...)
	app, err := New(testConfig(srv.Endpoint()), WithSnapshotStore(NewMemoryStore()))
	require.NoError(t, err)
	app.Echo.Logger.SetOutput(io.Discard)
	require.NoError(t, app.Setup(context.Background()))
	t.Cleanup(func() { app.Close() })
	return app, srv
}

// client replays cookies between requests like a browser.
type client struct {
	t       *testing.T
	app     *App
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, app *App) *client {
	return &client{t: t, app: app, cookies: make(map[string]*http.Cookie)}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.app.Echo.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		c.cookies[ck.Name] = ck
	}
	return rec
}

func (c *client) get(target string, htmx bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	return c.do(req)
}

var listingInput = regexp.MustCompile(`name="listing" value="([^"]*)"`)

// listingOf returns the listing id carried by a rendered load-more form.
func listingOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	m := listingInput.FindStringSubmatch(rec.Body.String())
	require.NotNil(t, m, "no load-more form in response")
	return m[1]
}

// open fetches the home page as a new page view and returns its listing id.
func (c *client) open() string {
	rec := c.get("/", false)
	require.Equal(c.t, http.StatusOK, rec.Code)
	return listingOf(c.t, rec)
}

func (c *client) loadMore(listingID string) *httptest.ResponseRecorder {
	form := url.Values{}
	if ck, ok := c.cookies["_csrf"]; ok {
		form.Set("_csrf", ck.Value)
	}
	if listingID != "" {
		form.Set(listingField, listingID)
	}
	req := httptest.NewRequest(http.MethodPost, loadMorePath, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set("HX-Request", "true")
	req.RemoteAddr = "192.0.2.1:4000"
	return c.do(req)
}

func TestHomeListsFirstPage(t *testing.T) {
	app, _ := newTestApp(t, threePosts()...)
	rec := newClient(t, app).get("/", false)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Post C")
	assert.Contains(t, body, "Post B")
	assert.NotContains(t, body, "Post A")
	assert.Less(t, strings.Index(body, "Post C"), strings.Index(body, "Post B"), "newest first")
	assert.Contains(t, body, "<title>Home | spacetraveling</title>")
	assert.Contains(t, body, "16 mar 2021")
	assert.Contains(t, body, `hx-post="/posts/more/"`)
	assert.Contains(t, body, "Carregar mais posts")
	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))
}

func TestLoadMoreAppendsAndHidesControl(t *testing.T) {
	app, _ := newTestApp(t, threePosts()...)
	c := newClient(t, app)
	id := c.open()

	rec := c.loadMore(id)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, "Post A")
	assert.NotContains(t, body, "Post B", "only the new page is rendered")
	assert.Contains(t, body, `<div id="load-more" hx-swap-oob="true"></div>`)

	assert.Equal(t, 1, app.listings.Len())

	rec = c.loadMore(id)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLoadMoreControlKeepsListingID(t *testing.T) {
	docs := append(threePosts(),
		contenttest.Post("id-d", "d", day0.Add(72*time.Hour), "Post D", contenttest.Block("Only", "d body")),
		contenttest.Post("id-e", "e", day0.Add(96*time.Hour), "Post E", contenttest.Block("Only", "e body")))
	app, _ := newTestApp(t, docs...)
	c := newClient(t, app)
	id := c.open()

	rec := c.loadMore(id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hx-swap-oob="true"`)
	assert.Equal(t, id, listingOf(t, rec))

	rec = c.loadMore(id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Post A")
}

func TestPageViewsKeepSeparateListings(t *testing.T) {
	app, _ := newTestApp(t, threePosts()...)
	c := newClient(t, app)
	first := c.open()
	second := c.open()
	require.NotEqual(t, first, second)

	rec := c.loadMore(first)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Post A")

	rec = c.loadMore(second)
	require.Equal(t, http.StatusOK, rec.Code, "the second view must not see the first view's progress")
	assert.Contains(t, rec.Body.String(), "Post A")
	assert.Equal(t, 2, app.listings.Len())
}

func TestLoadMoreRejectsListingOfAnotherSession(t *testing.T) {
	app, _ := newTestApp(t, threePosts()...)
	owner := newClient(t, app)
	id := owner.open()

	other := newClient(t, app)
	other.open()
	rec := other.loadMore(id)
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = owner.loadMore(id)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionKeepsRecentPageViewsOnly(t *testing.T) {
	app, _ := newTestApp(t, threePosts()...)
	c := newClient(t, app)
	oldest := c.open()
	for range maxSessionListings {
		c.open()
	}
	assert.Equal(t, maxSessionListings, app.listings.Len())

	rec := c.loadMore(oldest)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestLoadMoreWithoutListingAsksForRefresh(t *testing.T) {
	app, _ := newTestApp(t, threePosts()...)
	c := newClient(t, app)
	c.get("/robots.txt", false) // obtains the CSRF cookie only

	rec := c.loadMore("")
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("HX-Refresh"))
}

func TestLoadMoreRequiresCSRFToken(t *testing.T) {
	app, _ := newTestApp(t, threePosts()...)
	c := newClient(t, app)
	id := c.open()
	delete(c.cookies, "_csrf")

	rec := c.loadMore(id)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoadMoreUpstreamFailureKeepsListing(t *testing.T) {
	app, srv := newTestApp(t, threePosts()...)
	c := newClient(t, app)
	id := c.open()

	srv.FailNext(1)
	rec := c.loadMore(id)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = c.loadMore(id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Post A")
}

func TestPostFallbackThenPartial(t *testing.T) {
	app, _ := newTestApp(t, threePosts()...)
	c := newClient(t, app)

	rec := c.get("/post/a/", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Carregando...")
	assert.Contains(t, rec.Body.String(), `hx-get="/post/a/?partial=post"`)

	rec = c.get("/post/a/?partial=post", true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "<html")
	assert.Contains(t, body, "<h1>Post A</h1>")
	assert.Contains(t, body, "<li>2 min</li>")
	assert.Contains(t, body, "15 mar 2021")
	assert.Contains(t, body, `src="/banner/a.jpg"`)

	rec = c.get("/post/a/", false)
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, "<html")
	assert.Contains(t, body, "<title>Post | spacetraveling</title>")
	assert.NotContains(t, body, "Carregando...")
}

func TestPostNeighborsAndComments(t *testing.T) {
	app, _ := newTestApp(t, threePosts()...)
	_, err := app.Prebuild(context.Background())
	require.NoError(t, err)
	c := newClient(t, app)

	body := c.get("/post/b/", false).Body.String()
	assert.Contains(t, body, `<a class="prev" href="/post/a/"><span>Post A</span>`)
	assert.Contains(t, body, `<a class="next" href="/post/c/"><span>Post C</span>`)
	assert.Contains(t, body, `<div id="inject-comments-for-utterances" data-path="/post/b/">`)
	assert.Contains(t, body, `repo="williamrmendonca/ignite-challenge-blog"`)

	body = c.get("/post/a/", false).Body.String()
	assert.NotContains(t, body, `class="prev"`, "oldest post has no previous")
	body = c.get("/post/c/", false).Body.String()
	assert.NotContains(t, body, `class="next"`, "newest post has no next")
}

func TestUnknownPost(t *testing.T) {
	app, _ := newTestApp(t, threePosts()...)
	c := newClient(t, app)

	rec := c.get("/post/missing/?partial=post", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Página não encontrada.")
	assert.NotContains(t, rec.Body.String(), "<html")

	rec = c.get("/post/missing/", false)
	assert.Equal(t, http.StatusOK, rec.Code, "unknown slugs fall back to the loading page")
}

func TestUnknownRouteRendersNotFound(t *testing.T) {
	app, _ := newTestApp(t)
	rec := newClient(t, app).get("/nope/", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>404</h1>")
}

func TestFeedSitemapRobots(t *testing.T) {
	app, _ := newTestApp(t, threePosts()...)
	c := newClient(t, app)

	rec := c.get("/feed.xml", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<link>http://localhost:3000/post/a/</link>")
	assert.Contains(t, rec.Body.String(), "<title>Post C</title>")

	rec = c.get("/sitemap.xml", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<loc>http://localhost:3000/post/b/</loc>")
	assert.Contains(t, rec.Body.String(), "<lastmod>2021-03-16</lastmod>")

	rec = c.get("/robots.txt", false)
	assert.Contains(t, rec.Body.String(), "Sitemap: http://localhost:3000/sitemap.xml")
}

func TestPrebuildCountsPosts(t *testing.T) {
	app, srv := newTestApp(t, threePosts()...)
	n, err := app.Prebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	before := srv.Searches()
	c := newClient(t, app)
	for _, uid := range []string{"a", "b", "c"} {
		assert.Equal(t, http.StatusOK, c.get("/post/"+uid+"/", false).Code)
	}
	assert.Equal(t, before, srv.Searches(), "prebuilt posts are served from snapshots")
}

func TestEmbeddedAssetsServed(t *testing.T) {
	app, _ := newTestApp(t)
	rec := newClient(t, app).get("/public/styles.css", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")
}
