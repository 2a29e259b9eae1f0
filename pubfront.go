// Package pubfront serves a blog whose posts live in a headless content API.
// Pages are generated from API data, kept as snapshots and regenerated in
// the background once they age past the revalidate interval. The same
// renderers produce a static export of the whole site.
package pubfront

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/eringen/pubfront/comments"
	"github.com/eringen/pubfront/content"
	"github.com/eringen/pubfront/richtext"
	"github.com/eringen/pubfront/views"
)

const (
	homeRoute       = "/"
	prebuildWorkers = 4
	listingTTL      = 30 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// App is the central pubfront application. It wires together the content
// API, snapshot cache, handlers, middleware, and templates.
type App struct {
	Config   SiteConfig
	Echo     *echo.Echo
	Posts    *content.Posts
	Store    SnapshotStore
	Cache    *PageCache
	Views    ViewFuncs
	Comments comments.Widget
	Rich     *richtext.Renderer

	listings     *listingRegistry
	loadLimiter  *RateLimiter
	httpClient   *http.Client
	customRoutes []func(*App)
	ready        bool
}

// New creates a pubfront App. It does not touch the network; call Start to
// serve or Export to write a static site.
func New(cfg SiteConfig, opts ...Option) (*App, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Echo:       echo.New(),
		Comments:   cfg.widget(),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}

	if a.Views.Home == nil {
		v, err := views.New(cfg.Locale)
		if err != nil {
			return nil, err
		}
		a.Views = DefaultViews(v)
	}

	client, err := content.NewClient(cfg.ContentEndpoint, cfg.ContentToken, content.WithHTTPClient(a.httpClient))
	if err != nil {
		return nil, fmt.Errorf("pubfront: content client: %w", err)
	}
	a.Posts = content.NewPosts(client, cfg.ContentDocumentType)
	a.Rich = richtext.NewRenderer(a.resolveLink)
	return a, nil
}

// resolveLink maps content API document links to site paths.
func (a *App) resolveLink(d richtext.SpanData) string {
	if d.Type == a.Posts.DocumentType() && d.UID != "" {
		return views.PostPath(d.UID)
	}
	if d.URL != "" {
		return d.URL
	}
	return "/"
}

// Setup opens the snapshot store and registers middleware and routes. Start
// calls it; tests call it directly and drive a.Echo.
func (a *App) Setup(ctx context.Context) error {
	if a.ready {
		return nil
	}
	if a.Store == nil {
		store, err := openStore(ctx, a.Config)
		if err != nil {
			return fmt.Errorf("pubfront: init snapshot store: %w", err)
		}
		a.Store = store
	}
	a.Cache = NewPageCache(a.Store, a.Config.Revalidate, a.Echo.Logger.Warnf)
	a.listings = newListingRegistry(maxListings, listingTTL)
	a.loadLimiter = NewRateLimiter(a.Config.LoadMoreLimit, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.ready = true
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	assets, _ := fs.Sub(EmbeddedAssets, "embedded")
	e.StaticFS("/public", assets)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)

	e.GET("/", a.handleHome)
	e.POST(loadMorePath, a.handleLoadMore)
	e.GET("/post/:slug/", a.handlePost)
	e.GET("/banner/:file", a.handleBanner)
}

func openStore(ctx context.Context, cfg SiteConfig) (SnapshotStore, error) {
	switch cfg.SnapshotStore {
	case StoreRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, 0)
	case StoreMemory:
		return NewMemoryStore(), nil
	default:
		return NewSQLiteStore(cfg.SnapshotDatabasePath)
	}
}

// Start sets up the app, prebuilds every known page and serves until ctx
// is cancelled.
func (a *App) Start(ctx context.Context) error {
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("pubfront: SessionSecret is required")
	}
	if err := a.Setup(ctx); err != nil {
		return err
	}
	if n, err := a.Prebuild(ctx); err != nil {
		a.Echo.Logger.Warnf("pubfront: prebuild: %v", err)
	} else {
		a.Echo.Logger.Infof("pubfront: prebuilt %d posts", n)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- a.Echo.Start(a.Config.Addr)
	}()
	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Echo.Shutdown(shutdownCtx)
	}
}

// Prebuild generates the listing snapshot and one snapshot per published
// post. A post that fails is logged and skipped.
func (a *App) Prebuild(ctx context.Context) (int, error) {
	if _, err := a.Cache.Refresh(ctx, homeRoute, JSONGenerator(a.loadHome)); err != nil {
		return 0, fmt.Errorf("pubfront: listing: %w", err)
	}
	posts, err := a.Posts.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("pubfront: list posts: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prebuildWorkers)
	for _, p := range posts {
		uid := p.UID
		g.Go(func() error {
			if _, err := a.Cache.Refresh(gctx, views.PostPath(uid), JSONGenerator(a.postLoader(uid))); err != nil {
				a.Echo.Logger.Warnf("pubfront: prebuild %s: %v", uid, err)
			}
			return nil
		})
	}
	return len(posts), g.Wait()
}

func (a *App) loadHome(ctx context.Context) (content.Page, error) {
	return a.Posts.FirstPage(ctx, a.Config.PageSize)
}

func (a *App) postLoader(uid string) func(ctx context.Context) (postProps, error) {
	return func(ctx context.Context) (postProps, error) {
		post, err := a.Posts.Get(ctx, uid)
		if err != nil {
			return postProps{}, err
		}
		neighbors, err := a.Posts.Neighbors(ctx, post)
		if err != nil {
			return postProps{}, err
		}
		return postProps{Post: post, Neighbors: neighbors}, nil
	}
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.listings != nil {
		a.listings.Stop()
	}
	if a.loadLimiter != nil {
		a.loadLimiter.Stop()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
