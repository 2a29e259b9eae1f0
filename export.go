package pubfront

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/a-h/templ"
	"golang.org/x/sync/errgroup"

	"github.com/eringen/pubfront/content"
	"github.com/eringen/pubfront/listing"
	"github.com/eringen/pubfront/views"
)

// ExportStats summarizes a static export.
type ExportStats struct {
	Posts        int
	ListingPages int
	Banners      int
}

// staticLoadMore points the control at the pre-rendered fragment of page n.
func staticLoadMore(page int, show bool) views.LoadMore {
	return views.LoadMore{
		Show:   show,
		Method: "get",
		URL:    "/page/" + strconv.Itoa(page) + "/",
	}
}

// Export writes the whole site under dir: the listing and its continuation
// fragments, every post with its optimized banner, feed, sitemap, robots,
// the 404 page and the embedded assets.
func (a *App) Export(ctx context.Context, dir string) (ExportStats, error) {
	var stats ExportStats
	if a.Cache == nil {
		a.Cache = NewPageCache(NewMemoryStore(), 0, a.Echo.Logger.Warnf)
	}
	log := a.Echo.Logger

	first, err := a.loadHome(ctx)
	if err != nil {
		return stats, fmt.Errorf("pubfront: listing: %w", err)
	}
	state := listing.New(first)
	home := a.homePage(state.Posts(), staticLoadMore(2, state.HasMore()))
	if err := a.exportComponent(ctx, dir, "index.html", a.Views.Home(home)); err != nil {
		return stats, err
	}
	stats.ListingPages = 1

	err = state.Drain(ctx, a.Posts, func(page int, added []content.Post) error {
		fragment := a.Views.PostItems(views.PostItems{
			List: views.PostList{Posts: added},
			More: staticLoadMore(page+1, state.HasMore()),
		})
		stats.ListingPages++
		return a.exportComponent(ctx, dir, path.Join("page", strconv.Itoa(page), "index.html"), fragment)
	})
	if err != nil {
		return stats, fmt.Errorf("pubfront: listing pages: %w", err)
	}

	posts := state.Posts()
	var banners atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prebuildWorkers)
	for _, p := range posts {
		uid := p.UID
		g.Go(func() error {
			props, err := a.postLoader(uid)(gctx)
			if err != nil {
				return fmt.Errorf("pubfront: post %s: %w", uid, err)
			}
			page := a.postPage(props)
			if src := props.Post.Banner.URL; src != "" {
				data, err := a.bannerFor(gctx, src)
				if err != nil {
					log.Warnf("pubfront: banner %s: %v", uid, err)
					page.BannerSrc = src
				} else {
					if err := writeFile(dir, path.Join("banner", uid+".jpg"), data); err != nil {
						return err
					}
					banners.Add(1)
				}
			}
			return a.exportComponent(gctx, dir, path.Join("post", uid, "index.html"), a.Views.Post(page))
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.Posts = len(posts)
	stats.Banners = int(banners.Load())

	var buf bytes.Buffer
	if err := a.writeRSS(&buf, posts); err != nil {
		return stats, err
	}
	if err := writeFile(dir, "feed.xml", buf.Bytes()); err != nil {
		return stats, err
	}
	buf.Reset()
	if err := a.writeSitemap(&buf, posts); err != nil {
		return stats, err
	}
	if err := writeFile(dir, "sitemap.xml", buf.Bytes()); err != nil {
		return stats, err
	}
	buf.Reset()
	if err := a.writeRobots(&buf); err != nil {
		return stats, err
	}
	if err := writeFile(dir, "robots.txt", buf.Bytes()); err != nil {
		return stats, err
	}
	if err := a.exportComponent(ctx, dir, "404.html", a.Views.NotFound(a.errorPage())); err != nil {
		return stats, err
	}
	if err := exportAssets(dir); err != nil {
		return stats, err
	}
	log.Infof("pubfront: exported %d posts, %d listing pages, %d banners to %s",
		stats.Posts, stats.ListingPages, stats.Banners, dir)
	return stats, nil
}

func (a *App) exportComponent(ctx context.Context, dir, rel string, cmp templ.Component) error {
	body, err := renderBytes(ctx, cmp)
	if err != nil {
		return fmt.Errorf("pubfront: render %s: %w", rel, err)
	}
	return writeFile(dir, rel, body)
}

func exportAssets(dir string) error {
	assets, err := fs.Sub(EmbeddedAssets, "embedded")
	if err != nil {
		return err
	}
	return fs.WalkDir(assets, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(assets, p)
		if err != nil {
			return err
		}
		return writeFile(dir, path.Join("public", p), data)
	})
}

func writeFile(dir, rel string, data []byte) error {
	target := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("pubfront: write %s: %w", rel, err)
	}
	return nil
}
