package pubfront

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/eringen/pubfront/content"
	"github.com/eringen/pubfront/views"
)

const (
	jpegQuality    = 80
	maxBannerBytes = 20 << 20 // 20MB
)

func bannerPath(uid string) string {
	return "/banner/" + url.PathEscape(uid) + ".jpg"
}

// optimizeImage decodes an image from src, resizes it down to maxWidth when
// wider, and encodes it as JPEG.
func optimizeImage(src io.Reader, maxWidth int) ([]byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if maxWidth > 0 && w > maxWidth {
		newH := h * maxWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// fetchBanner downloads the banner at rawURL and optimizes it.
func (a *App) fetchBanner(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch banner: %s", resp.Status)
	}
	return optimizeImage(io.LimitReader(resp.Body, maxBannerBytes), a.Config.BannerMaxWidth)
}

// bannerFor returns the optimized banner bytes for a post, through the cache.
func (a *App) bannerFor(ctx context.Context, src string) ([]byte, error) {
	return a.Cache.Get(ctx, "banner:"+src, func(ctx context.Context) ([]byte, error) {
		return a.fetchBanner(ctx, src)
	})
}

// handleBanner serves /banner/<uid>.jpg. When the image cannot be
// optimized the client is sent to the original.
func (a *App) handleBanner(c echo.Context) error {
	uid, ok := strings.CutSuffix(c.Param("file"), ".jpg")
	if !ok || uid == "" {
		return echo.ErrNotFound
	}
	ctx := c.Request().Context()
	props, err := Cached(ctx, a.Cache, views.PostPath(uid), a.postLoader(uid))
	if errors.Is(err, content.ErrNotFound) {
		return echo.ErrNotFound
	}
	if err != nil {
		return err
	}
	src := props.Post.Banner.URL
	if src == "" {
		return echo.ErrNotFound
	}
	data, err := a.bannerFor(ctx, src)
	if err != nil {
		c.Logger().Warnf("pubfront: banner %s: %v", uid, err)
		return c.Redirect(http.StatusFound, src)
	}
	return c.Blob(http.StatusOK, "image/jpeg", data)
}
