package pubfront

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eringen/pubfront/comments"
	"github.com/eringen/pubfront/views"
)

// Snapshot store kinds.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// SiteConfig holds all configuration for a pubfront site.
type SiteConfig struct {
	Name        string `yaml:"name"`        // Site name (default "spacetraveling")
	URL         string `yaml:"url"`         // Canonical URL (default "http://localhost:3000")
	Description string `yaml:"description"` // Site description for RSS and meta tags
	Author      string `yaml:"author"`      // Fallback author for JSON-LD
	Locale      string `yaml:"locale"`      // Date and label locale (default "pt-BR")

	Addr string `yaml:"addr"` // Listen address (default ":3000")

	ContentEndpoint     string `yaml:"content_endpoint"`      // Content API root, e.g. https://repo.cdn.prismic.io/api/v2
	ContentToken        string `yaml:"content_token"`         // Optional access token
	ContentDocumentType string `yaml:"content_document_type"` // Custom type of posts (default "posts")

	PageSize      int           `yaml:"page_size"`       // Listing page size (default 2)
	LoadMoreLimit int           `yaml:"load_more_limit"` // Load-more requests per IP per minute (default 30)
	Revalidate    time.Duration `yaml:"revalidate"`      // Snapshot max age before regeneration (default 1h)

	SnapshotStore        string `yaml:"snapshot_store"`         // sqlite, redis or memory (default sqlite)
	SnapshotDatabasePath string `yaml:"snapshot_database_path"` // SQLite path (default "data/snapshots.db")
	RedisAddr            string `yaml:"redis_addr"`             // Redis address (default "localhost:6379")

	CommentsRepo  string `yaml:"comments_repo"` // "none" disables comments
	CommentsLabel string `yaml:"comments_label"`
	CommentsTheme string `yaml:"comments_theme"`

	SessionSecret string `yaml:"session_secret"` // Required by serve: session encryption secret
	CookieSecure  bool   `yaml:"cookie_secure"`  // Set true for HTTPS

	BannerMaxWidth int `yaml:"banner_max_width"` // Banner resize width (default 1200)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "spacetraveling"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Locale == "" {
		c.Locale = "pt-BR"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.ContentDocumentType == "" {
		c.ContentDocumentType = "posts"
	}
	if c.PageSize <= 0 {
		c.PageSize = 2
	}
	if c.LoadMoreLimit <= 0 {
		c.LoadMoreLimit = 30
	}
	if c.Revalidate == 0 {
		c.Revalidate = time.Hour
	}
	if c.SnapshotStore == "" {
		c.SnapshotStore = StoreSQLite
	}
	if c.SnapshotDatabasePath == "" {
		c.SnapshotDatabasePath = "data/snapshots.db"
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	defaults := comments.Default()
	if c.CommentsRepo == "" {
		c.CommentsRepo = defaults.Repo
	}
	if c.CommentsLabel == "" {
		c.CommentsLabel = defaults.Label
	}
	if c.CommentsTheme == "" {
		c.CommentsTheme = defaults.Theme
	}
	if c.BannerMaxWidth <= 0 {
		c.BannerMaxWidth = 1200
	}
}

// LoadConfig builds a SiteConfig from defaults, the YAML file at path (a
// missing file is not an error) and environment overrides, in that order.
func LoadConfig(path string) (SiteConfig, error) {
	var cfg SiteConfig
	cfg.setDefaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("pubfront: read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("pubfront: parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.setDefaults()
	return cfg, nil
}

func (c *SiteConfig) applyEnv() error {
	strs := map[string]*string{
		"SITE_NAME":              &c.Name,
		"SITE_URL":               &c.URL,
		"SITE_DESCRIPTION":       &c.Description,
		"SITE_AUTHOR":            &c.Author,
		"SITE_LOCALE":            &c.Locale,
		"ADDR":                   &c.Addr,
		"CONTENT_API_ENDPOINT":   &c.ContentEndpoint,
		"CONTENT_API_TOKEN":      &c.ContentToken,
		"CONTENT_DOCUMENT_TYPE":  &c.ContentDocumentType,
		"SNAPSHOT_STORE":         &c.SnapshotStore,
		"SNAPSHOT_DATABASE_PATH": &c.SnapshotDatabasePath,
		"REDIS_ADDR":             &c.RedisAddr,
		"COMMENTS_REPO":          &c.CommentsRepo,
		"COMMENTS_LABEL":         &c.CommentsLabel,
		"COMMENTS_THEME":         &c.CommentsTheme,
		"SESSION_SECRET":         &c.SessionSecret,
	}
	for key, dst := range strs {
		*dst = EnvOr(key, *dst)
	}
	ints := map[string]*int{
		"LISTING_PAGE_SIZE": &c.PageSize,
		"LOAD_MORE_LIMIT":   &c.LoadMoreLimit,
		"BANNER_MAX_WIDTH":  &c.BannerMaxWidth,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("pubfront: %s: %w", key, err)
			}
			*dst = n
		}
	}
	if v := os.Getenv("REVALIDATE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("pubfront: REVALIDATE: %w", err)
		}
		c.Revalidate = d
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("pubfront: COOKIE_SECURE: %w", err)
		}
		c.CookieSecure = b
	}
	return nil
}

// Validate checks the settings every command needs.
func (c SiteConfig) Validate() error {
	if c.ContentEndpoint == "" {
		return fmt.Errorf("pubfront: ContentEndpoint is required")
	}
	switch c.SnapshotStore {
	case StoreSQLite, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("pubfront: unknown snapshot store %q", c.SnapshotStore)
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return fmt.Errorf("pubfront: page size %d out of range 1..100", c.PageSize)
	}
	return nil
}

func (c SiteConfig) site() views.SiteConfig {
	return views.SiteConfig{
		Name:        c.Name,
		URL:         c.URL,
		Description: c.Description,
		Author:      c.Author,
		Locale:      c.Locale,
	}
}

func (c SiteConfig) widget() comments.Widget {
	w := comments.Default()
	w.Repo = c.CommentsRepo
	if w.Repo == "none" {
		w.Repo = ""
	}
	w.Label = c.CommentsLabel
	w.Theme = c.CommentsTheme
	return w
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithViews replaces the built-in page templates.
func WithViews(v ViewFuncs) Option {
	return func(a *App) {
		a.Views = v
	}
}

// WithSnapshotStore uses s instead of opening the configured store.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(a *App) {
		a.Store = s
	}
}

// WithHTTPClient sets the client used for the content API and banner downloads.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) {
		a.httpClient = hc
	}
}
