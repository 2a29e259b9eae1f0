package pubfront

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Name != "spacetraveling" {
		t.Errorf("Name = %q, want spacetraveling", cfg.Name)
	}
	if cfg.PageSize != 2 {
		t.Errorf("PageSize = %d, want 2", cfg.PageSize)
	}
	if cfg.Revalidate != time.Hour {
		t.Errorf("Revalidate = %v, want 1h", cfg.Revalidate)
	}
	if cfg.SnapshotStore != StoreSQLite || cfg.SnapshotDatabasePath != "data/snapshots.db" {
		t.Errorf("snapshot store = %s at %s", cfg.SnapshotStore, cfg.SnapshotDatabasePath)
	}
	if cfg.CommentsRepo != "williamrmendonca/ignite-challenge-blog" {
		t.Errorf("CommentsRepo = %q", cfg.CommentsRepo)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should require a content endpoint")
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pubfront.yaml")
	yaml := `
name: my blog
content_endpoint: https://blog.cdn.prismic.io/api/v2
page_size: 5
revalidate: 10m
snapshot_store: redis
comments_repo: none
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LISTING_PAGE_SIZE", "3")
	t.Setenv("SITE_LOCALE", "en")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Name != "my blog" {
		t.Errorf("Name = %q, want file value", cfg.Name)
	}
	if cfg.PageSize != 3 {
		t.Errorf("PageSize = %d, want env override 3", cfg.PageSize)
	}
	if cfg.Revalidate != 10*time.Minute {
		t.Errorf("Revalidate = %v, want 10m", cfg.Revalidate)
	}
	if cfg.Locale != "en" {
		t.Errorf("Locale = %q, want en", cfg.Locale)
	}
	if cfg.widget().Enabled() {
		t.Error("comments_repo none should disable the widget")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("REVALIDATE", "soon")
	if _, err := LoadConfig(""); err == nil {
		t.Error("expected an error for an unparsable duration")
	}
}

func TestValidateRejectsUnknownStore(t *testing.T) {
	cfg := SiteConfig{ContentEndpoint: "https://x.example/api/v2", SnapshotStore: "disk"}
	cfg.setDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an unknown snapshot store")
	}
}
