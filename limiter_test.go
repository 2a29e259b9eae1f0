package pubfront

import (
	"net/http"
	"testing"
	"time"
)

func TestRateLimiterBlocksAfterMax(t *testing.T) {
	limiter := NewRateLimiter(2, 200*time.Millisecond)
	defer limiter.Stop()
	ip := "203.0.113.10"

	if !limiter.Allow(ip) {
		t.Fatalf("expected first request to be allowed")
	}
	if !limiter.Allow(ip) {
		t.Fatalf("expected second request to be allowed")
	}
	if limiter.Allow(ip) {
		t.Fatalf("expected third request to be blocked")
	}
}

func TestRateLimiterResetsAfterWindow(t *testing.T) {
	limiter := NewRateLimiter(1, 150*time.Millisecond)
	defer limiter.Stop()
	ip := "203.0.113.20"

	if !limiter.Allow(ip) {
		t.Fatalf("expected first request to be allowed")
	}
	if limiter.Allow(ip) {
		t.Fatalf("expected second request to be blocked")
	}

	time.Sleep(200 * time.Millisecond)
	if !limiter.Allow(ip) {
		t.Fatalf("expected request after window to be allowed")
	}
}

func TestRateLimiterIsPerIP(t *testing.T) {
	limiter := NewRateLimiter(1, 200*time.Millisecond)
	defer limiter.Stop()

	if !limiter.Allow("203.0.113.30") {
		t.Fatalf("expected first ip to be allowed")
	}
	if !limiter.Allow("203.0.113.31") {
		t.Fatalf("expected second ip to be allowed independently")
	}
	if limiter.Allow("203.0.113.30") {
		t.Fatalf("expected first ip to be blocked after max")
	}
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	limiter.Stop()
	limiter.Stop()
}

func TestLoadMoreIsRateLimited(t *testing.T) {
	app, _ := newTestApp(t, threePosts()...)
	app.loadLimiter.Stop()
	app.loadLimiter = NewRateLimiter(1, time.Minute)
	c := newClient(t, app)
	id := c.open()

	if rec := c.loadMore(id); rec.Code != http.StatusOK {
		t.Fatalf("first load more: status %d, want %d", rec.Code, http.StatusOK)
	}
	if rec := c.loadMore(id); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second load more: status %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := app.listings.Len(); got != 1 {
		t.Fatalf("rejected request must not touch listings, have %d", got)
	}
}
