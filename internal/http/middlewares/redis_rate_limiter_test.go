package middlewares_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/redisclient"
	"github.com/gin-gonic/gin"
)

const signupPrefix = "userhub:ratelimit:signup:"

func newRedisLimiter(t *testing.T, limit int, window time.Duration) (*middlewares.RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redisclient.New(redisclient.Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	return middlewares.NewRedisRateLimiter(rc, signupPrefix, limit, window), mr
}

func TestRedisRateLimiter_FixedWindow(t *testing.T) {
	rl, _ := newRedisLimiter(t, 3, time.Minute)
	ctx := context.Background()

	tests := []struct {
		hit     int
		allowed bool
	}{
		{hit: 1, allowed: true},
		{hit: 2, allowed: true},
		{hit: 3, allowed: true},
		{hit: 4, allowed: false},
		{hit: 5, allowed: false},
	}

	for _, tt := range tests {
		ok, retryAfter, err := rl.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("hit %d: unexpected error: %v", tt.hit, err)
		}
		if ok != tt.allowed {
			t.Fatalf("hit %d: allowed=%v want %v", tt.hit, ok, tt.allowed)
		}
		if !ok && (retryAfter <= 0 || retryAfter > time.Minute) {
			t.Fatalf("hit %d: retryAfter %v outside (0, 1m]", tt.hit, retryAfter)
		}
	}

	if ok, _, _ := rl.Allow(ctx, "10.0.0.2"); !ok {
		t.Fatalf("other clients have their own window")
	}
}

func TestRedisRateLimiter_ResetsAfterWindow(t *testing.T) {
	rl, mr := newRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if ok, _, _ := rl.Allow(ctx, "10.0.0.1"); !ok {
		t.Fatalf("first hit should be allowed")
	}
	if ok, _, _ := rl.Allow(ctx, "10.0.0.1"); ok {
		t.Fatalf("second hit should be limited")
	}

	mr.FastForward(time.Minute)

	if ok, _, err := rl.Allow(ctx, "10.0.0.1"); !ok || err != nil {
		t.Fatalf("window should have reset: ok=%v err=%v", ok, err)
	}
}

func TestRedisRateLimiter_RearmsKeyWithoutTTL(t *testing.T) {
	rl, mr := newRedisLimiter(t, 2, time.Minute)
	ctx := context.Background()

	// a counter left behind without an expiry, e.g. by a crash mid-window
	if _, err := mr.Incr(signupPrefix+"10.0.0.1", 5); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ok, retryAfter, err := rl.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("over-limit counter should still block")
	}
	if retryAfter != time.Minute {
		t.Fatalf("retryAfter: got %v want %v", retryAfter, time.Minute)
	}
	if ttl := mr.TTL(signupPrefix + "10.0.0.1"); ttl <= 0 {
		t.Fatalf("expected the key to be re-armed with a TTL, got %v", ttl)
	}

	mr.FastForward(time.Minute)

	if ok, _, _ := rl.Allow(ctx, "10.0.0.1"); !ok {
		t.Fatalf("client should be let back in once the window closes")
	}
}

func TestRedisRateLimiter_UnavailableFailsOpen(t *testing.T) {
	rl, mr := newRedisLimiter(t, 1, time.Minute)
	mr.Close()

	r := gin.New()
	r.POST("/users", middlewares.RateLimit(rl, middlewares.KeyByIP, nil), okHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/users", nil))

	if w.Code != http.StatusCreated {
		t.Fatalf("redis outage should not block signups, got %d", w.Code)
	}
}

func TestRedisRateLimiter_MiddlewareRetryAfter(t *testing.T) {
	rl, _ := newRedisLimiter(t, 1, time.Minute)

	r := gin.New()
	r.POST("/users", middlewares.RateLimit(rl, middlewares.KeyByIP, nil), okHandler)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/users", nil)
		req.RemoteAddr = "10.0.0.9:4444"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := send(); w.Code != http.StatusCreated {
		t.Fatalf("first request: got %d", w.Code)
	}

	w := send()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After: got %q want %q", got, "60")
	}
}
