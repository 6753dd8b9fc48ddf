package httpx

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMemoryRateLimiterWindow(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	rl := &memoryRateLimiter{entries: map[string]rateState{}, now: func() time.Time { return now }, stopCh: make(chan struct{})}
	defer rl.Close()

	for i := 1; i <= 3; i++ {
		d := rl.Allow(context.Background(), "ip:1.2.3.4", 3, time.Minute)
		if !d.allowed || d.count != i {
			t.Fatalf("request %d: unexpected decision %+v", i, d)
		}
	}
	if d := rl.Allow(context.Background(), "ip:1.2.3.4", 3, time.Minute); d.allowed {
		t.Fatalf("fourth request should be rejected")
	}
	if d := rl.Allow(context.Background(), "ip:5.6.7.8", 3, time.Minute); !d.allowed {
		t.Fatalf("other keys have their own window")
	}

	now = now.Add(time.Minute)
	if d := rl.Allow(context.Background(), "ip:1.2.3.4", 3, time.Minute); !d.allowed || d.count != 1 {
		t.Fatalf("expected a fresh window, got %+v", d)
	}

	now = now.Add(2 * time.Minute)
	rl.cleanup(now)
	if len(rl.entries) != 0 {
		t.Fatalf("expected expired windows to be swept, got %d", len(rl.entries))
	}
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/gitcommands", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	if got := rateLimitKey(req); got != "ip:10.0.0.7" {
		t.Fatalf("unexpected key %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := rateLimitKey(req); got != "ip:203.0.113.9" {
		t.Fatalf("unexpected forwarded key %q", got)
	}
	ctx := context.WithValue(req.Context(), contextKeyAuth, authInfo{Subject: "ci-bot"})
	if got := rateLimitKey(req.WithContext(ctx)); got != "sub:ci-bot" {
		t.Fatalf("unexpected subject key %q", got)
	}
	if got := rateMetricKey("sub:ci-bot"); got != "sub" {
		t.Fatalf("unexpected metric key %q", got)
	}
}

func TestBearerToken(t *testing.T) {
	if _, err := bearerToken(""); err == nil {
		t.Fatalf("expected error for empty header")
	}
	if _, err := bearerToken("Basic abc"); err == nil {
		t.Fatalf("expected error for non-bearer scheme")
	}
	token, err := bearerToken("bearer abc.def")
	if err != nil || token != "abc.def" {
		t.Fatalf("unexpected token %q (%v)", token, err)
	}
}
