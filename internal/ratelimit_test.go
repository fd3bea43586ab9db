package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	limiter := newRateLimiter(1, 1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	if !limiter.allow("client") {
		t.Fatalf("expected first request to be allowed")
	}
	if limiter.allow("client") {
		t.Fatalf("expected second request to be rate limited")
	}
	if !limiter.allow("other") {
		t.Fatalf("expected other client to have its own bucket")
	}

	now = now.Add(1100 * time.Millisecond)

	if !limiter.allow("client") {
		t.Fatalf("expected request after refill to be allowed")
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := newRateLimiter(1, 1, time.Second)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	limiter.allow("a")
	now = now.Add(2 * time.Second)
	limiter.allow("b")
	if _, ok := limiter.store["a"]; ok {
		t.Fatalf("expected idle client to be evicted")
	}
}

func TestRateLimitHandler(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	if h := NewRateLimitHandler(next, 0, 0, 0); h == nil {
		t.Fatalf("expected passthrough handler")
	}

	h := NewRateLimitHandler(next, 1, 1, time.Minute)
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/push", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes: %v", codes)
	}
}
