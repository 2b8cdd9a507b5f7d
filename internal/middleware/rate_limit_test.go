package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d refused", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("request over the limit allowed")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("different key affected by another key's limit")
	}
	if rl.Remaining("1.2.3.4") != 0 {
		t.Errorf("remaining = %d, want 0", rl.Remaining("1.2.3.4"))
	}
	if rl.Remaining("9.9.9.9") != 3 {
		t.Errorf("fresh key remaining = %d, want 3", rl.Remaining("9.9.9.9"))
	}
}

func TestSubmissionRateLimiter(t *testing.T) {
	s := NewSubmissionRateLimiter(2, time.Hour)
	handler := s.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil)
		req.RemoteAddr = ip + ":51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("10.0.0.1"); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	if rec := do("10.0.0.1"); rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q after second request", rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := do("10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing on 429")
	}

	if rec := do("10.0.0.2"); rec.Code != http.StatusOK {
		t.Errorf("other client blocked: %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Errorf("clientIP = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Errorf("clientIP with XFF = %q", got)
	}
}
