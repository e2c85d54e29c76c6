package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestAuth(t *testing.T) {
	h := Auth("k", "/api/health")(ok)

	tests := []struct {
		name   string
		path   string
		header string
		value  string
		want   int
	}{
		{"bearer", "/api/markets", "Authorization", "Bearer k", http.StatusNoContent},
		{"api key header", "/api/markets", "X-API-Key", "k", http.StatusNoContent},
		{"wrong key", "/api/markets", "X-API-Key", "nope", http.StatusUnauthorized},
		{"missing", "/api/markets", "", "", http.StatusUnauthorized},
		{"public path", "/api/health", "", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	rec := httptest.NewRecorder()
	Auth("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("disabled auth status = %d", rec.Code)
	}
}

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.err
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		limiter *stubLimiter
		want    int
	}{
		{"allowed", &stubLimiter{allowed: true}, http.StatusNoContent},
		{"blocked", &stubLimiter{allowed: false}, http.StatusTooManyRequests},
		{"limiter down fails open", &stubLimiter{err: errors.New("redis down")}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(tt.limiter, 10, time.Minute, logger)(ok)
			req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
			req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "60" {
				t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
			}
			if len(tt.limiter.keys) != 1 || tt.limiter.keys[0] != "read:203.0.113.7" {
				t.Errorf("keys = %v", tt.limiter.keys)
			}
		})
	}

	writes := &stubLimiter{allowed: true}
	req := httptest.NewRequest(http.MethodPost, "/api/bets", nil)
	req.RemoteAddr = "198.51.100.2:4000"
	RateLimit(writes, 10, time.Minute, logger)(ok).ServeHTTP(httptest.NewRecorder(), req)
	if len(writes.keys) != 1 || writes.keys[0] != "write:198.51.100.2" {
		t.Errorf("write keys = %v", writes.keys)
	}

	// A nil limiter leaves the handler untouched.
	rec := httptest.NewRecorder()
	RateLimit(nil, 10, time.Minute, logger)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("nil limiter status = %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://app.example"})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	req.Header.Set("Origin", "http://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "http://app.example" {
		t.Errorf("preflight = %d, allow-origin %q", rec.Code, rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("foreign origin was allowed")
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign preflight = %d, want 403", rec.Code)
	}
}

func TestAuthWebsocketQueryKey(t *testing.T) {
	h := Auth("k")(ok)

	req := httptest.NewRequest(http.MethodGet, "/ws?api_key=k", nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("websocket query key status = %d", rec.Code)
	}

	// The query parameter is ignored on plain requests.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets?api_key=k", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("plain query key status = %d, want 401", rec.Code)
	}
}

func TestLoggingRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seen string
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Errorf("request id = %q, header %q", seen, rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))
	if len(seen) != 36 || rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("generated request id = %q", seen)
	}
}
