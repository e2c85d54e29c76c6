package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

type stubArchives map[string]string

func (s stubArchives) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := s[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (s stubArchives) Stat(_ context.Context, path string) (domain.BlobInfo, error) {
	body, ok := s[path]
	if !ok {
		return domain.BlobInfo{}, domain.ErrNotFound
	}
	return domain.BlobInfo{
		Size:     int64(len(body)),
		Metadata: map[string]string{"sha256": "abc123", "markets": "1"},
	}, nil
}

func TestArchiveGetDay(t *testing.T) {
	const line = `{"market":{"id":"m1"},"bets":[]}` + "\n"
	h := NewArchiveHandler(stubArchives{"cold/markets/2025-03-01.jsonl": line}, "cold",
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/archives/{day}", h.GetDay)

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/api/archives/2025-03-01", http.StatusOK},
		{"/api/archives/2025-03-02", http.StatusNotFound},
		{"/api/archives/yesterday", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.wantCode {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantCode)
			continue
		}
		if tt.wantCode != http.StatusOK {
			continue
		}
		if rec.Body.String() != line {
			t.Errorf("body = %q", rec.Body.String())
		}
		if got := rec.Header().Get("X-Archive-SHA256"); got != "abc123" {
			t.Errorf("X-Archive-SHA256 = %q", got)
		}
		if got := rec.Header().Get("X-Archive-Bets"); got != "" {
			t.Errorf("X-Archive-Bets = %q, want unset", got)
		}
		if got := rec.Header().Get("Content-Length"); got != "33" {
			t.Errorf("Content-Length = %q", got)
		}
	}
}
