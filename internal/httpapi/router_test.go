package httpapi

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lukasbauer/speechio/internal/cache"
	"github.com/lukasbauer/speechio/internal/eventlog"
)

func newTestRouter(cfg RouterConfig) http.Handler {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "test-secret"
	}
	if cfg.JWTExpiry == 0 {
		cfg.JWTExpiry = time.Hour
	}
	logger := log.New(io.Discard, "", 0)
	return NewRouter(cfg, logger, nil, eventlog.New(nil), cache.NewMemory())
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestRouter(RouterConfig{})

	req := httptest.NewRequest(http.MethodOptions, "/api/usage", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
	}
}

func TestUsageRequiresAuth(t *testing.T) {
	handler := newTestRouter(RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestUsageWithoutStore(t *testing.T) {
	cfg := RouterConfig{JWTSecret: "test-secret", JWTExpiry: time.Hour}
	logger := log.New(io.Discard, "", 0)
	r := &Router{cfg: cfg, logger: logger, eventLog: eventlog.New(nil), cache: cache.NewMemory(), mux: http.NewServeMux()}
	r.routes()

	token, _, err := r.generateJWT("client-1")
	if err != nil {
		t.Fatalf("generateJWT failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestStreamRejectsWhenUnconfigured(t *testing.T) {
	handler := newTestRouter(RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestWSURLFromPublicBase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://api.example.com", "wss://api.example.com"},
		{"http://localhost:8080", "ws://localhost:8080"},
		{"api.example.com", "wss://api.example.com"},
	}

	for _, tt := range tests {
		if got := wsURLFromPublicBase(tt.in); got != tt.want {
			t.Errorf("wsURLFromPublicBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
