package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tidybook/subsync/internal/config"
)

// TestRoutePrefix verifies that a configured route prefix moves the API and
// webhook routes but leaves the liveness endpoint at the root, where load
// balancers expect it.
func TestRoutePrefix(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.RoutePrefix = "/api"

	router := chi.NewRouter()
	ConfigureRouter(router, cfg, nil, nil, nil, nil, nil, nil, zerolog.Nop())

	tests := []struct {
		name      string
		method    string
		path      string
		wantFound bool
	}{
		{"prefixed status route", http.MethodGet, "/api/subsync/v1/status", true},
		{"unprefixed status route is gone", http.MethodGet, "/subsync/v1/status", false},
		{"prefixed webhook route", http.MethodPost, "/api/webhook/billing", true},
		{"liveness stays at root", http.MethodGet, "/subsync-health", true},
		{"liveness is not prefixed", http.MethodGet, "/api/subsync-health", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			found := router.Match(rctx, tt.method, tt.path)
			if found != tt.wantFound {
				t.Errorf("Match(%s %s) = %v, want %v", tt.method, tt.path, found, tt.wantFound)
			}
		})
	}
}

// TestMethodNotAllowed verifies write endpoints reject reads.
func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/subsync/v1/refresh", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on refresh = %d, want 405", rec.Code)
	}
}
