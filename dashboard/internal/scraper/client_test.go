package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/config"
)

// statusBody mirrors the inventory switch's /api/switch/status response.
const statusBody = `{
  "switch": {"status": "Switch de Inventario Operativo", "uptime_seconds": 61.2, "uptime_formatted": "0:01:01"},
  "servidores": [
    {"id": "servidor_v1", "name": "Servidor Principal v1.0", "url": "http://127.0.0.1:5000",
     "version": "1.0", "activo": true, "peso": 70, "latencia": 8.1,
     "ultimo_check": "Mon, 06 Jan 2025 10:00:00 GMT", "error": null},
    {"id": "servidor_v2", "name": "Servidor Backup v1.1", "url": "http://127.0.0.1:5003",
     "version": "1.1", "activo": true, "peso": 30, "latencia": null, "ultimo_check": null, "error": null}
  ],
  "estadisticas": {"total_requests": 40, "requests_por_servidor": {"servidor_v1": 30, "servidor_v2": 10}, "errores": 0}
}`

func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*config.MonitorConfig)) *Client {
	t.Helper()
	cfg := config.MonitorConfig{
		StatusEndpoint: srv.URL + "/api/switch/status",
		ToggleEndpoint: srv.URL + "/api/switch/servidor/{id}/toggle",
		PollTimeout:    2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestFetch_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/switch/status" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(statusBody))
	}))
	defer srv.Close()

	snap, err := newTestClient(t, srv, nil).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(snap.Servers) != 2 {
		t.Fatalf("servers: got %d, want 2", len(snap.Servers))
	}
	if snap.Servers[0].WeightPercent != 70 {
		t.Errorf("weight: got %d, want 70", snap.Servers[0].WeightPercent)
	}
	if snap.Servers[1].LatencyMs != nil {
		t.Errorf("null latency should decode as absent, got %v", *snap.Servers[1].LatencyMs)
	}
	if snap.Switch.UptimeSeconds != 61 {
		t.Errorf("uptime: got %d, want 61", snap.Switch.UptimeSeconds)
	}
	if snap.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantKind Kind
		check    func(t *testing.T, e *Error)
	}{
		{
			name: "bad status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error": "mantenimiento"}`))
			},
			wantKind: BadStatus,
			check: func(t *testing.T, e *Error) {
				if e.StatusCode != http.StatusServiceUnavailable {
					t.Errorf("StatusCode: got %d", e.StatusCode)
				}
				if e.Message != "mantenimiento" {
					t.Errorf("Message: got %q", e.Message)
				}
			},
		},
		{
			name: "html body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("<html>oops</html>"))
			},
			wantKind: MalformedBody,
			check: func(t *testing.T, e *Error) {
				if e.Path != "$" {
					t.Errorf("Path: got %q, want $", e.Path)
				}
			},
		},
		{
			name: "missing field",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(strings.Replace(statusBody, `"activo": true, "peso": 30`, `"peso": 30`, 1)))
			},
			wantKind: MalformedBody,
			check: func(t *testing.T, e *Error) {
				if e.Path != "servidores.1.activo" {
					t.Errorf("Path: got %q", e.Path)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := newTestClient(t, srv, nil).Fetch(context.Background())
			var se *Error
			if !errors.As(err, &se) {
				t.Fatalf("want *Error, got %T (%v)", err, err)
			}
			if se.Kind != tc.wantKind {
				t.Fatalf("Kind: got %v, want %v", se.Kind, tc.wantKind)
			}
			if tc.check != nil {
				tc.check(t, se)
			}
		})
	}
}

func TestFetch_TimeoutIsUnreachable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv, func(cfg *config.MonitorConfig) { cfg.PollTimeout = 50 * time.Millisecond })
	start := time.Now()
	_, err := c.Fetch(context.Background())
	if KindOf(err) != Unreachable {
		t.Fatalf("Kind: got %v, want unreachable (err=%v)", KindOf(err), err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error should wrap context.DeadlineExceeded: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout not honoured")
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(t, srv, nil)
	srv.Close()

	_, err := c.Fetch(context.Background())
	if KindOf(err) != Unreachable {
		t.Fatalf("Kind: got %v, want unreachable", KindOf(err))
	}
}

func TestToggle(t *testing.T) {
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		gotPath.Store(r.URL.EscapedPath())
		switch {
		case strings.Contains(r.URL.Path, "/servidor_v1/"):
			_, _ = w.Write([]byte(`{"success": true, "mensaje": "Servidor servidor_v1 desactivado"}`))
		case strings.Contains(r.URL.Path, "/silent/"):
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error": "Servidor no encontrado"}`))
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	msg, err := c.Toggle(context.Background(), "servidor_v1")
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if msg != "Servidor servidor_v1 desactivado" {
		t.Errorf("message: got %q", msg)
	}
	if p := gotPath.Load(); p != "/api/switch/servidor/servidor_v1/toggle" {
		t.Errorf("path: got %v", p)
	}

	msg, err = c.Toggle(context.Background(), "silent")
	if err != nil || msg == "" {
		t.Errorf("empty 200 body: msg=%q err=%v, want fallback message", msg, err)
	}

	_, err = c.Toggle(context.Background(), "ghost")
	var se *Error
	if !errors.As(err, &se) || se.Kind != BadStatus || se.StatusCode != http.StatusNotFound {
		t.Fatalf("want BadStatus 404, got %v", err)
	}
	if se.Message != "Servidor no encontrado" {
		t.Errorf("Message: got %q", se.Message)
	}
}

func TestToggleURL(t *testing.T) {
	tests := []struct {
		endpoint string
		id       string
		want     string
	}{
		{"http://lb/api/switch/servidor/{id}/toggle", "a", "http://lb/api/switch/servidor/a/toggle"},
		{"http://lb/toggle", "a b", "http://lb/toggle/a%20b"},
		{"http://lb/toggle/", "x/y", "http://lb/toggle/x%2Fy"},
	}
	for _, tc := range tests {
		c := &Client{toggleURL: tc.endpoint}
		if got := c.ToggleURL(tc.id); got != tc.want {
			t.Errorf("ToggleURL(%q, %q) = %q, want %q", tc.endpoint, tc.id, got, tc.want)
		}
	}
}

func TestAuthRoundTripper(t *testing.T) {
	t.Setenv("FW_TEST_TOKEN", "tok")
	t.Setenv("FW_TEST_KEY", "k3y")
	t.Setenv("FW_TEST_PASS", "pw")

	tests := []struct {
		name  string
		auth  config.AuthConfig
		check func(t *testing.T, r *http.Request)
	}{
		{"bearer", config.AuthConfig{Mode: "bearer", TokenEnv: "FW_TEST_TOKEN"}, func(t *testing.T, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("Authorization: got %q", got)
			}
		}},
		{"apikey", config.AuthConfig{Mode: "apikey", Header: "X-Switch-Key", KeyEnv: "FW_TEST_KEY"}, func(t *testing.T, r *http.Request) {
			if got := r.Header.Get("X-Switch-Key"); got != "k3y" {
				t.Errorf("X-Switch-Key: got %q", got)
			}
		}},
		{"basic", config.AuthConfig{Mode: "basic", Username: "ops", PasswordEnv: "FW_TEST_PASS"}, func(t *testing.T, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || u != "ops" || p != "pw" {
				t.Errorf("basic auth: got %q/%q ok=%v", u, p, ok)
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tc.check(t, r)
				_, _ = w.Write([]byte(statusBody))
			}))
			defer srv.Close()

			c := newTestClient(t, srv, func(cfg *config.MonitorConfig) { cfg.Auth = tc.auth })
			if _, err := c.Fetch(context.Background()); err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
		})
	}
}
