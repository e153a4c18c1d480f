package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/config"
)

func TestCheckCert_PlainHTTPIsNil(t *testing.T) {
	if cs := CheckCert(context.Background(), "http://127.0.0.1:5002/status", "none", false); cs != nil {
		t.Fatalf("want nil for http endpoint, got %+v", cs)
	}
	if cs := CheckCert(context.Background(), "://bad", "none", false); cs != nil {
		t.Fatalf("want nil for unparseable endpoint, got %+v", cs)
	}
}

func TestCheckCert_Valid(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()

	cs := CheckCert(context.Background(), srv.URL+"/status", "", true)
	if cs == nil {
		t.Fatal("want status, got nil")
	}
	if cs.Status != "valid" {
		t.Errorf("status: want valid, got %q", cs.Status)
	}
	if cs.AuthType != "none" {
		t.Errorf("auth type: want none, got %q", cs.AuthType)
	}
	if cs.DaysLeft <= expiringDays {
		t.Errorf("days left: want > %d, got %d", expiringDays, cs.DaysLeft)
	}
	if cs.NotAfter == "" {
		t.Error("not_after is empty")
	}
}

func TestCheckCert_Unverified(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()

	// The test server's certificate is not in the system pool.
	cs := CheckCert(context.Background(), srv.URL, "apikey", false)
	if cs == nil || cs.Status != "unreachable" {
		t.Fatalf("want unreachable, got %+v", cs)
	}
	if cs.AuthType != "apikey" {
		t.Errorf("auth type: want apikey, got %q", cs.AuthType)
	}
}

func TestCertChecker_Caches(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	addr := srv.URL

	c := NewCertChecker(config.MonitorConfig{
		StatusEndpoint: addr,
		TLS:            config.TLSConfig{InsecureSkipVerify: true},
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	first := c.CertStatus(context.Background())
	if first == nil || first.Status != "valid" {
		t.Fatalf("first check: got %+v", first)
	}

	srv.Close()
	if got := c.CertStatus(context.Background()); got != first {
		t.Fatal("result within TTL was not reused")
	}

	now = now.Add(DefaultCertTTL)
	if got := c.CertStatus(context.Background()); got == nil || got.Status != "unreachable" {
		t.Fatalf("after TTL: want unreachable, got %+v", got)
	}
}
