package probe

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/config"
)

const (
	certDialTimeout = 10 * time.Second

	// DefaultCertTTL is how long a certificate result is reused before the
	// endpoint is dialled again.
	DefaultCertTTL = time.Hour

	expiringDays = 30
)

// CertStatus describes the leaf certificate of the switch's status endpoint.
type CertStatus struct {
	Endpoint  string    `json:"endpoint"`
	AuthType  string    `json:"auth_type"`
	Status    string    `json:"status"` // valid | expiring | expired | unreachable
	DaysLeft  int       `json:"days_left"`
	Issuer    string    `json:"issuer,omitempty"`
	NotAfter  string    `json:"not_after,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// CheckCert dials the TLS endpoint and describes its leaf certificate.
// It returns nil for plain-HTTP or unparseable endpoints.
func CheckCert(ctx context.Context, endpoint, authMode string, insecure bool) *CertStatus {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{
		Endpoint:  endpoint,
		AuthType:  authMode,
		CheckedAt: time.Now().UTC(),
	}
	if cs.AuthType == "" {
		cs.AuthType = "none"
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, certDialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: insecure, //nolint:gosec
		},
	}
	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = "unreachable"
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peers := conn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		cs.Status = "unreachable"
		return cs
	}

	leaf := peers[0]
	daysLeft := leaf.NotAfter.Sub(time.Now()).Hours() / 24

	cs.NotAfter = leaf.NotAfter.UTC().Format(time.RFC3339)
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(daysLeft))

	switch {
	case daysLeft <= 0:
		cs.Status = "expired"
	case daysLeft <= expiringDays:
		cs.Status = "expiring"
	default:
		cs.Status = "valid"
	}
	return cs
}

// CertChecker caches CheckCert results for the configured status endpoint.
type CertChecker struct {
	endpoint string
	authMode string
	insecure bool
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	last    *CertStatus
	checked time.Time
}

// NewCertChecker returns a checker for cfg's status endpoint.
func NewCertChecker(cfg config.MonitorConfig) *CertChecker {
	return &CertChecker{
		endpoint: cfg.StatusEndpoint,
		authMode: cfg.Auth.Mode,
		insecure: cfg.TLS.InsecureSkipVerify,
		ttl:      DefaultCertTTL,
		now:      time.Now,
	}
}

// CertStatus returns the cached result, dialling again once it is older than
// the TTL. It returns nil when the endpoint is not HTTPS.
func (c *CertChecker) CertStatus(ctx context.Context) *CertStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.checked.IsZero() && c.now().Sub(c.checked) < c.ttl {
		return c.last
	}
	c.last = CheckCert(ctx, c.endpoint, c.authMode, c.insecure)
	c.checked = c.now()
	return c.last
}
