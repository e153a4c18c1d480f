package scraper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/config"
	"github.com/obsidianstack/fleetwatch/pkg/types"
)

// maxBodyBytes caps how much of any switch response is read.
const maxBodyBytes = 4 << 20

// Client talks to one switch: it fetches the status document and issues
// toggle commands. It is safe for concurrent use.
type Client struct {
	statusURL string
	toggleURL string
	schema    types.Schema
	timeout   time.Duration
	http      *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from the auth and TLS
// settings. Used by tests and for custom transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds every request issued by the client. Zero leaves the
// caller's context as the only deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New builds a Client for the switch described by cfg.
// It builds the HTTP client once and reuses it across calls.
func New(cfg config.MonitorConfig, opts ...Option) (*Client, error) {
	c := &Client{
		statusURL: cfg.StatusEndpoint,
		toggleURL: cfg.ToggleEndpoint,
		schema:    cfg.Schema(),
		timeout:   cfg.PollTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		hc, err := buildHTTPClient(cfg.Auth, cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("scraper: build http client: %w", err)
		}
		c.http = hc
	}
	return c, nil
}

// Fetch retrieves and decodes the current status snapshot.
// Every failure is returned as a *Error.
func (c *Client) Fetch(ctx context.Context) (*types.Snapshot, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	if err != nil {
		return nil, &Error{Kind: Unreachable, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		_, msg := types.ToggleReply(body, c.schema)
		return nil, &Error{Kind: BadStatus, StatusCode: status, Message: msg}
	}

	snap, err := types.Decode(body, c.schema)
	if err != nil {
		var fe *types.FieldError
		path := ""
		if errors.As(err, &fe) {
			path = fe.Path
		}
		return nil, &Error{Kind: MalformedBody, Path: path, Err: err}
	}
	snap.FetchedAt = time.Now().UTC()
	return snap, nil
}

// Toggle asks the switch to flip the active flag of server id and returns
// the switch's confirmation message. The response status decides success.
func (c *Client) Toggle(ctx context.Context, id string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ToggleURL(id), http.NoBody)
	if err != nil {
		return "", &Error{Kind: Unreachable, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return "", err
	}
	msg, errText := types.ToggleReply(body, c.schema)
	if status < 200 || status > 299 {
		return "", &Error{Kind: BadStatus, StatusCode: status, Message: errText}
	}
	if msg == "" {
		msg = fmt.Sprintf("server %s toggled", id)
	}
	return msg, nil
}

// ToggleURL returns the toggle endpoint for id.
func (c *Client) ToggleURL(id string) string {
	esc := url.PathEscape(id)
	if strings.Contains(c.toggleURL, "{id}") {
		return strings.ReplaceAll(c.toggleURL, "{id}", esc)
	}
	return strings.TrimRight(c.toggleURL, "/") + "/" + esc
}

// StatusURL returns the configured status endpoint.
func (c *Client) StatusURL() string { return c.statusURL }

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// do sends req and reads at most maxBodyBytes of the response.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &Error{Kind: Unreachable, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, &Error{Kind: Unreachable, Err: fmt.Errorf("read body: %w", err)}
	}
	return resp.StatusCode, body, nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the switch's auth and TLS settings.
func buildHTTPClient(auth config.AuthConfig, tlsOpts config.TLSConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: tlsOpts.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if auth.CAFile != "" {
			caPEM, err := os.ReadFile(auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: auth,
		},
	}, nil
}
